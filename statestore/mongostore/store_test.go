package mongostore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/amp-labs/amp-fsm/fsm"
	"github.com/amp-labs/amp-fsm/fsm/fsmtest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func testStore(t *testing.T) *Store {
	t.Helper()

	url := os.Getenv("TEST_MONGODB_URL")
	if url == "" {
		t.Skip("set TEST_MONGODB_URL to run mongo integration tests")
	}

	ctx := context.Background()

	client, err := Connect(ctx, Config{
		ConnectionURL:  url,
		ConnectTimeout: 5 * time.Second,
		MaxPoolSize:    4,
		RetryAttempts:  2,
		RetryInterval:  100 * time.Millisecond,
	})
	require.NoError(t, err)
	require.NoError(t, Healthcheck(client)(ctx))

	db := client.Database("fsm_test_" + uuid.NewString()[:8])

	t.Cleanup(func() {
		_ = db.Drop(ctx)
		_ = client.Disconnect(ctx)
	})

	store := New(db, "task", WithDenormalizer(func(context.Context, fsm.Entity) (map[string]any, error) {
		return map[string]any{"project_id": "p-1"}, nil
	}))
	require.NoError(t, store.EnsureIndexes(ctx))

	return store
}

func TestConnectRequiresURL(t *testing.T) {
	t.Parallel()

	_, err := Connect(context.Background(), Config{})
	require.ErrorIs(t, err, ErrEmptyConnectionURL)
}

func TestPlainValue(t *testing.T) {
	t.Parallel()

	got := plainMap(bson.M{
		"nested": bson.D{{Key: "a", Value: int32(1)}},
		"list":   bson.A{"x", bson.M{"b": true}},
		"scalar": "v",
	})

	assert.Equal(t, map[string]any{
		"nested": map[string]any{"a": int32(1)},
		"list":   []any{"x", map[string]any{"b": true}},
		"scalar": "v",
	}, got)
}

func TestEngineOverMongo(t *testing.T) {
	t.Parallel()

	store := testStore(t)
	h := fsmtest.New(t)
	h.Models.Register("task", store)

	h.Register(fsm.Define[openTask]("task", fsm.InitialOnly()))
	h.Register(fsm.Define[closeTask]("task", fsm.FromStates("OPEN")))

	task := fsmtest.Entity{Type: "task", ID: "m-1"}

	first := h.MustExecute(task, "open_task", map[string]any{"labels": []any{"a", "b"}}, nil)
	assert.Equal(t, "p-1", first.Denormalized["project_id"])

	h.MustExecute(task, "close_task", nil, fsmtest.Actor{ID: "u-1"})
	h.RequireState(task, "CLOSED")
	h.RequireHistory(task, "OPEN", "CLOSED")

	cur, err := store.GetCurrentState(h.Context(), task)
	require.NoError(t, err)
	assert.Equal(t, "OPEN", cur.PreviousState)
	assert.Equal(t, "u-1", cur.TriggeredBy)

	inRange, err := store.GetStatesInRange(h.Context(), task, first.CreatedAt, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Len(t, inRange, 2)

	hist, err := store.GetStateHistory(h.Context(), task, 10)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, []any{"a", "b"}, hist[1].ContextData["labels"])
}

type openTask struct {
	Labels []string `json:"labels"`
}

func (*openTask) TargetState() string { return "OPEN" }

func (t *openTask) Execute(context.Context, *fsm.TransitionContext) (map[string]any, error) {
	labels := make([]any, len(t.Labels))
	for i, l := range t.Labels {
		labels[i] = l
	}

	return map[string]any{"labels": labels}, nil
}

type closeTask struct{}

func (*closeTask) TargetState() string { return "CLOSED" }

func (*closeTask) Execute(context.Context, *fsm.TransitionContext) (map[string]any, error) {
	return nil, nil
}
