package fsm_test

import (
	"context"
	"testing"
	"time"

	"github.com/amp-labs/amp-fsm/fsm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheExpiry(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache := fsm.NewMemoryCache(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", "v", time.Minute))
	require.NoError(t, cache.SetMany(ctx, map[string]string{"a": "1", "b": "2"}, 0))

	v, ok, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	now = now.Add(time.Minute)

	_, ok, err = cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "entry should expire at its TTL")

	v, ok, _ = cache.Get(ctx, "b")
	assert.True(t, ok, "entries without TTL never expire")
	assert.Equal(t, "2", v)

	require.NoError(t, cache.Delete(ctx, "b"))
	_, ok, _ = cache.Get(ctx, "b")
	assert.False(t, ok)
}

func TestCacheKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "fsm:state:task:42", fsm.CacheKey("task", "42"))
}

func TestManagerHonorsCacheTTL(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	cache := fsm.NewMemoryCache(clock)

	h, task := newTaskHarness(t)
	sm := fsm.NewDefaultStateManager(
		fsm.WithRegistry(h.Registry),
		fsm.WithStateModels(h.Models),
		fsm.WithCache(cache),
		fsm.WithCacheTTL(10*time.Second),
		fsm.WithClock(clock),
	)

	_, err := sm.ExecuteTransition(h.Context(), task, "create_task", nil, nil)
	require.NoError(t, err)

	key := fsm.CacheKey(task.Type, task.ID)
	_, ok, _ := cache.Get(h.Context(), key)
	assert.True(t, ok)

	now = now.Add(11 * time.Second)
	_, ok, _ = cache.Get(h.Context(), key)
	assert.False(t, ok)
}
