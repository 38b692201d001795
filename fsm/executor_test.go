package fsm_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/amp-labs/amp-fsm/fsm"
	"github.com/amp-labs/amp-fsm/fsm/fsmtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errNotify = errors.New("notification service down")

type NotifyTask struct{}

func (*NotifyTask) TargetState() string { return stateCompleted }

func (*NotifyTask) Execute(context.Context, *fsm.TransitionContext) (map[string]any, error) {
	return nil, nil
}

func (*NotifyTask) PostHook(context.Context, *fsm.TransitionContext, *fsm.StateRecord) error {
	return errNotify
}

func TestInitialTransitionCreatesFirstRecord(t *testing.T) {
	t.Parallel()

	h, task := newTaskHarness(t)
	actor := fsmtest.Actor{ID: "user-7", Org: "org-9"}

	rec := h.MustExecute(task, "create_task", map[string]any{"title": "label me"}, actor)

	assert.Equal(t, stateCreated, rec.State)
	assert.False(t, rec.HasPreviousState())
	assert.Equal(t, "create_task", rec.TransitionName)
	assert.Equal(t, "user-7", rec.TriggeredBy)
	assert.Equal(t, "org-1", rec.OrganizationID)
	assert.Equal(t, "CreateTask executed by user-7", rec.Reason)
	assert.Equal(t, map[string]any{"title": "label me"}, rec.ContextData)
	assert.Equal(t, fsm.RecordTime(rec.ID), rec.CreatedAt)

	h.RequireCached(task, stateCreated)
	h.RequireHistory(task, stateCreated)
}

func TestStartTaskRejectedWithoutState(t *testing.T) {
	t.Parallel()

	h, task := newTaskHarness(t)

	rec, err := h.Execute(task, "start_task", map[string]any{"priority": 2}, nil)
	require.Error(t, err)
	assert.Nil(t, rec)
	assert.ErrorIs(t, err, fsm.ErrTransitionValidation)

	verr := fsmtest.RequireValidationError(t, err)
	assert.Nil(t, verr.Context["current_state"])
	assert.Equal(t, []string{stateCreated}, verr.Context["valid_states"])

	h.RequireHistory(task)
}

func TestStartTaskAsDesignatedInitialTransition(t *testing.T) {
	t.Parallel()

	h := fsmtest.New(t)
	h.Store(taskType)
	h.Register(fsm.Define[StartTask](taskType, fsm.FromStates(stateCreated), fsm.AllowInitial()))

	task := fsmtest.Entity{Type: taskType, ID: "t-2"}
	rec := h.MustExecute(task, "start_task", map[string]any{"priority": 1}, nil)

	assert.Equal(t, stateInProgress, rec.State)
	assert.Empty(t, rec.PreviousState)
	assert.Equal(t, "StartTask executed automatically", rec.Reason)
	assert.Empty(t, rec.TriggeredBy)
}

func TestFullLifecycle(t *testing.T) {
	t.Parallel()

	h, task := newTaskHarness(t)

	h.MustExecute(task, "create_task", nil, nil)
	started := h.MustExecute(task, "start_task", map[string]any{"priority": 3}, nil)
	assert.Equal(t, stateCreated, started.PreviousState)
	assert.Equal(t, stateCreated, started.ContextData["started_from"])

	done := h.MustExecute(task, "complete_task", nil, nil, fsm.WithReason("reviewed by QA"))
	assert.Equal(t, "reviewed by QA", done.Reason)
	assert.Equal(t, map[string]any{}, done.ContextData)

	h.RequireHistory(task, stateCreated, stateInProgress, stateCompleted)
	h.RequireState(task, stateCompleted)
}

func TestFailedAttemptsWriteNothing(t *testing.T) {
	t.Parallel()

	h, task := newTaskHarness(t)
	h.Register(fsm.Define[ExplodingTask](taskType))
	h.Register(fsm.Define[GuardedTask](taskType))

	h.MustExecute(task, "create_task", nil, nil)

	before, err := h.Manager.GetStateHistory(h.Context(), task, 0)
	require.NoError(t, err)

	_, err = h.Execute(task, "exploding_task", nil, nil)
	require.ErrorIs(t, err, errExecute)

	_, err = h.Execute(task, "guarded_task", map[string]any{"allow": false}, nil)
	verr := fsmtest.RequireValidationError(t, err)
	assert.Equal(t, stateCreated, verr.Context["current_state"])
	assert.Equal(t, stateCompleted, verr.Context["target_state"])

	_, err = h.Execute(task, "start_task", map[string]any{"priority": 9}, nil)
	fsmtest.RequireSchemaError(t, err, "priority")

	after, err := h.Manager.GetStateHistory(h.Context(), task, 0)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	h.MustExecute(task, "guarded_task", map[string]any{"allow": true}, nil)
	h.RequireHistory(task, stateCreated, stateCompleted)
}

func TestPersistenceFailureInvalidatesCache(t *testing.T) {
	t.Parallel()

	h, task := newTaskHarness(t)
	h.MustExecute(task, "create_task", nil, nil)
	h.RequireState(task, stateCreated)
	h.RequireCached(task, stateCreated)

	store := h.Store(taskType)
	h.Models.Register(taskType, &fsmtest.FailingModel{StateModel: store, CreateErr: fsmtest.ErrInjected})

	rec, err := h.Execute(task, "start_task", map[string]any{"priority": 1}, nil)
	require.Error(t, err)
	assert.Nil(t, rec)
	require.ErrorIs(t, err, fsm.ErrStateManager)
	require.ErrorIs(t, err, fsmtest.ErrInjected)

	var smErr *fsm.StateManagerError
	require.ErrorAs(t, err, &smErr)
	assert.Equal(t, "transition_state", smErr.Op)

	h.RequireNotCached(task)
	assert.Len(t, store.Records(task), 1)
}

func TestDenormalizationFailureInvalidatesCache(t *testing.T) {
	t.Parallel()

	h, task := newTaskHarness(t)
	h.MustExecute(task, "create_task", nil, nil)
	h.RequireCached(task, stateCreated)

	h.Models.Register(taskType, &fsmtest.FailingModel{StateModel: h.Store(taskType), DenormalizeErr: fsmtest.ErrInjected})

	_, err := h.Execute(task, "start_task", map[string]any{"priority": 1}, nil)
	require.ErrorIs(t, err, fsmtest.ErrInjected)
	h.RequireNotCached(task)
}

func TestUnknownTransition(t *testing.T) {
	t.Parallel()

	h, task := newTaskHarness(t)

	_, err := h.Execute(task, "teleport_task", nil, nil)
	require.ErrorIs(t, err, fsm.ErrUnknownTransition)

	var unknown *fsm.UnknownTransitionError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "teleport_task", unknown.Name)
	assert.Equal(t, taskType, unknown.EntityType)
}

func TestMissingStateModelIsConfigurationError(t *testing.T) {
	t.Parallel()

	h := fsmtest.New(t)
	h.Register(fsm.Define[CreateTask]("ghost", fsm.InitialOnly()))

	ghost := fsmtest.Entity{Type: "ghost", ID: "g-1"}

	_, err := h.Execute(ghost, "create_task", nil, nil)
	require.ErrorIs(t, err, fsm.ErrStateManager)
	require.ErrorIs(t, err, fsm.ErrNoStateModel)
	assert.False(t, fsm.IsRetryable(err))

	_, err = h.Manager.GetCurrentStateValue(h.Context(), ghost)
	require.ErrorIs(t, err, fsm.ErrNoStateModel)
}

func TestPostHookFailureKeepsRecord(t *testing.T) {
	t.Parallel()

	h, task := newTaskHarness(t)
	h.Register(fsm.Define[NotifyTask](taskType))

	rec, err := h.Execute(task, "notify_task", nil, nil)
	require.ErrorIs(t, err, fsm.ErrPostHook)
	require.ErrorIs(t, err, errNotify)
	require.NotNil(t, rec)
	assert.Equal(t, stateCompleted, rec.State)

	h.RequireHistory(task, stateCompleted)
}

func TestOrganizationResolution(t *testing.T) {
	t.Parallel()

	h := fsmtest.New(t)
	h.Store(taskType)
	h.Register(fsm.Define[SetStatus](taskType))

	actor := fsmtest.Actor{ID: "u-1", Org: "actor-org"}

	fromEntity := h.MustExecute(fsmtest.Entity{Type: taskType, ID: "a", Org: "entity-org"},
		"set_status", map[string]any{"status": stateCreated}, actor)
	assert.Equal(t, "entity-org", fromEntity.OrganizationID)

	fromActor := h.MustExecute(fsmtest.Entity{Type: taskType, ID: "b"},
		"set_status", map[string]any{"status": stateCreated}, actor)
	assert.Equal(t, "actor-org", fromActor.OrganizationID)

	explicit := h.MustExecute(fsmtest.Entity{Type: taskType, ID: "c", Org: "entity-org"},
		"set_status", map[string]any{"status": stateCreated}, actor, fsm.WithOrganization("pinned-org"))
	assert.Equal(t, "pinned-org", explicit.OrganizationID)

	system := h.MustExecute(fsmtest.Entity{Type: taskType, ID: "d"},
		"set_status", map[string]any{"status": stateCreated}, nil)
	assert.Empty(t, system.OrganizationID)
}

func TestConcurrentTransitionsForkHistory(t *testing.T) {
	t.Parallel()

	h, task := newTaskHarness(t)
	h.Register(fsm.Define[SetStatus](taskType))
	h.MustExecute(task, "create_task", nil, nil)

	var wg sync.WaitGroup

	errs := make(chan error, 2)

	for _, status := range []string{stateInProgress, stateCompleted} {
		wg.Go(func() {
			_, err := h.Execute(task, "set_status", map[string]any{"status": status}, nil)
			errs <- err
		})
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	history, err := h.Manager.GetStateHistory(h.Context(), task, 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, stateCreated, history[2].State)
	assert.ElementsMatch(t, []string{stateInProgress, stateCompleted}, []string{history[0].State, history[1].State})
	assert.Equal(t, 1, fsm.CompareRecords(history[0], history[1]))

	require.NoError(t, h.Manager.InvalidateCache(h.Context(), task))
	h.RequireState(task, history[0].State)
}
