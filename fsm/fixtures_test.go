package fsm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/amp-labs/amp-fsm/fsm"
	"github.com/amp-labs/amp-fsm/fsm/fsmtest"
)

const (
	taskType = "task"

	stateCreated    = "CREATED"
	stateInProgress = "IN_PROGRESS"
	stateCompleted  = "COMPLETED"
)

var errExecute = errors.New("execute exploded")

type CreateTask struct {
	Title string `json:"title" validate:"omitempty,max=20" description:"Task title"`
}

func (*CreateTask) TargetState() string { return stateCreated }

func (t *CreateTask) Execute(_ context.Context, _ *fsm.TransitionContext) (map[string]any, error) {
	return map[string]any{"title": t.Title}, nil
}

type StartTask struct {
	Priority int    `json:"priority" validate:"required,min=1,max=5" description:"1 is the highest priority"`
	Assignee string `json:"assignee" validate:"omitempty,min=2"`
}

func (*StartTask) TargetState() string { return stateInProgress }

func (t *StartTask) Execute(_ context.Context, tc *fsm.TransitionContext) (map[string]any, error) {
	return map[string]any{"priority": t.Priority, "started_from": tc.CurrentState}, nil
}

type CompleteTask struct{}

func (*CompleteTask) TargetState() string { return stateCompleted }

func (*CompleteTask) Execute(context.Context, *fsm.TransitionContext) (map[string]any, error) {
	return nil, nil
}

type SetStatus struct {
	Status string `json:"status" validate:"required,oneof=CREATED IN_PROGRESS COMPLETED"`
}

func (t *SetStatus) TargetState() string { return t.Status }

func (t *SetStatus) Execute(context.Context, *fsm.TransitionContext) (map[string]any, error) {
	return map[string]any{"status": t.Status}, nil
}

type ExplodingTask struct{}

func (*ExplodingTask) TargetState() string { return stateCompleted }

func (*ExplodingTask) Execute(context.Context, *fsm.TransitionContext) (map[string]any, error) {
	return nil, errExecute
}

// GuardedTask rejects without an error unless allowed.
type GuardedTask struct {
	Allow bool `json:"allow"`
}

func (*GuardedTask) TargetState() string { return stateCompleted }

func (t *GuardedTask) Validate(context.Context, *fsm.TransitionContext) (bool, error) {
	return t.Allow, nil
}

func (*GuardedTask) Execute(context.Context, *fsm.TransitionContext) (map[string]any, error) {
	return nil, nil
}

func newTaskHarness(t testing.TB) (*fsmtest.Harness, fsmtest.Entity) {
	h := fsmtest.New(t)
	h.Store(taskType)
	h.Register(fsm.Define[CreateTask](taskType, fsm.InitialOnly()))
	h.Register(fsm.Define[StartTask](taskType, fsm.FromStates(stateCreated)))
	h.Register(fsm.Define[CompleteTask](taskType, fsm.FromStates(stateInProgress)))

	return h, fsmtest.Entity{Type: taskType, ID: "t-1", Org: "org-1"}
}
