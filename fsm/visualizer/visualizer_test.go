package visualizer

import (
	"context"
	"testing"

	"github.com/amp-labs/amp-fsm/fsm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type createTask struct{}

func (*createTask) TargetState() string { return "CREATED" }
func (*createTask) Execute(context.Context, *fsm.TransitionContext) (map[string]any, error) {
	return nil, nil
}

type startTask struct {
	Priority int `json:"priority" validate:"required"`
}

func (*startTask) TargetState() string { return "IN_PROGRESS" }
func (*startTask) Execute(context.Context, *fsm.TransitionContext) (map[string]any, error) {
	return nil, nil
}

type completeTask struct{}

func (*completeTask) TargetState() string { return "COMPLETED" }
func (*completeTask) Execute(context.Context, *fsm.TransitionContext) (map[string]any, error) {
	return nil, nil
}

type setStatus struct {
	Status string `json:"status" validate:"required"`
}

func (s *setStatus) TargetState() string { return s.Status }
func (*setStatus) Execute(context.Context, *fsm.TransitionContext) (map[string]any, error) {
	return nil, nil
}

func taskRegistry(t *testing.T) *fsm.Registry {
	t.Helper()

	r := fsm.NewRegistry()
	ctx := context.Background()

	r.Register(ctx, fsm.MustDefine[createTask]("task", fsm.WithName("create_task"), fsm.InitialOnly()))
	r.Register(ctx, fsm.MustDefine[startTask]("task", fsm.WithName("start_task"), fsm.FromStates("CREATED")))
	r.Register(ctx, fsm.MustDefine[completeTask]("task", fsm.WithName("complete_task"), fsm.FromStates("IN_PROGRESS")))
	r.Register(ctx, fsm.MustDefine[setStatus]("task", fsm.WithName("set_status")))

	return r
}

func TestGenerateMermaid(t *testing.T) {
	t.Parallel()

	out, err := GenerateMermaid(taskRegistry(t), "task")
	require.NoError(t, err)

	for _, want := range []string{
		"```mermaid\n",
		"stateDiagram-v2\n",
		"direction LR",
		"[*] --> CREATED : create_task",
		"CREATED --> IN_PROGRESS : start_task",
		"IN_PROGRESS --> COMPLETED : complete_task",
		"%% set_status: target state depends on the payload",
		"classDef highlighted",
	} {
		assert.Contains(t, out, want)
	}

	assert.NotContains(t, out, "[*] --> IN_PROGRESS")
}

func TestGenerateMermaidWithOptions(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions().
		WithShowTransitionNames(false).
		WithDirection("TB").
		WithFinalStates("COMPLETED").
		WithHighlightPath([]string{"CREATED"}).
		WithFenced(false)

	out, err := GenerateMermaidWithOptions(taskRegistry(t), "task", opts)
	require.NoError(t, err)

	assert.NotContains(t, out, "```")
	assert.Contains(t, out, "direction TB")
	assert.Contains(t, out, "    CREATED --> IN_PROGRESS\n")
	assert.Contains(t, out, "COMPLETED --> [*]")
	assert.Contains(t, out, "class COMPLETED finalState")
	assert.Contains(t, out, "class CREATED highlighted")
}

func TestAnySourceTransition(t *testing.T) {
	t.Parallel()

	r := taskRegistry(t)
	r.Register(context.Background(), fsm.MustDefine[completeTask]("task", fsm.WithName("force_complete")))

	out, err := GenerateMermaid(r, "task")
	require.NoError(t, err)

	assert.Contains(t, out, "[*] --> COMPLETED : force_complete")
	assert.Contains(t, out, "CREATED --> COMPLETED : force_complete")
	assert.Contains(t, out, "IN_PROGRESS --> COMPLETED : force_complete")
	assert.NotContains(t, out, "COMPLETED --> COMPLETED")
}

func TestGenerateMermaidErrors(t *testing.T) {
	t.Parallel()

	_, err := GenerateMermaid(nil, "task")
	require.ErrorIs(t, err, ErrRegistryNil)

	_, err = GenerateMermaid(fsm.NewRegistry(), "task")
	require.ErrorIs(t, err, ErrNoTransitions)

	_, err = GenerateMermaidWithOptions(taskRegistry(t), "task", DefaultOptions().WithDirection("diagonal"))
	require.ErrorIs(t, err, ErrInvalidDirection)
}
