package fsm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/amp-labs/amp-fsm/fsm"
	"github.com/amp-labs/amp-fsm/fsm/fsmtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type AssignTaskV1 struct {
	Assignee string `json:"assignee" validate:"required"`
	Priority int    `json:"priority" validate:"omitempty,gte=1,lte=5"`
}

func (*AssignTaskV1) TargetState() string { return stateInProgress }

func (t *AssignTaskV1) Execute(context.Context, *fsm.TransitionContext) (map[string]any, error) {
	return map[string]any{"assignee": t.Assignee}, nil
}

type AssignTaskV2 struct {
	AssignTaskV1

	Deadline string   `json:"deadline" validate:"required"`
	Tags     []string `json:"tags" validate:"omitempty,max=3"`
}

func (t *AssignTaskV2) Execute(ctx context.Context, tc *fsm.TransitionContext) (map[string]any, error) {
	data, err := t.AssignTaskV1.Execute(ctx, tc)
	if err != nil {
		return nil, err
	}

	data["deadline"] = t.Deadline

	return data, nil
}

type ScheduleTask struct {
	StartDay int `json:"start_day" validate:"required"`
	EndDay   int `json:"end_day" validate:"required"`
}

func (*ScheduleTask) TargetState() string { return "SCHEDULED" }

func (*ScheduleTask) Execute(context.Context, *fsm.TransitionContext) (map[string]any, error) {
	return nil, nil
}

func (t *ScheduleTask) ValidatePayload() error {
	if t.EndDay < t.StartDay {
		return &fsm.SchemaError{Fields: map[string]string{"end_day": "must not be before start_day"}}
	}

	return nil
}

func TestSchemaErrorListsEveryField(t *testing.T) {
	t.Parallel()

	def := fsm.MustDefine[StartTask](taskType)

	_, err := def.Build(map[string]any{"priority": "high", "assignee": "x"})
	require.ErrorIs(t, err, fsm.ErrSchemaValidation)

	serr := fsmtest.RequireSchemaError(t, err, "priority", "assignee")
	assert.Equal(t, "expected integer, got string", serr.Fields["priority"])
	assert.Equal(t, "length must be at least 2", serr.Fields["assignee"])
	assert.Equal(t, "start_task", serr.Transition)
	assert.False(t, fsm.IsRetryable(err))

	_, err = def.Build(nil)
	serr = fsmtest.RequireSchemaError(t, err, "priority")
	assert.Equal(t, "field required", serr.Fields["priority"])

	_, err = def.Build(map[string]any{"priority": 0.5})
	fsmtest.RequireSchemaError(t, err, "priority")
}

func TestVersionedPayloadsShareFields(t *testing.T) {
	t.Parallel()

	h := fsmtest.New(t)
	h.Store(taskType)
	v1 := h.Register(fsm.Define[AssignTaskV1](taskType, fsm.WithName("assign_task")))
	v2 := h.Register(fsm.Define[AssignTaskV2](taskType))

	assert.Equal(t, "assign_task_v2", v2.Name)

	_, err := v2.Build(map[string]any{"priority": 7})
	fsmtest.RequireSchemaError(t, err, "assignee", "deadline", "priority")

	_, err = v1.Build(map[string]any{"assignee": "ana", "deadline": "ignored"})
	require.NoError(t, err)

	task := fsmtest.Entity{Type: taskType, ID: "t-6"}
	rec := h.MustExecute(task, "assign_task_v2", map[string]any{
		"assignee": "ana",
		"priority": 2,
		"deadline": "2026-01-01",
		"tags":     []string{"urgent"},
	}, nil)

	assert.Equal(t, stateInProgress, rec.State)
	assert.Equal(t, map[string]any{"assignee": "ana", "deadline": "2026-01-01"}, rec.ContextData)

	schema := fsm.GetTransitionSchema(v2)
	assert.Equal(t, []string{"assignee", "priority", "deadline", "tags"}, schema.FieldNames())
}

func TestPayloadValidatorRunsAfterFields(t *testing.T) {
	t.Parallel()

	def := fsm.MustDefine[ScheduleTask](taskType)

	_, err := def.Build(map[string]any{"start_day": 5, "end_day": 2})
	serr := fsmtest.RequireSchemaError(t, err, "end_day")
	assert.Equal(t, "must not be before start_day", serr.Fields["end_day"])

	_, err = def.Build(map[string]any{"start_day": 2, "end_day": 5})
	require.NoError(t, err)
}

func TestSchemaRoundTrip(t *testing.T) {
	t.Parallel()

	def := fsm.MustDefine[StartTask](taskType, fsm.FromStates(stateCreated))
	schema := fsm.GetTransitionSchema(def)

	assert.Equal(t, "start_task", schema.Transition)
	assert.Equal(t, []string{stateCreated}, schema.FromStates)

	priority, ok := schema.Field("priority")
	require.True(t, ok)
	assert.Equal(t, fsm.TypeInteger, priority.Type)
	assert.True(t, priority.Required)
	assert.Equal(t, "1 is the highest priority", priority.Description)
	require.NotNil(t, priority.Constraints.Min)
	require.NotNil(t, priority.Constraints.Max)
	assert.InDelta(t, 1, *priority.Constraints.Min, 0)
	assert.InDelta(t, 5, *priority.Constraints.Max, 0)

	assignee, ok := schema.Field("assignee")
	require.True(t, ok)
	assert.False(t, assignee.Required)
	assert.True(t, assignee.OmitEmpty)
	assert.Equal(t, fsm.TypeString, assignee.Type)

	good := map[string]any{"priority": 3, "assignee": "bo"}
	require.NoError(t, schema.Check(good))

	_, err := def.Build(good)
	require.NoError(t, err)

	bad := map[string]any{"priority": 6}
	require.Error(t, schema.Check(bad))

	_, err = def.Build(bad)
	fsmtest.RequireSchemaError(t, err, "priority")
}

type ReviewTask struct {
	Approved bool   `json:"approved" validate:"required"`
	Label    string `json:"label" validate:"omitempty,oneof=good bad"`
	Score    *int   `json:"score" validate:"omitempty,min=1"`
}

func (*ReviewTask) TargetState() string { return stateCompleted }

func (*ReviewTask) Execute(context.Context, *fsm.TransitionContext) (map[string]any, error) {
	return nil, nil
}

func TestSchemaCheckAgreesWithBuild(t *testing.T) {
	t.Parallel()

	start := fsm.MustDefine[StartTask](taskType)
	review := fsm.MustDefine[ReviewTask](taskType)

	tests := []struct {
		name    string
		def     *fsm.Definition
		payload map[string]any
		fields  []string
	}{
		{name: "empty omitempty string", def: start, payload: map[string]any{"priority": 2, "assignee": ""}},
		{name: "omitted optional field", def: start, payload: map[string]any{"priority": 2}},
		{name: "zero required integer", def: start, payload: map[string]any{"priority": 0}, fields: []string{"priority"}},
		{name: "missing required field", def: start, payload: map[string]any{}, fields: []string{"priority"}},
		{name: "short optional string", def: start, payload: map[string]any{"priority": 2, "assignee": "b"}, fields: []string{"assignee"}},
		{name: "false required boolean", def: review, payload: map[string]any{"approved": false}, fields: []string{"approved"}},
		{name: "empty optional enum", def: review, payload: map[string]any{"approved": true, "label": ""}},
		{name: "bad optional enum", def: review, payload: map[string]any{"approved": true, "label": "meh"}, fields: []string{"label"}},
		{name: "zero behind pointer", def: review, payload: map[string]any{"approved": true, "score": 0}, fields: []string{"score"}},
		{name: "null pointer", def: review, payload: map[string]any{"approved": true, "score": nil}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			_, buildErr := test.def.Build(test.payload)
			checkErr := fsm.GetTransitionSchema(test.def).Check(test.payload)

			if len(test.fields) == 0 {
				require.NoError(t, buildErr)
				require.NoError(t, checkErr)

				return
			}

			built := fsmtest.RequireSchemaError(t, buildErr, test.fields...)
			checked := fsmtest.RequireSchemaError(t, checkErr, test.fields...)

			if built.Fields[test.fields[0]] == "field required" {
				assert.Equal(t, "field required", checked.Fields[test.fields[0]])
			}
		})
	}
}

func TestSchemaCheckEnumAndTypes(t *testing.T) {
	t.Parallel()

	schema := fsm.GetTransitionSchema(fsm.MustDefine[SetStatus](taskType))

	status, ok := schema.Field("status")
	require.True(t, ok)
	assert.Equal(t, []string{stateCreated, stateInProgress, stateCompleted}, status.Constraints.Enum)

	require.NoError(t, schema.Check(map[string]any{"status": stateCompleted}))

	err := schema.Check(map[string]any{"status": "ARCHIVED"})
	var serr *fsm.SchemaError
	require.ErrorAs(t, err, &serr)
	assert.Contains(t, serr.Fields["status"], "must be one of")

	err = schema.Check(map[string]any{"status": 3})
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "expected string, got int", serr.Fields["status"])

	err = schema.Check(map[string]any{})
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "field required", serr.Fields["status"])
}

func TestDefineRejectsBadTypes(t *testing.T) {
	t.Parallel()

	_, err := fsm.Define[CreateTask]("")
	require.ErrorIs(t, err, fsm.ErrInvalidDefinition)

	_, err = fsm.Define[CreateTask](taskType, fsm.WithName(""))
	require.ErrorIs(t, err, fsm.ErrInvalidDefinition)
}

func TestToSnakeCase(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"StartTask":           "start_task",
		"TaskCreatedV2":       "task_created_v2",
		"HTTPImport":          "http_import",
		"BulkStatusUpdate":    "bulk_status_update",
		"annotationSubmitted": "annotation_submitted",
		"A":                   "a",
	}

	for in, want := range cases {
		assert.Equal(t, want, fsm.ToSnakeCase(in), in)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	t.Parallel()

	verr := fsm.NewValidationError("nope", "current_state", "X", "valid_states", []string{"A"})
	assert.Equal(t, "transition validation failed: nope", verr.Error())
	assert.Equal(t, "X", verr.Context["current_state"])
	assert.False(t, fsm.IsRetryable(verr))

	smErr := &fsm.StateManagerError{Op: "transition_state", Err: fsmtest.ErrInjected}
	assert.ErrorIs(t, smErr, fsm.ErrStateManager)
	assert.ErrorIs(t, smErr, fsmtest.ErrInjected)
	assert.True(t, fsm.IsRetryable(smErr))
	assert.Contains(t, smErr.Error(), "injected failure")

	assert.False(t, fsm.IsRetryable(nil))
	assert.True(t, fsm.IsRetryable(errors.New("connection reset"))) //nolint:err113
}
