package labeling

import (
	"context"
	"fmt"
	"time"

	"github.com/amp-labs/amp-fsm/fsm"
	"github.com/amp-labs/amp-fsm/logger"
)

// TaskCreated is the first record of every task.
type TaskCreated struct {
	Source string         `json:"source" validate:"omitempty,oneof=manual import api" description:"Where the task came from"`
	Data   map[string]any `json:"data"   description:"Raw task data as imported"`
}

func (*TaskCreated) TargetState() string { return TaskStateCreated }

func (t *TaskCreated) Execute(_ context.Context, _ *fsm.TransitionContext) (map[string]any, error) {
	source := t.Source
	if source == "" {
		source = "manual"
	}

	return map[string]any{"source": source, "data_keys": len(t.Data)}, nil
}

// StartTask assigns the task to an annotator.
type StartTask struct {
	AssigneeID string `json:"assignee_id" validate:"required"           description:"User who will annotate the task"`
	Priority   int    `json:"priority"    validate:"omitempty,min=1,max=5" description:"1 is the most urgent"`
}

func (*StartTask) TargetState() string { return TaskStateInProgress }

func (t *StartTask) Execute(_ context.Context, tc *fsm.TransitionContext) (map[string]any, error) {
	out := map[string]any{"assignee_id": t.AssigneeID}
	if t.Priority > 0 {
		out["priority"] = t.Priority
	}

	if tc.Actor != nil && tc.ActorID() != t.AssigneeID {
		out["assigned_by"] = tc.ActorID()
	}

	return out, nil
}

// CompleteTask closes a task once it has annotations.
type CompleteTask struct {
	AnnotationCount int `json:"annotation_count" validate:"min=0" description:"Annotations recorded for the task"`
}

func (*CompleteTask) TargetState() string { return TaskStateCompleted }

func (t *CompleteTask) Validate(_ context.Context, tc *fsm.TransitionContext) (bool, error) {
	if t.AnnotationCount == 0 {
		return false, fsm.NewValidationError("task has no annotations",
			"task_id", tc.Entity.EntityID(),
			"current_state", tc.CurrentState)
	}

	return true, nil
}

func (t *CompleteTask) Execute(_ context.Context, _ *fsm.TransitionContext) (map[string]any, error) {
	return map[string]any{"annotation_count": t.AnnotationCount}, nil
}

// ReopenTask sends a completed task back to annotation.
type ReopenTask struct {
	Details string `json:"reason" validate:"required,min=3" description:"Why the task is reopened"`
}

func (*ReopenTask) TargetState() string { return TaskStateInProgress }

func (t *ReopenTask) Reason(*fsm.TransitionContext) string {
	return "reopened: " + t.Details
}

func (*ReopenTask) Execute(_ context.Context, tc *fsm.TransitionContext) (map[string]any, error) {
	return map[string]any{"reopened_from": tc.CurrentState}, nil
}

// BulkStatusUpdate forces a task into any state. Its target is a payload
// field, so it is left out of state flows.
type BulkStatusUpdate struct {
	Status string `json:"status" validate:"required,oneof=CREATED IN_PROGRESS COMPLETED" description:"New task state"`
}

func (t *BulkStatusUpdate) TargetState() string { return t.Status }

func (t *BulkStatusUpdate) Execute(_ context.Context, tc *fsm.TransitionContext) (map[string]any, error) {
	return map[string]any{"bulk": true, "from": tc.CurrentState, "to": t.Status}, nil
}

// AnnotationSubmitted is the original submission payload.
type AnnotationSubmitted struct {
	Result          []map[string]any `json:"result"            validate:"required,min=1" description:"Labeled regions"`
	LeadTimeSeconds float64          `json:"lead_time_seconds" validate:"gte=0"         description:"Time spent annotating"`
}

func (*AnnotationSubmitted) TargetState() string { return AnnotationStateSubmitted }

func (a *AnnotationSubmitted) Execute(_ context.Context, _ *fsm.TransitionContext) (map[string]any, error) {
	return a.output(), nil
}

func (a *AnnotationSubmitted) output() map[string]any {
	return map[string]any{
		"regions":           len(a.Result),
		"lead_time_seconds": a.LeadTimeSeconds,
	}
}

// AnnotationSubmittedV2 extends the submission with ground truth and
// annotator confidence. Clients still sending the original payload keep
// working against annotation_submitted.
type AnnotationSubmittedV2 struct {
	AnnotationSubmitted

	GroundTruth bool    `json:"ground_truth" description:"Marks the annotation as reference data"`
	Confidence  float64 `json:"confidence"   validate:"omitempty,gte=0,lte=1" description:"Annotator confidence"`
}

func (a *AnnotationSubmittedV2) Execute(_ context.Context, _ *fsm.TransitionContext) (map[string]any, error) {
	out := a.output()
	out["ground_truth"] = a.GroundTruth

	if a.Confidence > 0 {
		out["confidence"] = a.Confidence
	}

	return out, nil
}

// AnnotationReviewed records a reviewer's verdict.
type AnnotationReviewed struct {
	Accepted bool   `json:"accepted" description:"Whether the annotation is accepted"`
	Comment  string `json:"comment"  validate:"omitempty,max=500" description:"Reviewer comment"`
}

func (a *AnnotationReviewed) TargetState() string {
	if a.Accepted {
		return AnnotationStateAccepted
	}

	return AnnotationStateRejected
}

func (a *AnnotationReviewed) ValidatePayload() error {
	if !a.Accepted && a.Comment == "" {
		return &fsm.SchemaError{Fields: map[string]string{"comment": "required when the annotation is rejected"}}
	}

	return nil
}

func (*AnnotationReviewed) Validate(_ context.Context, tc *fsm.TransitionContext) (bool, error) {
	if tc.Actor == nil {
		return false, fsm.NewValidationError("reviews need a reviewer", "annotation_id", tc.Entity.EntityID())
	}

	return true, nil
}

func (a *AnnotationReviewed) Execute(_ context.Context, tc *fsm.TransitionContext) (map[string]any, error) {
	return map[string]any{
		"reviewer_id": tc.ActorID(),
		"accepted":    a.Accepted,
		"comment":     a.Comment,
		"reviewed_at": tc.Timestamp.Format(time.RFC3339),
	}, nil
}

func (a *AnnotationReviewed) PostHook(ctx context.Context, _ *fsm.TransitionContext, rec *fsm.StateRecord) error {
	logger.Get(ctx).Info("annotation reviewed",
		"annotation_id", rec.EntityID,
		"task_id", rec.Denormalized[FieldTaskID],
		"accepted", a.Accepted)

	return nil
}

// Definitions returns the labeling transitions.
func Definitions() ([]*fsm.Definition, error) {
	builders := []func() (*fsm.Definition, error){
		func() (*fsm.Definition, error) {
			return fsm.Define[TaskCreated](EntityTask,
				fsm.InitialOnly(),
				fsm.WithDescription("Create a task"))
		},
		func() (*fsm.Definition, error) {
			return fsm.Define[StartTask](EntityTask,
				fsm.FromStates(TaskStateCreated),
				fsm.WithDescription("Assign the task and start annotating"))
		},
		func() (*fsm.Definition, error) {
			return fsm.Define[CompleteTask](EntityTask,
				fsm.FromStates(TaskStateInProgress),
				fsm.WithDescription("Mark the task as done"))
		},
		func() (*fsm.Definition, error) {
			return fsm.Define[ReopenTask](EntityTask,
				fsm.FromStates(TaskStateCompleted),
				fsm.WithDescription("Send the task back to annotation"))
		},
		func() (*fsm.Definition, error) {
			return fsm.Define[BulkStatusUpdate](EntityTask,
				fsm.AllowInitial(),
				fsm.WithDescription("Set the task state directly"))
		},
		func() (*fsm.Definition, error) {
			return fsm.Define[AnnotationSubmitted](EntityAnnotation,
				fsm.AllowInitial(),
				fsm.FromStates(AnnotationStateRejected),
				fsm.WithDescription("Submit an annotation"))
		},
		func() (*fsm.Definition, error) {
			return fsm.Define[AnnotationSubmittedV2](EntityAnnotation,
				fsm.AllowInitial(),
				fsm.FromStates(AnnotationStateRejected),
				fsm.WithDescription("Submit an annotation with ground truth and confidence"))
		},
		func() (*fsm.Definition, error) {
			return fsm.Define[AnnotationReviewed](EntityAnnotation,
				fsm.FromStates(AnnotationStateSubmitted),
				fsm.WithDescription("Accept or reject an annotation"))
		},
	}

	defs := make([]*fsm.Definition, 0, len(builders))

	for _, build := range builders {
		def, err := build()
		if err != nil {
			return nil, fmt.Errorf("labeling: %w", err)
		}

		defs = append(defs, def)
	}

	return defs, nil
}

// RegisterTransitions adds the labeling transitions to registry.
func RegisterTransitions(ctx context.Context, registry *fsm.Registry) error {
	defs, err := Definitions()
	if err != nil {
		return err
	}

	for _, def := range defs {
		registry.Register(ctx, def)
	}

	return nil
}
