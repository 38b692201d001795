// Package labeling defines the workflow of the labeling platform on top of
// the fsm engine: tasks move from creation through annotation to completion,
// and every annotation is submitted and then reviewed.
package labeling

import (
	"context"
	"errors"
	"fmt"

	"github.com/amp-labs/amp-fsm/fsm"
)

// Entity types.
const (
	EntityTask       = "task"
	EntityAnnotation = "annotation"
)

// Task states.
const (
	TaskStateCreated    = "CREATED"
	TaskStateInProgress = "IN_PROGRESS"
	TaskStateCompleted  = "COMPLETED"
)

// Annotation states.
const (
	AnnotationStateSubmitted = "SUBMITTED"
	AnnotationStateAccepted  = "ACCEPTED"
	AnnotationStateRejected  = "REJECTED"
)

// Denormalized field names copied onto state records.
const (
	FieldProjectID      = "project_id"
	FieldTaskID         = "task_id"
	FieldOrganizationID = "organization_id"
)

var ErrUnknownEntityType = errors.New("unknown labeling entity type")

// Task is a unit of labeling work inside a project.
type Task struct {
	ID        string
	ProjectID string
	Org       string
}

func (t Task) EntityType() string     { return EntityTask }
func (t Task) EntityID() string       { return t.ID }
func (t Task) OrganizationID() string { return t.Org }

// Annotation is one annotator's result for a task. It carries no organization
// of its own; records take it from the denormalized organization_id.
type Annotation struct {
	ID        string
	TaskID    string
	ProjectID string

	// Org is the owning organization, copied from the task.
	Org string
}

func (a Annotation) EntityType() string { return EntityAnnotation }
func (a Annotation) EntityID() string   { return a.ID }

// User is a platform account acting on tasks.
type User struct {
	ID        string
	ActiveOrg string
}

func (u User) ActorID() string              { return u.ID }
func (u User) ActiveOrganizationID() string { return u.ActiveOrg }

// NewEntity builds an entity reference from its type and ids. For
// annotations, parent is the task id.
func NewEntity(entityType, id, parent, projectID, org string) (fsm.Entity, error) {
	switch entityType {
	case EntityTask:
		return Task{ID: id, ProjectID: projectID, Org: org}, nil
	case EntityAnnotation:
		return Annotation{ID: id, TaskID: parent, ProjectID: projectID, Org: org}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntityType, entityType)
	}
}

// Denormalize extracts the fields every record of entity carries.
func Denormalize(_ context.Context, entity fsm.Entity) (map[string]any, error) {
	switch e := entity.(type) {
	case Task:
		return taskFields(&e), nil
	case *Task:
		return taskFields(e), nil
	case Annotation:
		return annotationFields(&e), nil
	case *Annotation:
		return annotationFields(e), nil
	default:
		return nil, fmt.Errorf("%w: cannot denormalize %T", ErrUnknownEntityType, entity)
	}
}

func taskFields(t *Task) map[string]any {
	return map[string]any{FieldProjectID: t.ProjectID}
}

func annotationFields(a *Annotation) map[string]any {
	fields := map[string]any{
		FieldProjectID: a.ProjectID,
		FieldTaskID:    a.TaskID,
	}

	if a.Org != "" {
		fields[FieldOrganizationID] = a.Org
	}

	return fields
}
