package gormstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/amp-labs/amp-fsm/fsm"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Record is the row layout shared by every state table.
type Record struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey"`
	EntityID       string         `gorm:"size:64;not null"`
	State          string         `gorm:"size:64;not null"`
	PreviousState  string         `gorm:"size:64"`
	TransitionName string         `gorm:"size:128;not null"`
	TriggeredBy    string         `gorm:"size:64"`
	ContextData    datatypes.JSON `gorm:"not null"`
	Reason         string
	OrganizationID string         `gorm:"size:64"`
	Denormalized   datatypes.JSON `gorm:"not null"`
	CreatedAt      time.Time      `gorm:"not null"`
}

func toRow(rec *fsm.StateRecord) (*Record, error) {
	contextData, err := marshalMap(rec.ContextData)
	if err != nil {
		return nil, fmt.Errorf("encoding context data: %w", err)
	}

	denormalized, err := marshalMap(rec.Denormalized)
	if err != nil {
		return nil, fmt.Errorf("encoding denormalized fields: %w", err)
	}

	return &Record{
		ID:             rec.ID,
		EntityID:       rec.EntityID,
		State:          rec.State,
		PreviousState:  rec.PreviousState,
		TransitionName: rec.TransitionName,
		TriggeredBy:    rec.TriggeredBy,
		ContextData:    contextData,
		Reason:         rec.Reason,
		OrganizationID: rec.OrganizationID,
		Denormalized:   denormalized,
		CreatedAt:      rec.CreatedAt.UTC(),
	}, nil
}

func (r *Record) toState(entityType string) (*fsm.StateRecord, error) {
	rec := &fsm.StateRecord{
		ID:             r.ID,
		EntityType:     entityType,
		EntityID:       r.EntityID,
		State:          r.State,
		PreviousState:  r.PreviousState,
		TransitionName: r.TransitionName,
		TriggeredBy:    r.TriggeredBy,
		Reason:         r.Reason,
		OrganizationID: r.OrganizationID,
		CreatedAt:      r.CreatedAt.UTC(),
	}

	if err := unmarshalMap(r.ContextData, &rec.ContextData); err != nil {
		return nil, fmt.Errorf("decoding context data of %s: %w", r.ID, err)
	}

	if err := unmarshalMap(r.Denormalized, &rec.Denormalized); err != nil {
		return nil, fmt.Errorf("decoding denormalized fields of %s: %w", r.ID, err)
	}

	return rec, nil
}

func marshalMap(m map[string]any) (datatypes.JSON, error) {
	if m == nil {
		return datatypes.JSON("{}"), nil
	}

	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}

	return datatypes.JSON(b), nil
}

func unmarshalMap(raw datatypes.JSON, out *map[string]any) error {
	if len(raw) == 0 {
		*out = map[string]any{}

		return nil
	}

	return json.Unmarshal(raw, out)
}
