package fsm

import (
	"bytes"
	"maps"
	"time"

	"github.com/google/uuid"
)

// Entity is anything whose workflow state is tracked by the engine.
type Entity interface {
	EntityType() string
	EntityID() string
}

// OrganizationScoped is implemented by entities that know their tenant.
type OrganizationScoped interface {
	OrganizationID() string
}

// Actor is the user triggering a transition. A nil Actor means the
// transition was triggered by the system.
type Actor interface {
	ActorID() string
	ActiveOrganizationID() string
}

// StateRecord is one immutable entry of an entity's state history.
type StateRecord struct {
	ID             uuid.UUID      `json:"id"`
	EntityType     string         `json:"entity_type"`
	EntityID       string         `json:"entity_id"`
	State          string         `json:"state"`
	PreviousState  string         `json:"previous_state,omitempty"`
	TransitionName string         `json:"transition_name"`
	TriggeredBy    string         `json:"triggered_by,omitempty"`
	ContextData    map[string]any `json:"context_data,omitempty"`
	Reason         string         `json:"reason,omitempty"`
	OrganizationID string         `json:"organization_id,omitempty"`
	Denormalized   map[string]any `json:"denormalized,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// HasPreviousState is false for the record written by an initial transition.
func (r *StateRecord) HasPreviousState() bool {
	return r.PreviousState != ""
}

// Clone returns a copy that shares no maps with r.
func (r *StateRecord) Clone() *StateRecord {
	if r == nil {
		return nil
	}

	c := *r
	c.ContextData = maps.Clone(r.ContextData)
	c.Denormalized = maps.Clone(r.Denormalized)

	return &c
}

// NewRecordID returns a UUIDv7: unique and sortable by creation time.
func NewRecordID() (uuid.UUID, error) {
	return uuid.NewV7()
}

// RecordTime extracts the creation time embedded in a UUIDv7.
func RecordTime(id uuid.UUID) time.Time {
	ms := int64(id[0])<<40 | int64(id[1])<<32 | int64(id[2])<<24 |
		int64(id[3])<<16 | int64(id[4])<<8 | int64(id[5])

	return time.UnixMilli(ms).UTC()
}

// RecordIDBounds returns the smallest and largest record IDs whose embedded
// time falls within [start, end] at millisecond precision. Times before the
// Unix epoch are clamped to it. When no millisecond lies in the range, lo is
// greater than hi and a range query matches nothing.
func RecordIDBounds(start, end time.Time) (lo, hi uuid.UUID) {
	startMs := max(start.UnixMilli(), 0)
	if start.After(time.UnixMilli(startMs)) {
		startMs++
	}

	endMs := end.UnixMilli()
	if endMs < startMs {
		fill(&lo, 0)

		return lo, hi
	}

	putMillis(&lo, startMs)
	putMillis(&hi, endMs)
	fill(&hi, 6) //nolint:mnd

	return lo, hi
}

func fill(id *uuid.UUID, from int) {
	for i := from; i < len(id); i++ {
		id[i] = 0xff
	}
}

func putMillis(id *uuid.UUID, ms int64) {
	for i := range 6 {
		id[i] = byte(ms >> (40 - 8*i)) //nolint:gosec
	}
}

// CompareRecords orders records oldest first, by ID.
func CompareRecords(a, b *StateRecord) int {
	return bytes.Compare(a.ID[:], b.ID[:])
}

// EntityKey identifies an entity across types.
type EntityKey struct {
	Type string
	ID   string
}

// KeyOf returns the EntityKey of e.
func KeyOf(e Entity) EntityKey {
	return EntityKey{Type: e.EntityType(), ID: e.EntityID()}
}

func (k EntityKey) String() string {
	return k.Type + ":" + k.ID
}

// actorID returns "" for system-triggered transitions.
func actorID(actor Actor) string {
	if actor == nil {
		return ""
	}

	return actor.ActorID()
}
