// Package memstore is a process-local fsm.StateModel. It backs tests, the
// CLI demo and single-process deployments.
package memstore

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/amp-labs/amp-fsm/fsm"
)

// Store keeps the state records of one entity type in memory.
type Store struct {
	entityType  string
	denormalize fsm.Denormalizer

	mu      sync.RWMutex
	records map[string][]*fsm.StateRecord
}

var _ fsm.StateModel = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithDenormalizer sets the function extracting denormalized fields.
func WithDenormalizer(fn fsm.Denormalizer) Option {
	return func(s *Store) { s.denormalize = fn }
}

// New returns an empty Store for entityType.
func New(entityType string, opts ...Option) *Store {
	s := &Store{
		entityType: entityType,
		records:    make(map[string][]*fsm.StateRecord),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// EntityType is the type whose records the store holds.
func (s *Store) EntityType() string {
	return s.entityType
}

// Create appends rec, keeping each entity's records ordered by ID.
func (s *Store) Create(_ context.Context, rec *fsm.StateRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.records[rec.EntityID]
	idx, _ := slices.BinarySearchFunc(list, rec, fsm.CompareRecords)
	s.records[rec.EntityID] = slices.Insert(list, idx, rec.Clone())

	return nil
}

func (s *Store) GetCurrentState(_ context.Context, entity fsm.Entity) (*fsm.StateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.records[entity.EntityID()]
	if len(list) == 0 {
		return nil, nil //nolint:nilnil
	}

	return list[len(list)-1].Clone(), nil
}

func (s *Store) GetCurrentStateValue(ctx context.Context, entity fsm.Entity) (string, error) {
	rec, err := s.GetCurrentState(ctx, entity)
	if err != nil || rec == nil {
		return "", err
	}

	return rec.State, nil
}

func (s *Store) GetDenormalizedFields(ctx context.Context, entity fsm.Entity) (map[string]any, error) {
	if s.denormalize == nil {
		return map[string]any{}, nil
	}

	return s.denormalize(ctx, entity)
}

func (s *Store) GetStateHistory(_ context.Context, entity fsm.Entity, limit int) ([]*fsm.StateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.records[entity.EntityID()]
	out := make([]*fsm.StateRecord, 0, min(len(list), max(limit, 0)))

	for i := len(list) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, list[i].Clone())
	}

	return out, nil
}

func (s *Store) GetStatesInRange(
	_ context.Context,
	entity fsm.Entity,
	start, end time.Time,
) ([]*fsm.StateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*fsm.StateRecord

	for _, rec := range s.records[entity.EntityID()] {
		if rec.CreatedAt.Before(start) || rec.CreatedAt.After(end) {
			continue
		}

		out = append(out, rec.Clone())
	}

	return out, nil
}

// Records returns every record of entity, oldest first.
func (s *Store) Records(entity fsm.Entity) []*fsm.StateRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.records[entity.EntityID()]
	out := make([]*fsm.StateRecord, 0, len(list))

	for _, rec := range list {
		out = append(out, rec.Clone())
	}

	return out
}

// Len counts the records of all entities.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, list := range s.records {
		n += len(list)
	}

	return n
}
