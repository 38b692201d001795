package fsm

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"
)

// StateModel persists the state records of one entity type.
type StateModel interface {
	// Create appends a record. Implementations never update existing records.
	Create(ctx context.Context, rec *StateRecord) error
	// GetCurrentState returns the newest record, or nil if there is none.
	GetCurrentState(ctx context.Context, entity Entity) (*StateRecord, error)
	// GetCurrentStateValue returns the newest state label, or "".
	GetCurrentStateValue(ctx context.Context, entity Entity) (string, error)
	// GetDenormalizedFields returns the entity fields copied onto each record.
	GetDenormalizedFields(ctx context.Context, entity Entity) (map[string]any, error)
	// GetStateHistory returns up to limit records, newest first.
	GetStateHistory(ctx context.Context, entity Entity, limit int) ([]*StateRecord, error)
	// GetStatesInRange returns records created in [start, end], oldest first.
	GetStatesInRange(ctx context.Context, entity Entity, start, end time.Time) ([]*StateRecord, error)
}

// Denormalizer extracts the per-entity-type fields copied onto each record.
type Denormalizer func(ctx context.Context, entity Entity) (map[string]any, error)

// StateModelRegistry maps entity types to their state models.
type StateModelRegistry struct {
	mu     sync.RWMutex
	models map[string]StateModel
}

// NewStateModelRegistry returns an empty registry.
func NewStateModelRegistry() *StateModelRegistry {
	return &StateModelRegistry{models: make(map[string]StateModel)}
}

var defaultStateModels = NewStateModelRegistry()

// DefaultStateModels is the process-wide state model registry.
func DefaultStateModels() *StateModelRegistry {
	return defaultStateModels
}

// Register sets the model of an entity type, replacing any previous one.
func (r *StateModelRegistry) Register(entityType string, model StateModel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.models[entityType] = model
}

// Get returns the model of an entity type.
func (r *StateModelRegistry) Get(entityType string) (StateModel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.models[entityType]

	return m, ok
}

// EntityTypes lists the registered entity types, sorted.
func (r *StateModelRegistry) EntityTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Sorted(maps.Keys(r.models))
}

// Clear removes every registration.
func (r *StateModelRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	clear(r.models)
}

// RegisterStateModel registers a model in the default registry.
func RegisterStateModel(entityType string, model StateModel) {
	defaultStateModels.Register(entityType, model)
}
