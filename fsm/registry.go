package fsm

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/amp-labs/amp-fsm/logger"
)

// Registry maps (entity type, transition name) to transition definitions.
// The last registration for a key wins.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]map[string]*Definition
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]map[string]*Definition)}
}

var defaultRegistry = NewRegistry()

// DefaultRegistry is the process-wide registry used by feature packages.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// Register adds def, replacing any definition with the same key.
func (r *Registry) Register(ctx context.Context, def *Definition) {
	r.mu.Lock()

	byName, ok := r.defs[def.EntityType]
	if !ok {
		byName = make(map[string]*Definition)
		r.defs[def.EntityType] = byName
	}

	previous, overwritten := byName[def.Name]
	byName[def.Name] = def

	r.mu.Unlock()

	if overwritten {
		logger.Get(ctx).Warn("overwriting registered transition",
			"entity_type", def.EntityType,
			"transition", def.Name,
			"previous_type", previous.TypeName(),
			"new_type", def.TypeName())
	}
}

// Get looks up a definition.
func (r *Registry) Get(entityType, name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[entityType][name]

	return def, ok
}

// ListForEntity returns a copy of the definitions of an entity type. The map
// is empty, never nil, for unknown types.
func (r *Registry) ListForEntity(entityType string) map[string]*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*Definition, len(r.defs[entityType]))
	maps.Copy(out, r.defs[entityType])

	return out
}

// EntityTypes lists the entity types that have transitions, sorted.
func (r *Registry) EntityTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Sorted(maps.Keys(r.defs))
}

// Clear removes every registration.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	clear(r.defs)
}

// RegisterStateTransition defines transition type T and registers it in the
// default registry.
func RegisterStateTransition[T any, PT interface {
	*T
	Transition
}](entityType string, opts ...DefinitionOption) (*Definition, error) {
	def, err := Define[T, PT](entityType, opts...)
	if err != nil {
		return nil, err
	}

	defaultRegistry.Register(context.Background(), def)

	return def, nil
}
