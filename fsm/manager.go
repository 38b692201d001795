package fsm

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/amp-labs/amp-fsm/logger"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultHistoryLimit bounds GetStateHistory when no limit is given.
const DefaultHistoryLimit = 100

// DefaultStateManagerName is the factory name of DefaultStateManager.
const DefaultStateManagerName = "default"

// StateManager reads and writes entity state. Implementations may embed
// *DefaultStateManager to override selected behavior.
type StateManager interface {
	GetCurrentStateValue(ctx context.Context, entity Entity) (string, error)
	GetCurrentStateObject(ctx context.Context, entity Entity) (*StateRecord, error)
	TransitionState(ctx context.Context, entity Entity, change StateChange) (*StateRecord, error)
	ExecuteTransition(
		ctx context.Context,
		entity Entity,
		name string,
		data map[string]any,
		actor Actor,
		opts ...ContextOption,
	) (*StateRecord, error)
	GetStateHistory(ctx context.Context, entity Entity, limit int) ([]*StateRecord, error)
	GetStatesInTimeRange(ctx context.Context, entity Entity, start, end time.Time) ([]*StateRecord, error)
	InvalidateCache(ctx context.Context, entity Entity) error
	WarmCache(ctx context.Context, entities []Entity) error
}

// StateChange is the data persisted by TransitionState.
type StateChange struct {
	NewState       string
	TransitionName string
	Actor          Actor
	ContextData    map[string]any
	Reason         string
	// OrganizationID, when set, takes precedence over the resolved organization.
	OrganizationID string
}

// DefaultStateManager is the standard StateManager: cached state reads and
// append-only writes inside one atomic unit.
type DefaultStateManager struct {
	models       *StateModelRegistry
	registry     *Registry
	cache        Cache
	txn          Transactor
	ttl          time.Duration
	historyLimit int
	now          func() time.Time
}

// ManagerOption configures a DefaultStateManager.
type ManagerOption func(*DefaultStateManager)

// WithStateModels sets the state model registry. Defaults to DefaultStateModels.
func WithStateModels(models *StateModelRegistry) ManagerOption {
	return func(m *DefaultStateManager) { m.models = models }
}

// WithRegistry sets the transition registry. Defaults to DefaultRegistry.
func WithRegistry(registry *Registry) ManagerOption {
	return func(m *DefaultStateManager) { m.registry = registry }
}

// WithCache sets the state cache. Defaults to a MemoryCache.
func WithCache(cache Cache) ManagerOption {
	return func(m *DefaultStateManager) { m.cache = cache }
}

// WithTransactor sets the atomic unit provider. Defaults to LocalTransactor.
func WithTransactor(txn Transactor) ManagerOption {
	return func(m *DefaultStateManager) { m.txn = txn }
}

// WithCacheTTL sets the TTL of cached state labels.
func WithCacheTTL(ttl time.Duration) ManagerOption {
	return func(m *DefaultStateManager) { m.ttl = ttl }
}

// WithHistoryLimit sets the default GetStateHistory limit.
func WithHistoryLimit(limit int) ManagerOption {
	return func(m *DefaultStateManager) { m.historyLimit = limit }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *DefaultStateManager) { m.now = now }
}

// NewDefaultStateManager returns a manager wired to the process-wide registries
// unless options say otherwise.
func NewDefaultStateManager(opts ...ManagerOption) *DefaultStateManager {
	m := &DefaultStateManager{
		models:       defaultStateModels,
		registry:     defaultRegistry,
		txn:          LocalTransactor{},
		ttl:          DefaultCacheTTL,
		historyLimit: DefaultHistoryLimit,
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.cache == nil {
		m.cache = NewMemoryCache(m.now)
	}

	if m.historyLimit <= 0 {
		m.historyLimit = DefaultHistoryLimit
	}

	return m
}

// Registry returns the transition registry used by ExecuteTransition.
func (m *DefaultStateManager) Registry() *Registry {
	return m.registry
}

// Cache returns the state cache.
func (m *DefaultStateManager) Cache() Cache {
	return m.cache
}

func (m *DefaultStateManager) model(op string, entity Entity) (StateModel, error) {
	model, ok := m.models.Get(entity.EntityType())
	if !ok {
		return nil, noStateModel(op, entity.EntityType())
	}

	return model, nil
}

// GetCurrentStateValue returns the current state label, or "" if the entity
// has none. Labels are served from the cache when present.
func (m *DefaultStateManager) GetCurrentStateValue(ctx context.Context, entity Entity) (string, error) {
	model, err := m.model("get_current_state_value", entity)
	if err != nil {
		return "", err
	}

	log := logger.Get(logger.WithEntity(ctx, entity.EntityType(), entity.EntityID()))
	key := CacheKey(entity.EntityType(), entity.EntityID())

	value, hit, err := m.cache.Get(ctx, key)

	switch {
	case err != nil:
		cacheLookupsTotal.WithLabelValues(entity.EntityType(), "error").Inc()
		log.Warn("state cache lookup failed", "key", key, "error", err)
	case hit:
		cacheLookupsTotal.WithLabelValues(entity.EntityType(), "hit").Inc()
		log.Debug("state cache hit", "key", key, "state", value)

		return value, nil
	default:
		cacheLookupsTotal.WithLabelValues(entity.EntityType(), "miss").Inc()
		log.Debug("state cache miss", "key", key)
	}

	value, err = model.GetCurrentStateValue(ctx, entity)
	if err != nil {
		return "", &StateManagerError{Op: "get_current_state_value", Err: err}
	}

	if value != "" {
		if err := m.cache.Set(ctx, key, value, m.ttl); err != nil {
			log.Warn("state cache write failed", "key", key, "error", err)
		}
	}

	return value, nil
}

// GetCurrentStateObject returns the newest record, or nil. It is never cached.
func (m *DefaultStateManager) GetCurrentStateObject(ctx context.Context, entity Entity) (*StateRecord, error) {
	model, err := m.model("get_current_state_object", entity)
	if err != nil {
		return nil, err
	}

	rec, err := model.GetCurrentState(ctx, entity)
	if err != nil {
		return nil, &StateManagerError{Op: "get_current_state_object", Err: err}
	}

	return rec, nil
}

// TransitionState appends a record for entity inside one atomic unit. The
// cache is updated once the unit commits and cleared if anything fails.
func (m *DefaultStateManager) TransitionState(
	ctx context.Context,
	entity Entity,
	change StateChange,
) (rec *StateRecord, err error) {
	ctx, span := startSpan(ctx, "fsm.transition_state", entity,
		attribute.String("fsm.transition", change.TransitionName),
		attribute.String("fsm.new_state", change.NewState))
	defer func() { endSpan(span, err) }()

	key := CacheKey(entity.EntityType(), entity.EntityID())

	err = m.txn.Atomic(ctx, func(ctx context.Context) error {
		model, err := m.model("transition_state", entity)
		if err != nil {
			return err
		}

		denormalized, err := model.GetDenormalizedFields(ctx, entity)
		if err != nil {
			return fmt.Errorf("resolving denormalized fields: %w", err)
		}

		previous, err := model.GetCurrentStateValue(ctx, entity)
		if err != nil {
			return fmt.Errorf("reading previous state: %w", err)
		}

		id, err := NewRecordID()
		if err != nil {
			return fmt.Errorf("generating record id: %w", err)
		}

		created := &StateRecord{
			ID:             id,
			EntityType:     entity.EntityType(),
			EntityID:       entity.EntityID(),
			State:          change.NewState,
			PreviousState:  previous,
			TransitionName: change.TransitionName,
			TriggeredBy:    actorID(change.Actor),
			ContextData:    maps.Clone(change.ContextData),
			Reason:         change.Reason,
			OrganizationID: resolveOrganization(change.OrganizationID, entity, denormalized, change.Actor),
			Denormalized:   denormalized,
			CreatedAt:      RecordTime(id),
		}

		if created.ContextData == nil {
			created.ContextData = make(map[string]any)
		}

		if err := model.Create(ctx, created); err != nil {
			return fmt.Errorf("creating state record: %w", err)
		}

		OnCommit(ctx, func(ctx context.Context) {
			if err := m.cache.Set(ctx, key, created.State, m.ttl); err != nil {
				logger.Get(ctx).Warn("state cache write failed", "key", key, "error", err)
			}
		})

		rec = created

		return nil
	})
	if err != nil {
		if delErr := m.cache.Delete(ctx, key); delErr != nil {
			logger.Get(ctx).Error("state cache invalidation failed", "key", key, "error", delErr)
		}

		var smErr *StateManagerError
		if errors.As(err, &smErr) {
			return nil, err
		}

		return nil, &StateManagerError{Op: "transition_state", Err: err}
	}

	stateRecordsTotal.WithLabelValues(rec.EntityType, sanitizeLabel(rec.State)).Inc()

	return rec, nil
}

// resolveOrganization picks the tenant of a new record: explicit value, the
// entity's own organization, the denormalized organization_id, then the
// actor's active organization.
func resolveOrganization(explicit string, entity Entity, denormalized map[string]any, actor Actor) string {
	if explicit != "" {
		return explicit
	}

	if scoped, ok := entity.(OrganizationScoped); ok && scoped.OrganizationID() != "" {
		return scoped.OrganizationID()
	}

	if org, ok := denormalized["organization_id"]; ok && org != nil {
		if s := fmt.Sprint(org); s != "" {
			return s
		}
	}

	if actor != nil {
		return actor.ActiveOrganizationID()
	}

	return ""
}

// ExecuteTransition builds, validates and applies a registered transition.
func (m *DefaultStateManager) ExecuteTransition(
	ctx context.Context,
	entity Entity,
	name string,
	data map[string]any,
	actor Actor,
	opts ...ContextOption,
) (*StateRecord, error) {
	return ExecuteTransitionWithStateManager(ctx, m.registry, m, entity, name, data, actor, opts...)
}

// GetStateHistory returns up to limit records, newest first. A limit of zero
// or less uses the configured default.
func (m *DefaultStateManager) GetStateHistory(ctx context.Context, entity Entity, limit int) ([]*StateRecord, error) {
	model, err := m.model("get_state_history", entity)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = m.historyLimit
	}

	records, err := model.GetStateHistory(ctx, entity, limit)
	if err != nil {
		return nil, &StateManagerError{Op: "get_state_history", Err: err}
	}

	return records, nil
}

// GetStatesInTimeRange returns the records created between start and end. A
// zero end means now.
func (m *DefaultStateManager) GetStatesInTimeRange(
	ctx context.Context,
	entity Entity,
	start, end time.Time,
) ([]*StateRecord, error) {
	model, err := m.model("get_states_in_time_range", entity)
	if err != nil {
		return nil, err
	}

	if end.IsZero() {
		end = m.now()
	}

	records, err := model.GetStatesInRange(ctx, entity, start, end)
	if err != nil {
		return nil, &StateManagerError{Op: "get_states_in_time_range", Err: err}
	}

	return records, nil
}

// InvalidateCache drops the cached state of entity.
func (m *DefaultStateManager) InvalidateCache(ctx context.Context, entity Entity) error {
	key := CacheKey(entity.EntityType(), entity.EntityID())
	if err := m.cache.Delete(ctx, key); err != nil {
		return &StateManagerError{Op: "invalidate_cache", Err: err}
	}

	return nil
}

// WarmCache loads the current state of entities into the cache in one write.
// Entities without state are skipped.
func (m *DefaultStateManager) WarmCache(ctx context.Context, entities []Entity) error {
	values := make(map[string]string, len(entities))

	for _, entity := range entities {
		model, err := m.model("warm_cache", entity)
		if err != nil {
			return err
		}

		value, err := model.GetCurrentStateValue(ctx, entity)
		if err != nil {
			return &StateManagerError{Op: "warm_cache", Err: err}
		}

		if value != "" {
			values[CacheKey(entity.EntityType(), entity.EntityID())] = value
		}
	}

	if len(values) == 0 {
		return nil
	}

	if err := m.cache.SetMany(ctx, values, m.ttl); err != nil {
		return &StateManagerError{Op: "warm_cache", Err: err}
	}

	logger.Get(ctx).Debug("state cache warmed", "entries", len(values))

	return nil
}

// StateManagerFactory builds the process StateManager.
type StateManagerFactory func() (StateManager, error)

var managers = struct {
	mu         sync.Mutex
	factories  map[string]StateManagerFactory
	configured string
	resolved   StateManager
}{
	factories: map[string]StateManagerFactory{
		DefaultStateManagerName: func() (StateManager, error) { return NewDefaultStateManager(), nil },
	},
	configured: DefaultStateManagerName,
}

// RegisterStateManagerFactory makes a StateManager implementation selectable
// by name. Registering an existing name replaces it.
func RegisterStateManagerFactory(name string, factory StateManagerFactory) {
	managers.mu.Lock()
	defer managers.mu.Unlock()

	managers.factories[name] = factory
}

// ConfigureStateManager selects the factory GetStateManager resolves. It has
// no effect once the manager is resolved, until ResetStateManager.
func ConfigureStateManager(name string) {
	managers.mu.Lock()
	defer managers.mu.Unlock()

	managers.configured = name
}

// GetStateManager returns the process StateManager, building it on first use.
func GetStateManager() (StateManager, error) {
	managers.mu.Lock()
	defer managers.mu.Unlock()

	if managers.resolved != nil {
		return managers.resolved, nil
	}

	factory, ok := managers.factories[managers.configured]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStateManager, managers.configured)
	}

	sm, err := factory()
	if err != nil {
		return nil, &StateManagerError{Op: "get_state_manager", Err: err}
	}

	managers.resolved = sm

	return sm, nil
}

// ResetStateManager forgets the resolved manager so the next GetStateManager
// builds a new one.
func ResetStateManager() {
	managers.mu.Lock()
	defer managers.mu.Unlock()

	managers.resolved = nil
}
