// Package fsmtest provides an isolated engine harness and assertions for
// testing transitions.
package fsmtest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/amp-labs/amp-fsm/fsm"
	"github.com/amp-labs/amp-fsm/logger"
	"github.com/amp-labs/amp-fsm/statestore/memstore"
	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/require"
)

// Entity is a minimal fsm.Entity.
type Entity struct {
	Type string
	ID   string
	Org  string
}

func (e Entity) EntityType() string     { return e.Type }
func (e Entity) EntityID() string       { return e.ID }
func (e Entity) OrganizationID() string { return e.Org }

// Actor is a minimal fsm.Actor.
type Actor struct {
	ID  string
	Org string
}

func (a Actor) ActorID() string              { return a.ID }
func (a Actor) ActiveOrganizationID() string { return a.Org }

// Harness is an engine with its own registries, in-memory stores and cache,
// so tests can run in parallel without touching process-wide state.
type Harness struct {
	t testing.TB

	Registry *fsm.Registry
	Models   *fsm.StateModelRegistry
	Cache    *fsm.MemoryCache
	Manager  *fsm.DefaultStateManager

	mu     sync.Mutex
	stores map[string]*memstore.Store
}

// New returns a Harness. Options are applied after the harness defaults.
func New(t testing.TB, opts ...fsm.ManagerOption) *Harness {
	t.Helper()

	h := &Harness{
		t:        t,
		Registry: fsm.NewRegistry(),
		Models:   fsm.NewStateModelRegistry(),
		Cache:    fsm.NewMemoryCache(nil),
		stores:   make(map[string]*memstore.Store),
	}

	base := []fsm.ManagerOption{
		fsm.WithRegistry(h.Registry),
		fsm.WithStateModels(h.Models),
		fsm.WithCache(h.Cache),
	}

	h.Manager = fsm.NewDefaultStateManager(append(base, opts...)...)

	return h
}

// Context returns a context whose logger writes to the test log.
func (h *Harness) Context() context.Context {
	return logger.WithLogger(context.Background(), slogt.New(h.t))
}

// Store returns the in-memory store of entityType, registering one on first use.
func (h *Harness) Store(entityType string, opts ...memstore.Option) *memstore.Store {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s, ok := h.stores[entityType]; ok {
		return s
	}

	s := memstore.New(entityType, opts...)
	h.stores[entityType] = s
	h.Models.Register(entityType, s)

	return s
}

// Register adds a definition to the harness registry. It accepts the results
// of fsm.Define directly.
func (h *Harness) Register(def *fsm.Definition, err error) *fsm.Definition {
	h.t.Helper()
	require.NoError(h.t, err, "defining transition")

	h.Registry.Register(h.Context(), def)

	return def
}

// Execute runs a transition through the harness manager.
func (h *Harness) Execute(
	entity fsm.Entity,
	name string,
	data map[string]any,
	actor fsm.Actor,
	opts ...fsm.ContextOption,
) (*fsm.StateRecord, error) {
	return h.Manager.ExecuteTransition(h.Context(), entity, name, data, actor, opts...)
}

// MustExecute is Execute failing the test on error.
func (h *Harness) MustExecute(
	entity fsm.Entity,
	name string,
	data map[string]any,
	actor fsm.Actor,
	opts ...fsm.ContextOption,
) *fsm.StateRecord {
	h.t.Helper()

	rec, err := h.Execute(entity, name, data, actor, opts...)
	require.NoError(h.t, err, "executing %s", name)
	require.NotNil(h.t, rec)

	return rec
}

// RequireState asserts the current state of entity.
func (h *Harness) RequireState(entity fsm.Entity, want string) {
	h.t.Helper()

	got, err := h.Manager.GetCurrentStateValue(h.Context(), entity)
	require.NoError(h.t, err)
	require.Equal(h.t, want, got, "current state of %s", fsm.KeyOf(entity))
}

// RequireHistory asserts the states of entity, oldest first.
func (h *Harness) RequireHistory(entity fsm.Entity, states ...string) {
	h.t.Helper()

	history, err := h.Manager.GetStateHistory(h.Context(), entity, 0)
	require.NoError(h.t, err)

	got := make([]string, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		got = append(got, history[i].State)
	}

	if len(states) == 0 {
		require.Empty(h.t, got, "history of %s", fsm.KeyOf(entity))

		return
	}

	require.Equal(h.t, states, got, "history of %s", fsm.KeyOf(entity))
}

// RequireCached asserts the cached state label of entity.
func (h *Harness) RequireCached(entity fsm.Entity, want string) {
	h.t.Helper()

	got, ok, err := h.Cache.Get(h.Context(), fsm.CacheKey(entity.EntityType(), entity.EntityID()))
	require.NoError(h.t, err)
	require.True(h.t, ok, "state of %s is not cached", fsm.KeyOf(entity))
	require.Equal(h.t, want, got)
}

// RequireNotCached asserts that no state label is cached for entity.
func (h *Harness) RequireNotCached(entity fsm.Entity) {
	h.t.Helper()

	_, ok, err := h.Cache.Get(h.Context(), fsm.CacheKey(entity.EntityType(), entity.EntityID()))
	require.NoError(h.t, err)
	require.False(h.t, ok, "state of %s is cached", fsm.KeyOf(entity))
}

// RequireValidationError asserts err is a TransitionValidationError and returns it.
func RequireValidationError(t testing.TB, err error) *fsm.TransitionValidationError {
	t.Helper()

	var verr *fsm.TransitionValidationError
	require.ErrorAs(t, err, &verr)

	return verr
}

// RequireSchemaError asserts err is a SchemaError naming exactly fields.
func RequireSchemaError(t testing.TB, err error, fields ...string) *fsm.SchemaError {
	t.Helper()

	var serr *fsm.SchemaError
	require.ErrorAs(t, err, &serr)

	got := make([]string, 0, len(serr.Fields))
	for name := range serr.Fields {
		got = append(got, name)
	}

	require.ElementsMatch(t, fields, got, "offending fields")

	return serr
}

// ErrInjected is the default failure of FailingModel.
var ErrInjected = errors.New("injected failure")

// FailingModel wraps a StateModel and fails selected operations.
type FailingModel struct {
	fsm.StateModel

	CreateErr      error
	DenormalizeErr error
	ReadErr        error
}

func (f *FailingModel) Create(ctx context.Context, rec *fsm.StateRecord) error {
	if f.CreateErr != nil {
		return f.CreateErr
	}

	return f.StateModel.Create(ctx, rec)
}

func (f *FailingModel) GetDenormalizedFields(ctx context.Context, entity fsm.Entity) (map[string]any, error) {
	if f.DenormalizeErr != nil {
		return nil, f.DenormalizeErr
	}

	return f.StateModel.GetDenormalizedFields(ctx, entity)
}

func (f *FailingModel) GetCurrentState(ctx context.Context, entity fsm.Entity) (*fsm.StateRecord, error) {
	if f.ReadErr != nil {
		return nil, f.ReadErr
	}

	return f.StateModel.GetCurrentState(ctx, entity)
}
