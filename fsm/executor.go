package fsm

import (
	"context"
	"time"

	"github.com/amp-labs/amp-fsm/logger"
	"go.opentelemetry.io/otel/attribute"
)

// ExecuteTransitionWithStateManager resolves the named transition for the
// entity's type, builds it from data, runs it against the current state and
// persists the result through sm. Nothing is written unless every step before
// persistence succeeds. A post hook failure returns the persisted record
// together with an error wrapping ErrPostHook.
func ExecuteTransitionWithStateManager(
	ctx context.Context,
	registry *Registry,
	sm StateManager,
	entity Entity,
	name string,
	data map[string]any,
	actor Actor,
	opts ...ContextOption,
) (rec *StateRecord, err error) {
	if registry == nil {
		registry = defaultRegistry
	}

	entityType := entity.EntityType()
	start := time.Now()

	ctx = logger.WithEntity(ctx, entityType, entity.EntityID())
	if id := actorID(actor); id != "" {
		ctx = logger.WithActor(ctx, id)
	}

	ctx, span := startSpan(ctx, "fsm.execute_transition", entity, attribute.String("fsm.transition", name))

	var organizationID string

	defer func() {
		outcome := outcomeOf(err)
		transitionsTotal.WithLabelValues(entityType, name, outcome, hashOrganization(organizationID)).Inc()
		transitionDuration.WithLabelValues(entityType, name, outcome).Observe(time.Since(start).Seconds())
		endSpan(span, err)

		log := logger.Get(ctx)
		if err != nil {
			log.Error("transition failed", "transition", name, "outcome", outcome, "error", err)

			return
		}

		log.Info("transition applied",
			"transition", name,
			"state", rec.State,
			"previous_state", rec.PreviousState,
			"record_id", rec.ID.String())
	}()

	def, ok := registry.Get(entityType, name)
	if !ok {
		return nil, &UnknownTransitionError{EntityType: entityType, Name: name}
	}

	t, err := def.Build(data)
	if err != nil {
		return nil, err
	}

	current, err := sm.GetCurrentStateObject(ctx, entity)
	if err != nil {
		return nil, err
	}

	tc := NewTransitionContext(entity, actor, current, t.TargetState(), opts...)
	explicitOrganization := tc.OrganizationID

	if tc.OrganizationID == "" {
		tc.OrganizationID = resolveOrganization("", entity, nil, actor)
	}

	organizationID = tc.OrganizationID

	if tc.TargetState == "" {
		return nil, NewValidationError(def.Name+" has no target state",
			"transition", def.Name,
			"current_state", tc.CurrentState)
	}

	contextData, err := def.prepareAndValidate(ctx, t, tc)
	if err != nil {
		return nil, err
	}

	rec, err = sm.TransitionState(ctx, entity, StateChange{
		NewState:       tc.TargetState,
		TransitionName: def.Name,
		Actor:          actor,
		ContextData:    contextData,
		Reason:         def.reason(t, tc),
		OrganizationID: explicitOrganization,
	})
	if err != nil {
		return nil, err
	}

	organizationID = rec.OrganizationID

	if err := def.finalize(ctx, t, tc, rec); err != nil {
		return rec, err
	}

	return rec, nil
}
