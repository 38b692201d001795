package fsm

import (
	"maps"
	"time"
)

// TransitionContext carries everything one transition attempt needs. It is
// built by the executor and passed explicitly through every lifecycle step.
type TransitionContext struct {
	Entity             Entity
	Actor              Actor
	CurrentStateRecord *StateRecord
	CurrentState       string
	TargetState        string
	Timestamp          time.Time
	TransitionName     string
	RequestData        map[string]any
	Metadata           map[string]any
	OrganizationID     string

	// Reason, when set, replaces the reason the transition would compute.
	Reason string
}

// ContextOption customizes the TransitionContext built for an attempt.
type ContextOption func(*TransitionContext)

// WithRequestData merges request-scoped values into the context.
func WithRequestData(data map[string]any) ContextOption {
	return func(tc *TransitionContext) {
		if tc.RequestData == nil {
			tc.RequestData = make(map[string]any, len(data))
		}

		maps.Copy(tc.RequestData, data)
	}
}

// WithMetadata merges free-form metadata into the context.
func WithMetadata(md map[string]any) ContextOption {
	return func(tc *TransitionContext) {
		if tc.Metadata == nil {
			tc.Metadata = make(map[string]any, len(md))
		}

		maps.Copy(tc.Metadata, md)
	}
}

// WithOrganization pins the organization of the attempt.
func WithOrganization(organizationID string) ContextOption {
	return func(tc *TransitionContext) {
		tc.OrganizationID = organizationID
	}
}

// WithReason overrides the audit reason stored on the new record.
func WithReason(reason string) ContextOption {
	return func(tc *TransitionContext) {
		tc.Reason = reason
	}
}

// WithTimestamp sets the attempt time. Defaults to now.
func WithTimestamp(ts time.Time) ContextOption {
	return func(tc *TransitionContext) {
		tc.Timestamp = ts
	}
}

// NewTransitionContext builds the context for one attempt. current may be nil
// when the entity has no state yet.
func NewTransitionContext(
	entity Entity,
	actor Actor,
	current *StateRecord,
	targetState string,
	opts ...ContextOption,
) *TransitionContext {
	tc := &TransitionContext{
		Entity:             entity,
		Actor:              actor,
		CurrentStateRecord: current,
		TargetState:        targetState,
		Timestamp:          time.Now(),
		RequestData:        make(map[string]any),
		Metadata:           make(map[string]any),
	}

	if current != nil {
		tc.CurrentState = current.State
	}

	for _, opt := range opts {
		opt(tc)
	}

	return tc
}

// HasCurrentState reports whether the entity already has a state.
func (tc *TransitionContext) HasCurrentState() bool {
	return tc.CurrentState != ""
}

// IsInitialTransition is true when the entity has no state yet.
func (tc *TransitionContext) IsInitialTransition() bool {
	return !tc.HasCurrentState()
}

// ActorID returns the id of the triggering actor, or "" for the system.
func (tc *TransitionContext) ActorID() string {
	return actorID(tc.Actor)
}
