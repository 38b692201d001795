package fsm

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/zeebo/xxh3"
)

// Outcome labels.
const (
	outcomeSuccess      = "success"
	outcomeSchema       = "schema_error"
	outcomeValidation   = "validation_error"
	outcomeUnknown      = "unknown_transition"
	outcomeStateManager = "state_manager_error"
	outcomePostHook     = "post_hook_error"
	outcomeError        = "error"
)

var (
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fsm_transitions_total",
		Help: "Total number of executed transitions by entity type, transition, outcome and organization hash",
	}, []string{"entity_type", "transition", "outcome", "organization_hash"})

	transitionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fsm_transition_duration_seconds",
		Help:    "Duration of transition execution by entity type, transition and outcome",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"entity_type", "transition", "outcome"})

	stateRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fsm_state_records_created_total",
		Help: "Total number of state records persisted by entity type and state",
	}, []string{"entity_type", "state"})

	cacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fsm_cache_lookups_total",
		Help: "Current state cache lookups by entity type and result (hit, miss, error)",
	}, []string{"entity_type", "result"})
)

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return outcomeSuccess
	case errors.Is(err, ErrSchemaValidation):
		return outcomeSchema
	case errors.Is(err, ErrTransitionValidation):
		return outcomeValidation
	case errors.Is(err, ErrUnknownTransition):
		return outcomeUnknown
	case errors.Is(err, ErrStateManager):
		return outcomeStateManager
	case errors.Is(err, ErrPostHook):
		return outcomePostHook
	default:
		return outcomeError
	}
}

// hashOrganization keeps tenant ids out of metric labels.
func hashOrganization(organizationID string) string {
	if organizationID == "" {
		return "none"
	}

	return fmt.Sprintf("%016x", xxh3.HashString(organizationID))[:8]
}

func sanitizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}

	return value
}
