package fsm

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Predefined error types.
var (
	// ErrSchemaValidation marks payloads rejected while constructing a transition.
	ErrSchemaValidation = errors.New("transition payload is invalid")
	// ErrTransitionValidation marks business-rule rejections.
	ErrTransitionValidation = errors.New("transition validation failed")
	// ErrStateManager marks failures inside the state manager.
	ErrStateManager = errors.New("state manager error")
	// ErrNoStateModel means an entity type was never registered with a state model.
	ErrNoStateModel = errors.New("no state model registered")
	// ErrUnknownTransition means no transition with that name exists for the entity type.
	ErrUnknownTransition = errors.New("unknown transition")
	// ErrUnknownStateManager means the configured state manager name has no factory.
	ErrUnknownStateManager = errors.New("unknown state manager")
	// ErrPostHook is returned when a post hook fails after the record was persisted.
	ErrPostHook = errors.New("post hook failed")
	// ErrInvalidDefinition is returned when a transition type cannot be registered.
	ErrInvalidDefinition = errors.New("invalid transition definition")
)

// SchemaError lists every payload field that failed decoding or constraints.
type SchemaError struct {
	Transition string
	Fields     map[string]string
}

func (e *SchemaError) Error() string {
	names := slices.Sorted(maps.Keys(e.Fields))
	parts := make([]string, 0, len(names))

	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}

	if e.Transition == "" {
		return fmt.Sprintf("%v: %s", ErrSchemaValidation, strings.Join(parts, "; "))
	}

	return fmt.Sprintf("%s: %v: %s", e.Transition, ErrSchemaValidation, strings.Join(parts, "; "))
}

func (e *SchemaError) Unwrap() error {
	return ErrSchemaValidation
}

func (e *SchemaError) add(field, reason string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}

	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = reason
	}
}

func (e *SchemaError) orNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}

	return e
}

// TransitionValidationError is a business-rule violation. Context carries
// machine-readable detail such as current_state and valid_states.
type TransitionValidationError struct {
	Message string
	Context map[string]any
}

// NewValidationError builds a TransitionValidationError from key-value pairs.
func NewValidationError(message string, kv ...any) *TransitionValidationError {
	ctx := make(map[string]any, len(kv)/2) //nolint:mnd

	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}

		ctx[key] = kv[i+1]
	}

	return &TransitionValidationError{Message: message, Context: ctx}
}

func (e *TransitionValidationError) Error() string {
	if e.Message == "" {
		return ErrTransitionValidation.Error()
	}

	return fmt.Sprintf("%v: %s", ErrTransitionValidation, e.Message)
}

func (e *TransitionValidationError) Unwrap() error {
	return ErrTransitionValidation
}

// StateManagerError wraps failures of the state manager. Configuration errors
// wrap ErrNoStateModel, persistence errors wrap the store's error.
type StateManagerError struct {
	Op      string
	Message string
	Err     error
}

func (e *StateManagerError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}

	return fmt.Sprintf("%v: %s: %s", ErrStateManager, e.Op, msg)
}

func (e *StateManagerError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrStateManager}
	}

	return []error{ErrStateManager, e.Err}
}

// UnknownTransitionError is returned when a transition name is not registered
// for an entity type.
type UnknownTransitionError struct {
	EntityType string
	Name       string
}

func (e *UnknownTransitionError) Error() string {
	return fmt.Sprintf("%v %q for entity type %q", ErrUnknownTransition, e.Name, e.EntityType)
}

func (e *UnknownTransitionError) Unwrap() error {
	return ErrUnknownTransition
}

func noStateModel(op, entityType string) error {
	return &StateManagerError{
		Op:      op,
		Message: fmt.Sprintf("%v for entity type %q", ErrNoStateModel, entityType),
		Err:     ErrNoStateModel,
	}
}

// IsRetryable reports whether a failed transition may succeed if tried again
// unchanged. Payload, business-rule and configuration errors never do, and
// a post hook failure means the record was already written.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrSchemaValidation),
		errors.Is(err, ErrTransitionValidation),
		errors.Is(err, ErrNoStateModel),
		errors.Is(err, ErrUnknownTransition),
		errors.Is(err, ErrUnknownStateManager),
		errors.Is(err, ErrInvalidDefinition),
		errors.Is(err, ErrPostHook):
		return false
	default:
		return true
	}
}
