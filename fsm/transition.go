package fsm

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"unicode"
)

// Transition is one validated unit of business logic moving an entity to a
// new state. Concrete transitions are structs whose exported fields are the
// payload; they are built from untyped data by Definition.Build.
type Transition interface {
	// TargetState is a pure function of the payload fields.
	TargetState() string
	// Execute runs the business logic and returns the data stored on the new record.
	Execute(ctx context.Context, tc *TransitionContext) (map[string]any, error)
}

// Validator adds business rules on top of the structural check. Returning
// false without an error yields a generic TransitionValidationError.
type Validator interface {
	Validate(ctx context.Context, tc *TransitionContext) (bool, error)
}

// PreHooker runs setup before Execute.
type PreHooker interface {
	PreHook(ctx context.Context, tc *TransitionContext) error
}

// PostHooker runs after the new record has been persisted.
type PostHooker interface {
	PostHook(ctx context.Context, tc *TransitionContext, record *StateRecord) error
}

// Reasoner provides the audit reason for the new record.
type Reasoner interface {
	Reason(tc *TransitionContext) string
}

// PayloadValidator checks cross-field rules once every field decoded.
type PayloadValidator interface {
	ValidatePayload() error
}

// Definition describes a registered transition type. It answers the questions
// that do not need a payload: name, reachability, schema.
type Definition struct {
	Name        string
	EntityType  string
	Description string

	// FromStates lists the states the transition may start from. Empty means any.
	FromStates []string
	// AllowInitial permits the transition on entities without state even when
	// FromStates is set.
	AllowInitial bool
	// InitialOnly restricts the transition to entities without state.
	InitialOnly bool
	// StructuralCheck is an extra reachability rule evaluated without a payload.
	StructuralCheck func(tc *TransitionContext) bool

	typ        reflect.Type
	fieldPaths map[string]string
	newFn      func() Transition
}

// DefinitionOption configures a Definition.
type DefinitionOption func(*Definition)

// WithName overrides the name derived from the Go type.
func WithName(name string) DefinitionOption {
	return func(d *Definition) { d.Name = name }
}

// WithDescription sets a human readable description.
func WithDescription(desc string) DefinitionOption {
	return func(d *Definition) { d.Description = desc }
}

// FromStates restricts the states a transition may start from.
func FromStates(states ...string) DefinitionOption {
	return func(d *Definition) { d.FromStates = append(d.FromStates, states...) }
}

// AllowInitial lets a FromStates-restricted transition also create the first record.
func AllowInitial() DefinitionOption {
	return func(d *Definition) { d.AllowInitial = true }
}

// InitialOnly marks the transition that creates an entity's first record.
func InitialOnly() DefinitionOption {
	return func(d *Definition) { d.InitialOnly = true }
}

// WithStructuralCheck adds a payload-free reachability rule.
func WithStructuralCheck(check func(tc *TransitionContext) bool) DefinitionOption {
	return func(d *Definition) { d.StructuralCheck = check }
}

// Define builds the Definition of transition type T for an entity type.
func Define[T any, PT interface {
	*T
	Transition
}](entityType string, opts ...DefinitionOption) (*Definition, error) {
	typ := reflect.TypeFor[T]()
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s is not a struct", ErrInvalidDefinition, typ)
	}

	if entityType == "" {
		return nil, fmt.Errorf("%w: %s has no entity type", ErrInvalidDefinition, typ.Name())
	}

	def := &Definition{
		Name:       ToSnakeCase(typ.Name()),
		EntityType: entityType,
		typ:        typ,
		fieldPaths: collectFieldPaths(typ, "", "", nil),
		newFn:      func() Transition { return PT(new(T)) },
	}

	for _, opt := range opts {
		opt(def)
	}

	if def.Name == "" {
		return nil, fmt.Errorf("%w: %s has no name", ErrInvalidDefinition, typ)
	}

	return def, nil
}

// MustDefine is Define for package initialization; it panics on error.
func MustDefine[T any, PT interface {
	*T
	Transition
}](entityType string, opts ...DefinitionOption) *Definition {
	def, err := Define[T, PT](entityType, opts...)
	if err != nil {
		panic(err)
	}

	return def
}

// TypeName is the Go type name of the transition.
func (d *Definition) TypeName() string {
	return d.typ.Name()
}

// New returns a zero-valued instance of the transition type.
func (d *Definition) New() Transition {
	return d.newFn()
}

// CanTransitionFromState is the payload-free reachability check.
func (d *Definition) CanTransitionFromState(tc *TransitionContext) bool {
	if d.StructuralCheck != nil && !d.StructuralCheck(tc) {
		return false
	}

	if tc.IsInitialTransition() {
		return d.InitialOnly || d.AllowInitial || len(d.FromStates) == 0
	}

	if d.InitialOnly {
		return false
	}

	return len(d.FromStates) == 0 || slices.Contains(d.FromStates, tc.CurrentState)
}

func (d *Definition) structuralError(tc *TransitionContext) error {
	var current any
	if tc.HasCurrentState() {
		current = tc.CurrentState
	}

	msg := fmt.Sprintf("cannot apply %s from state %q", d.Name, tc.CurrentState)
	if tc.IsInitialTransition() {
		msg = fmt.Sprintf("cannot apply %s to an entity without state", d.Name)
	}

	return NewValidationError(msg,
		"transition", d.Name,
		"current_state", current,
		"valid_states", slices.Clone(d.FromStates),
	)
}

// prepareAndValidate drives a transition up to, and including, Execute.
func (d *Definition) prepareAndValidate(
	ctx context.Context,
	t Transition,
	tc *TransitionContext,
) (map[string]any, error) {
	tc.TransitionName = d.Name

	if !d.CanTransitionFromState(tc) {
		return nil, d.structuralError(tc)
	}

	if v, ok := t.(Validator); ok {
		valid, err := v.Validate(ctx, tc)
		if err != nil {
			return nil, err
		}

		if !valid {
			return nil, NewValidationError(
				fmt.Sprintf("%s rejected the transition", d.Name),
				"current_state", tc.CurrentState,
				"target_state", tc.TargetState,
			)
		}
	}

	if h, ok := t.(PreHooker); ok {
		if err := h.PreHook(ctx, tc); err != nil {
			return nil, err
		}
	}

	data, err := t.Execute(ctx, tc)
	if err != nil {
		return nil, err
	}

	if data == nil {
		data = make(map[string]any)
	}

	return data, nil
}

// finalize runs the post hook once the record is persisted.
func (d *Definition) finalize(ctx context.Context, t Transition, tc *TransitionContext, rec *StateRecord) error {
	h, ok := t.(PostHooker)
	if !ok {
		return nil
	}

	if err := h.PostHook(ctx, tc, rec); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPostHook, d.Name, err)
	}

	return nil
}

func (d *Definition) reason(t Transition, tc *TransitionContext) string {
	if tc.Reason != "" {
		return tc.Reason
	}

	if r, ok := t.(Reasoner); ok {
		return r.Reason(tc)
	}

	if tc.Actor == nil {
		return d.TypeName() + " executed automatically"
	}

	actor := tc.Actor.ActorID()
	if s, ok := tc.Actor.(fmt.Stringer); ok {
		actor = s.String()
	}

	return d.TypeName() + " executed by " + actor
}

// ToSnakeCase converts a Go identifier such as StartTask or HTTPImport to
// start_task or http_import.
func ToSnakeCase(name string) string {
	runes := []rune(name)

	var sb strings.Builder

	sb.Grow(len(name) + 4) //nolint:mnd

	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])

				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					sb.WriteByte('_')
				}
			}

			sb.WriteRune(unicode.ToLower(r))

			continue
		}

		sb.WriteRune(r)
	}

	return sb.String()
}
