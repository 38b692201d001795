package fsm

import (
	"context"
	"maps"
	"slices"
	"strings"

	"facette.io/natsort"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// GetAvailableTransitions lists the transitions registered for the entity's
// type. With validate set, transitions that build without a payload are kept
// only if their structural check accepts the current state. Transitions that
// need data to be built are always kept: their target and business rules
// depend on the payload, so hiding them could hide a valid action.
func GetAvailableTransitions(
	ctx context.Context,
	registry *Registry,
	sm StateManager,
	entity Entity,
	actor Actor,
	validate bool,
) (map[string]*Definition, error) {
	if registry == nil {
		registry = defaultRegistry
	}

	all := registry.ListForEntity(entity.EntityType())
	if !validate {
		return all, nil
	}

	current, err := sm.GetCurrentStateObject(ctx, entity)
	if err != nil {
		return nil, err
	}

	available := make(map[string]*Definition, len(all))

	for name, def := range all {
		t, ok := def.BuildDefault()
		if !ok {
			available[name] = def

			continue
		}

		tc := NewTransitionContext(entity, actor, current, t.TargetState())
		tc.TransitionName = name

		if def.CanTransitionFromState(tc) {
			available[name] = def
		}
	}

	return available, nil
}

// FlowStep is one edge of an entity type's workflow.
type FlowStep struct {
	TransitionName string   `json:"transition_name"`
	Label          string   `json:"label"`
	TargetState    string   `json:"target_state"`
	FromStates     []string `json:"from_states,omitempty"`
	Initial        bool     `json:"initial,omitempty"`
	Description    string   `json:"description,omitempty"`
	FieldNames     []string `json:"field_names"`
}

// GetEntityStateFlow describes the workflow of the entity's type.
func GetEntityStateFlow(registry *Registry, entity Entity) []FlowStep {
	return GetEntityTypeStateFlow(registry, entity.EntityType())
}

// GetEntityTypeStateFlow describes the workflow of an entity type, ordered by
// transition name. Transitions that cannot be built without a payload are
// skipped since their target state is unknown.
func GetEntityTypeStateFlow(registry *Registry, entityType string) []FlowStep {
	if registry == nil {
		registry = defaultRegistry
	}

	defs := registry.ListForEntity(entityType)
	names := slices.Collect(maps.Keys(defs))
	natsort.Sort(names)

	title := cases.Title(language.English)
	steps := make([]FlowStep, 0, len(names))

	for _, name := range names {
		def := defs[name]

		t, ok := def.BuildDefault()
		if !ok {
			continue
		}

		steps = append(steps, FlowStep{
			TransitionName: name,
			Label:          title.String(strings.ReplaceAll(name, "_", " ")),
			TargetState:    t.TargetState(),
			FromStates:     slices.Clone(def.FromStates),
			Initial:        def.InitialOnly || def.AllowInitial,
			Description:    def.Description,
			FieldNames:     GetTransitionSchema(def).FieldNames(),
		})
	}

	return steps
}
