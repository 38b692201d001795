// Package visualizer renders the transitions registered for an entity type
// as a Mermaid state diagram.
package visualizer

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"facette.io/natsort"
	"github.com/amp-labs/amp-fsm/fsm"
)

// Visualizer errors.
var (
	ErrRegistryNil      = errors.New("registry cannot be nil")
	ErrNoTransitions    = errors.New("entity type has no transitions")
	ErrInvalidDirection = errors.New("direction must be TB, TD, BT, LR or RL")
)

const startMarker = "[*]"

type edge struct {
	from, to, label string
}

// GenerateMermaid renders the workflow of entityType with DefaultOptions.
func GenerateMermaid(registry *fsm.Registry, entityType string) (string, error) {
	return GenerateMermaidWithOptions(registry, entityType, DefaultOptions())
}

// GenerateMermaidWithOptions renders the workflow of entityType. Transitions
// whose target depends on the payload are listed as comments, and
// transitions without FromStates get an edge from every known state.
func GenerateMermaidWithOptions(registry *fsm.Registry, entityType string, opts Options) (string, error) {
	if registry == nil {
		return "", ErrRegistryNil
	}

	switch opts.Direction {
	case "", "TB", "TD", "BT", "LR", "RL":
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDirection, opts.Direction)
	}

	defs := registry.ListForEntity(entityType)
	if len(defs) == 0 {
		return "", fmt.Errorf("%w: %q", ErrNoTransitions, entityType)
	}

	names := slices.Collect(maps.Keys(defs))
	natsort.Sort(names)

	states := make(map[string]bool)
	targets := make(map[string]string, len(names))

	var dynamic []string

	for _, name := range names {
		def := defs[name]

		target := def.New().TargetState()
		if target == "" {
			dynamic = append(dynamic, name)

			continue
		}

		targets[name] = target
		states[target] = true

		for _, s := range def.FromStates {
			states[s] = true
		}
	}

	known := slices.Collect(maps.Keys(states))
	natsort.Sort(known)

	var edges []edge

	for _, name := range names {
		target, ok := targets[name]
		if !ok {
			continue
		}

		for _, from := range sources(defs[name], known, target) {
			edges = append(edges, edge{from: from, to: target, label: name})
		}
	}

	return render(edges, known, dynamic, opts), nil
}

func sources(def *fsm.Definition, known []string, target string) []string {
	var out []string

	if def.InitialOnly || def.AllowInitial || len(def.FromStates) == 0 {
		out = append(out, startMarker)
	}

	if def.InitialOnly {
		return out
	}

	if len(def.FromStates) > 0 {
		return append(out, def.FromStates...)
	}

	for _, s := range known {
		if s != target {
			out = append(out, s)
		}
	}

	return out
}

func render(edges []edge, states, dynamic []string, opts Options) string {
	var sb strings.Builder

	if opts.Fenced {
		sb.WriteString("```mermaid\n")
	}

	sb.WriteString("stateDiagram-v2\n")

	if opts.Direction != "" {
		fmt.Fprintf(&sb, "    direction %s\n", opts.Direction)
	}

	for _, s := range states {
		fmt.Fprintf(&sb, "    state %s\n", s)
	}

	for _, e := range edges {
		if opts.ShowTransitionNames {
			fmt.Fprintf(&sb, "    %s --> %s : %s\n", e.from, e.to, e.label)
		} else {
			fmt.Fprintf(&sb, "    %s --> %s\n", e.from, e.to)
		}
	}

	for _, s := range opts.FinalStates {
		fmt.Fprintf(&sb, "    %s --> %s\n", s, startMarker)
	}

	for _, name := range dynamic {
		fmt.Fprintf(&sb, "    %%%% %s: target state depends on the payload\n", name)
	}

	highlighted := make(map[string]bool, len(opts.HighlightPath))
	for _, s := range opts.HighlightPath {
		highlighted[s] = true
	}

	for _, s := range states {
		switch {
		case highlighted[s]:
			fmt.Fprintf(&sb, "    class %s highlighted\n", s)
		case slices.Contains(opts.FinalStates, s):
			fmt.Fprintf(&sb, "    class %s finalState\n", s)
		}
	}

	sb.WriteString("\n")
	sb.WriteString("    classDef finalState fill:#c8e6c9,stroke:#2e7d32,stroke-width:2px\n")
	sb.WriteString("    classDef highlighted fill:#fff9c4,stroke:#f57f17,stroke-width:3px\n")

	if opts.Fenced {
		sb.WriteString("```\n")
	}

	return sb.String()
}
