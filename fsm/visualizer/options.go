package visualizer

// Options configures the diagram output.
type Options struct {
	// ShowTransitionNames labels edges with the transition name.
	ShowTransitionNames bool

	// Direction controls diagram flow: "TB" (top to bottom) or "LR" (left to right).
	Direction string

	// HighlightPath highlights states, e.g. an entity's history.
	HighlightPath []string

	// FinalStates are drawn with an edge to the end marker.
	FinalStates []string

	// Fenced wraps the diagram in a ```mermaid code block.
	Fenced bool
}

// DefaultOptions returns the options used by GenerateMermaid.
func DefaultOptions() Options {
	return Options{
		ShowTransitionNames: true,
		Direction:           "LR",
		Fenced:              true,
	}
}

// WithShowTransitionNames enables or disables edge labels.
func (o Options) WithShowTransitionNames(show bool) Options {
	o.ShowTransitionNames = show

	return o
}

// WithDirection sets the diagram direction.
func (o Options) WithDirection(direction string) Options {
	o.Direction = direction

	return o
}

// WithHighlightPath sets states to highlight.
func (o Options) WithHighlightPath(path []string) Options {
	o.HighlightPath = path

	return o
}

// WithFinalStates sets the terminal states.
func (o Options) WithFinalStates(states ...string) Options {
	o.FinalStates = states

	return o
}

// WithFenced toggles the surrounding code fence.
func (o Options) WithFenced(fenced bool) Options {
	o.Fenced = fenced

	return o
}
