package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/amp-labs/amp-fsm/cli"
	"github.com/amp-labs/amp-fsm/fsm"
	"github.com/amp-labs/amp-fsm/fsm/visualizer"
	"github.com/amp-labs/amp-fsm/jobs"
	"github.com/amp-labs/amp-fsm/labeling"
	"github.com/google/uuid"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrUsage          = errors.New("usage")
)

type app struct {
	out     io.Writer
	eng     *engine
	manager fsm.StateManager
}

const (
	usageTransitions = "transitions <entity-type>"
	usageSchema      = "schema <entity-type> <transition>"
	usageFlow        = "flow <entity-type>"
	usageDiagram     = "diagram [-direction LR] [-raw] [-entity id] <entity-type>"
	usageHistory     = "history [-limit n] <entity-type> <entity-id>"
)

type command struct {
	usage string
	run   func(a *app, ctx context.Context, args []string) error
}

var commands = map[string]command{ //nolint:gochecknoglobals
	"transitions": {usage: usageTransitions, run: (*app).transitions},
	"schema":      {usage: usageSchema, run: (*app).schema},
	"flow":        {usage: usageFlow, run: (*app).flow},
	"diagram":     {usage: usageDiagram, run: (*app).diagram},
	"history":     {usage: usageHistory, run: (*app).history},
	"demo":        {usage: "demo", run: (*app).demo},
	"run":         {usage: "run (interactive)", run: (*app).interactive},
}

func usage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}

	slices.Sort(names)

	_, _ = fmt.Fprintln(w, "usage: fsmctl [-config file.yaml] <command> [args]")
	_, _ = fmt.Fprintln(w)

	for _, name := range names {
		_, _ = fmt.Fprintln(w, "  "+commands[name].usage)
	}
}

func (a *app) dispatch(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: missing command", ErrUsage)
	}

	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, args[0])
	}

	return cmd.run(a, ctx, args[1:])
}

func (a *app) transitions(_ context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: %s", ErrUsage, usageTransitions)
	}

	defs := a.eng.registry.ListForEntity(args[0])
	names := make([]string, 0, len(defs))

	for name := range defs {
		names = append(names, name)
	}

	slices.Sort(names)

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0) //nolint:mnd
	_, _ = fmt.Fprintln(tw, "NAME\tFROM\tDESCRIPTION")

	for _, name := range names {
		def := defs[name]

		from := strings.Join(def.FromStates, ",")

		switch {
		case def.InitialOnly:
			from = "(initial)"
		case def.AllowInitial && from != "":
			from = "(initial)," + from
		case def.AllowInitial || from == "":
			from = "*"
		}

		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", name, from, def.Description)
	}

	return tw.Flush()
}

func (a *app) schema(_ context.Context, args []string) error {
	if len(args) != 2 { //nolint:mnd
		return fmt.Errorf("%w: %s", ErrUsage, usageSchema)
	}

	def, ok := a.eng.registry.Get(args[0], args[1])
	if !ok {
		return &fsm.UnknownTransitionError{EntityType: args[0], Name: args[1]}
	}

	return a.printJSON(fsm.GetTransitionSchema(def))
}

func (a *app) flow(_ context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: %s", ErrUsage, usageFlow)
	}

	return a.printJSON(fsm.GetEntityTypeStateFlow(a.eng.registry, args[0]))
}

func (a *app) diagram(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("diagram", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	direction := fs.String("direction", "LR", "diagram direction (TB, TD, BT, LR, RL)")
	raw := fs.Bool("raw", false, "omit the markdown code fence")
	entityID := fs.String("entity", "", "highlight the states this entity went through")

	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		return fmt.Errorf("%w: %s", ErrUsage, usageDiagram)
	}

	entityType := fs.Arg(0)
	opts := visualizer.DefaultOptions().WithDirection(*direction).WithFenced(!*raw)

	if *entityID != "" {
		entity, err := labeling.NewEntity(entityType, *entityID, "", "", "")
		if err != nil {
			return err
		}

		hist, err := a.manager.GetStateHistory(ctx, entity, 0)
		if err != nil {
			return err
		}

		path := make([]string, 0, len(hist))
		for _, rec := range hist {
			path = append(path, rec.State)
		}

		opts = opts.WithHighlightPath(path)
	}

	out, err := visualizer.GenerateMermaidWithOptions(a.eng.registry, entityType, opts)
	if err != nil {
		return err
	}

	_, err = fmt.Fprint(a.out, out)

	return err
}

func (a *app) history(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	limit := fs.Int("limit", 0, "maximum records, 0 for the configured default")

	if err := fs.Parse(args); err != nil || fs.NArg() != 2 { //nolint:mnd
		return fmt.Errorf("%w: %s", ErrUsage, usageHistory)
	}

	entity, err := labeling.NewEntity(fs.Arg(0), fs.Arg(1), "", "", "")
	if err != nil {
		return err
	}

	return a.printHistory(ctx, entity, *limit)
}

func (a *app) printHistory(ctx context.Context, entity fsm.Entity, limit int) error {
	hist, err := a.manager.GetStateHistory(ctx, entity, limit)
	if err != nil {
		return err
	}

	cli.PrintBanner(a.out, entity.EntityType()+" "+entity.EntityID(), cli.AlignCenter)

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0) //nolint:mnd
	_, _ = fmt.Fprintln(tw, "CREATED\tTRANSITION\tFROM\tTO\tBY\tREASON")

	for _, rec := range slices.Backward(hist) {
		from := rec.PreviousState
		if from == "" {
			from = "-"
		}

		by := rec.TriggeredBy
		if by == "" {
			by = "system"
		}

		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.CreatedAt.Format(time.RFC3339), rec.TransitionName, from, rec.State, by, rec.Reason)
	}

	return tw.Flush()
}

// demo walks a small project through the labeling workflow.
func (a *app) demo(ctx context.Context, _ []string) error {
	run := uuid.NewString()[:8]
	org := "org-" + run
	project := "proj-" + run

	admin := labeling.User{ID: "admin", ActiveOrg: org}
	annotator := labeling.User{ID: "annotator-1", ActiveOrg: org}
	reviewer := labeling.User{ID: "reviewer-1", ActiveOrg: org}

	tasks := make([]labeling.Task, 3) //nolint:mnd
	for i := range tasks {
		tasks[i] = labeling.Task{ID: fmt.Sprintf("task-%s-%d", run, i+1), ProjectID: project, Org: org}
	}

	results, err := labeling.ImportTasks(ctx, a.eng.runner, tasks,
		[]map[string]any{{"text": "a cat on a mat"}, {"text": "a dog"}, {"text": "a bird"}}, admin)
	if err := errors.Join(err, batchErr(results)); err != nil {
		return err
	}

	ann := labeling.Annotation{ID: "ann-" + run, TaskID: tasks[0].ID, ProjectID: project, Org: org}
	result := []any{map[string]any{"label": "cat", "x": 10, "y": 20}}

	steps := []struct {
		entity fsm.Entity
		name   string
		data   map[string]any
		actor  fsm.Actor
	}{
		{tasks[0], "start_task", map[string]any{"assignee_id": annotator.ID, "priority": 2}, admin},
		{ann, "annotation_submitted_v2", map[string]any{"result": result, "confidence": 0.6}, annotator},
		{ann, "annotation_reviewed", map[string]any{"accepted": false, "comment": "mat is unlabeled"}, reviewer},
		{ann, "annotation_submitted", map[string]any{"result": append(result, map[string]any{"label": "mat"})}, annotator},
		{ann, "annotation_reviewed", map[string]any{"accepted": true}, reviewer},
		{tasks[0], "complete_task", map[string]any{"annotation_count": 1}, annotator},
	}

	for _, step := range steps {
		if _, err := a.manager.ExecuteTransition(ctx, step.entity, step.name, step.data, step.actor); err != nil {
			return fmt.Errorf("%s on %s: %w", step.name, step.entity.EntityID(), err)
		}
	}

	results, err = labeling.BulkSetStatus(ctx, a.eng.runner, tasks[1:], labeling.TaskStateCompleted,
		admin, "closed by demo")
	if err := errors.Join(err, batchErr(results)); err != nil {
		return err
	}

	for _, entity := range []fsm.Entity{tasks[0], ann, tasks[1]} {
		if err := a.printHistory(ctx, entity, 0); err != nil {
			return err
		}
	}

	return nil
}

func batchErr(results []jobs.Result) error {
	var errs []error

	for _, res := range results {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.Job.Entity.EntityID(), res.Err))
		}
	}

	return errors.Join(errs...)
}

// interactive picks an entity and an available transition, prompts for the
// payload and executes it.
func (a *app) interactive(ctx context.Context, _ []string) error {
	entityType, err := cli.Select("Entity type", a.eng.registry.EntityTypes())
	if err != nil {
		return err
	}

	id, err := cli.PromptString("Entity id")
	if err != nil {
		return err
	}

	var parent string
	if entityType == labeling.EntityAnnotation {
		if parent, err = cli.PromptString("Task id"); err != nil {
			return err
		}
	}

	entity, err := labeling.NewEntity(entityType, id, parent, "", "")
	if err != nil {
		return err
	}

	available, err := fsm.GetAvailableTransitions(ctx, a.eng.registry, a.manager, entity, nil, true)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(available))
	for name := range available {
		names = append(names, name)
	}

	name, err := cli.Select("Transition", names)
	if err != nil {
		return err
	}

	payload, err := cli.PromptPayload(fsm.GetTransitionSchema(available[name]))
	if err != nil {
		return err
	}

	ok, err := cli.PromptConfirm(fmt.Sprintf("Apply %s to %s %s", name, entityType, id))
	if err != nil || !ok {
		return err
	}

	rec, err := a.manager.ExecuteTransition(ctx, entity, name, payload, nil)
	if err != nil {
		return err
	}

	return a.printJSON(rec)
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
