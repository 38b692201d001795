// Command fsmctl inspects and drives the labeling workflow engine: it lists
// transitions and their payload schemas, draws state diagrams, prints entity
// history and runs transitions against the configured store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/amp-labs/amp-fsm/config"
	"github.com/amp-labs/amp-fsm/fsm"
	"github.com/amp-labs/amp-fsm/logger"
	"github.com/amp-labs/amp-fsm/shutdown"
	"github.com/amp-labs/amp-fsm/telemetry"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(parent context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("fsmctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { usage(stderr) }

	configPath := fs.String("config", "", "YAML file overriding environment settings")

	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	if fs.NArg() == 0 {
		usage(stderr)

		return exitUsage
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)

		return exitError
	}

	if _, err := logger.ConfigureLogging(cfg.Log); err != nil {
		_, _ = fmt.Fprintln(stderr, err)

		return exitError
	}

	ctx := shutdown.SetupHandler(parent)
	defer shutdown.Run(ctx)

	handler, err := telemetry.Initialize(ctx, cfg.Telemetry, cfg.Environment)
	if err != nil {
		logger.Get(ctx).Warn("telemetry unavailable", "error", err)
	}

	shutdown.BeforeShutdown("telemetry", telemetry.Shutdown)

	if handler != nil {
		if _, err := logger.ConfigureLogging(cfg.Log, func(o *logger.Options) { o.Handler = handler }); err != nil {
			logger.Get(ctx).Warn("keeping local logging", "error", err)
		}
	}

	eng, err := newEngine(ctx, cfg)
	if err != nil {
		logger.Get(ctx).Error("failed to start engine", "error", err)
		_, _ = fmt.Fprintln(stderr, err)

		return exitError
	}

	shutdown.BeforeShutdown("engine", eng.Close)

	// Library code reaches the manager through fsm.GetStateManager. The wired
	// manager replaces the default factory; other names must be registered
	// by the code that provides them.
	fsm.ResetStateManager()
	fsm.RegisterStateManagerFactory(fsm.DefaultStateManagerName, func() (fsm.StateManager, error) {
		return eng.manager, nil
	})
	fsm.ConfigureStateManager(cfg.Engine.StateManager)

	manager, err := fsm.GetStateManager()
	if err != nil {
		logger.Get(ctx).Error("failed to resolve state manager", "name", cfg.Engine.StateManager, "error", err)
		_, _ = fmt.Fprintln(stderr, err)

		return exitError
	}

	a := &app{out: stdout, eng: eng, manager: manager}

	if err := a.dispatch(ctx, fs.Args()); err != nil {
		logger.Get(ctx).Log(ctx, slog.LevelDebug, "command failed", "command", fs.Arg(0), "error", err)
		_, _ = fmt.Fprintln(stderr, err)

		if errors.Is(err, ErrUsage) || errors.Is(err, ErrUnknownCommand) {
			usage(stderr)

			return exitUsage
		}

		return exitError
	}

	return exitOK
}
