// Package shutdown coordinates process teardown: pools, connections and
// telemetry exporters register hooks that run once a termination signal
// arrives or Trigger is called.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/amp-labs/amp-fsm/logger"
)

// Hook releases a resource. Errors are logged and do not stop later hooks.
type Hook func(ctx context.Context) error

type hookEntry struct {
	name string
	hook Hook
}

var (
	mut     sync.Mutex     //nolint:gochecknoglobals
	hooks   []hookEntry    //nolint:gochecknoglobals
	channel chan os.Signal //nolint:gochecknoglobals
)

// BeforeShutdown registers a hook. Hooks run in reverse registration order,
// so resources opened later are released first.
func BeforeShutdown(name string, h Hook) {
	mut.Lock()
	defer mut.Unlock()

	hooks = append(hooks, hookEntry{name: name, hook: h})
}

// Trigger starts the shutdown process programmatically.
func Trigger() {
	mut.Lock()
	ch := channel
	mut.Unlock()

	if ch != nil {
		select {
		case ch <- os.Interrupt:
		default:
		}
	}
}

// SetupHandler installs a SIGINT/SIGTERM handler and returns a context that
// is canceled after every hook has run.
func SetupHandler(parent context.Context) context.Context {
	mut.Lock()
	channel = make(chan os.Signal, 1)
	ch := channel
	mut.Unlock()

	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(parent)

	go func() {
		sig := <-ch

		signal.Stop(ch)
		logger.Get(ctx).Warn("received " + sig.String() + ", shutting down")

		mut.Lock()
		channel = nil
		mut.Unlock()

		Run(ctx)
		cancel()
	}()

	return ctx
}

// Run executes and clears the registered hooks.
func Run(ctx context.Context) {
	mut.Lock()
	pending := hooks
	hooks = nil
	mut.Unlock()

	for i := len(pending) - 1; i >= 0; i-- {
		entry := pending[i]

		if err := entry.hook(ctx); err != nil {
			logger.Get(ctx).Error("shutdown hook failed", "hook", entry.name, "error", err)
		} else {
			logger.Get(ctx).Debug("shutdown hook completed", "hook", entry.name)
		}
	}
}
