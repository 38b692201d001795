// Package jobs runs transitions off the request path on a bounded worker pool.
//
// The engine itself has no queue: a job is just a call to
// StateManager.ExecuteTransition with a payload of plain JSON-compatible values,
// so it can be handed to any executor. Runner is the in-process one, used for
// background transitions and bulk imports.
package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/amp-labs/amp-fsm/fsm"
	"github.com/amp-labs/amp-fsm/logger"
	"github.com/amp-labs/amp-fsm/shutdown"
	"github.com/cenkalti/backoff/v5"
	"go.uber.org/atomic"
)

const defaultWorkerCount = 10

var ErrRunnerStopped = errors.New("job runner is stopped")

// Job describes one transition to execute.
type Job struct {
	Entity     fsm.Entity
	Transition string
	Data       map[string]any
	Actor      fsm.Actor
	Options    []fsm.ContextOption
}

// Result pairs a job with its outcome.
type Result struct {
	Job    Job
	Record *fsm.StateRecord
	Err    error
}

// Runner executes jobs against a state manager.
type Runner struct {
	manager  fsm.StateManager
	pool     pond.Pool
	cfg      Config
	inflight *atomic.Int64
	stopOnce sync.Once
}

// NewRunner starts a worker pool sized by cfg.
func NewRunner(manager fsm.StateManager, cfg Config) *Runner {
	count := cfg.WorkerCount
	if count <= 0 {
		count = defaultWorkerCount
	}

	var opts []pond.Option
	if cfg.QueueSize > 0 {
		opts = append(opts, pond.WithQueueSize(cfg.QueueSize))
	}

	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = 1
	}

	return &Runner{
		manager:  manager,
		pool:     pond.NewPool(count, opts...),
		cfg:      cfg,
		inflight: atomic.NewInt64(0),
	}
}

// StopOnShutdown drains the pool when the process shuts down.
func (r *Runner) StopOnShutdown() {
	shutdown.BeforeShutdown("jobs", func(ctx context.Context) error {
		r.Stop(ctx)

		return nil
	})
}

// Stop waits for queued jobs and rejects new ones.
func (r *Runner) Stop(ctx context.Context) {
	r.stopOnce.Do(func() {
		logger.Get(ctx).Debug("stopping job runner", "inflight", r.inflight.Load())
		r.pool.StopAndWait()
		logger.Get(ctx).Debug("job runner stopped")
	})
}

// Inflight is the number of jobs currently executing.
func (r *Runner) Inflight() int64 {
	return r.inflight.Load()
}

// Submit queues a job and returns a channel receiving its single result.
func (r *Runner) Submit(ctx context.Context, job Job) (<-chan Result, error) {
	if r.pool.Stopped() {
		return nil, ErrRunnerStopped
	}

	out := make(chan Result, 1)

	err := r.pool.Go(func() {
		r.inflight.Inc()
		defer r.inflight.Dec()

		rec, err := r.execute(ctx, job)
		out <- Result{Job: job, Record: rec, Err: err}
	})
	if err != nil {
		return nil, errors.Join(ErrRunnerStopped, err)
	}

	return out, nil
}

// RunBatch executes jobs concurrently and returns results in input order.
// A failing job never stops the others.
func (r *Runner) RunBatch(ctx context.Context, jobs []Job) ([]Result, error) {
	if r.pool.Stopped() {
		return nil, ErrRunnerStopped
	}

	results := make([]Result, len(jobs))
	group := r.pool.NewGroup()

	for i, job := range jobs {
		// Counted once running: a pool stopped mid-loop drops the task.
		group.Submit(func() {
			r.inflight.Inc()
			defer r.inflight.Dec()

			rec, err := r.execute(ctx, job)
			results[i] = Result{Job: job, Record: rec, Err: err}
		})
	}

	if err := group.Wait(); err != nil {
		return results, err
	}

	failed := 0

	for _, res := range results {
		if res.Err != nil {
			failed++
		}
	}

	logger.Get(ctx).Info("batch finished", "jobs", len(jobs), "failed", failed)

	return results, nil
}

func (r *Runner) execute(ctx context.Context, job Job) (*fsm.StateRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	run := func() (*fsm.StateRecord, error) {
		rec, err := r.manager.ExecuteTransition(ctx, job.Entity, job.Transition, job.Data, job.Actor, job.Options...)
		if err != nil && !fsm.IsRetryable(err) {
			return rec, backoff.Permanent(err)
		}

		return rec, err
	}

	if r.cfg.RetryAttempts <= 1 {
		return r.manager.ExecuteTransition(ctx, job.Entity, job.Transition, job.Data, job.Actor, job.Options...)
	}

	policy := backoff.NewExponentialBackOff()
	if r.cfg.RetryInitialInterval > 0 {
		policy.InitialInterval = r.cfg.RetryInitialInterval
	}

	if r.cfg.RetryMaxInterval > 0 {
		policy.MaxInterval = r.cfg.RetryMaxInterval
	}

	return backoff.Retry(ctx, run,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(r.cfg.RetryAttempts),
		backoff.WithNotify(func(err error, wait time.Duration) {
			logger.Get(ctx).Warn("transition failed, retrying",
				"transition", job.Transition,
				"entity_id", job.Entity.EntityID(),
				"error", err,
				"wait", wait)
		}),
	)
}
