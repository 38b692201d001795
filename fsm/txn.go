package fsm

import (
	"context"
	"sync"
)

// Transactor runs fn as one all-or-nothing unit. Implementations must run
// the hooks registered with OnCommit after, and only after, a successful
// commit. WithinCommitScope does that bookkeeping.
type Transactor interface {
	Atomic(ctx context.Context, fn func(ctx context.Context) error) error
}

type commitScopeKey struct{}

type commitScope struct {
	mu    sync.Mutex
	hooks []func(context.Context)
}

func (s *commitScope) add(fn func(context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hooks = append(s.hooks, fn)
}

func (s *commitScope) run(ctx context.Context) {
	s.mu.Lock()
	hooks := s.hooks
	s.hooks = nil
	s.mu.Unlock()

	for _, fn := range hooks {
		fn(ctx)
	}
}

// WithinCommitScope runs fn with a commit scope on the context. Hooks are
// run when the outermost scope returns nil and dropped otherwise. A nested
// call joins the enclosing scope.
func WithinCommitScope(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(commitScopeKey{}).(*commitScope); ok {
		return fn(ctx)
	}

	scope := &commitScope{}

	if err := fn(context.WithValue(ctx, commitScopeKey{}, scope)); err != nil {
		return err
	}

	scope.run(context.WithoutCancel(ctx))

	return nil
}

// OnCommit defers fn until the enclosing atomic unit commits. Outside any
// unit fn runs immediately.
func OnCommit(ctx context.Context, fn func(ctx context.Context)) {
	if scope, ok := ctx.Value(commitScopeKey{}).(*commitScope); ok {
		scope.add(fn)

		return
	}

	fn(ctx)
}

// InCommitScope reports whether ctx is inside an atomic unit.
func InCommitScope(ctx context.Context) bool {
	_, ok := ctx.Value(commitScopeKey{}).(*commitScope)

	return ok
}

// LocalTransactor provides commit scoping without a database transaction.
// It suits stores whose single write is already atomic.
type LocalTransactor struct{}

func (LocalTransactor) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	return WithinCommitScope(ctx, fn)
}
