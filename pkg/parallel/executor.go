// Package parallel is the facade of the engine: an Executor owns one worker
// pool and exposes paginated fetches returning a live stream, and arbitrary
// task batches returning a deferred handle.
//
// Typical scoped usage:
//
//	err := parallel.Run(ctx, parallel.Config{Workers: 10}, func(ctx context.Context, e *parallel.Executor) error {
//		ch, err := parallel.FetchPaginated[document.Document](ctx, e, measurements, parallel.FetchOptions{PageSize: 500})
//		if err != nil {
//			return err
//		}
//		for m := range ch.All(ctx) {
//			process(m)
//		}
//		return ctx.Err()
//	})
//
// Leaving Run blocks until every worker has returned. Use Shutdown for a
// deadline-bound teardown instead.
package parallel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Sternrassler/c8y-parallel/pkg/logging"
	"github.com/Sternrassler/c8y-parallel/pkg/pool"
	"github.com/rs/zerolog"
)

var (
	// ErrNotOpen is returned when submitting work to an executor that is not
	// open.
	ErrNotOpen = errors.New("executor not open")

	// ErrUnsupportedStrategy is returned for fetch strategies other than
	// StrategyPages.
	ErrUnsupportedStrategy = errors.New("unsupported fetch strategy")

	// ErrShutdownTimeout is returned by Shutdown when the deadline passes
	// before every worker has returned.
	ErrShutdownTimeout = pool.ErrShutdownTimeout
)

// State is the lifecycle state of an executor.
type State int32

const (
	StateCreated State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config holds executor configuration.
type Config struct {
	// Name labels the pool in metrics and logs.
	Name string

	// Workers is the number of concurrently running tasks (default: 10).
	Workers int
}

// DefaultConfig returns the default executor configuration.
func DefaultConfig() Config {
	return Config{
		Name:    "executor",
		Workers: 10,
	}
}

// Executor owns one worker pool for its open lifetime.
type Executor struct {
	config Config
	logger zerolog.Logger

	mu    sync.Mutex
	state State
	pool  *pool.Pool
}

// NewExecutor creates an executor in StateCreated. No goroutine is started
// before Open.
func NewExecutor(cfg Config) *Executor {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.Name == "" {
		cfg.Name = def.Name
	}

	return &Executor{
		config: cfg,
		logger: logging.NewLogger("executor").With().Str("pool", cfg.Name).Logger(),
	}
}

// Run opens an executor, calls fn and closes the executor again, also when fn
// fails. The error of fn takes precedence.
func Run(ctx context.Context, cfg Config, fn func(ctx context.Context, e *Executor) error) error {
	e := NewExecutor(cfg)
	if err := e.Open(); err != nil {
		return err
	}
	defer e.Close()

	return fn(ctx, e)
}

// Open starts the worker pool.
func (e *Executor) Open() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateCreated {
		return fmt.Errorf("open executor %q: already %s", e.config.Name, e.state)
	}
	e.pool = pool.New(pool.Config{Name: e.config.Name, Workers: e.config.Workers})
	e.state = StateOpen

	e.logger.Debug().Int("workers", e.config.Workers).Msg("Executor opened")
	return nil
}

// Close rejects further work and blocks until every queued task has run and
// every worker has returned. Closing an executor that was never opened or is
// already closed is a no-op.
//
// A streaming fetch whose bounded channel is not drained keeps its page tasks
// blocked, and Close waits for them.
func (e *Executor) Close() {
	p := e.markClosed()
	if p == nil {
		return
	}
	p.Close()
	e.logger.Debug().Msg("Executor closed")
}

// Shutdown is Close with a deadline. On timeout it returns an error wrapping
// ErrShutdownTimeout; the workers are not interrupted and keep running
// detached until their current tasks finish, holding whatever those tasks
// hold.
func (e *Executor) Shutdown(ctx context.Context) error {
	p := e.markClosed()
	if p == nil {
		return nil
	}
	if err := p.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown executor %q: %w", e.config.Name, err)
	}
	return nil
}

// release starts teardown without waiting. Used by one-shot operations once
// their last task has finished.
func (e *Executor) release() {
	if p := e.markClosed(); p != nil {
		p.Release()
	}
}

// markClosed moves the executor to StateClosed and returns the pool to tear
// down, or nil if there is none.
func (e *Executor) markClosed() *pool.Pool {
	e.mu.Lock()
	defer e.mu.Unlock()

	prev := e.state
	e.state = StateClosed
	if prev != StateOpen {
		return nil
	}
	return e.pool
}

// State returns the lifecycle state.
func (e *Executor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Workers returns the configured worker count.
func (e *Executor) Workers() int { return e.config.Workers }

// Alive returns the number of worker goroutines still running. It can be
// non-zero after a Shutdown that timed out.
func (e *Executor) Alive() int {
	e.mu.Lock()
	p := e.pool
	e.mu.Unlock()

	if p == nil {
		return 0
	}
	return p.Alive()
}

// Done is closed once every worker has returned. It is nil before Open.
func (e *Executor) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pool == nil {
		return nil
	}
	return e.pool.Done()
}

// openPool returns the pool of an open executor.
func (e *Executor) openPool() (*pool.Pool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateOpen {
		return nil, fmt.Errorf("executor %q is %s: %w", e.config.Name, e.state, ErrNotOpen)
	}
	return e.pool, nil
}
