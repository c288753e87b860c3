// Package pool provides a fixed-size goroutine pool with an unbounded FIFO
// task queue, and per-operation task groups that signal completion without
// blocking the submitter.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/c8y-parallel/pkg/logging"
	"github.com/gammazero/deque"
	"github.com/rs/zerolog"
)

var (
	// ErrClosed is returned when submitting to a pool that is closing or closed.
	ErrClosed = errors.New("pool closed")

	// ErrShutdownTimeout is returned by Shutdown when workers are still alive
	// at the deadline.
	ErrShutdownTimeout = errors.New("pool shutdown timed out")

	// ErrTaskPanic wraps the value recovered from a panicking task.
	ErrTaskPanic = errors.New("task panicked")
)

// Task is a unit of work. A returned error marks the task as failed; it is
// recorded and logged but never stops the pool.
type Task func() error

// State is the lifecycle state of a pool.
type State int32

const (
	// StateOpen accepts submissions.
	StateOpen State = iota

	// StateClosing rejects submissions and drains the queue.
	StateClosing

	// StateClosed means every worker goroutine has returned.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config holds pool configuration.
type Config struct {
	// Name labels metrics and log lines.
	Name string

	// Workers is the maximum number of concurrently running tasks.
	Workers int
}

// DefaultConfig returns the default pool configuration.
func DefaultConfig() Config {
	return Config{
		Name:    "default",
		Workers: 10,
	}
}

// Pool runs submitted tasks on a fixed number of worker goroutines. Excess
// tasks wait in submission order; completion order is unspecified.
type Pool struct {
	name    string
	workers int

	mu      sync.Mutex
	cond    *sync.Cond
	queue   deque.Deque[Task]
	state   State
	alive   int
	running int

	done   chan struct{}
	logger zerolog.Logger
}

// New starts a pool. Non-positive worker counts fall back to the default.
func New(cfg Config) *Pool {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.Name == "" {
		cfg.Name = def.Name
	}

	p := &Pool{
		name:    cfg.Name,
		workers: cfg.Workers,
		alive:   cfg.Workers,
		done:    make(chan struct{}),
		logger:  logging.NewLogger("pool").With().Str("pool", cfg.Name).Logger(),
	}
	p.cond = sync.NewCond(&p.mu)

	for i := 0; i < cfg.Workers; i++ {
		go p.worker(i)
	}

	p.logger.Debug().Int("workers", cfg.Workers).Msg("Worker pool started")
	return p
}

// Name returns the pool name.
func (p *Pool) Name() string { return p.name }

// Workers returns the configured worker count.
func (p *Pool) Workers() int { return p.workers }

// State returns the current lifecycle state.
func (p *Pool) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Alive returns the number of worker goroutines that have not returned.
func (p *Pool) Alive() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alive
}

// Running returns the number of tasks currently executing.
func (p *Pool) Running() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Pending returns the number of queued tasks not yet picked up.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Len()
}

// Done is closed once every worker has returned.
func (p *Pool) Done() <-chan struct{} {
	return p.done
}

// Submit queues a task. It never blocks.
func (p *Pool) Submit(task Task) error {
	if task == nil {
		panic("task must be non-nil")
	}

	p.mu.Lock()
	if p.state != StateOpen {
		p.mu.Unlock()
		return ErrClosed
	}
	p.queue.PushBack(task)
	p.mu.Unlock()

	p.cond.Signal()
	tasksSubmitted.WithLabelValues(p.name).Inc()
	return nil
}

// Close stops accepting tasks, runs everything already queued and blocks
// until all workers have returned.
func (p *Pool) Close() {
	p.beginClose()
	<-p.done
}

// Release starts the same teardown as Close without waiting for it.
func (p *Pool) Release() {
	p.beginClose()
}

// Shutdown starts teardown and waits until all workers have returned or ctx
// is done. On timeout it returns ErrShutdownTimeout; the workers are not
// interrupted and keep running detached until their tasks finish, so
// resources held by those tasks stay in use until then.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.beginClose()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		p.logger.Error().
			Int("alive", p.Alive()).
			Int("pending", p.Pending()).
			Msg("Pool shutdown deadline exceeded - workers left running")
		return fmt.Errorf("%w: %w", ErrShutdownTimeout, ctx.Err())
	}
}

func (p *Pool) beginClose() {
	p.mu.Lock()
	if p.state == StateOpen {
		p.state = StateClosing
		p.logger.Debug().Int("pending", p.queue.Len()).Msg("Worker pool closing")
	}
	p.mu.Unlock()
	p.cond.Broadcast()
}

// worker executes queued tasks until the pool is closing and the queue is
// empty.
func (p *Pool) worker(workerID int) {
	processed := 0
	defer func() {
		p.mu.Lock()
		p.alive--
		last := p.alive == 0
		if last {
			p.state = StateClosed
		}
		p.mu.Unlock()

		p.logger.Debug().
			Int("worker_id", workerID).
			Int("tasks_processed", processed).
			Msg("Worker stopped")

		if last {
			close(p.done)
		}
	}()

	for {
		p.mu.Lock()
		for p.queue.Len() == 0 && p.state == StateOpen {
			p.cond.Wait()
		}
		if p.queue.Len() == 0 {
			p.mu.Unlock()
			return
		}
		task := p.queue.PopFront()
		p.running++
		p.mu.Unlock()

		p.execute(workerID, task)
		processed++

		p.mu.Lock()
		p.running--
		p.mu.Unlock()
	}
}

func (p *Pool) execute(workerID int, task Task) {
	busy := workersBusy.WithLabelValues(p.name)
	busy.Inc()
	defer busy.Dec()

	start := time.Now()
	err := safeRun(task)
	taskDuration.WithLabelValues(p.name).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		tasksCompleted.WithLabelValues(p.name, outcomeSuccess).Inc()
	case errors.Is(err, ErrTaskPanic):
		tasksCompleted.WithLabelValues(p.name, outcomePanic).Inc()
		p.logger.Error().Err(err).Int("worker_id", workerID).Msg("Task panicked")
	default:
		tasksCompleted.WithLabelValues(p.name, outcomeFailure).Inc()
		p.logger.Debug().Err(err).Int("worker_id", workerID).Msg("Task failed")
	}
}

// safeRun runs task and converts a panic into an ErrTaskPanic error.
func safeRun(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTaskPanic, r)
		}
	}()
	return task()
}
