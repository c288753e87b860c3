package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrGroupSealed is returned when adding a task to a group after Supervise.
var ErrGroupSealed = errors.New("group sealed")

// Group tracks the tasks of one logical operation on a shared pool.
//
// Tasks are added with Go. Supervise seals the group and starts a
// coordinating goroutine that waits for every task, then runs the completion
// callback exactly once. Neither call blocks.
type Group struct {
	pool   *Pool
	id     string
	label  string
	start  time.Time
	logger zerolog.Logger

	mu        sync.Mutex
	wg        sync.WaitGroup
	sealed    bool
	submitted int
	failures  atomic.Int64

	done chan struct{}
}

// NewGroup creates a task group on p. The label names the operation in log
// lines; every group also gets a unique operation id.
func (p *Pool) NewGroup(label string) *Group {
	id := uuid.NewString()
	return &Group{
		pool:   p,
		id:     id,
		label:  label,
		start:  time.Now(),
		logger: p.logger.With().Str("operation_id", id).Str("operation", label).Logger(),
		done:   make(chan struct{}),
	}
}

// ID returns the operation id.
func (g *Group) ID() string { return g.id }

// Logger returns a logger carrying the operation id.
func (g *Group) Logger() *zerolog.Logger { return &g.logger }

// Go submits task to the pool as part of the group.
func (g *Group) Go(task Task) error {
	if task == nil {
		panic("task must be non-nil")
	}

	g.mu.Lock()
	if g.sealed {
		g.mu.Unlock()
		return ErrGroupSealed
	}
	g.wg.Add(1)
	g.submitted++
	g.mu.Unlock()

	err := g.pool.Submit(func() error {
		defer g.wg.Done()
		err := safeRun(task)
		if err != nil {
			g.failures.Add(1)
		}
		return err
	})
	if err != nil {
		g.mu.Lock()
		g.submitted--
		g.mu.Unlock()
		g.wg.Done()
		return err
	}
	return nil
}

// Supervise seals the group and runs onDone in a dedicated goroutine once
// every task has finished, successfully or not. Calling it again has no
// effect.
func (g *Group) Supervise(onDone func()) {
	g.mu.Lock()
	if g.sealed {
		g.mu.Unlock()
		return
	}
	g.sealed = true
	submitted := g.submitted
	g.mu.Unlock()

	go func() {
		defer close(g.done)
		g.wg.Wait()

		g.logger.Debug().
			Int("tasks", submitted).
			Int64("failures", g.failures.Load()).
			Dur("duration", time.Since(g.start)).
			Msg("Operation tasks finished")

		if onDone != nil {
			onDone()
		}
	}()
}

// Done is closed after the Supervise callback has returned.
func (g *Group) Done() <-chan struct{} {
	return g.done
}

// Wait blocks until the Supervise callback has returned or ctx is done.
func (g *Group) Wait(ctx context.Context) error {
	select {
	case <-g.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submitted returns the number of tasks accepted by the pool.
func (g *Group) Submitted() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.submitted
}

// Failures returns the number of tasks that returned an error or panicked.
func (g *Group) Failures() int {
	return int(g.failures.Load())
}
