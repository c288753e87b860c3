package parallel

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/Sternrassler/c8y-parallel/pkg/document"
	"github.com/Sternrassler/c8y-parallel/pkg/pool"
	"github.com/Sternrassler/c8y-parallel/pkg/sink"
)

// Task is an arbitrary unit of work. Inputs are captured by the closure; ctx
// is the context passed to RunTasks.
type Task[T any] func(ctx context.Context) (T, error)

type slot[T any] struct {
	value T
	ok    bool
}

// Deferred is the handle of a task batch. Its accessors block until every
// task has finished, then aggregate the successful results in submission
// order. Failed tasks contribute nothing.
type Deferred[T any] struct {
	group *pool.Group

	mu    sync.Mutex
	slots []slot[T]

	once    sync.Once
	results []T
}

// RunTasks submits every task produced by tasks and returns without waiting
// for any of them. Task errors are logged with the task index and absorbed.
//
// If the executor stops accepting work midway, the tasks submitted so far
// still run and the error is returned alongside the handle.
func RunTasks[T any](ctx context.Context, e *Executor, tasks iter.Seq[Task[T]]) (*Deferred[T], error) {
	p, err := e.openPool()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	operationsStarted.WithLabelValues(kindTasks).Inc()

	d := &Deferred[T]{group: p.NewGroup(kindTasks)}
	logger := d.group.Logger()

	var submitErr error
	index := 0
	for task := range tasks {
		i := index
		index++

		d.mu.Lock()
		d.slots = append(d.slots, slot[T]{})
		d.mu.Unlock()

		err := d.group.Go(func() error {
			v, err := task(ctx)
			if err != nil {
				logger.Warn().Err(err).Int("task_index", i).Msg("Task failed")
				return fmt.Errorf("task %d: %w", i, err)
			}
			d.mu.Lock()
			d.slots[i] = slot[T]{value: v, ok: true}
			d.mu.Unlock()
			return nil
		})
		if err != nil {
			submitErr = fmt.Errorf("submit task %d: %w", i, err)
			break
		}
	}

	d.group.Supervise(func() {
		operationDuration.WithLabelValues(kindTasks).Observe(time.Since(start).Seconds())
		logger.Info().
			Int("tasks", d.group.Submitted()).
			Int("failed", d.group.Failures()).
			Dur("duration", time.Since(start)).
			Msg("Tasks complete")
	})

	return d, submitErr
}

// RunTaskList is RunTasks over a fixed list.
func RunTaskList[T any](ctx context.Context, e *Executor, tasks ...Task[T]) (*Deferred[T], error) {
	return RunTasks(ctx, e, slices.Values(tasks))
}

// ID returns the operation id used in log lines.
func (d *Deferred[T]) ID() string { return d.group.ID() }

// Wait blocks until every task has finished or ctx is done.
func (d *Deferred[T]) Wait(ctx context.Context) error {
	return d.group.Wait(ctx)
}

// Done is closed once every task has finished.
func (d *Deferred[T]) Done() <-chan struct{} {
	return d.group.Done()
}

// Submitted returns the number of accepted tasks.
func (d *Deferred[T]) Submitted() int { return d.group.Submitted() }

// Failures returns the number of tasks that failed or panicked. It is final
// once Wait has returned nil.
func (d *Deferred[T]) Failures() int { return d.group.Failures() }

// AsList returns the successful results in submission order.
func (d *Deferred[T]) AsList(ctx context.Context) ([]T, error) {
	if err := d.Wait(ctx); err != nil {
		return nil, err
	}

	d.once.Do(func() {
		d.mu.Lock()
		defer d.mu.Unlock()

		d.results = make([]T, 0, len(d.slots))
		for _, s := range d.slots {
			if s.ok {
				d.results = append(d.results, s.value)
			}
		}
	})
	return slices.Clone(d.results), nil
}

// AsRecords projects every successful result through mapping.
func (d *Deferred[T]) AsRecords(ctx context.Context, mapping document.Mapping) ([]map[string]any, error) {
	items, err := d.AsList(ctx)
	if err != nil {
		return nil, err
	}
	return sink.Records(items, mapping), nil
}

// AsTable arranges the successful results as a table.
func (d *Deferred[T]) AsTable(ctx context.Context, opts sink.TableOptions) (*sink.Table, error) {
	items, err := d.AsList(ctx)
	if err != nil {
		return nil, err
	}
	return sink.NewTable(items, opts)
}
