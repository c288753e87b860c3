package parallel_test

import (
	"context"
	"errors"
	"iter"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/c8y-parallel/pkg/document"
	"github.com/Sternrassler/c8y-parallel/pkg/parallel"
	"github.com/Sternrassler/c8y-parallel/pkg/sink"
	"github.com/stretchr/testify/require"
)

// sleepTasks yields n tasks that sleep for d and return their index.
func sleepTasks(n int, d time.Duration) iter.Seq[parallel.Task[int]] {
	return func(yield func(parallel.Task[int]) bool) {
		for i := range n {
			task := func(context.Context) (int, error) {
				time.Sleep(d)
				return i, nil
			}
			if !yield(task) {
				return
			}
		}
	}
}

func TestRunTasks_RealConcurrency(t *testing.T) {
	chk := require.New(t)
	ctx := context.Background()

	err := parallel.Run(ctx, parallel.Config{Workers: 10}, func(ctx context.Context, e *parallel.Executor) error {
		start := time.Now()
		d, err := parallel.RunTasks(ctx, e, sleepTasks(100, 100*time.Millisecond))
		chk.NoError(err)

		got, err := d.AsList(ctx)
		elapsed := time.Since(start)
		chk.NoError(err)
		chk.Len(got, 100)

		chk.GreaterOrEqual(elapsed, time.Second)
		chk.Less(elapsed, 2*time.Second, "100 x 100ms on 10 workers should take about 1s")
		return nil
	})
	chk.NoError(err)
}

func TestRunTasks_DoesNotBlock(t *testing.T) {
	chk := require.New(t)
	e := parallel.NewExecutor(parallel.Config{Workers: 1})
	chk.NoError(e.Open())
	defer e.Close()

	start := time.Now()
	d, err := parallel.RunTasks(context.Background(), e, sleepTasks(5, 50*time.Millisecond))
	chk.NoError(err)
	chk.Less(time.Since(start), 50*time.Millisecond)

	chk.NoError(d.Wait(context.Background()))
	chk.Equal(5, d.Submitted())
}

func TestRunTaskList_SubmissionOrder(t *testing.T) {
	chk := require.New(t)
	ctx := context.Background()

	err := parallel.Run(ctx, parallel.Config{Workers: 10}, func(ctx context.Context, e *parallel.Executor) error {
		var tasks []parallel.Task[int]
		for i := range 100 {
			tasks = append(tasks, func(context.Context) (int, error) {
				// later tasks finish first
				time.Sleep(time.Duration(100-i) * 100 * time.Microsecond)
				return i, nil
			})
		}

		d, err := parallel.RunTaskList(ctx, e, tasks...)
		chk.NoError(err)

		got, err := d.AsList(ctx)
		chk.NoError(err)
		for i, v := range got {
			chk.Equal(i, v)
		}
		chk.Len(got, 100)

		// memoised: a second call returns the same result
		again, err := d.AsList(ctx)
		chk.NoError(err)
		chk.Equal(got, again)
		return nil
	})
	chk.NoError(err)
}

func TestRunTaskList_SmallBatch(t *testing.T) {
	ctx := context.Background()
	e := parallel.NewExecutor(parallel.Config{Workers: 2})
	require.NoError(t, e.Open())
	defer e.Close()

	add := func(a, b int) parallel.Task[int] {
		return func(context.Context) (int, error) { return a + b, nil }
	}
	d, err := parallel.RunTaskList(ctx, e, add(5, 7), add(6, 7))
	require.NoError(t, err)

	got, err := d.AsList(ctx)
	require.NoError(t, err)
	require.Equal(t, []int{12, 13}, got)
}

func TestRunTasks_FailuresAreAbsorbed(t *testing.T) {
	chk := require.New(t)
	ctx := context.Background()
	e := parallel.NewExecutor(parallel.Config{Workers: 3})
	chk.NoError(e.Open())
	defer e.Close()

	d, err := parallel.RunTaskList[string](ctx, e,
		func(context.Context) (string, error) { return "a", nil },
		func(context.Context) (string, error) { return "", errors.New("device offline") },
		func(context.Context) (string, error) { panic("corrupt payload") },
		func(context.Context) (string, error) { return "d", nil },
	)
	chk.NoError(err)

	got, err := d.AsList(ctx)
	chk.NoError(err)
	chk.Equal([]string{"a", "d"}, got)
	chk.Equal(2, d.Failures())
	chk.Equal(4, d.Submitted())
}

func TestRunTasks_LazySequenceIsConsumedOnce(t *testing.T) {
	chk := require.New(t)
	ctx := context.Background()
	var produced atomic.Int32

	seq := func(yield func(parallel.Task[int]) bool) {
		for i := range 10 {
			produced.Add(1)
			if !yield(func(context.Context) (int, error) { return i * i, nil }) {
				return
			}
		}
	}

	err := parallel.Run(ctx, parallel.Config{Workers: 4}, func(ctx context.Context, e *parallel.Executor) error {
		d, err := parallel.RunTasks[int](ctx, e, seq)
		chk.NoError(err)
		got, err := d.AsList(ctx)
		chk.NoError(err)
		chk.Equal([]int{0, 1, 4, 9, 16, 25, 36, 49, 64, 81}, got)
		return nil
	})
	chk.NoError(err)
	chk.EqualValues(10, produced.Load())
}

func TestDeferred_AsTable(t *testing.T) {
	chk := require.New(t)
	ctx := context.Background()
	e := parallel.NewExecutor(parallel.Config{Workers: 10})
	chk.NoError(e.Open())
	defer e.Close()

	var tasks []parallel.Task[[]any]
	for i := range 100 {
		tasks = append(tasks, func(context.Context) ([]any, error) {
			return []any{i, i * 2}, nil
		})
	}
	d, err := parallel.RunTaskList(ctx, e, tasks...)
	chk.NoError(err)

	table, err := d.AsTable(ctx, sink.TableOptions{Columns: []string{"i", "j"}})
	chk.NoError(err)

	rows, cols := table.Shape()
	chk.Equal(100, rows)
	chk.Equal(2, cols)
	col, ok := table.Column("i")
	chk.True(ok)
	for r, v := range col {
		chk.Equal(r, v)
	}

	positional, err := d.AsTable(ctx, sink.TableOptions{})
	chk.NoError(err)
	chk.Equal([]string{"c0", "c1"}, positional.Columns())
}

func TestDeferred_AsRecords(t *testing.T) {
	chk := require.New(t)
	ctx := context.Background()
	e := parallel.NewExecutor(parallel.Config{Workers: 2})
	chk.NoError(e.Open())
	defer e.Close()

	doc := func(id string, extra map[string]any) parallel.Task[map[string]any] {
		return func(context.Context) (map[string]any, error) {
			m := map[string]any{"id": id}
			for k, v := range extra {
				m[k] = v
			}
			return m, nil
		}
	}
	d, err := parallel.RunTaskList(ctx, e,
		doc("1", map[string]any{"creationTime": "t1"}),
		doc("2", nil),
	)
	chk.NoError(err)

	recs, err := d.AsRecords(ctx, document.Mapping{
		{Name: "id", Path: "id"},
		{Name: "created", Path: "creation_time", Default: "unknown"},
	})
	chk.NoError(err)
	chk.Equal([]map[string]any{
		{"id": "1", "created": "t1"},
		{"id": "2", "created": "unknown"},
	}, recs)
}

type device map[string]any

func TestDeferred_NamedDocumentType(t *testing.T) {
	chk := require.New(t)
	ctx := context.Background()
	e := parallel.NewExecutor(parallel.Config{Workers: 2})
	chk.NoError(e.Open())
	defer e.Close()

	d, err := parallel.RunTaskList(ctx, e,
		func(context.Context) (device, error) { return device{"name": "x", "lastUpdated": "t1"}, nil },
		func(context.Context) (device, error) { return device{"name": "y"}, nil },
	)
	chk.NoError(err)

	mapping := document.MapPaths("n", "name").With("updated", "last_updated", "never")
	recs, err := d.AsRecords(ctx, mapping)
	chk.NoError(err)
	chk.Equal([]map[string]any{
		{"n": "x", "updated": "t1"},
		{"n": "y", "updated": "never"},
	}, recs)

	table, err := d.AsTable(ctx, sink.TableOptions{Mapping: mapping})
	chk.NoError(err)
	col, ok := table.Column("n")
	chk.True(ok)
	chk.Equal([]any{"x", "y"}, col)
}

func TestDeferred_WaitHonoursContext(t *testing.T) {
	chk := require.New(t)
	e := parallel.NewExecutor(parallel.Config{Workers: 1})
	chk.NoError(e.Open())
	defer e.Close()

	d, err := parallel.RunTasks(context.Background(), e, sleepTasks(1, 200*time.Millisecond))
	chk.NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = d.AsList(ctx)
	chk.ErrorIs(err, context.DeadlineExceeded)

	got, err := d.AsList(context.Background())
	chk.NoError(err)
	chk.Equal([]int{0}, got)
}
