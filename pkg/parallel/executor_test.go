package parallel_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Sternrassler/c8y-parallel/pkg/parallel"
	"github.com/stretchr/testify/require"
)

func TestExecutor_Lifecycle(t *testing.T) {
	chk := require.New(t)
	e := parallel.NewExecutor(parallel.Config{Workers: 3})

	chk.Equal(parallel.StateCreated, e.State())
	chk.Equal(0, e.Alive())
	chk.Nil(e.Done())

	chk.NoError(e.Open())
	chk.Equal(parallel.StateOpen, e.State())
	chk.Equal(3, e.Alive())
	chk.Error(e.Open(), "opening twice must fail")

	e.Close()
	chk.Equal(parallel.StateClosed, e.State())
	chk.Equal(0, e.Alive())

	// idempotent
	e.Close()
	chk.NoError(e.Shutdown(context.Background()))
}

func TestExecutor_Defaults(t *testing.T) {
	e := parallel.NewExecutor(parallel.Config{})
	if e.Workers() != parallel.DefaultConfig().Workers {
		t.Errorf("Workers() = %d, want %d", e.Workers(), parallel.DefaultConfig().Workers)
	}
}

func TestExecutor_CloseWithoutOpen(t *testing.T) {
	e := parallel.NewExecutor(parallel.DefaultConfig())
	e.Close()

	if e.State() != parallel.StateClosed {
		t.Errorf("State() = %v, want closed", e.State())
	}
	_, err := parallel.RunTaskList[int](context.Background(), e, func(context.Context) (int, error) { return 1, nil })
	if !errors.Is(err, parallel.ErrNotOpen) {
		t.Errorf("RunTaskList() error = %v, want ErrNotOpen", err)
	}
}

func TestRun_NoWorkerSurvivesScope(t *testing.T) {
	chk := require.New(t)
	var captured *parallel.Executor

	err := parallel.Run(context.Background(), parallel.Config{Workers: 8}, func(ctx context.Context, e *parallel.Executor) error {
		captured = e
		d, err := parallel.RunTasks(ctx, e, sleepTasks(20, 10*time.Millisecond))
		if err != nil {
			return err
		}
		// deliberately not waiting on d
		_ = d
		return nil
	})
	chk.NoError(err)

	chk.Equal(parallel.StateClosed, captured.State())
	chk.Equal(0, captured.Alive())
	select {
	case <-captured.Done():
	default:
		chk.Fail("workers still running after scope exit")
	}
}

func TestRun_ClosesOnError(t *testing.T) {
	chk := require.New(t)
	boom := errors.New("boom")
	var captured *parallel.Executor

	err := parallel.Run(context.Background(), parallel.DefaultConfig(), func(_ context.Context, e *parallel.Executor) error {
		captured = e
		return boom
	})
	chk.ErrorIs(err, boom)
	chk.Equal(parallel.StateClosed, captured.State())
	chk.Equal(0, captured.Alive())
}

func TestExecutor_ShutdownTimeout(t *testing.T) {
	chk := require.New(t)
	e := parallel.NewExecutor(parallel.Config{Workers: 2})
	chk.NoError(e.Open())

	release := make(chan struct{})
	_, err := parallel.RunTaskList[int](context.Background(), e, func(context.Context) (int, error) {
		<-release
		return 1, nil
	})
	chk.NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err = e.Shutdown(ctx)
	chk.ErrorIs(err, parallel.ErrShutdownTimeout)
	chk.Equal(parallel.StateClosed, e.State())
	chk.Greater(e.Alive(), 0, "detached workers keep running after a timed out shutdown")

	close(release)
	select {
	case <-e.Done():
	case <-time.After(time.Second):
		chk.Fail("detached workers never finished")
	}
	chk.Equal(0, e.Alive())
}

func TestExecutor_ShutdownInTime(t *testing.T) {
	e := parallel.NewExecutor(parallel.Config{Workers: 2})
	require.NoError(t, e.Open())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if e.Alive() != 0 {
		t.Errorf("Alive() = %d, want 0", e.Alive())
	}
}

func TestStateString(t *testing.T) {
	tests := map[parallel.State]string{
		parallel.StateCreated: "created",
		parallel.StateOpen:    "open",
		parallel.StateClosed:  "closed",
		parallel.State(9):     "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}
