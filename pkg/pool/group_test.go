package pool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestGroup_SuperviseRunsOnceAfterAllTasks(t *testing.T) {
	chk := require.New(t)
	p := New(Config{Name: "group", Workers: 4})
	defer p.Close()

	g := p.NewGroup("test")
	_, err := uuid.Parse(g.ID())
	chk.NoError(err)

	var finished atomic.Int32
	for range 40 {
		chk.NoError(g.Go(func() error {
			time.Sleep(2 * time.Millisecond)
			finished.Add(1)
			return nil
		}))
	}

	var calls atomic.Int32
	var seenAtDone int32
	g.Supervise(func() {
		seenAtDone = finished.Load()
		calls.Add(1)
	})
	// a second Supervise is ignored
	g.Supervise(func() { calls.Add(1) })

	chk.NoError(g.Wait(context.Background()))
	chk.EqualValues(1, calls.Load())
	chk.EqualValues(40, seenAtDone)
	chk.Equal(40, g.Submitted())
	chk.Equal(0, g.Failures())
}

func TestGroup_SuperviseDoesNotBlock(t *testing.T) {
	chk := require.New(t)
	p := New(Config{Name: "nonblocking", Workers: 1})
	defer p.Close()

	g := p.NewGroup("slow")
	block := make(chan struct{})
	chk.NoError(g.Go(func() error {
		<-block
		return nil
	}))

	returned := make(chan struct{})
	go func() {
		g.Supervise(nil)
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		chk.Fail("Supervise blocked the caller")
	}

	select {
	case <-g.Done():
		chk.Fail("group finished before its task")
	default:
	}

	close(block)
	chk.NoError(g.Wait(context.Background()))
}

func TestGroup_FailuresAreCountedAndAbsorbed(t *testing.T) {
	chk := require.New(t)
	p := New(Config{Name: "failures", Workers: 3})
	defer p.Close()

	g := p.NewGroup("mixed")
	chk.NoError(g.Go(func() error { return errors.New("page failed") }))
	chk.NoError(g.Go(func() error { panic("bad page") }))
	chk.NoError(g.Go(func() error { return nil }))

	done := make(chan struct{})
	g.Supervise(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		chk.Fail("completion callback not called")
	}
	chk.Equal(2, g.Failures())
	chk.Equal(3, g.Submitted())
}

func TestGroup_EmptyGroupCompletes(t *testing.T) {
	p := New(Config{Name: "empty", Workers: 1})
	defer p.Close()

	g := p.NewGroup("empty")
	called := make(chan struct{})
	g.Supervise(func() { close(called) })

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("empty group never completed")
	}
}

func TestGroup_GoAfterSupervise(t *testing.T) {
	p := New(Config{Name: "sealed", Workers: 1})
	defer p.Close()

	g := p.NewGroup("sealed")
	g.Supervise(nil)

	if err := g.Go(func() error { return nil }); !errors.Is(err, ErrGroupSealed) {
		t.Errorf("Go() after Supervise error = %v, want ErrGroupSealed", err)
	}
}

func TestGroup_GoOnClosedPool(t *testing.T) {
	chk := require.New(t)
	p := New(Config{Name: "closed", Workers: 1})
	p.Close()

	g := p.NewGroup("late")
	chk.ErrorIs(g.Go(func() error { return nil }), ErrClosed)
	chk.Equal(0, g.Submitted())

	// the rejected task must not hold the group open
	g.Supervise(nil)
	chk.NoError(g.Wait(context.Background()))
}

func TestGroup_WaitHonoursContext(t *testing.T) {
	p := New(Config{Name: "wait", Workers: 1})
	defer p.Close()

	g := p.NewGroup("unsealed")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := g.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want DeadlineExceeded", err)
	}
}
