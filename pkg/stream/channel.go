// Package stream provides the FIFO conduit between page/task producers and
// result consumers.
//
// A Channel carries chunks: a streaming producer pushes one single-item chunk
// per item, a batched producer pushes one chunk per page. Close enqueues the
// end-of-stream sentinel exactly once; consumers see it only after every chunk
// pushed before it.
//
// Consumers drain with the hybrid loop: a non-blocking TryTake while a backlog
// exists, a blocking Take when the channel is empty. Drain implements it.
package stream

import (
	"context"
	"errors"
	"iter"
	"sync"

	"github.com/gammazero/deque"
)

// ErrClosed is returned when pushing to a channel whose sentinel has already
// been enqueued.
var ErrClosed = errors.New("stream: channel closed")

// Status is the outcome of a non-blocking take.
type Status int

const (
	// Empty means nothing is pending and the sentinel has not been reached.
	Empty Status = iota

	// Ready means a chunk was returned.
	Ready

	// End means the sentinel was reached: nothing will ever be delivered again.
	End
)

func (s Status) String() string {
	switch s {
	case Empty:
		return "empty"
	case Ready:
		return "ready"
	case End:
		return "end"
	default:
		return "unknown"
	}
}

// Channel is a bounded or unbounded FIFO of chunks terminated by a sentinel.
// Any number of goroutines may push; correctness of "everything before the
// sentinel" is guaranteed for a single consumer draining to completion.
type Channel[T any] struct {
	mu       sync.Mutex
	chunks   deque.Deque[[]T]
	capacity int
	closed   bool
	pushed   int
	items    int

	readable chan struct{}
	writable chan struct{}
	done     chan struct{}
}

// New creates a channel holding at most capacity pending chunks.
// A capacity <= 0 means unbounded.
func New[T any](capacity int) *Channel[T] {
	return &Channel[T]{
		capacity: capacity,
		readable: make(chan struct{}, 1),
		writable: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Capacity returns the chunk bound, or 0 for unbounded channels.
func (c *Channel[T]) Capacity() int {
	if c.capacity < 0 {
		return 0
	}
	return c.capacity
}

// Len returns the number of pending chunks.
func (c *Channel[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chunks.Len()
}

// Pushed returns the number of chunks and items pushed so far.
func (c *Channel[T]) Pushed() (chunks, items int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pushed, c.items
}

// Put pushes a single item as its own chunk, blocking while the channel is
// full.
func (c *Channel[T]) Put(ctx context.Context, item T) error {
	return c.put(ctx, []T{item})
}

// PutBatch pushes items as one chunk, blocking while the channel is full.
// An empty batch is still pushed so that every page accounts for one chunk.
func (c *Channel[T]) PutBatch(ctx context.Context, items []T) error {
	return c.put(ctx, items)
}

func (c *Channel[T]) put(ctx context.Context, chunk []T) error {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return ErrClosed
		}
		if c.hasRoomLocked() {
			c.chunks.PushBack(chunk)
			c.pushed++
			c.items += len(chunk)
			room := c.hasRoomLocked()
			c.mu.Unlock()

			notify(c.readable)
			if room {
				notify(c.writable)
			}
			return nil
		}
		c.mu.Unlock()

		select {
		case <-c.writable:
		case <-c.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Channel[T]) hasRoomLocked() bool {
	return c.capacity <= 0 || c.chunks.Len() < c.capacity
}

// Close enqueues the sentinel. It reports whether this call did so; later
// calls are no-ops. Pending chunks remain readable.
func (c *Channel[T]) Close() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	c.closed = true
	close(c.done)
	return true
}

// Closed reports whether the sentinel has been enqueued.
func (c *Channel[T]) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Done is closed once the sentinel has been enqueued. Chunks pushed before
// it may still be pending.
func (c *Channel[T]) Done() <-chan struct{} {
	return c.done
}

// TryTake pops the next chunk without blocking.
func (c *Channel[T]) TryTake() ([]T, Status) {
	c.mu.Lock()
	if c.chunks.Len() == 0 {
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return nil, End
		}
		return nil, Empty
	}
	chunk := c.chunks.PopFront()
	remaining := c.chunks.Len()
	c.mu.Unlock()

	notify(c.writable)
	if remaining > 0 {
		// pass the wake-up on to other waiting consumers
		notify(c.readable)
	}
	return chunk, Ready
}

// Take pops the next chunk, blocking until one is available. It returns
// false once the sentinel is reached; further calls keep returning false.
func (c *Channel[T]) Take(ctx context.Context) ([]T, bool, error) {
	for {
		chunk, status := c.TryTake()
		switch status {
		case Ready:
			return chunk, true, nil
		case End:
			return nil, false, nil
		}

		select {
		case <-c.readable:
		case <-c.done:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
}

// Drain hands every chunk to fn until the sentinel is reached. It prefers
// TryTake and falls back to a blocking Take only when the channel is empty.
func (c *Channel[T]) Drain(ctx context.Context, fn func(chunk []T)) error {
	for {
		chunk, status := c.TryTake()
		switch status {
		case End:
			return nil
		case Empty:
			var ok bool
			var err error
			chunk, ok, err = c.Take(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
		}
		fn(chunk)
	}
}

// All flattens the channel into an item sequence. Iteration stops at the
// sentinel or when ctx is done; callers that need to tell the two apart
// check ctx.Err().
func (c *Channel[T]) All(ctx context.Context) iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			chunk, ok, err := c.Take(ctx)
			if err != nil || !ok {
				return
			}
			for _, item := range chunk {
				if !yield(item) {
					return
				}
			}
		}
	}
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
