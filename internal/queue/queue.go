// Package queue provides the throttled drain queue behind metadata unboxing
// and attachment downloads: items are taken from the end (most recently
// referenced first), one batch is in flight at a time, and consecutive
// batches are spaced by a fixed delay.
package queue

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

// ErrEmpty is returned by Take on an empty queue.
var ErrEmpty = errors.New("queue is empty")

// ProcessFunc handles one batch and reports whether it issued a call. The
// inter-batch delay only applies after batches that issued one.
type ProcessFunc[T comparable] func(ctx context.Context, batch []T) (issued bool)

// Options configures a Throttled queue.
type Options struct {
	// Batch is the maximum number of items taken per drain step.
	Batch int
	// Delay separates a batch that issued a call from the next one.
	Delay time.Duration
	// Unique makes re-adding an item move it to the back instead of
	// duplicating it.
	Unique bool
}

// Throttled is a LIFO work queue with a single drain goroutine.
type Throttled[T comparable] struct {
	opts    Options
	process ProcessFunc[T]

	mu    sync.Mutex
	items []T
	// done is non-nil while a drain runs and is closed when it ends.
	done chan struct{}
}

// NewThrottled creates a queue that hands batches to process.
func NewThrottled[T comparable](opts Options, process ProcessFunc[T]) *Throttled[T] {
	if opts.Batch <= 0 {
		opts.Batch = 1
	}
	return &Throttled[T]{opts: opts, process: process}
}

// Add appends items to the back of the queue.
func (q *Throttled[T]) Add(items ...T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, it := range items {
		if q.opts.Unique {
			if i := slices.Index(q.items, it); i >= 0 {
				q.items = slices.Delete(q.items, i, i+1)
			}
		}
		q.items = append(q.items, it)
	}
}

// Len returns the number of queued items.
func (q *Throttled[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Items returns a copy of the queue, front first.
func (q *Throttled[T]) Items() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.items)
}

// Take removes up to n items from the back, keeping their queue order.
func (q *Throttled[T]) Take(n int) ([]T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.take(n)
}

func (q *Throttled[T]) take(n int) ([]T, error) {
	if len(q.items) == 0 {
		return nil, ErrEmpty
	}
	n = min(n, len(q.items))
	cut := len(q.items) - n
	batch := slices.Clone(q.items[cut:])
	q.items = q.items[:cut]
	return batch, nil
}

// Kick starts draining unless a drain is already running. It returns
// immediately.
func (q *Throttled[T]) Kick(ctx context.Context) {
	q.mu.Lock()
	if q.done != nil || len(q.items) == 0 {
		q.mu.Unlock()
		return
	}
	done := make(chan struct{})
	q.done = done
	q.mu.Unlock()

	go q.drain(ctx, done)
}

// Wait blocks until no drain is running. A drain kicked while waiting is
// waited for too.
func (q *Throttled[T]) Wait() {
	for {
		q.mu.Lock()
		done := q.done
		q.mu.Unlock()
		if done == nil {
			return
		}
		<-done
	}
}

func (q *Throttled[T]) drain(ctx context.Context, done chan struct{}) {
	for {
		q.mu.Lock()
		if ctx.Err() != nil {
			q.finish(done)
			return
		}
		batch, err := q.take(q.opts.Batch)
		if err != nil {
			q.finish(done)
			return
		}
		more := len(q.items) > 0
		q.mu.Unlock()

		issued := q.process(ctx, batch)
		if !issued || !more || q.opts.Delay <= 0 {
			continue
		}
		t := time.NewTimer(q.opts.Delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
		}
	}
}

// finish ends the drain owning done. q.mu must be held; it is released.
func (q *Throttled[T]) finish(done chan struct{}) {
	q.done = nil
	close(done)
	q.mu.Unlock()
}
