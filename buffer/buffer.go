// Package buffer hands items from many producer goroutines to a single
// consumer.
//
// The queue is unbounded: Push never blocks and never drops, so a stalled
// consumer grows memory without limit. Len exposes the backlog so callers
// can at least observe it.
package buffer

import (
	"sync"

	"github.com/eapache/queue/v2"
)

// Buffer is an unbounded FIFO guarded by a single mutex, with a condition
// variable signaled on every push.
type Buffer[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  *queue.Queue[T]
	closed bool
}

// New creates an empty Buffer.
func New[T any]() *Buffer[T] {
	b := &Buffer[T]{items: queue.New[T]()}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Push appends item and wakes at most one blocked Drain.
func (b *Buffer[T]) Push(item T) {
	b.mu.Lock()
	b.items.Add(item)
	b.mu.Unlock()
	b.cond.Signal()
}

// Drain removes and returns up to limit items in insertion order, or all of
// them when limit <= 0. When the buffer is empty it returns nil right away,
// unless blocking is set, in which case it waits for a Push or Close.
func (b *Buffer[T]) Drain(limit int, blocking bool) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if blocking {
		for b.items.Length() == 0 && !b.closed {
			b.cond.Wait()
		}
	}

	n := b.items.Length()
	if n == 0 {
		return nil
	}
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]T, n)
	for i := range out {
		out[i] = b.items.Remove()
	}
	return out
}

// Len returns the number of queued items.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.items.Length()
}

// Close releases every blocked Drain and makes later blocking drains return
// immediately. Pushes keep working so items that arrive during shutdown can
// still be drained.
func (b *Buffer[T]) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.cond.Broadcast()
}
