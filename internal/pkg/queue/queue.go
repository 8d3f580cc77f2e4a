// Package queue provides an unbounded FIFO queue with a blocking, cancellable Pop.
package queue

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// ErrClosed is returned by Push after Close, and by Pop once a closed queue is empty.
var ErrClosed = errors.New("queue closed")

// Queue is an unbounded FIFO. Push never blocks. Use New to create one.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	// signal has capacity one and is poked on every Push
	signal chan struct{}
	done   chan struct{}
}

// New creates an empty Queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Push appends item to the tail of the queue.
func (q *Queue[T]) Push(item T) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.poke()
	return nil
}

// TryPop removes the head of the queue without waiting.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pop()
}

// Pop waits for an item. Items pushed before Close are still returned after it;
// once they are exhausted Pop returns ErrClosed.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	for {
		q.mu.Lock()
		item, ok := q.pop()
		closed := q.closed
		q.mu.Unlock()
		if ok {
			return item, nil
		}
		if closed {
			var empty T
			return empty, ErrClosed
		}
		select {
		case <-ctx.Done():
			var empty T
			return empty, ctx.Err()
		case <-q.signal:
		case <-q.done:
		}
	}
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops the queue from accepting items. It is idempotent.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

// Closed reports whether Close has been called.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *Queue[T]) pop() (T, bool) {
	if len(q.items) == 0 {
		var empty T
		return empty, false
	}
	item := q.items[0]
	var empty T
	q.items[0] = empty
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return item, true
}

func (q *Queue[T]) poke() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
