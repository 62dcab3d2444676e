// Package queue is the bounded FIFO that hands accepted connections from the
// acceptor to the workers.
package queue

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/vladiibine/httpd/errors"
)

var (
	// ErrClosed is returned by Push and Pop once the queue is closed
	ErrClosed = stderrors.New("queue closed")
	// ErrFull is returned by TryPush when no slot is free
	ErrFull = stderrors.New("queue full")
)

// Queue is a bounded FIFO backed by a buffered channel. Every pushed item is
// received by exactly one Pop. Pop suspends the caller until an item arrives
// or the queue is closed.
type Queue[T any] struct {
	items     chan T
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a queue holding at most capacity items
func New[T any](capacity int) (*Queue[T], error) {
	if capacity < 1 {
		return nil, errors.NewInvalidArgumentError(fmt.Sprintf("queue capacity must be >= 1, got %d", capacity))
	}

	return &Queue[T]{
		items: make(chan T, capacity),
		done:  make(chan struct{}),
	}, nil
}

// Push appends v, waiting while the queue is full
func (q *Queue[T]) Push(ctx context.Context, v T) error {
	// a closed queue must refuse even when a slot is free
	select {
	case <-q.done:
		return ErrClosed
	default:
	}

	select {
	case q.items <- v:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPush appends v without waiting
func (q *Queue[T]) TryPush(v T) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}

	select {
	case q.items <- v:
		return nil
	default:
		return ErrFull
	}
}

// Pop removes the oldest item, waiting until one is available. After Close,
// Pop returns ErrClosed; items still buffered are left for Drain.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	var zero T

	select {
	case <-q.done:
		return zero, ErrClosed
	default:
	}

	select {
	case v := <-q.items:
		return v, nil
	case <-q.done:
		return zero, ErrClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Close wakes every blocked Push and Pop. It is safe to call more than once.
func (q *Queue[T]) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}

// Closed reports whether Close has been called
func (q *Queue[T]) Closed() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}

// Drain removes and returns every buffered item without waiting
func (q *Queue[T]) Drain() []T {
	var out []T
	for {
		select {
		case v := <-q.items:
			out = append(out, v)
		default:
			return out
		}
	}
}

// Len returns the number of buffered items
func (q *Queue[T]) Len() int {
	return len(q.items)
}

// Cap returns the capacity
func (q *Queue[T]) Cap() int {
	return cap(q.items)
}
