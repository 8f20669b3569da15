// Package handoff moves immutable values between pipeline stages.
//
// A Mailbox keeps only the most recent value: when the consumer is slower
// than the producer, stale values are replaced instead of queued. A FIFO
// keeps every value in order with no bound and no backpressure.
package handoff

import (
	"context"
	"errors"
	"sync"

	"github.com/AaronLay10/pcassist/internal/metrics"
)

// ErrClosed is returned by Take once a queue is closed and drained.
var ErrClosed = errors.New("handoff: queue closed")

// Queue is a single-producer single-consumer hand-off. Put never blocks.
type Queue[T any] interface {
	// Put offers a value. It reports false if the queue is closed.
	Put(v T) bool
	// Take blocks until a value is available, the queue is closed and
	// drained, or ctx is done.
	Take(ctx context.Context) (T, error)
	// TryTake returns a value if one is ready without blocking.
	TryTake() (T, bool)
	// Len returns the number of values waiting.
	Len() int
	// Close stops further puts. Values already queued can still be taken.
	Close()
}

// Policy selects a queue implementation.
type Policy string

const (
	Latest Policy = "latest"
	FIFO   Policy = "fifo"
)

// New creates a queue with the given policy. name labels its metrics.
// Unknown policies fall back to Latest.
func New[T any](policy Policy, name string) Queue[T] {
	if policy == FIFO {
		return NewFIFO[T](name)
	}
	return NewMailbox[T](name)
}

// signal is a level-triggered wakeup shared by both queue types.
type signal struct {
	ch chan struct{}
}

func newSignal() signal {
	return signal{ch: make(chan struct{}, 1)}
}

func (s signal) notify() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// Mailbox is a single-slot latest-wins queue.
type Mailbox[T any] struct {
	name string

	mu     sync.Mutex
	value  T
	full   bool
	closed bool
	ready  signal
}

// NewMailbox creates an empty mailbox.
func NewMailbox[T any](name string) *Mailbox[T] {
	return &Mailbox[T]{name: name, ready: newSignal()}
}

func (m *Mailbox[T]) Put(v T) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	replaced := m.full
	m.value = v
	m.full = true
	m.mu.Unlock()

	metrics.Handoff.WithLabelValues(m.name, "put").Inc()
	if replaced {
		metrics.Handoff.WithLabelValues(m.name, "dropped").Inc()
	}
	m.ready.notify()
	return true
}

func (m *Mailbox[T]) TryTake() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var zero T
	if !m.full {
		return zero, false
	}
	v := m.value
	m.value = zero
	m.full = false
	return v, true
}

func (m *Mailbox[T]) Take(ctx context.Context) (T, error) {
	for {
		if v, ok := m.TryTake(); ok {
			return v, nil
		}
		m.mu.Lock()
		closed := m.closed
		m.mu.Unlock()
		if closed {
			var zero T
			return zero, ErrClosed
		}

		select {
		case <-m.ready.ch:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.full {
		return 1
	}
	return 0
}

func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.ready.notify()
}

// FIFOQueue is an unbounded in-order queue.
type FIFOQueue[T any] struct {
	name string

	mu     sync.Mutex
	items  []T
	closed bool
	ready  signal
}

// NewFIFO creates an empty unbounded FIFO.
func NewFIFO[T any](name string) *FIFOQueue[T] {
	return &FIFOQueue[T]{name: name, ready: newSignal()}
}

func (q *FIFOQueue[T]) Put(v T) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, v)
	q.mu.Unlock()

	metrics.Handoff.WithLabelValues(q.name, "put").Inc()
	q.ready.notify()
	return true
}

func (q *FIFOQueue[T]) TryTake() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return v, true
}

func (q *FIFOQueue[T]) Take(ctx context.Context) (T, error) {
	for {
		if v, ok := q.TryTake(); ok {
			// Another value may still be waiting behind this one.
			if q.Len() > 0 {
				q.ready.notify()
			}
			return v, nil
		}
		q.mu.Lock()
		closed := q.closed
		q.mu.Unlock()
		if closed {
			var zero T
			return zero, ErrClosed
		}

		select {
		case <-q.ready.ch:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

func (q *FIFOQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *FIFOQueue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.ready.notify()
}
