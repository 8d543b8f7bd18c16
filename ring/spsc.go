// Copyright © 2024 Vortex Studio.

package ring

import "sync/atomic"

// SPSCQueue is a bounded, lock-free single-producer/single-consumer queue
// of uniquely-owned values of type T, capacity N fixed at construction
// (spec 4.C). The head (consumer) and tail (producer) indices are
// maintained as separate atomics, each only ever written by its own side,
// giving the acquire/release pairing the single-writer discipline needs
// without an explicit mutex.
type SPSCQueue[T any] struct {
	buf  []T
	mask uint64
	head atomic.Uint64 // next slot to pop; advanced by the consumer only.
	tail atomic.Uint64 // next slot to push; advanced by the producer only.
}

// NewSPSCQueue returns a queue with capacity rounded up to the next power
// of two (so index wrap is a mask, not a modulo).
func NewSPSCQueue[T any](capacity int) *SPSCQueue[T] {
	cap := ceilPow2(capacity)
	return &SPSCQueue[T]{
		buf:  make([]T, cap),
		mask: uint64(cap - 1),
	}
}

// Cap returns the queue's fixed capacity.
func (q *SPSCQueue[T]) Cap() int { return len(q.buf) }

// Len returns the number of currently queued values. Safe to call from
// either side; may be stale by the time the caller acts on it.
func (q *SPSCQueue[T]) Len() int {
	return int(q.tail.Load() - q.head.Load())
}

// TryPush appends v if the queue is not full. Producer-only.
func (q *SPSCQueue[T]) TryPush(v T) bool {
	tail := q.tail.Load()
	head := q.head.Load()
	if tail-head >= uint64(len(q.buf)) {
		return false
	}
	q.buf[tail&q.mask] = v
	q.tail.Store(tail + 1)
	return true
}

// TryPop removes and returns the front value, if any. Consumer-only.
func (q *SPSCQueue[T]) TryPop() (T, bool) {
	var zero T
	head := q.head.Load()
	tail := q.tail.Load()
	if head == tail {
		return zero, false
	}
	v := q.buf[head&q.mask]
	q.buf[head&q.mask] = zero
	q.head.Store(head + 1)
	return v, true
}

// ForcePush pushes v, dropping the oldest queued value to make room if
// the queue is full (spec 4.C: "force_push: overwrite-oldest semantics").
// Returns true if an existing value was dropped to make room.
func (q *SPSCQueue[T]) ForcePush(v T) (dropped bool) {
	if q.TryPush(v) {
		return false
	}
	_, _ = q.TryPop()
	q.TryPush(v)
	return true
}
