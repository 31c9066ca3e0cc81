// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"sync"
)

// Sender is the producer side of a best-effort queue.
type Sender[T any] interface {
	// Send enqueues v. It never blocks. It returns ErrQueueClosed once the
	// receiver has gone away; the caller drops v and carries on.
	Send(v T) error
}

// Queue is an unbounded, best-effort, multi-producer single-consumer queue.
//
// # Description
//
// Send never blocks and never applies backpressure. The consumer drains with
// TryRecv or Drain and calls Close when it stops consuming; from then on
// Send reports ErrQueueClosed. Receivers may legitimately disappear during
// shutdown, so producers must treat that error as "value dropped", never as
// fatal.
//
// # Thread Safety
//
// Send is safe from any number of goroutines. TryRecv and Drain are meant
// for a single consumer but are safe regardless.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	sent   uint64
	drops  uint64
}

// NewQueue returns an empty open queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{}
}

// Send implements Sender.
func (q *Queue[T]) Send(v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.drops++
		return ErrQueueClosed
	}
	q.items = append(q.items, v)
	q.sent++
	return nil
}

// TryRecv pops the oldest value without blocking.
func (q *Queue[T]) TryRecv() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	return v, true
}

// Drain removes every queued value and passes each to fn in send order.
//
// fn runs without the lock held, so producers are never stalled by it.
// Returns the number of values drained.
func (q *Queue[T]) Drain(fn func(T)) int {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()

	for _, v := range items {
		fn(v)
	}
	return len(items)
}

// Len returns the number of queued values.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close marks the receiver as gone and discards anything still queued.
// Close is idempotent.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.drops += uint64(len(q.items))
	q.items = nil
	q.closed = true
}

// Closed reports whether Close has been called.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// QueueStats summarises a queue's lifetime traffic.
type QueueStats struct {
	Sent    uint64
	Dropped uint64
	Pending int
}

// Stats returns lifetime counters. Dropped counts sends after Close plus
// values discarded by Close.
func (q *Queue[T]) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{Sent: q.sent, Dropped: q.drops, Pending: len(q.items)}
}
