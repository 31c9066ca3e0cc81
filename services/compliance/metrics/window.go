// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package metrics

// DefaultHistorySize is the number of reporting intervals kept per series.
const DefaultHistorySize = 30

// Window is a bounded FIFO series backed by a circular buffer.
//
// # Description
//
// Push is O(1). Once the window is full the oldest value is evicted, so Len
// never exceeds Cap and Values always holds the most recent pushes in order.
//
// # Thread Safety
//
// NOT safe for concurrent use. Only the aggregator appends to a Window.
type Window[T any] struct {
	data  []T
	head  int // next write position
	count int
}

// NewWindow creates a window holding at most capacity values.
//
// A non-positive capacity falls back to DefaultHistorySize.
func NewWindow[T any](capacity int) *Window[T] {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &Window[T]{data: make([]T, capacity)}
}

// Push appends v, evicting the oldest value when full.
func (w *Window[T]) Push(v T) {
	w.data[w.head] = v
	w.head = (w.head + 1) % len(w.data)
	if w.count < len(w.data) {
		w.count++
	}
}

// Values returns a copy of the series from oldest to newest.
func (w *Window[T]) Values() []T {
	out := make([]T, w.count)
	start := (w.head - w.count + len(w.data)) % len(w.data)
	for i := 0; i < w.count; i++ {
		out[i] = w.data[(start+i)%len(w.data)]
	}
	return out
}

// Newest returns the most recently pushed value.
func (w *Window[T]) Newest() (T, bool) {
	var zero T
	if w.count == 0 {
		return zero, false
	}
	return w.data[(w.head-1+len(w.data))%len(w.data)], true
}

// Len returns the number of values held.
func (w *Window[T]) Len() int {
	return w.count
}

// Cap returns the maximum number of values held.
func (w *Window[T]) Cap() int {
	return len(w.data)
}

// Clear drops every value.
func (w *Window[T]) Clear() {
	var zero T
	for i := range w.data {
		w.data[i] = zero
	}
	w.head = 0
	w.count = 0
}
