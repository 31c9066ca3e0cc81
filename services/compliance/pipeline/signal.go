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
	"context"
	"sync"
	"sync/atomic"
)

// StopSignal is the shared cooperative stop flag.
//
// # Description
//
// Every loop polls Stopped once per cycle; loops that sleep select on Done.
// Stop may be called from any goroutine (signal handler, dashboard quit,
// duration timer) any number of times. Only the first call changes state.
//
// # Thread Safety
//
// Safe for concurrent use.
type StopSignal struct {
	stopped atomic.Bool
	once    sync.Once
	done    chan struct{}
}

// NewStopSignal returns an unset signal.
func NewStopSignal() *StopSignal {
	return &StopSignal{done: make(chan struct{})}
}

// Stop sets the flag. It reports whether this call performed the transition.
func (s *StopSignal) Stop() bool {
	first := false
	s.once.Do(func() {
		s.stopped.Store(true)
		close(s.done)
		first = true
	})
	return first
}

// Stopped reports whether Stop has been called.
func (s *StopSignal) Stopped() bool {
	return s.stopped.Load()
}

// Done returns a channel closed when Stop is called.
func (s *StopSignal) Done() <-chan struct{} {
	return s.done
}

// Context returns a context cancelled when the signal stops or parent ends.
func (s *StopSignal) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// StopOnDone stops the signal when ctx ends, e.g. a signal.NotifyContext.
func (s *StopSignal) StopOnDone(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.done:
		}
	}()
}
