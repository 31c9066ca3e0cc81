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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// StopSignal Tests
// =============================================================================

func TestStopSignal_FirstStopWins(t *testing.T) {
	s := NewStopSignal()
	assert.False(t, s.Stopped())

	select {
	case <-s.Done():
		t.Fatal("Done closed before Stop")
	default:
	}

	assert.True(t, s.Stop())
	assert.False(t, s.Stop())
	assert.True(t, s.Stopped())

	select {
	case <-s.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}
}

func TestStopSignal_ConcurrentStop(t *testing.T) {
	s := NewStopSignal()

	var wg sync.WaitGroup
	var mu sync.Mutex
	firsts := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Stop() {
				mu.Lock()
				firsts++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, firsts)
	assert.True(t, s.Stopped())
}

func TestStopSignal_Context(t *testing.T) {
	s := NewStopSignal()
	ctx, cancel := s.Context(context.Background())
	defer cancel()

	require.NoError(t, ctx.Err())
	s.Stop()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled by Stop")
	}
}

func TestStopSignal_StopOnDone(t *testing.T) {
	s := NewStopSignal()
	ctx, cancel := context.WithCancel(context.Background())
	s.StopOnDone(ctx)

	cancel()

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("signal not stopped by context")
	}
}

// =============================================================================
// Queue Tests
// =============================================================================

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue[int]()
	for i := 1; i <= 3; i++ {
		require.NoError(t, q.Send(i))
	}
	assert.Equal(t, 3, q.Len())

	v, ok := q.TryRecv()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	var got []int
	n := q.Drain(func(v int) { got = append(got, v) })
	assert.Equal(t, 2, n)
	assert.Equal(t, []int{2, 3}, got)

	_, ok = q.TryRecv()
	assert.False(t, ok)
	assert.Equal(t, 0, q.Drain(func(int) {}))
}

func TestQueue_SendAfterCloseIsDropped(t *testing.T) {
	q := NewQueue[string]()
	require.NoError(t, q.Send("kept"))

	q.Close()
	q.Close()
	assert.True(t, q.Closed())

	err := q.Send("late")
	assert.ErrorIs(t, err, ErrQueueClosed)

	_, ok := q.TryRecv()
	assert.False(t, ok, "close discards pending values")

	stats := q.Stats()
	assert.Equal(t, uint64(1), stats.Sent)
	assert.Equal(t, uint64(2), stats.Dropped)
	assert.Equal(t, 0, stats.Pending)
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	q := NewQueue[int]()
	const producers, perProducer = 8, 500

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				_ = q.Send(1)
			}
		}()
	}

	sum := 0
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	for {
		q.Drain(func(v int) { sum += v })
		select {
		case <-done:
			q.Drain(func(v int) { sum += v })
			assert.Equal(t, producers*perProducer, sum)
			return
		default:
		}
	}
}

func TestQueue_DrainDoesNotHoldLock(t *testing.T) {
	q := NewQueue[int]()
	require.NoError(t, q.Send(1))

	q.Drain(func(int) {
		// A send from inside the callback would deadlock if the lock were held.
		require.NoError(t, q.Send(2))
	})

	assert.Equal(t, 1, q.Len())
}
