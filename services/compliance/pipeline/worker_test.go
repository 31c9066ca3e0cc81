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
	"testing"
	"time"

	"github.com/AleutianAI/CompliancePulse/services/compliance/event"
	"github.com/AleutianAI/CompliancePulse/services/compliance/metrics"
	"github.com/AleutianAI/CompliancePulse/services/compliance/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// replay evaluates cycles batches from a fresh generator with the same seed
// and returns the merged snapshot a worker should have produced.
func replay(seed uint64, batchSize, cycles int) metrics.Snapshot {
	gen := event.NewGenerator(seed)
	chain := rules.NewChain()

	var want metrics.Snapshot
	var batch []event.Event
	for i := 0; i < cycles; i++ {
		batch = gen.Generate(batch, batchSize)
		chain.Apply(batch)
		want.Add(metrics.Collect(batch))
	}
	return want
}

func drainAll(q *Queue[metrics.Snapshot]) (metrics.Snapshot, int) {
	var got metrics.Snapshot
	n := q.Drain(func(s metrics.Snapshot) { got.Add(s) })
	return got, n
}

func TestWorker_FlushesEveryTenCycles(t *testing.T) {
	q := NewQueue[metrics.Snapshot]()
	w := NewWorker(WorkerConfig{BatchSize: 4, Generator: event.NewGenerator(3)}, q)
	ctx := context.Background()

	for i := 0; i < 9; i++ {
		w.Step(ctx)
	}
	assert.Equal(t, 0, q.Len(), "no flush before the tenth cycle")
	assert.Equal(t, uint64(36), w.Pending().TotalEvents)

	w.Step(ctx)
	assert.Equal(t, 1, q.Len())
	assert.True(t, w.Pending().IsEmpty(), "accumulator resets after flush")

	got, _ := drainAll(q)
	assert.Equal(t, uint64(40), got.TotalEvents)
}

func TestWorker_ShutdownLosesNothing(t *testing.T) {
	const seed, batchSize, cycles = 11, 7, 13

	q := NewQueue[metrics.Snapshot]()
	w := NewWorker(WorkerConfig{BatchSize: batchSize, Generator: event.NewGenerator(seed)}, q)
	ctx := context.Background()

	for i := 0; i < cycles; i++ {
		w.Step(ctx)
	}
	w.Drain(ctx)

	got, flushes := drainAll(q)
	assert.Equal(t, 2, flushes, "one periodic flush plus the residual")
	assert.Equal(t, replay(seed, batchSize, cycles), got)

	stats := w.Stats()
	assert.Equal(t, uint64(cycles), stats.Cycles)
	assert.Equal(t, uint64(cycles*batchSize), stats.Events)
	assert.Equal(t, uint64(2), stats.Flushes)
	assert.Zero(t, stats.Dropped)
}

func TestWorker_DrainEmptyAccumulatorSendsNothing(t *testing.T) {
	q := NewQueue[metrics.Snapshot]()
	w := NewWorker(WorkerConfig{BatchSize: 2, FlushEvery: 1, Generator: event.NewGenerator(1)}, q)

	w.Step(context.Background())
	require.Equal(t, 1, q.Len())

	w.Drain(context.Background())
	assert.Equal(t, 1, q.Len())
}

func TestWorker_ClosedQueueDropsAndContinues(t *testing.T) {
	q := NewQueue[metrics.Snapshot]()
	q.Close()

	w := NewWorker(WorkerConfig{BatchSize: 3, FlushEvery: 2, Generator: event.NewGenerator(5)}, q)
	for i := 0; i < 6; i++ {
		w.Step(context.Background())
	}

	stats := w.Stats()
	assert.Equal(t, uint64(6), stats.Cycles)
	assert.Equal(t, uint64(3), stats.Dropped)
	assert.Zero(t, stats.Flushes)
	assert.True(t, w.Pending().IsEmpty())
}

func TestWorker_Defaults(t *testing.T) {
	w := NewWorker(WorkerConfig{BatchSize: -5}, NewQueue[metrics.Snapshot]())
	assert.Equal(t, 1, w.batchSize)
	assert.Equal(t, uint64(DefaultFlushEvery), w.flushEvery)
	assert.NotNil(t, w.gen)
	assert.NotNil(t, w.chain)
}

func TestWorker_RunStopsAndFlushesResidual(t *testing.T) {
	q := NewQueue[metrics.Snapshot]()
	w := NewWorker(WorkerConfig{BatchSize: 5, FlushEvery: 1000, Generator: event.NewGenerator(9)}, q)
	stop := NewStopSignal()

	done := make(chan struct{})
	go func() {
		w.Run(stop)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	stop.Stop()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}

	got, _ := drainAll(q)
	stats := w.Stats()
	assert.Equal(t, stats.Events, got.TotalEvents, "every evaluated event reaches the queue")
	assert.Equal(t, replay(9, 5, int(stats.Cycles)), got)
}

func TestWorker_LimiterCancelledByStop(t *testing.T) {
	q := NewQueue[metrics.Snapshot]()
	// One event per hour: the second WaitN blocks until stop cancels it.
	limiter := rate.NewLimiter(rate.Every(time.Hour), 4)
	w := NewWorker(WorkerConfig{BatchSize: 4, Generator: event.NewGenerator(2), Limiter: limiter}, q)
	stop := NewStopSignal()

	done := make(chan struct{})
	go func() {
		w.Run(stop)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	stop.Stop()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("paced worker did not stop")
	}

	assert.Equal(t, uint64(1), w.Stats().Cycles)
	got, _ := drainAll(q)
	assert.Equal(t, uint64(4), got.TotalEvents)
}
