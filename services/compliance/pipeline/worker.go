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
	"time"

	"github.com/AleutianAI/CompliancePulse/pkg/logging"
	"github.com/AleutianAI/CompliancePulse/services/compliance/event"
	"github.com/AleutianAI/CompliancePulse/services/compliance/metrics"
	"github.com/AleutianAI/CompliancePulse/services/compliance/rules"
	"github.com/AleutianAI/CompliancePulse/services/compliance/telemetry"
	"golang.org/x/time/rate"
)

// DefaultFlushEvery is the number of cycles between worker flushes.
const DefaultFlushEvery = 10

// WorkerStats counts what a worker did over its lifetime.
type WorkerStats struct {
	ID      int    `json:"id"`
	Cycles  uint64 `json:"cycles"`
	Events  uint64 `json:"events"`
	Flushes uint64 `json:"flushes"`
	Dropped uint64 `json:"dropped"`
}

// WorkerConfig configures one worker.
type WorkerConfig struct {
	// ID labels logs and telemetry.
	ID int

	// BatchSize is the number of events per cycle. Values below 1 become 1.
	BatchSize int

	// FlushEvery is the number of cycles between flushes. Default: 10.
	FlushEvery int

	// Generator supplies events. Default: a randomly seeded generator.
	Generator *event.Generator

	// Chain evaluates each batch. Default: rules.NewChain().
	Chain *rules.Chain

	// Limiter, when set, paces the worker to its share of the target rate.
	Limiter *rate.Limiter

	Logger      *logging.Logger
	Instruments *telemetry.Instruments
}

// Worker generates, evaluates and aggregates batches on its own goroutine.
//
// # Description
//
// One cycle is Generating → Evaluating → Collecting → Merging →
// MaybeFlushing. Run checks the stop signal before every cycle; a cycle in
// progress always completes, so no event is evaluated partially. On stop the
// worker flushes its residual accumulator exactly once (if non-empty) and
// returns.
//
// # Thread Safety
//
// A Worker is owned by one goroutine. Stats may be read after Run returns.
type Worker struct {
	id         int
	batchSize  int
	flushEvery uint64

	gen     *event.Generator
	chain   *rules.Chain
	out     Sender[metrics.Snapshot]
	limiter *rate.Limiter

	logger      *logging.Logger
	instruments *telemetry.Instruments

	batch []event.Event
	acc   metrics.Snapshot
	stats WorkerStats
}

// NewWorker creates a worker that flushes to out.
func NewWorker(cfg WorkerConfig, out Sender[metrics.Snapshot]) *Worker {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.FlushEvery < 1 {
		cfg.FlushEvery = DefaultFlushEvery
	}
	if cfg.Generator == nil {
		cfg.Generator = event.NewRandomGenerator()
	}
	if cfg.Chain == nil {
		cfg.Chain = rules.NewChain()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}

	return &Worker{
		id:          cfg.ID,
		batchSize:   cfg.BatchSize,
		flushEvery:  uint64(cfg.FlushEvery),
		gen:         cfg.Generator,
		chain:       cfg.Chain,
		out:         out,
		limiter:     cfg.Limiter,
		logger:      cfg.Logger.With("worker_id", cfg.ID),
		instruments: cfg.Instruments,
		batch:       make([]event.Event, 0, cfg.BatchSize),
		stats:       WorkerStats{ID: cfg.ID},
	}
}

// Run loops until stop is set, then drains and returns.
func (w *Worker) Run(stop *StopSignal) {
	ctx, cancel := stop.Context(context.Background())
	defer cancel()

	w.logger.Debug("worker started", "batch_size", w.batchSize)

	for !stop.Stopped() {
		if w.limiter != nil {
			if err := w.limiter.WaitN(ctx, w.batchSize); err != nil {
				// Cancelled by stop; the loop condition ends the worker.
				continue
			}
		}
		w.Step(ctx)
	}

	w.Drain(ctx)
	w.logger.Debug("worker drained",
		"cycles", w.stats.Cycles,
		"events", w.stats.Events,
		"flushes", w.stats.Flushes,
		"dropped", w.stats.Dropped,
	)
}

// Step runs one full cycle and flushes on every FlushEvery-th cycle.
func (w *Worker) Step(ctx context.Context) {
	start := time.Now()

	// Generating: fresh attributes, all-compliant registers, no risk.
	w.batch = w.gen.Generate(w.batch, w.batchSize)

	// Evaluating: stage order is fixed by the chain.
	w.chain.Apply(w.batch)

	// Collecting + Merging.
	w.acc.Add(metrics.Collect(w.batch))

	w.stats.Cycles++
	w.stats.Events += uint64(len(w.batch))
	w.instruments.RecordBatch(ctx, w.id, len(w.batch), time.Since(start))

	// MaybeFlushing.
	if w.stats.Cycles%w.flushEvery == 0 {
		w.flush(ctx)
	}
}

// Drain flushes a non-empty accumulator. Called once when the worker stops.
func (w *Worker) Drain(ctx context.Context) {
	w.flush(ctx)
}

// Pending returns the accumulated but not yet flushed snapshot.
func (w *Worker) Pending() metrics.Snapshot {
	return w.acc
}

// Stats returns lifetime counters.
func (w *Worker) Stats() WorkerStats {
	return w.stats
}

// flush sends the accumulator and resets it. A closed queue drops the
// snapshot; the worker keeps going.
func (w *Worker) flush(ctx context.Context) {
	if w.acc.IsEmpty() {
		return
	}

	err := w.out.Send(w.acc)
	delivered := err == nil
	if delivered {
		w.stats.Flushes++
	} else {
		w.stats.Dropped++
		w.logger.Debug("metrics flush dropped", "events", w.acc.TotalEvents, "error", err)
	}
	w.instruments.RecordFlush(ctx, w.id, delivered)

	w.acc = metrics.Snapshot{}
}
