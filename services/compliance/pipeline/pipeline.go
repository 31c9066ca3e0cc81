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
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/CompliancePulse/pkg/logging"
	"github.com/AleutianAI/CompliancePulse/services/compliance/event"
	"github.com/AleutianAI/CompliancePulse/services/compliance/metrics"
	"github.com/AleutianAI/CompliancePulse/services/compliance/rules"
	"github.com/AleutianAI/CompliancePulse/services/compliance/telemetry"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// eventsPerBatchDivisor turns a per-worker target rate into a batch size.
const eventsPerBatchDivisor = 100

// Config holds the pipeline's runtime parameters.
type Config struct {
	// Rate is the target events/second across all workers.
	Rate int

	// Workers is the number of worker goroutines. Must be positive.
	Workers int

	// Interval is the reporting interval.
	Interval time.Duration

	// FlushEvery is the number of worker cycles between flushes.
	FlushEvery int

	// HistorySize bounds the report history windows.
	HistorySize int

	// PollInterval is the aggregator's sleep between drains.
	PollInterval time.Duration

	// Pace limits each worker to Rate/Workers events/second. When false,
	// workers run as fast as they can and Rate only sizes batches.
	Pace bool

	// Seed, when non-zero, makes every worker's event stream reproducible.
	// Worker i uses Seed+i.
	Seed uint64

	// RunID is stamped on every report.
	RunID string
}

// BatchSize returns the per-cycle batch size for a rate and worker count:
// rate / workers / 100, never below 1.
func BatchSize(rate, workers int) int {
	if workers <= 0 {
		return 1
	}
	size := rate / workers / eventsPerBatchDivisor
	if size < 1 {
		return 1
	}
	return size
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithSinks registers report sinks. Sinks run on the aggregator goroutine.
func WithSinks(sinks ...ReportSink) Option {
	return func(p *Pipeline) { p.sinks = append(p.sinks, sinks...) }
}

// WithInstruments sets the otel instruments workers and the aggregator
// record into.
func WithInstruments(in *telemetry.Instruments) Option {
	return func(p *Pipeline) { p.instruments = in }
}

// WithClock overrides the aggregator clock.
func WithClock(clock func() time.Time) Option {
	return func(p *Pipeline) { p.clock = clock }
}

// Pipeline wires N workers, the aggregator and the two queues.
//
// # Description
//
// Run starts the workers, runs the aggregator on the calling goroutine and
// returns after every worker has drained. The command queue returned by
// Commands is the dashboard's input; whoever consumes it must Close it on
// exit so the aggregator's sends become drops.
//
// # Thread Safety
//
// Run may be called once. Commands and BatchSize are safe at any time.
// Stats is valid after Run returns.
type Pipeline struct {
	cfg       Config
	batchSize int

	metricsQ  *Queue[metrics.Snapshot]
	commandsQ *Queue[Command]

	logger      *logging.Logger
	sinks       []ReportSink
	instruments *telemetry.Instruments
	clock       func() time.Time

	started atomic.Bool

	mu      sync.Mutex
	workers []*Worker
	agg     *Aggregator
}

// New validates cfg and builds a pipeline.
//
// # Outputs
//
//   - *Pipeline: Ready to Run.
//   - error: ErrInvalidWorkers if cfg.Workers is not positive.
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWorkers, cfg.Workers)
	}
	if cfg.FlushEvery <= 0 {
		cfg.FlushEvery = DefaultFlushEvery
	}

	p := &Pipeline{
		cfg:       cfg,
		batchSize: BatchSize(cfg.Rate, cfg.Workers),
		metricsQ:  NewQueue[metrics.Snapshot](),
		commandsQ: NewQueue[Command](),
		logger:    logging.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Commands returns the aggregator → dashboard queue.
func (p *Pipeline) Commands() *Queue[Command] {
	return p.commandsQ
}

// BatchSize returns the per-cycle batch size.
func (p *Pipeline) BatchSize() int {
	return p.batchSize
}

// Run executes the pipeline until stop is set.
//
// # Description
//
// Workers run in an errgroup. A panicking worker is recovered, stops the
// pipeline and surfaces as ErrWorkerFailed. After the aggregator exits the
// metrics queue is closed so late worker flushes are dropped rather than
// queued forever, then every worker is joined.
//
// # Outputs
//
//   - error: nil on a clean stop, ErrAlreadyRunning on a second call, or an
//     error wrapping ErrWorkerFailed.
func (p *Pipeline) Run(stop *StopSignal) error {
	if !p.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	p.logger.Info("pipeline starting",
		"workers", p.cfg.Workers,
		"batch_size", p.batchSize,
		"rate", p.cfg.Rate,
		"interval", p.cfg.Interval.String(),
		"paced", p.cfg.Pace,
	)

	var g errgroup.Group
	p.mu.Lock()
	for i := 0; i < p.cfg.Workers; i++ {
		w := NewWorker(p.workerConfig(i), p.metricsQ)
		p.workers = append(p.workers, w)
		g.Go(guard(fmt.Sprintf("worker-%d", i), stop, p.logger, func() { w.Run(stop) }))
	}
	p.agg = NewAggregator(AggregatorConfig{
		Interval:     p.cfg.Interval,
		PollInterval: p.cfg.PollInterval,
		HistorySize:  p.cfg.HistorySize,
		RunID:        p.cfg.RunID,
		Clock:        p.clock,
		Logger:       p.logger,
		Instruments:  p.instruments,
	}, p.metricsQ, p.commandsQ, p.sinks...)
	agg := p.agg
	p.mu.Unlock()

	aggErr := guard("aggregator", stop, p.logger, func() { agg.Run(stop) })()

	p.metricsQ.Close()
	workerErr := g.Wait()

	stats := p.metricsQ.Stats()
	p.logger.Info("pipeline stopped",
		"total_events", agg.Total().TotalEvents,
		"flushes_dropped", stats.Dropped,
	)

	return errors.Join(aggErr, workerErr)
}

// Stats returns per-worker counters. Valid after Run returns.
func (p *Pipeline) Stats() []WorkerStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]WorkerStats, len(p.workers))
	for i, w := range p.workers {
		out[i] = w.Stats()
	}
	return out
}

// Total returns the aggregator's lifetime snapshot. Valid after Run returns.
func (p *Pipeline) Total() metrics.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.agg == nil {
		return metrics.Snapshot{}
	}
	return p.agg.Total()
}

func (p *Pipeline) workerConfig(id int) WorkerConfig {
	cfg := WorkerConfig{
		ID:          id,
		BatchSize:   p.batchSize,
		FlushEvery:  p.cfg.FlushEvery,
		Chain:       rules.NewChain(),
		Logger:      p.logger,
		Instruments: p.instruments,
	}
	if p.cfg.Seed != 0 {
		cfg.Generator = event.NewGenerator(p.cfg.Seed + uint64(id))
	}
	if p.cfg.Pace && p.cfg.Rate > 0 {
		perWorker := p.cfg.Rate / p.cfg.Workers
		if perWorker < 1 {
			perWorker = 1
		}
		burst := perWorker
		if burst < p.batchSize {
			burst = p.batchSize
		}
		cfg.Limiter = rate.NewLimiter(rate.Limit(perWorker), burst)
	}
	return cfg
}

// guard wraps fn with panic recovery. A panic stops the pipeline and is
// returned as ErrWorkerFailed.
func guard(name string, stop *StopSignal, logger *logging.Logger, fn func()) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("loop panicked",
					"loop", name,
					"panic", fmt.Sprint(r),
					"stack", string(debug.Stack()),
				)
				stop.Stop()
				err = fmt.Errorf("%w: %s: %v", ErrWorkerFailed, name, r)
			}
		}()
		fn()
		return nil
	}
}
