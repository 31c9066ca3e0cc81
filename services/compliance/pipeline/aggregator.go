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
	"github.com/AleutianAI/CompliancePulse/services/compliance/metrics"
	"github.com/AleutianAI/CompliancePulse/services/compliance/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultPollInterval is how long the aggregator sleeps between drains.
	DefaultPollInterval = 50 * time.Millisecond

	// DefaultReportInterval is the default reporting interval.
	DefaultReportInterval = 5 * time.Second

	tracerName = "github.com/AleutianAI/CompliancePulse/services/compliance/pipeline"
)

// AggregatorConfig configures the aggregator.
type AggregatorConfig struct {
	// Interval is the reporting interval. Default: 5s.
	Interval time.Duration

	// PollInterval bounds the sleep between drains. Default: 50ms.
	PollInterval time.Duration

	// HistorySize bounds each history series. Default: 30.
	HistorySize int

	// RunID is stamped on every report.
	RunID string

	// Clock returns the current time. Default: time.Now.
	Clock func() time.Time

	Logger      *logging.Logger
	Instruments *telemetry.Instruments
}

// Aggregator merges worker snapshots and publishes periodic reports.
//
// # Description
//
// Each cycle drains the metrics queue to empty, merging every snapshot into
// both the lifetime total and the since-last-report delta. When Interval has
// elapsed it computes throughput from the delta, appends to the history
// windows, sends UpdateMetrics on the command queue and notifies the sinks.
//
// Throughput is approximate: a worker flush can land in any later cycle.
//
// # Thread Safety
//
// Owned by a single goroutine. Total and History must not be called
// concurrently with Run.
type Aggregator struct {
	in    *Queue[metrics.Snapshot]
	out   Sender[Command]
	sinks []ReportSink

	interval     time.Duration
	pollInterval time.Duration
	runID        string
	clock        func() time.Time

	logger      *logging.Logger
	instruments *telemetry.Instruments
	tracer      trace.Tracer

	total      metrics.Snapshot
	sinceLast  metrics.Snapshot
	lastReport time.Time
	history    *metrics.History
	reports    uint64
}

// NewAggregator creates an aggregator reading in and publishing to out.
func NewAggregator(cfg AggregatorConfig, in *Queue[metrics.Snapshot], out Sender[Command], sinks ...ReportSink) *Aggregator {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultReportInterval
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}

	return &Aggregator{
		in:           in,
		out:          out,
		sinks:        sinks,
		interval:     cfg.Interval,
		pollInterval: cfg.PollInterval,
		runID:        cfg.RunID,
		clock:        cfg.Clock,
		logger:       cfg.Logger.With("component", "aggregator"),
		instruments:  cfg.Instruments,
		tracer:       otel.Tracer(tracerName),
		history:      metrics.NewHistory(cfg.HistorySize),
		lastReport:   cfg.Clock(),
	}
}

// Run drains and reports until stop is set. It exits after its current
// drain and does not wait for workers' final flushes.
func (a *Aggregator) Run(stop *StopSignal) {
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	a.lastReport = a.clock()

	for !stop.Stopped() {
		a.Drain()
		a.Tick(a.clock())

		select {
		case <-stop.Done():
		case <-ticker.C:
		}
	}

	a.logger.Debug("aggregator stopped",
		"reports", a.reports,
		"total_events", a.total.TotalEvents,
	)
}

// Drain merges every queued snapshot. Returns the number merged.
func (a *Aggregator) Drain() int {
	return a.in.Drain(func(s metrics.Snapshot) {
		a.total.Add(s)
		a.sinceLast.Add(s)
	})
}

// Tick emits a report if the interval has elapsed since the last one.
//
// # Inputs
//
//   - now: Current time.
//
// # Outputs
//
//   - metrics.Report: The emitted report.
//   - bool: False when the interval has not yet elapsed.
func (a *Aggregator) Tick(now time.Time) (metrics.Report, bool) {
	elapsed := now.Sub(a.lastReport)
	if elapsed < a.interval {
		return metrics.Report{}, false
	}

	_, span := a.tracer.Start(context.Background(), "aggregator.report")
	defer span.End()

	throughput := metrics.Throughput(a.sinceLast.TotalEvents, elapsed)
	a.history.Record(throughput, a.total)
	a.reports++

	report := metrics.Report{
		RunID:            a.runID,
		Interval:         a.reports,
		GeneratedAt:      now,
		Elapsed:          elapsed,
		Totals:           a.total,
		Throughput:       throughput,
		RateHistory:      a.history.Rates(),
		ViolationHistory: a.history.Violations(),
	}

	span.SetAttributes(
		attribute.Int64("report.interval", int64(report.Interval)),
		attribute.Int64("report.interval_events", int64(a.sinceLast.TotalEvents)),
		attribute.Float64("report.throughput", throughput),
	)

	err := a.out.Send(UpdateMetrics{Report: report})
	if err != nil {
		a.logger.Debug("dashboard gone, report dropped", "interval", report.Interval, "error", err)
	}
	a.instruments.RecordReport(context.Background(), err == nil)

	for _, sink := range a.sinks {
		sink.ObserveReport(report)
	}

	a.sinceLast = metrics.Snapshot{}
	a.lastReport = now
	return report, true
}

// Total returns the lifetime merged snapshot.
func (a *Aggregator) Total() metrics.Snapshot {
	return a.total
}

// History returns the aggregator's bounded series.
func (a *Aggregator) History() *metrics.History {
	return a.history
}
