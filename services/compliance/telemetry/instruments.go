// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope for pipeline metrics.
const MeterName = "github.com/AleutianAI/CompliancePulse/services/compliance/pipeline"

// Instruments holds the OTel instruments recorded by workers and the aggregator.
//
// Description:
//
//	All record methods are nil-safe so callers can run without telemetry.
//	Metric names use the "pipeline." prefix.
//
// Thread Safety: Safe for concurrent use after creation.
type Instruments struct {
	// EventsProcessed counts events evaluated by workers.
	EventsProcessed metric.Int64Counter

	// BatchDuration records wall time of one generate-evaluate-collect cycle.
	BatchDuration metric.Float64Histogram

	// Flushes counts worker flushes by outcome (sent, dropped).
	Flushes metric.Int64Counter

	// Reports counts aggregator reports by dashboard delivery outcome.
	Reports metric.Int64Counter
}

// NewInstruments creates the instruments from meter.
//
// Inputs:
//
//	meter - Meter to create instruments from. Nil uses otel.Meter(MeterName).
//
// Outputs:
//
//	*Instruments - Ready-to-use instruments.
//	error - Non-nil if any instrument could not be created.
func NewInstruments(meter metric.Meter) (*Instruments, error) {
	if meter == nil {
		meter = otel.Meter(MeterName)
	}

	events, err := meter.Int64Counter("pipeline.events_processed",
		metric.WithDescription("Events evaluated by the rule chain"),
		metric.WithUnit("{event}"))
	if err != nil {
		return nil, fmt.Errorf("create events counter: %w", err)
	}

	duration, err := meter.Float64Histogram("pipeline.batch_duration",
		metric.WithDescription("Duration of one worker cycle"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1))
	if err != nil {
		return nil, fmt.Errorf("create batch duration histogram: %w", err)
	}

	flushes, err := meter.Int64Counter("pipeline.flushes",
		metric.WithDescription("Worker flushes to the metrics queue"))
	if err != nil {
		return nil, fmt.Errorf("create flush counter: %w", err)
	}

	reports, err := meter.Int64Counter("pipeline.reports",
		metric.WithDescription("Aggregator reports emitted"))
	if err != nil {
		return nil, fmt.Errorf("create report counter: %w", err)
	}

	return &Instruments{
		EventsProcessed: events,
		BatchDuration:   duration,
		Flushes:         flushes,
		Reports:         reports,
	}, nil
}

// RecordBatch records one worker cycle.
func (i *Instruments) RecordBatch(ctx context.Context, workerID, events int, elapsed time.Duration) {
	if i == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Int("worker", workerID))
	i.EventsProcessed.Add(ctx, int64(events), attrs)
	i.BatchDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordFlush records one worker flush.
func (i *Instruments) RecordFlush(ctx context.Context, workerID int, delivered bool) {
	if i == nil {
		return
	}
	i.Flushes.Add(ctx, 1, metric.WithAttributes(
		attribute.Int("worker", workerID),
		attribute.String("outcome", outcome(delivered)),
	))
}

// RecordReport records one aggregator report.
func (i *Instruments) RecordReport(ctx context.Context, delivered bool) {
	if i == nil {
		return
	}
	i.Reports.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome(delivered))))
}

func outcome(delivered bool) string {
	if delivered {
		return "sent"
	}
	return "dropped"
}
