// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline runs the concurrent evaluation and aggregation loops.
//
// # Description
//
// Data flows one way:
//
//	Worker × N ──(metrics queue)──▶ Aggregator ──(command queue)──▶ dashboard
//	                                     │
//	                                     └──▶ ReportSinks (prometheus, API, influx)
//
// Workers share nothing but the stop signal and the metrics queue. Each owns
// its batch buffer, random source and accumulator. The aggregator owns the
// lifetime totals and the history windows.
//
// # Shutdown
//
// StopSignal.Stop → dashboard exits and closes the command queue →
// aggregator exits on its next cycle and closes the metrics queue → each
// worker finishes its current batch, flushes any residual accumulator and
// returns → Run joins the workers. A flush that races the aggregator's exit
// is dropped; that loss is expected.
//
// # Thread Safety
//
// Pipeline.Run must be called once. Everything else is documented per type.
package pipeline

import (
	"errors"

	"github.com/AleutianAI/CompliancePulse/services/compliance/metrics"
)

var (
	// ErrQueueClosed is returned by Send after the receiver has gone away.
	ErrQueueClosed = errors.New("pipeline: queue closed, receiver has gone away")

	// ErrInvalidWorkers is returned when the worker count is not positive.
	ErrInvalidWorkers = errors.New("pipeline: worker count must be positive")

	// ErrWorkerFailed wraps an abnormal worker or aggregator termination.
	ErrWorkerFailed = errors.New("pipeline: loop terminated abnormally")

	// ErrAlreadyRunning is returned by a second call to Pipeline.Run.
	ErrAlreadyRunning = errors.New("pipeline: already run")
)

// =============================================================================
// Dashboard Commands
// =============================================================================

// Command is a message from the aggregator to the presentation layer.
type Command interface {
	isCommand()
}

// UpdateMetrics carries a fresh report for display.
type UpdateMetrics struct {
	Report metrics.Report
}

func (UpdateMetrics) isCommand() {}

// =============================================================================
// Report Sinks
// =============================================================================

// ReportSink receives every report the aggregator emits, on the aggregator's
// goroutine. Implementations must return quickly and must not retain the
// report's slices for mutation.
type ReportSink interface {
	ObserveReport(report metrics.Report)
}

// ReportSinkFunc adapts a function to ReportSink.
type ReportSinkFunc func(report metrics.Report)

// ObserveReport implements ReportSink.
func (f ReportSinkFunc) ObserveReport(report metrics.Report) {
	f(report)
}
