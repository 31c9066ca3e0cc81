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

import (
	"time"
)

// ViolationPoint is the lifetime violation triple recorded at one report.
type ViolationPoint struct {
	EUAct    uint64 `json:"eu_act"`
	GDPR     uint64 `json:"gdpr"`
	Internal uint64 `json:"internal"`
}

// Report is what the aggregator publishes once per reporting interval.
//
// # Description
//
// Totals is a copy of the lifetime snapshot. The series are copies of the
// aggregator's history windows, so a Report can be handed to another
// goroutine without sharing memory.
type Report struct {
	// RunID identifies the process that produced the report.
	RunID string `json:"run_id"`

	// Interval is the 1-based report sequence number.
	Interval uint64 `json:"interval"`

	GeneratedAt time.Time     `json:"generated_at"`
	Elapsed     time.Duration `json:"elapsed_ns"`

	Totals Snapshot `json:"totals"`

	// Throughput is events/second over the interval. It is approximate:
	// workers flush on their own cadence.
	Throughput float64 `json:"throughput"`

	RateHistory      []float64        `json:"rate_history"`
	ViolationHistory []ViolationPoint `json:"violation_history"`
}

// CompliancePercentage is a convenience for Totals.CompliancePercentage.
func (r Report) CompliancePercentage() float64 {
	return r.Totals.CompliancePercentage()
}

// RiskDistribution is a convenience for Totals.RiskDistribution.
func (r Report) RiskDistribution() [3]float64 {
	return r.Totals.RiskDistribution()
}

// Throughput converts an event count over elapsed wall time into events/second.
//
// Returns 0 when elapsed is not positive.
func Throughput(events uint64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(events) / elapsed.Seconds()
}

// =============================================================================
// History
// =============================================================================

// History holds the bounded throughput and violation series.
//
// # Thread Safety
//
// NOT safe for concurrent use. Owned by the aggregator.
type History struct {
	rates      *Window[float64]
	violations *Window[ViolationPoint]
}

// NewHistory creates series bounded to size entries each.
func NewHistory(size int) *History {
	return &History{
		rates:      NewWindow[float64](size),
		violations: NewWindow[ViolationPoint](size),
	}
}

// Record appends one interval: the throughput and total's violation triple.
func (h *History) Record(throughput float64, total Snapshot) {
	h.rates.Push(throughput)
	h.violations.Push(ViolationPoint{
		EUAct:    total.EUActViolations,
		GDPR:     total.GDPRViolations,
		Internal: total.InternalViolations,
	})
}

// Rates returns the throughput series, oldest first.
func (h *History) Rates() []float64 {
	return h.rates.Values()
}

// Violations returns the violation series, oldest first.
func (h *History) Violations() []ViolationPoint {
	return h.violations.Values()
}

// Len returns the number of recorded intervals still held.
func (h *History) Len() int {
	return h.rates.Len()
}
