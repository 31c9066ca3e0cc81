// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package metrics aggregates evaluated events into mergeable snapshots.
//
// # Description
//
// A Snapshot is a plain value of counters and fixed-size distributions. It is
// born from Collect scanning one batch, summed into a per-worker accumulator,
// flushed across the metrics queue and summed again by the aggregator.
//
// Merge is element-wise addition, so it is associative and commutative and
// workers may flush in any order. Derived figures (compliance percentage,
// risk distribution, average sensitivity) are computed from the counters on
// demand and never stored. Historical series live in History, which only
// the aggregator touches.
//
// # Thread Safety
//
// Snapshot is a value type; copies are independent. History and Window are
// not safe for concurrent use.
package metrics

import (
	"github.com/AleutianAI/CompliancePulse/services/compliance/event"
)

// =============================================================================
// Snapshot
// =============================================================================

// Snapshot holds mergeable counters for a set of evaluated events.
type Snapshot struct {
	TotalEvents uint64 `json:"total_events"`

	EUActViolations    uint64 `json:"eu_act_violations"`
	GDPRViolations     uint64 `json:"gdpr_violations"`
	InternalViolations uint64 `json:"internal_violations"`

	HighRisk   uint64 `json:"high_risk"`
	MediumRisk uint64 `json:"medium_risk"`
	LowRisk    uint64 `json:"low_risk"`

	// SensitivitySum and SensitivitySamples derive the average. A running
	// average would compound rounding error across merges.
	SensitivitySum     uint64 `json:"sensitivity_sum"`
	SensitivitySamples uint64 `json:"sensitivity_samples"`

	Services    [event.NumServices]uint64    `json:"services"`
	Vendors     [event.NumVendors]uint64     `json:"vendors"`
	Departments [event.NumDepartments]uint64 `json:"departments"`
	RiskFactors [event.NumRiskFactors]uint64 `json:"risk_factors"`
}

// Add sums other into s in place.
func (s *Snapshot) Add(other Snapshot) {
	s.TotalEvents += other.TotalEvents
	s.EUActViolations += other.EUActViolations
	s.GDPRViolations += other.GDPRViolations
	s.InternalViolations += other.InternalViolations
	s.HighRisk += other.HighRisk
	s.MediumRisk += other.MediumRisk
	s.LowRisk += other.LowRisk
	s.SensitivitySum += other.SensitivitySum
	s.SensitivitySamples += other.SensitivitySamples

	for i := range s.Services {
		s.Services[i] += other.Services[i]
	}
	for i := range s.Vendors {
		s.Vendors[i] += other.Vendors[i]
	}
	for i := range s.Departments {
		s.Departments[i] += other.Departments[i]
	}
	for i := range s.RiskFactors {
		s.RiskFactors[i] += other.RiskFactors[i]
	}
}

// Merge returns the element-wise sum of a and b.
func Merge(a, b Snapshot) Snapshot {
	a.Add(b)
	return a
}

// IsEmpty reports whether the snapshot has seen no events.
func (s Snapshot) IsEmpty() bool {
	return s.TotalEvents == 0
}

// Violations returns the violation count for r.
func (s Snapshot) Violations(r event.Rule) uint64 {
	switch r {
	case event.RuleEUAct:
		return s.EUActViolations
	case event.RuleGDPR:
		return s.GDPRViolations
	case event.RuleInternalPolicy:
		return s.InternalViolations
	default:
		return 0
	}
}

// TotalViolations sums the three violation counters.
func (s Snapshot) TotalViolations() uint64 {
	return s.EUActViolations + s.GDPRViolations + s.InternalViolations
}

// CompliancePercentage is 100 × (1 − violations / (3 × events)).
//
// An empty snapshot is 100% compliant.
func (s Snapshot) CompliancePercentage() float64 {
	if s.TotalEvents == 0 {
		return 100.0
	}
	checks := float64(s.TotalEvents) * float64(len(event.Rules))
	return 100.0 * (1.0 - float64(s.TotalViolations())/checks)
}

// RiskDistribution returns the high, medium and low tiers as percentages of
// all events. An empty snapshot yields zeros.
func (s Snapshot) RiskDistribution() [3]float64 {
	if s.TotalEvents == 0 {
		return [3]float64{}
	}
	total := float64(s.TotalEvents)
	return [3]float64{
		float64(s.HighRisk) / total * 100.0,
		float64(s.MediumRisk) / total * 100.0,
		float64(s.LowRisk) / total * 100.0,
	}
}

// AverageSensitivity returns the mean sensitivity, 0 when there are no samples.
func (s Snapshot) AverageSensitivity() float64 {
	if s.SensitivitySamples == 0 {
		return 0
	}
	return float64(s.SensitivitySum) / float64(s.SensitivitySamples)
}

// =============================================================================
// Collector
// =============================================================================

// Collect scans a batch once and returns its snapshot.
//
// # Description
//
// Base counters (total, distributions, sensitivity, violations) count every
// event. Risk tiers and risk factors only count events that carry an
// assessment, which is every event once the rule chain has run.
func Collect(batch []event.Event) Snapshot {
	var s Snapshot

	for i := range batch {
		e := &batch[i]

		s.TotalEvents++
		s.Services[e.Service.Name]++
		s.Vendors[e.Service.Vendor]++
		s.Departments[e.Usage.Department]++
		s.SensitivitySum += uint64(e.Usage.Sensitivity)
		s.SensitivitySamples++

		if !e.Compliance.Has(event.RuleEUAct) {
			s.EUActViolations++
		}
		if !e.Compliance.Has(event.RuleGDPR) {
			s.GDPRViolations++
		}
		if !e.Compliance.Has(event.RuleInternalPolicy) {
			s.InternalViolations++
		}

		risk, ok := e.Risk()
		if !ok {
			continue
		}
		for f := event.RiskFactor(0); f < event.NumRiskFactors; f++ {
			if risk.Factors.Has(f) {
				s.RiskFactors[f]++
			}
		}
		switch risk.Tier() {
		case event.TierHigh:
			s.HighRisk++
		case event.TierMedium:
			s.MediumRisk++
		default:
			s.LowRisk++
		}
	}

	return s
}
