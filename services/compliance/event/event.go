// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package event defines the simulated AI-usage event and its generator.
//
// # Description
//
// An Event is one unit of AI-service usage: which service was called (and
// its vendor), which department called it and how sensitive the data was.
// The rule chain records pass/fail per compliance rule in the event's
// Compliance register and attaches a risk Assessment.
//
// Events are plain values owned by a single worker. The worker reuses one
// batch buffer across cycles, so nothing in this package allocates per event.
//
// # Thread Safety
//
// Events and Generators are not safe for concurrent use. Each worker owns
// its own Generator and batch.
package event

import "strings"

// =============================================================================
// Service & Usage
// =============================================================================

// Service describes the AI service an event was sent to.
type Service struct {
	Name   ServiceName `json:"name"`
	Vendor Vendor      `json:"vendor"`
}

// Usage describes who used the service and with what data.
type Usage struct {
	Department Department `json:"department"`

	// Sensitivity is the data sensitivity on a 0-100 scale.
	Sensitivity uint8 `json:"sensitivity"`
}

// =============================================================================
// Compliance Register
// =============================================================================

// Rule names one bit of the compliance register.
type Rule uint8

const (
	// RuleEUAct is the EU AI Act rule.
	RuleEUAct Rule = 1 << iota

	// RuleGDPR is the GDPR rule.
	RuleGDPR

	// RuleInternalPolicy is the company internal-policy rule.
	RuleInternalPolicy
)

// Rules lists the compliance rules in register order.
var Rules = [3]Rule{RuleEUAct, RuleGDPR, RuleInternalPolicy}

// String returns the rule's display name.
func (r Rule) String() string {
	switch r {
	case RuleEUAct:
		return "EU AI Act"
	case RuleGDPR:
		return "GDPR"
	case RuleInternalPolicy:
		return "Internal Policy"
	default:
		return "unknown"
	}
}

// Compliance is the per-event compliance register. A set bit means compliant.
type Compliance uint8

// AllCompliant is the register every event starts from.
const AllCompliant = Compliance(RuleEUAct | RuleGDPR | RuleInternalPolicy)

// Has reports whether the event is compliant with r.
func (c Compliance) Has(r Rule) bool {
	return c&Compliance(r) != 0
}

// Set marks the event compliant with r.
func (c *Compliance) Set(r Rule) {
	*c |= Compliance(r)
}

// Clear marks the event as violating r.
func (c *Compliance) Clear(r Rule) {
	*c &^= Compliance(r)
}

// Assign sets r when compliant is true and clears it otherwise.
func (c *Compliance) Assign(r Rule, compliant bool) {
	if compliant {
		c.Set(r)
	} else {
		c.Clear(r)
	}
}

// Violations returns the rules the register marks as violated, in register order.
func (c Compliance) Violations() []Rule {
	var out []Rule
	for _, r := range Rules {
		if !c.Has(r) {
			out = append(out, r)
		}
	}
	return out
}

// =============================================================================
// Risk
// =============================================================================

// RiskFactor indexes one risk contributor. The index doubles as the bucket
// in the risk-factor distribution.
type RiskFactor uint8

const (
	FactorEUAct RiskFactor = iota
	FactorGDPR
	FactorInternal
	FactorSensitiveData
	FactorPublicModel
)

var riskFactorNames = [NumRiskFactors]string{
	"EU AI Act non-compliance",
	"GDPR non-compliance",
	"Internal policy violation",
	"High sensitivity data",
	"Public model usage",
}

// String returns the factor's description.
func (f RiskFactor) String() string {
	if int(f) < len(riskFactorNames) {
		return riskFactorNames[f]
	}
	return "unknown"
}

// RiskFactorNames returns the ordered factor descriptions.
func RiskFactorNames() []string {
	return riskFactorNames[:]
}

// FactorSet is a 5-bit set of fired risk factors.
type FactorSet uint8

// Add marks f as fired.
func (s *FactorSet) Add(f RiskFactor) {
	*s |= 1 << f
}

// Has reports whether f fired.
func (s FactorSet) Has(f RiskFactor) bool {
	return s&(1<<f) != 0
}

// Factors returns the fired factors in index order.
func (s FactorSet) Factors() []RiskFactor {
	var out []RiskFactor
	for f := RiskFactor(0); f < NumRiskFactors; f++ {
		if s.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// String joins the fired factor descriptions with ", ".
func (s FactorSet) String() string {
	factors := s.Factors()
	if len(factors) == 0 {
		return "none"
	}
	names := make([]string, len(factors))
	for i, f := range factors {
		names[i] = f.String()
	}
	return strings.Join(names, ", ")
}

// Tier classifies a risk score.
type Tier uint8

const (
	TierLow Tier = iota
	TierMedium
	TierHigh
)

const (
	// HighRiskThreshold: scores strictly above are high risk.
	HighRiskThreshold = 70

	// MediumRiskThreshold: scores strictly above (and not high) are medium risk.
	MediumRiskThreshold = 30

	// MaxScore caps the additive risk score.
	MaxScore = 100
)

// TierOf classifies score: >70 high, 31-70 medium, <=30 low.
func TierOf(score uint8) Tier {
	switch {
	case score > HighRiskThreshold:
		return TierHigh
	case score > MediumRiskThreshold:
		return TierMedium
	default:
		return TierLow
	}
}

// String returns "low", "medium" or "high".
func (t Tier) String() string {
	switch t {
	case TierHigh:
		return "high"
	case TierMedium:
		return "medium"
	default:
		return "low"
	}
}

// Assessment is the risk derived from a compliance register and usage.
type Assessment struct {
	Score   uint8     `json:"score"`
	Factors FactorSet `json:"factors"`
}

// Tier classifies the assessment's score.
func (a Assessment) Tier() Tier {
	return TierOf(a.Score)
}

// =============================================================================
// Event
// =============================================================================

// Event is one simulated AI-usage event.
//
// The risk assessment is optional: it is present iff the full rule chain has
// run on the event since it was last reset.
type Event struct {
	Service    Service
	Usage      Usage
	Compliance Compliance

	risk     Assessment
	assessed bool
}

// New returns an event with the given attributes and an all-compliant register.
func New(service Service, usage Usage) Event {
	return Event{Service: service, Usage: usage, Compliance: AllCompliant}
}

// Reset restores the register to all-compliant and drops any assessment.
func (e *Event) Reset() {
	e.Compliance = AllCompliant
	e.risk = Assessment{}
	e.assessed = false
}

// Risk returns the attached assessment and whether one is present.
func (e *Event) Risk() (Assessment, bool) {
	return e.risk, e.assessed
}

// SetRisk attaches a, replacing any prior assessment.
func (e *Event) SetRisk(a Assessment) {
	e.risk = a
	e.assessed = true
}
