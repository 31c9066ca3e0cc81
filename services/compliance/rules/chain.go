// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rules implements the ordered compliance rule chain.
//
// # Description
//
// Four stages run over every event of a batch in a fixed order:
//
//  1. EU AI Act      - clears the EU-Act bit for sensitive data sent to the
//     high-risk vendor
//  2. GDPR           - clears the GDPR bit for sensitivity >= 50
//  3. Internal policy - restricts the finance department to approved services
//  4. Risk           - derives factors and a score from the register above
//
// The risk stage reads the bits written by the first three, so the order is
// part of the chain's contract. The rules are illustrative placeholders, not
// legal advice.
//
// # Thread Safety
//
// Stages are stateless. A Chain is safe for concurrent use as long as each
// goroutine passes its own batch.
package rules

import (
	"github.com/AleutianAI/CompliancePulse/services/compliance/event"
)

// =============================================================================
// Thresholds & Weights
// =============================================================================

const (
	// EUActSensitivityThreshold: high-risk vendor usage above this violates the EU AI Act.
	EUActSensitivityThreshold = 70

	// GDPRSensitivityThreshold: usage at or above this violates GDPR.
	GDPRSensitivityThreshold = 50

	// SensitiveDataThreshold: usage above this fires the sensitive-data factor.
	SensitiveDataThreshold = 80
)

// Weight is the score contribution of each risk factor, indexed by event.RiskFactor.
var Weight = [event.NumRiskFactors]uint8{
	event.FactorEUAct:         40,
	event.FactorGDPR:          30,
	event.FactorInternal:      20,
	event.FactorSensitiveData: 10,
	event.FactorPublicModel:   5,
}

// =============================================================================
// Stage
// =============================================================================

// Stage is one step of the rule chain.
type Stage interface {
	// Name identifies the stage in logs and the rules listing.
	Name() string

	// Apply evaluates the stage on a single event. It never fails.
	Apply(e *event.Event)
}

// EUActStage checks the EU AI Act rule.
type EUActStage struct{}

// Name implements Stage.
func (EUActStage) Name() string { return "eu_ai_act" }

// Apply clears the EU-Act bit iff vendor is the high-risk vendor and
// sensitivity exceeds EUActSensitivityThreshold.
func (EUActStage) Apply(e *event.Event) {
	violates := e.Service.Vendor == event.HighRiskVendor &&
		e.Usage.Sensitivity > EUActSensitivityThreshold
	e.Compliance.Assign(event.RuleEUAct, !violates)
}

// GDPRStage checks the GDPR rule.
type GDPRStage struct{}

// Name implements Stage.
func (GDPRStage) Name() string { return "gdpr" }

// Apply sets the GDPR bit iff sensitivity is below GDPRSensitivityThreshold.
func (GDPRStage) Apply(e *event.Event) {
	e.Compliance.Assign(event.RuleGDPR, e.Usage.Sensitivity < GDPRSensitivityThreshold)
}

// InternalPolicyStage checks the internal usage policy.
type InternalPolicyStage struct{}

// Name implements Stage.
func (InternalPolicyStage) Name() string { return "internal_policy" }

// Apply restricts the finance department to the approved services. Every
// other department is compliant.
func (InternalPolicyStage) Apply(e *event.Event) {
	if e.Usage.Department != event.FinanceDepartment {
		e.Compliance.Set(event.RuleInternalPolicy)
		return
	}
	e.Compliance.Assign(event.RuleInternalPolicy, event.IsFinanceApproved(e.Service.Name))
}

// RiskStage derives the risk assessment from the current register.
type RiskStage struct{}

// Name implements Stage.
func (RiskStage) Name() string { return "risk_assessment" }

// Apply attaches Assess(e), replacing any previous assessment.
func (RiskStage) Apply(e *event.Event) {
	e.SetRisk(Assess(e))
}

// Assess computes factors and score from e's register and usage.
//
// # Description
//
// Scores are additive over the fired factors and clamped to event.MaxScore.
// Nothing subtracts, so the clamp is one-sided. Assess is pure: calling it
// twice on the same register gives the same result.
func Assess(e *event.Event) event.Assessment {
	var factors event.FactorSet

	if !e.Compliance.Has(event.RuleEUAct) {
		factors.Add(event.FactorEUAct)
	}
	if !e.Compliance.Has(event.RuleGDPR) {
		factors.Add(event.FactorGDPR)
	}
	if !e.Compliance.Has(event.RuleInternalPolicy) {
		factors.Add(event.FactorInternal)
	}
	if e.Usage.Sensitivity > SensitiveDataThreshold {
		factors.Add(event.FactorSensitiveData)
	}
	if e.Service.Vendor == event.HighRiskVendor {
		factors.Add(event.FactorPublicModel)
	}

	score := 0
	for _, f := range factors.Factors() {
		score += int(Weight[f])
	}
	if score > event.MaxScore {
		score = event.MaxScore
	}

	return event.Assessment{Score: uint8(score), Factors: factors}
}

// =============================================================================
// Chain
// =============================================================================

// Chain runs its stages in order over a batch.
type Chain struct {
	stages []Stage
}

// NewChain returns the standard four-stage chain.
func NewChain() *Chain {
	return &Chain{stages: []Stage{
		EUActStage{},
		GDPRStage{},
		InternalPolicyStage{},
		RiskStage{},
	}}
}

// Stages returns the stages in evaluation order.
func (c *Chain) Stages() []Stage {
	out := make([]Stage, len(c.stages))
	copy(out, c.stages)
	return out
}

// Apply runs each stage over the whole batch before moving to the next stage.
func (c *Chain) Apply(batch []event.Event) {
	for _, stage := range c.stages {
		for i := range batch {
			stage.Apply(&batch[i])
		}
	}
}

// Evaluate runs every stage on a single event.
func (c *Chain) Evaluate(e *event.Event) {
	for _, stage := range c.stages {
		stage.Apply(e)
	}
}
