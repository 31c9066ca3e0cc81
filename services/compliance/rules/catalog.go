// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rules

import (
	"fmt"
	"sync"

	"github.com/AleutianAI/CompliancePulse/services/compliance/event"
	"github.com/AleutianAI/CompliancePulse/services/compliance/rules/policy"
	"gopkg.in/yaml.v3"
)

// Severity grades a stage in the catalog.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// UnmarshalYAML rejects unknown severities.
func (s *Severity) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	switch Severity(raw) {
	case SeverityLow, SeverityMedium, SeverityHigh:
		*s = Severity(raw)
		return nil
	default:
		return fmt.Errorf("invalid severity: %q", raw)
	}
}

// StageDoc documents one chain stage.
type StageDoc struct {
	ID          string   `yaml:"id" json:"id"`
	Name        string   `yaml:"name" json:"name"`
	Rule        string   `yaml:"rule,omitempty" json:"rule,omitempty"`
	Severity    Severity `yaml:"severity" json:"severity"`
	Condition   string   `yaml:"condition" json:"condition"`
	Threshold   int      `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	Description string   `yaml:"description" json:"description"`
}

// FactorDoc documents one risk factor.
type FactorDoc struct {
	Name      string `yaml:"name" json:"name"`
	Weight    int    `yaml:"weight" json:"weight"`
	Trigger   string `yaml:"trigger" json:"trigger"`
	Threshold int    `yaml:"threshold,omitempty" json:"threshold,omitempty"`
}

// TierDoc documents one risk tier's upper bound.
type TierDoc struct {
	Tier     string `yaml:"tier" json:"tier"`
	MaxScore int    `yaml:"max_score" json:"max_score"`
}

// Catalog is the parsed rule catalog.
type Catalog struct {
	Stages  []StageDoc  `yaml:"stages" json:"stages"`
	Factors []FactorDoc `yaml:"factors" json:"factors"`
	Tiers   []TierDoc   `yaml:"tiers" json:"tiers"`
}

// Stage returns the documentation for a stage name.
func (c *Catalog) Stage(id string) (StageDoc, bool) {
	for _, s := range c.Stages {
		if s.ID == id {
			return s, true
		}
	}
	return StageDoc{}, false
}

// Factor returns the documentation for a risk factor.
func (c *Catalog) Factor(f event.RiskFactor) (FactorDoc, bool) {
	for _, d := range c.Factors {
		if d.Name == f.String() {
			return d, true
		}
	}
	return FactorDoc{}, false
}

var (
	catalogOnce sync.Once
	catalog     *Catalog
	catalogErr  error
)

// LoadCatalog parses the embedded rule catalog. The result is cached; callers
// must not modify it.
func LoadCatalog() (*Catalog, error) {
	catalogOnce.Do(func() {
		var c Catalog
		if err := yaml.Unmarshal(policy.RuleCatalog, &c); err != nil {
			catalogErr = fmt.Errorf("failed to unmarshal the embedded rule catalog: %w", err)
			return
		}
		catalog = &c
	})
	return catalog, catalogErr
}

// =============================================================================
// Explain
// =============================================================================

// Finding records why a rule or factor fired for one event.
type Finding struct {
	Stage     string   `json:"stage,omitempty"`
	Rule      string   `json:"rule,omitempty"`
	Factor    string   `json:"factor,omitempty"`
	Weight    int      `json:"weight,omitempty"`
	Severity  Severity `json:"severity,omitempty"`
	Condition string   `json:"condition"`
}

// Explanation is the detailed outcome of evaluating one event.
type Explanation struct {
	Service     string    `json:"service"`
	Vendor      string    `json:"vendor"`
	Department  string    `json:"department"`
	Sensitivity uint8     `json:"sensitivity"`
	Compliance  []string  `json:"violations"`
	Score       uint8     `json:"score"`
	Tier        string    `json:"tier"`
	Findings    []Finding `json:"findings"`
}

// Explain evaluates e through c and reports every violated rule and fired
// factor with its catalog entry.
//
// # Inputs
//
//   - e: Event to evaluate. It is mutated exactly as Evaluate would.
//
// # Outputs
//
//   - Explanation: Register, score, tier and one finding per violation/factor.
//   - error: Non-nil only if the embedded catalog is malformed.
func (c *Chain) Explain(e *event.Event) (Explanation, error) {
	cat, err := LoadCatalog()
	if err != nil {
		return Explanation{}, err
	}

	c.Evaluate(e)
	assessment, _ := e.Risk()

	out := Explanation{
		Service:     e.Service.Name.String(),
		Vendor:      e.Service.Vendor.String(),
		Department:  e.Usage.Department.String(),
		Sensitivity: e.Usage.Sensitivity,
		Compliance:  []string{},
		Score:       assessment.Score,
		Tier:        assessment.Tier().String(),
		Findings:    []Finding{},
	}

	for _, r := range e.Compliance.Violations() {
		out.Compliance = append(out.Compliance, r.String())
		doc, _ := cat.Stage(stageIDFor(r))
		out.Findings = append(out.Findings, Finding{
			Stage:     doc.ID,
			Rule:      r.String(),
			Severity:  doc.Severity,
			Condition: doc.Condition,
		})
	}
	for _, f := range assessment.Factors.Factors() {
		doc, _ := cat.Factor(f)
		out.Findings = append(out.Findings, Finding{
			Factor:    f.String(),
			Weight:    int(Weight[f]),
			Condition: doc.Trigger,
		})
	}
	return out, nil
}

func stageIDFor(r event.Rule) string {
	switch r {
	case event.RuleEUAct:
		return EUActStage{}.Name()
	case event.RuleGDPR:
		return GDPRStage{}.Name()
	case event.RuleInternalPolicy:
		return InternalPolicyStage{}.Name()
	default:
		return ""
	}
}
