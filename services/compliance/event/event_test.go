// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Compliance Register Tests
// =============================================================================

func TestCompliance_SetClearAssign(t *testing.T) {
	c := AllCompliant
	for _, r := range Rules {
		assert.True(t, c.Has(r), r.String())
	}

	c.Clear(RuleGDPR)
	assert.False(t, c.Has(RuleGDPR))
	assert.True(t, c.Has(RuleEUAct))
	assert.True(t, c.Has(RuleInternalPolicy))
	assert.Equal(t, []Rule{RuleGDPR}, c.Violations())

	c.Assign(RuleEUAct, false)
	c.Assign(RuleGDPR, true)
	assert.Equal(t, []Rule{RuleEUAct}, c.Violations())

	c.Set(RuleEUAct)
	assert.Equal(t, AllCompliant, c)
	assert.Empty(t, c.Violations())
}

func TestFactorSet(t *testing.T) {
	var s FactorSet
	assert.Equal(t, "none", s.String())

	s.Add(FactorGDPR)
	s.Add(FactorPublicModel)
	s.Add(FactorGDPR)

	assert.True(t, s.Has(FactorGDPR))
	assert.True(t, s.Has(FactorPublicModel))
	assert.False(t, s.Has(FactorEUAct))
	assert.Equal(t, []RiskFactor{FactorGDPR, FactorPublicModel}, s.Factors())
	assert.Equal(t, "GDPR non-compliance, Public model usage", s.String())
}

func TestTierOf(t *testing.T) {
	tests := []struct {
		score uint8
		want  Tier
	}{
		{0, TierLow},
		{30, TierLow},
		{31, TierMedium},
		{70, TierMedium},
		{71, TierHigh},
		{100, TierHigh},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TierOf(tt.score), "score %d", tt.score)
	}
}

func TestEvent_RiskLifecycle(t *testing.T) {
	e := New(Service{Name: ServiceClaude, Vendor: VendorAnthropic}, Usage{Department: DepartmentHR, Sensitivity: 10})
	assert.Equal(t, AllCompliant, e.Compliance)

	_, ok := e.Risk()
	assert.False(t, ok, "fresh event has no assessment")

	e.SetRisk(Assessment{Score: 40})
	got, ok := e.Risk()
	require.True(t, ok)
	assert.Equal(t, uint8(40), got.Score)

	e.Compliance.Clear(RuleEUAct)
	e.Reset()
	_, ok = e.Risk()
	assert.False(t, ok)
	assert.Equal(t, AllCompliant, e.Compliance)
}

// =============================================================================
// Catalog Tests
// =============================================================================

func TestCatalog_Names(t *testing.T) {
	assert.Len(t, ServiceNames(), NumServices)
	assert.Len(t, VendorNames(), NumVendors)
	assert.Len(t, DepartmentNames(), NumDepartments)
	assert.Len(t, RiskFactorNames(), NumRiskFactors)

	assert.Equal(t, "OpenAI", HighRiskVendor.String())
	assert.Equal(t, "Finance", FinanceDepartment.String())
	assert.Equal(t, "unknown", ServiceName(9).String())
}

func TestIsFinanceApproved(t *testing.T) {
	assert.True(t, IsFinanceApproved(ServiceClaude))
	assert.True(t, IsFinanceApproved(ServiceCopilot))
	assert.False(t, IsFinanceApproved(ServiceChatGPT))
	assert.False(t, IsFinanceApproved(ServiceGemini))
	assert.False(t, IsFinanceApproved(ServiceStableDiffusion))
}

// =============================================================================
// Generator Tests
// =============================================================================

func TestGenerator_Ranges(t *testing.T) {
	g := NewGenerator(42)
	batch := g.Generate(nil, 5000)
	require.Len(t, batch, 5000)

	for _, e := range batch {
		assert.Less(t, int(e.Service.Name), NumServices)
		assert.Less(t, int(e.Service.Vendor), NumVendors)
		assert.Less(t, int(e.Usage.Department), NumDepartments)
		assert.Less(t, int(e.Usage.Sensitivity), MaxSensitivity)
		assert.Equal(t, AllCompliant, e.Compliance)
		_, ok := e.Risk()
		assert.False(t, ok)
	}
}

func TestGenerator_Deterministic(t *testing.T) {
	a := NewGenerator(7).Generate(nil, 100)
	b := NewGenerator(7).Generate(nil, 100)
	assert.Equal(t, a, b)

	c := NewGenerator(8).Generate(nil, 100)
	assert.NotEqual(t, a, c)
}

func TestGenerator_ReusesBuffer(t *testing.T) {
	g := NewGenerator(1)
	buf := make([]Event, 0, 64)

	first := g.Generate(buf, 64)
	first[0].SetRisk(Assessment{Score: 99})
	first[0].Compliance = 0

	second := g.Generate(first, 32)
	assert.Len(t, second, 32)
	assert.Same(t, &first[0], &second[0], "buffer should be reused")
	_, ok := second[0].Risk()
	assert.False(t, ok, "regenerated event must not keep the old assessment")
	assert.Equal(t, AllCompliant, second[0].Compliance)

	assert.Empty(t, g.Generate(nil, -1))
}

func TestGenerator_CoversAllBuckets(t *testing.T) {
	batch := NewGenerator(3).Generate(nil, 2000)

	var services [NumServices]int
	var highSensitivity bool
	for _, e := range batch {
		services[e.Service.Name]++
		if e.Usage.Sensitivity > 80 {
			highSensitivity = true
		}
	}
	for i, n := range services {
		assert.Positive(t, n, "service %d never generated", i)
	}
	assert.True(t, highSensitivity)
}

func TestParseCatalogNames(t *testing.T) {
	svc, err := ParseServiceName("stable diffusion")
	require.NoError(t, err)
	assert.Equal(t, ServiceStableDiffusion, svc)

	svc, err = ParseServiceName("1")
	require.NoError(t, err)
	assert.Equal(t, ServiceClaude, svc)

	vendor, err := ParseVendor(" OpenAI ")
	require.NoError(t, err)
	assert.Equal(t, VendorOpenAI, vendor)

	dept, err := ParseDepartment("FINANCE")
	require.NoError(t, err)
	assert.Equal(t, DepartmentFinance, dept)

	_, err = ParseDepartment("Sales")
	assert.ErrorIs(t, err, ErrUnknownName)

	_, err = ParseVendor("5")
	assert.ErrorIs(t, err, ErrUnknownName)

	_, err = ParseServiceName("-1")
	assert.ErrorIs(t, err, ErrUnknownName)
}
