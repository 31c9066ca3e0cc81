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
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownName is returned when a catalog name cannot be parsed.
var ErrUnknownName = errors.New("event: unknown catalog name")

// =============================================================================
// Catalog Sizes
// =============================================================================

const (
	// NumServices is the number of simulated AI services.
	NumServices = 5

	// NumVendors is the number of simulated vendors.
	NumVendors = 5

	// NumDepartments is the number of simulated departments.
	NumDepartments = 5

	// NumRiskFactors is the number of risk contributors the risk stage can fire.
	NumRiskFactors = 5

	// MaxSensitivity is the exclusive upper bound of generated sensitivity.
	MaxSensitivity = 100
)

// =============================================================================
// Services
// =============================================================================

// ServiceName identifies one of the simulated AI services.
type ServiceName uint8

const (
	ServiceChatGPT ServiceName = iota
	ServiceClaude
	ServiceGemini
	ServiceCopilot
	ServiceStableDiffusion
)

var serviceNames = [NumServices]string{"ChatGPT", "Claude", "Gemini", "Copilot", "Stable Diffusion"}

// String returns the display name, or "unknown" when out of range.
func (s ServiceName) String() string {
	if int(s) < len(serviceNames) {
		return serviceNames[s]
	}
	return "unknown"
}

// ServiceNames returns the ordered display names of all services.
func ServiceNames() []string {
	return serviceNames[:]
}

// =============================================================================
// Vendors
// =============================================================================

// Vendor identifies the company operating a service.
type Vendor uint8

const (
	VendorOpenAI Vendor = iota
	VendorAnthropic
	VendorGoogle
	VendorMicrosoft
	VendorStabilityAI
)

// HighRiskVendor is the vendor the EU-Act and public-model rules single out.
const HighRiskVendor = VendorOpenAI

var vendorNames = [NumVendors]string{"OpenAI", "Anthropic", "Google", "Microsoft", "Stability AI"}

// String returns the display name, or "unknown" when out of range.
func (v Vendor) String() string {
	if int(v) < len(vendorNames) {
		return vendorNames[v]
	}
	return "unknown"
}

// VendorNames returns the ordered display names of all vendors.
func VendorNames() []string {
	return vendorNames[:]
}

// =============================================================================
// Departments
// =============================================================================

// Department identifies the business unit that used a service.
type Department uint8

const (
	DepartmentEngineering Department = iota
	DepartmentMarketing
	DepartmentFinance
	DepartmentHR
	DepartmentLegal
)

// FinanceDepartment is the department restricted by the internal policy.
const FinanceDepartment = DepartmentFinance

// FinanceApprovedServices is the internal-policy allow-list for FinanceDepartment.
var FinanceApprovedServices = [2]ServiceName{ServiceClaude, ServiceCopilot}

var departmentNames = [NumDepartments]string{"Engineering", "Marketing", "Finance", "HR", "Legal"}

// String returns the display name, or "unknown" when out of range.
func (d Department) String() string {
	if int(d) < len(departmentNames) {
		return departmentNames[d]
	}
	return "unknown"
}

// DepartmentNames returns the ordered display names of all departments.
func DepartmentNames() []string {
	return departmentNames[:]
}

// IsFinanceApproved reports whether s is on the finance allow-list.
func IsFinanceApproved(s ServiceName) bool {
	for _, approved := range FinanceApprovedServices {
		if s == approved {
			return true
		}
	}
	return false
}

// =============================================================================
// Parsing
// =============================================================================

// ParseServiceName accepts a display name (case-insensitive) or an index.
func ParseServiceName(s string) (ServiceName, error) {
	i, err := lookup(serviceNames[:], s)
	if err != nil {
		return 0, fmt.Errorf("service %q: %w", s, err)
	}
	return ServiceName(i), nil
}

// ParseVendor accepts a display name (case-insensitive) or an index.
func ParseVendor(s string) (Vendor, error) {
	i, err := lookup(vendorNames[:], s)
	if err != nil {
		return 0, fmt.Errorf("vendor %q: %w", s, err)
	}
	return Vendor(i), nil
}

// ParseDepartment accepts a display name (case-insensitive) or an index.
func ParseDepartment(s string) (Department, error) {
	i, err := lookup(departmentNames[:], s)
	if err != nil {
		return 0, fmt.Errorf("department %q: %w", s, err)
	}
	return Department(i), nil
}

func lookup(names []string, s string) (int, error) {
	s = strings.TrimSpace(s)
	for i, name := range names {
		if strings.EqualFold(name, s) {
			return i, nil
		}
	}
	if i, err := strconv.Atoi(s); err == nil && i >= 0 && i < len(names) {
		return i, nil
	}
	return 0, ErrUnknownName
}
