// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/AleutianAI/CompliancePulse/pkg/ux"
	"github.com/AleutianAI/CompliancePulse/services/compliance/event"
	"github.com/AleutianAI/CompliancePulse/services/compliance/rules"
	"github.com/spf13/cobra"
)

// errUsage marks bad command-line input.
var errUsage = errors.New("invalid arguments")

func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect the compliance rule chain",
	}
	cmd.AddCommand(newRulesListCmd(), newRulesExplainCmd())
	return cmd
}

// =============================================================================
// rules list
// =============================================================================

func newRulesListCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List chain stages, risk factors and tiers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := rules.LoadCatalog()
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, catalog)
			}

			p := printer(cmd)
			p.Title("Rule chain")
			for i, st := range rules.NewChain().Stages() {
				doc, _ := catalog.Stage(st.Name())
				p.Bullet(fmt.Sprintf("%d. %s [%s]: %s", i+1, doc.Name, doc.Severity, doc.Condition))
			}

			p.Title("Risk factors")
			for _, f := range catalog.Factors {
				p.Bullet(fmt.Sprintf("+%d %s: %s", f.Weight, f.Name, f.Trigger))
			}

			p.Title("Risk tiers")
			rows := make([][2]string, len(catalog.Tiers))
			for i, t := range catalog.Tiers {
				rows[i] = [2]string{t.Tier, "score <= " + strconv.Itoa(t.MaxScore)}
			}
			p.KeyValues(rows)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON for scripting")
	return cmd
}

// =============================================================================
// rules explain
// =============================================================================

type explainOptions struct {
	service     string
	vendor      string
	department  string
	sensitivity int
	asJSON      bool
}

// newRulesExplainCmd evaluates one hand-built event and shows every finding.
//
// # Examples
//
//	compliancepulse rules explain --service chatgpt --vendor openai \
//	    --department marketing --sensitivity 85
func newRulesExplainCmd() *cobra.Command {
	o := &explainOptions{}
	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Evaluate one event through the rule chain",
		Long: fmt.Sprintf(`Evaluate one event through the rule chain and show why each rule or
risk factor fired.

Names are case-insensitive; indices are accepted too.
  services:    %s
  vendors:     %s
  departments: %s`,
			strings.Join(event.ServiceNames(), ", "),
			strings.Join(event.VendorNames(), ", "),
			strings.Join(event.DepartmentNames(), ", ")),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.service, "service", "", "AI service name")
	f.StringVar(&o.vendor, "vendor", "", "Vendor name")
	f.StringVar(&o.department, "department", "", "Department name")
	f.IntVar(&o.sensitivity, "sensitivity", 0, "Data sensitivity, 0-100")
	f.BoolVar(&o.asJSON, "json", false, "Output as JSON for scripting")
	for _, name := range []string{"service", "vendor", "department", "sensitivity"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func (o *explainOptions) event() (event.Event, error) {
	service, err := event.ParseServiceName(o.service)
	if err != nil {
		return event.Event{}, fmt.Errorf("%w: %w", errUsage, err)
	}
	vendor, err := event.ParseVendor(o.vendor)
	if err != nil {
		return event.Event{}, fmt.Errorf("%w: %w", errUsage, err)
	}
	dept, err := event.ParseDepartment(o.department)
	if err != nil {
		return event.Event{}, fmt.Errorf("%w: %w", errUsage, err)
	}
	if o.sensitivity < 0 || o.sensitivity > 100 {
		return event.Event{}, fmt.Errorf("%w: sensitivity must be 0-100 (got %d)", errUsage, o.sensitivity)
	}
	return event.New(
		event.Service{Name: service, Vendor: vendor},
		event.Usage{Department: dept, Sensitivity: uint8(o.sensitivity)},
	), nil
}

func (o *explainOptions) run(cmd *cobra.Command) error {
	e, err := o.event()
	if err != nil {
		return err
	}
	explanation, err := rules.NewChain().Explain(&e)
	if err != nil {
		return err
	}
	if o.asJSON {
		return writeJSON(cmd, explanation)
	}

	p := printer(cmd)
	p.Title(fmt.Sprintf("%s (%s) used by %s", explanation.Service, explanation.Vendor, explanation.Department))
	p.KeyValues([][2]string{
		{"sensitivity", strconv.Itoa(int(explanation.Sensitivity))},
		{"risk score", strconv.Itoa(int(explanation.Score))},
		{"risk tier", explanation.Tier},
	})

	if len(explanation.Compliance) == 0 {
		p.Success("Compliant with every rule")
	}
	for _, f := range explanation.Findings {
		switch {
		case f.Rule != "":
			p.Error(fmt.Sprintf("%s violated: %s", f.Rule, f.Condition))
		default:
			p.Warning(fmt.Sprintf("+%d %s: %s", f.Weight, f.Factor, f.Condition))
		}
	}
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

// printer styles output only when the command writes to a terminal stdout.
func printer(cmd *cobra.Command) *ux.Printer {
	out := cmd.OutOrStdout()
	if f, ok := out.(*os.File); ok && f == os.Stdout {
		return ux.Stdout()
	}
	return ux.NewPrinter(out, true)
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
