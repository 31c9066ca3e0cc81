// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command compliancepulse runs the simulated AI-usage compliance pipeline.
//
// # Examples
//
//	compliancepulse                          # live dashboard, defaults
//	compliancepulse -r 50000 -i 2 -t 8       # 50k events/s, 2s reports, 8 workers
//	compliancepulse run --headless --listen :8089
//	compliancepulse rules explain --service chatgpt --department marketing --sensitivity 85
//	compliancepulse init
//
// # Exit Codes
//
//	0 - Clean stop
//	1 - Runtime failure
//	2 - Invalid configuration or arguments
//	3 - A pipeline goroutine panicked
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/AleutianAI/CompliancePulse/pkg/ux"
	"github.com/AleutianAI/CompliancePulse/services/compliance/config"
	"github.com/AleutianAI/CompliancePulse/services/compliance/pipeline"
	"github.com/spf13/cobra"
)

// Set by -ldflags at release time.
var (
	version = "dev"
	commit  = "none"
)

const (
	exitOK          = 0
	exitFailure     = 1
	exitConfig      = 2
	exitWorkerPanic = 3
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		ux.NewPrinter(os.Stderr, true).Error(err.Error())
		os.Exit(exitCode(err))
	}
}

// newRootCmd builds the command tree. Running the root with no subcommand is
// the same as `run`.
func newRootCmd() *cobra.Command {
	opts := &runOptions{}

	root := &cobra.Command{
		Use:   "compliancepulse",
		Short: "Simulated AI-usage compliance monitoring",
		Long: `CompliancePulse generates synthetic AI-service usage events, runs each one
through a rule chain (EU AI Act, GDPR, internal policy, risk assessment) and
shows live aggregated compliance metrics.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd)
		},
	}
	root.SetVersionTemplate("compliancepulse {{.Version}}\n")
	addRunFlags(root, opts)

	root.AddCommand(
		newRunCmd(),
		newRulesCmd(),
		newInitCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "compliancepulse %s (%s)\n", version, commit)
		},
	}
}

// exitCode maps an error returned by a command onto the documented exit codes.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, pipeline.ErrWorkerFailed):
		return exitWorkerPanic
	case errors.Is(err, config.ErrInvalidConfig), errors.Is(err, errUsage):
		return exitConfig
	default:
		return exitFailure
	}
}
