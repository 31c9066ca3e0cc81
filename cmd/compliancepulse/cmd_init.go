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
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/AleutianAI/CompliancePulse/services/compliance/config"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

type initOptions struct {
	path     string
	defaults bool
	force    bool
}

// newInitCmd writes a config file, interactively when stdin is a terminal.
//
// # Examples
//
//	compliancepulse init                       # interactive form
//	compliancepulse init --defaults            # write defaults without asking
//	compliancepulse init --path ./cp.yaml --force
func newInitCmd() *cobra.Command {
	o := &initOptions{}
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.path, "path", "", "Where to write (default ~/.compliancepulse/config.yaml)")
	f.BoolVar(&o.defaults, "defaults", false, "Write defaults without prompting")
	f.BoolVar(&o.force, "force", false, "Overwrite an existing file")
	return cmd
}

func (o *initOptions) run(cmd *cobra.Command) error {
	path := o.path
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	if _, err := os.Stat(path); err == nil && !o.force {
		return fmt.Errorf("%w: %s already exists (use --force to overwrite)", errUsage, path)
	}

	cfg := config.Default()
	if !o.defaults && isTerminal(os.Stdin) {
		a := answersFrom(cfg)
		if err := a.form().Run(); err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				printer(cmd).Warning("Aborted, nothing written")
				return nil
			}
			return err
		}
		var err error
		if cfg, err = a.apply(cfg); err != nil {
			return err
		}
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(path, cfg); err != nil {
		return err
	}
	out := printer(cmd)
	out.Success("Wrote " + path)
	out.Box("Next", "compliancepulse run --config "+path)
	return nil
}

// =============================================================================
// FORM
// =============================================================================

// initAnswers holds the form's string fields before parsing.
type initAnswers struct {
	rate     string
	interval string
	workers  string
	level    string
	listen   string
	pace     bool
	headless bool
}

func answersFrom(cfg config.Config) *initAnswers {
	return &initAnswers{
		rate:     strconv.Itoa(cfg.Rate),
		interval: strconv.Itoa(cfg.Interval),
		workers:  strconv.Itoa(cfg.Workers),
		level:    cfg.Log.Level,
		listen:   cfg.Listen,
		pace:     cfg.Pace,
		headless: cfg.Headless,
	}
}

func (a *initAnswers) form() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Target events per second").
				Value(&a.rate).
				Validate(positiveInt),
			huh.NewInput().
				Title("Reporting interval (seconds)").
				Value(&a.interval).
				Validate(positiveInt),
			huh.NewInput().
				Title("Worker goroutines").
				Value(&a.workers).
				Validate(positiveInt),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Log level").
				Options(huh.NewOptions("debug", "info", "warn", "error")...).
				Value(&a.level),
			huh.NewInput().
				Title("HTTP API address").
				Description("e.g. :8089, empty to disable").
				Value(&a.listen),
			huh.NewConfirm().
				Title("Throttle workers to the target rate?").
				Value(&a.pace),
			huh.NewConfirm().
				Title("Run headless by default?").
				Value(&a.headless),
		),
	)
}

// apply parses the answers onto cfg.
func (a *initAnswers) apply(cfg config.Config) (config.Config, error) {
	var err error
	if cfg.Rate, err = parsePositive("rate", a.rate); err != nil {
		return cfg, err
	}
	if cfg.Interval, err = parsePositive("interval", a.interval); err != nil {
		return cfg, err
	}
	if cfg.Workers, err = parsePositive("workers", a.workers); err != nil {
		return cfg, err
	}
	cfg.Log.Level = a.level
	cfg.Listen = strings.TrimSpace(a.listen)
	cfg.Pace = a.pace
	cfg.Headless = a.headless
	return cfg, nil
}

func positiveInt(s string) error {
	_, err := parsePositive("value", s)
	return err
}

func parsePositive(name, s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: %s must be a positive integer (got %q)", errUsage, name, s)
	}
	return n, nil
}
