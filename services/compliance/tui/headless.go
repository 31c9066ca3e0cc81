// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tui

import (
	"fmt"
	"time"

	"github.com/AleutianAI/CompliancePulse/pkg/logging"
	"github.com/AleutianAI/CompliancePulse/services/compliance/metrics"
	"github.com/AleutianAI/CompliancePulse/services/compliance/pipeline"
)

// Headless consumes the command queue without a terminal UI and logs one
// line per report.
type Headless struct {
	commands *pipeline.Queue[pipeline.Command]
	stop     *pipeline.StopSignal
	logger   *logging.Logger
	poll     time.Duration

	reports uint64
}

// NewHeadless creates a headless consumer polling every PollInterval.
func NewHeadless(commands *pipeline.Queue[pipeline.Command], stop *pipeline.StopSignal, logger *logging.Logger) *Headless {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Headless{
		commands: commands,
		stop:     stop,
		logger:   logger.With("component", "headless"),
		poll:     PollInterval,
	}
}

// Run logs reports until stop is set, then closes the command queue.
func (h *Headless) Run() {
	ticker := time.NewTicker(h.poll)
	defer ticker.Stop()
	defer h.commands.Close()

	for {
		h.Drain()
		select {
		case <-h.stop.Done():
			h.Drain()
			return
		case <-ticker.C:
		}
	}
}

// Drain logs every queued report. Returns the number logged.
func (h *Headless) Drain() int {
	n := 0
	h.commands.Drain(func(c pipeline.Command) {
		if u, ok := c.(pipeline.UpdateMetrics); ok {
			h.log(u.Report)
			n++
		}
	})
	h.reports += uint64(n)
	return n
}

// Reports returns how many reports were logged.
func (h *Headless) Reports() uint64 {
	return h.reports
}

func (h *Headless) log(r metrics.Report) {
	t := r.Totals
	dist := t.RiskDistribution()
	h.logger.Info("compliance report",
		"interval", r.Interval,
		"events", t.TotalEvents,
		"throughput", fmt.Sprintf("%.0f", r.Throughput),
		"compliance_pct", fmt.Sprintf("%.2f", t.CompliancePercentage()),
		"eu_act_violations", t.EUActViolations,
		"gdpr_violations", t.GDPRViolations,
		"internal_violations", t.InternalViolations,
		"high_risk_pct", fmt.Sprintf("%.1f", dist[0]),
		"medium_risk_pct", fmt.Sprintf("%.1f", dist[1]),
		"low_risk_pct", fmt.Sprintf("%.1f", dist[2]),
	)
}
