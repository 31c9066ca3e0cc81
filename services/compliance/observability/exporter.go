// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability exposes aggregated compliance reports as Prometheus
// metrics.
//
// # Description
//
// The Exporter is a pipeline.ReportSink. Each report overwrites a set of
// gauges with the report's lifetime totals, so a scrape always sees the most
// recent aggregator state:
//   - Events, violations by rule, events by risk tier
//   - Service / vendor / department distributions and risk factor counts
//   - Throughput, compliance percentage, average sensitivity
//
// # Integration
//
// Metrics are served from the API's /metrics endpoint. The Exporter owns its
// registry; pass Registry() to telemetry.Config.Registerer so the OTel
// instruments land on the same endpoint.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/AleutianAI/CompliancePulse/services/compliance/event"
	"github.com/AleutianAI/CompliancePulse/services/compliance/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "compliancepulse"

// Subsystem for report metrics
const reportSubsystem = "report"

// Dimension label values for DistributionEvents.
const (
	DimensionService    = "service"
	DimensionVendor     = "vendor"
	DimensionDepartment = "department"
)

// Exporter mirrors each report into Prometheus gauges.
//
// # Fields
//
//   - Events: lifetime evaluated events
//   - Violations: lifetime violations. Labels: rule
//   - RiskEvents: events per tier. Labels: tier (low, medium, high)
//   - DistributionEvents: events per catalog entry. Labels: dimension, name
//   - RiskFactorEvents: events per fired factor. Labels: factor
//   - Throughput: events/second over the last interval
//   - CompliancePercent: share of rule checks that passed
//   - AverageSensitivity: mean sensitivity across all events
//   - ReportsTotal: reports observed
type Exporter struct {
	registry *prometheus.Registry

	Events             prometheus.Gauge
	Violations         *prometheus.GaugeVec
	RiskEvents         *prometheus.GaugeVec
	DistributionEvents *prometheus.GaugeVec
	RiskFactorEvents   *prometheus.GaugeVec
	Throughput         prometheus.Gauge
	CompliancePercent  prometheus.Gauge
	AverageSensitivity prometheus.Gauge
	ReportsTotal       prometheus.Counter
}

// NewExporter creates an exporter on a fresh registry.
//
// # Inputs
//
//   - withRuntime: Also register Go runtime and process collectors.
//
// # Outputs
//
//   - *Exporter: Ready to receive reports.
func NewExporter(withRuntime bool) *Exporter {
	reg := prometheus.NewRegistry()
	if withRuntime {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	factory := promauto.With(reg)

	return &Exporter{
		registry: reg,

		Events: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: reportSubsystem,
			Name:      "events",
			Help:      "Events evaluated since start",
		}),

		Violations: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: reportSubsystem,
			Name:      "violations",
			Help:      "Rule violations since start by rule",
		}, []string{"rule"}),

		RiskEvents: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: reportSubsystem,
			Name:      "risk_events",
			Help:      "Events since start by risk tier",
		}, []string{"tier"}),

		DistributionEvents: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: reportSubsystem,
			Name:      "distribution_events",
			Help:      "Events since start by service, vendor and department",
		}, []string{"dimension", "name"}),

		RiskFactorEvents: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: reportSubsystem,
			Name:      "risk_factor_events",
			Help:      "Events since start on which each risk factor fired",
		}, []string{"factor"}),

		Throughput: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: reportSubsystem,
			Name:      "throughput_events_per_second",
			Help:      "Approximate events per second over the last reporting interval",
		}),

		CompliancePercent: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: reportSubsystem,
			Name:      "compliance_percent",
			Help:      "Percentage of rule checks that passed",
		}),

		AverageSensitivity: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: reportSubsystem,
			Name:      "average_sensitivity",
			Help:      "Mean data sensitivity across all events",
		}),

		ReportsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: reportSubsystem,
			Name:      "reports_total",
			Help:      "Total reports emitted by the aggregator",
		}),
	}
}

// Registry returns the exporter's registry for serving and for sharing with
// the OTel prometheus exporter.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// ObserveReport implements pipeline.ReportSink.
func (e *Exporter) ObserveReport(r metrics.Report) {
	t := r.Totals

	e.Events.Set(float64(t.TotalEvents))
	for _, rule := range event.Rules {
		e.Violations.WithLabelValues(rule.String()).Set(float64(t.Violations(rule)))
	}

	e.RiskEvents.WithLabelValues(event.TierLow.String()).Set(float64(t.LowRisk))
	e.RiskEvents.WithLabelValues(event.TierMedium.String()).Set(float64(t.MediumRisk))
	e.RiskEvents.WithLabelValues(event.TierHigh.String()).Set(float64(t.HighRisk))

	setDistribution(e.DistributionEvents, DimensionService, event.ServiceNames(), t.Services)
	setDistribution(e.DistributionEvents, DimensionVendor, event.VendorNames(), t.Vendors)
	setDistribution(e.DistributionEvents, DimensionDepartment, event.DepartmentNames(), t.Departments)

	for i, name := range event.RiskFactorNames() {
		e.RiskFactorEvents.WithLabelValues(name).Set(float64(t.RiskFactors[i]))
	}

	e.Throughput.Set(r.Throughput)
	e.CompliancePercent.Set(t.CompliancePercentage())
	e.AverageSensitivity.Set(t.AverageSensitivity())
	e.ReportsTotal.Inc()
}

func setDistribution(vec *prometheus.GaugeVec, dimension string, names []string, counts [5]uint64) {
	for i, name := range names {
		vec.WithLabelValues(dimension, name).Set(float64(counts[i]))
	}
}
