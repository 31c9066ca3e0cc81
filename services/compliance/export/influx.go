// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package export ships reports to an InfluxDB v2 bucket.
package export

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/AleutianAI/CompliancePulse/pkg/logging"
	"github.com/AleutianAI/CompliancePulse/services/compliance/event"
	"github.com/AleutianAI/CompliancePulse/services/compliance/metrics"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
)

// Measurement is the measurement name of every exported point.
const Measurement = "compliance_report"

// InfluxConfig locates the bucket.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// InfluxSink writes one point per report through the non-blocking write API.
//
// # Description
//
// ObserveReport only enqueues; the client batches and writes in the
// background, so a slow or unreachable InfluxDB never stalls the
// aggregator. Write errors are logged from a dedicated goroutine.
//
// # Thread Safety
//
// Safe for concurrent use. Close must be called once at shutdown.
type InfluxSink struct {
	client influxdb2.Client
	writer api.WriteAPI
	logger *logging.Logger

	errDone   chan struct{}
	closeOnce sync.Once
}

// NewInfluxSink creates the client and write API.
func NewInfluxSink(cfg InfluxConfig, logger *logging.Logger) (*InfluxSink, error) {
	if cfg.URL == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("influx export requires url, org and bucket")
	}
	if logger == nil {
		logger = logging.Nop()
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	s := &InfluxSink{
		client:  client,
		writer:  client.WriteAPI(cfg.Org, cfg.Bucket),
		logger:  logger.With("component", "influx_export", "bucket", cfg.Bucket),
		errDone: make(chan struct{}),
	}

	errs := s.writer.Errors()
	go func() {
		defer close(s.errDone)
		for err := range errs {
			s.logger.Warn("influx write failed", "error", err)
		}
	}()
	return s, nil
}

// Check reports whether InfluxDB answers its health endpoint.
func (s *InfluxSink) Check(ctx context.Context) error {
	health, err := s.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("influx health: %w", err)
	}
	if health.Status != domain.HealthCheckStatusPass {
		return fmt.Errorf("influx health: status %s", health.Status)
	}
	return nil
}

// ObserveReport implements pipeline.ReportSink.
func (s *InfluxSink) ObserveReport(r metrics.Report) {
	s.writer.WritePoint(ReportPoint(r))
}

// Close flushes pending points and releases the client.
func (s *InfluxSink) Close() {
	s.closeOnce.Do(func() {
		s.writer.Flush()
		s.client.Close()
		<-s.errDone
	})
}

// ReportPoint converts a report into a single point.
//
// Tags: run_id. Fields: totals, per-rule violations, tier counts, throughput,
// compliance percentage, average sensitivity and the report sequence number.
func ReportPoint(r metrics.Report) *write.Point {
	t := r.Totals
	fields := map[string]interface{}{
		"interval":             int64(r.Interval),
		"events":               int64(t.TotalEvents),
		"eu_act_violations":    int64(t.EUActViolations),
		"gdpr_violations":      int64(t.GDPRViolations),
		"internal_violations":  int64(t.InternalViolations),
		"high_risk":            int64(t.HighRisk),
		"medium_risk":          int64(t.MediumRisk),
		"low_risk":             int64(t.LowRisk),
		"throughput":           r.Throughput,
		"compliance_percent":   t.CompliancePercentage(),
		"average_sensitivity":  t.AverageSensitivity(),
		"interval_elapsed_sec": r.Elapsed.Seconds(),
	}
	for i, name := range event.VendorNames() {
		fields["vendor_"+fieldKey(name)] = int64(t.Vendors[i])
	}

	return influxdb2.NewPoint(
		Measurement,
		map[string]string{"run_id": r.RunID},
		fields,
		r.GeneratedAt,
	)
}

// fieldKey lowercases a display name and replaces spaces.
func fieldKey(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "_")
}
