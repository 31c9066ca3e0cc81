// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads, validates and saves the CompliancePulse run
// configuration.
//
// Precedence, lowest to highest: Default, the YAML file, COMPLIANCEPULSE_*
// environment variables, command-line flags. Validate runs last.
package config

import (
	"runtime"
	"time"

	"github.com/AleutianAI/CompliancePulse/services/compliance/pipeline"
)

// CurrentConfigVersion is written to new config files.
const CurrentConfigVersion = "1"

const (
	DefaultRate        = 10000
	DefaultInterval    = 5
	DefaultHistorySize = 30
)

type Config struct {
	Meta MetaConfig `yaml:"meta"`

	// Rate is the target events/second across all workers.
	Rate int `yaml:"rate" validate:"gte=1"`

	// Interval is the reporting interval in seconds.
	Interval int `yaml:"interval" validate:"gte=1,lte=3600"`

	// Workers is the number of worker goroutines.
	Workers int `yaml:"workers" validate:"gte=1,lte=1024"`

	FlushEvery   int           `yaml:"flush_every" validate:"gte=1"`
	HistorySize  int           `yaml:"history_size" validate:"gte=1,lte=10000"`
	PollInterval time.Duration `yaml:"poll_interval" validate:"gt=0"`

	// Pace throttles workers to Rate. Off, workers run flat out.
	Pace bool `yaml:"pace"`

	// Seed makes event streams reproducible when non-zero.
	Seed uint64 `yaml:"seed,omitempty"`

	// Headless disables the terminal dashboard.
	Headless bool `yaml:"headless"`

	// Duration stops the run after this long. Zero runs until interrupted.
	Duration time.Duration `yaml:"duration,omitempty" validate:"gte=0"`

	// Listen is the HTTP API address, e.g. ":8089". Empty disables the API.
	Listen string `yaml:"listen,omitempty" validate:"omitempty,hostname_port"`

	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Influx    InfluxConfig    `yaml:"influx"`
}

type MetaConfig struct {
	Version string `yaml:"version"`
}

type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn warning error"`
	Dir   string `yaml:"dir,omitempty"`
	JSON  bool   `yaml:"json"`
}

// TelemetryConfig leaves fields empty to defer to OTEL_* variables.
type TelemetryConfig struct {
	TraceExporter  string `yaml:"trace_exporter,omitempty" validate:"omitempty,oneof=none stdout otlp"`
	MetricExporter string `yaml:"metric_exporter,omitempty" validate:"omitempty,oneof=none stdout prometheus"`
	OTLPEndpoint   string `yaml:"otlp_endpoint,omitempty" validate:"omitempty,hostname_port"`
	OTLPInsecure   bool   `yaml:"otlp_insecure,omitempty"`
}

// InfluxConfig enables the time-series export when URL is set.
type InfluxConfig struct {
	URL    string `yaml:"url,omitempty" validate:"omitempty,url"`
	Token  string `yaml:"token,omitempty"`
	Org    string `yaml:"org,omitempty" validate:"required_with=URL"`
	Bucket string `yaml:"bucket,omitempty" validate:"required_with=URL"`
}

// Enabled reports whether export is configured.
func (c InfluxConfig) Enabled() bool {
	return c.URL != ""
}

// Default returns a config with one worker per CPU.
func Default() Config {
	return Config{
		Meta:         MetaConfig{Version: CurrentConfigVersion},
		Rate:         DefaultRate,
		Interval:     DefaultInterval,
		Workers:      runtime.NumCPU(),
		FlushEvery:   pipeline.DefaultFlushEvery,
		HistorySize:  DefaultHistorySize,
		PollInterval: pipeline.DefaultPollInterval,
		Log: LogConfig{
			Level: "info",
		},
	}
}

// IntervalDuration returns Interval as a time.Duration.
func (c Config) IntervalDuration() time.Duration {
	return time.Duration(c.Interval) * time.Second
}

// BatchSize returns the per-worker batch size.
func (c Config) BatchSize() int {
	return pipeline.BatchSize(c.Rate, c.Workers)
}

// Pipeline maps the config onto pipeline parameters.
func (c Config) Pipeline(runID string) pipeline.Config {
	return pipeline.Config{
		Rate:         c.Rate,
		Workers:      c.Workers,
		Interval:     c.IntervalDuration(),
		FlushEvery:   c.FlushEvery,
		HistorySize:  c.HistorySize,
		PollInterval: c.PollInterval,
		Pace:         c.Pace,
		Seed:         c.Seed,
		RunID:        runID,
	}
}
