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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/AleutianAI/CompliancePulse/pkg/logging"
	"github.com/AleutianAI/CompliancePulse/services/compliance/config"
	"github.com/AleutianAI/CompliancePulse/services/compliance/pipeline"
	"github.com/AleutianAI/CompliancePulse/services/compliance/rules"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// syncWriter serializes writes from the pipeline's goroutines.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// runCLI executes the command tree with args and captures stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// =============================================================================
// Root / version
// =============================================================================

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("compliancepulse %s (%s)\n", version, commit), out)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitOK},
		{"panic", fmt.Errorf("worker-1: %w", pipeline.ErrWorkerFailed), exitWorkerPanic},
		{"config", fmt.Errorf("%w: rate", config.ErrInvalidConfig), exitConfig},
		{"usage", fmt.Errorf("%w: bad service", errUsage), exitConfig},
		{"other", errors.New("boom"), exitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

// =============================================================================
// rules
// =============================================================================

func TestRulesList(t *testing.T) {
	out, err := runCLI(t, "rules", "list")
	require.NoError(t, err)

	assert.Contains(t, out, "Rule chain")
	assert.Contains(t, out, "1. EU AI Act [high]")
	assert.Contains(t, out, "4. Risk Assessment [low]")
	assert.Contains(t, out, "+40 EU AI Act non-compliance")
	assert.Contains(t, out, "medium  score <= 70")
}

func TestRulesList_JSON(t *testing.T) {
	out, err := runCLI(t, "rules", "list", "--json")
	require.NoError(t, err)

	var catalog rules.Catalog
	require.NoError(t, json.Unmarshal([]byte(out), &catalog))
	assert.Len(t, catalog.Stages, 4)
	assert.Len(t, catalog.Factors, 5)
}

func TestRulesExplain(t *testing.T) {
	out, err := runCLI(t, "rules", "explain",
		"--service", "chatgpt", "--vendor", "openai",
		"--department", "marketing", "--sensitivity", "85", "--json")
	require.NoError(t, err)

	var got rules.Explanation
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, uint8(85), got.Score)
	assert.Equal(t, "high", got.Tier)
	assert.Equal(t, []string{"EU AI Act", "GDPR"}, got.Compliance)
}

func TestRulesExplain_Plain(t *testing.T) {
	out, err := runCLI(t, "rules", "explain",
		"--service", "claude", "--vendor", "anthropic",
		"--department", "finance", "--sensitivity", "10")
	require.NoError(t, err)

	assert.Contains(t, out, "Claude (Anthropic) used by Finance")
	assert.Contains(t, out, "OK: Compliant with every rule")
	assert.Contains(t, out, "risk tier    low")
}

func TestRulesExplain_BadInput(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown service", []string{"--service", "bard", "--vendor", "google", "--department", "hr", "--sensitivity", "1"}},
		{"sensitivity too high", []string{"--service", "gemini", "--vendor", "google", "--department", "hr", "--sensitivity", "101"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, append([]string{"rules", "explain"}, tt.args...)...)
			require.Error(t, err)
			assert.ErrorIs(t, err, errUsage)
			assert.Equal(t, exitConfig, exitCode(err))
		})
	}
}

func TestRulesExplain_MissingFlag(t *testing.T) {
	_, err := runCLI(t, "rules", "explain", "--service", "gemini")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

// =============================================================================
// init
// =============================================================================

func TestInit_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	out, err := runCLI(t, "init", "--defaults", "--path", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+path)
	assert.Contains(t, out, "Next: compliancepulse run --config "+path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)

	_, err = runCLI(t, "init", "--defaults", "--path", path)
	assert.ErrorIs(t, err, errUsage, "existing file needs --force")

	_, err = runCLI(t, "init", "--defaults", "--force", "--path", path)
	assert.NoError(t, err)
}

func TestInitAnswers_Apply(t *testing.T) {
	a := answersFrom(config.Default())
	a.rate = " 2500 "
	a.interval = "2"
	a.workers = "3"
	a.level = "debug"
	a.listen = " :8089 "
	a.pace = true

	cfg, err := a.apply(config.Default())
	require.NoError(t, err)
	assert.Equal(t, 2500, cfg.Rate)
	assert.Equal(t, 2, cfg.Interval)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, ":8089", cfg.Listen)
	assert.True(t, cfg.Pace)
	require.NoError(t, cfg.Validate())

	a.workers = "0"
	_, err = a.apply(config.Default())
	assert.ErrorIs(t, err, errUsage)
	assert.Error(t, positiveInt("abc"))
	assert.NoError(t, positiveInt("7"))
}

// =============================================================================
// run: configuration layering
// =============================================================================

func resolveWith(t *testing.T, env map[string]string, args ...string) (config.Config, error) {
	t.Helper()
	o := &runOptions{}
	cmd := &cobra.Command{Use: "run"}
	addRunFlags(cmd, o)
	require.NoError(t, cmd.ParseFlags(args))
	return o.resolve(cmd, func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
}

func TestResolve_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rate: 100\ninterval: 7\nworkers: 2\n"), 0644))

	// File only.
	cfg, err := resolveWith(t, nil, "--config", path)
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Rate)
	assert.Equal(t, 7, cfg.Interval)
	assert.Equal(t, 2, cfg.Workers)

	// Environment beats the file.
	env := map[string]string{"COMPLIANCEPULSE_RATE": "200", "COMPLIANCEPULSE_WORKERS": "4"}
	cfg, err = resolveWith(t, env, "--config", path)
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.Rate)
	assert.Equal(t, 4, cfg.Workers)

	// Set flags beat the environment; unset flags do not.
	cfg, err = resolveWith(t, env, "--config", path, "-r", "300", "--headless", "--duration", "2s")
	require.NoError(t, err)
	assert.Equal(t, 300, cfg.Rate)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 7, cfg.Interval)
	assert.True(t, cfg.Headless)
	assert.Equal(t, 2*time.Second, cfg.Duration)
}

func TestResolve_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rate: 100\n"), 0644))

	_, err := resolveWith(t, nil, "--config", path, "-t", "0")
	require.ErrorIs(t, err, config.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "workers")

	_, err = resolveWith(t, nil, "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	_, err = resolveWith(t, map[string]string{"COMPLIANCEPULSE_RATE": "fast"}, "--config", path)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

// =============================================================================
// run: execution
// =============================================================================

func TestExecute_HeadlessStopsAfterDuration(t *testing.T) {
	cfg := config.Default()
	cfg.Rate = 2000
	cfg.Workers = 2
	cfg.Interval = 1
	cfg.Seed = 7
	cfg.Duration = 300 * time.Millisecond
	cfg.Listen = "127.0.0.1:0"
	cfg.Telemetry.TraceExporter = "none"
	cfg.Telemetry.MetricExporter = "prometheus"

	var logs bytes.Buffer
	done := make(chan error, 1)
	go func() {
		done <- execute(context.Background(), cfg, "", false, &syncWriter{w: &logs})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("execute did not stop after its duration")
	}
}

func TestExecute_CancelledContext(t *testing.T) {
	cfg := config.Default()
	cfg.Workers = 1
	cfg.Telemetry.MetricExporter = "none"

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var logs bytes.Buffer
	err := execute(ctx, cfg, "", false, &syncWriter{w: &logs})
	require.NoError(t, err)
}

func TestExecute_BadLogLevel(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Level = "loud"

	var logs bytes.Buffer
	err := execute(context.Background(), cfg, "", false, &logs)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestApplyReload_ChangesLevel(t *testing.T) {
	var logs bytes.Buffer
	base := logging.New(logging.Config{Level: logging.LevelInfo, Output: &logs})
	child := base.With("run_id", "r")

	cfg := config.Default()
	cfg.Log.Level = "debug"
	applyReload(base, child, cfg)
	assert.Equal(t, logging.LevelDebug, child.Level())
	assert.Contains(t, logs.String(), "log level changed")

	logs.Reset()
	applyReload(base, child, cfg)
	assert.Empty(t, logs.String(), "unchanged level is a no-op")
}

func TestExecute_WatchesConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: info\n"), 0644))

	cfg := config.Default()
	cfg.Workers = 1
	cfg.Duration = 200 * time.Millisecond
	cfg.Telemetry.MetricExporter = "none"

	var logs bytes.Buffer
	require.NoError(t, execute(context.Background(), cfg, path, false, &syncWriter{w: &logs}))
}

func TestTelemetryConfig_Overrides(t *testing.T) {
	cfg := config.Default()
	cfg.Telemetry.TraceExporter = "stdout"
	cfg.Telemetry.OTLPEndpoint = "collector:4317"

	tc := telemetryConfig(cfg, "run-9", nil)
	assert.Equal(t, "stdout", tc.TraceExporter)
	assert.Equal(t, "collector:4317", tc.OTLPEndpoint)
	assert.Equal(t, "run-9", tc.RunID)
	assert.Equal(t, version, tc.ServiceVersion)
}
