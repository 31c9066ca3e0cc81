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
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AleutianAI/CompliancePulse/pkg/logging"
	"github.com/AleutianAI/CompliancePulse/services/compliance/api"
	"github.com/AleutianAI/CompliancePulse/services/compliance/config"
	"github.com/AleutianAI/CompliancePulse/services/compliance/export"
	"github.com/AleutianAI/CompliancePulse/services/compliance/observability"
	"github.com/AleutianAI/CompliancePulse/services/compliance/pipeline"
	"github.com/AleutianAI/CompliancePulse/services/compliance/telemetry"
	"github.com/AleutianAI/CompliancePulse/services/compliance/tui"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

// runOptions holds the run flags. Only flags the user set override the
// config file and environment.
type runOptions struct {
	configPath string
	rate       int
	interval   int
	threads    int
	headless   bool
	pace       bool
	seed       uint64
	duration   time.Duration
	listen     string
	logLevel   string
	logDir     string

	// resolvedPath is the config file resolve actually read, if any.
	resolvedPath string
}

func addRunFlags(cmd *cobra.Command, o *runOptions) {
	defaults := config.Default()
	f := cmd.Flags()
	f.StringVar(&o.configPath, "config", "",
		"Config file (default ~/.compliancepulse/config.yaml when present)")
	f.IntVarP(&o.rate, "rate", "r", defaults.Rate,
		"Target events per second across all workers")
	f.IntVarP(&o.interval, "interval", "i", defaults.Interval,
		"Reporting interval in seconds")
	f.IntVarP(&o.threads, "threads", "t", defaults.Workers,
		"Number of worker goroutines")
	f.BoolVar(&o.headless, "headless", false,
		"Log reports instead of showing the dashboard")
	f.BoolVar(&o.pace, "pace", false,
		"Throttle workers to the target rate")
	f.Uint64Var(&o.seed, "seed", 0,
		"Seed for reproducible event streams (0 = random)")
	f.DurationVar(&o.duration, "duration", 0,
		"Stop after this long (0 = until interrupted)")
	f.StringVar(&o.listen, "listen", "",
		"Serve the HTTP API on this address, e.g. :8089")
	f.StringVar(&o.logLevel, "log-level", defaults.Log.Level,
		"Log level: debug, info, warn, error")
	f.StringVar(&o.logDir, "log-dir", "",
		"Also write JSON logs to this directory")
}

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// newRunCmd creates the run command.
//
// # Description
//
// Starts the workers and the aggregator, then either the live dashboard (when
// stdout is a terminal) or the headless reporter. Ctrl+C, q, or --duration
// stops the run; every worker flushes its residual batch before exit.
func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the compliance pipeline",
		Long: `Run the compliance pipeline.

Configuration is layered: built-in defaults, then the config file, then
COMPLIANCEPULSE_* environment variables, then flags.

Examples:
  compliancepulse run -r 20000 -i 2
  compliancepulse run --headless --duration 1m
  compliancepulse run --listen :8089 --pace`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd)
		},
	}
	addRunFlags(cmd, opts)
	return cmd
}

func (o *runOptions) run(cmd *cobra.Command) error {
	cfg, err := o.resolve(cmd, os.LookupEnv)
	if err != nil {
		return err
	}
	interactive := !cfg.Headless && isTerminal(os.Stdout)

	// An explicit --log-level pins the level; otherwise follow the file.
	watchPath := o.resolvedPath
	if cmd.Flags().Changed("log-level") {
		watchPath = ""
	}
	return execute(cmd.Context(), cfg, watchPath, interactive, cmd.ErrOrStderr())
}

// resolve layers defaults, file, environment and set flags, then validates.
func (o *runOptions) resolve(cmd *cobra.Command, lookup func(string) (string, bool)) (config.Config, error) {
	path := o.configPath
	if path == "" {
		if p, err := config.DefaultPath(); err == nil {
			if _, statErr := os.Stat(p); statErr == nil {
				path = p
			}
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return cfg, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	o.resolvedPath = path
	if err := cfg.ApplyEnv(lookup); err != nil {
		return cfg, err
	}

	f := cmd.Flags()
	if f.Changed("rate") {
		cfg.Rate = o.rate
	}
	if f.Changed("interval") {
		cfg.Interval = o.interval
	}
	if f.Changed("threads") {
		cfg.Workers = o.threads
	}
	if f.Changed("headless") {
		cfg.Headless = o.headless
	}
	if f.Changed("pace") {
		cfg.Pace = o.pace
	}
	if f.Changed("seed") {
		cfg.Seed = o.seed
	}
	if f.Changed("duration") {
		cfg.Duration = o.duration
	}
	if f.Changed("listen") {
		cfg.Listen = o.listen
	}
	if f.Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if f.Changed("log-dir") {
		cfg.Log.Dir = o.logDir
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// =============================================================================
// EXECUTION
// =============================================================================

// execute wires every component around one pipeline run and blocks until it
// stops.
//
// # Inputs
//
//   - ctx: Parent context. Cancelling it stops the run.
//   - cfg: Validated configuration.
//   - watchPath: Config file to watch for log level changes. Empty disables.
//   - interactive: Show the dashboard instead of the headless reporter.
//   - logOut: Console log destination. Suppressed while the dashboard runs.
//
// # Outputs
//
//   - error: Setup failure, dashboard failure, or the pipeline's error
//     (wrapping pipeline.ErrWorkerFailed after a panic).
func execute(ctx context.Context, cfg config.Config, watchPath string, interactive bool, logOut io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	runID := uuid.NewString()

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	base := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Log.Dir,
		Service: "compliancepulse",
		JSON:    cfg.Log.JSON,
		Quiet:   interactive,
		Output:  logOut,
	})
	defer base.Close()
	logger := base.With("run_id", runID)

	exporter := observability.NewExporter(true)

	shutdownTelemetry, err := telemetry.Init(ctx, telemetryConfig(cfg, runID, exporter.Registry()))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	instruments, err := telemetry.NewInstruments(nil)
	if err != nil {
		return fmt.Errorf("failed to create instruments: %w", err)
	}

	sinks := []pipeline.ReportSink{exporter}

	if cfg.Listen != "" {
		server, err := api.NewServer(api.ServerConfig{
			Addr:     cfg.Listen,
			Gatherer: exporter.Registry(),
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		if err := server.Start(); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warn("api shutdown failed", "error", err)
			}
		}()
		sinks = append(sinks, server.Sinks()...)
	}

	if cfg.Influx.Enabled() {
		influx, err := export.NewInfluxSink(export.InfluxConfig{
			URL:    cfg.Influx.URL,
			Token:  cfg.Influx.Token,
			Org:    cfg.Influx.Org,
			Bucket: cfg.Influx.Bucket,
		}, logger)
		if err != nil {
			return err
		}
		defer influx.Close()

		checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := influx.Check(checkCtx); err != nil {
			logger.Warn("influxdb is not healthy, writes may fail", "url", cfg.Influx.URL, "error", err)
		}
		cancel()
		sinks = append(sinks, influx)
	}

	p, err := pipeline.New(cfg.Pipeline(runID),
		pipeline.WithLogger(logger),
		pipeline.WithSinks(sinks...),
		pipeline.WithInstruments(instruments),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}

	runCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if cfg.Duration > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, cfg.Duration)
		defer cancelTimeout()
	}

	stop := pipeline.NewStopSignal()
	stop.StopOnDone(runCtx)

	if watchPath != "" {
		w, err := config.NewWatcher(watchPath, config.WatcherOptions{
			Lookup:   os.LookupEnv,
			OnReload: func(c config.Config) { applyReload(base, logger, c) },
			OnError: func(err error) {
				logger.Warn("ignoring config change", "path", watchPath, "error", err)
			},
		})
		if err != nil {
			logger.Warn("config file will not be watched", "path", watchPath, "error", err)
		} else {
			w.Start(runCtx)
			defer w.Stop()
		}
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- p.Run(stop)
	}()

	var uiErr error
	if interactive {
		uiErr = tui.Run(tui.NewDashboard(p.Commands(), stop, tui.DashboardConfig{
			Rate:     cfg.Rate,
			Workers:  cfg.Workers,
			Interval: cfg.IntervalDuration(),
			RunID:    runID,
		}))
	} else {
		tui.NewHeadless(p.Commands(), stop, logger).Run()
	}
	stop.Stop()

	err = errors.Join(uiErr, <-runErr)

	total := p.Total()
	logger.Info("run finished",
		"total_events", total.TotalEvents,
		"compliance_pct", fmt.Sprintf("%.2f", total.CompliancePercentage()),
	)
	if err != nil {
		logger.Error("run failed", "error", err)
	}
	for _, s := range p.Stats() {
		logger.Debug("worker summary",
			"worker", s.ID,
			"cycles", s.Cycles,
			"events", s.Events,
			"flushes", s.Flushes,
			"dropped", s.Dropped,
		)
	}
	return err
}

// applyReload applies the fields of a reloaded config that can change while
// the pipeline runs. Only the log level qualifies.
func applyReload(base, logger *logging.Logger, c config.Config) {
	level, err := logging.ParseLevel(c.Log.Level)
	if err != nil || level == base.Level() {
		return
	}
	base.SetLevel(level)
	logger.Info("log level changed", "level", level.String())
}

// telemetryConfig starts from the OTEL_* defaults and applies non-empty
// config fields on top.
func telemetryConfig(cfg config.Config, runID string, reg prometheus.Registerer) telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.ServiceVersion = version
	tc.RunID = runID
	tc.Registerer = reg

	if cfg.Telemetry.TraceExporter != "" {
		tc.TraceExporter = cfg.Telemetry.TraceExporter
	}
	if cfg.Telemetry.MetricExporter != "" {
		tc.MetricExporter = cfg.Telemetry.MetricExporter
	}
	if cfg.Telemetry.OTLPEndpoint != "" {
		tc.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	}
	if cfg.Telemetry.OTLPInsecure {
		tc.OTLPInsecure = true
	}
	return tc
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
