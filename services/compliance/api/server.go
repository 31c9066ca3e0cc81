// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api serves the live compliance reports over HTTP.
//
// # Routes
//
//	GET  /healthz            liveness
//	GET  /metrics            Prometheus exposition
//	GET  /api/v1/report      latest report (204 before the first one)
//	GET  /api/v1/rules       rule catalog and chain order
//	POST /api/v1/evaluate    evaluate one event through the rule chain
//	GET  /api/v1/stream      WebSocket push of every report
//
// The server is optional and read-only with respect to the pipeline: it
// observes reports as a ReportSink and never feeds anything back.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/AleutianAI/CompliancePulse/pkg/logging"
	"github.com/AleutianAI/CompliancePulse/services/compliance/pipeline"
	"github.com/AleutianAI/CompliancePulse/services/compliance/rules"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const shutdownGrace = 5 * time.Second

// ServerConfig configures the API server.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8089".
	Addr string

	// ServiceName labels otelgin spans.
	ServiceName string

	// Gatherer backs /metrics. Nil serves an empty registry.
	Gatherer prometheus.Gatherer

	Logger *logging.Logger
}

// Server is the HTTP API.
//
// # Thread Safety
//
// Start and Shutdown may be called from different goroutines. Sinks must be
// registered with the pipeline before it runs.
type Server struct {
	addr    string
	engine  *gin.Engine
	http    *http.Server
	store   *ReportStore
	hub     *Hub
	chain   *rules.Chain
	catalog *rules.Catalog
	logger  *logging.Logger
}

// NewServer builds the router.
//
// # Outputs
//
//   - *Server: Not yet listening.
//   - error: Non-nil if the embedded rule catalog fails to load.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "compliancepulse"
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.NewRegistry()
	}

	catalog, err := rules.LoadCatalog()
	if err != nil {
		return nil, fmt.Errorf("load rule catalog: %w", err)
	}

	logger := cfg.Logger.With("component", "api")
	s := &Server{
		addr:    cfg.Addr,
		store:   &ReportStore{},
		hub:     NewHub(logger),
		chain:   rules.NewChain(),
		catalog: catalog,
		logger:  logger,
	}

	s.engine = gin.New()
	s.engine.Use(gin.Recovery())
	s.engine.Use(otelgin.Middleware(cfg.ServiceName))
	s.routes(cfg.Gatherer)

	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Sinks returns the report sinks the pipeline must feed.
func (s *Server) Sinks() []pipeline.ReportSink {
	return []pipeline.ReportSink{s.store, s.hub}
}

// Store returns the latest-report store.
func (s *Server) Store() *ReportStore {
	return s.store
}

// Hub returns the stream hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start binds the listener and serves in the background.
//
// # Outputs
//
//   - error: Non-nil if the address cannot be bound. Serve errors after
//     that are logged.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.logger.Info("api listening", "address", ln.Addr().String())

	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server failed", "error", err)
		}
	}()
	return nil
}

// Shutdown closes stream clients and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()

	ctx, cancel := context.WithTimeout(ctx, shutdownGrace)
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	return nil
}
