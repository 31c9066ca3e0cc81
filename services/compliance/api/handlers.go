// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"net/http"

	"github.com/AleutianAI/CompliancePulse/services/compliance/event"
	"github.com/AleutianAI/CompliancePulse/services/compliance/rules"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 16 * 1024,
}

// EvaluateRequest is the body of POST /api/v1/evaluate. Catalog fields take
// a display name (case-insensitive) or an index.
type EvaluateRequest struct {
	Service     string `json:"service" binding:"required"`
	Vendor      string `json:"vendor" binding:"required"`
	Department  string `json:"department" binding:"required"`
	Sensitivity *int   `json:"sensitivity" binding:"required,min=0,max=100"`
}

// RulesResponse is the body of GET /api/v1/rules.
type RulesResponse struct {
	Chain   []string      `json:"chain"`
	Catalog *rules.Catalog `json:"catalog"`
}

// ErrorResponse is returned with every 4xx.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) routes(gatherer prometheus.Gatherer) {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := s.engine.Group("/api/v1")
	v1.GET("/report", s.handleReport)
	v1.GET("/rules", s.handleRules)
	v1.POST("/evaluate", s.handleEvaluate)
	v1.GET("/stream", s.handleStream)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleReport(c *gin.Context) {
	report, ok := s.store.Latest()
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleRules(c *gin.Context) {
	stages := s.chain.Stages()
	names := make([]string, len(stages))
	for i, st := range stages {
		names[i] = st.Name()
	}
	c.JSON(http.StatusOK, RulesResponse{Chain: names, Catalog: s.catalog})
}

func (s *Server) handleEvaluate(c *gin.Context) {
	var req EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	e, err := req.toEvent()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	explanation, err := s.chain.Explain(&e)
	if err != nil {
		s.logger.Error("evaluate failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "rule catalog unavailable"})
		return
	}
	c.JSON(http.StatusOK, explanation)
}

func (s *Server) handleStream(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("failed to upgrade the websocket", "error", err)
		return
	}
	s.hub.serve(ws)
}

func (r EvaluateRequest) toEvent() (event.Event, error) {
	name, err := event.ParseServiceName(r.Service)
	if err != nil {
		return event.Event{}, err
	}
	vendor, err := event.ParseVendor(r.Vendor)
	if err != nil {
		return event.Event{}, err
	}
	dept, err := event.ParseDepartment(r.Department)
	if err != nil {
		return event.Event{}, err
	}
	return event.New(
		event.Service{Name: name, Vendor: vendor},
		event.Usage{Department: dept, Sensitivity: uint8(*r.Sensitivity)},
	), nil
}
