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
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/AleutianAI/CompliancePulse/services/compliance/metrics"
	"github.com/AleutianAI/CompliancePulse/services/compliance/observability"
	"github.com/AleutianAI/CompliancePulse/services/compliance/rules"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Setup
// =============================================================================

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) (*Server, *observability.Exporter) {
	t.Helper()
	exp := observability.NewExporter(false)
	srv, err := NewServer(ServerConfig{Addr: "127.0.0.1:0", Gatherer: exp.Registry()})
	require.NoError(t, err)
	return srv, exp
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func sampleReport(interval uint64) metrics.Report {
	return metrics.Report{
		RunID:       "run-api",
		Interval:    interval,
		Throughput:  500,
		RateHistory: []float64{500},
		Totals: metrics.Snapshot{
			TotalEvents:    1000,
			GDPRViolations: 480,
			LowRisk:        1000,
		},
	}
}

// =============================================================================
// Route Tests
// =============================================================================

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	w := do(t, srv.Handler(), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestReport_NoContentBeforeFirstTick(t *testing.T) {
	srv, _ := newTestServer(t)
	w := do(t, srv.Handler(), http.MethodGet, "/api/v1/report", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestReport_ReturnsLatest(t *testing.T) {
	srv, _ := newTestServer(t)
	for _, sink := range srv.Sinks() {
		sink.ObserveReport(sampleReport(1))
		sink.ObserveReport(sampleReport(2))
	}

	w := do(t, srv.Handler(), http.MethodGet, "/api/v1/report", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got metrics.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, uint64(2), got.Interval)
	assert.Equal(t, "run-api", got.RunID)
	assert.Equal(t, uint64(480), got.Totals.GDPRViolations)
	assert.Equal(t, []float64{500}, got.RateHistory)
}

func TestRules(t *testing.T) {
	srv, _ := newTestServer(t)
	w := do(t, srv.Handler(), http.MethodGet, "/api/v1/rules", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got RulesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, []string{"eu_ai_act", "gdpr", "internal_policy", "risk_assessment"}, got.Chain)
	require.NotNil(t, got.Catalog)
	assert.Len(t, got.Catalog.Factors, 5)
}

func TestEvaluate(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name      string
		body      string
		wantCode  int
		wantScore uint8
		wantTier  string
	}{
		{
			name:      "high risk",
			body:      `{"service":"ChatGPT","vendor":"OpenAI","department":"Marketing","sensitivity":85}`,
			wantCode:  http.StatusOK,
			wantScore: 85,
			wantTier:  "high",
		},
		{
			name:      "finance on unapproved service",
			body:      `{"service":"gemini","vendor":"google","department":"finance","sensitivity":10}`,
			wantCode:  http.StatusOK,
			wantScore: 20,
			wantTier:  "low",
		},
		{
			name:      "zero sensitivity is valid",
			body:      `{"service":"1","vendor":"1","department":"0","sensitivity":0}`,
			wantCode:  http.StatusOK,
			wantScore: 0,
			wantTier:  "low",
		},
		{
			name:     "missing sensitivity",
			body:     `{"service":"Claude","vendor":"Anthropic","department":"HR"}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "sensitivity out of range",
			body:     `{"service":"Claude","vendor":"Anthropic","department":"HR","sensitivity":101}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown department",
			body:     `{"service":"Claude","vendor":"Anthropic","department":"Sales","sensitivity":1}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "malformed json",
			body:     `{"service":`,
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, srv.Handler(), http.MethodPost, "/api/v1/evaluate", tt.body)
			require.Equal(t, tt.wantCode, w.Code, w.Body.String())
			if tt.wantCode != http.StatusOK {
				var errResp ErrorResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errResp))
				assert.NotEmpty(t, errResp.Error)
				return
			}
			var got rules.Explanation
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
			assert.Equal(t, tt.wantScore, got.Score)
			assert.Equal(t, tt.wantTier, got.Tier)
		})
	}
}

func TestMetrics(t *testing.T) {
	srv, exp := newTestServer(t)
	exp.ObserveReport(sampleReport(1))

	w := do(t, srv.Handler(), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "compliancepulse_report_events 1000")
	assert.Contains(t, w.Body.String(), `compliancepulse_report_violations{rule="GDPR"} 480`)
}

// =============================================================================
// Stream Tests
// =============================================================================

func dialStream(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn
}

func TestStream_PushesReports(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialStream(t, ts)
	defer conn.Close()

	require.Eventually(t, func() bool { return srv.Hub().Clients() == 1 }, 2*time.Second, 5*time.Millisecond)

	srv.Hub().ObserveReport(sampleReport(7))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got metrics.Report
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, uint64(7), got.Interval)
}

func TestStream_ClientCloseUnregisters(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialStream(t, ts)
	require.Eventually(t, func() bool { return srv.Hub().Clients() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return srv.Hub().Clients() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestHub_SlowClientDropsReports(t *testing.T) {
	hub := NewHub(nil)
	c := &streamClient{send: make(chan metrics.Report, clientBuffer)}
	hub.clients[c] = struct{}{}

	for i := 0; i < clientBuffer+5; i++ {
		hub.ObserveReport(sampleReport(uint64(i)))
	}

	assert.Len(t, c.send, clientBuffer)
	assert.Equal(t, uint64(5), hub.Dropped())

	hub.Close()
	hub.Close()
	assert.Equal(t, 0, hub.Clients())
}

func TestServer_StartAndShutdown(t *testing.T) {
	srv, _ := newTestServer(t)
	require.NoError(t, srv.Start())
	require.NoError(t, srv.Shutdown(context.Background()))
}

func TestServer_StartFailsOnBadAddress(t *testing.T) {
	srv, err := NewServer(ServerConfig{Addr: "256.0.0.1:99999"})
	require.NoError(t, err)
	assert.Error(t, srv.Start())
}
