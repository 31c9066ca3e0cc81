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
	"sync"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/CompliancePulse/pkg/logging"
	"github.com/AleutianAI/CompliancePulse/services/compliance/metrics"
	"github.com/gorilla/websocket"
)

const (
	// clientBuffer is the number of reports a slow client may lag behind
	// before new reports are dropped for it.
	clientBuffer = 8

	writeWait = 5 * time.Second
)

// =============================================================================
// Latest Report Store
// =============================================================================

// ReportStore keeps the most recent report for GET /api/v1/report.
//
// # Thread Safety
//
// Safe for concurrent use.
type ReportStore struct {
	mu     sync.RWMutex
	latest *metrics.Report
}

// ObserveReport implements pipeline.ReportSink.
func (s *ReportStore) ObserveReport(r metrics.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = &r
}

// Latest returns the newest report, or false before the first one.
func (s *ReportStore) Latest() (metrics.Report, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return metrics.Report{}, false
	}
	return *s.latest, true
}

// =============================================================================
// Stream Hub
// =============================================================================

type streamClient struct {
	conn *websocket.Conn
	send chan metrics.Report
}

// Hub fans reports out to WebSocket subscribers.
//
// # Description
//
// Each client owns a small buffered channel. ObserveReport never blocks:
// a client whose buffer is full misses that report, the same best-effort
// rule the pipeline queues follow. Dropped counts those misses.
//
// # Thread Safety
//
// Safe for concurrent use.
type Hub struct {
	mu      sync.Mutex
	clients map[*streamClient]struct{}
	closed  bool

	dropped atomic.Uint64
	logger  *logging.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Hub{
		clients: make(map[*streamClient]struct{}),
		logger:  logger,
	}
}

// ObserveReport implements pipeline.ReportSink.
func (h *Hub) ObserveReport(r metrics.Report) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- r:
		default:
			h.dropped.Add(1)
		}
	}
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Dropped returns how many per-client reports were skipped.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Close disconnects every client. Later subscriptions are refused.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) register(conn *websocket.Conn) (*streamClient, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, false
	}
	c := &streamClient{conn: conn, send: make(chan metrics.Report, clientBuffer)}
	h.clients[c] = struct{}{}
	return c, true
}

func (h *Hub) unregister(c *streamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		close(c.send)
		delete(h.clients, c)
	}
}

// serve pumps reports to conn until either side goes away.
func (h *Hub) serve(conn *websocket.Conn) {
	defer conn.Close()

	c, ok := h.register(conn)
	if !ok {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		return
	}
	h.logger.Debug("stream client connected", "remote", conn.RemoteAddr().String())

	// The read side only exists to notice the peer closing.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.unregister(c)
				return
			}
		}
	}()

	for r := range c.send {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(r); err != nil {
			h.logger.Debug("stream write failed", "error", err)
			h.unregister(c)
			break
		}
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	h.logger.Debug("stream client disconnected", "remote", conn.RemoteAddr().String())
}
