// CMDBSync - CMDB to Monitor Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cmdbsync

package api

import (
	"net/http"
	"sort"
	"time"

	"github.com/tomtom215/cmdbsync/internal/scheduler"
)

// StatusResponse is the payload of GET /api/v1/status.
type StatusResponse struct {
	scheduler.Status
	Uptime    float64           `json:"uptime_seconds"`
	Upstreams map[string]string `json:"upstreams"`
}

// ReadinessResponse is the payload of GET /api/v1/health/ready.
type ReadinessResponse struct {
	Ready     bool              `json:"ready"`
	Upstreams map[string]string `json:"upstreams"`
	Open      []string          `json:"open,omitempty"`
}

// Status handles GET /api/v1/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(StatusResponse{
		Status:    h.runs.Status(),
		Uptime:    time.Since(h.startTime).Seconds(),
		Upstreams: h.upstreamStates(),
	})
}

// HealthLive handles liveness probes. The process answering is enough.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

// HealthReady handles readiness probes. Returns 503 while any upstream
// circuit breaker is open.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	states := h.upstreamStates()
	resp := ReadinessResponse{Ready: true, Upstreams: states}
	for name, state := range states {
		if state == "open" {
			resp.Ready = false
			resp.Open = append(resp.Open, name)
		}
	}

	if !resp.Ready {
		sort.Strings(resp.Open)
		rw.ErrorWithDetails(http.StatusServiceUnavailable, ErrCodeServiceUnavailable,
			"Upstream circuit breaker open", resp)
		return
	}
	rw.Success(resp)
}

func (h *Handler) upstreamStates() map[string]string {
	states := make(map[string]string, len(h.upstreams))
	for name, state := range h.upstreams {
		states[name] = state()
	}
	return states
}
