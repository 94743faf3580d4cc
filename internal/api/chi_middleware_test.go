// CMDBSync - CMDB to Monitor Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cmdbsync

package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/cmdbsync/internal/config"
	"github.com/tomtom215/cmdbsync/internal/metrics"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestChiMiddlewareConfigFromSecurity(t *testing.T) {
	t.Parallel()
	cfg := ChiMiddlewareConfigFromSecurity(&config.SecurityConfig{
		APIKey:          "k",
		RateLimitReqs:   10,
		RateLimitWindow: time.Minute,
		CORSOrigins:     []string{"https://ops.example.com"},
	})

	if cfg.APIKey != "k" || cfg.RateLimitRequests != 10 || cfg.RateLimitWindow != time.Minute {
		t.Errorf("config = %+v", cfg)
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSMaxAge != 86400 {
		t.Errorf("CORS config = %v / %d", cfg.CORSAllowedOrigins, cfg.CORSMaxAge)
	}
}

func TestRateLimit_RejectsOverLimit(t *testing.T) {
	m := NewChiMiddleware(&ChiMiddlewareConfig{RateLimitRequests: 2, RateLimitWindow: time.Minute})
	handler := m.RateLimit("/test-limit")(okHandler)

	before := testutil.ToFloat64(metrics.APIRateLimitHits.WithLabelValues("/test-limit"))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.RemoteAddr = "192.0.2.10:1234"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("status codes = %v, want [200 200 429]", codes)
	}
	if got := testutil.ToFloat64(metrics.APIRateLimitHits.WithLabelValues("/test-limit")) - before; got != 1 {
		t.Errorf("rate limit hits = %v, want 1", got)
	}
}

func TestRateLimit_Disabled(t *testing.T) {
	t.Parallel()
	m := NewChiMiddleware(&ChiMiddlewareConfig{RateLimitRequests: 1, RateLimitWindow: time.Minute, RateLimitDisabled: true})
	handler := m.RateLimit("/disabled")(okHandler)

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, w.Code)
		}
	}
}

func TestAPIKeyAuth_EmptyKeyDisablesCheck(t *testing.T) {
	t.Parallel()
	handler := NewChiMiddleware(&ChiMiddlewareConfig{}).APIKeyAuth()(okHandler)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestCORS_Preflight(t *testing.T) {
	t.Parallel()
	handler := NewChiMiddleware(&ChiMiddlewareConfig{CORSAllowedOrigins: []string{"https://ops.example.com"}}).CORS()(okHandler)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/reconcile", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", APIKeyHeader)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://ops.example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}
