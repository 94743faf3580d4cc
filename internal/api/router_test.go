// CMDBSync - CMDB to Monitor Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cmdbsync

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/cmdbsync/internal/models"
	"github.com/tomtom215/cmdbsync/internal/reconcile"
	"github.com/tomtom215/cmdbsync/internal/scheduler"
)

const testReportID = "0b6f2c7e-3b1d-4f4a-9d1e-2a5c8e9f0a11"

type fakeRuns struct {
	mu       sync.Mutex
	requests []reconcile.RunRequest
	err      error
	noReport bool
}

func (f *fakeRuns) Trigger(_ context.Context, trigger string, req reconcile.RunRequest) (*models.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req.Trigger = trigger
	f.requests = append(f.requests, req)
	if f.noReport {
		return nil, f.err
	}
	now := time.Now().UTC()
	return &models.Report{
		ID:         testReportID,
		Trigger:    trigger,
		DryRun:     req.DryRun,
		Filter:     req.Filter,
		StartedAt:  now,
		FinishedAt: now,
		Companies:  []models.CompanyReport{},
	}, f.err
}

func (f *fakeRuns) Status() scheduler.Status {
	return scheduler.Status{ScheduleEnabled: true, Schedule: "0 3 * * *"}
}

func (f *fakeRuns) last() reconcile.RunRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

type fakeReports struct {
	reports map[string]*models.Report
	err     error
}

func (f *fakeReports) Get(_ context.Context, id string) (*models.Report, error) {
	if f.err != nil {
		return nil, f.err
	}
	report, ok := f.reports[id]
	if !ok {
		return nil, models.ErrReportNotFound
	}
	return report, nil
}

func (f *fakeReports) List(_ context.Context, limit int) ([]models.ReportSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := []models.ReportSummary{}
	for _, r := range f.reports {
		out = append(out, r.Summary())
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type routerFixture struct {
	runs    *fakeRuns
	reports *fakeReports
	breaker string
	handler http.Handler
}

func newRouterFixture(t *testing.T, apiKey string) *routerFixture {
	t.Helper()
	f := &routerFixture{
		runs: &fakeRuns{},
		reports: &fakeReports{reports: map[string]*models.Report{
			testReportID: {ID: testReportID, Trigger: "schedule", Companies: []models.CompanyReport{}},
		}},
		breaker: "closed",
	}
	handler := NewHandler(f.runs, f.reports, map[string]BreakerStateFunc{
		"cmdb":    func() string { return "closed" },
		"monitor": func() string { return f.breaker },
	})
	chiMw := NewChiMiddleware(&ChiMiddlewareConfig{
		CORSAllowedOrigins: []string{"*"},
		RateLimitDisabled:  true,
		APIKey:             apiKey,
	})
	f.handler = NewRouter(handler, chiMw).SetupChi()
	return f
}

func (f *routerFixture) do(method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func TestRouter_Reconcile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantFilter models.RunFilter
		wantDryRun bool
	}{
		{"no body", "/api/v1/reconcile", "", http.StatusOK, models.RunFilter{}, false},
		{"company and location", "/api/v1/reconcile", `{"company":"ACME Corporation","location":"HQ","dry_run":true}`,
			http.StatusOK, models.RunFilter{Company: "ACME Corporation", Location: "HQ"}, true},
		{"company path", "/api/v1/reconcile/ACME", "", http.StatusOK, models.RunFilter{Company: "ACME"}, false},
		{"company path dry run", "/api/v1/reconcile/ACME?dry_run=true", "", http.StatusOK, models.RunFilter{Company: "ACME"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newRouterFixture(t, "")
			w := f.do(http.MethodPost, tt.path, tt.body, nil)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			got := f.runs.last()
			if got.Filter != tt.wantFilter || got.DryRun != tt.wantDryRun {
				t.Errorf("run request = %+v, want filter %+v dry_run %v", got, tt.wantFilter, tt.wantDryRun)
			}
			if got.Trigger != scheduler.TriggerAPI {
				t.Errorf("trigger = %s, want %s", got.Trigger, scheduler.TriggerAPI)
			}
			if w.Header().Get("X-Request-ID") == "" {
				t.Error("X-Request-ID header not set")
			}
		})
	}
}

func TestRouter_ReconcileRejectsBadInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		path     string
		body     string
		wantCode string
	}{
		{"malformed json", "/api/v1/reconcile", `{"company":`, ErrCodeBadRequest},
		{"unknown field", "/api/v1/reconcile", `{"customer":"ACME"}`, ErrCodeBadRequest},
		{"padded company", "/api/v1/reconcile", `{"company":" ACME "}`, ErrCodeValidationFailed},
		{"bad dry_run", "/api/v1/reconcile/ACME?dry_run=maybe", "", ErrCodeBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newRouterFixture(t, "")
			w := f.do(http.MethodPost, tt.path, tt.body, nil)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400: %s", w.Code, w.Body.String())
			}
			if resp := decodeEnvelope(t, w); resp.Error == nil || resp.Error.Code != tt.wantCode {
				t.Errorf("error = %+v, want code %s", resp.Error, tt.wantCode)
			}
			if len(f.runs.requests) != 0 {
				t.Error("run triggered for invalid input")
			}
		})
	}
}

func TestRouter_ReconcileErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		runs       *fakeRuns
		wantStatus int
	}{
		{"run in progress", &fakeRuns{err: models.ErrRunInProgress, noReport: true}, http.StatusConflict},
		{"company not found", &fakeRuns{err: models.ErrCompanyNotFound, noReport: true}, http.StatusNotFound},
		{"no report", &fakeRuns{err: errors.New("boom"), noReport: true}, http.StatusInternalServerError},
		{"failed run with report", &fakeRuns{err: models.ErrUpstreamUnavailable}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newRouterFixture(t, "")
			f.handler = NewRouter(NewHandler(tt.runs, f.reports, nil),
				NewChiMiddleware(&ChiMiddlewareConfig{RateLimitDisabled: true})).SetupChi()

			w := f.do(http.MethodPost, "/api/v1/reconcile/ACME", "", nil)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestRouter_Reports(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{"list", "/api/v1/reports", http.StatusOK},
		{"list with limit", "/api/v1/reports?limit=5", http.StatusOK},
		{"list bad limit", "/api/v1/reports?limit=abc", http.StatusBadRequest},
		{"list limit too large", "/api/v1/reports?limit=5000", http.StatusBadRequest},
		{"get", "/api/v1/reports/" + testReportID, http.StatusOK},
		{"get unknown", "/api/v1/reports/11111111-2222-4333-8444-555555555555", http.StatusNotFound},
		{"get invalid id", "/api/v1/reports/not-a-uuid", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newRouterFixture(t, "")
			w := f.do(http.MethodGet, tt.path, "", nil)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestRouter_ReportsDisabled(t *testing.T) {
	t.Parallel()
	handler := NewRouter(NewHandler(&fakeRuns{}, nil, nil),
		NewChiMiddleware(&ChiMiddlewareConfig{RateLimitDisabled: true})).SetupChi()

	for _, path := range []string{"/api/v1/reports", "/api/v1/reports/" + testReportID} {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("GET %s status = %d, want 503", path, w.Code)
		}
	}
}

func TestRouter_APIKey(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t, "secret-key")

	tests := []struct {
		name       string
		method     string
		path       string
		key        string
		wantStatus int
	}{
		{"missing key", http.MethodGet, "/api/v1/status", "", http.StatusUnauthorized},
		{"wrong key", http.MethodGet, "/api/v1/status", "nope", http.StatusUnauthorized},
		{"valid key", http.MethodGet, "/api/v1/status", "secret-key", http.StatusOK},
		{"trigger without key", http.MethodPost, "/api/v1/reconcile", "", http.StatusUnauthorized},
		{"live probe without key", http.MethodGet, "/api/v1/health/live", "", http.StatusOK},
		{"ready probe without key", http.MethodGet, "/api/v1/health/ready", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := map[string]string{}
			if tt.key != "" {
				header[APIKeyHeader] = tt.key
			}
			w := f.do(tt.method, tt.path, "", header)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
	if len(f.runs.requests) != 0 {
		t.Error("unauthenticated trigger reached the run manager")
	}
}

func TestRouter_Readiness(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t, "")

	if w := f.do(http.MethodGet, "/api/v1/health/ready", "", nil); w.Code != http.StatusOK {
		t.Fatalf("ready status = %d, want 200", w.Code)
	}

	f.breaker = "open"
	w := f.do(http.MethodGet, "/api/v1/health/ready", "", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready status with open breaker = %d, want 503", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"monitor"`) {
		t.Errorf("body does not name the open upstream: %s", w.Body.String())
	}
}

func TestRouter_Status(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t, "")

	w := f.do(http.MethodGet, "/api/v1/status", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{`"schedule_enabled":true`, `"schedule":"0 3 * * *"`, `"cmdb":"closed"`} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %s: %s", want, body)
		}
	}
}

func TestRouter_NotFoundAndMetrics(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t, "")

	if w := f.do(http.MethodGet, "/nope", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown path status = %d, want 404", w.Code)
	}
	if w := f.do(http.MethodGet, "/api/v1/reconcile", "", nil); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /reconcile status = %d, want 405", w.Code)
	}
	w := f.do(http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Errorf("/metrics status = %d", w.Code)
	}
}
