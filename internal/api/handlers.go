// CMDBSync - CMDB to Monitor Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cmdbsync

package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/tomtom215/cmdbsync/internal/models"
	"github.com/tomtom215/cmdbsync/internal/reconcile"
	"github.com/tomtom215/cmdbsync/internal/scheduler"
)

// RunManager triggers runs and reports run state. Implemented by *scheduler.Manager.
type RunManager interface {
	Trigger(ctx context.Context, trigger string, req reconcile.RunRequest) (*models.Report, error)
	Status() scheduler.Status
}

// ReportStore reads persisted run reports. Implemented by *history.Store.
type ReportStore interface {
	Get(ctx context.Context, id string) (*models.Report, error)
	List(ctx context.Context, limit int) ([]models.ReportSummary, error)
}

// BreakerStateFunc reports a circuit breaker state: closed, half-open or open.
type BreakerStateFunc func() string

// Handler contains dependencies for API handlers.
//
// Handler methods are split across files:
//   - handlers.go: Handler struct, constructor, shared helpers (this file)
//   - handlers_reconcile.go: run triggers
//   - handlers_reports.go: run history
//   - handlers_health.go: status and probes
type Handler struct {
	runs      RunManager
	reports   ReportStore
	upstreams map[string]BreakerStateFunc
	startTime time.Time
}

// NewHandler creates the API handler. reports may be nil when run history
// is disabled; upstreams maps a dependency name (cmdb, monitor) to its
// breaker state for the readiness probe.
func NewHandler(runs RunManager, reports ReportStore, upstreams map[string]BreakerStateFunc) *Handler {
	if upstreams == nil {
		upstreams = map[string]BreakerStateFunc{}
	}
	return &Handler{
		runs:      runs,
		reports:   reports,
		upstreams: upstreams,
		startTime: time.Now(),
	}
}

// intParam parses an integer query parameter, returning def when absent.
func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// boolParam parses a boolean query parameter, returning def when absent.
func boolParam(r *http.Request, name string, def bool) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.ParseBool(raw)
}
