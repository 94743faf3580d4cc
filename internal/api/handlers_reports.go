// CMDBSync - CMDB to Monitor Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cmdbsync

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/cmdbsync/internal/logging"
	"github.com/tomtom215/cmdbsync/internal/models"
)

// ListReports handles GET /api/v1/reports. Summaries are returned newest first.
func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.reports == nil {
		rw.ServiceUnavailable("Run history is disabled")
		return
	}

	limit, err := intParam(r, "limit", 0)
	if err != nil {
		rw.BadRequest("limit must be an integer")
		return
	}
	req := ReportsRequest{Limit: limit}
	if apiErr := validateRequest(&req); apiErr != nil {
		rw.ValidationError(apiErr.Message, apiErr.Details)
		return
	}

	summaries, err := h.reports.List(r.Context(), req.Limit)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to list run reports")
		rw.InternalError("Failed to list run reports")
		return
	}
	rw.Success(summaries)
}

// GetReport handles GET /api/v1/reports/{id}.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.reports == nil {
		rw.ServiceUnavailable("Run history is disabled")
		return
	}

	req := ReportIDRequest{ID: chi.URLParam(r, "id")}
	if apiErr := validateRequest(&req); apiErr != nil {
		rw.ValidationError(apiErr.Message, apiErr.Details)
		return
	}

	report, err := h.reports.Get(r.Context(), req.ID)
	switch {
	case errors.Is(err, models.ErrReportNotFound):
		rw.NotFound("Report not found")
	case err != nil:
		logging.Ctx(r.Context()).Error().Err(err).Str("run_id", req.ID).Msg("Failed to load run report")
		rw.InternalError("Failed to load run report")
	default:
		rw.Success(report)
	}
}
