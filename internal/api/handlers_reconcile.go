// CMDBSync - CMDB to Monitor Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cmdbsync

package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/cmdbsync/internal/logging"
	"github.com/tomtom215/cmdbsync/internal/models"
	"github.com/tomtom215/cmdbsync/internal/reconcile"
	"github.com/tomtom215/cmdbsync/internal/scheduler"
)

// maxRequestBody bounds reconcile request bodies.
const maxRequestBody = 64 << 10

// Reconcile handles POST /api/v1/reconcile. The JSON body is optional.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req ReconcileRequest
	if r.ContentLength != 0 {
		dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			rw.BadRequest("Invalid JSON body: " + err.Error())
			return
		}
	}

	h.runReconcile(rw, r, req)
}

// ReconcileCompany handles POST /api/v1/reconcile/{company}. Set the dry_run
// query parameter to plan without writing.
func (h *Handler) ReconcileCompany(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	dryRun, err := boolParam(r, "dry_run", false)
	if err != nil {
		rw.BadRequest("dry_run must be a boolean")
		return
	}

	h.runReconcile(rw, r, ReconcileRequest{
		Company: chi.URLParam(r, "company"),
		DryRun:  dryRun,
	})
}

func (h *Handler) runReconcile(rw *ResponseWriter, r *http.Request, req ReconcileRequest) {
	if apiErr := validateRequest(&req); apiErr != nil {
		rw.ValidationError(apiErr.Message, apiErr.Details)
		return
	}

	logger := logging.Ctx(r.Context())
	logger.Info().
		Str("company", req.Company).
		Str("location", req.Location).
		Bool("dry_run", req.DryRun).
		Msg("Reconciliation requested")

	report, err := h.runs.Trigger(r.Context(), scheduler.TriggerAPI, reconcile.RunRequest{
		Filter: models.RunFilter{Company: req.Company, Location: req.Location},
		DryRun: req.DryRun,
	})
	switch {
	case errors.Is(err, models.ErrRunInProgress):
		rw.Conflict("A reconciliation run is already in progress")
		return
	case errors.Is(err, models.ErrCompanyNotFound):
		rw.NotFound("No in-scope CMDB records for company " + req.Company)
		return
	case report == nil:
		logger.Error().Err(err).Msg("Reconciliation failed without a report")
		rw.InternalError("Reconciliation failed")
		return
	}

	// A report is returned whatever its result; failures are described inside it.
	rw.Success(report)
}
