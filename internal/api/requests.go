// CMDBSync - CMDB to Monitor Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cmdbsync

package api

import (
	"github.com/tomtom215/cmdbsync/internal/validation"
)

// ReconcileRequest is the body of POST /api/v1/reconcile. All fields are
// optional; an empty request reconciles every in-scope company.
//
// Fields:
//   - Company: limit the run to one company (CMDB company name)
//   - Location: limit the run to one location name
//   - DryRun: plan and build payloads without writing to the monitor
type ReconcileRequest struct {
	Company  string `json:"company,omitempty" validate:"omitempty,max=200,objectname"`
	Location string `json:"location,omitempty" validate:"omitempty,max=200,objectname"`
	DryRun   bool   `json:"dry_run,omitempty"`
}

// ReportsRequest holds the validated query parameters of GET /api/v1/reports.
type ReportsRequest struct {
	Limit int `validate:"min=0,max=1000"`
}

// ReportIDRequest holds the report ID path parameter.
type ReportIDRequest struct {
	ID string `validate:"required,uuid"`
}

// validateRequest validates a request struct.
func validateRequest(req interface{}) *validation.APIError {
	if err := validation.ValidateStruct(req); err != nil {
		return err.ToAPIError()
	}
	return nil
}
