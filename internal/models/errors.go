// CMDBSync - CMDB to Monitor Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cmdbsync

package models

import (
	"context"
	"errors"
)

// Reconciliation error taxonomy. Each error is contained at the smallest scope
// that keeps the run moving: record, device or company.
var (
	// ErrUpstreamUnavailable means the CMDB, monitor or secrets service could not
	// be reached, timed out or answered with a server error. Not retried within a run.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrMalformedRecord means a CMDB record is missing a required field. The
	// record is skipped.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrDuplicateDevice means two records resolve to the same device name under
	// the same location. The first record wins.
	ErrDuplicateDevice = errors.New("duplicate device")

	// ErrTemplateNotFound means a clone source does not exist. Fatal for the company.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrParentCreationFailed marks entities whose parent group was not created.
	ErrParentCreationFailed = errors.New("parent creation failed")

	// ErrDecryption means a device password could not be decrypted. The device
	// is still created, inheriting credentials, and flagged.
	ErrDecryption = errors.New("decryption error")

	// ErrRunInProgress is returned when a run is triggered while another is active.
	ErrRunInProgress = errors.New("reconciliation run already in progress")

	// ErrCompanyNotFound is returned when a company filter matches no in-scope record.
	ErrCompanyNotFound = errors.New("company not found")

	// ErrReportNotFound is returned by the history store for unknown report IDs.
	ErrReportNotFound = errors.New("report not found")
)

// Reason codes used in reports and API responses.
const (
	ReasonUpstreamUnavailable  = "upstream_unavailable"
	ReasonMalformedRecord      = "malformed_record"
	ReasonDuplicateDevice      = "duplicate_device"
	ReasonTemplateNotFound     = "template_not_found"
	ReasonParentCreationFailed = "parent_creation_failed"
	ReasonDecryptionError      = "decryption_error"
	ReasonBelowMinDevices      = "below_min_devices"
	ReasonWritebackFailed      = "writeback_failed"
	ReasonNoCredentialProfile  = "no_credential_profile"
	ReasonMissingUsername      = "missing_username"
	ReasonFieldMismatch        = "field_mismatch"
	ReasonCompanyNotFound      = "company_not_found"
	ReasonCanceled             = "canceled"
	ReasonInternal             = "internal"
)

// ReasonFor maps err to a report reason code. Wrapped errors are unwrapped.
// Returns "" for a nil error.
func ReasonFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrParentCreationFailed):
		return ReasonParentCreationFailed
	case errors.Is(err, ErrTemplateNotFound):
		return ReasonTemplateNotFound
	case errors.Is(err, ErrDuplicateDevice):
		return ReasonDuplicateDevice
	case errors.Is(err, ErrMalformedRecord):
		return ReasonMalformedRecord
	case errors.Is(err, ErrDecryption):
		return ReasonDecryptionError
	case errors.Is(err, ErrCompanyNotFound):
		return ReasonCompanyNotFound
	case errors.Is(err, ErrUpstreamUnavailable), errors.Is(err, context.DeadlineExceeded):
		return ReasonUpstreamUnavailable
	case errors.Is(err, context.Canceled):
		return ReasonCanceled
	default:
		return ReasonInternal
	}
}

// Issue is a reason code plus a human-readable message.
type Issue struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// NewIssue builds an Issue from err.
func NewIssue(err error) Issue {
	return Issue{Reason: ReasonFor(err), Message: err.Error()}
}
