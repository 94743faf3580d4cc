// CMDBSync - CMDB to Monitor Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cmdbsync

package models

import "time"

// EntityState is the per-entity execution state:
// pending -> creating -> created | failed.
type EntityState string

const (
	StatePending  EntityState = "pending"
	StateCreating EntityState = "creating"
	StateCreated  EntityState = "created"
	StateFailed   EntityState = "failed"
)

// Terminal reports whether no further transition is possible.
func (s EntityState) Terminal() bool {
	return s == StateCreated || s == StateFailed
}

// Outcome is the result of one planned creation.
type Outcome struct {
	Kind      NodeKind    `json:"kind"`
	Key       string      `json:"key"`
	Name      string      `json:"name"`
	SysID     string      `json:"sys_id,omitempty"`
	MonitorID int         `json:"monitor_id,omitempty"`
	State     EntityState `json:"state"`
	Failure   *Issue      `json:"failure,omitempty"`

	// Warnings flag a created entity that needs attention (decryption error,
	// failed write-back).
	Warnings []Issue `json:"warnings,omitempty"`

	// Payload is the device payload, kept for dry runs.
	Payload *DeviceSpec `json:"payload,omitempty"`
}

// Flagged reports whether a created entity carries warnings.
func (o *Outcome) Flagged() bool {
	return o.State == StateCreated && len(o.Warnings) > 0
}

// Counts is the created/matched/skipped/orphaned/failed tally. Mismatched
// counts matched devices with at least one drifted field.
type Counts struct {
	Created    int `json:"created"`
	Matched    int `json:"matched"`
	Mismatched int `json:"mismatched"`
	Skipped    int `json:"skipped"`
	Orphaned   int `json:"orphaned"`
	Failed     int `json:"failed"`
	Flagged    int `json:"flagged"`
}

// Add accumulates other into c.
func (c *Counts) Add(other Counts) {
	c.Created += other.Created
	c.Matched += other.Matched
	c.Mismatched += other.Mismatched
	c.Skipped += other.Skipped
	c.Orphaned += other.Orphaned
	c.Failed += other.Failed
	c.Flagged += other.Flagged
}

// CompanyReport is the reconciliation result of one company.
type CompanyReport struct {
	Company   string `json:"company"`
	GroupName string `json:"group_name"`
	GroupID   int    `json:"group_id,omitempty"`

	Counts Counts `json:"counts"`

	// Error is set when the company could not be reconciled at all
	// (template missing, monitor unreachable).
	Error *Issue `json:"error,omitempty"`

	// Failures lists every failed entity and skipped record with its reason.
	Failures []Issue `json:"failures,omitempty"`

	// Warnings lists flagged entities.
	Warnings []Issue `json:"warnings,omitempty"`

	Outcomes         []Outcome         `json:"outcomes,omitempty"`
	Matched          []MatchedDevice   `json:"matched_devices,omitempty"`
	Orphaned         []OrphanedDevice  `json:"orphaned_devices,omitempty"`
	Skipped          []SkippedRecord   `json:"skipped_records,omitempty"`
	SkippedLocations []SkippedLocation `json:"skipped_locations,omitempty"`

	DurationMS int64 `json:"duration_ms"`
}

// Failed reports whether the company had a fatal error or any failed entity.
func (r *CompanyReport) Failed() bool {
	return r.Error != nil || r.Counts.Failed > 0
}

// RunFilter narrows a run to one company and optionally one location.
type RunFilter struct {
	Company  string `json:"company,omitempty"`
	Location string `json:"location,omitempty"`
}

// Report is the result of one reconciliation run and the sole value returned
// to callers.
type Report struct {
	ID         string    `json:"id"`
	Trigger    string    `json:"trigger"` // api, schedule, startup
	DryRun     bool      `json:"dry_run"`
	Filter     RunFilter `json:"filter"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMS int64     `json:"duration_ms"`

	Totals          Counts `json:"totals"`
	CompaniesFailed int    `json:"companies_failed"`

	// Errors are run-level issues, such as the CMDB being unreachable.
	Errors []Issue `json:"errors,omitempty"`

	// Rejected lists records that could not be attributed to any company.
	Rejected []SkippedRecord `json:"rejected_records,omitempty"`

	Companies []CompanyReport `json:"companies"`
}

// Success reports whether the run finished without any failure.
func (r *Report) Success() bool {
	return len(r.Errors) == 0 && r.CompaniesFailed == 0 && r.Totals.Failed == 0
}

// Result is the run result label used in metrics and logs: success, partial or failed.
func (r *Report) Result() string {
	switch {
	case r.Success():
		return "success"
	case len(r.Errors) > 0 || (len(r.Companies) > 0 && r.CompaniesFailed == len(r.Companies)):
		return "failed"
	default:
		return "partial"
	}
}

// ReportSummary is the list view of a stored report.
type ReportSummary struct {
	ID         string    `json:"id"`
	Trigger    string    `json:"trigger"`
	DryRun     bool      `json:"dry_run"`
	Result     string    `json:"result"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	Companies  int       `json:"companies"`
	Totals     Counts    `json:"totals"`
}

// Summary returns the list view of r.
func (r *Report) Summary() ReportSummary {
	return ReportSummary{
		ID:         r.ID,
		Trigger:    r.Trigger,
		DryRun:     r.DryRun,
		Result:     r.Result(),
		StartedAt:  r.StartedAt,
		DurationMS: r.DurationMS,
		Companies:  len(r.Companies),
		Totals:     r.Totals,
	}
}
