// CMDBSync - CMDB to Monitor Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cmdbsync

package reconcile

import (
	"fmt"

	"github.com/tomtom215/cmdbsync/internal/models"
)

// Summarize builds the company report from its delta and execution outcomes.
// rejected are records the CMDB reader dropped for this company.
func Summarize(delta *models.Delta, outcomes []models.Outcome, rejected []models.SkippedRecord) models.CompanyReport {
	rep := models.CompanyReport{
		Company:          delta.Company.Name,
		GroupName:        delta.GroupName,
		GroupID:          delta.GroupID,
		Outcomes:         outcomes,
		Matched:          delta.Matched,
		Orphaned:         delta.Orphaned,
		SkippedLocations: delta.SkippedLocations,
	}
	rep.Skipped = append(rep.Skipped, rejected...)
	rep.Skipped = append(rep.Skipped, delta.Skipped...)

	for i := range outcomes {
		o := &outcomes[i]
		switch o.State {
		case models.StateCreated:
			rep.Counts.Created++
			if o.Kind == models.KindCompanyGroup {
				rep.GroupID = o.MonitorID
			}
		case models.StateFailed:
			rep.Counts.Failed++
			if o.Failure != nil {
				rep.Failures = append(rep.Failures, prefixed(o.Name, *o.Failure))
			}
		}
		if o.Flagged() {
			rep.Counts.Flagged++
		}
		for _, w := range o.Warnings {
			rep.Warnings = append(rep.Warnings, prefixed(o.Name, w))
		}
	}

	for _, s := range rep.Skipped {
		rep.Counts.Skipped++
		rep.Failures = append(rep.Failures, prefixed(s.SysID, s.Issue))
	}
	for _, l := range delta.SkippedLocations {
		rep.Counts.Skipped += l.Devices
		rep.Failures = append(rep.Failures, models.Issue{
			Reason:  models.ReasonBelowMinDevices,
			Message: fmt.Sprintf("%s: %d in-scope device(s), below the minimum", l.Name, l.Devices),
		})
	}

	rep.Counts.Matched = len(delta.Matched)
	for _, m := range delta.Matched {
		if len(m.Mismatches) == 0 {
			continue
		}
		rep.Counts.Mismatched++
		for _, f := range m.Mismatches {
			rep.Warnings = append(rep.Warnings, models.Issue{
				Reason:  models.ReasonFieldMismatch,
				Message: fmt.Sprintf("%s: %s is %q, expected %q", m.Name, f.Field, f.Current, f.Expected),
			})
		}
	}
	rep.Counts.Orphaned = len(delta.Orphaned)
	return rep
}

// CompanyFailure is the report of a company that could not be planned at all.
func CompanyFailure(company models.Company, err error, rejected []models.SkippedRecord) models.CompanyReport {
	issue := models.NewIssue(err)
	rep := models.CompanyReport{
		Company:   company.Name,
		GroupName: company.GroupName(),
		Error:     &issue,
		Skipped:   rejected,
	}
	rep.Counts.Skipped = len(rejected)
	for _, s := range rejected {
		rep.Failures = append(rep.Failures, prefixed(s.SysID, s.Issue))
	}
	return rep
}

// Finalize totals the company reports into the run report.
func Finalize(report *models.Report) {
	report.Totals = models.Counts{}
	report.CompaniesFailed = 0
	for i := range report.Companies {
		c := &report.Companies[i]
		report.Totals.Add(c.Counts)
		if c.Failed() {
			report.CompaniesFailed++
		}
	}
	report.Totals.Skipped += len(report.Rejected)
	report.DurationMS = report.FinishedAt.Sub(report.StartedAt).Milliseconds()
}

func prefixed(subject string, issue models.Issue) models.Issue {
	if subject == "" {
		return issue
	}
	return models.Issue{Reason: issue.Reason, Message: subject + ": " + issue.Message}
}
