// CMDBSync - CMDB to Monitor Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cmdbsync

/*
Package metrics provides Prometheus metrics for CMDBSync.

All collectors are registered with the default registry through promauto and
exposed at /metrics:

	curl http://localhost:8080/metrics

# Available Metrics

Run Metrics:
  - cmdbsync_run_duration_seconds: run duration (histogram), labels: trigger
  - cmdbsync_runs_total: finished runs (counter), labels: trigger, result
  - cmdbsync_runs_rejected_total: triggers refused while a run was active
  - cmdbsync_run_in_progress: 1 while a run is active (gauge)
  - cmdbsync_run_last_success_timestamp: last run without failures (gauge)
  - cmdbsync_company_duration_seconds: per-company duration, labels: result

Entity Metrics:
  - cmdbsync_entities_created_total: labels: kind
  - cmdbsync_entities_failed_total: labels: kind, reason
  - cmdbsync_entities_flagged_total: labels: reason
  - cmdbsync_records_skipped_total: labels: reason
  - cmdbsync_devices_matched, cmdbsync_devices_orphaned: labels: company

Upstream Metrics:
  - cmdbsync_upstream_requests_total: labels: system, operation, status
  - cmdbsync_upstream_request_duration_seconds: labels: system, operation
  - cmdbsync_upstream_throttle_wait_seconds: labels: system
  - circuit_breaker_state, circuit_breaker_requests_total,
    circuit_breaker_consecutive_failures, circuit_breaker_state_transitions_total

API Metrics:
  - api_requests_total, api_request_duration_seconds, api_active_requests,
    api_rate_limit_hits_total

# Usage

Record helpers keep label handling in one place:

	start := time.Now()
	defer func() { metrics.RecordRun("api", report.Result(), time.Since(start)) }()
*/
package metrics
