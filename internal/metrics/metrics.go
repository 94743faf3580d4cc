// CMDBSync - CMDB to Monitor Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cmdbsync

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for:
// - reconciliation runs and per-company results
// - entity creation outcomes
// - upstream (CMDB, monitor, secrets) request latency and errors
// - circuit breakers
// - the HTTP API

var (
	// Reconciliation Run Metrics
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cmdbsync_run_duration_seconds",
			Help:    "Duration of reconciliation runs in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800}, // Runs walk every company
		},
		[]string{"trigger"},
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cmdbsync_runs_total",
			Help: "Total number of reconciliation runs",
		},
		[]string{"trigger", "result"}, // result: "success", "partial", "failed"
	)

	RunsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cmdbsync_runs_rejected_total",
			Help: "Total number of runs rejected because another run was active",
		},
		[]string{"trigger"},
	)

	RunInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cmdbsync_run_in_progress",
			Help: "1 while a reconciliation run is active",
		},
	)

	RunLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cmdbsync_run_last_success_timestamp",
			Help: "Unix timestamp of the last run without failures",
		},
	)

	CompanyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cmdbsync_company_duration_seconds",
			Help:    "Duration of a single company's reconciliation in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"result"},
	)

	// Entity Metrics
	EntitiesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cmdbsync_entities_created_total",
			Help: "Total number of monitor entities created",
		},
		[]string{"kind"}, // "company_group", "location_group", "device"
	)

	EntitiesFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cmdbsync_entities_failed_total",
			Help: "Total number of monitor entities that failed to be created",
		},
		[]string{"kind", "reason"},
	)

	EntitiesFlagged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cmdbsync_entities_flagged_total",
			Help: "Total number of created entities carrying warnings",
		},
		[]string{"reason"},
	)

	RecordsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cmdbsync_records_skipped_total",
			Help: "Total number of CMDB records skipped",
		},
		[]string{"reason"}, // "malformed_record", "duplicate_device"
	)

	DevicesMatched = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cmdbsync_devices_matched",
			Help: "Devices present in both CMDB and monitor at the last run",
		},
		[]string{"company"},
	)

	DevicesOrphaned = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cmdbsync_devices_orphaned",
			Help: "Monitor devices without an in-scope CMDB record at the last run",
		},
		[]string{"company"},
	)

	// Upstream Metrics
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cmdbsync_upstream_requests_total",
			Help: "Total number of requests to upstream systems",
		},
		[]string{"system", "operation", "status"}, // status: HTTP code, "error" or "timeout"
	)

	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cmdbsync_upstream_request_duration_seconds",
			Help:    "Duration of upstream requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"system", "operation"},
	)

	UpstreamThrottleWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cmdbsync_upstream_throttle_wait_seconds",
			Help:    "Time spent waiting on the client-side rate limiter",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"system"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// History Metrics
	HistoryOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cmdbsync_history_operations_total",
			Help: "Total number of run history store operations",
		},
		[]string{"operation", "result"},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 60, 300}, // Reconcile requests block for the run
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)
)

// RecordRun records a finished reconciliation run
func RecordRun(trigger, result string, duration time.Duration) {
	RunDuration.WithLabelValues(trigger).Observe(duration.Seconds())
	RunsTotal.WithLabelValues(trigger, result).Inc()
	if result == "success" {
		RunLastSuccess.Set(float64(time.Now().Unix()))
	}
}

// RecordRunRejected records a trigger refused because a run was active
func RecordRunRejected(trigger string) {
	RunsRejected.WithLabelValues(trigger).Inc()
}

// SetRunInProgress toggles the in-progress gauge
func SetRunInProgress(active bool) {
	if active {
		RunInProgress.Set(1)
	} else {
		RunInProgress.Set(0)
	}
}

// RecordCompany records one company's reconciliation
func RecordCompany(company string, failed bool, matched, orphaned int, duration time.Duration) {
	result := "success"
	if failed {
		result = "failed"
	}
	CompanyDuration.WithLabelValues(result).Observe(duration.Seconds())
	DevicesMatched.WithLabelValues(company).Set(float64(matched))
	DevicesOrphaned.WithLabelValues(company).Set(float64(orphaned))
}

// RecordEntityCreated records a created monitor entity
func RecordEntityCreated(kind string) {
	EntitiesCreated.WithLabelValues(kind).Inc()
}

// RecordEntityFailed records a monitor entity that could not be created
func RecordEntityFailed(kind, reason string) {
	EntitiesFailed.WithLabelValues(kind, reason).Inc()
}

// RecordEntityFlagged records a warning on a created entity
func RecordEntityFlagged(reason string) {
	EntitiesFlagged.WithLabelValues(reason).Inc()
}

// RecordSkippedRecord records a CMDB record left out of the plan
func RecordSkippedRecord(reason string) {
	RecordsSkipped.WithLabelValues(reason).Inc()
}

// RecordUpstreamRequest records one upstream HTTP call. statusCode is 0 when
// no response was received; timedOut distinguishes timeouts from other errors.
func RecordUpstreamRequest(system, operation string, statusCode int, timedOut bool, duration time.Duration) {
	status := "error"
	switch {
	case timedOut:
		status = "timeout"
	case statusCode > 0:
		status = strconv.Itoa(statusCode)
	}
	UpstreamRequestsTotal.WithLabelValues(system, operation, status).Inc()
	UpstreamRequestDuration.WithLabelValues(system, operation).Observe(duration.Seconds())
}

// RecordThrottleWait records time spent in the client-side rate limiter
func RecordThrottleWait(system string, wait time.Duration) {
	UpstreamThrottleWait.WithLabelValues(system).Observe(wait.Seconds())
}

// RecordHistoryOperation records a run history store operation
func RecordHistoryOperation(operation string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	HistoryOperations.WithLabelValues(operation, result).Inc()
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}
