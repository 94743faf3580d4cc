// CMDBSync - CMDB to Monitor Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cmdbsync

/*
Package middleware provides HTTP middleware shared by the API router.

  - RequestID: X-Request-ID / X-Correlation-ID handling, wired into the
    logging context so every log line of a request carries both IDs
  - PrometheusMetrics: request counters, durations and in-flight gauge,
    labeled by chi route pattern

Both use the http.HandlerFunc signature and are adapted to chi's r.Use by the
api package.
*/
package middleware
