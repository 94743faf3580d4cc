// CMDBSync - CMDB to Monitor Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cmdbsync

/*
Package api provides the HTTP invocation surface for CMDBSync.

Routes (all JSON, wrapped in the APIResponse envelope):

	POST /api/v1/reconcile             body {company?, location?, dry_run?}
	POST /api/v1/reconcile/{company}   ?dry_run=true plans without writing
	GET  /api/v1/reports               ?limit=N, newest first
	GET  /api/v1/reports/{id}
	GET  /api/v1/status                run state, next scheduled run, breaker states
	GET  /api/v1/health/live           unauthenticated
	GET  /api/v1/health/ready          unauthenticated, 503 while a breaker is open
	GET  /metrics                      Prometheus exposition

Every /api/v1 route other than the probes requires the X-API-Key header when
security.api_key is set, and is rate limited per client IP with go-chi/httprate.

Status codes for reconcile triggers:

  - 200: the run produced a report, whatever its result
  - 404: the company filter matched no in-scope CMDB record
  - 409: another run is in progress
  - 400: invalid body or parameters

Usage:

	handler := api.NewHandler(runManager, historyStore, map[string]api.BreakerStateFunc{
	    "cmdb":    cmdbClient.BreakerState,
	    "monitor": monitorClient.BreakerState,
	})
	chiMw := api.NewChiMiddleware(api.ChiMiddlewareConfigFromSecurity(&cfg.Security))
	router := api.NewRouter(handler, chiMw)
	srv := &http.Server{Addr: cfg.Server.Addr(), Handler: router.SetupChi()}
*/
package api
