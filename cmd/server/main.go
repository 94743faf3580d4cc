// CMDBSync - CMDB to Monitor Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cmdbsync

// Package main is the entry point for the CMDBSync server.
//
// CMDBSync reconciles ServiceNow CMDB configuration items into a PRTG
// monitoring tree: one group per company, one group per location, one device
// per in-scope CI. Runs are triggered over HTTP or by a cron schedule.
//
// # Startup order
//
//  1. Configuration (koanf: defaults, config.yaml, environment)
//  2. Logging (zerolog)
//  3. Upstream clients: CMDB, monitor, secrets
//  4. Reconciliation engine
//  5. Run history (BadgerDB, optional)
//  6. Run manager (single-flight runs, cron schedule)
//  7. HTTP API
//  8. Supervisor tree, until SIGINT or SIGTERM
//
// # Example
//
//	export CMDB_INSTANCE=acme
//	export CMDB_USERNAME=svc_prtg
//	export CMDB_PASSWORD=...
//	export MONITOR_URL=https://prtg.example.com
//	export MONITOR_API_TOKEN=...
//	export API_KEY=$(openssl rand -hex 32)
//	./cmdbsync
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/cmdbsync/internal/api"
	"github.com/tomtom215/cmdbsync/internal/cmdb"
	"github.com/tomtom215/cmdbsync/internal/config"
	"github.com/tomtom215/cmdbsync/internal/history"
	"github.com/tomtom215/cmdbsync/internal/logging"
	"github.com/tomtom215/cmdbsync/internal/monitor"
	"github.com/tomtom215/cmdbsync/internal/reconcile"
	"github.com/tomtom215/cmdbsync/internal/scheduler"
	"github.com/tomtom215/cmdbsync/internal/secrets"
	"github.com/tomtom215/cmdbsync/internal/supervisor"
	"github.com/tomtom215/cmdbsync/internal/supervisor/services"
)

func main() {
	os.Exit(run())
}

// run wires and supervises every component. It returns the process exit code.
func run() int {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("cmdb", cfg.CMDB.Instance).
		Str("monitor_url", cfg.Monitor.URL).
		Str("secrets_provider", cfg.Secrets.Provider).
		Bool("schedule_enabled", cfg.Schedule.Enabled).
		Bool("history_enabled", cfg.History.Enabled).
		Msg("Starting CMDBSync")

	cmdbClient := cmdb.NewClient(&cfg.CMDB)
	monitorClient := monitor.NewClient(&cfg.Monitor)
	decrypter, err := secrets.New(&cfg.Secrets)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize secrets provider")
	}

	engine := reconcile.NewEngine(cfg, cmdbClient, monitorClient, decrypter)

	// Interfaces stay nil (not typed-nil) when history is disabled.
	var (
		store       *history.Store
		reportStore api.ReportStore
		runsArchive scheduler.ReportStore
	)
	if cfg.History.Enabled {
		store, err = history.Open(&cfg.History)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to open run history")
		}
		defer func() {
			if err := store.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing run history")
			}
		}()
		reportStore, runsArchive = store, store
	}

	runManager := scheduler.NewManager(engine, runsArchive, cfg.Schedule)

	handler := api.NewHandler(runManager, reportStore, map[string]api.BreakerStateFunc{
		"cmdb":    cmdbClient.BreakerState,
		"monitor": monitorClient.BreakerState,
	})
	router := api.NewRouter(handler, api.NewChiMiddleware(api.ChiMiddlewareConfigFromSecurity(&cfg.Security)))

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router.SetupChi(),
		ReadHeaderTimeout: cfg.Server.Timeout,
		// Reconcile requests block for a whole run.
		WriteTimeout: cfg.Schedule.RunTimeout + cfg.Server.Timeout,
		IdleTimeout:  2 * cfg.Server.Timeout,
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}
	if store != nil {
		tree.AddDataService(store)
	}
	tree.AddRunService(services.NewRunManagerService(runManager))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("addr", server.Addr).Msg("Starting supervisor tree")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("CMDBSync stopped")
	if len(unstopped) > 0 {
		return 1
	}
	return 0
}
