// CMDBSync - CMDB to Monitor Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cmdbsync

/*
Package supervisor provides process supervision for CMDBSync using suture v4.

The tree groups long-running services into layers that restart independently:

	RootSupervisor ("cmdbsync")
	├── DataSupervisor ("data-layer")
	│   └── history.Store (value-log GC, if history.enabled)
	├── RunSupervisor ("run-layer")
	│   └── RunManagerService (cron schedule, startup run)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

Supervisor events (start, failure, backoff) are logged through the
sutureslog adapter to the zerolog global logger.

Usage:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddDataService(historyStore)
	tree.AddRunService(services.NewRunManagerService(runManager))
	tree.AddAPIService(services.NewHTTPServerService(srv, cfg.Server.ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
	    logging.Error().Err(err).Msg("Supervisor stopped with error")
	}
*/
package supervisor
