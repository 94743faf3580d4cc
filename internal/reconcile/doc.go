// CMDBSync - CMDB to Monitor Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cmdbsync

/*
Package reconcile brings the monitor's company/location/device tree in line
with the CMDB.

A run reads every in-scope configuration item, buckets the records by company
and reconciles each company independently:

 1. Plan: the Planner compares the company's records with its existing monitor
    tree and produces a Delta (items to create, matched devices, orphans,
    skipped records).
 2. Build: the Builder turns each device record into a DeviceSpec (host, tags,
    priority, icon, service URL and the credential block).
 3. Apply: the Executor clones templates top-down. A failed group fails its
    descendants with parent_creation_failed; siblings continue.
 4. Report: Summarize folds outcomes into a CompanyReport, Finalize totals the
    run.

The monitor is never asked to delete or modify existing objects. Orphans are
reported only, so running twice against an unchanged CMDB creates nothing the
second time.

Failures are contained at the smallest scope that owns them: a malformed record
is skipped, a failed entity fails its subtree, a failed or panicking company
leaves the other companies untouched. Only an unknown company in the run filter
makes Engine.Run return an error.

Dry runs plan and build against an in-memory copy of the existing tree, so the
report shows exactly what would be created, including the rendered payloads.
*/
package reconcile
