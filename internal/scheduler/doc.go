// CMDBSync - CMDB to Monitor Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cmdbsync

/*
Package scheduler runs reconciliations one at a time.

The Manager is the only caller of reconcile.Engine.Run. API triggers, the cron
schedule and the optional startup run all go through Manager.Trigger, which
refuses to start a run while another is active (models.ErrRunInProgress), so
two runs never race to create the same monitor objects.

Schedules use standard five-field cron expressions or descriptors (@hourly,
@every 30m) parsed by github.com/robfig/cron/v3. Finished reports are saved to
the run history when a store is configured.
*/
package scheduler
