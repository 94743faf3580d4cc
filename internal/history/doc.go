// CMDBSync - CMDB to Monitor Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cmdbsync

// Package history stores reconciliation reports in BadgerDB so past runs can
// be listed and inspected through the API. Reports expire after the configured
// retention.
package history
