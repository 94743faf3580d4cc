// CMDBSync - CMDB to Monitor Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cmdbsync

/*
Package models defines the data structures shared by every CMDBSync component.

Model Categories:

1. CMDB snapshot (read-only, fetched fresh per run):
  - Company: owner of locations and devices, supplies the company group name
  - Location: becomes a location group under its company group
  - DeviceRecord: one in-scope configuration item

2. Monitor tree:
  - MonitorGroup: a company or location group with its children
  - MonitorDevice: a device node under a location group

3. Planning and payloads:
  - Delta: to-create, matched and orphaned sets for one company
  - PlanItem: one node to create, in dependency order
  - GroupSpec, DeviceSpec: creation payloads handed to the monitor writer
  - CredentialField: per-setting inherit / override_secret / override_plain

4. Results:
  - Outcome: per-entity state (pending, creating, created, failed)
  - CompanyReport: per-company counts and issues
  - Report: one reconciliation run

Errors:

The error taxonomy is a set of sentinel errors (ErrUpstreamUnavailable,
ErrMalformedRecord, ErrDuplicateDevice, ErrTemplateNotFound,
ErrParentCreationFailed, ErrDecryption). Components wrap them with context
and ReasonFor maps any wrapped error to the stable reason code used in reports.

Name Matching:

The CMDB and the monitor share no keys, so entities are matched by name.
NormalizeName is the single matching key: leading and trailing whitespace is
removed and internal whitespace runs collapse to one space. Comparison after
normalization is case-sensitive.
*/
package models
