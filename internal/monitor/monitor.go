// CMDBSync - CMDB to Monitor Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cmdbsync

/*
Package monitor reads and extends the PRTG group/device tree.

Reading:
  - FetchTree returns the company group (with location groups and devices)
    or nil when the company group does not exist yet.

Writing is template cloning, behind the TemplateSource capability:
  - CloneGroup duplicates a template group under a parent.
  - CloneDevice duplicates the template device, then applies the per-device
    overrides (service URL, location, tags, icon, priority, credentials) and
    resumes it.

Client talks to the PRTG HTTP API. MemoryTree is an in-memory implementation
used by tests and by dry runs.
*/
package monitor

import (
	"context"

	"github.com/tomtom215/cmdbsync/internal/models"
)

// Reader loads the existing tree of one company.
type Reader interface {
	// FetchTree returns the company group named name under the root group,
	// or nil when it does not exist.
	FetchTree(ctx context.Context, name string) (*models.MonitorGroup, error)
}

// TemplateSource creates monitor objects by cloning templates.
type TemplateSource interface {
	// TemplateExists reports whether the template object of kind exists.
	TemplateExists(ctx context.Context, kind models.NodeKind, id int) (bool, error)

	// CloneGroup creates a group and returns its ID.
	CloneGroup(ctx context.Context, spec models.GroupSpec) (int, error)

	// CloneDevice creates a device and applies spec's overrides. When the clone
	// succeeds but an override fails, the new ID is returned with the error.
	CloneDevice(ctx context.Context, spec *models.DeviceSpec) (int, error)
}

// Tree is a monitor that can be both read and extended.
type Tree interface {
	Reader
	TemplateSource
}
