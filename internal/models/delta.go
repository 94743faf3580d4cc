// CMDBSync - CMDB to Monitor Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cmdbsync

package models

// NodeKind identifies the level of a monitor tree node.
type NodeKind string

const (
	KindCompanyGroup  NodeKind = "company_group"
	KindLocationGroup NodeKind = "location_group"
	KindDevice        NodeKind = "device"
)

// Depth is 0 for company groups, 1 for location groups and 2 for devices.
func (k NodeKind) Depth() int {
	switch k {
	case KindCompanyGroup:
		return 0
	case KindLocationGroup:
		return 1
	default:
		return 2
	}
}

// PlanItem is one node to create. Items in Delta.ToCreate are ordered so that
// every parent precedes its children.
type PlanItem struct {
	Kind NodeKind `json:"kind"`
	Name string   `json:"name"`

	// Key identifies the node within the delta ("company", "company/location",
	// "company/location/device", all normalized).
	Key string `json:"key"`

	// ParentKey is the Key of the parent when the parent is created in the same
	// delta, otherwise "".
	ParentKey string `json:"parent_key,omitempty"`

	// ParentID is the monitor ID of an existing parent, 0 when ParentKey is set.
	ParentID int `json:"parent_id,omitempty"`

	Location *Location     `json:"location,omitempty"`
	Device   *DeviceRecord `json:"device,omitempty"`
}

// MatchedDevice is a record already present in the monitor tree.
type MatchedDevice struct {
	SysID     string `json:"sys_id"`
	Name      string `json:"name"`
	Location  string `json:"location"`
	MonitorID int    `json:"monitor_id"`

	// Mismatches are fields of the existing node that differ from what the
	// record would produce. They are reported only; matched nodes are never
	// updated.
	Mismatches []FieldMismatch `json:"mismatches,omitempty"`
}

// Mismatch fields.
const (
	FieldHost = "host"
	FieldTags = "tags"
)

// FieldMismatch is one drifted field of a matched device.
type FieldMismatch struct {
	Field    string `json:"field"`
	Expected string `json:"expected"`
	Current  string `json:"current"`
}

// OrphanedDevice is a monitor device with no matching in-scope record.
// Orphans are reported, never removed.
type OrphanedDevice struct {
	MonitorID int    `json:"monitor_id"`
	Name      string `json:"name"`
	Location  string `json:"location"`
}

// SkippedRecord is a record left out of the plan.
type SkippedRecord struct {
	SysID    string `json:"sys_id,omitempty"`
	Company  string `json:"company,omitempty"`
	Name     string `json:"name,omitempty"`
	Location string `json:"location,omitempty"`
	Issue
}

// SkippedLocation is a location with fewer in-scope devices than required.
type SkippedLocation struct {
	Name    string `json:"name"`
	Devices int    `json:"devices"`
}

// Delta is the reconciliation plan for one company.
type Delta struct {
	Company   Company `json:"company"`
	GroupName string  `json:"group_name"`

	// GroupID is the existing company group ID, 0 when it is created.
	GroupID int `json:"group_id,omitempty"`

	ToCreate         []PlanItem        `json:"to_create"`
	Matched          []MatchedDevice   `json:"matched"`
	Orphaned         []OrphanedDevice  `json:"orphaned"`
	Skipped          []SkippedRecord   `json:"skipped,omitempty"`
	SkippedLocations []SkippedLocation `json:"skipped_locations,omitempty"`
}

// CountToCreate returns how many items of kind are planned.
func (d *Delta) CountToCreate(kind NodeKind) int {
	n := 0
	for i := range d.ToCreate {
		if d.ToCreate[i].Kind == kind {
			n++
		}
	}
	return n
}
