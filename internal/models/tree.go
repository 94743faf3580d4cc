// CMDBSync - CMDB to Monitor Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cmdbsync

package models

// MonitorGroup is a group in the monitor tree. A company group holds location
// groups, and a location group holds devices.
type MonitorGroup struct {
	ID       int              `json:"id"`
	Name     string           `json:"name"`
	ParentID int              `json:"parent_id"`
	Groups   []*MonitorGroup  `json:"groups,omitempty"`
	Devices  []*MonitorDevice `json:"devices,omitempty"`
}

// MonitorDevice is a device node in the monitor tree.
type MonitorDevice struct {
	ID       int      `json:"id"`
	Name     string   `json:"name"`
	ParentID int      `json:"parent_id"`
	Host     string   `json:"host,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// FindGroup returns the direct child group whose normalized name equals name.
func (g *MonitorGroup) FindGroup(name string) *MonitorGroup {
	if g == nil {
		return nil
	}
	key := NormalizeName(name)
	for _, child := range g.Groups {
		if NormalizeName(child.Name) == key {
			return child
		}
	}
	return nil
}

// FindDevice returns the direct child device whose normalized name equals name.
func (g *MonitorGroup) FindDevice(name string) *MonitorDevice {
	if g == nil {
		return nil
	}
	key := NormalizeName(name)
	for _, d := range g.Devices {
		if NormalizeName(d.Name) == key {
			return d
		}
	}
	return nil
}

// DeviceCount counts devices in g and all nested groups.
func (g *MonitorGroup) DeviceCount() int {
	if g == nil {
		return 0
	}
	n := len(g.Devices)
	for _, child := range g.Groups {
		n += child.DeviceCount()
	}
	return n
}

// Clone returns a deep copy of g.
func (g *MonitorGroup) Clone() *MonitorGroup {
	if g == nil {
		return nil
	}
	out := &MonitorGroup{ID: g.ID, Name: g.Name, ParentID: g.ParentID}
	for _, child := range g.Groups {
		out.Groups = append(out.Groups, child.Clone())
	}
	for _, d := range g.Devices {
		dc := *d
		dc.Tags = append([]string(nil), d.Tags...)
		out.Devices = append(out.Devices, &dc)
	}
	return out
}
