// CMDBSync - CMDB to Monitor Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cmdbsync

package reconcile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tomtom215/cmdbsync/internal/models"
)

// CompanyDevices is the in-scope record set of one company, in CMDB order.
type CompanyDevices struct {
	Company models.Company
	Devices []models.DeviceRecord
}

// GroupByCompany buckets records by desired company group name, keeping the
// order in which companies first appear. Records without a resolvable group
// name are returned as malformed.
func GroupByCompany(devices []models.DeviceRecord) ([]CompanyDevices, []models.SkippedRecord) {
	var (
		out      []CompanyDevices
		rejected []models.SkippedRecord
		index    = make(map[string]int)
	)
	for i := range devices {
		dev := devices[i]
		name := dev.Company.GroupName()
		if name == "" {
			rejected = append(rejected, skipped(&dev, "", fmt.Errorf("%w: device %s has no company", models.ErrMalformedRecord, dev.SysID)))
			continue
		}
		pos, ok := index[name]
		if !ok {
			pos = len(out)
			index[name] = pos
			out = append(out, CompanyDevices{Company: dev.Company})
		}
		out[pos].Devices = append(out[pos].Devices, dev)
	}
	return out, rejected
}

// Planner computes the reconciliation delta of one company.
type Planner struct {
	rootID     int
	minDevices int

	// expectedTags, when set, enables the tag comparison of matched devices.
	expectedTags func(*models.DeviceRecord) []string
}

// NewPlanner creates a planner that places new company groups under rootID and
// plans location groups only for locations with at least minDevices records.
func NewPlanner(rootID, minDevices int) *Planner {
	if minDevices < 1 {
		minDevices = 1
	}
	return &Planner{rootID: rootID, minDevices: minDevices}
}

// WithExpectedTags sets the tag derivation used to check matched devices for
// missing tags.
func (p *Planner) WithExpectedTags(fn func(*models.DeviceRecord) []string) *Planner {
	p.expectedTags = fn
	return p
}

type locationBucket struct {
	name     string
	location models.Location
	devices  []*models.DeviceRecord
}

// Plan compares the company's records with its existing monitor tree, which is
// nil when the company group does not exist yet.
//
// Names are compared after models.NormalizeName, case-sensitively. ToCreate
// lists the company group first, then location groups, then devices. A
// location below the device threshold is skipped unless its group already
// exists.
func (p *Planner) Plan(company models.Company, devices []models.DeviceRecord, existing *models.MonitorGroup) *models.Delta {
	groupName := company.GroupName()
	delta := &models.Delta{
		Company:   company,
		GroupName: groupName,
		ToCreate:  []models.PlanItem{},
		Matched:   []models.MatchedDevice{},
		Orphaned:  []models.OrphanedDevice{},
	}
	if existing != nil {
		delta.GroupID = existing.ID
	}

	buckets, wanted := p.bucket(delta, devices)

	companyKey := groupName
	companyPlanned := false
	for _, b := range buckets {
		locGroup := existing.FindGroup(b.name)
		if locGroup == nil && len(b.devices) < p.minDevices {
			delta.SkippedLocations = append(delta.SkippedLocations, models.SkippedLocation{Name: b.name, Devices: len(b.devices)})
			continue
		}

		if existing == nil && !companyPlanned {
			delta.ToCreate = append(delta.ToCreate, models.PlanItem{
				Kind:     models.KindCompanyGroup,
				Name:     groupName,
				Key:      companyKey,
				ParentID: p.rootID,
			})
			companyPlanned = true
		}

		locKey := companyKey + "/" + b.name
		if locGroup == nil {
			item := models.PlanItem{Kind: models.KindLocationGroup, Name: b.name, Key: locKey}
			if existing == nil {
				item.ParentKey = companyKey
			} else {
				item.ParentID = existing.ID
			}
			loc := b.location
			item.Location = &loc
			delta.ToCreate = append(delta.ToCreate, item)
		}

		for _, dev := range b.devices {
			name := dev.DeviceName()
			if node := locGroup.FindDevice(name); node != nil {
				delta.Matched = append(delta.Matched, models.MatchedDevice{
					SysID:      dev.SysID,
					Name:       name,
					Location:   b.name,
					MonitorID:  node.ID,
					Mismatches: p.compare(dev, node),
				})
				continue
			}
			item := models.PlanItem{Kind: models.KindDevice, Name: name, Key: locKey + "/" + name, Device: dev}
			if locGroup == nil {
				item.ParentKey = locKey
			} else {
				item.ParentID = locGroup.ID
			}
			delta.ToCreate = append(delta.ToCreate, item)
		}
	}

	// Stable sort keeps CMDB order within a level.
	sort.SliceStable(delta.ToCreate, func(i, j int) bool {
		return delta.ToCreate[i].Kind.Depth() < delta.ToCreate[j].Kind.Depth()
	})

	delta.Orphaned = orphans(existing, wanted)
	return delta
}

// compare lists the fields of an existing device node that drifted from the
// record: the host must equal the record's IP address and every expected tag
// must be present. Extra tags on the node are allowed.
func (p *Planner) compare(dev *models.DeviceRecord, node *models.MonitorDevice) []models.FieldMismatch {
	var out []models.FieldMismatch
	if host := strings.TrimSpace(node.Host); host != dev.IPAddress {
		out = append(out, models.FieldMismatch{Field: models.FieldHost, Expected: dev.IPAddress, Current: host})
	}
	if p.expectedTags == nil {
		return out
	}
	present := make(map[string]bool, len(node.Tags))
	for _, t := range node.Tags {
		present[t] = true
	}
	var missing []string
	for _, t := range p.expectedTags(dev) {
		if !present[t] {
			missing = append(missing, t)
		}
	}
	if len(missing) > 0 {
		out = append(out, models.FieldMismatch{
			Field:    models.FieldTags,
			Expected: strings.Join(missing, " "),
			Current:  strings.Join(node.Tags, " "),
		})
	}
	return out
}

// bucket groups the records by location, dropping malformed and duplicate
// records. wanted holds every accepted device key, including devices of
// locations that end up skipped.
func (p *Planner) bucket(delta *models.Delta, devices []models.DeviceRecord) ([]*locationBucket, map[string]bool) {
	var (
		buckets []*locationBucket
		byName  = make(map[string]*locationBucket)
		wanted  = make(map[string]bool)
	)
	for i := range devices {
		dev := &devices[i]
		locName := dev.LocationName()
		devName := dev.DeviceName()

		switch {
		case locName == "":
			delta.Skipped = append(delta.Skipped, skipped(dev, delta.GroupName,
				fmt.Errorf("%w: device %s has no location", models.ErrMalformedRecord, dev.SysID)))
			continue
		case devName == "":
			delta.Skipped = append(delta.Skipped, skipped(dev, delta.GroupName,
				fmt.Errorf("%w: device %s has no display name", models.ErrMalformedRecord, dev.SysID)))
			continue
		}

		key := deviceKey(locName, devName)
		if wanted[key] {
			delta.Skipped = append(delta.Skipped, skipped(dev, delta.GroupName,
				fmt.Errorf("%w: %q already planned under %q", models.ErrDuplicateDevice, devName, locName)))
			continue
		}
		wanted[key] = true

		b, ok := byName[locName]
		if !ok {
			b = &locationBucket{name: locName, location: dev.Location}
			byName[locName] = b
			buckets = append(buckets, b)
		}
		b.devices = append(b.devices, dev)
	}
	return buckets, wanted
}

// orphans lists existing devices that no accepted record maps to. Devices
// placed directly under the company group never match, since devices always
// nest in a location group.
func orphans(existing *models.MonitorGroup, wanted map[string]bool) []models.OrphanedDevice {
	out := []models.OrphanedDevice{}
	if existing == nil {
		return out
	}
	for _, d := range existing.Devices {
		out = append(out, models.OrphanedDevice{MonitorID: d.ID, Name: d.Name})
	}
	for _, g := range existing.Groups {
		loc := models.NormalizeName(g.Name)
		for _, d := range g.Devices {
			if !wanted[deviceKey(loc, models.NormalizeName(d.Name))] {
				out = append(out, models.OrphanedDevice{MonitorID: d.ID, Name: d.Name, Location: g.Name})
			}
		}
	}
	return out
}

// deviceKey joins names with a byte that cannot appear in a normalized name
// typed into either system.
func deviceKey(location, device string) string {
	return location + "\x00" + device
}

func skipped(dev *models.DeviceRecord, company string, err error) models.SkippedRecord {
	return models.SkippedRecord{
		SysID:    dev.SysID,
		Company:  company,
		Name:     dev.DeviceName(),
		Location: dev.LocationName(),
		Issue:    models.NewIssue(err),
	}
}
