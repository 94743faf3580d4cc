// CMDBSync - CMDB to Monitor Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cmdbsync

package reconcile

import (
	"strings"
	"testing"

	"github.com/tomtom215/cmdbsync/internal/models"
)

const testRootID = 50

func device(sysID, company, location, name string) models.DeviceRecord {
	return models.DeviceRecord{
		SysID:              sysID,
		Company:            models.Company{SysID: "c-" + company, Name: company},
		Location:           models.Location{SysID: "l-" + location, Name: location, City: "Vienna"},
		Category:           "Server",
		UsedFor:            "Production",
		IPAddress:          "10.0.0.1",
		Manufacturer:       "Dell",
		DisplayName:        name,
		MonitorImplemented: true,
		Instrumented:       true,
	}
}

func acme() models.Company {
	return models.Company{SysID: "c-ACME Corporation", Name: "ACME Corporation", Abbreviation: "ACME"}
}

func TestPlan_EmptyTreeCreatesHierarchyInOrder(t *testing.T) {
	t.Parallel()

	devices := []models.DeviceRecord{
		device("d1", "ACME Corporation", "HQ", "Dell R740 (10.0.0.1)"),
		device("d2", "ACME Corporation", "Branch", "Dell R640 (10.0.0.2)"),
	}
	delta := NewPlanner(testRootID, 1).Plan(acme(), devices, nil)

	want := []struct {
		kind      models.NodeKind
		key       string
		parentKey string
		parentID  int
	}{
		{models.KindCompanyGroup, "ACME", "", testRootID},
		{models.KindLocationGroup, "ACME/HQ", "ACME", 0},
		{models.KindLocationGroup, "ACME/Branch", "ACME", 0},
		{models.KindDevice, "ACME/HQ/Dell R740 (10.0.0.1)", "ACME/HQ", 0},
		{models.KindDevice, "ACME/Branch/Dell R640 (10.0.0.2)", "ACME/Branch", 0},
	}
	if len(delta.ToCreate) != len(want) {
		t.Fatalf("len(ToCreate) = %d, want %d: %+v", len(delta.ToCreate), len(want), delta.ToCreate)
	}
	for i, w := range want {
		got := delta.ToCreate[i]
		if got.Kind != w.kind || got.Key != w.key || got.ParentKey != w.parentKey || got.ParentID != w.parentID {
			t.Errorf("ToCreate[%d] = {%s %q parent %q/%d}, want {%s %q parent %q/%d}",
				i, got.Kind, got.Key, got.ParentKey, got.ParentID, w.kind, w.key, w.parentKey, w.parentID)
		}
	}
	if delta.GroupName != "ACME" || delta.GroupID != 0 {
		t.Errorf("group = %q/%d", delta.GroupName, delta.GroupID)
	}
	if len(delta.Matched) != 0 || len(delta.Orphaned) != 0 {
		t.Errorf("matched = %d, orphaned = %d, want 0", len(delta.Matched), len(delta.Orphaned))
	}
	if loc := delta.ToCreate[1].Location; loc == nil || loc.City != "Vienna" {
		t.Errorf("location item carries %+v", loc)
	}
}

func TestPlan_ExistingDeviceIsMatched(t *testing.T) {
	t.Parallel()

	existing := &models.MonitorGroup{ID: 60, Name: "ACME", Groups: []*models.MonitorGroup{{
		ID: 61, Name: "HQ", ParentID: 60,
		Devices: []*models.MonitorDevice{{ID: 70, Name: "Dell R740 (10.0.0.1)", ParentID: 61}},
	}}}
	devices := []models.DeviceRecord{
		device("d1", "ACME Corporation", "HQ", "Dell R740 (10.0.0.1)"),
		device("d2", "ACME Corporation", "HQ", "Dell R640 (10.0.0.2)"),
	}
	delta := NewPlanner(testRootID, 1).Plan(acme(), devices, existing)

	if len(delta.Matched) != 1 || delta.Matched[0].MonitorID != 70 || delta.Matched[0].SysID != "d1" {
		t.Errorf("Matched = %+v", delta.Matched)
	}
	if len(delta.ToCreate) != 1 {
		t.Fatalf("ToCreate = %+v, want only d2", delta.ToCreate)
	}
	item := delta.ToCreate[0]
	if item.Device.SysID != "d2" || item.ParentID != 61 || item.ParentKey != "" {
		t.Errorf("item = %+v", item)
	}
	if delta.GroupID != 60 {
		t.Errorf("GroupID = %d, want 60", delta.GroupID)
	}
}

func TestPlan_MatchedDeviceDrift(t *testing.T) {
	t.Parallel()

	b := newTestBuilder(nil)
	clean := device("d1", "ACME Corporation", "HQ", "Dell R740 (10.0.0.1)")
	drifted := device("d2", "ACME Corporation", "HQ", "Dell R640 (10.0.0.2)")
	drifted.IPAddress = "10.0.0.2"

	existing := &models.MonitorGroup{ID: 60, Name: "ACME", Groups: []*models.MonitorGroup{{
		ID: 61, Name: "HQ", ParentID: 60,
		Devices: []*models.MonitorDevice{
			{ID: 70, Name: "Dell R740 (10.0.0.1)", ParentID: 61, Host: "10.0.0.1", Tags: append(b.ExpectedTags(&clean), "extra")},
			{ID: 71, Name: "Dell R640 (10.0.0.2)", ParentID: 61, Host: "192.168.99.99", Tags: []string{"stale"}},
		},
	}}}
	delta := NewPlanner(testRootID, 1).WithExpectedTags(b.ExpectedTags).
		Plan(acme(), []models.DeviceRecord{clean, drifted}, existing)

	if len(delta.Matched) != 2 {
		t.Fatalf("Matched = %+v", delta.Matched)
	}
	if m := delta.Matched[0].Mismatches; len(m) != 0 {
		t.Errorf("clean device mismatches = %+v", m)
	}
	m := delta.Matched[1].Mismatches
	if len(m) != 2 {
		t.Fatalf("drifted device mismatches = %+v, want host and tags", m)
	}
	if m[0] != (models.FieldMismatch{Field: models.FieldHost, Expected: "10.0.0.2", Current: "192.168.99.99"}) {
		t.Errorf("host mismatch = %+v", m[0])
	}
	if m[1].Field != models.FieldTags || m[1].Current != "stale" ||
		m[1].Expected != strings.Join(b.ExpectedTags(&drifted), " ") {
		t.Errorf("tags mismatch = %+v", m[1])
	}
	if len(delta.ToCreate) != 0 {
		t.Errorf("ToCreate = %+v, drift must not plan changes", delta.ToCreate)
	}

	rep := Summarize(delta, nil, nil)
	if rep.Counts.Matched != 2 || rep.Counts.Mismatched != 1 {
		t.Errorf("counts = %+v, want 2 matched, 1 mismatched", rep.Counts)
	}
	if len(rep.Warnings) != 2 || rep.Warnings[0].Reason != models.ReasonFieldMismatch {
		t.Errorf("Warnings = %+v", rep.Warnings)
	}
}

func TestPlan_DriftWithoutTagCheck(t *testing.T) {
	t.Parallel()

	existing := &models.MonitorGroup{ID: 60, Name: "ACME", Groups: []*models.MonitorGroup{{
		ID: 61, Name: "HQ", ParentID: 60,
		Devices: []*models.MonitorDevice{{ID: 70, Name: "Dell R740 (10.0.0.1)", ParentID: 61, Host: " 10.0.0.1 "}},
	}}}
	delta := NewPlanner(testRootID, 1).Plan(acme(), []models.DeviceRecord{
		device("d1", "ACME Corporation", "HQ", "Dell R740 (10.0.0.1)"),
	}, existing)

	if len(delta.Matched) != 1 || len(delta.Matched[0].Mismatches) != 0 {
		t.Errorf("Matched = %+v, want no mismatches", delta.Matched)
	}
}

func TestPlan_NewLocationUnderExistingCompany(t *testing.T) {
	t.Parallel()

	existing := &models.MonitorGroup{ID: 60, Name: "ACME"}
	delta := NewPlanner(testRootID, 1).Plan(acme(), []models.DeviceRecord{
		device("d1", "ACME Corporation", "Lab", "Dev (10.0.0.1)"),
	}, existing)

	if delta.CountToCreate(models.KindCompanyGroup) != 0 {
		t.Error("existing company group planned again")
	}
	loc := delta.ToCreate[0]
	if loc.Kind != models.KindLocationGroup || loc.ParentID != 60 || loc.ParentKey != "" {
		t.Errorf("location item = %+v", loc)
	}
	if dev := delta.ToCreate[1]; dev.ParentKey != loc.Key {
		t.Errorf("device parent key = %q, want %q", dev.ParentKey, loc.Key)
	}
}

func TestPlan_DuplicateKeepsFirst(t *testing.T) {
	t.Parallel()

	devices := []models.DeviceRecord{
		device("first", "ACME Corporation", "HQ", "Dev (10.0.0.1)"),
		device("second", "ACME Corporation", "HQ", " Dev  (10.0.0.1) "),
		device("other-location", "ACME Corporation", "Branch", "Dev (10.0.0.1)"),
	}
	delta := NewPlanner(testRootID, 1).Plan(acme(), devices, nil)

	if len(delta.Skipped) != 1 {
		t.Fatalf("Skipped = %+v, want one duplicate", delta.Skipped)
	}
	if s := delta.Skipped[0]; s.SysID != "second" || s.Reason != models.ReasonDuplicateDevice || s.Company != "ACME" {
		t.Errorf("skipped = %+v", s)
	}
	var sysIDs []string
	for _, item := range delta.ToCreate {
		if item.Device != nil {
			sysIDs = append(sysIDs, item.Device.SysID)
		}
	}
	if len(sysIDs) != 2 || sysIDs[0] != "first" || sysIDs[1] != "other-location" {
		t.Errorf("planned devices = %v", sysIDs)
	}
}

func TestPlan_MalformedRecordsSkipped(t *testing.T) {
	t.Parallel()

	noLocation := device("d1", "ACME Corporation", "", "Dev (10.0.0.1)")
	noName := device("d2", "ACME Corporation", "HQ", "   ")
	delta := NewPlanner(testRootID, 1).Plan(acme(), []models.DeviceRecord{noLocation, noName}, nil)

	if len(delta.Skipped) != 2 {
		t.Fatalf("Skipped = %+v", delta.Skipped)
	}
	for _, s := range delta.Skipped {
		if s.Reason != models.ReasonMalformedRecord {
			t.Errorf("reason = %q, want %q", s.Reason, models.ReasonMalformedRecord)
		}
	}
	if len(delta.ToCreate) != 0 {
		t.Errorf("ToCreate = %+v, want empty", delta.ToCreate)
	}
}

func TestPlan_Orphans(t *testing.T) {
	t.Parallel()

	existing := &models.MonitorGroup{ID: 60, Name: "ACME",
		Devices: []*models.MonitorDevice{{ID: 80, Name: "Loose (10.9.9.9)", ParentID: 60}},
		Groups: []*models.MonitorGroup{
			{ID: 61, Name: "HQ", ParentID: 60, Devices: []*models.MonitorDevice{
				{ID: 70, Name: "Dev (10.0.0.1)", ParentID: 61},
				{ID: 71, Name: "Retired (10.0.0.9)", ParentID: 61},
			}},
			{ID: 62, Name: "Small", ParentID: 60, Devices: []*models.MonitorDevice{
				{ID: 72, Name: "Lonely (10.0.1.1)", ParentID: 62},
			}},
		},
	}
	devices := []models.DeviceRecord{
		device("d1", "ACME Corporation", "HQ", "Dev (10.0.0.1)"),
		device("d2", "ACME Corporation", "Small", "Lonely (10.0.1.1)"),
	}
	// Small has one device and would be skipped if its group did not exist.
	delta := NewPlanner(testRootID, 2).Plan(acme(), devices, existing)

	ids := map[int]bool{}
	for _, o := range delta.Orphaned {
		ids[o.MonitorID] = true
	}
	if len(ids) != 2 || !ids[71] || !ids[80] {
		t.Errorf("Orphaned = %+v, want 71 and 80", delta.Orphaned)
	}
	if len(delta.Matched) != 2 {
		t.Errorf("Matched = %+v, want 2", delta.Matched)
	}
	if len(delta.SkippedLocations) != 0 {
		t.Errorf("SkippedLocations = %+v, want none", delta.SkippedLocations)
	}
}

func TestPlan_MinDevicesSkipsSmallLocations(t *testing.T) {
	t.Parallel()

	existing := &models.MonitorGroup{ID: 60, Name: "ACME", Groups: []*models.MonitorGroup{{
		ID: 61, Name: "Branch", ParentID: 60,
		Devices: []*models.MonitorDevice{{ID: 70, Name: "Old (10.1.1.1)", ParentID: 61}},
	}}}
	devices := []models.DeviceRecord{
		device("d1", "ACME Corporation", "HQ", "A (10.0.0.1)"),
		device("d2", "ACME Corporation", "HQ", "B (10.0.0.2)"),
		device("d3", "ACME Corporation", "Remote", "C (10.0.0.3)"),
	}
	delta := NewPlanner(testRootID, 2).Plan(acme(), devices, existing)

	if len(delta.SkippedLocations) != 1 || delta.SkippedLocations[0].Name != "Remote" || delta.SkippedLocations[0].Devices != 1 {
		t.Errorf("SkippedLocations = %+v", delta.SkippedLocations)
	}
	if n := delta.CountToCreate(models.KindDevice); n != 2 {
		t.Errorf("devices to create = %d, want 2", n)
	}
	if len(delta.Orphaned) != 1 || delta.Orphaned[0].MonitorID != 70 {
		t.Errorf("Orphaned = %+v", delta.Orphaned)
	}
}

func TestPlan_ExistingLocationIgnoresThreshold(t *testing.T) {
	t.Parallel()

	// Remote already exists in the monitor, so the device threshold does not
	// apply and its device matches instead of turning into an orphan.
	existing := &models.MonitorGroup{ID: 60, Name: "ACME", Groups: []*models.MonitorGroup{{
		ID: 61, Name: "Remote", ParentID: 60,
		Devices: []*models.MonitorDevice{{ID: 70, Name: "C (10.0.0.3)", ParentID: 61}},
	}}}
	delta := NewPlanner(testRootID, 5).Plan(acme(), []models.DeviceRecord{
		device("d3", "ACME Corporation", "Remote", "C (10.0.0.3)"),
	}, existing)

	if len(delta.Orphaned) != 0 {
		t.Errorf("Orphaned = %+v, want none", delta.Orphaned)
	}
	if len(delta.Matched) != 1 {
		t.Errorf("Matched = %+v", delta.Matched)
	}
}

func TestPlan_NameMatchingPolicy(t *testing.T) {
	t.Parallel()

	existing := &models.MonitorGroup{ID: 60, Name: " ACME ", Groups: []*models.MonitorGroup{
		{ID: 61, Name: "HQ  ", ParentID: 60, Devices: []*models.MonitorDevice{{ID: 70, Name: "Dev   (10.0.0.1)", ParentID: 61}}},
		{ID: 62, Name: "branch", ParentID: 60},
	}}
	devices := []models.DeviceRecord{
		device("d1", "ACME Corporation", " HQ", "Dev (10.0.0.1)"),
		device("d2", "ACME Corporation", "Branch", "Dev (10.0.0.2)"),
	}
	delta := NewPlanner(testRootID, 1).Plan(acme(), devices, existing)

	if len(delta.Matched) != 1 || delta.Matched[0].MonitorID != 70 {
		t.Errorf("whitespace differences should match: Matched = %+v", delta.Matched)
	}
	// Case differs: "Branch" is a new group next to "branch".
	if delta.CountToCreate(models.KindLocationGroup) != 1 || delta.ToCreate[0].Name != "Branch" {
		t.Errorf("ToCreate = %+v, want location Branch", delta.ToCreate)
	}
}

func TestCompanyGroupName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		company models.Company
		want    string
	}{
		{models.Company{Name: "ACME Corporation", Abbreviation: "ACME"}, "ACME"},
		{models.Company{Name: "Globex Inc", Abbreviation: ""}, "Globex Inc"},
		{models.Company{Name: "Initech", Abbreviation: "   "}, "Initech"},
	}
	for _, tt := range tests {
		delta := NewPlanner(testRootID, 1).Plan(tt.company, []models.DeviceRecord{
			{SysID: "d", Company: tt.company, Location: models.Location{Name: "HQ"}, DisplayName: "D (10.0.0.1)"},
		}, nil)
		if delta.GroupName != tt.want || delta.ToCreate[0].Name != tt.want {
			t.Errorf("group name for %+v = %q / %q, want %q", tt.company, delta.GroupName, delta.ToCreate[0].Name, tt.want)
		}
	}
}

func TestGroupByCompany(t *testing.T) {
	t.Parallel()

	a1 := device("a1", "ACME Corporation", "HQ", "A (10.0.0.1)")
	a1.Company.Abbreviation = "ACME"
	g1 := device("g1", "Globex", "HQ", "G (10.0.0.2)")
	a2 := a1
	a2.SysID = "a2"
	orphan := device("x", "", "HQ", "X (10.0.0.3)")

	groups, rejected := GroupByCompany([]models.DeviceRecord{a1, g1, orphan, a2})

	if len(groups) != 2 || groups[0].Company.GroupName() != "ACME" || groups[1].Company.GroupName() != "Globex" {
		t.Fatalf("groups = %+v", groups)
	}
	if len(groups[0].Devices) != 2 {
		t.Errorf("ACME devices = %d, want 2", len(groups[0].Devices))
	}
	if len(rejected) != 1 || rejected[0].SysID != "x" || rejected[0].Reason != models.ReasonMalformedRecord {
		t.Errorf("rejected = %+v", rejected)
	}
}
