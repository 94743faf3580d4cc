// CMDBSync - CMDB to Monitor Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cmdbsync

package cmdb

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/cmdbsync/internal/config"
	"github.com/tomtom215/cmdbsync/internal/models"
)

// fakeServiceNow serves cmdb_ci, core_company and cmn_location from memory.
type fakeServiceNow struct {
	mu         sync.Mutex
	cis        []map[string]field
	companies  map[string]map[string]field
	locations  map[string]map[string]field
	refFetches map[string]int
	queries    []string
	patches    map[string]string
	failCIs    bool
}

func newFakeServiceNow() *fakeServiceNow {
	return &fakeServiceNow{
		companies: map[string]map[string]field{
			"c1": {
				"sys_id":             {Value: "c1"},
				"name":               {Value: " ACME Corporation "},
				"u_abbreviated_name": {Value: "ACME"},
				"u_prtg_format":      {Value: "ip_only", DisplayValue: "IP only"},
			},
			"c2": {
				"sys_id":        {Value: "c2"},
				"name":          {Value: "Globex"},
				"u_prtg_format": {Value: "hostname", DisplayValue: "Hostname + IP"},
			},
		},
		locations: map[string]map[string]field{
			"l1": {
				"sys_id":  {Value: "l1"},
				"name":    {Value: "HQ"},
				"street":  {Value: "Main St 1\r\nBuilding B"},
				"city":    {Value: "Vienna"},
				"country": {Value: "at", DisplayValue: "Austria"},
			},
			"l2": {"sys_id": {Value: "l2"}, "name": {Value: "Branch"}},
		},
		refFetches: make(map[string]int),
		patches:    make(map[string]string),
	}
}

func ci(sysID, company, location, manufacturer, model, ip string, extra map[string]string) map[string]field {
	row := map[string]field{
		"sys_id":                 {Value: sysID},
		"name":                   {Value: "ci-" + sysID},
		"company":                {Value: company, DisplayValue: company, Link: "https://x/" + company},
		"location":               {Value: location, DisplayValue: location},
		"model_number":           {Value: model},
		"ip_address":             {Value: ip},
		"install_status":         {Value: "1", DisplayValue: "Installed"},
		"u_prtg_implementation":  {Value: "true"},
		"u_prtg_instrumentation": {Value: "true"},
		"u_cc_type":              {Value: "root", DisplayValue: "Root"},
		"u_category":             {Value: "server", DisplayValue: "Server"},
		"u_used_for":             {Value: "production", DisplayValue: "Production"},
		"priority":               {Value: "2"},
	}
	if manufacturer != "" {
		row["manufacturer"] = field{Value: "m-" + manufacturer, DisplayValue: manufacturer}
	}
	for k, v := range extra {
		row[k] = field{Value: v, DisplayValue: v}
	}
	return row
}

func (f *fakeServiceNow) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if user, pass, ok := r.BasicAuth(); !ok || user != "svc" || pass != "pw" {
		http.Error(w, `{"error":{"message":"User Not Authenticated"}}`, http.StatusUnauthorized)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/now/table/")
	switch {
	case path == "cmdb_ci" && r.Method == http.MethodGet:
		if f.failCIs {
			http.Error(w, "maintenance", http.StatusServiceUnavailable)
			return
		}
		q := r.URL.Query()
		f.queries = append(f.queries, q.Get("sysparm_query"))
		limit, _ := strconv.Atoi(q.Get("sysparm_limit"))
		offset, _ := strconv.Atoi(q.Get("sysparm_offset"))
		end := offset + limit
		if end > len(f.cis) {
			end = len(f.cis)
		}
		page := []map[string]field{}
		if offset < len(f.cis) {
			page = f.cis[offset:end]
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"result": page})

	case strings.HasPrefix(path, "cmdb_ci/") && r.Method == http.MethodPatch:
		body, _ := io.ReadAll(r.Body)
		var payload map[string]string
		_ = json.Unmarshal(body, &payload)
		f.patches[strings.TrimPrefix(path, "cmdb_ci/")] = payload["u_prtg_id"]
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"result": payload})

	case strings.HasPrefix(path, "core_company/"):
		id := strings.TrimPrefix(path, "core_company/")
		f.refFetches["company/"+id]++
		f.writeRef(w, f.companies[id])

	case strings.HasPrefix(path, "cmn_location/"):
		id := strings.TrimPrefix(path, "cmn_location/")
		f.refFetches["location/"+id]++
		f.writeRef(w, f.locations[id])

	default:
		http.NotFound(w, r)
	}
}

func (f *fakeServiceNow) writeRef(w http.ResponseWriter, row map[string]field) {
	if row == nil {
		http.Error(w, `{"error":{"message":"No Record found"}}`, http.StatusNotFound)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"result": row})
}

func newTestReader(t *testing.T, fake *fakeServiceNow) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	cfg := &config.CMDBConfig{
		URL:             srv.URL,
		Username:        "svc",
		Password:        "pw",
		Timeout:         2 * time.Second,
		PageSize:        2,
		InstallStatuses: []string{"1", "101", "107", "109"},
		ExcludedCCTypes: []string{"Out of Scope"},
	}
	return newClient(cfg, srv.Client())
}

func TestFetchDevices_NormalizesAndPaginates(t *testing.T) {
	t.Parallel()

	fake := newFakeServiceNow()
	fake.cis = []map[string]field{
		ci("a1", "c1", "l1", "Cisco", "C9300", "10.0.0.1", nil),
		ci("a2", "c1", "l2", "Dell", "R740", "10.0.0.2", map[string]string{"u_prtg_instrumentation": "false", "u_username": "admin", "u_credential_type": "Windows"}),
		ci("a3", "c2", "l1", "HP", "DL380", "10.0.1.1", map[string]string{"u_host_name": "db01"}),
	}
	reader := newTestReader(t, fake)

	result, err := reader.FetchDevices(context.Background(), models.RunFilter{})
	if err != nil {
		t.Fatalf("FetchDevices() error = %v", err)
	}
	if len(result.Devices) != 3 {
		t.Fatalf("got %d devices, want 3", len(result.Devices))
	}

	first := result.Devices[0]
	if first.Company.GroupName() != "ACME" || first.Company.Name != "ACME Corporation" {
		t.Errorf("company = %+v", first.Company)
	}
	if first.DisplayName != "Cisco C9300 (10.0.0.1)" {
		t.Errorf("DisplayName = %q", first.DisplayName)
	}
	if first.Location.Street != "Main St 1 Building B" || first.Location.Country != "Austria" {
		t.Errorf("location = %+v", first.Location)
	}
	if first.Priority != 2 || first.Category != "Server" || first.UsedFor != "Production" {
		t.Errorf("classification = %d %q %q", first.Priority, first.Category, first.UsedFor)
	}

	second := result.Devices[1]
	if !second.CustomerManaged() || second.Username != "admin" || second.CredentialType != "windows" {
		t.Errorf("second device = %+v", second)
	}

	third := result.Devices[2]
	if third.DisplayName != "HP DL380 db01 (10.0.1.1)" {
		t.Errorf("hostname + ip DisplayName = %q", third.DisplayName)
	}

	// Page size 2 over 3 records takes two pages.
	if len(fake.queries) != 2 {
		t.Errorf("queries = %d, want 2", len(fake.queries))
	}
	if fake.refFetches["company/c1"] != 1 || fake.refFetches["location/l1"] != 1 {
		t.Errorf("references not cached: %v", fake.refFetches)
	}
	if !strings.Contains(fake.queries[0], "install_statusIN1,101,107,109") ||
		!strings.Contains(fake.queries[0], "u_prtg_implementation=true") {
		t.Errorf("query = %q", fake.queries[0])
	}
}

func TestFetchDevices_ScopeFilter(t *testing.T) {
	t.Parallel()

	fake := newFakeServiceNow()
	fake.cis = []map[string]field{
		ci("in", "c1", "l1", "Cisco", "C9300", "10.0.0.1", nil),
		ci("retired", "c1", "l1", "Cisco", "C9300", "10.0.0.2", map[string]string{"install_status": "7"}),
		ci("unflagged", "c1", "l1", "Cisco", "C9300", "10.0.0.3", map[string]string{"u_prtg_implementation": "false"}),
		ci("excluded", "c1", "l1", "Cisco", "C9300", "10.0.0.4", map[string]string{"u_cc_type": "out of scope"}),
	}
	reader := newTestReader(t, fake)

	result, err := reader.FetchDevices(context.Background(), models.RunFilter{})
	if err != nil {
		t.Fatalf("FetchDevices() error = %v", err)
	}
	if len(result.Devices) != 1 || result.Devices[0].SysID != "in" {
		t.Errorf("devices = %+v, want only 'in'", result.Devices)
	}
	if result.OutOfScope != 3 {
		t.Errorf("OutOfScope = %d, want 3", result.OutOfScope)
	}
}

func TestFetchDevices_RejectsMalformed(t *testing.T) {
	t.Parallel()

	fake := newFakeServiceNow()
	fake.cis = []map[string]field{
		ci("ok", "c1", "l1", "Cisco", "C9300", "10.0.0.1", nil),
		ci("noip", "c1", "l1", "Cisco", "C9300", "", nil),
		ci("badip", "c1", "l1", "Cisco", "C9300", "10.0.0", nil),
		ci("nomfr", "c1", "l1", "", "C9300", "10.0.0.5", nil),
		ci("nocompany", "", "l1", "Cisco", "C9300", "10.0.0.6", nil),
		ci("noloc", "c1", "", "Cisco", "C9300", "10.0.0.7", nil),
	}
	reader := newTestReader(t, fake)

	result, err := reader.FetchDevices(context.Background(), models.RunFilter{})
	if err != nil {
		t.Fatalf("FetchDevices() error = %v", err)
	}
	if len(result.Devices) != 1 {
		t.Errorf("devices = %d, want 1", len(result.Devices))
	}
	if len(result.Rejected) != 5 {
		t.Fatalf("rejected = %d, want 5: %+v", len(result.Rejected), result.Rejected)
	}
	for _, r := range result.Rejected {
		if r.Reason != models.ReasonMalformedRecord {
			t.Errorf("%s: reason = %q", r.SysID, r.Reason)
		}
		wantCompany := "ACME"
		if r.SysID == "nocompany" {
			wantCompany = ""
		}
		if r.Company != wantCompany {
			t.Errorf("%s: company = %q, want %q", r.SysID, r.Company, wantCompany)
		}
	}
}

func TestFetchDevices_DanglingReferences(t *testing.T) {
	t.Parallel()

	fake := newFakeServiceNow()
	fake.cis = []map[string]field{
		ci("before", "c1", "l1", "Cisco", "C9300", "10.0.0.1", nil),
		ci("ghostloc", "c1", "deleted-loc", "Cisco", "C9300", "10.0.0.2", nil),
		ci("ghostloc2", "c1", "deleted-loc", "Cisco", "C9300", "10.0.0.3", nil),
		ci("ghostco", "deleted-co", "l1", "Cisco", "C9300", "10.0.0.4", nil),
		ci("after", "c2", "l2", "HP", "DL380", "10.0.1.1", nil),
	}
	reader := newTestReader(t, fake)

	result, err := reader.FetchDevices(context.Background(), models.RunFilter{})
	if err != nil {
		t.Fatalf("FetchDevices() error = %v", err)
	}
	if len(result.Devices) != 2 || result.Devices[0].SysID != "before" || result.Devices[1].SysID != "after" {
		t.Errorf("devices = %+v, want before and after", result.Devices)
	}
	if len(result.Rejected) != 3 {
		t.Fatalf("rejected = %d, want 3: %+v", len(result.Rejected), result.Rejected)
	}
	for _, r := range result.Rejected {
		if r.Reason != models.ReasonMalformedRecord {
			t.Errorf("%s: reason = %q", r.SysID, r.Reason)
		}
	}
	if result.Rejected[0].Company != "ACME" || result.Rejected[2].Company != "" {
		t.Errorf("rejected companies = %q, %q", result.Rejected[0].Company, result.Rejected[2].Company)
	}
	if fake.refFetches["location/deleted-loc"] != 1 {
		t.Errorf("deleted location fetched %d times, want 1", fake.refFetches["location/deleted-loc"])
	}
}

func TestFetchDevices_CompanyFilter(t *testing.T) {
	t.Parallel()

	fake := newFakeServiceNow()
	fake.cis = []map[string]field{
		ci("a1", "c1", "l1", "Cisco", "C9300", "10.0.0.1", nil),
		ci("b1", "c2", "l1", "HP", "DL380", "10.0.1.1", nil),
	}
	reader := newTestReader(t, fake)

	// The fake ignores the server-side filter, so this exercises the client-side check.
	result, err := reader.FetchDevices(context.Background(), models.RunFilter{Company: "ACME"})
	if err != nil {
		t.Fatalf("FetchDevices() error = %v", err)
	}
	if len(result.Devices) != 1 || result.Devices[0].SysID != "a1" {
		t.Errorf("devices = %+v, want only a1", result.Devices)
	}
	if !strings.Contains(fake.queries[0], "company.name=ACME^ORcompany.u_abbreviated_name=ACME") {
		t.Errorf("query = %q", fake.queries[0])
	}

	result, err = reader.FetchDevices(context.Background(), models.RunFilter{Company: "ACME Corporation", Location: "Branch"})
	if err != nil {
		t.Fatalf("FetchDevices() error = %v", err)
	}
	if len(result.Devices) != 0 {
		t.Errorf("devices = %+v, want none in Branch", result.Devices)
	}
}

func TestFetchDevices_UpstreamUnavailable(t *testing.T) {
	t.Parallel()

	fake := newFakeServiceNow()
	fake.failCIs = true
	reader := newTestReader(t, fake)

	_, err := reader.FetchDevices(context.Background(), models.RunFilter{})
	if !errors.Is(err, models.ErrUpstreamUnavailable) {
		t.Fatalf("FetchDevices() error = %v, want ErrUpstreamUnavailable", err)
	}
}

func TestWriteBackMonitorID(t *testing.T) {
	t.Parallel()

	fake := newFakeServiceNow()
	reader := newTestReader(t, fake)

	if err := reader.WriteBackMonitorID(context.Background(), "a1", 2001); err != nil {
		t.Fatalf("WriteBackMonitorID() error = %v", err)
	}
	if fake.patches["a1"] != "2001" {
		t.Errorf("patched u_prtg_id = %q, want 2001", fake.patches["a1"])
	}
}

func TestDisplayName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format string
		want   string
	}{
		{"", "Cisco C9300 (10.0.0.1)"},
		{models.NameFormatIPOnly, "Cisco C9300 (10.0.0.1)"},
		{models.NameFormatHostnameIP, "Cisco C9300 sw01 (10.0.0.1)"},
	}
	for _, tt := range tests {
		dev := &models.DeviceRecord{
			Company:      models.Company{NameFormat: tt.format},
			Manufacturer: "Cisco",
			ModelNumber:  "C9300",
			HostName:     "sw01",
			IPAddress:    "10.0.0.1",
		}
		if got := DisplayName(dev); got != tt.want {
			t.Errorf("DisplayName(%q) = %q, want %q", tt.format, got, tt.want)
		}
	}

	// Missing model number collapses to a single space.
	dev := &models.DeviceRecord{Manufacturer: "Cisco", IPAddress: "10.0.0.1"}
	if got := DisplayName(dev); got != "Cisco (10.0.0.1)" {
		t.Errorf("DisplayName() without model = %q", got)
	}
}

func TestParsePriority(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]int{"1": 1, "5": 5, " 3 ": 3, "0": 0, "6": 0, "": 0, "high": 0} {
		if got := parsePriority(in); got != want {
			t.Errorf("parsePriority(%q) = %d, want %d", in, got, want)
		}
	}
}
