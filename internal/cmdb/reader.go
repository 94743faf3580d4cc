// CMDBSync - CMDB to Monitor Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cmdbsync

package cmdb

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/tomtom215/cmdbsync/internal/logging"
	"github.com/tomtom215/cmdbsync/internal/metrics"
	"github.com/tomtom215/cmdbsync/internal/models"
	"github.com/tomtom215/cmdbsync/internal/upstream"
)

var ciFields = []string{
	"sys_id", "name", "company", "location", "manufacturer", "model_number",
	"ip_address", "u_host_name", "u_category", "u_used_for", "u_cc_type",
	"install_status", "priority", "u_credential_type", "u_username", "u_password",
	"u_prtg_implementation", "u_prtg_instrumentation", "u_prtg_id",
}

var companyFields = []string{"sys_id", "name", "u_abbreviated_name", "u_prtg_format"}

var locationFields = []string{"sys_id", "name", "street", "city", "state", "country"}

// FetchResult is the outcome of one CMDB fetch.
type FetchResult struct {
	// Devices are the in-scope, well-formed records in CMDB order.
	Devices []models.DeviceRecord

	// Rejected are in-scope records dropped as malformed. Company is set when
	// the company reference could be resolved.
	Rejected []models.SkippedRecord

	// OutOfScope counts records the client-side scope check dropped.
	OutOfScope int
}

// refCache holds company and location references resolved during one fetch.
// dangling caches references the CMDB answered with a client error, keyed by
// table and sys_id.
type refCache struct {
	companies map[string]*models.Company
	locations map[string]*models.Location
	dangling  map[string]error
}

// FetchDevices returns all in-scope configuration items, optionally narrowed
// to one company (full or abbreviated name) and one location.
func (c *Client) FetchDevices(ctx context.Context, filter models.RunFilter) (*FetchResult, error) {
	log := logging.Ctx(ctx)
	result := &FetchResult{}
	refs := &refCache{
		companies: make(map[string]*models.Company),
		locations: make(map[string]*models.Location),
		dangling:  make(map[string]error),
	}

	err := c.list(ctx, "fetch_devices", "cmdb_ci", c.scopeQuery(filter), ciFields, func(row record) error {
		if !c.inScope(row) {
			result.OutOfScope++
			return nil
		}

		dev, err := c.normalize(ctx, row, refs)
		if err != nil {
			if !errors.Is(err, models.ErrMalformedRecord) {
				return err
			}
			skipped := models.SkippedRecord{
				SysID:    row.value("sys_id"),
				Name:     row.display("name"),
				Location: models.NormalizeName(row.display("location")),
				Issue:    models.NewIssue(err),
			}
			if dev != nil {
				skipped.Company = dev.Company.GroupName()
			}
			log.Warn().Str("sys_id", skipped.SysID).Str("name", skipped.Name).Err(err).Msg("Skipping malformed CMDB record")
			metrics.RecordSkippedRecord(models.ReasonMalformedRecord)
			result.Rejected = append(result.Rejected, skipped)
			return nil
		}

		if !matchesFilter(dev, filter) {
			result.OutOfScope++
			return nil
		}
		result.Devices = append(result.Devices, *dev)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch configuration items: %w", err)
	}

	log.Info().
		Int("devices", len(result.Devices)).
		Int("rejected", len(result.Rejected)).
		Int("out_of_scope", result.OutOfScope).
		Int("companies", len(refs.companies)).
		Msg("Fetched CMDB records")

	return result, nil
}

// scopeQuery builds the encoded query. CC types are filtered client-side since
// they are configured by display value.
func (c *Client) scopeQuery(filter models.RunFilter) string {
	parts := []string{
		"install_statusIN" + strings.Join(c.cfg.InstallStatuses, ","),
		"u_prtg_implementation=true",
	}
	if filter.Company != "" {
		parts = append(parts, "company.name="+encodeQueryValue(filter.Company)+
			"^ORcompany.u_abbreviated_name="+encodeQueryValue(filter.Company))
	}
	if filter.Location != "" {
		parts = append(parts, "location.name="+encodeQueryValue(filter.Location))
	}
	parts = append(parts, "ORDERBYcompany.name", "ORDERBYlocation.name", "ORDERBYname")
	return strings.Join(parts, "^")
}

// encodeQueryValue escapes the encoded-query separator inside a value.
func encodeQueryValue(v string) string {
	return strings.ReplaceAll(v, "^", "^^")
}

// inScope re-applies the scope invariant: installed, monitor-implemented and
// not of an excluded CC type.
func (c *Client) inScope(row record) bool {
	status := row.value("install_status")
	installed := false
	for _, s := range c.cfg.InstallStatuses {
		if s == status {
			installed = true
			break
		}
	}
	if !installed || !parseBool(row.value("u_prtg_implementation")) {
		return false
	}

	ccType := strings.TrimSpace(row.display("u_cc_type"))
	for _, excluded := range c.cfg.ExcludedCCTypes {
		if strings.EqualFold(ccType, strings.TrimSpace(excluded)) {
			return false
		}
	}
	return true
}

// normalize converts a raw row into a DeviceRecord. On ErrMalformedRecord the
// partially filled record is returned alongside the error when the company is known.
func (c *Client) normalize(ctx context.Context, row record, refs *refCache) (*models.DeviceRecord, error) {
	sysID := row.value("sys_id")
	if sysID == "" {
		return nil, fmt.Errorf("%w: missing sys_id", models.ErrMalformedRecord)
	}

	companyID := row.value("company")
	if companyID == "" {
		return nil, fmt.Errorf("%w: missing company", models.ErrMalformedRecord)
	}
	company, err := refs.company(ctx, c, companyID)
	if err != nil {
		return nil, err
	}

	dev := &models.DeviceRecord{
		SysID:              sysID,
		Company:            *company,
		Category:           strings.TrimSpace(row.display("u_category")),
		UsedFor:            strings.TrimSpace(row.display("u_used_for")),
		CCType:             strings.TrimSpace(row.display("u_cc_type")),
		InstallStatus:      row.value("install_status"),
		Priority:           parsePriority(row.value("priority")),
		CredentialType:     strings.ToLower(strings.TrimSpace(row.value("u_credential_type"))),
		HostName:           strings.TrimSpace(row.value("u_host_name")),
		IPAddress:          strings.TrimSpace(row.value("ip_address")),
		Manufacturer:       strings.TrimSpace(row.display("manufacturer")),
		ModelNumber:        strings.TrimSpace(row.value("model_number")),
		MonitorImplemented: parseBool(row.value("u_prtg_implementation")),
		Instrumented:       parseBool(row.value("u_prtg_instrumentation")),
		Username:           strings.TrimSpace(row.value("u_username")),
		EncryptedPassword:  row.value("u_password"),
		MonitorID:          strings.TrimSpace(row.value("u_prtg_id")),
	}

	locationID := row.value("location")
	if locationID == "" {
		return dev, fmt.Errorf("%w: missing location", models.ErrMalformedRecord)
	}
	location, err := refs.location(ctx, c, locationID)
	if err != nil {
		return dev, err
	}
	dev.Location = *location

	if dev.Manufacturer == "" {
		return dev, fmt.Errorf("%w: missing manufacturer", models.ErrMalformedRecord)
	}
	if dev.IPAddress == "" {
		return dev, fmt.Errorf("%w: missing ip_address", models.ErrMalformedRecord)
	}
	if _, err := netip.ParseAddr(dev.IPAddress); err != nil {
		return dev, fmt.Errorf("%w: invalid ip_address %q", models.ErrMalformedRecord, dev.IPAddress)
	}

	dev.DisplayName = DisplayName(dev)
	return dev, nil
}

func (r *refCache) company(ctx context.Context, c *Client, sysID string) (*models.Company, error) {
	if cached, ok := r.companies[sysID]; ok {
		return cached, nil
	}
	if err, ok := r.dangling["core_company/"+sysID]; ok {
		return nil, err
	}
	row, err := c.get(ctx, "fetch_company", "core_company", sysID, companyFields)
	if err != nil {
		return nil, r.refError("core_company", "company", sysID, err)
	}
	company := &models.Company{
		SysID:        sysID,
		Name:         strings.TrimSpace(row.value("name")),
		Abbreviation: strings.TrimSpace(row.value("u_abbreviated_name")),
		NameFormat:   strings.ToLower(strings.TrimSpace(row.display("u_prtg_format"))),
	}
	r.companies[sysID] = company
	return company, nil
}

func (r *refCache) location(ctx context.Context, c *Client, sysID string) (*models.Location, error) {
	if cached, ok := r.locations[sysID]; ok {
		return cached, nil
	}
	if err, ok := r.dangling["cmn_location/"+sysID]; ok {
		return nil, err
	}
	row, err := c.get(ctx, "fetch_location", "cmn_location", sysID, locationFields)
	if err != nil {
		return nil, r.refError("cmn_location", "location", sysID, err)
	}
	location := &models.Location{
		SysID:   sysID,
		Name:    strings.TrimSpace(row.value("name")),
		Street:  strings.Join(strings.Fields(row.value("street")), " "),
		City:    strings.TrimSpace(row.value("city")),
		State:   strings.TrimSpace(row.value("state")),
		Country: strings.TrimSpace(row.display("country")),
	}
	if location.Name == "" {
		return nil, fmt.Errorf("%w: location %s has no name", models.ErrMalformedRecord, sysID)
	}
	r.locations[sysID] = location
	return location, nil
}

// refError wraps a failed reference lookup. A client error (the referenced
// record was deleted or is not readable) only invalidates the records that
// point at it, so it becomes ErrMalformedRecord and is remembered for the rest
// of the fetch. Outages and cancellation abort the fetch.
func (r *refCache) refError(table, kind, sysID string, err error) error {
	var statusErr *upstream.StatusError
	if upstream.Unavailable(err) || !errors.As(err, &statusErr) {
		return fmt.Errorf("resolve %s %s: %w", kind, sysID, err)
	}
	wrapped := fmt.Errorf("%w: %s %s not resolvable (status %d)", models.ErrMalformedRecord, kind, sysID, statusErr.StatusCode)
	r.dangling[table+"/"+sysID] = wrapped
	return wrapped
}

// DisplayName builds the device node name from the company's name format.
func DisplayName(dev *models.DeviceRecord) string {
	var name string
	switch dev.Company.NameFormat {
	case models.NameFormatHostnameIP:
		name = fmt.Sprintf("%s %s %s (%s)", dev.Manufacturer, dev.ModelNumber, dev.HostName, dev.IPAddress)
	default:
		name = fmt.Sprintf("%s %s (%s)", dev.Manufacturer, dev.ModelNumber, dev.IPAddress)
	}
	return models.NormalizeName(name)
}

func matchesFilter(dev *models.DeviceRecord, filter models.RunFilter) bool {
	if filter.Company != "" {
		want := models.NormalizeName(filter.Company)
		if models.NormalizeName(dev.Company.Name) != want && dev.Company.GroupName() != want {
			return false
		}
	}
	if filter.Location != "" && dev.LocationName() != models.NormalizeName(filter.Location) {
		return false
	}
	return true
}

func parseBool(v string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(v))
	return b
}

// parsePriority returns the CMDB priority 1..5, or 0 when unset or invalid.
func parsePriority(v string) int {
	p, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || p < 1 || p > 5 {
		return 0
	}
	return p
}
