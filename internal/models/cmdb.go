// CMDBSync - CMDB to Monitor Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cmdbsync

package models

import "strings"

// Company name formats (core_company.u_prtg_format).
const (
	NameFormatIPOnly     = "ip only"
	NameFormatHostnameIP = "hostname + ip"
)

// Company is a CMDB company record.
type Company struct {
	SysID        string `json:"sys_id"`
	Name         string `json:"name"`
	Abbreviation string `json:"abbreviation,omitempty"` // u_abbreviated_name, preferred for the group name
	NameFormat   string `json:"name_format,omitempty"`  // Device display name format
}

// GroupName is the desired company group name: the abbreviation when present,
// otherwise the full name.
func (c *Company) GroupName() string {
	if abbr := NormalizeName(c.Abbreviation); abbr != "" {
		return abbr
	}
	return NormalizeName(c.Name)
}

// Location is a CMDB location record.
type Location struct {
	SysID   string `json:"sys_id"`
	Name    string `json:"name"`
	Street  string `json:"street,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Country string `json:"country,omitempty"`
}

// Address joins street, city, state and country, skipping empty parts.
func (l *Location) Address() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{l.Street, l.City, l.State, l.Country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// DeviceRecord is one CMDB configuration item, denormalized with its company
// and location.
type DeviceRecord struct {
	SysID    string   `json:"sys_id"`
	Company  Company  `json:"company"`
	Location Location `json:"location"`

	Category       string `json:"category,omitempty"`
	UsedFor        string `json:"used_for,omitempty"`
	CCType         string `json:"cc_type,omitempty"`        // Scope filter
	InstallStatus  string `json:"install_status,omitempty"` // Numeric install_status code
	Priority       int    `json:"priority,omitempty"`       // CMDB priority 1 (critical) .. 5, 0 = unset
	CredentialType string `json:"credential_type,omitempty"`

	HostName     string `json:"host_name,omitempty"`
	IPAddress    string `json:"ip_address"`
	Manufacturer string `json:"manufacturer"`
	ModelNumber  string `json:"model_number,omitempty"`

	// MonitorImplemented is u_prtg_implementation; records without it are out of scope.
	MonitorImplemented bool `json:"monitor_implemented"`

	// Instrumented is u_prtg_instrumentation: true for devices the service
	// provider manages, false for customer-managed devices.
	Instrumented bool `json:"instrumented"`

	Username string `json:"username,omitempty"`

	// EncryptedPassword is the stored password field, decrypted on demand.
	EncryptedPassword string `json:"-"`

	// MonitorID is the monitor object ID already written back to the record.
	MonitorID string `json:"monitor_id,omitempty"`

	// DisplayName is the device node name, built from the company name format.
	DisplayName string `json:"display_name"`
}

// CustomerManaged reports whether the device is managed by the customer.
func (d *DeviceRecord) CustomerManaged() bool {
	return !d.Instrumented
}

// DeviceName is the normalized device node name.
func (d *DeviceRecord) DeviceName() string {
	return NormalizeName(d.DisplayName)
}

// LocationName is the normalized location group name.
func (d *DeviceRecord) LocationName() string {
	return NormalizeName(d.Location.Name)
}

// NormalizeName trims s and collapses internal whitespace runs to one space.
func NormalizeName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
