// CMDBSync - CMDB to Monitor Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cmdbsync

package models

import "github.com/goccy/go-json"

// GroupSpec is the payload for creating a company or location group by
// cloning TemplateID under ParentID.
type GroupSpec struct {
	Kind       NodeKind `json:"kind"`
	Name       string   `json:"name"`
	TemplateID int      `json:"template_id"`
	ParentID   int      `json:"parent_id"`
}

// CredentialMode is the state of one credential setting on a device.
type CredentialMode string

const (
	// CredentialInherit leaves the setting to the parent group.
	CredentialInherit CredentialMode = "inherit"

	// CredentialOverrideSecret writes a decrypted secret onto the device.
	CredentialOverrideSecret CredentialMode = "override_secret"

	// CredentialOverridePlain writes a non-secret value (username, literal) onto the device.
	CredentialOverridePlain CredentialMode = "override_plain"
)

// CredentialField is one credential setting of a device.
type CredentialField struct {
	Setting string         `json:"setting"`
	Mode    CredentialMode `json:"mode"`
	Value   string         `json:"value,omitempty"`
}

// Overrides reports whether the field is written onto the device.
func (f CredentialField) Overrides() bool {
	return f.Mode == CredentialOverrideSecret || f.Mode == CredentialOverridePlain
}

// MarshalJSON masks secret values so payloads can be logged and returned by
// dry runs.
func (f CredentialField) MarshalJSON() ([]byte, error) {
	type plain CredentialField
	out := plain(f)
	if f.Mode == CredentialOverrideSecret && out.Value != "" {
		out.Value = "********"
	}
	return json.Marshal(out)
}

// CredentialSet is the credential block of a device payload.
type CredentialSet struct {
	// Type is the CMDB credential type (windows, linux, ...), "" when none.
	Type string `json:"type,omitempty"`

	// InheritSetting is the group inheritance toggle for this credential type.
	InheritSetting string `json:"inherit_setting,omitempty"`

	Fields []CredentialField `json:"fields,omitempty"`
}

// Inherits reports whether every field is inherited from the parent group.
func (c *CredentialSet) Inherits() bool {
	for _, f := range c.Fields {
		if f.Overrides() {
			return false
		}
	}
	return true
}

// DeviceSpec is the payload for creating a device by cloning TemplateID under ParentID.
type DeviceSpec struct {
	SysID      string   `json:"sys_id"`
	Name       string   `json:"name"`
	TemplateID int      `json:"template_id"`
	ParentID   int      `json:"parent_id"`
	Host       string   `json:"host"`
	ServiceURL string   `json:"service_url,omitempty"`
	Location   string   `json:"location,omitempty"`
	Icon       string   `json:"icon,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Priority   int      `json:"priority"` // Monitor priority, 1..5 stars

	Credentials CredentialSet `json:"credentials"`

	// Warnings are raised while building, for example a decryption failure.
	Warnings []Issue `json:"warnings,omitempty"`
}
