// CMDBSync - CMDB to Monitor Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cmdbsync

package reconcile

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/tomtom215/cmdbsync/internal/config"
	"github.com/tomtom215/cmdbsync/internal/logging"
	"github.com/tomtom215/cmdbsync/internal/models"
	"github.com/tomtom215/cmdbsync/internal/secrets"
)

// Templates are the monitor objects new groups and devices are cloned from.
type Templates struct {
	Company  int
	Location int
	Device   int
}

// ID returns the template of kind.
func (t Templates) ID(kind models.NodeKind) int {
	switch kind {
	case models.KindCompanyGroup:
		return t.Company
	case models.KindLocationGroup:
		return t.Location
	default:
		return t.Device
	}
}

// Builder turns plan items into monitor creation payloads.
type Builder struct {
	cfg        config.ReconcileConfig
	templates  Templates
	recordLink func(sysID string) string
	secrets    secrets.Decrypter
}

// NewBuilder creates a builder. recordLink builds the CMDB link used by the
// "cmdb" service URL scheme.
func NewBuilder(cfg config.ReconcileConfig, templates Templates, recordLink func(string) string, dec secrets.Decrypter) *Builder {
	if dec == nil {
		dec = secrets.NoopDecrypter{}
	}
	return &Builder{cfg: cfg, templates: templates, recordLink: recordLink, secrets: dec}
}

// Templates returns the configured clone sources.
func (b *Builder) Templates() Templates {
	return b.templates
}

// GroupSpec builds the payload of a company or location group. Only the name
// and parent are set; everything else comes from the template.
func (b *Builder) GroupSpec(item *models.PlanItem, parentID int) models.GroupSpec {
	return models.GroupSpec{
		Kind:       item.Kind,
		Name:       item.Name,
		TemplateID: b.templates.ID(item.Kind),
		ParentID:   parentID,
	}
}

// DeviceSpec builds the payload of a device. Credential problems never fail
// the build: the device falls back to inherited credentials and the spec
// carries a warning.
func (b *Builder) DeviceSpec(ctx context.Context, dev *models.DeviceRecord, parentID int) *models.DeviceSpec {
	priority := b.priority(dev.Priority)
	spec := &models.DeviceSpec{
		SysID:      dev.SysID,
		Name:       dev.DeviceName(),
		TemplateID: b.templates.Device,
		ParentID:   parentID,
		Host:       dev.IPAddress,
		ServiceURL: b.serviceURL(dev),
		Location:   dev.Location.Address(),
		Icon:       b.icon(dev),
		Tags:       Tags(dev, priority),
		Priority:   priority,
	}
	spec.Credentials, spec.Warnings = b.credentials(ctx, dev)
	return spec
}

// serviceURL follows the configured scheme: "host" links to the device itself,
// "cmdb" to its configuration item.
func (b *Builder) serviceURL(dev *models.DeviceRecord) string {
	if b.cfg.ServiceURLScheme == "cmdb" && b.recordLink != nil {
		return b.recordLink(dev.SysID)
	}
	host := strings.TrimSpace(dev.HostName)
	if host == "" {
		host = dev.IPAddress
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]" // IPv6 literal
	}
	return "https://" + host
}

// icon picks the vendor icon, then the category icon, then the default.
func (b *Builder) icon(dev *models.DeviceRecord) string {
	if vendor := vendorToken(dev.Manufacturer); vendor != "" {
		if icon, ok := b.cfg.VendorIcons[vendor]; ok {
			return icon
		}
	}
	if icon, ok := b.cfg.CategoryIcons[strings.ToUpper(strings.TrimSpace(dev.Category))]; ok {
		return icon
	}
	return b.cfg.DefaultIcon
}

// vendorToken is the upper-cased first word of a manufacturer name:
// "Hewlett Packard Enterprise" -> "HEWLETT", "Dell/EMC" -> "DELL".
func vendorToken(manufacturer string) string {
	fields := strings.FieldsFunc(manufacturer, func(r rune) bool {
		return r == ' ' || r == '/' || r == '\t'
	})
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

// priority maps CMDB priority 1 (critical) .. 5 onto monitor stars 5 .. 1.
func (b *Builder) priority(cmdbPriority int) int {
	if cmdbPriority < 1 || cmdbPriority > 5 {
		return b.cfg.DefaultPriority
	}
	return 6 - cmdbPriority
}

// Tags derives the device tags: used-for, category, CC type, priority and
// management. Spaces become dashes; empty and repeated tags are dropped.
func Tags(dev *models.DeviceRecord, priority int) []string {
	managed := "cc-managed"
	if dev.CustomerManaged() {
		managed = "customer-managed"
	}
	raw := []string{dev.UsedFor, dev.Category, dev.CCType, "priority-" + strconv.Itoa(priority), managed}

	out := make([]string, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, t := range raw {
		t = strings.Join(strings.Fields(t), "-")
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// ExpectedTags returns the tags DeviceSpec would give dev.
func (b *Builder) ExpectedTags(dev *models.DeviceRecord) []string {
	return Tags(dev, b.priority(dev.Priority))
}

// credentials resolves the tri-state credential block. Devices inherit from
// their group unless they are customer-managed or their credential profile is
// device-level.
func (b *Builder) credentials(ctx context.Context, dev *models.DeviceRecord) (models.CredentialSet, []models.Issue) {
	set := models.CredentialSet{Type: dev.CredentialType}
	profile, ok := b.cfg.Credentials[dev.CredentialType]
	if ok {
		set.InheritSetting = profile.InheritSetting
		set.Fields = inheritedFields(profile)
	}

	override := dev.CustomerManaged() || (ok && profile.DeviceLevel)
	if !override {
		return set, nil
	}
	if !ok {
		if dev.CredentialType == "" {
			return set, []models.Issue{{
				Reason:  models.ReasonNoCredentialProfile,
				Message: "customer-managed device has no credential type, device inherits credentials",
			}}
		}
		return set, []models.Issue{{
			Reason:  models.ReasonNoCredentialProfile,
			Message: fmt.Sprintf("no credential profile for type %q, device inherits credentials", dev.CredentialType),
		}}
	}

	var password string
	if needsPassword(profile) {
		p, err := b.secrets.Decrypt(ctx, dev)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("sys_id", dev.SysID).Msg("Password decryption failed, device inherits credentials")
			return set, []models.Issue{models.NewIssue(fmt.Errorf("%s: %w", dev.SysID, err))}
		}
		password = p
	}

	var warnings []models.Issue
	for i, f := range profile.Fields {
		switch f.Source {
		case "username":
			if dev.Username == "" {
				warnings = append(warnings, models.Issue{
					Reason:  models.ReasonMissingUsername,
					Message: fmt.Sprintf("no username for credential type %q, %s stays unset", dev.CredentialType, f.Name),
				})
				continue
			}
			set.Fields[i] = models.CredentialField{Setting: f.Name, Mode: models.CredentialOverridePlain, Value: dev.Username}
		case "password":
			set.Fields[i] = models.CredentialField{Setting: f.Name, Mode: models.CredentialOverrideSecret, Value: password}
		case "literal":
			set.Fields[i] = models.CredentialField{Setting: f.Name, Mode: models.CredentialOverridePlain, Value: f.Value}
		}
	}
	return set, warnings
}

func inheritedFields(profile config.CredentialProfile) []models.CredentialField {
	fields := make([]models.CredentialField, len(profile.Fields))
	for i, f := range profile.Fields {
		fields[i] = models.CredentialField{Setting: f.Name, Mode: models.CredentialInherit}
	}
	return fields
}

func needsPassword(profile config.CredentialProfile) bool {
	for _, f := range profile.Fields {
		if f.Source == "password" {
			return true
		}
	}
	return false
}
