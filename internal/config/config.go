// CMDBSync - CMDB to Monitor Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cmdbsync

package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration loaded from defaults, an optional
// YAML file and environment variables.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: built-in values from defaultConfig()
//  2. Config File: optional config.yaml
//  3. Environment Variables: the mapped names in envTransformFunc
//
// Configuration Categories:
//
//  1. Upstream systems:
//     - CMDB: ServiceNow instance, credentials, scope filter, write-back
//     - Monitor: PRTG URL, credentials, template and root object IDs
//     - Secrets: how encrypted CMDB passwords are decrypted
//
//  2. Reconciliation:
//     - Reconcile: worker count, naming, icons and credential profiles
//     - Schedule: optional cron trigger
//     - History: where run reports are kept
//
//  3. Surface:
//     - Server: HTTP listener
//     - Security: API key, rate limiting, CORS
//     - Logging: level and output format
//
// Config is immutable after Load() and safe for concurrent reads.
type Config struct {
	CMDB      CMDBConfig      `koanf:"cmdb"`
	Monitor   MonitorConfig   `koanf:"monitor"`
	Secrets   SecretsConfig   `koanf:"secrets"`
	Reconcile ReconcileConfig `koanf:"reconcile"`
	Schedule  ScheduleConfig  `koanf:"schedule"`
	History   HistoryConfig   `koanf:"history"`
	Server    ServerConfig    `koanf:"server"`
	Security  SecurityConfig  `koanf:"security"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// CMDBConfig configures the ServiceNow Table API client.
type CMDBConfig struct {
	// Instance is the ServiceNow instance name ("acme" for acme.service-now.com).
	Instance string `koanf:"instance"`

	// URL overrides the base URL derived from Instance. Used for proxies and tests.
	URL string `koanf:"url"`

	Username string        `koanf:"username"`
	Password string        `koanf:"password"`
	Timeout  time.Duration `koanf:"timeout"`   // Per-request timeout
	PageSize int           `koanf:"page_size"` // sysparm_limit for paginated queries

	// InstallStatuses lists the install_status values that count as installed.
	InstallStatuses []string `koanf:"install_statuses"`

	// ExcludedCCTypes lists u_cc_type display values that are out of scope.
	ExcludedCCTypes []string `koanf:"excluded_cc_types"`

	// WritebackMonitorID writes the new monitor object ID back to u_prtg_id.
	WritebackMonitorID bool `koanf:"writeback_monitor_id"`

	RateLimit float64 `koanf:"rate_limit"` // Requests per second, 0 = unlimited
	RateBurst int     `koanf:"rate_burst"`
}

// BaseURL returns the URL all Table API paths are joined to.
func (c *CMDBConfig) BaseURL() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("https://%s.service-now.com", c.Instance)
}

// RecordLink returns the browser link of a configuration item.
func (c *CMDBConfig) RecordLink(sysID string) string {
	return c.BaseURL() + "/cmdb_ci?sys_id=" + sysID
}

// MonitorConfig configures the PRTG HTTP API client.
type MonitorConfig struct {
	URL string `koanf:"url"`

	// Either APIToken or Username + Passhash must be set.
	APIToken string `koanf:"api_token"`
	Username string `koanf:"username"`
	Passhash string `koanf:"passhash"`

	Timeout time.Duration `koanf:"timeout"`

	// RootGroupID is the group new company groups are created under.
	RootGroupID int `koanf:"root_group_id"`

	// CompanyTemplateID is the group cloned for each company. It carries the
	// local-probe credentials devices inherit.
	CompanyTemplateID int `koanf:"company_template_id"`

	// LocationTemplateID is an empty group cloned for each location.
	LocationTemplateID int `koanf:"location_template_id"`

	// DeviceTemplateID is the device cloned for each configuration item.
	DeviceTemplateID int `koanf:"device_template_id"`

	// ResumeCreated unpauses cloned objects once their settings are applied.
	ResumeCreated bool `koanf:"resume_created"`

	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`
}

// SecretsConfig selects how encrypted CMDB password fields are decrypted.
type SecretsConfig struct {
	// Provider is one of: http, age, static, none.
	Provider string `koanf:"provider"`

	// http provider: GET {URL}/{sys_id}/getcipassword with an api_key header.
	URL     string        `koanf:"url"`
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout"`

	// age provider: identity file (or inline identity) for armored values.
	AgeIdentityFile string `koanf:"age_identity_file"`
	AgeIdentity     string `koanf:"age_identity"`
}

// ReconcileConfig tunes planning and payload building.
type ReconcileConfig struct {
	// Workers bounds how many companies are reconciled concurrently.
	Workers int `koanf:"workers"`

	// CompanyTimeout bounds a single company's reconciliation.
	CompanyTimeout time.Duration `koanf:"company_timeout"`

	// MinDevices is the smallest number of in-scope devices a location needs
	// before a location group is planned for it.
	MinDevices int `koanf:"min_devices"`

	// ServiceURLScheme is "host" (https://host) or "cmdb" (CI record link).
	ServiceURLScheme string `koanf:"service_url_scheme"`

	DefaultPriority int    `koanf:"default_priority"`
	DefaultIcon     string `koanf:"default_icon"`

	// VendorIcons maps an upper-cased manufacturer token to an icon file.
	VendorIcons map[string]string `koanf:"vendor_icons"`

	// CategoryIcons maps an upper-cased device category to an icon file.
	CategoryIcons map[string]string `koanf:"category_icons"`

	// Credentials maps a CMDB credential type to the device settings written
	// when the device does not inherit credentials from its group.
	Credentials map[string]CredentialProfile `koanf:"credentials"`
}

// CredentialProfile describes the monitor settings of one credential type.
type CredentialProfile struct {
	// InheritSetting is the inheritance toggle turned off on the device.
	InheritSetting string `koanf:"inherit_setting" validate:"required,settingname"`

	// DeviceLevel writes the credentials onto every device of this type, not
	// only onto customer-managed devices.
	DeviceLevel bool `koanf:"device_level"`

	Fields []CredentialFieldConfig `koanf:"fields" validate:"required,min=1,dive"`
}

// CredentialFieldConfig is one device setting of a credential profile.
type CredentialFieldConfig struct {
	Name string `koanf:"name" validate:"required,settingname"`

	// Source is username, password or literal.
	Source string `koanf:"source" validate:"required,oneof=username password literal"`

	// Value is written as-is when Source is literal.
	Value string `koanf:"value"`
}

// ScheduleConfig configures recurring reconciliation runs.
type ScheduleConfig struct {
	Enabled bool `koanf:"enabled"`

	// Cron is a standard five-field cron expression or a descriptor such as @hourly.
	Cron string `koanf:"cron"`

	RunOnStartup bool `koanf:"run_on_startup"`

	// RunTimeout bounds a whole run, scheduled or triggered.
	RunTimeout time.Duration `koanf:"run_timeout"`
}

// HistoryConfig configures the run report store.
type HistoryConfig struct {
	Enabled   bool          `koanf:"enabled"`
	Path      string        `koanf:"path"`
	InMemory  bool          `koanf:"in_memory"`
	Retention time.Duration `koanf:"retention"`
	MaxList   int           `koanf:"max_list"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	Host            string        `koanf:"host"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Addr returns host:port.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SecurityConfig holds API access settings.
type SecurityConfig struct {
	// APIKey is compared against the X-API-Key header. Empty disables the check.
	APIKey string `koanf:"api_key"`

	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
}

// LoggingConfig holds logging settings passed to logging.Init.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Load reads configuration from all layers and validates it.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
