// CMDBSync - CMDB to Monitor Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cmdbsync

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/cmdbsync/config.yaml",
	"/etc/cmdbsync/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		CMDB: CMDBConfig{
			Timeout:         30 * time.Second,
			PageSize:        500,
			InstallStatuses: []string{"1", "101", "107", "109"}, // Installed, Active, Duplicate installed, Duplicate Active
			ExcludedCCTypes: []string{"Out of Scope"},
			RateLimit:       10,
			RateBurst:       5,
		},
		Monitor: MonitorConfig{
			Timeout:       30 * time.Second,
			ResumeCreated: true,
			RateLimit:     5,
			RateBurst:     5,
		},
		Secrets: SecretsConfig{
			Provider: "none",
			Timeout:  15 * time.Second,
		},
		Reconcile: ReconcileConfig{
			Workers:          4,
			CompanyTimeout:   10 * time.Minute,
			MinDevices:       1,
			ServiceURLScheme: "host",
			DefaultPriority:  3,
			DefaultIcon:      "A_Server_1",
			VendorIcons:      defaultVendorIcons(),
			CategoryIcons: map[string]string{
				"SERVER":         "A_Server_1",
				"BACKUP":         "A_Server_1",
				"REPLICATION":    "A_Server_1",
				"NETWORK":        "Switch_2.png",
				"VIRTUALIZATION": "C_OS_VMware",
				"STORAGE":        "B_Server_SQL.png",
			},
			Credentials: defaultCredentialProfiles(),
		},
		Schedule: ScheduleConfig{
			Enabled:      false, // Triggered through the API by default
			Cron:         "0 */6 * * *",
			RunOnStartup: false,
			RunTimeout:   1 * time.Hour,
		},
		History: HistoryConfig{
			Enabled:   true,
			Path:      "/data/history",
			InMemory:  false,
			Retention: 30 * 24 * time.Hour,
			MaxList:   100,
		},
		Server: ServerConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			Timeout:         30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Security: SecurityConfig{
			APIKey:            "",
			RateLimitReqs:     60,
			RateLimitWindow:   1 * time.Minute,
			RateLimitDisabled: false,
			CORSOrigins:       []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// defaultVendorIcons covers the vendor icons shipped with PRTG.
func defaultVendorIcons() map[string]string {
	return map[string]string{
		"ACER":        "vendors_Acer.png",
		"ADTRAN":      "vendors_Adtran.png",
		"AMD":         "vendors_AMD.png",
		"APC":         "vendors_APC.png",
		"APPLE":       "vendors_Apple.png",
		"ARUBA":       "vendors_Aruba.png",
		"AXIS":        "vendors_Axis.png",
		"BARRACUDA":   "vendors_Barricuda.png",
		"BROADCOM":    "vendors_Broadcom.png",
		"BROCADE":     "vendors_Brocade.png",
		"BROTHER":     "vendors_Brother.png",
		"BUFFALO":     "vendors_Buffalo.png",
		"CANON":       "vendors_Canon.png",
		"CHECKPOINT":  "vendors_CheckPoint.png",
		"CISCO":       "vendors_Cisco.png",
		"CYBERNETICS": "vendors_Cybernetics.png",
		"DELL":        "vendors_DELL.png",
		"DLINK":       "vendors_dlink.png",
		"EMC":         "vendors_EMC.png",
		"EPSON":       "vendors_epson.png",
		"FORTINET":    "vendors_Fortinet.png",
		"FUJITSU":     "vendors_fujitsu.png",
		"HITACHI":     "vendors_Hitachi.png",
		"HP":          "vendors_HP.png",
		"HPE":         "vendors_HPE.png",
		"HUAWEI":      "vendors_Huawei.png",
		"IBM":         "vendors_IBM.png",
		"INTEL":       "vendors_Intel.png",
		"JUNIPER":     "vendors_Juniper.png",
		"KEMP":        "vendors_Kemp.png",
		"KENTIX":      "vendors_Kentix.png",
		"KYOCERA":     "vendors_Kyocera.png",
		"LENOVO":      "vendors_Lenovo.png",
		"LEXMARK":     "vendors_Lexmark.png",
		"LIEBERT":     "vendors_Liebert.png",
		"LINKSYS":     "vendors_Linksys.png",
		"LOGITECH":    "vendors_Logitech.png",
		"MIKROTIK":    "vendors_MicroTik.png",
		"NETAPP":      "vendors_Netapp.png",
		"NIMBLE":      "vendors_Nimble.png",
		"NORTEL":      "vendors_Nortel.png",
		"OKI":         "vendors_OKI.png",
		"ORACLE":      "vendors_Oracle.png",
		"PALOALTO":    "vendors_PaloAlto.png",
		"PANASONIC":   "vendors_Panasonic.png",
		"QNAP":        "vendors_QNAP.png",
		"RUCKUS":      "vendors_Ruckus.png",
		"SAMSUNG":     "vendors_Samsung.png",
		"SONOFF":      "vendors_Sonoff.png",
		"SONY":        "vendors_Sony.png",
		"SOPHOS":      "vendors_Sophos.png",
		"SYNOLOGY":    "vendors_synology.png",
		"VMWARE":      "vendors_VMware.png",
		"WATCHGUARD":  "vendors_Watchguard.png",
		"WESTERMO":    "vendors_Westermo.png",
		"XEROX":       "vendors_Xerox.png",
	}
}

// defaultCredentialProfiles maps CMDB credential types to PRTG device settings.
func defaultCredentialProfiles() map[string]CredentialProfile {
	return map[string]CredentialProfile{
		"windows": {
			InheritSetting: "windowsconnection",
			Fields: []CredentialFieldConfig{
				{Name: "windowslogindomain", Source: "literal", Value: "."},
				{Name: "windowsloginusername", Source: "username"},
				{Name: "windowsloginpassword", Source: "password"},
			},
		},
		"linux": {
			InheritSetting: "linuxconnection",
			Fields: []CredentialFieldConfig{
				{Name: "linuxloginusername", Source: "username"},
				{Name: "linuxloginpassword", Source: "password"},
			},
		},
		"vmware": {
			InheritSetting: "vmwareconnection",
			Fields: []CredentialFieldConfig{
				{Name: "esxuser", Source: "username"},
				{Name: "esxpassword", Source: "password"},
			},
		},
		"snmp": {
			InheritSetting: "snmpversiongroup",
			Fields: []CredentialFieldConfig{
				{Name: "snmpversion", Source: "literal", Value: "V2"},
				{Name: "snmpcommv2", Source: "password"},
				{Name: "snmpport", Source: "literal", Value: "161"},
			},
		},
		"dbms": {
			InheritSetting: "dbcredentials",
			DeviceLevel:    true, // Database logins are per instance
			Fields: []CredentialFieldConfig{
				{Name: "dbauth", Source: "literal", Value: "1"},
				{Name: "dbuser", Source: "username"},
				{Name: "dbpassword", Source: "password"},
			},
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in sensible defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any setting
//
// Precedence is ENV > File > Defaults.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	// CMDB_INSTANCE -> cmdb.instance, MONITOR_API_TOKEN -> monitor.api_token
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"cmdb.install_statuses",
	"cmdb.excluded_cc_types",
	"security.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// Env vars come in as strings, but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) == 0 {
			continue
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps lower-cased environment variable names to koanf paths.
var envMappings = map[string]string{
	// CMDB (ServiceNow)
	"cmdb_instance":             "cmdb.instance",
	"cmdb_url":                  "cmdb.url",
	"cmdb_username":             "cmdb.username",
	"cmdb_password":             "cmdb.password",
	"cmdb_timeout":              "cmdb.timeout",
	"cmdb_page_size":            "cmdb.page_size",
	"cmdb_install_statuses":     "cmdb.install_statuses",
	"cmdb_excluded_cc_types":    "cmdb.excluded_cc_types",
	"cmdb_writeback_monitor_id": "cmdb.writeback_monitor_id",
	"cmdb_rate_limit":           "cmdb.rate_limit",
	"cmdb_rate_burst":           "cmdb.rate_burst",

	// Monitor (PRTG)
	"monitor_url":                  "monitor.url",
	"monitor_api_token":            "monitor.api_token",
	"monitor_username":             "monitor.username",
	"monitor_passhash":             "monitor.passhash",
	"monitor_timeout":              "monitor.timeout",
	"monitor_root_group_id":        "monitor.root_group_id",
	"monitor_company_template_id":  "monitor.company_template_id",
	"monitor_location_template_id": "monitor.location_template_id",
	"monitor_device_template_id":   "monitor.device_template_id",
	"monitor_resume_created":       "monitor.resume_created",
	"monitor_rate_limit":           "monitor.rate_limit",
	"monitor_rate_burst":           "monitor.rate_burst",

	// Secrets
	"secrets_provider":          "secrets.provider",
	"secrets_url":               "secrets.url",
	"secrets_api_key":           "secrets.api_key",
	"secrets_timeout":           "secrets.timeout",
	"secrets_age_identity_file": "secrets.age_identity_file",
	"secrets_age_identity":      "secrets.age_identity",

	// Reconcile
	"reconcile_workers":            "reconcile.workers",
	"reconcile_company_timeout":    "reconcile.company_timeout",
	"reconcile_min_devices":        "reconcile.min_devices",
	"reconcile_service_url_scheme": "reconcile.service_url_scheme",
	"reconcile_default_priority":   "reconcile.default_priority",
	"reconcile_default_icon":       "reconcile.default_icon",

	// Schedule
	"schedule_enabled":        "schedule.enabled",
	"schedule_cron":           "schedule.cron",
	"schedule_run_on_startup": "schedule.run_on_startup",
	"schedule_run_timeout":    "schedule.run_timeout",

	// History
	"history_enabled":   "history.enabled",
	"history_path":      "history.path",
	"history_in_memory": "history.in_memory",
	"history_retention": "history.retention",
	"history_max_list":  "history.max_list",

	// Server
	"http_port":             "server.port",
	"http_host":             "server.host",
	"http_timeout":          "server.timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",

	// Security
	"api_key":             "security.api_key",
	"rate_limit_requests": "security.rate_limit_reqs",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",
	"cors_origins":        "security.cors_origins",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - CMDB_INSTANCE -> cmdb.instance
//   - MONITOR_API_TOKEN -> monitor.api_token
//   - HTTP_PORT -> server.port
//   - API_KEY -> security.api_key
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}

	// Unmapped variables are skipped so the environment cannot pollute config
	return ""
}
