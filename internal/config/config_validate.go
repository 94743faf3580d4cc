// CMDBSync - CMDB to Monitor Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cmdbsync

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tomtom215/cmdbsync/internal/validation"
)

// Validate checks that required configuration is present and valid
func (c *Config) Validate() error {
	if err := c.validateCMDB(); err != nil {
		return err
	}

	if err := c.validateMonitor(); err != nil {
		return err
	}

	if err := c.validateSecrets(); err != nil {
		return err
	}

	if err := c.validateReconcile(); err != nil {
		return err
	}

	if err := c.validateSchedule(); err != nil {
		return err
	}

	if err := c.validateHistory(); err != nil {
		return err
	}

	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateSecurity(); err != nil {
		return err
	}

	return c.validateLogging()
}

// validateCMDB validates the ServiceNow connection and scope filter
func (c *Config) validateCMDB() error {
	if c.CMDB.Instance == "" && c.CMDB.URL == "" {
		return fmt.Errorf("CMDB_INSTANCE or CMDB_URL is required")
	}
	if c.CMDB.URL != "" {
		if err := validateHTTPURL(c.CMDB.URL, "CMDB_URL"); err != nil {
			return fmt.Errorf("CMDB_URL is invalid: %w", err)
		}
	}
	if c.CMDB.Username == "" || c.CMDB.Password == "" {
		return fmt.Errorf("CMDB_USERNAME and CMDB_PASSWORD are required")
	}
	if c.CMDB.Timeout <= 0 {
		return fmt.Errorf("CMDB_TIMEOUT must be positive")
	}
	if c.CMDB.PageSize < 1 || c.CMDB.PageSize > 10000 {
		return fmt.Errorf("CMDB_PAGE_SIZE must be between 1 and 10000")
	}
	if len(c.CMDB.InstallStatuses) == 0 {
		return fmt.Errorf("CMDB_INSTALL_STATUSES must list at least one status")
	}
	return validateRate(c.CMDB.RateLimit, c.CMDB.RateBurst, "CMDB")
}

// validateMonitor validates the PRTG connection and object IDs
func (c *Config) validateMonitor() error {
	if c.Monitor.URL == "" {
		return fmt.Errorf("MONITOR_URL is required")
	}
	if err := validateHTTPURL(c.Monitor.URL, "MONITOR_URL"); err != nil {
		return fmt.Errorf("MONITOR_URL is invalid: %w", err)
	}
	if c.Monitor.APIToken == "" && (c.Monitor.Username == "" || c.Monitor.Passhash == "") {
		return fmt.Errorf("MONITOR_API_TOKEN or MONITOR_USERNAME and MONITOR_PASSHASH are required")
	}
	if c.Monitor.Timeout <= 0 {
		return fmt.Errorf("MONITOR_TIMEOUT must be positive")
	}

	ids := []struct {
		value int
		name  string
	}{
		{c.Monitor.RootGroupID, "MONITOR_ROOT_GROUP_ID"},
		{c.Monitor.CompanyTemplateID, "MONITOR_COMPANY_TEMPLATE_ID"},
		{c.Monitor.LocationTemplateID, "MONITOR_LOCATION_TEMPLATE_ID"},
		{c.Monitor.DeviceTemplateID, "MONITOR_DEVICE_TEMPLATE_ID"},
	}
	for _, id := range ids {
		if id.value <= 0 {
			return fmt.Errorf("%s must be a positive object ID", id.name)
		}
	}

	return validateRate(c.Monitor.RateLimit, c.Monitor.RateBurst, "MONITOR")
}

// validSecretProviders defines the allowed secrets providers
var validSecretProviders = map[string]bool{
	"none":   true,
	"static": true,
	"http":   true,
	"age":    true,
}

// validateSecrets validates the selected secrets provider
func (c *Config) validateSecrets() error {
	if !validSecretProviders[c.Secrets.Provider] {
		return fmt.Errorf("SECRETS_PROVIDER must be one of: none, static, http, age")
	}

	switch c.Secrets.Provider {
	case "http":
		if c.Secrets.URL == "" {
			return fmt.Errorf("SECRETS_URL is required when SECRETS_PROVIDER=http")
		}
		if err := validateEndpointURL(c.Secrets.URL, "SECRETS_URL"); err != nil {
			return fmt.Errorf("SECRETS_URL is invalid: %w", err)
		}
		if c.Secrets.APIKey == "" {
			return fmt.Errorf("SECRETS_API_KEY is required when SECRETS_PROVIDER=http")
		}
		if c.Secrets.Timeout <= 0 {
			return fmt.Errorf("SECRETS_TIMEOUT must be positive")
		}
	case "age":
		if c.Secrets.AgeIdentityFile == "" && c.Secrets.AgeIdentity == "" {
			return fmt.Errorf("SECRETS_AGE_IDENTITY_FILE or SECRETS_AGE_IDENTITY is required when SECRETS_PROVIDER=age")
		}
	}
	return nil
}

// validateReconcile validates planning, naming and credential settings
func (c *Config) validateReconcile() error {
	r := &c.Reconcile
	if r.Workers < 1 || r.Workers > 64 {
		return fmt.Errorf("RECONCILE_WORKERS must be between 1 and 64")
	}
	if r.CompanyTimeout <= 0 {
		return fmt.Errorf("RECONCILE_COMPANY_TIMEOUT must be positive")
	}
	if r.MinDevices < 1 {
		return fmt.Errorf("RECONCILE_MIN_DEVICES must be at least 1")
	}
	if r.ServiceURLScheme != "host" && r.ServiceURLScheme != "cmdb" {
		return fmt.Errorf("RECONCILE_SERVICE_URL_SCHEME must be one of: host, cmdb")
	}
	if r.DefaultPriority < 1 || r.DefaultPriority > 5 {
		return fmt.Errorf("RECONCILE_DEFAULT_PRIORITY must be between 1 and 5")
	}

	for credType, profile := range r.Credentials {
		if err := validation.ValidateStruct(&profile); err != nil {
			return fmt.Errorf("reconcile.credentials.%s is invalid: %w", credType, err)
		}
	}
	return nil
}

// validateSchedule validates the cron expression when scheduling is enabled
func (c *Config) validateSchedule() error {
	if c.Schedule.RunTimeout <= 0 {
		return fmt.Errorf("SCHEDULE_RUN_TIMEOUT must be positive")
	}
	if !c.Schedule.Enabled {
		return nil
	}
	if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
		return fmt.Errorf("SCHEDULE_CRON is invalid: %w", err)
	}
	return nil
}

// validateHistory validates the run report store
func (c *Config) validateHistory() error {
	if !c.History.Enabled {
		return nil
	}
	if c.History.Path == "" && !c.History.InMemory {
		return fmt.Errorf("HISTORY_PATH is required when HISTORY_ENABLED=true")
	}
	if c.History.Retention < time.Hour {
		return fmt.Errorf("HISTORY_RETENTION must be at least 1h")
	}
	if c.History.MaxList < 1 {
		return fmt.Errorf("HISTORY_MAX_LIST must be at least 1")
	}
	return nil
}

// validateServer validates server configuration
func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}
	return nil
}

// Rate limit constants
const (
	minRateLimitRequests = 1           // Minimum 1 request allowed
	maxRateLimitRequests = 100000      // Maximum 100K requests per window
	minRateLimitWindow   = time.Second // Minimum 1 second window
	maxRateLimitWindow   = time.Hour   // Maximum 1 hour window
)

// validateSecurity validates API access configuration
func (c *Config) validateSecurity() error {
	if c.Security.APIKey != "" && len(c.Security.APIKey) < 16 {
		return fmt.Errorf("API_KEY must be at least 16 characters")
	}
	if containsPlaceholder(c.Security.APIKey) {
		return fmt.Errorf("API_KEY contains a placeholder value, set a real key")
	}
	if c.Security.RateLimitDisabled {
		return nil
	}
	if c.Security.RateLimitReqs < minRateLimitRequests || c.Security.RateLimitReqs > maxRateLimitRequests {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be between %d and %d", minRateLimitRequests, maxRateLimitRequests)
	}
	if c.Security.RateLimitWindow < minRateLimitWindow || c.Security.RateLimitWindow > maxRateLimitWindow {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be between %v and %v", minRateLimitWindow, maxRateLimitWindow)
	}
	return nil
}

// ShouldWarnAboutAPIKey returns true when the API is reachable without a key
func (c *Config) ShouldWarnAboutAPIKey() bool {
	return c.Security.APIKey == ""
}

var validLogLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"json":    true,
	"console": true,
}

// validateLogging validates logging configuration
func (c *Config) validateLogging() error {
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	if c.Logging.Format != "" && !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}
	return nil
}

func validateRate(limit float64, burst int, prefix string) error {
	if limit < 0 {
		return fmt.Errorf("%s_RATE_LIMIT must not be negative", prefix)
	}
	if limit > 0 && burst < 1 {
		return fmt.Errorf("%s_RATE_BURST must be at least 1 when %s_RATE_LIMIT is set", prefix, prefix)
	}
	return nil
}

// validateHTTPURL validates that a URL is properly formatted for HTTP/HTTPS services.
// Validates: scheme (http/https), host present, no paths or query params.
func validateHTTPURL(rawURL, fieldName string) error {
	parsedURL, err := validateEndpointURLParts(rawURL, fieldName)
	if err != nil {
		return err
	}

	// Allow trailing slash but no other paths
	if parsedURL.Path != "" && parsedURL.Path != "/" {
		return fmt.Errorf("%s should be base URL only, remove path: %s", fieldName, parsedURL.Path)
	}
	return nil
}

// validateEndpointURL is validateHTTPURL for endpoints that carry a path.
func validateEndpointURL(rawURL, fieldName string) error {
	_, err := validateEndpointURLParts(rawURL, fieldName)
	return err
}

func validateEndpointURLParts(rawURL, fieldName string) (*url.URL, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%s failed to parse URL: %w", fieldName, err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("%s scheme must be http or https, got: %s", fieldName, parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return nil, fmt.Errorf("%s host is required", fieldName)
	}
	if parsedURL.RawQuery != "" {
		return nil, fmt.Errorf("%s should not contain query parameters, remove: ?%s", fieldName, parsedURL.RawQuery)
	}
	return parsedURL, nil
}

// placeholderPatterns defines common placeholder patterns that indicate
// the user forgot to set a real value.
var placeholderPatterns = []string{
	"REPLACE",
	"CHANGEME",
	"CHANGE_ME",
	"YOUR_SECRET",
	"YOUR_API_KEY",
	"PLACEHOLDER",
}

func containsPlaceholder(value string) bool {
	upperValue := strings.ToUpper(value)
	for _, pattern := range placeholderPatterns {
		if strings.Contains(upperValue, pattern) {
			return true
		}
	}
	return false
}
