// CMDBSync - CMDB to Monitor Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cmdbsync

// Package secrets decrypts the password field of configuration items.
//
// Every failure, including an unreachable secrets service, is reported as
// models.ErrDecryption so the caller can still create the device with
// inherited credentials and flag it.
package secrets

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/tomtom215/cmdbsync/internal/config"
	"github.com/tomtom215/cmdbsync/internal/models"
	"github.com/tomtom215/cmdbsync/internal/upstream"
)

// Decrypter returns the plaintext password of a device record.
type Decrypter interface {
	Decrypt(ctx context.Context, dev *models.DeviceRecord) (string, error)
}

// New returns the decrypter selected by cfg.Provider.
func New(cfg *config.SecretsConfig) (Decrypter, error) {
	switch cfg.Provider {
	case "http":
		return NewHTTPDecrypter(cfg, nil), nil
	case "age":
		return NewAgeDecrypter(cfg)
	case "static":
		return StaticDecrypter{}, nil
	case "none", "":
		return NoopDecrypter{}, nil
	default:
		return nil, fmt.Errorf("unknown secrets provider %q", cfg.Provider)
	}
}

// HTTPDecrypter asks a decryption endpoint for the password of a
// configuration item: GET {url}/{sys_id}/getcipassword.
type HTTPDecrypter struct {
	api *upstream.Client
}

type decryptResponse struct {
	Result struct {
		Password string `json:"fs_password"`
	} `json:"result"`
}

// NewHTTPDecrypter creates a decrypter for the endpoint in cfg.
func NewHTTPDecrypter(cfg *config.SecretsConfig, httpClient *http.Client) *HTTPDecrypter {
	apiKey := cfg.APIKey
	return &HTTPDecrypter{
		api: upstream.New(upstream.Options{
			System:     "secrets",
			BaseURL:    cfg.URL,
			Timeout:    cfg.Timeout,
			HTTPClient: httpClient,
			Authorize: func(r *http.Request) {
				r.Header.Set("api_key", apiKey)
			},
		}),
	}
}

// Decrypt implements Decrypter.
func (d *HTTPDecrypter) Decrypt(ctx context.Context, dev *models.DeviceRecord) (string, error) {
	var resp decryptResponse
	err := d.api.DoJSON(ctx, upstream.Request{
		Operation: "decrypt",
		Path:      "/" + url.PathEscape(dev.SysID) + "/getcipassword",
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrDecryption, err)
	}
	if resp.Result.Password == "" {
		return "", fmt.Errorf("%w: empty password for %s", models.ErrDecryption, dev.SysID)
	}
	return resp.Result.Password, nil
}

// StaticDecrypter treats the stored value as plaintext. Meant for lab
// instances where the password column is not encrypted.
type StaticDecrypter struct{}

// Decrypt implements Decrypter.
func (StaticDecrypter) Decrypt(_ context.Context, dev *models.DeviceRecord) (string, error) {
	if strings.TrimSpace(dev.EncryptedPassword) == "" {
		return "", fmt.Errorf("%w: no password stored for %s", models.ErrDecryption, dev.SysID)
	}
	return dev.EncryptedPassword, nil
}

// NoopDecrypter is used when no provider is configured. Every call fails,
// so devices needing their own credentials are created inheriting and flagged.
type NoopDecrypter struct{}

// Decrypt implements Decrypter.
func (NoopDecrypter) Decrypt(_ context.Context, dev *models.DeviceRecord) (string, error) {
	return "", fmt.Errorf("%w: no secrets provider configured", models.ErrDecryption)
}
