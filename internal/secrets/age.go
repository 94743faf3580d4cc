// CMDBSync - CMDB to Monitor Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cmdbsync

package secrets

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"
	"filippo.io/age/armor"

	"github.com/tomtom215/cmdbsync/internal/config"
	"github.com/tomtom215/cmdbsync/internal/models"
)

// maxPasswordSize bounds a decrypted password.
const maxPasswordSize = 4096

// AgeDecrypter decrypts password values encrypted to an age X25519
// recipient. Values may be ASCII-armored or standard base64.
type AgeDecrypter struct {
	identities []age.Identity
}

// NewAgeDecrypter loads identities from cfg.AgeIdentityFile or cfg.AgeIdentity.
func NewAgeDecrypter(cfg *config.SecretsConfig) (*AgeDecrypter, error) {
	var source io.Reader
	switch {
	case cfg.AgeIdentity != "":
		source = strings.NewReader(cfg.AgeIdentity)
	case cfg.AgeIdentityFile != "":
		f, err := os.Open(cfg.AgeIdentityFile)
		if err != nil {
			return nil, fmt.Errorf("open age identity file: %w", err)
		}
		defer f.Close()
		source = f
	default:
		return nil, errors.New("age provider requires SECRETS_AGE_IDENTITY_FILE or SECRETS_AGE_IDENTITY")
	}

	identities, err := age.ParseIdentities(source)
	if err != nil {
		return nil, fmt.Errorf("parse age identities: %w", err)
	}
	return &AgeDecrypter{identities: identities}, nil
}

// Decrypt implements Decrypter.
func (d *AgeDecrypter) Decrypt(_ context.Context, dev *models.DeviceRecord) (string, error) {
	value := strings.TrimSpace(dev.EncryptedPassword)
	if value == "" {
		return "", fmt.Errorf("%w: no password stored for %s", models.ErrDecryption, dev.SysID)
	}

	var ciphertext io.Reader
	if strings.HasPrefix(value, armor.Header) {
		ciphertext = armor.NewReader(strings.NewReader(value))
	} else {
		raw, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			return "", fmt.Errorf("%w: decoding base64 ciphertext for %s: %w", models.ErrDecryption, dev.SysID, err)
		}
		ciphertext = bytes.NewReader(raw)
	}

	reader, err := age.Decrypt(ciphertext, d.identities...)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", models.ErrDecryption, dev.SysID, err)
	}
	plaintext, err := io.ReadAll(io.LimitReader(reader, maxPasswordSize))
	if err != nil {
		return "", fmt.Errorf("%w: reading plaintext for %s: %w", models.ErrDecryption, dev.SysID, err)
	}
	return string(plaintext), nil
}
