// CMDBSync - CMDB to Monitor Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cmdbsync

package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tomtom215/cmdbsync/internal/models"
)

// StatusError is a non-2xx upstream response.
type StatusError struct {
	System     string
	Operation  string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.System, e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.System, e.Operation, e.StatusCode, e.Body)
}

// Unwrap maps server errors and throttling to models.ErrUpstreamUnavailable.
// Other client errors unwrap to nothing.
func (e *StatusError) Unwrap() error {
	if e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests {
		return models.ErrUpstreamUnavailable
	}
	return nil
}

// Unavailable reports whether err means the upstream could not serve the
// request: transport failure, timeout, server error or open breaker.
func Unavailable(err error) bool {
	return errors.Is(err, models.ErrUpstreamUnavailable)
}

// Classify normalizes an error from an upstream call. Timeouts and transport
// failures become models.ErrUpstreamUnavailable; a canceled parent context is
// passed through unchanged so callers can tell shutdown from outage.
func Classify(parent context.Context, system, op string, err error) error {
	switch {
	case err == nil:
		return nil
	case parent.Err() != nil:
		return fmt.Errorf("%s %s: %w", system, op, parent.Err())
	case Unavailable(err):
		return err
	case errors.As(err, new(*StatusError)):
		return err
	default:
		// Per-call deadline, connection refused, DNS, TLS.
		return fmt.Errorf("%s %s: %w: %w", system, op, models.ErrUpstreamUnavailable, err)
	}
}

func unavailable(system string, err error) error {
	return fmt.Errorf("%s: %w: %w", system, models.ErrUpstreamUnavailable, err)
}
