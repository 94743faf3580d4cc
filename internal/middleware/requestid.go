// CMDBSync - CMDB to Monitor Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cmdbsync

package middleware

import (
	"net/http"

	"github.com/tomtom215/cmdbsync/internal/logging"
)

// Header names for request tracing.
const (
	RequestIDHeader     = "X-Request-ID"
	CorrelationIDHeader = "X-Correlation-ID"
)

// maxIDLength bounds caller-supplied IDs before they reach logs.
const maxIDLength = 128

// RequestID assigns each request an ID, reusing a sane X-Request-ID from an
// upstream proxy, and stores it in the logging context. A caller-supplied
// X-Correlation-ID is kept so one client operation can be followed across
// requests.
func RequestID(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if !validID(requestID) {
			requestID = logging.GenerateRequestID()
		}
		w.Header().Set(RequestIDHeader, requestID)

		ctx := logging.ContextWithRequestID(r.Context(), requestID)
		if correlationID := r.Header.Get(CorrelationIDHeader); validID(correlationID) {
			ctx = logging.ContextWithCorrelationID(ctx, correlationID)
		} else {
			ctx = logging.ContextWithNewCorrelationID(ctx)
		}

		next(w, r.WithContext(ctx))
	}
}

// validID accepts short printable IDs without spaces.
func validID(id string) bool {
	if id == "" || len(id) > maxIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] <= ' ' || id[i] > '~' {
			return false
		}
	}
	return true
}
