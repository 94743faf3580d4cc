// CMDBSync - CMDB to Monitor Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cmdbsync

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	correlationIDKey contextKey = "correlation_id"
	requestIDKey     contextKey = "request_id"
	companyKey       contextKey = "company"
)

// GenerateCorrelationID returns the first 8 characters of a UUID.
func GenerateCorrelationID() string {
	return uuid.New().String()[:8]
}

// GenerateRequestID returns a full UUID.
func GenerateRequestID() string {
	return uuid.New().String()
}

// ContextWithCorrelationID returns ctx carrying id. Reconciliation runs use
// their run ID here so every upstream call of a run can be grepped together.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// ContextWithNewCorrelationID returns ctx carrying a fresh correlation ID.
func ContextWithNewCorrelationID(ctx context.Context) context.Context {
	return ContextWithCorrelationID(ctx, GenerateCorrelationID())
}

// CorrelationIDFromContext returns the correlation ID or "".
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithRequestID returns ctx carrying an HTTP request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request ID or "".
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithCompany tags ctx with the company being reconciled.
func ContextWithCompany(ctx context.Context, company string) context.Context {
	return context.WithValue(ctx, companyKey, company)
}

// CompanyFromContext returns the company tag or "".
func CompanyFromContext(ctx context.Context) string {
	if c, ok := ctx.Value(companyKey).(string); ok {
		return c
	}
	return ""
}

// Ctx returns the global logger enriched with the correlation_id, request_id
// and company values found in ctx.
//
//	logging.Ctx(ctx).Info().Msg("Fetching monitor tree")
func Ctx(ctx context.Context) *zerolog.Logger {
	logCtx := CtxWith(ctx)
	l := logCtx.Logger()
	return &l
}

// CtxWith returns a logger context builder with the ctx values pre-populated.
func CtxWith(ctx context.Context) zerolog.Context {
	logCtx := With()
	if id := CorrelationIDFromContext(ctx); id != "" {
		logCtx = logCtx.Str("correlation_id", id)
	}
	if id := RequestIDFromContext(ctx); id != "" {
		logCtx = logCtx.Str("request_id", id)
	}
	if c := CompanyFromContext(ctx); c != "" {
		logCtx = logCtx.Str("company", c)
	}
	return logCtx
}

// WithComponent creates a child logger with a component field.
//
//	log := logging.WithComponent("cmdb")
func WithComponent(component string) zerolog.Logger {
	return With().Str("component", component).Logger()
}
