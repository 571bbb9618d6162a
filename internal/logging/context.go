// AuthGate - OIDC Authentication Gateway for Reverse Proxies
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authgate

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// GenerateRequestID returns a new unique request identifier.
func GenerateRequestID() string {
	return uuid.NewString()
}

// ContextWithRequestID returns a context carrying the given request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request ID stored in ctx, or "".
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// Ctx returns the global logger enriched with the request ID from ctx,
// when one is present.
func Ctx(ctx context.Context) zerolog.Logger {
	l := Logger()
	if id := RequestIDFromContext(ctx); id != "" {
		l = l.With().Str("request_id", id).Logger()
	}
	return l
}

// CtxInfo starts an info-level event carrying the request ID from ctx.
func CtxInfo(ctx context.Context) *zerolog.Event {
	l := Ctx(ctx)
	return l.Info()
}

// CtxWarn starts a warn-level event carrying the request ID from ctx.
func CtxWarn(ctx context.Context) *zerolog.Event {
	l := Ctx(ctx)
	return l.Warn()
}

// CtxError starts an error-level event carrying the request ID from ctx.
func CtxError(ctx context.Context) *zerolog.Event {
	l := Ctx(ctx)
	return l.Error()
}

// CtxErr starts an error-level event with err attached and the request ID
// from ctx.
func CtxErr(ctx context.Context, err error) *zerolog.Event {
	l := Ctx(ctx)
	return l.Err(err)
}

// WithComponent returns a logger tagged with a component name.
func WithComponent(component string) zerolog.Logger {
	return Logger().With().Str("component", component).Logger()
}
