// AuthGate - OIDC Authentication Gateway for Reverse Proxies
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authgate

// Package middleware provides the gateway's HTTP middleware: request IDs,
// Prometheus instrumentation, request logging and the per-IP credential
// rate limiter.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/tomtom215/authgate/internal/logging"
)

// RequestID attaches a unique ID to each request: reused from the
// X-Request-ID header when an upstream proxy set one, generated otherwise.
// The ID is echoed on the response and stored in the request context for
// log correlation.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		w.Header().Set("X-Request-ID", requestID)
		ctx := logging.ContextWithRequestID(r.Context(), requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
