// AuthGate - OIDC Authentication Gateway for Reverse Proxies
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authgate

package gateway

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/authgate/internal/middleware"
	"github.com/tomtom215/authgate/internal/session"
)

// NewRouter assembles the gateway's HTTP surface. done stops the
// background goroutines of the per-IP login limiter; close it on
// shutdown.
func NewRouter(data *session.Data, done <-chan struct{}) http.Handler {
	h := NewHandler(data)
	settings := data.Settings

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Metrics)
	r.Use(middleware.RequestLogger)

	if len(settings.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   settings.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	if settings.RateLimit > 0 {
		r.Use(httprate.LimitByIP(settings.RateLimit, time.Minute))
	}

	loginLimiter := middleware.NewLoginLimiter(settings.LoginRateLimit, done)

	r.Get("/login", h.Login)
	r.With(loginLimiter.Handler).Post("/login", h.LoginPassword)
	r.Get("/logout", h.Logout)

	r.Route("/auth", func(r chi.Router) {
		r.Get("/callback", h.Callback)
		r.Get("/refresh", h.Refresh)
		r.Get("/validate", h.Validate)
		r.Get("/forward-auth", h.ForwardAuth)
	})

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
