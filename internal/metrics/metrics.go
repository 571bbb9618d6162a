// AuthGate - OIDC Authentication Gateway for Reverse Proxies
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authgate

// Package metrics defines the Prometheus collectors for gateway
// operations. Collectors are registered on the default registry through
// promauto; the /metrics endpoint serves them via promhttp.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts requests by method, route pattern and
	// status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_http_requests_total",
			Help: "Total number of HTTP requests handled by the gateway",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration measures request latency by route pattern.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "authgate_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// HTTPRequestsInFlight tracks currently executing requests.
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "authgate_http_requests_in_flight",
			Help: "Number of HTTP requests currently being served",
		},
	)

	// LoginsTotal counts login attempts.
	// Labels:
	//   - grant: "authorization_code" or "password"
	//   - outcome: "success", "denied", "error"
	LoginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_logins_total",
			Help: "Total number of login attempts by grant and outcome",
		},
		[]string{"grant", "outcome"},
	)

	// SessionValidationsTotal counts session validations by the status
	// they resolve to ("new", "logged", "invalid").
	SessionValidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_session_validations_total",
			Help: "Total number of session validations by resulting status",
		},
		[]string{"status"},
	)

	// ForwardAuthDecisionsTotal counts forward-auth subrequest outcomes
	// ("allowed", "denied", "redirected").
	ForwardAuthDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_forward_auth_decisions_total",
			Help: "Total number of forward-auth decisions",
		},
		[]string{"decision"},
	)

	// LogoutsTotal counts completed logouts.
	LogoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "authgate_logouts_total",
			Help: "Total number of logouts",
		},
	)

	// UpstreamNotificationsTotal counts business API notifications by kind
	// ("id_token", "logout") and outcome ("success", "error").
	UpstreamNotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_upstream_notifications_total",
			Help: "Total number of business API notifications by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeDenied  = "denied"
	OutcomeError   = "error"
)

// Forward-auth decision label values.
const (
	DecisionAllowed    = "allowed"
	DecisionDenied     = "denied"
	DecisionRedirected = "redirected"
)

// RecordHTTPRequest records one completed request.
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// TrackInFlight adjusts the in-flight gauge around a request.
func TrackInFlight(start bool) {
	if start {
		HTTPRequestsInFlight.Inc()
	} else {
		HTTPRequestsInFlight.Dec()
	}
}

// RecordLogin records a login attempt.
func RecordLogin(grant, outcome string) {
	LoginsTotal.WithLabelValues(grant, outcome).Inc()
}

// RecordValidation records the status a validation resolved to.
func RecordValidation(status string) {
	SessionValidationsTotal.WithLabelValues(status).Inc()
}

// RecordForwardAuth records a forward-auth decision.
func RecordForwardAuth(decision string) {
	ForwardAuthDecisionsTotal.WithLabelValues(decision).Inc()
}

// RecordUpstreamNotification records a business API call outcome.
func RecordUpstreamNotification(kind string, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	UpstreamNotificationsTotal.WithLabelValues(kind, outcome).Inc()
}
