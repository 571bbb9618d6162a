// AuthGate - OIDC Authentication Gateway for Reverse Proxies
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authgate

package logging

import "github.com/rs/zerolog"

// SecurityLogger emits structured security events for the authentication
// flows: logins, logouts, token refreshes, denied forward-auth requests.
// Events carry event_type so they can be filtered out of the general log
// stream by downstream tooling.
type SecurityLogger struct {
	logger zerolog.Logger
}

// NewSecurityLogger returns a SecurityLogger on the global logger.
func NewSecurityLogger() *SecurityLogger {
	return &SecurityLogger{logger: Logger().With().Str("log", "security").Logger()}
}

// NewSecurityLoggerWithLogger returns a SecurityLogger on a specific logger.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewSecurityLoggerWithLogger(logger zerolog.Logger) *SecurityLogger {
	return &SecurityLogger{logger: logger.With().Str("log", "security").Logger()}
}

// LoginSuccess records a successful credential or authorization-code login.
func (l *SecurityLogger) LoginSuccess(grant, subject, ip string) {
	l.logger.Info().
		Str("event_type", "login_success").
		Str("grant", grant).
		Str("subject", subject).
		Str("ip", ip).
		Msg("login succeeded")
}

// LoginFailure records a rejected login attempt.
func (l *SecurityLogger) LoginFailure(grant, ip, reason string) {
	l.logger.Warn().
		Str("event_type", "login_failure").
		Str("grant", grant).
		Str("ip", ip).
		Str("reason", reason).
		Msg("login failed")
}

// Logout records a session termination.
func (l *SecurityLogger) Logout(ip string) {
	l.logger.Info().
		Str("event_type", "logout").
		Str("ip", ip).
		Msg("logout")
}

// TokenRefresh records a silent session renewal attempt.
func (l *SecurityLogger) TokenRefresh(subject string, success bool) {
	event := l.logger.Info()
	if !success {
		event = l.logger.Warn()
	}
	event.
		Str("event_type", "token_refresh").
		Str("subject", subject).
		Bool("success", success).
		Msg("token refresh")
}

// ForwardAuthDenied records a forward-auth request rejected as unauthenticated.
func (l *SecurityLogger) ForwardAuthDenied(ip, forwardedURI string) {
	l.logger.Warn().
		Str("event_type", "forward_auth_denied").
		Str("ip", ip).
		Str("forwarded_uri", forwardedURI).
		Msg("forward-auth denied")
}

// RateLimited records a request rejected by the credential rate limiter.
func (l *SecurityLogger) RateLimited(ip, path string) {
	l.logger.Warn().
		Str("event_type", "rate_limited").
		Str("ip", ip).
		Str("path", path).
		Msg("request rate limited")
}
