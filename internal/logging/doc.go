// AuthGate - OIDC Authentication Gateway for Reverse Proxies
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authgate

// Package logging provides the global zerolog-based logger for AuthGate.
//
// The package exposes package-level event starters (Info, Warn, Error, ...)
// backed by a single configurable logger, context helpers that attach the
// request ID to every event, and an slog.Handler bridge so libraries that
// speak log/slog (the supervisor, via sutureslog) share the same output.
//
// Call Init once from main; before that, a default JSON logger on stderr is
// active so early failures are still visible.
package logging
