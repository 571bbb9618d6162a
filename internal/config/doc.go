// AuthGate - OIDC Authentication Gateway for Reverse Proxies
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authgate

// Package config loads AuthGate settings from layered sources, later wins:
//
//  1. struct defaults
//  2. optional YAML file (--config)
//  3. command-line flags
//  4. prefixed environment variables (only when --config-env is supplied)
//
// Flag names are kebab-case; environment variables are PREFIX_UPPER_SNAKE.
// Both map onto the same dotted koanf paths, with cookie, provider and api
// acting as config sections (AUTHGATE_PROVIDER_CLIENT_ID -> provider.client_id,
// and the bare section name doubles: AUTHGATE_PROVIDER -> provider.provider).
package config
