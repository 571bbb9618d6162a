// AuthGate - OIDC Authentication Gateway for Reverse Proxies
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authgate

package config

import "strings"

// sections are the nested settings groups. A key whose first segment equals
// a section nests under it; the bare section name doubles (the flavour
// selector lives at provider.provider).
var sections = []string{"cookie", "provider", "api"}

// transformKey maps a lowercased snake_case key (prefix already stripped)
// to its koanf path.
//
//	provider            -> provider.provider
//	provider_client_id  -> provider.client_id
//	jwt_secret          -> jwt_secret
func transformKey(key string) string {
	for _, section := range sections {
		if key == section {
			return section + "." + section
		}
		if rest, ok := strings.CutPrefix(key, section+"_"); ok {
			return section + "." + rest
		}
	}
	return key
}

// flagToPath maps a kebab-case flag name to its koanf path.
func flagToPath(name string) string {
	return transformKey(strings.ReplaceAll(name, "-", "_"))
}

// envTransform returns the koanf env callback for the given prefix.
// Non-matching keys and empty values are skipped, matching the original
// deployment's behaviour of ignoring blank variables.
func envTransform(prefix string) func(key, value string) (string, any) {
	pattern := strings.ToLower(prefix) + "_"
	return func(key, value string) (string, any) {
		if value == "" {
			return "", nil
		}
		lowered := strings.ToLower(key)
		rest, ok := strings.CutPrefix(lowered, pattern)
		if !ok {
			return "", nil
		}
		return transformKey(rest), value
	}
}
