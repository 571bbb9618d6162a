// AuthGate - OIDC Authentication Gateway for Reverse Proxies
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authgate

package provider

import "github.com/golang-jwt/jwt/v5"

// decodeJWTPayload extracts the claims of a compact JWT without verifying
// the signature. Signature trust is delegated to the provider transport;
// this is a deliberate design decision, not an oversight.
func decodeJWTPayload(token string) (map[string]any, bool) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, false
	}
	return map[string]any(claims), true
}
