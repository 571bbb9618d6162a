// AuthGate - OIDC Authentication Gateway for Reverse Proxies
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authgate

// Package signer implements the optional HMAC signer applied to outbound
// identity payloads: the x-auth-userinfo header and the id_token value
// posted to the business API.
//
// With a configured secret, payloads become compact HS256 JWTs that the
// receiving service can verify. Without one, payloads pass through as plain
// JSON. AuthGate itself never verifies these tokens.
package signer

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidClaims indicates the payload is not a JSON object and therefore
// cannot be the claims of a JWT.
var ErrInvalidClaims = errors.New("claims must be a JSON object")

// Signer signs arbitrary JSON payloads with HMAC-SHA256. The zero-secret
// Signer is a passthrough. Safe for concurrent use.
type Signer struct {
	secret []byte
}

// New creates a Signer. An empty secret yields a passthrough Signer.
func New(secret string) *Signer {
	if secret == "" {
		return &Signer{}
	}
	return &Signer{secret: []byte(secret)}
}

// Enabled reports whether a signing secret is configured.
func (s *Signer) Enabled() bool {
	return len(s.secret) > 0
}

// EncodeValue returns the payload for a JSON value position: the signed
// compact JWT when a secret is configured, the input unchanged otherwise.
func (s *Signer) EncodeValue(v any) (any, error) {
	if !s.Enabled() {
		return v, nil
	}
	return s.sign(v)
}

// EncodeString returns the payload for a header value position: the signed
// compact JWT when a secret is configured, compact JSON text otherwise.
func (s *Signer) EncodeString(v any) (string, error) {
	if !s.Enabled() {
		encoded, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("encode payload: %w", err)
		}
		return string(encoded), nil
	}
	return s.sign(v)
}

func (s *Signer) sign(v any) (string, error) {
	claims, err := toClaims(v)
	if err != nil {
		return "", err
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign payload: %w", err)
	}
	return signed, nil
}

func toClaims(v any) (jwt.MapClaims, error) {
	switch m := v.(type) {
	case jwt.MapClaims:
		return m, nil
	case map[string]any:
		return jwt.MapClaims(m), nil
	}

	// Round-trip through JSON for struct payloads.
	encoded, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(encoded, &m); err != nil {
		return nil, fmt.Errorf("%w: %T", ErrInvalidClaims, v)
	}
	return jwt.MapClaims(m), nil
}
