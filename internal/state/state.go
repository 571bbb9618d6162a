// AuthGate - OIDC Authentication Gateway for Reverse Proxies
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authgate

// Package state implements the opaque OAuth state token: an encrypted JSON
// value carrying the post-login redirect target across the provider hop.
package state

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/authgate/internal/crypto"
)

// State is the round-tripped payload.
type State struct {
	// URL is the post-login redirect target. Empty when the login was
	// started without one.
	URL string `json:"url,omitempty"`
}

// Codec serializes and parses state tokens. Safe for concurrent use.
type Codec struct {
	crypto *crypto.Encryptor
}

// NewCodec creates a Codec on the given encryptor.
func NewCodec(enc *crypto.Encryptor) *Codec {
	return &Codec{crypto: enc}
}

// Serialize encrypts a state payload for the given redirect target.
func (c *Codec) Serialize(url string) (string, error) {
	payload, err := json.Marshal(State{URL: url})
	if err != nil {
		return "", fmt.Errorf("encode state: %w", err)
	}
	token, err := c.crypto.Encrypt(string(payload))
	if err != nil {
		return "", fmt.Errorf("encrypt state: %w", err)
	}
	return token, nil
}

// Parse decrypts and decodes a state token. Tampered or foreign tokens
// fail with the underlying crypto error.
func (c *Codec) Parse(token string) (State, error) {
	payload, err := c.crypto.Decrypt(token)
	if err != nil {
		return State{}, fmt.Errorf("decrypt state: %w", err)
	}
	var s State
	if err := json.Unmarshal([]byte(payload), &s); err != nil {
		return State{}, fmt.Errorf("decode state: %w", err)
	}
	return s, nil
}
