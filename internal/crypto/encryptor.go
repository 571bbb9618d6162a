// AuthGate - OIDC Authentication Gateway for Reverse Proxies
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authgate

// Package crypto implements the encryption applied to every value AuthGate
// hands to the browser: session cookie payloads and the OAuth state token.
//
// Wire format (base64, standard alphabet):
//
//	version(1) || nonce(12) || salt(64) || ciphertext || tag(16)
//
// The key is derived per value with PBKDF2-HMAC-SHA512 from the shared
// session secret and the embedded salt. Version is currently always 0x01.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// Encryption errors.
var (
	// ErrSecretMissing indicates no session secret was configured.
	ErrSecretMissing = errors.New("session secret not configured")

	// ErrDecryptionFailed indicates the authenticated decryption failed.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrInvalidCiphertext indicates the blob is malformed: bad base64,
	// too short, or an unsupported version byte.
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
)

const (
	// Version is the envelope version emitted by Encrypt.
	Version = 0x01

	// DefaultIterations is the PBKDF2 iteration count used when the
	// configuration does not override it. The low count is a wire
	// compatibility constant for values minted by earlier deployments;
	// raise it via Config.Iterations where compatibility is not needed.
	DefaultIterations = 4

	nonceSize = 12
	saltSize  = 64
	keySize   = 32
	tagSize   = 16

	// minBlobSize is the envelope size with an empty plaintext.
	minBlobSize = 1 + nonceSize + saltSize + tagSize
)

// Config holds encryption configuration.
type Config struct {
	// Secret is the shared session secret. Any non-empty UTF-8 string;
	// it is fed to PBKDF2 as the passphrase, not decoded.
	Secret string

	// Iterations is the PBKDF2 iteration count. 0 means DefaultIterations.
	Iterations int
}

// Encryptor provides AES-256-GCM encryption with per-value key derivation.
// It is safe for concurrent use.
type Encryptor struct {
	secret     []byte
	iterations int
}

// New creates an Encryptor from the given configuration.
func New(cfg Config) (*Encryptor, error) {
	if cfg.Secret == "" {
		return nil, ErrSecretMissing
	}
	iterations := cfg.Iterations
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	return &Encryptor{
		secret:     []byte(cfg.Secret),
		iterations: iterations,
	}, nil
}

// Encrypt seals the plaintext under a freshly derived key and returns the
// base64-encoded envelope. Empty plaintexts are valid and produce the
// minimum-size envelope.
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	aead, err := e.aead(salt)
	if err != nil {
		return "", err
	}

	blob := make([]byte, 0, minBlobSize+len(plaintext))
	blob = append(blob, Version)
	blob = append(blob, nonce...)
	blob = append(blob, salt...)
	blob = aead.Seal(blob, nonce, []byte(plaintext), nil)

	return base64.StdEncoding.EncodeToString(blob), nil
}

// Decrypt opens a base64-encoded envelope produced by Encrypt. Any failure
// (encoding, length, version, authentication) yields an error; callers must
// treat the value as absent rather than inspect the failure stage.
func (e *Encryptor) Decrypt(blob string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", fmt.Errorf("%w: base64 decode failed", ErrInvalidCiphertext)
	}
	if len(data) < minBlobSize {
		return "", fmt.Errorf("%w: data too short", ErrInvalidCiphertext)
	}
	if data[0] != Version {
		return "", fmt.Errorf("%w: unsupported version %d", ErrInvalidCiphertext, data[0])
	}

	nonce := data[1 : 1+nonceSize]
	salt := data[1+nonceSize : 1+nonceSize+saltSize]
	ciphertext := data[1+nonceSize+saltSize:]

	aead, err := e.aead(salt)
	if err != nil {
		return "", err
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrDecryptionFailed, err.Error())
	}
	return string(plaintext), nil
}

// aead derives the value key for the given salt and builds the AES-GCM AEAD.
func (e *Encryptor) aead(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(e.secret, salt, e.iterations, keySize, sha512.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM cipher: %w", err)
	}
	return aead, nil
}

// GenerateSecret generates a cryptographically secure session secret.
// Returns 32 random bytes as a base64 string suitable for configuration.
func GenerateSecret() (string, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("generate random secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
