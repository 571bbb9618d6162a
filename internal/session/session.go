// AuthGate - OIDC Authentication Gateway for Reverse Proxies
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authgate

// Package session implements the per-request session engine: token
// extraction from cookies or the Authorization header, the validation
// state machine, and response shaping for the cookie, x-auth-header and
// forward-auth output modes.
//
// A Session lives for exactly one request. Status transitions happen only
// inside Validate; Respond is a pure projection of (status, hasSession,
// flags) onto headers and cookies.
package session

import (
	"context"
	"net/http"
	"strings"

	"github.com/tomtom215/authgate/internal/config"
	"github.com/tomtom215/authgate/internal/crypto"
	"github.com/tomtom215/authgate/internal/provider"
	"github.com/tomtom215/authgate/internal/signer"
)

// Provider is the identity provider surface the engine and the route
// handlers consume.
type Provider interface {
	AuthorizationURL(state string) (string, error)
	LogoutURL() string
	Userinfo(ctx context.Context, accessToken string) (*provider.Userinfo, error)
	GrantAuthorizationCode(ctx context.Context, code string) (*provider.TokenSet, error)
	GrantPassword(ctx context.Context, username, password string) (*provider.TokenSet, error)
	GrantRefreshToken(ctx context.Context, refreshToken string) (*provider.TokenSet, error)
}

// Notifier is the business API surface the engine consumes.
type Notifier interface {
	OnIDToken(ctx context.Context, idToken any) ([]*http.Cookie, error)
	OnLogout(ctx context.Context) ([]*http.Cookie, error)
}

// Data is the process-wide shared state. Built once at startup and shared
// read-only by every request.
type Data struct {
	Settings *config.Settings
	Crypto   *crypto.Encryptor
	Signer   *signer.Signer
	Provider Provider
	API      Notifier
}

// Status is the session lifecycle state.
type Status int

// Session states. Invalid is the starting state of an extracted session;
// New and Logout are set only by their constructors; Logged is reached
// only through Validate.
const (
	StatusInvalid Status = iota
	StatusNew
	StatusLogged
	StatusLogout
)

// String returns the status name for logging.
func (s Status) String() string {
	switch s {
	case StatusInvalid:
		return "invalid"
	case StatusNew:
		return "new"
	case StatusLogged:
		return "logged"
	case StatusLogout:
		return "logout"
	default:
		return "unknown"
	}
}

// TokenPair is the cookie-derived token set. Either field may be absent;
// extraction never produces a pair with both empty.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Session is the per-request session state.
type Session struct {
	data *Data

	status     Status
	hasSession bool
	tokens     *TokenPair
	userinfo   *provider.Userinfo

	// idToken holds the identity claims of a freshly issued or renewed
	// token set; nil otherwise.
	idToken any
}

// New creates a session for a just-granted token set.
func New(data *Data, ts *provider.TokenSet) *Session {
	return &Session{
		data:   data,
		status: StatusNew,
		tokens: &TokenPair{
			AccessToken:  ts.AccessToken,
			RefreshToken: ts.RefreshToken,
		},
		idToken: ts.IDToken,
	}
}

// Logout creates a session whose only purpose is clearing the browser
// state. hasSession is forced so the clearing cookies are always emitted.
func Logout(data *Data) *Session {
	return &Session{
		data:       data,
		status:     StatusLogout,
		hasSession: true,
	}
}

// FromRequest extracts the session tokens from the request: cookies first,
// the Authorization header as a fallback. The session starts Invalid; call
// Validate to resolve it.
func FromRequest(data *Data, r *http.Request) *Session {
	tokens := extractTokens(data, r)
	return &Session{
		data:       data,
		status:     StatusInvalid,
		hasSession: tokens != nil,
		tokens:     tokens,
	}
}

// Status returns the current session status.
func (s *Session) Status() Status { return s.status }

// HasSession reports whether the request presented any token material.
func (s *Session) HasSession() bool { return s.hasSession }

// Userinfo returns the resolved identity claims, nil before a successful
// Validate.
func (s *Session) Userinfo() *provider.Userinfo { return s.userinfo }

// extractTokens walks the request cookies for the two configured names,
// decrypting each value. A value that fails to decrypt leaves its slot
// empty. When no cookie yields a token, the Authorization header is tried:
// "Bearer <access>[|<refresh>]", used raw.
func extractTokens(data *Data, r *http.Request) *TokenPair {
	var access, refresh string

	accessName := data.Settings.Cookie.AccessTokenName
	refreshName := data.Settings.Cookie.RefreshTokenName
	accessSeen, refreshSeen := false, false

	for _, cookie := range r.Cookies() {
		switch {
		case !accessSeen && cookie.Name == accessName:
			accessSeen = true
			if value, err := data.Crypto.Decrypt(cookie.Value); err == nil {
				access = value
			}
		case !refreshSeen && cookie.Name == refreshName:
			refreshSeen = true
			if value, err := data.Crypto.Decrypt(cookie.Value); err == nil {
				refresh = value
			}
		}
		if accessSeen && refreshSeen {
			break
		}
	}

	if access != "" || refresh != "" {
		return &TokenPair{AccessToken: access, RefreshToken: refresh}
	}

	return bearerTokens(r.Header.Get("Authorization"))
}

// bearerTokens parses the "Bearer <access>[|<refresh>]" header form. The
// prefix match is case-insensitive; the tokens are not encrypted.
func bearerTokens(header string) *TokenPair {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return nil
	}

	access, refresh, _ := strings.Cut(header[len(prefix):], "|")
	if access == "" && refresh == "" {
		return nil
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}
}

// Validate resolves an Invalid session against the provider. It is the
// only status writer:
//
//	no tokens                                  -> Invalid
//	access token valid                         -> Logged
//	access token stale, refresh disabled       -> Invalid
//	refresh grant + userinfo on the new token  -> New, tokens replaced
//	anything else                              -> Invalid
//
// Recoverable provider answers ("no userinfo", "no tokens") are not
// errors; transport failures are.
func (s *Session) Validate(ctx context.Context, refresh bool) error {
	if s.status != StatusInvalid || s.tokens == nil {
		return nil
	}

	if s.tokens.AccessToken != "" {
		info, err := s.data.Provider.Userinfo(ctx, s.tokens.AccessToken)
		if err != nil {
			return err
		}
		if info != nil {
			s.userinfo = info
			s.status = StatusLogged
			return nil
		}
	}

	if !refresh || s.tokens.RefreshToken == "" {
		return nil
	}

	ts, err := s.data.Provider.GrantRefreshToken(ctx, s.tokens.RefreshToken)
	if err != nil {
		return err
	}
	if ts == nil {
		return nil
	}

	info, err := s.data.Provider.Userinfo(ctx, ts.AccessToken)
	if err != nil {
		return err
	}
	if info == nil {
		return nil
	}

	s.tokens = &TokenPair{
		AccessToken:  ts.AccessToken,
		RefreshToken: ts.RefreshToken,
	}
	s.idToken = ts.IDToken
	s.userinfo = info
	s.status = StatusNew
	return nil
}
