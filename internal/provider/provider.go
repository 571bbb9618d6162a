// AuthGate - OIDC Authentication Gateway for Reverse Proxies
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authgate

// Package provider implements the OIDC provider client: authorization and
// logout URL construction, the three token grants, and userinfo retrieval.
//
// Three flavours are supported. Plain oidc calls the provider's userinfo
// endpoint; keycloak and fusionauth read the claims straight out of the
// access token, decoded without signature verification. The gateway trusts
// the provider transport, not the token signature; do not add verification
// here without an explicit configuration switch.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Provider errors.
var (
	// ErrUnknownFlavor indicates a provider flavour outside
	// oidc/keycloak/fusionauth.
	ErrUnknownFlavor = errors.New("unknown provider flavour")

	// ErrUserinfoRequest indicates a non-recoverable userinfo failure:
	// transport error, unexpected status, or an undecodable body.
	ErrUserinfoRequest = errors.New("userinfo request failed")

	// ErrTokenRequest indicates a non-recoverable token endpoint failure.
	ErrTokenRequest = errors.New("token request failed")
)

// Flavor selects the provider variant.
type Flavor string

// Supported provider flavours.
const (
	FlavorOIDC       Flavor = "oidc"
	FlavorKeycloak   Flavor = "keycloak"
	FlavorFusionAuth Flavor = "fusionauth"
)

// requestTimeout bounds every call to the provider.
const requestTimeout = 30 * time.Second

// Config holds the provider endpoints and client credentials.
type Config struct {
	Flavor       Flavor
	ClientID     string
	ClientSecret string

	// AuthURL is the authorization endpoint the browser is sent to.
	AuthURL string

	// TokenURL is the token endpoint all grants POST to.
	TokenURL string

	// UserinfoURL is the userinfo endpoint; used by the oidc flavour only.
	UserinfoURL string

	// EndSessionURL is the RP-initiated logout endpoint. Optional; when
	// empty, LogoutURL returns LogoutRedirectURL directly.
	EndSessionURL string

	// CallbackURL is the redirect URI registered with the provider.
	CallbackURL string

	// LogoutRedirectURL is where the browser lands after logout.
	LogoutRedirectURL string

	// Scope requested on the authorization and password grants.
	// Empty means DefaultScope.
	Scope string

	// HTTPClient overrides the outbound client. Nil means a client with
	// the standard 30-second timeout.
	HTTPClient *http.Client
}

// DefaultScope is requested when no scope is configured.
const DefaultScope = "openid email profile offline_access"

// TokenSet is a token endpoint response. A grant only produces a TokenSet
// when both the access and the refresh token are present; anything less is
// reported as "no tokens". Immutable once returned.
type TokenSet struct {
	AccessToken  string
	RefreshToken string

	// ExpiresIn is the access token lifetime in seconds, 0 when the
	// provider did not send one.
	ExpiresIn int

	// IDToken holds the identity claims when the response carried an
	// id_token: the decoded JWT payload as a map, or the raw string when
	// the value was not a decodable JWT. Nil when absent.
	IDToken any
}

// Userinfo is the set of identity claims about the authenticated subject.
type Userinfo struct {
	// Data holds the claims, at minimum "sub".
	Data map[string]any

	// ExpiresAt is when the claims stop being valid. Zero when the
	// provider did not communicate an expiry.
	ExpiresAt time.Time
}

// Provider is the client for one configured identity provider. Safe for
// concurrent use; all state is immutable after New.
type Provider struct {
	cfg    Config
	client *http.Client

	// userinfoFromToken selects the keycloak/fusionauth variant that
	// decodes the access token instead of calling the userinfo endpoint.
	userinfoFromToken bool
}

// New creates a Provider for the configured flavour.
func New(cfg Config) (*Provider, error) {
	var fromToken bool
	switch cfg.Flavor {
	case FlavorOIDC:
	case FlavorKeycloak, FlavorFusionAuth:
		fromToken = true
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFlavor, cfg.Flavor)
	}

	if cfg.Scope == "" {
		cfg.Scope = DefaultScope
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: requestTimeout}
	}

	return &Provider{
		cfg:               cfg,
		client:            client,
		userinfoFromToken: fromToken,
	}, nil
}

// AuthorizationURL builds the URL the browser is redirected to for the
// authorization code flow. Query parameters already present on the
// configured auth URL survive; state is appended only when non-empty.
func (p *Provider) AuthorizationURL(state string) (string, error) {
	u, err := url.Parse(p.cfg.AuthURL)
	if err != nil {
		return "", fmt.Errorf("parse auth URL: %w", err)
	}

	params := u.Query()
	params.Set("response_type", "code")
	params.Set("scope", p.cfg.Scope)
	params.Set("client_id", p.cfg.ClientID)
	params.Set("redirect_uri", p.cfg.CallbackURL)
	if state != "" {
		params.Set("state", state)
	}
	u.RawQuery = params.Encode()

	return u.String(), nil
}

// LogoutURL builds the URL the browser is redirected to on logout: the
// provider's end-session endpoint when one is configured, the logout
// redirect target otherwise.
func (p *Provider) LogoutURL() string {
	if p.cfg.EndSessionURL == "" {
		return p.cfg.LogoutRedirectURL
	}

	u, err := url.Parse(p.cfg.EndSessionURL)
	if err != nil {
		return p.cfg.LogoutRedirectURL
	}
	params := u.Query()
	params.Set("client_id", p.cfg.ClientID)
	params.Set("redirect_uri", p.cfg.LogoutRedirectURL)
	u.RawQuery = params.Encode()
	return u.String()
}

// Userinfo fetches the claims for an access token. A (nil, nil) return
// means the token was rejected or has expired and the caller should try
// the refresh path; errors are non-recoverable transport or decode
// failures.
func (p *Provider) Userinfo(ctx context.Context, accessToken string) (*Userinfo, error) {
	if p.userinfoFromToken {
		return p.userinfoFromAccessToken(accessToken), nil
	}
	return p.userinfoFromEndpoint(ctx, accessToken)
}

// userinfoFromEndpoint is the oidc variant: GET the userinfo endpoint with
// the access token as a bearer credential. 400 and 401 signal a stale
// token, not a failure.
func (p *Provider) userinfoFromEndpoint(ctx context.Context, accessToken string) (*Userinfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.UserinfoURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUserinfoRequest, err.Error())
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
		return nil, nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("%w: status %d", ErrUserinfoRequest, resp.StatusCode)
	}

	var claims map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return nil, fmt.Errorf("%w: decode body: %s", ErrUserinfoRequest, err.Error())
	}
	return &Userinfo{Data: claims}, nil
}

// userinfoFromAccessToken is the keycloak/fusionauth variant: the access
// token is itself a JWT carrying the claims. Undecodable or expired tokens
// yield no userinfo so the refresh path runs.
func (p *Provider) userinfoFromAccessToken(accessToken string) *Userinfo {
	claims, ok := decodeJWTPayload(accessToken)
	if !ok {
		return nil
	}

	info := &Userinfo{Data: claims}
	if exp, ok := claims["exp"].(float64); ok {
		expiresAt := time.Unix(int64(exp), 0)
		if !expiresAt.After(time.Now()) {
			return nil
		}
		info.ExpiresAt = expiresAt
	}
	return info
}

// GrantAuthorizationCode exchanges an authorization code for a TokenSet.
func (p *Provider) GrantAuthorizationCode(ctx context.Context, code string) (*TokenSet, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("redirect_uri", p.cfg.CallbackURL)
	form.Set("code", code)
	return p.grant(ctx, form)
}

// GrantPassword exchanges resource owner credentials for a TokenSet.
func (p *Provider) GrantPassword(ctx context.Context, username, password string) (*TokenSet, error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", username)
	form.Set("password", password)
	form.Set("scope", p.cfg.Scope)
	return p.grant(ctx, form)
}

// GrantRefreshToken exchanges a refresh token for a new TokenSet.
func (p *Provider) GrantRefreshToken(ctx context.Context, refreshToken string) (*TokenSet, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return p.grant(ctx, form)
}

// tokenResponse is the wire shape of a token endpoint response.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	IDToken      string `json:"id_token"`
}

// grant POSTs a form to the token endpoint. A (nil, nil) return means the
// provider declined the grant (non-2xx status, or a body without both
// tokens); callers turn that into 401. Errors are transport failures or a
// 2xx body that is not JSON.
func (p *Provider) grant(ctx context.Context, form url.Values) (*TokenSet, error) {
	form.Set("client_id", p.cfg.ClientID)
	form.Set("client_secret", p.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTokenRequest, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Declined grants (wrong password, used code, revoked refresh
		// token) come back 400/401 with an error body.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, nil
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode body: %s", ErrTokenRequest, err.Error())
	}
	if body.AccessToken == "" || body.RefreshToken == "" {
		return nil, nil
	}

	ts := &TokenSet{
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
		ExpiresIn:    body.ExpiresIn,
	}
	if body.IDToken != "" {
		if claims, ok := decodeJWTPayload(body.IDToken); ok {
			ts.IDToken = claims
		} else {
			ts.IDToken = body.IDToken
		}
	}
	return ts, nil
}
