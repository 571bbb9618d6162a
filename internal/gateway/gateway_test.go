// AuthGate - OIDC Authentication Gateway for Reverse Proxies
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authgate

package gateway

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"

	"github.com/tomtom215/authgate/internal/config"
	"github.com/tomtom215/authgate/internal/crypto"
	"github.com/tomtom215/authgate/internal/provider"
	"github.com/tomtom215/authgate/internal/session"
	"github.com/tomtom215/authgate/internal/signer"
	"github.com/tomtom215/authgate/internal/state"
	"github.com/tomtom215/authgate/internal/upstream"
)

// tokenReply scripts one token endpoint answer.
type tokenReply struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
	ExpiresIn    int
}

// mockIdP is a scriptable identity provider speaking just enough of the
// OIDC wire protocol for the gateway: a token endpoint dispatching on
// grant_type and a bearer-authenticated userinfo endpoint.
type mockIdP struct {
	Server *httptest.Server

	mu        sync.Mutex
	userinfo  map[string]map[string]any // access token -> claims; absent token -> 401
	codes     map[string]tokenReply
	passwords map[string]tokenReply // "username:password" -> reply
	refreshes map[string]tokenReply
}

func newMockIdP(t *testing.T) *mockIdP {
	t.Helper()
	idp := &mockIdP{
		userinfo:  make(map[string]map[string]any),
		codes:     make(map[string]tokenReply),
		passwords: make(map[string]tokenReply),
		refreshes: make(map[string]tokenReply),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", idp.handleToken)
	mux.HandleFunc("/userinfo", idp.handleUserinfo)
	idp.Server = httptest.NewServer(mux)
	t.Cleanup(idp.Server.Close)
	return idp
}

func (m *mockIdP) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		reply tokenReply
		ok    bool
	)
	switch r.PostFormValue("grant_type") {
	case "authorization_code":
		reply, ok = m.codes[r.PostFormValue("code")]
	case "password":
		reply, ok = m.passwords[r.PostFormValue("username")+":"+r.PostFormValue("password")]
	case "refresh_token":
		reply, ok = m.refreshes[r.PostFormValue("refresh_token")]
	}

	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
		return
	}

	body := map[string]any{
		"access_token":  reply.AccessToken,
		"refresh_token": reply.RefreshToken,
		"token_type":    "Bearer",
	}
	if reply.ExpiresIn > 0 {
		body["expires_in"] = reply.ExpiresIn
	}
	if reply.IDToken != "" {
		body["id_token"] = reply.IDToken
	}
	_ = json.NewEncoder(w).Encode(body)
}

func (m *mockIdP) handleUserinfo(w http.ResponseWriter, r *http.Request) {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) <= len(prefix) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	m.mu.Lock()
	claims, ok := m.userinfo[auth[len(prefix):]]
	m.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(claims)
}

// mockAPI is the scriptable business API.
type mockAPI struct {
	Server *httptest.Server

	mu           sync.Mutex
	status       int
	cookies      []string
	idTokenCalls []map[string]any
	logoutCalls  int
}

func newMockAPI(t *testing.T) *mockAPI {
	t.Helper()
	api := &mockAPI{status: http.StatusOK}
	api.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.mu.Lock()
		defer api.mu.Unlock()

		switch r.URL.Path {
		case "/on-id-token":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			api.idTokenCalls = append(api.idTokenCalls, body)
		case "/on-logout":
			api.logoutCalls++
		}
		for _, c := range api.cookies {
			w.Header().Add("Set-Cookie", c)
		}
		w.WriteHeader(api.status)
	}))
	t.Cleanup(api.Server.Close)
	return api
}

// env bundles a fully wired gateway against the two mocks.
type env struct {
	router http.Handler
	data   *session.Data
	codec  *state.Codec
	idp    *mockIdP
	api    *mockAPI
}

func newEnv(t *testing.T, mutate func(*config.Settings)) *env {
	t.Helper()

	idp := newMockIdP(t)
	api := newMockAPI(t)

	settings := &config.Settings{
		Secret: "gateway-test-secret",
		Cookie: config.CookieSettings{
			AccessTokenName:  "sat",
			RefreshTokenName: "srt",
		},
		Provider: config.ProviderSettings{
			Provider:          "oidc",
			ClientID:          "CID",
			ClientSecret:      "CSECRET",
			AuthURL:           "https://idp.example/auth",
			TokenURL:          idp.Server.URL + "/token",
			UserinfoURL:       idp.Server.URL + "/userinfo",
			CallbackURL:       "https://gw.example/auth/callback",
			LogoutRedirectURL: "https://gw.example/",
			Scope:             config.DefaultScope,
		},
		API: config.APISettings{
			IDTokenEndpoint: api.Server.URL + "/on-id-token",
			LogoutEndpoint:  api.Server.URL + "/on-logout",
		},
	}
	if mutate != nil {
		mutate(settings)
	}

	enc, err := crypto.New(crypto.Config{Secret: settings.Secret})
	if err != nil {
		t.Fatalf("crypto.New error: %v", err)
	}

	prov, err := provider.New(provider.Config{
		Flavor:            provider.Flavor(settings.Provider.Provider),
		ClientID:          settings.Provider.ClientID,
		ClientSecret:      settings.Provider.ClientSecret,
		AuthURL:           settings.Provider.AuthURL,
		TokenURL:          settings.Provider.TokenURL,
		UserinfoURL:       settings.Provider.UserinfoURL,
		EndSessionURL:     settings.Provider.EndSessionURL,
		CallbackURL:       settings.Provider.CallbackURL,
		LogoutRedirectURL: settings.Provider.LogoutRedirectURL,
		Scope:             settings.Provider.Scope,
	})
	if err != nil {
		t.Fatalf("provider.New error: %v", err)
	}

	data := &session.Data{
		Settings: settings,
		Crypto:   enc,
		Signer:   signer.New(settings.JWTSecret),
		Provider: prov,
		API: upstream.New(upstream.Config{
			IDTokenEndpoint: settings.API.IDTokenEndpoint,
			LogoutEndpoint:  settings.API.LogoutEndpoint,
		}),
	}

	done := make(chan struct{})
	t.Cleanup(func() { close(done) })

	return &env{
		router: NewRouter(data, done),
		data:   data,
		codec:  state.NewCodec(enc),
		idp:    idp,
		api:    api,
	}
}

func (e *env) do(t *testing.T, r *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, r)
	return w
}

func (e *env) encryptedCookie(t *testing.T, name, value string) *http.Cookie {
	t.Helper()
	encrypted, err := e.data.Crypto.Encrypt(value)
	if err != nil {
		t.Fatalf("Encrypt error: %v", err)
	}
	return &http.Cookie{Name: name, Value: encrypted}
}

func signTestJWT(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("idp-key"))
	if err != nil {
		t.Fatalf("sign test JWT: %v", err)
	}
	return token
}

func newRequest(method, target string) *http.Request {
	return httptest.NewRequest(method, target, http.NoBody)
}

func readCloser(body string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(body))
}

func cookieByName(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}
