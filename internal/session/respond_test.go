// AuthGate - OIDC Authentication Gateway for Reverse Proxies
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authgate

package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/tomtom215/authgate/internal/provider"
)

func mustValidate(t *testing.T, s *Session) {
	t.Helper()
	if err := s.Validate(context.Background(), true); err != nil {
		t.Fatalf("Validate error: %v", err)
	}
}

func setCookies(w *httptest.ResponseRecorder) []*http.Cookie {
	return w.Result().Cookies()
}

func TestRespond_InvalidNoSession(t *testing.T) {
	data, _, api := newTestData(t)

	s := FromRequest(data, requestWithCookies())
	mustValidate(t, s)

	w := httptest.NewRecorder()
	done, err := s.Respond(w, requestWithCookies(), FlagCookies)
	if err != nil {
		t.Fatalf("Respond error: %v", err)
	}
	if !done {
		t.Error("done = false, want true for an invalid session")
	}
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if len(setCookies(w)) != 0 {
		t.Error("clearing cookies emitted for a request with no session")
	}
	if api.logoutCalls != 0 {
		t.Error("OnLogout called for a request with no session")
	}
}

func TestRespond_InvalidWithSessionClears(t *testing.T) {
	data, _, api := newTestData(t)
	api.logoutCookies = []*http.Cookie{{Name: "bsession", Value: ""}}

	r := requestWithCookies(encryptedCookie(t, data, "sat", "stale"))
	s := FromRequest(data, r)
	mustValidate(t, s)

	w := httptest.NewRecorder()
	done, err := s.Respond(w, r, FlagCookies)
	if err != nil {
		t.Fatalf("Respond error: %v", err)
	}
	if !done || w.Code != http.StatusUnauthorized {
		t.Fatalf("done = %v, status = %d", done, w.Code)
	}
	if api.logoutCalls != 1 {
		t.Errorf("OnLogout calls = %d, want 1", api.logoutCalls)
	}

	cookies := setCookies(w)
	if len(cookies) != 3 {
		t.Fatalf("got %d cookies, want sat + srt + the API cookie", len(cookies))
	}
	if cookies[0].Name != "sat" || cookies[1].Name != "srt" {
		t.Errorf("cookie order = %s, %s; want sat, srt", cookies[0].Name, cookies[1].Name)
	}
	for _, c := range cookies[:2] {
		if c.Value != "" {
			t.Errorf("clearing cookie %s has value %q", c.Name, c.Value)
		}
		if c.Expires.Unix() > 1 {
			t.Errorf("clearing cookie %s not epoch-expired: %v", c.Name, c.Expires)
		}
	}
	if cookies[2].Name != "bsession" {
		t.Errorf("API cookie not appended after the gateway's own: %+v", cookies[2])
	}
}

func TestRespond_InvalidClearingViaXAuthHeaders(t *testing.T) {
	data, _, _ := newTestData(t)

	r := requestWithCookies(encryptedCookie(t, data, "sat", "stale"))
	s := FromRequest(data, r)
	mustValidate(t, s)

	w := httptest.NewRecorder()
	if _, err := s.Respond(w, r, FlagXAuthHeaders); err != nil {
		t.Fatalf("Respond error: %v", err)
	}

	if w.Header().Get("x-auth-set-cookie-1") == "" || w.Header().Get("x-auth-set-cookie-2") == "" {
		t.Error("clearing cookies missing from the numbered headers")
	}
	if len(setCookies(w)) != 0 {
		t.Error("real Set-Cookie emitted without the cookie flag")
	}
}

func TestRespond_ForwardAuthRedirect(t *testing.T) {
	data, _, _ := newTestData(t)

	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{
			name: "full forwarded headers",
			headers: map[string]string{
				"X-Forwarded-Proto": "https",
				"X-Forwarded-Host":  "app.example",
				"X-Forwarded-Uri":   "/secret?a=1",
			},
			want: "https://app.example/login?url=/secret?a=1",
		},
		{
			name:    "defaults",
			headers: nil,
			want:    "http:///login?url=/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/auth/forward-auth", http.NoBody)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			s := FromRequest(data, r)
			mustValidate(t, s)

			w := httptest.NewRecorder()
			done, err := s.Respond(w, r, FlagForwardAuth|FlagForwardAuthRedirect)
			if err != nil {
				t.Fatalf("Respond error: %v", err)
			}
			if !done || w.Code != http.StatusFound {
				t.Fatalf("done = %v, status = %d, want redirect", done, w.Code)
			}
			if got := w.Header().Get("Location"); got != tt.want {
				t.Errorf("Location = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRespond_ForwardAuthWithoutRedirectIs401(t *testing.T) {
	data, _, _ := newTestData(t)

	r := httptest.NewRequest(http.MethodGet, "/auth/forward-auth", http.NoBody)
	s := FromRequest(data, r)
	mustValidate(t, s)

	w := httptest.NewRecorder()
	done, err := s.Respond(w, r, FlagForwardAuth)
	if err != nil {
		t.Fatalf("Respond error: %v", err)
	}
	if !done || w.Code != http.StatusUnauthorized {
		t.Errorf("done = %v, status = %d, want 401", done, w.Code)
	}
}

func TestRespond_NewSession(t *testing.T) {
	data, _, api := newTestData(t)
	data.Settings.Data = "tenant-1"
	api.idTokenCookies = []*http.Cookie{{Name: "bsession", Value: "xyz"}}

	ts := &provider.TokenSet{
		AccessToken:  "at-raw",
		RefreshToken: "rt-raw",
		IDToken:      map[string]any{"sub": "u1"},
	}
	s := New(data, ts)
	s.userinfo = &provider.Userinfo{Data: map[string]any{"sub": "u1"}}

	r := httptest.NewRequest(http.MethodGet, "/auth/callback", http.NoBody)
	w := httptest.NewRecorder()
	done, err := s.Respond(w, r, FlagCookies|FlagXAuthHeaders)
	if err != nil {
		t.Fatalf("Respond error: %v", err)
	}
	if done {
		t.Error("done = true for a new session")
	}

	cookies := setCookies(w)
	if len(cookies) != 3 {
		t.Fatalf("got %d cookies, want sat + srt + the API cookie", len(cookies))
	}
	if cookies[0].Name != "sat" || cookies[1].Name != "srt" || cookies[2].Name != "bsession" {
		t.Errorf("cookie order: %s, %s, %s", cookies[0].Name, cookies[1].Name, cookies[2].Name)
	}
	for _, c := range cookies[:2] {
		if c.Path != "/" || !c.HttpOnly {
			t.Errorf("cookie %s missing Path=/ or HttpOnly", c.Name)
		}
		if strings.Contains(c.Value, "at-raw") || strings.Contains(c.Value, "rt-raw") {
			t.Errorf("raw token leaked into cookie %s", c.Name)
		}
	}

	// Mirrored numbered headers carry the same accumulator.
	for i := 1; i <= 3; i++ {
		if w.Header().Get(fmt.Sprintf("x-auth-set-cookie-%d", i)) == "" {
			t.Errorf("x-auth-set-cookie-%d missing", i)
		}
	}

	if got := w.Header().Get("x-auth-userinfo"); !strings.Contains(got, `"sub":"u1"`) {
		t.Errorf("x-auth-userinfo = %q", got)
	}
	if got := w.Header().Get("x-auth-data"); got != "tenant-1" {
		t.Errorf("x-auth-data = %q", got)
	}

	if len(api.idTokenCalls) != 1 {
		t.Fatalf("OnIDToken calls = %d, want 1", len(api.idTokenCalls))
	}
}

func TestRespond_APIGateBlocksLogin(t *testing.T) {
	data, _, api := newTestData(t)
	api.idTokenErr = errors.New("api says no")

	s := New(data, &provider.TokenSet{
		AccessToken:  "at",
		RefreshToken: "rt",
		IDToken:      map[string]any{"sub": "u1"},
	})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/auth/callback", http.NoBody)
	if _, err := s.Respond(w, r, FlagCookies); err == nil {
		t.Fatal("expected the API rejection to propagate")
	}

	if len(setCookies(w)) != 0 {
		t.Error("session cookies emitted despite the API rejection")
	}
	if len(w.Header()) != 0 {
		t.Errorf("headers written despite the API rejection: %v", w.Header())
	}
}

func TestRespond_NewWithoutIDTokenSkipsAPI(t *testing.T) {
	data, _, api := newTestData(t)

	s := New(data, &provider.TokenSet{AccessToken: "at", RefreshToken: "rt"})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/auth/callback", http.NoBody)
	if _, err := s.Respond(w, r, FlagCookies); err != nil {
		t.Fatalf("Respond error: %v", err)
	}
	if len(api.idTokenCalls) != 0 {
		t.Error("OnIDToken called without an id token")
	}
	if len(setCookies(w)) != 2 {
		t.Errorf("got %d cookies, want 2", len(setCookies(w)))
	}
}

func TestRespond_LoggedIdempotent(t *testing.T) {
	data, prov, _ := newTestData(t)
	prov.userinfoByToken["at-1"] = &provider.Userinfo{Data: map[string]any{"sub": "u1", "email": "a@b"}}

	r := requestWithCookies(encryptedCookie(t, data, "sat", "at-1"))
	s := FromRequest(data, r)
	mustValidate(t, s)
	if s.Status() != StatusLogged {
		t.Fatalf("status = %v", s.Status())
	}

	first := httptest.NewRecorder()
	second := httptest.NewRecorder()
	for _, w := range []*httptest.ResponseRecorder{first, second} {
		done, err := s.Respond(w, r, FlagXAuthHeaders)
		if err != nil {
			t.Fatalf("Respond error: %v", err)
		}
		if done {
			t.Error("done = true for a logged session")
		}
	}

	if !reflect.DeepEqual(first.Header(), second.Header()) {
		t.Errorf("headers differ between identical responses:\n%v\n%v",
			first.Header(), second.Header())
	}
	if len(setCookies(first)) != 0 {
		t.Error("cookies emitted for a logged session with no renewal")
	}
	if first.Header().Get("x-auth-userinfo") == "" {
		t.Error("x-auth-userinfo missing")
	}
}

func TestRespond_LoggedWithoutXAuthFlagWritesNothing(t *testing.T) {
	data, prov, _ := newTestData(t)
	prov.userinfoByToken["at-1"] = &provider.Userinfo{Data: map[string]any{"sub": "u1"}}

	r := requestWithCookies(encryptedCookie(t, data, "sat", "at-1"))
	s := FromRequest(data, r)
	mustValidate(t, s)

	w := httptest.NewRecorder()
	if _, err := s.Respond(w, r, FlagCookies); err != nil {
		t.Fatalf("Respond error: %v", err)
	}
	if len(w.Header()) != 0 {
		t.Errorf("unexpected headers: %v", w.Header())
	}
}

func TestRespond_Logout(t *testing.T) {
	data, _, api := newTestData(t)

	s := Logout(data)
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/logout", http.NoBody)
	done, err := s.Respond(w, r, FlagCookies)
	if err != nil {
		t.Fatalf("Respond error: %v", err)
	}
	if done {
		t.Error("done = true; the logout handler owns the redirect")
	}
	if api.logoutCalls != 1 {
		t.Errorf("OnLogout calls = %d, want 1", api.logoutCalls)
	}

	cookies := setCookies(w)
	if len(cookies) != 2 {
		t.Fatalf("got %d cookies, want 2", len(cookies))
	}
	for _, c := range cookies {
		if c.Value != "" || c.Expires.Unix() > 1 {
			t.Errorf("cookie %s is not a clearing cookie: %+v", c.Name, c)
		}
	}
}

func TestRespond_ForwardAuthImpliesXAuthHeaders(t *testing.T) {
	data, prov, _ := newTestData(t)
	prov.userinfoByToken["at-1"] = &provider.Userinfo{Data: map[string]any{"sub": "u1"}}

	r := requestWithCookies(encryptedCookie(t, data, "sat", "at-1"))
	s := FromRequest(data, r)
	mustValidate(t, s)

	w := httptest.NewRecorder()
	if _, err := s.Respond(w, r, FlagForwardAuth); err != nil {
		t.Fatalf("Respond error: %v", err)
	}
	if w.Header().Get("x-auth-userinfo") == "" {
		t.Error("forward-auth did not enable the x-auth headers")
	}
}
