// AuthGate - OIDC Authentication Gateway for Reverse Proxies
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authgate

// Package gateway wires the session engine to the HTTP surface: the seven
// authentication routes plus the operational endpoints, on a chi router.
package gateway

import (
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/authgate/internal/logging"
	"github.com/tomtom215/authgate/internal/metrics"
	"github.com/tomtom215/authgate/internal/provider"
	"github.com/tomtom215/authgate/internal/session"
	"github.com/tomtom215/authgate/internal/state"
)

// Handler implements the gateway routes.
type Handler struct {
	data     *session.Data
	codec    *state.Codec
	security *logging.SecurityLogger
}

// NewHandler creates the route handler set.
func NewHandler(data *session.Data) *Handler {
	return &Handler{
		data:     data,
		codec:    state.NewCodec(data.Crypto),
		security: logging.NewSecurityLogger(),
	}
}

// serverError answers 500 without leaking detail; the cause goes to the
// log with the request ID.
func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, err error) {
	logging.CtxErr(r.Context(), err).Msg("request failed")
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func unauthorized(w http.ResponseWriter) {
	w.WriteHeader(http.StatusUnauthorized)
}

func redirect(w http.ResponseWriter, location string) {
	w.Header().Set("Location", location)
	w.WriteHeader(http.StatusFound)
}

// rawTarget reads the url query parameter from the raw query string. The
// forward-auth redirect appends the original request URI unencoded, so
// everything after "url=" belongs to the target, separators included.
func rawTarget(r *http.Request) string {
	const key = "url="
	raw := r.URL.RawQuery
	if i := strings.Index(raw, key); i == 0 || (i > 0 && raw[i-1] == '&') {
		return raw[i+len(key):]
	}
	return ""
}

// Login starts the authorization code flow: it packs the optional url
// query into an encrypted state token and redirects to the provider. A
// caller-supplied state query is reused verbatim instead.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	stateToken := r.URL.Query().Get("state")
	if stateToken == "" {
		var err error
		stateToken, err = h.codec.Serialize(rawTarget(r))
		if err != nil {
			h.serverError(w, r, err)
			return
		}
	}

	authURL, err := h.data.Provider.AuthorizationURL(stateToken)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	redirect(w, authURL)
}

// LoginPassword performs the resource owner password grant. The redirect
// target is taken from the url query unverified; deployments that cannot
// accept an open redirect here should front this route accordingly.
func (h *Handler) LoginPassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		unauthorized(w)
		return
	}
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")

	ts, err := h.data.Provider.GrantPassword(r.Context(), username, password)
	if err != nil {
		metrics.RecordLogin("password", metrics.OutcomeError)
		h.serverError(w, r, err)
		return
	}
	if ts == nil {
		metrics.RecordLogin("password", metrics.OutcomeDenied)
		h.security.LoginFailure("password", r.RemoteAddr, "grant declined")
		unauthorized(w)
		return
	}

	s := session.New(h.data, ts)
	if _, err := s.Respond(w, r, session.FlagCookies); err != nil {
		metrics.RecordLogin("password", metrics.OutcomeError)
		h.serverError(w, r, err)
		return
	}

	metrics.RecordLogin("password", metrics.OutcomeSuccess)
	h.security.LoginSuccess("password", username, r.RemoteAddr)

	target := rawTarget(r)
	if target == "" {
		target = r.PostFormValue("url")
	}
	if target == "" {
		target = "/"
	}
	redirect(w, target)
}

// Logout clears the session and redirects to the provider's logout URL.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	s := session.Logout(h.data)
	if _, err := s.Respond(w, r, session.FlagCookies); err != nil {
		h.serverError(w, r, err)
		return
	}

	metrics.LogoutsTotal.Inc()
	h.security.Logout(r.RemoteAddr)
	redirect(w, h.data.Provider.LogoutURL())
}

// Callback finishes the authorization code flow: it exchanges the code,
// stores the session cookies and redirects to the target carried by the
// state token.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		metrics.RecordLogin("authorization_code", metrics.OutcomeDenied)
		unauthorized(w)
		return
	}

	ts, err := h.data.Provider.GrantAuthorizationCode(r.Context(), code)
	if err != nil {
		metrics.RecordLogin("authorization_code", metrics.OutcomeError)
		h.serverError(w, r, err)
		return
	}
	if ts == nil {
		metrics.RecordLogin("authorization_code", metrics.OutcomeDenied)
		h.security.LoginFailure("authorization_code", r.RemoteAddr, "grant declined")
		unauthorized(w)
		return
	}

	s := session.New(h.data, ts)
	if _, err := s.Respond(w, r, session.FlagCookies); err != nil {
		metrics.RecordLogin("authorization_code", metrics.OutcomeError)
		h.serverError(w, r, err)
		return
	}

	metrics.RecordLogin("authorization_code", metrics.OutcomeSuccess)

	target := "/"
	if stateToken := r.URL.Query().Get("state"); stateToken != "" {
		// A state token this gateway did not mint fails to parse and is
		// ignored; the browser just lands on the root.
		if parsed, err := h.codec.Parse(stateToken); err == nil && parsed.URL != "" {
			target = parsed.URL
		}
	}
	redirect(w, target)
}

// Refresh validates the session with the refresh path enabled, rotates
// the cookies when a renewal happened and returns a small identity
// projection as JSON.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	s := session.FromRequest(h.data, r)
	if err := s.Validate(r.Context(), true); err != nil {
		h.serverError(w, r, err)
		return
	}
	metrics.RecordValidation(s.Status().String())

	done, err := s.Respond(w, r, session.FlagCookies)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if done {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(userinfoProjection(s.Userinfo())); err != nil {
		logging.CtxErr(r.Context(), err).Msg("write refresh body")
	}
}

// Validate resolves the session for subrequest consumers that propagate
// headers themselves: output goes to the numbered x-auth headers only.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	s := session.FromRequest(h.data, r)
	if err := s.Validate(r.Context(), true); err != nil {
		h.serverError(w, r, err)
		return
	}
	metrics.RecordValidation(s.Status().String())

	done, err := s.Respond(w, r, session.FlagXAuthHeaders)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if !done {
		w.WriteHeader(http.StatusOK)
	}
}

// ForwardAuth is the traefik ForwardAuth target. With the redirect query
// set, an unauthenticated request is sent to the gateway's login route
// instead of plain 401.
func (h *Handler) ForwardAuth(w http.ResponseWriter, r *http.Request) {
	s := session.FromRequest(h.data, r)
	if err := s.Validate(r.Context(), true); err != nil {
		h.serverError(w, r, err)
		return
	}
	metrics.RecordValidation(s.Status().String())

	flags := session.FlagForwardAuth
	wantRedirect := r.URL.Query().Get("redirect") != ""
	if wantRedirect {
		flags |= session.FlagForwardAuthRedirect
	}

	done, err := s.Respond(w, r, flags)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if done {
		if wantRedirect {
			metrics.RecordForwardAuth(metrics.DecisionRedirected)
		} else {
			metrics.RecordForwardAuth(metrics.DecisionDenied)
		}
		return
	}

	metrics.RecordForwardAuth(metrics.DecisionAllowed)
	w.WriteHeader(http.StatusOK)
}

// Health answers the liveness probe.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// userinfoProjection reduces the claims to the identity subset downstream
// UIs consume. Only keys present in the claims appear; roles come from
// either a top-level roles claim or realm_access.roles.
func userinfoProjection(info *provider.Userinfo) map[string]any {
	out := make(map[string]any, 4)
	if info == nil {
		return out
	}

	for _, key := range []string{"sub", "email", "name"} {
		if value, ok := info.Data[key]; ok {
			out[key] = value
		}
	}

	if roles, ok := info.Data["roles"]; ok {
		out["roles"] = roles
	} else if realmAccess, ok := info.Data["realm_access"].(map[string]any); ok {
		if roles, ok := realmAccess["roles"]; ok {
			out["roles"] = roles
		}
	}
	return out
}
