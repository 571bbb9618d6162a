// AuthGate - OIDC Authentication Gateway for Reverse Proxies
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authgate

package session

import (
	"fmt"
	"net/http"
	"time"
)

// Flags select the response output modes.
type Flags uint8

// Output modes. ForwardAuth implies Cookies on an invalid session and
// XAuthHeaders on an authenticated one; ForwardAuthRedirect additionally
// turns the 401 into a redirect to the gateway's login route.
const (
	FlagXAuthHeaders Flags = 1 << iota
	FlagCookies
	FlagForwardAuth
	FlagForwardAuthRedirect
)

// Forwarded-request headers consulted for the forward-auth redirect.
const (
	headerForwardedProto = "X-Forwarded-Proto"
	headerForwardedHost  = "X-Forwarded-Host"
	headerForwardedURI   = "X-Forwarded-Uri"
)

// Respond projects the session onto the response. done reports that a
// terminal status code was written (the 401 or redirect of an invalid
// session) and the handler must not write anything further. On error
// nothing has been emitted and the handler should answer 500.
//
// Within one status the order is fixed: gateway cookies are accumulated
// first, then the business API is notified and its cookies appended, and
// only then is the accumulator emitted. An API rejection therefore aborts
// before any cookie or header reaches the browser.
func (s *Session) Respond(w http.ResponseWriter, r *http.Request, flags Flags) (done bool, err error) {
	var cookies []*http.Cookie

	switch s.status {
	case StatusInvalid:
		if flags&FlagForwardAuth != 0 {
			flags |= FlagCookies
		}
		if s.hasSession {
			cookies = append(cookies, s.clearingCookies()...)
			apiCookies, err := s.data.API.OnLogout(r.Context())
			if err != nil {
				return false, err
			}
			cookies = append(cookies, apiCookies...)
		}
		emitCookies(w.Header(), cookies, flags)

		if flags&FlagForwardAuth != 0 && flags&FlagForwardAuthRedirect != 0 {
			w.Header().Set("Location", forwardAuthLoginURL(r))
			w.WriteHeader(http.StatusFound)
		} else {
			w.WriteHeader(http.StatusUnauthorized)
		}
		return true, nil

	case StatusLogout:
		cookies = append(cookies, s.clearingCookies()...)
		apiCookies, err := s.data.API.OnLogout(r.Context())
		if err != nil {
			return false, err
		}
		cookies = append(cookies, apiCookies...)
		emitCookies(w.Header(), cookies, flags)
		return false, nil

	case StatusNew:
		if flags&FlagForwardAuth != 0 {
			flags |= FlagXAuthHeaders
		}
		cookies, err = s.storingCookies()
		if err != nil {
			return false, err
		}
		if s.idToken != nil {
			payload, err := s.data.Signer.EncodeValue(s.idToken)
			if err != nil {
				return false, err
			}
			apiCookies, err := s.data.API.OnIDToken(r.Context(), payload)
			if err != nil {
				return false, err
			}
			cookies = append(cookies, apiCookies...)
		}
		if err := s.writeUserinfoHeaders(w.Header(), flags); err != nil {
			return false, err
		}
		emitCookies(w.Header(), cookies, flags)
		return false, nil

	case StatusLogged:
		if flags&FlagForwardAuth != 0 {
			flags |= FlagXAuthHeaders
		}
		if err := s.writeUserinfoHeaders(w.Header(), flags); err != nil {
			return false, err
		}
		return false, nil
	}

	return false, nil
}

// writeUserinfoHeaders writes x-auth-userinfo (and x-auth-data when
// configured) for the x-auth-header output mode.
func (s *Session) writeUserinfoHeaders(header http.Header, flags Flags) error {
	if flags&FlagXAuthHeaders == 0 || s.userinfo == nil {
		return nil
	}

	encoded, err := s.data.Signer.EncodeString(s.userinfo.Data)
	if err != nil {
		return err
	}
	header.Set("x-auth-userinfo", encoded)

	if s.data.Settings.Data != "" {
		header.Set("x-auth-data", s.data.Settings.Data)
	}
	return nil
}

// storingCookies builds the session cookies for the current token pair,
// access cookie first. The numbered x-auth-set-cookie headers rely on
// that order.
func (s *Session) storingCookies() ([]*http.Cookie, error) {
	cookies := make([]*http.Cookie, 0, 2)

	access, err := s.storingCookie(s.data.Settings.Cookie.AccessTokenName, s.tokens.AccessToken)
	if err != nil {
		return nil, err
	}
	cookies = append(cookies, access)

	if s.tokens.RefreshToken != "" {
		refresh, err := s.storingCookie(s.data.Settings.Cookie.RefreshTokenName, s.tokens.RefreshToken)
		if err != nil {
			return nil, err
		}
		cookies = append(cookies, refresh)
	}
	return cookies, nil
}

// storingCookie wraps one encrypted token value. Raw tokens never reach
// Set-Cookie.
func (s *Session) storingCookie(name, value string) (*http.Cookie, error) {
	encrypted, err := s.data.Crypto.Encrypt(value)
	if err != nil {
		return nil, err
	}
	return &http.Cookie{
		Name:     name,
		Value:    encrypted,
		Path:     "/",
		HttpOnly: true,
	}, nil
}

// clearingCookies builds the epoch-expired deletion pair, access cookie
// first.
func (s *Session) clearingCookies() []*http.Cookie {
	return []*http.Cookie{
		clearingCookie(s.data.Settings.Cookie.AccessTokenName),
		clearingCookie(s.data.Settings.Cookie.RefreshTokenName),
	}
}

func clearingCookie(name string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Expires:  time.Unix(0, 0).UTC(),
	}
}

// emitCookies writes the accumulator under the selected modes: numbered
// x-auth-set-cookie-N headers for consumers that cannot propagate
// Set-Cookie, real Set-Cookie headers otherwise. Both modes may apply.
func emitCookies(header http.Header, cookies []*http.Cookie, flags Flags) {
	if flags&FlagXAuthHeaders != 0 {
		for i, cookie := range cookies {
			header.Set(fmt.Sprintf("x-auth-set-cookie-%d", i+1), cookie.String())
		}
	}
	if flags&FlagCookies != 0 {
		for _, cookie := range cookies {
			header.Add("Set-Cookie", cookie.String())
		}
	}
}

// forwardAuthLoginURL builds the login redirect for a proxied request:
// {proto}://{host}/login?url={uri}, with proto defaulting to http and uri
// to /. The uri is passed through unencoded; the login handler reads it
// back from the raw query.
func forwardAuthLoginURL(r *http.Request) string {
	proto := r.Header.Get(headerForwardedProto)
	if proto == "" {
		proto = "http"
	}
	host := r.Header.Get(headerForwardedHost)
	uri := r.Header.Get(headerForwardedURI)
	if uri == "" {
		uri = "/"
	}
	return proto + "://" + host + "/login?url=" + uri
}
