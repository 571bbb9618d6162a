// AuthGate - OIDC Authentication Gateway for Reverse Proxies
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authgate

// Package upstream implements the business API notifier. The gateway calls
// it whenever a new identity token is minted and whenever a session ends,
// and forwards any cookies the API sets back to the browser.
//
// A rejection from the API is a hard failure: it blocks the login or
// validation that triggered it. This lets the downstream system veto
// sessions it does not accept.
package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/authgate/internal/metrics"
)

// ErrStatus indicates the business API answered with a non-2xx status.
var ErrStatus = errors.New("business API rejected the request")

// requestTimeout bounds every business API call.
const requestTimeout = 10 * time.Second

// Config holds the notifier endpoints. Empty endpoints disable the
// corresponding notification.
type Config struct {
	// IDTokenEndpoint receives {"id_token": <value>} on token issuance.
	IDTokenEndpoint string

	// LogoutEndpoint receives an empty POST on logout.
	LogoutEndpoint string

	// Authorization, when set, is sent as a bearer credential on every
	// call.
	Authorization string

	// HTTPClient overrides the outbound client; nil means a client with
	// the standard timeout.
	HTTPClient *http.Client
}

// Client notifies the business API. Safe for concurrent use.
type Client struct {
	cfg     Config
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[[]*http.Cookie]
}

// New creates a Client. Calls share one circuit breaker: after five
// consecutive failures the breaker opens and calls fail fast for thirty
// seconds, which keeps a dead API from stalling every login at the full
// request timeout.
func New(cfg Config) *Client {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: requestTimeout}
	}

	breaker := gobreaker.NewCircuitBreaker[[]*http.Cookie](gobreaker.Settings{
		Name:    "business-api",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Client{cfg: cfg, client: client, breaker: breaker}
}

// OnIDToken notifies the API of a freshly minted identity token and returns
// the cookies the API set. A no-op when no id-token endpoint is configured.
func (c *Client) OnIDToken(ctx context.Context, idToken any) ([]*http.Cookie, error) {
	if c.cfg.IDTokenEndpoint == "" {
		return nil, nil
	}

	body, err := json.Marshal(map[string]any{"id_token": idToken})
	if err != nil {
		return nil, fmt.Errorf("encode id_token payload: %w", err)
	}

	cookies, err := c.post(ctx, c.cfg.IDTokenEndpoint, body)
	metrics.RecordUpstreamNotification("id_token", err)
	return cookies, err
}

// OnLogout notifies the API that a session ended and returns the cookies
// the API set. A no-op when no logout endpoint is configured.
func (c *Client) OnLogout(ctx context.Context) ([]*http.Cookie, error) {
	if c.cfg.LogoutEndpoint == "" {
		return nil, nil
	}

	cookies, err := c.post(ctx, c.cfg.LogoutEndpoint, nil)
	metrics.RecordUpstreamNotification("logout", err)
	return cookies, err
}

// post runs one notification through the breaker. A non-2xx answer is a
// failure; Set-Cookie headers of a 2xx answer are parsed in order, with
// unparseable entries skipped.
func (c *Client) post(ctx context.Context, endpoint string, body []byte) ([]*http.Cookie, error) {
	return c.breaker.Execute(func() ([]*http.Cookie, error) {
		var reader io.Reader = http.NoBody
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, reader)
		if err != nil {
			return nil, fmt.Errorf("create API request: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.cfg.Authorization != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.Authorization)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("API request failed: %w", err)
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("%w: status %d", ErrStatus, resp.StatusCode)
		}

		// Response cookies are returned verbatim, Domain and Path
		// attributes included. The business API is inside the trust
		// boundary.
		return readSetCookies(resp.Header), nil
	})
}

// readSetCookies parses every Set-Cookie header in order.
func readSetCookies(header http.Header) []*http.Cookie {
	values := header.Values("Set-Cookie")
	if len(values) == 0 {
		return nil
	}

	cookies := make([]*http.Cookie, 0, len(values))
	for _, value := range values {
		parsed, err := http.ParseSetCookie(value)
		if err != nil {
			continue
		}
		cookies = append(cookies, parsed)
	}
	return cookies
}
