// AuthGate - OIDC Authentication Gateway for Reverse Proxies
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authgate

package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrInvalidListen indicates a listen entry that is neither an
// http://host:port URL nor a unix:/path socket address.
var ErrInvalidListen = errors.New("invalid listen address")

// ListenAddr is one resolved bind target.
type ListenAddr struct {
	// Network is "tcp" or "unix".
	Network string

	// Address is host:port for tcp, the socket path for unix.
	Address string
}

func (a ListenAddr) String() string {
	if a.Network == "unix" {
		return "unix:" + a.Address
	}
	return "http://" + a.Address
}

// ListenAddrs parses the comma-separated Listen setting. TCP entries have
// the form http://host:port with the port defaulting to 80; unix entries
// have the form unix:/path/to.sock.
func (s *Settings) ListenAddrs() ([]ListenAddr, error) {
	parts := strings.Split(s.Listen, ",")
	addrs := make([]ListenAddr, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		switch {
		case strings.HasPrefix(part, "unix:"):
			path := strings.TrimPrefix(part, "unix:")
			if path == "" {
				return nil, fmt.Errorf("%w: %q has no socket path", ErrInvalidListen, part)
			}
			addrs = append(addrs, ListenAddr{Network: "unix", Address: path})

		case strings.HasPrefix(part, "http://"):
			u, err := url.Parse(part)
			if err != nil || u.Hostname() == "" {
				return nil, fmt.Errorf("%w: %q", ErrInvalidListen, part)
			}
			port := u.Port()
			if port == "" {
				port = "80"
			}
			addrs = append(addrs, ListenAddr{
				Network: "tcp",
				Address: net.JoinHostPort(u.Hostname(), port),
			})

		default:
			return nil, fmt.Errorf("%w: %q (want http://host:port or unix:/path)", ErrInvalidListen, part)
		}
	}

	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: no usable address in %q", ErrInvalidListen, s.Listen)
	}
	return addrs, nil
}
