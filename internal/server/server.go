// AuthGate - OIDC Authentication Gateway for Reverse Proxies
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authgate

// Package server runs the gateway's listeners under a suture supervisor.
// Every configured listen address (TCP or unix socket) becomes one
// supervised service; a listener crash restarts only that listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/tomtom215/authgate/internal/config"
	"github.com/tomtom215/authgate/internal/logging"
)

// shutdownTimeout bounds graceful shutdown of one listener: in-flight
// requests get this long to finish before the connections are dropped.
const shutdownTimeout = 10 * time.Second

// ListenerService runs one http.Server bound to a single address as a
// suture service.
type ListenerService struct {
	addr    config.ListenAddr
	handler http.Handler
}

// NewListenerService creates the service for one listen address.
func NewListenerService(addr config.ListenAddr, handler http.Handler) *ListenerService {
	return &ListenerService{addr: addr, handler: handler}
}

// String identifies the service in supervisor logs.
func (s *ListenerService) String() string {
	return "listener " + s.addr.String()
}

// Serve implements suture.Service: bind, serve until the context is
// canceled, then shut down gracefully. A bind failure is returned to the
// supervisor, which retries with backoff.
func (s *ListenerService) Serve(ctx context.Context) error {
	ln, err := s.listen()
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	logging.Info().Str("address", s.addr.String()).Msg("listener started")

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listener %s failed: %w", s.addr, err)
		}
		return nil

	case <-ctx.Done():
		// The serve context is canceled; shutdown needs its own deadline.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("listener %s shutdown failed: %w", s.addr, err)
		}
		<-errCh

		logging.Info().Str("address", s.addr.String()).Msg("listener stopped")
		return ctx.Err()
	}
}

// listen binds the address. A stale unix socket left by a previous run is
// removed before binding; a live one makes the bind fail and the
// supervisor retry.
func (s *ListenerService) listen() (net.Listener, error) {
	if s.addr.Network == "unix" {
		if err := removeStaleSocket(s.addr.Address); err != nil {
			return nil, err
		}
	}

	ln, err := net.Listen(s.addr.Network, s.addr.Address)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", s.addr, err)
	}
	return ln, nil
}

func removeStaleSocket(path string) error {
	conn, err := net.DialTimeout("unix", path, time.Second)
	if err == nil {
		conn.Close()
		return fmt.Errorf("bind unix:%s: socket is in use", path)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket %s: %w", path, err)
	}
	return nil
}

// Tree is the gateway's supervisor: one listener service per configured
// address under a single root.
type Tree struct {
	root *suture.Supervisor
}

// New builds the supervisor tree for the configured listen addresses, all
// serving the same handler. Supervisor events go through the structured
// logger.
func New(settings *config.Settings, handler http.Handler) (*Tree, error) {
	addrs, err := settings.ListenAddrs()
	if err != nil {
		return nil, err
	}

	hook := (&sutureslog.Handler{Logger: logging.NewSlogLogger()}).MustHook()
	root := suture.New("authgate", suture.Spec{
		EventHook: hook,
		Timeout:   shutdownTimeout,
	})

	for _, addr := range addrs {
		root.Add(NewListenerService(addr, handler))
	}
	return &Tree{root: root}, nil
}

// Serve runs the tree until the context is canceled. The returned error is
// context.Canceled on an orderly shutdown.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}
