// AuthGate - OIDC Authentication Gateway for Reverse Proxies
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authgate

// Package main is the AuthGate entry point.
//
// AuthGate sits between a reverse proxy and an identity provider and turns
// OIDC logins into encrypted session cookies. It serves three consumption
// modes from the same session engine: plain cookies for browser apps,
// numbered x-auth headers for proxies that run auth subrequests, and the
// traefik ForwardAuth contract.
//
// # Startup order
//
//  1. Configuration: defaults, YAML file, flags, environment (koanf)
//  2. Logging: zerolog, JSON or console per configuration
//  3. Cookie encryption, payload signer, provider client, API notifier
//  4. HTTP router and the supervised listeners (TCP and unix sockets)
//
// # Signal handling
//
// SIGINT and SIGTERM trigger graceful shutdown: listeners stop accepting,
// in-flight requests get 10 seconds to finish.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/tomtom215/authgate/internal/config"
	"github.com/tomtom215/authgate/internal/crypto"
	"github.com/tomtom215/authgate/internal/gateway"
	"github.com/tomtom215/authgate/internal/logging"
	"github.com/tomtom215/authgate/internal/provider"
	"github.com/tomtom215/authgate/internal/server"
	"github.com/tomtom215/authgate/internal/session"
	"github.com/tomtom215/authgate/internal/signer"
	"github.com/tomtom215/authgate/internal/upstream"
)

func main() {
	settings, err := config.Load("authgate", os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(1)
		}
		// The default logger is live before Init runs.
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  settings.LogLevel,
		Format: settings.LogFormat,
	})

	logging.Info().Str("listen", settings.Listen).Msg("Starting AuthGate")
	if settings.SecretGenerated {
		logging.Warn().Msg("No secret configured; generated a random one, sessions will not survive a restart")
	}

	enc, err := crypto.New(crypto.Config{
		Secret:     settings.Secret,
		Iterations: settings.CryptoIterations,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize cookie encryption")
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
		logging.Fatal().Err(err).Msg("Failed to initialize provider client")
	}

	data := &session.Data{
		Settings: settings,
		Crypto:   enc,
		Signer:   signer.New(settings.JWTSecret),
		Provider: prov,
		API: upstream.New(upstream.Config{
			IDTokenEndpoint: settings.API.IDTokenEndpoint,
			LogoutEndpoint:  settings.API.LogoutEndpoint,
			Authorization:   settings.API.Authorization,
		}),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	defer close(done)

	tree, err := server.New(settings, gateway.NewRouter(data, done))
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build the listener tree")
	}

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Fatal().Err(err).Msg("Supervisor terminated")
	}
	logging.Info().Msg("AuthGate stopped")
}
