// AuthGate - OIDC Authentication Gateway for Reverse Proxies
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authgate

package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/tomtom215/authgate/internal/crypto"
	"github.com/tomtom215/authgate/internal/validation"
)

// Settings is the full AuthGate configuration.
type Settings struct {
	// Listen is a comma-separated list of http://host:port and unix:/path
	// addresses the gateway binds.
	Listen string `koanf:"listen" validate:"required"`

	// Secret encrypts session cookies and the OAuth state token. When
	// empty a random secret is generated at startup; sessions then do not
	// survive a restart.
	Secret string `koanf:"secret"`

	// JWTSecret enables HMAC signing of the x-auth-userinfo header and of
	// the id_token payload sent to the business API. Empty disables
	// signing; payloads pass through as plain JSON.
	JWTSecret string `koanf:"jwt_secret"`

	// Data, when set, is emitted verbatim as the x-auth-data header on
	// authenticated responses.
	Data string `koanf:"data"`

	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format" validate:"omitempty,oneof=json console"`

	// CORSOrigins lists allowed origins; empty disables CORS handling.
	CORSOrigins []string `koanf:"cors_origins"`

	// CryptoIterations is the PBKDF2 iteration count for cookie
	// encryption. The default matches values minted by existing
	// deployments; see internal/crypto.
	CryptoIterations int `koanf:"crypto_iterations" validate:"min=1"`

	// RateLimit is the global per-IP request budget per minute.
	// 0 disables it.
	RateLimit int `koanf:"rate_limit" validate:"min=0"`

	// LoginRateLimit is the per-IP POST /login budget per minute.
	// 0 disables it.
	LoginRateLimit int `koanf:"login_rate_limit" validate:"min=0"`

	Cookie   CookieSettings   `koanf:"cookie"`
	Provider ProviderSettings `koanf:"provider"`
	API      APISettings      `koanf:"api"`

	// SecretGenerated reports that Secret was filled with a random value
	// because none was configured.
	SecretGenerated bool `koanf:"-"`
}

// CookieSettings names the two session cookies.
type CookieSettings struct {
	AccessTokenName  string `koanf:"access_token_name" validate:"required"`
	RefreshTokenName string `koanf:"refresh_token_name" validate:"required"`
}

// ProviderSettings configures the identity provider client.
type ProviderSettings struct {
	// Provider selects the flavour: oidc, keycloak or fusionauth.
	// keycloak and fusionauth read userinfo from the access token JWT
	// instead of calling the userinfo endpoint.
	Provider string `koanf:"provider" validate:"required,oneof=oidc keycloak fusionauth"`

	ClientID     string `koanf:"client_id" validate:"required"`
	ClientSecret string `koanf:"client_secret" validate:"required"`

	AuthURL     string `koanf:"auth_url" validate:"required,url"`
	TokenURL    string `koanf:"token_url" validate:"required,url"`
	UserinfoURL string `koanf:"userinfo_url" validate:"required,url"`

	// EndSessionURL is the provider's RP-initiated logout endpoint.
	// Optional; without it, logout redirects straight to
	// LogoutRedirectURL.
	EndSessionURL string `koanf:"end_session_url" validate:"omitempty,url"`

	// CallbackURL is the redirect URI registered with the provider,
	// normally https://<gateway-host>/auth/callback.
	CallbackURL string `koanf:"callback_url" validate:"required,url"`

	// LogoutRedirectURL is where the browser lands after logout.
	LogoutRedirectURL string `koanf:"logout_redirect_url" validate:"required"`

	Scope string `koanf:"scope"`
}

// APISettings configures the business API notifier. Empty endpoints
// disable the corresponding notification.
type APISettings struct {
	IDTokenEndpoint string `koanf:"id_token_endpoint" validate:"omitempty,url"`
	LogoutEndpoint  string `koanf:"logout_endpoint" validate:"omitempty,url"`

	// Authorization, when set, is sent as a bearer token on every
	// business API call.
	Authorization string `koanf:"authorization"`
}

// DefaultScope is requested when provider.scope is not configured.
const DefaultScope = "openid email profile offline_access"

func defaultSettings() *Settings {
	return &Settings{
		Listen:           "http://127.0.0.1:8088",
		LogLevel:         "info",
		LogFormat:        "json",
		CryptoIterations: crypto.DefaultIterations,
		RateLimit:        100,
		LoginRateLimit:   10,
		Cookie: CookieSettings{
			AccessTokenName:  "sat",
			RefreshTokenName: "srt",
		},
		Provider: ProviderSettings{
			Provider: "oidc",
			Scope:    DefaultScope,
		},
	}
}

// NewFlagSet declares every AuthGate flag. It is shared by Load and by the
// usage output; parsing errors and --help are reported through
// pflag.ContinueOnError.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SortFlags = false

	fs.String("config", "", "path to a YAML config file")
	fs.String("config-env", "", "environment variable prefix to merge settings from")
	fs.String("listen", "", "comma-separated listen addresses (http://host:port or unix:/path)")
	fs.String("secret", "", "secret for cookie and state encryption (random when unset)")
	fs.String("jwt-secret", "", "secret for signing identity payloads")
	fs.String("data", "", "value of the x-auth-data response header")
	fs.String("log-level", "", "log level: trace, debug, info, warn, error, fatal")
	fs.String("log-format", "", "log format: json or console")
	fs.String("cors-origins", "", "comma-separated allowed CORS origins")
	fs.Int("crypto-iterations", 0, "PBKDF2 iteration count for cookie encryption")
	fs.Int("rate-limit", 0, "global per-IP requests per minute, 0 disables")
	fs.Int("login-rate-limit", 0, "per-IP POST /login requests per minute, 0 disables")
	fs.String("cookie-access-token-name", "", "access token cookie name")
	fs.String("cookie-refresh-token-name", "", "refresh token cookie name")
	fs.String("provider", "", "provider flavour: oidc, keycloak or fusionauth")
	fs.String("provider-client-id", "", "OAuth client id")
	fs.String("provider-client-secret", "", "OAuth client secret")
	fs.String("provider-auth-url", "", "authorization endpoint URL")
	fs.String("provider-token-url", "", "token endpoint URL")
	fs.String("provider-userinfo-url", "", "userinfo endpoint URL")
	fs.String("provider-end-session-url", "", "RP-initiated logout endpoint URL")
	fs.String("provider-callback-url", "", "redirect URI registered with the provider")
	fs.String("provider-logout-redirect-url", "", "browser target after logout")
	fs.String("provider-scope", "", "OAuth scope string")
	fs.String("api-id-token-endpoint", "", "business API endpoint notified of new id tokens")
	fs.String("api-logout-endpoint", "", "business API endpoint notified of logouts")
	fs.String("api-authorization", "", "bearer token sent to the business API")

	return fs
}

// Load builds Settings from args (usually os.Args[1:]) and the process
// environment. Any failure, including --help, should terminate startup;
// pflag has already printed usage for flag errors.
func Load(name string, args []string) (*Settings, error) {
	fs := NewFlagSet(name)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultSettings(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path, _ := fs.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	flagProvider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
		if !f.Changed || f.Name == "config" || f.Name == "config-env" {
			return "", nil
		}
		return flagToPath(f.Name), posflag.FlagVal(fs, f)
	})
	if err := k.Load(flagProvider, nil); err != nil {
		return nil, fmt.Errorf("load flags: %w", err)
	}

	if prefix, _ := fs.GetString("config-env"); prefix != "" {
		if err := k.Load(env.ProviderWithValue("", ".", envTransform(prefix)), nil); err != nil {
			return nil, fmt.Errorf("load environment: %w", err)
		}
	}

	if err := processSliceFields(k); err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := k.Unmarshal("", settings); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if settings.Secret == "" {
		secret, err := crypto.GenerateSecret()
		if err != nil {
			return nil, fmt.Errorf("generate fallback secret: %w", err)
		}
		settings.Secret = secret
		settings.SecretGenerated = true
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// sliceConfigPaths are the paths accepted as comma-separated strings from
// flags and environment variables.
var sliceConfigPaths = []string{"cors_origins"}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
	}
	return nil
}

// Validate checks field constraints and the listen address list.
func (s *Settings) Validate() error {
	if err := validation.ValidateStruct(s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	if _, err := s.ListenAddrs(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}
