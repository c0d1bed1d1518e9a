// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, Redis, key ring) via constructors.
  - Zero Hidden State: No global variables are used to store config.
*/
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// # Configuration Schema

// Config holds all runtime configuration for the auth API server.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// StoreDriver selects the credential store: "postgres" or "memory".
	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`

	// Relational Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./data/migrations"`

	// Key-Value Cache (Redis) backing cookie sessions and remembered devices.
	RedisURL string `env:"REDIS_URL,required"`

	// SessionSecret signs remembered two-factor device tokens.
	SessionSecret string `env:"SESSION_SECRET,required"`

	// KeyPath is the directory holding the data-protection key ring.
	KeyPath string `env:"KEY_PATH" envDefault:"./data/keys"`

	// PublicBaseURL is the externally visible origin used to build email links.
	PublicBaseURL string `env:"PUBLIC_BASE_URL"`

	// Cookie settings
	CookieDomain string `env:"COOKIE_DOMAIN"`
	CookieSecure bool   `env:"COOKIE_SECURE" envDefault:"true"`

	// Token and session lifetimes
	AccessTokenTTL   time.Duration `env:"ACCESS_TOKEN_TTL"   envDefault:"15m"`
	RefreshTokenTTL  time.Duration `env:"REFRESH_TOKEN_TTL"  envDefault:"336h"`
	CookieSessionTTL time.Duration `env:"COOKIE_SESSION_TTL" envDefault:"336h"`

	// Lockout policy
	LockoutMaxAttempts int           `env:"LOCKOUT_MAX_ATTEMPTS" envDefault:"5"`
	LockoutDuration    time.Duration `env:"LOCKOUT_DURATION"     envDefault:"5m"`

	// RequireConfirmedEmail rejects sign-in for principals with an unconfirmed email.
	RequireConfirmedEmail bool `env:"REQUIRE_CONFIRMED_EMAIL" envDefault:"false"`

	// Password policy
	PasswordMinLength              int  `env:"PASSWORD_MIN_LENGTH"               envDefault:"6"`
	PasswordRequireDigit           bool `env:"PASSWORD_REQUIRE_DIGIT"            envDefault:"true"`
	PasswordRequireLowercase       bool `env:"PASSWORD_REQUIRE_LOWERCASE"        envDefault:"true"`
	PasswordRequireUppercase       bool `env:"PASSWORD_REQUIRE_UPPERCASE"        envDefault:"true"`
	PasswordRequireNonAlphanumeric bool `env:"PASSWORD_REQUIRE_NON_ALPHANUMERIC" envDefault:"false"`
	PasswordRequiredUniqueChars    int  `env:"PASSWORD_REQUIRED_UNIQUE_CHARS"    envDefault:"1"`

	// TOTPIssuer is the issuer label shown in authenticator apps.
	TOTPIssuer string `env:"TOTP_ISSUER" envDefault:"authapi"`

	// TrustProxyHeaders takes the client IP from X-Forwarded-For / X-Real-IP.
	// Enable only behind a reverse proxy that overwrites those headers.
	TrustProxyHeaders bool `env:"TRUST_PROXY_HEADERS" envDefault:"false"`

	// Outgoing mail (SMTP). An empty host logs message metadata instead of
	// sending; production requires a host.
	MailHost     string `env:"MAIL_HOST"`
	MailPort     int    `env:"MAIL_PORT"     envDefault:"587"`
	MailUsername string `env:"MAIL_USERNAME"`
	MailPassword string `env:"MAIL_PASSWORD"`
	MailFrom     string `env:"MAIL_FROM"     envDefault:"no-reply@localhost"`

	// Cross-Origin Resource Sharing
	ExtraOrigins string `env:"EXTRA_ORIGINS"`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct.
func Load() (*Config, error) {

	// Initialize an empty config struct
	cfg := &Config{}

	// Use the 'env' package to map environment variables to struct fields.
	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	if cfg.StoreDriver == "postgres" && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("config: DATABASE_URL is required when STORE_DRIVER=postgres")
	}

	if cfg.IsProduction() && cfg.MailHost == "" {
		return nil, fmt.Errorf("config: MAIL_HOST is required when ENVIRONMENT=production")
	}

	return cfg, nil
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// AllowedOrigins returns the comma-separated EXTRA_ORIGINS as a list.
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(c.ExtraOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
