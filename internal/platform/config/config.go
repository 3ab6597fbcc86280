// Copyright (c) 2026 Northlink Communications. All rights reserved.

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
  - DI-Friendly: Passed to core components (DB, Redis) via constructors.
  - Zero Hidden State: No global variables are used to store config.

Security-sensitive values (JWT_SECRET, TOTP_ENCRYPTION_KEY, cookie policy)
follow a three-level precedence resolved once at startup: environment
variable > persisted system.setting row > hard default. Fields here hold the
environment level; [settings.Resolver] applies the other two.
*/
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// # Configuration Schema

// Config holds all runtime configuration for the Atlas API server.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// Relational Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./data/migrations"`

	// Key-Value Cache (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// Token signing. Empty values fall through to persisted settings.
	JWTSecret    string `env:"JWT_SECRET"`
	JWTAlgorithm string `env:"JWT_ALGORITHM"`

	// Token lifetimes. Zero values fall through to persisted settings/defaults.
	JWTAccessTTLMinutes     int `env:"JWT_ACCESS_TTL_MINUTES"`
	JWTRefreshTTLDays       int `env:"JWT_REFRESH_TTL_DAYS"`
	PasswordResetTTLMinutes int `env:"PASSWORD_RESET_TTL_MINUTES"`

	// MFA secret encryption
	TOTPEncryptionKey string `env:"TOTP_ENCRYPTION_KEY"`
	TOTPIssuer        string `env:"TOTP_ISSUER"`

	// Refresh cookie policy. Empty values fall through to persisted settings.
	RefreshCookieName     string `env:"REFRESH_COOKIE_NAME"`
	RefreshCookieDomain   string `env:"REFRESH_COOKIE_DOMAIN"`
	RefreshCookiePath     string `env:"REFRESH_COOKIE_PATH"`
	RefreshCookieSecure   string `env:"REFRESH_COOKIE_SECURE"`
	RefreshCookieSameSite string `env:"REFRESH_COOKIE_SAMESITE"`
	RefreshCookieMaxAge   int    `env:"REFRESH_COOKIE_MAX_AGE"`

	// Outbound email (password reset delivery)
	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT"     envDefault:"587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPFrom     string `env:"SMTP_FROM"`

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

// AccessTokenTTL returns the configured access-token lifetime, or zero if
// the environment did not set one.
func (c *Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.JWTAccessTTLMinutes) * time.Minute
}

// RefreshTokenTTL returns the configured refresh-token lifetime, or zero if
// the environment did not set one.
func (c *Config) RefreshTokenTTL() time.Duration {
	return time.Duration(c.JWTRefreshTTLDays) * 24 * time.Hour
}

// PasswordResetTTL returns the configured reset-token lifetime, or zero if
// the environment did not set one.
func (c *Config) PasswordResetTTL() time.Duration {
	return time.Duration(c.PasswordResetTTLMinutes) * time.Minute
}
