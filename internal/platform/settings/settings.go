// Copyright (c) 2026 Northlink Communications. All rights reserved.

/*
Package settings resolves operator-tunable values with a fixed precedence:

	environment variable > persisted system.setting row > hard default

The resolver runs once during startup; resolved values are then frozen into
the components that use them (token service, cookie policy). Nothing re-reads
a setting mid-flight, which keeps the hot path free of database lookups and
the process safe to run as many stateless replicas.
*/
package settings

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// # Setting Keys

// Persisted setting keys recognized by the auth stack.
const (
	KeyJWTSecret             = "auth.jwt_secret"
	KeyJWTAlgorithm          = "auth.jwt_algorithm"
	KeyAccessTTLMinutes      = "auth.access_ttl_minutes"
	KeyRefreshTTLDays        = "auth.refresh_ttl_days"
	KeyResetTTLMinutes       = "auth.password_reset_ttl_minutes"
	KeyTOTPIssuer            = "auth.totp_issuer"
	KeyRefreshCookieName     = "auth.refresh_cookie_name"
	KeyRefreshCookieDomain   = "auth.refresh_cookie_domain"
	KeyRefreshCookiePath     = "auth.refresh_cookie_path"
	KeyRefreshCookieSecure   = "auth.refresh_cookie_secure"
	KeyRefreshCookieSameSite = "auth.refresh_cookie_samesite"
	KeyRefreshCookieMaxAge   = "auth.refresh_cookie_max_age"
)

// ErrNotFound is returned when no persisted row exists for a key.
var ErrNotFound = errors.New("settings: key not found")

// Repository reads persisted settings.
type Repository interface {
	// Get returns the persisted value for key, or [ErrNotFound].
	Get(ctx context.Context, key string) (string, error)
}

// # Postgres Repository

// PostgresRepository implements [Repository] over the system.setting table.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a settings repository backed by pgx.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Get returns the persisted value for key.
func (repository *PostgresRepository) Get(ctx context.Context, key string) (string, error) {
	const query = `SELECT value FROM system.setting WHERE key = $1`

	var value string
	err := repository.pool.QueryRow(ctx, query, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("settings: get %q failed: %w", key, err)
	}

	return value, nil
}

// # Resolver

// Resolver applies the env > persisted > default precedence.
type Resolver struct {
	repository Repository
}

// NewResolver creates a [Resolver] over the given repository. A nil
// repository skips the persisted level entirely (test/dev mode).
func NewResolver(repository Repository) *Resolver {
	return &Resolver{repository: repository}
}

// String resolves a string setting.
func (resolver *Resolver) String(ctx context.Context, key, envValue, fallback string) string {
	if envValue != "" {
		return envValue
	}
	if resolver.repository != nil {
		if value, err := resolver.repository.Get(ctx, key); err == nil && value != "" {
			return value
		}
	}
	return fallback
}

// Bool resolves a boolean setting. The env level passes through as a string
// so "unset" is distinguishable from "false".
func (resolver *Resolver) Bool(ctx context.Context, key, envValue string, fallback bool) bool {
	raw := resolver.String(ctx, key, envValue, "")
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

// Int resolves an integer setting. A zero env value counts as unset.
func (resolver *Resolver) Int(ctx context.Context, key string, envValue int, fallback int) int {
	if envValue != 0 {
		return envValue
	}
	if resolver.repository != nil {
		if value, err := resolver.repository.Get(ctx, key); err == nil {
			if parsed, perr := strconv.Atoi(value); perr == nil {
				return parsed
			}
		}
	}
	return fallback
}
