// Copyright (c) 2026 Northlink Communications. All rights reserved.

/*
Package rbac resolves role and permission grants for token issuance.

Roles are assigned to principals; permissions hang off roles as stable
string keys (for example "billing.invoice.read"). The auth engine embeds
both lists in every access token it signs, so grants are re-read from
here on every issuance and propagate within one access-token lifetime.
*/
package rbac

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/northlink/atlas/internal/auth"
)

// PostgresLoader implements [auth.ClaimsLoader] against the rbac schema.
type PostgresLoader struct {
	pool *pgxpool.Pool
}

// NewPostgresLoader creates a PostgreSQL-backed claims loader.
func NewPostgresLoader(pool *pgxpool.Pool) *PostgresLoader {
	return &PostgresLoader{pool: pool}
}

/*
Load resolves the principal's role names and the union of permission
keys those roles grant.

Parameters:
  - context: context.Context
  - principal: auth.Principal

Returns:
  - []string: Role names, sorted
  - []string: Distinct permission keys, sorted
  - error: Execution errors; a principal with no assignments gets empty slices
*/
func (loader *PostgresLoader) Load(context context.Context, principal auth.Principal) ([]string, []string, error) {
	const rolesQuery = `
		SELECT r.name
		FROM rbac.assignment a
		JOIN rbac.role r ON r.id = a.roleid
		WHERE (a.subscriberid = $1 OR a.staffid = $2)
		ORDER BY r.name`

	subscriberID := nullableID(principal.SubscriberID)
	staffID := nullableID(principal.StaffID)

	roleRows, err := loader.pool.Query(context, rolesQuery, subscriberID, staffID)
	if err != nil {
		return nil, nil, fmt.Errorf("rbac_loader_roles_failed: %w", err)
	}
	defer roleRows.Close()

	roles := make([]string, 0)
	for roleRows.Next() {
		var name string
		if err := roleRows.Scan(&name); err != nil {
			return nil, nil, fmt.Errorf("rbac_loader_roles_scan_failed: %w", err)
		}
		roles = append(roles, name)
	}
	if err := roleRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("rbac_loader_roles_rows_failed: %w", err)
	}

	const scopesQuery = `
		SELECT DISTINCT p.key
		FROM rbac.assignment a
		JOIN rbac.rolepermission rp ON rp.roleid = a.roleid
		JOIN rbac.permission p ON p.id = rp.permissionid
		WHERE (a.subscriberid = $1 OR a.staffid = $2)
		ORDER BY p.key`

	scopeRows, err := loader.pool.Query(context, scopesQuery, subscriberID, staffID)
	if err != nil {
		return nil, nil, fmt.Errorf("rbac_loader_scopes_failed: %w", err)
	}
	defer scopeRows.Close()

	scopes := make([]string, 0)
	for scopeRows.Next() {
		var key string
		if err := scopeRows.Scan(&key); err != nil {
			return nil, nil, fmt.Errorf("rbac_loader_scopes_scan_failed: %w", err)
		}
		scopes = append(scopes, key)
	}
	if err := scopeRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("rbac_loader_scopes_rows_failed: %w", err)
	}

	return roles, scopes, nil
}

func nullableID(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

// StaticLoader returns fixed grants for every principal. Test wiring and
// single-tenant tools use it in place of the database.
type StaticLoader struct {
	Roles  []string
	Scopes []string
}

// Load returns the configured grants unconditionally.
func (loader *StaticLoader) Load(_ context.Context, _ auth.Principal) ([]string, []string, error) {
	return loader.Roles, loader.Scopes, nil
}
