// Copyright (c) 2026 Northlink Communications. All rights reserved.

// PostgreSQL implementations of the auth repository contracts.
//
// # err Mapping
//
// Storage-specific errors (like pgx.ErrNoRows) are mapped to the domain
// sentinels in errors.go so the engine never sees driver details.

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/northlink/atlas/internal/platform/dberr"
)

const credentialColumns = `
	c.id, c.subscriberid, c.staffid, c.provider, c.username, c.passwordhash,
	c.failedattempts, c.lockeduntil, c.mustchangepassword, c.isactive,
	c.lastloginat, c.createdat, c.updatedat,
	COALESCE(s.email, st.email, '') AS email,
	COALESCE(s.displayname, st.displayname, '') AS displayname`

const credentialJoins = `
	FROM auth.credential c
	LEFT JOIN core.subscriber s ON s.id = c.subscriberid
	LEFT JOIN core.staff st ON st.id = c.staffid`

// # Credential Repository

// PostgresCredentialRepository implements CredentialRepository using pgx.
type PostgresCredentialRepository struct {
	pool *pgxpool.Pool
}

// NewCredentialRepository creates a PostgreSQL-backed CredentialRepository.
func NewCredentialRepository(pool *pgxpool.Pool) *PostgresCredentialRepository {
	return &PostgresCredentialRepository{pool: pool}
}

func scanCredential(row pgx.Row) (*Credential, error) {
	credential := &Credential{}
	var subscriberID, staffID, username, passwordHash *string

	err := row.Scan(
		&credential.ID,
		&subscriberID,
		&staffID,
		&credential.Provider,
		&username,
		&passwordHash,
		&credential.FailedAttempts,
		&credential.LockedUntil,
		&credential.MustChangePassword,
		&credential.IsActive,
		&credential.LastLoginAt,
		&credential.CreatedAt,
		&credential.UpdatedAt,
		&credential.Email,
		&credential.DisplayName,
	)
	if err != nil {
		return nil, err
	}

	if subscriberID != nil {
		credential.Principal.SubscriberID = *subscriberID
	}
	if staffID != nil {
		credential.Principal.StaffID = *staffID
	}
	if username != nil {
		credential.Username = *username
	}
	if passwordHash != nil {
		credential.PasswordHash = *passwordHash
	}

	return credential, nil
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

/*
Create persists a new credential row into auth.credential.

Description: Validates the write-time invariants (principal union shape,
local rows carry username and hash) before touching the database.

Parameters:
  - context: context.Context
  - credential: *Credential

Returns:
  - error: Validation failures, constraint violations, or connectivity errors
*/
func (repository *PostgresCredentialRepository) Create(context context.Context, credential *Credential) error {
	if err := credential.Validate(); err != nil {
		return err
	}

	const query = `
		INSERT INTO auth.credential (
			id, subscriberid, staffid, provider, username, passwordhash,
			failedattempts, lockeduntil, mustchangepassword, isactive, createdat, updatedat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	now := time.Now().UTC()
	if credential.CreatedAt.IsZero() {
		credential.CreatedAt = now
	}
	credential.UpdatedAt = now

	_, err := repository.pool.Exec(context, query,
		credential.ID,
		nullable(credential.Principal.SubscriberID),
		nullable(credential.Principal.StaffID),
		credential.Provider,
		nullable(credential.Username),
		nullable(credential.PasswordHash),
		credential.FailedAttempts,
		credential.LockedUntil,
		credential.MustChangePassword,
		credential.IsActive,
		credential.CreatedAt,
		credential.UpdatedAt,
	)

	if err != nil {
		if dberr.IsUniqueViolation(err, "credential_provider_username_uq") {
			return dberr.Wrap(err, "A credential with this username already exists for the provider")
		}
		return fmt.Errorf("postgres_credential_repo_create_failed: %w", err)
	}

	return nil
}

/*
FindForLogin resolves a login identifier to the newest active credential.

Description: Matches the identifier against the credential's username or
the owning principal's email, both case-insensitively. The caller is
expected to have normalized the identifier already. When one principal
somehow holds several matching active rows, the newest wins.

Parameters:
  - context: context.Context
  - identifier: string (normalized username or email)
  - provider: Provider

Returns:
  - *Credential: Hydrated credential with denormalized email and display name
  - error: ErrInvalidCredentials when nothing matches, ErrAccountDisabled
    when only deactivated rows match
*/
func (repository *PostgresCredentialRepository) FindForLogin(context context.Context, identifier string, provider Provider) (*Credential, error) {
	const query = `
		SELECT` + credentialColumns + credentialJoins + `
		WHERE c.provider = $2
		  AND c.isactive = TRUE
		  AND (LOWER(c.username) = LOWER($1) OR LOWER(COALESCE(s.email, st.email)) = LOWER($1))
		ORDER BY c.createdat DESC
		LIMIT 1`

	credential, err := scanCredential(repository.pool.QueryRow(context, query, identifier, provider))
	if err == nil {
		return credential, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres_credential_repo_find_for_login_failed: %w", err)
	}

	// Distinguish a deactivated account from an unknown identifier so
	// the caller can surface the disabled state instead of a generic
	// credential failure.
	const probe = `
		SELECT EXISTS (
			SELECT 1` + credentialJoins + `
			WHERE c.provider = $2
			  AND c.isactive = FALSE
			  AND (LOWER(c.username) = LOWER($1) OR LOWER(COALESCE(s.email, st.email)) = LOWER($1))
		)`

	var disabled bool
	if err := repository.pool.QueryRow(context, probe, identifier, provider).Scan(&disabled); err != nil {
		return nil, fmt.Errorf("postgres_credential_repo_disabled_probe_failed: %w", err)
	}
	if disabled {
		return nil, ErrAccountDisabled
	}

	return nil, ErrInvalidCredentials
}

/*
FindByPrincipal returns the newest active credential a principal holds
for the given provider.

Parameters:
  - context: context.Context
  - principal: Principal
  - provider: Provider

Returns:
  - *Credential: Hydrated credential
  - error: ErrAccountNotFound when the principal holds no active row
*/
func (repository *PostgresCredentialRepository) FindByPrincipal(context context.Context, principal Principal, provider Provider) (*Credential, error) {
	const query = `
		SELECT` + credentialColumns + credentialJoins + `
		WHERE c.provider = $3
		  AND c.isactive = TRUE
		  AND (c.subscriberid = $1 OR c.staffid = $2)
		ORDER BY c.createdat DESC
		LIMIT 1`

	credential, err := scanCredential(repository.pool.QueryRow(context, query,
		nullable(principal.SubscriberID),
		nullable(principal.StaffID),
		provider,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("postgres_credential_repo_find_by_principal_failed: %w", err)
	}

	return credential, nil
}

/*
FindByEmail resolves an email address to the newest active local
credential whose owning principal carries it.

Parameters:
  - context: context.Context
  - email: string

Returns:
  - *Credential: Hydrated credential
  - error: ErrAccountNotFound when no active local credential matches
*/
func (repository *PostgresCredentialRepository) FindByEmail(context context.Context, email string) (*Credential, error) {
	const query = `
		SELECT` + credentialColumns + credentialJoins + `
		WHERE c.provider = 'local'
		  AND c.isactive = TRUE
		  AND LOWER(COALESCE(s.email, st.email)) = LOWER($1)
		ORDER BY c.createdat DESC
		LIMIT 1`

	credential, err := scanCredential(repository.pool.QueryRow(context, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("postgres_credential_repo_find_by_email_failed: %w", err)
	}

	return credential, nil
}

/*
RecordFailure increments the failed-attempt counter and opens the lockout
window when the threshold is reached.

Description: Counter increment and lock decision happen in one UPDATE so
two concurrent failures cannot both observe a pre-threshold count and
leave the account unlocked.

Parameters:
  - context: context.Context
  - credentialID: string
  - maxAttempts: int (threshold at which the lock opens)
  - lockFor: time.Duration (length of the lockout window)

Returns:
  - *Credential: Post-update counter and lock state (other fields zero)
  - error: ErrAccountNotFound or execution errors
*/
func (repository *PostgresCredentialRepository) RecordFailure(context context.Context, credentialID string, maxAttempts int, lockFor time.Duration) (*Credential, error) {
	const query = `
		UPDATE auth.credential
		SET failedattempts = failedattempts + 1,
		    lockeduntil = CASE
		        WHEN failedattempts + 1 >= $2 THEN NOW() + make_interval(secs => $3)
		        ELSE lockeduntil
		    END,
		    updatedat = NOW()
		WHERE id = $1
		RETURNING id, failedattempts, lockeduntil`

	credential := &Credential{}
	err := repository.pool.QueryRow(context, query, credentialID, maxAttempts, lockFor.Seconds()).Scan(
		&credential.ID,
		&credential.FailedAttempts,
		&credential.LockedUntil,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("postgres_credential_repo_record_failure_failed: %w", err)
	}

	return credential, nil
}

/*
RecordSuccess clears the failure counter and lockout and stamps the last
successful login time.

Parameters:
  - context: context.Context
  - credentialID: string
  - at: time.Time

Returns:
  - error: Execution errors
*/
func (repository *PostgresCredentialRepository) RecordSuccess(context context.Context, credentialID string, at time.Time) error {
	const query = `
		UPDATE auth.credential
		SET failedattempts = 0, lockeduntil = NULL, lastloginat = $2, updatedat = NOW()
		WHERE id = $1`

	_, err := repository.pool.Exec(context, query, credentialID, at.UTC())
	if err != nil {
		return fmt.Errorf("postgres_credential_repo_record_success_failed: %w", err)
	}

	return nil
}

/*
UpdatePassword replaces the password hash and resets the credential's
gating state.

Description: A successful password change always clears the failure
counter, the lockout window, and the must_change_password flag.

Parameters:
  - context: context.Context
  - credentialID: string
  - newHash: string

Returns:
  - error: ErrAccountNotFound or execution errors
*/
func (repository *PostgresCredentialRepository) UpdatePassword(context context.Context, credentialID string, newHash string) error {
	const query = `
		UPDATE auth.credential
		SET passwordhash = $2, failedattempts = 0, lockeduntil = NULL,
		    mustchangepassword = FALSE, updatedat = NOW()
		WHERE id = $1`

	tag, err := repository.pool.Exec(context, query, credentialID, newHash)
	if err != nil {
		return fmt.Errorf("postgres_credential_repo_update_password_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}

	return nil
}

// # MFA Method Repository

// PostgresMFAMethodRepository implements MFAMethodRepository using pgx.
type PostgresMFAMethodRepository struct {
	pool *pgxpool.Pool
}

// NewMFAMethodRepository creates a PostgreSQL-backed MFAMethodRepository.
func NewMFAMethodRepository(pool *pgxpool.Pool) *PostgresMFAMethodRepository {
	return &PostgresMFAMethodRepository{pool: pool}
}

const mfaMethodColumns = `
	id, subscriberid, staffid, methodtype, label, secret,
	enabled, isprimary, verifiedat, createdat, updatedat`

func scanMFAMethod(row pgx.Row) (*MFAMethod, error) {
	method := &MFAMethod{}
	var subscriberID, staffID *string

	err := row.Scan(
		&method.ID,
		&subscriberID,
		&staffID,
		&method.MethodType,
		&method.Label,
		&method.Secret,
		&method.Enabled,
		&method.IsPrimary,
		&method.VerifiedAt,
		&method.CreatedAt,
		&method.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if subscriberID != nil {
		method.Principal.SubscriberID = *subscriberID
	}
	if staffID != nil {
		method.Principal.StaffID = *staffID
	}

	return method, nil
}

/*
Create persists a new MFA method row into auth.mfamethod.

Parameters:
  - context: context.Context
  - method: *MFAMethod (Secret already encrypted)

Returns:
  - error: Validation failures or execution errors
*/
func (repository *PostgresMFAMethodRepository) Create(context context.Context, method *MFAMethod) error {
	if err := method.Principal.Validate(); err != nil {
		return err
	}

	const query = `
		INSERT INTO auth.mfamethod (
			id, subscriberid, staffid, methodtype, label, secret,
			enabled, isprimary, verifiedat, createdat, updatedat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	now := time.Now().UTC()
	if method.CreatedAt.IsZero() {
		method.CreatedAt = now
	}
	method.UpdatedAt = now

	_, err := repository.pool.Exec(context, query,
		method.ID,
		nullable(method.Principal.SubscriberID),
		nullable(method.Principal.StaffID),
		method.MethodType,
		method.Label,
		method.Secret,
		method.Enabled,
		method.IsPrimary,
		method.VerifiedAt,
		method.CreatedAt,
		method.UpdatedAt,
	)

	if err != nil {
		if dberr.IsUniqueViolation(err, "mfamethod_primary_uq") {
			return ErrPrimaryMFAConflict
		}
		return fmt.Errorf("postgres_mfa_repo_create_failed: %w", err)
	}

	return nil
}

/*
FindByID retrieves an MFA method by its id.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - *MFAMethod: Hydrated method including the encrypted secret
  - error: ErrMFAMethodNotFound or execution errors
*/
func (repository *PostgresMFAMethodRepository) FindByID(context context.Context, id string) (*MFAMethod, error) {
	const query = `
		SELECT` + mfaMethodColumns + `
		FROM auth.mfamethod
		WHERE id = $1`

	method, err := scanMFAMethod(repository.pool.QueryRow(context, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMFAMethodNotFound
		}
		return nil, fmt.Errorf("postgres_mfa_repo_find_by_id_failed: %w", err)
	}

	return method, nil
}

/*
FindPrimary returns the principal's enabled primary method of a type.

Parameters:
  - context: context.Context
  - principal: Principal
  - methodType: MethodType

Returns:
  - *MFAMethod: The primary method
  - error: ErrMFAMethodNotFound when none is enrolled
*/
func (repository *PostgresMFAMethodRepository) FindPrimary(context context.Context, principal Principal, methodType MethodType) (*MFAMethod, error) {
	const query = `
		SELECT` + mfaMethodColumns + `
		FROM auth.mfamethod
		WHERE (subscriberid = $1 OR staffid = $2)
		  AND methodtype = $3 AND enabled = TRUE AND isprimary = TRUE
		LIMIT 1`

	method, err := scanMFAMethod(repository.pool.QueryRow(context, query,
		nullable(principal.SubscriberID),
		nullable(principal.StaffID),
		methodType,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMFAMethodNotFound
		}
		return nil, fmt.Errorf("postgres_mfa_repo_find_primary_failed: %w", err)
	}

	return method, nil
}

/*
Promote enables a method, marks it primary, and demotes any sibling.

Description: Demotion and promotion run in one transaction. The partial
unique index on (principal, isprimary, enabled) makes the loser of a
concurrent promotion fail its commit with a unique violation, which is
surfaced as ErrPrimaryMFAConflict.

Parameters:
  - context: context.Context
  - id: string
  - verifiedAt: time.Time

Returns:
  - *MFAMethod: The promoted method
  - error: ErrMFAMethodNotFound, ErrPrimaryMFAConflict, or execution errors
*/
func (repository *PostgresMFAMethodRepository) Promote(context context.Context, id string, verifiedAt time.Time) (*MFAMethod, error) {
	transaction, err := repository.pool.Begin(context)
	if err != nil {
		return nil, fmt.Errorf("postgres_mfa_repo_promote_begin_failed: %w", err)
	}
	defer func() { _ = transaction.Rollback(context) }()

	const demote = `
		UPDATE auth.mfamethod
		SET isprimary = FALSE, updatedat = NOW()
		WHERE isprimary = TRUE AND id != $1
		  AND COALESCE(subscriberid, staffid) = (
		      SELECT COALESCE(subscriberid, staffid) FROM auth.mfamethod WHERE id = $1
		  )`

	if _, err = transaction.Exec(context, demote, id); err != nil {
		return nil, fmt.Errorf("postgres_mfa_repo_demote_failed: %w", err)
	}

	const promote = `
		UPDATE auth.mfamethod
		SET enabled = TRUE, isprimary = TRUE, verifiedat = $2, updatedat = NOW()
		WHERE id = $1
		RETURNING` + mfaMethodColumns

	method, err := scanMFAMethod(transaction.QueryRow(context, promote, id, verifiedAt.UTC()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMFAMethodNotFound
		}
		if dberr.IsUniqueViolation(err, "mfamethod_primary_uq") {
			return nil, ErrPrimaryMFAConflict
		}
		return nil, fmt.Errorf("postgres_mfa_repo_promote_failed: %w", err)
	}

	if err = transaction.Commit(context); err != nil {
		if dberr.IsUniqueViolation(err, "mfamethod_primary_uq") {
			return nil, ErrPrimaryMFAConflict
		}
		return nil, fmt.Errorf("postgres_mfa_repo_promote_commit_failed: %w", err)
	}

	return method, nil
}

// # Session Repository

// PostgresSessionRepository implements SessionRepository using pgx.
type PostgresSessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a PostgreSQL-backed SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *PostgresSessionRepository {
	return &PostgresSessionRepository{pool: pool}
}

const sessionColumns = `
	id, subscriberid, staffid, status, tokenhash, previoustokenhash,
	tokenrotatedat, ipaddress, useragent, createdat, lastseenat, expiresat, revokedat`

func scanSession(row pgx.Row) (*Session, error) {
	session := &Session{}
	var subscriberID, staffID, ipAddress, userAgent *string

	err := row.Scan(
		&session.ID,
		&subscriberID,
		&staffID,
		&session.Status,
		&session.TokenHash,
		&session.PreviousTokenHash,
		&session.TokenRotatedAt,
		&ipAddress,
		&userAgent,
		&session.CreatedAt,
		&session.LastSeenAt,
		&session.ExpiresAt,
		&session.RevokedAt,
	)
	if err != nil {
		return nil, err
	}

	if subscriberID != nil {
		session.Principal.SubscriberID = *subscriberID
	}
	if staffID != nil {
		session.Principal.StaffID = *staffID
	}
	if ipAddress != nil {
		session.IPAddress = *ipAddress
	}
	if userAgent != nil {
		session.UserAgent = *userAgent
	}

	return session, nil
}

/*
Create persists a new session row into auth.session.

Parameters:
  - context: context.Context
  - session: *Session (TokenHash already computed)

Returns:
  - error: Validation failures or execution errors
*/
func (repository *PostgresSessionRepository) Create(context context.Context, session *Session) error {
	if err := session.Principal.Validate(); err != nil {
		return err
	}

	const query = `
		INSERT INTO auth.session (
			id, subscriberid, staffid, status, tokenhash, previoustokenhash,
			tokenrotatedat, ipaddress, useragent, createdat, lastseenat, expiresat, revokedat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.LastSeenAt.IsZero() {
		session.LastSeenAt = session.CreatedAt
	}
	if session.Status == "" {
		session.Status = SessionActive
	}

	_, err := repository.pool.Exec(context, query,
		session.ID,
		nullable(session.Principal.SubscriberID),
		nullable(session.Principal.StaffID),
		session.Status,
		session.TokenHash,
		session.PreviousTokenHash,
		session.TokenRotatedAt,
		nullable(session.IPAddress),
		nullable(session.UserAgent),
		session.CreatedAt,
		session.LastSeenAt,
		session.ExpiresAt,
		session.RevokedAt,
	)

	if err != nil {
		return fmt.Errorf("postgres_session_repo_create_failed: %w", err)
	}

	return nil
}

/*
Rotate atomically swaps a session's refresh token material.

Description: The UPDATE is guarded on the current token hash plus the
session being active, unrevoked, and unexpired, so exactly one of any
set of concurrent presenters of the same token wins. The superseded
hash moves into previoustokenhash, which is what reuse detection keys on.

Parameters:
  - context: context.Context
  - currentTokenHash: string (hash the caller presented)
  - newTokenHash: string (hash of the replacement token)
  - ipAddress: string
  - userAgent: string

Returns:
  - *Session: Post-rotation session state
  - error: ErrSessionNotFound when the guard did not match any row
*/
func (repository *PostgresSessionRepository) Rotate(context context.Context, currentTokenHash, newTokenHash, ipAddress, userAgent string) (*Session, error) {
	const query = `
		UPDATE auth.session
		SET previoustokenhash = tokenhash,
		    tokenhash = $2,
		    tokenrotatedat = NOW(),
		    lastseenat = NOW(),
		    ipaddress = COALESCE(NULLIF($3, ''), ipaddress),
		    useragent = COALESCE(NULLIF($4, ''), useragent)
		WHERE tokenhash = $1
		  AND status = 'active'
		  AND revokedat IS NULL
		  AND expiresat > NOW()
		RETURNING` + sessionColumns

	session, err := scanSession(repository.pool.QueryRow(context, query, currentTokenHash, newTokenHash, ipAddress, userAgent))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("postgres_session_repo_rotate_failed: %w", err)
	}

	return session, nil
}

/*
FindByTokenHash resolves a current token hash to its session, regardless
of status.

Parameters:
  - context: context.Context
  - tokenHash: string

Returns:
  - *Session: Hydrated session
  - error: ErrSessionNotFound or execution errors
*/
func (repository *PostgresSessionRepository) FindByTokenHash(context context.Context, tokenHash string) (*Session, error) {
	const query = `
		SELECT` + sessionColumns + `
		FROM auth.session
		WHERE tokenhash = $1`

	session, err := scanSession(repository.pool.QueryRow(context, query, tokenHash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("postgres_session_repo_find_failed: %w", err)
	}

	return session, nil
}

/*
FindActiveByPreviousTokenHash finds the live session whose superseded
token hash matches.

Description: A hit means somebody presented a token that was already
rotated out while the session is still active, the signature of replay.

Parameters:
  - context: context.Context
  - tokenHash: string

Returns:
  - *Session: The live session holding the superseded hash
  - error: ErrSessionNotFound or execution errors
*/
func (repository *PostgresSessionRepository) FindActiveByPreviousTokenHash(context context.Context, tokenHash string) (*Session, error) {
	const query = `
		SELECT` + sessionColumns + `
		FROM auth.session
		WHERE previoustokenhash = $1 AND status = 'active' AND revokedat IS NULL`

	session, err := scanSession(repository.pool.QueryRow(context, query, tokenHash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("postgres_session_repo_find_by_previous_failed: %w", err)
	}

	return session, nil
}

/*
FindByID retrieves a session by its id.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - *Session: Hydrated session
  - error: ErrSessionNotFound or execution errors
*/
func (repository *PostgresSessionRepository) FindByID(context context.Context, id string) (*Session, error) {
	const query = `
		SELECT` + sessionColumns + `
		FROM auth.session
		WHERE id = $1`

	session, err := scanSession(repository.pool.QueryRow(context, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("postgres_session_repo_find_by_id_failed: %w", err)
	}

	return session, nil
}

/*
MarkExpired transitions an active session whose lifetime elapsed.

Parameters:
  - context: context.Context
  - sessionID: string

Returns:
  - error: Execution errors
*/
func (repository *PostgresSessionRepository) MarkExpired(context context.Context, sessionID string) error {
	const query = `
		UPDATE auth.session
		SET status = 'expired'
		WHERE id = $1 AND status = 'active'`

	_, err := repository.pool.Exec(context, query, sessionID)
	if err != nil {
		return fmt.Errorf("postgres_session_repo_mark_expired_failed: %w", err)
	}

	return nil
}

/*
Revoke terminates one session.

Description: Idempotent; already-terminal rows are left untouched.

Parameters:
  - context: context.Context
  - sessionID: string
  - at: time.Time

Returns:
  - error: Execution errors
*/
func (repository *PostgresSessionRepository) Revoke(context context.Context, sessionID string, at time.Time) error {
	const query = `
		UPDATE auth.session
		SET status = 'revoked', revokedat = $2
		WHERE id = $1 AND status = 'active'`

	_, err := repository.pool.Exec(context, query, sessionID, at.UTC())
	if err != nil {
		return fmt.Errorf("postgres_session_repo_revoke_failed: %w", err)
	}

	return nil
}

/*
RevokeAll terminates every active session a principal holds.

Parameters:
  - context: context.Context
  - principal: Principal
  - at: time.Time

Returns:
  - int64: Number of sessions revoked
  - error: Execution errors
*/
func (repository *PostgresSessionRepository) RevokeAll(context context.Context, principal Principal, at time.Time) (int64, error) {
	const query = `
		UPDATE auth.session
		SET status = 'revoked', revokedat = $3
		WHERE (subscriberid = $1 OR staffid = $2) AND status = 'active'`

	tag, err := repository.pool.Exec(context, query,
		nullable(principal.SubscriberID),
		nullable(principal.StaffID),
		at.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("postgres_session_repo_revoke_all_failed: %w", err)
	}

	return tag.RowsAffected(), nil
}

/*
RevokeOthers terminates every active session except the one to keep.

Parameters:
  - context: context.Context
  - principal: Principal
  - keepSessionID: string
  - at: time.Time

Returns:
  - int64: Number of sessions revoked
  - error: Execution errors
*/
func (repository *PostgresSessionRepository) RevokeOthers(context context.Context, principal Principal, keepSessionID string, at time.Time) (int64, error) {
	const query = `
		UPDATE auth.session
		SET status = 'revoked', revokedat = $4
		WHERE (subscriberid = $1 OR staffid = $2) AND id != $3 AND status = 'active'`

	tag, err := repository.pool.Exec(context, query,
		nullable(principal.SubscriberID),
		nullable(principal.StaffID),
		keepSessionID,
		at.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("postgres_session_repo_revoke_others_failed: %w", err)
	}

	return tag.RowsAffected(), nil
}

/*
ListActive returns a principal's active, unexpired sessions, newest first.

Parameters:
  - context: context.Context
  - principal: Principal

Returns:
  - []*Session: Sessions ordered by creation time descending
  - error: Execution errors
*/
func (repository *PostgresSessionRepository) ListActive(context context.Context, principal Principal) ([]*Session, error) {
	const query = `
		SELECT` + sessionColumns + `
		FROM auth.session
		WHERE (subscriberid = $1 OR staffid = $2)
		  AND status = 'active' AND expiresat > NOW()
		ORDER BY createdat DESC`

	rows, err := repository.pool.Query(context, query,
		nullable(principal.SubscriberID),
		nullable(principal.StaffID),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres_session_repo_list_active_failed: %w", err)
	}
	defer rows.Close()

	sessions := make([]*Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres_session_repo_list_active_scan_failed: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres_session_repo_list_active_rows_failed: %w", err)
	}

	return sessions, nil
}

/*
DeleteExpired permanently removes sessions that ended before the cutoff.

Description: Covers overdue active rows and terminal rows alike. Request
paths never call this; the background janitor does.

Parameters:
  - context: context.Context
  - cutoff: time.Time

Returns:
  - int64: Number of rows deleted
  - error: Cleanup failures
*/
func (repository *PostgresSessionRepository) DeleteExpired(context context.Context, cutoff time.Time) (int64, error) {
	const query = `
		DELETE FROM auth.session
		WHERE expiresat <= $1 OR (status != 'active' AND lastseenat <= $1)`

	tag, err := repository.pool.Exec(context, query, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("postgres_session_repo_delete_expired_failed: %w", err)
	}

	return tag.RowsAffected(), nil
}
