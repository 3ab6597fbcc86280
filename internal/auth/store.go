// Copyright (c) 2026 Northlink Communications. All rights reserved.

package auth

import (
	"context"
	"time"
)

// # Repository Contracts
//
// The engine talks to storage exclusively through these interfaces.
// Production wiring uses the Postgres implementations plus the Redis
// used-token store; tests use the in-memory ones.

/*
CredentialRepository persists login identities and their lockout state.

Implementations return the package sentinels (ErrInvalidCredentials,
ErrAccountNotFound) for missing rows so the engine never has to map a
driver error itself.
*/
type CredentialRepository interface {
	// Create inserts a credential after Validate has passed.
	Create(ctx context.Context, credential *Credential) error

	// FindForLogin resolves a normalized identifier (username or the
	// owning principal's email, both case-insensitive) to the newest
	// active credential for the given provider. Missing or inactive
	// rows yield ErrInvalidCredentials.
	FindForLogin(ctx context.Context, identifier string, provider Provider) (*Credential, error)

	// FindByPrincipal returns the newest active credential a principal
	// holds for the given provider, or ErrAccountNotFound.
	FindByPrincipal(ctx context.Context, principal Principal, provider Provider) (*Credential, error)

	// FindByEmail resolves an email address to the newest active local
	// credential whose owning principal carries it, or ErrAccountNotFound.
	FindByEmail(ctx context.Context, email string) (*Credential, error)

	// RecordFailure increments the failed-attempt counter and, when the
	// incremented count reaches maxAttempts, opens a lockout window of
	// lockFor. Counter and lock are computed in one statement so
	// concurrent failures cannot both land on the threshold. Returns
	// the post-update state.
	RecordFailure(ctx context.Context, credentialID string, maxAttempts int, lockFor time.Duration) (*Credential, error)

	// RecordSuccess clears the failure counter and lockout and stamps
	// last_login_at.
	RecordSuccess(ctx context.Context, credentialID string, at time.Time) error

	// UpdatePassword replaces the password hash, clears the failure
	// counter and lockout, and drops the must_change_password flag.
	UpdatePassword(ctx context.Context, credentialID string, newHash string) error
}

/*
MFAMethodRepository persists enrolled second factors.

Promote is the only write that touches the primary flag; it clears the
principal's other primaries and promotes the target in one transaction.
A lost race against a concurrent promotion returns ErrPrimaryMFAConflict.
*/
type MFAMethodRepository interface {
	Create(ctx context.Context, method *MFAMethod) error

	// FindByID returns a method by id, or ErrMFAMethodNotFound.
	FindByID(ctx context.Context, id string) (*MFAMethod, error)

	// FindPrimary returns the principal's enabled primary method of the
	// given type, or ErrMFAMethodNotFound when none is enrolled.
	FindPrimary(ctx context.Context, principal Principal, methodType MethodType) (*MFAMethod, error)

	// Promote enables the method, marks it primary, stamps verifiedAt,
	// and demotes any sibling primary the principal had.
	Promote(ctx context.Context, id string, verifiedAt time.Time) (*MFAMethod, error)
}

/*
SessionRepository persists refresh sessions and implements the rotation
primitive the reuse-detection scheme depends on.
*/
type SessionRepository interface {
	Create(ctx context.Context, session *Session) error

	// Rotate atomically swaps the session matching currentTokenHash to
	// newTokenHash, shifting the old hash into previous_token_hash. The
	// swap only lands on a row that is active, unrevoked, and unexpired;
	// anything else returns ErrSessionNotFound and the caller decides
	// whether the miss was theft, expiry, or garbage.
	Rotate(ctx context.Context, currentTokenHash, newTokenHash, ipAddress, userAgent string) (*Session, error)

	// FindByTokenHash looks a session up by its current token hash,
	// regardless of status. Missing rows yield ErrSessionNotFound.
	FindByTokenHash(ctx context.Context, tokenHash string) (*Session, error)

	// FindActiveByPreviousTokenHash finds the live session whose
	// superseded token matches, the signature of a replayed rotation.
	FindActiveByPreviousTokenHash(ctx context.Context, tokenHash string) (*Session, error)

	// FindByID returns a session by id, or ErrSessionNotFound.
	FindByID(ctx context.Context, id string) (*Session, error)

	// MarkExpired transitions an active session whose lifetime elapsed.
	MarkExpired(ctx context.Context, sessionID string) error

	// Revoke terminates one session. Idempotent on already-terminal rows.
	Revoke(ctx context.Context, sessionID string, at time.Time) error

	// RevokeAll terminates every active session a principal holds and
	// returns how many were revoked.
	RevokeAll(ctx context.Context, principal Principal, at time.Time) (int64, error)

	// RevokeOthers terminates every active session except keepSessionID.
	RevokeOthers(ctx context.Context, principal Principal, keepSessionID string, at time.Time) (int64, error)

	// ListActive returns a principal's active, unexpired sessions,
	// newest first.
	ListActive(ctx context.Context, principal Principal) ([]*Session, error)

	// DeleteExpired removes terminal and overdue sessions older than
	// the cutoff. Used by the janitor, never by request paths.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// UsedResetTokenStore remembers consumed password-reset token IDs until
// the tokens would have expired anyway, making each reset single-use.
type UsedResetTokenStore interface {
	MarkUsed(ctx context.Context, tokenID string, ttl time.Duration) error
	IsUsed(ctx context.Context, tokenID string) (bool, error)
}

// ClaimsLoader resolves the roles and permission scopes to embed in an
// access token. Claims are re-resolved on every issuance, including
// refresh, so entitlement changes propagate within one access TTL.
type ClaimsLoader interface {
	Load(ctx context.Context, principal Principal) (roles []string, scopes []string, err error)
}

// Mailer delivers account emails. The engine treats delivery failures as
// log-and-continue; it never leaks them to the caller.
type Mailer interface {
	SendPasswordReset(ctx context.Context, toEmail, displayName, resetToken string, expiresAt time.Time) error
}
