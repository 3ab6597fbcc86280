// Copyright (c) 2026 Northlink Communications. All rights reserved.

package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/northlink/atlas/internal/platform/apperr"
	"github.com/northlink/atlas/internal/platform/ctxutil"
	"github.com/northlink/atlas/internal/platform/sec"
	"github.com/northlink/atlas/pkg/uuid"
)

// # Engine

// Options carries the tunable lifetimes of the engine. Zero values fall
// back to the package defaults.
type Options struct {
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	MFATokenTTL     time.Duration
	ResetTokenTTL   time.Duration
}

func (options Options) withDefaults() Options {
	if options.AccessTokenTTL <= 0 {
		options.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if options.RefreshTokenTTL <= 0 {
		options.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
	if options.MFATokenTTL <= 0 {
		options.MFATokenTTL = DefaultMFATokenTTL
	}
	if options.ResetTokenTTL <= 0 {
		options.ResetTokenTTL = DefaultResetTokenTTL
	}
	return options
}

/*
Engine orchestrates the authentication flows: login, the MFA challenge,
refresh rotation, logout, and the password lifecycle.

# Review Process

This service is critical for security. Any change to the login ordering,
the rotation guard, or the reuse-detection response must be reviewed by
the security team.
*/
type Engine struct {
	credentials     CredentialRepository
	methods         MFAMethodRepository
	sessions        SessionRepository
	usedResetTokens UsedResetTokenStore
	claims          ClaimsLoader
	mailer          Mailer
	tokens          *sec.TokenService
	mfa             *MFAService
	options         Options
}

// NewEngine constructs an [Engine] with its collaborators. The claims
// loader and mailer may be nil: tokens are then issued without grants
// and reset emails are dropped, which only test wiring should rely on.
func NewEngine(
	credentials CredentialRepository,
	methods MFAMethodRepository,
	sessions SessionRepository,
	usedResetTokens UsedResetTokenStore,
	claimsLoader ClaimsLoader,
	mailer Mailer,
	tokens *sec.TokenService,
	mfa *MFAService,
	options Options,
) *Engine {
	return &Engine{
		credentials:     credentials,
		methods:         methods,
		sessions:        sessions,
		usedResetTokens: usedResetTokens,
		claims:          claimsLoader,
		mailer:          mailer,
		tokens:          tokens,
		mfa:             mfa,
		options:         options.withDefaults(),
	}
}

// # Login Flow

// LoginInput holds the data required to begin a password login.
type LoginInput struct {
	Identifier string
	Password   string
	Provider   Provider
	IPAddress  string
	UserAgent  string
}

// TokenPair is the issued credential pair for one session.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	SessionID        string    `json:"session_id"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// LoginResult is either a finished login (Tokens set) or an MFA
// challenge (MFARequired with the short-lived challenge token).
type LoginResult struct {
	MFARequired bool       `json:"mfa_required"`
	MFAToken    string     `json:"mfa_token,omitempty"`
	Tokens      *TokenPair `json:"tokens,omitempty"`
}

/*
Login authenticates a password and either issues a session or hands back
an MFA challenge.

Description: The flow is ordered lockout check, password check,
must-change gate, MFA gate, session issue. A locked account fails the
same way regardless of password correctness, and a failed attempt during
the lock window neither increments the counter nor extends the lock.

Parameters:
  - context: context.Context
  - input: LoginInput

Returns:
  - *LoginResult: Tokens, or an MFA challenge
  - error: ErrInvalidCredentials, ErrAccountLocked, ErrPasswordResetRequired,
    or storage failures
*/
func (engine *Engine) Login(context context.Context, input LoginInput) (*LoginResult, error) {
	if input.Identifier == "" || input.Password == "" {
		return nil, ErrInvalidCredentials
	}
	if input.Provider == "" {
		input.Provider = ProviderLocal
	}

	// Resolve the identifier to the newest active credential. Unknown
	// identifiers and wrong passwords are indistinguishable to callers.
	identifier := NormalizeIdentifier(input.Identifier)
	credential, err := engine.credentials.FindForLogin(context, identifier, input.Provider)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if credential.Locked(now) {
		ctxutil.GetLogger(context).Warn("login rejected on locked account",
			"credential_id", credential.ID,
			"locked_until", credential.LockedUntil,
		)
		return nil, ErrAccountLocked
	}

	// Password verification. Non-local rows carry no hash and always fail.
	if !sec.CheckPasswordHash(input.Password, credential.PasswordHash) {
		if credential.Provider == ProviderLocal {
			updated, failureErr := engine.credentials.RecordFailure(context, credential.ID, MaxFailedLoginAttempts, LockoutDuration)
			if failureErr != nil {
				return nil, fmt.Errorf("auth_engine_record_failure_failed: %w", failureErr)
			}
			ctxutil.GetLogger(context).Warn("login failed",
				"credential_id", credential.ID,
				"failed_attempts", updated.FailedAttempts,
				"locked", updated.LockedUntil != nil,
			)
		}
		return nil, ErrInvalidCredentials
	}

	// An administratively flagged credential cannot proceed until the
	// password is changed through the reset flow.
	if credential.MustChangePassword {
		return nil, ErrPasswordResetRequired
	}

	// MFA gate: an enrolled primary factor turns the login into a
	// challenge instead of a session.
	enrolled, err := engine.mfa.Enrolled(context, credential.Principal)
	if err != nil {
		return nil, err
	}
	if enrolled {
		challenge, err := engine.tokens.Issue(sec.AuthClaims{
			PrincipalID:   credential.Principal.ID(),
			PrincipalType: string(credential.Principal.Type()),
			TokenType:     sec.TokenTypeMFA,
		}, engine.options.MFATokenTTL)
		if err != nil {
			return nil, fmt.Errorf("auth_engine_issue_mfa_token_failed: %w", err)
		}
		return &LoginResult{MFARequired: true, MFAToken: challenge}, nil
	}

	if err := engine.credentials.RecordSuccess(context, credential.ID, now); err != nil {
		return nil, err
	}

	tokens, err := engine.issueSession(context, credential.Principal, input.IPAddress, input.UserAgent)
	if err != nil {
		return nil, err
	}

	return &LoginResult{Tokens: tokens}, nil
}

// VerifyMFAInput completes a challenged login.
type VerifyMFAInput struct {
	MFAToken  string
	Code      string
	IPAddress string
	UserAgent string
}

/*
VerifyMFA exchanges a challenge token plus a valid TOTP code for a
session.

Parameters:
  - context: context.Context
  - input: VerifyMFAInput

Returns:
  - *LoginResult: Tokens on success
  - error: ErrInvalidOrExpiredToken, ErrInvalidMFACode, ErrMFAMethodNotFound
*/
func (engine *Engine) VerifyMFA(context context.Context, input VerifyMFAInput) (*LoginResult, error) {
	claims, err := engine.tokens.Decode(input.MFAToken, sec.TokenTypeMFA)
	if err != nil {
		return nil, ErrInvalidOrExpiredToken
	}

	principal, err := PrincipalFrom(PrincipalType(claims.PrincipalType), claims.PrincipalID)
	if err != nil {
		return nil, ErrInvalidOrExpiredToken
	}

	if err := engine.mfa.VerifyCode(context, principal, input.Code); err != nil {
		return nil, err
	}

	// Stamp the successful login on the credential. A principal that
	// lost its local credential between challenge and verify still gets
	// a session; the stamp is bookkeeping, not a gate.
	if credential, err := engine.credentials.FindByPrincipal(context, principal, ProviderLocal); err == nil {
		if err := engine.credentials.RecordSuccess(context, credential.ID, time.Now().UTC()); err != nil {
			return nil, err
		}
	}

	tokens, err := engine.issueSession(context, principal, input.IPAddress, input.UserAgent)
	if err != nil {
		return nil, err
	}

	return &LoginResult{Tokens: tokens}, nil
}

// issueSession mints a refresh session and its first access token. The
// opaque refresh token leaves this method exactly once; only its hash is
// stored.
func (engine *Engine) issueSession(context context.Context, principal Principal, ipAddress, userAgent string) (*TokenPair, error) {
	refreshToken, err := sec.GenerateSecureToken(RefreshTokenByteLength)
	if err != nil {
		return nil, fmt.Errorf("auth_engine_generate_refresh_failed: %w", err)
	}

	now := time.Now().UTC()
	session := &Session{
		ID:         uuid.New(),
		Principal:  principal,
		Status:     SessionActive,
		TokenHash:  sec.HashToken(refreshToken),
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(engine.options.RefreshTokenTTL),
	}
	if err := engine.sessions.Create(context, session); err != nil {
		return nil, err
	}

	accessToken, accessExpiresAt, err := engine.issueAccessToken(context, principal, session.ID)
	if err != nil {
		return nil, err
	}

	ctxutil.GetLogger(context).Info("session issued",
		"session_id", session.ID,
		"principal_type", string(principal.Type()),
		"principal_id", principal.ID(),
	)

	return &TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		SessionID:        session.ID,
		AccessExpiresAt:  accessExpiresAt,
		RefreshExpiresAt: session.ExpiresAt,
	}, nil
}

// issueAccessToken re-resolves grants and signs a fresh access token.
// Grants are loaded on every issuance, refresh included, so entitlement
// changes propagate within one access-token lifetime.
func (engine *Engine) issueAccessToken(context context.Context, principal Principal, sessionID string) (string, time.Time, error) {
	var roles, scopes []string
	if engine.claims != nil {
		var err error
		roles, scopes, err = engine.claims.Load(context, principal)
		if err != nil {
			return "", time.Time{}, fmt.Errorf("auth_engine_load_claims_failed: %w", err)
		}
	}

	expiresAt := time.Now().UTC().Add(engine.options.AccessTokenTTL)
	accessToken, err := engine.tokens.Issue(sec.AuthClaims{
		PrincipalID:   principal.ID(),
		PrincipalType: string(principal.Type()),
		SessionID:     sessionID,
		Roles:         roles,
		Scopes:        scopes,
		TokenType:     sec.TokenTypeAccess,
	}, engine.options.AccessTokenTTL)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth_engine_issue_access_token_failed: %w", err)
	}

	return accessToken, expiresAt, nil
}

// # Refresh Flow

/*
Refresh rotates a refresh token and issues a fresh access token.

Description: The happy path is a single guarded swap in storage; exactly
one presenter of a given token can win it. A miss is then classified:
a replay of a superseded token revokes the whole session and reports
theft, an overdue session is transitioned to expired, and everything
else is indistinguishable from a token that never existed. The loser of
a concurrent rotation race is treated as a replay on purpose.

Parameters:
  - context: context.Context
  - refreshToken: string (the opaque token as issued)
  - ipAddress: string
  - userAgent: string

Returns:
  - *TokenPair: Rotated refresh token plus new access token
  - error: ErrRefreshReuseDetected, ErrInvalidOrExpiredToken, or storage failures
*/
func (engine *Engine) Refresh(context context.Context, refreshToken, ipAddress, userAgent string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, ErrInvalidOrExpiredToken
	}

	presentedHash := sec.HashToken(refreshToken)

	newToken, err := sec.GenerateSecureToken(RefreshTokenByteLength)
	if err != nil {
		return nil, fmt.Errorf("auth_engine_generate_refresh_failed: %w", err)
	}

	session, err := engine.sessions.Rotate(context, presentedHash, sec.HashToken(newToken), ipAddress, userAgent)
	if err == nil {
		accessToken, accessExpiresAt, err := engine.issueAccessToken(context, session.Principal, session.ID)
		if err != nil {
			return nil, err
		}

		return &TokenPair{
			AccessToken:      accessToken,
			RefreshToken:     newToken,
			SessionID:        session.ID,
			AccessExpiresAt:  accessExpiresAt,
			RefreshExpiresAt: session.ExpiresAt,
		}, nil
	}

	if !apperr.HasCode(err, ErrSessionNotFound.Code) {
		return nil, err
	}

	return nil, engine.classifyRotationMiss(context, presentedHash)
}

// classifyRotationMiss decides why a guarded rotation found no row. A
// storage failure during classification propagates as-is: an outage must
// never be reported to the client as a dead token.
func (engine *Engine) classifyRotationMiss(context context.Context, presentedHash string) error {
	// Replay of a superseded token against a live session means the
	// token was stolen somewhere along the chain. Kill the session.
	session, err := engine.sessions.FindActiveByPreviousTokenHash(context, presentedHash)
	if err == nil {
		if revokeErr := engine.sessions.Revoke(context, session.ID, time.Now().UTC()); revokeErr != nil {
			return revokeErr
		}
		ctxutil.GetLogger(context).Warn("refresh token reuse detected, session revoked",
			"session_id", session.ID,
			"principal_type", string(session.Principal.Type()),
			"principal_id", session.Principal.ID(),
		)
		return ErrRefreshReuseDetected
	}
	if !apperr.HasCode(err, ErrSessionNotFound.Code) {
		return fmt.Errorf("auth_engine_classify_rotation_miss_failed: %w", err)
	}

	// A current-hash match that the guard skipped is either an overdue
	// active session or one already terminal.
	session, err = engine.sessions.FindByTokenHash(context, presentedHash)
	if err == nil {
		if session.Status == SessionActive && session.ExpiredAt(time.Now()) {
			if err := engine.sessions.MarkExpired(context, session.ID); err != nil {
				return err
			}
		}
		return ErrInvalidOrExpiredToken
	}
	if !apperr.HasCode(err, ErrSessionNotFound.Code) {
		return fmt.Errorf("auth_engine_classify_rotation_miss_failed: %w", err)
	}

	return ErrInvalidOrExpiredToken
}

// # Logout & Session Management

/*
Logout revokes the session identified by its current refresh token.

Description: Only the current token of an active session can log out.
A superseded or unknown token gets a not-found, never a silent success,
so a client holding a stale token learns its session state is wrong.

Parameters:
  - context: context.Context
  - refreshToken: string

Returns:
  - error: ErrSessionNotFound or storage failures
*/
func (engine *Engine) Logout(context context.Context, refreshToken string) error {
	if refreshToken == "" {
		return ErrSessionNotFound
	}

	session, err := engine.sessions.FindByTokenHash(context, sec.HashToken(refreshToken))
	if err != nil {
		return err
	}
	if session.Status != SessionActive {
		return ErrSessionNotFound
	}

	if err := engine.sessions.Revoke(context, session.ID, time.Now().UTC()); err != nil {
		return err
	}

	ctxutil.GetLogger(context).Info("session revoked by logout", "session_id", session.ID)
	return nil
}

// ListSessions returns the principal's active sessions, newest first.
func (engine *Engine) ListSessions(context context.Context, principal Principal) ([]*Session, error) {
	return engine.sessions.ListActive(context, principal)
}

// RevokeOtherSessions terminates every session except the caller's own
// and reports how many were revoked.
func (engine *Engine) RevokeOtherSessions(context context.Context, principal Principal, keepSessionID string) (int64, error) {
	revoked, err := engine.sessions.RevokeOthers(context, principal, keepSessionID, time.Now().UTC())
	if err != nil {
		return 0, err
	}

	if revoked > 0 {
		ctxutil.GetLogger(context).Info("other sessions revoked",
			"kept_session_id", keepSessionID,
			"revoked", revoked,
		)
	}

	return revoked, nil
}

// PurgeExpiredSessions removes sessions whose lifetime ended before the
// cutoff. Called by the background janitor.
func (engine *Engine) PurgeExpiredSessions(context context.Context, cutoff time.Time) (int64, error) {
	return engine.sessions.DeleteExpired(context, cutoff)
}

// # Password Lifecycle

// ChangePasswordInput is an authenticated password change.
type ChangePasswordInput struct {
	Principal       Principal
	SessionID       string
	CurrentPassword string
	NewPassword     string
}

/*
ChangePassword verifies the current password and installs a new one.

Description: The change clears the lockout counter and any must-change
flag, then revokes every other session the principal holds. The caller's
own session stays alive.

Parameters:
  - context: context.Context
  - input: ChangePasswordInput

Returns:
  - error: ErrInvalidCredentials, ErrPasswordUnchanged, ErrAccountNotFound
*/
func (engine *Engine) ChangePassword(context context.Context, input ChangePasswordInput) error {
	credential, err := engine.credentials.FindByPrincipal(context, input.Principal, ProviderLocal)
	if err != nil {
		return err
	}

	if !sec.CheckPasswordHash(input.CurrentPassword, credential.PasswordHash) {
		return ErrInvalidCredentials
	}
	if input.NewPassword == input.CurrentPassword {
		return ErrPasswordUnchanged
	}

	newHash, err := sec.HashPassword(input.NewPassword)
	if err != nil {
		return fmt.Errorf("auth_engine_hash_failed: %w", err)
	}
	if err := engine.credentials.UpdatePassword(context, credential.ID, newHash); err != nil {
		return err
	}

	revoked, err := engine.sessions.RevokeOthers(context, input.Principal, input.SessionID, time.Now().UTC())
	if err != nil {
		return err
	}

	ctxutil.GetLogger(context).Info("password changed",
		"credential_id", credential.ID,
		"other_sessions_revoked", revoked,
	)

	return nil
}

/*
RequestPasswordReset starts the forgotten-password flow.

Description: Always succeeds from the caller's perspective when the
email is unknown, so the endpoint cannot be used to enumerate accounts.
The signed reset token embeds the account's current email and a unique
id; delivery failures are logged and swallowed.

Parameters:
  - context: context.Context
  - email: string

Returns:
  - error: Storage failures only
*/
func (engine *Engine) RequestPasswordReset(context context.Context, email string) error {
	credential, err := engine.credentials.FindByEmail(context, NormalizeIdentifier(email))
	if err != nil {
		if apperr.HasCode(err, ErrAccountNotFound.Code) {
			ctxutil.GetLogger(context).Info("password reset requested for unknown email")
			return nil
		}
		return err
	}

	expiresAt := time.Now().UTC().Add(engine.options.ResetTokenTTL)
	resetToken, err := engine.tokens.Issue(sec.AuthClaims{
		RegisteredClaims: jwt.RegisteredClaims{ID: uuid.New()},
		PrincipalID:      credential.Principal.ID(),
		PrincipalType:    string(credential.Principal.Type()),
		Email:            credential.Email,
		TokenType:        sec.TokenTypePasswordReset,
	}, engine.options.ResetTokenTTL)
	if err != nil {
		return fmt.Errorf("auth_engine_issue_reset_token_failed: %w", err)
	}

	if engine.mailer != nil {
		if err := engine.mailer.SendPasswordReset(context, credential.Email, credential.DisplayName, resetToken, expiresAt); err != nil {
			ctxutil.GetLogger(context).Error("password reset email delivery failed",
				"credential_id", credential.ID,
				"error", err,
			)
		}
	}

	return nil
}

/*
ResetPassword consumes a reset token and installs a new password.

Description: The token is single-use and bound to the email it was
issued for; if the account's email changed in the meantime the token is
dead. A successful reset revokes every session the principal holds.

Parameters:
  - context: context.Context
  - resetToken: string
  - newPassword: string

Returns:
  - error: ErrInvalidOrExpiredToken, ErrAccountNotFound, or storage failures
*/
func (engine *Engine) ResetPassword(context context.Context, resetToken, newPassword string) error {
	claims, err := engine.tokens.Decode(resetToken, sec.TokenTypePasswordReset)
	if err != nil {
		return ErrInvalidOrExpiredToken
	}
	if claims.ID == "" {
		return ErrInvalidOrExpiredToken
	}

	used, err := engine.usedResetTokens.IsUsed(context, claims.ID)
	if err != nil {
		return fmt.Errorf("auth_engine_used_token_check_failed: %w", err)
	}
	if used {
		return ErrInvalidOrExpiredToken
	}

	principal, err := PrincipalFrom(PrincipalType(claims.PrincipalType), claims.PrincipalID)
	if err != nil {
		return ErrInvalidOrExpiredToken
	}

	credential, err := engine.credentials.FindByPrincipal(context, principal, ProviderLocal)
	if err != nil {
		return err
	}

	// The token vouches for the email it was sent to. An email changed
	// since issuance invalidates every outstanding reset token.
	if !strings.EqualFold(credential.Email, claims.Email) {
		return ErrInvalidOrExpiredToken
	}

	newHash, err := sec.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("auth_engine_hash_failed: %w", err)
	}
	if err := engine.credentials.UpdatePassword(context, credential.ID, newHash); err != nil {
		return err
	}

	remaining := time.Until(claims.ExpiresAt.Time)
	if err := engine.usedResetTokens.MarkUsed(context, claims.ID, remaining); err != nil {
		return fmt.Errorf("auth_engine_mark_used_failed: %w", err)
	}

	revoked, err := engine.sessions.RevokeAll(context, principal, time.Now().UTC())
	if err != nil {
		return err
	}

	ctxutil.GetLogger(context).Info("password reset completed",
		"credential_id", credential.ID,
		"sessions_revoked", revoked,
	)

	return nil
}
