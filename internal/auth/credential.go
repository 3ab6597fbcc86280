// Copyright (c) 2026 Northlink Communications. All rights reserved.

package auth

import (
	"time"

	"github.com/northlink/atlas/internal/platform/apperr"
)

// # Provider

// Provider names the backend that vouches for a credential's password.
// Only local credentials carry a password hash; sso and radius rows are
// links to an external authority.
type Provider string

const (
	ProviderLocal  Provider = "local"
	ProviderSSO    Provider = "sso"
	ProviderRADIUS Provider = "radius"
)

// ParseProvider validates a provider string from transport input.
func ParseProvider(value string) (Provider, error) {
	switch Provider(value) {
	case ProviderLocal, ProviderSSO, ProviderRADIUS:
		return Provider(value), nil
	default:
		return "", apperr.ValidationError("unknown credential provider", apperr.FieldError{
			Field:   "provider",
			Message: "must be local, sso, or radius",
		})
	}
}

// # Credential

/*
Credential is a login identity bound to a principal. A principal may hold
several credentials across providers, but login resolution only ever
returns the newest active one for the requested provider.

Email and DisplayName are denormalized from the owning subscriber or
staff row at read time; they are never written through this entity.
*/
type Credential struct {
	ID                 string     `json:"id"`
	Principal          Principal  `json:"principal"`
	Provider           Provider   `json:"provider"`
	Username           string     `json:"username"`
	PasswordHash       string     `json:"-"`
	Email              string     `json:"email,omitempty"`
	DisplayName        string     `json:"display_name,omitempty"`
	FailedAttempts     int        `json:"failed_attempts"`
	LockedUntil        *time.Time `json:"locked_until,omitempty"`
	MustChangePassword bool       `json:"must_change_password"`
	IsActive           bool       `json:"is_active"`
	LastLoginAt        *time.Time `json:"last_login_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Locked reports whether the credential is inside an active lockout
// window. Timestamps are compared in UTC.
func (c *Credential) Locked(now time.Time) bool {
	return c.LockedUntil != nil && c.LockedUntil.After(now.UTC())
}

/*
Validate enforces the write-time invariants for a credential row.

Returns:
  - apperr.AppError with ValidationError when the principal union is
    broken, the provider is unknown, or a local credential is missing
    its username or password hash.
*/
func (c *Credential) Validate() error {
	if err := c.Principal.Validate(); err != nil {
		return err
	}
	if _, err := ParseProvider(string(c.Provider)); err != nil {
		return err
	}
	if c.Provider == ProviderLocal {
		if c.Username == "" {
			return apperr.ValidationError("local credentials require a username")
		}
		if c.PasswordHash == "" {
			return apperr.ValidationError("local credentials require a password hash")
		}
	}
	return nil
}

// # MFA Method

// MethodType names a second-factor mechanism. Only TOTP is verifiable
// today; sms and email rows can be stored but never promoted to primary.
type MethodType string

const (
	MethodTOTP  MethodType = "totp"
	MethodSMS   MethodType = "sms"
	MethodEmail MethodType = "email"
)

/*
MFAMethod is an enrolled second factor. The Secret field holds the TOTP
seed encrypted with the service cipher; it is never serialized.

At most one method per principal may be enabled and primary at once. The
database enforces this with a partial unique index, so a lost promotion
race surfaces as a conflict rather than two primaries.
*/
type MFAMethod struct {
	ID         string     `json:"id"`
	Principal  Principal  `json:"principal"`
	MethodType MethodType `json:"method_type"`
	Label      string     `json:"label"`
	Secret     string     `json:"-"`
	Enabled    bool       `json:"enabled"`
	IsPrimary  bool       `json:"is_primary"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// # Session

// SessionStatus is the lifecycle state of a refresh session. The set is
// closed; stores must reject values outside it.
type SessionStatus string

const (
	SessionActive  SessionStatus = "active"
	SessionRevoked SessionStatus = "revoked"
	SessionExpired SessionStatus = "expired"
)

// Terminal reports whether the status can never transition again.
func (s SessionStatus) Terminal() bool {
	return s == SessionRevoked || s == SessionExpired
}

/*
Session is one device login. TokenHash is the SHA-256 of the currently
valid opaque refresh token; PreviousTokenHash retains the immediately
superseded one so that a replay of a rotated-out token can be recognized
and the whole session revoked.

ExpiresAt is fixed at creation. Rotation refreshes the token material
and LastSeenAt but never extends the session's life.
*/
type Session struct {
	ID                string        `json:"id"`
	Principal         Principal     `json:"principal"`
	Status            SessionStatus `json:"status"`
	TokenHash         string        `json:"-"`
	PreviousTokenHash *string       `json:"-"`
	TokenRotatedAt    *time.Time    `json:"token_rotated_at,omitempty"`
	IPAddress         string        `json:"ip_address,omitempty"`
	UserAgent         string        `json:"user_agent,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	LastSeenAt        time.Time     `json:"last_seen_at"`
	ExpiresAt         time.Time     `json:"expires_at"`
	RevokedAt         *time.Time    `json:"revoked_at,omitempty"`
}

// ExpiredAt reports whether the session's fixed lifetime has elapsed,
// regardless of its stored status.
func (s *Session) ExpiredAt(now time.Time) bool {
	return !s.ExpiresAt.After(now.UTC())
}
