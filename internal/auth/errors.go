// Copyright (c) 2026 Northlink Communications. All rights reserved.

package auth

import (
	"net/http"

	"github.com/northlink/atlas/internal/platform/apperr"
)

// # Error Taxonomy
//
// Stable machine-readable codes for every way an authentication flow can
// fail. Handlers return these untouched; clients branch on Code, not on
// message text.

var (
	// ErrInvalidCredentials covers unknown identifiers, wrong passwords,
	// and non-password-capable credentials alike, so a caller cannot
	// probe which accounts exist.
	ErrInvalidCredentials = apperr.New("INVALID_CREDENTIALS", "Invalid login credentials.", http.StatusUnauthorized)

	// ErrAccountLocked fires while a lockout window is open, independent
	// of whether the presented password was correct.
	ErrAccountLocked = apperr.New("ACCOUNT_LOCKED", "Account is temporarily locked after too many failed attempts.", http.StatusForbidden)

	ErrAccountDisabled = apperr.New("ACCOUNT_DISABLED", "Account is disabled.", http.StatusForbidden)

	// ErrPasswordResetRequired gates login when must_change_password is
	// set. 428 tells the client to route into the reset flow.
	ErrPasswordResetRequired = apperr.New("PASSWORD_RESET_REQUIRED", "Password must be changed before logging in.", http.StatusPreconditionRequired)

	ErrInvalidMFACode    = apperr.New("INVALID_MFA_CODE", "The one-time code is not valid.", http.StatusUnauthorized)
	ErrMFAMethodNotFound = apperr.New("MFA_METHOD_NOT_FOUND", "No such MFA method.", http.StatusNotFound)

	// ErrPrimaryMFAConflict is the lost side of a concurrent promotion
	// race; the winning method stays primary.
	ErrPrimaryMFAConflict = apperr.New("PRIMARY_MFA_CONFLICT", "Another MFA method was promoted to primary concurrently.", http.StatusConflict)

	// ErrInvalidOrExpiredToken covers malformed, expired, wrong-type,
	// and already-consumed tokens of every kind.
	ErrInvalidOrExpiredToken = apperr.New("INVALID_OR_EXPIRED_TOKEN", "The token is invalid or has expired.", http.StatusUnauthorized)

	// ErrRefreshReuseDetected means a superseded refresh token was
	// replayed against a live session. The session has been revoked.
	ErrRefreshReuseDetected = apperr.New("REFRESH_REUSE_DETECTED", "Refresh token reuse detected; the session has been revoked.", http.StatusUnauthorized)

	ErrSessionNotFound = apperr.New("SESSION_NOT_FOUND", "Session not found.", http.StatusNotFound)

	ErrAccountNotFound = apperr.New("ACCOUNT_NOT_FOUND", "Account not found.", http.StatusNotFound)

	ErrPasswordUnchanged = apperr.New("PASSWORD_UNCHANGED", "The new password must differ from the current one.", http.StatusUnprocessableEntity)
)
