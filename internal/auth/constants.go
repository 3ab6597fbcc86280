// Copyright (c) 2026 Northlink Communications. All rights reserved.

package auth

import "time"

// Lifecycle defaults. Each can be overridden by environment variables or
// persisted settings; these values apply when neither is present.
const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour
	DefaultMFATokenTTL     = 5 * time.Minute
	DefaultResetTokenTTL   = 60 * time.Minute

	DefaultTOTPIssuer = "Northlink"

	MaxFailedLoginAttempts = 5
	LockoutDuration        = 15 * time.Minute

	RefreshTokenByteLength = 32

	MinPasswordLength     = 10
	MaxPasswordLength     = 128
	MaxLoginIdentifierLen = 254
	MaxUserAgentLen       = 512
)

// JSON field names shared between request payloads and validation output.
const (
	FieldIdentifier      = "identifier"
	FieldPassword        = "password"
	FieldProvider        = "provider"
	FieldEmail           = "email"
	FieldCode            = "code"
	FieldLabel           = "label"
	FieldMFAToken        = "mfa_token"
	FieldMethodID        = "method_id"
	FieldToken           = "token"
	FieldRefreshToken    = "refresh_token"
	FieldCurrentPassword = "current_password"
	FieldNewPassword     = "new_password"
)
