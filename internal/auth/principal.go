// Copyright (c) 2026 Northlink Communications. All rights reserved.

/*
Package auth implements the authentication engine for Atlas: password
login with lockout, TOTP second factors, signed access tokens, rotating
refresh sessions with reuse detection, and the password-reset flow.

# Architecture

The engine (service.go) owns the flow logic and talks to storage through
the repository interfaces in store.go. Postgres implementations back the
durable entities, Redis backs the consumed reset-token set, and the
in-memory implementations exist for tests.
*/
package auth

import (
	"strings"

	"golang.org/x/text/secure/precis"

	"github.com/northlink/atlas/internal/platform/apperr"
)

// # Principal Types

// PrincipalType discriminates the two kinds of account that can
// authenticate against the API.
type PrincipalType string

const (
	PrincipalSubscriber PrincipalType = "subscriber"
	PrincipalStaff      PrincipalType = "staff"
)

/*
Principal identifies the owner of a credential, MFA method, or session.
Exactly one of SubscriberID or StaffID is set; the zero value is invalid.

Principals are passed by value. They carry no state beyond the identity
itself, so there is nothing to share or mutate.
*/
type Principal struct {
	SubscriberID string `json:"subscriber_id,omitempty"`
	StaffID      string `json:"staff_id,omitempty"`
}

// SubscriberPrincipal builds a Principal for a subscriber account.
func SubscriberPrincipal(id string) Principal {
	return Principal{SubscriberID: id}
}

// StaffPrincipal builds a Principal for a staff account.
func StaffPrincipal(id string) Principal {
	return Principal{StaffID: id}
}

/*
PrincipalFrom reconstructs a Principal from its type discriminator and
identifier, the shape carried inside token claims.

Returns:
  - apperr.AppError with ValidationError when the type is unknown or the
    identifier is empty.
*/
func PrincipalFrom(principalType PrincipalType, id string) (Principal, error) {
	if id == "" {
		return Principal{}, apperr.ValidationError("principal identifier is required")
	}

	switch principalType {
	case PrincipalSubscriber:
		return SubscriberPrincipal(id), nil
	case PrincipalStaff:
		return StaffPrincipal(id), nil
	default:
		return Principal{}, apperr.ValidationError("unknown principal type", apperr.FieldError{
			Field:   "principal_type",
			Message: "must be subscriber or staff",
		})
	}
}

// Type reports which kind of account this principal refers to.
func (p Principal) Type() PrincipalType {
	if p.StaffID != "" {
		return PrincipalStaff
	}
	return PrincipalSubscriber
}

// ID returns the identifier of whichever side of the union is set.
func (p Principal) ID() string {
	if p.StaffID != "" {
		return p.StaffID
	}
	return p.SubscriberID
}

// IsZero reports whether neither identifier is set.
func (p Principal) IsZero() bool {
	return p.SubscriberID == "" && p.StaffID == ""
}

/*
Validate enforces the union invariant: exactly one identifier set.

Returns:
  - apperr.AppError with ValidationError when both or neither are set.
*/
func (p Principal) Validate() error {
	if p.SubscriberID != "" && p.StaffID != "" {
		return apperr.ValidationError("principal cannot reference both a subscriber and a staff account")
	}
	if p.IsZero() {
		return apperr.ValidationError("principal must reference a subscriber or a staff account")
	}
	return nil
}

/*
NormalizeIdentifier canonicalizes a login identifier (username or email)
before lookup so that case and Unicode representation differences do not
produce distinct accounts.

Falls back to a plain lowercase when the identifier contains characters
the UsernameCaseMapped profile rejects; the database comparison is
case-insensitive either way.
*/
func NormalizeIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)

	normalized, err := precis.UsernameCaseMapped.String(identifier)
	if err != nil {
		return strings.ToLower(identifier)
	}

	return normalized
}
