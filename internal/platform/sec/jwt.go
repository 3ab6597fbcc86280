// Copyright (c) 2026 Northlink Communications. All rights reserved.

// Package sec provides cryptographic primitives and token management.
//
// # Architecture
//
// This package isolates security-sensitive code (hashing, token signing,
// secret encryption) from the domain logic. It acts as an Infrastructure
// service injected into the Application layer via small interfaces.
package sec

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType discriminates what a signed claim set may be used for.
//
// Decoding enforces an exact match on the embedded type, so an MFA challenge
// token or a password-reset token can never be replayed as an access token.
type TokenType string

const (
	TokenTypeAccess        TokenType = "access"
	TokenTypeMFA           TokenType = "mfa"
	TokenTypePasswordReset TokenType = "password_reset"
)

// AuthClaims represents the payload embedded inside a signed Atlas token.
//
// # Why custom claims?
//
// By embedding the principal identity, session ID, and authorization grants
// directly inside the token, RBAC-gated endpoints can reconstruct the active
// caller context WITHOUT querying the database on every single API request.
type AuthClaims struct {
	jwt.RegisteredClaims

	// Custom application claims are abbreviated to keep the payload small.
	PrincipalID   string    `json:"pid"`
	PrincipalType string    `json:"ptp"`
	SessionID     string    `json:"sid,omitempty"`
	Roles         []string  `json:"rol,omitempty"`
	Scopes        []string  `json:"scp,omitempty"`
	Email         string    `json:"eml,omitempty"`
	TokenType     TokenType `json:"typ"`
}

// TokenService handles generation and verification of signed tokens using a
// symmetric HMAC secret resolved once at startup.
type TokenService struct {
	secret []byte
	method jwt.SigningMethod
	issuer string
}

// NewTokenService creates a [TokenService] for the given secret and HMAC
// algorithm name (HS256, HS384, HS512).
func NewTokenService(secret, algorithm, issuer string) (*TokenService, error) {
	if secret == "" {
		return nil, fmt.Errorf("sec: signing secret is not configured")
	}

	var method jwt.SigningMethod
	switch algorithm {
	case "", "HS256":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("sec: unsupported signing algorithm %q", algorithm)
	}

	return &TokenService{
		secret: []byte(secret),
		method: method,
		issuer: issuer,
	}, nil
}

// Issue signs the given claims with the configured lifetime.
//
// The iat/exp pair is stamped from the signer's own clock; callers supply
// only the identity payload and the TTL.
func (service *TokenService) Issue(claims AuthClaims, timeToLive time.Duration) (string, error) {
	currentTime := time.Now().UTC()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   claims.PrincipalID,
		Issuer:    service.issuer,
		IssuedAt:  jwt.NewNumericDate(currentTime),
		ExpiresAt: jwt.NewNumericDate(currentTime.Add(timeToLive)),
		ID:        claims.RegisteredClaims.ID,
	}

	token := jwt.NewWithClaims(service.method, claims)
	signedToken, err := token.SignedString(service.secret)
	if err != nil {
		return "", fmt.Errorf("sec: failed to sign token: %w", err)
	}

	return signedToken, nil
}

// Decode checks the signature, expiry, and declared purpose of a token.
//
// A structurally valid token whose embedded type differs from expectedType
// fails exactly like a forged one.
func (service *TokenService) Decode(tokenString string, expectedType TokenType) (*AuthClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AuthClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("sec: unexpected signing method: %v", token.Header["alg"])
		}
		return service.secret, nil
	})

	if err != nil {
		return nil, fmt.Errorf("sec: invalid token: %w", err)
	}

	claims, ok := token.Claims.(*AuthClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("sec: invalid token claims")
	}

	if claims.TokenType != expectedType {
		return nil, fmt.Errorf("sec: token type mismatch: got %q, want %q", claims.TokenType, expectedType)
	}

	return claims, nil
}
