// Copyright (c) 2026 Northlink Communications. All rights reserved.

package middleware

import (
	"net/http"
	"strings"

	"github.com/northlink/atlas/internal/platform/constants"
	"github.com/northlink/atlas/internal/platform/ctxutil"
	"github.com/northlink/atlas/internal/platform/sec"
)

// TokenVerifier defines the interface needed to verify access tokens here.
//
// # Why an interface?
//
// Defining TokenVerifier locally decouples the middleware from the token
// service implementation, allowing us to easily inject mocks during unit
// testing.
type TokenVerifier interface {
	Decode(tokenString string, expectedType sec.TokenType) (*sec.AuthClaims, error)
}

// Authenticate decodes a Bearer access token, if present, and attaches the
// caller claims to the request context.
//
// Requests without a token (or with an invalid one) continue unauthenticated;
// enforcement happens per route via [RequireAuth]. Only tokens whose declared
// purpose is "access" ever reach the context: MFA challenge and
// password-reset tokens are rejected at the decode step.
func Authenticate(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {

			header := request.Header.Get(constants.HeaderAuthorization)
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				next.ServeHTTP(writer, request)
				return
			}

			tokenString := strings.TrimPrefix(header, "Bearer ")
			claims, err := verifier.Decode(tokenString, sec.TokenTypeAccess)
			if err != nil {
				// Invalid tokens are treated as anonymous. Protected routes
				// reject the request in RequireAuth.
				next.ServeHTTP(writer, request)
				return
			}

			ctx := ctxutil.WithCaller(request.Context(), claims)
			next.ServeHTTP(writer, request.WithContext(ctx))
		})
	}
}

// RequireAuth rejects requests that did not present a valid access token.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if ctxutil.GetCaller(request.Context()) == nil {
			writeError(writer, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
			return
		}
		next.ServeHTTP(writer, request)
	})
}
