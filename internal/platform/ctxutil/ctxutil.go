// Copyright (c) 2026 Northlink Communications. All rights reserved.

// Package ctxutil provides helpers for interacting with values stored in [context.Context].
package ctxutil

import (
	"context"
	"log/slog"

	"github.com/northlink/atlas/internal/platform/ctxkey"
	"github.com/northlink/atlas/internal/platform/sec"
)

// # Request Tracing

// WithRequestID returns a new context with the provided request ID attached.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxkey.KeyRequestID, id)
}

// GetRequestID retrieves the request ID from the context.
// Returns an empty string if not found.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxkey.KeyRequestID).(string)
	return id
}

// # Structured Logging

// WithLogger returns a new context carrying a request-scoped logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxkey.KeyLogger, logger)
}

// GetLogger retrieves the request-scoped logger from the context.
// Falls back to [slog.Default] so callers never receive nil.
func GetLogger(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(ctxkey.KeyLogger).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return slog.Default()
}

// # Caller Identity

// WithCaller returns a new context carrying the decoded access-token claims.
func WithCaller(ctx context.Context, claims *sec.AuthClaims) context.Context {
	return context.WithValue(ctx, ctxkey.KeyCaller, claims)
}

// GetCaller retrieves the decoded access-token claims for the current request.
// Returns nil if the request is unauthenticated.
func GetCaller(ctx context.Context) *sec.AuthClaims {
	claims, _ := ctx.Value(ctxkey.KeyCaller).(*sec.AuthClaims)
	return claims
}
