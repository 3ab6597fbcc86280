// Copyright (c) 2026 Northlink Communications. All rights reserved.

package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northlink/atlas/internal/auth"
	"github.com/northlink/atlas/internal/platform/apperr"
	"github.com/northlink/atlas/pkg/uuid"
)

func newActiveSession(t *testing.T, sessions *auth.MemorySessionRepository, tokenHash string) *auth.Session {
	t.Helper()

	session := &auth.Session{
		ID:        uuid.New(),
		Principal: auth.SubscriberPrincipal(uuid.New()),
		TokenHash: tokenHash,
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, sessions.Create(context.Background(), session))
	return session
}

/*
TestMemorySessionRepository_Rotate checks the guarded swap: the current
hash moves to the previous slot, and only live sessions rotate.
*/
func TestMemorySessionRepository_Rotate(t *testing.T) {
	sessions := auth.NewMemorySessionRepository()
	created := newActiveSession(t, sessions, "hash-0")

	rotated, err := sessions.Rotate(context.Background(), "hash-0", "hash-1", "198.51.100.7", "cli/2")
	require.NoError(t, err)
	assert.Equal(t, created.ID, rotated.ID)
	assert.Equal(t, "hash-1", rotated.TokenHash)
	require.NotNil(t, rotated.PreviousTokenHash)
	assert.Equal(t, "hash-0", *rotated.PreviousTokenHash)
	require.NotNil(t, rotated.TokenRotatedAt)
	assert.Equal(t, "198.51.100.7", rotated.IPAddress)

	// The old hash no longer wins a rotation, but the reuse lookup sees it.
	_, err = sessions.Rotate(context.Background(), "hash-0", "hash-2", "", "")
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, "SESSION_NOT_FOUND"))

	flagged, err := sessions.FindActiveByPreviousTokenHash(context.Background(), "hash-0")
	require.NoError(t, err)
	assert.Equal(t, created.ID, flagged.ID)

	// A revoked session does not rotate even with the right hash.
	require.NoError(t, sessions.Revoke(context.Background(), created.ID, time.Now().UTC()))
	_, err = sessions.Rotate(context.Background(), "hash-1", "hash-2", "", "")
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, "SESSION_NOT_FOUND"))
}

/*
TestMemorySessionRepository_RotateRace presents the same token from many
goroutines and checks that exactly one of them wins the swap.
*/
func TestMemorySessionRepository_RotateRace(t *testing.T) {
	sessions := auth.NewMemorySessionRepository()
	newActiveSession(t, sessions, "contested")

	const racers = 16
	var wins int64
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := sessions.Rotate(context.Background(), "contested", uuid.New(), "", "")
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins)
}

/*
TestMemorySessionRepository_DeleteExpired checks the janitor semantics:
overdue sessions go regardless of status, terminal sessions go once
stale, and live traffic is untouched.
*/
func TestMemorySessionRepository_DeleteExpired(t *testing.T) {
	sessions := auth.NewMemorySessionRepository()
	now := time.Now().UTC()

	overdue := &auth.Session{
		ID:         uuid.New(),
		Principal:  auth.SubscriberPrincipal(uuid.New()),
		TokenHash:  "overdue",
		CreatedAt:  now.Add(-48 * time.Hour),
		LastSeenAt: now.Add(-48 * time.Hour),
		ExpiresAt:  now.Add(-time.Hour),
	}
	require.NoError(t, sessions.Create(context.Background(), overdue))

	staleRevoked := &auth.Session{
		ID:         uuid.New(),
		Principal:  auth.SubscriberPrincipal(uuid.New()),
		TokenHash:  "stale-revoked",
		Status:     auth.SessionRevoked,
		CreatedAt:  now.Add(-48 * time.Hour),
		LastSeenAt: now.Add(-48 * time.Hour),
		ExpiresAt:  now.Add(time.Hour),
	}
	require.NoError(t, sessions.Create(context.Background(), staleRevoked))

	live := newActiveSession(t, sessions, "live")

	// A 24h-retention pass reaps the stale revoked session; the overdue
	// one is still inside retention because it only expired an hour ago.
	deleted, err := sessions.DeleteExpired(context.Background(), now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	_, err = sessions.FindByID(context.Background(), staleRevoked.ID)
	require.Error(t, err)

	// A cutoff of now reaps the overdue session too.
	deleted, err = sessions.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	_, err = sessions.FindByID(context.Background(), overdue.ID)
	require.Error(t, err)

	_, err = sessions.FindByID(context.Background(), live.ID)
	require.NoError(t, err)
}
