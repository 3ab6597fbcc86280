// Copyright (c) 2026 Northlink Communications. All rights reserved.

package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northlink/atlas/internal/auth"
	"github.com/northlink/atlas/pkg/uuid"
)

/*
TestPrincipalFrom checks reconstruction from the claim discriminator.
*/
func TestPrincipalFrom(t *testing.T) {
	id := uuid.New()

	subscriber, err := auth.PrincipalFrom(auth.PrincipalSubscriber, id)
	require.NoError(t, err)
	assert.Equal(t, id, subscriber.SubscriberID)
	assert.Equal(t, auth.PrincipalSubscriber, subscriber.Type())
	assert.Equal(t, id, subscriber.ID())

	staff, err := auth.PrincipalFrom(auth.PrincipalStaff, id)
	require.NoError(t, err)
	assert.Equal(t, id, staff.StaffID)
	assert.Equal(t, auth.PrincipalStaff, staff.Type())

	_, err = auth.PrincipalFrom("tenant", id)
	require.Error(t, err)

	_, err = auth.PrincipalFrom(auth.PrincipalSubscriber, "")
	require.Error(t, err)
}

/*
TestPrincipal_Validate checks the exactly-one-identifier invariant.
*/
func TestPrincipal_Validate(t *testing.T) {
	assert.NoError(t, auth.SubscriberPrincipal(uuid.New()).Validate())
	assert.NoError(t, auth.StaffPrincipal(uuid.New()).Validate())
	assert.Error(t, auth.Principal{}.Validate())
	assert.Error(t, auth.Principal{SubscriberID: uuid.New(), StaffID: uuid.New()}.Validate())
}

/*
TestNormalizeIdentifier checks case folding and whitespace trimming.
*/
func TestNormalizeIdentifier(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercase_passthrough", "alice", "alice"},
		{"uppercase_folded", "ALICE", "alice"},
		{"email_folded", "Alice@Northlink.NET", "alice@northlink.net"},
		{"whitespace_trimmed", "  alice  ", "alice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, auth.NormalizeIdentifier(tt.input))
		})
	}
}

/*
TestCredential_Locked checks the lockout window boundary.
*/
func TestCredential_Locked(t *testing.T) {
	now := time.Now().UTC()
	future := now.Add(time.Minute)
	past := now.Add(-time.Minute)

	assert.False(t, (&auth.Credential{}).Locked(now))
	assert.True(t, (&auth.Credential{LockedUntil: &future}).Locked(now))
	assert.False(t, (&auth.Credential{LockedUntil: &past}).Locked(now))
}

/*
TestCredential_Validate checks the provider-specific shape rules.
*/
func TestCredential_Validate(t *testing.T) {
	principal := auth.SubscriberPrincipal(uuid.New())

	valid := &auth.Credential{
		ID:           uuid.New(),
		Principal:    principal,
		Provider:     auth.ProviderLocal,
		Username:     "alice",
		PasswordHash: "$2a$10$not-a-real-hash",
	}
	assert.NoError(t, valid.Validate())

	missingHash := &auth.Credential{
		ID:        uuid.New(),
		Principal: principal,
		Provider:  auth.ProviderLocal,
		Username:  "alice",
	}
	assert.Error(t, missingHash.Validate())

	sso := &auth.Credential{
		ID:        uuid.New(),
		Principal: principal,
		Provider:  auth.ProviderSSO,
	}
	assert.NoError(t, sso.Validate())
}
