// Copyright (c) 2026 Northlink Communications. All rights reserved.

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/northlink/atlas/internal/platform/constants"
)

// RedisUsedResetTokenStore implements UsedResetTokenStore using Redis.
//
// Reset tokens are self-contained signed claims, so the only durable
// state the flow needs is "this token id was already consumed". Keys
// carry the token's remaining lifetime as TTL and vanish when the token
// would have expired on its own.
type RedisUsedResetTokenStore struct {
	client *redis.Client
}

// NewUsedResetTokenStore creates a Redis-backed UsedResetTokenStore.
func NewUsedResetTokenStore(client *redis.Client) *RedisUsedResetTokenStore {
	return &RedisUsedResetTokenStore{client: client}
}

/*
MarkUsed records a consumed reset token id.

Parameters:
  - context: context.Context
  - tokenID: string (the token's jti claim)
  - ttl: time.Duration (remaining token lifetime)

Returns:
  - error: Execution errors
*/
func (store *RedisUsedResetTokenStore) MarkUsed(context context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Minute
	}

	key := constants.RedisPrefixUsedResetToken + tokenID
	if err := store.client.Set(context, key, "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis_used_reset_token_set_failed: %w", err)
	}

	return nil
}

/*
IsUsed reports whether a reset token id was already consumed.

Parameters:
  - context: context.Context
  - tokenID: string

Returns:
  - bool: true when the id is present
  - error: Connectivity errors; a missing key is not an error
*/
func (store *RedisUsedResetTokenStore) IsUsed(context context.Context, tokenID string) (bool, error) {
	key := constants.RedisPrefixUsedResetToken + tokenID

	if err := store.client.Get(context, key).Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis_used_reset_token_get_failed: %w", err)
	}

	return true, nil
}
