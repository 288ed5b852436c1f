// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package redisstore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/keyward/keyward/internal/auth"
)

// AccessTokenRepository stores tokens as hashes under token:<keyHash>. Redis
// expires each token at its deadline; a sorted set scored by expiry lets
// DeleteExpired sweep the index.
type AccessTokenRepository struct {
	client redis.UniversalClient
	keys   keyspace
}

// Create stores a new token and schedules its expiry.
func (r *AccessTokenRepository) Create(ctx context.Context, token *auth.AccessToken) error {
	key := r.keys.token(token.KeyHash)
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key,
			"username", token.Username,
			"purpose", string(token.Purpose),
			"consumed", encodeBool(token.Consumed),
			"created_at", encodeTime(token.CreatedAt),
			"expires_at", encodeTime(token.ExpiresAt),
		)
		p.PExpireAt(ctx, key, token.ExpiresAt)
		p.ZAdd(ctx, r.keys.tokenExpiry(), redis.Z{
			Score:  float64(token.ExpiresAt.UnixMicro()),
			Member: token.KeyHash,
		})
		return nil
	})
	if err != nil {
		return oops.Code("ACCESS_TOKEN_CREATE_FAILED").
			With("operation", "insert access_token").
			With("purpose", string(token.Purpose)).
			Wrap(err)
	}
	return nil
}

// Consume checks and flips consumed in one script, so two concurrent callers
// cannot both succeed.
func (r *AccessTokenRepository) Consume(ctx context.Context, keyHash string, purpose auth.Purpose, owner string, now time.Time) (string, error) {
	username, err := consumeScript.Run(ctx, r.client, []string{r.keys.token(keyHash)},
		string(purpose), encodeTime(now), owner).Text()
	if errors.Is(err, redis.Nil) {
		return "", oops.Code("ACCESS_TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return "", oops.Code("ACCESS_TOKEN_CONSUME_FAILED").
			With("operation", "consume access_token").
			Wrap(err)
	}
	return username, nil
}

// DeleteExpired removes tokens that expired at or before the given time and
// returns how many were still present.
func (r *AccessTokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	index := r.keys.tokenExpiry()
	hashes, err := r.client.ZRangeByScore(ctx, index, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(before.UnixMicro(), 10),
	}).Result()
	if err != nil {
		return 0, oops.Code("ACCESS_TOKEN_DELETE_EXPIRED_FAILED").
			With("operation", "scan expired access_tokens").
			Wrap(err)
	}
	if len(hashes) == 0 {
		return 0, nil
	}

	keys := make([]string, len(hashes))
	members := make([]any, len(hashes))
	for i, h := range hashes {
		keys[i] = r.keys.token(h)
		members[i] = h
	}

	var deleted *redis.IntCmd
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		deleted = p.Del(ctx, keys...)
		p.ZRem(ctx, index, members...)
		return nil
	})
	if err != nil {
		return 0, oops.Code("ACCESS_TOKEN_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired access_tokens").
			With("count", len(keys)).
			Wrap(err)
	}
	return deleted.Val(), nil
}

// Compile-time interface check.
var _ auth.AccessTokenRepository = (*AccessTokenRepository)(nil)
