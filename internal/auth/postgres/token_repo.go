// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/keyward/keyward/internal/auth"
)

// AccessTokenRepository implements auth.AccessTokenRepository using PostgreSQL.
type AccessTokenRepository struct {
	pool Pool
}

// NewAccessTokenRepository creates a new AccessTokenRepository.
func NewAccessTokenRepository(pool Pool) *AccessTokenRepository {
	return &AccessTokenRepository{pool: pool}
}

// Create stores a new access token.
func (r *AccessTokenRepository) Create(ctx context.Context, token *auth.AccessToken) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO access_tokens (key_hash, username, purpose, consumed, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		token.KeyHash,
		token.Username,
		string(token.Purpose),
		token.Consumed,
		token.CreatedAt,
		token.ExpiresAt,
	)
	if err != nil {
		return oops.Code("ACCESS_TOKEN_CREATE_FAILED").
			With("operation", "insert access_token").
			With("purpose", string(token.Purpose)).
			Wrap(err)
	}
	return nil
}

// Consume flips consumed in the same statement that checks it, so two
// concurrent callers cannot both succeed.
func (r *AccessTokenRepository) Consume(ctx context.Context, keyHash string, purpose auth.Purpose, owner string, now time.Time) (string, error) {
	var username string
	err := conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE access_tokens SET consumed = TRUE
		WHERE key_hash = $1 AND purpose = $2 AND NOT consumed AND expires_at > $3
		  AND ($4 = '' OR username = $4)
		RETURNING username
	`, keyHash, string(purpose), now, owner).Scan(&username)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", oops.Code("ACCESS_TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return "", oops.Code("ACCESS_TOKEN_CONSUME_FAILED").
			With("operation", "consume access_token").
			Wrap(err)
	}
	return username, nil
}

// DeleteExpired removes tokens that expired at or before the given time.
func (r *AccessTokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := conn(ctx, r.pool).Exec(ctx, `
		DELETE FROM access_tokens WHERE expires_at <= $1
	`, before)
	if err != nil {
		return 0, oops.Code("ACCESS_TOKEN_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired access_tokens").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// Compile-time interface check.
var _ auth.AccessTokenRepository = (*AccessTokenRepository)(nil)
