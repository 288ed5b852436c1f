// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package redisstore

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/keyward/keyward/internal/auth"
)

// SessionRepository stores sessions as hashes under session:<keyHash>.
type SessionRepository struct {
	client redis.UniversalClient
	keys   keyspace
}

// Create stores a new session. Key hashes never repeat, so an existing key
// is reported as a failure.
func (r *SessionRepository) Create(ctx context.Context, session *auth.Session) error {
	created, err := createScript.Run(ctx, r.client, []string{r.keys.session(session.KeyHash)},
		"id", session.ID.String(),
		"username", session.Username,
		"active", encodeBool(session.Active),
		"created_at", encodeTime(session.CreatedAt),
		"last_modified", encodeTime(session.LastModified),
	).Int64()
	if err == nil && created == 0 {
		err = oops.Errorf("session key hash already present")
	}
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert session").
			With("session_id", session.ID.String()).
			Wrap(err)
	}
	return nil
}

// Get retrieves a session by key hash.
func (r *SessionRepository) Get(ctx context.Context, keyHash string) (*auth.Session, error) {
	fields, err := r.client.HGetAll(ctx, r.keys.session(keyHash)).Result()
	if err != nil {
		return nil, oops.Code("SESSION_GET_FAILED").
			With("operation", "get session by key hash").
			Wrap(err)
	}
	if len(fields) == 0 {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}

	session, err := decodeSession(keyHash, fields)
	if err != nil {
		return nil, oops.Code("SESSION_DECODE_FAILED").
			With("operation", "decode session").
			Wrap(err)
	}
	return session, nil
}

// Deactivate marks an active session inactive.
func (r *SessionRepository) Deactivate(ctx context.Context, keyHash string, at time.Time) (bool, error) {
	n, err := deactivateScript.Run(ctx, r.client, []string{r.keys.session(keyHash)}, encodeTime(at)).Int64()
	if err != nil {
		return false, oops.Code("SESSION_DEACTIVATE_FAILED").
			With("operation", "deactivate session").
			Wrap(err)
	}
	return n == 1, nil
}

func decodeSession(keyHash string, f map[string]string) (*auth.Session, error) {
	id, err := ulid.Parse(f["id"])
	if err != nil {
		return nil, err
	}
	session := &auth.Session{
		KeyHash:  keyHash,
		ID:       id,
		Username: f["username"],
		Active:   f["active"] == "1",
	}
	if session.CreatedAt, err = decodeTime(f["created_at"]); err != nil {
		return nil, err
	}
	if session.LastModified, err = decodeTime(f["last_modified"]); err != nil {
		return nil, err
	}
	return session, nil
}

// Compile-time interface check.
var _ auth.SessionRepository = (*SessionRepository)(nil)
