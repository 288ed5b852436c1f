// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/keyward/keyward/internal/auth"
)

// SessionRepository implements auth.SessionRepository using PostgreSQL.
type SessionRepository struct {
	pool Pool
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Create stores a new session. The partial unique index on
// sessions(username) WHERE active rejects a second active session.
func (r *SessionRepository) Create(ctx context.Context, session *auth.Session) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO sessions (key_hash, id, username, active, created_at, last_modified)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		session.KeyHash,
		session.ID.String(),
		session.Username,
		session.Active,
		session.CreatedAt,
		session.LastModified,
	)
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
	row := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT key_hash, id, username, active, created_at, last_modified
		FROM sessions
		WHERE key_hash = $1
	`, keyHash)

	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_FAILED").
			With("operation", "get session by key hash").
			Wrap(err)
	}
	return session, nil
}

// Deactivate marks an active session inactive.
func (r *SessionRepository) Deactivate(ctx context.Context, keyHash string, at time.Time) (bool, error) {
	result, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE sessions SET active = FALSE, last_modified = $2
		WHERE key_hash = $1 AND active
	`, keyHash, at)
	if err != nil {
		return false, oops.Code("SESSION_DEACTIVATE_FAILED").
			With("operation", "deactivate session").
			Wrap(err)
	}
	return result.RowsAffected() == 1, nil
}

// scanSession scans a single row into a Session.
// Callers are responsible for handling pgx.ErrNoRows.
func scanSession(row pgx.Row) (*auth.Session, error) {
	var (
		session auth.Session
		idStr   string
	)
	err := row.Scan(&session.KeyHash, &idStr, &session.Username, &session.Active, &session.CreatedAt, &session.LastModified)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with context
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_ID").
			With("operation", "parse session id").
			With("id", idStr).
			Wrap(err)
	}
	session.ID = id
	return &session, nil
}

// Compile-time interface check.
var _ auth.SessionRepository = (*SessionRepository)(nil)
