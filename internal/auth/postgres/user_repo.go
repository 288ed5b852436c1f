// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/keyward/keyward/internal/auth"
)

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	pool Pool
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Get retrieves a user by username. Usernames are case-sensitive.
func (r *UserRepository) Get(ctx context.Context, username string) (*auth.User, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT username, password_hash, auth_key, role, active,
		       last_login, failed_attempts, created_at, updated_at
		FROM users
		WHERE username = $1
	`, username)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("username", username).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").
			With("operation", "get user").
			With("username", username).
			Wrap(err)
	}
	return user, nil
}

// Create stores a new user.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO users (
			username, password_hash, auth_key, role, active,
			last_login, failed_attempts, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		user.Username,
		user.PasswordHash,
		nullable(user.AuthKey),
		nullable(string(user.Role)),
		user.Active,
		user.LastLogin,
		user.FailedAttempts,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("USER_EXISTS").
				With("username", user.Username).
				Wrap(auth.ErrUserExists)
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("username", user.Username).
			Wrap(err)
	}
	return nil
}

// SetRole sets the user's role.
func (r *UserRepository) SetRole(ctx context.Context, username string, role auth.Role) error {
	return r.update(ctx, "set role", username,
		`UPDATE users SET role = $2, updated_at = NOW() WHERE username = $1`,
		nullable(string(role)))
}

// Activate marks the account as confirmed.
func (r *UserRepository) Activate(ctx context.Context, username string) error {
	return r.update(ctx, "activate", username,
		`UPDATE users SET active = TRUE, updated_at = NOW() WHERE username = $1`)
}

// SetAuthKey points the user at a session key hash.
func (r *UserRepository) SetAuthKey(ctx context.Context, username, authKey string) error {
	return r.update(ctx, "set auth key", username,
		`UPDATE users SET auth_key = $2, updated_at = NOW() WHERE username = $1`,
		nullable(authKey))
}

// TouchLastLogin sets the last login timestamp.
func (r *UserRepository) TouchLastLogin(ctx context.Context, username string, at time.Time) error {
	return r.update(ctx, "touch last login", username,
		`UPDATE users SET last_login = $2, updated_at = NOW() WHERE username = $1`,
		at)
}

// SetPasswordHash replaces the stored password hash.
func (r *UserRepository) SetPasswordHash(ctx context.Context, username, passwordHash string) error {
	return r.update(ctx, "set password hash", username,
		`UPDATE users SET password_hash = $2, updated_at = NOW() WHERE username = $1`,
		passwordHash)
}

// ResetLoginFailures clears the failure counter.
func (r *UserRepository) ResetLoginFailures(ctx context.Context, username string) error {
	return r.update(ctx, "reset login failures", username,
		`UPDATE users SET failed_attempts = 0, updated_at = NOW() WHERE username = $1`)
}

// RecordLoginFailure increments the failure counter and returns the new value.
func (r *UserRepository) RecordLoginFailure(ctx context.Context, username string) (int, error) {
	var failures int
	err := conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE users SET failed_attempts = failed_attempts + 1, updated_at = NOW()
		WHERE username = $1
		RETURNING failed_attempts
	`, username).Scan(&failures)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, oops.Code("USER_NOT_FOUND").
			With("username", username).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return 0, oops.Code("USER_UPDATE_FAILED").
			With("operation", "record login failure").
			With("username", username).
			Wrap(err)
	}
	return failures, nil
}

// update runs a single-row UPDATE keyed on username ($1).
func (r *UserRepository) update(ctx context.Context, operation, username, sql string, args ...any) error {
	result, err := conn(ctx, r.pool).Exec(ctx, sql, append([]any{username}, args...)...)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", operation).
			With("username", username).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("username", username).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		user    auth.User
		authKey *string
		role    *string
	)
	if err := row.Scan(
		&user.Username,
		&user.PasswordHash,
		&authKey,
		&role,
		&user.Active,
		&user.LastLogin,
		&user.FailedAttempts,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with context
	}
	if authKey != nil {
		user.AuthKey = *authKey
	}
	if role != nil {
		user.Role = auth.Role(*role)
	}
	return &user, nil
}

// nullable maps "" to SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)
