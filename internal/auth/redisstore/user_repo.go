// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package redisstore

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/keyward/keyward/internal/auth"
)

// UserRepository stores users as hashes under user:<username>.
type UserRepository struct {
	client redis.UniversalClient
	keys   keyspace
}

// Get retrieves a user by username.
func (r *UserRepository) Get(ctx context.Context, username string) (*auth.User, error) {
	fields, err := r.client.HGetAll(ctx, r.keys.user(username)).Result()
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").
			With("operation", "get user").
			With("username", username).
			Wrap(err)
	}
	if len(fields) == 0 {
		return nil, notFound(username)
	}

	user, err := decodeUser(fields)
	if err != nil {
		return nil, oops.Code("USER_DECODE_FAILED").
			With("operation", "decode user").
			With("username", username).
			Wrap(err)
	}
	return user, nil
}

// Create stores a new user unless the username is taken.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	lastLogin := time.Time{}
	if user.LastLogin != nil {
		lastLogin = *user.LastLogin
	}
	created, err := createScript.Run(ctx, r.client, []string{r.keys.user(user.Username)},
		"username", user.Username,
		"password_hash", user.PasswordHash,
		"auth_key", user.AuthKey,
		"role", string(user.Role),
		"active", encodeBool(user.Active),
		"last_login", encodeTime(lastLogin),
		"failed_attempts", strconv.Itoa(user.FailedAttempts),
		"created_at", encodeTime(user.CreatedAt),
		"updated_at", encodeTime(user.UpdatedAt),
	).Int64()
	if err != nil {
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("username", user.Username).
			Wrap(err)
	}
	if created == 0 {
		return oops.Code("USER_EXISTS").
			With("username", user.Username).
			Wrap(auth.ErrUserExists)
	}
	return nil
}

// SetRole sets the user's role.
func (r *UserRepository) SetRole(ctx context.Context, username string, role auth.Role) error {
	return r.update(ctx, "set role", username, "role", string(role))
}

// Activate marks the account as confirmed.
func (r *UserRepository) Activate(ctx context.Context, username string) error {
	return r.update(ctx, "activate", username, "active", "1")
}

// SetAuthKey points the user at a session key hash.
func (r *UserRepository) SetAuthKey(ctx context.Context, username, authKey string) error {
	return r.update(ctx, "set auth key", username, "auth_key", authKey)
}

// TouchLastLogin sets the last login timestamp.
func (r *UserRepository) TouchLastLogin(ctx context.Context, username string, at time.Time) error {
	return r.update(ctx, "touch last login", username, "last_login", encodeTime(at))
}

// SetPasswordHash replaces the stored password hash.
func (r *UserRepository) SetPasswordHash(ctx context.Context, username, passwordHash string) error {
	return r.update(ctx, "set password hash", username, "password_hash", passwordHash)
}

// ResetLoginFailures clears the failure counter.
func (r *UserRepository) ResetLoginFailures(ctx context.Context, username string) error {
	return r.update(ctx, "reset login failures", username, "failed_attempts", "0")
}

// RecordLoginFailure increments the failure counter and returns the new value.
func (r *UserRepository) RecordLoginFailure(ctx context.Context, username string) (int, error) {
	n, err := incrFailuresScript.Run(ctx, r.client, []string{r.keys.user(username)},
		encodeTime(time.Now())).Int64()
	if err != nil {
		return 0, oops.Code("USER_UPDATE_FAILED").
			With("operation", "record login failure").
			With("username", username).
			Wrap(err)
	}
	if n < 0 {
		return 0, notFound(username)
	}
	return int(n), nil
}

// update writes one field plus updated_at to an existing user.
func (r *UserRepository) update(ctx context.Context, operation, username, field, value string) error {
	written, err := updateScript.Run(ctx, r.client, []string{r.keys.user(username)},
		field, value,
		"updated_at", encodeTime(time.Now()),
	).Int64()
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", operation).
			With("username", username).
			Wrap(err)
	}
	if written == 0 {
		return notFound(username)
	}
	return nil
}

func notFound(username string) error {
	return oops.Code("USER_NOT_FOUND").
		With("username", username).
		Wrap(auth.ErrNotFound)
}

func decodeUser(f map[string]string) (*auth.User, error) {
	user := &auth.User{
		Username:     f["username"],
		PasswordHash: f["password_hash"],
		AuthKey:      f["auth_key"],
		Role:         auth.Role(f["role"]),
		Active:       f["active"] == "1",
	}

	var err error
	if user.FailedAttempts, err = strconv.Atoi(f["failed_attempts"]); err != nil {
		return nil, err
	}
	if user.CreatedAt, err = decodeTime(f["created_at"]); err != nil {
		return nil, err
	}
	if user.UpdatedAt, err = decodeTime(f["updated_at"]); err != nil {
		return nil, err
	}
	lastLogin, err := decodeTime(f["last_login"])
	if err != nil {
		return nil, err
	}
	if !lastLogin.IsZero() {
		user.LastLogin = &lastLogin
	}
	return user, nil
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)
