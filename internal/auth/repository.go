// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth

import (
	"context"
	"time"
)

// UserRepository manages user persistence. Every update writes only the
// named field (plus updated_at) in a single statement.
type UserRepository interface {
	// Get retrieves a user by username. Returns ErrNotFound if absent.
	Get(ctx context.Context, username string) (*User, error)

	// Create stores a new user. Returns ErrUserExists if the username is taken.
	Create(ctx context.Context, user *User) error

	// SetRole sets the user's role.
	SetRole(ctx context.Context, username string, role Role) error

	// Activate marks the account as confirmed.
	Activate(ctx context.Context, username string) error

	// SetAuthKey points the user at the session with the given key hash.
	SetAuthKey(ctx context.Context, username, authKey string) error

	// TouchLastLogin sets the last login timestamp.
	TouchLastLogin(ctx context.Context, username string, at time.Time) error

	// SetPasswordHash replaces the stored password hash.
	SetPasswordHash(ctx context.Context, username, passwordHash string) error

	// RecordLoginFailure increments the failure counter and returns the new count.
	RecordLoginFailure(ctx context.Context, username string) (int, error)

	// ResetLoginFailures clears the failure counter.
	ResetLoginFailures(ctx context.Context, username string) error
}

// AccessTokenRepository manages one-time access keys.
type AccessTokenRepository interface {
	// Create stores a new token.
	Create(ctx context.Context, token *AccessToken) error

	// Consume atomically marks the token consumed and returns its owner. It
	// succeeds only for an unconsumed, unexpired token of the given purpose
	// whose owner matches owner, when owner is non-empty; otherwise it
	// returns ErrNotFound and leaves the token untouched.
	Consume(ctx context.Context, keyHash string, purpose Purpose, owner string, now time.Time) (string, error)

	// DeleteExpired removes tokens that expired before the given time and
	// returns the count of deleted records.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// SessionRepository manages session persistence.
type SessionRepository interface {
	// Create stores a new session.
	Create(ctx context.Context, session *Session) error

	// Get retrieves a session by key hash. Returns ErrNotFound if absent.
	Get(ctx context.Context, keyHash string) (*Session, error)

	// Deactivate sets active=false if the session is active. Returns true
	// if this call performed the transition.
	Deactivate(ctx context.Context, keyHash string, at time.Time) (bool, error)
}

// CredentialStore is the storage boundary: three independent collections and
// a per-user serialization primitive.
type CredentialStore interface {
	Users() UserRepository
	Tokens() AccessTokenRepository
	Sessions() SessionRepository

	// WithUserLock runs fn while holding exclusive access to username's
	// credential rows. Repository calls made with the context passed to fn
	// take part in the same unit of work. Calls must not nest.
	WithUserLock(ctx context.Context, username string, fn func(ctx context.Context) error) error

	// Ping checks that the backing store is reachable.
	Ping(ctx context.Context) error
}
