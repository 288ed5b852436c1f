// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// SessionManager creates, validates and invalidates session keys. A user has
// at most one active session: Open deactivates the previous one under the
// store's per-user lock before inserting the next.
type SessionManager struct {
	store  CredentialStore
	users  *UserManager
	logger *slog.Logger
	now    func() time.Time
}

// NewSessionManager creates a new SessionManager. A nil logger uses slog.Default().
func NewSessionManager(store CredentialStore, users *UserManager, logger *slog.Logger) *SessionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		store:  store,
		users:  users,
		logger: logger,
		now:    time.Now,
	}
}

// Open starts a new session for username and returns its plaintext key. Any
// session the user's auth key points at is deactivated first, then the auth
// key is moved to the new hash and the session row written, all while
// holding the user lock.
func (m *SessionManager) Open(ctx context.Context, username string) (string, error) {
	key, hash, err := GenerateKey()
	if err != nil {
		return "", oops.Code("SESSION_OPEN_FAILED").
			With("operation", "generate key").
			Wrap(fmt.Errorf("%w: %w", ErrInfrastructure, err))
	}

	var rotated *ulid.ULID
	session := &Session{
		KeyHash:  hash,
		ID:       ulid.Make(),
		Username: username,
		Active:   true,
	}

	err = m.store.WithUserLock(ctx, username, func(ctx context.Context) error {
		user, err := m.users.GetUser(ctx, username)
		if err != nil {
			return err
		}

		now := m.now().UTC()
		if user.AuthKey != "" {
			prior, err := m.store.Sessions().Get(ctx, user.AuthKey)
			switch {
			case errors.Is(err, ErrNotFound):
			case err != nil:
				return storeFailure("SESSION_OPEN_FAILED", "get prior session", err)
			case prior.Active:
				if _, err := m.store.Sessions().Deactivate(ctx, prior.KeyHash, now); err != nil {
					return storeFailure("SESSION_OPEN_FAILED", "deactivate prior session", err)
				}
				rotated = &prior.ID
			}
		}

		// The auth key moves before the row is written: after a partial
		// failure it still names every row that may be active.
		if err := m.users.SetAuthKey(ctx, username, hash); err != nil {
			return err
		}
		session.CreatedAt = now
		session.LastModified = now
		if err := m.store.Sessions().Create(ctx, session); err != nil {
			return storeFailure("SESSION_OPEN_FAILED", "create session", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", oops.Code("SESSION_USER_UNKNOWN").
				With("username", username).
				Wrapf(ErrAuthentication, "cannot open a session for an unknown user")
		}
		return "", storeFailure("SESSION_OPEN_FAILED", "user lock", err)
	}

	attrs := []any{"username", username, "session_id", session.ID.String()}
	if rotated != nil {
		attrs = append(attrs, "rotated_session_id", rotated.String())
	}
	m.logger.InfoContext(ctx, "session opened", attrs...)

	return key, nil
}

// Validate returns the owner of an active session, or "" for an unknown,
// garbled or inactive key. It never mutates state.
func (m *SessionManager) Validate(ctx context.Context, sessionKey string) (string, error) {
	session, err := m.lookup(ctx, sessionKey)
	if err != nil || session == nil || !session.Active {
		return "", err
	}
	return session.Username, nil
}

// Invalidate deactivates an active session. Unknown or already inactive keys
// are a no-op.
func (m *SessionManager) Invalidate(ctx context.Context, sessionKey string) error {
	if !wellFormedKey(sessionKey) {
		return nil
	}
	changed, err := m.store.Sessions().Deactivate(ctx, HashKey(sessionKey), m.now().UTC())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return storeFailure("SESSION_INVALIDATE_FAILED", "deactivate session", err)
	}
	if changed {
		m.logger.DebugContext(ctx, "session invalidated")
	}
	return nil
}

// lookup returns the session for sessionKey, or nil when there is none.
func (m *SessionManager) lookup(ctx context.Context, sessionKey string) (*Session, error) {
	if !wellFormedKey(sessionKey) {
		return nil, nil
	}
	session, err := m.store.Sessions().Get(ctx, HashKey(sessionKey))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, storeFailure("SESSION_VALIDATE_FAILED", "get session", err)
	}
	return session, nil
}
