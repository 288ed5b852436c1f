// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/oops"
)

// SessionOpener opens a fresh session for a user, rotating out any prior one.
// SessionManager implements it.
type SessionOpener interface {
	Open(ctx context.Context, username string) (string, error)
}

// UserManager owns user records: creation, role and auth key assignment,
// timestamps and password rotation.
type UserManager struct {
	store  CredentialStore
	hasher PasswordHasher
	now    func() time.Time
}

// NewUserManager creates a new UserManager.
func NewUserManager(store CredentialStore, hasher PasswordHasher) *UserManager {
	return &UserManager{
		store:  store,
		hasher: hasher,
		now:    time.Now,
	}
}

// GetUser returns the user record. Returns an error wrapping ErrNotFound if
// the user does not exist.
func (m *UserManager) GetUser(ctx context.Context, username string) (*User, error) {
	user, err := m.store.Users().Get(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("USER_NOT_FOUND").With("username", username).Wrap(err)
		}
		return nil, storeFailure("USER_GET_FAILED", "get user", err)
	}
	return user, nil
}

// CreateUser stores a new, unconfirmed user. The username and password are
// validated before the store is touched.
func (m *UserManager) CreateUser(ctx context.Context, username, password string) error {
	if err := ValidateUsername(username); err != nil {
		return err
	}
	if err := ValidatePassword(password); err != nil {
		return err
	}

	hash, err := m.hasher.Hash(password)
	if err != nil {
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "hash password").
			Wrap(fmt.Errorf("%w: %w", ErrInfrastructure, err))
	}

	now := m.now().UTC()
	user := &User{
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.store.Users().Create(ctx, user); err != nil {
		if errors.Is(err, ErrUserExists) {
			return oops.Code("USER_EXISTS").With("username", username).Wrap(err)
		}
		return storeFailure("USER_CREATE_FAILED", "create user", err)
	}
	return nil
}

// SetRole assigns a role.
func (m *UserManager) SetRole(ctx context.Context, username string, role Role) error {
	if err := m.store.Users().SetRole(ctx, username, role); err != nil {
		return storeFailure("USER_UPDATE_FAILED", "set role", err)
	}
	return nil
}

// Activate marks the account confirmed.
func (m *UserManager) Activate(ctx context.Context, username string) error {
	if err := m.store.Users().Activate(ctx, username); err != nil {
		return storeFailure("USER_UPDATE_FAILED", "activate", err)
	}
	return nil
}

// SetAuthKey points the user at the session with the given key hash.
func (m *UserManager) SetAuthKey(ctx context.Context, username, authKey string) error {
	if err := m.store.Users().SetAuthKey(ctx, username, authKey); err != nil {
		return storeFailure("USER_UPDATE_FAILED", "set auth key", err)
	}
	return nil
}

// TouchLastLogin records a login at the current time.
func (m *UserManager) TouchLastLogin(ctx context.Context, username string) error {
	if err := m.store.Users().TouchLastLogin(ctx, username, m.now().UTC()); err != nil {
		return storeFailure("USER_UPDATE_FAILED", "touch last login", err)
	}
	return nil
}

// RecordLoginFailure increments the failure counter and returns the new count.
func (m *UserManager) RecordLoginFailure(ctx context.Context, username string) (int, error) {
	n, err := m.store.Users().RecordLoginFailure(ctx, username)
	if err != nil {
		return 0, storeFailure("USER_UPDATE_FAILED", "record login failure", err)
	}
	return n, nil
}

// ResetLoginFailures clears the failure counter.
func (m *UserManager) ResetLoginFailures(ctx context.Context, username string) error {
	if err := m.store.Users().ResetLoginFailures(ctx, username); err != nil {
		return storeFailure("USER_UPDATE_FAILED", "reset login failures", err)
	}
	return nil
}

// SetPassword replaces the password hash without checking the old password.
// Callers must have authenticated the user by other means (an access key).
func (m *UserManager) SetPassword(ctx context.Context, username, password string) error {
	if err := ValidatePassword(password); err != nil {
		return err
	}
	return m.rotateHash(ctx, username, password)
}

// ChangePassword verifies oldPassword, rotates the hash to newPassword and
// opens a fresh session through opener. Every failure other than an
// infrastructure fault is an authentication error, including passwords that
// fail the complexity policy.
func (m *UserManager) ChangePassword(ctx context.Context, username, oldPassword, newPassword string, opener SessionOpener) (string, error) {
	if err := ValidateUsername(username); err != nil {
		return "", err
	}
	if !passwordComplex(oldPassword) || !passwordComplex(newPassword) {
		return "", authenticationError("AUTH_INVALID_CREDENTIALS", "invalid username or password")
	}

	user, err := m.store.Users().Get(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_, _ = m.hasher.Verify(oldPassword, dummyPasswordHash) // timing padding only
			return "", authenticationError("AUTH_INVALID_CREDENTIALS", "invalid username or password")
		}
		return "", storeFailure("PASSWORD_CHANGE_FAILED", "get user", err)
	}

	ok, err := m.hasher.Verify(oldPassword, user.PasswordHash)
	if err != nil {
		return "", oops.Code("PASSWORD_CHANGE_FAILED").
			With("operation", "verify password").
			Wrap(fmt.Errorf("%w: %w", ErrInfrastructure, err))
	}
	if !ok || !user.Confirmed() {
		return "", authenticationError("AUTH_INVALID_CREDENTIALS", "invalid username or password")
	}

	if err := m.rotateHash(ctx, username, newPassword); err != nil {
		return "", err
	}
	return opener.Open(ctx, username)
}

func (m *UserManager) rotateHash(ctx context.Context, username, password string) error {
	hash, err := m.hasher.Hash(password)
	if err != nil {
		return oops.Code("PASSWORD_CHANGE_FAILED").
			With("operation", "hash password").
			Wrap(fmt.Errorf("%w: %w", ErrInfrastructure, err))
	}
	if err := m.store.Users().SetPasswordHash(ctx, username, hash); err != nil {
		return storeFailure("PASSWORD_CHANGE_FAILED", "set password hash", err)
	}
	return nil
}
