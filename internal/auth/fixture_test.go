// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/keyward/keyward/internal/auth"
	"github.com/keyward/keyward/internal/auth/mocks"
)

const (
	testUser     = "testuser@gmail.com"
	testPassword = "Thi$Shouldw0rk"
	testNewPass  = "N3w_Password"
	testURL      = "https://app.example.com"
)

// storeFixture wires repository mocks behind a CredentialStore mock whose
// WithUserLock simply runs the callback.
type storeFixture struct {
	store    *mocks.MockCredentialStore
	users    *mocks.MockUserRepository
	tokens   *mocks.MockAccessTokenRepository
	sessions *mocks.MockSessionRepository
}

func newStoreFixture(t *testing.T) *storeFixture {
	t.Helper()
	f := &storeFixture{
		store:    mocks.NewMockCredentialStore(t),
		users:    mocks.NewMockUserRepository(t),
		tokens:   mocks.NewMockAccessTokenRepository(t),
		sessions: mocks.NewMockSessionRepository(t),
	}
	f.store.On("Users").Return(f.users).Maybe()
	f.store.On("Tokens").Return(f.tokens).Maybe()
	f.store.On("Sessions").Return(f.sessions).Maybe()
	f.store.On("WithUserLock", mock.Anything, mock.Anything, mock.Anything).
		Return(func(ctx context.Context, _ string, fn func(context.Context) error) error {
			return fn(ctx)
		}).Maybe()
	return f
}

// confirmedUser returns a user that may log in. Its auth key is the hash of
// a session key that the caller may or may not register.
func confirmedUser(t *testing.T, hasher auth.PasswordHasher) *auth.User {
	t.Helper()
	hash, err := hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return &auth.User{
		Username:     testUser,
		PasswordHash: hash,
		AuthKey:      auth.HashKey("previous-session"),
		Role:         auth.RoleViewer,
		Active:       true,
	}
}
