// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/keyward/keyward/internal/auth"
	"github.com/keyward/keyward/internal/auth/mocks"
	"github.com/keyward/keyward/pkg/errutil"
)

func newSessionManager(t *testing.T, f *storeFixture, buf *bytes.Buffer) *auth.SessionManager {
	t.Helper()
	var logger *slog.Logger
	if buf != nil {
		logger = slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	users := auth.NewUserManager(f.store, mocks.NewMockPasswordHasher(t))
	return auth.NewSessionManager(f.store, users, logger)
}

func TestSessionManager_Open(t *testing.T) {
	ctx := context.Background()

	t.Run("first session", func(t *testing.T) {
		f := newStoreFixture(t)
		mgr := newSessionManager(t, f, nil)

		f.users.On("Get", mock.Anything, testUser).Return(&auth.User{Username: testUser}, nil)
		var created *auth.Session
		f.sessions.On("Create", mock.Anything, mock.AnythingOfType("*auth.Session")).
			Run(func(args mock.Arguments) { created = args.Get(1).(*auth.Session) }).
			Return(nil)
		var authKey string
		f.users.On("SetAuthKey", mock.Anything, testUser, mock.AnythingOfType("string")).
			Run(func(args mock.Arguments) { authKey = args.String(2) }).
			Return(nil)

		key, err := mgr.Open(ctx, testUser)
		require.NoError(t, err)
		assert.Len(t, key, 2*auth.KeyBytes)

		require.NotNil(t, created)
		assert.Equal(t, auth.HashKey(key), created.KeyHash)
		assert.Equal(t, testUser, created.Username)
		assert.True(t, created.Active)
		assert.NotEqual(t, ulid.ULID{}, created.ID)
		assert.False(t, created.CreatedAt.IsZero())
		assert.Equal(t, created.CreatedAt, created.LastModified)
		assert.Equal(t, created.KeyHash, authKey, "auth key tracks the new session")
	})

	t.Run("rotates prior active session", func(t *testing.T) {
		f := newStoreFixture(t)
		var buf bytes.Buffer
		mgr := newSessionManager(t, f, &buf)

		prior := &auth.Session{KeyHash: "prior-hash", ID: ulid.Make(), Username: testUser, Active: true}
		f.users.On("Get", mock.Anything, testUser).Return(&auth.User{Username: testUser, AuthKey: prior.KeyHash, Active: true}, nil)
		f.sessions.On("Get", mock.Anything, prior.KeyHash).Return(prior, nil)
		f.sessions.On("Deactivate", mock.Anything, prior.KeyHash, mock.AnythingOfType("time.Time")).Return(true, nil)
		f.sessions.On("Create", mock.Anything, mock.Anything).Return(nil)
		f.users.On("SetAuthKey", mock.Anything, testUser, mock.Anything).Return(nil)

		key, err := mgr.Open(ctx, testUser)
		require.NoError(t, err)

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "session opened", entry["msg"])
		assert.Equal(t, prior.ID.String(), entry["rotated_session_id"])
		assert.NotContains(t, buf.String(), key, "plaintext key must not be logged")
		assert.NotContains(t, buf.String(), auth.HashKey(key), "key hash must not be logged")
	})

	t.Run("inactive prior session is left alone", func(t *testing.T) {
		f := newStoreFixture(t)
		mgr := newSessionManager(t, f, nil)

		prior := &auth.Session{KeyHash: "prior-hash", ID: ulid.Make(), Username: testUser, Active: false}
		f.users.On("Get", mock.Anything, testUser).Return(&auth.User{Username: testUser, AuthKey: prior.KeyHash}, nil)
		f.sessions.On("Get", mock.Anything, prior.KeyHash).Return(prior, nil)
		f.sessions.On("Create", mock.Anything, mock.Anything).Return(nil)
		f.users.On("SetAuthKey", mock.Anything, testUser, mock.Anything).Return(nil)

		_, err := mgr.Open(ctx, testUser)
		require.NoError(t, err)
		f.sessions.AssertNotCalled(t, "Deactivate", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("dangling auth key is ignored", func(t *testing.T) {
		f := newStoreFixture(t)
		mgr := newSessionManager(t, f, nil)

		f.users.On("Get", mock.Anything, testUser).Return(&auth.User{Username: testUser, AuthKey: "gone"}, nil)
		f.sessions.On("Get", mock.Anything, "gone").Return(nil, auth.ErrNotFound)
		f.sessions.On("Create", mock.Anything, mock.Anything).Return(nil)
		f.users.On("SetAuthKey", mock.Anything, testUser, mock.Anything).Return(nil)

		_, err := mgr.Open(ctx, testUser)
		require.NoError(t, err)
	})

	t.Run("runs under the user lock", func(t *testing.T) {
		store := mocks.NewMockCredentialStore(t)
		mgr := auth.NewSessionManager(store, auth.NewUserManager(store, mocks.NewMockPasswordHasher(t)), nil)

		store.On("WithUserLock", ctx, testUser, mock.Anything).Return(errors.New("lock timeout"))

		key, err := mgr.Open(ctx, testUser)
		require.Error(t, err)
		assert.Empty(t, key)
		assert.ErrorIs(t, err, auth.ErrInfrastructure)
		errutil.AssertErrorCode(t, err, "SESSION_OPEN_FAILED")
	})

	t.Run("unknown user", func(t *testing.T) {
		f := newStoreFixture(t)
		mgr := newSessionManager(t, f, nil)
		f.users.On("Get", mock.Anything, testUser).Return(nil, auth.ErrNotFound)

		_, err := mgr.Open(ctx, testUser)
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrAuthentication)
		errutil.AssertErrorCode(t, err, "SESSION_USER_UNKNOWN")
	})

	t.Run("create failure leaves auth key on the new hash", func(t *testing.T) {
		f := newStoreFixture(t)
		mgr := newSessionManager(t, f, nil)
		f.users.On("Get", mock.Anything, testUser).Return(&auth.User{Username: testUser}, nil)
		var authKey string
		f.users.On("SetAuthKey", mock.Anything, testUser, mock.AnythingOfType("string")).
			Run(func(args mock.Arguments) { authKey = args.String(2) }).
			Return(nil)
		var created *auth.Session
		f.sessions.On("Create", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { created = args.Get(1).(*auth.Session) }).
			Return(errors.New("connection reset"))

		_, err := mgr.Open(ctx, testUser)
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrInfrastructure)
		errutil.AssertErrorContext(t, err, "operation", "create session")
		require.NotNil(t, created)
		assert.Equal(t, created.KeyHash, authKey, "a row written despite the error is still reachable")
	})

	t.Run("auth key failure writes no session", func(t *testing.T) {
		f := newStoreFixture(t)
		mgr := newSessionManager(t, f, nil)
		prior := &auth.Session{KeyHash: "prior-hash", ID: ulid.Make(), Username: testUser, Active: true}
		f.users.On("Get", mock.Anything, testUser).Return(&auth.User{Username: testUser, AuthKey: prior.KeyHash, Active: true}, nil)
		f.sessions.On("Get", mock.Anything, prior.KeyHash).Return(prior, nil)
		f.sessions.On("Deactivate", mock.Anything, prior.KeyHash, mock.Anything).Return(true, nil)
		f.users.On("SetAuthKey", mock.Anything, testUser, mock.Anything).Return(errors.New("connection reset"))

		_, err := mgr.Open(ctx, testUser)
		require.Error(t, err)
		assert.Equal(t, auth.KindInfrastructure, auth.KindOf(err))
		f.sessions.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func TestSessionManager_Validate(t *testing.T) {
	ctx := context.Background()
	key := strings.Repeat("0f", auth.KeyBytes)

	tests := []struct {
		name    string
		session *auth.Session
		err     error
		want    string
		kind    string
	}{
		{"active session", &auth.Session{Username: testUser, Active: true}, nil, testUser, ""},
		{"inactive session", &auth.Session{Username: testUser, Active: false}, nil, "", ""},
		{"unknown key", nil, auth.ErrNotFound, "", ""},
		{"store fault", nil, errors.New("EOF"), "", auth.KindInfrastructure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newStoreFixture(t)
			mgr := newSessionManager(t, f, nil)
			f.sessions.On("Get", ctx, auth.HashKey(key)).Return(tt.session, tt.err)

			owner, err := mgr.Validate(ctx, key)
			assert.Equal(t, tt.want, owner)
			assert.Equal(t, tt.kind, auth.KindOf(err))
		})
	}

	t.Run("garbled key never reaches the store", func(t *testing.T) {
		store := mocks.NewMockCredentialStore(t)
		mgr := auth.NewSessionManager(store, auth.NewUserManager(store, mocks.NewMockPasswordHasher(t)), nil)

		owner, err := mgr.Validate(ctx, "garbage")
		require.NoError(t, err)
		assert.Empty(t, owner)
	})
}

func TestSessionManager_Invalidate(t *testing.T) {
	ctx := context.Background()
	key := strings.Repeat("a1", auth.KeyBytes)

	t.Run("deactivates by hash", func(t *testing.T) {
		f := newStoreFixture(t)
		mgr := newSessionManager(t, f, nil)
		f.sessions.On("Deactivate", ctx, auth.HashKey(key), mock.MatchedBy(func(at time.Time) bool {
			return at.Location() == time.UTC
		})).Return(true, nil)

		require.NoError(t, mgr.Invalidate(ctx, key))
	})

	t.Run("already inactive is a no-op", func(t *testing.T) {
		f := newStoreFixture(t)
		mgr := newSessionManager(t, f, nil)
		f.sessions.On("Deactivate", ctx, auth.HashKey(key), mock.Anything).Return(false, nil)

		require.NoError(t, mgr.Invalidate(ctx, key))
	})

	t.Run("unknown key is a no-op", func(t *testing.T) {
		f := newStoreFixture(t)
		mgr := newSessionManager(t, f, nil)
		f.sessions.On("Deactivate", ctx, auth.HashKey(key), mock.Anything).Return(false, auth.ErrNotFound)

		require.NoError(t, mgr.Invalidate(ctx, key))
	})

	t.Run("store fault", func(t *testing.T) {
		f := newStoreFixture(t)
		mgr := newSessionManager(t, f, nil)
		f.sessions.On("Deactivate", ctx, auth.HashKey(key), mock.Anything).Return(false, errors.New("EOF"))

		err := mgr.Invalidate(ctx, key)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "SESSION_INVALIDATE_FAILED")
	})
}
