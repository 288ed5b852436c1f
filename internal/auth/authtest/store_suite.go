// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package authtest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyward/keyward/internal/auth"
)

// Password satisfies the complexity rules.
const Password = "Valid1$Pass"

// StoreFactory returns the CredentialStore under test. Stores may be shared
// between subtests; every subtest works on its own usernames.
type StoreFactory func(t *testing.T) auth.CredentialStore

// Username returns a fresh, valid username.
func Username() string {
	return strings.ToLower(ulid.Make().String()) + "@example.com"
}

// RunCredentialStoreSuite checks that a CredentialStore implementation
// honors the repository contracts, the per-user lock and the end-to-end
// session lifecycle, including recovery from failed writes.
func RunCredentialStoreSuite(t *testing.T, newStore StoreFactory) {
	t.Helper()

	t.Run("users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("access tokens", func(t *testing.T) { testTokens(t, newStore(t)) })
	t.Run("sessions", func(t *testing.T) { testSessions(t, newStore(t)) })
	t.Run("user lock", func(t *testing.T) { testUserLock(t, newStore(t)) })
	t.Run("scenarios", func(t *testing.T) { testScenarios(t, newStore(t)) })
	t.Run("concurrent open", func(t *testing.T) { testConcurrentOpen(t, newStore(t)) })
	t.Run("faults", func(t *testing.T) { testFaults(t, newStore(t)) })
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func testUsers(t *testing.T, store auth.CredentialStore) {
	ctx := context.Background()
	users := store.Users()
	name := Username()
	created := now()

	_, err := users.Get(ctx, name)
	require.ErrorIs(t, err, auth.ErrNotFound)

	require.NoError(t, users.Create(ctx, &auth.User{
		Username:     name,
		PasswordHash: "$argon2id$first",
		CreatedAt:    created,
		UpdatedAt:    created,
	}))

	got, err := users.Get(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, name, got.Username)
	assert.Equal(t, "$argon2id$first", got.PasswordHash)
	assert.Empty(t, got.AuthKey)
	assert.Equal(t, auth.RoleNone, got.Role)
	assert.False(t, got.Active)
	assert.Nil(t, got.LastLogin)
	assert.WithinDuration(t, created, got.CreatedAt, time.Millisecond)

	err = users.Create(ctx, &auth.User{Username: name, PasswordHash: "x", CreatedAt: created, UpdatedAt: created})
	require.ErrorIs(t, err, auth.ErrUserExists)
	assert.ErrorIs(t, err, auth.ErrConflict)

	_, err = users.Get(ctx, strings.ToUpper(name))
	assert.ErrorIs(t, err, auth.ErrNotFound, "usernames are case-sensitive")

	loginAt := now()
	require.NoError(t, users.SetRole(ctx, name, auth.RoleViewer))
	require.NoError(t, users.Activate(ctx, name))
	require.NoError(t, users.SetAuthKey(ctx, name, "session-hash"))
	require.NoError(t, users.SetPasswordHash(ctx, name, "$argon2id$second"))
	require.NoError(t, users.TouchLastLogin(ctx, name, loginAt))

	n, err := users.RecordLoginFailure(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = users.RecordLoginFailure(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err = users.Get(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleViewer, got.Role)
	assert.True(t, got.Active)
	assert.Equal(t, "session-hash", got.AuthKey)
	assert.Equal(t, "$argon2id$second", got.PasswordHash)
	assert.Equal(t, 2, got.FailedAttempts)
	require.NotNil(t, got.LastLogin)
	assert.WithinDuration(t, loginAt, *got.LastLogin, time.Millisecond)

	require.NoError(t, users.ResetLoginFailures(ctx, name))
	got, err = users.Get(ctx, name)
	require.NoError(t, err)
	assert.Zero(t, got.FailedAttempts)

	missing := Username()
	assert.ErrorIs(t, users.SetRole(ctx, missing, auth.RoleEditor), auth.ErrNotFound)
	assert.ErrorIs(t, users.Activate(ctx, missing), auth.ErrNotFound)
	assert.ErrorIs(t, users.SetAuthKey(ctx, missing, "h"), auth.ErrNotFound)
	_, err = users.RecordLoginFailure(ctx, missing)
	assert.ErrorIs(t, err, auth.ErrNotFound)
	_, err = users.Get(ctx, missing)
	assert.ErrorIs(t, err, auth.ErrNotFound, "updates never create a user")
}

func newToken(t *testing.T, username string, purpose auth.Purpose, expires time.Time) (string, *auth.AccessToken) {
	t.Helper()
	key, hash, err := auth.GenerateKey()
	require.NoError(t, err)
	return key, &auth.AccessToken{
		KeyHash:   hash,
		Username:  username,
		Purpose:   purpose,
		CreatedAt: now(),
		ExpiresAt: expires,
	}
}

func testTokens(t *testing.T, store auth.CredentialStore) {
	ctx := context.Background()
	tokens := store.Tokens()
	name := Username()

	t.Run("consumed at most once", func(t *testing.T) {
		_, tok := newToken(t, name, auth.PurposeConfirmation, now().Add(time.Hour))
		require.NoError(t, tokens.Create(ctx, tok))

		_, err := tokens.Consume(ctx, tok.KeyHash, auth.PurposeReset, "", now())
		require.ErrorIs(t, err, auth.ErrNotFound, "wrong purpose")

		owner, err := tokens.Consume(ctx, tok.KeyHash, auth.PurposeConfirmation, "", now())
		require.NoError(t, err)
		assert.Equal(t, name, owner)

		_, err = tokens.Consume(ctx, tok.KeyHash, auth.PurposeConfirmation, "", now())
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("owner mismatch leaves the token usable", func(t *testing.T) {
		_, tok := newToken(t, name, auth.PurposeReset, now().Add(time.Hour))
		require.NoError(t, tokens.Create(ctx, tok))

		_, err := tokens.Consume(ctx, tok.KeyHash, auth.PurposeReset, Username(), now())
		require.ErrorIs(t, err, auth.ErrNotFound)

		owner, err := tokens.Consume(ctx, tok.KeyHash, auth.PurposeReset, name, now())
		require.NoError(t, err)
		assert.Equal(t, name, owner)
	})

	t.Run("concurrent consumers", func(t *testing.T) {
		_, tok := newToken(t, name, auth.PurposeReset, now().Add(time.Hour))
		require.NoError(t, tokens.Create(ctx, tok))

		const workers = 8
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				owner, err := tokens.Consume(ctx, tok.KeyHash, auth.PurposeReset, "", now())
				if err == nil && owner == name {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
	})

	t.Run("expired", func(t *testing.T) {
		expiry := now().Add(time.Hour)
		_, tok := newToken(t, name, auth.PurposeConfirmation, expiry)
		require.NoError(t, tokens.Create(ctx, tok))

		_, err := tokens.Consume(ctx, tok.KeyHash, auth.PurposeConfirmation, "", expiry)
		require.ErrorIs(t, err, auth.ErrNotFound, "a key is dead at its expiry instant")
		_, err = tokens.Consume(ctx, tok.KeyHash, auth.PurposeConfirmation, "", expiry.Add(time.Minute))
		require.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("delete expired", func(t *testing.T) {
		expiry := now().Add(time.Hour)
		_, stale := newToken(t, name, auth.PurposeConfirmation, expiry)
		require.NoError(t, tokens.Create(ctx, stale))
		_, fresh := newToken(t, name, auth.PurposeConfirmation, expiry.Add(24*time.Hour))
		require.NoError(t, tokens.Create(ctx, fresh))

		n, err := tokens.DeleteExpired(ctx, expiry.Add(time.Second))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, int64(1))

		_, err = tokens.Consume(ctx, stale.KeyHash, auth.PurposeConfirmation, "", now())
		assert.ErrorIs(t, err, auth.ErrNotFound)
		owner, err := tokens.Consume(ctx, fresh.KeyHash, auth.PurposeConfirmation, "", now())
		require.NoError(t, err)
		assert.Equal(t, name, owner)
	})
}

func testSessions(t *testing.T, store auth.CredentialStore) {
	ctx := context.Background()
	sessions := store.Sessions()
	_, hash, err := auth.GenerateKey()
	require.NoError(t, err)

	_, err = sessions.Get(ctx, hash)
	require.ErrorIs(t, err, auth.ErrNotFound)

	opened := now()
	s := &auth.Session{
		KeyHash:      hash,
		ID:           ulid.Make(),
		Username:     Username(),
		Active:       true,
		CreatedAt:    opened,
		LastModified: opened,
	}
	require.NoError(t, sessions.Create(ctx, s))

	got, err := sessions.Get(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, s.Username, got.Username)
	assert.True(t, got.Active)
	assert.WithinDuration(t, opened, got.CreatedAt, time.Millisecond)

	closed := opened.Add(time.Minute)
	ok, err := sessions.Deactivate(ctx, hash, closed)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = sessions.Deactivate(ctx, hash, closed.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "inactive sessions stay put")

	got, err = sessions.Get(ctx, hash)
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.WithinDuration(t, closed, got.LastModified, time.Millisecond)

	ok, err = sessions.Deactivate(ctx, "no-such-hash", closed)
	require.NoError(t, err)
	assert.False(t, ok)
}

func testUserLock(t *testing.T, store auth.CredentialStore) {
	ctx := context.Background()
	name := Username()

	t.Run("serializes holders", func(t *testing.T) {
		const workers = 8
		var inside, overlaps, runs atomic.Int32
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- store.WithUserLock(ctx, name, func(context.Context) error {
					if inside.Add(1) != 1 {
						overlaps.Add(1)
					}
					time.Sleep(5 * time.Millisecond)
					inside.Add(-1)
					runs.Add(1)
					return nil
				})
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}
		assert.Equal(t, int32(workers), runs.Load())
		assert.Zero(t, overlaps.Load())
	})

	t.Run("returns the callback error", func(t *testing.T) {
		boom := errors.New("boom")
		err := store.WithUserLock(ctx, name, func(context.Context) error { return boom })
		assert.ErrorIs(t, err, boom)

		require.NoError(t, store.WithUserLock(ctx, name, func(context.Context) error { return nil }),
			"a failed holder releases the lock")
	})

	t.Run("writes through the lock context", func(t *testing.T) {
		created := now()
		err := store.WithUserLock(ctx, name, func(ctx context.Context) error {
			return store.Users().Create(ctx, &auth.User{
				Username: name, PasswordHash: "h", CreatedAt: created, UpdatedAt: created,
			})
		})
		require.NoError(t, err)
		_, err = store.Users().Get(ctx, name)
		assert.NoError(t, err)
	})
}

func newService(t *testing.T, store auth.CredentialStore, outbox *Outbox) *auth.Service {
	t.Helper()
	svc, err := auth.NewService(auth.ServiceConfig{
		Store:  store,
		Hasher: auth.NewArgon2idHasher(),
		Mailer: outbox,
		Issuer: auth.IssuerConfig{PublicURL: "https://keyward.example.com"},
	})
	require.NoError(t, err)
	return svc
}

func testScenarios(t *testing.T, store auth.CredentialStore) {
	ctx := context.Background()
	outbox := &Outbox{}
	svc := newService(t, store, outbox)
	name := Username()

	// Registration: a second account for the same address conflicts.
	require.NoError(t, svc.Users().CreateUser(ctx, name, Password))
	err := svc.Users().CreateUser(ctx, name, Password)
	require.ErrorIs(t, err, auth.ErrConflict)

	// Confirmation then login.
	key, _, err := svc.Issuer().Issue(ctx, name, auth.PurposeConfirmation)
	require.NoError(t, err)
	owner, err := svc.Issuer().Validate(ctx, key, auth.PurposeConfirmation)
	require.NoError(t, err)
	require.Equal(t, name, owner)
	s1, err := svc.Sessions().Open(ctx, name)
	require.NoError(t, err)

	again, err := svc.Issuer().Validate(ctx, key, auth.PurposeConfirmation)
	require.NoError(t, err)
	assert.Empty(t, again, "access keys validate once")

	require.NoError(t, svc.Users().Activate(ctx, name))
	login, err := svc.Login(ctx, name, Password)
	require.NoError(t, err)
	s2 := login.SessionKey
	assert.NotEqual(t, s1, s2)
	assert.Equal(t, login.AuthKey, login.SessionKey)

	who, err := svc.Sessions().Validate(ctx, s1)
	require.NoError(t, err)
	assert.Empty(t, who, "login rotates the previous session out")
	who, err = svc.Sessions().Validate(ctx, s2)
	require.NoError(t, err)
	assert.Equal(t, name, who)

	// Logout.
	require.NoError(t, svc.Sessions().Invalidate(ctx, s2))
	who, err = svc.Sessions().Validate(ctx, s2)
	require.NoError(t, err)
	assert.Empty(t, who)

	t.Run("register, confirm and reset through the service", func(t *testing.T) {
		name := Username()
		require.NoError(t, svc.Register(ctx, name, Password))

		msg, ok := outbox.Last(KindConfirmation, name)
		require.True(t, ok)
		_, err := svc.SetNewPassword(ctx, name, msg.AccessKey(), "N3w_Password")
		require.ErrorIs(t, err, auth.ErrAuthentication, "a confirmation key cannot reset a password")

		msg, ok = outbox.Last(KindConfirmation, name)
		require.True(t, ok)
		require.NoError(t, svc.ResendConfirmation(ctx, name))
		fresh, ok := outbox.Last(KindConfirmation, name)
		require.True(t, ok)
		require.NotEqual(t, msg.AccessKey(), fresh.AccessKey())

		confirmed, err := svc.ConfirmEmail(ctx, fresh.AccessKey())
		require.NoError(t, err)
		assert.Equal(t, auth.RoleViewer, confirmed.Role)

		require.NoError(t, svc.ResetPassword(ctx, name))
		reset, ok := outbox.Last(KindReset, name)
		require.True(t, ok)
		_, err = svc.ConfirmEmail(ctx, reset.AccessKey())
		require.ErrorIs(t, err, auth.ErrAuthentication, "a reset key cannot confirm an account")

		require.NoError(t, svc.ResetPassword(ctx, name))
		reset, _ = outbox.Last(KindReset, name)
		result, err := svc.SetNewPassword(ctx, name, reset.AccessKey(), "N3w_Password")
		require.NoError(t, err)

		id, err := svc.VerifySession(ctx, name, result.SessionKey)
		require.NoError(t, err)
		assert.Equal(t, auth.RoleViewer, id.Role)

		_, err = svc.VerifySession(ctx, name, confirmed.SessionKey)
		assert.ErrorIs(t, err, auth.ErrAuthentication)

		_, err = svc.Login(ctx, name, Password)
		assert.ErrorIs(t, err, auth.ErrAuthentication, "the old password is gone")

		require.NoError(t, svc.Logout(ctx, name, result.SessionKey))
		_, err = svc.VerifySession(ctx, name, result.SessionKey)
		assert.ErrorIs(t, err, auth.ErrAuthentication)
	})
}

func testConcurrentOpen(t *testing.T, store auth.CredentialStore) {
	ctx := context.Background()
	svc := newService(t, store, &Outbox{})
	name := Username()
	require.NoError(t, svc.Users().CreateUser(ctx, name, Password))

	const workers = 8
	keys := make([]string, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			keys[i], errs[i] = svc.Sessions().Open(ctx, name)
		}()
	}
	wg.Wait()

	var live []string
	for i, key := range keys {
		require.NoError(t, errs[i])
		who, err := svc.Sessions().Validate(ctx, key)
		require.NoError(t, err)
		if who != "" {
			live = append(live, key)
		}
	}
	require.Len(t, live, 1, "exactly one session survives")

	user, err := svc.Users().GetUser(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, auth.HashKey(live[0]), user.AuthKey)
}

func testFaults(t *testing.T, store auth.CredentialStore) {
	ctx := context.Background()
	faulty := NewFaultyStore(store)
	outbox := &Outbox{}
	svc := newService(t, faulty, outbox)

	for _, fault := range []Fault{FaultDeactivate, FaultSetAuthKey, FaultSessionCreate, FaultSessionWritten} {
		t.Run("open after "+string(fault)+" failure", func(t *testing.T) {
			name := Username()
			require.NoError(t, svc.Users().CreateUser(ctx, name, Password))
			first, err := svc.Sessions().Open(ctx, name)
			require.NoError(t, err)

			faulty.FailNext(fault)
			_, err = svc.Sessions().Open(ctx, name)
			require.Error(t, err)
			require.False(t, faulty.Armed(fault))
			assert.Equal(t, auth.KindInfrastructure, auth.KindOf(err))

			active, err := faulty.ActiveSessions(ctx, name)
			require.NoError(t, err)
			assert.LessOrEqual(t, active, 1, "a failed open never leaves two active sessions")

			last, err := svc.Sessions().Open(ctx, name)
			require.NoError(t, err)

			active, err = faulty.ActiveSessions(ctx, name)
			require.NoError(t, err)
			assert.Equal(t, 1, active)
			who, err := svc.Sessions().Validate(ctx, last)
			require.NoError(t, err)
			assert.Equal(t, name, who)
			who, err = svc.Sessions().Validate(ctx, first)
			require.NoError(t, err)
			assert.Empty(t, who)
		})
	}

	for _, fault := range []Fault{FaultSessionCreate, FaultSessionWritten, FaultActivate} {
		t.Run("confirmation after "+string(fault)+" failure", func(t *testing.T) {
			name := Username()
			require.NoError(t, svc.Register(ctx, name, Password))
			spent, ok := outbox.Last(KindConfirmation, name)
			require.True(t, ok)

			faulty.FailNext(fault)
			_, err := svc.ConfirmEmail(ctx, spent.AccessKey())
			require.Error(t, err)
			require.False(t, faulty.Armed(fault))
			assert.Equal(t, auth.KindInfrastructure, auth.KindOf(err))

			_, err = svc.ConfirmEmail(ctx, spent.AccessKey())
			require.ErrorIs(t, err, auth.ErrAuthentication, "the key was consumed")
			_, err = svc.Login(ctx, name, Password)
			require.ErrorIs(t, err, auth.ErrAuthentication, "the account is still unconfirmed")

			require.NoError(t, svc.ResendConfirmation(ctx, name))
			fresh, ok := outbox.Last(KindConfirmation, name)
			require.True(t, ok)
			require.NotEqual(t, spent.AccessKey(), fresh.AccessKey())

			confirmed, err := svc.ConfirmEmail(ctx, fresh.AccessKey())
			require.NoError(t, err)
			assert.Equal(t, auth.RoleViewer, confirmed.Role)

			login, err := svc.Login(ctx, name, Password)
			require.NoError(t, err)
			active, err := faulty.ActiveSessions(ctx, name)
			require.NoError(t, err)
			assert.Equal(t, 1, active)
			who, err := svc.Sessions().Validate(ctx, login.SessionKey)
			require.NoError(t, err)
			assert.Equal(t, name, who)
		})
	}

	t.Run("reset key survives a mistyped username", func(t *testing.T) {
		name := Username()
		require.NoError(t, svc.Register(ctx, name, Password))
		msg, ok := outbox.Last(KindConfirmation, name)
		require.True(t, ok)
		_, err := svc.ConfirmEmail(ctx, msg.AccessKey())
		require.NoError(t, err)

		require.NoError(t, svc.ResetPassword(ctx, name))
		reset, ok := outbox.Last(KindReset, name)
		require.True(t, ok)

		_, err = svc.SetNewPassword(ctx, Username(), reset.AccessKey(), "N3w_Password")
		require.ErrorIs(t, err, auth.ErrAuthentication)

		result, err := svc.SetNewPassword(ctx, name, reset.AccessKey(), "N3w_Password")
		require.NoError(t, err)
		assert.Equal(t, name, result.Username)
	})
}
