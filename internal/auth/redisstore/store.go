// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

// Package redisstore implements auth.CredentialStore on Redis. Each record is
// a hash; conditional writes run as Lua scripts so they are atomic on the
// server. WithUserLock is a leased lock key, not a transaction: writes made
// before fn fails are kept.
package redisstore

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/keyward/keyward/internal/auth"
)

// Defaults applied by NewStore.
const (
	DefaultPrefix    = "keyward:"
	DefaultLockLease = 10 * time.Second
	DefaultLockWait  = 5 * time.Second
)

// Options configures a Store. Zero values take the defaults above.
type Options struct {
	// Prefix namespaces every key the store touches.
	Prefix string

	// LockLease bounds how long a crashed holder can block a user.
	LockLease time.Duration

	// LockWait bounds how long WithUserLock waits for a busy lock.
	LockWait time.Duration

	Logger *slog.Logger
}

type lockKey struct{}

var errLockBusy = errors.New("user lock is held by another caller")

// Store implements auth.CredentialStore on Redis.
type Store struct {
	client   redis.UniversalClient
	keys     keyspace
	lease    time.Duration
	wait     time.Duration
	logger   *slog.Logger
	users    *UserRepository
	tokens   *AccessTokenRepository
	sessions *SessionRepository
}

// NewStore creates a Store on client.
func NewStore(client redis.UniversalClient, opts Options) *Store {
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.LockLease <= 0 {
		opts.LockLease = DefaultLockLease
	}
	if opts.LockWait <= 0 {
		opts.LockWait = DefaultLockWait
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	keys := keyspace(opts.Prefix)
	return &Store{
		client:   client,
		keys:     keys,
		lease:    opts.LockLease,
		wait:     opts.LockWait,
		logger:   opts.Logger,
		users:    &UserRepository{client: client, keys: keys},
		tokens:   &AccessTokenRepository{client: client, keys: keys},
		sessions: &SessionRepository{client: client, keys: keys},
	}
}

// Users returns the user repository.
func (s *Store) Users() auth.UserRepository { return s.users }

// Tokens returns the access token repository.
func (s *Store) Tokens() auth.AccessTokenRepository { return s.tokens }

// Sessions returns the session repository.
func (s *Store) Sessions() auth.SessionRepository { return s.sessions }

// Ping checks that Redis answers.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return oops.Code("STORE_PING_FAILED").With("operation", "ping").Wrap(err)
	}
	return nil
}

// WithUserLock takes the lease lock for username, retrying with backoff while
// another holder has it, and runs fn.
func (s *Store) WithUserLock(ctx context.Context, username string, fn func(ctx context.Context) error) error {
	if _, nested := ctx.Value(lockKey{}).(string); nested {
		return oops.Code("LOCK_NESTED").With("username", username).Errorf("user lock is already held")
	}

	key := s.keys.lock(username)
	token := ulid.Make().String()

	backoff := retry.WithMaxDuration(s.wait,
		retry.WithJitterPercent(20,
			retry.WithCappedDuration(100*time.Millisecond, retry.NewExponential(2*time.Millisecond))))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		ok, err := s.client.SetNX(ctx, key, token, s.lease).Result()
		if err != nil {
			return err
		}
		if !ok {
			return retry.RetryableError(errLockBusy)
		}
		return nil
	})
	if errors.Is(err, errLockBusy) {
		return oops.Code("USER_LOCK_TIMEOUT").
			With("username", username).
			With("wait", s.wait.String()).
			Wrap(err)
	}
	if err != nil {
		return oops.Code("USER_LOCK_FAILED").
			With("operation", "acquire user lock").
			With("username", username).
			Wrap(err)
	}

	defer s.unlock(context.WithoutCancel(ctx), key, token, username)
	return fn(context.WithValue(ctx, lockKey{}, username))
}

func (s *Store) unlock(ctx context.Context, key, token, username string) {
	released, err := unlockScript.Run(ctx, s.client, []string{key}, token).Int64()
	if err != nil {
		s.logger.ErrorContext(ctx, "user lock release failed", "username", username, "error", err)
		return
	}
	if released == 0 {
		s.logger.WarnContext(ctx, "user lock lease expired before release",
			"username", username,
			"lease", s.lease.String())
	}
}

// keyspace builds prefixed keys.
type keyspace string

func (k keyspace) user(username string) string { return string(k) + "user:" + username }
func (k keyspace) token(keyHash string) string { return string(k) + "token:" + keyHash }
func (k keyspace) tokenExpiry() string { return string(k) + "tokens:expiry" }
func (k keyspace) session(keyHash string) string { return string(k) + "session:" + keyHash }
func (k keyspace) lock(username string) string { return string(k) + "lock:user:" + username }

// Compile-time interface check.
var _ auth.CredentialStore = (*Store)(nil)
