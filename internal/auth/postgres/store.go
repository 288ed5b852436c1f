// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/keyward/keyward/internal/auth"
)

// querier is the subset of pgx shared by pools and transactions.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Pool is satisfied by *pgxpool.Pool and by pgxmock pools.
type Pool interface {
	querier
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

type txKey struct{}

// conn returns the transaction stored in ctx by WithUserLock, or the pool.
func conn(ctx context.Context, pool Pool) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return pool
}

// Store implements auth.CredentialStore on PostgreSQL.
type Store struct {
	pool     Pool
	users    *UserRepository
	tokens   *AccessTokenRepository
	sessions *SessionRepository
}

// NewStore creates a Store backed by pool. The schema is managed by
// store.Migrator.
func NewStore(pool Pool) *Store {
	return &Store{
		pool:     pool,
		users:    NewUserRepository(pool),
		tokens:   NewAccessTokenRepository(pool),
		sessions: NewSessionRepository(pool),
	}
}

// Users returns the user repository.
func (s *Store) Users() auth.UserRepository { return s.users }

// Tokens returns the access token repository.
func (s *Store) Tokens() auth.AccessTokenRepository { return s.tokens }

// Sessions returns the session repository.
func (s *Store) Sessions() auth.SessionRepository { return s.sessions }

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return oops.Code("STORE_PING_FAILED").With("operation", "ping").Wrap(err)
	}
	return nil
}

// WithUserLock begins a transaction, takes a transaction-scoped advisory lock
// keyed on username and runs fn with the transaction stored in its context.
// The transaction commits if fn returns nil and rolls back otherwise.
func (s *Store) WithUserLock(ctx context.Context, username string, fn func(ctx context.Context) error) error {
	if _, nested := ctx.Value(txKey{}).(pgx.Tx); nested {
		return oops.Code("TX_NESTED").With("username", username).Errorf("user lock is already held")
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return oops.Code("TX_BEGIN_FAILED").With("operation", "begin user lock").Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, username); err != nil {
		return oops.Code("USER_LOCK_FAILED").
			With("operation", "advisory lock").
			With("username", username).
			Wrap(err)
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return oops.Code("TX_COMMIT_FAILED").With("operation", "commit user lock").Wrap(err)
	}
	return nil
}

// Compile-time interface check.
var _ auth.CredentialStore = (*Store)(nil)
