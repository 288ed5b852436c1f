// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

// Package store owns the PostgreSQL schema and connection pool used by the
// credential store.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// PoolOptions tunes OpenPool. Zero values keep the pgxpool defaults.
type PoolOptions struct {
	MaxConns int32
	// ConnectTimeout bounds how long OpenPool waits for the database to
	// answer a ping. Zero means a single attempt.
	ConnectTimeout time.Duration
}

// OpenPool connects to databaseURL and waits until the server answers.
func OpenPool(ctx context.Context, databaseURL string, opts PoolOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	if err := waitForPing(ctx, pool, opts.ConnectTimeout); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

func waitForPing(ctx context.Context, p pinger, timeout time.Duration) error {
	if timeout <= 0 {
		if err := p.Ping(ctx); err != nil {
			return oops.Code("DB_CONNECT_FAILED").With("operation", "ping database").Wrap(err)
		}
		return nil
	}

	backoff := retry.WithMaxDuration(timeout,
		retry.WithCappedDuration(2*time.Second, retry.NewExponential(100*time.Millisecond)))
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := p.Ping(ctx); err != nil {
			slog.DebugContext(ctx, "database not ready", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping database").
			With("attempts", attempt).
			Wrap(err)
	}
	return nil
}
