// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/keyward/keyward/internal/auth"
	"github.com/keyward/keyward/internal/config"
	"github.com/keyward/keyward/internal/observability"
	"github.com/keyward/keyward/internal/store"
	"github.com/keyward/keyward/internal/web"
)

// StoreOpener opens the configured credential store. The returned func
// releases its connections.
type StoreOpener func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (auth.CredentialStore, func(), error)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// StoreOpener opens the credential store.
	// Default: openStore
	StoreOpener StoreOpener

	// MigratorFactory creates a migrator for auto-migration.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (AutoMigrator, error)

	// MailerFactory creates the mailer for the configured transport.
	// Default: newMailer
	MailerFactory func(cfg *config.Config, w io.Writer, logger *slog.Logger) (auth.Mailer, error)

	// APIServerFactory creates the HTTP API server.
	// Default: web.NewServer
	APIServerFactory func(cfg web.Config, svc web.CredentialService, recorder web.Recorder, logger *slog.Logger) (APIServer, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer
}

func (d *ServeDeps) withDefaults() *ServeDeps {
	if d == nil {
		d = &ServeDeps{}
	}
	if d.StoreOpener == nil {
		d.StoreOpener = openStore
	}
	if d.MigratorFactory == nil {
		d.MigratorFactory = func(databaseURL string) (AutoMigrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
	if d.MailerFactory == nil {
		d.MailerFactory = newMailer
	}
	if d.APIServerFactory == nil {
		d.APIServerFactory = func(cfg web.Config, svc web.CredentialService, recorder web.Recorder, logger *slog.Logger) (APIServer, error) {
			return web.NewServer(cfg, svc, recorder, logger)
		}
	}
	if d.ObservabilityServerFactory == nil {
		d.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker, logger)
		}
	}
	return d
}

// AutoMigrator wraps the methods serve uses from store.Migrator.
type AutoMigrator interface {
	Up() error
	Close() error
}

// APIServer wraps the methods used from web.Server.
type APIServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}
