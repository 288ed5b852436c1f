// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/keyward/keyward/internal/auth"
	authpg "github.com/keyward/keyward/internal/auth/postgres"
	"github.com/keyward/keyward/internal/auth/redisstore"
	"github.com/keyward/keyward/internal/config"
	"github.com/keyward/keyward/internal/logging"
	"github.com/keyward/keyward/internal/mail"
	"github.com/keyward/keyward/internal/store"
	"github.com/keyward/keyward/internal/web"
	"github.com/keyward/keyward/pkg/errutil"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the credential API server",
		Long: `Start the HTTP API for registration, email confirmation, password
reset and change, login and logout. Metrics and health probes are served
on a separate listener.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

// runServeWithDeps starts the API with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	deps = deps.withDefaults()

	if err := cfg.Validate(); err != nil {
		return oops.With("operation", "validate configuration").Wrap(err)
	}

	logger, err := setupLogging(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	logger.Info("starting keyward",
		"store", cfg.Store.Driver,
		"http_addr", cfg.HTTP.Addr,
		"mail_transport", cfg.Mail.Transport,
	)

	if cfg.Store.Driver == config.DriverPostgres && cfg.Store.AutoMigrate {
		if err := autoMigrate(cfg.Secrets.DatabaseURL, deps.MigratorFactory, logger); err != nil {
			return err
		}
	}

	credStore, closeStore, err := deps.StoreOpener(ctx, cfg, logger)
	if err != nil {
		return oops.With("operation", "open credential store").Wrap(err)
	}
	defer closeStore()
	logger.Info("connected to credential store", "driver", cfg.Store.Driver)

	mailer, err := deps.MailerFactory(cfg, cmd.OutOrStdout(), logger)
	if err != nil {
		return oops.With("operation", "create mailer").Wrap(err)
	}

	domains, err := auth.NewDomainPolicy(cfg.Auth.AllowedDomains)
	if err != nil {
		return err
	}

	var svc *auth.Service
	obsServer := deps.ObservabilityServerFactory(cfg.Metrics.Addr, func(ctx context.Context) error {
		return svc.Ping(ctx)
	}, logger)
	metrics := obsServer.Metrics()

	svc, err = auth.NewService(auth.ServiceConfig{
		Store:  credStore,
		Hasher: auth.NewArgon2idHasher(),
		Mailer: mailer,
		Issuer: auth.IssuerConfig{
			PublicURL:       cfg.Auth.PublicURL,
			ConfirmationTTL: cfg.Auth.ConfirmationTTL,
			ResetTTL:        cfg.Auth.ResetTTL,
		},
		Domains:  domains,
		Observer: metrics,
		Logger:   logger,
	})
	if err != nil {
		return oops.With("operation", "create credential service").Wrap(err)
	}

	apiServer, err := deps.APIServerFactory(web.Config{
		Addr:         cfg.HTTP.Addr,
		CORSOrigins:  cfg.HTTP.CORSOrigins,
		RateLimit:    cfg.HTTP.RateLimit,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
		TLSCertFile:  cfg.HTTP.TLSCertFile,
		TLSKeyFile:   cfg.HTTP.TLSKeyFile,
	}, svc, metrics, logger)
	if err != nil {
		return oops.With("operation", "create API server").Wrap(err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var running []stopper
	if cfg.Metrics.Addr != "" {
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.With("operation", "start observability server").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability", logger)
		running = append(running, obsServer)
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	apiErrChan, err := apiServer.Start()
	if err != nil {
		stopServers(cfg.HTTP.ShutdownTimeout, logger, running...)
		return oops.With("operation", "start API server").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, apiErrChan, "api", logger)
	running = append([]stopper{apiServer}, running...)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.PrintErrln("keyward started")
	logger.Info("keyward ready", "http_addr", apiServer.Addr())

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	stopServers(cfg.HTTP.ShutdownTimeout, logger, running...)
	logger.Info("shutdown complete")
	return nil
}

type stopper interface {
	Stop(ctx context.Context) error
}

// stopServers stops servers in order, sharing one deadline.
func stopServers(timeout time.Duration, logger *slog.Logger, servers ...stopper) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()

	for _, s := range servers {
		if err := s.Stop(shutdownCtx); err != nil {
			errutil.LogError(logger, "error stopping server", err)
		}
	}
}

// setupLogging installs the keyward handler as the default logger.
func setupLogging(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	logger := logging.Setup("keyward", version, logging.Options{Format: cfg.Log.Format, Level: level}, w)
	slog.SetDefault(logger)
	return logger, nil
}

// autoMigrate applies pending migrations before the store is opened.
func autoMigrate(databaseURL string, factory func(string) (AutoMigrator, error), logger *slog.Logger) error {
	migrator, err := factory(databaseURL)
	if err != nil {
		return oops.Code("AUTO_MIGRATE_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			errutil.LogError(logger, "failed to close migrator", closeErr)
		}
	}()

	if err := migrator.Up(); err != nil {
		return oops.Code("AUTO_MIGRATE_FAILED").With("operation", "apply migrations").Wrap(err)
	}
	logger.Info("database schema up to date")
	return nil
}

// openStore opens the store selected by cfg.Store.Driver.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (auth.CredentialStore, func(), error) {
	switch cfg.Store.Driver {
	case config.DriverRedis:
		opts, err := redis.ParseURL(cfg.Secrets.RedisURL)
		if err != nil {
			return nil, nil, oops.Code("REDIS_CONFIG_INVALID").With("operation", "parse redis url").Wrap(err)
		}
		client := redis.NewClient(opts)
		s := redisstore.NewStore(client, redisstore.Options{
			Prefix:    cfg.Store.RedisPrefix,
			LockLease: cfg.Store.LockLease,
			LockWait:  cfg.Store.LockWait,
			Logger:    logger,
		})

		pingCtx := ctx
		if cfg.Store.ConnectTimeout > 0 {
			var cancel context.CancelFunc
			pingCtx, cancel = context.WithTimeout(ctx, cfg.Store.ConnectTimeout)
			defer cancel()
		}
		if err := s.Ping(pingCtx); err != nil {
			_ = client.Close() //nolint:errcheck // ping error takes precedence
			return nil, nil, oops.Code("REDIS_CONNECT_FAILED").With("operation", "ping redis").Wrap(err)
		}
		return s, func() {
			if err := client.Close(); err != nil {
				logger.Debug("error closing redis client", "error", err)
			}
		}, nil

	case config.DriverPostgres:
		pool, err := store.OpenPool(ctx, cfg.Secrets.DatabaseURL, store.PoolOptions{
			MaxConns:       cfg.Store.MaxConns,
			ConnectTimeout: cfg.Store.ConnectTimeout,
		})
		if err != nil {
			return nil, nil, err
		}
		return authpg.NewStore(pool), pool.Close, nil

	default:
		return nil, nil, oops.Code("CONFIG_INVALID").With("driver", cfg.Store.Driver).Errorf("unknown store driver")
	}
}

// newMailer builds the mailer for cfg.Mail.Transport. The console transport
// writes messages to w.
func newMailer(cfg *config.Config, w io.Writer, logger *slog.Logger) (auth.Mailer, error) {
	composer, err := mail.NewComposer(mail.Settings{
		From:            cfg.Mail.From,
		Product:         cfg.Mail.Product,
		ConfirmationTTL: cfg.Auth.ConfirmationTTL,
		ResetTTL:        cfg.Auth.ResetTTL,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Mail.Transport != config.TransportSMTP {
		return mail.NewConsoleMailer(composer, w, logger), nil
	}
	smtp, err := mail.NewSMTPMailer(composer, mail.SMTPConfig{
		Host:     cfg.Mail.SMTPHost,
		Port:     cfg.Mail.SMTPPort,
		Username: cfg.Mail.SMTPUsername,
		Password: cfg.Secrets.SMTPPassword,
		TLS:      cfg.Mail.SMTPTLS,
		Timeout:  cfg.Mail.SMTPTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}
	return smtp, nil
}

// monitorServerErrors monitors a server's error channel and cancels the context on error.
// It exits when either an error is received, the channel is closed, or the context is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
