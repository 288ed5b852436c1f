// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

// Package config loads keyward configuration from defaults, an optional YAML
// file, and command-line flags, in that order of precedence. Secrets are read
// from the environment only and never printed.
package config

import (
	"net"
	"net/url"
	"time"

	"github.com/samber/oops"

	"github.com/keyward/keyward/internal/auth"
	"github.com/keyward/keyward/internal/mail"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Mail transports.
const (
	TransportConsole = "console"
	TransportSMTP    = "smtp"
)

// Environment variables holding secrets.
const (
	EnvDatabaseURL  = "DATABASE_URL"
	EnvRedisURL     = "REDIS_URL"
	EnvSMTPPassword = "KEYWARD_SMTP_PASSWORD"
)

// Config is the effective configuration.
type Config struct {
	Store   StoreConfig   `koanf:"store" yaml:"store"`
	HTTP    HTTPConfig    `koanf:"http" yaml:"http"`
	Metrics MetricsConfig `koanf:"metrics" yaml:"metrics"`
	Log     LogConfig     `koanf:"log" yaml:"log"`
	Auth    AuthConfig    `koanf:"auth" yaml:"auth"`
	Mail    MailConfig    `koanf:"mail" yaml:"mail"`

	Secrets Secrets `koanf:"-" yaml:"-"`
}

// StoreConfig selects and tunes the credential store.
type StoreConfig struct {
	Driver string `koanf:"driver" yaml:"driver"`
	// AutoMigrate applies pending schema migrations on startup (postgres only).
	AutoMigrate    bool          `koanf:"auto_migrate" yaml:"auto_migrate"`
	MaxConns       int32         `koanf:"max_conns" yaml:"max_conns"`
	ConnectTimeout time.Duration `koanf:"connect_timeout" yaml:"connect_timeout"`
	RedisPrefix    string        `koanf:"redis_prefix" yaml:"redis_prefix"`
	LockLease      time.Duration `koanf:"lock_lease" yaml:"lock_lease"`
	LockWait       time.Duration `koanf:"lock_wait" yaml:"lock_wait"`
}

// HTTPConfig configures the public API listener.
type HTTPConfig struct {
	Addr            string        `koanf:"addr" yaml:"addr"`
	CORSOrigins     []string      `koanf:"cors_origins" yaml:"cors_origins,omitempty"`
	RateLimit       int           `koanf:"rate_limit" yaml:"rate_limit"`
	MaxBodyBytes    int64         `koanf:"max_body_bytes" yaml:"max_body_bytes"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
	// TLSCertFile and TLSKeyFile enable HTTPS when both are set.
	TLSCertFile string `koanf:"tls_cert_file" yaml:"tls_cert_file,omitempty"`
	TLSKeyFile  string `koanf:"tls_key_file" yaml:"tls_key_file,omitempty"`
}

// MetricsConfig configures the observability listener. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr" yaml:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format" yaml:"format"`
	Level  string `koanf:"level" yaml:"level"`
}

// AuthConfig configures the credential service.
type AuthConfig struct {
	PublicURL       string        `koanf:"public_url" yaml:"public_url"`
	ConfirmationTTL time.Duration `koanf:"confirmation_ttl" yaml:"confirmation_ttl"`
	ResetTTL        time.Duration `koanf:"reset_ttl" yaml:"reset_ttl"`
	// AllowedDomains are glob patterns over the domain part of a username.
	// Empty allows every domain.
	AllowedDomains []string `koanf:"allowed_domains" yaml:"allowed_domains,omitempty"`
}

// MailConfig configures the mailer.
type MailConfig struct {
	Transport    string        `koanf:"transport" yaml:"transport"`
	From         string        `koanf:"from" yaml:"from"`
	Product      string        `koanf:"product" yaml:"product"`
	SMTPHost     string        `koanf:"smtp_host" yaml:"smtp_host"`
	SMTPPort     int           `koanf:"smtp_port" yaml:"smtp_port"`
	SMTPUsername string        `koanf:"smtp_username" yaml:"smtp_username"`
	SMTPTLS      string        `koanf:"smtp_tls" yaml:"smtp_tls"`
	SMTPTimeout  time.Duration `koanf:"smtp_timeout" yaml:"smtp_timeout"`
}

// Secrets come from the environment.
type Secrets struct {
	DatabaseURL  string
	RedisURL     string
	SMTPPassword string
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Store: StoreConfig{
			Driver:         DriverPostgres,
			AutoMigrate:    true,
			MaxConns:       10,
			ConnectTimeout: 10 * time.Second,
			RedisPrefix:    "keyward:",
			LockLease:      10 * time.Second,
			LockWait:       5 * time.Second,
		},
		HTTP: HTTPConfig{
			Addr:            "127.0.0.1:8080",
			RateLimit:       60,
			MaxBodyBytes:    64 << 10,
			ShutdownTimeout: 15 * time.Second,
		},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
		Log:     LogConfig{Format: "json", Level: "info"},
		Auth: AuthConfig{
			PublicURL:       "http://localhost:3000",
			ConfirmationTTL: auth.DefaultConfirmationTTL,
			ResetTTL:        auth.DefaultResetTTL,
		},
		Mail: MailConfig{
			Transport:   TransportConsole,
			From:        "Keyward <no-reply@localhost>",
			Product:     "Keyward",
			SMTPPort:    587,
			SMTPTLS:     mail.TLSMandatory,
			SMTPTimeout: 15 * time.Second,
		},
	}
}

// Validate checks the configuration, including that the secrets needed by
// the selected drivers are present.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverPostgres:
		if c.Secrets.DatabaseURL == "" {
			return invalid("store.driver", EnvDatabaseURL+" is required for the postgres store")
		}
		if c.Store.MaxConns < 1 {
			return invalid("store.max_conns", "must be at least 1")
		}
	case DriverRedis:
		if c.Secrets.RedisURL == "" {
			return invalid("store.driver", EnvRedisURL+" is required for the redis store")
		}
		if c.Store.LockLease <= 0 || c.Store.LockWait <= 0 {
			return invalid("store.lock_lease", "lock lease and wait must be positive")
		}
	default:
		return invalid("store.driver", "must be 'postgres' or 'redis'")
	}

	if err := validAddr("http.addr", c.HTTP.Addr); err != nil {
		return err
	}
	if c.Metrics.Addr != "" {
		if err := validAddr("metrics.addr", c.Metrics.Addr); err != nil {
			return err
		}
	}
	if c.HTTP.RateLimit < 0 {
		return invalid("http.rate_limit", "must not be negative")
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		return invalid("http.max_body_bytes", "must be positive")
	}
	if (c.HTTP.TLSCertFile == "") != (c.HTTP.TLSKeyFile == "") {
		return invalid("http.tls_cert_file", "and http.tls_key_file must be set together")
	}

	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "must be 'json' or 'text'")
	}

	u, err := url.Parse(c.Auth.PublicURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("auth.public_url", "must be an absolute http(s) URL")
	}
	if c.Auth.ConfirmationTTL <= 0 || c.Auth.ResetTTL <= 0 {
		return invalid("auth.confirmation_ttl", "access key lifetimes must be positive")
	}
	if _, err := auth.NewDomainPolicy(c.Auth.AllowedDomains); err != nil {
		return oops.Code("CONFIG_INVALID").With("field", "auth.allowed_domains").Wrap(err)
	}

	switch c.Mail.Transport {
	case TransportConsole:
	case TransportSMTP:
		if c.Mail.SMTPHost == "" {
			return invalid("mail.smtp_host", "is required for the smtp transport")
		}
		switch c.Mail.SMTPTLS {
		case mail.TLSMandatory, mail.TLSOpportunistic, mail.TLSNone:
		default:
			return invalid("mail.smtp_tls", "must be 'mandatory', 'opportunistic' or 'none'")
		}
	default:
		return invalid("mail.transport", "must be 'console' or 'smtp'")
	}
	if c.Mail.From == "" {
		return invalid("mail.from", "is required")
	}
	return nil
}

func validAddr(field, addr string) error {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return oops.Code("CONFIG_INVALID").With("field", field).With("value", addr).Wrap(err)
	}
	return nil
}

func invalid(field, msg string) error {
	return oops.Code("CONFIG_INVALID").With("field", field).Errorf("%s %s", field, msg)
}
