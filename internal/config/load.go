// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package config

import (
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
	yamlv3 "gopkg.in/yaml.v3"
)

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"store-driver":    "store.driver",
	"auto-migrate":    "store.auto_migrate",
	"http-addr":       "http.addr",
	"cors-origins":    "http.cors_origins",
	"rate-limit":      "http.rate_limit",
	"tls-cert":        "http.tls_cert_file",
	"tls-key":         "http.tls_key_file",
	"metrics-addr":    "metrics.addr",
	"log-format":      "log.format",
	"log-level":       "log.level",
	"public-url":      "auth.public_url",
	"allowed-domains": "auth.allowed_domains",
	"mail-transport":  "mail.transport",
	"mail-from":       "mail.from",
	"smtp-host":       "mail.smtp_host",
	"smtp-port":       "mail.smtp_port",
	"smtp-username":   "mail.smtp_username",
	"smtp-tls":        "mail.smtp_tls",
}

// RegisterFlags adds the configuration flags to fs with the built-in
// defaults.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("store-driver", d.Store.Driver, "credential store driver (postgres, redis)")
	fs.Bool("auto-migrate", d.Store.AutoMigrate, "apply pending migrations on startup (postgres only)")
	fs.String("http-addr", d.HTTP.Addr, "API listen address")
	fs.StringSlice("cors-origins", d.HTTP.CORSOrigins, "allowed CORS origins")
	fs.Int("rate-limit", d.HTTP.RateLimit, "requests per minute per client IP (0 disables)")
	fs.String("tls-cert", d.HTTP.TLSCertFile, "PEM certificate file for HTTPS")
	fs.String("tls-key", d.HTTP.TLSKeyFile, "PEM private key file for HTTPS")
	fs.String("metrics-addr", d.Metrics.Addr, "metrics and health listen address (empty disables)")
	fs.String("log-format", d.Log.Format, "log format (json, text)")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.String("public-url", d.Auth.PublicURL, "base URL used in emailed links")
	fs.StringSlice("allowed-domains", d.Auth.AllowedDomains, "email domain globs allowed to register")
	fs.String("mail-transport", d.Mail.Transport, "mail transport (console, smtp)")
	fs.String("mail-from", d.Mail.From, "sender address")
	fs.String("smtp-host", d.Mail.SMTPHost, "SMTP server host")
	fs.Int("smtp-port", d.Mail.SMTPPort, "SMTP server port")
	fs.String("smtp-username", d.Mail.SMTPUsername, "SMTP username")
	fs.String("smtp-tls", d.Mail.SMTPTLS, "SMTP TLS policy (mandatory, opportunistic, none)")
}

// Load builds the effective configuration. Values from the YAML file at path
// override the defaults, and flags explicitly set on fs override the file.
// Either argument may be empty or nil. The result is not validated.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	ko := koanf.New(".")

	if path != "" {
		if err := ko.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_READ_FAILED").With("path", path).Wrap(err)
		}
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", ko, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := ko.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	cfg := Default()
	if err := ko.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").With("path", path).Wrap(err)
	}

	cfg.Secrets = Secrets{
		DatabaseURL:  os.Getenv(EnvDatabaseURL),
		RedisURL:     os.Getenv(EnvRedisURL),
		SMTPPassword: os.Getenv(EnvSMTPPassword),
	}
	return &cfg, nil
}

// YAML renders the configuration without secrets.
func (c *Config) YAML() ([]byte, error) {
	out, err := yamlv3.Marshal(c)
	if err != nil {
		return nil, oops.Code("CONFIG_ENCODE_FAILED").Wrap(err)
	}
	return out, nil
}
