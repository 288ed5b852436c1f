// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package mail

import (
	"context"
	"log/slog"
	"sync"
	"time"

	gomail "github.com/wneessen/go-mail"
	"github.com/samber/oops"

	"github.com/keyward/keyward/internal/auth"
)

// TLS policies accepted by SMTPConfig.TLS.
const (
	TLSMandatory     = "mandatory"
	TLSOpportunistic = "opportunistic"
	TLSNone          = "none"
)

// SMTPConfig configures the SMTP relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	TLS      string
	Timeout  time.Duration
}

// SMTPMailer delivers messages through an SMTP relay, one connection per
// message.
type SMTPMailer struct {
	composer *Composer
	client   *gomail.Client
	logger   *slog.Logger

	// go-mail clients hold connection state and are not safe for
	// concurrent dials.
	mu sync.Mutex
}

// NewSMTPMailer validates cfg and builds the client. No connection is made
// until the first send.
func NewSMTPMailer(composer *Composer, cfg SMTPConfig, logger *slog.Logger) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, oops.Code("MAIL_INVALID_CONFIG").Errorf("smtp host is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	policy, err := tlsPolicy(cfg.TLS)
	if err != nil {
		return nil, err
	}

	opts := []gomail.Option{gomail.WithTLSPolicy(policy)}
	if cfg.Port > 0 {
		opts = append(opts, gomail.WithPort(cfg.Port))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, gomail.WithTimeout(cfg.Timeout))
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}

	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, oops.Code("MAIL_INVALID_CONFIG").
			With("host", cfg.Host).
			With("port", cfg.Port).
			Wrap(err)
	}
	return &SMTPMailer{composer: composer, client: client, logger: logger}, nil
}

func tlsPolicy(name string) (gomail.TLSPolicy, error) {
	switch name {
	case "", TLSMandatory:
		return gomail.TLSMandatory, nil
	case TLSOpportunistic:
		return gomail.TLSOpportunistic, nil
	case TLSNone:
		return gomail.NoTLS, nil
	default:
		return gomail.TLSMandatory, oops.Code("MAIL_INVALID_CONFIG").
			With("tls", name).
			Errorf("unknown TLS policy")
	}
}

// SendConfirmationEmail implements auth.Mailer.
func (m *SMTPMailer) SendConfirmationEmail(ctx context.Context, username, link string) error {
	return m.send(ctx, KindConfirmation, username, link)
}

// SendResetEmail implements auth.Mailer.
func (m *SMTPMailer) SendResetEmail(ctx context.Context, username, link string) error {
	return m.send(ctx, KindReset, username, link)
}

func (m *SMTPMailer) send(ctx context.Context, kind Kind, username, link string) error {
	msg, err := m.composer.Compose(kind, username, link)
	if err != nil {
		return err
	}

	start := time.Now()
	m.mu.Lock()
	err = m.client.DialAndSendWithContext(ctx, msg)
	m.mu.Unlock()
	if err != nil {
		return oops.Code("MAIL_SEND_FAILED").
			With("transport", "smtp").
			With("kind", string(kind)).
			Wrap(err)
	}

	m.logger.DebugContext(ctx, "mail sent",
		"kind", string(kind),
		"username", username,
		"duration", time.Since(start))
	return nil
}

// Compile-time interface check.
var _ auth.Mailer = (*SMTPMailer)(nil)
