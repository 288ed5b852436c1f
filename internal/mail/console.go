// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package mail

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/samber/oops"

	"github.com/keyward/keyward/internal/auth"
)

// ConsoleMailer writes each rendered message to w instead of sending it.
// Used in development. Log lines never carry the link.
type ConsoleMailer struct {
	composer *Composer
	logger   *slog.Logger

	mu sync.Mutex
	w  io.Writer
}

// NewConsoleMailer returns a mailer that writes MIME messages to w.
func NewConsoleMailer(composer *Composer, w io.Writer, logger *slog.Logger) *ConsoleMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsoleMailer{composer: composer, w: w, logger: logger}
}

// SendConfirmationEmail implements auth.Mailer.
func (m *ConsoleMailer) SendConfirmationEmail(ctx context.Context, username, link string) error {
	return m.send(ctx, KindConfirmation, username, link)
}

// SendResetEmail implements auth.Mailer.
func (m *ConsoleMailer) SendResetEmail(ctx context.Context, username, link string) error {
	return m.send(ctx, KindReset, username, link)
}

func (m *ConsoleMailer) send(ctx context.Context, kind Kind, username, link string) error {
	msg, err := m.composer.Compose(kind, username, link)
	if err != nil {
		return err
	}

	m.mu.Lock()
	_, err = msg.WriteTo(m.w)
	m.mu.Unlock()
	if err != nil {
		return oops.Code("MAIL_SEND_FAILED").
			With("transport", "console").
			With("kind", string(kind)).
			Wrap(err)
	}

	m.logger.InfoContext(ctx, "mail written to console",
		"kind", string(kind),
		"username", username)
	return nil
}

// Compile-time interface check.
var _ auth.Mailer = (*ConsoleMailer)(nil)
