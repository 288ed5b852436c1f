// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

// Package mail delivers confirmation and password reset links.
package mail

import (
	"embed"
	htmltemplate "html/template"
	"strconv"
	texttemplate "text/template"
	"time"

	gomail "github.com/wneessen/go-mail"
	"github.com/samber/oops"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	textTemplates = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/*.txt.tmpl"))
	htmlTemplates = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/*.html.tmpl"))
)

// Kind selects the message template.
type Kind string

// Message kinds.
const (
	KindConfirmation Kind = "confirmation"
	KindReset        Kind = "reset"
)

// Settings describe the sender and the link lifetimes quoted in messages.
type Settings struct {
	From            string
	Product         string
	ConfirmationTTL time.Duration
	ResetTTL        time.Duration
}

type templateData struct {
	Product  string
	Username string
	Link     string
	TTL      string
}

// Composer renders messages.
type Composer struct {
	settings Settings
}

// NewComposer validates settings and returns a Composer.
func NewComposer(s Settings) (*Composer, error) {
	if err := gomail.NewMsg().From(s.From); err != nil {
		return nil, oops.Code("MAIL_INVALID_CONFIG").
			With("from", s.From).
			Wrapf(err, "invalid sender address")
	}
	if s.Product == "" {
		s.Product = "Keyward"
	}
	return &Composer{settings: s}, nil
}

// Compose builds the message of kind addressed to username.
func (c *Composer) Compose(kind Kind, username, link string) (*gomail.Msg, error) {
	var (
		subject string
		ttl     time.Duration
	)
	switch kind {
	case KindConfirmation:
		subject, ttl = "Confirm your "+c.settings.Product+" account", c.settings.ConfirmationTTL
	case KindReset:
		subject, ttl = "Reset your "+c.settings.Product+" password", c.settings.ResetTTL
	default:
		return nil, oops.Code("MAIL_UNKNOWN_KIND").With("kind", string(kind)).Errorf("unknown message kind")
	}

	msg := gomail.NewMsg()
	if err := msg.From(c.settings.From); err != nil {
		return nil, oops.Code("MAIL_COMPOSE_FAILED").With("field", "from").Wrap(err)
	}
	if err := msg.To(username); err != nil {
		return nil, oops.Code("MAIL_COMPOSE_FAILED").With("field", "to").Wrap(err)
	}
	msg.Subject(subject)
	msg.SetDate()
	msg.SetMessageID()

	data := templateData{
		Product:  c.settings.Product,
		Username: username,
		Link:     link,
		TTL:      humanDuration(ttl),
	}
	if err := msg.SetBodyTextTemplate(textTemplates.Lookup(string(kind)+".txt.tmpl"), data); err != nil {
		return nil, oops.Code("MAIL_COMPOSE_FAILED").With("part", "text").Wrap(err)
	}
	if err := msg.AddAlternativeHTMLTemplate(htmlTemplates.Lookup(string(kind)+".html.tmpl"), data); err != nil {
		return nil, oops.Code("MAIL_COMPOSE_FAILED").With("part", "html").Wrap(err)
	}
	return msg, nil
}

// humanDuration renders whole hours or minutes, e.g. "48 hours".
func humanDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "a short while"
	case d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	default:
		return plural(int((d+time.Minute-1)/time.Minute), "minute")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}
