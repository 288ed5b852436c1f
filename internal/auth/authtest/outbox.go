// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

// Package authtest provides test helpers for the credential service.
package authtest

import (
	"context"
	"net/url"
	"sync"
)

// Message kinds recorded by Outbox.
const (
	KindConfirmation = "confirmation"
	KindReset        = "reset"
)

// Message is one captured email.
type Message struct {
	Kind     string
	Username string
	Link     string
}

// AccessKey extracts the accessKey query parameter from the link.
func (m Message) AccessKey() string {
	u, err := url.Parse(m.Link)
	if err != nil {
		return ""
	}
	return u.Query().Get("accessKey")
}

// Outbox is an auth.Mailer that keeps every message in memory.
type Outbox struct {
	mu       sync.Mutex
	messages []Message
	// Err, when set, is returned by every send without recording.
	Err error
}

// SendConfirmationEmail records a confirmation message.
func (o *Outbox) SendConfirmationEmail(_ context.Context, username, link string) error {
	return o.record(KindConfirmation, username, link)
}

// SendResetEmail records a reset message.
func (o *Outbox) SendResetEmail(_ context.Context, username, link string) error {
	return o.record(KindReset, username, link)
}

func (o *Outbox) record(kind, username, link string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Err != nil {
		return o.Err
	}
	o.messages = append(o.messages, Message{Kind: kind, Username: username, Link: link})
	return nil
}

// Messages returns a copy of everything sent so far.
func (o *Outbox) Messages() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Message(nil), o.messages...)
}

// Last returns the most recent message of kind sent to username.
func (o *Outbox) Last(kind, username string) (Message, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.messages) - 1; i >= 0; i-- {
		if m := o.messages[i]; m.Kind == kind && m.Username == username {
			return m, true
		}
	}
	return Message{}, false
}
