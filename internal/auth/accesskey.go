// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"
)

// Purpose scopes an access key to the flow that issued it.
type Purpose string

// Access key purposes.
const (
	PurposeConfirmation Purpose = "confirm"
	PurposeReset        Purpose = "reset"
)

// Default access key lifetimes.
const (
	DefaultConfirmationTTL = 48 * time.Hour
	DefaultResetTTL        = time.Hour
)

// Link paths, relative to the public URL.
const (
	ConfirmationPath = "/confirm_email"
	ResetPath        = "/set_new_password"
)

// AccessToken is a one-time access key record. Only the key hash is stored.
type AccessToken struct {
	KeyHash   string
	Username  string
	Purpose   Purpose
	Consumed  bool
	CreatedAt time.Time
	ExpiresAt time.Time
}

// IsExpiredAt returns true if the token would be expired at the given time.
func (t *AccessToken) IsExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// IssuerConfig configures an AccessKeyIssuer.
type IssuerConfig struct {
	// PublicURL is the absolute base URL embedded in mailed links.
	PublicURL string

	// ConfirmationTTL and ResetTTL default to DefaultConfirmationTTL and
	// DefaultResetTTL when zero.
	ConfirmationTTL time.Duration
	ResetTTL        time.Duration
}

// AccessKeyIssuer creates and consumes one-time access keys.
type AccessKeyIssuer struct {
	store     CredentialStore
	publicURL string
	ttl       map[Purpose]time.Duration
	now       func() time.Time
}

// NewAccessKeyIssuer creates a new AccessKeyIssuer.
func NewAccessKeyIssuer(store CredentialStore, cfg IssuerConfig) (*AccessKeyIssuer, error) {
	if store == nil {
		return nil, oops.Code("ISSUER_INVALID_CONFIG").Errorf("credential store is required")
	}
	u, err := url.Parse(cfg.PublicURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, oops.Code("ISSUER_INVALID_CONFIG").
			With("public_url", cfg.PublicURL).
			Errorf("public URL must be an absolute http(s) URL")
	}
	if cfg.ConfirmationTTL < 0 || cfg.ResetTTL < 0 {
		return nil, oops.Code("ISSUER_INVALID_CONFIG").Errorf("access key TTL cannot be negative")
	}
	if cfg.ConfirmationTTL == 0 {
		cfg.ConfirmationTTL = DefaultConfirmationTTL
	}
	if cfg.ResetTTL == 0 {
		cfg.ResetTTL = DefaultResetTTL
	}

	return &AccessKeyIssuer{
		store:     store,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
		ttl: map[Purpose]time.Duration{
			PurposeConfirmation: cfg.ConfirmationTTL,
			PurposeReset:        cfg.ResetTTL,
		},
		now: time.Now,
	}, nil
}

// Issue creates an access key for username and returns the plaintext key and
// the link that embeds it.
func (i *AccessKeyIssuer) Issue(ctx context.Context, username string, purpose Purpose) (key, link string, err error) {
	ttl, ok := i.ttl[purpose]
	if !ok {
		return "", "", oops.Code("ACCESS_KEY_INVALID_PURPOSE").
			With("purpose", string(purpose)).
			Errorf("unknown access key purpose")
	}

	key, hash, err := GenerateKey()
	if err != nil {
		return "", "", oops.Code("ACCESS_KEY_ISSUE_FAILED").
			With("operation", "generate key").
			Wrap(fmt.Errorf("%w: %w", ErrInfrastructure, err))
	}

	now := i.now().UTC()
	token := &AccessToken{
		KeyHash:   hash,
		Username:  username,
		Purpose:   purpose,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := i.store.Tokens().Create(ctx, token); err != nil {
		return "", "", storeFailure("ACCESS_KEY_ISSUE_FAILED", "create token", err)
	}

	return key, i.Link(purpose, key), nil
}

// Link builds the mailed link for a key.
func (i *AccessKeyIssuer) Link(purpose Purpose, key string) string {
	path := ConfirmationPath
	if purpose == PurposeReset {
		path = ResetPath
	}
	return i.publicURL + path + "?accessKey=" + url.QueryEscape(key)
}

// Validate consumes key and returns its owner. Unknown, garbled, consumed,
// expired or wrong-purpose keys yield "" with a nil error; a key validates
// successfully at most once.
func (i *AccessKeyIssuer) Validate(ctx context.Context, key string, purpose Purpose) (string, error) {
	return i.ValidateFor(ctx, key, purpose, "")
}

// ValidateFor is Validate for a key that must belong to username. A key owned
// by someone else yields "" and stays usable by its owner. An empty username
// accepts any owner.
func (i *AccessKeyIssuer) ValidateFor(ctx context.Context, key string, purpose Purpose, username string) (string, error) {
	if !wellFormedKey(key) {
		return "", nil
	}

	owner, err := i.store.Tokens().Consume(ctx, HashKey(key), purpose, username, i.now().UTC())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", storeFailure("ACCESS_KEY_VALIDATE_FAILED", "consume token", err)
	}
	return owner, nil
}

// Prune deletes expired access keys and returns how many were removed.
func (i *AccessKeyIssuer) Prune(ctx context.Context) (int64, error) {
	n, err := i.store.Tokens().DeleteExpired(ctx, i.now().UTC())
	if err != nil {
		return 0, storeFailure("ACCESS_KEY_PRUNE_FAILED", "delete expired tokens", err)
	}
	return n, nil
}
