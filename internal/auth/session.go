// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// KeyBytes is the entropy of every issued key: 32 bytes = 64 hex chars.
const KeyBytes = 32

// Session represents a login. KeyHash is the SHA-256 of the plaintext session
// key and doubles as the primary key. ID is a non-secret handle for logs.
type Session struct {
	KeyHash      string
	ID           ulid.ULID
	Username     string
	Active       bool
	CreatedAt    time.Time
	LastModified time.Time
}

// GenerateKey creates a secure random key and its hash.
// Returns (plaintext_key, sha256_hash, error).
// The plaintext key is sent to the client; the hash is stored.
func GenerateKey() (key, hash string, err error) {
	keyBytes := make([]byte, KeyBytes)
	if _, err = rand.Read(keyBytes); err != nil {
		return "", "", oops.Code("KEY_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", KeyBytes).
			Wrap(err)
	}

	key = hex.EncodeToString(keyBytes)
	return key, HashKey(key), nil
}

// HashKey computes the SHA-256 hash of a key, hex-encoded.
func HashKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

// VerifyKey checks if the plaintext key matches the stored hash using a
// constant-time comparison. Empty inputs never match.
func VerifyKey(key, hash string) bool {
	if key == "" || hash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashKey(key)), []byte(hash)) == 1
}

// wellFormedKey reports whether key could have been produced by GenerateKey.
// Garbled keys are rejected without a store round-trip.
func wellFormedKey(key string) bool {
	if len(key) != 2*KeyBytes {
		return false
	}
	_, err := hex.DecodeString(key)
	return err == nil
}
