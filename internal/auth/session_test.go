// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyward/keyward/internal/auth"
)

func TestGenerateKey(t *testing.T) {
	t.Run("generates 256-bit hex key", func(t *testing.T) {
		key, hash, err := auth.GenerateKey()
		require.NoError(t, err)
		assert.Len(t, key, 64) // 32 bytes hex-encoded
		assert.Len(t, hash, 64)
		assert.NotEqual(t, key, hash)
	})

	t.Run("generates unique keys", func(t *testing.T) {
		key1, hash1, err := auth.GenerateKey()
		require.NoError(t, err)

		key2, hash2, err := auth.GenerateKey()
		require.NoError(t, err)

		assert.NotEqual(t, key1, key2)
		assert.NotEqual(t, hash1, hash2)
	})

	t.Run("hash matches HashKey", func(t *testing.T) {
		key, hash, err := auth.GenerateKey()
		require.NoError(t, err)
		assert.Equal(t, auth.HashKey(key), hash)
	})
}

func TestHashKey(t *testing.T) {
	t.Run("is deterministic", func(t *testing.T) {
		assert.Equal(t, auth.HashKey("key"), auth.HashKey("key"))
	})

	t.Run("known vector", func(t *testing.T) {
		// sha256("abc")
		assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", auth.HashKey("abc"))
	})
}

func TestVerifyKey(t *testing.T) {
	key, hash, err := auth.GenerateKey()
	require.NoError(t, err)

	tests := []struct {
		name string
		key  string
		hash string
		want bool
	}{
		{"matching key", key, hash, true},
		{"wrong key", key + "0", hash, false},
		{"empty key", "", hash, false},
		{"empty hash", key, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, auth.VerifyKey(tt.key, tt.hash))
		})
	}
}
