// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package errutil

import (
	"fmt"
	"strings"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustOops(t testing.TB, err error) oops.OopsError {
	t.Helper()
	require.Error(t, err)
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T: %v", err, err)
	return oopsErr
}

// AssertErrorCode asserts that the deepest code in err's chain is code.
func AssertErrorCode(t testing.TB, err error, code string) {
	t.Helper()
	assert.Equal(t, code, mustOops(t, err).Code(), "error: %v", err)
}

// AssertErrorContext asserts that err carries key=value in its merged
// context.
func AssertErrorContext(t testing.TB, err error, key string, value any) {
	t.Helper()
	ctx := mustOops(t, err).Context()
	if assert.Contains(t, ctx, key) {
		assert.Equal(t, value, ctx[key])
	}
}

// AssertNoSecret asserts that secret appears neither in err's message nor in
// any of its context values.
func AssertNoSecret(t testing.TB, err error, secret string) {
	t.Helper()
	oopsErr := mustOops(t, err)
	assert.NotContains(t, err.Error(), secret)
	for key, val := range oopsErr.Context() {
		assert.False(t, strings.Contains(fmt.Sprint(val), secret), "context %q leaks a secret", key)
	}
}
