// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"

	"github.com/keyward/keyward/internal/auth"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"validation", oops.Code("X").Wrapf(auth.ErrValidation, "bad"), auth.KindValidation},
		{"user exists is a conflict", auth.ErrUserExists, auth.KindConflict},
		{"wrapped conflict", fmt.Errorf("outer: %w", auth.ErrUserExists), auth.KindConflict},
		{"authentication", oops.Code("X").Wrapf(auth.ErrAuthentication, "no"), auth.KindAuthentication},
		{"infrastructure", fmt.Errorf("%w: %w", auth.ErrInfrastructure, errors.New("EOF")), auth.KindInfrastructure},
		{"not found alone is unclassified", auth.ErrNotFound, auth.KindUnknown},
		{"plain error", errors.New("boom"), auth.KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, auth.KindOf(tt.err))
		})
	}
}
