// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth

import (
	"errors"
	"fmt"

	"github.com/samber/oops"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Error kinds. Every error returned by a manager or the Service wraps exactly
// one of these, so callers classify with errors.Is.
var (
	// ErrValidation marks a malformed username or password. Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrConflict marks a write that collides with existing state.
	ErrConflict = errors.New("conflict")

	// ErrAuthentication marks any failed credential check. Callers must
	// report it uniformly as unauthorized.
	ErrAuthentication = errors.New("unauthorized")

	// ErrInfrastructure marks a store or mail fault. Transient; the caller
	// owns retry policy.
	ErrInfrastructure = errors.New("credential infrastructure unavailable")
)

// ErrUserExists is returned by UserRepository.Create for a taken username.
var ErrUserExists = fmt.Errorf("user already exists: %w", ErrConflict)

// Kind names reported by KindOf.
const (
	KindValidation     = "validation"
	KindConflict       = "conflict"
	KindAuthentication = "authentication"
	KindInfrastructure = "infrastructure"
	KindUnknown        = "unknown"
)

// KindOf classifies err into one of the Kind* names. A nil error has no kind.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrAuthentication):
		return KindAuthentication
	case errors.Is(err, ErrInfrastructure):
		return KindInfrastructure
	default:
		return KindUnknown
	}
}

func validationError(code, format string, args ...any) error {
	return oops.Code(code).Wrapf(ErrValidation, format, args...)
}

func authenticationError(code, format string, args ...any) error {
	return oops.Code(code).Wrapf(ErrAuthentication, format, args...)
}

// storeFailure translates a raw store fault into an infrastructure error
// carrying code. Errors already classified, and ErrNotFound, pass through
// untouched.
func storeFailure(code, operation string, err error) error {
	if KindOf(err) != KindUnknown || errors.Is(err, ErrNotFound) {
		return err
	}
	return oops.Code(code).
		With("operation", operation).
		Wrap(fmt.Errorf("%w: %w", ErrInfrastructure, err))
}
