// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth

import "time"

// Role is the authorization role granted to a confirmed user.
type Role string

// Known roles. An unconfirmed user has no role.
const (
	RoleNone   Role = ""
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
)

// User is the identity record, keyed by Username (an email address).
type User struct {
	Username     string
	PasswordHash string
	// AuthKey is the key hash of the user's current session, empty until the
	// first session is opened.
	AuthKey        string
	Role           Role
	Active         bool
	LastLogin      *time.Time
	FailedAttempts int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Confirmed reports whether the account completed email confirmation and
// may log in. Activation is the last step of confirmation, after the first
// session is open.
func (u *User) Confirmed() bool {
	return u.Active
}

// Identity is what callers learn about an authenticated user.
type Identity struct {
	Username string
	Role     Role
}

// LoginResult is returned by every operation that opens a session.
// AuthKey and SessionKey are the same plaintext key.
type LoginResult struct {
	Username   string
	Role       Role
	AuthKey    string
	SessionKey string
}
