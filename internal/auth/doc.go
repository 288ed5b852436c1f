// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

// Package auth implements the credential and session lifecycle for keyward.
//
// # Credential artifacts
//
// Three artifacts are managed here:
//   - access keys: one-time tokens mailed to prove control of an address,
//     consumed by confirmation or password reset (AccessKeyIssuer)
//   - auth keys: the per-user pointer to the currently valid session
//     (UserManager)
//   - session keys: rotating bearer tokens, at most one active per user
//     (SessionManager)
//
// Plaintext keys are returned to callers exactly once. Only SHA-256 hashes
// are persisted.
//
// # Storage
//
// Managers hold no state between calls. Every read goes to a CredentialStore,
// implemented by the postgres and redisstore subpackages.
//
// # Errors
//
// Every returned error wraps one of ErrValidation, ErrConflict,
// ErrAuthentication or ErrInfrastructure and carries an oops code.
// Format validation always runs before the store is touched.
package auth
