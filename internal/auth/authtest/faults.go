// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package authtest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/keyward/keyward/internal/auth"
)

// Fault names a repository call that FaultyStore can fail.
type Fault string

// Injectable faults.
const (
	FaultSetAuthKey Fault = "users.SetAuthKey"
	FaultActivate   Fault = "users.Activate"
	FaultDeactivate Fault = "sessions.Deactivate"
	// FaultSessionCreate fails before the row is written.
	FaultSessionCreate Fault = "sessions.Create"
	// FaultSessionWritten writes the row, then reports failure, as a
	// connection lost before the reply would.
	FaultSessionWritten Fault = "sessions.Create.written"
)

// ErrInjected is returned by a call failed through FaultyStore.
var ErrInjected = errors.New("injected store fault")

// FaultyStore wraps a CredentialStore and fails armed calls once each. It
// remembers every session row it passed through so tests can count the
// active sessions a user holds.
type FaultyStore struct {
	auth.CredentialStore

	mu       sync.Mutex
	armed    map[Fault]int
	sessions map[string][]string
}

// NewFaultyStore wraps store with no faults armed.
func NewFaultyStore(store auth.CredentialStore) *FaultyStore {
	return &FaultyStore{
		CredentialStore: store,
		armed:           make(map[Fault]int),
		sessions:        make(map[string][]string),
	}
}

// FailNext arms f for the next matching call.
func (s *FaultyStore) FailNext(f Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed[f]++
}

// Armed reports whether f is still waiting for a call.
func (s *FaultyStore) Armed(f Fault) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed[f] > 0
}

func (s *FaultyStore) trip(f Fault) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.armed[f] == 0 {
		return false
	}
	s.armed[f]--
	return true
}

func (s *FaultyStore) remember(session *auth.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.Username] = append(s.sessions[session.Username], session.KeyHash)
}

// ActiveSessions counts the rows written for username that are still active.
// Rows rolled back by the underlying store are skipped.
func (s *FaultyStore) ActiveSessions(ctx context.Context, username string) (int, error) {
	s.mu.Lock()
	hashes := append([]string(nil), s.sessions[username]...)
	s.mu.Unlock()

	active := 0
	for _, hash := range hashes {
		session, err := s.CredentialStore.Sessions().Get(ctx, hash)
		if errors.Is(err, auth.ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, err
		}
		if session.Active {
			active++
		}
	}
	return active, nil
}

// Users returns the user repository with faults applied.
func (s *FaultyStore) Users() auth.UserRepository {
	return &faultyUsers{UserRepository: s.CredentialStore.Users(), store: s}
}

// Sessions returns the session repository with faults applied.
func (s *FaultyStore) Sessions() auth.SessionRepository {
	return &faultySessions{SessionRepository: s.CredentialStore.Sessions(), store: s}
}

type faultyUsers struct {
	auth.UserRepository
	store *FaultyStore
}

func (r *faultyUsers) SetAuthKey(ctx context.Context, username, authKey string) error {
	if r.store.trip(FaultSetAuthKey) {
		return ErrInjected
	}
	return r.UserRepository.SetAuthKey(ctx, username, authKey)
}

func (r *faultyUsers) Activate(ctx context.Context, username string) error {
	if r.store.trip(FaultActivate) {
		return ErrInjected
	}
	return r.UserRepository.Activate(ctx, username)
}

type faultySessions struct {
	auth.SessionRepository
	store *FaultyStore
}

func (r *faultySessions) Create(ctx context.Context, session *auth.Session) error {
	if r.store.trip(FaultSessionCreate) {
		return ErrInjected
	}
	if err := r.SessionRepository.Create(ctx, session); err != nil {
		return err
	}
	r.store.remember(session)
	if r.store.trip(FaultSessionWritten) {
		return ErrInjected
	}
	return nil
}

func (r *faultySessions) Deactivate(ctx context.Context, keyHash string, at time.Time) (bool, error) {
	if r.store.trip(FaultDeactivate) {
		return false, ErrInjected
	}
	return r.SessionRepository.Deactivate(ctx, keyHash, at)
}

var _ auth.CredentialStore = (*FaultyStore)(nil)
