// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package web_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/keyward/keyward/internal/auth"
)

type mockService struct {
	mock.Mock
}

func newMockService(t *testing.T) *mockService {
	m := &mockService{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func loginResult(args mock.Arguments) (*auth.LoginResult, error) {
	r, _ := args.Get(0).(*auth.LoginResult)
	return r, args.Error(1)
}

func (m *mockService) Register(ctx context.Context, username, password string) error {
	return m.Called(ctx, username, password).Error(0)
}

func (m *mockService) ConfirmEmail(ctx context.Context, accessKey string) (*auth.LoginResult, error) {
	return loginResult(m.Called(ctx, accessKey))
}

func (m *mockService) ResetPassword(ctx context.Context, username string) error {
	return m.Called(ctx, username).Error(0)
}

func (m *mockService) SetNewPassword(ctx context.Context, username, accessKey, newPassword string) (*auth.LoginResult, error) {
	return loginResult(m.Called(ctx, username, accessKey, newPassword))
}

func (m *mockService) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) (*auth.LoginResult, error) {
	return loginResult(m.Called(ctx, username, oldPassword, newPassword))
}

func (m *mockService) Login(ctx context.Context, username, password string) (*auth.LoginResult, error) {
	return loginResult(m.Called(ctx, username, password))
}

func (m *mockService) Logout(ctx context.Context, username, sessionKey string) error {
	return m.Called(ctx, username, sessionKey).Error(0)
}

func (m *mockService) VerifySession(ctx context.Context, username, sessionKey string) (*auth.Identity, error) {
	args := m.Called(ctx, username, sessionKey)
	id, _ := args.Get(0).(*auth.Identity)
	return id, args.Error(1)
}

func (m *mockService) ResendConfirmation(ctx context.Context, username string) error {
	return m.Called(ctx, username).Error(0)
}

type recorded struct {
	operation string
	kind      string
}

type fakeRecorder struct {
	calls []recorded
}

func (f *fakeRecorder) RecordOperation(operation string, err error) {
	f.calls = append(f.calls, recorded{operation, auth.KindOf(err)})
}
