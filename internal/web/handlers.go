// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/samber/oops"

	"github.com/keyward/keyward/internal/auth"
	"github.com/keyward/keyward/pkg/errutil"
)

// Operation names, used as route paths, schema names and metric labels.
const (
	OpRegister           = "register"
	OpConfirmEmail       = "confirm_email"
	OpResetPassword      = "reset_password"
	OpSetNewPassword     = "set_new_password"
	OpUpdatePassword     = "update_password"
	OpLogin              = "login"
	OpLogout             = "logout"
	OpVerifySession      = "verify_session"
	OpResendConfirmation = "resend_confirmation"
)

// Success messages.
const (
	msgRegistered    = "Registration success"
	msgConfirmed     = "Email confirmed"
	msgResetSent     = "Password reset email sent"
	msgPasswordSet   = "Password updated"
	msgLoggedIn      = "Login success"
	msgLoggedOut     = "Logged out"
	msgConfirmResent = "Confirmation email sent"
)

// CredentialService is the set of inbound operations the API exposes.
// *auth.Service implements it.
type CredentialService interface {
	Register(ctx context.Context, username, password string) error
	ConfirmEmail(ctx context.Context, accessKey string) (*auth.LoginResult, error)
	ResetPassword(ctx context.Context, username string) error
	SetNewPassword(ctx context.Context, username, accessKey, newPassword string) (*auth.LoginResult, error)
	ChangePassword(ctx context.Context, username, oldPassword, newPassword string) (*auth.LoginResult, error)
	Login(ctx context.Context, username, password string) (*auth.LoginResult, error)
	Logout(ctx context.Context, username, sessionKey string) error
	VerifySession(ctx context.Context, username, sessionKey string) (*auth.Identity, error)
	ResendConfirmation(ctx context.Context, username string) error
}

// Recorder counts finished operations.
type Recorder interface {
	RecordOperation(operation string, err error)
}

type nopRecorder struct{}

func (nopRecorder) RecordOperation(string, error) {}

// api binds the service to HTTP.
type api struct {
	svc       CredentialService
	validator *validator
	recorder  Recorder
	logger    *slog.Logger
}

// endpoint decodes and validates a T, runs call, and writes its result.
// Errors of any kind are mapped by StatusFor.
func endpoint[T any](a *api, operation string, call func(context.Context, *T) (int, any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req T
		if err := a.decode(r, operation, &req); err != nil {
			a.recorder.RecordOperation(operation, err)
			a.fail(w, r, operation, err)
			return
		}

		status, body, err := call(r.Context(), &req)
		a.recorder.RecordOperation(operation, err)
		if err != nil {
			a.fail(w, r, operation, err)
			return
		}
		writeJSON(w, status, body)
	}
}

// decode reads the body, validates it against the operation's schema, and
// unmarshals it into dst. A malformed or mismatched body is a validation
// error; an oversized one surfaces as *http.MaxBytesError.
func (a *api) decode(r *http.Request, operation string, dst any) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return oops.Code("REQUEST_READ_FAILED").With("operation", operation).Wrap(err)
	}
	if err := a.validator.validate(operation, body); err != nil {
		return fmt.Errorf("%w: %w", auth.ErrValidation, err)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return oops.Code("REQUEST_MALFORMED").
			With("operation", operation).
			Wrap(fmt.Errorf("%w: %w", auth.ErrValidation, err))
	}
	return nil
}

func (a *api) fail(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		errutil.LogErrorContext(r.Context(), a.logger, "request failed", err)
	} else {
		a.logger.DebugContext(r.Context(), "request rejected",
			"operation", operation,
			"status", status,
			"code", errutil.Code(err))
	}
	writeJSON(w, status, errorResponse(status, err))
}

func (a *api) register(ctx context.Context, req *CredentialsRequest) (int, any, error) {
	if err := a.svc.Register(ctx, req.Username, req.Password); err != nil {
		return 0, nil, err
	}
	return http.StatusCreated, MessageResponse{Message: msgRegistered}, nil
}

func (a *api) confirmEmail(ctx context.Context, req *AccessKeyRequest) (int, any, error) {
	result, err := a.svc.ConfirmEmail(ctx, req.AccessKey)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, loginResponse(result, msgConfirmed), nil
}

func (a *api) resetPassword(ctx context.Context, req *UsernameRequest) (int, any, error) {
	if err := a.svc.ResetPassword(ctx, req.Username); err != nil {
		return 0, nil, err
	}
	return http.StatusOK, MessageResponse{Message: msgResetSent}, nil
}

func (a *api) setNewPassword(ctx context.Context, req *SetNewPasswordRequest) (int, any, error) {
	result, err := a.svc.SetNewPassword(ctx, req.Username, req.AccessKey, req.Password)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, loginResponse(result, msgPasswordSet), nil
}

func (a *api) updatePassword(ctx context.Context, req *UpdatePasswordRequest) (int, any, error) {
	result, err := a.svc.ChangePassword(ctx, req.Username, req.Password, req.NewPassword)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, loginResponse(result, msgPasswordSet), nil
}

func (a *api) login(ctx context.Context, req *CredentialsRequest) (int, any, error) {
	result, err := a.svc.Login(ctx, req.Username, req.Password)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, loginResponse(result, msgLoggedIn), nil
}

func (a *api) logout(ctx context.Context, req *SessionRequest) (int, any, error) {
	if err := a.svc.Logout(ctx, req.Username, req.AuthKey); err != nil {
		return 0, nil, err
	}
	return http.StatusOK, LogoutResponse{Username: req.Username, Message: msgLoggedOut}, nil
}

func (a *api) verifySession(ctx context.Context, req *SessionRequest) (int, any, error) {
	identity, err := a.svc.VerifySession(ctx, req.Username, req.AuthKey)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, IdentityResponse{Username: identity.Username, Role: string(identity.Role)}, nil
}

func (a *api) resendConfirmation(ctx context.Context, req *UsernameRequest) (int, any, error) {
	if err := a.svc.ResendConfirmation(ctx, req.Username); err != nil {
		return 0, nil, err
	}
	return http.StatusOK, MessageResponse{Message: msgConfirmResent}, nil
}

func (a *api) root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
