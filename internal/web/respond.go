// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/keyward/keyward/internal/auth"
	"github.com/keyward/keyward/pkg/errutil"
)

// Client-facing messages. Authentication failures share one message so the
// response never reveals which check failed.
const (
	msgForbidden    = "Forbidden"
	msgConflict     = "Username taken"
	msgUnauthorized = "Invalid username or password attempt."
	msgUnavailable  = "Service unavailable"
	msgServerError  = "Server error"
	msgTooLarge     = "Request body too large"
)

// MessageResponse carries a human-readable outcome.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is the body of every non-2xx response. Code is set only for
// validation failures, where it tells the client which field to fix.
type ErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// LoginResponse is returned by every operation that opens a session.
type LoginResponse struct {
	Username   string `json:"username"`
	Role       string `json:"role"`
	AuthKey    string `json:"authKey"`
	SessionKey string `json:"sessionKey"`
	Message    string `json:"message"`
}

// LogoutResponse echoes the username with a cleared key.
type LogoutResponse struct {
	Username string `json:"username"`
	AuthKey  string `json:"authKey"`
	Message  string `json:"message"`
}

// IdentityResponse is returned by /verify_session.
type IdentityResponse struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

func loginResponse(r *auth.LoginResult, message string) LoginResponse {
	return LoginResponse{
		Username:   r.Username,
		Role:       string(r.Role),
		AuthKey:    r.AuthKey,
		SessionKey: r.SessionKey,
		Message:    message,
	}
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	switch auth.KindOf(err) {
	case auth.KindValidation:
		return http.StatusForbidden
	case auth.KindConflict:
		return http.StatusConflict
	case auth.KindAuthentication:
		return http.StatusUnauthorized
	case auth.KindInfrastructure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorResponse(status int, err error) ErrorResponse {
	switch status {
	case http.StatusForbidden:
		return ErrorResponse{Message: msgForbidden, Code: errutil.Code(err)}
	case http.StatusConflict:
		return ErrorResponse{Message: msgConflict}
	case http.StatusUnauthorized:
		return ErrorResponse{Message: msgUnauthorized}
	case http.StatusServiceUnavailable:
		return ErrorResponse{Message: msgUnavailable}
	case http.StatusRequestEntityTooLarge:
		return ErrorResponse{Message: msgTooLarge}
	default:
		return ErrorResponse{Message: msgServerError}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client may disconnect
	json.NewEncoder(w).Encode(v)
}
