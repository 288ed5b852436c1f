// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package web_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyward/keyward/internal/auth"
	"github.com/keyward/keyward/internal/auth/authtest"
	"github.com/keyward/keyward/internal/auth/redisstore"
	"github.com/keyward/keyward/internal/web"
)

func TestAPI_EndToEnd(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	outbox := &authtest.Outbox{}
	svc, err := auth.NewService(auth.ServiceConfig{
		Store:  redisstore.NewStore(client, redisstore.Options{}),
		Hasher: auth.NewArgon2idHasher(),
		Mailer: outbox,
		Issuer: auth.IssuerConfig{PublicURL: "https://keyward.example.com"},
	})
	require.NoError(t, err)
	h := newHandler(t, svc, web.Config{}, nil)

	name := authtest.Username()
	creds := fmt.Sprintf(`{"username":%q,"password":%q}`, name, authtest.Password)

	rec, _ := do(t, h, http.MethodPost, "/register", creds)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/register", creds)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/login", creds)
	require.Equal(t, http.StatusUnauthorized, rec.Code, "unconfirmed accounts cannot log in")

	msg, ok := outbox.Last(authtest.KindConfirmation, name)
	require.True(t, ok)
	rec, confirmed := do(t, h, http.MethodPost, "/confirm_email", fmt.Sprintf(`{"accessKey":%q}`, msg.AccessKey()))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "viewer", confirmed["role"])

	rec, loggedIn := do(t, h, http.MethodPost, "/login", creds)
	require.Equal(t, http.StatusOK, rec.Code)
	sessionKey, _ := loggedIn["sessionKey"].(string)
	require.NotEmpty(t, sessionKey)
	assert.Equal(t, sessionKey, loggedIn["authKey"])

	session := fmt.Sprintf(`{"username":%q,"authKey":%q}`, name, sessionKey)
	rec, identity := do(t, h, http.MethodPost, "/verify_session", session)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, name, identity["username"])

	stale := fmt.Sprintf(`{"username":%q,"authKey":%q}`, name, confirmed["sessionKey"])
	rec, _ = do(t, h, http.MethodPost, "/verify_session", stale)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "login rotated the confirmation session out")

	rec, _ = do(t, h, http.MethodPost, "/logout", session)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = do(t, h, http.MethodPost, "/logout", session)
	require.Equal(t, http.StatusOK, rec.Code, "logout is idempotent")

	rec, _ = do(t, h, http.MethodPost, "/verify_session", session)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/login", fmt.Sprintf(`{"username":%q,"password":"short"}`, name))
	assert.Equal(t, http.StatusForbidden, rec.Code, "a malformed password is a validation error")
}
