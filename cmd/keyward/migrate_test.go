// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyward/keyward/internal/store"
	"github.com/keyward/keyward/pkg/errutil"
)

func TestParseForceVersion(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantVersion int
		wantErrCode string
	}{
		{name: "valid integer", input: "3", wantVersion: 3},
		{name: "zero is valid", input: "0", wantVersion: 0},
		{name: "surrounding whitespace is trimmed", input: "  42 ", wantVersion: 42},
		{name: "non-numeric", input: "abc", wantErrCode: "INVALID_VERSION"},
		{name: "trailing garbage", input: "3abc", wantErrCode: "INVALID_VERSION"},
		{name: "negative", input: "-1", wantErrCode: "INVALID_VERSION"},
		{name: "empty", input: "", wantErrCode: "INVALID_VERSION"},
		{name: "whitespace only", input: "   ", wantErrCode: "INVALID_VERSION"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, err := parseForceVersion(tt.input)
			if tt.wantErrCode != "" {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, tt.wantErrCode)
				assert.Equal(t, 0, version)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantVersion, version)
		})
	}
}

func TestGetDatabaseURL(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		url, err := getDatabaseURL()
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
		assert.Empty(t, url)
	})

	t.Run("set", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost:5432/keyward")
		url, err := getDatabaseURL()
		require.NoError(t, err)
		assert.Equal(t, "postgres://localhost:5432/keyward", url)
	})
}

func runMigrate(t *testing.T, m *mockMigrator, args ...string) (string, error) {
	t.Helper()
	var gotURL string
	cmd := newMigrateCmdWithDeps(&MigrateDeps{
		DatabaseURLGetter: func() (string, error) { return "postgres://db/keyward", nil },
		MigratorFactory: func(url string) (Migrator, error) {
			gotURL = url
			return m, nil
		},
	})
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(out)
	if args == nil {
		args = []string{}
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	if err == nil {
		assert.Equal(t, "postgres://db/keyward", gotURL)
		assert.True(t, m.closeCalled, "migrator is closed")
	}
	return out.String(), err
}

func TestMigrateCommand_Up(t *testing.T) {
	for _, args := range [][]string{nil, {"up"}} {
		m := &mockMigrator{}
		out, err := runMigrate(t, m, args...)
		require.NoError(t, err)
		assert.True(t, m.upCalled)
		assert.Contains(t, out, "Migrations completed successfully")
	}
}

func TestMigrateCommand_UpFailure(t *testing.T) {
	m := &mockMigrator{upErr: errors.New("dirty")}
	_, err := runMigrate(t, m, "up")
	require.Error(t, err)
	assert.True(t, m.closeCalled)
}

func TestMigrateCommand_Down(t *testing.T) {
	t.Run("one step by default", func(t *testing.T) {
		m := &mockMigrator{}
		out, err := runMigrate(t, m, "down")
		require.NoError(t, err)
		assert.Equal(t, -1, m.steps)
		assert.False(t, m.downCalled)
		assert.Contains(t, out, "Rolling back 1 migration(s)")
	})

	t.Run("steps", func(t *testing.T) {
		m := &mockMigrator{}
		_, err := runMigrate(t, m, "down", "--steps", "2")
		require.NoError(t, err)
		assert.Equal(t, -2, m.steps)
	})

	t.Run("all", func(t *testing.T) {
		m := &mockMigrator{}
		_, err := runMigrate(t, m, "down", "--all")
		require.NoError(t, err)
		assert.True(t, m.downCalled)
		assert.Zero(t, m.steps)
	})

	t.Run("invalid steps", func(t *testing.T) {
		_, err := runMigrate(t, &mockMigrator{}, "down", "--steps", "0")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "INVALID_STEPS")
	})
}

func TestMigrateCommand_Status(t *testing.T) {
	m := &mockMigrator{status: &store.Status{
		Version: 2,
		Name:    "000002_sessions",
		Dirty:   true,
		Applied: []uint{1, 2},
	}}
	out, err := runMigrate(t, m, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Version: 2 [000002_sessions] (dirty)")
	assert.Contains(t, out, "Applied: 1, 2")
	assert.Contains(t, out, "Pending: none")
}

func TestMigrateCommand_Force(t *testing.T) {
	m := &mockMigrator{}
	out, err := runMigrate(t, m, "force", "3")
	require.NoError(t, err)
	assert.Equal(t, 3, m.forced)
	assert.Contains(t, out, "Forced schema version to 3")

	_, err = runMigrate(t, &mockMigrator{}, "force", "three")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "INVALID_VERSION")
}

func TestMigrateCommand_NoDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	cmd := NewMigrateCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"status"})

	err := cmd.Execute()
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}
