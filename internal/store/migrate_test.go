// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyward/keyward/pkg/errutil"
)

// fakeMigration stands in for *migrate.Migrate.
type fakeMigration struct {
	upErr, downErr, stepsErr, forceErr error
	version                            uint
	dirty                              bool
	versionErr                         error
	closeSourceErr, closeDBErr         error

	closed bool
}

var errClosed = errors.New("migrator is closed")

func (f *fakeMigration) guard(err error) error {
	if f.closed {
		return errClosed
	}
	return err
}

func (f *fakeMigration) Up() error         { return f.guard(f.upErr) }
func (f *fakeMigration) Down() error       { return f.guard(f.downErr) }
func (f *fakeMigration) Steps(_ int) error { return f.guard(f.stepsErr) }
func (f *fakeMigration) Force(_ int) error { return f.guard(f.forceErr) }
func (f *fakeMigration) Version() (uint, bool, error) {
	if f.closed {
		return 0, false, errClosed
	}
	return f.version, f.dirty, f.versionErr
}

func (f *fakeMigration) Close() (error, error) {
	f.closed = true
	return f.closeSourceErr, f.closeDBErr
}

func TestNewMigrator_Errors(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"unknown scheme", "invalid://url"},
		{"postgresql scheme is rewritten", "postgresql://127.0.0.1:1/keyward?connect_timeout=1"},
		{"postgres scheme is rewritten", "postgres://127.0.0.1:1/keyward?connect_timeout=1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMigrator(tt.url)
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, "MIGRATION_INIT_FAILED")
			assert.NotContains(t, err.Error(), "unknown driver postgres")
		})
	}
}

func TestDriverURL(t *testing.T) {
	assert.Equal(t, "pgx5://u@h/db", driverURL("postgres://u@h/db"))
	assert.Equal(t, "pgx5://u@h/db", driverURL("postgresql://u@h/db"))
	assert.Equal(t, "pgx5://u@h/db", driverURL("pgx5://u@h/db"))
}

func TestMigrator_ErrNoChangeIsSuccess(t *testing.T) {
	m := &Migrator{m: &fakeMigration{
		upErr:    migrate.ErrNoChange,
		downErr:  migrate.ErrNoChange,
		stepsErr: migrate.ErrNoChange,
	}}
	require.NoError(t, m.Up())
	require.NoError(t, m.Down())
	require.NoError(t, m.Steps(0))
}

func TestMigrator_Failures(t *testing.T) {
	boom := errors.New("database locked")
	tests := []struct {
		name string
		fake *fakeMigration
		call func(*Migrator) error
		code string
	}{
		{"up", &fakeMigration{upErr: boom}, (*Migrator).Up, "MIGRATION_UP_FAILED"},
		{"down", &fakeMigration{downErr: boom}, (*Migrator).Down, "MIGRATION_DOWN_FAILED"},
		{"steps", &fakeMigration{stepsErr: boom}, func(m *Migrator) error { return m.Steps(2) }, "MIGRATION_STEPS_FAILED"},
		{"force", &fakeMigration{forceErr: boom}, func(m *Migrator) error { return m.Force(1) }, "MIGRATION_FORCE_FAILED"},
		{"negative force", &fakeMigration{}, func(m *Migrator) error { return m.Force(-1) }, "INVALID_VERSION"},
		{"version", &fakeMigration{versionErr: boom}, func(m *Migrator) error {
			_, _, err := m.Version()
			return err
		}, "MIGRATION_VERSION_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call(&Migrator{m: tt.fake})
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, tt.code)
		})
	}
}

func TestMigrator_Version(t *testing.T) {
	m := &Migrator{m: &fakeMigration{version: 2, dirty: true}}
	v, dirty, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)
	assert.True(t, dirty)

	m = &Migrator{m: &fakeMigration{versionErr: migrate.ErrNilVersion}}
	v, dirty, err = m.Version()
	require.NoError(t, err, "a fresh database is version 0")
	assert.Zero(t, v)
	assert.False(t, dirty)
}

func TestMigrator_Close(t *testing.T) {
	tests := []struct {
		name      string
		src, db   error
		component string
	}{
		{"clean", nil, nil, ""},
		{"source", errors.New("src"), nil, "source"},
		{"database", nil, errors.New("db"), "database"},
		{"both", errors.New("src"), errors.New("db"), "both"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := (&Migrator{m: &fakeMigration{closeSourceErr: tt.src, closeDBErr: tt.db}}).Close()
			if tt.component == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, "MIGRATION_CLOSE_FAILED")
			errutil.AssertErrorContext(t, err, "component", tt.component)
		})
	}
}

func TestMigrator_Status(t *testing.T) {
	tests := []struct {
		name    string
		fake    *fakeMigration
		applied []uint
		pending []uint
		label   string
	}{
		{"fresh database", &fakeMigration{versionErr: migrate.ErrNilVersion}, nil, []uint{1, 2}, ""},
		{"partially applied", &fakeMigration{version: 1}, []uint{1}, []uint{2}, "000001_credentials"},
		{"latest", &fakeMigration{version: 2}, []uint{1, 2}, nil, "000002_value_checks"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Migrator{m: tt.fake}
			st, err := m.Status()
			require.NoError(t, err)
			assert.Equal(t, tt.applied, st.Applied)
			assert.Equal(t, tt.pending, st.Pending)
			assert.Equal(t, tt.label, st.Name)

			pending, err := m.PendingMigrations()
			require.NoError(t, err)
			assert.Equal(t, tt.pending, pending)

			applied, err := m.AppliedMigrations()
			require.NoError(t, err)
			assert.Equal(t, tt.applied, applied)
		})
	}

	t.Run("version failure carries the operation", func(t *testing.T) {
		m := &Migrator{m: &fakeMigration{versionErr: errors.New("connection lost")}}
		_, err := m.PendingMigrations()
		require.Error(t, err)
		errutil.AssertErrorContext(t, err, "operation", "get pending migrations")
	})
}

func TestMigrator_MethodsAfterClose(t *testing.T) {
	calls := map[string]func(*Migrator) error{
		"Up":    (*Migrator).Up,
		"Down":  (*Migrator).Down,
		"Steps": func(m *Migrator) error { return m.Steps(1) },
		"Force": func(m *Migrator) error { return m.Force(1) },
		"Status": func(m *Migrator) error {
			_, err := m.Status()
			return err
		},
	}

	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			m := &Migrator{m: &fakeMigration{}}
			require.NoError(t, m.Close())
			assert.Error(t, call(m))
		})
	}
}

func TestMigrationName(t *testing.T) {
	tests := []struct {
		version uint
		want    string
	}{
		{1, "000001_credentials"},
		{2, "000002_value_checks"},
		{999, ""},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("version_%d", tt.version), func(t *testing.T) {
			name, err := MigrationName(tt.version)
			require.NoError(t, err)
			assert.Equal(t, tt.want, name)
		})
	}
}

func TestEmbeddedVersions_ReturnsCopy(t *testing.T) {
	first, err := embeddedVersions()
	require.NoError(t, err)
	require.NotEmpty(t, first)
	first[0] = 99999

	second, err := embeddedVersions()
	require.NoError(t, err)
	assert.Equal(t, uint(1), second[0])
}
