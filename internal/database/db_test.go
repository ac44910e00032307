package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "engine.db")

	db, err := NewDB(path)
	require.NoError(t, err)
	defer db.Close()

	var name string
	err = db.SQL.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'usage_records'`).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "usage_records", name)
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.db")

	require.NoError(t, RunMigrations(path))
	require.NoError(t, RunMigrations(path))
}
