// Package dbtest opens throwaway migrated SQLite databases for tests.
package dbtest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/kedevs/blogapi/config"
	"github.com/kedevs/blogapi/internal/db"
	"github.com/stretchr/testify/require"
)

// Open returns a fresh SQLite database with all migrations applied.
// The database is closed when the test finishes.
func Open(t *testing.T) *sql.DB {
	t.Helper()

	cfg := config.Config{
		Database: config.DatabaseConfig{
			Driver: config.DriverSQLite,
			Path:   filepath.Join(t.TempDir(), "blog.db"),
		},
	}

	conn, err := db.Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, db.MigrateUp(conn, config.DriverSQLite))
	return conn
}
