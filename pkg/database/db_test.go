package database

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAppliesPragmasOnEveryConnection(t *testing.T) {
	db, err := OpenAndMigrate(Config{Path: filepath.Join(t.TempDir(), "sub", "pragma.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	db.SetMaxOpenConns(4)

	ctx := context.Background()
	conns := make([]*sql.Conn, 0, 3)
	for i := 0; i < 3; i++ {
		c, err := db.Conn(ctx)
		require.NoError(t, err)
		conns = append(conns, c)
	}
	for i, c := range conns {
		var fk, timeout int
		var mode string
		require.NoError(t, c.QueryRowContext(ctx, `PRAGMA foreign_keys`).Scan(&fk))
		require.NoError(t, c.QueryRowContext(ctx, `PRAGMA busy_timeout`).Scan(&timeout))
		require.NoError(t, c.QueryRowContext(ctx, `PRAGMA journal_mode`).Scan(&mode))
		assert.Equal(t, 1, fk, "conn %d", i)
		assert.Equal(t, 5000, timeout, "conn %d", i)
		assert.Equal(t, "wal", mode, "conn %d", i)
	}
	for _, c := range conns {
		require.NoError(t, c.Close())
	}
}

func TestDSNKeepsPath(t *testing.T) {
	dsn := DSN(Config{Path: "/data/novels.db"})
	assert.Contains(t, dsn, "/data/novels.db?")
	assert.Contains(t, dsn, "_busy_timeout=5000")
}
