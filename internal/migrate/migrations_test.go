package migrate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/and27/pcengine/internal/db"
)

func TestLoadMigrationsPerDialect(t *testing.T) {
	for _, d := range []db.Dialect{db.SQLite, db.Postgres} {
		ms, err := loadMigrations(d)
		require.NoError(t, err)
		require.NotEmpty(t, ms)
		assert.Equal(t, 1, ms[0].Version)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	conn, dialect, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, Migrate(ctx, conn, dialect))
	require.NoError(t, Migrate(ctx, conn, dialect))

	v, err := Version(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	for _, table := range []string{"projects", "project_snapshots", "override_decisions", "repo_drafts", "github_connections", "events"} {
		var n int
		require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n), table)
		assert.Equal(t, 1, n, table)
	}
}
