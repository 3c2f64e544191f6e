package schema

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "schema.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	conn := openSQLite(t)

	require.NoError(t, Apply(ctx, conn))
	// already applied migrations are skipped
	require.NoError(t, Apply(ctx, conn))

	for _, table := range []string{"quasseluser", "network", "buffer", "backlog"} {
		var name string
		err := conn.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, "table %s", table)
		assert.Equal(t, table, name)
	}
}

func TestApplyError(t *testing.T) {
	orig := gooseUpContext
	t.Cleanup(func() { gooseUpContext = orig })

	boom := errors.New("boom")
	gooseUpContext = func(context.Context, *sql.DB, string, ...goose.OptionsFunc) error {
		return boom
	}

	err := Apply(context.Background(), openSQLite(t))
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failed to apply schema")
}
