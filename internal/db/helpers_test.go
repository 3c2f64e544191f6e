package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Create(context.Background(), filepath.Join(t.TempDir(), "quassel-storage.sqlite"), zap.NewNop())
	require.NoError(t, err, "failed to create test database")
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func addNetwork(t *testing.T, db *DB, userID int64, name string) int64 {
	t.Helper()
	result, err := db.conn.Exec(`INSERT INTO network (userid, networkname) VALUES (?, ?)`, userID, name)
	require.NoError(t, err)
	id, err := result.LastInsertId()
	require.NoError(t, err)
	return id
}

func addBuffer(t *testing.T, db *DB, userID, networkID int64, name string) int64 {
	t.Helper()
	result, err := db.conn.Exec(`
		INSERT INTO buffer (userid, networkid, buffername, buffercname)
		VALUES (?, ?, ?, lower(?))
	`, userID, networkID, name, name)
	require.NoError(t, err)
	id, err := result.LastInsertId()
	require.NoError(t, err)
	return id
}

func addBacklog(t *testing.T, db *DB, bufferID int64, message string) {
	t.Helper()
	_, err := db.conn.Exec(`
		INSERT INTO backlog (time, bufferid, type, flags, senderid, message)
		VALUES (strftime('%s','now'), ?, 1, 0, 0, ?)
	`, bufferID, message)
	require.NoError(t, err)
}

// addUserWithHistory creates a user owning one network, two buffers and some backlog
func addUserWithHistory(t *testing.T, db *DB, username string) int64 {
	t.Helper()
	ctx := context.Background()

	userID, err := db.AddUser(ctx, username, "password", "")
	require.NoError(t, err)

	networkID := addNetwork(t, db, userID, "libera")
	for _, name := range []string{"#quassel", "#go-nuts"} {
		bufferID := addBuffer(t, db, userID, networkID, name)
		addBacklog(t, db, bufferID, "hello from "+username)
		addBacklog(t, db, bufferID, "bye from "+username)
	}

	return userID
}

func countRows(t *testing.T, db *DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.conn.QueryRow(`SELECT COUNT(*) FROM `+table).Scan(&n))
	return n
}
