// Package dbtest provides migrated in-memory SQLite databases for tests.
package dbtest

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"chat-realtime/internal/db"
)

// Open returns a fresh migrated database that is closed when the test ends.
func Open(t testing.TB) *sqlx.DB {
	t.Helper()
	dsn := db.SQLiteDSN(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	conn, err := sqlx.Connect(db.DriverSQLite, dsn)
	require.NoError(t, err)
	conn.SetMaxOpenConns(1)
	require.NoError(t, db.Migrate(conn))
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// CreateUser inserts a user row and returns its id.
func CreateUser(t testing.TB, conn *sqlx.DB, name string) int {
	t.Helper()
	var id int
	err := conn.QueryRowx(conn.Rebind(`INSERT INTO users (name, avatar) VALUES (?, ?) RETURNING id`), name, "/avatars/"+name+".png").Scan(&id)
	require.NoError(t, err)
	return id
}

// CreateFile inserts attachment metadata owned by ownerID and returns its id.
func CreateFile(t testing.TB, conn *sqlx.DB, ownerID int, name string) int {
	t.Helper()
	var id int
	err := conn.QueryRowx(conn.Rebind(`INSERT INTO files (owner_id, file_name, mime_type, size, url, created_at) VALUES (?, ?, ?, ?, ?, ?) RETURNING id`),
		ownerID, name, "image/png", 1024, "/files/"+name, time.Now().UTC()).Scan(&id)
	require.NoError(t, err)
	return id
}
