package db

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "chat.db?_pragma=foreign_keys(1)", SQLiteDSN("chat.db"))
	assert.Equal(t, "file:x?mode=memory&_pragma=foreign_keys(1)", SQLiteDSN("file:x?mode=memory"))
	assert.Equal(t, "chat.db?_pragma=foreign_keys(0)", SQLiteDSN("chat.db?_pragma=foreign_keys(0)"))
}

func TestConnectSQLiteEnforcesForeignKeysOnFreshConnections(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	conn, err := Connect(DriverSQLite, filepath.Join(t.TempDir(), "chat.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	// no idle connections, so every statement runs on a newly opened one
	conn.SetMaxIdleConns(0)

	for i := 0; i < 3; i++ {
		_, err = conn.Exec(`INSERT INTO messages (sender_id, recipient_id, content) VALUES (4242, 4343, 'orphan')`)
		require.Error(t, err, "attempt %d", i)
	}

	var count int
	require.NoError(t, conn.Get(&count, `SELECT COUNT(*) FROM messages`))
	assert.Zero(t, count)
}
