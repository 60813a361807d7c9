package db

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Supported DB_DRIVER values.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func init() {
	// modernc registers itself as "sqlite", which sqlx does not know.
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Connect opens the database for driver and runs migrations.
func Connect(driver, dsn string, log *slog.Logger) (*sqlx.DB, error) {
	if driver == DriverSQLite {
		dsn = SQLiteDSN(dsn)
	}
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if driver == DriverSQLite {
		// a single writer avoids SQLITE_BUSY under concurrent sends
		db.SetMaxOpenConns(1)
	}

	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	log.Info("database migrations applied", "driver", driver)
	return db, nil
}

// SQLiteDSN adds the foreign_keys pragma to dsn so that every pooled
// connection enforces it, not only the one that ran the migrations.
func SQLiteDSN(dsn string) string {
	if strings.Contains(dsn, "foreign_keys") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)"
}

// Migrate creates the schema for the connection's driver.
func Migrate(db *sqlx.DB) error {
	migrations := postgresMigrations
	if db.DriverName() == DriverSQLite {
		migrations = sqliteMigrations
	}
	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
        id SERIAL PRIMARY KEY,
        name TEXT NOT NULL,
        email TEXT NOT NULL DEFAULT '',
        avatar TEXT NOT NULL DEFAULT '',
        status TEXT NOT NULL DEFAULT 'offline',
        last_seen TIMESTAMPTZ,
        status_stamp BIGINT NOT NULL DEFAULT 0
    );`,
	`CREATE TABLE IF NOT EXISTS files (
        id SERIAL PRIMARY KEY,
        owner_id INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
        file_name TEXT NOT NULL,
        mime_type TEXT NOT NULL DEFAULT '',
        size BIGINT NOT NULL DEFAULT 0,
        url TEXT NOT NULL DEFAULT '',
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );`,
	`CREATE TABLE IF NOT EXISTS chat_groups (
        id SERIAL PRIMARY KEY,
        name TEXT NOT NULL,
        description TEXT NOT NULL DEFAULT '',
        creator_id INT NOT NULL REFERENCES users(id),
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );`,
	`CREATE TABLE IF NOT EXISTS group_members (
        group_id INT NOT NULL REFERENCES chat_groups(id) ON DELETE CASCADE,
        user_id INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
        is_admin BOOLEAN NOT NULL DEFAULT FALSE,
        joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        PRIMARY KEY(group_id, user_id)
    );`,
	`CREATE TABLE IF NOT EXISTS messages (
        id SERIAL PRIMARY KEY,
        sender_id INT NOT NULL REFERENCES users(id),
        recipient_id INT REFERENCES users(id),
        group_id INT REFERENCES chat_groups(id) ON DELETE CASCADE,
        content TEXT NOT NULL DEFAULT '',
        is_read BOOLEAN NOT NULL DEFAULT FALSE,
        read_at TIMESTAMPTZ,
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        CHECK ((recipient_id IS NULL) <> (group_id IS NULL))
    );`,
	`CREATE INDEX IF NOT EXISTS idx_messages_direct ON messages (sender_id, recipient_id, created_at);`,
	`CREATE INDEX IF NOT EXISTS idx_messages_group ON messages (group_id, created_at);`,
	`CREATE TABLE IF NOT EXISTS message_attachments (
        message_id INT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
        file_id INT NOT NULL REFERENCES files(id),
        ordinal INT NOT NULL,
        PRIMARY KEY(message_id, ordinal)
    );`,
	`CREATE TABLE IF NOT EXISTS message_reads (
        message_id INT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
        user_id INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
        read_at TIMESTAMPTZ NOT NULL,
        PRIMARY KEY(message_id, user_id)
    );`,
	`CREATE TABLE IF NOT EXISTS conversations (
        id SERIAL PRIMARY KEY,
        user1_id INT REFERENCES users(id),
        user2_id INT REFERENCES users(id),
        group_id INT REFERENCES chat_groups(id) ON DELETE CASCADE,
        last_message_id INT REFERENCES messages(id) ON DELETE SET NULL,
        updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        UNIQUE(user1_id, user2_id),
        UNIQUE(group_id),
        CHECK ((user1_id IS NULL AND user2_id IS NULL) <> (group_id IS NULL)),
        CHECK (user1_id < user2_id)
    );`,
	`CREATE TABLE IF NOT EXISTS conversation_unread (
        conversation_id INT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
        user_id INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
        unread_count INT NOT NULL DEFAULT 0 CHECK (unread_count >= 0),
        PRIMARY KEY(conversation_id, user_id)
    );`,
}

var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        name TEXT NOT NULL,
        email TEXT NOT NULL DEFAULT '',
        avatar TEXT NOT NULL DEFAULT '',
        status TEXT NOT NULL DEFAULT 'offline',
        last_seen DATETIME,
        status_stamp INTEGER NOT NULL DEFAULT 0
    );`,
	`CREATE TABLE IF NOT EXISTS files (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        owner_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
        file_name TEXT NOT NULL,
        mime_type TEXT NOT NULL DEFAULT '',
        size INTEGER NOT NULL DEFAULT 0,
        url TEXT NOT NULL DEFAULT '',
        created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    );`,
	`CREATE TABLE IF NOT EXISTS chat_groups (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        name TEXT NOT NULL,
        description TEXT NOT NULL DEFAULT '',
        creator_id INTEGER NOT NULL REFERENCES users(id),
        created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    );`,
	`CREATE TABLE IF NOT EXISTS group_members (
        group_id INTEGER NOT NULL REFERENCES chat_groups(id) ON DELETE CASCADE,
        user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
        is_admin BOOLEAN NOT NULL DEFAULT FALSE,
        joined_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
        PRIMARY KEY(group_id, user_id)
    );`,
	`CREATE TABLE IF NOT EXISTS messages (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        sender_id INTEGER NOT NULL REFERENCES users(id),
        recipient_id INTEGER REFERENCES users(id),
        group_id INTEGER REFERENCES chat_groups(id) ON DELETE CASCADE,
        content TEXT NOT NULL DEFAULT '',
        is_read BOOLEAN NOT NULL DEFAULT FALSE,
        read_at DATETIME,
        created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
        CHECK ((recipient_id IS NULL) <> (group_id IS NULL))
    );`,
	`CREATE INDEX IF NOT EXISTS idx_messages_direct ON messages (sender_id, recipient_id, created_at);`,
	`CREATE INDEX IF NOT EXISTS idx_messages_group ON messages (group_id, created_at);`,
	`CREATE TABLE IF NOT EXISTS message_attachments (
        message_id INTEGER NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
        file_id INTEGER NOT NULL REFERENCES files(id),
        ordinal INTEGER NOT NULL,
        PRIMARY KEY(message_id, ordinal)
    );`,
	`CREATE TABLE IF NOT EXISTS message_reads (
        message_id INTEGER NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
        user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
        read_at DATETIME NOT NULL,
        PRIMARY KEY(message_id, user_id)
    );`,
	`CREATE TABLE IF NOT EXISTS conversations (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        user1_id INTEGER REFERENCES users(id),
        user2_id INTEGER REFERENCES users(id),
        group_id INTEGER REFERENCES chat_groups(id) ON DELETE CASCADE,
        last_message_id INTEGER REFERENCES messages(id) ON DELETE SET NULL,
        updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
        created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
        UNIQUE(user1_id, user2_id),
        UNIQUE(group_id),
        CHECK ((user1_id IS NULL AND user2_id IS NULL) <> (group_id IS NULL)),
        CHECK (user1_id < user2_id)
    );`,
	`CREATE TABLE IF NOT EXISTS conversation_unread (
        conversation_id INTEGER NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
        user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
        unread_count INTEGER NOT NULL DEFAULT 0 CHECK (unread_count >= 0),
        PRIMARY KEY(conversation_id, user_id)
    );`,
}
