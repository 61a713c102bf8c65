package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honestai/internal/config"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := config.DatabaseConfig{
		Driver: "sqlite3",
		DSN:    filepath.Join(t.TempDir(), "nested", "test.db"),
	}
	db, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, Migrate(context.Background(), db, cfg.Driver))
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, Migrate(context.Background(), db, "sqlite3"))

	for _, table := range []string{"users", "uploads", "analyses"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, table)
	}
}

func TestUniqueUsernameViolation(t *testing.T) {
	db := openTestDB(t)
	now := time.Now().UTC()
	_, err := db.Exec(`INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)`, "alice", "h", now)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)`, "alice", "h", now)
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
	assert.True(t, IsUniqueViolation(errors.Join(errors.New("create user"), err)))
	assert.False(t, IsUniqueViolation(errors.New("other")))
	assert.False(t, IsUniqueViolation(nil))
}

func TestUsernamesAreCaseSensitive(t *testing.T) {
	for name, db := range testDatabases(t) {
		t.Run(name, func(t *testing.T) {
			now := time.Now().UTC()
			suffix := strconv.FormatInt(now.UnixNano(), 10)
			_, err := db.Exec(`INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)`, "alice"+suffix, "h", now)
			require.NoError(t, err)
			_, err = db.Exec(`INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)`, "Alice"+suffix, "h", now)
			require.NoError(t, err)

			var n int
			require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM users WHERE username = ?`, "ALICE"+suffix).Scan(&n))
			assert.Zero(t, n)
		})
	}
}

// testDatabases returns a sqlite database and, when TEST_MYSQL_DSN is set, a
// migrated mysql one.
func testDatabases(t *testing.T) map[string]*sql.DB {
	t.Helper()
	dbs := map[string]*sql.DB{"sqlite3": openTestDB(t)}
	if dsn := os.Getenv("TEST_MYSQL_DSN"); dsn != "" {
		cfg := config.DatabaseConfig{Driver: "mysql", DSN: dsn}
		db, err := Open(cfg)
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		require.NoError(t, Migrate(context.Background(), db, cfg.Driver))
		dbs["mysql"] = db
	}
	return dbs
}

func TestForeignKeysEnforced(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Exec(`INSERT INTO uploads (user_id, filename, stored_path, content_type, size, content_hash, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, 999, "a.wav", "999/a.wav", "audio/wav", 1, "x", time.Now().UTC())
	assert.Error(t, err)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
	assert.Error(t, Migrate(context.Background(), nil, "oracle"))
}
