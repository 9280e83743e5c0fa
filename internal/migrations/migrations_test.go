package migrations

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

func TestDatabaseURL(t *testing.T) {
	cases := []struct {
		driver string
		dsn    string
		want   string
	}{
		{"pgx", "postgres://u:p@localhost:5432/db?sslmode=disable", "pgx5://u:p@localhost:5432/db?sslmode=disable"},
		{"pgx", "postgresql://localhost/db", "pgx5://localhost/db"},
		{"sqlite3", "file:/tmp/bot.db", "sqlite3:///tmp/bot.db"},
		{"sqlite3", "/tmp/bot.db", "sqlite3:///tmp/bot.db"},
	}
	for _, tc := range cases {
		got, err := databaseURL(tc.driver, tc.dsn)
		require.NoError(t, err)
		require.Equal(t, tc.want, got)
	}

	_, err := databaseURL("mysql", "whatever")
	require.Error(t, err)

	_, err = databaseURL("pgx", "host=localhost dbname=db")
	require.Error(t, err)
}

func TestUp_SQLiteCreatesSchemaAndIsRepeatable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.db")

	require.NoError(t, Up("sqlite3", path))
	require.NoError(t, Up("sqlite3", path), "second run must be a no-op")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"outbound_tasks", "patients", "patient_injections", "patient_messages", "chat_sessions"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, "table %s", table)
	}
}
