package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		dialect Dialect
		dsn     string
	}{
		{"postgres", "postgres://u:p@localhost:5432/db?sslmode=disable", Postgres, "postgres://u:p@localhost:5432/db?sslmode=disable"},
		{"postgresql", "postgresql://localhost/db", Postgres, "postgresql://localhost/db"},
		{"sqlite relative", "sqlite:notes.db?_busy_timeout=5000", SQLite, "notes.db?_busy_timeout=5000"},
		{"sqlite absolute", "sqlite:///var/lib/notes.db", SQLite, "/var/lib/notes.db"},
		{"sqlite3", "sqlite3:notes.db", SQLite, "notes.db"},
		{"file uri", "file:notes.db?mode=rwc", SQLite, "file:notes.db?mode=rwc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, dsn, err := ParseURL(tt.in)
			require.NoError(t, err)
			require.Equal(t, tt.dialect, d)
			require.Equal(t, tt.dsn, dsn)
		})
	}

	_, _, err := ParseURL("mysql://localhost/db")
	require.Error(t, err)
}

func TestRebind(t *testing.T) {
	q := `UPDATE notes SET changed = ?, title = ? WHERE id = ?`
	require.Equal(t, `UPDATE notes SET changed = $1, title = $2 WHERE id = $3`, Postgres.Rebind(q))
	require.Equal(t, q, SQLite.Rebind(q))
}

func TestMigrateAndOpen_SQLite(t *testing.T) {
	url := "sqlite:" + filepath.Join(t.TempDir(), "notes.db") + "?_busy_timeout=5000"

	require.NoError(t, MigrateUp(url))
	// second run reports no change and must not fail
	require.NoError(t, MigrateUp(url))

	d, err := Open(context.Background(), url, 4, 2, time.Minute, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.SQL.Close() })
	require.Equal(t, SQLite, d.Dialect)

	var n int
	require.NoError(t, d.SQL.QueryRow(`SELECT COUNT(*) FROM notes`).Scan(&n))
	require.Equal(t, 0, n)

	require.NoError(t, MigrateDown(url))
	_, err = d.SQL.Exec(`SELECT COUNT(*) FROM notes`)
	require.Error(t, err)
}
