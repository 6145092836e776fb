package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect names the SQL flavour behind a DB. Its value doubles as the
// migrations subdirectory.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite3"
)

func (d Dialect) driverName() string {
	if d == Postgres {
		return "pgx"
	}
	return "sqlite3"
}

// Rebind rewrites ? placeholders into the dialect's native form.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type DB struct {
	SQL     *sql.DB
	Dialect Dialect
}

// ParseURL splits a DATABASE_URL into its dialect and the DSN the driver expects.
// Postgres URLs are passed through; sqlite:, sqlite3: and file: URLs point at
// a SQLite database file.
func ParseURL(databaseURL string) (Dialect, string, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return Postgres, databaseURL, nil
	case strings.HasPrefix(databaseURL, "sqlite3:"):
		return SQLite, sqlitePath(strings.TrimPrefix(databaseURL, "sqlite3:")), nil
	case strings.HasPrefix(databaseURL, "sqlite:"):
		return SQLite, sqlitePath(strings.TrimPrefix(databaseURL, "sqlite:")), nil
	case strings.HasPrefix(databaseURL, "file:"):
		return SQLite, databaseURL, nil
	}
	return "", "", fmt.Errorf("unsupported database url %q", databaseURL)
}

func sqlitePath(rest string) string {
	return strings.TrimPrefix(rest, "//")
}

func Open(ctx context.Context, databaseURL string, maxOpen, maxIdle int, maxLifetime, maxIdleTime time.Duration) (*DB, error) {
	dialect, dsn, err := ParseURL(databaseURL)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)
	db.SetConnMaxIdleTime(maxIdleTime)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DB{SQL: db, Dialect: dialect}, nil
}
