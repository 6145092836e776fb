package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrations embed.FS

// MigrateUp applies every pending migration. It is a no-op on an up-to-date schema.
func MigrateUp(databaseURL string) error {
	return withMigrator(databaseURL, func(m *migrate.Migrate) error {
		return m.Up()
	})
}

// MigrateDown rolls the schema all the way back.
func MigrateDown(databaseURL string) error {
	return withMigrator(databaseURL, func(m *migrate.Migrate) error {
		return m.Down()
	})
}

// withMigrator runs fn on a dedicated connection that is closed afterwards,
// so the migrator never holds a connection from the serving pool.
func withMigrator(databaseURL string, fn func(*migrate.Migrate) error) error {
	dialect, dsn, err := ParseURL(databaseURL)
	if err != nil {
		return err
	}

	conn, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return err
	}

	var drv database.Driver
	switch dialect {
	case Postgres:
		drv, err = pgxmigrate.WithInstance(conn, &pgxmigrate.Config{})
	default:
		drv, err = sqlitemigrate.WithInstance(conn, &sqlitemigrate.Config{})
	}
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("migration driver: %w", err)
	}

	src, err := iofs.New(migrations, "migrations/"+string(dialect))
	if err != nil {
		_ = drv.Close()
		return fmt.Errorf("migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, string(dialect), drv)
	if err != nil {
		_ = drv.Close()
		return fmt.Errorf("migrator: %w", err)
	}
	defer m.Close()

	if err := fn(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate %s: %w", dialect, err)
	}
	return nil
}
