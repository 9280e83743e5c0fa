// Package migrations embeds the schema for every supported database driver
// and applies it with golang-migrate.
package migrations

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed sql
var files embed.FS

// Up applies all pending migrations for driver ("pgx" or "sqlite3") against
// the database at dsn.
func Up(driver, dsn string) error {
	m, err := newMigrate(driver, dsn)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("unable to apply migrations: %w", err)
	}
	return nil
}

func newMigrate(driver, dsn string) (*migrate.Migrate, error) {
	target, err := databaseURL(driver, dsn)
	if err != nil {
		return nil, err
	}

	src, err := iofs.New(files, "sql/"+driver)
	if err != nil {
		return nil, fmt.Errorf("unable to open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, target)
	if err != nil {
		return nil, fmt.Errorf("unable to create migrations table: %w", err)
	}
	return m, nil
}

// databaseURL maps a database/sql DSN to the URL scheme golang-migrate
// expects for the driver.
func databaseURL(driver, dsn string) (string, error) {
	switch driver {
	case "pgx":
		for _, prefix := range []string{"postgres://", "postgresql://"} {
			if strings.HasPrefix(dsn, prefix) {
				return "pgx5://" + strings.TrimPrefix(dsn, prefix), nil
			}
		}
		return "", fmt.Errorf("pgx dsn must be a postgres:// url")
	case "sqlite3":
		return "sqlite3://" + strings.TrimPrefix(dsn, "file:"), nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}
