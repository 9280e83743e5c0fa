package repo

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Store implements every repository on top of one SQL database. Queries are
// written with "?" placeholders and rebound for the driver in use.
type Store struct {
	db        *sqlx.DB
	forUpdate string
}

var (
	_ TaskRepository    = (*Store)(nil)
	_ PatientRepository = (*Store)(nil)
	_ MessageRepository = (*Store)(nil)
	_ SessionRepository = (*Store)(nil)
)

// Open connects to driver ("pgx" or "sqlite3") at dsn.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if driver == "sqlite3" {
		// single writer
		db.SetMaxOpenConns(1)
	}
	return New(db), nil
}

func New(db *sqlx.DB) *Store {
	s := &Store{db: db}
	if db.DriverName() == "pgx" {
		s.forUpdate = " FOR UPDATE"
	}
	return s
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) q(query string) string {
	return s.db.Rebind(query)
}

func (s *Store) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, s.q(query), args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
