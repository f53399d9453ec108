package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/teemow/calpilot/internal/calendar"
	"github.com/teemow/calpilot/internal/clock"
	"github.com/teemow/calpilot/internal/database/migrations"
	"github.com/teemow/calpilot/internal/logging"
)

// SQLiteStore implements calendar.Store and persona.Store on SQLite.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	clock  clock.Clock
	ids    clock.IDGenerator
	logger *slog.Logger
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithClock sets the clock used for created/updated timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *SQLiteStore) { s.clock = c }
}

// WithIDGenerator sets the generator for event, undo and changeset ids.
func WithIDGenerator(g clock.IDGenerator) Option {
	return func(s *SQLiteStore) { s.ids = g }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *SQLiteStore) { s.logger = l }
}

// Open opens (or creates) the database at path and migrates it to the
// latest schema. path can be ":memory:".
func Open(path string, opts ...Option) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{
		db:     db,
		path:   path,
		clock:  clock.RealClock{},
		ids:    clock.UUIDGenerator{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.WithBackend(s.logger, "sqlite")
	return s, nil
}

// OpenConnection opens and configures a SQLite connection.
//
// The pool is limited to one connection: writes are serialized anyway, an
// in-memory database only exists on the connection that created it, and a
// single connection rules out SQLITE_BUSY between our own transactions.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	return db, nil
}

// Capabilities reports full transactional undo.
func (s *SQLiteStore) Capabilities() calendar.Capabilities {
	return calendar.Capabilities{Backend: "sqlite", FullUndo: true}
}

// Close closes the underlying connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable. Used by readiness probes.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Path returns the database path the store was opened with.
func (s *SQLiteStore) Path() string {
	return s.path
}

// MigrationStatus reports the schema version.
func (s *SQLiteStore) MigrationStatus() (migrations.Status, error) {
	return migrations.GetStatus(s.db)
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn in a transaction, committing only when fn succeeds.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
