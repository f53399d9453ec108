// Package migrations embeds the SQLite schema and applies it with golang-migrate.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed files/*.sql
var migrationFiles embed.FS

// Status describes the schema version of a database.
type Status struct {
	Version uint
	Latest  uint
	Dirty   bool
}

// Current reports whether the schema is at the latest version and clean.
func (s Status) Current() bool {
	return !s.Dirty && s.Version == s.Latest
}

// MigrateUp applies all pending migrations. An up-to-date database is not an error.
// The caller keeps ownership of db; the migrate instance is not closed because
// closing it would close db.
func MigrateUp(db *sql.DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// GetStatus returns the applied and latest available schema versions.
func GetStatus(db *sql.DB) (Status, error) {
	m, err := newMigrate(db)
	if err != nil {
		return Status{}, err
	}

	latest, err := LatestVersion()
	if err != nil {
		return Status{}, err
	}

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return Status{Latest: latest}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("failed to get database version: %w", err)
	}
	return Status{Version: version, Latest: latest, Dirty: dirty}, nil
}

// CheckDBMigrationStatus returns an error unless the schema is current.
func CheckDBMigrationStatus(db *sql.DB) error {
	st, err := GetStatus(db)
	if err != nil {
		return err
	}
	switch {
	case st.Dirty:
		return fmt.Errorf("database is in dirty state at version %d (migration failed previously)", st.Version)
	case st.Version == 0:
		return fmt.Errorf("database has no schema version (needs migration)")
	case st.Version < st.Latest:
		return fmt.Errorf("database is at version %d but latest is %d", st.Version, st.Latest)
	case st.Version > st.Latest:
		return fmt.Errorf("database version %d is ahead of binary version %d", st.Version, st.Latest)
	}
	return nil
}

// LatestVersion returns the highest migration version embedded in the binary.
func LatestVersion() (uint, error) {
	src, err := iofs.New(migrationFiles, "files")
	if err != nil {
		return 0, fmt.Errorf("failed to read migration files: %w", err)
	}
	defer src.Close()
	return lastVersion(src)
}

func lastVersion(src source.Driver) (uint, error) {
	version, err := src.First()
	if err != nil {
		return 0, err
	}
	for {
		next, err := src.Next(version)
		if err != nil {
			return version, nil
		}
		version = next
	}
}

func newMigrate(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationFiles, "files")
	if err != nil {
		return nil, fmt.Errorf("failed to create source driver: %w", err)
	}

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}
