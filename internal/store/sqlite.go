// Package store journals mirror conversations to SQLite so past turns can be
// reviewed. The journal is never replayed into the model.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/soyeahso/mirror/internal/logging"
)

// MemoryPath opens a throwaway journal that lives only as long as the DB.
const MemoryPath = ":memory:"

// pragmas run on the single pooled connection before migrations. The
// busy timeout covers `mirror history` reading while `mirror serve` writes.
var pragmas = []struct {
	stmt       string
	fileBacked bool
}{
	{"PRAGMA journal_mode=WAL", true},
	{"PRAGMA synchronous=NORMAL", true},
	{"PRAGMA busy_timeout=5000", false},
	{"PRAGMA foreign_keys=ON", false},
}

// DB is an open journal database.
type DB struct {
	sql  *sql.DB
	path string
	log  *logging.Logger
}

// Open opens the journal at path, creating its directory and schema as
// needed. Pass MemoryPath in tests.
func Open(path string, log *logging.Logger) (*DB, error) {
	memory := path == MemoryPath
	if !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	// One connection: pragmas are per connection and every pooled
	// in-memory connection would be a separate empty database.
	sqlDB.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if p.fileBacked && memory {
			continue
		}
		if _, err := sqlDB.Exec(p.stmt); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("%s: %w", p.stmt, err)
		}
	}

	db := &DB{sql: sqlDB, path: path, log: log.Sub("store")}
	if err := db.migrate(context.Background()); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrating journal: %w", err)
	}

	db.log.Debug().Str("path", path).Msg("journal opened")
	return db, nil
}

// Path returns the location the journal was opened from.
func (db *DB) Path() string {
	return db.path
}

// Close closes the journal.
func (db *DB) Close() error {
	db.log.Debug().Str("path", db.path).Msg("closing journal")
	return db.sql.Close()
}

// SchemaVersion returns the highest applied migration, or 0 on a fresh file.
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	var v sql.NullInt64
	if err := db.sql.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&v); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return int(v.Int64), nil
}

// migrate applies every migration newer than the recorded schema version.
func (db *DB) migrate(ctx context.Context) error {
	if _, err := db.sql.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`); err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}

	current, err := db.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		db.log.Info().Int("version", m.Version).Str("name", m.Name).Msg("applying migration")
		if err := db.apply(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) apply(ctx context.Context, m migration) (err error) {
	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migration %d: %w", m.Version, err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
	}
	if _, err = tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
		return fmt.Errorf("recording migration %d: %w", m.Version, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing migration %d: %w", m.Version, err)
	}
	return nil
}
