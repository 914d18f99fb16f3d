package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/relaynote/relaynote/internal/config"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// Init initializes the SQLite database at baseDir/relaynote.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.relaynote.
// Migrations run here; a missing table is a startup failure, never a
// per-call condition.
func Init(baseDir string) (*sql.DB, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	// Explicit chmod (best-effort, may not work on all platforms)
	_ = os.Chmod(baseDir, 0700)

	dbPath := filepath.Join(baseDir, "relaynote.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	// Set file permissions after file exists (best-effort)
	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: Initial schema (v1)
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS mappings (
		  id                        TEXT PRIMARY KEY,
		  owner                     TEXT NOT NULL,
		  repo                      TEXT NOT NULL,
		  company_id                TEXT,
		  last_release_id           INTEGER,
		  last_release_tag          TEXT,
		  last_release_published_at INTEGER,
		  created_at                INTEGER NOT NULL,
		  updated_at                INTEGER NOT NULL
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_mappings_repo_company
		ON mappings(owner, repo, IFNULL(company_id, ''));

		CREATE TABLE IF NOT EXISTS sync_runs (
		  id                 INTEGER PRIMARY KEY AUTOINCREMENT,
		  triggered_by       TEXT NOT NULL,
		  dry_run            INTEGER NOT NULL DEFAULT 0,
		  status             TEXT NOT NULL,
		  mappings_processed INTEGER NOT NULL DEFAULT 0,
		  notes_created      INTEGER NOT NULL DEFAULT 0,
		  skipped            INTEGER NOT NULL DEFAULT 0,
		  error              TEXT,
		  started_at         INTEGER NOT NULL,
		  finished_at        INTEGER
		);

		CREATE TABLE IF NOT EXISTS sync_outcomes (
		  id            INTEGER PRIMARY KEY AUTOINCREMENT,
		  run_id        INTEGER NOT NULL REFERENCES sync_runs(id),
		  mapping_id    TEXT NOT NULL,
		  status        TEXT NOT NULL,
		  notes_created INTEGER NOT NULL DEFAULT 0,
		  error         TEXT,
		  created_at    INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_sync_outcomes_run
		ON sync_outcomes(run_id);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	// Future migrations go here:
	// if version < 2 { ... }

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
