// Package db keeps the distillation run history in .wm/wm.db. The history is
// an audit trail only: no pipeline decision reads from it.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/wm/internal/config"
	_ "modernc.org/sqlite"
)

// FileName is the database file inside the .wm directory.
const FileName = "wm.db"

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// Init opens (creating if needed) the SQLite database at baseDir/wm.db.
// The baseDir parameter allows tests to use t.TempDir() instead of a project .wm.
func Init(baseDir string) (*sql.DB, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	// Open database with pragmas in connection string (applies to all connections)
	dbPath := filepath.Join(baseDir, FileName)
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
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
	if cfg.DB.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	}
	if cfg.DB.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	}
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: Initial schema
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS runs (
		  id                TEXT PRIMARY KEY,
		  started_at        INTEGER NOT NULL,
		  finished_at       INTEGER NOT NULL,
		  dry_run           INTEGER NOT NULL DEFAULT 0,
		  force             INTEGER NOT NULL DEFAULT 0,
		  discovered        INTEGER NOT NULL DEFAULT 0,
		  processed         INTEGER NOT NULL DEFAULT 0,
		  cached            INTEGER NOT NULL DEFAULT 0,
		  empty             INTEGER NOT NULL DEFAULT 0,
		  failed            INTEGER NOT NULL DEFAULT 0,
		  categorized       INTEGER NOT NULL DEFAULT 0,
		  guardrails_count  INTEGER NOT NULL DEFAULT 0,
		  metis_count       INTEGER NOT NULL DEFAULT 0,
		  skipped_reason    TEXT,
		  error             TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_runs_started
		ON runs(started_at DESC);

		CREATE TABLE IF NOT EXISTS session_outcomes (
		  run_id       TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		  session_id   TEXT NOT NULL,
		  source       TEXT,
		  status       TEXT NOT NULL,
		  fingerprint  TEXT,
		  error        TEXT,
		  PRIMARY KEY (run_id, session_id)
		);

		CREATE INDEX IF NOT EXISTS idx_session_outcomes_session
		ON session_outcomes(session_id);
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
