package database

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// schema defines the run-history tables: one row per run, per
// attempt, and per chunk outcome, plus the latency histogram.
const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	mode TEXT NOT NULL,
	status TEXT NOT NULL,
	final_log TEXT,
	created_at INTEGER NOT NULL,
	completed_at INTEGER
);

CREATE TABLE IF NOT EXISTS attempts (
	attempt_id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL REFERENCES runs(run_id),
	representation TEXT NOT NULL,
	applied_count INTEGER NOT NULL DEFAULT 0,
	validation_ok INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS chunk_outcomes (
	attempt_id TEXT NOT NULL REFERENCES attempts(attempt_id),
	chunk_index INTEGER NOT NULL,
	path TEXT NOT NULL,
	result TEXT NOT NULL,
	reason TEXT,
	PRIMARY KEY (attempt_id, chunk_index)
);

CREATE TABLE IF NOT EXISTS latency_histogram (
	operation TEXT NOT NULL,
	bucket_ms INTEGER NOT NULL,
	count INTEGER DEFAULT 0,
	timestamp INTEGER NOT NULL,
	PRIMARY KEY (operation, bucket_ms, timestamp)
);

CREATE INDEX IF NOT EXISTS idx_attempts_run ON attempts(run_id);
`

// Open opens the history database at path, applying the standard
// pragmas and creating the schema when absent
func Open(path string) (*sql.DB, error) {
	connString := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=ON&_busy_timeout=5000", path)

	db, err := sql.Open("sqlite", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database %s: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return db, nil
}
