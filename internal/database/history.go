package database

import (
	"database/sql"
	"time"
)

// HistoryDB provides helper methods for the run-history tables
type HistoryDB struct {
	db *sql.DB
}

// NewHistoryDB creates a new history helper
func NewHistoryDB(db *sql.DB) *HistoryDB {
	return &HistoryDB{db: db}
}

// CreateRun records the start of a run
func (h *HistoryDB) CreateRun(runID, mode string) error {
	_, err := h.db.Exec(`
		INSERT INTO runs (run_id, mode, status, created_at)
		VALUES (?, ?, 'running', ?)
	`, runID, mode, time.Now().Unix())
	return err
}

// FinishRun records the terminal state of a run. status is one of
// 'committed' or 'aborted'.
func (h *HistoryDB) FinishRun(runID, status, finalLog string) error {
	_, err := h.db.Exec(`
		UPDATE runs
		SET status = ?, final_log = ?, completed_at = ?
		WHERE run_id = ?
	`, status, finalLog, time.Now().Unix(), runID)
	return err
}

// CreateAttempt records one apply/validate attempt within a run
func (h *HistoryDB) CreateAttempt(attemptID, runID, representation string, appliedCount int, validationOK bool) error {
	ok := 0
	if validationOK {
		ok = 1
	}
	_, err := h.db.Exec(`
		INSERT INTO attempts (attempt_id, run_id, representation, applied_count, validation_ok, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, attemptID, runID, representation, appliedCount, ok, time.Now().Unix())
	return err
}

// AddOutcome records what happened to one chunk in an attempt
func (h *HistoryDB) AddOutcome(attemptID string, chunkIndex int, path, result, reason string) error {
	_, err := h.db.Exec(`
		INSERT OR REPLACE INTO chunk_outcomes (attempt_id, chunk_index, path, result, reason)
		VALUES (?, ?, ?, ?, ?)
	`, attemptID, chunkIndex, path, result, reason)
	return err
}

// RunStats summarizes stored run history
type RunStats struct {
	TotalRuns int
	Committed int
	Aborted   int
}

// GetRunStats returns aggregate counts over all stored runs
func (h *HistoryDB) GetRunStats() (*RunStats, error) {
	stats := &RunStats{}
	err := h.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = 'committed' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'aborted' THEN 1 ELSE 0 END), 0)
		FROM runs
	`).Scan(&stats.TotalRuns, &stats.Committed, &stats.Aborted)
	if err != nil {
		return nil, err
	}
	return stats, nil
}
