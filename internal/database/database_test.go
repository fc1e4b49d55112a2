package database

import (
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *HistoryDB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewHistoryDB(db)
}

func TestRunLifecycle(t *testing.T) {
	h := openTestDB(t)

	if err := h.CreateRun("run-1", "FIX"); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	if err := h.FinishRun("run-1", "committed", "build passed"); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	if err := h.CreateRun("run-2", "FEATURE"); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	if err := h.FinishRun("run-2", "aborted", "build failed"); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	stats, err := h.GetRunStats()
	if err != nil {
		t.Fatalf("GetRunStats failed: %v", err)
	}
	if stats.TotalRuns != 2 || stats.Committed != 1 || stats.Aborted != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestAttemptsAndOutcomes(t *testing.T) {
	h := openTestDB(t)

	if err := h.CreateRun("run-1", "FEATURE"); err != nil {
		t.Fatal(err)
	}
	if err := h.CreateAttempt("att-1", "run-1", "patch", 2, false); err != nil {
		t.Fatalf("CreateAttempt failed: %v", err)
	}

	if err := h.AddOutcome("att-1", 0, "src/a.ts", "applied", "fuzzy"); err != nil {
		t.Fatalf("AddOutcome failed: %v", err)
	}
	if err := h.AddOutcome("att-1", 1, "src/b.ts", "skipped", "target path does not exist"); err != nil {
		t.Fatalf("AddOutcome failed: %v", err)
	}
	// Re-recording the same chunk replaces the row instead of failing.
	if err := h.AddOutcome("att-1", 1, "src/b.ts", "heuristic-applied", "force-delete"); err != nil {
		t.Fatalf("AddOutcome replace failed: %v", err)
	}

	var count int
	var result string
	row := h.db.QueryRow(`SELECT COUNT(*) FROM chunk_outcomes WHERE attempt_id = 'att-1'`)
	if err := row.Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("outcome rows = %d, expected 2", count)
	}
	row = h.db.QueryRow(`SELECT result FROM chunk_outcomes WHERE attempt_id = 'att-1' AND chunk_index = 1`)
	if err := row.Scan(&result); err != nil {
		t.Fatal(err)
	}
	if result != "heuristic-applied" {
		t.Errorf("replaced outcome result = %q", result)
	}
}

func TestDuplicateAttemptRejected(t *testing.T) {
	h := openTestDB(t)

	if err := h.CreateRun("run-1", "FIX"); err != nil {
		t.Fatal(err)
	}
	if err := h.CreateAttempt("att-1", "run-1", "patch", 0, false); err != nil {
		t.Fatal(err)
	}
	if err := h.CreateAttempt("att-1", "run-1", "files", 0, false); err == nil {
		t.Error("duplicate attempt id accepted")
	}
}

func TestOpenIsReentrant(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	db1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	db1.Close()

	// Reopening an existing file must tolerate the existing schema.
	db2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	db2.Close()
}
