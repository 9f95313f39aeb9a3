// Package journal persists per-run lifecycle history to SQLite. The journal
// lives outside the workspace so it survives teardown; it exists for the
// operator (`rig runs`), and journal failures never fail a run.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	workspace   TEXT NOT NULL,
	status      TEXT NOT NULL,
	exit_code   INTEGER,
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP
);
CREATE TABLE IF NOT EXISTS run_events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	step       TEXT NOT NULL,
	detail     TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_run_events_run ON run_events(run_id);
`

// Run statuses.
const (
	StatusRunning = "running"
	StatusPassed  = "passed"
	StatusFailed  = "failed"
	StatusAborted = "aborted"
)

// Run is one harness run as recorded in the journal.
type Run struct {
	ID         string
	Workspace  string
	Status     string
	ExitCode   sql.NullInt64
	StartedAt  time.Time
	FinishedAt sql.NullTime
}

// Event is one recorded lifecycle step of a run.
type Event struct {
	ID        int64
	RunID     string
	Step      string
	Detail    string
	CreatedAt time.Time
}

// Journal records runs and their lifecycle events.
type Journal struct {
	db *sql.DB
}

// Open opens (creating if needed) the journal database at path and applies
// the schema. Parent directories are created as needed.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// BeginRun records a new run in the running state.
func (j *Journal) BeginRun(ctx context.Context, id, workspace string) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (id, workspace, status, started_at) VALUES (?, ?, ?, ?)`,
		id, workspace, StatusRunning, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record run %s: %w", id, err)
	}
	return nil
}

// Event appends a lifecycle step event to a run.
func (j *Journal) Event(ctx context.Context, runID, step, detail string) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO run_events (run_id, step, detail, created_at) VALUES (?, ?, ?, ?)`,
		runID, step, detail, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record event %s/%s: %w", runID, step, err)
	}
	return nil
}

// FinishRun marks a still-running run finished with its terminal status and
// exit code. A run that already reached a terminal status keeps it: racing
// finishers (the normal run result and the exit guard) cannot overwrite
// each other.
func (j *Journal) FinishRun(ctx context.Context, runID string, exitCode int, status string) error {
	_, err := j.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, exit_code = ?, finished_at = ? WHERE id = ? AND status = ?`,
		status, exitCode, time.Now().UTC(), runID, StatusRunning)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	return nil
}

// Runs returns the most recent runs, newest first. limit <= 0 means 20.
func (j *Journal) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, workspace, status, exit_code, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Workspace, &r.Status, &r.ExitCode, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Events returns all events of a run in insertion order.
func (j *Journal) Events(ctx context.Context, runID string) ([]Event, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, run_id, step, detail, created_at
		 FROM run_events WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.RunID, &e.Step, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
