package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"media-pipeline/internal/logging"

	"github.com/google/uuid"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// Run statuses.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// Run is one row of the runs table.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
	MediaDir   string
	Status     string
	Images     int
	Videos     int
	Failures   int
}

// Event is one per-file action within a run.
type Event struct {
	RunID     string
	Stage     string
	File      string
	Action    string // e.g. "convert", "transcode", "compress", "delete"
	Status    string // "ok", "skipped" or "failed"
	Detail    string
	CreatedAt time.Time
}

// Summary closes out a run.
type Summary struct {
	Status   string
	Images   int
	Videos   int
	Failures int
}

// Journal wraps the SQLite database.
type Journal struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open opens (creating if needed) the journal database at path.
func Open(ctx context.Context, path string) (*Journal, error) {
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", path)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close journal after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to journal: %w", err)
	}

	// Workers record events concurrently; one connection serializes writers
	db.SetMaxOpenConns(1)

	j := &Journal{db: db, path: path, now: time.Now}
	if err := j.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close journal after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
	}

	logging.Debug("Journal opened at %s", path)
	return j, nil
}

func (j *Journal) initialize(ctx context.Context) error {
	_, err := j.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL DEFAULT 0,
		media_dir TEXT NOT NULL,
		status TEXT NOT NULL,
		images INTEGER NOT NULL DEFAULT 0,
		videos INTEGER NOT NULL DEFAULT 0,
		failures INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		stage TEXT NOT NULL,
		file TEXT NOT NULL,
		action TEXT NOT NULL,
		status TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`)
	return err
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Path returns the database file path.
func (j *Journal) Path() string {
	return j.path
}

// StartRun inserts a running row and returns its id.
func (j *Journal) StartRun(ctx context.Context, mediaDir string) (string, error) {
	id := uuid.NewString()
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, media_dir, status) VALUES (?, ?, ?, ?)`,
		id, j.now().UnixMilli(), mediaDir, StatusRunning)
	if err != nil {
		return "", fmt.Errorf("failed to record run start: %w", err)
	}
	return id, nil
}

// RecordEvent appends an event. A zero CreatedAt is set to now.
func (j *Journal) RecordEvent(ctx context.Context, e Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = j.now()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO events (run_id, stage, file, action, status, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Stage, e.File, e.Action, e.Status, e.Detail, e.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// FinishRun stores the final counts and status of a run.
func (j *Journal) FinishRun(ctx context.Context, runID string, s Summary) error {
	res, err := j.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, status = ?, images = ?, videos = ?, failures = ? WHERE id = ?`,
		j.now().UnixMilli(), s.Status, s.Images, s.Videos, s.Failures, runID)
	if err != nil {
		return fmt.Errorf("failed to record run finish: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("unknown run %s", runID)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (j *Journal) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, media_dir, status, images, videos, failures
		 FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished int64
		if err := rows.Scan(&r.ID, &started, &finished, &r.MediaDir, &r.Status, &r.Images, &r.Videos, &r.Failures); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = time.UnixMilli(started)
		if finished > 0 {
			r.FinishedAt = time.UnixMilli(finished)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Events returns the events of a run in insertion order.
func (j *Journal) Events(ctx context.Context, runID string) ([]Event, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT run_id, stage, file, action, status, detail, created_at
		 FROM events WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var created int64
		if err := rows.Scan(&e.RunID, &e.Stage, &e.File, &e.Action, &e.Status, &e.Detail, &created); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.CreatedAt = time.UnixMilli(created)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Duration returns how long a finished run took, or zero while it is running.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
