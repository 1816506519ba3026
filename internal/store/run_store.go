// Package store persists pipeline runs: one row per run with its battle
// record, plus the attempt history of every stage instance.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"battlescribe/internal/battle"
	"battlescribe/internal/logging"
)

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("run not found")

// Run statuses.
const (
	StatusComplete     = "complete"
	StatusIncomplete   = "incomplete"
	StatusSetupAborted = "setup_aborted"
	StatusTurnAborted  = "turn_aborted"
	StatusFailed       = "failed"
)

// Run is one pipeline execution over one transcript.
type Run struct {
	ID               string
	Source           string // transcript path, or "-" for stdin
	UploadingPlayer  string
	Status           string
	Winner           string
	TurnCount        int
	MissingTurns     []int
	Provider         string
	Model            string
	PromptTokens     int
	CompletionTokens int
	Error            string
	Record           *battle.Record // nil when setup aborted
	StartedAt        time.Time
	Duration         time.Duration
}

// RunStore is a SQLite-backed run history.
type RunStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// Open initializes the SQLite database at path. ":memory:" opens a private
// in-memory database.
func Open(path string) (*RunStore, error) {
	logging.Store("Opening run store at %s", path)

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			logging.Get(logging.CategoryStore).Debug("%s failed: %v", pragma, err)
		}
	}

	s := &RunStore{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// initialize creates the required tables.
func (s *RunStore) initialize() error {
	runsTable := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		uploading_player TEXT NOT NULL,
		status TEXT NOT NULL,
		winner TEXT DEFAULT '',
		turn_count INTEGER DEFAULT 0,
		missing_turns TEXT DEFAULT '[]',
		provider TEXT DEFAULT '',
		model TEXT DEFAULT '',
		error TEXT DEFAULT '',
		record TEXT,
		started_at DATETIME NOT NULL,
		duration_ms INTEGER DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
	`

	attemptsTable := `
	CREATE TABLE IF NOT EXISTS attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		stage TEXT NOT NULL,
		turn_index INTEGER NOT NULL,
		attempt INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		reason TEXT DEFAULT '',
		delay_ms INTEGER DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_attempts_run ON attempts(run_id);
	`

	for _, ddl := range []string{runsTable, attemptsTable} {
		if _, err := s.db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *RunStore) Close() error {
	return s.db.Close()
}

// Path returns the database path.
func (s *RunStore) Path() string { return s.dbPath }

// SaveRun stores run and its attempt history, replacing any earlier row with
// the same id.
func (s *RunStore) SaveRun(ctx context.Context, run *Run, attempts []battle.Attempt) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}

	missing, err := json.Marshal(run.MissingTurns)
	if err != nil {
		return fmt.Errorf("failed to marshal missing turns: %w", err)
	}
	var record sql.NullString
	if run.Record != nil {
		data, err := json.Marshal(run.Record)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}
		record = sql.NullString{String: string(data), Valid: true}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM attempts WHERE run_id = ?", run.ID); err != nil {
		return fmt.Errorf("failed to clear attempts: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
			(id, source, uploading_player, status, winner, turn_count, missing_turns,
			 provider, model, prompt_tokens, completion_tokens, error, record, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Source, run.UploadingPlayer, run.Status, run.Winner, run.TurnCount, string(missing),
		run.Provider, run.Model, run.PromptTokens, run.CompletionTokens, run.Error, record,
		run.StartedAt.UTC(), run.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO attempts (run_id, stage, turn_index, attempt, outcome, reason, delay_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare attempt insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range attempts {
		if _, err := stmt.ExecContext(ctx, run.ID, a.Stage, a.Index, a.Attempt, a.Outcome, a.Reason, a.Delay.Milliseconds()); err != nil {
			return fmt.Errorf("failed to insert attempt: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	logging.Store("Saved run %s (%s, %d attempts)", run.ID, run.Status, len(attempts))
	return nil
}

const runColumns = `id, source, uploading_player, status, winner, turn_count, missing_turns,
	provider, model, prompt_tokens, completion_tokens, error, record, started_at, duration_ms`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner, withRecord bool) (*Run, error) {
	var (
		run      Run
		missing  string
		record   sql.NullString
		duration int64
	)
	err := row.Scan(&run.ID, &run.Source, &run.UploadingPlayer, &run.Status, &run.Winner, &run.TurnCount, &missing,
		&run.Provider, &run.Model, &run.PromptTokens, &run.CompletionTokens, &run.Error, &record,
		&run.StartedAt, &duration)
	if err != nil {
		return nil, err
	}
	run.Duration = time.Duration(duration) * time.Millisecond

	if missing != "" {
		if err := json.Unmarshal([]byte(missing), &run.MissingTurns); err != nil {
			return nil, fmt.Errorf("corrupt missing_turns for run %s: %w", run.ID, err)
		}
	}
	if withRecord && record.Valid {
		run.Record = &battle.Record{}
		if err := json.Unmarshal([]byte(record.String), run.Record); err != nil {
			return nil, fmt.Errorf("corrupt record for run %s: %w", run.ID, err)
		}
	}
	return &run, nil
}

// GetRun returns the run with id, including its battle record.
func (s *RunStore) GetRun(ctx context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	run, err := scanRun(row, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first, without their records.
// A limit of zero or less returns every run.
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + runColumns + " FROM runs ORDER BY started_at DESC, id"
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows, false)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Attempts returns the attempt history of a run, setup first, then turns
// by index and attempt.
func (s *RunStore) Attempts(ctx context.Context, runID string) ([]battle.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT stage, turn_index, attempt, outcome, reason, delay_ms
		FROM attempts WHERE run_id = ?
		ORDER BY turn_index, attempt`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load attempts: %w", err)
	}
	defer rows.Close()

	var out []battle.Attempt
	for rows.Next() {
		var a battle.Attempt
		var delay int64
		if err := rows.Scan(&a.Stage, &a.Index, &a.Attempt, &a.Outcome, &a.Reason, &delay); err != nil {
			return nil, err
		}
		a.Delay = time.Duration(delay) * time.Millisecond
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and its attempts.
func (s *RunStore) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Stats counts runs by status.
func (s *RunStore) Stats(ctx context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM runs GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		stats[status] = n
	}
	return stats, rows.Err()
}
