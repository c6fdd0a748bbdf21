// Package watchstore is the persisted watch-run state store: a
// three-table SQLite schema tracking trigger run history, a singleton
// watch-process heartbeat, and a queue of manually-fired pending
// triggers. Uses modernc.org/sqlite, the pure-Go driver, so callers
// don't need cgo to persist watch state.
package watchstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// RunStatus is the lifecycle state of one trigger run.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
	StatusSkipped   RunStatus = "skipped"
	StatusTimedOut  RunStatus = "timed_out"
	StatusPaused    RunStatus = "paused"
)

// ErrNotFound is returned when a lookup by id finds no row.
var ErrNotFound = errors.New("watchstore: not found")

// TriggerRun is one row of trigger_runs.
type TriggerRun struct {
	ID                   int64
	TriggerName          string
	StartedAt            time.Time
	FinishedAt           *time.Time
	CheckExitCode        *int
	CheckStdout          *string
	CheckStderr          *string
	CheckTimedOut        bool
	AgentWoken           bool
	AgentSessionID       *string
	AgentLastCheckpoint  *string
	AgentStdout          *string
	AgentStderr          *string
	Status               RunStatus
	ErrorMessage         *string
	CreatedAt            time.Time
}

// WatchState is the watch_state singleton row.
type WatchState struct {
	StartedAt     time.Time
	PID           int64
	LastHeartbeat time.Time
}

// PendingTrigger is one row of pending_triggers.
type PendingTrigger struct {
	ID          int64
	TriggerName string
	CreatedAt   time.Time
}

// ListRunsFilter narrows a ListRuns query.
type ListRunsFilter struct {
	TriggerName string
	Status      RunStatus
	Limit       int
	Offset      int
}

// Store wraps a *sql.DB with the watch-run schema.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite database at path and ensures
// the schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("watchstore: open %s: %w", path, err)
	}
	// The pure-Go sqlite driver serializes writes internally; a single
	// connection avoids "database is locked" errors under concurrent use.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS trigger_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			trigger_name TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			check_exit_code INTEGER,
			check_stdout TEXT,
			check_stderr TEXT,
			check_timed_out INTEGER NOT NULL DEFAULT 0,
			agent_woken INTEGER NOT NULL DEFAULT 0,
			agent_session_id TEXT,
			agent_last_checkpoint_id TEXT,
			agent_stdout TEXT,
			agent_stderr TEXT,
			status TEXT NOT NULL,
			error_message TEXT,
			created_at TEXT DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS watch_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			started_at TEXT,
			pid INTEGER,
			last_heartbeat TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS pending_triggers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			trigger_name TEXT NOT NULL,
			created_at TEXT DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trigger_runs_trigger_name ON trigger_runs(trigger_name)`,
		`CREATE INDEX IF NOT EXISTS idx_trigger_runs_status ON trigger_runs(status)`,
		`CREATE INDEX IF NOT EXISTS idx_trigger_runs_created_at ON trigger_runs(created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("watchstore: init schema: %w", err)
		}
	}
	return nil
}

// InsertRun creates a new trigger_runs row with status Running and returns
// its id.
func (s *Store) InsertRun(ctx context.Context, triggerName string) (int64, error) {
	now := nowRFC3339()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO trigger_runs (trigger_name, started_at, status, created_at) VALUES (?, ?, ?, ?)`,
		triggerName, now, string(StatusRunning), now,
	)
	if err != nil {
		return 0, fmt.Errorf("watchstore: insert run: %w", err)
	}
	return res.LastInsertId()
}

// UpdateRunCheckResult records the outcome of the watch-trigger check
// script.
func (s *Store) UpdateRunCheckResult(ctx context.Context, runID int64, exitCode int, stdout, stderr string, timedOut bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE trigger_runs SET check_exit_code = ?, check_stdout = ?, check_stderr = ?, check_timed_out = ? WHERE id = ?`,
		exitCode, stdout, stderr, boolToInt(timedOut), runID,
	)
	if err != nil {
		return fmt.Errorf("watchstore: update check result: %w", err)
	}
	return nil
}

// UpdateRunAgentStarted marks the run as having woken an agent session.
func (s *Store) UpdateRunAgentStarted(ctx context.Context, runID int64, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE trigger_runs SET agent_woken = 1, agent_session_id = ? WHERE id = ?`,
		sessionID, runID,
	)
	if err != nil {
		return fmt.Errorf("watchstore: update agent started: %w", err)
	}
	return nil
}

// UpdateRunCheckpoint records the agent's latest checkpoint id.
func (s *Store) UpdateRunCheckpoint(ctx context.Context, runID int64, checkpointID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE trigger_runs SET agent_last_checkpoint_id = ? WHERE id = ?`,
		checkpointID, runID,
	)
	if err != nil {
		return fmt.Errorf("watchstore: update checkpoint: %w", err)
	}
	return nil
}

// UpdateRunFinished closes out a run with its final status.
func (s *Store) UpdateRunFinished(ctx context.Context, runID int64, status RunStatus, errMsg, agentStdout, agentStderr *string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE trigger_runs SET finished_at = ?, status = ?, error_message = ?, agent_stdout = ?, agent_stderr = ? WHERE id = ?`,
		nowRFC3339(), string(status), errMsg, agentStdout, agentStderr, runID,
	)
	if err != nil {
		return fmt.Errorf("watchstore: update finished: %w", err)
	}
	return nil
}

const triggerRunColumns = `id, trigger_name, started_at, finished_at, check_exit_code, check_stdout,
	check_stderr, check_timed_out, agent_woken, agent_session_id,
	agent_last_checkpoint_id, agent_stdout, agent_stderr, status, error_message, created_at`

// GetRun fetches a single run by id.
func (s *Store) GetRun(ctx context.Context, runID int64) (*TriggerRun, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+triggerRunColumns+` FROM trigger_runs WHERE id = ?`, runID)
	run, err := scanTriggerRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("watchstore: get run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs matching filter, newest first.
func (s *Store) ListRuns(ctx context.Context, filter ListRunsFilter) ([]TriggerRun, error) {
	query := `SELECT ` + triggerRunColumns + ` FROM trigger_runs WHERE 1=1`
	var args []any
	if filter.TriggerName != "" {
		query += ` AND trigger_name = ?`
		args = append(args, filter.TriggerName)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET %d`, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("watchstore: list runs: %w", err)
	}
	defer rows.Close()

	var out []TriggerRun
	for rows.Next() {
		run, err := scanTriggerRun(rows)
		if err != nil {
			return nil, fmt.Errorf("watchstore: scan run: %w", err)
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

// PruneRuns deletes trigger_runs rows older than olderThanDays and returns
// the number of rows removed.
func (s *Store) PruneRuns(ctx context.Context, olderThanDays int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM trigger_runs WHERE datetime(created_at) < datetime('now', ?)`,
		fmt.Sprintf("-%d days", olderThanDays),
	)
	if err != nil {
		return 0, fmt.Errorf("watchstore: prune runs: %w", err)
	}
	return res.RowsAffected()
}

// SetWatchState upserts the singleton watch_state row.
func (s *Store) SetWatchState(ctx context.Context, pid int64) error {
	now := nowRFC3339()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO watch_state (id, started_at, pid, last_heartbeat) VALUES (1, ?, ?, ?)`,
		now, pid, now,
	)
	if err != nil {
		return fmt.Errorf("watchstore: set watch state: %w", err)
	}
	return nil
}

// UpdateHeartbeat touches the singleton row's last_heartbeat.
func (s *Store) UpdateHeartbeat(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `UPDATE watch_state SET last_heartbeat = ? WHERE id = 1`, nowRFC3339())
	if err != nil {
		return fmt.Errorf("watchstore: update heartbeat: %w", err)
	}
	return nil
}

// GetWatchState returns the singleton row, or nil if it has never been set.
func (s *Store) GetWatchState(ctx context.Context) (*WatchState, error) {
	row := s.db.QueryRowContext(ctx, `SELECT started_at, pid, last_heartbeat FROM watch_state WHERE id = 1`)
	var startedAt, heartbeat string
	var pid int64
	if err := row.Scan(&startedAt, &pid, &heartbeat); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("watchstore: get watch state: %w", err)
	}
	started, err := parseTimestamp(startedAt)
	if err != nil {
		return nil, err
	}
	last, err := parseTimestamp(heartbeat)
	if err != nil {
		return nil, err
	}
	return &WatchState{StartedAt: started, PID: pid, LastHeartbeat: last}, nil
}

// ClearWatchState deletes the singleton row.
func (s *Store) ClearWatchState(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM watch_state WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("watchstore: clear watch state: %w", err)
	}
	return nil
}

// InsertPendingTrigger queues a manual trigger fire.
func (s *Store) InsertPendingTrigger(ctx context.Context, triggerName string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO pending_triggers (trigger_name, created_at) VALUES (?, ?)`,
		triggerName, nowRFC3339(),
	)
	if err != nil {
		return 0, fmt.Errorf("watchstore: insert pending trigger: %w", err)
	}
	return res.LastInsertId()
}

// PopPendingTriggers atomically reads and deletes every queued pending
// trigger, oldest first.
func (s *Store) PopPendingTriggers(ctx context.Context) ([]PendingTrigger, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("watchstore: begin pop transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id, trigger_name, created_at FROM pending_triggers ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("watchstore: query pending triggers: %w", err)
	}
	var out []PendingTrigger
	for rows.Next() {
		var p PendingTrigger
		var createdAt string
		if err := rows.Scan(&p.ID, &p.TriggerName, &createdAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("watchstore: scan pending trigger: %w", err)
		}
		p.CreatedAt, err = parseTimestamp(createdAt)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(out) > 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM pending_triggers`); err != nil {
			return nil, fmt.Errorf("watchstore: clear pending triggers: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("watchstore: commit pop transaction: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTriggerRun(row scanner) (*TriggerRun, error) {
	var run TriggerRun
	var startedAt, status, createdAt string
	var finishedAt, checkStdout, checkStderr, agentSessionID, agentCheckpoint, agentStdout, agentStderr, errorMessage sql.NullString
	var checkExitCode sql.NullInt64
	var checkTimedOut, agentWoken int

	if err := row.Scan(
		&run.ID, &run.TriggerName, &startedAt, &finishedAt, &checkExitCode, &checkStdout,
		&checkStderr, &checkTimedOut, &agentWoken, &agentSessionID,
		&agentCheckpoint, &agentStdout, &agentStderr, &status, &errorMessage, &createdAt,
	); err != nil {
		return nil, err
	}

	var err error
	if run.StartedAt, err = parseTimestamp(startedAt); err != nil {
		return nil, err
	}
	if run.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, err
	}
	if finishedAt.Valid {
		t, err := parseTimestamp(finishedAt.String)
		if err != nil {
			return nil, err
		}
		run.FinishedAt = &t
	}
	if checkExitCode.Valid {
		code := int(checkExitCode.Int64)
		run.CheckExitCode = &code
	}
	run.CheckStdout = nullableString(checkStdout)
	run.CheckStderr = nullableString(checkStderr)
	run.CheckTimedOut = checkTimedOut != 0
	run.AgentWoken = agentWoken != 0
	run.AgentSessionID = nullableString(agentSessionID)
	run.AgentLastCheckpoint = nullableString(agentCheckpoint)
	run.AgentStdout = nullableString(agentStdout)
	run.AgentStderr = nullableString(agentStderr)
	run.Status = RunStatus(status)
	run.ErrorMessage = nullableString(errorMessage)
	return &run, nil
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// parseTimestamp accepts RFC 3339 and SQLite's default
// "YYYY-MM-DD HH:MM:SS" CURRENT_TIMESTAMP format.
func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04:05", s, time.UTC); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("watchstore: unparseable timestamp %q", s)
}
