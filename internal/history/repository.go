package history

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type Repository interface {
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)
	UpdateRunState(ctx context.Context, id, state string) error
	RecordProgress(ctx context.Context, id string, percent int, message string) error
	CompleteRun(ctx context.Context, id string, outputBytes int64, durationSec float64) error
	FailRun(ctx context.Context, id, kind, errorMsg string) error
	ListEvents(ctx context.Context, runID string) ([]*Event, error)
}

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

func (r *SQLiteRepository) timestamp() string {
	return r.now().UTC().Format(time.RFC3339)
}

const runColumns = `id, request_id, title, filename, clip_count, audio_enabled, state, status, progress,
	message, error_kind, error, output_bytes, duration_sec, created_at, updated_at, finished_at`

func (r *SQLiteRepository) CreateRun(ctx context.Context, run *Run) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = r.now().UTC()
	}
	run.UpdatedAt = run.CreatedAt
	if run.Status == "" {
		run.Status = StatusRunning
	}
	if run.State == "" {
		run.State = "idle"
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO stitch_runs (id, request_id, title, filename, clip_count, audio_enabled, state, status, progress, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, nullString(run.RequestID), nullString(run.Title), run.Filename, run.ClipCount, boolToInt(run.AudioEnabled),
		run.State, run.Status, run.Progress, run.CreatedAt.Format(time.RFC3339), run.UpdatedAt.Format(time.RFC3339))
	return err
}

// GetRun returns nil, nil when no run has that id.
func (r *SQLiteRepository) GetRun(ctx context.Context, id string) (*Run, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM stitch_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

// ListRuns returns the most recent runs first.
func (r *SQLiteRepository) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+runColumns+` FROM stitch_runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *SQLiteRepository) UpdateRunState(ctx context.Context, id, state string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE stitch_runs SET state = ?, updated_at = ? WHERE id = ? AND status = 'running'
	`, state, r.timestamp(), id)
	return err
}

// RecordProgress stores the event and moves the run's headline progress.
func (r *SQLiteRepository) RecordProgress(ctx context.Context, id string, percent int, message string) error {
	now := r.timestamp()
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO stitch_run_events (run_id, percent, message, created_at) VALUES (?, ?, ?, ?)
	`, id, percent, message, now); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE stitch_runs SET progress = ?, message = ?, updated_at = ? WHERE id = ?
	`, percent, message, now, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *SQLiteRepository) CompleteRun(ctx context.Context, id string, outputBytes int64, durationSec float64) error {
	now := r.timestamp()
	_, err := r.db.ExecContext(ctx, `
		UPDATE stitch_runs
		SET status = 'succeeded', state = 'done', progress = 100, output_bytes = ?, duration_sec = ?,
		    updated_at = ?, finished_at = ?
		WHERE id = ? AND status = 'running'
	`, outputBytes, durationSec, now, now, id)
	return err
}

func (r *SQLiteRepository) FailRun(ctx context.Context, id, kind, errorMsg string) error {
	now := r.timestamp()
	_, err := r.db.ExecContext(ctx, `
		UPDATE stitch_runs
		SET status = 'failed', state = 'failed', error_kind = ?, error = ?, updated_at = ?, finished_at = ?
		WHERE id = ? AND status = 'running'
	`, kind, errorMsg, now, now, id)
	return err
}

func (r *SQLiteRepository) ListEvents(ctx context.Context, runID string) ([]*Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT percent, message, created_at FROM stitch_run_events WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		var createdAt string
		if err := rows.Scan(&e.Percent, &e.Message, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		events = append(events, &e)
	}
	return events, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var run Run
	var requestID, title, message, errorKind, errorMsg, finishedAt sql.NullString
	var audio int
	var createdAt, updatedAt string

	err := s.Scan(&run.ID, &requestID, &title, &run.Filename, &run.ClipCount, &audio, &run.State, &run.Status,
		&run.Progress, &message, &errorKind, &errorMsg, &run.OutputBytes, &run.DurationSec,
		&createdAt, &updatedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	run.RequestID = requestID.String
	run.Title = title.String
	run.Message = message.String
	run.ErrorKind = errorKind.String
	run.Error = errorMsg.String
	run.AudioEnabled = audio == 1
	run.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	run.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if finishedAt.Valid {
		t, err := time.Parse(time.RFC3339, finishedAt.String)
		if err == nil {
			run.FinishedAt = &t
		}
	}
	return &run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
