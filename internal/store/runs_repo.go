package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"taskdeck/internal/core"
)

const runColumns = `id, task_id, attempt, scheduled_at, started_at, ended_at,
	outcome, output, error, duration_ms, peak_rss_bytes, created_at`

// AppendRunRecord persists one execution attempt. Records are append-only.
func (s *Store) AppendRunRecord(ctx context.Context, rec *core.RunRecord) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.TaskID, rec.Attempt,
		formatTime(rec.ScheduledAt),
		formatTimePtr(rec.StartedAt), formatTimePtr(rec.EndedAt),
		string(rec.Outcome), rec.Output, rec.Error,
		rec.Duration.Milliseconds(), rec.PeakRSSBytes,
		formatTime(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("append run %s: %w", rec.ID, err)
	}
	return nil
}

// LoadRunHistory returns the newest records for a task, most recent first.
// limit <= 0 means no limit.
func (s *Store) LoadRunHistory(ctx context.Context, taskID string, limit int) ([]*core.RunRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+runColumns+` FROM runs
		WHERE task_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs of %s: %w", taskID, err)
	}
	defer rows.Close()

	var out []*core.RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetRun fetches a single run record by id.
func (s *Store) GetRun(ctx context.Context, id string) (*core.RunRecord, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	return rec, err
}

// PruneRuns deletes run records older than the cutoff. Returns the number
// of rows removed.
func (s *Store) PruneRuns(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM runs WHERE created_at < ?`, formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

func scanRun(row rowScanner) (*core.RunRecord, error) {
	var (
		rec        core.RunRecord
		scheduled  string
		started    sql.NullString
		ended      sql.NullString
		outcome    string
		durationMS int64
		created    string
	)
	err := row.Scan(&rec.ID, &rec.TaskID, &rec.Attempt, &scheduled,
		&started, &ended, &outcome, &rec.Output, &rec.Error,
		&durationMS, &rec.PeakRSSBytes, &created)
	if err != nil {
		return nil, err
	}
	rec.Outcome = core.Outcome(outcome)
	rec.Duration = time.Duration(durationMS) * time.Millisecond
	if rec.ScheduledAt, err = parseTime(scheduled); err != nil {
		return nil, fmt.Errorf("parse scheduled_at of run %s: %w", rec.ID, err)
	}
	if rec.StartedAt, err = parseTimePtr(started); err != nil {
		return nil, fmt.Errorf("parse started_at of run %s: %w", rec.ID, err)
	}
	if rec.EndedAt, err = parseTimePtr(ended); err != nil {
		return nil, fmt.Errorf("parse ended_at of run %s: %w", rec.ID, err)
	}
	if rec.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parse created_at of run %s: %w", rec.ID, err)
	}
	return &rec, nil
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
