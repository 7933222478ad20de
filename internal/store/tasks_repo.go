package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"taskdeck/internal/core"
)

const taskColumns = `id, name, kind, params, trigger_spec, priority, enabled,
	max_retries, retry_backoff_ms, timeout_ms, group_id, tags, depends_on,
	created_at, updated_at`

// LoadAllTasks returns every persisted task definition, enabled or not.
func (s *Store) LoadAllTasks(ctx context.Context) ([]*core.Task, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*core.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// GetTask fetches a single task by id.
func (s *Store) GetTask(ctx context.Context, id string) (*core.Task, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	return t, err
}

// SaveTask inserts or replaces a task definition.
func (s *Store) SaveTask(ctx context.Context, t *core.Task) error {
	params, err := json.Marshal(t.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	trigger, err := json.Marshal(t.Trigger)
	if err != nil {
		return fmt.Errorf("marshal trigger: %w", err)
	}
	tags, err := json.Marshal(emptySlice(t.Tags))
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	deps, err := json.Marshal(emptySlice(t.DependsOn))
	if err != nil {
		return fmt.Errorf("marshal depends_on: %w", err)
	}
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			kind = excluded.kind,
			params = excluded.params,
			trigger_spec = excluded.trigger_spec,
			priority = excluded.priority,
			enabled = excluded.enabled,
			max_retries = excluded.max_retries,
			retry_backoff_ms = excluded.retry_backoff_ms,
			timeout_ms = excluded.timeout_ms,
			group_id = excluded.group_id,
			tags = excluded.tags,
			depends_on = excluded.depends_on,
			updated_at = excluded.updated_at`,
		t.ID, t.Name, string(t.Kind), string(params), string(trigger),
		t.Priority, boolToInt(t.Enabled), t.MaxRetries,
		t.RetryBackoff.Milliseconds(), t.Timeout.Milliseconds(),
		t.GroupID, string(tags), string(deps),
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save task %s: %w", t.ID, err)
	}
	return nil
}

// DeleteTask removes the task and its run history.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTaskNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE task_id = ?`, id); err != nil {
		return fmt.Errorf("delete runs of %s: %w", id, err)
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*core.Task, error) {
	var (
		t         core.Task
		kind      string
		params    string
		trigger   string
		enabled   int
		backoffMS int64
		timeoutMS int64
		groupID   sql.NullString
		tags      string
		deps      string
		created   string
		updated   string
	)
	err := row.Scan(&t.ID, &t.Name, &kind, &params, &trigger, &t.Priority,
		&enabled, &t.MaxRetries, &backoffMS, &timeoutMS, &groupID,
		&tags, &deps, &created, &updated)
	if err != nil {
		return nil, err
	}
	t.Kind = core.Kind(kind)
	t.Enabled = enabled != 0
	t.RetryBackoff = time.Duration(backoffMS) * time.Millisecond
	t.Timeout = time.Duration(timeoutMS) * time.Millisecond
	if groupID.Valid {
		t.GroupID = &groupID.String
	}
	if err := json.Unmarshal([]byte(params), &t.Params); err != nil {
		return nil, fmt.Errorf("unmarshal params of %s: %w", t.ID, err)
	}
	if err := json.Unmarshal([]byte(trigger), &t.Trigger); err != nil {
		return nil, fmt.Errorf("unmarshal trigger of %s: %w", t.ID, err)
	}
	if err := json.Unmarshal([]byte(tags), &t.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags of %s: %w", t.ID, err)
	}
	if err := json.Unmarshal([]byte(deps), &t.DependsOn); err != nil {
		return nil, fmt.Errorf("unmarshal depends_on of %s: %w", t.ID, err)
	}
	if t.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parse created_at of %s: %w", t.ID, err)
	}
	if t.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("parse updated_at of %s: %w", t.ID, err)
	}
	return &t, nil
}

func emptySlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
