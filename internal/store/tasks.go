package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"assetflow/internal/domain"
)

const taskColumns = `id,name,description,type,status,cron_expression,configuration,last_executed_at,next_execution_at,execution_count,failure_count,is_enabled,created_at,updated_at`

func scanTask(row scanner) (domain.Task, error) {
	var t domain.Task
	var cfg string
	var last, next sql.NullTime
	if err := row.Scan(&t.ID, &t.Name, &t.Description, &t.Type, &t.Status, &t.CronExpression, &cfg,
		&last, &next, &t.ExecutionCount, &t.FailureCount, &t.IsEnabled, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return domain.Task{}, err
	}
	if cfg != "" && cfg != "{}" {
		if err := json.Unmarshal([]byte(cfg), &t.Configuration); err != nil {
			return domain.Task{}, fmt.Errorf("task %s configuration: %w", t.ID, err)
		}
	}
	t.LastExecutedAt = timePtr(last)
	t.NextExecutionAt = timePtr(next)
	return t, nil
}

// CreateTask inserts t, assigning an id and timestamps when unset.
func (s *SQLite) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	if t.ID == "" {
		t.ID = "tsk_" + uuid.NewString()
	}
	now := utc(s.now())
	t.CreatedAt, t.UpdatedAt = now, now
	cfg, err := encodeMap(t.Configuration)
	if err != nil {
		return domain.Task{}, fmt.Errorf("encode configuration: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO tasks (`+taskColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
`, t.ID, t.Name, t.Description, string(t.Type), string(t.Status), t.CronExpression, cfg,
		nullableTime(t.LastExecutedAt), nullableTime(t.NextExecutionAt), t.ExecutionCount, t.FailureCount,
		t.IsEnabled, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (s *SQLite) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	return t, err
}

func (s *SQLite) ListTasks(ctx context.Context) ([]domain.Task, error) {
	return s.listTasks(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY created_at, rowid`)
}

// ListLiveTasks returns the tasks that should have an armed timer.
func (s *SQLite) ListLiveTasks(ctx context.Context) ([]domain.Task, error) {
	return s.listTasks(ctx, `SELECT `+taskColumns+` FROM tasks WHERE is_enabled=1 AND status='active' ORDER BY created_at, rowid`)
}

func (s *SQLite) listTasks(ctx context.Context, query string, args ...any) ([]domain.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// UpdateTask writes the definitional columns of t. Execution counters and
// timestamps owned by the scheduler are left alone so a concurrent firing
// cannot be overwritten.
func (s *SQLite) UpdateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	cfg, err := encodeMap(t.Configuration)
	if err != nil {
		return domain.Task{}, fmt.Errorf("encode configuration: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE tasks SET name=?,description=?,type=?,status=?,cron_expression=?,configuration=?,is_enabled=?,updated_at=?
WHERE id=?`, t.Name, t.Description, string(t.Type), string(t.Status), t.CronExpression, cfg, t.IsEnabled, utc(s.now()), t.ID)
	if err != nil {
		return domain.Task{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Task{}, fmt.Errorf("task %s: %w", t.ID, domain.ErrNotFound)
	}
	return s.GetTask(ctx, t.ID)
}

// ToggleTaskEnabled flips is_enabled in place and returns the updated row.
func (s *SQLite) ToggleTaskEnabled(ctx context.Context, id string) (domain.Task, error) {
	var t domain.Task
	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE tasks SET is_enabled = NOT is_enabled, updated_at=? WHERE id=?`, utc(s.now()), id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
		}
		t, err = scanTask(tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
		return err
	})
	return t, err
}

// SetNextExecution stores the next armed fire time; nil clears it.
func (s *SQLite) SetNextExecution(ctx context.Context, id string, next *time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE tasks SET next_execution_at=? WHERE id=?`, nullableTime(next), id)
	return err
}

// DeleteTask removes the task row. Its executions are kept.
func (s *SQLite) DeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM tasks WHERE id=?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
