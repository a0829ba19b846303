package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"assetflow/internal/domain"
)

const executionColumns = `id,task_id,status,started_at,completed_at,output,error_message,metadata,created_at`

// RecordExecution appends a finalized execution and folds it into the task's
// aggregate stats in one transaction. The counters are incremented in SQL so
// concurrent admin edits and firings never lose a write. The row is kept even
// when the task no longer exists.
func (s *SQLite) RecordExecution(ctx context.Context, e domain.Execution) error {
	if e.ID == "" {
		e.ID = "exe_" + uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	md, err := encodeMap(e.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	failed := 0
	if e.Status == domain.ExecutionFailed {
		failed = 1
	}
	completed := e.StartedAt
	if e.CompletedAt != nil {
		completed = *e.CompletedAt
	}

	return inTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO task_executions (`+executionColumns+`)
VALUES (?,?,?,?,?,?,?,?,?)
`, e.ID, e.TaskID, string(e.Status), utc(e.StartedAt), nullableTime(e.CompletedAt),
			e.Output, e.ErrorMessage, md, utc(e.CreatedAt)); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
UPDATE tasks
SET execution_count = execution_count + 1,
    failure_count = failure_count + ?,
    last_executed_at = ?
WHERE id = ?`, failed, utc(completed), e.TaskID)
		return err
	})
}

// ListExecutions returns a task's executions, most recent first. A limit of
// zero or less returns all of them.
func (s *SQLite) ListExecutions(ctx context.Context, taskID string, limit int) ([]domain.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM task_executions WHERE task_id=? ORDER BY started_at DESC, rowid DESC`
	args := []any{taskID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Execution
	for rows.Next() {
		var e domain.Execution
		var completed sql.NullTime
		var output, errMsg sql.NullString
		var md string
		if err := rows.Scan(&e.ID, &e.TaskID, &e.Status, &e.StartedAt, &completed, &output, &errMsg, &md, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.CompletedAt = timePtr(completed)
		e.Output = output.String
		e.ErrorMessage = errMsg.String
		if e.Metadata, err = decodeMap(md); err != nil {
			return nil, fmt.Errorf("execution %s metadata: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
