package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"assetflow/internal/domain"
)

const maintenanceColumns = `id,asset_id,title,scheduled_date,priority,assigned_to,is_completed,is_active,completed_at`

func scanMaintenance(row scanner) (domain.MaintenanceItem, error) {
	var m domain.MaintenanceItem
	var completed sql.NullTime
	if err := row.Scan(&m.ID, &m.AssetID, &m.Title, &m.ScheduledDate, &m.Priority, &m.AssignedTo,
		&m.IsCompleted, &m.IsActive, &completed); err != nil {
		return domain.MaintenanceItem{}, err
	}
	m.CompletedAt = timePtr(completed)
	return m, nil
}

func (s *SQLite) UpsertMaintenanceItem(ctx context.Context, m domain.MaintenanceItem) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO maintenance_items (`+maintenanceColumns+`) VALUES (?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET asset_id=excluded.asset_id, title=excluded.title, scheduled_date=excluded.scheduled_date,
  priority=excluded.priority, assigned_to=excluded.assigned_to, is_completed=excluded.is_completed,
  is_active=excluded.is_active, completed_at=excluded.completed_at
`, m.ID, m.AssetID, m.Title, utc(m.ScheduledDate), string(m.Priority), m.AssignedTo,
		m.IsCompleted, m.IsActive, nullableTime(m.CompletedAt))
	return err
}

func (s *SQLite) GetMaintenanceItem(ctx context.Context, id string) (domain.MaintenanceItem, error) {
	m, err := scanMaintenance(s.db.QueryRowContext(ctx, `SELECT `+maintenanceColumns+` FROM maintenance_items WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.MaintenanceItem{}, fmt.Errorf("maintenance item %s: %w", id, domain.ErrNotFound)
	}
	return m, err
}

// ListMaintenanceDue returns open, active items scheduled in [from, to] whose
// priority is any of priorities. An empty priority list matches every priority.
func (s *SQLite) ListMaintenanceDue(ctx context.Context, from, to time.Time, priorities []domain.Priority) ([]domain.MaintenanceItem, error) {
	query := `SELECT ` + maintenanceColumns + ` FROM maintenance_items
WHERE is_completed=0 AND is_active=1 AND scheduled_date >= ? AND scheduled_date <= ?`
	args := []any{utc(from), utc(to)}
	if len(priorities) > 0 {
		in, pargs := inClause("priority", priorities)
		query += ` AND ` + in
		args = append(args, pargs...)
	}
	query += ` ORDER BY scheduled_date, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.MaintenanceItem
	for rows.Next() {
		m, err := scanMaintenance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLite) CompleteMaintenance(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE maintenance_items SET is_completed=1, completed_at=? WHERE id=?`, utc(at), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("maintenance item %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
