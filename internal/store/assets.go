package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"assetflow/internal/domain"
)

const assetColumns = `id,name,status,due_date,assigned_to,metadata,updated_at`

func scanAsset(row scanner) (domain.Asset, error) {
	var a domain.Asset
	var due sql.NullTime
	var md string
	if err := row.Scan(&a.ID, &a.Name, &a.Status, &due, &a.AssignedTo, &md, &a.UpdatedAt); err != nil {
		return domain.Asset{}, err
	}
	a.DueDate = timePtr(due)
	var err error
	if a.Metadata, err = decodeMap(md); err != nil {
		return domain.Asset{}, fmt.Errorf("asset %s metadata: %w", a.ID, err)
	}
	return a, nil
}

func (s *SQLite) UpsertAsset(ctx context.Context, a domain.Asset) error {
	md, err := encodeMap(a.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO assets (`+assetColumns+`) VALUES (?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name, status=excluded.status, due_date=excluded.due_date,
  assigned_to=excluded.assigned_to, metadata=excluded.metadata, updated_at=excluded.updated_at
`, a.ID, a.Name, string(a.Status), nullableTime(a.DueDate), a.AssignedTo, md, utc(s.now()))
	return err
}

func (s *SQLite) GetAsset(ctx context.Context, id string) (domain.Asset, error) {
	a, err := scanAsset(s.db.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Asset{}, fmt.Errorf("asset %s: %w", id, domain.ErrNotFound)
	}
	return a, err
}

// ListOverdueAssets returns assets whose status is in statuses and whose due
// date is strictly before cutoff, oldest due date first.
func (s *SQLite) ListOverdueAssets(ctx context.Context, statuses []domain.AssetStatus, cutoff time.Time) ([]domain.Asset, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	in, args := inClause("status", statuses)
	args = append(args, utc(cutoff))
	rows, err := s.db.QueryContext(ctx, `
SELECT `+assetColumns+` FROM assets
WHERE `+in+` AND due_date IS NOT NULL AND due_date < ?
ORDER BY due_date, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateAssetMetadata replaces the asset's metadata map.
func (s *SQLite) UpdateAssetMetadata(ctx context.Context, id string, metadata map[string]any) error {
	md, err := encodeMap(metadata)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE assets SET metadata=?, updated_at=? WHERE id=?`, md, utc(s.now()), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("asset %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
