package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"assetflow/internal/domain"
)

const inventoryColumns = `id,name,sku,category,current_stock,minimum_threshold,critical_threshold,is_active`

func scanInventory(row scanner) (domain.InventoryItem, error) {
	var i domain.InventoryItem
	err := row.Scan(&i.ID, &i.Name, &i.SKU, &i.Category, &i.CurrentStock, &i.MinimumThreshold, &i.CriticalThreshold, &i.IsActive)
	return i, err
}

func (s *SQLite) UpsertInventoryItem(ctx context.Context, i domain.InventoryItem) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO inventory_items (`+inventoryColumns+`) VALUES (?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name, sku=excluded.sku, category=excluded.category,
  current_stock=excluded.current_stock, minimum_threshold=excluded.minimum_threshold,
  critical_threshold=excluded.critical_threshold, is_active=excluded.is_active
`, i.ID, i.Name, i.SKU, i.Category, i.CurrentStock, i.MinimumThreshold, i.CriticalThreshold, i.IsActive)
	return err
}

func (s *SQLite) GetInventoryItem(ctx context.Context, id string) (domain.InventoryItem, error) {
	i, err := scanInventory(s.db.QueryRowContext(ctx, `SELECT `+inventoryColumns+` FROM inventory_items WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.InventoryItem{}, fmt.Errorf("inventory item %s: %w", id, domain.ErrNotFound)
	}
	return i, err
}

// ListCriticalStock returns active items at or below their critical threshold.
func (s *SQLite) ListCriticalStock(ctx context.Context, categories []string) ([]domain.InventoryItem, error) {
	return s.listInventory(ctx, `current_stock <= critical_threshold`, categories)
}

// ListLowStock returns active items above the critical threshold but at or
// below the minimum threshold.
func (s *SQLite) ListLowStock(ctx context.Context, categories []string) ([]domain.InventoryItem, error) {
	return s.listInventory(ctx, `current_stock > critical_threshold AND current_stock <= minimum_threshold`, categories)
}

func (s *SQLite) listInventory(ctx context.Context, cond string, categories []string) ([]domain.InventoryItem, error) {
	query := `SELECT ` + inventoryColumns + ` FROM inventory_items WHERE is_active=1 AND ` + cond
	var args []any
	if len(categories) > 0 {
		in, cargs := inClause("category", categories)
		query += ` AND ` + in
		args = cargs
	}
	query += ` ORDER BY current_stock, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.InventoryItem
	for rows.Next() {
		i, err := scanInventory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

func (s *SQLite) UpdateStock(ctx context.Context, id string, stock int) error {
	res, err := s.db.ExecContext(ctx, `UPDATE inventory_items SET current_stock=? WHERE id=?`, stock, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("inventory item %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
