package lowstock

import (
	"context"
	"errors"
	"testing"

	"assetflow/internal/domain"
	"assetflow/internal/notify/notifytest"
)

type memInventory struct {
	items []domain.InventoryItem
	err   error
}

func (m *memInventory) filter(categories []string, keep func(domain.InventoryItem) bool) ([]domain.InventoryItem, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.InventoryItem
	for _, it := range m.items {
		if !it.IsActive || !keep(it) {
			continue
		}
		if len(categories) > 0 && !contains(categories, it.Category) {
			continue
		}
		out = append(out, it)
	}
	return out, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (m *memInventory) ListCriticalStock(_ context.Context, categories []string) ([]domain.InventoryItem, error) {
	return m.filter(categories, func(i domain.InventoryItem) bool { return i.CurrentStock <= i.CriticalThreshold })
}

func (m *memInventory) ListLowStock(_ context.Context, categories []string) ([]domain.InventoryItem, error) {
	return m.filter(categories, func(i domain.InventoryItem) bool {
		return i.CurrentStock > i.CriticalThreshold && i.CurrentStock <= i.MinimumThreshold
	})
}

func fixture() *memInventory {
	return &memInventory{items: []domain.InventoryItem{
		{ID: "A", Name: "gloves", Category: "safety", CurrentStock: 5, CriticalThreshold: 5, MinimumThreshold: 10, IsActive: true},
		{ID: "B", Name: "tape", Category: "office", CurrentStock: 10, CriticalThreshold: 5, MinimumThreshold: 10, IsActive: true},
		{ID: "C", Name: "toner", Category: "office", CurrentStock: 11, CriticalThreshold: 5, MinimumThreshold: 10, IsActive: true},
		{ID: "D", Name: "masks", Category: "safety", CurrentStock: 0, CriticalThreshold: 5, MinimumThreshold: 10},
	}}
}

func run(t *testing.T, d *Detector, cfg domain.Configuration) Result {
	t.Helper()
	out, err := d.Handle(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	return out.(Result)
}

func TestThresholdBoundaries(t *testing.T) {
	gw := &notifytest.Gateway{}
	res := run(t, New(fixture(), gw), domain.Configuration{"notifyUsers": []any{"ops"}})

	if len(res.CriticalItems) != 1 || res.CriticalItems[0].ID != "A" {
		t.Fatalf("critical = %+v, want [A]", res.CriticalItems)
	}
	if len(res.LowStockItems) != 1 || res.LowStockItems[0].ID != "B" {
		t.Fatalf("low = %+v, want [B]", res.LowStockItems)
	}
	if res.TotalAffected != 2 {
		t.Fatalf("totalAffected = %d, want 2", res.TotalAffected)
	}
	sent := gw.Sent()
	if len(sent) != 1 || res.NotificationsSent != 1 {
		t.Fatalf("notifications = %d (reported %d), want 1", len(sent), res.NotificationsSent)
	}
	if len(sent[0].Summary.Critical) != 1 || len(sent[0].Summary.Low) != 1 {
		t.Fatalf("summary = %+v", sent[0].Summary)
	}
}

func TestChecksCanBeDisabled(t *testing.T) {
	tests := []struct {
		name         string
		cfg          domain.Configuration
		critical     int
		low          int
		wantNotified int
	}{
		{"critical only", domain.Configuration{"checkMinimum": false, "notifyUsers": []any{"ops"}}, 1, 0, 1},
		{"minimum only", domain.Configuration{"checkCritical": false, "notifyUsers": []any{"ops"}}, 0, 1, 1},
		{"neither", domain.Configuration{"checkCritical": false, "checkMinimum": false, "notifyUsers": []any{"ops"}}, 0, 0, 0},
		{"category filter", domain.Configuration{"categories": []any{"office"}}, 0, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &notifytest.Gateway{}
			res := run(t, New(fixture(), gw), tt.cfg)
			if len(res.CriticalItems) != tt.critical || len(res.LowStockItems) != tt.low {
				t.Fatalf("critical=%d low=%d, want %d/%d", len(res.CriticalItems), len(res.LowStockItems), tt.critical, tt.low)
			}
			if len(gw.Sent()) != tt.wantNotified {
				t.Fatalf("notifications = %d, want %d", len(gw.Sent()), tt.wantNotified)
			}
			if res.CriticalItems == nil || res.LowStockItems == nil {
				t.Fatal("lists should serialize as empty arrays")
			}
		})
	}
}

func TestDeliveryFailureIsCounted(t *testing.T) {
	gw := &notifytest.Gateway{Fail: map[string]bool{"ops": true}}
	res := run(t, New(fixture(), gw), domain.Configuration{"notifyUsers": []any{"ops", "buyer"}})
	if res.NotificationsSent != 1 {
		t.Fatalf("notificationsSent = %d, want 1", res.NotificationsSent)
	}
}

func TestStoreErrorFailsRun(t *testing.T) {
	d := New(&memInventory{err: errors.New("disk I/O error")}, &notifytest.Gateway{})
	if _, err := d.Handle(context.Background(), nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestInvalidConfiguration(t *testing.T) {
	d := New(fixture(), &notifytest.Gateway{})
	_, err := d.Handle(context.Background(), domain.Configuration{"checkCritical": "yes"})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
