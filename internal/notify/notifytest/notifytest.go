// Package notifytest provides an in-memory notify.Gateway for tests.
package notifytest

import (
	"context"
	"fmt"
	"sync"

	"assetflow/internal/domain"
	"assetflow/internal/notify"
)

type Kind string

const (
	KindOverdue     Kind = "overdue"
	KindMaintenance Kind = "maintenance"
	KindLowStock    Kind = "low_stock"
)

type Notification struct {
	Kind         Kind
	Recipient    string
	Assets       []domain.Asset
	Item         domain.MaintenanceItem
	DaysUntilDue int
	Summary      domain.LowStockSummary
}

// Gateway records every notification. Recipients listed in Fail are
// rejected with notify.ErrDelivery.
type Gateway struct {
	mu   sync.Mutex
	sent []Notification
	Fail map[string]bool
}

func (g *Gateway) record(n Notification) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Fail[n.Recipient] {
		return fmt.Errorf("%w: %s unreachable", notify.ErrDelivery, n.Recipient)
	}
	g.sent = append(g.sent, n)
	return nil
}

func (g *Gateway) NotifyOverdueAssets(_ context.Context, recipient string, assets []domain.Asset) error {
	return g.record(Notification{Kind: KindOverdue, Recipient: recipient, Assets: assets})
}

func (g *Gateway) NotifyMaintenanceReminder(_ context.Context, recipient string, item domain.MaintenanceItem, daysUntilDue int) error {
	return g.record(Notification{Kind: KindMaintenance, Recipient: recipient, Item: item, DaysUntilDue: daysUntilDue})
}

func (g *Gateway) NotifyLowStock(_ context.Context, recipient string, summary domain.LowStockSummary) error {
	return g.record(Notification{Kind: KindLowStock, Recipient: recipient, Summary: summary})
}

// Sent returns a copy of the delivered notifications.
func (g *Gateway) Sent() []Notification {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Notification(nil), g.sent...)
}
