// Package notify delivers recipient alerts for the domain handlers.
//
// Delivery is fire-and-forget: callers log a failed delivery and carry on.
package notify

import (
	"context"
	"errors"

	"assetflow/internal/domain"
)

// ErrDelivery wraps every failure to hand a notification to its transport.
var ErrDelivery = errors.New("notification delivery failed")

type Gateway interface {
	NotifyOverdueAssets(ctx context.Context, recipient string, assets []domain.Asset) error
	NotifyMaintenanceReminder(ctx context.Context, recipient string, item domain.MaintenanceItem, daysUntilDue int) error
	NotifyLowStock(ctx context.Context, recipient string, summary domain.LowStockSummary) error
}
