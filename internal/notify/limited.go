package notify

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"assetflow/internal/domain"
)

// Limited throttles deliveries to an underlying gateway.
type Limited struct {
	next    Gateway
	limiter *rate.Limiter
}

// NewLimited allows rps deliveries per second with a burst of rps.
// A non-positive rps returns next unchanged.
func NewLimited(next Gateway, rps int) Gateway {
	if rps <= 0 {
		return next
	}
	return &Limited{next: next, limiter: rate.NewLimiter(rate.Limit(rps), rps)}
}

func (l *Limited) wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limit: %v", ErrDelivery, err)
	}
	return nil
}

func (l *Limited) NotifyOverdueAssets(ctx context.Context, recipient string, assets []domain.Asset) error {
	if err := l.wait(ctx); err != nil {
		return err
	}
	return l.next.NotifyOverdueAssets(ctx, recipient, assets)
}

func (l *Limited) NotifyMaintenanceReminder(ctx context.Context, recipient string, item domain.MaintenanceItem, daysUntilDue int) error {
	if err := l.wait(ctx); err != nil {
		return err
	}
	return l.next.NotifyMaintenanceReminder(ctx, recipient, item, daysUntilDue)
}

func (l *Limited) NotifyLowStock(ctx context.Context, recipient string, summary domain.LowStockSummary) error {
	if err := l.wait(ctx); err != nil {
		return err
	}
	return l.next.NotifyLowStock(ctx, recipient, summary)
}
