package notify

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"assetflow/internal/domain"
)

// LogGateway writes each notification as a structured log line.
type LogGateway struct {
	Logger *zerolog.Logger
}

func (g LogGateway) logger() *zerolog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return &log.Logger
}

func (g LogGateway) NotifyOverdueAssets(_ context.Context, recipient string, assets []domain.Asset) error {
	ids := make([]string, len(assets))
	for i, a := range assets {
		ids[i] = a.ID
	}
	g.logger().Info().
		Str("recipient", recipient).
		Int("count", len(assets)).
		Strs("asset_ids", ids).
		Msg("overdue assets notification")
	return nil
}

func (g LogGateway) NotifyMaintenanceReminder(_ context.Context, recipient string, item domain.MaintenanceItem, daysUntilDue int) error {
	g.logger().Info().
		Str("recipient", recipient).
		Str("item_id", item.ID).
		Str("title", item.Title).
		Str("priority", string(item.Priority)).
		Int("days_until_due", daysUntilDue).
		Msg("maintenance reminder")
	return nil
}

func (g LogGateway) NotifyLowStock(_ context.Context, recipient string, summary domain.LowStockSummary) error {
	g.logger().Info().
		Str("recipient", recipient).
		Int("critical", len(summary.Critical)).
		Int("low", len(summary.Low)).
		Msg("low stock notification")
	return nil
}
