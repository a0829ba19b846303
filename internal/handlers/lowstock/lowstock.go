// Package lowstock reports inventory at or below its reorder thresholds.
package lowstock

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"assetflow/internal/domain"
	"assetflow/internal/notify"
)

type InventoryStore interface {
	ListCriticalStock(ctx context.Context, categories []string) ([]domain.InventoryItem, error)
	ListLowStock(ctx context.Context, categories []string) ([]domain.InventoryItem, error)
}

type Config struct {
	CheckCritical *bool    `json:"checkCritical"`
	CheckMinimum  *bool    `json:"checkMinimum"`
	NotifyUsers   []string `json:"notifyUsers"`
	Categories    []string `json:"categories"`
}

func (c Config) critical() bool { return c.CheckCritical == nil || *c.CheckCritical }
func (c Config) minimum() bool  { return c.CheckMinimum == nil || *c.CheckMinimum }

type Result struct {
	CriticalItems     []domain.InventoryItem `json:"criticalItems"`
	LowStockItems     []domain.InventoryItem `json:"lowStockItems"`
	TotalAffected     int                    `json:"totalAffected"`
	NotificationsSent int                    `json:"notificationsSent"`
}

type Detector struct {
	inventory InventoryStore
	notifier  notify.Gateway
}

func New(inventory InventoryStore, notifier notify.Gateway) *Detector {
	return &Detector{inventory: inventory, notifier: notifier}
}

func ParseConfig(cfg domain.Configuration) (Config, error) {
	var c Config
	if err := cfg.Decode(&c); err != nil {
		return Config{}, fmt.Errorf("%w: low stock configuration: %v", domain.ErrInvalidInput, err)
	}
	return c, nil
}

// Summary classifies active items into critical and low stock. An item sits
// in at most one of the two lists.
func (d *Detector) Summary(ctx context.Context, c Config) (domain.LowStockSummary, error) {
	s := domain.LowStockSummary{Critical: []domain.InventoryItem{}, Low: []domain.InventoryItem{}}
	if c.critical() {
		items, err := d.inventory.ListCriticalStock(ctx, c.Categories)
		if err != nil {
			return s, fmt.Errorf("list critical stock: %w", err)
		}
		s.Critical = append(s.Critical, items...)
	}
	if c.minimum() {
		items, err := d.inventory.ListLowStock(ctx, c.Categories)
		if err != nil {
			return s, fmt.Errorf("list low stock: %w", err)
		}
		s.Low = append(s.Low, items...)
	}
	return s, nil
}

func (d *Detector) Handle(ctx context.Context, cfg domain.Configuration) (any, error) {
	c, err := ParseConfig(cfg)
	if err != nil {
		return nil, err
	}
	summary, err := d.Summary(ctx, c)
	if err != nil {
		return nil, err
	}

	res := Result{
		CriticalItems: summary.Critical,
		LowStockItems: summary.Low,
		TotalAffected: len(summary.Critical) + len(summary.Low),
	}
	if res.TotalAffected > 0 {
		for _, user := range c.NotifyUsers {
			if err := d.notifier.NotifyLowStock(ctx, user, summary); err != nil {
				log.Warn().Err(err).Str("recipient", user).Msg("low stock notification not delivered")
				continue
			}
			res.NotificationsSent++
		}
	}

	log.Info().
		Int("critical", len(res.CriticalItems)).
		Int("low", len(res.LowStockItems)).
		Int("notifications", res.NotificationsSent).
		Msg("low stock detection finished")
	return res, nil
}
