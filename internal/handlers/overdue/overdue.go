// Package overdue flags assets whose due date has passed.
package overdue

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"assetflow/internal/clock"
	"assetflow/internal/domain"
	"assetflow/internal/notify"
)

const day = 24 * time.Hour

type AssetStore interface {
	ListOverdueAssets(ctx context.Context, statuses []domain.AssetStatus, cutoff time.Time) ([]domain.Asset, error)
	UpdateAssetMetadata(ctx context.Context, id string, metadata map[string]any) error
}

type Config struct {
	IncludeStatuses []domain.AssetStatus `json:"includeStatuses"`
	NotifyUsers     []string             `json:"notifyUsers"`
	GracePeriodDays int                  `json:"gracePeriodDays"`
}

type Asset struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Status      domain.AssetStatus `json:"status"`
	AssignedTo  string             `json:"assignedTo,omitempty"`
	DueDate     time.Time          `json:"dueDate"`
	DaysPastDue int                `json:"daysPastDue"`
}

type Result struct {
	OverdueCount      int     `json:"overdueCount"`
	OverdueAssets     []Asset `json:"overdueAssets"`
	NotificationsSent int     `json:"notificationsSent"`
}

type Detector struct {
	assets   AssetStore
	notifier notify.Gateway
	clock    clock.Clock
}

func New(assets AssetStore, notifier notify.Gateway, c clock.Clock) *Detector {
	if c == nil {
		c = clock.Real{}
	}
	return &Detector{assets: assets, notifier: notifier, clock: c}
}

func ParseConfig(cfg domain.Configuration) (Config, error) {
	var c Config
	if err := cfg.Decode(&c); err != nil {
		return Config{}, fmt.Errorf("%w: overdue configuration: %v", domain.ErrInvalidInput, err)
	}
	if len(c.IncludeStatuses) == 0 {
		c.IncludeStatuses = []domain.AssetStatus{domain.AssetActive}
	}
	if c.GracePeriodDays < 0 {
		c.GracePeriodDays = 0
	}
	return c, nil
}

// Find returns the overdue assets for c without touching them.
func (d *Detector) Find(ctx context.Context, c Config, now time.Time) ([]domain.Asset, error) {
	cutoff := now.Add(-time.Duration(c.GracePeriodDays) * day)
	rows, err := d.assets.ListOverdueAssets(ctx, c.IncludeStatuses, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list overdue assets: %w", err)
	}
	assets := rows[:0]
	for _, a := range rows {
		if a.DueDate != nil && a.DueDate.Before(cutoff) {
			assets = append(assets, a)
		}
	}
	return assets, nil
}

func (d *Detector) Handle(ctx context.Context, cfg domain.Configuration) (any, error) {
	c, err := ParseConfig(cfg)
	if err != nil {
		return nil, err
	}
	now := d.clock.Now()
	assets, err := d.Find(ctx, c, now)
	if err != nil {
		return nil, err
	}

	res := Result{OverdueAssets: make([]Asset, 0, len(assets))}
	for i := range assets {
		a := &assets[i]
		days := int(now.Sub(*a.DueDate) / day)
		if a.Metadata == nil {
			a.Metadata = map[string]any{}
		}
		a.Metadata["overdueDetectedAt"] = now.UTC().Format(time.RFC3339)
		a.Metadata["daysPastDue"] = days
		if err := d.assets.UpdateAssetMetadata(ctx, a.ID, a.Metadata); err != nil {
			return nil, fmt.Errorf("stamp asset %s: %w", a.ID, err)
		}
		res.OverdueAssets = append(res.OverdueAssets, Asset{
			ID:          a.ID,
			Name:        a.Name,
			Status:      a.Status,
			AssignedTo:  a.AssignedTo,
			DueDate:     *a.DueDate,
			DaysPastDue: days,
		})
	}
	res.OverdueCount = len(res.OverdueAssets)

	if len(assets) > 0 {
		for _, user := range c.NotifyUsers {
			if err := d.notifier.NotifyOverdueAssets(ctx, user, assets); err != nil {
				log.Warn().Err(err).Str("recipient", user).Msg("overdue notification not delivered")
				continue
			}
			res.NotificationsSent++
		}
	}

	log.Info().
		Int("overdue", res.OverdueCount).
		Int("grace_days", c.GracePeriodDays).
		Int("notifications", res.NotificationsSent).
		Msg("overdue asset detection finished")
	return res, nil
}
