// Package maintenance sends reminders for upcoming scheduled maintenance.
package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"assetflow/internal/clock"
	"assetflow/internal/domain"
	"assetflow/internal/notify"
)

type ScheduleStore interface {
	ListMaintenanceDue(ctx context.Context, from, to time.Time, priorities []domain.Priority) ([]domain.MaintenanceItem, error)
}

type Config struct {
	ReminderDays []int             `json:"reminderDays"`
	Priorities   []domain.Priority `json:"priorities"`
	NotifyUsers  []string          `json:"notifyUsers"`
}

type DayReminders struct {
	DaysUntilDue int                      `json:"daysUntilDue"`
	Count        int                      `json:"count"`
	Items        []domain.MaintenanceItem `json:"items"`
}

type Result struct {
	TotalReminders    int            `json:"totalReminders"`
	NotificationsSent int            `json:"notificationsSent"`
	RemindersByDays   []DayReminders `json:"remindersByDays"`
}

type Reminder struct {
	items    ScheduleStore
	notifier notify.Gateway
	clock    clock.Clock
	loc      *time.Location
}

// New builds a Reminder whose day windows are computed in loc.
func New(items ScheduleStore, notifier notify.Gateway, c clock.Clock, loc *time.Location) *Reminder {
	if c == nil {
		c = clock.Real{}
	}
	if loc == nil {
		loc = time.Local
	}
	return &Reminder{items: items, notifier: notifier, clock: c, loc: loc}
}

func ParseConfig(cfg domain.Configuration) (Config, error) {
	var c Config
	if err := cfg.Decode(&c); err != nil {
		return Config{}, fmt.Errorf("%w: maintenance configuration: %v", domain.ErrInvalidInput, err)
	}
	if len(c.ReminderDays) == 0 {
		c.ReminderDays = []int{7, 3, 1}
	}
	if len(c.Priorities) == 0 {
		c.Priorities = []domain.Priority{domain.PriorityHigh, domain.PriorityCritical}
	}
	seen := make(map[int]bool, len(c.ReminderDays))
	days := c.ReminderDays[:0]
	for _, d := range c.ReminderDays {
		if d < 0 || seen[d] {
			continue
		}
		seen[d] = true
		days = append(days, d)
	}
	c.ReminderDays = days
	return c, nil
}

// Window returns the full local day that lies offset days after now.
func Window(now time.Time, offset int, loc *time.Location) (time.Time, time.Time) {
	day := now.In(loc).AddDate(0, 0, offset)
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// Upcoming returns the matching items for each configured offset, skipping
// offsets with no matches.
func (r *Reminder) Upcoming(ctx context.Context, c Config, now time.Time) ([]DayReminders, error) {
	var out []DayReminders
	for _, d := range c.ReminderDays {
		from, to := Window(now, d, r.loc)
		items, err := r.items.ListMaintenanceDue(ctx, from, to, c.Priorities)
		if err != nil {
			return nil, fmt.Errorf("list maintenance due in %d days: %w", d, err)
		}
		if len(items) == 0 {
			continue
		}
		out = append(out, DayReminders{DaysUntilDue: d, Count: len(items), Items: items})
	}
	return out, nil
}

func (r *Reminder) Handle(ctx context.Context, cfg domain.Configuration) (any, error) {
	c, err := ParseConfig(cfg)
	if err != nil {
		return nil, err
	}
	byDays, err := r.Upcoming(ctx, c, r.clock.Now())
	if err != nil {
		return nil, err
	}

	res := Result{RemindersByDays: byDays}
	if res.RemindersByDays == nil {
		res.RemindersByDays = []DayReminders{}
	}
	for _, group := range byDays {
		res.TotalReminders += group.Count
		for _, item := range group.Items {
			for _, user := range recipients(item, c.NotifyUsers) {
				if err := r.notifier.NotifyMaintenanceReminder(ctx, user, item, group.DaysUntilDue); err != nil {
					log.Warn().Err(err).Str("recipient", user).Str("item_id", item.ID).Msg("maintenance reminder not delivered")
					continue
				}
				res.NotificationsSent++
			}
		}
	}

	log.Info().
		Int("reminders", res.TotalReminders).
		Int("notifications", res.NotificationsSent).
		Msg("maintenance reminder run finished")
	return res, nil
}

// recipients is the ordered union of the item's assignee and the configured users.
func recipients(item domain.MaintenanceItem, users []string) []string {
	out := make([]string, 0, len(users)+1)
	seen := make(map[string]bool, len(users)+1)
	add := func(u string) {
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		out = append(out, u)
	}
	add(item.AssignedTo)
	for _, u := range users {
		add(u)
	}
	return out
}
