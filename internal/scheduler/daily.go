package scheduler

import (
	"context"
	"fmt"
	"time"

	"duewatch/internal/types"
)

// SummaryBuilder produces the daily summary payload for one tenant day.
type SummaryBuilder interface {
	Build(ctx context.Context, tenantID string, date time.Time) (*types.DailySummary, error)
}

// SettingsReader resolves a single tenant's notification settings.
type SettingsReader interface {
	GetByTenant(ctx context.Context, tenantID string) (*types.NotificationSettings, error)
}

// Enqueuer puts a notification into the delivery queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, tenantID *string, channel types.ChannelType, payload types.Payload, scheduledFor time.Time) (string, bool, error)
}

// DailySummaryJob runs the daily pipeline for one tenant: build the summary
// for today, then enqueue one entry per enabled channel. Settings are
// re-read on every run so a change made after startup takes effect without
// re-registration (only the trigger time needs that).
type DailySummaryJob struct {
	builder  SummaryBuilder
	settings SettingsReader
	queue    Enqueuer
	loc      *time.Location
	clock    types.Clock
	logger   types.Logger
}

// NewDailySummaryJob creates the job.
func NewDailySummaryJob(
	builder SummaryBuilder,
	settings SettingsReader,
	queue Enqueuer,
	loc *time.Location,
	clock types.Clock,
	logger types.Logger,
) *DailySummaryJob {
	return &DailySummaryJob{
		builder:  builder,
		settings: settings,
		queue:    queue,
		loc:      loc,
		clock:    clock,
		logger:   logger,
	}
}

// Run executes the pipeline for one tenant. A day with no payment activity
// produces nothing: no summary, no queue entries.
func (j *DailySummaryJob) Run(ctx context.Context, tenantID string) error {
	now := j.clock.Now().In(j.loc)

	settings, err := j.settings.GetByTenant(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("loading settings for tenant %s: %w", tenantID, err)
	}
	if settings == nil || !settings.AnyChannelEnabled() {
		j.logger.Info("skipping daily summary, no enabled channels", "tenant_id", tenantID)
		return nil
	}

	summary, err := j.builder.Build(ctx, tenantID, now)
	if err != nil {
		return fmt.Errorf("building daily summary for tenant %s: %w", tenantID, err)
	}
	if summary == nil {
		j.logger.Info("no payment activity today, skipping summary", "tenant_id", tenantID)
		return nil
	}

	// Pin scheduled_for to the configured daily time on today's date. The
	// fire time drifts by seconds between runs; the configured time does
	// not, so re-runs within one day hit the same dedup key and at most one
	// summary per tenant/channel/day is ever queued.
	scheduledFor, err := scheduledTimeOnDay(settings.DailySummaryTime, now, j.loc)
	if err != nil {
		return fmt.Errorf("resolving scheduled time for tenant %s: %w", tenantID, err)
	}

	payload := types.Payload{Kind: types.PayloadDailySummary, DailySummary: summary}

	for _, ch := range types.KnownChannels {
		if !settings.ChannelEnabled(ch) {
			continue
		}
		id, skipped, err := j.queue.Enqueue(ctx, &tenantID, ch, payload, scheduledFor)
		if err != nil {
			return fmt.Errorf("enqueuing %s summary for tenant %s: %w", ch, tenantID, err)
		}
		if !skipped {
			j.logger.Info("daily summary queued",
				"tenant_id", tenantID, "channel", ch, "entry_id", id)
		}
	}
	return nil
}

// scheduledTimeOnDay combines the tenant's "HH:MM" daily time with the given
// day in the operational zone.
func scheduledTimeOnDay(dailyTime string, day time.Time, loc *time.Location) (time.Time, error) {
	hour, minute, err := parseDailyTime(dailyTime)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc), nil
}
