// Package worker drains due queue entries and dispatches them through the
// configured delivery channels. One run is a bounded batch; a failing entry
// is marked failed and never aborts the rest of the batch.
package worker

import (
	"context"
	"fmt"
	"time"

	"duewatch/internal/channels"
	"duewatch/internal/types"
)

const (
	// DefaultBatchSize bounds how many due entries one run picks up.
	DefaultBatchSize = 50

	// DefaultSendTimeout bounds a single channel send, on top of whatever
	// per-attempt timeout the sender's HTTP client applies.
	DefaultSendTimeout = 30 * time.Second
)

// QueueStore is the queue persistence surface the worker needs.
type QueueStore interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]*types.QueueEntry, error)
	MarkSent(ctx context.Context, id string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id string, reason string) error
	ResetForRetry(ctx context.Context, id string) error
	ResetFailedForRetry(ctx context.Context, maxRetries int) (int64, error)
}

// SettingsStore resolves a tenant's notification settings. A nil result
// with a nil error means the tenant has no settings row.
type SettingsStore interface {
	GetByTenant(ctx context.Context, tenantID string) (*types.NotificationSettings, error)
}

// DeliveryMetrics records per-channel delivery outcomes.
type DeliveryMetrics interface {
	RecordDelivery(ctx context.Context, channel types.ChannelType, outcome string)
}

// Worker processes due notification queue entries.
type Worker struct {
	queue       QueueStore
	settings    SettingsStore
	registry    *channels.Registry
	systemDests map[types.ChannelType]string
	metrics     DeliveryMetrics
	clock       types.Clock
	logger      types.Logger
	batchSize   int
	sendTimeout time.Duration
	maxRetries  int
}

// Config carries the worker's tunables. Zero values fall back to defaults.
type Config struct {
	// SystemDestinations maps each channel to the operator destination for
	// system alerts (entries with no tenant).
	SystemDestinations map[types.ChannelType]string

	BatchSize   int
	SendTimeout time.Duration

	// MaxRetries caps how many times a failed entry is re-queued by the
	// bulk retry operation. Single-entry retries are not capped.
	MaxRetries int
}

// New creates a Worker.
func New(
	queue QueueStore,
	settings SettingsStore,
	registry *channels.Registry,
	metrics DeliveryMetrics,
	clock types.Clock,
	logger types.Logger,
	cfg Config,
) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Worker{
		queue:       queue,
		settings:    settings,
		registry:    registry,
		systemDests: cfg.SystemDestinations,
		metrics:     metrics,
		clock:       clock,
		logger:      logger,
		batchSize:   cfg.BatchSize,
		sendTimeout: cfg.SendTimeout,
		maxRetries:  cfg.MaxRetries,
	}
}

// ProcessDueEntries picks up pending entries whose scheduled_for has passed
// and attempts delivery for each. Every attempted entry ends in a terminal
// mark: sent on success, failed with the error reason otherwise. The
// returned error covers batch-level faults only (listing the queue); a
// failed delivery is reported in the ProcessingReport, not as an error.
func (w *Worker) ProcessDueEntries(ctx context.Context) (types.ProcessingReport, error) {
	var report types.ProcessingReport

	now := w.clock.Now()
	entries, err := w.queue.ListDue(ctx, now, w.batchSize)
	if err != nil {
		return report, fmt.Errorf("listing due queue entries: %w", err)
	}

	for _, entry := range entries {
		report.Processed++

		if err := w.deliver(ctx, entry); err != nil {
			report.Failed++
			w.logger.Warn("notification delivery failed",
				"entry_id", entry.ID, "channel", entry.Channel, "error", err)
			w.recordOutcome(ctx, entry.Channel, "failed")
			if markErr := w.queue.MarkFailed(ctx, entry.ID, err.Error()); markErr != nil {
				w.logger.Error("failed to mark queue entry failed",
					"entry_id", entry.ID, "error", markErr)
			}
			continue
		}

		report.Sent++
		w.recordOutcome(ctx, entry.Channel, "sent")
		if markErr := w.queue.MarkSent(ctx, entry.ID, w.clock.Now()); markErr != nil {
			w.logger.Error("failed to mark queue entry sent",
				"entry_id", entry.ID, "error", markErr)
		}
	}

	if report.Processed > 0 {
		w.logger.Info("queue batch processed",
			"processed", report.Processed, "sent", report.Sent, "failed", report.Failed)
	}
	return report, nil
}

// deliver resolves the destination for one entry and sends it. Returned
// errors are the reason stored on the entry; they cover both terminal data
// problems (missing settings, disabled channel) and transport failures.
func (w *Worker) deliver(ctx context.Context, entry *types.QueueEntry) error {
	if entry.Payload.IsZero() {
		return types.NewAppError(types.ErrCodeValidationPayload,
			"queue entry has no payload", nil)
	}

	sender := w.registry.Get(entry.Channel)
	if sender == nil {
		return types.NewAppError(types.ErrCodeValidationChannel,
			fmt.Sprintf("no sender registered for channel %q", entry.Channel), nil)
	}

	destination, err := w.resolveDestination(ctx, entry)
	if err != nil {
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, w.sendTimeout)
	defer cancel()
	return sender.Send(sendCtx, entry.Payload, destination)
}

func (w *Worker) resolveDestination(ctx context.Context, entry *types.QueueEntry) (string, error) {
	// System alerts carry no tenant and go to the operator destination.
	if entry.TenantID == nil {
		dest := w.systemDests[entry.Channel]
		if dest == "" {
			return "", types.NewAppError(types.ErrCodeValidationChannel,
				fmt.Sprintf("no system alert destination configured for channel %q", entry.Channel), nil)
		}
		return dest, nil
	}

	settings, err := w.settings.GetByTenant(ctx, *entry.TenantID)
	if err != nil {
		return "", fmt.Errorf("loading notification settings: %w", err)
	}
	if settings == nil {
		return "", types.NewAppError(types.ErrCodeNotFoundSettings,
			fmt.Sprintf("tenant %s has no notification settings", *entry.TenantID), nil)
	}
	if !settings.ChannelEnabled(entry.Channel) {
		return "", types.NewAppError(types.ErrCodeValidationChannel,
			fmt.Sprintf("channel %q is disabled for tenant %s", entry.Channel, *entry.TenantID), nil)
	}
	return settings.Destination(entry.Channel), nil
}

// RetryEntry moves one failed entry back to pending so the next run picks
// it up. The store rejects retries of entries that are not in failed state.
func (w *Worker) RetryEntry(ctx context.Context, id string) error {
	if err := w.queue.ResetForRetry(ctx, id); err != nil {
		return err
	}
	w.logger.Info("queue entry reset for retry", "entry_id", id)
	return nil
}

// RetryAllFailed moves every failed entry under the retry cap back to
// pending and returns how many were reset.
func (w *Worker) RetryAllFailed(ctx context.Context) (int64, error) {
	n, err := w.queue.ResetFailedForRetry(ctx, w.maxRetries)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		w.logger.Info("failed queue entries reset for retry", "count", n)
	}
	return n, nil
}

func (w *Worker) recordOutcome(ctx context.Context, ch types.ChannelType, outcome string) {
	if w.metrics != nil {
		w.metrics.RecordDelivery(ctx, ch, outcome)
	}
}
