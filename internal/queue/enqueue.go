// Package queue implements the enqueue step of the notification pipeline:
// creating durable queue entries with idempotent deduplication against
// double-scheduling.
package queue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"duewatch/internal/types"
)

// Store defines the persistence operations the enqueuer needs, backed by
// db.QueueRepository in production.
type Store interface {
	Insert(ctx context.Context, e *types.QueueEntry) error
	HasActiveDuplicate(ctx context.Context, tenantID string, channel types.ChannelType, scheduledFor time.Time) (bool, error)
}

// Enqueuer creates queue entries. For tenant-scoped entries it performs a
// duplicate check before insert, guaranteeing at most one queued summary per
// (tenant, channel, scheduled_for) among pending/sent entries.
//
// The check-then-insert is not atomic against a true race; it doesn't need
// to be, because the scheduler guarantees a single daily trigger per tenant.
// System entries (nil tenant) bypass the check entirely: their anti-spam
// guard is the alert state machine upstream.
type Enqueuer struct {
	store  Store
	logger types.Logger
}

// NewEnqueuer creates an Enqueuer.
func NewEnqueuer(store Store, logger types.Logger) *Enqueuer {
	if logger == nil {
		logger = types.NopLogger()
	}
	return &Enqueuer{store: store, logger: logger}
}

// Enqueue creates a pending queue entry and returns its ID. When an active
// duplicate exists for a tenant-scoped entry, it returns ("", true, nil):
// an idempotent no-op, not an error.
func (q *Enqueuer) Enqueue(ctx context.Context, tenantID *string, channel types.ChannelType, payload types.Payload, scheduledFor time.Time) (string, bool, error) {
	if err := payload.Validate(); err != nil {
		return "", false, err
	}

	if tenantID != nil {
		exists, err := q.store.HasActiveDuplicate(ctx, *tenantID, channel, scheduledFor)
		if err != nil {
			return "", false, err
		}
		if exists {
			q.logger.Info("notification already queued, skipping",
				"tenant_id", *tenantID,
				"channel", string(channel),
				"scheduled_for", scheduledFor.Format(time.RFC3339),
			)
			return "", true, nil
		}
	}

	entry := &types.QueueEntry{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		Channel:      channel,
		Payload:      payload,
		Status:       types.StatusPending,
		ScheduledFor: scheduledFor,
	}

	if err := q.store.Insert(ctx, entry); err != nil {
		return "", false, err
	}

	q.logger.Info("queued notification",
		"entry_id", entry.ID,
		"channel", string(channel),
		"kind", string(payload.Kind),
		"scheduled_for", scheduledFor.Format(time.RFC3339),
	)

	return entry.ID, false, nil
}
