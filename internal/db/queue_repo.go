package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"duewatch/internal/types"
)

// QueueRepository provides data access for the notification_queue table.
// Entries are created by the enqueue step and the alert state machine, and
// mutated only by the delivery worker (status, sent_at, error, retry_count).
type QueueRepository struct {
	db DBTX
}

// NewQueueRepository creates a QueueRepository backed by the given database
// connection (pool or transaction).
func NewQueueRepository(db DBTX) *QueueRepository {
	return &QueueRepository{db: db}
}

// Insert persists a new queue entry. The caller sets the ID (UUID) and all
// content fields; status defaults to pending when empty.
func (r *QueueRepository) Insert(ctx context.Context, e *types.QueueEntry) error {
	payloadJSON, err := types.MarshalPayload(e.Payload)
	if err != nil {
		return err
	}

	status := e.Status
	if status == "" {
		status = types.StatusPending
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO notification_queue
		 (id, tenant_id, channel, payload, status, scheduled_for, retry_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()))`,
		e.ID,
		e.TenantID,
		string(e.Channel),
		payloadJSON,
		string(status),
		e.ScheduledFor,
		e.RetryCount,
		nilIfZeroTime(e.CreatedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert queue entry", err)
	}
	return nil
}

// HasActiveDuplicate reports whether an entry already exists for the given
// (tenant, channel, scheduled_for) tuple with status pending or sent. This is
// the sole deduplication guard against double-scheduling from overlapping
// scheduler fires.
func (r *QueueRepository) HasActiveDuplicate(ctx context.Context, tenantID string, channel types.ChannelType, scheduledFor time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
		    SELECT 1 FROM notification_queue
		    WHERE tenant_id = $1
		      AND channel = $2
		      AND scheduled_for = $3
		      AND status IN ('pending', 'sent')
		 )`,
		tenantID,
		string(channel),
		scheduledFor,
	).Scan(&exists)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check for duplicate entry", err)
	}
	return exists, nil
}

// GetByID fetches a single queue entry.
func (r *QueueRepository) GetByID(ctx context.Context, id string) (*types.QueueEntry, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, tenant_id, channel, payload, status, scheduled_for,
		        sent_at, error, retry_count, created_at
		 FROM notification_queue
		 WHERE id = $1`,
		id,
	)

	e, err := scanQueueEntry(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, types.NewAppError(types.ErrCodeNotFoundEntry, "queue entry not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get queue entry", err)
	}
	return e, nil
}

// ListDue returns entries eligible for delivery: status pending and
// scheduled_for at or before now. Ordered by scheduled_for for approximate
// FIFO processing.
func (r *QueueRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*types.QueueEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, tenant_id, channel, payload, status, scheduled_for,
		        sent_at, error, retry_count, created_at
		 FROM notification_queue
		 WHERE status = 'pending' AND scheduled_for <= $1
		 ORDER BY scheduled_for, id
		 LIMIT $2`,
		now,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list due entries", err)
	}
	defer rows.Close()

	return collectQueueEntries(rows)
}

// List retrieves queue entries for the operator API, optionally filtered by
// status and tenant, newest first.
func (r *QueueRepository) List(ctx context.Context, status types.QueueStatus, tenantID string, limit int) ([]*types.QueueEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var conditions []string
	var args []any
	argIdx := 1

	if status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, string(status))
		argIdx++
	}
	if tenantID != "" {
		conditions = append(conditions, fmt.Sprintf("tenant_id = $%d", argIdx))
		args = append(args, tenantID)
		argIdx++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(
		`SELECT id, tenant_id, channel, payload, status, scheduled_for,
		        sent_at, error, retry_count, created_at
		 FROM notification_queue
		 %s
		 ORDER BY created_at DESC
		 LIMIT $%d`,
		whereClause,
		argIdx,
	)
	args = append(args, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list queue entries", err)
	}
	defer rows.Close()

	return collectQueueEntries(rows)
}

// MarkSent transitions an entry to sent, records sent_at, and clears any
// previous error.
func (r *QueueRepository) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE notification_queue
		 SET status = 'sent', sent_at = $1, error = NULL
		 WHERE id = $2`,
		sentAt,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark entry sent", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundEntry, "queue entry not found", nil)
	}
	return nil
}

// MarkFailed transitions an entry to failed with the given reason. The
// reason is truncated to types.MaxErrorLen before persistence.
func (r *QueueRepository) MarkFailed(ctx context.Context, id string, reason string) error {
	reason = types.TruncateError(reason)

	tag, err := r.db.Exec(ctx,
		`UPDATE notification_queue
		 SET status = 'failed', error = $1
		 WHERE id = $2`,
		reason,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark entry failed", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundEntry, "queue entry not found", nil)
	}
	return nil
}

// ResetForRetry transitions one failed entry back to pending, clears sent_at
// and error, and increments retry_count. The WHERE clause enforces the
// failed->pending transition: a zero row count on an existing entry means it
// was not in failed status, which is rejected as a conflict.
func (r *QueueRepository) ResetForRetry(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE notification_queue
		 SET status = 'pending', sent_at = NULL, error = NULL,
		     retry_count = retry_count + 1
		 WHERE id = $1 AND status = 'failed'`,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to reset entry for retry", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish missing from non-failed for the API surface.
		var status string
		err := r.db.QueryRow(ctx,
			`SELECT status FROM notification_queue WHERE id = $1`, id,
		).Scan(&status)
		if err == pgx.ErrNoRows {
			return types.NewAppError(types.ErrCodeNotFoundEntry, "queue entry not found", nil)
		}
		if err != nil {
			return types.NewAppError(types.ErrCodeInternalDB, "failed to reset entry for retry", err)
		}
		return types.NewAppErrorWithDetails(types.ErrCodeConflictStatus,
			"only failed entries can be retried", nil,
			map[string]any{"status": status},
		)
	}
	return nil
}

// ResetFailedForRetry bulk-resets failed entries to pending, up to the given
// retry ceiling. Entries at or beyond the ceiling are left failed
// permanently. Returns the number of entries requeued.
func (r *QueueRepository) ResetFailedForRetry(ctx context.Context, maxRetries int) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE notification_queue
		 SET status = 'pending', sent_at = NULL, error = NULL,
		     retry_count = retry_count + 1
		 WHERE status = 'failed' AND retry_count < $1`,
		maxRetries,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to bulk-retry failed entries", err)
	}
	return tag.RowsAffected(), nil
}

// CountByStatus counts entries in the given status. Used by the alert
// evaluator's FAILED_THRESHOLD rule.
func (r *QueueRepository) CountByStatus(ctx context.Context, status types.QueueStatus) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM notification_queue WHERE status = $1`,
		string(status),
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count entries by status", err)
	}
	return count, nil
}

// CountStuckPending counts pending entries whose scheduled_for is strictly
// older than the cutoff. The strict inequality means an entry scheduled
// exactly at the cutoff is not yet stuck.
func (r *QueueRepository) CountStuckPending(ctx context.Context, cutoff time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM notification_queue
		 WHERE status = 'pending' AND scheduled_for < $1`,
		cutoff,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count stuck entries", err)
	}
	return count, nil
}

// collectQueueEntries drains a pgx.Rows result set into queue entries.
func collectQueueEntries(rows pgx.Rows) ([]*types.QueueEntry, error) {
	var results []*types.QueueEntry
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan queue entry row", err)
		}
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating queue entry rows", err)
	}
	return results, nil
}

// scanQueueEntry scans one notification_queue row. Works for both pgx.Row
// and pgx.Rows since both expose Scan.
func scanQueueEntry(row pgx.Row) (*types.QueueEntry, error) {
	var (
		e           types.QueueEntry
		channel     string
		status      string
		payloadJSON []byte
	)

	err := row.Scan(
		&e.ID,
		&e.TenantID,
		&channel,
		&payloadJSON,
		&status,
		&e.ScheduledFor,
		&e.SentAt,
		&e.Error,
		&e.RetryCount,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Channel = types.ChannelType(channel)
	e.Status = types.QueueStatus(status)

	payload, err := types.UnmarshalPayload(payloadJSON)
	if err != nil {
		return nil, err
	}
	e.Payload = payload

	return &e, nil
}

// nilIfZeroTime returns nil for a zero time so the column DEFAULT applies.
func nilIfZeroTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
