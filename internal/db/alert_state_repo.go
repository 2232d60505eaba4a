package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"duewatch/internal/types"
)

// AlertStateRepository provides data access for the alert_state table, the
// anti-spam bookkeeping behind the alert state machine. One row exists per
// alert_type (unique constraint); rows are toggled active/inactive and never
// deleted.
type AlertStateRepository struct {
	db DBTX
}

// NewAlertStateRepository creates an AlertStateRepository backed by the given
// database connection (pool or transaction).
func NewAlertStateRepository(db DBTX) *AlertStateRepository {
	return &AlertStateRepository{db: db}
}

// GetForUpdate fetches the state row for an alert type with a row-level lock
// (SELECT ... FOR UPDATE). The lock serializes concurrent reconciliation
// cycles on the same alert_type until the surrounding transaction commits or
// rolls back. Returns (nil, nil) when no row exists yet.
//
// Must be called inside a transaction; FOR UPDATE outside one releases the
// lock immediately.
func (r *AlertStateRepository) GetForUpdate(ctx context.Context, alertType string) (*types.AlertState, error) {
	row := r.db.QueryRow(ctx,
		`SELECT alert_type, is_active, last_triggered_at, last_resolved_at
		 FROM alert_state
		 WHERE alert_type = $1
		 FOR UPDATE`,
		alertType,
	)

	var s types.AlertState
	err := row.Scan(&s.AlertType, &s.IsActive, &s.LastTriggeredAt, &s.LastResolvedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to lock alert state", err)
	}
	return &s, nil
}

// Create inserts the first state row for an alert type. The unique
// constraint on alert_type rejects a concurrent first-detection race; the
// resulting error rolls the cycle back and it is retried on the next
// interval.
func (r *AlertStateRepository) Create(ctx context.Context, alertType string, triggeredAt time.Time) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO alert_state (alert_type, is_active, last_triggered_at)
		 VALUES ($1, TRUE, $2)`,
		alertType,
		triggeredAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create alert state", err)
	}
	return nil
}

// SetActive marks an existing state row active and records the trigger time.
// Used both to reactivate a resolved alert and to touch last_triggered_at on
// an alert that remains active.
func (r *AlertStateRepository) SetActive(ctx context.Context, alertType string, triggeredAt time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE alert_state
		 SET is_active = TRUE, last_triggered_at = $1
		 WHERE alert_type = $2`,
		triggeredAt,
		alertType,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to activate alert state", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeInternalDB, "alert state row vanished during update", nil)
	}
	return nil
}

// ResolveActiveExcept flips every active alert whose type is NOT in keep to
// inactive, recording the resolution time. This is the CASE C resolution
// pass: the set difference between stored-active and currently-detected
// alert types. Returns the number of alerts resolved.
func (r *AlertStateRepository) ResolveActiveExcept(ctx context.Context, resolvedAt time.Time, keep []string) (int64, error) {
	if keep == nil {
		keep = []string{}
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE alert_state
		 SET is_active = FALSE, last_resolved_at = $1
		 WHERE is_active = TRUE AND alert_type != ALL($2)`,
		resolvedAt,
		keep,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to resolve inactive alerts", err)
	}
	return tag.RowsAffected(), nil
}

// List returns every alert state row, for the operator API.
func (r *AlertStateRepository) List(ctx context.Context) ([]*types.AlertState, error) {
	rows, err := r.db.Query(ctx,
		`SELECT alert_type, is_active, last_triggered_at, last_resolved_at
		 FROM alert_state
		 ORDER BY alert_type`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list alert states", err)
	}
	defer rows.Close()

	var results []*types.AlertState
	for rows.Next() {
		var s types.AlertState
		if err := rows.Scan(&s.AlertType, &s.IsActive, &s.LastTriggeredAt, &s.LastResolvedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan alert state row", err)
		}
		results = append(results, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating alert state rows", err)
	}
	return results, nil
}
