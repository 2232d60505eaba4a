package db

import (
	"context"

	"github.com/jackc/pgx/v5"

	"duewatch/internal/types"
)

// SettingsRepository provides read-only access to per-tenant notification
// settings. Settings writes belong to the CRUD surface; the engine only
// looks them up by tenant and enumerates them at scheduler startup.
type SettingsRepository struct {
	db DBTX
}

// NewSettingsRepository creates a SettingsRepository backed by the given
// database connection (pool or transaction).
func NewSettingsRepository(db DBTX) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// GetByTenant returns the settings row for a tenant, or (nil, nil) when none
// exists. A missing row is a per-entry data condition for the worker, not a
// database error.
func (r *SettingsRepository) GetByTenant(ctx context.Context, tenantID string) (*types.NotificationSettings, error) {
	row := r.db.QueryRow(ctx,
		`SELECT tenant_id, telegram_enabled, COALESCE(telegram_chat_id, ''),
		        email_enabled, COALESCE(email_to, ''),
		        to_char(daily_summary_time, 'HH24:MI')
		 FROM notification_settings
		 WHERE tenant_id = $1`,
		tenantID,
	)

	var s types.NotificationSettings
	err := row.Scan(
		&s.TenantID,
		&s.TelegramEnabled,
		&s.TelegramChatID,
		&s.EmailEnabled,
		&s.EmailTo,
		&s.DailySummaryTime,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get notification settings", err)
	}
	return &s, nil
}

// ListAll returns every tenant's settings. The scheduler calls this once at
// startup to rebuild its in-memory trigger registry.
func (r *SettingsRepository) ListAll(ctx context.Context) ([]types.NotificationSettings, error) {
	rows, err := r.db.Query(ctx,
		`SELECT tenant_id, telegram_enabled, COALESCE(telegram_chat_id, ''),
		        email_enabled, COALESCE(email_to, ''),
		        to_char(daily_summary_time, 'HH24:MI')
		 FROM notification_settings
		 ORDER BY tenant_id`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list notification settings", err)
	}
	defer rows.Close()

	var results []types.NotificationSettings
	for rows.Next() {
		var s types.NotificationSettings
		err := rows.Scan(
			&s.TenantID,
			&s.TelegramEnabled,
			&s.TelegramChatID,
			&s.EmailEnabled,
			&s.EmailTo,
			&s.DailySummaryTime,
		)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan settings row", err)
		}
		results = append(results, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating settings rows", err)
	}
	return results, nil
}
