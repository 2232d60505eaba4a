package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"duewatch/internal/types"
)

// QueueReader lists queue entries for inspection.
type QueueReader interface {
	List(ctx context.Context, status types.QueueStatus, tenantID string, limit int) ([]*types.QueueEntry, error)
}

// WorkerOps exposes the delivery worker's on-demand operations.
type WorkerOps interface {
	ProcessDueEntries(ctx context.Context) (types.ProcessingReport, error)
	RetryEntry(ctx context.Context, id string) error
	RetryAllFailed(ctx context.Context) (int64, error)
}

// AlertOps exposes the alert engine's on-demand operations.
type AlertOps interface {
	RunCycle(ctx context.Context) error
}

// AlertStateReader lists the persisted alert states.
type AlertStateReader interface {
	List(ctx context.Context) ([]*types.AlertState, error)
}

// SettingsReader resolves a tenant's persisted notification settings.
type SettingsReader interface {
	GetByTenant(ctx context.Context, tenantID string) (*types.NotificationSettings, error)
}

// ScheduleRegistry re-syncs a tenant's daily trigger.
type ScheduleRegistry interface {
	RegisterTenant(tenantID, dailyTime string) error
	UnregisterTenant(tenantID string)
}

// Handler holds the operator endpoint dependencies.
type Handler struct {
	queue     QueueReader
	worker    WorkerOps
	alerts    AlertOps
	states    AlertStateReader
	settings  SettingsReader
	scheduler ScheduleRegistry
	logger    types.Logger
}

// NewHandler creates the operator API handler.
func NewHandler(
	queue QueueReader,
	worker WorkerOps,
	alerts AlertOps,
	states AlertStateReader,
	settings SettingsReader,
	scheduler ScheduleRegistry,
	logger types.Logger,
) *Handler {
	return &Handler{
		queue:     queue,
		worker:    worker,
		alerts:    alerts,
		states:    states,
		settings:  settings,
		scheduler: scheduler,
		logger:    logger,
	}
}

// queueEntryDTO is the wire shape of a queue entry.
type queueEntryDTO struct {
	ID           string        `json:"id"`
	TenantID     *string       `json:"tenant_id"`
	Channel      string        `json:"channel"`
	Payload      types.Payload `json:"payload"`
	Status       string        `json:"status"`
	ScheduledFor time.Time     `json:"scheduled_for"`
	SentAt       *time.Time    `json:"sent_at,omitempty"`
	Error        *string       `json:"error,omitempty"`
	RetryCount   int           `json:"retry_count"`
	CreatedAt    time.Time     `json:"created_at"`
}

func toQueueEntryDTO(e *types.QueueEntry) queueEntryDTO {
	return queueEntryDTO{
		ID:           e.ID,
		TenantID:     e.TenantID,
		Channel:      string(e.Channel),
		Payload:      e.Payload,
		Status:       string(e.Status),
		ScheduledFor: e.ScheduledFor,
		SentAt:       e.SentAt,
		Error:        e.Error,
		RetryCount:   e.RetryCount,
		CreatedAt:    e.CreatedAt,
	}
}

// alertStateDTO is the wire shape of an alert state row.
type alertStateDTO struct {
	AlertType       string     `json:"alert_type"`
	IsActive        bool       `json:"is_active"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`
	LastResolvedAt  *time.Time `json:"last_resolved_at,omitempty"`
}

// HandleListNotifications serves GET /api/v1/notifications.
// Optional query params: status, tenant_id, limit.
func (h *Handler) HandleListNotifications(w http.ResponseWriter, r *http.Request) {
	status := types.QueueStatus(r.URL.Query().Get("status"))
	switch status {
	case "", types.StatusPending, types.StatusSent, types.StatusFailed:
	default:
		respondError(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
			"status must be one of pending, sent, failed", nil))
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
				"limit must be an integer", err))
			return
		}
		limit = n
	}

	entries, err := h.queue.List(r.Context(), status, r.URL.Query().Get("tenant_id"), limit)
	if err != nil {
		respondError(w, r, err)
		return
	}

	dtos := make([]queueEntryDTO, 0, len(entries))
	for _, e := range entries {
		dtos = append(dtos, toQueueEntryDTO(e))
	}
	respondJSON(w, http.StatusOK, dtos)
}

// HandleProcessQueue serves POST /api/v1/notifications/process: a manual
// worker run over all currently due entries.
func (h *Handler) HandleProcessQueue(w http.ResponseWriter, r *http.Request) {
	report, err := h.worker.ProcessDueEntries(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// HandleRetryNotification serves POST /api/v1/notifications/{id}/retry.
func (h *Handler) HandleRetryNotification(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.worker.RetryEntry(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(types.StatusPending)})
}

// HandleRetryFailed serves POST /api/v1/notifications/retry-failed: a bulk
// reset of failed entries still under the retry ceiling.
func (h *Handler) HandleRetryFailed(w http.ResponseWriter, r *http.Request) {
	n, err := h.worker.RetryAllFailed(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"reset": n})
}

// HandleRunAlerts serves POST /api/v1/alerts/run: a manual reconciliation
// cycle, identical to the scheduled one.
func (h *Handler) HandleRunAlerts(w http.ResponseWriter, r *http.Request) {
	if err := h.alerts.RunCycle(r.Context()); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

// HandleListAlertStates serves GET /api/v1/alerts/states.
func (h *Handler) HandleListAlertStates(w http.ResponseWriter, r *http.Request) {
	states, err := h.states.List(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	dtos := make([]alertStateDTO, 0, len(states))
	for _, s := range states {
		dtos = append(dtos, alertStateDTO{
			AlertType:       s.AlertType,
			IsActive:        s.IsActive,
			LastTriggeredAt: s.LastTriggeredAt,
			LastResolvedAt:  s.LastResolvedAt,
		})
	}
	respondJSON(w, http.StatusOK, dtos)
}

// HandleSyncTenantSchedule serves PUT /api/v1/tenants/{id}/schedule. It
// re-reads the tenant's persisted settings and re-syncs the daily trigger:
// registered (replacing any existing trigger) when at least one channel is
// enabled, removed otherwise. Collaborators call this after any settings
// change.
func (h *Handler) HandleSyncTenantSchedule(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "id")

	settings, err := h.settings.GetByTenant(r.Context(), tenantID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if settings == nil {
		respondError(w, r, types.NewAppError(types.ErrCodeNotFoundSettings,
			"tenant has no notification settings", nil))
		return
	}

	if !settings.AnyChannelEnabled() {
		h.scheduler.UnregisterTenant(tenantID)
		respondJSON(w, http.StatusOK, map[string]any{"tenant_id": tenantID, "registered": false})
		return
	}

	if err := h.scheduler.RegisterTenant(tenantID, settings.DailySummaryTime); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"tenant_id":          tenantID,
		"registered":         true,
		"daily_summary_time": settings.DailySummaryTime,
	})
}

// HandleHealth serves GET /health.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	respondRawJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
