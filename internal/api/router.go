package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// requestTimeout is the soft deadline applied to every request context.
const requestTimeout = 60 * time.Second

// NewRouter builds the operator API router with the standard middleware
// chain: panic recovery outermost, then request IDs for correlation, then
// the request timeout.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/health", h.HandleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", h.HandleListNotifications)
			r.Post("/process", h.HandleProcessQueue)
			r.Post("/retry-failed", h.HandleRetryFailed)
			r.Post("/{id}/retry", h.HandleRetryNotification)
		})
		r.Route("/alerts", func(r chi.Router) {
			r.Post("/run", h.HandleRunAlerts)
			r.Get("/states", h.HandleListAlertStates)
		})
		r.Put("/tenants/{id}/schedule", h.HandleSyncTenantSchedule)
	})

	return r
}
