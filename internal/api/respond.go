// Package api exposes the operator HTTP surface: queue inspection, manual
// worker and alert runs, retries, and trigger re-registration. Everything
// here is an on-demand entry point into operations the scheduler also
// invokes on timers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"duewatch/internal/types"
)

// maxRequestBodySize bounds request bodies (1 MB).
const maxRequestBodySize = 1 << 20

// apiResponse is the envelope for successful responses.
type apiResponse struct {
	Data any `json:"data,omitempty"`
}

// apiErrorResponse is the envelope for error responses.
type apiErrorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id"`
}

// respondJSON writes data wrapped in the standard envelope.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiResponse{Data: data})
}

// respondError maps the error chain to a structured response. AppErrors use
// their own code and status; anything else becomes an opaque 500 so internal
// details never leak to clients.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.GetReqID(r.Context())

	var appErr *types.AppError
	if errors.As(err, &appErr) {
		respondRawJSON(w, appErr.HTTPStatus(), apiErrorResponse{
			Error: errorDetail{
				Code:      string(appErr.Code),
				Message:   appErr.Message,
				Details:   appErr.Details,
				RequestID: requestID,
			},
		})
		return
	}

	respondRawJSON(w, http.StatusInternalServerError, apiErrorResponse{
		Error: errorDetail{
			Code:      string(types.ErrCodeInternalUnexpected),
			Message:   "an unexpected error occurred",
			RequestID: requestID,
		},
	})
}

func respondRawJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// decodeJSON reads the request body into dst with a size cap and strict
// field checking.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return types.NewAppError(types.ErrCodeValidationPayload,
			"invalid request body", err)
	}
	return nil
}
