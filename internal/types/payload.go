package types

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// PayloadKind tags the notification payload union. Channel formatters switch
// on the kind exhaustively, so adding a kind forces every formatter to handle
// it at compile review time rather than at runtime.
type PayloadKind string

const (
	PayloadDailySummary PayloadKind = "daily_summary"
	PayloadSystemAlert  PayloadKind = "system_alert"
)

// Payload is the channel-agnostic content of a queue entry, modeled as a
// tagged union over the known notification kinds. Exactly one of the member
// pointers is non-nil, matching Kind. It round-trips through the payload
// JSONB column.
type Payload struct {
	Kind         PayloadKind   `json:"kind"`
	DailySummary *DailySummary `json:"daily_summary,omitempty"`
	SystemAlert  *SystemAlert  `json:"system_alert,omitempty"`
}

// Validate checks that the union is well-formed: a known kind with the
// matching member set and the other members unset.
func (p Payload) Validate() error {
	switch p.Kind {
	case PayloadDailySummary:
		if p.DailySummary == nil || p.SystemAlert != nil {
			return NewAppError(ErrCodeValidationPayload, "daily_summary payload member mismatch", nil)
		}
	case PayloadSystemAlert:
		if p.SystemAlert == nil || p.DailySummary != nil {
			return NewAppError(ErrCodeValidationPayload, "system_alert payload member mismatch", nil)
		}
	default:
		return NewAppError(ErrCodeValidationPayload, "unknown payload kind", nil)
	}
	return nil
}

// IsZero reports whether the payload is entirely unset. A queue entry with a
// zero payload is a data error and fails terminally in the worker.
func (p Payload) IsZero() bool {
	return p.Kind == "" && p.DailySummary == nil && p.SystemAlert == nil
}

// MarshalPayload serializes a payload for the JSONB column.
func MarshalPayload(p Payload) ([]byte, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, NewAppError(ErrCodeValidationPayload, "failed to marshal payload", err)
	}
	return b, nil
}

// UnmarshalPayload deserializes the JSONB column back into the union.
func UnmarshalPayload(b []byte) (Payload, error) {
	var p Payload
	if len(b) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(b, &p); err != nil {
		return Payload{}, NewAppError(ErrCodeValidationPayload, "failed to unmarshal payload", err)
	}
	return p, nil
}

// PaymentLine is one itemized payment inside a daily summary.
type PaymentLine struct {
	ID            string          `json:"id"`
	Description   string          `json:"description"`
	Amount        decimal.Decimal `json:"amount"`
	DueDate       string          `json:"due_date,omitempty"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
	PaymentMethod string          `json:"payment_method,omitempty"`
}

// PaymentGroup aggregates one of the two summary record sets.
type PaymentGroup struct {
	Count       int             `json:"count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Items       []PaymentLine   `json:"items"`
}

// DailySummary is the structured content of a per-tenant daily summary
// notification: pending payments due on the summary date plus autopay
// payments settled that day.
type DailySummary struct {
	SummaryDate string       `json:"summary_date"`
	TenantID    string       `json:"tenant_id"`
	Pending     PaymentGroup `json:"pending_payments"`
	PaidToday   PaymentGroup `json:"paid_today"`
	GeneratedAt time.Time    `json:"generated_at"`
}

// SystemAlert is the structured content of an operational alert
// notification, produced by the alert state machine from a DetectedAlert.
type SystemAlert struct {
	AlertType  string         `json:"alert_type"`
	Severity   Severity       `json:"severity"`
	Message    string         `json:"message"`
	Metrics    map[string]any `json:"metrics,omitempty"`
	DetectedAt time.Time      `json:"detected_at"`
}
