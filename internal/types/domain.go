// Package types defines the shared domain model for the DueWatch notification
// engine: queue entries, alert state, tenant notification settings, payment
// records, and the error/logging contracts used across packages.
package types

import (
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// ChannelType identifies a delivery medium. Each channel has its own
// formatter and sender implementation.
type ChannelType string

const (
	ChannelTelegram ChannelType = "telegram"
	ChannelEmail    ChannelType = "email"
)

// KnownChannels lists every channel the engine can dispatch to. Used for
// validation at the API boundary.
var KnownChannels = []ChannelType{ChannelTelegram, ChannelEmail}

// QueueStatus is the delivery state of a queue entry. Legal transitions are
// pending->sent, pending->failed, and failed->pending (retry). Entries are
// never deleted by the engine.
type QueueStatus string

const (
	StatusPending QueueStatus = "pending"
	StatusSent    QueueStatus = "sent"
	StatusFailed  QueueStatus = "failed"
)

// QueueEntry is one scheduled or completed notification delivery attempt.
//
// TenantID is nil for system alerts, which are not tied to any tenant and
// are delivered to the operator's default destination. SentAt is set iff
// Status is sent. Error holds the last failure reason, truncated to
// MaxErrorLen characters before persistence.
type QueueEntry struct {
	ID           string
	TenantID     *string
	Channel      ChannelType
	Payload      Payload
	Status       QueueStatus
	ScheduledFor time.Time
	SentAt       *time.Time
	Error        *string
	RetryCount   int
	CreatedAt    time.Time
}

// MaxErrorLen bounds the stored error message for a failed delivery.
const MaxErrorLen = 500

// TruncateError caps a failure reason at MaxErrorLen bytes without splitting
// a multi-byte rune. Postgres rejects invalid UTF-8 in text columns, so a
// byte-boundary cut through a rune would make the UPDATE itself fail.
func TruncateError(reason string) string {
	if len(reason) <= MaxErrorLen {
		return reason
	}
	cut := MaxErrorLen
	for cut > 0 && !utf8.RuneStart(reason[cut]) {
		cut--
	}
	return reason[:cut]
}

// AlertState is the anti-spam bookkeeping record for one alert type.
// Exactly one row exists per alert_type (unique constraint). IsActive=true
// implies LastTriggeredAt is set; once resolved at least once,
// LastResolvedAt is set.
type AlertState struct {
	AlertType       string
	IsActive        bool
	LastTriggeredAt *time.Time
	LastResolvedAt  *time.Time
}

// Severity classifies a detected alert condition.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
)

// DetectedAlert is the transient output of one evaluator rule. It is never
// persisted directly; only AlertState rows and derived queue entries are.
type DetectedAlert struct {
	AlertType  string
	Severity   Severity
	Message    string
	Metrics    map[string]any
	DetectedAt time.Time
}

// NotificationSettings holds a tenant's channel enablement flags,
// destinations, and preferred daily delivery time ("HH:MM", 24h, in the
// engine's operational time zone). The engine consumes these read-only;
// writes belong to the settings CRUD surface.
type NotificationSettings struct {
	TenantID         string
	TelegramEnabled  bool
	TelegramChatID   string
	EmailEnabled     bool
	EmailTo          string
	DailySummaryTime string
}

// ChannelEnabled reports whether the given channel is switched on and has a
// usable destination.
func (s NotificationSettings) ChannelEnabled(ch ChannelType) bool {
	switch ch {
	case ChannelTelegram:
		return s.TelegramEnabled && s.TelegramChatID != ""
	case ChannelEmail:
		return s.EmailEnabled && s.EmailTo != ""
	default:
		return false
	}
}

// Destination returns the channel-specific delivery target, or "" if the
// channel is unknown or unconfigured.
func (s NotificationSettings) Destination(ch ChannelType) string {
	switch ch {
	case ChannelTelegram:
		return s.TelegramChatID
	case ChannelEmail:
		return s.EmailTo
	default:
		return ""
	}
}

// AnyChannelEnabled reports whether at least one channel is enabled. The
// scheduler only registers daily triggers for tenants where this holds.
func (s NotificationSettings) AnyChannelEnabled() bool {
	return s.ChannelEnabled(ChannelTelegram) || s.ChannelEnabled(ChannelEmail)
}

// PaymentStatus is the lifecycle state of a payment record.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// Payment is a read-only projection of a tenant payment record, containing
// only the fields the Summary Builder aggregates. Amounts are decimals, not
// floats, to keep monetary sums exact.
type Payment struct {
	ID            string
	TenantID      string
	Description   string
	Amount        decimal.Decimal
	Status        PaymentStatus
	DueDate       time.Time
	Autopay       bool
	PaidAt        *time.Time
	PaymentMethod string
}

// ProcessingReport summarizes one Delivery Worker run over due entries.
type ProcessingReport struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
}
