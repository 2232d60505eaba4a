// Package summary implements the daily summary builder: pure aggregation of
// a tenant's payment records for one calendar date into a structured,
// channel-agnostic payload. It performs no writes and no delivery.
package summary

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"duewatch/internal/types"
)

// PaymentReader defines the payment queries the builder needs. Backed by
// db.PaymentRepository in production; tests use in-memory fakes.
type PaymentReader interface {
	// ListPendingDue returns pending payments with due_date equal to date.
	ListPendingDue(ctx context.Context, tenantID string, date time.Time) ([]types.Payment, error)

	// ListAutopayPaidBetween returns autopay payments with status paid and
	// paid_at within [start, end).
	ListAutopayPaidBetween(ctx context.Context, tenantID string, start, end time.Time) ([]types.Payment, error)
}

// Builder produces daily summaries. It is side-effect-free: read errors
// propagate to the caller instead of collapsing into a false "no data"
// result, so callers can tell an empty day from a broken read.
type Builder struct {
	payments PaymentReader
	loc      *time.Location
	clock    types.Clock
	logger   types.Logger
}

// NewBuilder creates a Builder. loc is the engine's operational time zone,
// used to compute the [00:00, 24:00) window of the summary date.
func NewBuilder(payments PaymentReader, loc *time.Location, clock types.Clock, logger types.Logger) *Builder {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = types.NopLogger()
	}
	return &Builder{
		payments: payments,
		loc:      loc,
		clock:    clock,
		logger:   logger,
	}
}

// Build aggregates a tenant's payments for the given calendar date.
//
// Returns (nil, nil) when the tenant has neither pending payments due that
// date nor autopay payments settled that date; an empty day warrants no
// notification at all, by design. Monetary totals are decimal sums to avoid
// floating-point drift.
func (b *Builder) Build(ctx context.Context, tenantID string, date time.Time) (*types.DailySummary, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, b.loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	pending, err := b.payments.ListPendingDue(ctx, tenantID, dayStart)
	if err != nil {
		return nil, fmt.Errorf("listing pending due payments for tenant %s: %w", tenantID, err)
	}

	paid, err := b.payments.ListAutopayPaidBetween(ctx, tenantID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("listing autopay payments for tenant %s: %w", tenantID, err)
	}

	if len(pending) == 0 && len(paid) == 0 {
		b.logger.Info("no summary data for tenant",
			"tenant_id", tenantID,
			"date", dayStart.Format("2006-01-02"),
		)
		return nil, nil
	}

	s := &types.DailySummary{
		SummaryDate: dayStart.Format("2006-01-02"),
		TenantID:    tenantID,
		Pending:     groupPending(pending),
		PaidToday:   groupPaid(paid),
		GeneratedAt: b.clock.Now(),
	}

	b.logger.Info("built daily summary",
		"tenant_id", tenantID,
		"date", s.SummaryDate,
		"pending_count", s.Pending.Count,
		"paid_count", s.PaidToday.Count,
	)

	return s, nil
}

func groupPending(payments []types.Payment) types.PaymentGroup {
	group := types.PaymentGroup{
		Items:       make([]types.PaymentLine, 0, len(payments)),
		TotalAmount: decimal.Zero,
	}
	for _, p := range payments {
		group.Items = append(group.Items, types.PaymentLine{
			ID:            p.ID,
			Description:   descriptionOrDefault(p.Description),
			Amount:        p.Amount,
			DueDate:       p.DueDate.Format("2006-01-02"),
			PaymentMethod: methodOrDefault(p.PaymentMethod),
		})
		group.TotalAmount = group.TotalAmount.Add(p.Amount)
	}
	group.Count = len(group.Items)
	return group
}

func groupPaid(payments []types.Payment) types.PaymentGroup {
	group := types.PaymentGroup{
		Items:       make([]types.PaymentLine, 0, len(payments)),
		TotalAmount: decimal.Zero,
	}
	for _, p := range payments {
		group.Items = append(group.Items, types.PaymentLine{
			ID:            p.ID,
			Description:   descriptionOrDefault(p.Description),
			Amount:        p.Amount,
			PaidAt:        p.PaidAt,
			PaymentMethod: methodOrDefault(p.PaymentMethod),
		})
		group.TotalAmount = group.TotalAmount.Add(p.Amount)
	}
	group.Count = len(group.Items)
	return group
}

func descriptionOrDefault(s string) string {
	if s == "" {
		return "No description"
	}
	return s
}

func methodOrDefault(s string) string {
	if s == "" {
		return "Not specified"
	}
	return s
}
