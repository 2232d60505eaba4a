package summary

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"duewatch/internal/types"
)

type fakePaymentReader struct {
	pending    []types.Payment
	paid       []types.Payment
	pendingErr error
	paidErr    error

	gotStart time.Time
	gotEnd   time.Time
}

func (f *fakePaymentReader) ListPendingDue(ctx context.Context, tenantID string, date time.Time) ([]types.Payment, error) {
	return f.pending, f.pendingErr
}

func (f *fakePaymentReader) ListAutopayPaidBetween(ctx context.Context, tenantID string, start, end time.Time) ([]types.Payment, error) {
	f.gotStart, f.gotEnd = start, end
	return f.paid, f.paidErr
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestBuilder(reader *fakePaymentReader) *Builder {
	loc, _ := time.LoadLocation("America/Santiago")
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	return NewBuilder(reader, loc, fixedClock{now: now}, types.NopLogger())
}

func TestBuild_EmptyDayReturnsNil(t *testing.T) {
	b := newTestBuilder(&fakePaymentReader{})

	s, err := b.Build(context.Background(), "tenant-1", time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != nil {
		t.Fatalf("expected nil summary for empty day, got %+v", s)
	}
}

func TestBuild_ReadErrorPropagates(t *testing.T) {
	readErr := errors.New("connection reset")
	b := newTestBuilder(&fakePaymentReader{pendingErr: readErr})

	s, err := b.Build(context.Background(), "tenant-1", time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, readErr) {
		t.Errorf("expected wrapped read error, got %v", err)
	}
	if s != nil {
		t.Errorf("expected nil summary on error, got %+v", s)
	}
}

func TestBuild_DecimalTotals(t *testing.T) {
	// 0.1 + 0.2 famously != 0.3 in binary floats; decimals must sum exactly.
	reader := &fakePaymentReader{
		pending: []types.Payment{
			{ID: "p1", Description: "Hosting", Amount: dec("0.1"), DueDate: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)},
			{ID: "p2", Description: "Electricity", Amount: dec("0.2"), DueDate: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)},
		},
	}
	b := newTestBuilder(reader)

	s, err := b.Build(context.Background(), "tenant-1", time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s == nil {
		t.Fatal("expected summary, got nil")
	}
	if !s.Pending.TotalAmount.Equal(dec("0.3")) {
		t.Errorf("expected pending total 0.3, got %s", s.Pending.TotalAmount)
	}
	if s.Pending.Count != 2 {
		t.Errorf("expected 2 pending items, got %d", s.Pending.Count)
	}
	if s.PaidToday.Count != 0 {
		t.Errorf("expected 0 paid items, got %d", s.PaidToday.Count)
	}
}

func TestBuild_PaidWindowCoversLocalDay(t *testing.T) {
	paidAt := time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)
	reader := &fakePaymentReader{
		paid: []types.Payment{
			{ID: "p3", Amount: dec("15000"), Status: types.PaymentPaid, Autopay: true, PaidAt: &paidAt},
		},
	}
	b := newTestBuilder(reader)

	s, err := b.Build(context.Background(), "tenant-1", time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s == nil {
		t.Fatal("expected summary, got nil")
	}

	// The query window must be exactly one local day, half-open.
	if got := reader.gotEnd.Sub(reader.gotStart); got != 24*time.Hour {
		t.Errorf("expected 24h window, got %s", got)
	}
	if s.PaidToday.Count != 1 {
		t.Errorf("expected 1 paid item, got %d", s.PaidToday.Count)
	}
	if !s.PaidToday.TotalAmount.Equal(dec("15000")) {
		t.Errorf("expected paid total 15000, got %s", s.PaidToday.TotalAmount)
	}
	// Missing description and method fall back to placeholders.
	if s.PaidToday.Items[0].Description != "No description" {
		t.Errorf("unexpected description: %q", s.PaidToday.Items[0].Description)
	}
}

func TestBuild_SummaryDateFormat(t *testing.T) {
	reader := &fakePaymentReader{
		pending: []types.Payment{
			{ID: "p1", Amount: dec("100"), DueDate: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)},
		},
	}
	b := newTestBuilder(reader)

	s, err := b.Build(context.Background(), "tenant-1", time.Date(2026, 3, 10, 18, 45, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.SummaryDate != "2026-03-10" {
		t.Errorf("expected summary date 2026-03-10, got %s", s.SummaryDate)
	}
	if s.TenantID != "tenant-1" {
		t.Errorf("expected tenant-1, got %s", s.TenantID)
	}
}
