package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"duewatch/internal/types"
)

// PaymentRepository provides the read-only payment queries consumed by the
// Summary Builder. Payment writes belong to the CRUD surface, which is an
// external collaborator of this engine.
type PaymentRepository struct {
	db DBTX
}

// NewPaymentRepository creates a PaymentRepository backed by the given
// database connection (pool or transaction).
func NewPaymentRepository(db DBTX) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// ListPendingDue returns a tenant's pending payments whose due_date equals
// the given calendar date.
func (r *PaymentRepository) ListPendingDue(ctx context.Context, tenantID string, date time.Time) ([]types.Payment, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, tenant_id, description, amount, status, due_date,
		        autopay, paid_at, payment_method
		 FROM payments
		 WHERE tenant_id = $1 AND status = 'pending' AND due_date = $2::date
		 ORDER BY due_date, id`,
		tenantID,
		date,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list pending due payments", err)
	}
	defer rows.Close()

	return collectPayments(rows)
}

// ListAutopayPaidBetween returns a tenant's autopay payments whose paid_at
// falls within [start, end). The Summary Builder passes the day boundaries
// of the summary date in the operational time zone.
func (r *PaymentRepository) ListAutopayPaidBetween(ctx context.Context, tenantID string, start, end time.Time) ([]types.Payment, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, tenant_id, description, amount, status, due_date,
		        autopay, paid_at, payment_method
		 FROM payments
		 WHERE tenant_id = $1 AND status = 'paid' AND autopay = TRUE
		   AND paid_at >= $2 AND paid_at < $3
		 ORDER BY paid_at, id`,
		tenantID,
		start,
		end,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list autopay paid payments", err)
	}
	defer rows.Close()

	return collectPayments(rows)
}

func collectPayments(rows pgx.Rows) ([]types.Payment, error) {
	var results []types.Payment
	for rows.Next() {
		var (
			p           types.Payment
			status      string
			amount      decimal.Decimal
			description *string
			method      *string
		)
		err := rows.Scan(
			&p.ID,
			&p.TenantID,
			&description,
			&amount,
			&status,
			&p.DueDate,
			&p.Autopay,
			&p.PaidAt,
			&method,
		)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan payment row", err)
		}
		p.Amount = amount
		p.Status = types.PaymentStatus(status)
		if description != nil {
			p.Description = *description
		}
		if method != nil {
			p.PaymentMethod = *method
		}
		results = append(results, p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating payment rows", err)
	}
	return results, nil
}
