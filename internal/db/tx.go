package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"duewatch/internal/types"
)

// TxManager runs functions inside a single database transaction. The alert
// reconciliation cycle uses it so that every state write and enqueue in one
// cycle commits atomically: any failure rolls the whole cycle back.
type TxManager struct {
	pool *pgxpool.Pool
}

// NewTxManager creates a TxManager over the given connection pool.
func NewTxManager(pool *pgxpool.Pool) *TxManager {
	return &TxManager{pool: pool}
}

// RunInTx begins a transaction, invokes fn with the transaction as DBTX, and
// commits on success or rolls back on error/panic. The returned error is the
// fn error, or a wrapped database error from begin/commit.
func (m *TxManager) RunInTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to begin transaction", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err = fn(ctx, tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to commit transaction", err)
	}
	return nil
}
