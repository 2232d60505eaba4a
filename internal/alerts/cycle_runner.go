package alerts

import (
	"context"
	"time"

	"duewatch/internal/db"
	"duewatch/internal/queue"
	"duewatch/internal/types"
)

// DBCycleRunner is the production CycleRunner. It opens one transaction per
// cycle through db.TxManager and binds the alert-state repository and the
// enqueuer to that transaction, so the reconciler's writes commit or roll
// back as a unit.
type DBCycleRunner struct {
	tx           *db.TxManager
	alertChannel types.ChannelType
	logger       types.Logger
}

// NewDBCycleRunner creates a DBCycleRunner. alertChannel is the fixed
// default channel system alerts are delivered on.
func NewDBCycleRunner(tx *db.TxManager, alertChannel types.ChannelType, logger types.Logger) *DBCycleRunner {
	if logger == nil {
		logger = types.NopLogger()
	}
	return &DBCycleRunner{
		tx:           tx,
		alertChannel: alertChannel,
		logger:       logger,
	}
}

// Run implements CycleRunner.
func (r *DBCycleRunner) Run(ctx context.Context, fn func(ctx context.Context, s Stores) error) error {
	return r.tx.RunInTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		stores := &txStores{
			states:       db.NewAlertStateRepository(tx),
			enqueuer:     queue.NewEnqueuer(db.NewQueueRepository(tx), r.logger),
			alertChannel: r.alertChannel,
		}
		return fn(ctx, stores)
	})
}

// txStores implements Stores against one open transaction.
type txStores struct {
	states       *db.AlertStateRepository
	enqueuer     *queue.Enqueuer
	alertChannel types.ChannelType
}

func (s *txStores) GetForUpdate(ctx context.Context, alertType string) (*types.AlertState, error) {
	return s.states.GetForUpdate(ctx, alertType)
}

func (s *txStores) CreateState(ctx context.Context, alertType string, triggeredAt time.Time) error {
	return s.states.Create(ctx, alertType, triggeredAt)
}

func (s *txStores) SetActive(ctx context.Context, alertType string, triggeredAt time.Time) error {
	return s.states.SetActive(ctx, alertType, triggeredAt)
}

func (s *txStores) ResolveActiveExcept(ctx context.Context, resolvedAt time.Time, keep []string) (int64, error) {
	return s.states.ResolveActiveExcept(ctx, resolvedAt, keep)
}

// EnqueueAlert creates the system notification for a triggered alert.
// System entries carry a nil tenant; the worker routes them to the
// operator's default destination. Immediate delivery: scheduled_for is the
// detection time.
func (s *txStores) EnqueueAlert(ctx context.Context, alert types.DetectedAlert) error {
	payload := types.Payload{
		Kind: types.PayloadSystemAlert,
		SystemAlert: &types.SystemAlert{
			AlertType:  alert.AlertType,
			Severity:   alert.Severity,
			Message:    alert.Message,
			Metrics:    alert.Metrics,
			DetectedAt: alert.DetectedAt,
		},
	}
	_, _, err := s.enqueuer.Enqueue(ctx, nil, s.alertChannel, payload, alert.DetectedAt)
	return err
}
