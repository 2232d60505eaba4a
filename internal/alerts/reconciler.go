package alerts

import (
	"context"
	"fmt"
	"time"

	"duewatch/internal/types"
)

// Stores bundles the transactional operations one reconciliation cycle
// performs. All methods run against the same transaction, so the cycle
// commits atomically: state writes and alert enqueues either all land or
// none do.
type Stores interface {
	// GetForUpdate locks the state row for an alert type, returning
	// (nil, nil) when the type has never been seen.
	GetForUpdate(ctx context.Context, alertType string) (*types.AlertState, error)

	// CreateState inserts the first active state row for an alert type.
	CreateState(ctx context.Context, alertType string, triggeredAt time.Time) error

	// SetActive marks an existing row active and updates last_triggered_at.
	SetActive(ctx context.Context, alertType string, triggeredAt time.Time) error

	// ResolveActiveExcept deactivates every active alert not listed in keep.
	ResolveActiveExcept(ctx context.Context, resolvedAt time.Time, keep []string) (int64, error)

	// EnqueueAlert creates the system notification for a newly triggered or
	// reactivated alert.
	EnqueueAlert(ctx context.Context, alert types.DetectedAlert) error
}

// CycleRunner executes one reconciliation cycle's mutations inside a single
// transaction. The production implementation wraps db.TxManager; tests
// supply an in-memory runner.
type CycleRunner interface {
	Run(ctx context.Context, fn func(ctx context.Context, s Stores) error) error
}

// Detector is the evaluator the reconciler consumes. Evaluate never returns
// an error; internal faults degrade to an empty detection set.
type Detector interface {
	Evaluate(ctx context.Context) []types.DetectedAlert
}

// Reconciler is the alert state machine. Each cycle it reconciles the
// detected alerts against persisted AlertState under per-row locks:
//
//	CASE A  first occurrence  -> create active state, enqueue notification
//	CASE B  still active      -> touch last_triggered_at only (anti-spam)
//	CASE C  no longer detected -> deactivate, record last_resolved_at
//	CASE D  reappeared         -> reactivate, enqueue notification
//
// Resolution (CASE C) runs once per cycle after all detections, over the set
// difference {active in storage} - {detected this cycle}. Resolution itself
// is not separately notified.
type Reconciler struct {
	detector Detector
	runner   CycleRunner
	clock    types.Clock
	logger   types.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(detector Detector, runner CycleRunner, clock types.Clock, logger types.Logger) *Reconciler {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = types.NopLogger()
	}
	return &Reconciler{
		detector: detector,
		runner:   runner,
		clock:    clock,
		logger:   logger,
	}
}

// RunCycle executes one evaluate-then-reconcile cycle. On any failure the
// whole cycle rolls back and the error is returned; the scheduler simply
// retries on the next interval tick, so partial state is never observable.
func (r *Reconciler) RunCycle(ctx context.Context) error {
	detected := r.detector.Evaluate(ctx)
	now := r.clock.Now()

	r.logger.Info("starting alert reconciliation cycle",
		"detected_count", len(detected),
	)

	err := r.runner.Run(ctx, func(ctx context.Context, s Stores) error {
		detectedTypes := make([]string, 0, len(detected))

		for _, alert := range detected {
			detectedTypes = append(detectedTypes, alert.AlertType)
			if err := r.processDetection(ctx, s, alert, now); err != nil {
				return err
			}
		}

		resolved, err := s.ResolveActiveExcept(ctx, now, detectedTypes)
		if err != nil {
			return fmt.Errorf("resolution pass: %w", err)
		}
		if resolved > 0 {
			r.logger.Info("alerts resolved", "count", resolved)
		}
		return nil
	})
	if err != nil {
		r.logger.Error("alert reconciliation cycle failed, rolled back",
			"error", err.Error(),
		)
		return err
	}

	r.logger.Info("alert reconciliation cycle completed")
	return nil
}

// processDetection applies CASE A, B, or D to a single detected alert under
// its row lock.
func (r *Reconciler) processDetection(ctx context.Context, s Stores, alert types.DetectedAlert, now time.Time) error {
	state, err := s.GetForUpdate(ctx, alert.AlertType)
	if err != nil {
		return fmt.Errorf("locking state for %s: %w", alert.AlertType, err)
	}

	switch {
	case state == nil:
		// CASE A: first occurrence.
		if err := s.CreateState(ctx, alert.AlertType, now); err != nil {
			return fmt.Errorf("creating state for %s: %w", alert.AlertType, err)
		}
		if err := s.EnqueueAlert(ctx, alert); err != nil {
			return fmt.Errorf("enqueueing notification for %s: %w", alert.AlertType, err)
		}
		r.logger.Info("first detection of alert, notification enqueued",
			"alert_type", alert.AlertType,
		)

	case !state.IsActive:
		// CASE D: reappearance after resolution. Same notification
		// treatment as a first occurrence.
		if err := s.SetActive(ctx, alert.AlertType, now); err != nil {
			return fmt.Errorf("reactivating %s: %w", alert.AlertType, err)
		}
		if err := s.EnqueueAlert(ctx, alert); err != nil {
			return fmt.Errorf("enqueueing notification for %s: %w", alert.AlertType, err)
		}
		r.logger.Warn("alert reappeared, notification enqueued",
			"alert_type", alert.AlertType,
		)

	default:
		// CASE B: still active. Track the detection but do not notify.
		if err := s.SetActive(ctx, alert.AlertType, now); err != nil {
			return fmt.Errorf("touching %s: %w", alert.AlertType, err)
		}
	}

	return nil
}
