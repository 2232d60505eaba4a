// Package alerts implements the engine's self-monitoring: a pure rule
// evaluator over queue metrics and the anti-spam state machine that
// reconciles detections against persisted alert state.
package alerts

import (
	"context"
	"fmt"
	"time"

	"duewatch/internal/types"
)

// Alert type identifiers. Stable strings: they key the alert_state table.
const (
	AlertFailedThreshold = "FAILED_THRESHOLD"
	AlertStuckQueue      = "STUCK_QUEUE"
)

// FailedCountThreshold is the number of failed queue entries at which the
// FAILED_THRESHOLD alert fires.
const FailedCountThreshold = 3

// StuckAge is how long a pending entry may sit past its scheduled_for before
// the STUCK_QUEUE alert considers it stuck. The comparison is strict: an
// entry aged exactly StuckAge is not yet stuck.
const StuckAge = 1 * time.Hour

// QueueMetrics defines the read-only queue statistics the evaluator rules
// query. Backed by db.QueueRepository in production.
type QueueMetrics interface {
	CountByStatus(ctx context.Context, status types.QueueStatus) (int, error)
	CountStuckPending(ctx context.Context, cutoff time.Time) (int, error)
}

// FaultRecorder surfaces evaluator-internal faults to telemetry, so the
// degrade-to-empty policy below stays diagnosable instead of silently eating
// detections.
type FaultRecorder interface {
	RecordEvaluatorFault(ctx context.Context)
}

// rule is one named alert condition: a metric query plus the detection
// predicate. New rules follow the same shape and are appended to the
// evaluator's rule table.
type rule func(ctx context.Context, e *Evaluator, now time.Time) (*types.DetectedAlert, error)

// Evaluator inspects queue metrics and reports detected alert conditions.
// It is pure with respect to the queue: read-only, no state mutation, no
// notification sends.
type Evaluator struct {
	metrics QueueMetrics
	faults  FaultRecorder
	clock   types.Clock
	logger  types.Logger
	rules   []rule
}

// NewEvaluator creates an Evaluator with the standard rule set.
func NewEvaluator(metrics QueueMetrics, faults FaultRecorder, clock types.Clock, logger types.Logger) *Evaluator {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = types.NopLogger()
	}
	return &Evaluator{
		metrics: metrics,
		faults:  faults,
		clock:   clock,
		logger:  logger,
		rules:   []rule{checkFailedThreshold, checkStuckQueue},
	}
}

// Evaluate runs every rule and returns the detected alerts. It never
// propagates an error: an internal fault is logged, counted via the
// FaultRecorder, and degrades the whole cycle to an empty result. A missed
// detection is preferred over crash-looping the monitor.
func (e *Evaluator) Evaluate(ctx context.Context) []types.DetectedAlert {
	now := e.clock.Now()

	var detected []types.DetectedAlert
	for _, r := range e.rules {
		alert, err := r(ctx, e, now)
		if err != nil {
			e.logger.Error("alert evaluation failed, degrading to empty result",
				"error", err.Error(),
			)
			if e.faults != nil {
				e.faults.RecordEvaluatorFault(ctx)
			}
			return nil
		}
		if alert != nil {
			detected = append(detected, *alert)
			e.logger.Info("alert condition detected",
				"alert_type", alert.AlertType,
				"severity", string(alert.Severity),
			)
		}
	}

	return detected
}

// checkFailedThreshold fires when the count of failed queue entries reaches
// FailedCountThreshold.
func checkFailedThreshold(ctx context.Context, e *Evaluator, now time.Time) (*types.DetectedAlert, error) {
	failedCount, err := e.metrics.CountByStatus(ctx, types.StatusFailed)
	if err != nil {
		return nil, fmt.Errorf("counting failed entries: %w", err)
	}

	if failedCount < FailedCountThreshold {
		return nil, nil
	}

	return &types.DetectedAlert{
		AlertType: AlertFailedThreshold,
		Severity:  types.SeverityCritical,
		Message: fmt.Sprintf("%d failed notifications detected (threshold: %d)",
			failedCount, FailedCountThreshold),
		Metrics: map[string]any{
			"failed_count": failedCount,
			"threshold":    FailedCountThreshold,
		},
		DetectedAt: now,
	}, nil
}

// checkStuckQueue fires when any pending entry has been past its
// scheduled_for for strictly more than StuckAge.
func checkStuckQueue(ctx context.Context, e *Evaluator, now time.Time) (*types.DetectedAlert, error) {
	cutoff := now.Add(-StuckAge)

	stuckCount, err := e.metrics.CountStuckPending(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("counting stuck entries: %w", err)
	}

	if stuckCount == 0 {
		return nil, nil
	}

	return &types.DetectedAlert{
		AlertType: AlertStuckQueue,
		Severity:  types.SeverityCritical,
		Message: fmt.Sprintf("%d pending notifications unprocessed for more than %d hour(s)",
			stuckCount, int(StuckAge.Hours())),
		Metrics: map[string]any{
			"stuck_count":      stuckCount,
			"threshold_hours":  int(StuckAge.Hours()),
			"oldest_scheduled": cutoff.Format(time.RFC3339),
		},
		DetectedAt: now,
	}, nil
}
