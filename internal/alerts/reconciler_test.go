package alerts

import (
	"context"
	"errors"
	"testing"
	"time"

	"duewatch/internal/types"
)

// memStores is an in-memory Stores with snapshot/rollback semantics so the
// runner below can emulate transactional atomicity.
type memStores struct {
	states   map[string]*types.AlertState
	enqueued []types.DetectedAlert

	enqueueErr error
	createErr  error
}

func newMemStores() *memStores {
	return &memStores{states: make(map[string]*types.AlertState)}
}

func (s *memStores) GetForUpdate(ctx context.Context, alertType string) (*types.AlertState, error) {
	st, ok := s.states[alertType]
	if !ok {
		return nil, nil
	}
	copied := *st
	return &copied, nil
}

func (s *memStores) CreateState(ctx context.Context, alertType string, triggeredAt time.Time) error {
	if s.createErr != nil {
		return s.createErr
	}
	at := triggeredAt
	s.states[alertType] = &types.AlertState{
		AlertType:       alertType,
		IsActive:        true,
		LastTriggeredAt: &at,
	}
	return nil
}

func (s *memStores) SetActive(ctx context.Context, alertType string, triggeredAt time.Time) error {
	st := s.states[alertType]
	at := triggeredAt
	st.IsActive = true
	st.LastTriggeredAt = &at
	return nil
}

func (s *memStores) ResolveActiveExcept(ctx context.Context, resolvedAt time.Time, keep []string) (int64, error) {
	kept := make(map[string]bool, len(keep))
	for _, k := range keep {
		kept[k] = true
	}
	var n int64
	for _, st := range s.states {
		if st.IsActive && !kept[st.AlertType] {
			at := resolvedAt
			st.IsActive = false
			st.LastResolvedAt = &at
			n++
		}
	}
	return n, nil
}

func (s *memStores) EnqueueAlert(ctx context.Context, alert types.DetectedAlert) error {
	if s.enqueueErr != nil {
		return s.enqueueErr
	}
	s.enqueued = append(s.enqueued, alert)
	return nil
}

// memRunner applies fn against a deep copy and only publishes the result on
// success, mirroring the commit/rollback behavior of the real runner.
type memRunner struct {
	stores *memStores
}

func (r *memRunner) Run(ctx context.Context, fn func(ctx context.Context, s Stores) error) error {
	work := &memStores{
		states:     make(map[string]*types.AlertState, len(r.stores.states)),
		enqueued:   append([]types.DetectedAlert(nil), r.stores.enqueued...),
		enqueueErr: r.stores.enqueueErr,
		createErr:  r.stores.createErr,
	}
	for k, v := range r.stores.states {
		copied := *v
		work.states[k] = &copied
	}

	if err := fn(ctx, work); err != nil {
		return err
	}

	r.stores.states = work.states
	r.stores.enqueued = work.enqueued
	return nil
}

// staticDetector returns a fixed detection set.
type staticDetector struct {
	alerts []types.DetectedAlert
}

func (d *staticDetector) Evaluate(ctx context.Context) []types.DetectedAlert {
	return d.alerts
}

func failedAlert() types.DetectedAlert {
	return types.DetectedAlert{
		AlertType:  AlertFailedThreshold,
		Severity:   types.SeverityCritical,
		Message:    "3 failed notifications detected (threshold: 3)",
		DetectedAt: testNow,
	}
}

func newTestReconciler(detector Detector, stores *memStores, now time.Time) *Reconciler {
	return NewReconciler(detector, &memRunner{stores: stores}, fixedClock{now: now}, types.NopLogger())
}

func TestRunCycle_CaseA_FirstOccurrence(t *testing.T) {
	stores := newMemStores()
	r := newTestReconciler(&staticDetector{alerts: []types.DetectedAlert{failedAlert()}}, stores, testNow)

	if err := r.RunCycle(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	st := stores.states[AlertFailedThreshold]
	if st == nil {
		t.Fatal("expected alert state to be created")
	}
	if !st.IsActive {
		t.Error("expected state active")
	}
	if st.LastTriggeredAt == nil || !st.LastTriggeredAt.Equal(testNow) {
		t.Errorf("expected last_triggered_at %s, got %v", testNow, st.LastTriggeredAt)
	}
	if len(stores.enqueued) != 1 {
		t.Fatalf("expected exactly 1 enqueued notification, got %d", len(stores.enqueued))
	}
}

func TestRunCycle_CaseB_ActiveAlertSuppressed(t *testing.T) {
	stores := newMemStores()
	detector := &staticDetector{alerts: []types.DetectedAlert{failedAlert()}}

	r := newTestReconciler(detector, stores, testNow)
	if err := r.RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Second consecutive cycle, same alert still detected.
	later := testNow.Add(10 * time.Minute)
	r2 := newTestReconciler(detector, stores, later)
	if err := r2.RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(stores.enqueued) != 1 {
		t.Errorf("anti-spam violated: expected 1 enqueued notification, got %d", len(stores.enqueued))
	}
	st := stores.states[AlertFailedThreshold]
	if st.LastTriggeredAt == nil || !st.LastTriggeredAt.Equal(later) {
		t.Errorf("expected last_triggered_at updated to %s, got %v", later, st.LastTriggeredAt)
	}
}

func TestRunCycle_CaseC_Resolution(t *testing.T) {
	stores := newMemStores()

	r := newTestReconciler(&staticDetector{alerts: []types.DetectedAlert{failedAlert()}}, stores, testNow)
	if err := r.RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Next cycle: nothing detected.
	later := testNow.Add(10 * time.Minute)
	r2 := newTestReconciler(&staticDetector{}, stores, later)
	if err := r2.RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}

	st := stores.states[AlertFailedThreshold]
	if st.IsActive {
		t.Error("expected state deactivated")
	}
	if st.LastResolvedAt == nil || !st.LastResolvedAt.Equal(later) {
		t.Errorf("expected last_resolved_at %s, got %v", later, st.LastResolvedAt)
	}
	// Resolution is silent: no new notification.
	if len(stores.enqueued) != 1 {
		t.Errorf("expected no new notifications on resolution, got %d total", len(stores.enqueued))
	}
}

func TestRunCycle_CaseD_Reappearance(t *testing.T) {
	stores := newMemStores()

	// Trigger, resolve, then trigger again.
	r := newTestReconciler(&staticDetector{alerts: []types.DetectedAlert{failedAlert()}}, stores, testNow)
	if err := r.RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	r2 := newTestReconciler(&staticDetector{}, stores, testNow.Add(10*time.Minute))
	if err := r2.RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}

	reappeared := testNow.Add(20 * time.Minute)
	r3 := newTestReconciler(&staticDetector{alerts: []types.DetectedAlert{failedAlert()}}, stores, reappeared)
	if err := r3.RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}

	st := stores.states[AlertFailedThreshold]
	if !st.IsActive {
		t.Error("expected state reactivated")
	}
	if st.LastTriggeredAt == nil || !st.LastTriggeredAt.Equal(reappeared) {
		t.Errorf("expected last_triggered_at %s, got %v", reappeared, st.LastTriggeredAt)
	}
	if len(stores.enqueued) != 2 {
		t.Errorf("reappearance must enqueue a fresh notification: expected 2 total, got %d", len(stores.enqueued))
	}
}

func TestRunCycle_EnqueueFailureRollsBackWholeCycle(t *testing.T) {
	stores := newMemStores()
	stores.enqueueErr = errors.New("insert failed")

	r := newTestReconciler(&staticDetector{alerts: []types.DetectedAlert{failedAlert()}}, stores, testNow)
	if err := r.RunCycle(context.Background()); err == nil {
		t.Fatal("expected cycle error")
	}

	// Partial state must never be observable: no state row, no notification.
	if _, ok := stores.states[AlertFailedThreshold]; ok {
		t.Error("alert state must not survive a rolled-back cycle")
	}
	if len(stores.enqueued) != 0 {
		t.Errorf("expected no enqueued notifications, got %d", len(stores.enqueued))
	}
}

func TestRunCycle_TwoAlertsOneResolves(t *testing.T) {
	stores := newMemStores()
	stuck := types.DetectedAlert{
		AlertType:  AlertStuckQueue,
		Severity:   types.SeverityCritical,
		Message:    "2 pending notifications unprocessed for more than 1 hour(s)",
		DetectedAt: testNow,
	}

	r := newTestReconciler(&staticDetector{alerts: []types.DetectedAlert{failedAlert(), stuck}}, stores, testNow)
	if err := r.RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(stores.enqueued) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(stores.enqueued))
	}

	// Next cycle only the stuck alert persists.
	later := testNow.Add(10 * time.Minute)
	r2 := newTestReconciler(&staticDetector{alerts: []types.DetectedAlert{stuck}}, stores, later)
	if err := r2.RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}

	if stores.states[AlertFailedThreshold].IsActive {
		t.Error("FAILED_THRESHOLD should be resolved")
	}
	if !stores.states[AlertStuckQueue].IsActive {
		t.Error("STUCK_QUEUE should remain active")
	}
	if len(stores.enqueued) != 2 {
		t.Errorf("no new notifications expected, got %d total", len(stores.enqueued))
	}
}
