package worker

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"duewatch/internal/channels"
	"duewatch/internal/types"
)

var testNow = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type memQueue struct {
	entries map[string]*types.QueueEntry

	listErr    error
	retried    []string
	bulkResult int64
}

func newMemQueue(entries ...*types.QueueEntry) *memQueue {
	q := &memQueue{entries: make(map[string]*types.QueueEntry)}
	for _, e := range entries {
		q.entries[e.ID] = e
	}
	return q
}

func (q *memQueue) ListDue(ctx context.Context, now time.Time, limit int) ([]*types.QueueEntry, error) {
	if q.listErr != nil {
		return nil, q.listErr
	}
	var due []*types.QueueEntry
	for _, e := range q.entries {
		if e.Status == types.StatusPending && !e.ScheduledFor.After(now) {
			due = append(due, e)
		}
		if len(due) == limit {
			break
		}
	}
	return due, nil
}

func (q *memQueue) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	e := q.entries[id]
	e.Status = types.StatusSent
	at := sentAt
	e.SentAt = &at
	e.Error = nil
	return nil
}

func (q *memQueue) MarkFailed(ctx context.Context, id string, reason string) error {
	e := q.entries[id]
	e.Status = types.StatusFailed
	if len(reason) > types.MaxErrorLen {
		reason = reason[:types.MaxErrorLen]
	}
	e.Error = &reason
	return nil
}

func (q *memQueue) ResetForRetry(ctx context.Context, id string) error {
	q.retried = append(q.retried, id)
	return nil
}

func (q *memQueue) ResetFailedForRetry(ctx context.Context, maxRetries int) (int64, error) {
	return q.bulkResult, nil
}

type memSettings struct {
	byTenant map[string]*types.NotificationSettings
	err      error
}

func (s *memSettings) GetByTenant(ctx context.Context, tenantID string) (*types.NotificationSettings, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.byTenant[tenantID], nil
}

// fakeSender records sends and optionally fails on selected destinations.
type fakeSender struct {
	channel types.ChannelType
	sent    []string
	failOn  map[string]error
	block   bool
}

func (f *fakeSender) Type() types.ChannelType { return f.channel }

func (f *fakeSender) Send(ctx context.Context, payload types.Payload, destination string) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if err, ok := f.failOn[destination]; ok {
		return err
	}
	f.sent = append(f.sent, destination)
	return nil
}

type countingMetrics struct {
	outcomes map[string]int
}

func (m *countingMetrics) RecordDelivery(ctx context.Context, ch types.ChannelType, outcome string) {
	if m.outcomes == nil {
		m.outcomes = make(map[string]int)
	}
	m.outcomes[string(ch)+"/"+outcome]++
}

func alertPayload() types.Payload {
	return types.Payload{
		Kind: types.PayloadSystemAlert,
		SystemAlert: &types.SystemAlert{
			AlertType:  "FAILED_THRESHOLD",
			Severity:   types.SeverityCritical,
			Message:    "3 failed notifications detected (threshold: 3)",
			DetectedAt: testNow,
		},
	}
}

func summaryEntry(id, tenantID string, ch types.ChannelType) *types.QueueEntry {
	return &types.QueueEntry{
		ID:       id,
		TenantID: &tenantID,
		Channel:  ch,
		Payload: types.Payload{
			Kind: types.PayloadDailySummary,
			DailySummary: &types.DailySummary{
				SummaryDate: "2026-03-10",
				TenantID:    tenantID,
			},
		},
		Status:       types.StatusPending,
		ScheduledFor: testNow.Add(-time.Minute),
	}
}

func enabledSettings(tenantID string) *types.NotificationSettings {
	return &types.NotificationSettings{
		TenantID:         tenantID,
		TelegramEnabled:  true,
		TelegramChatID:   "chat-" + tenantID,
		EmailEnabled:     true,
		EmailTo:          tenantID + "@example.com",
		DailySummaryTime: "08:00",
	}
}

func newTestWorker(q *memQueue, s *memSettings, reg *channels.Registry, m DeliveryMetrics, cfg Config) *Worker {
	return New(q, s, reg, m, fixedClock{now: testNow}, types.NopLogger(), cfg)
}

func TestProcessDueEntries_OneFailureDoesNotAbortBatch(t *testing.T) {
	settings := &memSettings{byTenant: make(map[string]*types.NotificationSettings)}
	queue := newMemQueue()
	for i := 1; i <= 10; i++ {
		tenant := "t" + strconv.Itoa(i)
		queue.entries["e"+strconv.Itoa(i)] = summaryEntry("e"+strconv.Itoa(i), tenant, types.ChannelTelegram)
		settings.byTenant[tenant] = enabledSettings(tenant)
	}

	sender := &fakeSender{
		channel: types.ChannelTelegram,
		failOn:  map[string]error{"chat-t5": errors.New("telegram down")},
	}
	metrics := &countingMetrics{}
	w := newTestWorker(queue, settings, channels.NewRegistry(sender), metrics, Config{})

	report, err := w.ProcessDueEntries(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Processed != 10 || report.Sent != 9 || report.Failed != 1 {
		t.Errorf("unexpected report: %+v", report)
	}

	e5 := queue.entries["e5"]
	if e5.Status != types.StatusFailed {
		t.Errorf("expected e5 failed, got %s", e5.Status)
	}
	if e5.Error == nil || *e5.Error == "" {
		t.Error("expected failure reason stored on e5")
	}
	for i := 1; i <= 10; i++ {
		if i == 5 {
			continue
		}
		e := queue.entries["e"+strconv.Itoa(i)]
		if e.Status != types.StatusSent {
			t.Errorf("expected e%d sent, got %s", i, e.Status)
		}
		if e.SentAt == nil || !e.SentAt.Equal(testNow) {
			t.Errorf("expected e%d sent_at %s, got %v", i, testNow, e.SentAt)
		}
	}
	if metrics.outcomes["telegram/sent"] != 9 || metrics.outcomes["telegram/failed"] != 1 {
		t.Errorf("unexpected metrics: %v", metrics.outcomes)
	}
}

func TestProcessDueEntries_SkipsFutureEntries(t *testing.T) {
	future := summaryEntry("future", "t1", types.ChannelTelegram)
	future.ScheduledFor = testNow.Add(time.Hour)
	queue := newMemQueue(future)
	settings := &memSettings{byTenant: map[string]*types.NotificationSettings{"t1": enabledSettings("t1")}}

	w := newTestWorker(queue, settings, channels.NewRegistry(&fakeSender{channel: types.ChannelTelegram}), nil, Config{})
	report, err := w.ProcessDueEntries(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Processed != 0 {
		t.Errorf("future entry must not be processed, report: %+v", report)
	}
	if queue.entries["future"].Status != types.StatusPending {
		t.Error("future entry must stay pending")
	}
}

func TestProcessDueEntries_MissingSettingsIsTerminal(t *testing.T) {
	queue := newMemQueue(summaryEntry("e1", "ghost", types.ChannelTelegram))
	settings := &memSettings{byTenant: map[string]*types.NotificationSettings{}}

	w := newTestWorker(queue, settings, channels.NewRegistry(&fakeSender{channel: types.ChannelTelegram}), nil, Config{})
	report, err := w.ProcessDueEntries(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Failed != 1 {
		t.Fatalf("expected 1 failure, report: %+v", report)
	}

	e := queue.entries["e1"]
	if e.Status != types.StatusFailed {
		t.Fatalf("expected failed, got %s", e.Status)
	}
	if e.Error == nil {
		t.Fatal("expected stored reason")
	}
}

func TestProcessDueEntries_DisabledChannelIsTerminal(t *testing.T) {
	queue := newMemQueue(summaryEntry("e1", "t1", types.ChannelEmail))
	s := enabledSettings("t1")
	s.EmailEnabled = false
	settings := &memSettings{byTenant: map[string]*types.NotificationSettings{"t1": s}}

	sender := &fakeSender{channel: types.ChannelEmail}
	w := newTestWorker(queue, settings, channels.NewRegistry(sender), nil, Config{})
	if _, err := w.ProcessDueEntries(context.Background()); err != nil {
		t.Fatal(err)
	}

	if queue.entries["e1"].Status != types.StatusFailed {
		t.Error("disabled channel must mark entry failed")
	}
	if len(sender.sent) != 0 {
		t.Error("nothing must be sent on a disabled channel")
	}
}

func TestProcessDueEntries_UnknownChannelIsTerminal(t *testing.T) {
	e := summaryEntry("e1", "t1", types.ChannelType("pager"))
	queue := newMemQueue(e)
	settings := &memSettings{byTenant: map[string]*types.NotificationSettings{"t1": enabledSettings("t1")}}

	w := newTestWorker(queue, settings, channels.NewRegistry(), nil, Config{})
	if _, err := w.ProcessDueEntries(context.Background()); err != nil {
		t.Fatal(err)
	}
	if queue.entries["e1"].Status != types.StatusFailed {
		t.Error("unknown channel must mark entry failed")
	}
}

func TestProcessDueEntries_SystemAlertUsesOperatorDestination(t *testing.T) {
	entry := &types.QueueEntry{
		ID:           "a1",
		Channel:      types.ChannelTelegram,
		Payload:      alertPayload(),
		Status:       types.StatusPending,
		ScheduledFor: testNow.Add(-time.Minute),
	}
	queue := newMemQueue(entry)
	sender := &fakeSender{channel: types.ChannelTelegram}

	w := newTestWorker(queue, &memSettings{}, channels.NewRegistry(sender), nil, Config{
		SystemDestinations: map[types.ChannelType]string{types.ChannelTelegram: "ops-chat"},
	})
	report, err := w.ProcessDueEntries(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Sent != 1 {
		t.Fatalf("expected system alert sent, report: %+v", report)
	}
	if len(sender.sent) != 1 || sender.sent[0] != "ops-chat" {
		t.Errorf("expected delivery to ops-chat, got %v", sender.sent)
	}
}

func TestProcessDueEntries_SystemAlertWithoutDestinationFails(t *testing.T) {
	entry := &types.QueueEntry{
		ID:           "a1",
		Channel:      types.ChannelTelegram,
		Payload:      alertPayload(),
		Status:       types.StatusPending,
		ScheduledFor: testNow.Add(-time.Minute),
	}
	queue := newMemQueue(entry)

	w := newTestWorker(queue, &memSettings{}, channels.NewRegistry(&fakeSender{channel: types.ChannelTelegram}), nil, Config{})
	if _, err := w.ProcessDueEntries(context.Background()); err != nil {
		t.Fatal(err)
	}
	if queue.entries["a1"].Status != types.StatusFailed {
		t.Error("system alert without a destination must fail terminally")
	}
}

func TestProcessDueEntries_SendTimeoutBoundsHungProvider(t *testing.T) {
	queue := newMemQueue(summaryEntry("e1", "t1", types.ChannelTelegram))
	settings := &memSettings{byTenant: map[string]*types.NotificationSettings{"t1": enabledSettings("t1")}}
	sender := &fakeSender{channel: types.ChannelTelegram, block: true}

	w := newTestWorker(queue, settings, channels.NewRegistry(sender), nil, Config{
		SendTimeout: 10 * time.Millisecond,
	})

	done := make(chan struct{})
	var report types.ProcessingReport
	go func() {
		report, _ = w.ProcessDueEntries(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker hung on a blocked provider")
	}
	if report.Failed != 1 {
		t.Errorf("expected timeout failure, report: %+v", report)
	}
}

func TestProcessDueEntries_ListErrorIsBatchLevel(t *testing.T) {
	queue := newMemQueue()
	queue.listErr = errors.New("db gone")

	w := newTestWorker(queue, &memSettings{}, channels.NewRegistry(), nil, Config{})
	if _, err := w.ProcessDueEntries(context.Background()); err == nil {
		t.Fatal("expected batch-level error")
	}
}

func TestRetryAllFailed_ReturnsCount(t *testing.T) {
	queue := newMemQueue()
	queue.bulkResult = 4

	w := newTestWorker(queue, &memSettings{}, channels.NewRegistry(), nil, Config{})
	n, err := w.RetryAllFailed(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Errorf("expected 4 reset entries, got %d", n)
	}
}

func TestRetryEntry_DelegatesToStore(t *testing.T) {
	queue := newMemQueue()
	w := newTestWorker(queue, &memSettings{}, channels.NewRegistry(), nil, Config{})

	if err := w.RetryEntry(context.Background(), "e9"); err != nil {
		t.Fatal(err)
	}
	if len(queue.retried) != 1 || queue.retried[0] != "e9" {
		t.Errorf("expected retry of e9, got %v", queue.retried)
	}
}
