// Package scheduler owns the process-wide timer registry: one daily cron
// trigger per tenant for the summary pipeline, one fixed-interval trigger
// for alert monitoring, and one for draining the delivery queue. The
// registry is in-memory and rebuilt from persisted settings on every start.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"duewatch/internal/types"
)

const (
	// AlertCheckInterval is how often the alert reconciliation cycle runs.
	AlertCheckInterval = 10 * time.Minute

	// DefaultWorkerInterval is how often due queue entries are drained.
	DefaultWorkerInterval = time.Minute

	// jobTimeout bounds a single job run. Jobs are not cancelled mid-flight
	// on Stop; this only guards against a wedged run holding its slot.
	jobTimeout = 5 * time.Minute
)

// SettingsLister loads every tenant's notification settings at startup.
type SettingsLister interface {
	ListAll(ctx context.Context) ([]types.NotificationSettings, error)
}

// AlertCycle runs one alert reconciliation cycle.
type AlertCycle interface {
	RunCycle(ctx context.Context) error
}

// QueueDrainer processes due queue entries.
type QueueDrainer interface {
	ProcessDueEntries(ctx context.Context) (types.ProcessingReport, error)
}

// Scheduler wires tenant triggers and system jobs onto one cron runner.
type Scheduler struct {
	cron     *cron.Cron
	daily    *DailySummaryJob
	alerts   AlertCycle
	worker   QueueDrainer
	settings SettingsLister
	logger   types.Logger

	workerInterval time.Duration

	mu      sync.Mutex
	tenants map[string]cron.EntryID
	started bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithWorkerInterval overrides how often the queue drain job runs.
func WithWorkerInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.workerInterval = d
		}
	}
}

// New creates a Scheduler running in the given operational time zone. All
// tenant daily times are interpreted in that zone.
func New(
	loc *time.Location,
	daily *DailySummaryJob,
	alerts AlertCycle,
	worker QueueDrainer,
	settings SettingsLister,
	logger types.Logger,
	opts ...Option,
) *Scheduler {
	s := &Scheduler{
		cron:           cron.New(cron.WithLocation(loc)),
		daily:          daily,
		alerts:         alerts,
		worker:         worker,
		settings:       settings,
		logger:         logger,
		workerInterval: DefaultWorkerInterval,
		tenants:        make(map[string]cron.EntryID),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start registers the system jobs, rebuilds the per-tenant trigger registry
// from persisted settings, and starts the cron runner. Tenants without any
// enabled channel get no trigger.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	if _, err := s.cron.AddFunc("@every "+AlertCheckInterval.String(), s.runAlertCycle); err != nil {
		return fmt.Errorf("registering alert monitoring job: %w", err)
	}
	if _, err := s.cron.AddFunc("@every "+s.workerInterval.String(), s.runWorker); err != nil {
		return fmt.Errorf("registering queue worker job: %w", err)
	}

	all, err := s.settings.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("loading tenant settings: %w", err)
	}
	registered := 0
	for _, st := range all {
		if !st.AnyChannelEnabled() {
			continue
		}
		if err := s.RegisterTenant(st.TenantID, st.DailySummaryTime); err != nil {
			s.logger.Error("skipping tenant with invalid daily time",
				"tenant_id", st.TenantID, "daily_time", st.DailySummaryTime, "error", err)
			continue
		}
		registered++
	}

	s.cron.Start()
	s.logger.Info("scheduler started",
		"tenants", registered,
		"alert_interval", AlertCheckInterval.String(),
		"worker_interval", s.workerInterval.String(),
	)
	return nil
}

// Stop cancels all triggers and blocks until in-flight jobs return.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

// RegisterTenant installs the tenant's daily summary trigger at the given
// "HH:MM" time, atomically replacing any existing trigger for that tenant.
// Two triggers for the same tenant never coexist.
func (s *Scheduler) RegisterTenant(tenantID, dailyTime string) error {
	spec, err := cronSpecForDailyTime(dailyTime)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Remove before add: the lock is held across both, and removing first
	// guarantees no instant at which two triggers for the tenant coexist.
	if old, ok := s.tenants[tenantID]; ok {
		s.cron.Remove(old)
		delete(s.tenants, tenantID)
	}
	id, err := s.cron.AddFunc(spec, func() { s.runDaily(tenantID) })
	if err != nil {
		return fmt.Errorf("registering daily trigger for tenant %s: %w", tenantID, err)
	}
	s.tenants[tenantID] = id

	s.logger.Info("tenant daily trigger registered", "tenant_id", tenantID, "daily_time", dailyTime)
	return nil
}

// UnregisterTenant removes the tenant's daily trigger, if any.
func (s *Scheduler) UnregisterTenant(tenantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.tenants[tenantID]; ok {
		s.cron.Remove(id)
		delete(s.tenants, tenantID)
		s.logger.Info("tenant daily trigger removed", "tenant_id", tenantID)
	}
}

// RegisteredTenants returns the tenant IDs with an installed daily trigger.
func (s *Scheduler) RegisteredTenants() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.tenants))
	for id := range s.tenants {
		ids = append(ids, id)
	}
	return ids
}

func (s *Scheduler) runDaily(tenantID string) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if err := s.daily.Run(ctx, tenantID); err != nil {
		s.logger.Error("daily summary job failed", "tenant_id", tenantID, "error", err)
	}
}

func (s *Scheduler) runAlertCycle() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if err := s.alerts.RunCycle(ctx); err != nil {
		// Rolled back; the next interval retries from clean state.
		s.logger.Error("alert reconciliation cycle failed", "error", err)
	}
}

func (s *Scheduler) runWorker() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if _, err := s.worker.ProcessDueEntries(ctx); err != nil {
		s.logger.Error("queue processing run failed", "error", err)
	}
}

// parseDailyTime validates an "HH:MM" daily time and returns its components.
func parseDailyTime(dailyTime string) (hour, minute int, err error) {
	parts := strings.SplitN(dailyTime, ":", 2)
	if len(parts) != 2 {
		return 0, 0, types.NewAppError(types.ErrCodeValidationTime,
			fmt.Sprintf("daily time %q is not in HH:MM format", dailyTime), nil)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, types.NewAppError(types.ErrCodeValidationTime,
			fmt.Sprintf("daily time %q has an invalid hour", dailyTime), nil)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, types.NewAppError(types.ErrCodeValidationTime,
			fmt.Sprintf("daily time %q has an invalid minute", dailyTime), nil)
	}
	return hour, minute, nil
}

// cronSpecForDailyTime converts an "HH:MM" daily time into a five-field
// cron spec.
func cronSpecForDailyTime(dailyTime string) (string, error) {
	hour, minute, err := parseDailyTime(dailyTime)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}
