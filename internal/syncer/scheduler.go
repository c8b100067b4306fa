package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/the-data-sherpa/vanguard-sub000/internal/observability"
)

// MaintenanceStore is the bulk-maintenance side of the persistence
// gateway used by the medium and daily cadences.
type MaintenanceStore interface {
	// CloseStaleIncidents closes active incidents received before the
	// cutoff, stamping closedAt as the close time.
	CloseStaleIncidents(ctx context.Context, cutoff, closedAt time.Time) (int64, error)
	ArchiveClosedIncidents(ctx context.Context, closedBefore time.Time) (int64, error)
	DeleteArchivedIncidents(ctx context.Context, receivedBefore time.Time) (int64, error)
	DeleteExpiredAlerts(ctx context.Context, updatedBefore time.Time) (int64, error)
	DeleteEmptyGroups(ctx context.Context) (int64, error)
	ExpireAllAlertsPast(ctx context.Context, now time.Time) (int64, error)
}

// SchedulerOptions configure the three cadences and the maintenance
// windows they enforce.
type SchedulerOptions struct {
	FastInterval   time.Duration // incident + weather sync
	MediumInterval time.Duration // staleness sweep
	DailyInterval  time.Duration // retention

	StaleAfter         time.Duration // active incidents older than this are closed
	ArchiveClosedAfter time.Duration
	IncidentRetention  time.Duration
	AlertRetention     time.Duration
}

func (o SchedulerOptions) withDefaults() SchedulerOptions {
	if o.FastInterval <= 0 {
		o.FastInterval = 2 * time.Minute
	}
	if o.MediumInterval <= 0 {
		o.MediumInterval = 15 * time.Minute
	}
	if o.DailyInterval <= 0 {
		o.DailyInterval = 24 * time.Hour
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = 2 * time.Hour
	}
	if o.ArchiveClosedAfter <= 0 {
		o.ArchiveClosedAfter = 24 * time.Hour
	}
	if o.IncidentRetention <= 0 {
		o.IncidentRetention = 30 * 24 * time.Hour
	}
	if o.AlertRetention <= 0 {
		o.AlertRetention = 7 * 24 * time.Hour
	}
	return o
}

// Scheduler runs the syncer on three independent cadences until its
// context is cancelled. Ticks on one cadence never block the others.
type Scheduler struct {
	syncer      *Syncer
	maintenance MaintenanceStore
	logger      *slog.Logger
	metrics     *observability.Metrics
	clock       clockwork.Clock
	opts        SchedulerOptions
}

func NewScheduler(syncer *Syncer, maintenance MaintenanceStore, logger *slog.Logger,
	metrics *observability.Metrics, clk clockwork.Clock, opts SchedulerOptions) *Scheduler {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Scheduler{
		syncer:      syncer,
		maintenance: maintenance,
		logger:      logger,
		metrics:     metrics,
		clock:       clk,
		opts:        opts.withDefaults(),
	}
}

// Run blocks until ctx is cancelled. One tick of every cadence runs
// immediately on start so a restart never waits a full interval.
func (s *Scheduler) Run(ctx context.Context) {
	s.metrics.SchedulerRunning.Set(1)
	defer s.metrics.SchedulerRunning.Set(0)

	s.logger.Info("scheduler starting",
		"fast", s.opts.FastInterval, "medium", s.opts.MediumInterval, "daily", s.opts.DailyInterval)

	done := make(chan struct{}, 3)
	go func() { s.loop(ctx, "fast", s.opts.FastInterval, s.runFast); done <- struct{}{} }()
	go func() { s.loop(ctx, "medium", s.opts.MediumInterval, s.runMedium); done <- struct{}{} }()
	go func() { s.loop(ctx, "daily", s.opts.DailyInterval, s.runDaily); done <- struct{}{} }()

	for i := 0; i < 3; i++ {
		<-done
	}
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, cadence string, interval time.Duration, tick func(context.Context)) {
	run := func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("tick panicked", "cadence", cadence, "panic", r)
			}
		}()
		start := s.clock.Now()
		tick(ctx)
		s.metrics.TickDuration.WithLabelValues(cadence).Observe(s.clock.Now().Sub(start).Seconds())
	}

	run()
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			run()
		}
	}
}

func (s *Scheduler) runFast(ctx context.Context) {
	s.syncer.RunTick(ctx)
}

// runMedium is the staleness sweep: feeds stop mentioning a call once it
// clears, so anything still active well past its received time is closed
// administratively. Alerts past their end time are expired the same way.
func (s *Scheduler) runMedium(ctx context.Context) {
	now := s.clock.Now()
	res := MaintenanceResult{Start: now}

	closed, err := s.maintenance.CloseStaleIncidents(ctx, now.Add(-s.opts.StaleAfter), now)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("close stale incidents: %v", err))
		s.logger.Error("staleness sweep failed", "error", err)
	}
	res.ClosedStale = closed

	expired, err := s.maintenance.ExpireAllAlertsPast(ctx, now)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("expire alerts: %v", err))
		s.logger.Error("alert expiry sweep failed", "error", err)
	}
	res.ExpiredAlerts = expired

	res.Duration = s.clock.Now().Sub(now)
	s.logger.Info("staleness sweep finished",
		"closed", res.ClosedStale, "expired_alerts", res.ExpiredAlerts, "errors", len(res.Errors))
}

// runDaily is retention: archive closed incidents, then delete archived
// incidents, expired alerts, and empty merge groups past their windows.
func (s *Scheduler) runDaily(ctx context.Context) {
	now := s.clock.Now()
	res := MaintenanceResult{Start: now}

	steps := []struct {
		name string
		run  func() (int64, error)
		dst  *int64
	}{
		{"archive closed incidents", func() (int64, error) {
			return s.maintenance.ArchiveClosedIncidents(ctx, now.Add(-s.opts.ArchiveClosedAfter))
		}, &res.ArchivedClosed},
		{"delete archived incidents", func() (int64, error) {
			return s.maintenance.DeleteArchivedIncidents(ctx, now.Add(-s.opts.IncidentRetention))
		}, &res.DeletedIncidents},
		{"delete expired alerts", func() (int64, error) {
			return s.maintenance.DeleteExpiredAlerts(ctx, now.Add(-s.opts.AlertRetention))
		}, &res.DeletedAlerts},
		{"delete empty groups", func() (int64, error) {
			return s.maintenance.DeleteEmptyGroups(ctx)
		}, &res.DeletedGroups},
	}
	for _, step := range steps {
		n, err := step.run()
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", step.name, err))
			s.logger.Error("retention step failed", "step", step.name, "error", err)
			continue
		}
		*step.dst = n
	}

	res.Duration = s.clock.Now().Sub(now)
	s.logger.Info("retention finished",
		"archived", res.ArchivedClosed,
		"deleted_incidents", res.DeletedIncidents,
		"deleted_alerts", res.DeletedAlerts,
		"deleted_groups", res.DeletedGroups,
		"errors", len(res.Errors))
}
