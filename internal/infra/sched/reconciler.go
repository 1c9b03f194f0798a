// File: internal/infra/sched/reconciler.go
package sched

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"telegram-group-access/internal/config"
	"telegram-group-access/internal/infra/metrics"
	"telegram-group-access/internal/usecase"
)

// Job names, shared with metrics labels and the admin trigger endpoints.
const (
	JobSweep    = "expiry_sweep"
	JobAudit    = "unpaid_audit"
	JobPoll     = "payment_poll"
	JobRemind3D = "reminder_3d"
	JobRemind1D = "reminder_1d"
	JobStale    = "reminder_stale"
)

// Reconciler owns every periodic reconciliation job and one re-entrancy guard
// per job. A trigger that lands while the same job runs is dropped, counted,
// and logged; periodic timers, manual admin triggers and HTTP triggers all
// pass through the same guard.
type Reconciler struct {
	uc  usecase.ReconcileUseCase
	cfg config.SchedulerConfig
	loc *time.Location
	log *zerolog.Logger

	sweepRunning atomic.Bool
	auditRunning atomic.Bool
	pollRunning  atomic.Bool
	rem3dRunning atomic.Bool
	rem1dRunning atomic.Bool
	staleRunning atomic.Bool
}

func NewReconciler(uc usecase.ReconcileUseCase, cfg config.SchedulerConfig, logger *zerolog.Logger) (*Reconciler, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}
	l := logger.With().Str("component", "Reconciler").Logger()
	return &Reconciler{uc: uc, cfg: cfg, loc: loc, log: &l}, nil
}

// Run blocks until ctx is cancelled. Sweep and audit fire once at startup so a
// long-stopped service converges immediately instead of waiting out a full
// interval.
func (r *Reconciler) Run(ctx context.Context) error {
	r.log.Info().Msg("starting reconciler")

	r.RunSweep(ctx)
	r.RunAudit(ctx)

	go r.every(ctx, r.cfg.PollInterval, r.RunPoll)
	go r.every(ctx, r.cfg.SweepInterval, r.RunSweep)
	go r.every(ctx, r.cfg.AuditInterval, r.RunAudit)
	go r.dailyAt(ctx, r.cfg.ReminderHour3D, r.RunRemind3D)
	go r.dailyAt(ctx, r.cfg.ReminderHour1D, r.RunRemind1D)
	go r.dailyAt(ctx, r.cfg.StaleHour, r.RunStale)

	<-ctx.Done()
	r.log.Info().Msg("stopping reconciler")
	return ctx.Err()
}

func (r *Reconciler) every(ctx context.Context, interval time.Duration, job func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job(ctx)
		}
	}
}

// dailyAt fires job once a day at the given hour in the configured timezone.
func (r *Reconciler) dailyAt(ctx context.Context, hour int, job func(context.Context)) {
	for {
		now := time.Now().In(r.loc)
		next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, r.loc)
		if !next.After(now) {
			next = next.Add(24 * time.Hour)
		}
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			job(ctx)
		}
	}
}

// guard runs fn unless the job is already in flight.
func (r *Reconciler) guard(ctx context.Context, name string, running *atomic.Bool, fn func(context.Context) error) {
	if !running.CompareAndSwap(false, true) {
		metrics.IncJobSkip(name)
		r.log.Warn().Str("job", name).Msg("job already running, trigger dropped")
		return
	}
	defer running.Store(false)

	start := time.Now()
	err := fn(ctx)
	metrics.ObserveJobDuration(name, time.Since(start).Seconds())
	if err != nil {
		metrics.IncJobRun(name, "error")
		r.log.Error().Err(err).Str("job", name).Msg("job failed")
		return
	}
	metrics.IncJobRun(name, "ok")
}

func (r *Reconciler) RunSweep(ctx context.Context) {
	r.guard(ctx, JobSweep, &r.sweepRunning, func(ctx context.Context) error {
		report, err := r.uc.SweepExpired(ctx)
		if err != nil {
			return err
		}
		metrics.AddSubscriptionsExpired(report.Deactivated)
		metrics.AddMembersKicked("expired", report.Removed)
		metrics.AddRemindersSent("expiry_notice", report.NoticesSent)
		return nil
	})
}

func (r *Reconciler) RunAudit(ctx context.Context) {
	r.guard(ctx, JobAudit, &r.auditRunning, func(ctx context.Context) error {
		report, err := r.uc.AuditUnpaid(ctx)
		if err != nil {
			return err
		}
		metrics.AddMembersKicked("unpaid", report.Kicked)
		return nil
	})
}

func (r *Reconciler) RunPoll(ctx context.Context) {
	r.guard(ctx, JobPoll, &r.pollRunning, func(ctx context.Context) error {
		report, err := r.uc.PollPayments(ctx)
		if err != nil {
			return err
		}
		for i := 0; i < report.Finalized; i++ {
			metrics.IncPayment("success")
		}
		return nil
	})
}

func (r *Reconciler) RunRemind3D(ctx context.Context) {
	r.guard(ctx, JobRemind3D, &r.rem3dRunning, func(ctx context.Context) error {
		n, err := r.uc.SendExpiryReminders(ctx, 3)
		metrics.AddRemindersSent("expiry_3d", n)
		return err
	})
}

func (r *Reconciler) RunRemind1D(ctx context.Context) {
	r.guard(ctx, JobRemind1D, &r.rem1dRunning, func(ctx context.Context) error {
		n, err := r.uc.SendExpiryReminders(ctx, 1)
		metrics.AddRemindersSent("expiry_1d", n)
		return err
	})
}

func (r *Reconciler) RunStale(ctx context.Context) {
	r.guard(ctx, JobStale, &r.staleRunning, func(ctx context.Context) error {
		n, err := r.uc.RemindStale(ctx)
		metrics.AddRemindersSent("stale", n)
		return err
	})
}
