package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gstpilot/billing/pkg/config"
	"github.com/gstpilot/billing/pkg/observability"
)

// jobTimeout bounds a single sweep execution.
const jobTimeout = 10 * time.Minute

// Scheduler wires the sweeper jobs onto cron schedules. Each job is wrapped
// with SkipIfStillRunning so a slow sweep never stacks on itself.
type Scheduler struct {
	cron    *cron.Cron
	sweeper *Sweeper
	logger  *observability.Logger
}

// New builds a Scheduler from the configured cron expressions.
func New(sweeper *Sweeper, cfg config.SchedulerConfig, logger *observability.Logger) (*Scheduler, error) {
	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DiscardLogger),
		cron.Recover(cron.DiscardLogger),
	))

	s := &Scheduler{cron: c, sweeper: sweeper, logger: logger}

	jobs := []struct {
		name     string
		schedule string
		fn       func(context.Context) error
	}{
		{sweepOverdue, cfg.OverdueSweepSchedule, sweeper.SweepOverdueInvoices},
		{sweepExpiry, cfg.ProformaExpirySchedule, sweeper.ExpireProformas},
		{sweepReminder, cfg.ReminderSchedule, sweeper.SendPaymentReminders},
		{sweepSnapshot, cfg.SnapshotSchedule, sweeper.SnapshotCollections},
	}

	for _, job := range jobs {
		job := job
		_, err := c.AddFunc(job.schedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()

			if err := job.fn(ctx); err != nil {
				logger.WithError(err).WithField("sweep", job.name).Error("scheduled sweep failed")
			}
		})
		if err != nil {
			return nil, fmt.Errorf("failed to schedule %s (%q): %w", job.name, job.schedule, err)
		}
	}

	return s, nil
}

// Start begins running the scheduled jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("billing scheduler started")
}

// Stop stops the scheduler and waits for in-flight jobs to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
		s.logger.Info("billing scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop timed out: %w", ctx.Err())
	}
}

// RunOnce executes every sweep a single time, sequentially. Used by the
// sweeper binary's --run-once mode for testing and backfills.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{sweepOverdue, s.sweeper.SweepOverdueInvoices},
		{sweepExpiry, s.sweeper.ExpireProformas},
		{sweepReminder, s.sweeper.SendPaymentReminders},
		{sweepSnapshot, s.sweeper.SnapshotCollections},
	}

	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			return err
		}
	}
	return nil
}
