// Package scheduler runs the periodic billing sweeps: overdue invoice
// marking, proforma expiry, payment reminders, and monthly collection
// snapshots. Each sweep is safe to run concurrently with the API server
// because all state transitions go through the same guarded updates.
package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gstpilot/billing/pkg/billing"
	"github.com/gstpilot/billing/pkg/invoices"
	"github.com/gstpilot/billing/pkg/notify"
	"github.com/gstpilot/billing/pkg/observability"
	"github.com/gstpilot/billing/pkg/proforma"
)

const (
	sweepOverdue  = "overdue_invoices"
	sweepExpiry   = "proforma_expiry"
	sweepReminder = "payment_reminders"
	sweepSnapshot = "collection_snapshot"
)

// reminderFanOut caps concurrent reminder deliveries to the sink.
const reminderFanOut = 8

// Sweeper executes the periodic billing jobs. The db handle serves the
// reminder queries and the snapshot upsert, so it must point at the primary.
type Sweeper struct {
	db        *sql.DB
	ledger    invoices.Ledger
	issuer    proforma.Issuer
	sink      notify.Sink
	directory billing.OwnerDirectory
	logger    *observability.Logger
	metrics   *observability.Metrics
	graceDays int
	now       func() time.Time
}

// NewSweeper creates a Sweeper. graceDays controls how far before the due
// date payment reminders go out. directory may be nil, in which case
// reminders carry no contact details.
func NewSweeper(db *sql.DB, ledger invoices.Ledger, issuer proforma.Issuer,
	sink notify.Sink, directory billing.OwnerDirectory,
	logger *observability.Logger, metrics *observability.Metrics,
	graceDays int) *Sweeper {
	if graceDays <= 0 {
		graceDays = 3
	}
	return &Sweeper{
		db:        db,
		ledger:    ledger,
		issuer:    issuer,
		sink:      sink,
		directory: directory,
		logger:    logger,
		metrics:   metrics,
		graceDays: graceDays,
		now:       time.Now,
	}
}

// SweepOverdueInvoices marks issued invoices past their due date as overdue.
func (s *Sweeper) SweepOverdueInvoices(ctx context.Context) error {
	return s.run(ctx, sweepOverdue, func(ctx context.Context) (int64, error) {
		return s.ledger.SweepOverdue(ctx, s.now().UTC())
	})
}

// ExpireProformas cancels pending proforma invoices past their validity date.
func (s *Sweeper) ExpireProformas(ctx context.Context) error {
	return s.run(ctx, sweepExpiry, func(ctx context.Context) (int64, error) {
		return s.issuer.ExpireAllDue(ctx, s.now().UTC())
	})
}

func (s *Sweeper) run(ctx context.Context, name string, fn func(context.Context) (int64, error)) error {
	start := s.now()
	affected, err := fn(ctx)
	s.metrics.SweepDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err != nil {
		s.metrics.SweepRunsTotal.WithLabelValues(name, "error").Inc()
		s.logger.WithError(err).WithField("sweep", name).Error("sweep failed")
		return fmt.Errorf("sweep %s: %w", name, err)
	}

	s.metrics.SweepRunsTotal.WithLabelValues(name, "ok").Inc()
	s.metrics.SweepAffectedTotal.WithLabelValues(name).Add(float64(affected))
	s.logger.WithFields(map[string]interface{}{
		"sweep":    name,
		"affected": affected,
	}).Info("sweep completed")
	return nil
}

// dueInvoice is one reminder target.
type dueInvoice struct {
	ownerID string
	number  string
	total   string
	dueDate time.Time
	overdue bool
}

// SendPaymentReminders notifies owners of invoices that are overdue or due
// within the grace window. Delivery failures are counted but do not abort
// the sweep; the next run retries naturally.
func (s *Sweeper) SendPaymentReminders(ctx context.Context) error {
	start := s.now()

	due, err := s.listDueInvoices(ctx)
	if err != nil {
		s.metrics.SweepRunsTotal.WithLabelValues(sweepReminder, "error").Inc()
		return fmt.Errorf("sweep %s: %w", sweepReminder, err)
	}

	var g errgroup.Group
	g.SetLimit(reminderFanOut)

	for _, inv := range due {
		inv := inv
		g.Go(func() error {
			category := notify.CategoryPaymentReminder
			if inv.overdue {
				category = notify.CategoryInvoiceOverdue
			}

			payload := map[string]any{
				"invoice_number": inv.number,
				"total_amount":   inv.total,
				"due_date":       inv.dueDate.Format("2006-01-02"),
			}
			if s.directory != nil {
				if contact, err := s.directory.Contact(ctx, inv.ownerID); err == nil && contact != nil {
					payload["contact_email"] = contact.Email
				}
			}

			err := s.sink.Notify(ctx, inv.ownerID, category, payload)
			if err != nil {
				s.metrics.NotificationsTotal.WithLabelValues(category, "error").Inc()
				s.logger.WithError(err).WithFields(map[string]interface{}{
					"owner_id": inv.ownerID,
					"invoice":  inv.number,
				}).Warn("reminder delivery failed")
				return nil
			}

			s.metrics.NotificationsTotal.WithLabelValues(category, "sent").Inc()
			return nil
		})
	}

	g.Wait()

	s.metrics.SweepDuration.WithLabelValues(sweepReminder).Observe(time.Since(start).Seconds())
	s.metrics.SweepRunsTotal.WithLabelValues(sweepReminder, "ok").Inc()
	s.metrics.SweepAffectedTotal.WithLabelValues(sweepReminder).Add(float64(len(due)))
	s.logger.WithField("reminders", len(due)).Info("payment reminder sweep completed")
	return nil
}

func (s *Sweeper) listDueInvoices(ctx context.Context) ([]dueInvoice, error) {
	horizon := s.now().UTC().AddDate(0, 0, s.graceDays)

	rows, err := s.db.QueryContext(ctx, `
		SELECT owner_id, number, total_amount, due_date, status = 'overdue'
		FROM invoices
		WHERE status IN ('issued', 'overdue') AND due_date <= $1
		ORDER BY due_date`, horizon)
	if err != nil {
		return nil, fmt.Errorf("failed to list due invoices: %w", err)
	}
	defer rows.Close()

	var due []dueInvoice
	for rows.Next() {
		var inv dueInvoice
		if err := rows.Scan(&inv.ownerID, &inv.number, &inv.total, &inv.dueDate, &inv.overdue); err != nil {
			return nil, fmt.Errorf("failed to scan due invoice: %w", err)
		}
		due = append(due, inv)
	}
	return due, rows.Err()
}

// SnapshotCollections persists a collection summary for the previous
// calendar month. The upsert keys on the period, so re-running the sweep
// refreshes the same row instead of duplicating it.
func (s *Sweeper) SnapshotCollections(ctx context.Context) error {
	now := s.now().UTC()
	periodEnd := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	periodStart := periodEnd.AddDate(0, -1, 0)
	return s.SnapshotPeriod(ctx, periodStart, periodEnd)
}

// SnapshotPeriod computes and stores the collection snapshot for an explicit
// period. Used by run-once backfills.
func (s *Sweeper) SnapshotPeriod(ctx context.Context, periodStart, periodEnd time.Time) error {
	start := s.now()

	var (
		invoicedTotal, collectedTotal, pendingTotal string
		invoiceCount, paidCount                     int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(total_amount), 0),
			COALESCE(SUM(total_amount) FILTER (WHERE status = 'paid'), 0),
			COALESCE(SUM(total_amount) FILTER (WHERE status IN ('issued', 'overdue')), 0),
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'paid')
		FROM invoices
		WHERE created_at >= $1 AND created_at < $2`,
		periodStart, periodEnd).
		Scan(&invoicedTotal, &collectedTotal, &pendingTotal, &invoiceCount, &paidCount)
	if err != nil {
		s.metrics.SweepRunsTotal.WithLabelValues(sweepSnapshot, "error").Inc()
		return fmt.Errorf("failed to compute collection snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO collection_snapshots (period_start, period_end, invoiced_total,
			collected_total, pending_total, invoice_count, paid_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (period_start, period_end) DO UPDATE SET
			invoiced_total = EXCLUDED.invoiced_total,
			collected_total = EXCLUDED.collected_total,
			pending_total = EXCLUDED.pending_total,
			invoice_count = EXCLUDED.invoice_count,
			paid_count = EXCLUDED.paid_count,
			created_at = NOW()`,
		periodStart, periodEnd, invoicedTotal, collectedTotal, pendingTotal,
		invoiceCount, paidCount)
	if err != nil {
		s.metrics.SweepRunsTotal.WithLabelValues(sweepSnapshot, "error").Inc()
		return fmt.Errorf("failed to store collection snapshot: %w", err)
	}

	s.metrics.SweepDuration.WithLabelValues(sweepSnapshot).Observe(time.Since(start).Seconds())
	s.metrics.SweepRunsTotal.WithLabelValues(sweepSnapshot, "ok").Inc()
	s.logger.WithFields(map[string]interface{}{
		"period_start": periodStart.Format("2006-01-02"),
		"period_end":   periodEnd.Format("2006-01-02"),
		"invoices":     invoiceCount,
	}).Info("collection snapshot stored")
	return nil
}
