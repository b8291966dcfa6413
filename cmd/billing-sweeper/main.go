package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gstpilot/billing/pkg/billing"
	"github.com/gstpilot/billing/pkg/config"
	"github.com/gstpilot/billing/pkg/filing"
	"github.com/gstpilot/billing/pkg/invoices"
	"github.com/gstpilot/billing/pkg/notify"
	"github.com/gstpilot/billing/pkg/observability"
	"github.com/gstpilot/billing/pkg/proforma"
	"github.com/gstpilot/billing/pkg/rates"
	"github.com/gstpilot/billing/pkg/scheduler"
	"github.com/gstpilot/billing/pkg/storage/postgres"
)

var (
	runOnce       = flag.Bool("run-once", false, "Run all sweeps once and exit (for testing)")
	snapshotMonth = flag.String("snapshot-month", "", "Month to snapshot (YYYY-MM). Only used with --run-once")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	cm, err := postgres.NewConnectionManager(postgres.ConnectionConfig{
		PrimaryURL:  cfg.Database.URL,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		Timeout:     cfg.Database.Timeout,
		MaxLifetime: cfg.Database.MaxLifetime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer cm.Close()

	db := cm.Primary()

	catalog, err := rates.NewPostgresCatalog(db)
	if err != nil {
		log.Fatalf("Failed to create rate catalog: %v", err)
	}
	ledger := invoices.NewPostgresLedger(db)
	issuer := proforma.NewPostgresIssuer(db, catalog, ledger, cfg.Billing.TaxRatePercent)

	var sink notify.Sink
	if cfg.Notify.SinkURL != "" {
		sink = notify.NewWebhookSink(cfg.Notify.SinkURL, cfg.Notify.SinkSecret, logger)
	} else {
		sink = notify.NewLogSink(logger)
	}

	var directory billing.OwnerDirectory
	if cfg.Filing.BaseURL != "" {
		directory = filing.NewClient(cfg.Filing.BaseURL, cfg.Filing.APIKey)
	}

	sweeper := scheduler.NewSweeper(db, ledger, issuer, sink, directory,
		logger, metrics, cfg.Scheduler.ReminderGraceDays)

	sched, err := scheduler.New(sweeper, cfg.Scheduler, logger)
	if err != nil {
		log.Fatalf("Failed to build scheduler: %v", err)
	}

	// Run once mode (for testing or backfilling)
	if *runOnce {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()

		if *snapshotMonth != "" {
			start, err := time.Parse("2006-01", *snapshotMonth)
			if err != nil {
				log.Fatalf("Invalid snapshot month format: %v", err)
			}
			if err := sweeper.SnapshotPeriod(ctx, start, start.AddDate(0, 1, 0)); err != nil {
				log.Fatalf("Snapshot failed: %v", err)
			}
			log.Println("Snapshot completed successfully")
			return
		}

		if err := sched.RunOnce(ctx); err != nil {
			log.Fatalf("Sweep failed: %v", err)
		}
		log.Println("All sweeps completed successfully")
		return
	}

	sched.Start()
	log.Println("Billing sweeper started")
	log.Printf("Overdue sweep schedule: %s", cfg.Scheduler.OverdueSweepSchedule)
	log.Printf("Proforma expiry schedule: %s", cfg.Scheduler.ProformaExpirySchedule)
	log.Printf("Reminder schedule: %s", cfg.Scheduler.ReminderSchedule)
	log.Printf("Snapshot schedule: %s", cfg.Scheduler.SnapshotSchedule)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := sched.Stop(ctx); err != nil {
		log.Fatalf("Scheduler stop failed: %v", err)
	}
}
