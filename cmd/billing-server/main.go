package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gstpilot/billing/pkg/api"
	"github.com/gstpilot/billing/pkg/audit"
	"github.com/gstpilot/billing/pkg/billing"
	"github.com/gstpilot/billing/pkg/config"
	"github.com/gstpilot/billing/pkg/filing"
	"github.com/gstpilot/billing/pkg/gateway"
	"github.com/gstpilot/billing/pkg/invoices"
	"github.com/gstpilot/billing/pkg/middleware"
	"github.com/gstpilot/billing/pkg/notify"
	"github.com/gstpilot/billing/pkg/observability"
	"github.com/gstpilot/billing/pkg/payments"
	"github.com/gstpilot/billing/pkg/proforma"
	"github.com/gstpilot/billing/pkg/rates"
	"github.com/gstpilot/billing/pkg/storage"
	"github.com/gstpilot/billing/pkg/storage/postgres"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	// Database
	cm, err := postgres.NewConnectionManager(postgres.ConnectionConfig{
		PrimaryURL:  cfg.Database.URL,
		ReplicaURLs: postgres.ParseReplicaURLs(cfg.Database.ReplicaURLs),
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

	if cfg.Database.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		if err := postgres.Migrate(ctx, db); err != nil {
			cancel()
			log.Fatalf("Failed to run migrations: %v", err)
		}
		cancel()
	}

	// Redis (optional, backs webhook event dedup)
	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = storage.NewRedisClient(storage.RedisConfig{
			URL:        cfg.Redis.URL,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			MaxRetries: cfg.Redis.MaxRetries,
			PoolSize:   cfg.Redis.PoolSize,
		})
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	} else {
		logger.Warn("redis not configured, webhook event dedup disabled")
	}

	// Domain services
	catalog, err := rates.NewPostgresCatalog(db)
	if err != nil {
		log.Fatalf("Failed to create rate catalog: %v", err)
	}
	ledger := invoices.NewPostgresLedger(db)
	issuer := proforma.NewPostgresIssuer(db, catalog, ledger, cfg.Billing.TaxRatePercent)
	store := payments.NewPostgresStore(db)

	adapters := map[billing.Gateway]gateway.Adapter{
		billing.GatewayRazorpay: gateway.NewRazorpay(
			cfg.Gateway.RazorpayKeyID,
			cfg.Gateway.RazorpayKeySecret,
			cfg.Gateway.RazorpayWebhookSecret,
		),
	}

	var sink notify.Sink
	if cfg.Notify.SinkURL != "" {
		sink = notify.NewWebhookSink(cfg.Notify.SinkURL, cfg.Notify.SinkSecret, logger)
	} else {
		sink = notify.NewLogSink(logger)
	}

	reconciler := payments.NewReconciler(store, ledger, issuer, adapters, sink,
		payments.NewEventDedup(redisClient), cfg.Billing.Currency, logger, metrics)

	var filingLookup billing.FilingLookup
	if cfg.Filing.BaseURL != "" {
		filingLookup = filing.NewClient(cfg.Filing.BaseURL, cfg.Filing.APIKey)
	}

	var limiter *middleware.DistributedRateLimiter
	if redisClient != nil {
		limiter = middleware.NewDistributedRateLimiter(redisClient, nil, "")
	}

	auditor, err := audit.NewLogger(db)
	if err != nil {
		log.Fatalf("Failed to create audit logger: %v", err)
	}

	// HTTP surface
	paymentHandlers := api.NewPaymentHandlers(reconciler, limiter, auditor, logger)
	billingHandlers := api.NewBillingHandlers(issuer, ledger, catalog, reconciler,
		filingLookup, auditor, cm.Replica(), logger)
	server := api.NewServer(paymentHandlers, billingHandlers, logger, metrics)

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics on a separate port for probes
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient))
	if cfg.Observability.MetricsEnabled {
		healthMux.Handle("/metrics", metrics.Handler())
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	poolCtx, poolCancel := context.WithCancel(context.Background())
	defer poolCancel()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-poolCtx.Done():
				return
			case <-ticker.C:
				stats := db.Stats()
				metrics.DBConnectionsActive.Set(float64(stats.InUse))
				metrics.DBConnectionsIdle.Set(float64(stats.Idle))
			}
		}
	}()

	go func() {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server failed")
		}
	}()

	go func() {
		logger.WithField("addr", apiServer.Addr).Info("billing API server listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	shutdown := observability.NewShutdownManager(logger, apiServer, cfg.Server.ShutdownTimeout)
	shutdown.Register("health_server", func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("shutdown completed with errors")
		os.Exit(1)
	}
}
