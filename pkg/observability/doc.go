// Package observability provides structured logging, Prometheus metrics, and
// health checks for the billing services.
//
// # Structured Logging
//
// Create logger:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("owner_id", ownerID).Info("payment recorded")
//
// # Prometheus Metrics
//
// Initialize metrics:
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	metrics.PaymentsInitiatedTotal.WithLabelValues("razorpay").Inc()
//	metrics.WebhookEventsTotal.WithLabelValues("payment.captured", "processed").Inc()
//
// # Health Checks
//
// Configure health checker:
//
//	checker := observability.NewHealthChecker(db, redisClient)
//	status := checker.Check(ctx)
package observability
