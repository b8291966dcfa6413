package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the billing engine
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Payment metrics
	PaymentsInitiatedTotal    *prometheus.CounterVec
	PaymentConfirmationsTotal *prometheus.CounterVec
	WebhookEventsTotal        *prometheus.CounterVec
	TransitionAnomaliesTotal  prometheus.Counter
	ReconciliationErrorsTotal prometheus.Counter

	// Gateway metrics
	GatewayCallsTotal   *prometheus.CounterVec
	GatewayCallDuration *prometheus.HistogramVec

	// Sweep metrics
	SweepRunsTotal     *prometheus.CounterVec
	SweepAffectedTotal *prometheus.CounterVec
	SweepDuration      *prometheus.HistogramVec

	// Notification metrics
	NotificationsTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_http_requests_total",
				Help: "Total HTTP requests by method, path and status",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "billing_http_request_duration_seconds",
				Help:    "HTTP request duration by method and path",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		PaymentsInitiatedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_payments_initiated_total",
				Help: "Payment transactions created, by gateway",
			},
			[]string{"gateway"},
		),
		PaymentConfirmationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_payment_confirmations_total",
				Help: "Payment confirmations by source (client, webhook) and result",
			},
			[]string{"source", "result"},
		),
		WebhookEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_webhook_events_total",
				Help: "Webhook events by type and processing result",
			},
			[]string{"event", "result"},
		),
		TransitionAnomaliesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "billing_transition_anomalies_total",
				Help: "Illegal state-machine transitions attempted on payment transactions",
			},
		),
		ReconciliationErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "billing_reconciliation_errors_total",
				Help: "Confirmed payments whose cascade to the owning document failed",
			},
		),
		GatewayCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_gateway_calls_total",
				Help: "External gateway API calls by gateway, operation and result",
			},
			[]string{"gateway", "operation", "result"},
		),
		GatewayCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "billing_gateway_call_duration_seconds",
				Help:    "External gateway API call duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"gateway", "operation"},
		),
		SweepRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_sweep_runs_total",
				Help: "Scheduler sweep executions by sweep name and result",
			},
			[]string{"sweep", "result"},
		),
		SweepAffectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_sweep_affected_total",
				Help: "Entities transitioned by scheduler sweeps",
			},
			[]string{"sweep"},
		),
		SweepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "billing_sweep_duration_seconds",
				Help:    "Scheduler sweep duration",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
			},
			[]string{"sweep"},
		),
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_notifications_total",
				Help: "Billing events dispatched to the notification sink, by category and result",
			},
			[]string{"category", "result"},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "billing_db_connections_active",
				Help: "Active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "billing_db_connections_idle",
				Help: "Idle database connections",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.PaymentsInitiatedTotal,
		m.PaymentConfirmationsTotal,
		m.WebhookEventsTotal,
		m.TransitionAnomaliesTotal,
		m.ReconciliationErrorsTotal,
		m.GatewayCallsTotal,
		m.GatewayCallDuration,
		m.SweepRunsTotal,
		m.SweepAffectedTotal,
		m.SweepDuration,
		m.NotificationsTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// NewTestMetrics creates metrics on a private registry for tests
func NewTestMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

// Handler returns the /metrics HTTP handler for this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)

			duration := time.Since(start).Seconds()
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rw.status)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
