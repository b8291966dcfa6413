package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPMetricsMiddleware(t *testing.T) {
	metrics := NewTestMetrics()

	handler := HTTPMetricsMiddleware(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/payments/init", nil))
	require.Equal(t, http.StatusCreated, rec.Code)

	count := testutil.ToFloat64(
		metrics.HTTPRequestsTotal.WithLabelValues("POST", "/api/v1/payments/init", "201"))
	assert.Equal(t, 1.0, count)
}

func TestMetricsHandler(t *testing.T) {
	metrics := NewTestMetrics()
	metrics.PaymentsInitiatedTotal.WithLabelValues("razorpay").Inc()

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "billing_payments_initiated_total")
}

func TestNewTestMetricsIsolation(t *testing.T) {
	a := NewTestMetrics()
	b := NewTestMetrics()

	a.WebhookEventsTotal.WithLabelValues("payment.captured", "processed").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(
		a.WebhookEventsTotal.WithLabelValues("payment.captured", "processed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(
		b.WebhookEventsTotal.WithLabelValues("payment.captured", "processed")))
}
