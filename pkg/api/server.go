package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/gstpilot/billing/pkg/httputil"
	"github.com/gstpilot/billing/pkg/observability"
)

// Server is the billing HTTP API server
type Server struct {
	router  *mux.Router
	handler http.Handler
	logger  *observability.Logger
}

// NewServer assembles the API router. Owner-facing routes sit behind the
// owner header middleware; the webhook route does not, because the payment
// provider is the caller there.
func NewServer(paymentHandlers *PaymentHandlers, billingHandlers *BillingHandlers,
	logger *observability.Logger, metrics *observability.Metrics) *Server {
	s := &Server{
		router: mux.NewRouter(),
		logger: logger,
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Webhook first: no owner header required
	paymentHandlers.RegisterWebhookRoute(api)

	owner := api.NewRoute().Subrouter()
	owner.Use(OwnerIDMiddleware)
	paymentHandlers.RegisterRoutes(owner)
	billingHandlers.RegisterRoutes(owner)

	handler := httputil.Chain(
		httputil.RecoveryMiddleware,
		httputil.LoggingMiddleware,
		observability.HTTPMetricsMiddleware(metrics),
		httputil.MaxBytesMiddleware(1<<20),
	)(s.router)

	s.handler = otelhttp.NewHandler(handler, "billing-api")

	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Router exposes the underlying mux router for additional registrations.
func (s *Server) Router() *mux.Router {
	return s.router
}
