// Package api provides the HTTP REST surface of the billing engine.
//
// # Architecture
//
// The API is built on gorilla/mux and organized into handler groups:
//
//   - PaymentHandlers: payment initiation, client confirmation, the gateway
//     webhook, history, detail, and refunds
//   - BillingHandlers: proforma generation and conversion, invoice listing,
//     manual payment recording, rate slab administration, and the admin
//     collection summary
//
// All owner-facing routes live under /api/v1 and require the X-Owner-ID
// header; authentication happens upstream. The webhook route authenticates
// with the provider's HMAC signature instead.
//
// # Server
//
//	server := api.NewServer(paymentHandlers, billingHandlers, logger, metrics)
//	http.ListenAndServe(":8080", server)
//
// The server wraps the router with recovery, request logging, Prometheus
// instrumentation, a request body size cap, and otelhttp tracing.
//
// # Error Mapping
//
// Domain errors map onto HTTP status codes through
// httputil.WriteDomainError: not-found 404, state and idempotency conflicts
// 409, signature failures 401, gateway outages 502.
package api
