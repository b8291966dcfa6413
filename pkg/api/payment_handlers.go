package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/gstpilot/billing/pkg/audit"
	"github.com/gstpilot/billing/pkg/billing"
	"github.com/gstpilot/billing/pkg/httputil"
	"github.com/gstpilot/billing/pkg/middleware"
	"github.com/gstpilot/billing/pkg/observability"
	"github.com/gstpilot/billing/pkg/payments"
)

// razorpaySignatureHeader carries the webhook HMAC from the provider.
const razorpaySignatureHeader = "X-Razorpay-Signature"

// maxWebhookBody bounds the webhook payload size.
const maxWebhookBody = 1 << 20

// PaymentHandlers handles payment-related HTTP requests
type PaymentHandlers struct {
	reconciler *payments.Reconciler
	limiter    *middleware.DistributedRateLimiter
	auditor    *audit.Logger
	logger     *observability.Logger
}

// NewPaymentHandlers creates a new PaymentHandlers. limiter may be nil, which
// leaves payment initiation unthrottled; auditor may be nil to skip the
// refund audit trail.
func NewPaymentHandlers(reconciler *payments.Reconciler,
	limiter *middleware.DistributedRateLimiter, auditor *audit.Logger,
	logger *observability.Logger) *PaymentHandlers {
	return &PaymentHandlers{
		reconciler: reconciler,
		limiter:    limiter,
		auditor:    auditor,
		logger:     logger,
	}
}

// RegisterRoutes registers payment routes. The webhook route is registered
// separately because it must bypass the owner header middleware. Initiation
// is rate limited per owner because it creates orders at the gateway.
func (h *PaymentHandlers) RegisterRoutes(router *mux.Router) {
	router.Handle("/payments/init",
		middleware.RateLimitMiddleware(h.limiter)(http.HandlerFunc(h.InitiatePayment))).Methods("POST")
	router.HandleFunc("/payments/verify", h.VerifyPayment).Methods("POST")
	router.HandleFunc("/payments/history", h.PaymentHistory).Methods("GET")
	router.HandleFunc("/payments/{id}", h.PaymentDetail).Methods("GET")
	router.HandleFunc("/payments/{id}/refund", h.RefundPayment).Methods("POST")
}

// RegisterWebhookRoute registers the provider webhook endpoint.
func (h *PaymentHandlers) RegisterWebhookRoute(router *mux.Router) {
	router.HandleFunc("/payments/webhook", h.Webhook).Methods("POST")
}

// InitiatePayment creates a gateway order for an invoice or proforma
func (h *PaymentHandlers) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	var req payments.InitiateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Gateway == "" {
		req.Gateway = billing.GatewayRazorpay
	}

	result, err := h.reconciler.Initiate(r.Context(), ownerID(r), &req)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteCreated(w, result)
}

// verifyRequest is the client-side confirmation payload
type verifyRequest struct {
	TransactionID string `json:"transaction_id"`
	OrderID       string `json:"order_id"`
	PaymentID     string `json:"payment_id"`
	Signature     string `json:"signature"`
}

// VerifyPayment confirms a client-reported payment outcome
func (h *PaymentHandlers) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.TransactionID, "transaction_id") ||
		!httputil.RequireNonEmpty(w, req.OrderID, "order_id") ||
		!httputil.RequireNonEmpty(w, req.PaymentID, "payment_id") ||
		!httputil.RequireNonEmpty(w, req.Signature, "signature") {
		return
	}

	result, err := h.reconciler.ConfirmClient(r.Context(), ownerID(r),
		req.TransactionID, req.PaymentID, req.OrderID, req.Signature)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, result)
}

// Webhook ingests asynchronous gateway events. Responses follow the
// provider's retry contract: 401 tells it the request was not ours, 200
// acknowledges durable processing (including idempotent no-ops), and 5xx
// asks for a retry.
func (h *PaymentHandlers) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		httputil.WriteBadRequest(w, "failed to read request body")
		return
	}

	err = h.reconciler.HandleWebhook(r.Context(), billing.GatewayRazorpay,
		body, r.Header.Get(razorpaySignatureHeader))

	var (
		sigErr   *billing.SignatureVerificationError
		transErr *billing.InvalidTransitionError
	)
	switch {
	case err == nil:
		httputil.WriteSuccess(w, map[string]string{"status": "ok"})
	case errors.As(err, &sigErr):
		httputil.WriteUnauthorized(w, err.Error())
	case errors.As(err, &transErr):
		// Anomaly is recorded; retrying the same event cannot fix it, so
		// acknowledge to stop the provider's redelivery loop.
		httputil.WriteSuccess(w, map[string]string{"status": "ignored"})
	default:
		h.logger.WithError(err).Error("webhook processing failed")
		httputil.WriteInternalError(w, err)
	}
}

// PaymentHistory lists the caller's payment transactions
func (h *PaymentHandlers) PaymentHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.reconciler.History(r.Context(), ownerID(r))
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"payments": entries,
		"count":    len(entries),
	})
}

// PaymentDetail returns a single transaction owned by the caller
func (h *PaymentHandlers) PaymentDetail(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	txn, err := h.reconciler.Detail(r.Context(), ownerID(r), id)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, txn)
}

// refundRequest holds the optional partial refund amount
type refundRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// RefundPayment refunds a successful transaction. A zero or omitted amount
// refunds in full.
func (h *PaymentHandlers) RefundPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req refundRequest
	if r.ContentLength != 0 {
		if !httputil.ParseJSONOrError(w, r, &req) {
			return
		}
	}

	// Ownership check before refunding
	if _, err := h.reconciler.Detail(r.Context(), ownerID(r), id); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	result, err := h.reconciler.InitiateRefund(r.Context(), id, req.Amount)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	if h.auditor != nil {
		err := h.auditor.Record(r.Context(), audit.ActionRefundInitiated, ownerID(r),
			"payment_transaction", id, map[string]interface{}{
				"refund_id": result.RefundID,
				"amount":    result.Amount.String(),
			})
		if err != nil {
			h.logger.WithError(err).Warn("audit write failed")
		}
	}

	httputil.WriteSuccess(w, result)
}
