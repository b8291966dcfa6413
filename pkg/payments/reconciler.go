// Package payments holds the payment transaction state machine. A
// transaction is created per payment attempt, confirmed either by the paying
// client or by a provider webhook (possibly both, possibly more than once),
// and its outcome is applied to the owning invoice or proforma exactly once.
package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gstpilot/billing/pkg/async"
	"github.com/gstpilot/billing/pkg/billing"
	"github.com/gstpilot/billing/pkg/gateway"
	"github.com/gstpilot/billing/pkg/invoices"
	"github.com/gstpilot/billing/pkg/notify"
	"github.com/gstpilot/billing/pkg/observability"
	"github.com/gstpilot/billing/pkg/proforma"
)

// notifyTimeout bounds the detached payment_received notification.
const notifyTimeout = 10 * time.Second

// InitiateRequest selects the payment target and provider. Exactly one of
// InvoiceID and ProformaID must be set.
type InitiateRequest struct {
	InvoiceID  *string         `json:"invoice_id,omitempty"`
	ProformaID *string         `json:"proforma_id,omitempty"`
	Gateway    billing.Gateway `json:"gateway"`
}

// InitiateResult is the client-facing order data. It never carries the
// provider's shared secret.
type InitiateResult struct {
	TransactionID string          `json:"transaction_id"`
	OrderID       string          `json:"order_id"`
	Amount        decimal.Decimal `json:"amount"`
	AmountMinor   int64           `json:"amount_minor"`
	Currency      string          `json:"currency"`
	KeyID         string          `json:"key_id"`
}

// ConfirmResult reports the outcome of a client confirmation
type ConfirmResult struct {
	Verified      bool   `json:"verified"`
	TransactionID string `json:"transaction_id"`
	PaymentID     string `json:"payment_id,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// HistoryEntry is one row of an owner's payment history
type HistoryEntry struct {
	ID              string                    `json:"id"`
	TargetReference string                    `json:"target_reference"`
	Amount          decimal.Decimal           `json:"amount"`
	Status          billing.TransactionStatus `json:"status"`
	Gateway         billing.Gateway           `json:"gateway"`
	CreatedAt       time.Time                 `json:"created_at"`
	CompletedAt     *time.Time                `json:"completed_at,omitempty"`
}

// Reconciler drives payment transactions through their lifecycle and applies
// confirmed outcomes to invoices and proformas
type Reconciler struct {
	store    Store
	ledger   invoices.Ledger
	proforma proforma.Issuer
	adapters map[billing.Gateway]gateway.Adapter
	sink     notify.Sink
	dedup    *EventDedup
	currency string
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewReconciler creates a Reconciler
func NewReconciler(store Store, ledger invoices.Ledger, issuer proforma.Issuer,
	adapters map[billing.Gateway]gateway.Adapter, sink notify.Sink, dedup *EventDedup,
	currency string, logger *observability.Logger, metrics *observability.Metrics) *Reconciler {
	return &Reconciler{
		store:    store,
		ledger:   ledger,
		proforma: issuer,
		adapters: adapters,
		sink:     sink,
		dedup:    dedup,
		currency: currency,
		logger:   logger,
		metrics:  metrics,
	}
}

func (r *Reconciler) adapter(gw billing.Gateway) (gateway.Adapter, error) {
	adapter, ok := r.adapters[gw]
	if !ok {
		return nil, fmt.Errorf("unsupported payment gateway %q", gw)
	}
	return adapter, nil
}

// Initiate creates a provider order for an invoice or proforma and persists
// the pending transaction keyed by the returned order id
func (r *Reconciler) Initiate(ctx context.Context, ownerID string, req *InitiateRequest) (*InitiateResult, error) {
	if (req.InvoiceID == nil) == (req.ProformaID == nil) {
		return nil, fmt.Errorf("exactly one of invoice_id and proforma_id is required")
	}

	adapter, err := r.adapter(req.Gateway)
	if err != nil {
		return nil, err
	}

	var (
		amount     decimal.Decimal
		targetID   string
		targetKind string
	)
	switch {
	case req.InvoiceID != nil:
		invoice, err := r.ledger.Get(ctx, *req.InvoiceID)
		if err != nil {
			return nil, err
		}
		if invoice.OwnerID != ownerID {
			return nil, billing.ErrNotFound
		}
		if invoice.Status != billing.InvoiceStatusIssued && invoice.Status != billing.InvoiceStatusOverdue {
			return nil, &billing.InvalidStateError{
				Entity:   "invoice",
				ID:       invoice.ID,
				Expected: "issued or overdue",
				Actual:   string(invoice.Status),
			}
		}
		amount, targetID, targetKind = invoice.TotalAmount, invoice.ID, "invoice"

	default:
		p, err := r.proforma.Get(ctx, *req.ProformaID)
		if err != nil {
			return nil, err
		}
		if p.OwnerID != ownerID {
			return nil, billing.ErrNotFound
		}
		if p.Status != billing.ProformaStatusPending {
			return nil, &billing.InvalidStateError{
				Entity:   "proforma",
				ID:       p.ID,
				Expected: "pending",
				Actual:   string(p.Status),
			}
		}
		if p.IsExpired(time.Now()) {
			return nil, &billing.InvalidStateError{
				Entity:   "proforma",
				ID:       p.ID,
				Expected: "pending and unexpired",
				Actual:   "expired",
			}
		}
		amount, targetID, targetKind = p.TotalAmount, p.ID, "proforma"
	}

	order, err := adapter.CreateOrder(ctx, amount, r.currency, gateway.OrderMetadata{
		OwnerID:    ownerID,
		TargetID:   targetID,
		TargetKind: targetKind,
	})
	if err != nil {
		return nil, err
	}

	txn := &billing.PaymentTransaction{
		OwnerID:        ownerID,
		InvoiceID:      req.InvoiceID,
		ProformaID:     req.ProformaID,
		Gateway:        req.Gateway,
		GatewayOrderID: order.OrderID,
		Amount:         amount,
		Currency:       order.Currency,
		Status:         billing.TransactionStatusPending,
	}
	if err := r.store.Insert(ctx, txn); err != nil {
		return nil, err
	}

	r.metrics.PaymentsInitiatedTotal.WithLabelValues(string(req.Gateway)).Inc()
	r.logger.WithFields(map[string]any{
		"transaction_id": txn.ID,
		"order_id":       order.OrderID,
		"target":         targetKind + ":" + targetID,
		"amount":         amount.String(),
	}).Info("payment initiated")

	return &InitiateResult{
		TransactionID: txn.ID,
		OrderID:       order.OrderID,
		Amount:        order.Amount,
		AmountMinor:   order.AmountMinor,
		Currency:      order.Currency,
		KeyID:         order.KeyID,
	}, nil
}

// ConfirmClient verifies a client-initiated payment confirmation and applies
// the outcome. A repeat confirmation for an already-successful transaction is
// a verified no-op.
func (r *Reconciler) ConfirmClient(ctx context.Context, ownerID, transactionID, paymentID, orderID, signature string) (*ConfirmResult, error) {
	txn, err := r.store.GetByIDAndOrder(ctx, transactionID, orderID)
	if err != nil {
		return nil, err
	}
	if txn.OwnerID != ownerID {
		return nil, billing.ErrNotFound
	}

	adapter, err := r.adapter(txn.Gateway)
	if err != nil {
		return nil, err
	}

	result, err := adapter.VerifyClientConfirmation(ctx, paymentID, orderID, signature)
	if err != nil {
		return nil, err
	}

	if !result.Verified {
		reason := result.Reason
		if reason == "" {
			reason = "payment verification failed"
		}
		if err := r.applyFailure(ctx, txn, reason); err != nil {
			return nil, err
		}
		r.metrics.PaymentConfirmationsTotal.WithLabelValues("client", "failed").Inc()
		return &ConfirmResult{Verified: false, TransactionID: txn.ID, Reason: reason}, nil
	}

	if err := r.applySuccess(ctx, txn, paymentID); err != nil {
		return nil, err
	}
	r.metrics.PaymentConfirmationsTotal.WithLabelValues("client", "success").Inc()
	return &ConfirmResult{Verified: true, TransactionID: txn.ID, PaymentID: paymentID}, nil
}

// HandleWebhook absorbs a provider webhook delivery. The HMAC over the raw
// body is verified before anything is parsed; a bad signature mutates no
// state. Providers deliver at-least-once, so every branch is idempotent.
// InvalidTransitionError returns mean the event contradicts recorded history
// (e.g. a capture after a recorded failure); they are anomalies for operator
// follow-up, not retryable failures.
func (r *Reconciler) HandleWebhook(ctx context.Context, gw billing.Gateway, rawBody []byte, headerSignature string) error {
	adapter, err := r.adapter(gw)
	if err != nil {
		return err
	}
	if !adapter.VerifyWebhookSignature(rawBody, headerSignature) {
		r.metrics.WebhookEventsTotal.WithLabelValues("unknown", "bad_signature").Inc()
		return &billing.SignatureVerificationError{Source: "webhook"}
	}

	event, err := parseWebhookEvent(rawBody)
	if err != nil {
		return err
	}

	if r.dedup.Seen(ctx, event.ID) {
		r.metrics.WebhookEventsTotal.WithLabelValues(event.Event, "duplicate").Inc()
		return nil
	}

	if err := r.dispatchEvent(ctx, event); err != nil {
		var transitionErr *billing.InvalidTransitionError
		if errors.As(err, &transitionErr) {
			r.metrics.WebhookEventsTotal.WithLabelValues(event.Event, "anomaly").Inc()
		} else {
			r.metrics.WebhookEventsTotal.WithLabelValues(event.Event, "error").Inc()
		}
		return err
	}

	// Marked only after the transition is durably committed: a crash before
	// this point makes the provider retry into the status guard, which
	// resolves the duplicate.
	if err := r.dedup.Mark(ctx, event.ID); err != nil {
		r.logger.WithError(err).Warn("failed to record webhook event id")
	}
	r.metrics.WebhookEventsTotal.WithLabelValues(event.Event, "processed").Inc()
	return nil
}

func (r *Reconciler) dispatchEvent(ctx context.Context, event *WebhookEvent) error {
	switch event.Event {
	case EventPaymentCaptured:
		payment, err := event.payment()
		if err != nil {
			return err
		}
		txn, err := r.store.GetByOrderID(ctx, payment.OrderID)
		if err != nil {
			if errors.Is(err, billing.ErrNotFound) {
				r.logger.WithField("order_id", payment.OrderID).Warn("captured payment for unknown order")
				return nil
			}
			return err
		}
		return r.applySuccess(ctx, txn, payment.ID)

	case EventPaymentFailed:
		payment, err := event.payment()
		if err != nil {
			return err
		}
		txn, err := r.store.GetByOrderID(ctx, payment.OrderID)
		if err != nil {
			if errors.Is(err, billing.ErrNotFound) {
				r.logger.WithField("order_id", payment.OrderID).Warn("failed payment for unknown order")
				return nil
			}
			return err
		}
		message := fmt.Sprintf("%s: %s", payment.Error.Code, payment.Error.Description)
		return r.applyFailure(ctx, txn, message)

	case EventRefundCreated:
		refund, err := event.refund()
		if err != nil {
			return err
		}
		txn, err := r.store.GetByPaymentID(ctx, refund.PaymentID)
		if err != nil {
			if errors.Is(err, billing.ErrNotFound) {
				r.logger.WithField("payment_id", refund.PaymentID).Warn("refund for unknown payment")
				return nil
			}
			return err
		}
		return r.applyRefund(ctx, txn, refund.ID, billing.FromMinorUnits(refund.Amount))

	default:
		r.logger.WithField("event", event.Event).Debug("ignoring unhandled webhook event")
		return nil
	}
}

// applySuccess is the guarded pending -> success transition. It is idempotent
// and safe under concurrent invocation: only the writer that flips the row
// cascades to the owning invoice/proforma and emits the payment_received
// event, so a client confirmation racing a webhook produces exactly one set
// of side effects. A capture arriving after a recorded failure or refund is
// an InvalidTransitionError: a reconciliation gap to surface, never to
// silently correct.
func (r *Reconciler) applySuccess(ctx context.Context, txn *billing.PaymentTransaction, paymentID string) error {
	return r.applySuccessWith(ctx, txn, paymentID, billing.PaymentMethodOnline)
}

func (r *Reconciler) applySuccessWith(ctx context.Context, txn *billing.PaymentTransaction, paymentID string, method billing.PaymentMethod) error {
	applied, err := r.store.MarkSuccess(ctx, txn.ID, paymentID)
	if err != nil {
		return err
	}
	if !applied {
		current, err := r.store.GetByID(ctx, txn.ID)
		if err != nil {
			return err
		}
		if current.Status == billing.TransactionStatusSuccess {
			return nil // duplicate confirmation, already applied
		}
		anomaly := &billing.InvalidTransitionError{
			Entity: "payment_transaction",
			ID:     txn.ID,
			From:   string(current.Status),
			To:     string(billing.TransactionStatusSuccess),
		}
		r.logger.WithFields(map[string]any{
			"transaction_id": txn.ID,
			"order_id":       txn.GatewayOrderID,
			"status":         current.Status,
		}).Error("captured payment contradicts recorded transaction state")
		r.metrics.TransitionAnomaliesTotal.Inc()
		return anomaly
	}

	r.cascadeSuccess(ctx, txn, paymentID, method)
	return nil
}

// cascadeSuccess applies the confirmed payment to the owning document. The
// transaction keeps its success status even when the cascade fails: the
// transaction truthfully records what the gateway reported, and the gap is
// surfaced for operator follow-up instead of being rolled back.
func (r *Reconciler) cascadeSuccess(ctx context.Context, txn *billing.PaymentTransaction, paymentID string, method billing.PaymentMethod) {
	var cascadeErr error
	switch {
	case txn.InvoiceID != nil:
		cascadeErr = r.ledger.MarkPaid(ctx, *txn.InvoiceID, method, paymentID)

	case txn.ProformaID != nil:
		invoice, err := r.proforma.Convert(ctx, *txn.ProformaID)
		if err != nil {
			cascadeErr = err
			break
		}
		// the spawned invoice is settled by the same confirmed payment
		cascadeErr = r.ledger.MarkPaid(ctx, invoice.ID, method, paymentID)
	}

	if cascadeErr != nil {
		r.metrics.ReconciliationErrorsTotal.Inc()
		r.logger.WithError(cascadeErr).WithFields(map[string]any{
			"transaction_id": txn.ID,
			"target":         txn.TargetReference(),
		}).Error("payment succeeded but cascade to owning document failed")
		return
	}

	// Dispatch off the request path; the payment outcome is already durable
	// and must not wait on (or fail with) the sink.
	ownerID := txn.OwnerID
	txnID := txn.ID
	amount := txn.Amount.String()
	currency := txn.Currency
	async.SafeGo(context.Background(), notifyTimeout, "payment_received notification", r.logger,
		func(ctx context.Context) error {
			return r.sink.Notify(ctx, ownerID, notify.CategoryPaymentReceived, map[string]any{
				"transaction_id": txnID,
				"payment_id":     paymentID,
				"amount":         amount,
				"currency":       currency,
			})
		})
}

// applyFailure is the guarded pending -> failed transition. The owning
// invoice/proforma is left untouched. Duplicate failure events are no-ops; a
// failure reported for a transaction already successful or refunded is an
// anomaly.
func (r *Reconciler) applyFailure(ctx context.Context, txn *billing.PaymentTransaction, message string) error {
	applied, err := r.store.MarkFailed(ctx, txn.ID, message)
	if err != nil {
		return err
	}
	if applied {
		r.logger.WithFields(map[string]any{
			"transaction_id": txn.ID,
			"reason":         message,
		}).Info("payment failed")
		return nil
	}

	current, err := r.store.GetByID(ctx, txn.ID)
	if err != nil {
		return err
	}
	if current.Status == billing.TransactionStatusFailed {
		return nil
	}
	r.metrics.TransitionAnomaliesTotal.Inc()
	return &billing.InvalidTransitionError{
		Entity: "payment_transaction",
		ID:     txn.ID,
		From:   string(current.Status),
		To:     string(billing.TransactionStatusFailed),
	}
}

// applyRefund is the guarded success -> refunded transition. It records the
// refund without reverting the invoice's paid status: partial refunds are
// possible, so refund bookkeeping is operator-visible follow-up, not an
// automatic reversal.
func (r *Reconciler) applyRefund(ctx context.Context, txn *billing.PaymentTransaction, refundID string, amount decimal.Decimal) error {
	applied, err := r.store.MarkRefunded(ctx, txn.ID, refundID, amount)
	if err != nil {
		return err
	}
	if applied {
		r.logger.WithFields(map[string]any{
			"transaction_id": txn.ID,
			"refund_id":      refundID,
			"amount":         amount.String(),
		}).Info("payment refunded")
		return nil
	}

	current, err := r.store.GetByID(ctx, txn.ID)
	if err != nil {
		return err
	}
	if current.Status == billing.TransactionStatusRefunded {
		return nil
	}
	r.metrics.TransitionAnomaliesTotal.Inc()
	return &billing.InvalidTransitionError{
		Entity: "payment_transaction",
		ID:     txn.ID,
		From:   string(current.Status),
		To:     string(billing.TransactionStatusRefunded),
	}
}

// InitiateRefund asks the provider to refund a successful transaction and
// records the result. A zero amount refunds in full.
func (r *Reconciler) InitiateRefund(ctx context.Context, transactionID string, amount decimal.Decimal) (*gateway.RefundResult, error) {
	txn, err := r.store.GetByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn.Status != billing.TransactionStatusSuccess {
		return nil, &billing.InvalidStateError{
			Entity:   "payment_transaction",
			ID:       txn.ID,
			Expected: string(billing.TransactionStatusSuccess),
			Actual:   string(txn.Status),
		}
	}
	if txn.GatewayPaymentID == nil {
		return nil, fmt.Errorf("transaction %s has no gateway payment id", txn.ID)
	}

	adapter, err := r.adapter(txn.Gateway)
	if err != nil {
		return nil, err
	}
	result, err := adapter.Refund(ctx, *txn.GatewayPaymentID, amount)
	if err != nil {
		return nil, err
	}

	if err := r.applyRefund(ctx, txn, result.RefundID, result.Amount); err != nil {
		return nil, err
	}
	return result, nil
}

// RecordManualPayment records an out-of-band settlement (bank transfer, cash,
// cheque) taken by an operator: a settled manual transaction plus the invoice
// transition. The reference doubles as the idempotency key.
func (r *Reconciler) RecordManualPayment(ctx context.Context, invoiceID string, method billing.PaymentMethod, reference string) (*billing.PaymentTransaction, error) {
	invoice, err := r.ledger.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	txn := &billing.PaymentTransaction{
		OwnerID:        invoice.OwnerID,
		InvoiceID:      &invoice.ID,
		Gateway:        billing.GatewayManual,
		GatewayOrderID: "manual-" + reference,
		Amount:         invoice.TotalAmount,
		Currency:       r.currency,
		Status:         billing.TransactionStatusPending,
	}
	if err := r.store.Insert(ctx, txn); err != nil {
		return nil, err
	}
	if err := r.applySuccessWith(ctx, txn, reference, method); err != nil {
		return nil, err
	}

	return r.store.GetByID(ctx, txn.ID)
}

// History returns the caller's payment attempts, newest first
func (r *Reconciler) History(ctx context.Context, ownerID string) ([]*HistoryEntry, error) {
	txns, err := r.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	entries := make([]*HistoryEntry, 0, len(txns))
	for _, txn := range txns {
		entries = append(entries, &HistoryEntry{
			ID:              txn.ID,
			TargetReference: txn.TargetReference(),
			Amount:          txn.Amount,
			Status:          txn.Status,
			Gateway:         txn.Gateway,
			CreatedAt:       txn.CreatedAt,
			CompletedAt:     txn.CompletedAt,
		})
	}
	return entries, nil
}

// Detail returns one of the caller's transactions
func (r *Reconciler) Detail(ctx context.Context, ownerID, transactionID string) (*billing.PaymentTransaction, error) {
	txn, err := r.store.GetByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn.OwnerID != ownerID {
		return nil, billing.ErrNotFound
	}
	return txn, nil
}
