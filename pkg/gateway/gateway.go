// Package gateway is the thin boundary to external payment providers. All
// amounts cross this boundary as integer minor units; everything behind it
// stays in exact decimal currency. All signature checks are HMAC with
// constant-time comparison.
package gateway

import (
	"context"

	"github.com/shopspring/decimal"
)

// Order is the client-facing result of creating a provider order. It carries
// the provider's publishable key, never the shared secret.
type Order struct {
	OrderID     string          `json:"order_id"`
	Amount      decimal.Decimal `json:"amount"`
	AmountMinor int64           `json:"amount_minor"`
	Currency    string          `json:"currency"`
	KeyID       string          `json:"key_id"`
}

// VerificationResult is the outcome of verifying a client-initiated payment
// confirmation
type VerificationResult struct {
	Verified       bool            `json:"verified"`
	ProviderStatus string          `json:"provider_status,omitempty"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	Method         string          `json:"method,omitempty"`
	Reason         string          `json:"reason,omitempty"`
}

// RefundResult is the outcome of initiating a refund
type RefundResult struct {
	RefundID string          `json:"refund_id"`
	Status   string          `json:"status"`
	Amount   decimal.Decimal `json:"amount"`
}

// PaymentDetails is a provider-side payment snapshot
type PaymentDetails struct {
	PaymentID string          `json:"payment_id"`
	OrderID   string          `json:"order_id"`
	Status    string          `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Method    string          `json:"method,omitempty"`
}

// OrderMetadata travels with an order as provider notes
type OrderMetadata struct {
	OwnerID    string
	TargetID   string
	TargetKind string
}

// Adapter is implemented once per external payment provider
type Adapter interface {
	// Name returns the provider identifier, e.g. "razorpay"
	Name() string

	// CreateOrder registers a payable order with the provider
	CreateOrder(ctx context.Context, amount decimal.Decimal, currency string, meta OrderMetadata) (*Order, error)

	// VerifyClientConfirmation checks a client-supplied payment signature and
	// fetches the provider's view of the payment
	VerifyClientConfirmation(ctx context.Context, paymentID, orderID, clientSignature string) (*VerificationResult, error)

	// VerifyWebhookSignature checks the provider's HMAC over the raw webhook
	// body. It must be called before the body is parsed.
	VerifyWebhookSignature(rawBody []byte, headerSignature string) bool

	// Refund initiates a full or partial refund. A zero amount means full.
	Refund(ctx context.Context, paymentID string, amount decimal.Decimal) (*RefundResult, error)

	// FetchPayment retrieves the provider's record of a payment
	FetchPayment(ctx context.Context, paymentID string) (*PaymentDetails, error)
}
