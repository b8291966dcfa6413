package payments

import (
	"encoding/json"
	"fmt"
)

// Webhook event types the reconciler absorbs. Providers deliver these
// at-least-once, so every handler must be idempotent.
const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
	EventRefundCreated   = "refund.created"
)

// WebhookEvent is the parsed provider event envelope
type WebhookEvent struct {
	ID      string         `json:"id"`
	Event   string         `json:"event"`
	Payload webhookPayload `json:"payload"`
}

type webhookPayload struct {
	Payment *webhookEntity `json:"payment,omitempty"`
	Refund  *webhookEntity `json:"refund,omitempty"`
}

type webhookEntity struct {
	Entity webhookEntityFields `json:"entity"`
}

type webhookEntityFields struct {
	ID        string       `json:"id"`
	OrderID   string       `json:"order_id"`
	PaymentID string       `json:"payment_id"`
	Amount    int64        `json:"amount"`
	Error     webhookError `json:"error"`
}

type webhookError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// parseWebhookEvent decodes the raw body into an event envelope. Callers must
// have verified the body's signature first.
func parseWebhookEvent(rawBody []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return nil, fmt.Errorf("failed to parse webhook body: %w", err)
	}
	if event.Event == "" {
		return nil, fmt.Errorf("webhook body has no event type")
	}
	return &event, nil
}

// payment returns the payment entity fields or an error if the payload lacks
// them
func (e *WebhookEvent) payment() (*webhookEntityFields, error) {
	if e.Payload.Payment == nil {
		return nil, fmt.Errorf("%s event has no payment payload", e.Event)
	}
	return &e.Payload.Payment.Entity, nil
}

// refund returns the refund entity fields or an error if the payload lacks
// them
func (e *WebhookEvent) refund() (*webhookEntityFields, error) {
	if e.Payload.Refund == nil {
		return nil, fmt.Errorf("%s event has no refund payload", e.Event)
	}
	return &e.Payload.Refund.Entity, nil
}
