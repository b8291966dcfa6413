// Package notify delivers billing events to downstream notification
// consumers. The engine only emits events here; rendering and user delivery
// (email, push, WhatsApp) belong to the notification service consuming them.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/gstpilot/billing/pkg/observability"
)

// Event categories emitted by the billing engine
const (
	CategoryPaymentReceived = "payment_received"
	CategoryPaymentReminder = "payment_reminder"
	CategoryInvoiceOverdue  = "invoice_overdue"
)

// Sink receives billing events for an owner
type Sink interface {
	Notify(ctx context.Context, ownerID, category string, payload map[string]any) error
}

// Event is the wire form of a dispatched billing event
type Event struct {
	ID        string         `json:"id"`
	OwnerID   string         `json:"owner_id"`
	Category  string         `json:"category"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// WebhookSink POSTs signed JSON events to a configured endpoint
type WebhookSink struct {
	url    string
	secret string
	client *http.Client
	logger *observability.Logger
}

// NewWebhookSink creates a WebhookSink. secret signs each delivery so the
// consumer can authenticate the engine.
func NewWebhookSink(url, secret string, logger *observability.Logger) *WebhookSink {
	return &WebhookSink{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// Notify delivers one event. Failures are returned to the caller; the engine
// treats notification failure as non-fatal to the financial transition that
// produced it.
func (s *WebhookSink) Notify(ctx context.Context, ownerID, category string, payload map[string]any) error {
	event := Event{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Category:  category,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Billing-Event", category)
	req.Header.Set("X-Billing-Event-ID", event.ID)
	if s.secret != "" {
		req.Header.Set("X-Billing-Signature", Sign(body, s.secret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification sink returned %d", resp.StatusCode)
	}

	s.logger.WithFields(map[string]any{
		"event_id": event.ID,
		"category": category,
		"owner_id": ownerID,
	}).Debug("billing event delivered")
	return nil
}

// LogSink writes events to the log only. Used in development and as a safe
// default when no sink endpoint is configured.
type LogSink struct {
	logger *observability.Logger
}

// NewLogSink creates a LogSink
func NewLogSink(logger *observability.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Notify logs the event
func (s *LogSink) Notify(_ context.Context, ownerID, category string, payload map[string]any) error {
	s.logger.WithFields(map[string]any{
		"owner_id": ownerID,
		"category": category,
		"payload":  payload,
	}).Info("billing event")
	return nil
}

// Sign computes the hex HMAC-SHA256 signature consumers verify deliveries
// with
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a delivery signature in constant time
func VerifySignature(body []byte, signature, secret string) bool {
	return hmac.Equal([]byte(Sign(body, secret)), []byte(signature))
}
