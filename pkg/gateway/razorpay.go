package gateway

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
	"github.com/shopspring/decimal"

	"github.com/gstpilot/billing/pkg/billing"
)

const (
	razorpayBaseURL = "https://api.razorpay.com/v1"
	razorpayTimeout = 15 * time.Second
)

// Razorpay implements Adapter against the Razorpay REST API
type Razorpay struct {
	keyID         string
	keySecret     string
	webhookSecret string
	baseURL       string
	client        *http.Client
}

// NewRazorpay creates a Razorpay adapter. keyID is publishable and is echoed
// to clients in order data; keySecret and webhookSecret never leave this
// package.
func NewRazorpay(keyID, keySecret, webhookSecret string) *Razorpay {
	return &Razorpay{
		keyID:         keyID,
		keySecret:     keySecret,
		webhookSecret: webhookSecret,
		baseURL:       razorpayBaseURL,
		client:        &http.Client{Timeout: razorpayTimeout},
	}
}

// Name returns the provider identifier
func (r *Razorpay) Name() string { return string(billing.GatewayRazorpay) }

type razorpayOrderRequest struct {
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	Receipt        string            `json:"receipt"`
	Notes          map[string]string `json:"notes,omitempty"`
	PaymentCapture int               `json:"payment_capture"`
}

type razorpayOrderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

// CreateOrder registers an auto-capture order. The decimal amount is
// converted to paise here and nowhere else.
func (r *Razorpay) CreateOrder(ctx context.Context, amount decimal.Decimal, currency string, meta OrderMetadata) (*Order, error) {
	body := razorpayOrderRequest{
		Amount:   billing.ToMinorUnits(amount),
		Currency: currency,
		Receipt:  fmt.Sprintf("receipt_%s", uuid.NewString()[:8]),
		Notes: map[string]string{
			"owner_id":    meta.OwnerID,
			"target_id":   meta.TargetID,
			"target_kind": meta.TargetKind,
		},
		PaymentCapture: 1,
	}

	var resp razorpayOrderResponse
	if err := r.post(ctx, "/orders", body, &resp); err != nil {
		return nil, err
	}

	return &Order{
		OrderID:     resp.ID,
		Amount:      billing.FromMinorUnits(resp.Amount),
		AmountMinor: resp.Amount,
		Currency:    resp.Currency,
		KeyID:       r.keyID,
	}, nil
}

// VerifyClientConfirmation checks the checkout signature
// HMAC-SHA256(secret, orderID|paymentID) and, when it matches, fetches the
// payment to report the provider's status and captured amount. A signature
// mismatch is a verification failure, not a transport error.
func (r *Razorpay) VerifyClientConfirmation(ctx context.Context, paymentID, orderID, clientSignature string) (*VerificationResult, error) {
	expected := signPayload([]byte(orderID+"|"+paymentID), r.keySecret)
	if !hmac.Equal([]byte(expected), []byte(clientSignature)) {
		return &VerificationResult{
			Verified: false,
			Reason:   "payment signature verification failed",
		}, nil
	}

	payment, err := r.FetchPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	return &VerificationResult{
		Verified:       true,
		ProviderStatus: payment.Status,
		PaidAmount:     payment.Amount,
		Method:         payment.Method,
	}, nil
}

// VerifyWebhookSignature checks HMAC-SHA256(webhookSecret, rawBody) in
// constant time
func (r *Razorpay) VerifyWebhookSignature(rawBody []byte, headerSignature string) bool {
	if r.webhookSecret == "" {
		return false
	}
	expected := signPayload(rawBody, r.webhookSecret)
	return hmac.Equal([]byte(expected), []byte(headerSignature))
}

type razorpayRefundRequest struct {
	Amount int64  `json:"amount,omitempty"`
	Speed  string `json:"speed,omitempty"`
}

type razorpayRefundResponse struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
	Status string `json:"status"`
}

// Refund initiates a refund for a captured payment. A zero amount refunds in
// full.
func (r *Razorpay) Refund(ctx context.Context, paymentID string, amount decimal.Decimal) (*RefundResult, error) {
	body := razorpayRefundRequest{}
	if amount.IsPositive() {
		body.Amount = billing.ToMinorUnits(amount)
		body.Speed = "normal"
	}

	var resp razorpayRefundResponse
	if err := r.post(ctx, fmt.Sprintf("/payments/%s/refund", paymentID), body, &resp); err != nil {
		return nil, err
	}

	return &RefundResult{
		RefundID: resp.ID,
		Status:   resp.Status,
		Amount:   billing.FromMinorUnits(resp.Amount),
	}, nil
}

type razorpayPaymentResponse struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	Status   string `json:"status"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Method   string `json:"method"`
}

// FetchPayment retrieves the provider's record of a payment
func (r *Razorpay) FetchPayment(ctx context.Context, paymentID string) (*PaymentDetails, error) {
	var resp razorpayPaymentResponse
	if err := r.get(ctx, fmt.Sprintf("/payments/%s", paymentID), &resp); err != nil {
		return nil, err
	}

	return &PaymentDetails{
		PaymentID: resp.ID,
		OrderID:   resp.OrderID,
		Status:    resp.Status,
		Amount:    billing.FromMinorUnits(resp.Amount),
		Currency:  resp.Currency,
		Method:    resp.Method,
	}, nil
}

func (r *Razorpay) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return r.do(req, out)
}

func (r *Razorpay) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return r.do(req, out)
}

func (r *Razorpay) do(req *http.Request, out any) error {
	req.SetBasicAuth(r.keyID, r.keySecret)

	resp, err := r.client.Do(req)
	if err != nil {
		return &billing.GatewayUnavailableError{Gateway: r.Name(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error struct {
				Code        string `json:"code"`
				Description string `json:"description"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return &billing.GatewayUnavailableError{
			Gateway: r.Name(),
			Err:     fmt.Errorf("provider returned %d: %s %s", resp.StatusCode, apiErr.Error.Code, apiErr.Error.Description),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &billing.GatewayUnavailableError{
			Gateway: r.Name(),
			Err:     fmt.Errorf("failed to decode provider response: %w", err),
		}
	}
	return nil
}

// signPayload computes hex-encoded HMAC-SHA256 over payload
func signPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
