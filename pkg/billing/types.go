package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProformaStatus represents the status of a proforma invoice
type ProformaStatus string

const (
	ProformaStatusPending   ProformaStatus = "pending"
	ProformaStatusPaid      ProformaStatus = "paid"
	ProformaStatusCancelled ProformaStatus = "cancelled"
)

// InvoiceStatus represents the status of a final invoice
type InvoiceStatus string

const (
	InvoiceStatusIssued    InvoiceStatus = "issued"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusOverdue   InvoiceStatus = "overdue"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// TransactionStatus represents the status of a payment transaction.
// Legal transitions: pending -> success, pending -> failed, success -> refunded.
type TransactionStatus string

const (
	TransactionStatusPending  TransactionStatus = "pending"
	TransactionStatusSuccess  TransactionStatus = "success"
	TransactionStatusFailed   TransactionStatus = "failed"
	TransactionStatusRefunded TransactionStatus = "refunded"
)

// PaymentMethod represents how an invoice was settled
type PaymentMethod string

const (
	PaymentMethodOnline       PaymentMethod = "online"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodCheque       PaymentMethod = "cheque"
)

// IsManual reports whether the method is an out-of-band settlement recorded
// by an operator rather than confirmed by a gateway.
func (m PaymentMethod) IsManual() bool {
	switch m {
	case PaymentMethodBankTransfer, PaymentMethodCash, PaymentMethodCheque:
		return true
	}
	return false
}

// Gateway identifies an external payment provider
type Gateway string

const (
	GatewayRazorpay Gateway = "razorpay"
	GatewayManual   Gateway = "manual"
)

// RateSlab is a pricing band: a flat price for a billing-unit count range
// during an effective window. The zero-width slab (min=0, max=0) is the
// designated fallback and must always exist and stay active.
type RateSlab struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	MinUnits      int             `json:"min_units"`
	MaxUnits      int             `json:"max_units"`
	Price         decimal.Decimal `json:"price"`
	EffectiveFrom time.Time       `json:"effective_from"`
	EffectiveTo   *time.Time      `json:"effective_to,omitempty"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Matches reports whether the slab applies to the given unit count at asOf.
// Both unit bounds and both date bounds are inclusive.
func (s *RateSlab) Matches(unitCount int, asOf time.Time) bool {
	if !s.IsActive {
		return false
	}
	if unitCount < s.MinUnits || unitCount > s.MaxUnits {
		return false
	}
	if asOf.Before(s.EffectiveFrom) {
		return false
	}
	if s.EffectiveTo != nil && asOf.After(*s.EffectiveTo) {
		return false
	}
	return true
}

// IsFallback reports whether this is the designated nil-rate slab
func (s *RateSlab) IsFallback() bool {
	return s.MinUnits == 0 && s.MaxUnits == 0
}

// ProformaInvoice is a non-binding, time-boxed price quote. It is an
// append-only financial record: status moves pending->paid on conversion or
// pending->cancelled on expiry, and rows are never deleted.
type ProformaInvoice struct {
	ID           string          `json:"id"`
	Number       string          `json:"number"`
	OwnerID      string          `json:"owner_id"`
	BaseAmount   decimal.Decimal `json:"base_amount"`
	TaxRate      decimal.Decimal `json:"tax_rate"`
	TaxAmount    decimal.Decimal `json:"tax_amount"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Status       ProformaStatus  `json:"status"`
	Description  string          `json:"description,omitempty"`
	BillingRef   string          `json:"billing_ref,omitempty"`
	ValidUntil   time.Time       `json:"valid_until"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// IsExpired reports whether the proforma validity window has passed
func (p *ProformaInvoice) IsExpired(now time.Time) bool {
	return now.After(p.ValidUntil)
}

// Invoice is a binding financial record. status=paid implies
// payment_reference and paid_at are set.
type Invoice struct {
	ID               string          `json:"id"`
	Number           string          `json:"number"`
	ProformaID       *string         `json:"proforma_id,omitempty"`
	OwnerID          string          `json:"owner_id"`
	BaseAmount       decimal.Decimal `json:"base_amount"`
	TaxAmount        decimal.Decimal `json:"tax_amount"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	Status           InvoiceStatus   `json:"status"`
	Description      string          `json:"description,omitempty"`
	DueDate          time.Time       `json:"due_date"`
	PaymentMethod    *PaymentMethod  `json:"payment_method,omitempty"`
	PaymentReference *string         `json:"payment_reference,omitempty"`
	PaidAt           *time.Time      `json:"paid_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// PaymentTransaction records a single payment attempt against an invoice or
// a proforma. gateway_order_id is unique and is the idempotency key for all
// external confirmations.
type PaymentTransaction struct {
	ID               string            `json:"id"`
	OwnerID          string            `json:"owner_id"`
	InvoiceID        *string           `json:"invoice_id,omitempty"`
	ProformaID       *string           `json:"proforma_id,omitempty"`
	Gateway          Gateway           `json:"gateway"`
	GatewayOrderID   string            `json:"gateway_order_id"`
	GatewayPaymentID *string           `json:"gateway_payment_id,omitempty"`
	GatewayRefundID  *string           `json:"gateway_refund_id,omitempty"`
	Amount           decimal.Decimal   `json:"amount"`
	Currency         string            `json:"currency"`
	RefundAmount     *decimal.Decimal  `json:"refund_amount,omitempty"`
	Status           TransactionStatus `json:"status"`
	ErrorMessage     *string           `json:"error_message,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	CompletedAt      *time.Time        `json:"completed_at,omitempty"`
}

// TargetReference returns the invoice or proforma the transaction pays for
func (t *PaymentTransaction) TargetReference() string {
	if t.InvoiceID != nil {
		return *t.InvoiceID
	}
	if t.ProformaID != nil {
		return *t.ProformaID
	}
	return ""
}

// CanTransitionTo reports whether moving to target is a legal state-machine
// edge from the current status
func (t *PaymentTransaction) CanTransitionTo(target TransactionStatus) bool {
	switch t.Status {
	case TransactionStatusPending:
		return target == TransactionStatusSuccess || target == TransactionStatusFailed
	case TransactionStatusSuccess:
		return target == TransactionStatusRefunded
	default:
		return false
	}
}

// NewProformaNumber generates an immutable proforma invoice number,
// e.g. PI-20250901-3FA2C1
func NewProformaNumber(now time.Time) string {
	return numberWithPrefix("PI", now)
}

// NewInvoiceNumber generates an immutable final invoice number,
// e.g. INV-20250901-3FA2C1
func NewInvoiceNumber(now time.Time) string {
	return numberWithPrefix("INV", now)
}

func numberWithPrefix(prefix string, now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("%s-%s-%s", prefix, now.Format("20060102"), suffix)
}
