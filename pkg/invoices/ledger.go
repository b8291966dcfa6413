// Package invoices is the invoice ledger: it converts accepted proformas (or
// gateway-confirmed payments) into binding invoices, tracks due dates, and
// applies the overdue transition.
package invoices

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gstpilot/billing/pkg/billing"
)

// Ledger defines invoice creation and lifecycle operations
type Ledger interface {
	Create(ctx context.Context, params *CreateParams) (*billing.Invoice, error)
	CreateTx(ctx context.Context, tx *sql.Tx, params *CreateParams) (*billing.Invoice, error)
	Get(ctx context.Context, id string) (*billing.Invoice, error)
	ListByOwner(ctx context.Context, ownerID string, status billing.InvoiceStatus) ([]*billing.Invoice, error)
	PendingAmount(ctx context.Context, ownerID string) (decimal.Decimal, error)
	MarkPaid(ctx context.Context, id string, method billing.PaymentMethod, reference string) error
	SweepOverdue(ctx context.Context, asOf time.Time) (int64, error)
}

// CreateParams holds the fields for a new invoice
type CreateParams struct {
	OwnerID     string
	ProformaID  *string
	BaseAmount  decimal.Decimal
	TaxAmount   decimal.Decimal
	TotalAmount decimal.Decimal
	Description string
	DueInDays   int
}

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PostgresLedger implements Ledger using PostgreSQL
type PostgresLedger struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresLedger creates a new PostgresLedger
func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db, now: time.Now}
}

const invoiceColumns = `id, number, proforma_id, owner_id, base_amount, tax_amount, total_amount,
	status, description, due_date, payment_method, payment_reference, paid_at, created_at, updated_at`

// Create inserts a new issued invoice. The invoice number is computed here,
// before the row exists, and is immutable afterwards.
func (l *PostgresLedger) Create(ctx context.Context, params *CreateParams) (*billing.Invoice, error) {
	return l.create(ctx, l.db, params)
}

// CreateTx is Create inside a caller-owned transaction. Proforma conversion
// uses it so the proforma status write and the invoice insert commit together.
func (l *PostgresLedger) CreateTx(ctx context.Context, tx *sql.Tx, params *CreateParams) (*billing.Invoice, error) {
	return l.create(ctx, tx, params)
}

func (l *PostgresLedger) create(ctx context.Context, q querier, params *CreateParams) (*billing.Invoice, error) {
	if !params.BaseAmount.Add(params.TaxAmount).Equal(params.TotalAmount) {
		return nil, fmt.Errorf("invoice amounts do not balance: %s + %s != %s",
			params.BaseAmount, params.TaxAmount, params.TotalAmount)
	}

	now := l.now()
	dueInDays := params.DueInDays
	if dueInDays <= 0 {
		dueInDays = 30
	}

	query := `
		INSERT INTO invoices (id, number, proforma_id, owner_id, base_amount, tax_amount,
			total_amount, status, description, due_date)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`
	invoice := &billing.Invoice{
		Number:      billing.NewInvoiceNumber(now),
		ProformaID:  params.ProformaID,
		OwnerID:     params.OwnerID,
		BaseAmount:  params.BaseAmount,
		TaxAmount:   params.TaxAmount,
		TotalAmount: params.TotalAmount,
		Status:      billing.InvoiceStatusIssued,
		Description: params.Description,
		DueDate:     now.AddDate(0, 0, dueInDays),
	}
	err := q.QueryRowContext(ctx, query, invoice.Number, invoice.ProformaID, invoice.OwnerID,
		invoice.BaseAmount, invoice.TaxAmount, invoice.TotalAmount, invoice.Status,
		invoice.Description, invoice.DueDate).
		Scan(&invoice.ID, &invoice.CreatedAt, &invoice.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create invoice: %w", err)
	}

	return invoice, nil
}

// Get retrieves an invoice by ID
func (l *PostgresLedger) Get(ctx context.Context, id string) (*billing.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`
	invoice, err := scanInvoice(l.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, billing.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return invoice, nil
}

// ListByOwner lists invoices for an owner, newest first, optionally filtered
// by status
func (l *PostgresLedger) ListByOwner(ctx context.Context, ownerID string, status billing.InvoiceStatus) ([]*billing.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE owner_id = $1`
	args := []any{ownerID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []*billing.Invoice
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, invoice)
	}
	return invoices, rows.Err()
}

// PendingAmount sums the totals of an owner's unpaid (issued or overdue)
// invoices
func (l *PostgresLedger) PendingAmount(ctx context.Context, ownerID string) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(total_amount), 0)
		FROM invoices
		WHERE owner_id = $1 AND status IN ('issued', 'overdue')
	`
	var amount decimal.Decimal
	if err := l.db.QueryRowContext(ctx, query, ownerID).Scan(&amount); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum pending invoices: %w", err)
	}
	return amount, nil
}

// MarkPaid settles an invoice. The write is a single conditional update so
// concurrent writers cannot both settle the row: exactly one succeeds and
// every other caller observes the committed state. A duplicate call with the
// same payment reference is a no-op success; a duplicate with a different
// reference is a ConflictError, because one invoice cannot have been settled
// twice. Paying an overdue invoice clears the overdue state; a paid invoice
// never leaves paid here.
func (l *PostgresLedger) MarkPaid(ctx context.Context, id string, method billing.PaymentMethod, reference string) error {
	query := `
		UPDATE invoices
		SET status = 'paid', payment_method = $2, payment_reference = $3,
		    paid_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status IN ('issued', 'overdue')
	`
	result, err := l.db.ExecContext(ctx, query, id, method, reference)
	if err != nil {
		return fmt.Errorf("failed to mark invoice paid: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 1 {
		return nil
	}

	// No row transitioned: classify against the committed state.
	invoice, err := l.Get(ctx, id)
	if err != nil {
		return err
	}
	switch invoice.Status {
	case billing.InvoiceStatusPaid:
		if invoice.PaymentReference != nil && *invoice.PaymentReference == reference {
			return nil // duplicate settlement with the same reference
		}
		prior := "(none)"
		if invoice.PaymentReference != nil {
			prior = *invoice.PaymentReference
		}
		return &billing.ConflictError{
			Entity: "invoice",
			ID:     id,
			Reason: fmt.Sprintf("already paid with reference %s, refusing reference %s", prior, reference),
		}
	default:
		return &billing.InvalidStateError{
			Entity:   "invoice",
			ID:       id,
			Expected: "issued or overdue",
			Actual:   string(invoice.Status),
		}
	}
}

// SweepOverdue transitions issued invoices past their due date to overdue and
// returns the count affected. Each row's transition is independent and guarded
// by the issued status, so the sweep is idempotent and safe to re-run after a
// partial failure; a paid invoice is never touched regardless of due date.
func (l *PostgresLedger) SweepOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	query := `
		UPDATE invoices
		SET status = 'overdue', updated_at = NOW()
		WHERE status = 'issued' AND due_date < $1
	`
	result, err := l.db.ExecContext(ctx, query, asOf)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep overdue invoices: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (*billing.Invoice, error) {
	invoice := &billing.Invoice{}
	var (
		proformaID sql.NullString
		method     sql.NullString
		reference  sql.NullString
		paidAt     sql.NullTime
	)
	err := row.Scan(&invoice.ID, &invoice.Number, &proformaID, &invoice.OwnerID,
		&invoice.BaseAmount, &invoice.TaxAmount, &invoice.TotalAmount, &invoice.Status,
		&invoice.Description, &invoice.DueDate, &method, &reference, &paidAt,
		&invoice.CreatedAt, &invoice.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if proformaID.Valid {
		invoice.ProformaID = &proformaID.String
	}
	if method.Valid {
		m := billing.PaymentMethod(method.String)
		invoice.PaymentMethod = &m
	}
	if reference.Valid {
		invoice.PaymentReference = &reference.String
	}
	if paidAt.Valid {
		invoice.PaidAt = &paidAt.Time
	}
	return invoice, nil
}
