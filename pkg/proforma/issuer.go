// Package proforma issues non-binding, time-boxed price quotes and drives
// their lifecycle: pending quotes either convert into binding invoices or get
// cancelled by the expiry sweep.
package proforma

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gstpilot/billing/pkg/billing"
	"github.com/gstpilot/billing/pkg/invoices"
	"github.com/gstpilot/billing/pkg/rates"
)

// Issuer defines proforma issuance and lifecycle operations
type Issuer interface {
	Issue(ctx context.Context, req *IssueRequest) (*billing.ProformaInvoice, error)
	Convert(ctx context.Context, proformaID string) (*billing.Invoice, error)
	Get(ctx context.Context, id string) (*billing.ProformaInvoice, error)
	ListByOwner(ctx context.Context, ownerID string, status billing.ProformaStatus) ([]*billing.ProformaInvoice, error)
	ExpireAllDue(ctx context.Context, now time.Time) (int64, error)
}

// IssueRequest holds the inputs for a new proforma quote
type IssueRequest struct {
	OwnerID      string
	UnitCount    int
	BillingRef   string
	ValidityDays int
}

const (
	defaultValidityDays = 15
	invoiceDueInDays    = 30
)

// PostgresIssuer implements Issuer using PostgreSQL. Prices come from the
// rate catalog; conversion delegates invoice creation to the ledger inside
// the same transaction that flips the proforma status.
type PostgresIssuer struct {
	db      *sql.DB
	catalog rates.Catalog
	ledger  invoices.Ledger
	taxRate decimal.Decimal
	now     func() time.Time
}

// NewPostgresIssuer creates a new PostgresIssuer. taxRate is the GST
// percentage applied to every quote (18.00 for the standard service rate).
func NewPostgresIssuer(db *sql.DB, catalog rates.Catalog, ledger invoices.Ledger, taxRate decimal.Decimal) *PostgresIssuer {
	return &PostgresIssuer{
		db:      db,
		catalog: catalog,
		ledger:  ledger,
		taxRate: taxRate,
		now:     time.Now,
	}
}

const proformaColumns = `id, number, owner_id, base_amount, tax_rate, tax_amount, total_amount,
	status, description, billing_ref, valid_until, created_at, updated_at`

// Issue prices a billing-unit count through the rate catalog and persists a
// pending quote. Tax is computed with minor-unit round-half-up so that
// base + tax always equals total exactly.
func (i *PostgresIssuer) Issue(ctx context.Context, req *IssueRequest) (*billing.ProformaInvoice, error) {
	now := i.now()

	slab, err := i.catalog.Resolve(ctx, req.UnitCount, now)
	if err != nil {
		return nil, err
	}

	validityDays := req.ValidityDays
	if validityDays <= 0 {
		validityDays = defaultValidityDays
	}

	base := billing.RoundMoney(slab.Price)
	tax, total := billing.ComputeTax(base, i.taxRate)

	query := `
		INSERT INTO proforma_invoices (id, number, owner_id, base_amount, tax_rate,
			tax_amount, total_amount, status, description, billing_ref, valid_until)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`
	p := &billing.ProformaInvoice{
		Number:      billing.NewProformaNumber(now),
		OwnerID:     req.OwnerID,
		BaseAmount:  base,
		TaxRate:     i.taxRate,
		TaxAmount:   tax,
		TotalAmount: total,
		Status:      billing.ProformaStatusPending,
		Description: fmt.Sprintf("GST filing service - %d invoices", req.UnitCount),
		BillingRef:  req.BillingRef,
		ValidUntil:  now.AddDate(0, 0, validityDays),
	}
	err = i.db.QueryRowContext(ctx, query, p.Number, p.OwnerID, p.BaseAmount, p.TaxRate,
		p.TaxAmount, p.TotalAmount, p.Status, p.Description, p.BillingRef, p.ValidUntil).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create proforma invoice: %w", err)
	}

	return p, nil
}

// Convert turns a pending, unexpired proforma into a binding invoice. The
// status flip and the invoice insert share one transaction, and the flip is
// guarded by the pending status and the validity window, so a race with the
// expiry sweep has a deterministic winner: whichever transaction commits
// first wins and the loser observes InvalidStateError.
func (i *PostgresIssuer) Convert(ctx context.Context, proformaID string) (*billing.Invoice, error) {
	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin conversion: %w", err)
	}
	defer tx.Rollback()

	now := i.now()
	query := `
		UPDATE proforma_invoices
		SET status = 'paid', updated_at = NOW()
		WHERE id = $1 AND status = 'pending' AND valid_until >= $2
		RETURNING ` + proformaColumns + `
	`
	p, err := scanProforma(tx.QueryRowContext(ctx, query, proformaID, now))
	if err == sql.ErrNoRows {
		return nil, i.classifyConvertFailure(ctx, proformaID, now)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to convert proforma: %w", err)
	}

	invoice, err := i.ledger.CreateTx(ctx, tx, &invoices.CreateParams{
		OwnerID:     p.OwnerID,
		ProformaID:  &p.ID,
		BaseAmount:  p.BaseAmount,
		TaxAmount:   p.TaxAmount,
		TotalAmount: p.TotalAmount,
		Description: p.Description,
		DueInDays:   invoiceDueInDays,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create invoice from proforma %s: %w", proformaID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit conversion: %w", err)
	}
	return invoice, nil
}

func (i *PostgresIssuer) classifyConvertFailure(ctx context.Context, proformaID string, now time.Time) error {
	p, err := i.Get(ctx, proformaID)
	if err != nil {
		return err
	}
	actual := string(p.Status)
	if p.Status == billing.ProformaStatusPending && p.IsExpired(now) {
		actual = "expired"
	}
	return &billing.InvalidStateError{
		Entity:   "proforma",
		ID:       proformaID,
		Expected: "pending and unexpired",
		Actual:   actual,
	}
}

// Get retrieves a proforma by ID
func (i *PostgresIssuer) Get(ctx context.Context, id string) (*billing.ProformaInvoice, error) {
	query := `SELECT ` + proformaColumns + ` FROM proforma_invoices WHERE id = $1`
	p, err := scanProforma(i.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, billing.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get proforma: %w", err)
	}
	return p, nil
}

// ListByOwner lists an owner's proformas, newest first, optionally filtered
// by status
func (i *PostgresIssuer) ListByOwner(ctx context.Context, ownerID string, status billing.ProformaStatus) ([]*billing.ProformaInvoice, error) {
	query := `SELECT ` + proformaColumns + ` FROM proforma_invoices WHERE owner_id = $1`
	args := []any{ownerID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := i.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list proformas: %w", err)
	}
	defer rows.Close()

	var proformas []*billing.ProformaInvoice
	for rows.Next() {
		p, err := scanProforma(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan proforma: %w", err)
		}
		proformas = append(proformas, p)
	}
	return proformas, rows.Err()
}

// ExpireAllDue cancels every pending proforma whose validity window has
// passed and returns the count. The write is guarded by the pending status,
// so the sweep is idempotent, restartable after partial failure, and cannot
// cancel a proforma that a concurrent Convert already settled.
func (i *PostgresIssuer) ExpireAllDue(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE proforma_invoices
		SET status = 'cancelled', updated_at = NOW()
		WHERE status = 'pending' AND valid_until < $1
	`
	result, err := i.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire proformas: %w", err)
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

func scanProforma(row rowScanner) (*billing.ProformaInvoice, error) {
	p := &billing.ProformaInvoice{}
	err := row.Scan(&p.ID, &p.Number, &p.OwnerID, &p.BaseAmount, &p.TaxRate, &p.TaxAmount,
		&p.TotalAmount, &p.Status, &p.Description, &p.BillingRef, &p.ValidUntil,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}
