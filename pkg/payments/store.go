package payments

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/gstpilot/billing/pkg/billing"
)

// Store persists payment transactions. Every status change is a conditional
// update guarded by the expected prior status: the database's transactional
// guarantees are the only mutual-exclusion mechanism, so of several racing
// writers exactly one applies a given transition and the rest observe zero
// affected rows.
type Store interface {
	Insert(ctx context.Context, txn *billing.PaymentTransaction) error
	GetByID(ctx context.Context, id string) (*billing.PaymentTransaction, error)
	GetByIDAndOrder(ctx context.Context, id, gatewayOrderID string) (*billing.PaymentTransaction, error)
	GetByOrderID(ctx context.Context, gatewayOrderID string) (*billing.PaymentTransaction, error)
	GetByPaymentID(ctx context.Context, gatewayPaymentID string) (*billing.PaymentTransaction, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*billing.PaymentTransaction, error)
	MarkSuccess(ctx context.Context, id, gatewayPaymentID string) (bool, error)
	MarkFailed(ctx context.Context, id, errorMessage string) (bool, error)
	MarkRefunded(ctx context.Context, id, refundID string, amount decimal.Decimal) (bool, error)
}

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const txnColumns = `id, owner_id, invoice_id, proforma_id, gateway, gateway_order_id,
	gateway_payment_id, gateway_refund_id, amount, currency, refund_amount, status,
	error_message, created_at, updated_at, completed_at`

// Insert persists a new transaction. gateway_order_id carries a unique
// constraint; inserting a duplicate is a ConflictError because the order id
// is the idempotency key for all external confirmations.
func (s *PostgresStore) Insert(ctx context.Context, txn *billing.PaymentTransaction) error {
	query := `
		INSERT INTO payment_transactions (id, owner_id, invoice_id, proforma_id, gateway,
			gateway_order_id, amount, currency, status)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query, txn.OwnerID, txn.InvoiceID, txn.ProformaID,
		txn.Gateway, txn.GatewayOrderID, txn.Amount, txn.Currency, txn.Status).
		Scan(&txn.ID, &txn.CreatedAt, &txn.UpdatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return &billing.ConflictError{
				Entity: "payment_transaction",
				ID:     txn.GatewayOrderID,
				Reason: "a transaction already exists for this gateway order",
			}
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

// GetByID retrieves a transaction by ID
func (s *PostgresStore) GetByID(ctx context.Context, id string) (*billing.PaymentTransaction, error) {
	return s.getWhere(ctx, `id = $1`, id)
}

// GetByIDAndOrder retrieves a transaction by the (id, gateway order) pair the
// client echoes back on confirmation
func (s *PostgresStore) GetByIDAndOrder(ctx context.Context, id, gatewayOrderID string) (*billing.PaymentTransaction, error) {
	return s.getWhere(ctx, `id = $1 AND gateway_order_id = $2`, id, gatewayOrderID)
}

// GetByOrderID retrieves a transaction by its idempotency key
func (s *PostgresStore) GetByOrderID(ctx context.Context, gatewayOrderID string) (*billing.PaymentTransaction, error) {
	return s.getWhere(ctx, `gateway_order_id = $1`, gatewayOrderID)
}

// GetByPaymentID retrieves a transaction by the provider payment id, the only
// handle refund events carry
func (s *PostgresStore) GetByPaymentID(ctx context.Context, gatewayPaymentID string) (*billing.PaymentTransaction, error) {
	return s.getWhere(ctx, `gateway_payment_id = $1`, gatewayPaymentID)
}

func (s *PostgresStore) getWhere(ctx context.Context, where string, args ...any) (*billing.PaymentTransaction, error) {
	query := `SELECT ` + txnColumns + ` FROM payment_transactions WHERE ` + where
	txn, err := scanTransaction(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, billing.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return txn, nil
}

// ListByOwner lists an owner's transactions, newest first
func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID string) ([]*billing.PaymentTransaction, error) {
	query := `SELECT ` + txnColumns + ` FROM payment_transactions WHERE owner_id = $1 ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txns []*billing.PaymentTransaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

// MarkSuccess applies pending -> success. Returns false when no row was in
// pending, in which case the caller re-reads and classifies (idempotent
// duplicate vs illegal transition).
func (s *PostgresStore) MarkSuccess(ctx context.Context, id, gatewayPaymentID string) (bool, error) {
	query := `
		UPDATE payment_transactions
		SET status = 'success', gateway_payment_id = $2, completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`
	return s.guardedExec(ctx, query, id, gatewayPaymentID)
}

// MarkFailed applies pending -> failed
func (s *PostgresStore) MarkFailed(ctx context.Context, id, errorMessage string) (bool, error) {
	query := `
		UPDATE payment_transactions
		SET status = 'failed', error_message = $2, completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`
	return s.guardedExec(ctx, query, id, errorMessage)
}

// MarkRefunded applies success -> refunded, the only legal move out of
// success
func (s *PostgresStore) MarkRefunded(ctx context.Context, id, refundID string, amount decimal.Decimal) (bool, error) {
	query := `
		UPDATE payment_transactions
		SET status = 'refunded', gateway_refund_id = $2, refund_amount = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'success'
	`
	return s.guardedExec(ctx, query, id, refundID, amount)
}

func (s *PostgresStore) guardedExec(ctx context.Context, query string, args ...any) (bool, error) {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update transaction: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected == 1, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*billing.PaymentTransaction, error) {
	txn := &billing.PaymentTransaction{}
	var (
		invoiceID    sql.NullString
		proformaID   sql.NullString
		paymentID    sql.NullString
		refundID     sql.NullString
		refundAmount decimal.NullDecimal
		errorMessage sql.NullString
		completedAt  sql.NullTime
	)
	err := row.Scan(&txn.ID, &txn.OwnerID, &invoiceID, &proformaID, &txn.Gateway,
		&txn.GatewayOrderID, &paymentID, &refundID, &txn.Amount, &txn.Currency,
		&refundAmount, &txn.Status, &errorMessage, &txn.CreatedAt, &txn.UpdatedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	if invoiceID.Valid {
		txn.InvoiceID = &invoiceID.String
	}
	if proformaID.Valid {
		txn.ProformaID = &proformaID.String
	}
	if paymentID.Valid {
		txn.GatewayPaymentID = &paymentID.String
	}
	if refundID.Valid {
		txn.GatewayRefundID = &refundID.String
	}
	if refundAmount.Valid {
		txn.RefundAmount = &refundAmount.Decimal
	}
	if errorMessage.Valid {
		txn.ErrorMessage = &errorMessage.String
	}
	if completedAt.Valid {
		txn.CompletedAt = &completedAt.Time
	}
	return txn, nil
}
