package payments

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gstpilot/billing/pkg/billing"
)

func setupStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewPostgresStore(db), mock, func() { db.Close() }
}

func txnRow(id, orderID string, status billing.TransactionStatus) *sqlmock.Rows {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	return sqlmock.NewRows([]string{
		"id", "owner_id", "invoice_id", "proforma_id", "gateway", "gateway_order_id",
		"gateway_payment_id", "gateway_refund_id", "amount", "currency", "refund_amount",
		"status", "error_message", "created_at", "updated_at", "completed_at",
	}).AddRow(id, "owner-1", "inv-1", nil, "razorpay", orderID,
		nil, nil, "177.00", "INR", nil, status, nil, now, now, nil)
}

func TestInsert(t *testing.T) {
	invoiceID := "inv-1"
	txn := func() *billing.PaymentTransaction {
		return &billing.PaymentTransaction{
			OwnerID:        "owner-1",
			InvoiceID:      &invoiceID,
			Gateway:        billing.GatewayRazorpay,
			GatewayOrderID: "order_abc",
			Amount:         decimal.RequireFromString("177.00"),
			Currency:       "INR",
			Status:         billing.TransactionStatusPending,
		}
	}

	t.Run("success", func(t *testing.T) {
		store, mock, cleanup := setupStore(t)
		defer cleanup()

		now := time.Now()
		mock.ExpectQuery("INSERT INTO payment_transactions").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
				AddRow("txn-1", now, now))

		in := txn()
		require.NoError(t, store.Insert(context.Background(), in))
		assert.Equal(t, "txn-1", in.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate order id conflicts", func(t *testing.T) {
		store, mock, cleanup := setupStore(t)
		defer cleanup()

		mock.ExpectQuery("INSERT INTO payment_transactions").
			WillReturnError(&pq.Error{Code: "23505"})

		err := store.Insert(context.Background(), txn())
		var conflict *billing.ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, "order_abc", conflict.ID)
	})
}

func TestGetByOrderID(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		store, mock, cleanup := setupStore(t)
		defer cleanup()

		mock.ExpectQuery("SELECT (.+) FROM payment_transactions WHERE gateway_order_id").
			WithArgs("order_abc").
			WillReturnRows(txnRow("txn-1", "order_abc", billing.TransactionStatusPending))

		txn, err := store.GetByOrderID(context.Background(), "order_abc")
		require.NoError(t, err)
		assert.Equal(t, "txn-1", txn.ID)
		require.NotNil(t, txn.InvoiceID)
		assert.Equal(t, "inv-1", *txn.InvoiceID)
		assert.Nil(t, txn.GatewayPaymentID)
	})

	t.Run("not found", func(t *testing.T) {
		store, mock, cleanup := setupStore(t)
		defer cleanup()

		mock.ExpectQuery("SELECT (.+) FROM payment_transactions WHERE gateway_order_id").
			WillReturnError(sql.ErrNoRows)

		_, err := store.GetByOrderID(context.Background(), "order_missing")
		assert.ErrorIs(t, err, billing.ErrNotFound)
	})
}

func TestMarkSuccess(t *testing.T) {
	t.Run("applies the pending guard", func(t *testing.T) {
		store, mock, cleanup := setupStore(t)
		defer cleanup()

		mock.ExpectExec("UPDATE payment_transactions").
			WithArgs("txn-1", "pay_123").
			WillReturnResult(sqlmock.NewResult(0, 1))

		applied, err := store.MarkSuccess(context.Background(), "txn-1", "pay_123")
		require.NoError(t, err)
		assert.True(t, applied)
	})

	t.Run("reports an unapplied transition without error", func(t *testing.T) {
		store, mock, cleanup := setupStore(t)
		defer cleanup()

		mock.ExpectExec("UPDATE payment_transactions").
			WithArgs("txn-1", "pay_123").
			WillReturnResult(sqlmock.NewResult(0, 0))

		applied, err := store.MarkSuccess(context.Background(), "txn-1", "pay_123")
		require.NoError(t, err)
		assert.False(t, applied)
	})
}

func TestMarkRefunded(t *testing.T) {
	store, mock, cleanup := setupStore(t)
	defer cleanup()

	amount := decimal.RequireFromString("50.00")
	mock.ExpectExec("UPDATE payment_transactions").
		WithArgs("txn-1", "rfnd_1", amount).
		WillReturnResult(sqlmock.NewResult(0, 1))

	applied, err := store.MarkRefunded(context.Background(), "txn-1", "rfnd_1", amount)
	require.NoError(t, err)
	assert.True(t, applied)
}

func TestListByOwner(t *testing.T) {
	store, mock, cleanup := setupStore(t)
	defer cleanup()

	rows := txnRow("txn-2", "order_b", billing.TransactionStatusSuccess)
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	rows.AddRow("txn-1", "owner-1", "inv-1", nil, "razorpay", "order_a",
		nil, nil, "177.00", "INR", nil, billing.TransactionStatusFailed, "declined", now, now, now)

	mock.ExpectQuery("SELECT (.+) FROM payment_transactions WHERE owner_id").
		WithArgs("owner-1").
		WillReturnRows(rows)

	txns, err := store.ListByOwner(context.Background(), "owner-1")
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, billing.TransactionStatusSuccess, txns[0].Status)
	require.NotNil(t, txns[1].ErrorMessage)
	assert.Equal(t, "declined", *txns[1].ErrorMessage)
}
