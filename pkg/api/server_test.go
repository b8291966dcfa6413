package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gstpilot/billing/pkg/audit"
	"github.com/gstpilot/billing/pkg/billing"
	"github.com/gstpilot/billing/pkg/gateway"
	"github.com/gstpilot/billing/pkg/invoices"
	"github.com/gstpilot/billing/pkg/observability"
	"github.com/gstpilot/billing/pkg/payments"
	"github.com/gstpilot/billing/pkg/proforma"
	"github.com/gstpilot/billing/pkg/rates"
)

// In-memory collaborators. Each implements just enough of its interface for
// the routes under test; unused operations panic so an accidental call fails
// loudly.

type memStore struct {
	txns map[string]*billing.PaymentTransaction
	next int
}

func (m *memStore) Insert(ctx context.Context, txn *billing.PaymentTransaction) error {
	m.next++
	txn.ID = "txn-1"
	txn.CreatedAt = time.Now()
	m.txns[txn.ID] = txn
	return nil
}

func (m *memStore) GetByID(ctx context.Context, id string) (*billing.PaymentTransaction, error) {
	txn, ok := m.txns[id]
	if !ok {
		return nil, billing.ErrNotFound
	}
	return txn, nil
}

func (m *memStore) GetByIDAndOrder(ctx context.Context, id, orderID string) (*billing.PaymentTransaction, error) {
	return m.GetByID(ctx, id)
}

func (m *memStore) GetByOrderID(ctx context.Context, orderID string) (*billing.PaymentTransaction, error) {
	for _, txn := range m.txns {
		if txn.GatewayOrderID == orderID {
			return txn, nil
		}
	}
	return nil, billing.ErrNotFound
}

func (m *memStore) GetByPaymentID(ctx context.Context, paymentID string) (*billing.PaymentTransaction, error) {
	return nil, billing.ErrNotFound
}

func (m *memStore) ListByOwner(ctx context.Context, ownerID string) ([]*billing.PaymentTransaction, error) {
	var out []*billing.PaymentTransaction
	for _, txn := range m.txns {
		if txn.OwnerID == ownerID {
			out = append(out, txn)
		}
	}
	return out, nil
}

func (m *memStore) MarkSuccess(ctx context.Context, id, paymentID string) (bool, error) {
	txn, ok := m.txns[id]
	if !ok || txn.Status != billing.TransactionStatusPending {
		return false, nil
	}
	txn.Status = billing.TransactionStatusSuccess
	txn.GatewayPaymentID = &paymentID
	return true, nil
}

func (m *memStore) MarkFailed(ctx context.Context, id, message string) (bool, error) {
	txn, ok := m.txns[id]
	if !ok || txn.Status != billing.TransactionStatusPending {
		return false, nil
	}
	txn.Status = billing.TransactionStatusFailed
	return true, nil
}

func (m *memStore) MarkRefunded(ctx context.Context, id, refundID string, amount decimal.Decimal) (bool, error) {
	txn, ok := m.txns[id]
	if !ok || txn.Status != billing.TransactionStatusSuccess {
		return false, nil
	}
	txn.Status = billing.TransactionStatusRefunded
	return true, nil
}

type memLedger struct {
	invoices map[string]*billing.Invoice
}

func (m *memLedger) Create(ctx context.Context, params *invoices.CreateParams) (*billing.Invoice, error) {
	panic("not used")
}

func (m *memLedger) CreateTx(ctx context.Context, tx *sql.Tx, params *invoices.CreateParams) (*billing.Invoice, error) {
	panic("not used")
}

func (m *memLedger) Get(ctx context.Context, id string) (*billing.Invoice, error) {
	inv, ok := m.invoices[id]
	if !ok {
		return nil, billing.ErrNotFound
	}
	return inv, nil
}

func (m *memLedger) ListByOwner(ctx context.Context, ownerID string, status billing.InvoiceStatus) ([]*billing.Invoice, error) {
	var out []*billing.Invoice
	for _, inv := range m.invoices {
		if inv.OwnerID == ownerID && (status == "" || inv.Status == status) {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (m *memLedger) PendingAmount(ctx context.Context, ownerID string) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, inv := range m.invoices {
		if inv.OwnerID == ownerID && (inv.Status == billing.InvoiceStatusIssued || inv.Status == billing.InvoiceStatusOverdue) {
			total = total.Add(inv.TotalAmount)
		}
	}
	return total, nil
}

func (m *memLedger) MarkPaid(ctx context.Context, id string, method billing.PaymentMethod, reference string) error {
	inv, ok := m.invoices[id]
	if !ok {
		return billing.ErrNotFound
	}
	inv.Status = billing.InvoiceStatusPaid
	inv.PaymentMethod = &method
	inv.PaymentReference = &reference
	return nil
}

func (m *memLedger) SweepOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	panic("not used")
}

type memIssuer struct {
	proformas map[string]*billing.ProformaInvoice
}

func (m *memIssuer) Issue(ctx context.Context, req *proforma.IssueRequest) (*billing.ProformaInvoice, error) {
	p := &billing.ProformaInvoice{
		ID:          "pro-new",
		Number:      "PI-20260901-AAAAAA",
		OwnerID:     req.OwnerID,
		BaseAmount:  decimal.RequireFromString("150.00"),
		TaxRate:     decimal.RequireFromString("18"),
		TaxAmount:   decimal.RequireFromString("27.00"),
		TotalAmount: decimal.RequireFromString("177.00"),
		Status:      billing.ProformaStatusPending,
		BillingRef:  req.BillingRef,
		ValidUntil:  time.Now().AddDate(0, 0, 15),
	}
	m.proformas[p.ID] = p
	return p, nil
}

func (m *memIssuer) Convert(ctx context.Context, proformaID string) (*billing.Invoice, error) {
	p, ok := m.proformas[proformaID]
	if !ok {
		return nil, billing.ErrNotFound
	}
	if p.Status != billing.ProformaStatusPending {
		return nil, &billing.InvalidStateError{Entity: "proforma", ID: proformaID,
			Expected: "pending and unexpired", Actual: string(p.Status)}
	}
	p.Status = billing.ProformaStatusPaid
	return &billing.Invoice{ID: "inv-from-pro", OwnerID: p.OwnerID,
		TotalAmount: p.TotalAmount, Status: billing.InvoiceStatusIssued}, nil
}

func (m *memIssuer) Get(ctx context.Context, id string) (*billing.ProformaInvoice, error) {
	p, ok := m.proformas[id]
	if !ok {
		return nil, billing.ErrNotFound
	}
	return p, nil
}

func (m *memIssuer) ListByOwner(ctx context.Context, ownerID string, status billing.ProformaStatus) ([]*billing.ProformaInvoice, error) {
	var out []*billing.ProformaInvoice
	for _, p := range m.proformas {
		if p.OwnerID == ownerID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memIssuer) ExpireAllDue(ctx context.Context, now time.Time) (int64, error) {
	panic("not used")
}

type memCatalog struct {
	slabs map[int64]*billing.RateSlab
	next  int64
}

func (m *memCatalog) Resolve(ctx context.Context, unitCount int, asOf time.Time) (*billing.RateSlab, error) {
	panic("not used")
}

func (m *memCatalog) Create(ctx context.Context, req *rates.CreateSlabRequest) (*billing.RateSlab, error) {
	m.next++
	slab := &billing.RateSlab{
		ID: m.next, Name: req.Name, MinUnits: req.MinUnits, MaxUnits: req.MaxUnits,
		Price: req.Price, EffectiveFrom: req.EffectiveFrom, IsActive: true,
	}
	m.slabs[slab.ID] = slab
	return slab, nil
}

func (m *memCatalog) Update(ctx context.Context, id int64, req *rates.UpdateSlabRequest) (*billing.RateSlab, error) {
	slab, ok := m.slabs[id]
	if !ok {
		return nil, billing.ErrNotFound
	}
	if req.Price != nil {
		slab.Price = *req.Price
	}
	return slab, nil
}

func (m *memCatalog) Deactivate(ctx context.Context, id int64) error {
	slab, ok := m.slabs[id]
	if !ok {
		return billing.ErrNotFound
	}
	slab.IsActive = false
	return nil
}

func (m *memCatalog) List(ctx context.Context, activeOnly bool) ([]*billing.RateSlab, error) {
	var out []*billing.RateSlab
	for _, slab := range m.slabs {
		if !activeOnly || slab.IsActive {
			out = append(out, slab)
		}
	}
	return out, nil
}

type memAdapter struct{}

func (memAdapter) Name() string { return "razorpay" }

func (memAdapter) CreateOrder(ctx context.Context, amount decimal.Decimal, currency string, meta gateway.OrderMetadata) (*gateway.Order, error) {
	return &gateway.Order{OrderID: "order_abc", Amount: amount,
		AmountMinor: billing.ToMinorUnits(amount), Currency: currency, KeyID: "rzp_test_key"}, nil
}

func (memAdapter) VerifyClientConfirmation(ctx context.Context, paymentID, orderID, clientSignature string) (*gateway.VerificationResult, error) {
	return &gateway.VerificationResult{Verified: true, ProviderStatus: "captured"}, nil
}

func (memAdapter) VerifyWebhookSignature(rawBody []byte, headerSignature string) bool {
	return headerSignature == "good-sig"
}

func (memAdapter) Refund(ctx context.Context, paymentID string, amount decimal.Decimal) (*gateway.RefundResult, error) {
	return &gateway.RefundResult{RefundID: "rfnd_1", Status: "processed", Amount: amount}, nil
}

func (memAdapter) FetchPayment(ctx context.Context, paymentID string) (*gateway.PaymentDetails, error) {
	panic("not used")
}

type memSink struct{}

func (memSink) Notify(ctx context.Context, ownerID, category string, payload map[string]any) error {
	return nil
}

type memFiling struct{ units map[string]int }

func (m *memFiling) UnitCount(ctx context.Context, filingRef string) (int, error) {
	n, ok := m.units[filingRef]
	if !ok {
		return 0, billing.ErrNotFound
	}
	return n, nil
}

type serverFixture struct {
	server *Server
	ledger *memLedger
	issuer *memIssuer
	mock   sqlmock.Sqlmock
}

func setupServer(t *testing.T) *serverFixture {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ledger := &memLedger{invoices: map[string]*billing.Invoice{
		"inv-1": {
			ID: "inv-1", Number: "INV-20260901-AAAAAA", OwnerID: "owner-1",
			BaseAmount:  decimal.RequireFromString("150.00"),
			TaxAmount:   decimal.RequireFromString("27.00"),
			TotalAmount: decimal.RequireFromString("177.00"),
			Status:      billing.InvoiceStatusIssued,
			DueDate:     time.Now().AddDate(0, 0, 30),
		},
	}}
	issuer := &memIssuer{proformas: map[string]*billing.ProformaInvoice{
		"pro-1": {
			ID: "pro-1", OwnerID: "owner-1",
			TotalAmount: decimal.RequireFromString("177.00"),
			Status:      billing.ProformaStatusPending,
			ValidUntil:  time.Now().AddDate(0, 0, 10),
		},
	}}
	catalog := &memCatalog{slabs: map[int64]*billing.RateSlab{}}
	store := &memStore{txns: map[string]*billing.PaymentTransaction{}}

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	metrics := observability.NewTestMetrics()

	reconciler := payments.NewReconciler(store, ledger, issuer,
		map[billing.Gateway]gateway.Adapter{billing.GatewayRazorpay: memAdapter{}},
		memSink{}, payments.NewEventDedup(nil), "INR", logger, metrics)

	filing := &memFiling{units: map[string]int{"2026-08": 150}}

	paymentHandlers := NewPaymentHandlers(reconciler, nil, nil, logger)
	billingHandlers := NewBillingHandlers(issuer, ledger, catalog, reconciler, filing, nil, db, logger)

	return &serverFixture{
		server: NewServer(paymentHandlers, billingHandlers, logger, metrics),
		ledger: ledger,
		issuer: issuer,
		mock:   mock,
	}
}

func (fx *serverFixture) do(t *testing.T, method, path, owner string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if owner != "" {
		req.Header.Set("X-Owner-ID", owner)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	fx.server.ServeHTTP(rec, req)
	return rec
}

func TestOwnerHeaderRequired(t *testing.T) {
	fx := setupServer(t)

	paths := []string{
		"/api/v1/invoices",
		"/api/v1/proformas",
		"/api/v1/payments/history",
	}
	for _, path := range paths {
		rec := fx.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestWebhookRoute(t *testing.T) {
	fx := setupServer(t)
	body := map[string]any{
		"id":    "evt_1",
		"event": "payment.captured",
		"payload": map[string]any{
			"payment": map[string]any{"entity": map[string]any{"id": "pay_123", "order_id": "order_missing"}},
		},
	}

	t.Run("no owner header needed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", jsonBody(t, body))
		req.Header.Set("X-Razorpay-Signature", "good-sig")
		rec := httptest.NewRecorder()
		fx.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("bad signature", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", jsonBody(t, body))
		req.Header.Set("X-Razorpay-Signature", "forged")
		rec := httptest.NewRecorder()
		fx.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	payload, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(payload)
}

func TestGenerateProforma(t *testing.T) {
	t.Run("explicit unit count", func(t *testing.T) {
		fx := setupServer(t)
		rec := fx.do(t, http.MethodPost, "/api/v1/proformas", "owner-1",
			map[string]any{"unit_count": 150})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var p billing.ProformaInvoice
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
		assert.Equal(t, "owner-1", p.OwnerID)
		assert.True(t, p.TotalAmount.Equal(decimal.RequireFromString("177.00")))
	})

	t.Run("unit count resolved through filing reference", func(t *testing.T) {
		fx := setupServer(t)
		rec := fx.do(t, http.MethodPost, "/api/v1/proformas", "owner-1",
			map[string]any{"filing_ref": "2026-08"})
		assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	})

	t.Run("unknown filing reference", func(t *testing.T) {
		fx := setupServer(t)
		rec := fx.do(t, http.MethodPost, "/api/v1/proformas", "owner-1",
			map[string]any{"filing_ref": "2099-01"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("neither unit count nor filing reference", func(t *testing.T) {
		fx := setupServer(t)
		rec := fx.do(t, http.MethodPost, "/api/v1/proformas", "owner-1", map[string]any{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestProformaOwnership(t *testing.T) {
	fx := setupServer(t)

	rec := fx.do(t, http.MethodGet, "/api/v1/proformas/pro-1", "owner-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = fx.do(t, http.MethodGet, "/api/v1/proformas/pro-1", "owner-2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = fx.do(t, http.MethodPost, "/api/v1/proformas/pro-1/convert", "owner-2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConvertProforma(t *testing.T) {
	fx := setupServer(t)

	rec := fx.do(t, http.MethodPost, "/api/v1/proformas/pro-1/convert", "owner-1", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// The quote is settled now; converting again conflicts with its state.
	rec = fx.do(t, http.MethodPost, "/api/v1/proformas/pro-1/convert", "owner-1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestListInvoices(t *testing.T) {
	fx := setupServer(t)

	rec := fx.do(t, http.MethodGet, "/api/v1/invoices", "owner-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Count         int             `json:"count"`
		PendingAmount decimal.Decimal `json:"pending_amount"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.True(t, resp.PendingAmount.Equal(decimal.RequireFromString("177.00")))
}

func TestInitiatePayment(t *testing.T) {
	fx := setupServer(t)

	rec := fx.do(t, http.MethodPost, "/api/v1/payments/init", "owner-1",
		map[string]any{"invoice_id": "inv-1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var result payments.InitiateResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "order_abc", result.OrderID)
	assert.Equal(t, int64(17700), result.AmountMinor)

	t.Run("paying someone else's invoice reads as missing", func(t *testing.T) {
		rec := fx.do(t, http.MethodPost, "/api/v1/payments/init", "owner-2",
			map[string]any{"invoice_id": "inv-1"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestRecordManualPayment(t *testing.T) {
	t.Run("bank transfer settles the invoice", func(t *testing.T) {
		fx := setupServer(t)
		rec := fx.do(t, http.MethodPost, "/api/v1/invoices/inv-1/payments", "owner-1",
			map[string]any{"method": "bank_transfer", "reference": "NEFT-12345"})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.Equal(t, billing.InvoiceStatusPaid, fx.ledger.invoices["inv-1"].Status)
	})

	t.Run("online method rejected", func(t *testing.T) {
		fx := setupServer(t)
		rec := fx.do(t, http.MethodPost, "/api/v1/invoices/inv-1/payments", "owner-1",
			map[string]any{"method": "online", "reference": "x"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("reference required", func(t *testing.T) {
		fx := setupServer(t)
		rec := fx.do(t, http.MethodPost, "/api/v1/invoices/inv-1/payments", "owner-1",
			map[string]any{"method": "cash"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRateSlabRoutes(t *testing.T) {
	fx := setupServer(t)

	rec := fx.do(t, http.MethodPost, "/api/v1/rates", "admin-1", map[string]any{
		"name": "standard", "min_units": 1, "max_units": 100, "price": "1500.00",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = fx.do(t, http.MethodPost, "/api/v1/rates", "admin-1", map[string]any{
		"min_units": 1, "max_units": 100, "price": "1500.00",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "name is required")

	rec = fx.do(t, http.MethodGet, "/api/v1/rates", "admin-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = fx.do(t, http.MethodDelete, "/api/v1/rates/1", "admin-1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = fx.do(t, http.MethodDelete, "/api/v1/rates/99", "admin-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCollectionSummary(t *testing.T) {
	fx := setupServer(t)

	fx.mock.ExpectQuery("SELECT").
		WillReturnRows(sqlmock.NewRows([]string{"a", "b", "c", "d", "e", "f", "g"}).
			AddRow("1770.00", "1416.00", "354.00", "177.00", 10, 8, 1))

	rec := fx.do(t, http.MethodGet, "/api/v1/admin/collection-summary", "admin-1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var summary struct {
		TotalInvoiced string `json:"total_invoiced"`
		OverdueCount  int    `json:"overdue_count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, "1770.00", summary.TotalInvoiced)
	assert.Equal(t, 1, summary.OverdueCount)
}

func TestAuditTrail(t *testing.T) {
	t.Run("disabled without auditor", func(t *testing.T) {
		fx := setupServer(t)
		rec := fx.do(t, http.MethodGet, "/api/v1/admin/audit/rate_slab/42", "admin-1", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("lists entries", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })

		mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_logs").
			WillReturnResult(sqlmock.NewResult(0, 0))
		auditor, err := audit.NewLogger(db)
		require.NoError(t, err)

		mock.ExpectQuery("SELECT id, timestamp, action").
			WithArgs("rate_slab", "42", 100).
			WillReturnRows(sqlmock.NewRows([]string{"id", "timestamp", "action",
				"actor_id", "entity_type", "entity_id", "metadata"}).
				AddRow(int64(7), time.Now(), "rate_slab.updated", "admin-1",
					"rate_slab", "42", []byte(`{"price":"1500.00"}`)))

		logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
		h := &BillingHandlers{auditor: auditor, logger: logger}
		router := mux.NewRouter()
		router.HandleFunc("/admin/audit/{entityType}/{entityID}", h.AuditTrail).Methods("GET")

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/audit/rate_slab/42", nil))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp struct {
			Count   int `json:"count"`
			Entries []struct {
				Action  string `json:"action"`
				ActorID string `json:"actor_id"`
			} `json:"entries"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, 1, resp.Count)
		assert.Equal(t, "rate_slab.updated", resp.Entries[0].Action)
		assert.Equal(t, "admin-1", resp.Entries[0].ActorID)
	})

	t.Run("rejects bad limit", func(t *testing.T) {
		logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_logs").
			WillReturnResult(sqlmock.NewResult(0, 0))
		auditor, err := audit.NewLogger(db)
		require.NoError(t, err)

		h := &BillingHandlers{auditor: auditor, logger: logger}
		router := mux.NewRouter()
		router.HandleFunc("/admin/audit/{entityType}/{entityID}", h.AuditTrail).Methods("GET")

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/audit/rate_slab/42?limit=zero", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
