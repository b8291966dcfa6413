package api

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/gstpilot/billing/pkg/audit"
	"github.com/gstpilot/billing/pkg/billing"
	"github.com/gstpilot/billing/pkg/httputil"
	"github.com/gstpilot/billing/pkg/invoices"
	"github.com/gstpilot/billing/pkg/observability"
	"github.com/gstpilot/billing/pkg/payments"
	"github.com/gstpilot/billing/pkg/proforma"
	"github.com/gstpilot/billing/pkg/rates"
)

// BillingHandlers handles proforma, invoice, and rate slab HTTP requests
type BillingHandlers struct {
	issuer     proforma.Issuer
	ledger     invoices.Ledger
	catalog    rates.Catalog
	reconciler *payments.Reconciler
	filing     billing.FilingLookup
	auditor    *audit.Logger
	db         *sql.DB
	logger     *observability.Logger
}

// NewBillingHandlers creates a new BillingHandlers. filing may be nil when no
// filing system integration is configured; generate requests must then carry
// an explicit unit count. auditor may be nil to skip the admin audit trail.
// db serves the collection summary reads and may point at a replica.
func NewBillingHandlers(issuer proforma.Issuer, ledger invoices.Ledger,
	catalog rates.Catalog, reconciler *payments.Reconciler,
	filing billing.FilingLookup, auditor *audit.Logger, db *sql.DB,
	logger *observability.Logger) *BillingHandlers {
	return &BillingHandlers{
		issuer:     issuer,
		ledger:     ledger,
		catalog:    catalog,
		reconciler: reconciler,
		filing:     filing,
		auditor:    auditor,
		db:         db,
		logger:     logger,
	}
}

// recordAudit writes an admin audit entry; failures are logged, not
// propagated, because the audited action already committed.
func (h *BillingHandlers) recordAudit(ctx context.Context, action audit.Action,
	actorID, entityType, entityID string, metadata map[string]interface{}) {
	if h.auditor == nil {
		return
	}
	if err := h.auditor.Record(ctx, action, actorID, entityType, entityID, metadata); err != nil {
		h.logger.WithError(err).WithField("action", string(action)).Warn("audit write failed")
	}
}

// RegisterRoutes registers billing routes
func (h *BillingHandlers) RegisterRoutes(router *mux.Router) {
	// Proformas
	router.HandleFunc("/proformas", h.GenerateProforma).Methods("POST")
	router.HandleFunc("/proformas", h.ListProformas).Methods("GET")
	router.HandleFunc("/proformas/{id}", h.GetProforma).Methods("GET")
	router.HandleFunc("/proformas/{id}/convert", h.ConvertProforma).Methods("POST")

	// Invoices
	router.HandleFunc("/invoices", h.ListInvoices).Methods("GET")
	router.HandleFunc("/invoices/{id}", h.GetInvoice).Methods("GET")
	router.HandleFunc("/invoices/{id}/payments", h.RecordManualPayment).Methods("POST")

	// Rate slabs (admin)
	router.HandleFunc("/rates", h.CreateRateSlab).Methods("POST")
	router.HandleFunc("/rates", h.ListRateSlabs).Methods("GET")
	router.HandleFunc("/rates/{id}", h.UpdateRateSlab).Methods("PUT")
	router.HandleFunc("/rates/{id}", h.DeactivateRateSlab).Methods("DELETE")

	// Admin reporting
	router.HandleFunc("/admin/collection-summary", h.CollectionSummary).Methods("GET")
	router.HandleFunc("/admin/audit/{entityType}/{entityID}", h.AuditTrail).Methods("GET")
}

// generateProformaRequest holds the proforma generation payload. Either
// unit_count or filing_ref must be set; filing_ref is resolved through the
// filing system.
type generateProformaRequest struct {
	UnitCount    int    `json:"unit_count"`
	FilingRef    string `json:"filing_ref"`
	ValidityDays int    `json:"validity_days"`
}

// GenerateProforma prices a unit count and issues a pending quote
func (h *BillingHandlers) GenerateProforma(w http.ResponseWriter, r *http.Request) {
	var req generateProformaRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	unitCount := req.UnitCount
	if unitCount <= 0 {
		if req.FilingRef == "" || h.filing == nil {
			httputil.WriteBadRequest(w, "unit_count or filing_ref is required")
			return
		}
		resolved, err := h.filing.UnitCount(r.Context(), req.FilingRef)
		if err != nil {
			httputil.WriteDomainError(w, err)
			return
		}
		unitCount = resolved
	}

	pi, err := h.issuer.Issue(r.Context(), &proforma.IssueRequest{
		OwnerID:      ownerID(r),
		UnitCount:    unitCount,
		BillingRef:   req.FilingRef,
		ValidityDays: req.ValidityDays,
	})
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteCreated(w, pi)
}

// ListProformas lists the caller's proforma invoices, optionally filtered by
// status
func (h *BillingHandlers) ListProformas(w http.ResponseWriter, r *http.Request) {
	status := billing.ProformaStatus(httputil.ParseQueryString(r, "status", ""))

	pis, err := h.issuer.ListByOwner(r.Context(), ownerID(r), status)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"proformas": pis,
		"count":     len(pis),
	})
}

// GetProforma returns one proforma owned by the caller
func (h *BillingHandlers) GetProforma(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	pi, err := h.issuer.Get(r.Context(), id)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	if pi.OwnerID != ownerID(r) {
		httputil.WriteNotFoundError(w, "proforma not found")
		return
	}

	httputil.WriteSuccess(w, pi)
}

// ConvertProforma converts a pending, unexpired proforma into an invoice
func (h *BillingHandlers) ConvertProforma(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	pi, err := h.issuer.Get(r.Context(), id)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	if pi.OwnerID != ownerID(r) {
		httputil.WriteNotFoundError(w, "proforma not found")
		return
	}

	invoice, err := h.issuer.Convert(r.Context(), id)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteCreated(w, invoice)
}

// ListInvoices lists the caller's invoices with the outstanding balance
func (h *BillingHandlers) ListInvoices(w http.ResponseWriter, r *http.Request) {
	status := billing.InvoiceStatus(httputil.ParseQueryString(r, "status", ""))
	owner := ownerID(r)

	invs, err := h.ledger.ListByOwner(r.Context(), owner, status)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	pending, err := h.ledger.PendingAmount(r.Context(), owner)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"invoices":       invs,
		"count":          len(invs),
		"pending_amount": pending,
	})
}

// GetInvoice returns one invoice owned by the caller
func (h *BillingHandlers) GetInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	invoice, err := h.ledger.Get(r.Context(), id)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	if invoice.OwnerID != ownerID(r) {
		httputil.WriteNotFoundError(w, "invoice not found")
		return
	}

	httputil.WriteSuccess(w, invoice)
}

// manualPaymentRequest records an out-of-band settlement
type manualPaymentRequest struct {
	Method    billing.PaymentMethod `json:"method"`
	Reference string                `json:"reference"`
}

// RecordManualPayment records a bank transfer, cheque, or cash settlement
// against an invoice
func (h *BillingHandlers) RecordManualPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req manualPaymentRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, string(req.Method), "method") ||
		!httputil.RequireNonEmpty(w, req.Reference, "reference") {
		return
	}
	if !req.Method.IsManual() {
		httputil.WriteBadRequest(w, "method must be bank_transfer, cheque, or cash")
		return
	}

	txn, err := h.reconciler.RecordManualPayment(r.Context(), id, req.Method, req.Reference)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	h.recordAudit(r.Context(), audit.ActionManualPayment, ownerID(r), "invoice", id,
		map[string]interface{}{
			"method":         string(req.Method),
			"reference":      req.Reference,
			"transaction_id": txn.ID,
		})

	httputil.WriteCreated(w, txn)
}

// CreateRateSlab creates a new rate slab
func (h *BillingHandlers) CreateRateSlab(w http.ResponseWriter, r *http.Request) {
	var req rates.CreateSlabRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}
	if req.EffectiveFrom.IsZero() {
		req.EffectiveFrom = time.Now().UTC()
	}

	slab, err := h.catalog.Create(r.Context(), &req)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	h.recordAudit(r.Context(), audit.ActionRateSlabCreated, ownerID(r), "rate_slab",
		strconv.FormatInt(slab.ID, 10), map[string]interface{}{
			"name":      slab.Name,
			"min_units": slab.MinUnits,
			"max_units": slab.MaxUnits,
			"price":     slab.Price.String(),
		})

	httputil.WriteCreated(w, slab)
}

// ListRateSlabs lists rate slabs; pass ?active=false to include retired ones
func (h *BillingHandlers) ListRateSlabs(w http.ResponseWriter, r *http.Request) {
	activeOnly, err := httputil.ParseQueryBool(r, "active", true)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	slabs, err := h.catalog.List(r.Context(), activeOnly)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"rate_slabs": slabs,
		"count":      len(slabs),
	})
}

// UpdateRateSlab updates an existing rate slab
func (h *BillingHandlers) UpdateRateSlab(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req rates.UpdateSlabRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	slab, err := h.catalog.Update(r.Context(), id, &req)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	h.recordAudit(r.Context(), audit.ActionRateSlabUpdated, ownerID(r), "rate_slab",
		strconv.FormatInt(id, 10), map[string]interface{}{"price": slab.Price.String()})

	httputil.WriteSuccess(w, slab)
}

// DeactivateRateSlab retires a rate slab
func (h *BillingHandlers) DeactivateRateSlab(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.catalog.Deactivate(r.Context(), id); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	h.recordAudit(r.Context(), audit.ActionRateSlabDeactivated, ownerID(r), "rate_slab",
		strconv.FormatInt(id, 10), nil)

	httputil.WriteNoContent(w)
}

// AuditTrail returns the audit entries recorded against one entity
func (h *BillingHandlers) AuditTrail(w http.ResponseWriter, r *http.Request) {
	if h.auditor == nil {
		httputil.WriteNotFoundError(w, "audit trail is not enabled")
		return
	}

	entityType, ok := httputil.ParsePathStringOrError(w, r, "entityType")
	if !ok {
		return
	}
	entityID, ok := httputil.ParsePathStringOrError(w, r, "entityID")
	if !ok {
		return
	}

	limit := 0
	if raw := httputil.ParseQueryString(r, "limit", ""); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httputil.WriteBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	entries, err := h.auditor.ListByEntity(r.Context(), entityType, entityID, limit)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

// collectionSummary aggregates invoice totals by status
type collectionSummary struct {
	TotalInvoiced  string `json:"total_invoiced"`
	TotalCollected string `json:"total_collected"`
	TotalPending   string `json:"total_pending"`
	TotalOverdue   string `json:"total_overdue"`
	InvoiceCount   int    `json:"invoice_count"`
	PaidCount      int    `json:"paid_count"`
	OverdueCount   int    `json:"overdue_count"`
}

// CollectionSummary reports collection totals across all owners
func (h *BillingHandlers) CollectionSummary(w http.ResponseWriter, r *http.Request) {
	var summary collectionSummary
	err := h.db.QueryRowContext(r.Context(), `
		SELECT
			COALESCE(SUM(total_amount), 0),
			COALESCE(SUM(total_amount) FILTER (WHERE status = 'paid'), 0),
			COALESCE(SUM(total_amount) FILTER (WHERE status IN ('issued', 'overdue')), 0),
			COALESCE(SUM(total_amount) FILTER (WHERE status = 'overdue'), 0),
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'paid'),
			COUNT(*) FILTER (WHERE status = 'overdue')
		FROM invoices`).
		Scan(&summary.TotalInvoiced, &summary.TotalCollected, &summary.TotalPending,
			&summary.TotalOverdue, &summary.InvoiceCount, &summary.PaidCount,
			&summary.OverdueCount)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, summary)
}
