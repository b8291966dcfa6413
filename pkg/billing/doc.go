// Package billing contains the shared domain model for the billing engine:
// rate slabs, proforma invoices, final invoices, payment transactions, the
// money arithmetic helpers, and the error taxonomy used across all
// billing packages.
package billing
