package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// migration is a single schema change applied exactly once, in order.
type migration struct {
	version int
	name    string
	stmts   []string
}

var migrations = []migration{
	{
		version: 1,
		name:    "create_rate_slabs",
		stmts: []string{
			`CREATE EXTENSION IF NOT EXISTS pgcrypto`,
			`CREATE TABLE IF NOT EXISTS rate_slabs (
				id             BIGSERIAL PRIMARY KEY,
				name           TEXT NOT NULL,
				min_units      INTEGER NOT NULL,
				max_units      INTEGER NOT NULL,
				price          NUMERIC(14,2) NOT NULL,
				effective_from TIMESTAMPTZ NOT NULL,
				effective_to   TIMESTAMPTZ,
				is_active      BOOLEAN NOT NULL DEFAULT true,
				created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_rate_slabs_lookup
				ON rate_slabs (min_units, max_units, effective_from)
				WHERE is_active`,
		},
	},
	{
		version: 2,
		name:    "create_proforma_invoices",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS proforma_invoices (
				id           UUID PRIMARY KEY,
				number       TEXT NOT NULL UNIQUE,
				owner_id     TEXT NOT NULL,
				base_amount  NUMERIC(14,2) NOT NULL,
				tax_rate     NUMERIC(5,2) NOT NULL,
				tax_amount   NUMERIC(14,2) NOT NULL,
				total_amount NUMERIC(14,2) NOT NULL,
				status       TEXT NOT NULL DEFAULT 'pending',
				description  TEXT,
				billing_ref  TEXT,
				valid_until  TIMESTAMPTZ NOT NULL,
				created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				CONSTRAINT proforma_amounts_add_up CHECK (base_amount + tax_amount = total_amount)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_proforma_owner ON proforma_invoices (owner_id)`,
			`CREATE INDEX IF NOT EXISTS idx_proforma_pending_expiry
				ON proforma_invoices (valid_until)
				WHERE status = 'pending'`,
		},
	},
	{
		version: 3,
		name:    "create_invoices",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS invoices (
				id                UUID PRIMARY KEY,
				number            TEXT NOT NULL UNIQUE,
				proforma_id       UUID REFERENCES proforma_invoices (id),
				owner_id          TEXT NOT NULL,
				base_amount       NUMERIC(14,2) NOT NULL,
				tax_amount        NUMERIC(14,2) NOT NULL,
				total_amount      NUMERIC(14,2) NOT NULL,
				status            TEXT NOT NULL DEFAULT 'issued',
				description       TEXT,
				due_date          TIMESTAMPTZ NOT NULL,
				payment_method    TEXT,
				payment_reference TEXT,
				paid_at           TIMESTAMPTZ,
				created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				CONSTRAINT invoice_amounts_add_up CHECK (base_amount + tax_amount = total_amount)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_invoices_owner ON invoices (owner_id)`,
			`CREATE INDEX IF NOT EXISTS idx_invoices_due_sweep
				ON invoices (due_date)
				WHERE status = 'issued'`,
		},
	},
	{
		version: 4,
		name:    "create_payment_transactions",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS payment_transactions (
				id                 UUID PRIMARY KEY,
				owner_id           TEXT NOT NULL,
				invoice_id         UUID REFERENCES invoices (id),
				proforma_id        UUID REFERENCES proforma_invoices (id),
				gateway            TEXT NOT NULL,
				gateway_order_id   TEXT NOT NULL UNIQUE,
				gateway_payment_id TEXT,
				gateway_refund_id  TEXT,
				amount             NUMERIC(14,2) NOT NULL,
				currency           TEXT NOT NULL,
				refund_amount      NUMERIC(14,2),
				status             TEXT NOT NULL DEFAULT 'pending',
				error_message      TEXT,
				created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				completed_at       TIMESTAMPTZ,
				CONSTRAINT txn_one_target CHECK (
					(invoice_id IS NULL) <> (proforma_id IS NULL)
				)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_txn_owner ON payment_transactions (owner_id, created_at DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_txn_payment_id ON payment_transactions (gateway_payment_id)`,
		},
	},
	{
		version: 5,
		name:    "create_collection_snapshots",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS collection_snapshots (
				id              BIGSERIAL PRIMARY KEY,
				period_start    DATE NOT NULL,
				period_end      DATE NOT NULL,
				invoiced_total  NUMERIC(14,2) NOT NULL,
				collected_total NUMERIC(14,2) NOT NULL,
				pending_total   NUMERIC(14,2) NOT NULL,
				invoice_count   INTEGER NOT NULL,
				paid_count      INTEGER NOT NULL,
				created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				UNIQUE (period_start, period_end)
			)`,
		},
	},
}

// Migrate applies all pending schema migrations on the primary connection.
// Each migration runs in its own transaction and is recorded in
// schema_migrations, so reruns are no-ops.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	for _, m := range migrations {
		applied, err := migrationApplied(ctx, db, m.version)
		if err != nil {
			return err
		}
		if applied {
			continue
		}

		if err := applyMigration(ctx, db, m); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.name, err)
		}
	}

	return nil
}

func migrationApplied(ctx context.Context, db *sql.DB, version int) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM schema_migrations WHERE version = $1`, version).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check migration %d: %w", version, err)
	}
	return count > 0, nil
}

func applyMigration(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range m.stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`,
		m.version, m.name); err != nil {
		return err
	}

	return tx.Commit()
}
