// Package audit records administrative billing actions (rate slab changes,
// manual payment entries, refunds) to a PostgreSQL audit trail. Reads and
// owner-initiated payments are not audited; the payment_transactions table
// already is their record.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Action identifies an audited administrative action
type Action string

const (
	ActionRateSlabCreated     Action = "rate_slab.created"
	ActionRateSlabUpdated     Action = "rate_slab.updated"
	ActionRateSlabDeactivated Action = "rate_slab.deactivated"
	ActionManualPayment       Action = "payment.manual_recorded"
	ActionRefundInitiated     Action = "payment.refund_initiated"
)

// Entry is one audit record
type Entry struct {
	ID         int64                  `json:"id"`
	Timestamp  time.Time              `json:"timestamp"`
	Action     Action                 `json:"action"`
	ActorID    string                 `json:"actor_id"`
	EntityType string                 `json:"entity_type"`
	EntityID   string                 `json:"entity_id"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Logger writes audit entries to PostgreSQL
type Logger struct {
	db *sql.DB
}

// NewLogger creates an audit logger and ensures the audit_logs table exists
func NewLogger(db *sql.DB) (*Logger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	l := &Logger{db: db}
	if err := l.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure audit_logs table: %w", err)
	}
	return l, nil
}

func (l *Logger) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_logs (
		id          BIGSERIAL PRIMARY KEY,
		timestamp   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		action      VARCHAR(100) NOT NULL,
		actor_id    VARCHAR(255) NOT NULL,
		entity_type VARCHAR(50) NOT NULL,
		entity_id   VARCHAR(255) NOT NULL,
		metadata    JSONB
	);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_entity ON audit_logs (entity_type, entity_id);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs (timestamp)`

	_, err := l.db.Exec(query)
	return err
}

// Record writes one audit entry. Audit failures are returned to the caller
// but should not abort the audited action itself; it already happened.
func (l *Logger) Record(ctx context.Context, action Action, actorID, entityType, entityID string, metadata map[string]interface{}) error {
	var metadataJSON []byte
	if metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal audit metadata: %w", err)
		}
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO audit_logs (action, actor_id, entity_type, entity_id, metadata)
		VALUES ($1, $2, $3, $4, $5)`,
		string(action), actorID, entityType, entityID, metadataJSON)
	if err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// ListByEntity returns the audit trail for one entity, newest first.
func (l *Logger) ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, timestamp, action, actor_id, entity_type, entity_id, metadata
		FROM audit_logs
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY timestamp DESC
		LIMIT $3`, entityType, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var (
			e            Entry
			action       string
			metadataJSON sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &action, &e.ActorID,
			&e.EntityType, &e.EntityID, &metadataJSON); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Action = Action(action)
		if metadataJSON.Valid && metadataJSON.String != "" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &e.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal audit metadata: %w", err)
			}
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
