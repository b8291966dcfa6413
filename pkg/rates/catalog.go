// Package rates resolves a price for a billing-unit count at a point in time
// from the administered rate slab table.
package rates

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/shopspring/decimal"

	"github.com/gstpilot/billing/pkg/billing"
)

// Catalog defines rate slab resolution and administration
type Catalog interface {
	Resolve(ctx context.Context, unitCount int, asOf time.Time) (*billing.RateSlab, error)
	Create(ctx context.Context, req *CreateSlabRequest) (*billing.RateSlab, error)
	Update(ctx context.Context, id int64, req *UpdateSlabRequest) (*billing.RateSlab, error)
	Deactivate(ctx context.Context, id int64) error
	List(ctx context.Context, activeOnly bool) ([]*billing.RateSlab, error)
}

// CreateSlabRequest holds the fields for a new rate slab
type CreateSlabRequest struct {
	Name          string          `json:"name"`
	MinUnits      int             `json:"min_units"`
	MaxUnits      int             `json:"max_units"`
	Price         decimal.Decimal `json:"price"`
	EffectiveFrom time.Time       `json:"effective_from"`
	EffectiveTo   *time.Time      `json:"effective_to,omitempty"`
}

// UpdateSlabRequest holds optional updates to an existing slab
type UpdateSlabRequest struct {
	Name        *string          `json:"name,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	EffectiveTo *time.Time       `json:"effective_to,omitempty"`
	IsActive    *bool            `json:"is_active,omitempty"`
}

const resolveCacheSize = 512

// PostgresCatalog implements Catalog on PostgreSQL with a small in-process
// LRU over resolution results. The cache is advisory: it is purged on every
// write through this instance, and entries are keyed by (count, day) so a
// stale entry can only survive until the next slab change.
type PostgresCatalog struct {
	db    *sql.DB
	cache *lru.Cache[string, *billing.RateSlab]
}

// NewPostgresCatalog creates a new PostgresCatalog
func NewPostgresCatalog(db *sql.DB) (*PostgresCatalog, error) {
	cache, err := lru.New[string, *billing.RateSlab](resolveCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create slab cache: %w", err)
	}
	return &PostgresCatalog{db: db, cache: cache}, nil
}

const slabColumns = `id, name, min_units, max_units, price, effective_from, effective_to, is_active, created_at, updated_at`

// Resolve selects the applicable slab for a unit count at a date. Bounds are
// inclusive on both ends. When multiple slabs match, the most recently
// introduced pricing wins (latest effective_from, then highest id). When no
// slab matches, the zero-width fallback slab (min=0, max=0) is used; if even
// that is missing the catalog is misconfigured and pricing cannot proceed.
func (c *PostgresCatalog) Resolve(ctx context.Context, unitCount int, asOf time.Time) (*billing.RateSlab, error) {
	key := fmt.Sprintf("%d|%s", unitCount, asOf.Format("2006-01-02"))
	if slab, ok := c.cache.Get(key); ok {
		return slab, nil
	}

	query := `
		SELECT ` + slabColumns + `
		FROM rate_slabs
		WHERE is_active = true
		  AND min_units <= $1 AND max_units >= $1
		  AND effective_from <= $2
		  AND (effective_to IS NULL OR effective_to >= $2)
		ORDER BY effective_from DESC, id DESC
		LIMIT 1
	`
	slab, err := c.scanOne(c.db.QueryRowContext(ctx, query, unitCount, asOf))
	if err == sql.ErrNoRows {
		slab, err = c.fallback(ctx)
		if err == sql.ErrNoRows {
			return nil, &billing.ConfigurationError{
				Reason: fmt.Sprintf("no rate slab matches %d units and no fallback slab is configured", unitCount),
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve rate slab: %w", err)
	}

	c.cache.Add(key, slab)
	return slab, nil
}

func (c *PostgresCatalog) fallback(ctx context.Context) (*billing.RateSlab, error) {
	query := `
		SELECT ` + slabColumns + `
		FROM rate_slabs
		WHERE is_active = true AND min_units = 0 AND max_units = 0
		ORDER BY effective_from DESC, id DESC
		LIMIT 1
	`
	return c.scanOne(c.db.QueryRowContext(ctx, query))
}

// Create inserts a new rate slab
func (c *PostgresCatalog) Create(ctx context.Context, req *CreateSlabRequest) (*billing.RateSlab, error) {
	if req.MaxUnits < req.MinUnits {
		return nil, fmt.Errorf("max_units %d is below min_units %d", req.MaxUnits, req.MinUnits)
	}
	if req.Price.IsNegative() {
		return nil, fmt.Errorf("price must not be negative")
	}

	query := `
		INSERT INTO rate_slabs (name, min_units, max_units, price, effective_from, effective_to, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, true)
		RETURNING id, created_at, updated_at
	`
	slab := &billing.RateSlab{
		Name:          req.Name,
		MinUnits:      req.MinUnits,
		MaxUnits:      req.MaxUnits,
		Price:         billing.RoundMoney(req.Price),
		EffectiveFrom: req.EffectiveFrom,
		EffectiveTo:   req.EffectiveTo,
		IsActive:      true,
	}
	err := c.db.QueryRowContext(ctx, query, slab.Name, slab.MinUnits, slab.MaxUnits,
		slab.Price, slab.EffectiveFrom, slab.EffectiveTo).
		Scan(&slab.ID, &slab.CreatedAt, &slab.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate slab: %w", err)
	}

	c.cache.Purge()
	return slab, nil
}

// Update applies partial updates to a slab
func (c *PostgresCatalog) Update(ctx context.Context, id int64, req *UpdateSlabRequest) (*billing.RateSlab, error) {
	query := `
		UPDATE rate_slabs
		SET name = COALESCE($2, name),
		    price = COALESCE($3, price),
		    effective_to = COALESCE($4, effective_to),
		    is_active = COALESCE($5, is_active),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + slabColumns + `
	`
	var price *decimal.Decimal
	if req.Price != nil {
		rounded := billing.RoundMoney(*req.Price)
		price = &rounded
	}
	slab, err := c.scanOne(c.db.QueryRowContext(ctx, query, id, req.Name, price, req.EffectiveTo, req.IsActive))
	if err == sql.ErrNoRows {
		return nil, billing.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update rate slab: %w", err)
	}

	c.cache.Purge()
	return slab, nil
}

// Deactivate retires a slab without deleting it
func (c *PostgresCatalog) Deactivate(ctx context.Context, id int64) error {
	result, err := c.db.ExecContext(ctx, `UPDATE rate_slabs SET is_active = false, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate rate slab: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return billing.ErrNotFound
	}

	c.cache.Purge()
	return nil
}

// List returns slabs ordered by unit band
func (c *PostgresCatalog) List(ctx context.Context, activeOnly bool) ([]*billing.RateSlab, error) {
	query := `SELECT ` + slabColumns + ` FROM rate_slabs`
	if activeOnly {
		query += ` WHERE is_active = true`
	}
	query += ` ORDER BY min_units, effective_from DESC`

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list rate slabs: %w", err)
	}
	defer rows.Close()

	var slabs []*billing.RateSlab
	for rows.Next() {
		slab, err := c.scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rate slab: %w", err)
		}
		slabs = append(slabs, slab)
	}
	return slabs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (c *PostgresCatalog) scanOne(row *sql.Row) (*billing.RateSlab, error) {
	return c.scanRow(row)
}

func (c *PostgresCatalog) scanRow(row rowScanner) (*billing.RateSlab, error) {
	slab := &billing.RateSlab{}
	var effectiveTo sql.NullTime
	err := row.Scan(&slab.ID, &slab.Name, &slab.MinUnits, &slab.MaxUnits, &slab.Price,
		&slab.EffectiveFrom, &effectiveTo, &slab.IsActive, &slab.CreatedAt, &slab.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if effectiveTo.Valid {
		slab.EffectiveTo = &effectiveTo.Time
	}
	return slab, nil
}
