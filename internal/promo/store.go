package promo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bibek-sh/backend-pasal/internal/db"
	"github.com/bibek-sh/backend-pasal/internal/money"
)

// Promo is a persisted promo code definition.
type Promo struct {
	ID             uuid.UUID    `json:"id"`
	Code           string       `json:"code"`
	Description    string       `json:"description"`
	Kind           string       `json:"discount_type"`
	PercentBps     int64        `json:"-"`
	Percent        float64      `json:"discount_percent,omitempty"`
	Value          money.Amount `json:"discount_value"`
	MinOrder       money.Amount `json:"min_order_amount"`
	MaxUses        *int32       `json:"max_uses,omitempty"`
	PerCustomerMax *int32       `json:"max_uses_per_customer,omitempty"`
	UsedCount      int32        `json:"used_count"`
	FirstOrderOnly bool         `json:"first_order_only"`
	Categories     []string     `json:"applicable_categories"`
	Products       []string     `json:"applicable_products"`
	Active         bool         `json:"active"`
	ExpiresAt      *time.Time   `json:"expires_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Store runs promo queries against Postgres.
type Store struct {
	DB db.DBTX
}

const promoColumns = `id, code, description, discount_type, COALESCE(percent_bps, 0), value,
	min_order_amount, max_uses, max_uses_per_customer, used_count, first_order_only,
	applicable_categories, applicable_products, active, expires_at, created_at`

func scanPromo(row interface{ Scan(...any) error }) (Promo, error) {
	var p Promo
	err := row.Scan(
		&p.ID, &p.Code, &p.Description, &p.Kind, &p.PercentBps, &p.Value,
		&p.MinOrder, &p.MaxUses, &p.PerCustomerMax, &p.UsedCount, &p.FirstOrderOnly,
		&p.Categories, &p.Products, &p.Active, &p.ExpiresAt, &p.CreatedAt,
	)
	if err != nil {
		return Promo{}, err
	}
	p.Percent = money.PercentFromBps(p.PercentBps)
	return p, nil
}

// GetByCode looks up a promo by its canonical (uppercase) code.
func (s *Store) GetByCode(ctx context.Context, code string) (Promo, error) {
	row := s.DB.QueryRow(ctx,
		`SELECT `+promoColumns+` FROM promo_codes WHERE code = $1`, code)
	p, err := scanPromo(row)
	if db.IsNoRows(err) {
		return Promo{}, ErrNotFound
	}
	return p, err
}

// CountUsageByCustomer returns how many orders of this customer already used the promo.
func (s *Store) CountUsageByCustomer(ctx context.Context, promoID, customerID uuid.UUID) (int64, error) {
	var n int64
	err := s.DB.QueryRow(ctx,
		`SELECT COUNT(*) FROM promo_usage WHERE promo_id = $1 AND customer_id = $2`,
		promoID, customerID,
	).Scan(&n)
	return n, err
}

// CountCustomerOrders counts prior orders for first-order-only gating.
// Cancelled orders do not count against the gate.
func (s *Store) CountCustomerOrders(ctx context.Context, customerID uuid.UUID) (int64, error) {
	var n int64
	err := s.DB.QueryRow(ctx,
		`SELECT COUNT(*) FROM orders WHERE customer_id = $1 AND status <> 'cancelled'`,
		customerID,
	).Scan(&n)
	return n, err
}

// RecordUsage increments used_count and writes the usage row, failing with
// ErrUsesExhausted when a concurrent order claimed the last slot. The
// conditional UPDATE is the concurrency guard; callers run it inside the
// order-create transaction.
func (s *Store) RecordUsage(ctx context.Context, promoID, customerID, orderID uuid.UUID) error {
	tag, err := s.DB.Exec(ctx,
		`UPDATE promo_codes SET used_count = used_count + 1
		 WHERE id = $1 AND (max_uses IS NULL OR used_count < max_uses)`,
		promoID,
	)
	if err != nil {
		return fmt.Errorf("increment promo usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUsesExhausted
	}
	_, err = s.DB.Exec(ctx,
		`INSERT INTO promo_usage (promo_id, customer_id, order_id) VALUES ($1, $2, $3)`,
		promoID, customerID, orderID,
	)
	if db.IsUniqueViolation(err) {
		// Same order already recorded the usage; the increment above is the
		// only state that matters and it is idempotent per order via this row.
		return nil
	}
	if err != nil {
		return fmt.Errorf("insert promo usage: %w", err)
	}
	return nil
}

// Create inserts a new promo definition.
func (s *Store) Create(ctx context.Context, p Promo) (Promo, error) {
	row := s.DB.QueryRow(ctx,
		`INSERT INTO promo_codes
			(code, description, discount_type, percent_bps, value, min_order_amount,
			 max_uses, max_uses_per_customer, first_order_only,
			 applicable_categories, applicable_products, active, expires_at)
		 VALUES ($1, $2, $3, NULLIF($4, 0), $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING `+promoColumns,
		p.Code, p.Description, p.Kind, p.PercentBps, p.Value, p.MinOrder,
		p.MaxUses, p.PerCustomerMax, p.FirstOrderOnly,
		p.Categories, p.Products, p.Active, p.ExpiresAt,
	)
	return scanPromo(row)
}

// List returns all promo definitions, newest first.
func (s *Store) List(ctx context.Context) ([]Promo, error) {
	rows, err := s.DB.Query(ctx,
		`SELECT `+promoColumns+` FROM promo_codes ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Promo
	for rows.Next() {
		p, err := scanPromo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetActive toggles a promo on or off.
func (s *Store) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := s.DB.Exec(ctx,
		`UPDATE promo_codes SET active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a promo definition.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.DB.Exec(ctx, `DELETE FROM promo_codes WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
