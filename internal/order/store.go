package order

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bibek-sh/backend-pasal/internal/db"
	"github.com/bibek-sh/backend-pasal/internal/money"
)

// Item is one purchased line, frozen onto the order at creation.
type Item struct {
	ProductID string       `json:"product_id"`
	Name      string       `json:"name"`
	Category  string       `json:"category"`
	Quantity  int          `json:"quantity"`
	UnitPrice money.Amount `json:"unit_price"`
	Subtotal  money.Amount `json:"subtotal"`
}

// Order is a persisted order with its full price breakdown. Every
// monetary column is frozen at creation; later settings changes never
// touch existing orders.
type Order struct {
	ID              uuid.UUID    `json:"id"`
	CustomerID      uuid.UUID    `json:"customer_id"`
	Status          Status       `json:"status"`
	Items           []Item       `json:"items"`
	Subtotal        money.Amount `json:"subtotal"`
	Discount        money.Amount `json:"discount"`
	PromoCode       string       `json:"promo_code,omitempty"`
	Tax             money.Amount `json:"tax"`
	TaxBps          int64        `json:"tax_bps"`
	ServiceCharge   money.Amount `json:"service_charge"`
	CreditsApplied  money.Amount `json:"credits_applied"`
	Total           money.Amount `json:"total"`
	CreditsDeducted bool         `json:"-"`
	CashbackAwarded bool         `json:"-"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// StatusEntry is one step of an order's history.
type StatusEntry struct {
	Status    Status    `json:"status"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists orders.
type Store struct {
	DB db.DBTX
}

// WithTx binds the store to a transaction.
func (s *Store) WithTx(tx db.DBTX) *Store {
	return &Store{DB: tx}
}

const orderColumns = `id, customer_id, status, items, subtotal, discount, promo_code, tax, tax_bps,
	service_charge, credits_applied, total, credits_deducted, cashback_awarded, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (Order, error) {
	var o Order
	var itemsRaw []byte
	var promo *string
	err := row.Scan(
		&o.ID, &o.CustomerID, &o.Status, &itemsRaw, &o.Subtotal, &o.Discount, &promo,
		&o.Tax, &o.TaxBps, &o.ServiceCharge, &o.CreditsApplied, &o.Total,
		&o.CreditsDeducted, &o.CashbackAwarded, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return Order{}, err
	}
	if promo != nil {
		o.PromoCode = *promo
	}
	if len(itemsRaw) > 0 {
		if err := json.Unmarshal(itemsRaw, &o.Items); err != nil {
			return Order{}, fmt.Errorf("order: decode items: %w", err)
		}
	}
	return o, nil
}

// Insert writes a new pending order with its first history entry.
func (s *Store) Insert(ctx context.Context, o Order) (Order, error) {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return Order{}, fmt.Errorf("order: encode items: %w", err)
	}
	var promo *string
	if o.PromoCode != "" {
		promo = &o.PromoCode
	}
	row := s.DB.QueryRow(ctx,
		`INSERT INTO orders
			(customer_id, status, items, subtotal, discount, promo_code, tax, tax_bps,
			 service_charge, credits_applied, total)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING `+orderColumns,
		o.CustomerID, StatusPending, items, o.Subtotal, o.Discount, promo,
		o.Tax, o.TaxBps, o.ServiceCharge, o.CreditsApplied, o.Total,
	)
	created, err := scanOrder(row)
	if err != nil {
		return Order{}, fmt.Errorf("order: insert: %w", err)
	}
	if err := s.appendHistory(ctx, created.ID, StatusPending, "order placed"); err != nil {
		return Order{}, err
	}
	return created, nil
}

// Get loads one order.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Order, error) {
	row := s.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if db.IsNoRows(err) {
		return Order{}, ErrNotFound
	}
	return o, err
}

// GetForUpdate loads one order with a row lock for a status change.
func (s *Store) GetForUpdate(ctx context.Context, id uuid.UUID) (Order, error) {
	row := s.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
	o, err := scanOrder(row)
	if db.IsNoRows(err) {
		return Order{}, ErrNotFound
	}
	return o, err
}

// ListByCustomer returns the customer's orders, newest first.
func (s *Store) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit int) ([]Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.DB.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE customer_id = $1 ORDER BY created_at DESC LIMIT $2`,
		customerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// List returns orders across every customer, newest first. A non-empty
// status narrows the result.
func (s *Store) List(ctx context.Context, status Status, limit, offset int) ([]Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + orderColumns + ` FROM orders`
	args := []any{limit, offset}
	if status != "" {
		query += ` WHERE status = $3`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// SetStatus moves the order to the target status, guarded by the current
// status so a lost race turns into an ErrInvalidTransition.
func (s *Store) SetStatus(ctx context.Context, id uuid.UUID, from, to Status, note string) error {
	tag, err := s.DB.Exec(ctx,
		`UPDATE orders SET status = $3, updated_at = now() WHERE id = $1 AND status = $2`,
		id, from, to)
	if err != nil {
		return fmt.Errorf("order: set status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return s.appendHistory(ctx, id, to, note)
}

// MarkCreditsDeducted flips the deduction flag exactly once.
func (s *Store) MarkCreditsDeducted(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.DB.Exec(ctx,
		`UPDATE orders SET credits_deducted = TRUE, updated_at = now()
		 WHERE id = $1 AND NOT credits_deducted`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkCashbackAwarded flips the cashback flag exactly once.
func (s *Store) MarkCashbackAwarded(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.DB.Exec(ctx,
		`UPDATE orders SET cashback_awarded = TRUE, updated_at = now()
		 WHERE id = $1 AND NOT cashback_awarded`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// History returns the order's status trail, oldest first.
func (s *Store) History(ctx context.Context, id uuid.UUID) ([]StatusEntry, error) {
	rows, err := s.DB.Query(ctx,
		`SELECT status, note, created_at FROM order_status_history
		 WHERE order_id = $1 ORDER BY created_at ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StatusEntry
	for rows.Next() {
		var e StatusEntry
		if err := rows.Scan(&e.Status, &e.Note, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) appendHistory(ctx context.Context, orderID uuid.UUID, status Status, note string) error {
	_, err := s.DB.Exec(ctx,
		`INSERT INTO order_status_history (order_id, status, note) VALUES ($1, $2, $3)`,
		orderID, status, note)
	if err != nil {
		return fmt.Errorf("order: append history: %w", err)
	}
	return nil
}
