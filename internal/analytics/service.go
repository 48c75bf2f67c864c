package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bibek-sh/backend-pasal/internal/db"
	"github.com/bibek-sh/backend-pasal/internal/money"
)

// DailyRevenue is a one-day revenue aggregate over completed orders.
type DailyRevenue struct {
	Day             string       `json:"day"`
	Orders          int64        `json:"orders"`
	CompletedOrders int64        `json:"completed_orders"`
	Revenue         money.Amount `json:"revenue"`
	Discounts       money.Amount `json:"discounts"`
	CreditsApplied  money.Amount `json:"credits_applied"`
}

// PromoUsage summarises how a promo code performed.
type PromoUsage struct {
	Code        string       `json:"code"`
	Redemptions int64        `json:"redemptions"`
	Discounted  money.Amount `json:"discounted"`
}

// CreditFlow aggregates movement through the credit ledger by kind.
type CreditFlow struct {
	Kind  string       `json:"kind"`
	Count int64        `json:"count"`
	Total money.Amount `json:"total"`
}

// Querier defines the database access required for analytics operations.
type Querier interface {
	RevenueByDay(ctx context.Context, from, to time.Time) ([]DailyRevenue, error)
	PromoLeaderboard(ctx context.Context, from, to time.Time, limit int) ([]PromoUsage, error)
	CreditFlows(ctx context.Context, from, to time.Time) ([]CreditFlow, error)
}

// Service provides cached access to reporting aggregates.
type Service struct {
	Q            Querier
	R            *redis.Client
	TTL          time.Duration
	DefaultRange int
	Now          func() time.Time
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func cacheKey(parts ...any) string {
	formatted := make([]string, 0, len(parts))
	for _, part := range parts {
		formatted = append(formatted, fmt.Sprint(part))
	}
	return strings.Join(formatted, ":")
}

// Revenue returns per-day revenue between from (inclusive) and to (exclusive).
func (s *Service) Revenue(ctx context.Context, from, to time.Time) ([]DailyRevenue, error) {
	if s == nil || s.Q == nil {
		return nil, fmt.Errorf("analytics service not configured")
	}
	key := cacheKey("an", "rev", from.Format("2006-01-02"), to.Format("2006-01-02"))
	var rows []DailyRevenue
	if fromCache(ctx, s, key, &rows) {
		return rows, nil
	}
	rows, err := s.Q.RevenueByDay(ctx, from, to)
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, rows)
	return rows, nil
}

// Promos returns the best performing promo codes in the window.
func (s *Service) Promos(ctx context.Context, from, to time.Time, limit int) ([]PromoUsage, error) {
	if s == nil || s.Q == nil {
		return nil, fmt.Errorf("analytics service not configured")
	}
	if limit <= 0 {
		limit = 10
	}
	key := cacheKey("an", "promo", from.Format("2006-01-02"), to.Format("2006-01-02"), limit)
	var rows []PromoUsage
	if fromCache(ctx, s, key, &rows) {
		return rows, nil
	}
	rows, err := s.Q.PromoLeaderboard(ctx, from, to, limit)
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, rows)
	return rows, nil
}

// Credits returns ledger movement grouped by kind in the window.
func (s *Service) Credits(ctx context.Context, from, to time.Time) ([]CreditFlow, error) {
	if s == nil || s.Q == nil {
		return nil, fmt.Errorf("analytics service not configured")
	}
	key := cacheKey("an", "credit", from.Format("2006-01-02"), to.Format("2006-01-02"))
	var rows []CreditFlow
	if fromCache(ctx, s, key, &rows) {
		return rows, nil
	}
	rows, err := s.Q.CreditFlows(ctx, from, to)
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, rows)
	return rows, nil
}

func fromCache[T any](ctx context.Context, s *Service, key string, out *[]T) bool {
	if s.R == nil || s.TTL <= 0 {
		return false
	}
	data, err := s.R.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false
	}
	return true
}

func (s *Service) store(ctx context.Context, key string, value any) {
	if s.R == nil || s.TTL <= 0 {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = s.R.Set(ctx, key, data, s.TTL).Err()
}

// Store runs the reporting queries against Postgres.
type Store struct {
	DB db.DBTX
}

func (st *Store) RevenueByDay(ctx context.Context, from, to time.Time) ([]DailyRevenue, error) {
	rows, err := st.DB.Query(ctx, `
		SELECT to_char(date_trunc('day', created_at), 'YYYY-MM-DD') AS day,
		       COUNT(*) AS orders,
		       COUNT(*) FILTER (WHERE status = 'completed') AS completed_orders,
		       COALESCE(SUM(total) FILTER (WHERE status = 'completed'), 0) AS revenue,
		       COALESCE(SUM(discount), 0) AS discounts,
		       COALESCE(SUM(credits_applied), 0) AS credits_applied
		FROM orders
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY 1
		ORDER BY 1`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DailyRevenue
	for rows.Next() {
		var d DailyRevenue
		if err := rows.Scan(&d.Day, &d.Orders, &d.CompletedOrders, &d.Revenue, &d.Discounts, &d.CreditsApplied); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (st *Store) PromoLeaderboard(ctx context.Context, from, to time.Time, limit int) ([]PromoUsage, error) {
	rows, err := st.DB.Query(ctx, `
		SELECT p.code,
		       COUNT(u.id) AS redemptions,
		       COALESCE(SUM(o.discount), 0) AS discounted
		FROM promo_usage u
		JOIN promo_codes p ON p.id = u.promo_id
		LEFT JOIN orders o ON o.id = u.order_id
		WHERE u.used_at >= $1 AND u.used_at < $2
		GROUP BY p.code
		ORDER BY redemptions DESC
		LIMIT $3`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PromoUsage
	for rows.Next() {
		var p PromoUsage
		if err := rows.Scan(&p.Code, &p.Redemptions, &p.Discounted); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (st *Store) CreditFlows(ctx context.Context, from, to time.Time) ([]CreditFlow, error) {
	rows, err := st.DB.Query(ctx, `
		SELECT kind, COUNT(*), COALESCE(SUM(ABS(amount)), 0)
		FROM credit_transactions
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY kind
		ORDER BY kind`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CreditFlow
	for rows.Next() {
		var f CreditFlow
		if err := rows.Scan(&f.Kind, &f.Count, &f.Total); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
