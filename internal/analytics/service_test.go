package analytics_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/bibek-sh/backend-pasal/internal/analytics"
	"github.com/bibek-sh/backend-pasal/internal/money"
)

type stubQueries struct {
	revenueCalls int
	promoCalls   int
}

func (s *stubQueries) RevenueByDay(_ context.Context, from, _ time.Time) ([]analytics.DailyRevenue, error) {
	s.revenueCalls++
	return []analytics.DailyRevenue{{
		Day:             from.Format("2006-01-02"),
		Orders:          3,
		CompletedOrders: 2,
		Revenue:         money.FromRupees(1734),
	}}, nil
}

func (s *stubQueries) PromoLeaderboard(_ context.Context, _, _ time.Time, limit int) ([]analytics.PromoUsage, error) {
	s.promoCalls++
	rows := []analytics.PromoUsage{
		{Code: "DASHAIN25", Redemptions: 40, Discounted: money.FromRupees(4000)},
		{Code: "SAVE10", Redemptions: 12, Discounted: money.FromRupees(600)},
	}
	if limit < len(rows) {
		rows = rows[:limit]
	}
	return rows, nil
}

func (s *stubQueries) CreditFlows(context.Context, time.Time, time.Time) ([]analytics.CreditFlow, error) {
	return []analytics.CreditFlow{{Kind: "cashback", Count: 5, Total: money.FromRupees(100)}}, nil
}

func newService(t *testing.T, q analytics.Querier) *analytics.Service {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return &analytics.Service{Q: q, R: rdb, TTL: time.Minute, DefaultRange: 30}
}

func TestRevenueCached(t *testing.T) {
	queries := &stubQueries{}
	svc := newService(t, queries)
	from := time.Now().Add(-24 * time.Hour).Truncate(24 * time.Hour)
	to := time.Now().Truncate(24 * time.Hour)

	if _, err := svc.Revenue(context.Background(), from, to); err != nil {
		t.Fatalf("first call: %v", err)
	}
	rows, err := svc.Revenue(context.Background(), from, to)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if queries.revenueCalls != 1 {
		t.Fatalf("expected 1 DB call, got %d", queries.revenueCalls)
	}
	if len(rows) != 1 || rows[0].Revenue != money.FromRupees(1734) {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestPromosLimitPartOfCacheKey(t *testing.T) {
	queries := &stubQueries{}
	svc := newService(t, queries)
	from := time.Now().Add(-24 * time.Hour)
	to := time.Now()

	one, err := svc.Promos(context.Background(), from, to, 1)
	if err != nil {
		t.Fatalf("limit 1: %v", err)
	}
	two, err := svc.Promos(context.Background(), from, to, 2)
	if err != nil {
		t.Fatalf("limit 2: %v", err)
	}
	if len(one) != 1 || len(two) != 2 {
		t.Fatalf("limits ignored: %d, %d", len(one), len(two))
	}
	if queries.promoCalls != 2 {
		t.Fatalf("expected 2 DB calls, got %d", queries.promoCalls)
	}
}
