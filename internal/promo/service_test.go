package promo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bibek-sh/backend-pasal/internal/money"
)

type stubQuerier struct {
	promo        Promo
	getErr       error
	customerUses int64
	orderCount   int64
	recorded     []uuid.UUID
	recordErr    error
}

func (s *stubQuerier) GetByCode(_ context.Context, code string) (Promo, error) {
	if s.getErr != nil {
		return Promo{}, s.getErr
	}
	if s.promo.Code != code {
		return Promo{}, ErrNotFound
	}
	return s.promo, nil
}

func (s *stubQuerier) CountUsageByCustomer(_ context.Context, _, _ uuid.UUID) (int64, error) {
	return s.customerUses, nil
}

func (s *stubQuerier) CountCustomerOrders(_ context.Context, _ uuid.UUID) (int64, error) {
	return s.orderCount, nil
}

func (s *stubQuerier) RecordUsage(_ context.Context, _, _, orderID uuid.UUID) error {
	if s.recordErr != nil {
		return s.recordErr
	}
	s.recorded = append(s.recorded, orderID)
	return nil
}

func fixedNow() time.Time {
	return time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)
}

func testService(q Querier) *Service {
	return &Service{Q: q, Now: fixedNow}
}

func cart(total int64) []Item {
	return []Item{{ProductID: "p1", Category: "games", Subtotal: money.FromRupees(total)}}
}

func TestValidateHappyPath(t *testing.T) {
	q := &stubQuerier{promo: Promo{
		ID:         uuid.New(),
		Code:       "SAVE10",
		Kind:       KindPercentage,
		PercentBps: 1000,
		Active:     true,
	}}
	svc := testService(q)

	res, err := svc.Validate(context.Background(), "save10", uuid.New(), cart(1000))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if res.Discount != money.FromRupees(100) {
		t.Fatalf("discount = %v, want 100.00", res.Discount)
	}
	if res.Code != "SAVE10" {
		t.Fatalf("code = %q", res.Code)
	}
}

func TestValidateNormalizesCode(t *testing.T) {
	q := &stubQuerier{promo: Promo{Code: "WELCOME", Kind: KindFixed, Value: money.FromRupees(50), Active: true}}
	svc := testService(q)

	if _, err := svc.Validate(context.Background(), "  welcome ", uuid.New(), cart(500)); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateUnknownCode(t *testing.T) {
	svc := testService(&stubQuerier{promo: Promo{Code: "OTHER", Active: true}})
	_, err := svc.Validate(context.Background(), "MISSING", uuid.New(), cart(1000))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestValidateInactivePromo(t *testing.T) {
	q := &stubQuerier{promo: Promo{Code: "OLD", Kind: KindFixed, Value: money.FromRupees(10), Active: false}}
	svc := testService(q)
	_, err := svc.Validate(context.Background(), "OLD", uuid.New(), cart(1000))
	if !errors.Is(err, ErrInactive) {
		t.Fatalf("got %v, want ErrInactive", err)
	}
}

func TestServiceValidatePerCustomerLimit(t *testing.T) {
	limit := int32(1)
	q := &stubQuerier{
		promo: Promo{
			Code: "ONCE", Kind: KindFixed, Value: money.FromRupees(10),
			Active: true, PerCustomerMax: &limit,
		},
		customerUses: 1,
	}
	svc := testService(q)
	_, err := svc.Validate(context.Background(), "ONCE", uuid.New(), cart(1000))
	if !errors.Is(err, ErrPerCustomerLimit) {
		t.Fatalf("got %v, want ErrPerCustomerLimit", err)
	}
}

func TestServiceValidateFirstOrderOnly(t *testing.T) {
	q := &stubQuerier{
		promo: Promo{
			Code: "NEWBIE", Kind: KindFixed, Value: money.FromRupees(10),
			Active: true, FirstOrderOnly: true,
		},
		orderCount: 2,
	}
	svc := testService(q)
	_, err := svc.Validate(context.Background(), "NEWBIE", uuid.New(), cart(1000))
	if !errors.Is(err, ErrFirstOrderOnly) {
		t.Fatalf("got %v, want ErrFirstOrderOnly", err)
	}
}

func TestValidateScopedDiscountsFullSubtotal(t *testing.T) {
	q := &stubQuerier{promo: Promo{
		ID: uuid.New(), Code: "GAMES10", Kind: KindPercentage, PercentBps: 1000,
		Active: true, Categories: []string{"games"},
	}}
	svc := testService(q)
	items := []Item{
		{ProductID: "p1", Category: "games", Subtotal: money.FromRupees(500)},
		{ProductID: "p2", Category: "topups", Subtotal: money.FromRupees(500)},
	}

	res, err := svc.Validate(context.Background(), "GAMES10", uuid.New(), items)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	// One matching line qualifies the whole cart for the percentage.
	if res.Discount != money.FromRupees(100) {
		t.Fatalf("discount = %v, want 100.00 off the full subtotal", res.Discount)
	}
	if res.EligibleAmount != money.FromRupees(500) {
		t.Fatalf("eligible = %v, want 500.00", res.EligibleAmount)
	}
}

func TestValidateScopedNoMatch(t *testing.T) {
	q := &stubQuerier{promo: Promo{
		Code: "TOPUP", Kind: KindPercentage, PercentBps: 500,
		Active: true, Categories: []string{"topups"},
	}}
	svc := testService(q)
	_, err := svc.Validate(context.Background(), "TOPUP", uuid.New(), cart(1000))
	if !errors.Is(err, ErrNotApplicable) {
		t.Fatalf("got %v, want ErrNotApplicable", err)
	}
}

func TestRedeemRecordsUsage(t *testing.T) {
	q := &stubQuerier{promo: Promo{
		ID: uuid.New(), Code: "SAVE10", Kind: KindPercentage, PercentBps: 1000, Active: true,
	}}
	svc := testService(q)
	orderID := uuid.New()

	res, err := svc.Redeem(context.Background(), "SAVE10", uuid.New(), orderID, cart(1000))
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if res.Discount != money.FromRupees(100) {
		t.Fatalf("discount = %v", res.Discount)
	}
	if len(q.recorded) != 1 || q.recorded[0] != orderID {
		t.Fatalf("usage not recorded for order: %v", q.recorded)
	}
}

type listQuerier struct {
	promos []Promo
}

func (l *listQuerier) GetByCode(_ context.Context, code string) (Promo, error) {
	for _, p := range l.promos {
		if p.Code == code {
			return p, nil
		}
	}
	return Promo{}, ErrNotFound
}

func (l *listQuerier) CountUsageByCustomer(_ context.Context, _, _ uuid.UUID) (int64, error) {
	return 0, nil
}

func (l *listQuerier) CountCustomerOrders(_ context.Context, _ uuid.UUID) (int64, error) {
	return 0, nil
}

func (l *listQuerier) RecordUsage(_ context.Context, _, _, _ uuid.UUID) error {
	return nil
}

func (l *listQuerier) List(_ context.Context) ([]Promo, error) {
	return l.promos, nil
}

func TestAutoApplyPicksLargestDiscount(t *testing.T) {
	q := &listQuerier{promos: []Promo{
		{ID: uuid.New(), Code: "SMALL", Kind: KindFixed, Value: money.FromRupees(20), Active: true},
		{ID: uuid.New(), Code: "BIG", Kind: KindPercentage, PercentBps: 1500, Active: true},
		{ID: uuid.New(), Code: "OFF", Kind: KindFixed, Value: money.FromRupees(500), Active: false},
	}}
	svc := testService(q)

	res, err := svc.AutoApply(context.Background(), uuid.New(), cart(1000))
	if err != nil {
		t.Fatalf("AutoApply: %v", err)
	}
	if res.Code != "BIG" {
		t.Fatalf("code = %q, want BIG", res.Code)
	}
	if res.Discount != money.FromRupees(150) {
		t.Fatalf("discount = %v, want 150.00", res.Discount)
	}
}

func TestAutoApplySkipsIneligible(t *testing.T) {
	q := &listQuerier{promos: []Promo{
		{ID: uuid.New(), Code: "MIN", Kind: KindFixed, Value: money.FromRupees(100), MinOrder: money.FromRupees(5000), Active: true},
		{ID: uuid.New(), Code: "OK", Kind: KindFixed, Value: money.FromRupees(10), Active: true},
	}}
	svc := testService(q)

	res, err := svc.AutoApply(context.Background(), uuid.New(), cart(1000))
	if err != nil {
		t.Fatalf("AutoApply: %v", err)
	}
	if res.Code != "OK" {
		t.Fatalf("code = %q, want OK", res.Code)
	}
}

func TestAutoApplyNothingQualifies(t *testing.T) {
	q := &listQuerier{promos: []Promo{
		{ID: uuid.New(), Code: "OFF", Kind: KindFixed, Value: money.FromRupees(10), Active: false},
	}}
	svc := testService(q)

	_, err := svc.AutoApply(context.Background(), uuid.New(), cart(1000))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestRedeemExhaustedRace(t *testing.T) {
	q := &stubQuerier{
		promo: Promo{
			ID: uuid.New(), Code: "LAST", Kind: KindFixed, Value: money.FromRupees(10), Active: true,
		},
		recordErr: ErrUsesExhausted,
	}
	svc := testService(q)
	_, err := svc.Redeem(context.Background(), "LAST", uuid.New(), uuid.New(), cart(1000))
	if !errors.Is(err, ErrUsesExhausted) {
		t.Fatalf("got %v, want ErrUsesExhausted", err)
	}
}
