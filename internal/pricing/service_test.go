package pricing

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/bibek-sh/backend-pasal/internal/money"
	"github.com/bibek-sh/backend-pasal/internal/promo"
	"github.com/bibek-sh/backend-pasal/internal/settings"
)

type stubPromo struct {
	result promo.Result
	err    error
	called bool
}

func (s *stubPromo) Validate(_ context.Context, _ string, _ uuid.UUID, _ []promo.Item) (promo.Result, error) {
	s.called = true
	return s.result, s.err
}

type stubBalance struct {
	balance money.Amount
	called  bool
}

func (s *stubBalance) Balance(_ context.Context, _ uuid.UUID) (money.Amount, error) {
	s.called = true
	return s.balance, nil
}

type stubSettings struct {
	pricing settings.Pricing
}

func (s *stubSettings) GetPricing(_ context.Context) (settings.Pricing, error) {
	return s.pricing, nil
}

func quoteItems(total int64) []promo.Item {
	return []promo.Item{{ProductID: "p1", Category: "games", Subtotal: money.FromRupees(total)}}
}

func TestQuoteEndToEnd(t *testing.T) {
	q := &Quoter{
		Promo:    &stubPromo{result: promo.Result{Code: "SAVE10", Discount: money.FromRupees(100)}},
		Credits:  &stubBalance{balance: money.FromRupees(500)},
		Settings: &stubSettings{pricing: settings.Pricing{TaxBps: 1300, ServiceCharge: money.FromRupees(50)}},
	}
	got, err := q.Quote(context.Background(), uuid.New(), QuoteRequest{
		Items:            quoteItems(1000),
		PromoCode:        "SAVE10",
		CreditsRequested: money.FromRupees(200),
	})
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if got.Total != money.FromRupees(867) {
		t.Fatalf("total = %v, want 867.00", got.Total)
	}
	if got.PromoCode != "SAVE10" {
		t.Fatalf("promo code = %q", got.PromoCode)
	}
}

func TestQuoteWithoutPromoSkipsValidation(t *testing.T) {
	p := &stubPromo{}
	q := &Quoter{
		Promo:    p,
		Settings: &stubSettings{},
	}
	got, err := q.Quote(context.Background(), uuid.New(), QuoteRequest{Items: quoteItems(100)})
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if p.called {
		t.Fatal("promo validator should not run without a code")
	}
	if got.Total != money.FromRupees(100) {
		t.Fatalf("total = %v", got.Total)
	}
}

func TestQuotePromoErrorPropagates(t *testing.T) {
	q := &Quoter{
		Promo:    &stubPromo{err: promo.ErrExpired},
		Settings: &stubSettings{},
	}
	_, err := q.Quote(context.Background(), uuid.New(), QuoteRequest{
		Items:     quoteItems(100),
		PromoCode: "OLD",
	})
	if !errors.Is(err, promo.ErrExpired) {
		t.Fatalf("got %v, want ErrExpired", err)
	}
}

func TestQuoteSkipsBalanceWhenNoCreditsRequested(t *testing.T) {
	b := &stubBalance{balance: money.FromRupees(999)}
	q := &Quoter{Credits: b, Settings: &stubSettings{}}
	got, err := q.Quote(context.Background(), uuid.New(), QuoteRequest{Items: quoteItems(100)})
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if b.called {
		t.Fatal("balance lookup should be skipped")
	}
	if got.CreditsApplied != 0 {
		t.Fatalf("credits = %v", got.CreditsApplied)
	}
}
