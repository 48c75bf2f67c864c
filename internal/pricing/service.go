package pricing

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/bibek-sh/backend-pasal/internal/money"
	"github.com/bibek-sh/backend-pasal/internal/promo"
	"github.com/bibek-sh/backend-pasal/internal/settings"
)

// PromoValidator resolves a promo code into a discount without side effects.
type PromoValidator interface {
	Validate(ctx context.Context, code string, customerID uuid.UUID, items []promo.Item) (promo.Result, error)
}

// BalanceReader reports a customer's current store credit balance.
type BalanceReader interface {
	Balance(ctx context.Context, customerID uuid.UUID) (money.Amount, error)
}

// SettingsReader supplies the checkout-wide pricing configuration.
type SettingsReader interface {
	GetPricing(ctx context.Context) (settings.Pricing, error)
}

// QuoteRequest is the cart context a quote is computed for.
type QuoteRequest struct {
	Items            []promo.Item
	PromoCode        string
	CreditsRequested money.Amount
}

// Quote is a server-computed price preview.
type Quote struct {
	Breakdown
	PromoCode string `json:"promo_code,omitempty"`
}

// Quoter computes authoritative price previews. The same path runs at
// order creation so a quote and its order can never disagree.
type Quoter struct {
	Promo    PromoValidator
	Credits  BalanceReader
	Settings SettingsReader
}

// Quote resolves the promo code, loads settings and the credit balance,
// and runs the price computation. Promo rejections propagate unchanged so
// callers can map them to their sentinel meanings.
func (q *Quoter) Quote(ctx context.Context, customerID uuid.UUID, req QuoteRequest) (Quote, error) {
	if q == nil || q.Settings == nil {
		return Quote{}, errors.New("pricing quoter not configured")
	}

	var subtotal money.Amount
	for _, it := range req.Items {
		if it.Subtotal > 0 {
			subtotal = subtotal.Add(it.Subtotal)
		}
	}

	cfg, err := q.Settings.GetPricing(ctx)
	if err != nil {
		return Quote{}, err
	}

	var discount money.Amount
	var appliedCode string
	if code := strings.TrimSpace(req.PromoCode); code != "" {
		if q.Promo == nil {
			return Quote{}, errors.New("promo validation not configured")
		}
		res, err := q.Promo.Validate(ctx, code, customerID, req.Items)
		if err != nil {
			return Quote{}, err
		}
		discount = res.Discount
		appliedCode = res.Code
	}

	var balance money.Amount
	if req.CreditsRequested > 0 && q.Credits != nil {
		balance, err = q.Credits.Balance(ctx, customerID)
		if err != nil {
			return Quote{}, err
		}
	}

	breakdown := Compute(Input{
		Subtotal:         subtotal,
		Discount:         discount,
		TaxBps:           cfg.TaxBps,
		ServiceCharge:    cfg.ServiceCharge,
		CreditsRequested: req.CreditsRequested,
		CreditBalance:    balance,
	})
	return Quote{Breakdown: breakdown, PromoCode: appliedCode}, nil
}
