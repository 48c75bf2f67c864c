package promo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/bibek-sh/backend-pasal/internal/money"
)

// Querier captures the persistence methods required by the promo service.
type Querier interface {
	GetByCode(ctx context.Context, code string) (Promo, error)
	CountUsageByCustomer(ctx context.Context, promoID, customerID uuid.UUID) (int64, error)
	CountCustomerOrders(ctx context.Context, customerID uuid.UUID) (int64, error)
	RecordUsage(ctx context.Context, promoID, customerID, orderID uuid.UUID) error
}

// Result describes a successful validation.
type Result struct {
	PromoID        uuid.UUID    `json:"-"`
	Code           string       `json:"code"`
	Kind           string       `json:"discount_type"`
	Discount       money.Amount `json:"discount"`
	EligibleAmount money.Amount `json:"eligible_amount"`
	Description    string       `json:"description"`
}

// Service evaluates promo codes against order context.
type Service struct {
	Q   Querier
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Validate performs a side-effect-free evaluation of a promo code for the
// given customer and cart. Every rejection maps to one of the package's
// sentinel errors.
func (s *Service) Validate(ctx context.Context, code string, customerID uuid.UUID, items []Item) (Result, error) {
	if s == nil || s.Q == nil {
		return Result{}, errors.New("promo service not configured")
	}
	canonical := NormalizeCode(code)
	if canonical == "" {
		return Result{}, ErrNotFound
	}
	p, err := s.Q.GetByCode(ctx, canonical)
	if err != nil {
		return Result{}, err
	}

	rule := p.Rule()
	if rule.PerCustomerMax != nil && *rule.PerCustomerMax > 0 {
		used, err := s.Q.CountUsageByCustomer(ctx, p.ID, customerID)
		if err != nil {
			return Result{}, err
		}
		rule.CustomerUses = int32(used)
	}
	if rule.FirstOrderOnly {
		prior, err := s.Q.CountCustomerOrders(ctx, customerID)
		if err != nil {
			return Result{}, err
		}
		rule.PriorOrderCount = prior
	}

	var subtotal money.Amount
	for _, it := range items {
		if it.Subtotal > 0 {
			subtotal = subtotal.Add(it.Subtotal)
		}
	}
	if err := rule.Validate(s.now(), subtotal); err != nil {
		return Result{}, err
	}

	// Scope gates applicability only: once any cart line matches, the
	// discount applies to the full subtotal.
	eligible := EligibleSubtotal(items, rule)
	if eligible <= 0 {
		return Result{}, ErrNotApplicable
	}
	discount := Compute(subtotal, rule)
	if discount <= 0 {
		return Result{}, ErrNotApplicable
	}
	return Result{
		PromoID:        p.ID,
		Code:           p.Code,
		Kind:           p.Kind,
		Discount:       discount,
		EligibleAmount: eligible,
		Description:    p.Description,
	}, nil
}

// Redeem re-validates the code and records its usage for the given order.
// It runs inside the order-create transaction so the usage row and the
// counter move with the order.
func (s *Service) Redeem(ctx context.Context, code string, customerID, orderID uuid.UUID, items []Item) (Result, error) {
	res, err := s.Validate(ctx, code, customerID, items)
	if err != nil {
		return Result{}, err
	}
	if err := s.Q.RecordUsage(ctx, res.PromoID, customerID, orderID); err != nil {
		return Result{}, err
	}
	return res, nil
}

// Lister enumerates stored promos. Satisfied by *Store.
type Lister interface {
	List(ctx context.Context) ([]Promo, error)
}

// AutoApply evaluates every stored promo against the cart and returns
// the one yielding the largest discount. Codes that fail validation for
// any business reason are skipped; ErrNotFound means no code qualifies.
func (s *Service) AutoApply(ctx context.Context, customerID uuid.UUID, items []Item) (Result, error) {
	if s == nil || s.Q == nil {
		return Result{}, errors.New("promo service not configured")
	}
	l, ok := s.Q.(Lister)
	if !ok {
		return Result{}, errors.New("promo store does not support listing")
	}
	promos, err := l.List(ctx)
	if err != nil {
		return Result{}, err
	}
	var best Result
	found := false
	for _, p := range promos {
		if !p.Active {
			continue
		}
		res, err := s.Validate(ctx, p.Code, customerID, items)
		if err != nil {
			if IsRejection(err) {
				continue
			}
			return Result{}, err
		}
		if !found || res.Discount > best.Discount {
			best = res
			found = true
		}
	}
	if !found {
		return Result{}, ErrNotFound
	}
	return best, nil
}

// WithQuerier returns a copy of the service bound to q, typically a
// transaction-scoped store.
func (s *Service) WithQuerier(q Querier) *Service {
	return &Service{Q: q, Now: s.Now}
}

// Rule projects the stored promo into its evaluation form.
func (p Promo) Rule() Rule {
	return Rule{
		Code:           p.Code,
		Kind:           p.Kind,
		PercentBps:     p.PercentBps,
		Value:          p.Value,
		MinOrder:       p.MinOrder,
		MaxUses:        p.MaxUses,
		UsedCount:      p.UsedCount,
		PerCustomerMax: p.PerCustomerMax,
		FirstOrderOnly: p.FirstOrderOnly,
		Categories:     p.Categories,
		Products:       p.Products,
		Active:         p.Active,
		ExpiresAt:      p.ExpiresAt,
	}
}
