package promo

import (
	"errors"
	"strings"
	"time"

	"github.com/bibek-sh/backend-pasal/internal/money"
)

var (
	// ErrNotFound is returned when no promo code matches the requested code.
	ErrNotFound = errors.New("promo code not found")
	// ErrInactive is returned when the code exists but has been disabled.
	ErrInactive = errors.New("promo code not active")
	// ErrExpired is returned when the code is past its expiry instant.
	ErrExpired = errors.New("promo code expired")
	// ErrBelowMinimum indicates the order subtotal did not meet the code's floor.
	ErrBelowMinimum = errors.New("order below promo minimum")
	// ErrUsesExhausted indicates the code has hit its global usage quota.
	ErrUsesExhausted = errors.New("promo code usage limit reached")
	// ErrPerCustomerLimit indicates the caller exceeded the per-customer allowance.
	ErrPerCustomerLimit = errors.New("promo per-customer limit reached")
	// ErrFirstOrderOnly is returned when a first-order code is used by a returning customer.
	ErrFirstOrderOnly = errors.New("promo code valid for first order only")
	// ErrNotApplicable is returned when no cart item falls under the code's scope.
	ErrNotApplicable = errors.New("promo code not applicable to these items")
)

// Discount kinds.
const (
	KindPercentage = "percentage"
	KindFixed      = "fixed"
)

// Rule captures the runtime constraints of a promo code.
type Rule struct {
	Code            string
	Kind            string
	PercentBps      int64
	Value           money.Amount
	MinOrder        money.Amount
	MaxUses         *int32
	UsedCount       int32
	PerCustomerMax  *int32
	CustomerUses    int32
	FirstOrderOnly  bool
	PriorOrderCount int64
	Categories      []string
	Products        []string
	Active          bool
	ExpiresAt       *time.Time
}

// Item represents a cart line eligible for discount calculation.
type Item struct {
	ProductID string
	Category  string
	Subtotal  money.Amount
}

// NormalizeCode canonicalises user-supplied codes before lookup.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate checks every constraint of the rule against the order context.
// It never mutates state; usage is recorded separately at order commit.
func (r Rule) Validate(now time.Time, subtotal money.Amount) error {
	if !r.Active {
		return ErrInactive
	}
	if r.ExpiresAt != nil && now.After(*r.ExpiresAt) {
		return ErrExpired
	}
	if subtotal < r.MinOrder {
		return ErrBelowMinimum
	}
	if r.MaxUses != nil && *r.MaxUses >= 0 && r.UsedCount >= *r.MaxUses {
		return ErrUsesExhausted
	}
	if r.PerCustomerMax != nil && *r.PerCustomerMax > 0 && r.CustomerUses >= *r.PerCustomerMax {
		return ErrPerCustomerLimit
	}
	if r.FirstOrderOnly && r.PriorOrderCount > 0 {
		return ErrFirstOrderOnly
	}
	return nil
}

// Scoped reports whether the rule restricts itself to particular
// categories or products.
func (r Rule) Scoped() bool {
	return len(r.Categories) > 0 || len(r.Products) > 0
}

// EligibleSubtotal sums the cart lines that fall within the rule's scope.
// An unscoped rule covers the whole cart.
func EligibleSubtotal(items []Item, r Rule) money.Amount {
	if !r.Scoped() {
		var total money.Amount
		for _, it := range items {
			if it.Subtotal > 0 {
				total = total.Add(it.Subtotal)
			}
		}
		return total
	}
	var total money.Amount
	for _, it := range items {
		if it.Subtotal <= 0 {
			continue
		}
		if matchesScope(r, it) {
			total = total.Add(it.Subtotal)
		}
	}
	return total
}

func matchesScope(r Rule, it Item) bool {
	for _, c := range r.Categories {
		if strings.EqualFold(c, it.Category) {
			return true
		}
	}
	for _, p := range r.Products {
		if p == it.ProductID {
			return true
		}
	}
	return false
}

// Compute determines the discount against the given base amount.
// Percentage codes apply the stored basis points; fixed codes are capped
// at the base so a discount can never exceed the amount it applies to.
func Compute(base money.Amount, r Rule) money.Amount {
	if base <= 0 {
		return 0
	}
	switch r.Kind {
	case KindPercentage:
		if r.PercentBps <= 0 {
			return 0
		}
		return base.MulBps(r.PercentBps)
	case KindFixed:
		return r.Value.Min(base)
	default:
		return 0
	}
}
