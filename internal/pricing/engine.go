package pricing

import "github.com/bibek-sh/backend-pasal/internal/money"

// Input carries everything the price computation needs. Discount is the
// already-resolved promo discount; CreditsRequested is what the customer
// asked to spend and CreditBalance what they actually hold.
type Input struct {
	Subtotal         money.Amount
	Discount         money.Amount
	TaxBps           int64
	ServiceCharge    money.Amount
	CreditsRequested money.Amount
	CreditBalance    money.Amount
}

// Breakdown is the itemised result of a price computation.
type Breakdown struct {
	Subtotal       money.Amount `json:"subtotal"`
	Discount       money.Amount `json:"discount"`
	AfterDiscount  money.Amount `json:"after_discount"`
	Tax            money.Amount `json:"tax"`
	ServiceCharge  money.Amount `json:"service_charge"`
	CreditsApplied money.Amount `json:"credits_applied"`
	Total          money.Amount `json:"total"`
}

// Compute produces the order total. The sequence is fixed: the discount
// reduces the subtotal, tax applies to the discounted amount, the service
// charge is added flat, and store credits come off last. Credits can never
// exceed the pre-credit total or the customer's balance, so the total
// never goes negative.
func Compute(in Input) Breakdown {
	afterDiscount := in.Subtotal.Sub(in.Discount)
	tax := afterDiscount.MulBps(in.TaxBps)
	preCredit := afterDiscount.Add(tax).Add(in.ServiceCharge)

	credits := in.CreditsRequested
	if credits < 0 {
		credits = 0
	}
	credits = credits.Min(in.CreditBalance)
	credits = credits.Min(preCredit)

	return Breakdown{
		Subtotal:       in.Subtotal,
		Discount:       in.Subtotal.Min(in.Discount),
		AfterDiscount:  afterDiscount,
		Tax:            tax,
		ServiceCharge:  in.ServiceCharge,
		CreditsApplied: credits,
		Total:          preCredit.Sub(credits),
	}
}
