package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PromoValidationTotal counts promo code validation outcomes.
	PromoValidationTotal *prometheus.CounterVec
	// PricingQuoteTotal counts pricing quote computations.
	PricingQuoteTotal *prometheus.CounterVec
	// RewardClaimTotal counts daily reward claim outcomes.
	RewardClaimTotal *prometheus.CounterVec
	// CashbackAwardTotal counts cashback awards by outcome.
	CashbackAwardTotal *prometheus.CounterVec
	// ReferralApplyTotal counts referral code applications by outcome.
	ReferralApplyTotal *prometheus.CounterVec
	// CreditSpendTotal counts credit spend attempts by outcome.
	CreditSpendTotal *prometheus.CounterVec
	// CreditBalancePaisa tracks the aggregate paisa moved through the ledger.
	CreditBalancePaisa *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PromoValidationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promo_validation_total",
			Help:      "Count of promo code validation outcomes.",
		}, []string{"result"})
		PricingQuoteTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_quote_total",
			Help:      "Count of pricing quote computations.",
		}, []string{"result"})
		RewardClaimTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reward_claim_total",
			Help:      "Count of daily reward claim outcomes.",
		}, []string{"result"})
		CashbackAwardTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cashback_award_total",
			Help:      "Count of cashback award outcomes.",
		}, []string{"result"})
		ReferralApplyTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "referral_apply_total",
			Help:      "Count of referral code application outcomes.",
		}, []string{"result"})
		CreditSpendTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credit_spend_total",
			Help:      "Count of store credit spend attempts.",
		}, []string{"result"})
		CreditBalancePaisa = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credit_ledger_paisa_total",
			Help:      "Paisa moved through the credit ledger by direction.",
		}, []string{"direction"})

		mustRegisterCollector(reg, PromoValidationTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PromoValidationTotal = v
			}
		})
		mustRegisterCollector(reg, PricingQuoteTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PricingQuoteTotal = v
			}
		})
		mustRegisterCollector(reg, RewardClaimTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				RewardClaimTotal = v
			}
		})
		mustRegisterCollector(reg, CashbackAwardTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CashbackAwardTotal = v
			}
		})
		mustRegisterCollector(reg, ReferralApplyTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				ReferralApplyTotal = v
			}
		})
		mustRegisterCollector(reg, CreditSpendTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CreditSpendTotal = v
			}
		})
		mustRegisterCollector(reg, CreditBalancePaisa, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CreditBalancePaisa = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
