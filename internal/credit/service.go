package credit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bibek-sh/backend-pasal/internal/events"
	"github.com/bibek-sh/backend-pasal/internal/money"
	"github.com/bibek-sh/backend-pasal/internal/obs"
	"github.com/bibek-sh/backend-pasal/internal/settings"
)

// Ledger captures the persistence methods required by the credit service.
type Ledger interface {
	Balance(ctx context.Context, customerID uuid.UUID) (money.Amount, error)
	Deposit(ctx context.Context, customerID uuid.UUID, amount money.Amount, kind, reason string, orderID *uuid.UUID) (Transaction, error)
	Spend(ctx context.Context, customerID uuid.UUID, amount money.Amount, kind, reason string, orderID *uuid.UUID) (Transaction, error)
	Adjust(ctx context.Context, customerID uuid.UUID, delta money.Amount, reason string) (Transaction, error)
	History(ctx context.Context, customerID uuid.UUID, limit int) ([]Transaction, error)
}

// SettingsReader supplies the cashback configuration.
type SettingsReader interface {
	GetCashback(ctx context.Context) (settings.Cashback, error)
}

// MultiplierResolver reports the active cashback multiplier.
type MultiplierResolver interface {
	Resolve(ctx context.Context, category string) (int64, error)
}

// Service wraps the ledger with cashback policy and event emission.
type Service struct {
	L          Ledger
	Settings   SettingsReader
	Multiplier MultiplierResolver
	Bus        *events.Bus
	Log        zerolog.Logger
}

// Balance returns the customer's current balance.
func (s *Service) Balance(ctx context.Context, customerID uuid.UUID) (money.Amount, error) {
	return s.L.Balance(ctx, customerID)
}

// History returns the customer's recent ledger entries.
func (s *Service) History(ctx context.Context, customerID uuid.UUID, limit int) ([]Transaction, error) {
	return s.L.History(ctx, customerID, limit)
}

// SpendForOrder deducts credits for a confirmed order.
func (s *Service) SpendForOrder(ctx context.Context, ledger Ledger, customerID, orderID uuid.UUID, amount money.Amount) (Transaction, error) {
	if ledger == nil {
		ledger = s.L
	}
	tx, err := ledger.Spend(ctx, customerID, amount, KindSpend,
		fmt.Sprintf("applied to order %s", orderID), &orderID)
	if err != nil {
		if obs.CreditSpendTotal != nil {
			obs.CreditSpendTotal.WithLabelValues("rejected").Inc()
		}
		return Transaction{}, err
	}
	if obs.CreditSpendTotal != nil {
		obs.CreditSpendTotal.WithLabelValues("ok").Inc()
	}
	if obs.CreditBalancePaisa != nil {
		obs.CreditBalancePaisa.WithLabelValues("out").Add(float64(amount.Paisa()))
	}
	return tx, nil
}

// AwardCashback credits the configured percentage of the order subtotal,
// scaled by the active cashback multiplier, once the order completes. A
// disabled program, a subtotal under the configured floor, or a cart
// outside the eligible categories and products awards nothing and is
// not an error.
func (s *Service) AwardCashback(ctx context.Context, ledger Ledger, customerID, orderID uuid.UUID, subtotal money.Amount, categories, products []string) (money.Amount, error) {
	if ledger == nil {
		ledger = s.L
	}
	cfg, err := s.Settings.GetCashback(ctx)
	if err != nil {
		return 0, err
	}
	if !cfg.Enabled || subtotal < cfg.MinOrder || !cashbackEligible(cfg, categories, products) {
		if obs.CashbackAwardTotal != nil {
			obs.CashbackAwardTotal.WithLabelValues("skipped").Inc()
		}
		return 0, nil
	}
	multiplierBps := int64(money.BpsPerUnit)
	if s.Multiplier != nil {
		bps, err := s.Multiplier.Resolve(ctx, "cashback")
		if err != nil {
			// A broken multiplier lookup must not block the award.
			s.Log.Warn().Err(err).Msg("cashback multiplier lookup failed")
		} else if bps > multiplierBps {
			multiplierBps = bps
		}
	}
	amount := subtotal.MulBps(cfg.PercentBps).MulBps(multiplierBps)
	if amount <= 0 {
		return 0, nil
	}
	tx, err := ledger.Deposit(ctx, customerID, amount, KindCashback,
		fmt.Sprintf("cashback for order %s", orderID), &orderID)
	if err != nil {
		if obs.CashbackAwardTotal != nil {
			obs.CashbackAwardTotal.WithLabelValues("error").Inc()
		}
		return 0, err
	}
	if obs.CashbackAwardTotal != nil {
		obs.CashbackAwardTotal.WithLabelValues("ok").Inc()
	}
	if obs.CreditBalancePaisa != nil {
		obs.CreditBalancePaisa.WithLabelValues("in").Add(float64(amount.Paisa()))
	}
	if s.Bus != nil {
		if _, err := s.Bus.Emit(ctx, events.TopicCashbackAwarded, map[string]any{
			"customer_id": customerID,
			"order_id":    orderID,
			"amount":      amount,
			"balance":     tx.BalanceAfter,
		}); err != nil {
			s.Log.Warn().Err(err).Msg("cashback event emit failed")
		}
	}
	return amount, nil
}

// cashbackEligible reports whether the order's categories or products
// intersect the configured eligibility lists. Empty lists earn on
// everything.
func cashbackEligible(cfg settings.Cashback, categories, products []string) bool {
	if len(cfg.EligibleCategories) == 0 && len(cfg.EligibleProducts) == 0 {
		return true
	}
	for _, c := range categories {
		if containsFold(cfg.EligibleCategories, c) {
			return true
		}
	}
	for _, p := range products {
		if containsFold(cfg.EligibleProducts, p) {
			return true
		}
	}
	return false
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}

// AdjustManual applies an admin-initiated balance change.
func (s *Service) AdjustManual(ctx context.Context, customerID uuid.UUID, delta money.Amount, reason string) (Transaction, error) {
	if reason == "" {
		return Transaction{}, errors.New("credit: adjustment reason is required")
	}
	tx, err := s.L.Adjust(ctx, customerID, delta, reason)
	if err != nil {
		return Transaction{}, err
	}
	if s.Bus != nil {
		if _, err := s.Bus.Emit(ctx, events.TopicCreditAdjusted, map[string]any{
			"customer_id": customerID,
			"delta":       tx.Amount,
			"balance":     tx.BalanceAfter,
			"reason":      reason,
		}); err != nil {
			s.Log.Warn().Err(err).Msg("credit adjust event emit failed")
		}
	}
	return tx, nil
}
