package referral

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bibek-sh/backend-pasal/internal/credit"
	"github.com/bibek-sh/backend-pasal/internal/db"
	"github.com/bibek-sh/backend-pasal/internal/events"
	"github.com/bibek-sh/backend-pasal/internal/money"
	"github.com/bibek-sh/backend-pasal/internal/obs"
	"github.com/bibek-sh/backend-pasal/internal/settings"
)

// Linker captures the persistence surface of the referral flow.
type Linker interface {
	CodeOf(ctx context.Context, customerID uuid.UUID) (string, error)
	AssignCode(ctx context.Context, customerID uuid.UUID, code string) error
	OwnerOfCode(ctx context.Context, code string) (uuid.UUID, error)
	ReferrerOf(ctx context.Context, customerID uuid.UUID) (string, error)
	CountOrders(ctx context.Context, customerID uuid.UUID) (int64, error)
	Link(ctx context.Context, r Referral) (Referral, error)
	PendingForReferred(ctx context.Context, referredID uuid.UUID) (Referral, bool, error)
	MarkCredited(ctx context.Context, id uuid.UUID) (bool, error)
	StatsFor(ctx context.Context, referrerID uuid.UUID) (Stats, error)
}

// Historian lists past referrals. Satisfied by *Store.
type Historian interface {
	HistoryFor(ctx context.Context, referrerID uuid.UUID, limit int) ([]Referral, error)
}

// MultiplierResolver reports the active referral multiplier.
type MultiplierResolver interface {
	Resolve(ctx context.Context, category string) (int64, error)
}

// SettingsReader supplies the referral program configuration.
type SettingsReader interface {
	GetReferral(ctx context.Context) (settings.Referral, error)
}

// Service runs the two-sided referral program.
type Service struct {
	Store      Linker
	Ledger     credit.Ledger
	Settings   SettingsReader
	Multiplier MultiplierResolver
	Bus        *events.Bus
	Log        zerolog.Logger
}

// MyCode returns the customer's share code, generating one on first use.
// Code collisions retry a few times before giving up.
func (s *Service) MyCode(ctx context.Context, customerID uuid.UUID) (string, error) {
	code, err := s.Store.CodeOf(ctx, customerID)
	if err != nil {
		return "", err
	}
	if code != "" {
		return code, nil
	}
	for attempt := 0; attempt < 5; attempt++ {
		candidate, err := GenerateCode()
		if err != nil {
			return "", err
		}
		if err := s.Store.AssignCode(ctx, customerID, candidate); err != nil {
			if db.IsUniqueViolation(err) {
				continue
			}
			return "", err
		}
		// Another request may have assigned concurrently; read back the
		// stored value rather than trusting our candidate.
		return s.Store.CodeOf(ctx, customerID)
	}
	return "", fmt.Errorf("referral: could not allocate a unique code")
}

// ApplyResult describes a successful code application.
type ApplyResult struct {
	ReferredReward money.Amount `json:"referred_reward"`
	ReferrerReward money.Amount `json:"referrer_reward"`
	RewardPending  bool         `json:"referrer_reward_pending"`
}

// Apply links the customer to the code's owner and pays both sides
// according to the program settings. When the program requires a first
// purchase, the referrer side stays pending until release.
func (s *Service) Apply(ctx context.Context, customerID uuid.UUID, code string) (ApplyResult, error) {
	cfg, err := s.Settings.GetReferral(ctx)
	if err != nil {
		return ApplyResult{}, err
	}
	if !cfg.Enabled {
		s.count("disabled")
		return ApplyResult{}, ErrDisabled
	}

	referrerID, err := s.Store.OwnerOfCode(ctx, code)
	if err != nil {
		s.count("invalid_code")
		return ApplyResult{}, err
	}
	if referrerID == customerID {
		s.count("self_referral")
		return ApplyResult{}, ErrSelfReferral
	}
	existing, err := s.Store.ReferrerOf(ctx, customerID)
	if err != nil {
		return ApplyResult{}, err
	}
	if existing != "" {
		s.count("already_referred")
		return ApplyResult{}, ErrAlreadyReferred
	}
	orders, err := s.Store.CountOrders(ctx, customerID)
	if err != nil {
		return ApplyResult{}, err
	}
	if orders > 0 {
		s.count("not_new")
		return ApplyResult{}, ErrNotNewCustomer
	}

	// The active multiplier scales both sides. The scaled referrer amount
	// is frozen onto the row so a deferred release pays what was promised
	// at apply time, not whatever multiplier is live later.
	multiplierBps := int64(money.BpsPerUnit)
	if s.Multiplier != nil {
		bps, err := s.Multiplier.Resolve(ctx, "referral")
		if err != nil {
			s.Log.Warn().Err(err).Msg("referral multiplier lookup failed")
		} else if bps > multiplierBps {
			multiplierBps = bps
		}
	}
	referredReward := cfg.ReferredReward.MulBps(multiplierBps)
	referrerReward := cfg.ReferrerReward.MulBps(multiplierBps)

	pending := cfg.MinPurchaseRequired
	linked, err := s.Store.Link(ctx, Referral{
		ReferrerID:            referrerID,
		ReferredID:            customerID,
		Code:                  code,
		ReferredReward:        referredReward,
		ReferrerReward:        referrerReward,
		ReferrerRewardPending: pending,
		ReferrerCredited:      false,
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyReferred) {
			s.count("already_referred")
		}
		return ApplyResult{}, err
	}

	if referredReward > 0 {
		if _, err := s.Ledger.Deposit(ctx, customerID, referredReward, credit.KindReferral,
			"referral welcome bonus", nil); err != nil {
			return ApplyResult{}, err
		}
	}
	if !pending && referrerReward > 0 {
		if _, err := s.Ledger.Deposit(ctx, referrerID, referrerReward, credit.KindReferral,
			fmt.Sprintf("referral reward for %s", customerID), nil); err != nil {
			return ApplyResult{}, err
		}
	}

	s.count("ok")
	if s.Bus != nil {
		if _, err := s.Bus.Emit(ctx, events.TopicReferralApplied, map[string]any{
			"referrer_id": linked.ReferrerID,
			"referred_id": linked.ReferredID,
			"code":        linked.Code,
			"pending":     pending,
		}); err != nil {
			s.Log.Warn().Err(err).Msg("referral event emit failed")
		}
	}
	return ApplyResult{
		ReferredReward: referredReward,
		ReferrerReward: referrerReward,
		RewardPending:  pending,
	}, nil
}

// Release pays out a deferred referrer reward after the referred
// customer's qualifying purchase. Safe to call repeatedly; the credited
// flag guards the deposit.
func (s *Service) Release(ctx context.Context, referredID uuid.UUID, purchaseSubtotal money.Amount) error {
	cfg, err := s.Settings.GetReferral(ctx)
	if err != nil {
		return err
	}
	if purchaseSubtotal < cfg.MinPurchaseAmount {
		return nil
	}
	pending, ok, err := s.Store.PendingForReferred(ctx, referredID)
	if err != nil || !ok {
		return err
	}
	credited, err := s.Store.MarkCredited(ctx, pending.ID)
	if err != nil {
		return err
	}
	if !credited {
		return nil
	}
	if pending.ReferrerReward > 0 {
		if _, err := s.Ledger.Deposit(ctx, pending.ReferrerID, pending.ReferrerReward, credit.KindReferral,
			fmt.Sprintf("referral reward for %s", referredID), nil); err != nil {
			return err
		}
	}
	return nil
}

// Stats returns the customer's referral summary.
func (s *Service) Stats(ctx context.Context, customerID uuid.UUID) (Stats, error) {
	return s.Store.StatsFor(ctx, customerID)
}

// History lists the customer's past referrals, newest first.
func (s *Service) History(ctx context.Context, customerID uuid.UUID, limit int) ([]Referral, error) {
	h, ok := s.Store.(Historian)
	if !ok {
		return nil, errors.New("referral store does not support history")
	}
	return h.HistoryFor(ctx, customerID, limit)
}

// ReleaseNotifier adapts the service into an event bus notifier that
// releases deferred rewards when referred customers complete orders.
type ReleaseNotifier struct {
	Svc *Service
}

// Notify implements events.Notifier for order completion events.
func (n ReleaseNotifier) Notify(ctx context.Context, event events.Event) error {
	if event.Topic != events.TopicOrderCompleted {
		return nil
	}
	var payload struct {
		CustomerID uuid.UUID    `json:"customer_id"`
		Subtotal   money.Amount `json:"subtotal"`
	}
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return err
	}
	if payload.CustomerID == uuid.Nil {
		return nil
	}
	return n.Svc.Release(ctx, payload.CustomerID, payload.Subtotal)
}

func (s *Service) count(result string) {
	if obs.ReferralApplyTotal != nil {
		obs.ReferralApplyTotal.WithLabelValues(result).Inc()
	}
}
