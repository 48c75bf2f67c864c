package reward

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bibek-sh/backend-pasal/internal/credit"
	"github.com/bibek-sh/backend-pasal/internal/events"
	"github.com/bibek-sh/backend-pasal/internal/lock"
	"github.com/bibek-sh/backend-pasal/internal/money"
	"github.com/bibek-sh/backend-pasal/internal/obs"
	"github.com/bibek-sh/backend-pasal/internal/settings"
)

// Stater captures the persistence methods the claim flow needs.
type Stater interface {
	Get(ctx context.Context, customerID uuid.UUID) (State, error)
	Claim(ctx context.Context, customerID uuid.UUID, today string, streak int) (bool, error)
}

// SettingsReader supplies the daily reward configuration.
type SettingsReader interface {
	GetReward(ctx context.Context) (settings.Reward, error)
}

// MultiplierResolver reports the active reward multiplier for a category.
type MultiplierResolver interface {
	Resolve(ctx context.Context, category string) (int64, error)
}

// ClaimResult describes a successful daily claim.
type ClaimResult struct {
	Amount         money.Amount `json:"amount"`
	Base           money.Amount `json:"base"`
	MilestoneBonus money.Amount `json:"milestone_bonus"`
	MultiplierBps  int64        `json:"multiplier_bps"`
	Streak         int          `json:"streak"`
	ClaimDate      string       `json:"claim_date"`
}

// Service executes daily reward claims under a per-customer Redis lock.
type Service struct {
	Store      Stater
	Ledger     credit.Ledger
	Settings   SettingsReader
	Multiplier MultiplierResolver
	Locker     lock.Locker
	LockTTL    time.Duration
	Bus        *events.Bus
	Log        zerolog.Logger
	Now        func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// StatusResult describes the customer's current standing and what the
// next claim would pay.
type StatusResult struct {
	CanClaim     bool                 `json:"can_claim"`
	ClaimedToday bool                 `json:"claimed_today"`
	Streak       int                  `json:"streak"`
	NextStreak   int                  `json:"next_streak"`
	RewardAmount money.Amount         `json:"reward_amount"`
	Milestones   map[int]money.Amount `json:"streak_milestones"`
	LastClaim    string               `json:"last_claim"`
}

// Status returns the customer's streak, whether today is already claimed,
// and a preview of the next claim's payout.
func (s *Service) Status(ctx context.Context, customerID uuid.UUID) (StatusResult, error) {
	st, err := s.Store.Get(ctx, customerID)
	if err != nil {
		return StatusResult{}, err
	}
	cfg, err := s.Settings.GetReward(ctx)
	if err != nil {
		return StatusResult{}, err
	}
	now := s.now()
	claimedToday := st.LastClaim == NepalDate(now)
	nextStreak := NextStreak(st.LastClaim, st.Streak, now)

	multiplierBps := int64(money.BpsPerUnit)
	if s.Multiplier != nil {
		if bps, err := s.Multiplier.Resolve(ctx, "daily_reward"); err == nil && bps > multiplierBps {
			multiplierBps = bps
		}
	}
	return StatusResult{
		CanClaim:     cfg.Enabled && !claimedToday,
		ClaimedToday: claimedToday,
		Streak:       st.Streak,
		NextStreak:   nextStreak,
		RewardAmount: Compute(cfg, nextStreak, multiplierBps),
		Milestones:   cfg.Milestones,
		LastClaim:    st.LastClaim,
	}, nil
}

// Claim awards today's reward. The Redis lock serialises concurrent claims
// for the same customer; the guarded UPDATE in the store is the second
// line of defence, so double credit is impossible even if the lock expires
// mid-flight.
func (s *Service) Claim(ctx context.Context, customerID uuid.UUID) (ClaimResult, error) {
	cfg, err := s.Settings.GetReward(ctx)
	if err != nil {
		return ClaimResult{}, err
	}
	if !cfg.Enabled {
		s.count("disabled")
		return ClaimResult{}, ErrDisabled
	}

	var result ClaimResult
	key := fmt.Sprintf("reward:claim:%s", customerID)
	ttl := s.LockTTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	err = s.Locker.WithLock(ctx, key, ttl, func(ctx context.Context) error {
		now := s.now()
		today := NepalDate(now)

		st, err := s.Store.Get(ctx, customerID)
		if err != nil {
			return err
		}
		if st.LastClaim == today {
			return ErrAlreadyClaimed
		}

		streak := NextStreak(st.LastClaim, st.Streak, now)

		multiplierBps := int64(money.BpsPerUnit)
		if s.Multiplier != nil {
			bps, err := s.Multiplier.Resolve(ctx, "daily_reward")
			if err != nil {
				// A broken multiplier lookup must not block the claim.
				s.Log.Warn().Err(err).Msg("reward multiplier lookup failed")
			} else if bps > multiplierBps {
				multiplierBps = bps
			}
		}

		base := cfg.BaseAmount
		bonus := MilestoneBonus(cfg, streak)
		amount := Compute(cfg, streak, multiplierBps)

		claimed, err := s.Store.Claim(ctx, customerID, today, streak)
		if err != nil {
			return err
		}
		if !claimed {
			return ErrAlreadyClaimed
		}
		if amount > 0 {
			if _, err := s.Ledger.Deposit(ctx, customerID, amount, credit.KindDailyReward,
				fmt.Sprintf("daily reward day %d", streak), nil); err != nil {
				return err
			}
		}
		result = ClaimResult{
			Amount:         amount,
			Base:           base,
			MilestoneBonus: bonus,
			MultiplierBps:  multiplierBps,
			Streak:         streak,
			ClaimDate:      today,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyClaimed) {
			s.count("already_claimed")
		} else {
			s.count("error")
		}
		return ClaimResult{}, err
	}
	s.count("ok")
	if s.Bus != nil {
		if _, err := s.Bus.Emit(ctx, events.TopicRewardClaimed, map[string]any{
			"customer_id": customerID,
			"amount":      result.Amount,
			"streak":      result.Streak,
			"claim_date":  result.ClaimDate,
		}); err != nil {
			s.Log.Warn().Err(err).Msg("reward event emit failed")
		}
	}
	return result, nil
}

func (s *Service) count(result string) {
	if obs.RewardClaimTotal != nil {
		obs.RewardClaimTotal.WithLabelValues(result).Inc()
	}
}
