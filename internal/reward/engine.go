package reward

import (
	"errors"
	"time"

	"github.com/bibek-sh/backend-pasal/internal/money"
	"github.com/bibek-sh/backend-pasal/internal/settings"
)

// ErrAlreadyClaimed is returned when the customer has already claimed today.
var ErrAlreadyClaimed = errors.New("daily reward already claimed")

// ErrDisabled is returned when the daily reward program is switched off.
var ErrDisabled = errors.New("daily reward program disabled")

// nepalOffset is UTC+5:45. Reward days roll over at Nepali midnight no
// matter where the request comes from.
var nepalOffset = 5*time.Hour + 45*time.Minute

// NepalDate formats the instant as a calendar date in Nepal Time.
func NepalDate(t time.Time) string {
	return t.UTC().Add(nepalOffset).Format("2006-01-02")
}

// PreviousNepalDate returns the Nepali calendar day before the instant.
func PreviousNepalDate(t time.Time) string {
	return t.UTC().Add(nepalOffset).AddDate(0, 0, -1).Format("2006-01-02")
}

// NextStreak determines the streak after a claim at now, given the date of
// the last successful claim. A claim on consecutive Nepali days extends
// the streak; any gap resets it to one.
func NextStreak(lastClaim string, currentStreak int, now time.Time) int {
	if lastClaim == PreviousNepalDate(now) && currentStreak > 0 {
		return currentStreak + 1
	}
	return 1
}

// MilestoneBonus returns the bonus for landing exactly on a milestone day.
// Re-reaching the same milestone after a reset pays again.
func MilestoneBonus(cfg settings.Reward, streak int) money.Amount {
	if bonus, ok := cfg.Milestones[streak]; ok {
		return bonus
	}
	return 0
}

// Compute calculates the credit for a claim: base plus any milestone
// bonus, scaled by the active event multiplier in basis points.
func Compute(cfg settings.Reward, streak int, multiplierBps int64) money.Amount {
	total := cfg.BaseAmount.Add(MilestoneBonus(cfg, streak))
	if multiplierBps > money.BpsPerUnit {
		total = total.MulBps(multiplierBps)
	}
	return total
}
