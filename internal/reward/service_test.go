package reward_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/bibek-sh/backend-pasal/internal/credit"
	"github.com/bibek-sh/backend-pasal/internal/lock"
	"github.com/bibek-sh/backend-pasal/internal/money"
	"github.com/bibek-sh/backend-pasal/internal/reward"
	"github.com/bibek-sh/backend-pasal/internal/settings"
)

type memState struct {
	mu     sync.Mutex
	streak int
	last   string
}

func (m *memState) Get(_ context.Context, _ uuid.UUID) (reward.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return reward.State{Streak: m.streak, LastClaim: m.last}, nil
}

func (m *memState) Claim(_ context.Context, _ uuid.UUID, today string, streak int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last >= today {
		return false, nil
	}
	m.last = today
	m.streak = streak
	return true, nil
}

type memLedger struct {
	mu       sync.Mutex
	deposits []money.Amount
}

func (m *memLedger) Balance(_ context.Context, _ uuid.UUID) (money.Amount, error) { return 0, nil }

func (m *memLedger) Deposit(_ context.Context, customerID uuid.UUID, amount money.Amount, kind, reason string, orderID *uuid.UUID) (credit.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deposits = append(m.deposits, amount)
	return credit.Transaction{CustomerID: customerID, Amount: amount, Kind: kind}, nil
}

func (m *memLedger) Spend(_ context.Context, _ uuid.UUID, _ money.Amount, _, _ string, _ *uuid.UUID) (credit.Transaction, error) {
	return credit.Transaction{}, nil
}

func (m *memLedger) Adjust(_ context.Context, _ uuid.UUID, _ money.Amount, _ string) (credit.Transaction, error) {
	return credit.Transaction{}, nil
}

func (m *memLedger) History(_ context.Context, _ uuid.UUID, _ int) ([]credit.Transaction, error) {
	return nil, nil
}

type fixedSettings struct {
	cfg settings.Reward
}

func (f fixedSettings) GetReward(_ context.Context) (settings.Reward, error) {
	return f.cfg, nil
}

type fixedMultiplier struct {
	bps int64
}

func (f fixedMultiplier) Resolve(_ context.Context, _ string) (int64, error) {
	return f.bps, nil
}

func newService(t *testing.T, state *memState, ledger *memLedger, cfg settings.Reward, multiplierBps int64, now func() time.Time) *reward.Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return &reward.Service{
		Store:      state,
		Ledger:     ledger,
		Settings:   fixedSettings{cfg: cfg},
		Multiplier: fixedMultiplier{bps: multiplierBps},
		Locker:     lock.Locker{R: client},
		Now:        now,
	}
}

func baseConfig() settings.Reward {
	return settings.Reward{
		Enabled:    true,
		BaseAmount: money.FromRupees(10),
		Milestones: map[int]money.Amount{7: money.FromRupees(50)},
	}
}

func noonUTC(day int) func() time.Time {
	return func() time.Time {
		return time.Date(2026, time.March, day, 12, 0, 0, 0, time.UTC)
	}
}

func TestClaimFirstDay(t *testing.T) {
	state := &memState{}
	ledger := &memLedger{}
	svc := newService(t, state, ledger, baseConfig(), money.BpsPerUnit, noonUTC(15))

	result, err := svc.Claim(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Equal(t, 1, result.Streak)
	require.Equal(t, money.FromRupees(10), result.Amount)
	require.Equal(t, "2026-03-15", result.ClaimDate)
	require.Len(t, ledger.deposits, 1)
}

func TestStatusPreviewsNextClaim(t *testing.T) {
	state := &memState{streak: 6, last: "2026-03-14"}
	svc := newService(t, state, &memLedger{}, baseConfig(), money.BpsPerUnit, noonUTC(15))

	st, err := svc.Status(context.Background(), uuid.New())
	require.NoError(t, err)
	require.True(t, st.CanClaim)
	require.False(t, st.ClaimedToday)
	require.Equal(t, 6, st.Streak)
	require.Equal(t, 7, st.NextStreak)
	// Day seven lands on the milestone: base 10 plus bonus 50.
	require.Equal(t, money.FromRupees(60), st.RewardAmount)
	require.Equal(t, baseConfig().Milestones, st.Milestones)
	require.Equal(t, "2026-03-14", st.LastClaim)
}

func TestStatusAfterTodayClaim(t *testing.T) {
	state := &memState{streak: 3, last: "2026-03-15"}
	svc := newService(t, state, &memLedger{}, baseConfig(), money.BpsPerUnit, noonUTC(15))

	st, err := svc.Status(context.Background(), uuid.New())
	require.NoError(t, err)
	require.False(t, st.CanClaim)
	require.True(t, st.ClaimedToday)
	require.Equal(t, 3, st.Streak)
}

func TestClaimTwiceSameDayConflicts(t *testing.T) {
	state := &memState{}
	ledger := &memLedger{}
	svc := newService(t, state, ledger, baseConfig(), money.BpsPerUnit, noonUTC(15))
	cid := uuid.New()

	_, err := svc.Claim(context.Background(), cid)
	require.NoError(t, err)

	_, err = svc.Claim(context.Background(), cid)
	require.ErrorIs(t, err, reward.ErrAlreadyClaimed)
	require.Len(t, ledger.deposits, 1)
}

func TestClaimConsecutiveDaysExtendsStreak(t *testing.T) {
	state := &memState{streak: 6, last: "2026-03-14"}
	ledger := &memLedger{}
	svc := newService(t, state, ledger, baseConfig(), money.BpsPerUnit, noonUTC(15))

	result, err := svc.Claim(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Equal(t, 7, result.Streak)
	// Day seven lands on the milestone: 10 base + 50 bonus.
	require.Equal(t, money.FromRupees(60), result.Amount)
	require.Equal(t, money.FromRupees(50), result.MilestoneBonus)
}

func TestClaimAfterGapResetsStreak(t *testing.T) {
	state := &memState{streak: 20, last: "2026-03-10"}
	ledger := &memLedger{}
	svc := newService(t, state, ledger, baseConfig(), money.BpsPerUnit, noonUTC(15))

	result, err := svc.Claim(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Equal(t, 1, result.Streak)
}

func TestClaimAppliesMultiplier(t *testing.T) {
	state := &memState{}
	ledger := &memLedger{}
	svc := newService(t, state, ledger, baseConfig(), 20000, noonUTC(15))

	result, err := svc.Claim(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Equal(t, money.FromRupees(20), result.Amount)
	require.Equal(t, int64(20000), result.MultiplierBps)
}

func TestClaimDisabledProgram(t *testing.T) {
	cfg := baseConfig()
	cfg.Enabled = false
	svc := newService(t, &memState{}, &memLedger{}, cfg, money.BpsPerUnit, noonUTC(15))

	_, err := svc.Claim(context.Background(), uuid.New())
	require.ErrorIs(t, err, reward.ErrDisabled)
}

func TestConcurrentClaimsAwardOnce(t *testing.T) {
	state := &memState{}
	ledger := &memLedger{}
	svc := newService(t, state, ledger, baseConfig(), money.BpsPerUnit, noonUTC(15))
	cid := uuid.New()

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Claim(context.Background(), cid)
		}(i)
	}
	wg.Wait()

	var okCount int
	for _, err := range errs {
		if err == nil {
			okCount++
		} else {
			require.ErrorIs(t, err, reward.ErrAlreadyClaimed)
		}
	}
	require.Equal(t, 1, okCount)
	require.Len(t, ledger.deposits, 1)
}
