package referral

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/bibek-sh/backend-pasal/internal/credit"
	"github.com/bibek-sh/backend-pasal/internal/money"
	"github.com/bibek-sh/backend-pasal/internal/settings"
)

type memStore struct {
	codes      map[uuid.UUID]string
	owners     map[string]uuid.UUID
	referredBy map[uuid.UUID]string
	orders     map[uuid.UUID]int64
	links      []Referral
}

func newMemStore() *memStore {
	return &memStore{
		codes:      map[uuid.UUID]string{},
		owners:     map[string]uuid.UUID{},
		referredBy: map[uuid.UUID]string{},
		orders:     map[uuid.UUID]int64{},
	}
}

func (m *memStore) addCustomer(id uuid.UUID, code string) {
	if code != "" {
		m.codes[id] = code
		m.owners[code] = id
	}
}

func (m *memStore) CodeOf(_ context.Context, id uuid.UUID) (string, error) {
	return m.codes[id], nil
}

func (m *memStore) AssignCode(_ context.Context, id uuid.UUID, code string) error {
	if _, taken := m.owners[code]; taken {
		return errors.New("duplicate")
	}
	if _, has := m.codes[id]; has {
		return nil
	}
	m.codes[id] = code
	m.owners[code] = id
	return nil
}

func (m *memStore) OwnerOfCode(_ context.Context, code string) (uuid.UUID, error) {
	id, ok := m.owners[code]
	if !ok {
		return uuid.Nil, ErrInvalidCode
	}
	return id, nil
}

func (m *memStore) ReferrerOf(_ context.Context, id uuid.UUID) (string, error) {
	return m.referredBy[id], nil
}

func (m *memStore) CountOrders(_ context.Context, id uuid.UUID) (int64, error) {
	return m.orders[id], nil
}

func (m *memStore) Link(_ context.Context, r Referral) (Referral, error) {
	if m.referredBy[r.ReferredID] != "" {
		return Referral{}, ErrAlreadyReferred
	}
	m.referredBy[r.ReferredID] = r.Code
	r.ID = uuid.New()
	m.links = append(m.links, r)
	return r, nil
}

func (m *memStore) PendingForReferred(_ context.Context, referredID uuid.UUID) (Referral, bool, error) {
	for _, l := range m.links {
		if l.ReferredID == referredID && l.ReferrerRewardPending && !l.ReferrerCredited {
			return l, true, nil
		}
	}
	return Referral{}, false, nil
}

func (m *memStore) MarkCredited(_ context.Context, id uuid.UUID) (bool, error) {
	for i, l := range m.links {
		if l.ID == id && !l.ReferrerCredited {
			m.links[i].ReferrerCredited = true
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) StatsFor(_ context.Context, referrerID uuid.UUID) (Stats, error) {
	var st Stats
	for _, l := range m.links {
		if l.ReferrerID == referrerID {
			st.TotalReferred++
			if l.ReferrerCredited || !l.ReferrerRewardPending {
				st.TotalEarned = st.TotalEarned.Add(l.ReferrerReward)
			} else {
				st.Pending++
			}
		}
	}
	return st, nil
}

func (m *memStore) HistoryFor(_ context.Context, referrerID uuid.UUID, limit int) ([]Referral, error) {
	var out []Referral
	for i := len(m.links) - 1; i >= 0 && len(out) < limit; i-- {
		if m.links[i].ReferrerID == referrerID {
			out = append(out, m.links[i])
		}
	}
	return out, nil
}

type memLedger struct {
	deposits map[uuid.UUID]money.Amount
}

func (m *memLedger) Balance(_ context.Context, id uuid.UUID) (money.Amount, error) {
	return m.deposits[id], nil
}

func (m *memLedger) Deposit(_ context.Context, id uuid.UUID, amount money.Amount, kind, reason string, orderID *uuid.UUID) (credit.Transaction, error) {
	if m.deposits == nil {
		m.deposits = map[uuid.UUID]money.Amount{}
	}
	m.deposits[id] = m.deposits[id].Add(amount)
	return credit.Transaction{CustomerID: id, Amount: amount, Kind: kind}, nil
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

type refSettings struct {
	cfg settings.Referral
}

func (r refSettings) GetReferral(_ context.Context) (settings.Referral, error) {
	return r.cfg, nil
}

func enabledProgram() refSettings {
	return refSettings{cfg: settings.Referral{
		Enabled:        true,
		ReferredReward: money.FromRupees(50),
		ReferrerReward: money.FromRupees(100),
	}}
}

func TestApplyPaysBothSides(t *testing.T) {
	store := newMemStore()
	referrer := uuid.New()
	store.addCustomer(referrer, "FRIEND01")
	ledger := &memLedger{}
	svc := &Service{Store: store, Ledger: ledger, Settings: enabledProgram()}
	newbie := uuid.New()

	result, err := svc.Apply(context.Background(), newbie, "FRIEND01")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if result.RewardPending {
		t.Fatal("reward should not be pending without min purchase")
	}
	if ledger.deposits[newbie] != money.FromRupees(50) {
		t.Fatalf("referred reward = %v", ledger.deposits[newbie])
	}
	if ledger.deposits[referrer] != money.FromRupees(100) {
		t.Fatalf("referrer reward = %v", ledger.deposits[referrer])
	}
}

type refResolver struct {
	bps int64
	err error
}

func (r *refResolver) Resolve(_ context.Context, _ string) (int64, error) {
	if r.err != nil {
		return money.BpsPerUnit, r.err
	}
	return r.bps, nil
}

func TestApplyScalesRewardsByMultiplier(t *testing.T) {
	store := newMemStore()
	referrer := uuid.New()
	store.addCustomer(referrer, "FRIEND01")
	ledger := &memLedger{}
	svc := &Service{
		Store: store, Ledger: ledger, Settings: enabledProgram(),
		Multiplier: &refResolver{bps: 2 * money.BpsPerUnit},
	}
	newbie := uuid.New()

	result, err := svc.Apply(context.Background(), newbie, "FRIEND01")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if ledger.deposits[newbie] != money.FromRupees(100) {
		t.Fatalf("referred reward = %v, want 100.00 with 2x multiplier", ledger.deposits[newbie])
	}
	if ledger.deposits[referrer] != money.FromRupees(200) {
		t.Fatalf("referrer reward = %v, want 200.00 with 2x multiplier", ledger.deposits[referrer])
	}
	if result.ReferredReward != money.FromRupees(100) {
		t.Fatalf("result referred reward = %v", result.ReferredReward)
	}
}

func TestApplyFreezesScaledRewardForRelease(t *testing.T) {
	store := newMemStore()
	referrer := uuid.New()
	store.addCustomer(referrer, "FRIEND01")
	ledger := &memLedger{}
	cfg := enabledProgram()
	cfg.cfg.MinPurchaseRequired = true
	resolver := &refResolver{bps: 2 * money.BpsPerUnit}
	svc := &Service{Store: store, Ledger: ledger, Settings: cfg, Multiplier: resolver}
	newbie := uuid.New()

	if _, err := svc.Apply(context.Background(), newbie, "FRIEND01"); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	// Campaign over by release time; the frozen amount still pays out.
	resolver.bps = money.BpsPerUnit
	if err := svc.Release(context.Background(), newbie, money.FromRupees(500)); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if ledger.deposits[referrer] != money.FromRupees(200) {
		t.Fatalf("released reward = %v, want frozen 200.00", ledger.deposits[referrer])
	}
}

func TestApplyMultiplierFailureDegrades(t *testing.T) {
	store := newMemStore()
	referrer := uuid.New()
	store.addCustomer(referrer, "FRIEND01")
	ledger := &memLedger{}
	svc := &Service{
		Store: store, Ledger: ledger, Settings: enabledProgram(),
		Multiplier: &refResolver{err: errors.New("redis down")},
	}
	newbie := uuid.New()

	if _, err := svc.Apply(context.Background(), newbie, "FRIEND01"); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if ledger.deposits[newbie] != money.FromRupees(50) {
		t.Fatalf("referred reward = %v, want flat 50.00 when resolver fails", ledger.deposits[newbie])
	}
}

func TestApplySelfReferral(t *testing.T) {
	store := newMemStore()
	me := uuid.New()
	store.addCustomer(me, "MYCODE01")
	svc := &Service{Store: store, Ledger: &memLedger{}, Settings: enabledProgram()}

	_, err := svc.Apply(context.Background(), me, "MYCODE01")
	if !errors.Is(err, ErrSelfReferral) {
		t.Fatalf("got %v, want ErrSelfReferral", err)
	}
}

func TestApplyTwice(t *testing.T) {
	store := newMemStore()
	referrer := uuid.New()
	store.addCustomer(referrer, "FRIEND01")
	svc := &Service{Store: store, Ledger: &memLedger{}, Settings: enabledProgram()}
	newbie := uuid.New()

	if _, err := svc.Apply(context.Background(), newbie, "FRIEND01"); err != nil {
		t.Fatalf("first Apply: %v", err)
	}
	_, err := svc.Apply(context.Background(), newbie, "FRIEND01")
	if !errors.Is(err, ErrAlreadyReferred) {
		t.Fatalf("got %v, want ErrAlreadyReferred", err)
	}
}

func TestApplyExistingCustomerRejected(t *testing.T) {
	store := newMemStore()
	referrer := uuid.New()
	store.addCustomer(referrer, "FRIEND01")
	oldTimer := uuid.New()
	store.orders[oldTimer] = 4
	svc := &Service{Store: store, Ledger: &memLedger{}, Settings: enabledProgram()}

	_, err := svc.Apply(context.Background(), oldTimer, "FRIEND01")
	if !errors.Is(err, ErrNotNewCustomer) {
		t.Fatalf("got %v, want ErrNotNewCustomer", err)
	}
}

func TestApplyUnknownCode(t *testing.T) {
	svc := &Service{Store: newMemStore(), Ledger: &memLedger{}, Settings: enabledProgram()}
	_, err := svc.Apply(context.Background(), uuid.New(), "NOPE1234")
	if !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("got %v, want ErrInvalidCode", err)
	}
}

func TestApplyDeferredUntilPurchase(t *testing.T) {
	store := newMemStore()
	referrer := uuid.New()
	store.addCustomer(referrer, "FRIEND01")
	ledger := &memLedger{}
	cfg := refSettings{cfg: settings.Referral{
		Enabled:             true,
		ReferredReward:      money.FromRupees(50),
		ReferrerReward:      money.FromRupees(100),
		MinPurchaseRequired: true,
		MinPurchaseAmount:   money.FromRupees(500),
	}}
	svc := &Service{Store: store, Ledger: ledger, Settings: cfg}
	newbie := uuid.New()

	result, err := svc.Apply(context.Background(), newbie, "FRIEND01")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !result.RewardPending {
		t.Fatal("referrer reward should be pending")
	}
	if ledger.deposits[referrer] != 0 {
		t.Fatalf("referrer should not be paid yet, got %v", ledger.deposits[referrer])
	}

	// A purchase below the floor releases nothing.
	if err := svc.Release(context.Background(), newbie, money.FromRupees(100)); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if ledger.deposits[referrer] != 0 {
		t.Fatal("sub-minimum purchase must not release the reward")
	}

	// A qualifying purchase pays out exactly once.
	if err := svc.Release(context.Background(), newbie, money.FromRupees(600)); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := svc.Release(context.Background(), newbie, money.FromRupees(600)); err != nil {
		t.Fatalf("second Release: %v", err)
	}
	if ledger.deposits[referrer] != money.FromRupees(100) {
		t.Fatalf("referrer reward = %v, want single payout of 100.00", ledger.deposits[referrer])
	}
}

func TestMyCodeStable(t *testing.T) {
	store := newMemStore()
	svc := &Service{Store: store, Ledger: &memLedger{}, Settings: enabledProgram()}
	cid := uuid.New()

	first, err := svc.MyCode(context.Background(), cid)
	if err != nil {
		t.Fatalf("MyCode: %v", err)
	}
	if len(first) != CodeLength {
		t.Fatalf("code length = %d", len(first))
	}
	second, err := svc.MyCode(context.Background(), cid)
	if err != nil {
		t.Fatalf("MyCode: %v", err)
	}
	if first != second {
		t.Fatalf("code changed between calls: %q vs %q", first, second)
	}
}

func TestHistoryScopedToReferrer(t *testing.T) {
	store := newMemStore()
	referrer := uuid.New()
	other := uuid.New()
	store.links = []Referral{
		{ID: uuid.New(), ReferrerID: referrer, ReferredID: uuid.New(), Code: "AAAA11"},
		{ID: uuid.New(), ReferrerID: other, ReferredID: uuid.New(), Code: "BBBB22"},
		{ID: uuid.New(), ReferrerID: referrer, ReferredID: uuid.New(), Code: "AAAA11"},
	}
	svc := &Service{Store: store, Ledger: &memLedger{}, Settings: enabledProgram()}

	got, err := svc.History(context.Background(), referrer, 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	for _, r := range got {
		if r.ReferrerID != referrer {
			t.Fatalf("leaked referral for %v", r.ReferrerID)
		}
	}
}

func TestGenerateCodeCharset(t *testing.T) {
	for i := 0; i < 20; i++ {
		code, err := GenerateCode()
		if err != nil {
			t.Fatal(err)
		}
		if len(code) != CodeLength {
			t.Fatalf("length = %d", len(code))
		}
		for _, c := range code {
			if !((c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')) {
				t.Fatalf("unexpected character %q in %q", c, code)
			}
		}
	}
}
