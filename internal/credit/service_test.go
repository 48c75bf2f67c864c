package credit

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/bibek-sh/backend-pasal/internal/money"
	"github.com/bibek-sh/backend-pasal/internal/settings"
)

type stubLedger struct {
	balance  money.Amount
	deposits []Transaction
	spends   []Transaction
	spendErr error
}

func (s *stubLedger) Balance(_ context.Context, _ uuid.UUID) (money.Amount, error) {
	return s.balance, nil
}

func (s *stubLedger) Deposit(_ context.Context, customerID uuid.UUID, amount money.Amount, kind, reason string, orderID *uuid.UUID) (Transaction, error) {
	before := s.balance
	s.balance = s.balance.Add(amount)
	tx := Transaction{
		CustomerID: customerID, Amount: amount,
		BalanceBefore: before, BalanceAfter: s.balance,
		Kind: kind, Reason: reason, OrderID: orderID,
	}
	s.deposits = append(s.deposits, tx)
	return tx, nil
}

func (s *stubLedger) Spend(_ context.Context, customerID uuid.UUID, amount money.Amount, kind, reason string, orderID *uuid.UUID) (Transaction, error) {
	if s.spendErr != nil {
		return Transaction{}, s.spendErr
	}
	if amount > s.balance {
		return Transaction{}, ErrInsufficientBalance
	}
	before := s.balance
	s.balance = s.balance.Sub(amount)
	tx := Transaction{
		CustomerID: customerID, Amount: -amount,
		BalanceBefore: before, BalanceAfter: s.balance,
		Kind: kind, Reason: reason, OrderID: orderID,
	}
	s.spends = append(s.spends, tx)
	return tx, nil
}

func (s *stubLedger) Adjust(_ context.Context, customerID uuid.UUID, delta money.Amount, reason string) (Transaction, error) {
	before := s.balance
	next := money.Amount(int64(s.balance) + int64(delta))
	if next < 0 {
		next = 0
	}
	s.balance = next
	return Transaction{
		CustomerID: customerID, Amount: money.Amount(int64(next) - int64(before)),
		BalanceBefore: before, BalanceAfter: next,
		Kind: KindManual, Reason: reason,
	}, nil
}

func (s *stubLedger) History(_ context.Context, _ uuid.UUID, _ int) ([]Transaction, error) {
	return nil, nil
}

type stubCashbackSettings struct {
	cfg settings.Cashback
}

func (s *stubCashbackSettings) GetCashback(_ context.Context) (settings.Cashback, error) {
	return s.cfg, nil
}

func enabledCashback() *stubCashbackSettings {
	return &stubCashbackSettings{cfg: settings.Cashback{
		Enabled:    true,
		PercentBps: 200,
		MinOrder:   money.FromRupees(100),
	}}
}

type stubResolver struct {
	bps int64
	err error
}

func (s *stubResolver) Resolve(_ context.Context, _ string) (int64, error) {
	if s.err != nil {
		return money.BpsPerUnit, s.err
	}
	return s.bps, nil
}

func TestAwardCashback(t *testing.T) {
	ledger := &stubLedger{}
	svc := &Service{L: ledger, Settings: enabledCashback()}

	amount, err := svc.AwardCashback(context.Background(), nil, uuid.New(), uuid.New(), money.FromRupees(1000), nil, nil)
	if err != nil {
		t.Fatalf("AwardCashback: %v", err)
	}
	if amount != money.FromRupees(20) {
		t.Fatalf("cashback = %v, want 20.00", amount)
	}
	if len(ledger.deposits) != 1 || ledger.deposits[0].Kind != KindCashback {
		t.Fatalf("deposit not recorded: %+v", ledger.deposits)
	}
}

func TestAwardCashbackAppliesMultiplier(t *testing.T) {
	ledger := &stubLedger{}
	cfg := enabledCashback()
	cfg.cfg.PercentBps = 1000
	svc := &Service{L: ledger, Settings: cfg, Multiplier: &stubResolver{bps: 2 * money.BpsPerUnit}}

	amount, err := svc.AwardCashback(context.Background(), nil, uuid.New(), uuid.New(), money.FromRupees(1000), nil, nil)
	if err != nil {
		t.Fatalf("AwardCashback: %v", err)
	}
	if amount != money.FromRupees(200) {
		t.Fatalf("cashback = %v, want 200.00 with 2x multiplier", amount)
	}
}

func TestAwardCashbackMultiplierFailureDegrades(t *testing.T) {
	ledger := &stubLedger{}
	svc := &Service{L: ledger, Settings: enabledCashback(), Multiplier: &stubResolver{err: errors.New("redis down")}}

	amount, err := svc.AwardCashback(context.Background(), nil, uuid.New(), uuid.New(), money.FromRupees(1000), nil, nil)
	if err != nil {
		t.Fatalf("AwardCashback: %v", err)
	}
	if amount != money.FromRupees(20) {
		t.Fatalf("cashback = %v, want base 20.00 when resolver fails", amount)
	}
}

func TestAwardCashbackEligibilityScope(t *testing.T) {
	cfg := enabledCashback()
	cfg.cfg.EligibleCategories = []string{"games"}

	ledger := &stubLedger{}
	svc := &Service{L: ledger, Settings: cfg}

	amount, err := svc.AwardCashback(context.Background(), nil, uuid.New(), uuid.New(), money.FromRupees(1000),
		[]string{"topups"}, nil)
	if err != nil {
		t.Fatalf("AwardCashback: %v", err)
	}
	if amount != 0 || len(ledger.deposits) != 0 {
		t.Fatalf("cashback = %v, want 0 outside eligible categories", amount)
	}

	amount, err = svc.AwardCashback(context.Background(), nil, uuid.New(), uuid.New(), money.FromRupees(1000),
		[]string{"topups", "games"}, nil)
	if err != nil {
		t.Fatalf("AwardCashback: %v", err)
	}
	if amount != money.FromRupees(20) {
		t.Fatalf("cashback = %v, want 20.00 for matching category", amount)
	}
}

func TestAwardCashbackBelowMinimum(t *testing.T) {
	ledger := &stubLedger{}
	svc := &Service{L: ledger, Settings: enabledCashback()}

	amount, err := svc.AwardCashback(context.Background(), nil, uuid.New(), uuid.New(), money.FromRupees(50), nil, nil)
	if err != nil {
		t.Fatalf("AwardCashback: %v", err)
	}
	if amount != 0 {
		t.Fatalf("cashback = %v, want 0 below minimum", amount)
	}
	if len(ledger.deposits) != 0 {
		t.Fatal("no deposit expected below minimum")
	}
}

func TestAwardCashbackDisabled(t *testing.T) {
	ledger := &stubLedger{}
	cfg := enabledCashback()
	cfg.cfg.Enabled = false
	svc := &Service{L: ledger, Settings: cfg}

	amount, err := svc.AwardCashback(context.Background(), nil, uuid.New(), uuid.New(), money.FromRupees(1000), nil, nil)
	if err != nil {
		t.Fatalf("AwardCashback: %v", err)
	}
	if amount != 0 || len(ledger.deposits) != 0 {
		t.Fatal("disabled program must award nothing")
	}
}

func TestSpendForOrderInsufficient(t *testing.T) {
	ledger := &stubLedger{balance: money.FromRupees(10)}
	svc := &Service{L: ledger}

	_, err := svc.SpendForOrder(context.Background(), nil, uuid.New(), uuid.New(), money.FromRupees(100))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("got %v, want ErrInsufficientBalance", err)
	}
}

func TestSpendForOrderDeducts(t *testing.T) {
	ledger := &stubLedger{balance: money.FromRupees(500)}
	svc := &Service{L: ledger}
	orderID := uuid.New()

	tx, err := svc.SpendForOrder(context.Background(), nil, uuid.New(), orderID, money.FromRupees(200))
	if err != nil {
		t.Fatalf("SpendForOrder: %v", err)
	}
	if tx.BalanceAfter != money.FromRupees(300) {
		t.Fatalf("balance after = %v, want 300.00", tx.BalanceAfter)
	}
	if tx.OrderID == nil || *tx.OrderID != orderID {
		t.Fatal("spend not linked to order")
	}
}

func TestAdjustManualRequiresReason(t *testing.T) {
	svc := &Service{L: &stubLedger{}}
	if _, err := svc.AdjustManual(context.Background(), uuid.New(), money.FromRupees(10), ""); err == nil {
		t.Fatal("expected error for missing reason")
	}
}

func TestAdjustManualClampsAtZero(t *testing.T) {
	ledger := &stubLedger{balance: money.FromRupees(30)}
	svc := &Service{L: ledger}

	tx, err := svc.AdjustManual(context.Background(), uuid.New(), money.FromRupees(-100), "correction")
	if err != nil {
		t.Fatalf("AdjustManual: %v", err)
	}
	if tx.BalanceAfter != 0 {
		t.Fatalf("balance after = %v, want 0", tx.BalanceAfter)
	}
	if tx.Amount != money.FromRupees(-30) {
		t.Fatalf("applied delta = %v, want -30.00", tx.Amount)
	}
}
