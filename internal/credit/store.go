package credit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bibek-sh/backend-pasal/internal/db"
	"github.com/bibek-sh/backend-pasal/internal/money"
)

// ErrInsufficientBalance is returned when a spend exceeds the customer's balance.
var ErrInsufficientBalance = errors.New("insufficient credit balance")

// ErrCustomerNotFound is returned when the customer row does not exist.
var ErrCustomerNotFound = errors.New("customer not found")

// Transaction kinds recorded in the ledger.
const (
	KindCashback    = "cashback"
	KindDailyReward = "daily_reward"
	KindReferral    = "referral"
	KindSpend       = "spend"
	KindRefund      = "refund"
	KindManual      = "manual"
)

// Transaction is one ledger entry. Amount is signed: deposits positive,
// spends negative.
type Transaction struct {
	ID            uuid.UUID    `json:"id"`
	CustomerID    uuid.UUID    `json:"customer_id"`
	Amount        money.Amount `json:"amount"`
	BalanceBefore money.Amount `json:"balance_before"`
	BalanceAfter  money.Amount `json:"balance_after"`
	Kind          string       `json:"kind"`
	Reason        string       `json:"reason"`
	OrderID       *uuid.UUID   `json:"order_id,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Store mutates the credit ledger. Every balance change goes through a
// guarded UPDATE on customers.credit_balance plus a ledger row, so the
// balance and its history always move together.
type Store struct {
	DB db.DBTX
}

// WithTx returns a store bound to the given transaction.
func (s *Store) WithTx(tx db.DBTX) *Store {
	return &Store{DB: tx}
}

// Balance returns the customer's current balance.
func (s *Store) Balance(ctx context.Context, customerID uuid.UUID) (money.Amount, error) {
	var balance money.Amount
	err := s.DB.QueryRow(ctx,
		`SELECT credit_balance FROM customers WHERE id = $1`, customerID,
	).Scan(&balance)
	if db.IsNoRows(err) {
		return 0, ErrCustomerNotFound
	}
	return balance, err
}

// Deposit adds amount to the balance and records the ledger entry.
func (s *Store) Deposit(ctx context.Context, customerID uuid.UUID, amount money.Amount, kind, reason string, orderID *uuid.UUID) (Transaction, error) {
	if amount <= 0 {
		return Transaction{}, fmt.Errorf("credit: deposit amount must be positive, got %v", amount)
	}
	var before, after money.Amount
	err := s.DB.QueryRow(ctx,
		`UPDATE customers
		 SET credit_balance = credit_balance + $2, updated_at = now()
		 WHERE id = $1
		 RETURNING credit_balance - $2, credit_balance`,
		customerID, amount,
	).Scan(&before, &after)
	if db.IsNoRows(err) {
		return Transaction{}, ErrCustomerNotFound
	}
	if err != nil {
		return Transaction{}, fmt.Errorf("credit: deposit: %w", err)
	}
	return s.record(ctx, customerID, amount, before, after, kind, reason, orderID)
}

// Spend removes amount from the balance, failing with
// ErrInsufficientBalance when the customer does not hold enough. The
// balance guard lives in the UPDATE predicate, so two concurrent spends
// can never overdraw.
func (s *Store) Spend(ctx context.Context, customerID uuid.UUID, amount money.Amount, kind, reason string, orderID *uuid.UUID) (Transaction, error) {
	if amount <= 0 {
		return Transaction{}, fmt.Errorf("credit: spend amount must be positive, got %v", amount)
	}
	var before, after money.Amount
	err := s.DB.QueryRow(ctx,
		`UPDATE customers
		 SET credit_balance = credit_balance - $2, updated_at = now()
		 WHERE id = $1 AND credit_balance >= $2
		 RETURNING credit_balance + $2, credit_balance`,
		customerID, amount,
	).Scan(&before, &after)
	if db.IsNoRows(err) {
		// Distinguish a missing customer from an overdraw attempt.
		if _, balErr := s.Balance(ctx, customerID); balErr != nil {
			return Transaction{}, balErr
		}
		return Transaction{}, ErrInsufficientBalance
	}
	if err != nil {
		return Transaction{}, fmt.Errorf("credit: spend: %w", err)
	}
	return s.record(ctx, customerID, -amount, before, after, kind, reason, orderID)
}

// Adjust applies a signed manual delta. A negative delta larger than the
// balance clamps at zero and the ledger records the delta actually applied.
func (s *Store) Adjust(ctx context.Context, customerID uuid.UUID, delta money.Amount, reason string) (Transaction, error) {
	if delta == 0 {
		return Transaction{}, errors.New("credit: adjustment delta must not be zero")
	}
	var before, after money.Amount
	err := s.DB.QueryRow(ctx,
		`WITH prior AS (
			SELECT credit_balance FROM customers WHERE id = $1 FOR UPDATE
		 )
		 UPDATE customers
		 SET credit_balance = GREATEST(0, customers.credit_balance + $2), updated_at = now()
		 FROM prior
		 WHERE customers.id = $1
		 RETURNING prior.credit_balance, customers.credit_balance`,
		customerID, delta,
	).Scan(&before, &after)
	if db.IsNoRows(err) {
		return Transaction{}, ErrCustomerNotFound
	}
	if err != nil {
		return Transaction{}, fmt.Errorf("credit: adjust: %w", err)
	}
	applied := money.Amount(int64(after) - int64(before))
	return s.record(ctx, customerID, applied, before, after, KindManual, reason, nil)
}

func (s *Store) record(ctx context.Context, customerID uuid.UUID, amount, before, after money.Amount, kind, reason string, orderID *uuid.UUID) (Transaction, error) {
	var tx Transaction
	err := s.DB.QueryRow(ctx,
		`INSERT INTO credit_transactions
			(customer_id, amount, balance_before, balance_after, kind, reason, order_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		customerID, amount, before, after, kind, reason, orderID,
	).Scan(&tx.ID, &tx.CreatedAt)
	if err != nil {
		return Transaction{}, fmt.Errorf("credit: record transaction: %w", err)
	}
	tx.CustomerID = customerID
	tx.Amount = amount
	tx.BalanceBefore = before
	tx.BalanceAfter = after
	tx.Kind = kind
	tx.Reason = reason
	tx.OrderID = orderID
	return tx, nil
}

// History lists the newest ledger entries for a customer.
func (s *Store) History(ctx context.Context, customerID uuid.UUID, limit int) ([]Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.DB.Query(ctx,
		`SELECT id, customer_id, amount, balance_before, balance_after, kind, reason, order_id, created_at
		 FROM credit_transactions
		 WHERE customer_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		customerID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		var tx Transaction
		if err := rows.Scan(
			&tx.ID, &tx.CustomerID, &tx.Amount, &tx.BalanceBefore, &tx.BalanceAfter,
			&tx.Kind, &tx.Reason, &tx.OrderID, &tx.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}
