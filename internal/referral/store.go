package referral

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bibek-sh/backend-pasal/internal/db"
	"github.com/bibek-sh/backend-pasal/internal/money"
)

// Referral links a referred customer to their referrer.
type Referral struct {
	ID                    uuid.UUID    `json:"id"`
	ReferrerID            uuid.UUID    `json:"referrer_id"`
	ReferredID            uuid.UUID    `json:"referred_id"`
	Code                  string       `json:"code"`
	ReferredReward        money.Amount `json:"referred_reward"`
	ReferrerReward        money.Amount `json:"referrer_reward"`
	ReferrerRewardPending bool         `json:"referrer_reward_pending"`
	ReferrerCredited      bool         `json:"referrer_credited"`
	CreatedAt             time.Time    `json:"created_at"`
}

// Store persists referral links and customer code assignments.
type Store struct {
	DB db.DBTX
}

// CodeOf returns the customer's share code, empty when none assigned yet.
func (s *Store) CodeOf(ctx context.Context, customerID uuid.UUID) (string, error) {
	var code *string
	err := s.DB.QueryRow(ctx,
		`SELECT referral_code FROM customers WHERE id = $1`, customerID).Scan(&code)
	if err != nil {
		return "", err
	}
	if code == nil {
		return "", nil
	}
	return *code, nil
}

// AssignCode stores a freshly generated code; a unique violation means a
// collision and the caller should generate again.
func (s *Store) AssignCode(ctx context.Context, customerID uuid.UUID, code string) error {
	_, err := s.DB.Exec(ctx,
		`UPDATE customers SET referral_code = $2, updated_at = now()
		 WHERE id = $1 AND referral_code IS NULL`,
		customerID, code)
	return err
}

// OwnerOfCode resolves a share code to its owner.
func (s *Store) OwnerOfCode(ctx context.Context, code string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.DB.QueryRow(ctx,
		`SELECT id FROM customers WHERE referral_code = $1`, code).Scan(&id)
	if db.IsNoRows(err) {
		return uuid.Nil, ErrInvalidCode
	}
	return id, err
}

// ReferrerOf returns the code stored as the customer's referrer, if any.
func (s *Store) ReferrerOf(ctx context.Context, customerID uuid.UUID) (string, error) {
	var referredBy *string
	err := s.DB.QueryRow(ctx,
		`SELECT referred_by FROM customers WHERE id = $1`, customerID).Scan(&referredBy)
	if err != nil {
		return "", err
	}
	if referredBy == nil {
		return "", nil
	}
	return *referredBy, nil
}

// CountOrders reports how many non-cancelled orders the customer has.
func (s *Store) CountOrders(ctx context.Context, customerID uuid.UUID) (int64, error) {
	var n int64
	err := s.DB.QueryRow(ctx,
		`SELECT COUNT(*) FROM orders WHERE customer_id = $1 AND status <> 'cancelled'`,
		customerID).Scan(&n)
	return n, err
}

// Link sets referred_by and inserts the referral row. The referred_by
// predicate keeps the assignment write-once under concurrency.
func (s *Store) Link(ctx context.Context, r Referral) (Referral, error) {
	tag, err := s.DB.Exec(ctx,
		`UPDATE customers SET referred_by = $2, updated_at = now()
		 WHERE id = $1 AND referred_by IS NULL`,
		r.ReferredID, r.Code)
	if err != nil {
		return Referral{}, fmt.Errorf("referral: set referred_by: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Referral{}, ErrAlreadyReferred
	}
	row := s.DB.QueryRow(ctx,
		`INSERT INTO referrals
			(referrer_id, referred_id, code, referred_reward, referrer_reward, referrer_reward_pending, referrer_credited)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		r.ReferrerID, r.ReferredID, r.Code, r.ReferredReward, r.ReferrerReward,
		r.ReferrerRewardPending, r.ReferrerCredited,
	)
	if err := row.Scan(&r.ID, &r.CreatedAt); err != nil {
		if db.IsUniqueViolation(err) {
			return Referral{}, ErrAlreadyReferred
		}
		return Referral{}, fmt.Errorf("referral: insert link: %w", err)
	}
	return r, nil
}

// PendingForReferred returns an uncredited pending referral for the
// referred customer, if one exists.
func (s *Store) PendingForReferred(ctx context.Context, referredID uuid.UUID) (Referral, bool, error) {
	var r Referral
	err := s.DB.QueryRow(ctx,
		`SELECT id, referrer_id, referred_id, code, referred_reward, referrer_reward,
		        referrer_reward_pending, referrer_credited, created_at
		 FROM referrals
		 WHERE referred_id = $1 AND referrer_reward_pending AND NOT referrer_credited`,
		referredID,
	).Scan(&r.ID, &r.ReferrerID, &r.ReferredID, &r.Code, &r.ReferredReward,
		&r.ReferrerReward, &r.ReferrerRewardPending, &r.ReferrerCredited, &r.CreatedAt)
	if db.IsNoRows(err) {
		return Referral{}, false, nil
	}
	if err != nil {
		return Referral{}, false, err
	}
	return r, true, nil
}

// MarkCredited flips the credited flag exactly once; the predicate makes
// concurrent releases award a single payout.
func (s *Store) MarkCredited(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.DB.Exec(ctx,
		`UPDATE referrals SET referrer_credited = TRUE
		 WHERE id = $1 AND NOT referrer_credited`,
		id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// HistoryFor lists the customer's referrals, newest first.
func (s *Store) HistoryFor(ctx context.Context, referrerID uuid.UUID, limit int) ([]Referral, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := s.DB.Query(ctx,
		`SELECT id, referrer_id, referred_id, code, referred_reward, referrer_reward,
		        referrer_reward_pending, referrer_credited, created_at
		 FROM referrals WHERE referrer_id = $1 ORDER BY created_at DESC LIMIT $2`,
		referrerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Referral
	for rows.Next() {
		var r Referral
		if err := rows.Scan(&r.ID, &r.ReferrerID, &r.ReferredID, &r.Code, &r.ReferredReward,
			&r.ReferrerReward, &r.ReferrerRewardPending, &r.ReferrerCredited, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Stats summarises a customer's referral activity.
type Stats struct {
	TotalReferred int64        `json:"total_referred"`
	TotalEarned   money.Amount `json:"total_earned"`
	Pending       int64        `json:"pending"`
}

// StatsFor aggregates the customer's referral performance.
func (s *Store) StatsFor(ctx context.Context, referrerID uuid.UUID) (Stats, error) {
	var st Stats
	err := s.DB.QueryRow(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(referrer_reward) FILTER (WHERE referrer_credited OR NOT referrer_reward_pending), 0),
		        COUNT(*) FILTER (WHERE referrer_reward_pending AND NOT referrer_credited)
		 FROM referrals WHERE referrer_id = $1`,
		referrerID,
	).Scan(&st.TotalReferred, &st.TotalEarned, &st.Pending)
	return st, err
}
