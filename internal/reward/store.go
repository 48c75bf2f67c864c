package reward

import (
	"context"

	"github.com/google/uuid"

	"github.com/bibek-sh/backend-pasal/internal/db"
)

// State is a customer's current daily reward position.
type State struct {
	Streak    int    `json:"streak"`
	LastClaim string `json:"last_claim,omitempty"`
}

// Store reads and writes reward state on the customer row.
type Store struct {
	DB db.DBTX
}

// Get returns the customer's streak and last claim date.
func (s *Store) Get(ctx context.Context, customerID uuid.UUID) (State, error) {
	var st State
	var last *string
	err := s.DB.QueryRow(ctx,
		`SELECT daily_reward_streak, last_daily_reward_date FROM customers WHERE id = $1`,
		customerID,
	).Scan(&st.Streak, &last)
	if err != nil {
		return State{}, err
	}
	if last != nil {
		st.LastClaim = *last
	}
	return st, nil
}

// Claim records today's claim if and only if the stored last-claim date
// still predates today. The predicate makes the write idempotent per
// Nepali day even without the advisory lock.
func (s *Store) Claim(ctx context.Context, customerID uuid.UUID, today string, streak int) (bool, error) {
	tag, err := s.DB.Exec(ctx,
		`UPDATE customers
		 SET last_daily_reward_date = $2, daily_reward_streak = $3, updated_at = now()
		 WHERE id = $1 AND (last_daily_reward_date IS NULL OR last_daily_reward_date < $2)`,
		customerID, today, streak,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
