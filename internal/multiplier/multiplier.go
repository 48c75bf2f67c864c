package multiplier

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/bibek-sh/backend-pasal/internal/db"
	"github.com/bibek-sh/backend-pasal/internal/money"
)

// ErrNotFound is returned when an event id does not exist.
var ErrNotFound = errors.New("multiplier event not found")

// Event is a time-boxed reward multiplier campaign. AppliesTo lists the
// reward categories the multiplier covers; an empty list covers all.
type Event struct {
	ID            uuid.UUID  `json:"id"`
	Name          string     `json:"name"`
	MultiplierBps int64      `json:"multiplier_bps"`
	Multiplier    float64    `json:"multiplier"`
	AppliesTo     []string   `json:"applies_to"`
	Active        bool       `json:"active"`
	StartsAt      *time.Time `json:"starts_at,omitempty"`
	EndsAt        *time.Time `json:"ends_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// InWindow reports whether the event is live at the given instant.
func (e Event) InWindow(now time.Time) bool {
	if !e.Active {
		return false
	}
	if e.StartsAt != nil && now.Before(*e.StartsAt) {
		return false
	}
	if e.EndsAt != nil && now.After(*e.EndsAt) {
		return false
	}
	return true
}

// Covers reports whether the event applies to the given category.
func (e Event) Covers(category string) bool {
	if len(e.AppliesTo) == 0 {
		return true
	}
	for _, c := range e.AppliesTo {
		if strings.EqualFold(c, category) {
			return true
		}
	}
	return false
}

// Best picks the highest live multiplier for the category. Overlapping
// events never stack; the customer gets the single best one.
func Best(events []Event, category string, now time.Time) int64 {
	best := int64(money.BpsPerUnit)
	for _, e := range events {
		if e.InWindow(now) && e.Covers(category) && e.MultiplierBps > best {
			best = e.MultiplierBps
		}
	}
	return best
}

// Store persists multiplier events.
type Store struct {
	DB db.DBTX
}

const eventColumns = `id, name, multiplier_bps, applies_to, active, starts_at, ends_at, created_at`

func scanEvent(row interface{ Scan(...any) error }) (Event, error) {
	var e Event
	err := row.Scan(&e.ID, &e.Name, &e.MultiplierBps, &e.AppliesTo, &e.Active, &e.StartsAt, &e.EndsAt, &e.CreatedAt)
	if err != nil {
		return Event{}, err
	}
	e.Multiplier = float64(e.MultiplierBps) / money.BpsPerUnit
	return e, nil
}

// ListActive returns every event currently flagged active.
func (s *Store) ListActive(ctx context.Context) ([]Event, error) {
	rows, err := s.DB.Query(ctx,
		`SELECT `+eventColumns+` FROM multiplier_events WHERE active ORDER BY multiplier_bps DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// List returns every event, newest first.
func (s *Store) List(ctx context.Context) ([]Event, error) {
	rows, err := s.DB.Query(ctx,
		`SELECT `+eventColumns+` FROM multiplier_events ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Create inserts a new event.
func (s *Store) Create(ctx context.Context, e Event) (Event, error) {
	row := s.DB.QueryRow(ctx,
		`INSERT INTO multiplier_events (name, multiplier_bps, applies_to, active, starts_at, ends_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+eventColumns,
		e.Name, e.MultiplierBps, e.AppliesTo, e.Active, e.StartsAt, e.EndsAt,
	)
	return scanEvent(row)
}

// SetActive toggles an event.
func (s *Store) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := s.DB.Exec(ctx,
		`UPDATE multiplier_events SET active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes an event.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.DB.Exec(ctx, `DELETE FROM multiplier_events WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Resolver answers "what multiplier applies right now" with a short Redis
// cache in front of the active-event query. Resolution failures degrade to
// the identity multiplier at the caller.
type Resolver struct {
	Store *Store
	R     *redis.Client
	TTL   time.Duration
	Now   func() time.Time
}

const cacheKey = "multiplier:active"

func (r *Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Resolve returns the best live multiplier in basis points for the category.
func (r *Resolver) Resolve(ctx context.Context, category string) (int64, error) {
	events, err := r.activeEvents(ctx)
	if err != nil {
		return money.BpsPerUnit, err
	}
	return Best(events, category, r.now()), nil
}

func (r *Resolver) activeEvents(ctx context.Context) ([]Event, error) {
	if r.R != nil {
		if raw, err := r.R.Get(ctx, cacheKey).Bytes(); err == nil {
			var cached []Event
			if json.Unmarshal(raw, &cached) == nil {
				return cached, nil
			}
		}
	}
	events, err := r.Store.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	if r.R != nil {
		ttl := r.TTL
		if ttl <= 0 {
			ttl = time.Minute
		}
		if data, err := json.Marshal(events); err == nil {
			_ = r.R.Set(ctx, cacheKey, data, ttl).Err()
		}
	}
	return events, nil
}

// Invalidate drops the cached active-event set after an admin mutation.
func (r *Resolver) Invalidate(ctx context.Context) {
	if r.R != nil {
		_ = r.R.Del(ctx, cacheKey).Err()
	}
}
