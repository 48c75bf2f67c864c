package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bibek-sh/backend-pasal/internal/db"
)

// PGStore persists domain events in Postgres.
type PGStore struct {
	DB db.DBTX
}

// InsertDomainEvent implements EventStore.
func (s *PGStore) InsertDomainEvent(ctx context.Context, topic string, payload []byte) (Event, error) {
	var (
		id         uuid.UUID
		occurredAt time.Time
	)
	err := s.DB.QueryRow(ctx,
		`INSERT INTO domain_events (topic, payload) VALUES ($1, $2) RETURNING id, created_at`,
		topic, payload,
	).Scan(&id, &occurredAt)
	if err != nil {
		return Event{}, err
	}
	return Event{ID: id, Topic: topic, Payload: payload, OccurredAt: occurredAt}, nil
}
