package order

import "errors"

// Status is the lifecycle state of an order.
type Status string

// Order lifecycle states.
const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// ErrInvalidTransition is returned for a disallowed status change.
var ErrInvalidTransition = errors.New("invalid order status transition")

// ErrNotFound is returned when the order does not exist.
var ErrNotFound = errors.New("order not found")

func statusRank(s Status) int {
	switch s {
	case StatusPending:
		return 0
	case StatusConfirmed:
		return 1
	case StatusCompleted:
		return 2
	case StatusCancelled:
		return -1
	default:
		return -2
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return statusRank(s) >= -1
}

// CanTransition reports whether an order may move from one status to
// another. Forward moves go one step at a time; cancellation is allowed
// from pending or confirmed only. Completed and cancelled are terminal.
func CanTransition(from, to Status) bool {
	switch {
	case from == to:
		return false
	case to == StatusCancelled:
		return from == StatusPending || from == StatusConfirmed
	case from == StatusCancelled, from == StatusCompleted:
		return false
	default:
		return statusRank(to) == statusRank(from)+1
	}
}
