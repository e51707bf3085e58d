package history

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType defines the kind of workload event.
type EventType string

const (
	EventAlert    EventType = "alert"
	EventRecovery EventType = "recovery"
)

// Event is one detected transition, exported to external systems.
type Event struct {
	ID            string    `json:"id"`
	Type          EventType `json:"type"`
	Workload      string    `json:"workload"`
	OccurredAt    time.Time `json:"occurred_at"`
	LogsCollected bool      `json:"logs_collected"`
	LogBytes      int64     `json:"log_bytes"`
	Detail        string    `json:"detail,omitempty"`
}

// NewEvent stamps a new event with a random ID and the current UTC time.
func NewEvent(t EventType, workload string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		Workload:   workload,
		OccurredAt: time.Now().UTC(),
	}
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Reader is implemented by sinks that can query back what they stored.
type Reader interface {
	Recent(ctx context.Context, workload string, limit int) ([]Event, error)
}

// DefaultLimit caps Recent queries when no limit is given.
const DefaultLimit = 100

func ClampLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return DefaultLimit
	}
	return limit
}
