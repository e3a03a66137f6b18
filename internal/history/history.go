package history

import (
	"context"
	"time"
)

// EventType defines the kind of restart lifecycle event.
type EventType string

const (
	EventTriggered EventType = "triggered"
	EventSucceeded EventType = "succeeded"
	EventFailed    EventType = "failed"
)

// Source labels where a trigger came from.
type Source string

const (
	SourceSocket   Source = "socket"
	SourceHTTP     Source = "http"
	SourceSchedule Source = "schedule"
	SourceLocal    Source = "local"
)

// Event represents a restart lifecycle event to be exported to external
// systems. PID and Generation describe the process that ran the attempt;
// ChildPID is set once a next generation was spawned successfully.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	PID        int       `json:"pid"`
	Generation int       `json:"generation"`
	ChildPID   int       `json:"child_pid,omitempty"`
	Source     Source    `json:"source"`
	Kind       string    `json:"kind,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}

// Sink is a destination for restart events (audit/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
