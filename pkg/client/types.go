package client

import (
	"fmt"
	"time"
)

// RestartStatus mirrors the coordinator snapshot served on /status.
type RestartStatus struct {
	PID        int       `json:"pid"`
	Generation int       `json:"generation"`
	SocketPath string    `json:"socket_path"`
	Enabled    bool      `json:"enabled"`
	InFlight   bool      `json:"in_flight"`
	HandedOver bool      `json:"handed_over"`
	StartedAt  time.Time `json:"started_at"`
}

// DrainStatus reports connection-draining state.
type DrainStatus struct {
	ActiveHandles  int  `json:"active_handles"`
	DrainRequested bool `json:"drain_requested"`
}

// ProcessStats is the resource snapshot of the daemon process.
type ProcessStats struct {
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryMB   float64   `json:"memory_mb"`
	MemoryRSS  uint64    `json:"memory_rss"`
	NumThreads int32     `json:"num_threads"`
	NumFDs     int32     `json:"num_fds,omitempty"`
	Goroutines int       `json:"goroutines"`
	Timestamp  time.Time `json:"timestamp"`
}

// StatusResponse is the full /status payload.
type StatusResponse struct {
	Restart RestartStatus `json:"restart"`
	Drain   *DrainStatus  `json:"drain,omitempty"`
	Process *ProcessStats `json:"process,omitempty"`
}

// RestartResponse is returned after a successful restart trigger.
type RestartResponse struct {
	OK  bool `json:"ok"`
	PID int  `json:"pid"`
}

// HistoryEvent is one recorded restart lifecycle event.
type HistoryEvent struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	PID        int       `json:"pid"`
	Generation int       `json:"generation"`
	ChildPID   int       `json:"child_pid,omitempty"`
	Source     string    `json:"source"`
	Kind       string    `json:"kind,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// APIError carries the HTTP status and failure kind of a rejected call,
// so callers can tell a busy coordinator (409, kind "in_progress" or
// "veto") from a hard failure.
type APIError struct {
	StatusCode int
	Kind       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("API error (%s): %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("API error: %s", e.Message)
}
