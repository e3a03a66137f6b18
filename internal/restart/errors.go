package restart

import (
	"errors"
	"fmt"
)

// ErrInProgress rejects a trigger that arrives while a prior restart is
// still in flight. Attempts are never queued.
var ErrInProgress = errors.New("restart already in progress")

// ErrHandedOver rejects a trigger that arrives after this generation
// already handed over to its successor.
var ErrHandedOver = errors.New("already handed over to next generation")

// SpawnError: the next generation process could not be created.
type SpawnError struct {
	Err error
}

func (e *SpawnError) Error() string { return fmt.Sprintf("spawn next generation: %v", e.Err) }
func (e *SpawnError) Unwrap() error { return e.Err }

// HandoffError: channel creation or payload I/O failed.
type HandoffError struct {
	Err error
}

func (e *HandoffError) Error() string { return fmt.Sprintf("handoff: %v", e.Err) }
func (e *HandoffError) Unwrap() error { return e.Err }

// VetoError: the application's lifecycle hook refused the restart.
type VetoError struct {
	Err error
}

func (e *VetoError) Error() string { return fmt.Sprintf("restart vetoed: %v", e.Err) }
func (e *VetoError) Unwrap() error { return e.Err }

// NotReadyError: the next generation started but never reported
// readiness (it exited, closed the notify pipe, or timed out).
type NotReadyError struct {
	Err error
}

func (e *NotReadyError) Error() string { return fmt.Sprintf("next generation not ready: %v", e.Err) }
func (e *NotReadyError) Unwrap() error { return e.Err }

// NotRunningError: a trigger client could not reach the coordination
// endpoint, usually because no server is running at that path.
type NotRunningError struct {
	SocketPath string
	Err        error
}

func (e *NotRunningError) Error() string {
	return fmt.Sprintf("no server listening on %s: %v", e.SocketPath, e.Err)
}

func (e *NotRunningError) Unwrap() error { return e.Err }

// Guidance returns operator-facing help for a failed trigger connection.
func (e *NotRunningError) Guidance() string {
	return fmt.Sprintf("Start the server first, or pass the socket path it was started with (looked at %s).", e.SocketPath)
}

// IsNotRunning reports whether err means the endpoint was unreachable.
func IsNotRunning(err error) bool {
	var nr *NotRunningError
	return errors.As(err, &nr)
}
