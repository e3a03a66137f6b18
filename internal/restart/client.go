package restart

import (
	"context"
	"fmt"
	"net"
)

// Trigger connects to a coordinator's endpoint and requests a restart.
// It blocks until the attempt settles and returns the next generation's
// pid on success. A dial failure maps to NotRunningError.
func Trigger(ctx context.Context, socketPath string) (int, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return 0, &NotRunningError{SocketPath: socketPath, Err: err}
	}
	defer func() { _ = conn.Close() }()

	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}

	if err := writeRequest(conn, Request{Command: CommandRestart}); err != nil {
		return 0, fmt.Errorf("send trigger: %w", err)
	}
	resp, err := readResponse(conn)
	if err != nil {
		return 0, fmt.Errorf("read trigger reply: %w", err)
	}
	if err := resp.Err(); err != nil {
		return 0, err
	}
	return resp.PID, nil
}
