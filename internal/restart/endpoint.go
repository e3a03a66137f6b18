package restart

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"
)

// ErrEndpointInUse means the socket path is held by a live process.
// Binding over it would hijack a running server, so startup fails.
var ErrEndpointInUse = errors.New("coordination endpoint already in use by a live process")

// bindEndpoint creates the unix listener for the coordination endpoint.
// A stale socket file left by a crashed process is detected by dialing
// it and removed. With takeover set (handoff child) the probe is
// skipped: the previous generation is still alive and still bound, and
// this process replaces the path deliberately.
func bindEndpoint(path string, takeover bool) (*net.UnixListener, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create socket directory %s: %w", dir, err)
	}

	if _, err := os.Stat(path); err == nil {
		if !takeover && dialable(path) {
			return nil, fmt.Errorf("bind %s: %w", path, ErrEndpointInUse)
		}
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("remove stale socket %s: %w", path, err)
		}
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("bind coordination endpoint %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("chmod socket %s: %w", path, err)
	}
	return ln.(*net.UnixListener), nil
}

// dialable reports whether something accepts connections on the path.
func dialable(path string) bool {
	conn, err := net.DialTimeout("unix", path, time.Second)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
