//go:build !windows

package restart

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
)

func TestBindEndpointFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "e.sock")
	ln, err := bindEndpoint(path, false)
	if err != nil {
		t.Fatalf("bindEndpoint: %v", err)
	}
	defer func() { _ = ln.Close() }()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("socket file missing: %v", err)
	}
	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("dial bound endpoint: %v", err)
	}
	_ = conn.Close()
}

func TestBindEndpointCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "e.sock")
	ln, err := bindEndpoint(path, false)
	if err != nil {
		t.Fatalf("bindEndpoint: %v", err)
	}
	_ = ln.Close()
}

func TestBindEndpointReplacesStaleSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "e.sock")

	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("pre-bind: %v", err)
	}
	// Closing unlinks the path; recreate the file to fake a crashed
	// process that left its socket behind.
	_ = ln.Close()
	raw, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("re-bind: %v", err)
	}
	raw.(*net.UnixListener).SetUnlinkOnClose(false)
	_ = raw.Close()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("stale socket file not present: %v", err)
	}

	ln2, err := bindEndpoint(path, false)
	if err != nil {
		t.Fatalf("bindEndpoint over stale socket: %v", err)
	}
	_ = ln2.Close()
}

func TestBindEndpointRefusesLiveSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "e.sock")
	ln, err := bindEndpoint(path, false)
	if err != nil {
		t.Fatalf("bindEndpoint: %v", err)
	}
	defer func() { _ = ln.Close() }()
	go acceptAndClose(ln)

	if _, err := bindEndpoint(path, false); !errors.Is(err, ErrEndpointInUse) {
		t.Fatalf("second bind err = %v, want ErrEndpointInUse", err)
	}
}

func TestBindEndpointTakeoverReplacesLiveSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "e.sock")
	old, err := bindEndpoint(path, false)
	if err != nil {
		t.Fatalf("bindEndpoint: %v", err)
	}
	go acceptAndClose(old)

	next, err := bindEndpoint(path, true)
	if err != nil {
		t.Fatalf("takeover bind err = %v, want success", err)
	}
	defer func() { _ = next.Close() }()

	// The predecessor must not unlink the successor's socket on close.
	old.SetUnlinkOnClose(false)
	_ = old.Close()

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("dial after takeover: %v", err)
	}
	_ = conn.Close()
}

func acceptAndClose(ln *net.UnixListener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		_ = conn.Close()
	}
}
