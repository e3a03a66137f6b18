//go:build !windows

package restart

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestTriggerNotRunning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.sock")
	_, err := Trigger(context.Background(), path)
	if err == nil {
		t.Fatal("expected error for missing endpoint")
	}
	if !IsNotRunning(err) {
		t.Fatalf("err = %v, want NotRunningError", err)
	}
	var nr *NotRunningError
	if !errors.As(err, &nr) {
		t.Fatalf("err = %v, not a NotRunningError", err)
	}
	if !strings.Contains(nr.Guidance(), path) {
		t.Errorf("guidance %q does not name the socket path", nr.Guidance())
	}
}

func TestTriggerAgainstFakeServer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.sock")
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = ln.Close() }()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		req, err := readRequest(conn)
		if err != nil || req.Command != CommandRestart {
			_ = writeResponse(conn, Response{OK: false, Kind: KindProtocol, Error: "bad request"})
			return
		}
		_ = writeResponse(conn, successResponse(777))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pid, err := Trigger(ctx, path)
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if pid != 777 {
		t.Fatalf("pid = %d, want 777", pid)
	}
}

func TestTriggerPropagatesFailureKind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.sock")
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = ln.Close() }()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		_, _ = readRequest(conn)
		_ = writeResponse(conn, failureResponse(ErrInProgress))
	}()

	_, err = Trigger(context.Background(), path)
	if err == nil {
		t.Fatal("expected in-progress failure")
	}
	if errorKind(err) != KindInProgress {
		t.Fatalf("err = %v, want in-progress kind", err)
	}
}
