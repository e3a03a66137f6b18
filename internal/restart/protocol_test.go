package restart

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestRequestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := writeRequest(&buf, Request{Command: CommandRestart}); err != nil {
		t.Fatalf("writeRequest: %v", err)
	}
	req, err := readRequest(&buf)
	if err != nil {
		t.Fatalf("readRequest: %v", err)
	}
	if req.Command != CommandRestart {
		t.Fatalf("command = %q, want %q", req.Command, CommandRestart)
	}
}

func TestReadRequestGarbage(t *testing.T) {
	_, err := readRequest(strings.NewReader("this is not json\n"))
	if err == nil {
		t.Fatal("expected error for malformed request")
	}
}

func TestResponseRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := writeResponse(&buf, successResponse(4242)); err != nil {
		t.Fatalf("writeResponse: %v", err)
	}
	resp, err := readResponse(&buf)
	if err != nil {
		t.Fatalf("readResponse: %v", err)
	}
	if !resp.OK || resp.PID != 4242 {
		t.Fatalf("resp = %+v, want ok with pid 4242", resp)
	}
	if resp.Err() != nil {
		t.Fatalf("success response Err() = %v, want nil", resp.Err())
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrInProgress, KindInProgress},
		{ErrHandedOver, KindInProgress},
		{&VetoError{Err: errors.New("nope")}, KindVeto},
		{&SpawnError{Err: errors.New("exec")}, KindSpawn},
		{&HandoffError{Err: errors.New("pipe")}, KindHandoff},
		{&NotReadyError{Err: errors.New("timeout")}, KindNotReady},
		{errors.New("anything else"), KindProtocol},
	}
	for _, tt := range tests {
		if got := errorKind(tt.err); got != tt.want {
			t.Errorf("errorKind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestFailureResponseReconstruction(t *testing.T) {
	tests := []struct {
		name string
		err  error
		as   func(error) bool
	}{
		{"veto", &VetoError{Err: errors.New("still busy")}, func(err error) bool {
			var v *VetoError
			return errors.As(err, &v)
		}},
		{"spawn", &SpawnError{Err: errors.New("no binary")}, func(err error) bool {
			var v *SpawnError
			return errors.As(err, &v)
		}},
		{"handoff", &HandoffError{Err: errors.New("broken pipe")}, func(err error) bool {
			var v *HandoffError
			return errors.As(err, &v)
		}},
		{"not ready", &NotReadyError{Err: errors.New("died")}, func(err error) bool {
			var v *NotReadyError
			return errors.As(err, &v)
		}},
		{"in progress", ErrInProgress, func(err error) bool {
			return errors.Is(err, ErrInProgress)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := writeResponse(&buf, failureResponse(tt.err)); err != nil {
				t.Fatalf("writeResponse: %v", err)
			}
			resp, err := readResponse(&buf)
			if err != nil {
				t.Fatalf("readResponse: %v", err)
			}
			if resp.OK {
				t.Fatal("failure response marked OK")
			}
			got := resp.Err()
			if got == nil {
				t.Fatal("Err() = nil for failure response")
			}
			if !tt.as(got) {
				t.Errorf("reconstructed error %v lost its type", got)
			}
		})
	}
}
