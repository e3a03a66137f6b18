package restart

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// CommandRestart is the only command the coordination endpoint accepts.
const CommandRestart = "restart"

// Failure kinds carried in trigger replies so a client can tell why a
// restart did not happen.
const (
	KindInProgress = "in_progress"
	KindSpawn      = "spawn"
	KindHandoff    = "handoff"
	KindVeto       = "veto"
	KindNotReady   = "not_ready"
	KindProtocol   = "protocol"
)

// Request is what a trigger client sends over the coordination endpoint.
type Request struct {
	Command string `json:"command"`
}

// Response reports the restart outcome back to the trigger client:
// either the new process id or a failure kind with a description.
type Response struct {
	OK    bool   `json:"ok"`
	PID   int    `json:"pid,omitempty"`
	Kind  string `json:"kind,omitempty"`
	Error string `json:"error,omitempty"`
}

func writeRequest(w io.Writer, req Request) error {
	return json.NewEncoder(w).Encode(req)
}

func readRequest(r io.Reader) (Request, error) {
	var req Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return Request{}, fmt.Errorf("decode trigger request: %w", err)
	}
	return req, nil
}

func writeResponse(w io.Writer, resp Response) error {
	return json.NewEncoder(w).Encode(resp)
}

func readResponse(r io.Reader) (Response, error) {
	var resp Response
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("decode trigger response: %w", err)
	}
	return resp, nil
}

// successResponse and failureResponse build the two reply shapes.
func successResponse(pid int) Response {
	return Response{OK: true, PID: pid}
}

func failureResponse(err error) Response {
	return Response{OK: false, Kind: errorKind(err), Error: err.Error()}
}

// KindOf maps an attempt error onto its wire kind.
func KindOf(err error) string { return errorKind(err) }

// errorKind maps an attempt error onto its wire kind.
func errorKind(err error) string {
	var (
		veto     *VetoError
		spawn    *SpawnError
		handoff  *HandoffError
		notReady *NotReadyError
	)
	switch {
	case errors.Is(err, ErrInProgress), errors.Is(err, ErrHandedOver):
		return KindInProgress
	case errors.As(err, &veto):
		return KindVeto
	case errors.As(err, &spawn):
		return KindSpawn
	case errors.As(err, &handoff):
		return KindHandoff
	case errors.As(err, &notReady):
		return KindNotReady
	}
	return KindProtocol
}

// Err reconstructs the typed error a failure response stands for.
func (r Response) Err() error {
	if r.OK {
		return nil
	}
	switch r.Kind {
	case KindInProgress:
		return ErrInProgress
	case KindVeto:
		return &VetoError{Err: errors.New(r.Error)}
	case KindSpawn:
		return &SpawnError{Err: errors.New(r.Error)}
	case KindHandoff:
		return &HandoffError{Err: errors.New(r.Error)}
	case KindNotReady:
		return &NotReadyError{Err: errors.New(r.Error)}
	}
	return errors.New(r.Error)
}
