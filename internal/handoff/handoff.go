package handoff

import (
	"context"
	"fmt"
	"io"
	"os"
)

// Environment variables advertising inherited descriptor numbers to a
// spawned next generation. Their presence is the marker that a process
// was launched as part of a handoff.
const (
	EnvPayloadFD = "HANDOVER_HANDOFF_FD"
	EnvNotifyFD  = "HANDOVER_NOTIFY_FD"
)

// Lifecycle is the application hook invoked on the old generation during
// a restart. Send encodes whatever state the next generation needs into
// w; the engine does not interpret the bytes. Returning an error vetoes
// the restart: no payload is delivered and the spawned child is torn
// down.
type Lifecycle interface {
	Send(ctx context.Context, w io.Writer) error
}

// Noop is the default Lifecycle for applications that carry no state
// across generations. It writes nothing and always succeeds.
type Noop struct{}

func (Noop) Send(context.Context, io.Writer) error { return nil }

// Pipes holds the two descriptor pairs created for one restart attempt:
// the payload pipe (old generation writes, new generation reads) and the
// readiness pipe (new generation writes one byte once it is operating).
// A Pipes value is single use.
type Pipes struct {
	PayloadR *os.File
	PayloadW *os.File
	NotifyR  *os.File
	NotifyW  *os.File
}

func NewPipes() (*Pipes, error) {
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("handoff payload pipe: %w", err)
	}
	nr, nw, err := os.Pipe()
	if err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return nil, fmt.Errorf("handoff notify pipe: %w", err)
	}
	return &Pipes{PayloadR: pr, PayloadW: pw, NotifyR: nr, NotifyW: nw}, nil
}

// ChildFiles returns the descriptors to be inherited by the child, in
// ExtraFiles order. The child sees them as fds 3 and 4.
func (p *Pipes) ChildFiles() []*os.File {
	return []*os.File{p.PayloadR, p.NotifyW}
}

// ChildEnv returns the marker variables matching ChildFiles ordering.
func (p *Pipes) ChildEnv() []string {
	return []string{
		fmt.Sprintf("%s=3", EnvPayloadFD),
		fmt.Sprintf("%s=4", EnvNotifyFD),
	}
}

// CloseChildEnds closes the parent's copies of the descriptors passed to
// the child. Call after the child has been started so EOF propagates
// from the right side only.
func (p *Pipes) CloseChildEnds() {
	_ = p.PayloadR.Close()
	_ = p.NotifyW.Close()
}

// CloseParentEnds closes the ends retained by the parent. Used both for
// normal completion and for cleanup when an attempt fails early.
func (p *Pipes) CloseParentEnds() {
	_ = p.PayloadW.Close()
	_ = p.NotifyR.Close()
}
