package handoff

import (
	"fmt"
	"os"
	"strconv"
	"sync"
)

// Inherited is the channel endowment of a process launched via handoff:
// the payload read end for the application and the readiness notifier
// for the restart coordinator.
type Inherited struct {
	payload *os.File
	notify  *os.File

	readyOnce sync.Once
	readyErr  error
}

var (
	probeOnce sync.Once
	probed    *Inherited
	probeErr  error
)

// Probe reports whether this process was launched as part of a handoff.
// It returns (nil, nil) for a fresh start, the inherited channel for a
// handoff child, or an error when the marker is present but the
// descriptors are unusable. The environment is inspected exactly once
// per process and the marker variables are cleared so they cannot leak
// into unrelated children.
func Probe() (*Inherited, error) {
	probeOnce.Do(func() {
		probed, probeErr = probeEnv(os.Getenv(EnvPayloadFD), os.Getenv(EnvNotifyFD))
		_ = os.Unsetenv(EnvPayloadFD)
		_ = os.Unsetenv(EnvNotifyFD)
	})
	return probed, probeErr
}

func probeEnv(payloadEnv, notifyEnv string) (*Inherited, error) {
	if payloadEnv == "" && notifyEnv == "" {
		return nil, nil
	}
	if payloadEnv == "" || notifyEnv == "" {
		return nil, fmt.Errorf("incomplete handoff marker: %s=%q %s=%q",
			EnvPayloadFD, payloadEnv, EnvNotifyFD, notifyEnv)
	}
	pfd, err := strconv.Atoi(payloadEnv)
	if err != nil || pfd < 3 {
		return nil, fmt.Errorf("invalid %s value %q", EnvPayloadFD, payloadEnv)
	}
	nfd, err := strconv.Atoi(notifyEnv)
	if err != nil || nfd < 3 || nfd == pfd {
		return nil, fmt.Errorf("invalid %s value %q", EnvNotifyFD, notifyEnv)
	}
	payload := os.NewFile(uintptr(pfd), "handoff-payload")
	notify := os.NewFile(uintptr(nfd), "handoff-notify")
	if _, err := payload.Stat(); err != nil {
		return nil, fmt.Errorf("inherited payload fd %d: %w", pfd, err)
	}
	if _, err := notify.Stat(); err != nil {
		_ = payload.Close()
		return nil, fmt.Errorf("inherited notify fd %d: %w", nfd, err)
	}
	return &Inherited{payload: payload, notify: notify}, nil
}

// Payload returns the read end of the handoff channel. The application
// consumes it once before normal operation begins; reading EOF before
// any payload byte means the previous generation vetoed or failed the
// handoff.
func (i *Inherited) Payload() *os.File { return i.payload }

// Ready tells the previous generation that this process is operating.
// It writes a single byte on the readiness pipe and closes it. Safe to
// call more than once; only the first call reports.
func (i *Inherited) Ready() error {
	i.readyOnce.Do(func() {
		if _, err := i.notify.Write([]byte{readyByte}); err != nil {
			i.readyErr = fmt.Errorf("signal readiness: %w", err)
		}
		_ = i.notify.Close()
	})
	return i.readyErr
}

const readyByte = 0x01
