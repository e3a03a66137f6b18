package restart

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/loykin/handover/internal/env"
	"github.com/loykin/handover/internal/handoff"
)

// killGrace is how long a signaled child may linger before escalation.
const killGrace = 2 * time.Second

// spawnChild launches the next generation with the handoff descriptors
// mapped to their fixed positions. The returned channel is closed once
// the child has been reaped, whenever that happens.
func (c *Coordinator) spawnChild(pipes *handoff.Pipes) (*exec.Cmd, <-chan struct{}, error) {
	if err := platformSupportsHandoff(); err != nil {
		return nil, nil, err
	}

	argv := c.cfg.Command
	if len(argv) == 0 {
		exe, err := os.Executable()
		if err != nil {
			return nil, nil, fmt.Errorf("resolve executable: %w", err)
		}
		argv = append([]string{exe}, os.Args[1:]...)
	}

	cmd := exec.Command(argv[0], argv[1:]...)

	// Rebuild the environment: the OS env minus any stale markers this
	// process inherited itself, plus configured overrides, plus fresh
	// markers for the new pipes. Markers go last so nothing masks them.
	e := env.New()
	e.FromOS()
	e.DropPrefix(handoff.EnvPayloadFD)
	e.DropPrefix(handoff.EnvNotifyFD)
	extra := make([]string, 0, len(c.cfg.Env)+2)
	extra = append(extra, c.cfg.Env...)
	extra = append(extra, pipes.ChildEnv()...)
	cmd.Env = e.Merge(extra)

	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = pipes.ChildFiles()
	configureSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}

	exited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()
	return cmd, exited, nil
}

// terminateChild tears down a spawned child that will not be handed
// over to: TERM the group, wait, then KILL.
func (c *Coordinator) terminateChild(cmd *exec.Cmd, exited <-chan struct{}) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid
	if err := signalGroup(pid, syscall.SIGTERM); err != nil {
		// group may be gone or unsupported; signal the process directly
		_ = cmd.Process.Signal(syscall.SIGTERM)
	}
	select {
	case <-exited:
		return
	case <-time.After(killGrace):
	}
	c.lg.Warn("child ignored SIGTERM, killing", "pid", pid)
	if err := signalGroup(pid, syscall.SIGKILL); err != nil {
		_ = cmd.Process.Kill()
	}
	select {
	case <-exited:
	case <-time.After(killGrace):
		c.lg.Error("child survived SIGKILL", "pid", pid)
	}
}

// waitReady blocks until the child writes its readiness byte, exits, or
// the configured deadline passes.
func (c *Coordinator) waitReady(ctx context.Context, notify *os.File, exited <-chan struct{}) error {
	readyCh := make(chan error, 1)
	go func() {
		buf := make([]byte, 1)
		_, err := io.ReadFull(notify, buf)
		readyCh <- err
	}()

	var deadline <-chan time.Time
	if c.cfg.ReadyTimeout > 0 {
		t := time.NewTimer(c.cfg.ReadyTimeout)
		defer t.Stop()
		deadline = t.C
	}

	select {
	case err := <-readyCh:
		if err != nil {
			return fmt.Errorf("notify pipe closed before readiness: %w", err)
		}
		return nil
	case <-exited:
		// The readiness byte may have raced the exit. Once the child is
		// gone its write end is closed, so the pending read resolves.
		select {
		case err := <-readyCh:
			if err == nil {
				return nil
			}
		case <-time.After(100 * time.Millisecond):
		}
		return errors.New("process exited before reporting readiness")
	case <-deadline:
		return fmt.Errorf("no readiness signal within %s", c.cfg.ReadyTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
