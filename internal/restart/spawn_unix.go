//go:build !windows

package restart

import (
	"os/exec"
	"syscall"
)

// configureSysProcAttr places the next generation in a new process group
// so a failed child can be signaled as a group without touching the
// parent or its session.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalGroup sends sig to the child's whole process group.
func signalGroup(pid int, sig syscall.Signal) error {
	return syscall.Kill(-pid, sig)
}

// platformSupportsHandoff reports whether inherited-descriptor handoff
// works on this platform.
func platformSupportsHandoff() error { return nil }
