//go:build windows

package restart

import (
	"errors"
	"os/exec"
	"syscall"
)

const createNewProcessGroup = 0x00000200

func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: createNewProcessGroup}
}

func signalGroup(pid int, sig syscall.Signal) error {
	return errors.New("group signaling is not supported on windows")
}

// Descriptor inheritance through ExtraFiles does not exist on Windows,
// so the restart handoff cannot run there.
func platformSupportsHandoff() error {
	return errors.New("inherited-descriptor handoff is not supported on windows")
}
