//go:build linux

package sandbox

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// isolateProcessGroup places the child in its own process group so a timeout
// kill reaches every process it spawned.
func isolateProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup delivers SIGKILL to the child's whole process group.
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}

// applyLimits installs the resource ceilings on the already-started child.
func applyLimits(pid int, l Limits) error {
	set := func(resource int, value uint64) error {
		if value == 0 {
			return nil
		}
		lim := unix.Rlimit{Cur: value, Max: value}
		return unix.Prlimit(pid, resource, &lim, nil)
	}
	if err := set(unix.RLIMIT_AS, l.MemoryBytes); err != nil {
		return err
	}
	if err := set(unix.RLIMIT_CPU, l.CPUSeconds); err != nil {
		return err
	}
	return set(unix.RLIMIT_NPROC, l.MaxProcesses)
}
