//go:build !linux

package sandbox

import "os/exec"

// Non-Linux platforms run without kernel-enforced ceilings; the wall-clock
// timeout still applies.

func isolateProcessGroup(cmd *exec.Cmd) {}

func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}

func applyLimits(pid int, l Limits) error { return nil }
