// Package sandbox executes untrusted artifact code in an isolated child
// process with enforced ceilings on address space, CPU time, and process
// count, plus a hard wall-clock timeout.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

var (
	// ErrExecution indicates the child process exited with a failure.
	ErrExecution = errors.New("sandbox: execution failed")
	// ErrTimeout indicates the child exceeded its wall-clock budget and was
	// killed.
	ErrTimeout = errors.New("sandbox: execution timed out")
)

const (
	// DefaultTimeout bounds executions when the caller does not supply one.
	DefaultTimeout = 30 * time.Second
	// DefaultMemoryBytes caps the child's address space (256 MiB).
	DefaultMemoryBytes = 256 << 20
	// DefaultCPUSeconds caps consumed CPU time.
	DefaultCPUSeconds = 10
	// DefaultMaxProcesses caps concurrent processes the child may hold.
	DefaultMaxProcesses = 16
)

// Limits describes the resource ceilings applied to the child process.
type Limits struct {
	MemoryBytes  uint64
	CPUSeconds   uint64
	MaxProcesses uint64
}

// DefaultLimits returns the stock ceilings.
func DefaultLimits() Limits {
	return Limits{
		MemoryBytes:  DefaultMemoryBytes,
		CPUSeconds:   DefaultCPUSeconds,
		MaxProcesses: DefaultMaxProcesses,
	}
}

// Options configures a single execution.
type Options struct {
	// Timeout is the wall-clock budget; DefaultTimeout when zero.
	Timeout time.Duration
	// ArtifactID tags the execution for audit correlation.
	ArtifactID string
}

// ExecResult carries the captured output of a finished execution.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Runner is the isolated-runner abstraction: platform backends (rlimits,
// cgroups, containers) implement it.
type Runner interface {
	Execute(ctx context.Context, code string, opts Options) (ExecResult, error)
}

// ProcessRunner runs code by writing it to a temporary file and spawning a
// configured interpreter over it in its own process group.
type ProcessRunner struct {
	command []string
	ext     string
	dir     string
	limits  Limits
}

// RunnerOption configures a ProcessRunner.
type RunnerOption func(*ProcessRunner)

// WithCommand overrides the interpreter command; ext names the temp-file
// suffix the interpreter expects.
func WithCommand(command []string, ext string) RunnerOption {
	return func(r *ProcessRunner) {
		if len(command) > 0 {
			r.command = command
		}
		if ext != "" {
			r.ext = ext
		}
	}
}

// WithLimits overrides the resource ceilings.
func WithLimits(l Limits) RunnerOption {
	return func(r *ProcessRunner) { r.limits = l }
}

// WithDir places temporary files under dir instead of the OS default.
func WithDir(dir string) RunnerOption {
	return func(r *ProcessRunner) { r.dir = dir }
}

// NewProcessRunner constructs a runner that executes Go source via "go run"
// unless reconfigured.
func NewProcessRunner(opts ...RunnerOption) *ProcessRunner {
	r := &ProcessRunner{
		command: []string{"go", "run"},
		ext:     ".go",
		limits:  DefaultLimits(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Execute writes code to an isolated temporary file, runs it under the
// configured ceilings, and waits up to the timeout. The temporary file is
// removed on every exit path. On timeout the whole process group is killed
// immediately; adversarial code gets no grace period.
func (r *ProcessRunner) Execute(ctx context.Context, code string, opts Options) (ExecResult, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	file, err := os.CreateTemp(r.dir, "forgegate-exec-*"+r.ext)
	if err != nil {
		return ExecResult{}, fmt.Errorf("%w: create temp file: %v", ErrExecution, err)
	}
	path := file.Name()
	defer os.Remove(path)

	if _, err := file.WriteString(code); err != nil {
		file.Close()
		return ExecResult{}, fmt.Errorf("%w: write temp file: %v", ErrExecution, err)
	}
	if err := file.Close(); err != nil {
		return ExecResult{}, fmt.Errorf("%w: close temp file: %v", ErrExecution, err)
	}

	args := append(append([]string{}, r.command[1:]...), path)
	cmd := exec.Command(r.command[0], args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	isolateProcessGroup(cmd)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return ExecResult{}, fmt.Errorf("%w: start: %v", ErrExecution, err)
	}
	if err := applyLimits(cmd.Process.Pid, r.limits); err != nil {
		killProcessGroup(cmd)
		_ = cmd.Wait()
		return ExecResult{}, fmt.Errorf("%w: apply resource limits: %v", ErrExecution, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var waitErr error
	select {
	case waitErr = <-done:
	case <-timer.C:
		killProcessGroup(cmd)
		<-done
		return ExecResult{
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
			Duration: time.Since(start),
		}, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	case <-ctx.Done():
		killProcessGroup(cmd)
		<-done
		return ExecResult{
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
			Duration: time.Since(start),
		}, fmt.Errorf("%w: %v", ErrExecution, ctx.Err())
	}

	res := ExecResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: cmd.ProcessState.ExitCode(),
		Duration: time.Since(start),
	}
	if waitErr != nil {
		detail := strings.TrimSpace(res.Stderr)
		if detail == "" {
			detail = waitErr.Error()
		}
		return res, fmt.Errorf("%w: exit code %d: %s", ErrExecution, res.ExitCode, detail)
	}
	return res, nil
}
