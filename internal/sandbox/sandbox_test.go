package sandbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// Tests exercise the runner with sh so they stay independent of the default
// interpreter.
func newShellRunner(t *testing.T) (*ProcessRunner, string) {
	t.Helper()
	dir := t.TempDir()
	r := NewProcessRunner(
		WithCommand([]string{"sh"}, ".sh"),
		WithDir(dir),
		WithLimits(Limits{}),
	)
	return r, dir
}

func tempFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read temp dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, filepath.Join(dir, e.Name()))
	}
	return names
}

func TestExecuteCapturesOutput(t *testing.T) {
	r, dir := newShellRunner(t)
	res, err := r.Execute(context.Background(), "echo out; echo err >&2", Options{Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if strings.TrimSpace(res.Stdout) != "out" {
		t.Fatalf("unexpected stdout: %q", res.Stdout)
	}
	if strings.TrimSpace(res.Stderr) != "err" {
		t.Fatalf("unexpected stderr: %q", res.Stderr)
	}
	if res.ExitCode != 0 {
		t.Fatalf("unexpected exit code: %d", res.ExitCode)
	}
	if files := tempFiles(t, dir); len(files) != 0 {
		t.Fatalf("temporary files left behind: %v", files)
	}
}

func TestExecuteNonZeroExit(t *testing.T) {
	r, dir := newShellRunner(t)
	_, err := r.Execute(context.Background(), "echo boom >&2; exit 3", Options{Timeout: 5 * time.Second})
	if !errors.Is(err, ErrExecution) {
		t.Fatalf("expected ErrExecution, got %v", err)
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("error must carry captured stderr: %v", err)
	}
	if files := tempFiles(t, dir); len(files) != 0 {
		t.Fatalf("temporary files left behind: %v", files)
	}
}

func TestExecuteTimeoutKillsChild(t *testing.T) {
	r, dir := newShellRunner(t)
	start := time.Now()
	_, err := r.Execute(context.Background(), "sleep 5", Options{Timeout: 200 * time.Millisecond})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("timeout kill took too long: %s", elapsed)
	}
	if files := tempFiles(t, dir); len(files) != 0 {
		t.Fatalf("temporary files left behind after timeout: %v", files)
	}
}

func TestExecuteContextCancellation(t *testing.T) {
	r, _ := newShellRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	_, err := r.Execute(ctx, "sleep 5", Options{Timeout: 10 * time.Second})
	if !errors.Is(err, ErrExecution) {
		t.Fatalf("expected ErrExecution on cancellation, got %v", err)
	}
}

func TestDefaultLimits(t *testing.T) {
	l := DefaultLimits()
	if l.MemoryBytes == 0 || l.CPUSeconds == 0 || l.MaxProcesses == 0 {
		t.Fatalf("default limits must all be set: %+v", l)
	}
}
