package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/daryltucker/workload-bench/internal/config"
	"github.com/daryltucker/workload-bench/internal/output"
)

// ErrPreflight marks a failed go/no-go check. Nothing has been spawned yet.
var ErrPreflight = errors.New("preflight failed")

// CommandRunner abstracts running a short-lived local command.
type CommandRunner interface {
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, []byte, int, error)
}

// ExecRunner executes commands on the local host.
type ExecRunner struct{}

// Run executes name and captures its output. The exit code is 127 when the
// binary cannot be started.
func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, []byte, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), stderr.Bytes(), 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.Bytes(), stderr.Bytes(), exitErr.ExitCode(), err
	}
	exitCode := 1
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		exitCode = 127
	}
	return stdout.Bytes(), stderr.Bytes(), exitCode, err
}

// Preflight runs the reference CLI once. A non-zero exit is reported with
// its trimmed stderr, wrapped in ErrPreflight.
func Preflight(ctx context.Context, runner CommandRunner, pf config.PreflightConfig) error {
	if pf.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, pf.Timeout)
		defer cancel()
	}
	output.Logger.Info("Running preflight", "command", pf.Command, "args", pf.Args)

	_, stderr, code, err := runner.Run(ctx, pf.Dir, pf.Command, pf.Args...)
	if err == nil && code == 0 {
		return nil
	}
	msg := strings.TrimSpace(string(stderr))
	if msg == "" {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			msg = fmt.Sprintf("timed out after %s", pf.Timeout)
		} else {
			msg = "reference CLI preflight failed"
		}
	}
	return fmt.Errorf("%w: %s", ErrPreflight, msg)
}

// NodeVersion returns `node --version`, or "" when node is unavailable.
func NodeVersion(ctx context.Context, runner CommandRunner) string {
	stdout, _, code, err := runner.Run(ctx, "", "node", "--version")
	if err != nil || code != 0 {
		return ""
	}
	return strings.TrimSpace(string(stdout))
}
