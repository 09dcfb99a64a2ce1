/*
PURPOSE:
  Owns one tool-server child process: spawn, pipe plumbing, exit tracking
  and teardown.

REQUIREMENTS:
  User-specified:
  - Servers are arbitrary commands with args, env overrides and a working dir.
  - Teardown: close stdin, terminate, short grace period, then kill.

  Implementation-discovered:
  - stdout/stderr use os.Pipe so cmd.Wait never closes a pipe we still read.
  - stderr must be drained continuously or a chatty server blocks on write.

ARCHITECTURE INTEGRATION:
  - Used by: internal/mcp/transport.go, internal/mcp/session.go

ERROR HANDLING:
  - Spawn failures are returned; teardown errors are logged and ignored.

RELATED FILES:
  - internal/mcp/transport.go
*/

package mcp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/daryltucker/workload-bench/internal/output"
	"github.com/daryltucker/workload-bench/internal/payload"
)

// TerminateGrace is how long Close waits after SIGTERM before killing.
const TerminateGrace = 2 * time.Second

const maxLineBytes = 64 << 20

// Process is a running child with line-oriented stdout.
type Process struct {
	name  string
	cmd   *exec.Cmd
	stdin io.WriteCloser

	lines      chan []byte
	stdoutDone chan struct{}
	exited     chan struct{}
	exitCode   int

	closed    chan struct{}
	closeOnce sync.Once
}

// StartProcess launches command with args. env entries are layered over the
// current environment; dir may be empty.
func StartProcess(name, command string, args []string, env map[string]string, dir string) (*Process, error) {
	// Path-like commands are relative to the harness directory, never to dir.
	if strings.ContainsRune(command, os.PathSeparator) && !filepath.IsAbs(command) {
		abs, err := filepath.Abs(command)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", command, err)
		}
		command = abs
	}
	cmd := exec.Command(command, args...)
	cmd.Dir = dir
	cmd.Env = mergeEnv(os.Environ(), env)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdoutR.Close()
		stdoutW.Close()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		for _, f := range []*os.File{stdoutR, stdoutW, stderrR, stderrW} {
			f.Close()
		}
		return nil, fmt.Errorf("start %s: %w", command, err)
	}
	// The child holds its own copies now.
	stdoutW.Close()
	stderrW.Close()

	p := &Process{
		name:       name,
		cmd:        cmd,
		stdin:      stdin,
		lines:      make(chan []byte, 256),
		stdoutDone: make(chan struct{}),
		exited:     make(chan struct{}),
		closed:     make(chan struct{}),
	}
	go p.pumpStdout(stdoutR)
	go p.drainStderr(stderrR)
	go p.wait()
	return p, nil
}

func mergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}
	env := make([]string, 0, len(base)+len(overrides))
	env = append(env, base...)
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	// exec uses the last value for duplicate keys.
	for _, k := range keys {
		env = append(env, k+"="+overrides[k])
	}
	return env
}

func (p *Process) pumpStdout(r *os.File) {
	defer close(p.stdoutDone)
	defer close(p.lines)
	defer r.Close()
	reader := bufio.NewReaderSize(r, 64*1024)
	for {
		line, err := readLine(reader, maxLineBytes)
		if errors.Is(err, errLineTooLong) {
			output.Logger.Warn("discarding oversized stdout line", "server", p.name, "error", err)
			continue
		}
		if len(line) > 0 {
			select {
			case p.lines <- line:
			case <-p.closed:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

var errLineTooLong = errors.New("stdout line too long")

// readLine returns one line including its trailing newline, if any. A line
// longer than limit is consumed up to its newline and reported as
// errLineTooLong so the caller can carry on with the next one.
func readLine(r *bufio.Reader, limit int) ([]byte, error) {
	var line []byte
	skipped := 0
	for {
		chunk, err := r.ReadSlice('\n')
		if skipped == 0 && len(line)+len(chunk) <= limit {
			line = append(line, chunk...)
		} else {
			skipped += len(line) + len(chunk)
			line = nil
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if skipped > 0 && err == nil {
			return nil, fmt.Errorf("%w: %d bytes (limit %d)", errLineTooLong, skipped, limit)
		}
		return line, err
	}
}

func (p *Process) drainStderr(r *os.File) {
	defer r.Close()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		text := scanner.Text()
		if text == "" {
			continue
		}
		output.Logger.Debug("server stderr", "server", p.name, "line", payload.RedactText(text))
	}
}

func (p *Process) wait() {
	_ = p.cmd.Wait()
	if p.cmd.ProcessState != nil {
		p.exitCode = p.cmd.ProcessState.ExitCode()
	}
	close(p.exited)
}

// Lines delivers stdout lines; it is closed at EOF.
func (p *Process) Lines() <-chan []byte { return p.lines }

// StdoutClosed is closed once stdout reached EOF and every line was delivered.
func (p *Process) StdoutClosed() <-chan struct{} { return p.stdoutDone }

// Exited is closed once the child has been reaped.
func (p *Process) Exited() <-chan struct{} { return p.exited }

// ExitCode is valid after Exited is closed. Signalled children report -1.
func (p *Process) ExitCode() int {
	<-p.exited
	return p.exitCode
}

// HasExited reports whether the child has been reaped.
func (p *Process) HasExited() bool {
	select {
	case <-p.exited:
		return true
	default:
		return false
	}
}

// Write sends raw bytes to the child's stdin.
func (p *Process) Write(b []byte) error {
	if _, err := p.stdin.Write(b); err != nil {
		return fmt.Errorf("write stdin: %w", err)
	}
	return nil
}

// Close tears the child down: close stdin, SIGTERM, wait up to
// TerminateGrace, then kill. Safe to call more than once.
func (p *Process) Close() {
	p.closeOnce.Do(func() {
		defer close(p.closed)
		_ = p.stdin.Close()
		if p.HasExited() {
			return
		}
		if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
			// Platforms without SIGTERM.
			_ = p.cmd.Process.Kill()
		}
		select {
		case <-p.exited:
			return
		case <-time.After(TerminateGrace):
		}
		output.Logger.Warn("server ignored SIGTERM, killing", "server", p.name, "pid", p.cmd.Process.Pid)
		if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			output.Logger.Warn("kill failed", "server", p.name, "error", err)
		}
		<-p.exited
	})
}
