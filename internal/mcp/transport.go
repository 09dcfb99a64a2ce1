package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DefaultPollInterval bounds how long Read sleeps between checks.
const DefaultPollInterval = 100 * time.Millisecond

// ErrTimeout is returned when no matching response arrives before the deadline.
var ErrTimeout = errors.New("TIMEOUT")

// ExitedError is returned when the child exits while a response is awaited.
type ExitedError struct {
	Code int
}

func (e *ExitedError) Error() string {
	return fmt.Sprintf("EXITED(%d)", e.Code)
}

// Transport speaks newline-delimited JSON-RPC over a child's stdio.
type Transport struct {
	proc *Process
	poll time.Duration
}

// NewTransport wraps proc. A poll interval <= 0 uses DefaultPollInterval.
func NewTransport(proc *Process, poll time.Duration) *Transport {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &Transport{proc: proc, poll: poll}
}

// Send writes msg as one JSON line.
func (t *Transport) Send(msg any) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %T: %w", msg, err)
	}
	return t.proc.Write(append(b, '\n'))
}

// Read waits for the response whose id equals expectedID. Lines that do not
// parse or carry another id are dropped, but their bytes are counted; the
// returned byte count covers every line consumed by this call. No retries.
func (t *Transport) Read(expectedID int, timeout time.Duration) (*Response, int, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(t.poll)
	defer ticker.Stop()

	lines := t.proc.Lines()
	exited := t.proc.Exited()
	exitSeen := false
	idleAfterExit := 0
	bytesRead := 0

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				lines = nil
				if exitSeen {
					return nil, bytesRead, &ExitedError{Code: t.proc.ExitCode()}
				}
				continue
			}
			bytesRead += len(line)
			if resp, match := parseResponse(line, expectedID); match {
				return resp, bytesRead, nil
			}
		case <-exited:
			exited = nil
			exitSeen = true
			if lines == nil {
				return nil, bytesRead, &ExitedError{Code: t.proc.ExitCode()}
			}
		case <-ticker.C:
			// stdout can outlive the child when a grandchild inherited it.
			if exitSeen && len(lines) == 0 {
				idleAfterExit++
				if idleAfterExit >= 2 {
					return nil, bytesRead, &ExitedError{Code: t.proc.ExitCode()}
				}
			}
		case <-deadline.C:
			return nil, bytesRead, ErrTimeout
		}
	}
}

// Exited reports whether the child process is gone.
func (t *Transport) Exited() bool {
	return t.proc.HasExited()
}
