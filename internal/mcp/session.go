/*
PURPOSE:
  One long-lived MCP session against a tool server: protocol negotiation,
  tool discovery and tool calls with strictly increasing request ids.

REQUIREMENTS:
  User-specified:
  - initialize is tried once per candidate protocol version, in order; the
    first response without an "error" key wins.
  - Initialize latency is measured from spawn.
  - On success send notifications/initialized, then tools/list.

  Implementation-discovered:
  - Ids are fixed for the handshake (1, 2) and count up from 1001 for calls.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine, internal/target, internal/cli (list-tools)
  - Uses: internal/mcp/transport.go

ERROR HANDLING:
  - Transport failures come back as ErrTimeout / *ExitedError.
  - JSON-RPC errors are reported on the returned Response, not as Go errors.

USAGE:
  s, err := mcp.Start(spec, mcp.Options{})
  defer s.Close()
  phase, _ := s.Initialize(versions, 20*time.Second)

RELATED FILES:
  - internal/mcp/transport.go
  - internal/engine/runner.go
*/

package mcp

import (
	"errors"
	"fmt"
	"time"

	"github.com/daryltucker/workload-bench/internal/model"
	"github.com/daryltucker/workload-bench/internal/output"
	"github.com/daryltucker/workload-bench/internal/payload"
)

// DefaultProtocolVersions are tried in order during initialize.
var DefaultProtocolVersions = []string{"2024-11-05", "2025-06-18"}

// ClientName is sent as clientInfo.name.
const ClientName = "workload-bench"

// Options tune a session.
type Options struct {
	PollInterval  time.Duration
	ClientVersion string
}

// Session is a live connection to one tool server.
type Session struct {
	Name      string
	proc      *Process
	transport *Transport
	startedAt time.Time
	nextID    int
	version   string

	clientVersion string
}

// Start spawns the server described by spec.
func Start(spec model.ServerSpec, opts Options) (*Session, error) {
	startedAt := time.Now()
	proc, err := StartProcess(spec.Name, spec.Command, spec.Args, spec.Env, spec.Cwd)
	if err != nil {
		return nil, err
	}
	version := opts.ClientVersion
	if version == "" {
		version = "dev"
	}
	return &Session{
		Name:          spec.Name,
		proc:          proc,
		transport:     NewTransport(proc, opts.PollInterval),
		startedAt:     startedAt,
		nextID:        FirstCallID,
		clientVersion: version,
	}, nil
}

// ProtocolVersion is the version the server accepted, or "".
func (s *Session) ProtocolVersion() string { return s.version }

// Exited reports whether the server process is gone.
func (s *Session) Exited() bool { return s.transport.Exited() }

// NextID returns a fresh tools/call request id.
func (s *Session) NextID() int {
	id := s.nextID
	s.nextID++
	return id
}

func phaseFromRead(ok bool, elapsed time.Duration, errText string, bytesRead int) *model.PhaseResult {
	phase := &model.PhaseResult{
		OK:           ok,
		MS:           millis(elapsed),
		StdoutBytes:  model.Ptr(bytesRead),
		ApproxTokens: model.Ptr(payload.ApproxTokens(bytesRead)),
	}
	if errText != "" {
		phase.Error = model.Ptr(errText)
	}
	return phase
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Initialize negotiates a protocol version. Each candidate gets its own
// timeout; the phase result reports the last attempt. A successful handshake
// is followed by notifications/initialized.
func (s *Session) Initialize(versions []string, timeout time.Duration) (*model.PhaseResult, error) {
	if len(versions) == 0 {
		versions = DefaultProtocolVersions
	}
	var lastErr error
	bytesRead := 0
	for _, version := range versions {
		params := map[string]any{
			"protocolVersion": version,
			"capabilities":    map[string]any{},
			"clientInfo":      map[string]any{"name": ClientName, "version": s.clientVersion},
		}
		if err := s.transport.Send(NewRequest(InitializeID, MethodInitialize, params)); err != nil {
			lastErr = err
			break
		}
		resp, n, err := s.transport.Read(InitializeID, timeout)
		bytesRead = n
		if err != nil {
			lastErr = err
			output.Logger.Debug("initialize attempt failed", "server", s.Name, "protocol", version, "error", err)
			var exited *ExitedError
			if errors.As(err, &exited) {
				break
			}
			continue
		}
		if resp.HasError {
			msg := resp.ErrorMessage()
			if msg == "" {
				msg = "initialize error"
			}
			lastErr = errors.New(msg)
			output.Logger.Debug("initialize rejected", "server", s.Name, "protocol", version, "error", msg)
			continue
		}
		s.version = version
		phase := phaseFromRead(true, time.Since(s.startedAt), "", bytesRead)
		if err := s.transport.Send(NewNotification(MethodInitialized)); err != nil {
			return phase, fmt.Errorf("send initialized: %w", err)
		}
		return phase, nil
	}
	errText := "initialize failed"
	if lastErr != nil {
		errText = lastErr.Error()
	}
	return phaseFromRead(false, time.Since(s.startedAt), errText, bytesRead), lastErr
}

// ListTools calls tools/list and returns the advertised tools.
func (s *Session) ListTools(timeout time.Duration) (*model.PhaseResult, []Tool, error) {
	start := time.Now()
	if err := s.transport.Send(NewRequest(ListToolsID, MethodToolsList, map[string]any{})); err != nil {
		return phaseFromRead(false, time.Since(start), err.Error(), 0), nil, err
	}
	resp, n, err := s.transport.Read(ListToolsID, timeout)
	elapsed := time.Since(start)
	if err != nil {
		return phaseFromRead(false, elapsed, err.Error(), n), nil, err
	}
	if resp.HasError {
		msg := resp.ErrorMessage()
		return phaseFromRead(false, elapsed, msg, n), nil, fmt.Errorf("tools/list: %s", msg)
	}
	return phaseFromRead(true, elapsed, "", n), decodeTools(resp.Result), nil
}

// CallOutcome is the raw result of one tools/call.
type CallOutcome struct {
	ID        int
	Elapsed   time.Duration
	BytesRead int
	Response  *Response
	Err       error
}

// OK is true when a response arrived without an "error" key.
func (o CallOutcome) OK() bool {
	return o.Err == nil && o.Response != nil && !o.Response.HasError
}

// ErrorText is the transport error, else the JSON-RPC error message.
func (o CallOutcome) ErrorText() string {
	if o.Err != nil {
		return o.Err.Error()
	}
	if o.Response != nil && o.Response.HasError {
		if msg := o.Response.ErrorMessage(); msg != "" {
			return msg
		}
		return "tool error"
	}
	return ""
}

// CallTool sends tools/call with the next request id and waits for its
// response. Latency covers send through matched read.
func (s *Session) CallTool(call model.ToolCall, timeout time.Duration) CallOutcome {
	id := s.NextID()
	args := call.Args
	if args == nil {
		args = map[string]any{}
	}
	start := time.Now()
	params := map[string]any{"name": call.Name, "arguments": args}
	if err := s.transport.Send(NewRequest(id, MethodToolsCall, params)); err != nil {
		return CallOutcome{ID: id, Elapsed: time.Since(start), Err: err}
	}
	resp, n, err := s.transport.Read(id, timeout)
	return CallOutcome{ID: id, Elapsed: time.Since(start), BytesRead: n, Response: resp, Err: err}
}

// Close tears the server down.
func (s *Session) Close() {
	s.proc.Close()
}

// ToolNames indexes tools by name.
func ToolNames(tools []Tool) map[string]bool {
	names := make(map[string]bool, len(tools))
	for _, t := range tools {
		names[t.Name] = true
	}
	return names
}
