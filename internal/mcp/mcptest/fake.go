// Package mcptest runs a scripted MCP tool server inside the test binary.
//
// A test package hooks it up from TestMain:
//
//	func TestMain(m *testing.M) {
//		if mcptest.IsFakeServer() {
//			os.Exit(mcptest.Serve(os.Stdin, os.Stdout, os.Stderr))
//		}
//		os.Exit(m.Run())
//	}
//
// and launches it with Spec, which re-executes the test binary with the
// fake-server environment set.
package mcptest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/daryltucker/workload-bench/internal/model"
)

const (
	envFakeServer = "MCPTEST_FAKE_SERVER"
	envModes      = "MCPTEST_MODE"
)

// Behaviour switches, combined with Spec(name, modes...).
const (
	// ModeNoise writes junk and mismatched-id lines before every response.
	ModeNoise = "noise"
	// ModeRejectOld rejects initialize for protocol 2024-11-05.
	ModeRejectOld = "reject-old"
	// ModeSilent never answers anything.
	ModeSilent = "silent"
	// ModeCrashOnCall exits with status 3 on the first tools/call.
	ModeCrashOnCall = "crash-on-call"
	// ModeDuplicate makes recent_messages and search_messages return the same payload.
	ModeDuplicate = "duplicate"
	// ModeStderr writes chatter to stderr.
	ModeStderr = "stderr"
)

// SlowToolDelay is how long slow_tool sleeps before answering.
const SlowToolDelay = 3 * time.Second

// ThreadTarget is the contact every target dialect of the fake resolves to.
const ThreadTarget = "Alice Example"

// ToolNames lists what tools/list advertises.
var ToolNames = []string{
	"unread_messages",
	"recent_messages",
	"search_messages",
	"list_conversations",
	"list_chats",
	"get_thread",
	"tiny_tool",
	"error_tool",
	"slow_tool",
}

// IsFakeServer reports whether this process was launched by Spec.
func IsFakeServer() bool {
	return os.Getenv(envFakeServer) == "1"
}

// Spec returns a server spec that runs the fake server with the given modes.
// Workloads map onto the fake tools; W3_THREAD needs the contact_line target.
func Spec(name string, modes ...string) model.ServerSpec {
	return model.ServerSpec{
		Name:    name,
		Command: os.Args[0],
		Args:    []string{},
		Env: map[string]string{
			envFakeServer: "1",
			envModes:      strings.Join(modes, ","),
		},
		Workloads: map[string]model.ToolCall{
			"W0_UNREAD": {Name: "unread_messages", Args: map[string]any{"limit": 1}},
			"W1_RECENT": {Name: "recent_messages", Args: map[string]any{"limit": 5}},
			"W2_SEARCH": {Name: "search_messages", Args: map[string]any{"query": "http", "limit": 5}},
			"W3_THREAD": {Name: "get_thread", Args: map[string]any{"contact": model.Placeholder, "limit": 1}},
		},
		Target: &model.TargetSelector{Tool: "list_conversations", Args: map[string]any{"limit": 5}, Kind: "contact_line"},
	}
}

type request struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type callParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type server struct {
	out    *bufio.Writer
	errOut io.Writer
	modes  []string
}

// Serve answers JSON-RPC lines from in until EOF and returns an exit status.
func Serve(in io.Reader, out, errOut io.Writer) int {
	s := &server{
		out:    bufio.NewWriter(out),
		errOut: errOut,
		modes:  strings.Split(os.Getenv(envModes), ","),
	}
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for scanner.Scan() {
		var req request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			continue
		}
		if s.has(ModeStderr) {
			fmt.Fprintf(errOut, "fake: got %s from bob@example.com\n", req.Method)
		}
		if len(req.ID) == 0 || s.has(ModeSilent) {
			continue
		}
		if code, exit := s.handle(req); exit {
			return code
		}
	}
	return 0
}

func (s *server) has(mode string) bool {
	return slices.Contains(s.modes, mode)
}

func (s *server) handle(req request) (int, bool) {
	switch req.Method {
	case "initialize":
		var params struct {
			ProtocolVersion string `json:"protocolVersion"`
		}
		_ = json.Unmarshal(req.Params, &params)
		if s.has(ModeRejectOld) && params.ProtocolVersion == "2024-11-05" {
			s.replyError(req.ID, -32602, "unsupported protocol version")
			return 0, false
		}
		s.reply(req.ID, map[string]any{
			"protocolVersion": params.ProtocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]any{"name": "fake", "version": "1.0.0"},
		})
	case "tools/list":
		tools := make([]map[string]any, 0, len(ToolNames))
		for _, name := range ToolNames {
			tools = append(tools, map[string]any{"name": name, "inputSchema": map[string]any{"type": "object"}})
		}
		s.reply(req.ID, map[string]any{"tools": tools})
	case "tools/call":
		if s.has(ModeCrashOnCall) {
			return 3, true
		}
		var params callParams
		_ = json.Unmarshal(req.Params, &params)
		s.call(req.ID, params)
	default:
		s.replyError(req.ID, -32601, "method not found: "+req.Method)
	}
	return 0, false
}

func (s *server) call(id json.RawMessage, params callParams) {
	switch params.Name {
	case "unread_messages":
		s.replyJSONText(id, map[string]any{"messages": []any{}})
	case "recent_messages":
		if s.has(ModeDuplicate) {
			s.replyJSONText(id, sharedPayload())
			return
		}
		s.replyJSONText(id, map[string]any{"messages": messages("recent", 5)})
	case "search_messages":
		if s.has(ModeDuplicate) {
			s.replyJSONText(id, sharedPayload())
			return
		}
		query, _ := params.Arguments["query"].(string)
		s.replyJSONText(id, map[string]any{"query": query, "results": messages("match for "+query, 3)})
	case "list_conversations":
		s.replyText(id, "Top contacts\n"+ThreadTarget+" (12 messages)\nBob Builder (3 messages)")
	case "list_chats":
		s.replyJSONText(id, map[string]any{
			"chats":         []any{map[string]any{"guid": "iMessage;-;chat-guid-1"}},
			"conversations": []any{map[string]any{"chat_id": 42, "chatId": "c-42"}},
		})
	case "get_thread":
		contact, _ := params.Arguments["contact"].(string)
		if contact != ThreadTarget {
			s.replyError(id, -32000, "unknown contact")
			return
		}
		s.replyJSONText(id, map[string]any{"contact": contact, "messages": messages("thread with "+contact, 2)})
	case "tiny_tool":
		s.replyText(id, "ok")
	case "error_tool":
		s.replyError(id, -32000, "boom")
	case "slow_tool":
		time.Sleep(SlowToolDelay)
		s.replyText(id, "finally")
	default:
		s.replyError(id, -32602, "unknown tool: "+params.Name)
	}
}

func messages(prefix string, n int) []any {
	out := make([]any, 0, n)
	for i := range n {
		out = append(out, map[string]any{
			"id":     i + 1,
			"sender": "Alice Example",
			"text":   fmt.Sprintf("%s #%d: lorem ipsum dolor sit amet, consectetur adipiscing elit", prefix, i+1),
			"date":   "2026-01-02T03:04:05Z",
		})
	}
	return out
}

func sharedPayload() map[string]any {
	return map[string]any{"messages": messages("same", 4)}
}

func (s *server) noise() {
	if !s.has(ModeNoise) {
		return
	}
	fmt.Fprintln(s.out, "starting up... not json")
	fmt.Fprintln(s.out, `{"jsonrpc":"2.0","id":999999,"result":{}}`)
	fmt.Fprintln(s.out, `[1,2,3]`)
}

func (s *server) write(msg map[string]any) {
	s.noise()
	b, _ := json.Marshal(msg)
	s.out.Write(b)
	s.out.WriteByte('\n')
	s.out.Flush()
}

func (s *server) reply(id json.RawMessage, result any) {
	s.write(map[string]any{"jsonrpc": "2.0", "id": id, "result": result})
}

func (s *server) replyError(id json.RawMessage, code int, message string) {
	s.write(map[string]any{"jsonrpc": "2.0", "id": id, "error": map[string]any{"code": code, "message": message}})
}

func (s *server) replyText(id json.RawMessage, text string) {
	s.reply(id, map[string]any{"content": []any{map[string]any{"type": "text", "text": text}}})
}

func (s *server) replyJSONText(id json.RawMessage, v any) {
	b, _ := json.Marshal(v)
	s.replyText(id, string(b))
}
