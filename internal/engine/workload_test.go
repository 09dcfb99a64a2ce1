package engine

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daryltucker/workload-bench/internal/config"
	"github.com/daryltucker/workload-bench/internal/mcp"
	"github.com/daryltucker/workload-bench/internal/model"
	"github.com/daryltucker/workload-bench/internal/target"
)

// scriptedSession answers tools/call from per-tool scripts. The last entry
// of a script repeats once the earlier ones are used up.
type scriptedSession struct {
	scripts map[string][]mcp.CallOutcome
	calls   []model.ToolCall
	exited  bool
}

func (s *scriptedSession) CallTool(call model.ToolCall, _ time.Duration) mcp.CallOutcome {
	s.calls = append(s.calls, call)
	script := s.scripts[call.Name]
	if len(script) == 0 {
		return mcp.CallOutcome{Err: errors.New("unscripted tool " + call.Name)}
	}
	out := script[0]
	if len(script) > 1 {
		s.scripts[call.Name] = script[1:]
	}
	var exitErr *mcp.ExitedError
	if errors.As(out.Err, &exitErr) {
		s.exited = true
	}
	return out
}

func (s *scriptedSession) Exited() bool { return s.exited }

func resultOutcome(t *testing.T, result any) mcp.CallOutcome {
	t.Helper()
	res, err := json.Marshal(result)
	require.NoError(t, err)
	raw, err := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": 1001, "result": json.RawMessage(res)})
	require.NoError(t, err)
	return mcp.CallOutcome{
		ID:        1001,
		Elapsed:   3 * time.Millisecond,
		BytesRead: len(raw) + 1,
		Response:  &mcp.Response{ID: 1001, Result: res, Raw: raw},
	}
}

func textResult(text string) map[string]any {
	return map[string]any{"content": []any{map[string]any{"type": "text", "text": text}}}
}

func errorOutcome(message string) mcp.CallOutcome {
	raw := []byte(`{"jsonrpc":"2.0","id":1001,"error":{"code":-32000,"message":"` + message + `"}}`)
	return mcp.CallOutcome{
		ID:        1001,
		BytesRead: len(raw) + 1,
		Response:  &mcp.Response{ID: 1001, HasError: true, Error: &mcp.RPCError{Code: -32000, Message: message}, Raw: raw},
	}
}

func testRunContext(t *testing.T, workloads ...string) *RunContext {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Output = filepath.Join(t.TempDir(), "normalized_workloads_unit.json")
	cfg.Iterations = 3
	cfg.Warmup = 1
	cfg.Workloads = workloads
	rc, err := NewRunContext(cfg, Options{Lookup: func(string) (string, bool) { return "", false }})
	require.NoError(t, err)
	return rc
}

func longPayload() map[string]any {
	items := make([]any, 0, 4)
	for i := 0; i < 4; i++ {
		items = append(items, map[string]any{"text": "a reasonably long message body used to pass the byte threshold", "id": i})
	}
	return map[string]any{"messages": items}
}

func TestWorkloadRunnerMeasuresAndClassifies(t *testing.T) {
	rc := testRunContext(t, config.WorkloadRecent)
	body, err := json.Marshal(longPayload())
	require.NoError(t, err)
	ok := resultOutcome(t, textResult(string(body)))
	session := &scriptedSession{scripts: map[string][]mcp.CallOutcome{"recent": {ok}}}
	spec := model.ServerSpec{Name: "stub", Workloads: map[string]model.ToolCall{config.WorkloadRecent: {Name: "recent"}}}
	server := model.NewServerRunResult(spec)

	r := newWorkloadRunner(rc, spec, server, session, map[string]bool{"recent": true})
	require.NoError(t, r.runAll())

	require.Len(t, server.Workloads, 1)
	w := server.Workloads[0]
	assert.Equal(t, "recent", w.ToolNameText())
	require.Len(t, w.WarmupResults, 1)
	require.Len(t, w.Results, 3)
	for i, c := range w.Results {
		assert.Equal(t, i+1, c.Iteration)
		assert.True(t, c.OK)
		assert.Equal(t, model.StatusOKValid, c.ValidationStatus)
		assert.Nil(t, c.ValidationReason)
		require.NotNil(t, c.PayloadBytes)
		assert.Greater(t, *c.PayloadBytes, 200)
		assert.Equal(t, 4, *c.PayloadItemCount)
		assert.NotNil(t, c.PayloadTokensEst)
		assert.Equal(t, ok.BytesRead, *c.StdoutBytes)
	}
	assert.Contains(t, r.samples, config.WorkloadRecent)
	assert.Len(t, session.calls, 4)

	loaded := rc.Checkpoint.Document().Server("stub")
	require.NotNil(t, loaded)
	assert.Len(t, loaded.Workloads[0].Results, 3)
}

func TestWorkloadRunnerDropsOutOfRangeTokens(t *testing.T) {
	rc := testRunContext(t, config.WorkloadRecent)
	rc.MaxPayloadTokens = 1
	rc.Config.Warmup = 0
	rc.Config.Iterations = 1
	session := &scriptedSession{scripts: map[string][]mcp.CallOutcome{"recent": {resultOutcome(t, longPayload())}}}
	spec := model.ServerSpec{Name: "stub", Workloads: map[string]model.ToolCall{config.WorkloadRecent: {Name: "recent"}}}
	server := model.NewServerRunResult(spec)

	require.NoError(t, newWorkloadRunner(rc, spec, server, session, map[string]bool{"recent": true}).runAll())
	c := server.Workloads[0].Results[0]
	assert.NotNil(t, c.PayloadBytes, "bytes are kept")
	assert.Nil(t, c.PayloadTokensEst)

	rc.MaxPayloadTokens = 2_500_000
	rc.MaxPayloadBytes = 10
	session.scripts["recent"] = []mcp.CallOutcome{resultOutcome(t, longPayload())}
	server = model.NewServerRunResult(spec)
	require.NoError(t, newWorkloadRunner(rc, spec, server, session, map[string]bool{"recent": true}).runAll())
	assert.Nil(t, server.Workloads[0].Results[0].PayloadTokensEst)
}

func TestWorkloadRunnerAbandonsAfterFailure(t *testing.T) {
	rc := testRunContext(t, config.WorkloadRecent, config.WorkloadSearch)
	rc.Config.Warmup = 0
	session := &scriptedSession{scripts: map[string][]mcp.CallOutcome{
		"recent": {resultOutcome(t, longPayload()), errorOutcome("boom")},
		"search": {{Err: mcp.ErrTimeout}},
	}}
	spec := model.ServerSpec{Name: "stub", Workloads: map[string]model.ToolCall{
		config.WorkloadRecent: {Name: "recent"},
		config.WorkloadSearch: {Name: "search"},
	}}
	server := model.NewServerRunResult(spec)
	require.NoError(t, newWorkloadRunner(rc, spec, server, session, map[string]bool{"recent": true, "search": true}).runAll())
	Finalize(server)

	recent := server.Workload(config.WorkloadRecent)
	require.Len(t, recent.Results, 2)
	assert.Equal(t, model.StatusFail, recent.Results[1].ValidationStatus)
	assert.Equal(t, "boom", *recent.Results[1].ValidationReason)
	assert.Equal(t, []string{"abandoned after iteration 2: boom"}, recent.Notes)
	assert.Equal(t, model.WorkloadOKValid, recent.Status)

	search := server.Workload(config.WorkloadSearch)
	require.Len(t, search.Results, 1)
	assert.Equal(t, model.StatusFailTimeout, search.Results[0].ValidationStatus)
	assert.Equal(t, model.WorkloadFailTimeout, search.Status)
}

func TestWorkloadRunnerWarmupTimeoutIsFailTimeout(t *testing.T) {
	rc := testRunContext(t, config.WorkloadSearch)
	require.Equal(t, 1, rc.Config.Warmup)
	session := &scriptedSession{scripts: map[string][]mcp.CallOutcome{"search": {{Err: mcp.ErrTimeout}}}}
	spec := model.ServerSpec{Name: "stub", Workloads: map[string]model.ToolCall{config.WorkloadSearch: {Name: "search"}}}
	server := model.NewServerRunResult(spec)
	require.NoError(t, newWorkloadRunner(rc, spec, server, session, map[string]bool{"search": true}).runAll())
	Finalize(server)

	search := server.Workload(config.WorkloadSearch)
	assert.Len(t, session.calls, 1)
	assert.Len(t, search.WarmupResults, 1)
	assert.Empty(t, search.Results)
	assert.Equal(t, []string{"abandoned after warmup 1: TIMEOUT"}, search.Notes)
	assert.Equal(t, model.WorkloadFailTimeout, search.Status)
}

func TestWorkloadRunnerStopsAfterExit(t *testing.T) {
	rc := testRunContext(t, config.WorkloadUnread, config.WorkloadRecent)
	session := &scriptedSession{scripts: map[string][]mcp.CallOutcome{
		"unread": {{Err: &mcp.ExitedError{Code: 3}}},
	}}
	spec := model.ServerSpec{Name: "stub", Workloads: map[string]model.ToolCall{
		config.WorkloadUnread: {Name: "unread"},
		config.WorkloadRecent: {Name: "recent"},
	}}
	server := model.NewServerRunResult(spec)
	require.NoError(t, newWorkloadRunner(rc, spec, server, session, map[string]bool{"unread": true, "recent": true}).runAll())
	Finalize(server)

	unread := server.Workload(config.WorkloadUnread)
	assert.Len(t, unread.WarmupResults, 1)
	assert.Empty(t, unread.Results)
	assert.Equal(t, []string{"abandoned after warmup 1: EXITED(3)"}, unread.Notes)
	assert.Equal(t, model.WorkloadFail, unread.Status)

	recent := server.Workload(config.WorkloadRecent)
	assert.Equal(t, []string{"server exited: EXITED(3)"}, recent.Notes)
	assert.Equal(t, model.WorkloadFail, recent.Status)
	assert.Len(t, session.calls, 1)
}

func TestWorkloadRunnerSkipNotes(t *testing.T) {
	rc := testRunContext(t, config.WorkloadUnread, config.WorkloadRecent, config.WorkloadThread)
	session := &scriptedSession{scripts: map[string][]mcp.CallOutcome{}}
	spec := model.ServerSpec{Name: "stub", Workloads: map[string]model.ToolCall{
		config.WorkloadRecent: {Name: "recent_v2"},
		config.WorkloadThread: {Name: "thread", Args: map[string]any{"chat": model.Placeholder}},
	}}
	server := model.NewServerRunResult(spec)
	require.NoError(t, newWorkloadRunner(rc, spec, server, session, map[string]bool{"thread": true}).runAll())
	Finalize(server)

	assert.Equal(t, []string{NoteNoMapping}, server.Workload(config.WorkloadUnread).Notes)
	assert.Equal(t, []string{"tool not found: recent_v2"}, server.Workload(config.WorkloadRecent).Notes)
	thread := server.Workload(config.WorkloadThread)
	assert.Equal(t, []string{target.NoteMissingSelector}, thread.Notes)
	assert.Equal(t, model.WorkloadFail, thread.Status)
	for _, w := range server.Workloads[:2] {
		assert.Equal(t, model.WorkloadUnsupported, w.Status)
	}
	assert.Empty(t, session.calls)
}

func TestWorkloadRunnerSubstitutesFallbackTarget(t *testing.T) {
	rc := testRunContext(t, config.WorkloadThread)
	rc.FallbackTarget = "+15550001111"
	rc.Config.Warmup = 0
	rc.Config.Iterations = 1
	session := &scriptedSession{scripts: map[string][]mcp.CallOutcome{"thread": {resultOutcome(t, longPayload())}}}
	spec := model.ServerSpec{Name: "stub", Workloads: map[string]model.ToolCall{
		config.WorkloadThread: {Name: "thread", Args: map[string]any{"participants": []any{model.Placeholder}, "limit": 1}},
	}}
	server := model.NewServerRunResult(spec)
	require.NoError(t, newWorkloadRunner(rc, spec, server, session, map[string]bool{"thread": true}).runAll())

	require.Len(t, session.calls, 1)
	assert.Equal(t, []any{"+15550001111"}, session.calls[0].Args["participants"])
	assert.Equal(t, model.Placeholder, spec.Workloads[config.WorkloadThread].Args["participants"].([]any)[0], "mapping args are not mutated")
}
