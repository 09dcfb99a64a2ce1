package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daryltucker/workload-bench/internal/config"
	"github.com/daryltucker/workload-bench/internal/mcp/mcptest"
	"github.com/daryltucker/workload-bench/internal/model"
	"github.com/daryltucker/workload-bench/internal/output"
)

func TestMain(m *testing.M) {
	if mcptest.IsFakeServer() {
		os.Exit(mcptest.Serve(os.Stdin, os.Stdout, os.Stderr))
	}
	os.Exit(m.Run())
}

type recordingSink struct {
	mu      sync.Mutex
	runs    []string
	servers []string
	status  string
}

func (s *recordingSink) CreateRun(_ context.Context, doc *model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, doc.Metadata.RunID)
	return nil
}

func (s *recordingSink) UpsertServerResult(_ context.Context, _ string, server *model.ServerRunResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.servers = append(s.servers, server.Name)
	return nil
}

func (s *recordingSink) FinishRun(_ context.Context, _ string, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	return nil
}

func fakeConfig(t *testing.T, servers ...model.ServerSpec) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Output = filepath.Join(t.TempDir(), "normalized_workloads_it.json")
	cfg.Iterations = 2
	cfg.Warmup = 1
	cfg.PhaseTimeout = 5 * time.Second
	cfg.CallTimeout = 2 * time.Second
	cfg.PollInterval = 20 * time.Millisecond
	cfg.Servers = servers
	return cfg
}

func noEnv(string) (string, bool) { return "", false }

func TestRunAgainstFakeServers(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns helper processes")
	}
	cfg := fakeConfig(t,
		mcptest.Spec("fake good", mcptest.ModeNoise, mcptest.ModeStderr),
		mcptest.Spec("fake duplicate", mcptest.ModeDuplicate),
		mcptest.Spec("fake crash", mcptest.ModeCrashOnCall),
		model.ServerSpec{Name: "missing", Command: "./does/not/exist"},
	)
	sink := &recordingSink{}

	doc, err := Run(context.Background(), cfg, Options{
		SkipPreflight: true,
		Commands:      &stubRunner{stdout: "v20.11.0\n"},
		Sink:          sink,
		Lookup:        noEnv,
	})
	require.NoError(t, err)
	require.Len(t, doc.Servers, 4)
	assert.Equal(t, "v20.11.0", doc.Metadata.NodeVersion)
	assert.Equal(t, "it", doc.Metadata.RunLabel)
	assert.Equal(t, []string{"W0_UNREAD", "W1_RECENT", "W2_SEARCH", "W3_THREAD"}, doc.Metadata.Workloads)

	good := doc.Server("fake good")
	require.NotNil(t, good)
	require.NotNil(t, good.SessionInitialize)
	assert.True(t, good.SessionInitialize.OK)
	assert.True(t, good.SessionListTools.OK)
	assert.Equal(t, model.WorkloadOKEmpty, good.Workload("W0_UNREAD").Status)
	for _, id := range []string{"W1_RECENT", "W2_SEARCH", "W3_THREAD"} {
		w := good.Workload(id)
		require.NotNil(t, w, id)
		assert.Equal(t, model.WorkloadOKValid, w.Status, "%s notes: %v", id, w.Notes)
		assert.Len(t, w.WarmupResults, 1)
		assert.Len(t, w.Results, 2)
		assert.Equal(t, 2, w.ValidSummary.OK)
	}
	assert.Equal(t, "get_thread", good.Workload("W3_THREAD").ToolNameText())

	dup := doc.Server("fake duplicate")
	require.NotNil(t, dup)
	for _, id := range []string{"W1_RECENT", "W2_SEARCH"} {
		w := dup.Workload(id)
		assert.Equal(t, model.WorkloadOKEmpty, w.Status)
		assert.Contains(t, w.Notes, "suspicious: identical payload across workloads W1_RECENT, W2_SEARCH")
		assert.Equal(t, []string{"duplicate_payload"}, w.ValidationSummary.TopReasons)
	}
	assert.Equal(t, model.WorkloadOKValid, dup.Workload("W3_THREAD").Status)

	crash := doc.Server("fake crash")
	require.NotNil(t, crash)
	assert.Equal(t, []string{"abandoned after warmup 1: EXITED(3)"}, crash.Workload("W0_UNREAD").Notes)
	for _, w := range crash.Workloads {
		assert.Equal(t, model.WorkloadFail, w.Status, w.WorkloadID)
	}
	assert.Contains(t, crash.Workload("W1_RECENT").Notes, "server exited: EXITED(3)")

	missing := doc.Server("missing")
	require.NotNil(t, missing)
	assert.Equal(t, []string{"SKIPPED: command not found: ./does/not/exist"}, missing.Notes)
	assert.Nil(t, missing.SessionInitialize)

	persisted, err := output.ReadDocument(cfg.Output)
	require.NoError(t, err)
	assert.Len(t, persisted.Servers, 4)
	assert.Equal(t, doc.Metadata.RunID, persisted.Metadata.RunID)

	dir := filepath.Dir(cfg.Output)
	assert.FileExists(t, filepath.Join(dir, "headline_server_summary_it.csv"))
	assert.FileExists(t, filepath.Join(dir, "headline_workload_rankings_it.csv"))
	assert.FileExists(t, filepath.Join(dir, "headline_tables_it.md"))
	assert.FileExists(t, filepath.Join(output.DebugDir(cfg.Output, "it", "fake good"), "W0_UNREAD.json"))
	assert.FileExists(t, filepath.Join(output.DebugDir(cfg.Output, "it", "fake duplicate"), "manifest.json"))

	assert.Len(t, sink.runs, 1)
	assert.Equal(t, []string{"fake good", "fake duplicate", "fake crash", "missing"}, sink.servers)
	assert.Equal(t, "completed", sink.status)
}

func TestRunServerFilter(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns helper processes")
	}
	cfg := fakeConfig(t, mcptest.Spec("fake alpha"), mcptest.Spec("fake beta", mcptest.ModeRejectOld))
	cfg.ServerFilter = "BETA"
	cfg.Workloads = []string{"W1_RECENT"}

	doc, err := Run(context.Background(), cfg, Options{SkipPreflight: true, Commands: &stubRunner{code: 1}, Lookup: noEnv})
	require.NoError(t, err)
	require.Len(t, doc.Servers, 1)
	beta := doc.Servers[0]
	assert.Equal(t, "fake beta", beta.Name)
	assert.True(t, beta.SessionInitialize.OK)
	assert.Empty(t, doc.Metadata.NodeVersion)
	require.Len(t, beta.Workloads, 1)
	assert.Equal(t, model.WorkloadOKValid, beta.Workloads[0].Status)
}

func TestRunSilentServerTimesOut(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns helper processes")
	}
	cfg := fakeConfig(t, mcptest.Spec("fake silent", mcptest.ModeSilent))
	cfg.PhaseTimeout = 300 * time.Millisecond
	cfg.ProtocolVersions = []string{"2025-06-18"}

	doc, err := Run(context.Background(), cfg, Options{SkipPreflight: true, Commands: &stubRunner{}, Lookup: noEnv})
	require.NoError(t, err)
	silent := doc.Server("fake silent")
	require.NotNil(t, silent)
	require.NotNil(t, silent.SessionInitialize)
	assert.False(t, silent.SessionInitialize.OK)
	assert.Equal(t, "TIMEOUT", *silent.SessionInitialize.Error)
	assert.Nil(t, silent.SessionListTools)
	assert.Empty(t, silent.Workloads)
}

func TestRunStopsOnPreflightFailure(t *testing.T) {
	cfg := fakeConfig(t, mcptest.Spec("never started"))
	runner := &stubRunner{stderr: "no access", code: 1}

	doc, err := Run(context.Background(), cfg, Options{Commands: runner, Lookup: noEnv})
	require.ErrorIs(t, err, ErrPreflight)
	assert.Nil(t, doc)
	assert.NoFileExists(t, cfg.Output)
	require.Len(t, runner.calls, 1)
	assert.Equal(t, "python3", runner.calls[0].name)
}

func TestRunCancelled(t *testing.T) {
	cfg := fakeConfig(t, mcptest.Spec("fake one"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	doc, err := Run(ctx, cfg, Options{SkipPreflight: true, Commands: &stubRunner{}, Lookup: noEnv})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, doc)
	assert.Empty(t, doc.Servers)
	assert.FileExists(t, cfg.Output)
	assert.FileExists(t, filepath.Join(filepath.Dir(cfg.Output), "headline_tables_it.md"))
}
