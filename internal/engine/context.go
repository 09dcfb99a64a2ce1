/*
PURPOSE:
  Owns everything a run shares across servers: the selected workloads, the
  validation policy, payload limits, the fallback target, the checkpointer
  and the optional results sink.

REQUIREMENTS:
  User-specified:
  - Thresholds resolve CLI override > BENCH_MIN_<W>_BYTES|ITEMS > file/default.
  - The run document records the settings it was produced with.

  Implementation-discovered:
  - No package-level mutable state; tests build their own RunContext.

ARCHITECTURE INTEGRATION:
  - Built by: engine.Run
  - Used by: the server driver and workload runner

ERROR HANDLING:
  - Only workload selection can fail; the CLI validates it first.

RELATED FILES:
  - internal/engine/runner.go
  - internal/config/thresholds.go
*/

package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/daryltucker/workload-bench/internal/config"
	"github.com/daryltucker/workload-bench/internal/model"
	"github.com/daryltucker/workload-bench/internal/output"
	"github.com/daryltucker/workload-bench/internal/payload"
)

// ResultSink receives results as a run progresses. Sink failures are logged
// and never stop the run.
type ResultSink interface {
	CreateRun(ctx context.Context, doc *model.Document) error
	UpsertServerResult(ctx context.Context, runID string, server *model.ServerRunResult) error
	FinishRun(ctx context.Context, runID, status string) error
}

// Options adjusts a run beyond what the config file holds.
type Options struct {
	MinBytesOverrides map[string]int
	MinItemsOverrides map[string]int
	// Lookup reads BENCH_MIN_* variables; nil means the process environment.
	Lookup config.LookupFunc
	// Commands runs the preflight and `node --version`; nil means ExecRunner.
	Commands      CommandRunner
	SkipPreflight bool
	Sink          ResultSink
	ClientVersion string
}

// RunContext is the state shared by every server of one run.
type RunContext struct {
	Config           *config.Config
	Workloads        []model.WorkloadSpec
	Policy           payload.Policy
	MaxPayloadBytes  int
	MaxPayloadTokens int
	FallbackTarget   string
	RunLabel         string
	ClientVersion    string
	Document         *model.Document
	Checkpoint       *output.Checkpointer
	Sink             ResultSink
}

// NewRunContext resolves workloads and thresholds and starts an empty
// document for cfg.Output.
func NewRunContext(cfg *config.Config, opts Options) (*RunContext, error) {
	workloads, err := config.SelectWorkloads(cfg.Workloads)
	if err != nil {
		return nil, err
	}
	minBytes := config.BuildThresholds(workloads, opts.MinBytesOverrides, cfg.MinBytes, "BYTES", opts.Lookup)
	minItems := config.BuildThresholds(workloads, opts.MinItemsOverrides, cfg.MinItems, "ITEMS", opts.Lookup)

	ids := make([]string, len(workloads))
	for i, w := range workloads {
		ids[i] = w.ID
	}
	label := output.RunLabel(cfg.Output)

	doc := &model.Document{
		GeneratedAt: time.Now().Format(time.RFC3339),
		Metadata: model.Metadata{
			RunID:            uuid.NewString(),
			Mode:             model.Mode,
			Iterations:       cfg.Iterations,
			Warmup:           cfg.Warmup,
			PhaseTimeoutS:    cfg.PhaseTimeout.Seconds(),
			CallTimeoutS:     cfg.CallTimeout.Seconds(),
			Workloads:        ids,
			RunLabel:         label,
			ProtocolVersions: cfg.ProtocolVersions,
			Validation: model.ValidationConfig{
				StrictValidity:   cfg.StrictValidity,
				MinBytes:         minBytes,
				MinItems:         minItems,
				MaxPayloadBytes:  cfg.Env.MaxPayloadBytes,
				MaxPayloadTokens: cfg.Env.MaxPayloadTokens,
			},
		},
		Servers: []*model.ServerRunResult{},
	}

	return &RunContext{
		Config:           cfg,
		Workloads:        workloads,
		Policy:           payload.Policy{Strict: cfg.StrictValidity, MinBytes: minBytes, MinItems: minItems},
		MaxPayloadBytes:  cfg.Env.MaxPayloadBytes,
		MaxPayloadTokens: cfg.Env.MaxPayloadTokens,
		FallbackTarget:   cfg.Env.FallbackTarget(),
		RunLabel:         label,
		ClientVersion:    opts.ClientVersion,
		Document:         doc,
		Checkpoint:       output.NewCheckpointer(cfg.Output, doc),
		Sink:             opts.Sink,
	}, nil
}

// RunID is the id of the current run.
func (rc *RunContext) RunID() string {
	return rc.Document.Metadata.RunID
}
