/*
PURPOSE:
  High-level runner that orchestrates a benchmark run.
  Loops through servers -> workloads -> iterations over one stdio session
  per server, checkpointing as it goes, then writes the headline reports.

REQUIREMENTS:
  User-specified:
  - Servers run strictly one after another; one session per server.
  - Preflight must pass before anything is spawned.
  - Per-call failures never abort the run.

  Implementation-discovered:
  - Missing binaries are recorded as skipped servers instead of spawn errors.
  - A panic while driving one server must not lose the other servers.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli
  - Uses: internal/mcp, internal/target, internal/payload, internal/output

ERROR HANDLING:
  - Logs errors but continues (resilience).
  - Returns an error only for preflight failure, an unwritable output file
    or cancellation.

IMPLEMENTATION RULES:
  - Preflight, then for each server: command check, spawn, initialize,
    tools/list, workloads, finalize, checkpoint, publish.
  - Reports are written even when the run is cancelled.
  - A failed call abandons only the rest of its workload. The session stays
    up for the next workload unless the server process has exited, in which
    case the remaining workloads are noted as "server exited" and the
    session is torn down with the server.

USAGE:
  doc, err := engine.Run(ctx, cfg, engine.Options{})

SELF-HEALING INSTRUCTIONS:
  - If a server hangs the run, lower --call-timeout; reads are bounded.

RELATED FILES:
  - internal/engine/workload.go
  - internal/engine/aggregate.go
  - internal/mcp/session.go

MAINTENANCE:
  - Update the driver when adding a new session phase.
*/

package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/daryltucker/workload-bench/internal/config"
	"github.com/daryltucker/workload-bench/internal/mcp"
	"github.com/daryltucker/workload-bench/internal/model"
	"github.com/daryltucker/workload-bench/internal/output"
	"github.com/daryltucker/workload-bench/internal/payload"
)

// Skip notes.
const (
	noteCommandNotFound  = "SKIPPED: command not found: "
	noteCommandNotInPath = "SKIPPED: command not in PATH: "
	noteException        = "exception: "
)

// Run executes the full benchmark run described by cfg and returns the final
// document.
func Run(ctx context.Context, cfg *config.Config, opts Options) (*model.Document, error) {
	commands := opts.Commands
	if commands == nil {
		commands = ExecRunner{}
	}

	if !opts.SkipPreflight {
		if err := Preflight(ctx, commands, cfg.Preflight); err != nil {
			return nil, err
		}
	}

	rc, err := NewRunContext(cfg, opts)
	if err != nil {
		return nil, err
	}
	rc.Document.Metadata.NodeVersion = NodeVersion(ctx, commands)

	if err := rc.Checkpoint.Flush(); err != nil {
		return nil, fmt.Errorf("failed to write output %s: %w", cfg.Output, err)
	}
	rc.publishRun(ctx)

	servers := config.FilterServers(cfg.Servers, cfg.ServerFilter)
	output.Logger.Info("Starting run",
		"run_id", rc.RunID(),
		"servers", len(servers),
		"workloads", rc.Document.Metadata.Workloads,
		"iterations", cfg.Iterations,
		"warmup", cfg.Warmup,
	)

	var runErr error
	for _, spec := range servers {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		output.Logger.Info("Testing server", "server", spec.Name)

		result, err := rc.RunServer(spec)
		if err != nil {
			runErr = err
			break
		}
		if err := rc.Checkpoint.Persist(result); err != nil {
			runErr = fmt.Errorf("failed to write output %s: %w", cfg.Output, err)
			break
		}
		rc.publishServer(ctx, result)
		logServerSummary(result)
	}

	status := "completed"
	if runErr != nil {
		status = "failed"
	}
	if _, err := output.GenerateReports(rc.Document, cfg.Output); err != nil {
		output.Logger.Error("Failed to write reports", "error", err)
		runErr = errors.Join(runErr, err)
		status = "failed"
	}
	rc.finishRun(ctx, status)
	output.Logger.Info("Saved results", "path", cfg.Output, "status", status)
	return rc.Document, runErr
}

// CommandNote checks that the server binary can be started. It returns the
// skip note, or "" when the command is available.
func CommandNote(command string) string {
	if strings.ContainsRune(command, os.PathSeparator) || strings.HasPrefix(command, ".") {
		if _, err := os.Stat(command); err != nil {
			return noteCommandNotFound + command
		}
		return ""
	}
	if _, err := exec.LookPath(command); err != nil {
		return noteCommandNotInPath + command
	}
	return ""
}

// RunServer drives one server end to end. Problems with the server itself
// end up as notes on the result; the returned error is reserved for an
// unwritable checkpoint.
func (rc *RunContext) RunServer(spec model.ServerSpec) (result *model.ServerRunResult, err error) {
	result = model.NewServerRunResult(spec)

	if note := CommandNote(spec.Command); note != "" {
		result.Notes = append(result.Notes, note)
		output.Logger.Warn("Skipping server", "server", spec.Name, "reason", note)
		if spec.InstallHint != "" {
			output.Logger.Info("Install hint", "server", spec.Name, "hint", spec.InstallHint)
		}
		return result, nil
	}

	defer func() {
		if p := recover(); p != nil {
			result.Notes = append(result.Notes, fmt.Sprintf("%s%v", noteException, p))
			Finalize(result)
			output.Logger.Error("Server run panicked", "server", spec.Name, "panic", p)
			err = nil
		}
	}()

	if driveErr := rc.drive(spec, result); driveErr != nil {
		var cpErr *checkpointError
		if errors.As(driveErr, &cpErr) {
			return result, cpErr
		}
		result.Notes = append(result.Notes, noteException+driveErr.Error())
		Finalize(result)
		output.Logger.Error("Server run failed", "server", spec.Name, "error", driveErr)
	}
	return result, nil
}

// drive runs the session phases and the workloads. Handshake failures are
// recorded on result and are not errors.
func (rc *RunContext) drive(spec model.ServerSpec, result *model.ServerRunResult) error {
	cfg := rc.Config
	session, err := mcp.Start(spec, mcp.Options{PollInterval: cfg.PollInterval, ClientVersion: rc.ClientVersion})
	if err != nil {
		return err
	}
	defer session.Close()

	initPhase, err := session.Initialize(cfg.ProtocolVersions, cfg.PhaseTimeout)
	result.SessionInitialize = initPhase
	if err != nil || !initPhase.OK {
		output.Logger.Warn("Initialize failed", "server", spec.Name, "error", err)
		return nil
	}
	output.Logger.Info("Initialized", "server", spec.Name, "protocol", session.ProtocolVersion(), "ms", fmt.Sprintf("%.1f", initPhase.MS))

	listPhase, tools, err := session.ListTools(cfg.PhaseTimeout)
	result.SessionListTools = listPhase
	if err != nil || !listPhase.OK {
		output.Logger.Warn("tools/list failed", "server", spec.Name, "error", err)
		return nil
	}
	output.Logger.Info("Listed tools", "server", spec.Name, "count", len(tools))

	runner := newWorkloadRunner(rc, spec, result, session, mcp.ToolNames(tools))
	if err := runner.runAll(); err != nil {
		return err
	}

	for _, ids := range payload.DetectDuplicates(result.Workloads, cfg.StrictValidity) {
		output.Logger.Warn("Identical payloads across workloads", "server", spec.Name, "workloads", ids)
	}
	Finalize(result)

	n, err := output.WriteDebugPayloads(cfg.Output, rc.RunLabel, result, runner.samples, rc.Policy.MinBytes, rc.Policy.MinItems)
	if err != nil {
		output.Logger.Error("Failed to write debug payloads", "server", spec.Name, "error", err)
	} else if n > 0 {
		output.Logger.Info("Wrote debug payloads", "server", spec.Name, "count", n,
			"dir", output.DebugDir(cfg.Output, rc.RunLabel, spec.Name))
	}
	return nil
}

func (rc *RunContext) publishRun(ctx context.Context) {
	if rc.Sink == nil {
		return
	}
	if err := rc.Sink.CreateRun(ctx, rc.Document); err != nil {
		output.Logger.Error("Failed to record run in store", "error", err)
	}
}

func (rc *RunContext) publishServer(ctx context.Context, result *model.ServerRunResult) {
	if rc.Sink == nil {
		return
	}
	if err := rc.Sink.UpsertServerResult(ctx, rc.RunID(), result); err != nil {
		output.Logger.Error("Failed to store server result", "server", result.Name, "error", err)
	}
}

func (rc *RunContext) finishRun(ctx context.Context, status string) {
	if rc.Sink == nil {
		return
	}
	if err := rc.Sink.FinishRun(context.WithoutCancel(ctx), rc.RunID(), status); err != nil {
		output.Logger.Error("Failed to finish run in store", "error", err)
	}
}

func logServerSummary(result *model.ServerRunResult) {
	attrs := []any{"server", result.Name}
	if p := result.SessionInitialize; p != nil {
		attrs = append(attrs, "initialize_ok", p.OK, "initialize_ms", fmt.Sprintf("%.1f", p.MS))
	}
	if p := result.SessionListTools; p != nil {
		attrs = append(attrs, "list_tools_ok", p.OK, "list_tools_ms", fmt.Sprintf("%.1f", p.MS))
	}
	for _, w := range result.Workloads {
		attrs = append(attrs, w.WorkloadID, string(w.Status))
	}
	if len(result.Notes) > 0 {
		attrs = append(attrs, "notes", strings.Join(result.Notes, "; "))
	}
	output.Logger.Info("Server summary", attrs...)
}
