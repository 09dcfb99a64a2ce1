package engine

import (
	"fmt"
	"time"

	"github.com/daryltucker/workload-bench/internal/mcp"
	"github.com/daryltucker/workload-bench/internal/model"
	"github.com/daryltucker/workload-bench/internal/output"
	"github.com/daryltucker/workload-bench/internal/payload"
	"github.com/daryltucker/workload-bench/internal/target"
)

// Notes recorded on workloads that never ran.
const (
	NoteNoMapping       = "unsupported workload (no tool mapping)"
	noteToolNotFound    = "tool not found: "
	noteServerExited    = "server exited: "
	noteAbandonedFormat = "abandoned after %s %d: %s"
)

// ToolSession is the part of a live server session the workload runner uses.
type ToolSession interface {
	CallTool(call model.ToolCall, timeout time.Duration) mcp.CallOutcome
	Exited() bool
}

// checkpointError is fatal: the document can no longer be written.
type checkpointError struct{ err error }

func (e *checkpointError) Error() string { return "checkpoint: " + e.err.Error() }
func (e *checkpointError) Unwrap() error { return e.err }

// workloadRunner runs the workloads of one server over one session.
type workloadRunner struct {
	rc        *RunContext
	spec      model.ServerSpec
	server    *model.ServerRunResult
	session   ToolSession
	resolver  *target.Resolver
	toolNames map[string]bool
	// samples holds the first ok measured result per workload.
	samples map[string]any
	// exited is the error of the call that found the server gone.
	exited string
}

func newWorkloadRunner(rc *RunContext, spec model.ServerSpec, server *model.ServerRunResult, session ToolSession, toolNames map[string]bool) *workloadRunner {
	return &workloadRunner{
		rc:        rc,
		spec:      spec,
		server:    server,
		session:   session,
		resolver:  target.NewResolver(spec.Name, spec.Target, session, rc.Config.CallTimeout, rc.FallbackTarget),
		toolNames: toolNames,
		samples:   map[string]any{},
	}
}

func (r *workloadRunner) persist() error {
	if err := r.rc.Checkpoint.Persist(r.server); err != nil {
		return &checkpointError{err: err}
	}
	return nil
}

// runAll runs every selected workload in order.
func (r *workloadRunner) runAll() error {
	for _, w := range r.rc.Workloads {
		if err := r.run(w); err != nil {
			return err
		}
	}
	return nil
}

// run executes one workload. The result is attached to the server before the
// first call so checkpoints show work in progress.
func (r *workloadRunner) run(w model.WorkloadSpec) error {
	res := model.NewWorkloadResult(w)
	r.server.Workloads = append(r.server.Workloads, res)

	mapping, ok := r.spec.Workloads[w.ID]
	if !ok {
		res.Notes = append(res.Notes, NoteNoMapping)
		return nil
	}
	if !r.toolNames[mapping.Name] {
		res.Notes = append(res.Notes, noteToolNotFound+mapping.Name)
		return nil
	}
	res.ToolName = model.Ptr(mapping.Name)

	if r.exited != "" {
		res.Notes = append(res.Notes, noteServerExited+r.exited)
		return nil
	}

	call := model.ToolCall{Name: mapping.Name, Args: mapping.Args}
	if target.NeedsTarget(mapping.Args) {
		value, note := r.resolver.Resolve()
		if note != "" {
			res.Notes = append(res.Notes, note)
			return nil
		}
		call.Args = target.Substitute(mapping.Args, value)
	}

	cfg := r.rc.Config
	for i := 1; i <= cfg.Warmup; i++ {
		c, _ := r.call(call, fmt.Sprintf("%s %s warmup", r.spec.Name, w.ID))
		c.Iteration = i
		r.rc.Policy.Classify(w.ID, &c)
		res.WarmupResults = append(res.WarmupResults, c)
		r.log(w.ID, "warmup", i, c, mapping.Name)
		if err := r.persist(); err != nil {
			return err
		}
		if !c.OK {
			r.abandon(res, "warmup", i, c)
			return nil
		}
	}

	for i := 1; i <= cfg.Iterations; i++ {
		c, outcome := r.call(call, fmt.Sprintf("%s %s %d/%d", r.spec.Name, w.ID, i, cfg.Iterations))
		c.Iteration = i
		r.rc.Policy.Classify(w.ID, &c)
		if c.OK {
			r.keepSample(w.ID, outcome)
		}
		res.Results = append(res.Results, c)
		r.log(w.ID, "iteration", i, c, mapping.Name)
		if err := r.persist(); err != nil {
			return err
		}
		if !c.OK {
			r.abandon(res, "iteration", i, c)
			return nil
		}
	}
	return nil
}

func (r *workloadRunner) abandon(res *model.WorkloadResult, phase string, i int, c model.CallResult) {
	res.Notes = append(res.Notes, fmt.Sprintf(noteAbandonedFormat, phase, i, c.ErrorText()))
	if r.session.Exited() {
		r.exited = c.ErrorText()
		output.Logger.Warn("Server exited", "server", r.spec.Name, "error", r.exited)
	}
}

func (r *workloadRunner) keepSample(workloadID string, outcome mcp.CallOutcome) {
	if _, ok := r.samples[workloadID]; ok || outcome.Response == nil || len(outcome.Response.Result) == 0 {
		return
	}
	if v, err := payload.Decode(outcome.Response.Result); err == nil && v != nil {
		r.samples[workloadID] = v
	}
}

// call issues one tools/call and turns the outcome into a CallResult with
// payload metrics. label names the call in metric-drop logs.
func (r *workloadRunner) call(call model.ToolCall, label string) (model.CallResult, mcp.CallOutcome) {
	outcome := r.session.CallTool(call, r.rc.Config.CallTimeout)
	c := model.CallResult{
		OK:           outcome.OK(),
		MS:           float64(outcome.Elapsed) / float64(time.Millisecond),
		StdoutBytes:  model.Ptr(outcome.BytesRead),
		ApproxTokens: model.Ptr(payload.ApproxTokens(outcome.BytesRead)),
	}
	if msg := outcome.ErrorText(); msg != "" {
		c.Error = model.Ptr(msg)
	}
	if outcome.Response != nil {
		m := payload.Measure(outcome.Response.Raw)
		c.PayloadBytes = m.Bytes
		c.PayloadTokensEst = r.checkTokens(m, label)
		c.PayloadFingerprint = m.Fingerprint
		c.PayloadItemCount = m.ItemCount
	}
	return c, outcome
}

// checkTokens drops the token estimate when the payload is out of range.
// The byte count is kept.
func (r *workloadRunner) checkTokens(m payload.Metrics, label string) *int {
	if m.Bytes == nil || m.TokensEst == nil {
		return m.TokensEst
	}
	var reason string
	switch {
	case *m.Bytes > r.rc.MaxPayloadBytes:
		reason = fmt.Sprintf("payload_bytes>%d", r.rc.MaxPayloadBytes)
	case *m.TokensEst <= 0:
		reason = "payload_tokens<=0"
	case *m.TokensEst > r.rc.MaxPayloadTokens:
		reason = fmt.Sprintf("payload_tokens>%d", r.rc.MaxPayloadTokens)
	default:
		return m.TokensEst
	}
	output.Logger.Warn("Metric drop", "call", label, "reason", reason)
	return nil
}

func (r *workloadRunner) log(workloadID, phase string, i int, c model.CallResult, tool string) {
	status := "ok"
	if !c.OK {
		status = "fail"
	}
	output.Logger.Info("Tool call",
		"server", r.spec.Name,
		"workload", workloadID,
		"phase", phase,
		"i", i,
		"status", status,
		"validation", c.ValidationStatus,
		"ms", fmt.Sprintf("%.1f", c.MS),
		"tool", tool,
	)
}
