package target

import (
	"time"

	"github.com/daryltucker/workload-bench/internal/mcp"
	"github.com/daryltucker/workload-bench/internal/model"
	"github.com/daryltucker/workload-bench/internal/output"
)

// Notes recorded when no target can be found.
const (
	NoteMissingSelector = "missing target selector for thread workload"
	NoteNoCandidate     = "target selection returned no candidate"
	noteSelectionFailed = "target selection failed: "
)

// Caller issues tool calls on a live session.
type Caller interface {
	CallTool(call model.ToolCall, timeout time.Duration) mcp.CallOutcome
}

// Resolver finds the dynamic target of one server session and caches it.
// Order: cached value, selector call, then the environment fallback.
type Resolver struct {
	server    string
	selector  *model.TargetSelector
	caller    Caller
	timeout   time.Duration
	fallback  string
	cached    string
	haveCache bool
}

// NewResolver builds a resolver for one session. fallback is the
// environment-provided target and may be empty.
func NewResolver(server string, selector *model.TargetSelector, caller Caller, timeout time.Duration, fallback string) *Resolver {
	return &Resolver{
		server:   server,
		selector: selector,
		caller:   caller,
		timeout:  timeout,
		fallback: fallback,
	}
}

// Resolve returns the target, or "" plus the note explaining why there is none.
// A selector call happens at most until one value has been cached.
func (r *Resolver) Resolve() (string, string) {
	if r.haveCache {
		return r.cached, ""
	}
	if r.selector == nil {
		if r.fallback != "" {
			return r.remember(r.fallback, "environment"), ""
		}
		return "", NoteMissingSelector
	}

	outcome := r.caller.CallTool(r.selector.Call(), r.timeout)
	if !outcome.OK() {
		if r.fallback != "" {
			output.Logger.Warn("target selection failed, using environment target",
				"server", r.server, "tool", r.selector.Tool, "error", outcome.ErrorText())
			return r.remember(r.fallback, "environment"), ""
		}
		return "", noteSelectionFailed + outcome.ErrorText()
	}

	kind, err := ParseKind(r.selector.Kind)
	if err != nil {
		return "", noteSelectionFailed + err.Error()
	}
	if value, ok := Extract(kind, outcome.Response.Raw); ok && value != "" {
		return r.remember(value, string(kind)), ""
	}
	if r.fallback != "" {
		return r.remember(r.fallback, "environment"), ""
	}
	return "", NoteNoCandidate
}

func (r *Resolver) remember(value, source string) string {
	r.cached, r.haveCache = value, true
	output.Logger.Debug("target resolved", "server", r.server, "source", source)
	return value
}
