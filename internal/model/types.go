/*
PURPOSE:
  Defines the core data structures used throughout workload-bench.
  These models describe the servers under test, the standardized workloads,
  and the per-call / per-workload / per-server results that get checkpointed.

REQUIREMENTS:
  User-specified:
  - Record latency, transport bytes, payload bytes, token estimate, fingerprint,
    item count and validation outcome for every call.
  - Keep warmup calls separate from measured calls.

  Implementation-discovered:
  - Optional metrics must serialize as JSON null, so they are pointers.
  - Status values are closed sets; use typed string constants.

ARCHITECTURE INTEGRATION:
  - Used by: internal/config, internal/engine, internal/output, internal/store
  - Shared across boundaries.

ERROR HANDLING:
  - None (pure data structs).

IMPLEMENTATION RULES:
  - Keep structs simple and public.
  - JSON tags are the persisted document format; renaming a tag is a format change.

USAGE:
  res := model.NewServerRunResult(spec)

RELATED FILES:
  - internal/output/json.go
  - internal/output/report.go

MAINTENANCE:
  - Update when adding new metrics to capture.
*/

package model

// Placeholder marks a tool argument that must be replaced by the resolved dynamic target.
const Placeholder = "__TARGET__"

// Mode is the only execution mode: one long-lived stdio session per server.
const Mode = "session"

// ValidationStatus classifies a single call.
type ValidationStatus string

const (
	StatusOKValid     ValidationStatus = "ok_valid"
	StatusOKEmpty     ValidationStatus = "ok_empty"
	StatusFail        ValidationStatus = "fail"
	StatusFailTimeout ValidationStatus = "fail_timeout"
)

// WorkloadStatus is derived from a workload's calls and notes.
type WorkloadStatus string

const (
	WorkloadUnsupported  WorkloadStatus = "unsupported"
	WorkloadFailTimeout  WorkloadStatus = "fail_timeout"
	WorkloadFail         WorkloadStatus = "fail"
	WorkloadOKValid      WorkloadStatus = "ok_valid"
	WorkloadOKEmpty      WorkloadStatus = "ok_empty"
	WorkloadPartialValid WorkloadStatus = "partial_valid"
)

// ToolCall is a tool name plus its arguments. String arguments equal to
// Placeholder are substituted before the call is made.
type ToolCall struct {
	Name string         `json:"name" yaml:"tool" toml:"tool"`
	Args map[string]any `json:"args,omitempty" yaml:"args" toml:"args"`
}

// TargetSelector names the tool that lists candidate targets and the dialect
// used to pull a concrete value out of its response.
type TargetSelector struct {
	Tool string         `json:"tool" yaml:"tool" toml:"tool"`
	Args map[string]any `json:"args,omitempty" yaml:"args" toml:"args"`
	Kind string         `json:"kind" yaml:"kind" toml:"kind"`
}

// Call returns the selector as a ToolCall.
func (t TargetSelector) Call() ToolCall {
	return ToolCall{Name: t.Tool, Args: t.Args}
}

// ServerSpec describes how to launch one MCP server and map workloads onto its tools.
type ServerSpec struct {
	Name        string              `json:"name" yaml:"name" toml:"name"`
	Command     string              `json:"command" yaml:"command" toml:"command"`
	Args        []string            `json:"args" yaml:"args" toml:"args"`
	Env         map[string]string   `json:"env,omitempty" yaml:"env" toml:"env"`
	Cwd         string              `json:"cwd,omitempty" yaml:"cwd" toml:"cwd"`
	InstallHint string              `json:"install_hint,omitempty" yaml:"install_hint" toml:"install_hint"`
	Workloads   map[string]ToolCall `json:"workloads" yaml:"workloads" toml:"workloads"`
	Target      *TargetSelector     `json:"target,omitempty" yaml:"target" toml:"target"`
}

// WorkloadSpec is one of the standardized operations run against every server.
type WorkloadSpec struct {
	ID       string `json:"workload_id"`
	Label    string `json:"label"`
	ReadOnly bool   `json:"read_only"`
}

// PhaseResult records a session phase (initialize, tools/list).
type PhaseResult struct {
	OK           bool    `json:"ok"`
	MS           float64 `json:"ms"`
	Error        *string `json:"error"`
	StdoutBytes  *int    `json:"stdout_bytes"`
	ApproxTokens *int    `json:"approx_tokens"`
}

// CallResult represents the outcome of a single tools/call.
type CallResult struct {
	Iteration          int              `json:"iteration"`
	OK                 bool             `json:"ok"`
	MS                 float64          `json:"ms"`
	Error              *string          `json:"error"`
	StdoutBytes        *int             `json:"stdout_bytes"`
	ApproxTokens       *int             `json:"approx_tokens"`
	PayloadBytes       *int             `json:"payload_bytes"`
	PayloadTokensEst   *int             `json:"payload_tokens_est"`
	PayloadFingerprint *string          `json:"payload_fingerprint"`
	PayloadItemCount   *int             `json:"payload_item_count"`
	ValidationStatus   ValidationStatus `json:"validation_status"`
	ValidationReason   *string          `json:"validation_reason"`
}

// ErrorText returns the call error or "".
func (c CallResult) ErrorText() string {
	if c.Error == nil {
		return ""
	}
	return *c.Error
}

// Summary aggregates latency and payload size over a set of calls.
type Summary struct {
	OK                int      `json:"ok"`
	Total             int      `json:"total"`
	MeanMS            *float64 `json:"mean_ms"`
	P95MS             *float64 `json:"p95_ms"`
	MeanPayloadBytes  *float64 `json:"mean_payload_bytes"`
	MeanPayloadTokens *float64 `json:"mean_payload_tokens"`
}

// ValidationSummary counts validation statuses and lists the most common reasons.
type ValidationSummary struct {
	Counts     map[ValidationStatus]int `json:"counts"`
	TopReasons []string                 `json:"top_reasons"`
}

// WorkloadResult holds every call made for one workload on one server.
type WorkloadResult struct {
	WorkloadID        string            `json:"workload_id"`
	ToolName          *string           `json:"tool_name"`
	ReadOnly          bool              `json:"read_only"`
	Status            WorkloadStatus    `json:"status"`
	Summary           Summary           `json:"summary"`
	ValidSummary      Summary           `json:"valid_summary"`
	ValidationSummary ValidationSummary `json:"validation_summary"`
	WarmupResults     []CallResult      `json:"warmup_results"`
	Results           []CallResult      `json:"results"`
	Notes             []string          `json:"notes"`
}

// NewWorkloadResult returns an empty result with non-nil slices so the
// document always carries [] rather than null.
func NewWorkloadResult(w WorkloadSpec) *WorkloadResult {
	return &WorkloadResult{
		WorkloadID:    w.ID,
		ReadOnly:      w.ReadOnly,
		WarmupResults: []CallResult{},
		Results:       []CallResult{},
		Notes:         []string{},
	}
}

// ToolNameText returns the mapped tool name or "".
func (w *WorkloadResult) ToolNameText() string {
	if w.ToolName == nil {
		return ""
	}
	return *w.ToolName
}

// ServerRunResult is the per-server result tree. It is mutated in place for
// the duration of a session and checkpointed after every call.
type ServerRunResult struct {
	Name              string            `json:"name"`
	Command           string            `json:"command"`
	Args              []string          `json:"args"`
	Mode              string            `json:"mode"`
	SessionInitialize *PhaseResult      `json:"session_initialize"`
	SessionListTools  *PhaseResult      `json:"session_list_tools"`
	Workloads         []*WorkloadResult `json:"workloads"`
	Notes             []string          `json:"notes"`
}

// NewServerRunResult starts a fresh result tree for spec.
func NewServerRunResult(spec ServerSpec) *ServerRunResult {
	args := spec.Args
	if args == nil {
		args = []string{}
	}
	return &ServerRunResult{
		Name:      spec.Name,
		Command:   spec.Command,
		Args:      args,
		Mode:      Mode,
		Workloads: []*WorkloadResult{},
		Notes:     []string{},
	}
}

// Workload returns the result for id, or nil.
func (s *ServerRunResult) Workload(id string) *WorkloadResult {
	for _, w := range s.Workloads {
		if w.WorkloadID == id {
			return w
		}
	}
	return nil
}

// ValidationConfig is recorded in the document metadata.
type ValidationConfig struct {
	StrictValidity   bool           `json:"strict_validity"`
	MinBytes         map[string]int `json:"min_bytes"`
	MinItems         map[string]int `json:"min_items"`
	MaxPayloadBytes  int            `json:"max_payload_bytes"`
	MaxPayloadTokens int            `json:"max_payload_tokens"`
}

// Metadata is the header of a persisted run document.
type Metadata struct {
	RunID            string           `json:"run_id"`
	Mode             string           `json:"mode"`
	Iterations       int              `json:"iterations"`
	Warmup           int              `json:"warmup"`
	PhaseTimeoutS    float64          `json:"phase_timeout_s"`
	CallTimeoutS     float64          `json:"call_timeout_s"`
	Workloads        []string         `json:"workloads"`
	RunLabel         string           `json:"run_label"`
	NodeVersion      string           `json:"node_version"`
	ProtocolVersions []string         `json:"protocol_versions"`
	Validation       ValidationConfig `json:"validation"`
}

// Document is the full persisted run: metadata plus one tree per server.
type Document struct {
	GeneratedAt string             `json:"generated_at"`
	Metadata    Metadata           `json:"metadata"`
	Servers     []*ServerRunResult `json:"servers"`
}

// Server returns the entry named name, or nil.
func (d *Document) Server(name string) *ServerRunResult {
	for _, s := range d.Servers {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// Ptr returns a pointer to v. Used for the nullable metric fields.
func Ptr[T any](v T) *T {
	return &v
}
