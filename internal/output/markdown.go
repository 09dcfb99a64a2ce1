package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/daryltucker/workload-bench/internal/model"
	"github.com/daryltucker/workload-bench/internal/payload"
)

// RenderMarkdown renders the headline tables as a Markdown document.
func RenderMarkdown(doc *model.Document, h *Headline) string {
	var b strings.Builder
	meta := doc.Metadata
	v := meta.Validation

	b.WriteString("# MCP Workload Headline Tables (Validated)\n\n")
	b.WriteString("## Run Metadata\n\n")
	fmt.Fprintf(&b, "- %s: iterations=%d warmup=%d phase_timeout_s=%s call_timeout_s=%s workloads=%s\n",
		h.RunLabel, meta.Iterations, meta.Warmup,
		strconv.FormatFloat(meta.PhaseTimeoutS, 'f', -1, 64),
		strconv.FormatFloat(meta.CallTimeoutS, 'f', -1, 64),
		strings.Join(h.Workloads, ","))
	fmt.Fprintf(&b, "- strict_validity=%t min_bytes=%s min_items=%s\n\n",
		v.StrictValidity, formatThresholds(v.MinBytes), formatThresholds(v.MinItems))

	b.WriteString("## Server Summary Table\n\n")
	if len(doc.Servers) == 0 {
		b.WriteString("(no results)\n\n")
	} else {
		headers := []string{"server", "run", "node", "init_ok", "init_ms", "list_ok", "list_ms"}
		headers = append(headers, h.Workloads...)
		var rows [][]string
		for _, s := range doc.Servers {
			phases := phaseCells(s)
			row := []string{s.Name, h.RunLabel, meta.NodeVersion,
				phases["init_ok"], phaseMS(s.SessionInitialize), phases["list_ok"], phaseMS(s.SessionListTools)}
			for _, id := range h.Workloads {
				row = append(row, WorkloadCell(workloadOrMissing(s, id)))
			}
			rows = append(rows, row)
		}
		writeMarkdownTable(&b, headers, rows)
	}

	b.WriteString("## Tool Mapping Table\n\n")
	if len(h.ToolMapping.Rows) == 0 {
		b.WriteString("(no results)\n\n")
	} else {
		headers := []string{"server", "run", "workload", "tool", "status", "ok", "mean_ms", "p95_ms", "error", "notes"}
		var rows [][]string
		for _, s := range doc.Servers {
			for _, id := range h.Workloads {
				w := workloadOrMissing(s, id)
				cells := workloadCells(w)
				rows = append(rows, []string{s.Name, h.RunLabel, id, cells["tool"], cells["status"], cells["ok"],
					FormatMS(w.Summary.MeanMS), FormatMS(w.Summary.P95MS), cells["error"], cells["notes"]})
			}
		}
		writeMarkdownTable(&b, headers, rows)
	}

	b.WriteString("## Workload Rankings (ok_valid only)\n\n")
	b.WriteString("Rankings exclude ok_empty.\n\n")
	for _, id := range h.Workloads {
		fmt.Fprintf(&b, "### %s\n\n", id)
		entries := rankWorkload(doc, id)
		if len(entries) == 0 {
			b.WriteString("(no ok_valid results)\n\n")
			continue
		}
		var rows [][]string
		for i, e := range entries {
			rows = append(rows, []string{strconv.Itoa(i + 1), e.server, h.RunLabel, meta.NodeVersion,
				FormatMS(e.w.ValidSummary.MeanMS), FormatMS(e.w.ValidSummary.P95MS), e.w.ToolNameText()})
		}
		writeMarkdownTable(&b, []string{"rank", "server", "run", "node", "mean_ms", "p95_ms", "tool"}, rows)
	}
	return b.String()
}

// WorkloadCell is the compact server summary cell for one workload.
func WorkloadCell(w *model.WorkloadResult) string {
	switch w.Status {
	case model.WorkloadUnsupported:
		return "UNSUPPORTED"
	case model.WorkloadFailTimeout:
		return "FAIL (TIMEOUT)"
	case model.WorkloadFail:
		return "FAIL"
	}
	mean, p95 := w.Summary.MeanMS, w.Summary.P95MS
	if mean == nil || p95 == nil {
		return strings.ToUpper(string(w.Status))
	}
	cell := fmt.Sprintf("%sms (p95 %s)", FormatMS(mean), FormatMS(p95))
	switch w.Status {
	case model.WorkloadOKEmpty:
		return "OK_EMPTY " + cell
	case model.WorkloadPartialValid:
		return "PARTIAL " + cell
	}
	return cell
}

// FormatMS renders a latency with three decimals, or "" when unknown.
func FormatMS(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%.3f", *v)
}

func phaseMS(p *model.PhaseResult) string {
	if p == nil {
		return ""
	}
	return FormatMS(&p.MS)
}

func formatThresholds(m map[string]int) string {
	parts := make([]string, 0, len(m))
	for _, k := range payload.SortedKeys(m) {
		parts = append(parts, fmt.Sprintf("%s=%d", k, m[k]))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func writeMarkdownTable(b *strings.Builder, headers []string, rows [][]string) {
	b.WriteString("|" + strings.Join(headers, "|") + "|\n")
	sep := make([]string, len(headers))
	for i := range sep {
		sep[i] = "---"
	}
	b.WriteString("|" + strings.Join(sep, "|") + "|\n")
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = strings.ReplaceAll(c, "|", `\|`)
		}
		b.WriteString("|" + strings.Join(cells, "|") + "|\n")
	}
	b.WriteString("\n")
}

func writeText(path, text string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(text), 0o644)
}
