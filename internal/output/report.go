package output

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/daryltucker/workload-bench/internal/model"
)

// RunLabelPrefix is stripped from the output file stem to form the run label.
const RunLabelPrefix = "normalized_workloads_"

// RunLabel derives the run label from the document path.
func RunLabel(outPath string) string {
	base := filepath.Base(outPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return strings.TrimPrefix(stem, RunLabelPrefix)
}

// Headline holds the three headline tables built from one document.
type Headline struct {
	RunLabel      string
	Workloads     []string
	ServerSummary Table
	ToolMapping   Table
	Rankings      Table
}

var baseColumns = []string{"table", "server", "run", "node", "init_ok", "init_ms", "list_ok", "list_ms"}

var workloadColumns = []string{"status", "ok", "mean_ms", "p95_ms", "error", "tool", "notes"}

// BuildHeadline flattens doc into the server summary, tool mapping and
// rankings tables.
func BuildHeadline(doc *model.Document, runLabel string) *Headline {
	h := &Headline{RunLabel: runLabel, Workloads: reportWorkloads(doc)}
	node := doc.Metadata.NodeVersion

	h.ServerSummary = Table{Name: "server_summary", Columns: append([]string{}, baseColumns...)}
	for _, w := range h.Workloads {
		for _, c := range workloadColumns {
			h.ServerSummary.Columns = append(h.ServerSummary.Columns, w+"_"+c)
		}
	}
	h.ToolMapping = Table{
		Name: "tool_mapping",
		Columns: []string{"table", "server", "run", "node", "workload", "tool", "status", "ok",
			"mean_ms", "p95_ms", "error", "notes", "init_ok", "init_ms", "list_ok", "list_ms"},
	}
	h.Rankings = Table{
		Name:    "workload_rankings",
		Columns: []string{"table", "workload", "rank", "server", "run", "node", "mean_ms", "p95_ms", "tool"},
	}

	for _, s := range doc.Servers {
		phases := phaseCells(s)
		row := map[string]string{"table": "server_summary", "server": s.Name, "run": runLabel, "node": node}
		for k, v := range phases {
			row[k] = v
		}
		for _, id := range h.Workloads {
			w := workloadOrMissing(s, id)
			cells := workloadCells(w)
			for _, c := range workloadColumns {
				row[id+"_"+c] = cells[c]
			}

			mapping := map[string]string{
				"table": "tool_mapping", "server": s.Name, "run": runLabel, "node": node, "workload": id,
			}
			for k, v := range cells {
				mapping[k] = v
			}
			for k, v := range phases {
				mapping[k] = v
			}
			h.ToolMapping.Rows = append(h.ToolMapping.Rows, mapping)
		}
		h.ServerSummary.Rows = append(h.ServerSummary.Rows, row)
	}

	for _, id := range h.Workloads {
		for i, e := range rankWorkload(doc, id) {
			h.Rankings.Rows = append(h.Rankings.Rows, map[string]string{
				"table":    "workload_rankings",
				"workload": id,
				"rank":     strconv.Itoa(i + 1),
				"server":   e.server,
				"run":      runLabel,
				"node":     node,
				"mean_ms":  formatFloat(e.w.ValidSummary.MeanMS),
				"p95_ms":   formatFloat(e.w.ValidSummary.P95MS),
				"tool":     e.w.ToolNameText(),
			})
		}
	}
	return h
}

// Combined is the sorted column union of all three tables.
func (h *Headline) Combined() Table {
	return Union("combined", h.ServerSummary, h.ToolMapping, h.Rankings)
}

// GenerateReports writes the CSV and Markdown tables next to outPath and
// returns the paths written.
func GenerateReports(doc *model.Document, outPath string) ([]string, error) {
	label := RunLabel(outPath)
	h := BuildHeadline(doc, label)
	dir := filepath.Dir(outPath)

	var written []string
	tables := []Table{h.ServerSummary, h.ToolMapping, h.Rankings, h.Combined()}
	for _, t := range tables {
		path := filepath.Join(dir, fmt.Sprintf("headline_%s_%s.csv", t.Name, label))
		ok, err := WriteTable(path, t)
		if err != nil {
			return written, fmt.Errorf("write %s: %w", t.Name, err)
		}
		if ok {
			written = append(written, path)
		}
	}

	mdPath := filepath.Join(dir, fmt.Sprintf("headline_tables_%s.md", label))
	if err := writeText(mdPath, RenderMarkdown(doc, h)); err != nil {
		return written, err
	}
	written = append(written, mdPath)
	return written, nil
}

// reportWorkloads returns the metadata workload list, or the ids seen in the
// document when the metadata is empty.
func reportWorkloads(doc *model.Document) []string {
	if len(doc.Metadata.Workloads) > 0 {
		return doc.Metadata.Workloads
	}
	seen := map[string]bool{}
	var ids []string
	for _, s := range doc.Servers {
		for _, w := range s.Workloads {
			if !seen[w.WorkloadID] {
				seen[w.WorkloadID] = true
				ids = append(ids, w.WorkloadID)
			}
		}
	}
	sort.Strings(ids)
	return ids
}

func workloadOrMissing(s *model.ServerRunResult, id string) *model.WorkloadResult {
	if w := s.Workload(id); w != nil {
		return w
	}
	return &model.WorkloadResult{
		WorkloadID: id,
		Status:     model.WorkloadUnsupported,
		Notes:      []string{"unsupported workload (missing)"},
	}
}

func phaseCells(s *model.ServerRunResult) map[string]string {
	cells := map[string]string{"init_ok": "false", "init_ms": "", "list_ok": "false", "list_ms": ""}
	if p := s.SessionInitialize; p != nil {
		cells["init_ok"] = strconv.FormatBool(p.OK)
		cells["init_ms"] = formatFloat(&p.MS)
	}
	if p := s.SessionListTools; p != nil {
		cells["list_ok"] = strconv.FormatBool(p.OK)
		cells["list_ms"] = formatFloat(&p.MS)
	}
	return cells
}

func workloadCells(w *model.WorkloadResult) map[string]string {
	return map[string]string{
		"status":  string(w.Status),
		"ok":      okRatio(w),
		"mean_ms": formatFloat(w.Summary.MeanMS),
		"p95_ms":  formatFloat(w.Summary.P95MS),
		"error":   firstError(w.Results),
		"tool":    w.ToolNameText(),
		"notes":   workloadNotes(w),
	}
}

func okRatio(w *model.WorkloadResult) string {
	if len(w.Results) == 0 {
		return "0/0"
	}
	return fmt.Sprintf("%d/%d", w.ValidationSummary.Counts[model.StatusOKValid], len(w.Results))
}

func firstError(calls []model.CallResult) string {
	for _, c := range calls {
		if e := c.ErrorText(); e != "" {
			return e
		}
	}
	return ""
}

func workloadNotes(w *model.WorkloadResult) string {
	notes := append([]string{}, w.Notes...)
	okTotal := w.Summary.OK
	okValid := w.ValidationSummary.Counts[model.StatusOKValid]
	if okTotal != 0 && okTotal != okValid {
		notes = append(notes, fmt.Sprintf("raw_ok=%d/%d", okTotal, len(w.Results)))
	}
	return strings.Join(notes, "; ")
}

type ranked struct {
	server string
	w      *model.WorkloadResult
}

// rankWorkload returns ok_valid entries for id ordered by valid mean latency.
func rankWorkload(doc *model.Document, id string) []ranked {
	var out []ranked
	for _, s := range doc.Servers {
		w := s.Workload(id)
		if w == nil || w.Status != model.WorkloadOKValid || w.ValidSummary.MeanMS == nil {
			continue
		}
		out = append(out, ranked{server: s.Name, w: w})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return *out[i].w.ValidSummary.MeanMS < *out[j].w.ValidSummary.MeanMS
	})
	return out
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
