package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/daryltucker/workload-bench/internal/model"
	"github.com/daryltucker/workload-bench/internal/payload"
)

// ManifestEntry explains why a debug payload was kept.
type ManifestEntry struct {
	Status            model.WorkloadStatus    `json:"status"`
	Notes             []string                `json:"notes"`
	ValidationSummary model.ValidationSummary `json:"validation_summary"`
	MinBytes          *int                    `json:"min_bytes"`
	MinItems          *int                    `json:"min_items"`
}

// DebugDir is where debug payloads for one server are written.
func DebugDir(outPath, runLabel, server string) string {
	return filepath.Join(filepath.Dir(outPath), "debug_payloads", runLabel, payload.Slugify(server))
}

// WriteDebugPayloads writes the redacted sample payload of every workload that
// ended ok_empty or partial_valid, and merges their entries into the server's
// manifest.json. samples maps workload id to the first ok measured result.
// It returns the number of payload files written.
func WriteDebugPayloads(outPath, runLabel string, server *model.ServerRunResult, samples map[string]any, minBytes, minItems map[string]int) (int, error) {
	dir := DebugDir(outPath, runLabel, server.Name)
	entries := map[string]ManifestEntry{}

	for _, w := range server.Workloads {
		if w.Status != model.WorkloadOKEmpty && w.Status != model.WorkloadPartialValid {
			continue
		}
		sample, ok := samples[w.WorkloadID]
		if !ok {
			continue
		}
		path := filepath.Join(dir, w.WorkloadID+".json")
		if err := WriteJSON(path, payload.Redact(sample)); err != nil {
			return len(entries), fmt.Errorf("debug payload %s: %w", w.WorkloadID, err)
		}
		entries[w.WorkloadID] = ManifestEntry{
			Status:            w.Status,
			Notes:             w.Notes,
			ValidationSummary: w.ValidationSummary,
			MinBytes:          lookupThreshold(minBytes, w.WorkloadID),
			MinItems:          lookupThreshold(minItems, w.WorkloadID),
		}
	}
	if len(entries) == 0 {
		return 0, nil
	}

	manifestPath := filepath.Join(dir, "manifest.json")
	manifest := map[string]any{}
	if data, err := os.ReadFile(manifestPath); err == nil {
		if err := json.Unmarshal(data, &manifest); err != nil {
			Logger.Warn("Ignoring unreadable debug manifest", "path", manifestPath, "error", err)
			manifest = map[string]any{}
		}
	}
	for id, e := range entries {
		manifest[id] = e
	}
	if err := WriteJSON(manifestPath, manifest); err != nil {
		return len(entries), fmt.Errorf("debug manifest: %w", err)
	}
	return len(entries), nil
}

func lookupThreshold(m map[string]int, id string) *int {
	if v, ok := m[id]; ok {
		return &v
	}
	return nil
}
