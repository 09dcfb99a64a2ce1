package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/daryltucker/workload-bench/internal/model"
)

// Workload ids.
const (
	WorkloadUnread = "W0_UNREAD"
	WorkloadRecent = "W1_RECENT"
	WorkloadSearch = "W2_SEARCH"
	WorkloadThread = "W3_THREAD"
)

// AllWorkloads is the fixed workload set, in run order.
var AllWorkloads = []model.WorkloadSpec{
	{ID: WorkloadUnread, Label: "Unread messages (limit=1)", ReadOnly: true},
	{ID: WorkloadRecent, Label: "Recent messages / conversations", ReadOnly: true},
	{ID: WorkloadSearch, Label: "Keyword search (query=http)", ReadOnly: true},
	{ID: WorkloadThread, Label: "Thread fetch for target conversation (limit=1)", ReadOnly: true},
}

// DefaultMinBytes is the minimum canonical payload size per workload.
var DefaultMinBytes = map[string]int{
	WorkloadUnread: 150,
	WorkloadRecent: 200,
	WorkloadSearch: 200,
	WorkloadThread: 150,
}

// DefaultMinItems is the minimum item count per workload.
var DefaultMinItems = map[string]int{
	WorkloadUnread: 0,
	WorkloadRecent: 1,
	WorkloadSearch: 1,
	WorkloadThread: 1,
}

// SelectWorkloads returns the workloads named in ids, in canonical order.
// An empty list selects all of them; unknown ids are an error.
func SelectWorkloads(ids []string) ([]model.WorkloadSpec, error) {
	requested := map[string]bool{}
	for _, id := range ids {
		for _, part := range strings.Split(id, ",") {
			if part = strings.ToUpper(strings.TrimSpace(part)); part != "" {
				requested[part] = true
			}
		}
	}
	if len(requested) == 0 {
		return AllWorkloads, nil
	}
	out := make([]model.WorkloadSpec, 0, len(requested))
	for _, w := range AllWorkloads {
		if requested[w.ID] {
			out = append(out, w)
			delete(requested, w.ID)
		}
	}
	if len(requested) > 0 {
		unknown := make([]string, 0, len(requested))
		for id := range requested {
			unknown = append(unknown, id)
		}
		return nil, fmt.Errorf("unknown workloads: %s", strings.Join(unknown, ", "))
	}
	return out, nil
}

// ParseOverrides parses repeated WORKLOAD_ID=VALUE flags. Ids are upper-cased.
func ParseOverrides(values []string, label string) (map[string]int, error) {
	overrides := map[string]int{}
	for _, raw := range values {
		if raw == "" {
			continue
		}
		key, val, ok := strings.Cut(raw, "=")
		if !ok {
			return nil, fmt.Errorf("%s overrides must be in WORKLOAD_ID=VALUE format", label)
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return nil, fmt.Errorf("%s override for %s must be an int", label, key)
		}
		overrides[key] = n
	}
	return overrides, nil
}

// LookupFunc reads an environment variable.
type LookupFunc func(string) (string, bool)

// BuildThresholds resolves one threshold per workload. Precedence: CLI
// override, then BENCH_MIN_<ID>_<suffix>, then base. An environment value
// that is not an int is ignored.
func BuildThresholds(workloads []model.WorkloadSpec, overrides, base map[string]int, suffix string, lookup LookupFunc) map[string]int {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	out := make(map[string]int, len(workloads))
	for _, w := range workloads {
		if v, ok := overrides[w.ID]; ok {
			out[w.ID] = v
			continue
		}
		value := base[w.ID]
		if raw, ok := lookup(fmt.Sprintf("BENCH_MIN_%s_%s", w.ID, suffix)); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
				value = n
			}
		}
		out[w.ID] = value
	}
	return out
}
