package engine

import (
	"sort"
	"strings"

	"github.com/daryltucker/workload-bench/internal/model"
)

// TopReasonCount is how many validation reasons a summary keeps.
const TopReasonCount = 3

// Summarize aggregates the ok calls among calls, optionally restricted to
// those whose validation status is in only. Total counts every call.
func Summarize(calls []model.CallResult, only ...model.ValidationStatus) model.Summary {
	var ms, bytes, tokens []float64
	for _, c := range calls {
		if !c.OK || (len(only) > 0 && !hasStatus(only, c.ValidationStatus)) {
			continue
		}
		ms = append(ms, c.MS)
		if c.PayloadBytes != nil {
			bytes = append(bytes, float64(*c.PayloadBytes))
		}
		if c.PayloadTokensEst != nil {
			tokens = append(tokens, float64(*c.PayloadTokensEst))
		}
	}
	return model.Summary{
		OK:                len(ms),
		Total:             len(calls),
		MeanMS:            mean(ms),
		P95MS:             p95(ms),
		MeanPayloadBytes:  mean(bytes),
		MeanPayloadTokens: mean(tokens),
	}
}

func hasStatus(set []model.ValidationStatus, s model.ValidationStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func mean(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return model.Ptr(sum / float64(len(values)))
}

// p95 is the nearest-rank value at floor(0.95*(n-1)) of the ascending sample.
func p95(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return model.Ptr(sorted[int(0.95*float64(len(sorted)-1))])
}

// SummarizeValidation counts validation statuses and returns the most common
// reasons, most frequent first. Equal counts keep first-seen order.
func SummarizeValidation(calls []model.CallResult) model.ValidationSummary {
	counts := map[model.ValidationStatus]int{}
	reasonCounts := map[string]int{}
	var reasons []string
	for _, c := range calls {
		if c.ValidationStatus != "" {
			counts[c.ValidationStatus]++
		}
		if c.ValidationReason == nil || *c.ValidationReason == "" {
			continue
		}
		r := *c.ValidationReason
		if reasonCounts[r] == 0 {
			reasons = append(reasons, r)
		}
		reasonCounts[r]++
	}
	sort.SliceStable(reasons, func(i, j int) bool {
		return reasonCounts[reasons[i]] > reasonCounts[reasons[j]]
	})
	if len(reasons) > TopReasonCount {
		reasons = reasons[:TopReasonCount]
	}
	if reasons == nil {
		reasons = []string{}
	}
	return model.ValidationSummary{Counts: counts, TopReasons: reasons}
}

// DeriveStatus classifies a finished workload.
func DeriveStatus(w *model.WorkloadResult) model.WorkloadStatus {
	if w.ToolName == nil {
		return model.WorkloadUnsupported
	}
	for _, note := range w.Notes {
		if strings.Contains(note, "unsupported") || strings.Contains(note, "tool not found") {
			return model.WorkloadUnsupported
		}
	}

	var okCalls, valid, empty, timeouts int
	for _, c := range w.Results {
		if c.ValidationStatus == model.StatusFailTimeout {
			timeouts++
		}
		if !c.OK {
			continue
		}
		okCalls++
		switch c.ValidationStatus {
		case model.StatusOKValid:
			valid++
		case model.StatusOKEmpty:
			empty++
		}
	}

	if okCalls == 0 && timeouts == 0 {
		// A timed-out warmup abandons the workload before any measured call.
		for _, c := range w.WarmupResults {
			if c.ValidationStatus == model.StatusFailTimeout {
				timeouts++
			}
		}
	}

	switch {
	case okCalls == 0 && timeouts > 0:
		return model.WorkloadFailTimeout
	case okCalls == 0:
		return model.WorkloadFail
	case valid > 0 && empty == 0:
		return model.WorkloadOKValid
	case empty > 0 && valid == 0:
		return model.WorkloadOKEmpty
	}
	return model.WorkloadPartialValid
}

// Finalize recomputes the summaries and status of every workload of server.
// Duplicate detection must run first so demoted calls are counted as empty.
func Finalize(server *model.ServerRunResult) {
	for _, w := range server.Workloads {
		w.ValidationSummary = SummarizeValidation(w.Results)
		w.Summary = Summarize(w.Results)
		w.ValidSummary = Summarize(w.Results, model.StatusOKValid)
		w.Status = DeriveStatus(w)
	}
}
