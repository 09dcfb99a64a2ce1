package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daryltucker/workload-bench/internal/model"
)

func okCall(ms float64, status model.ValidationStatus, bytes int) model.CallResult {
	return model.CallResult{
		OK:               true,
		MS:               ms,
		PayloadBytes:     model.Ptr(bytes),
		PayloadTokensEst: model.Ptr((bytes + 3) / 4),
		ValidationStatus: status,
	}
}

func failCall(ms float64, err string) model.CallResult {
	status := model.StatusFail
	if err == "TIMEOUT" {
		status = model.StatusFailTimeout
	}
	return model.CallResult{MS: ms, Error: model.Ptr(err), ValidationStatus: status, ValidationReason: model.Ptr(err)}
}

func TestSummarize(t *testing.T) {
	calls := []model.CallResult{
		okCall(10, model.StatusOKValid, 400),
		okCall(30, model.StatusOKEmpty, 40),
		okCall(20, model.StatusOKValid, 200),
		failCall(5, "TIMEOUT"),
	}

	all := Summarize(calls)
	assert.Equal(t, 3, all.OK)
	assert.Equal(t, 4, all.Total)
	require.NotNil(t, all.MeanMS)
	assert.InDelta(t, 20.0, *all.MeanMS, 1e-9)
	require.NotNil(t, all.P95MS)
	assert.Equal(t, 20.0, *all.P95MS, "floor(0.95*2) picks the middle value")
	assert.InDelta(t, 640.0/3, *all.MeanPayloadBytes, 1e-9)

	valid := Summarize(calls, model.StatusOKValid)
	assert.Equal(t, 2, valid.OK)
	assert.Equal(t, 4, valid.Total)
	assert.InDelta(t, 15.0, *valid.MeanMS, 1e-9)
	assert.Equal(t, 10.0, *valid.P95MS)
	assert.InDelta(t, 75.0, *valid.MeanPayloadTokens, 1e-9)
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize([]model.CallResult{failCall(1, "boom")})
	assert.Equal(t, 0, s.OK)
	assert.Equal(t, 1, s.Total)
	assert.Nil(t, s.MeanMS)
	assert.Nil(t, s.P95MS)
	assert.Nil(t, s.MeanPayloadBytes)
	assert.Nil(t, s.MeanPayloadTokens)
}

func TestP95(t *testing.T) {
	assert.Nil(t, p95(nil))
	assert.Equal(t, 7.0, *p95([]float64{7}))

	values := make([]float64, 0, 20)
	for i := 20; i >= 1; i-- {
		values = append(values, float64(i))
	}
	assert.Equal(t, 19.0, *p95(values), "index floor(0.95*19)=18 of 1..20")
	assert.Equal(t, 20.0, values[0], "input is not reordered")
}

func TestSummarizeValidation(t *testing.T) {
	calls := []model.CallResult{
		{ValidationStatus: model.StatusOKEmpty, ValidationReason: model.Ptr("b")},
		{ValidationStatus: model.StatusOKEmpty, ValidationReason: model.Ptr("a")},
		{ValidationStatus: model.StatusOKEmpty, ValidationReason: model.Ptr("a")},
		{ValidationStatus: model.StatusFail, ValidationReason: model.Ptr("c")},
		{ValidationStatus: model.StatusFail, ValidationReason: model.Ptr("d")},
		{ValidationStatus: model.StatusOKValid},
		{},
	}
	got := SummarizeValidation(calls)
	assert.Equal(t, map[model.ValidationStatus]int{
		model.StatusOKEmpty: 3,
		model.StatusFail:    2,
		model.StatusOKValid: 1,
	}, got.Counts)
	assert.Equal(t, []string{"a", "b", "c"}, got.TopReasons)

	empty := SummarizeValidation(nil)
	assert.Empty(t, empty.Counts)
	assert.NotNil(t, empty.TopReasons)
}

func TestDeriveStatus(t *testing.T) {
	tool := model.Ptr("tool")
	tests := []struct {
		name string
		w    model.WorkloadResult
		want model.WorkloadStatus
	}{
		{"no tool", model.WorkloadResult{}, model.WorkloadUnsupported},
		{"tool not found note", model.WorkloadResult{ToolName: tool, Notes: []string{"tool not found: x"}}, model.WorkloadUnsupported},
		{"unsupported note", model.WorkloadResult{ToolName: tool, Notes: []string{"unsupported workload (no tool mapping)"}}, model.WorkloadUnsupported},
		{"no calls", model.WorkloadResult{ToolName: tool}, model.WorkloadFail},
		{"timeout", model.WorkloadResult{ToolName: tool, Results: []model.CallResult{failCall(1, "boom"), failCall(1, "TIMEOUT")}}, model.WorkloadFailTimeout},
		{"fail", model.WorkloadResult{ToolName: tool, Results: []model.CallResult{failCall(1, "boom")}}, model.WorkloadFail},
		{"warmup timeout", model.WorkloadResult{ToolName: tool, WarmupResults: []model.CallResult{failCall(1, "TIMEOUT")}}, model.WorkloadFailTimeout},
		{"warmup error", model.WorkloadResult{ToolName: tool, WarmupResults: []model.CallResult{failCall(1, "boom")}}, model.WorkloadFail},
		{"warmup timeout then valid", model.WorkloadResult{ToolName: tool, WarmupResults: []model.CallResult{failCall(1, "TIMEOUT")}, Results: []model.CallResult{okCall(1, model.StatusOKValid, 1)}}, model.WorkloadOKValid},
		{"valid", model.WorkloadResult{ToolName: tool, Results: []model.CallResult{okCall(1, model.StatusOKValid, 1), failCall(1, "TIMEOUT")}}, model.WorkloadOKValid},
		{"empty", model.WorkloadResult{ToolName: tool, Results: []model.CallResult{okCall(1, model.StatusOKEmpty, 1)}}, model.WorkloadOKEmpty},
		{"partial", model.WorkloadResult{ToolName: tool, Results: []model.CallResult{okCall(1, model.StatusOKEmpty, 1), okCall(1, model.StatusOKValid, 1)}}, model.WorkloadPartialValid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveStatus(&tt.w))
		})
	}
}

func TestFinalize(t *testing.T) {
	server := &model.ServerRunResult{Workloads: []*model.WorkloadResult{{
		WorkloadID: "W1_RECENT",
		ToolName:   model.Ptr("recent"),
		Results:    []model.CallResult{okCall(4, model.StatusOKValid, 300), okCall(8, model.StatusOKEmpty, 3)},
	}}}
	Finalize(server)

	w := server.Workloads[0]
	assert.Equal(t, model.WorkloadPartialValid, w.Status)
	assert.Equal(t, 2, w.Summary.OK)
	assert.Equal(t, 1, w.ValidSummary.OK)
	assert.InDelta(t, 4.0, *w.ValidSummary.MeanMS, 1e-9)
	assert.Equal(t, 1, w.ValidationSummary.Counts[model.StatusOKValid])
}
