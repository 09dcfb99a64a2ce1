package payload

import (
	"fmt"

	"github.com/daryltucker/workload-bench/internal/model"
)

// Reasons attached to validation outcomes.
const (
	ReasonStrictDisabled = "strict_validity_disabled"
	ReasonMissingBytes   = "missing_payload_bytes"
	ReasonValid          = "valid"
	ReasonDuplicate      = "duplicate_payload"
)

// TimeoutError is the error text a transport deadline leaves on a call.
const TimeoutError = "TIMEOUT"

// Validate decides whether an ok call carried a meaningful payload for
// workloadID. Workloads missing from a threshold table use a minimum of 0.
func Validate(workloadID string, payloadBytes, itemCount *int, strict bool, minBytes, minItems map[string]int) (bool, string) {
	if !strict {
		return true, ReasonStrictDisabled
	}
	if payloadBytes == nil {
		return false, ReasonMissingBytes
	}
	if need := minBytes[workloadID]; *payloadBytes < need {
		return false, fmt.Sprintf("payload_bytes_below_min(%d<%d)", *payloadBytes, need)
	}
	if need := minItems[workloadID]; itemCount != nil && *itemCount < need {
		return false, fmt.Sprintf("items_below_min(%d<%d)", *itemCount, need)
	}
	return true, ReasonValid
}

// Policy carries the validation settings of a run.
type Policy struct {
	Strict   bool
	MinBytes map[string]int
	MinItems map[string]int
}

// Classify sets the validation status and reason of call in place. Failed
// calls carry their error as the reason; ok calls carry a reason only when
// they are not valid.
func (p Policy) Classify(workloadID string, call *model.CallResult) {
	if !call.OK {
		reason := call.ErrorText()
		if reason == TimeoutError {
			call.ValidationStatus = model.StatusFailTimeout
		} else {
			call.ValidationStatus = model.StatusFail
		}
		if reason == "" {
			call.ValidationReason = nil
		} else {
			call.ValidationReason = &reason
		}
		return
	}
	ok, reason := Validate(workloadID, call.PayloadBytes, call.PayloadItemCount, p.Strict, p.MinBytes, p.MinItems)
	if ok {
		call.ValidationStatus = model.StatusOKValid
		call.ValidationReason = nil
		return
	}
	call.ValidationStatus = model.StatusOKEmpty
	call.ValidationReason = &reason
}
