package payload

import (
	"sort"
	"strings"

	"github.com/daryltucker/workload-bench/internal/model"
)

// DuplicateNotePrefix starts the note added to every workload in a duplicate group.
const DuplicateNotePrefix = "suspicious: identical payload across workloads "

// ModalFingerprint returns the most frequent fingerprint among the ok
// measured calls of w. Ties go to the fingerprint seen first.
func ModalFingerprint(w *model.WorkloadResult) (string, bool) {
	counts := map[string]int{}
	var order []string
	for _, call := range w.Results {
		if !call.OK || call.PayloadFingerprint == nil {
			continue
		}
		fp := *call.PayloadFingerprint
		if _, seen := counts[fp]; !seen {
			order = append(order, fp)
		}
		counts[fp]++
	}
	best, bestCount := "", 0
	for _, fp := range order {
		if counts[fp] > bestCount {
			best, bestCount = fp, counts[fp]
		}
	}
	return best, bestCount > 0
}

// DetectDuplicates flags workloads of one server whose modal payloads are
// identical. Every ok_valid call in a flagged workload is demoted to ok_empty
// with reason duplicate_payload and the workload gets a note. It returns the
// flagged groups, each sorted by workload id. Nothing happens unless strict.
func DetectDuplicates(workloads []*model.WorkloadResult, strict bool) [][]string {
	if !strict {
		return nil
	}
	groups := map[string][]*model.WorkloadResult{}
	var order []string
	for _, w := range workloads {
		fp, ok := ModalFingerprint(w)
		if !ok {
			continue
		}
		if _, seen := groups[fp]; !seen {
			order = append(order, fp)
		}
		groups[fp] = append(groups[fp], w)
	}

	var flagged [][]string
	for _, fp := range order {
		members := groups[fp]
		if len(members) < 2 {
			continue
		}
		ids := make([]string, 0, len(members))
		for _, w := range members {
			ids = append(ids, w.WorkloadID)
		}
		sort.Strings(ids)
		note := DuplicateNotePrefix + strings.Join(ids, ", ")
		for _, w := range members {
			for i := range w.Results {
				call := &w.Results[i]
				if call.ValidationStatus == model.StatusOKValid {
					reason := ReasonDuplicate
					call.ValidationStatus = model.StatusOKEmpty
					call.ValidationReason = &reason
				}
			}
			w.Notes = append(w.Notes, note)
		}
		flagged = append(flagged, ids)
	}
	return flagged
}
