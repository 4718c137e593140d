package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// ReportStatus is the overall outcome of a validation run.
type ReportStatus string

const (
	ReportStatusPass ReportStatus = "PASS"
	ReportStatusFail ReportStatus = "FAIL"
)

// Summary aggregates record diff counts per status.
type Summary struct {
	Total       int `json:"total"`
	Matched     int `json:"matched"`
	Mismatched  int `json:"mismatched"`
	Added       int `json:"added"`
	Removed     int `json:"removed"`
	Unmatchable int `json:"unmatchable"`
}

// Report is the final, immutable result of validating one export against the
// active baseline. It is a pure function of the record diff set: deterministic
// counts, overall status, and stable presentation ordering by correlation key.
type Report struct {
	RunID           uuid.UUID    `json:"runId"`
	EntityType      string       `json:"entityType"`
	InstanceID      string       `json:"instanceId"`
	BaselineVersion int          `json:"baselineVersion"`
	CandidateFile   string       `json:"candidateFile,omitempty"`
	GeneratedAt     time.Time    `json:"generatedAt"`
	Records         []RecordDiff `json:"records"`
	Summary         Summary      `json:"summary"`
	Status          ReportStatus `json:"status"`
}

// NewReport builds a report from record diffs, sorting them by correlation
// key (UNMATCHABLE records by source position, after keyed ones) and deriving
// counts and overall status. Any record diff other than MATCH fails the run.
func NewReport(entityType, instanceID string, baselineVersion int, diffs []RecordDiff) Report {
	sorted := make([]RecordDiff, len(diffs))
	copy(sorted, diffs)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if (a.Status == RecordDiffUnmatchable) != (b.Status == RecordDiffUnmatchable) {
			return b.Status == RecordDiffUnmatchable
		}
		if a.Status == RecordDiffUnmatchable {
			return a.Position < b.Position
		}
		if ka, kb := a.keySortString(), b.keySortString(); ka != kb {
			return ka < kb
		}
		return a.Position < b.Position
	})

	summary := Summary{Total: len(sorted)}
	status := ReportStatusPass
	for _, diff := range sorted {
		switch diff.Status {
		case RecordDiffMatch:
			summary.Matched++
		case RecordDiffMismatch:
			summary.Mismatched++
			status = ReportStatusFail
		case RecordDiffAdded:
			summary.Added++
			status = ReportStatusFail
		case RecordDiffRemoved:
			summary.Removed++
			status = ReportStatusFail
		case RecordDiffUnmatchable:
			summary.Unmatchable++
			status = ReportStatusFail
		}
	}

	return Report{
		RunID:           uuid.New(),
		EntityType:      entityType,
		InstanceID:      instanceID,
		BaselineVersion: baselineVersion,
		GeneratedAt:     time.Now().UTC(),
		Records:         sorted,
		Summary:         summary,
		Status:          status,
	}
}
