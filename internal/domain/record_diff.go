package domain

import "strings"

// FieldDiffStatus captures the outcome of comparing one field.
type FieldDiffStatus string

const (
	FieldDiffMatch    FieldDiffStatus = "MATCH"
	FieldDiffMismatch FieldDiffStatus = "MISMATCH"
	// FieldDiffIgnored marks non-validated fields: values are recorded for
	// audit but never affect record or report status.
	FieldDiffIgnored FieldDiffStatus = "IGNORED"
	FieldDiffAdded   FieldDiffStatus = "ADDED"
	FieldDiffRemoved FieldDiffStatus = "REMOVED"
)

// RecordDiffStatus captures the outcome of comparing one correlated record.
type RecordDiffStatus string

const (
	RecordDiffMatch       RecordDiffStatus = "MATCH"
	RecordDiffMismatch    RecordDiffStatus = "MISMATCH"
	RecordDiffAdded       RecordDiffStatus = "ADDED"
	RecordDiffRemoved     RecordDiffStatus = "REMOVED"
	RecordDiffUnmatchable RecordDiffStatus = "UNMATCHABLE"
)

// FieldDiff records both sides' raw values for one field of a correlated pair.
type FieldDiff struct {
	Field           string          `json:"field"`
	BaselineValues  []string        `json:"baselineValues,omitempty"`
	CandidateValues []string        `json:"candidateValues,omitempty"`
	Status          FieldDiffStatus `json:"status"`
}

// RecordDiff is the comparison result for one logical record, addressed by
// its correlation-key values.
type RecordDiff struct {
	Status RecordDiffStatus `json:"status"`
	Key    []string         `json:"key"`
	// Position is the record's 1-based source position, kept so UNMATCHABLE
	// records remain addressable without a key.
	Position int         `json:"position,omitempty"`
	Tag      string      `json:"tag,omitempty"`
	Fields   []FieldDiff `json:"fields"`
}

// KeyString renders the correlation-key tuple for presentation.
func (rd RecordDiff) KeyString() string {
	return strings.Join(rd.Key, ", ")
}

// keySortString is an unambiguous form used only for stable ordering.
func (rd RecordDiff) keySortString() string {
	return strings.Join(rd.Key, "\x1f")
}
