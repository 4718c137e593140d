// Package diff compares correlated records field-by-field under the entity
// schema's validation-selection rules.
package diff

import (
	"github.com/rpattn/exportval/internal/correlate"
	"github.com/rpattn/exportval/internal/domain"
)

// Engine produces record diffs for the outcome of a correlation pass.
type Engine struct {
	schema domain.EntitySchema
}

// NewEngine creates a diff engine bound to one entity schema.
func NewEngine(schema domain.EntitySchema) *Engine {
	return &Engine{schema: schema}
}

// Diff converts a correlation result into record diffs: matched pairs are
// compared field-by-field, one-sided records become ADDED/REMOVED with their
// full field set, and records without a complete key become UNMATCHABLE.
func (e *Engine) Diff(result correlate.Result) []domain.RecordDiff {
	diffs := make([]domain.RecordDiff, 0,
		len(result.Matched)+len(result.Added)+len(result.Removed)+
			len(result.UnmatchableBaseline)+len(result.UnmatchableCandidate))

	for _, pair := range result.Matched {
		diffs = append(diffs, e.diffPair(pair))
	}
	for _, added := range result.Added {
		diffs = append(diffs, e.oneSided(domain.RecordDiffAdded, domain.FieldDiffAdded, added, false))
	}
	for _, removed := range result.Removed {
		diffs = append(diffs, e.oneSided(domain.RecordDiffRemoved, domain.FieldDiffRemoved, removed, true))
	}
	for _, record := range result.UnmatchableBaseline {
		diffs = append(diffs, e.unmatchable(record, true))
	}
	for _, record := range result.UnmatchableCandidate {
		diffs = append(diffs, e.unmatchable(record, false))
	}

	return diffs
}

// diffPair iterates the schema's fields in declaration order. A validated
// field mismatches when the two sides' normalized value multisets differ;
// non-validated fields are always IGNORED and never affect record status.
func (e *Engine) diffPair(pair correlate.MatchedPair) domain.RecordDiff {
	recordStatus := domain.RecordDiffMatch
	fields := make([]domain.FieldDiff, 0, len(e.schema.Fields))

	for _, field := range e.schema.Fields {
		baseValues := pair.Baseline.Values(field.Path)
		candValues := pair.Candidate.Values(field.Path)
		if len(baseValues) == 0 && len(candValues) == 0 {
			continue
		}

		fieldDiff := domain.FieldDiff{
			Field:           field.Path,
			BaselineValues:  baseValues,
			CandidateValues: candValues,
		}

		if !field.Validated {
			fieldDiff.Status = domain.FieldDiffIgnored
		} else if multisetsEqual(field.Kind, baseValues, candValues) {
			fieldDiff.Status = domain.FieldDiffMatch
		} else {
			fieldDiff.Status = domain.FieldDiffMismatch
			recordStatus = domain.RecordDiffMismatch
		}

		fields = append(fields, fieldDiff)
	}

	return domain.RecordDiff{
		Status:   recordStatus,
		Key:      pair.Key,
		Position: pair.Candidate.Position,
		Tag:      pair.Candidate.Tag,
		Fields:   fields,
	}
}

func (e *Engine) oneSided(recordStatus domain.RecordDiffStatus, fieldStatus domain.FieldDiffStatus, keyed correlate.KeyedRecord, baselineSide bool) domain.RecordDiff {
	fields := make([]domain.FieldDiff, 0, len(e.schema.Fields))
	for _, field := range e.schema.Fields {
		values := keyed.Record.Values(field.Path)
		if len(values) == 0 {
			continue
		}
		fieldDiff := domain.FieldDiff{Field: field.Path, Status: fieldStatus}
		if baselineSide {
			fieldDiff.BaselineValues = values
		} else {
			fieldDiff.CandidateValues = values
		}
		fields = append(fields, fieldDiff)
	}
	return domain.RecordDiff{
		Status:   recordStatus,
		Key:      keyed.Key,
		Position: keyed.Record.Position,
		Tag:      keyed.Record.Tag,
		Fields:   fields,
	}
}

func (e *Engine) unmatchable(record domain.Record, baselineSide bool) domain.RecordDiff {
	fields := make([]domain.FieldDiff, 0, len(e.schema.Fields))
	for _, field := range e.schema.Fields {
		values := record.Values(field.Path)
		if len(values) == 0 {
			continue
		}
		fieldDiff := domain.FieldDiff{Field: field.Path, Status: domain.FieldDiffIgnored}
		if baselineSide {
			fieldDiff.BaselineValues = values
		} else {
			fieldDiff.CandidateValues = values
		}
		fields = append(fields, fieldDiff)
	}
	return domain.RecordDiff{
		Status:   domain.RecordDiffUnmatchable,
		Position: record.Position,
		Tag:      record.Tag,
		Fields:   fields,
	}
}

// multisetsEqual compares two value sets as multisets after normalization:
// repeated fields tolerate exporter reordering but not changed occurrence
// counts.
func multisetsEqual(kind domain.ValueKind, base, cand []string) bool {
	if len(base) != len(cand) {
		return false
	}
	counts := make(map[string]int, len(base))
	for _, value := range base {
		counts[normalize(kind, value)]++
	}
	for _, value := range cand {
		normalized := normalize(kind, value)
		counts[normalized]--
		if counts[normalized] < 0 {
			return false
		}
	}
	return true
}
