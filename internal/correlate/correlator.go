// Package correlate matches candidate records to baseline records using the
// entity's declared correlation key. The export format has no universal
// primary key, so identity comes exclusively from operator-declared key
// fields; ambiguity is an error, never a guess.
package correlate

import (
	"sort"
	"strings"

	"github.com/rpattn/exportval/internal/domain"
)

// MatchedPair holds a baseline record and the candidate record that shares
// its correlation key.
type MatchedPair struct {
	Key       []string
	Baseline  domain.Record
	Candidate domain.Record
}

// Result partitions both sides' records by correlation outcome. Matched pairs
// go to the diff engine; Added and Removed records carry only one side;
// Unmatchable records lacked a complete key and are reported, not dropped.
type Result struct {
	Matched              []MatchedPair
	Added                []KeyedRecord
	Removed              []KeyedRecord
	UnmatchableBaseline  []domain.Record
	UnmatchableCandidate []domain.Record
}

// KeyedRecord pairs a record with its extracted correlation-key values.
type KeyedRecord struct {
	Key    []string
	Record domain.Record
}

type index struct {
	byKey       map[string]KeyedRecord
	keys        []string // insertion-ordered for deterministic iteration
	unmatchable []domain.Record
}

// Correlate builds key indexes for the baseline and candidate documents
// independently and partitions their records. Two records producing the same
// key on the same side abort correlation with a DuplicateKeyError naming the
// entity, the key values, and all colliding positions.
func Correlate(entityType string, key []string, baseline, candidate domain.Document) (Result, error) {
	baseIdx, err := buildIndex(entityType, "baseline", key, baseline.Records)
	if err != nil {
		return Result{}, err
	}
	candIdx, err := buildIndex(entityType, "candidate", key, candidate.Records)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		UnmatchableBaseline:  baseIdx.unmatchable,
		UnmatchableCandidate: candIdx.unmatchable,
	}

	for _, keyStr := range baseIdx.keys {
		base := baseIdx.byKey[keyStr]
		if cand, ok := candIdx.byKey[keyStr]; ok {
			result.Matched = append(result.Matched, MatchedPair{
				Key:       base.Key,
				Baseline:  base.Record,
				Candidate: cand.Record,
			})
		} else {
			result.Removed = append(result.Removed, base)
		}
	}
	for _, keyStr := range candIdx.keys {
		if _, ok := baseIdx.byKey[keyStr]; !ok {
			result.Added = append(result.Added, candIdx.byKey[keyStr])
		}
	}

	return result, nil
}

// buildIndex indexes one side's records by key. Collisions are collected
// across the whole side before failing, so the error names every offending
// position regardless of record order.
func buildIndex(entityType, side string, key []string, records []domain.Record) (index, error) {
	idx := index{byKey: make(map[string]KeyedRecord, len(records))}
	collisions := make(map[string][]int)

	for _, record := range records {
		values, ok := record.KeyValues(key)
		if !ok {
			idx.unmatchable = append(idx.unmatchable, record)
			continue
		}

		keyStr := strings.Join(values, "\x1f")
		if existing, dup := idx.byKey[keyStr]; dup {
			if len(collisions[keyStr]) == 0 {
				collisions[keyStr] = append(collisions[keyStr], existing.Record.Position)
			}
			collisions[keyStr] = append(collisions[keyStr], record.Position)
			continue
		}
		idx.byKey[keyStr] = KeyedRecord{Key: values, Record: record}
		idx.keys = append(idx.keys, keyStr)
	}

	if len(collisions) > 0 {
		// Report the first colliding key in deterministic order.
		dupKeys := make([]string, 0, len(collisions))
		for keyStr := range collisions {
			dupKeys = append(dupKeys, keyStr)
		}
		sort.Strings(dupKeys)
		first := dupKeys[0]
		positions := collisions[first]
		sort.Ints(positions)
		return index{}, &domain.DuplicateKeyError{
			EntityType: entityType,
			Side:       side,
			Key:        strings.Split(first, "\x1f"),
			Positions:  positions,
		}
	}

	return idx, nil
}
