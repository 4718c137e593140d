package domain

import "strings"

// Record is one row of an entity export: a sparse mapping from field path to
// zero-or-more raw values. Fields are optional per occurrence and may repeat
// within one record, so no fixed record shape is assumed.
type Record struct {
	// Position is the 1-based position of the row within the export,
	// used to name records in duplicate-key and schema errors.
	Position int                 `json:"position"`
	Tag      string              `json:"tag,omitempty"`
	Fields   map[string][]string `json:"fields"`
}

// NewRecord creates an empty record at the given export position.
func NewRecord(position int) Record {
	return Record{
		Position: position,
		Fields:   map[string][]string{},
	}
}

// Append adds one field occurrence, preserving occurrence order.
func (r Record) Append(path, value string) {
	r.Fields[path] = append(r.Fields[path], value)
}

// Values returns all occurrences of a field, nil when absent.
func (r Record) Values(path string) []string {
	return r.Fields[path]
}

// KeyValues extracts the record's correlation-key tuple. The second return
// value is false when any key field is absent or blank, which marks the
// record UNMATCHABLE.
func (r Record) KeyValues(key []string) ([]string, bool) {
	values := make([]string, 0, len(key))
	for _, field := range key {
		occurrences := r.Fields[field]
		if len(occurrences) == 0 {
			return nil, false
		}
		first := strings.TrimSpace(occurrences[0])
		if first == "" {
			return nil, false
		}
		values = append(values, first)
	}
	return values, true
}

// DocumentMeta captures the export's root authorship attributes. They are
// recorded for audit but not validated beyond presence.
type DocumentMeta struct {
	System    string `json:"system,omitempty"`
	Generated string `json:"generated,omitempty"`
	Author    string `json:"author,omitempty"`
}

// Document is a normalized in-memory entity export: the entity type, root
// metadata, and records in source order. Source order is preserved but not
// treated as semantically significant.
type Document struct {
	EntityType string       `json:"entityType"`
	Meta       DocumentMeta `json:"meta"`
	Records    []Record     `json:"records"`
}
