package domain

// ValueKind declares how a field's raw export values are normalized before comparison.
type ValueKind string

const (
	ValueKindString  ValueKind = "string"
	ValueKindNumber  ValueKind = "number"
	ValueKindDate    ValueKind = "date"
	ValueKindBoolean ValueKind = "boolean"
)

// Multiplicity records whether a field may repeat within one record.
type Multiplicity string

const (
	MultiplicitySingle Multiplicity = "single"
	MultiplicityMulti  Multiplicity = "multi"
)

// FieldDefinition describes one field path of an entity export. Only fields
// with Validated set participate in pass/fail determination; the rest are
// recorded for audit and otherwise ignored.
type FieldDefinition struct {
	Path         string       `json:"path" yaml:"path"`
	Kind         ValueKind    `json:"kind" yaml:"kind"`
	Multiplicity Multiplicity `json:"multiplicity" yaml:"multiplicity"`
	Validated    bool         `json:"validated" yaml:"validated"`
	Description  string       `json:"description,omitempty" yaml:"description,omitempty"`
}

// EntitySchema is the operator-curated definition of one entity type: its
// field inventory and the declared correlation key used to match records
// across snapshots. The export format carries no universal primary key, so
// the correlation key is explicit configuration, never inferred.
type EntitySchema struct {
	EntityType     string            `json:"entityType" yaml:"entityType"`
	Description    string            `json:"description,omitempty" yaml:"description,omitempty"`
	CorrelationKey []string          `json:"correlationKey" yaml:"correlationKey"`
	Fields         []FieldDefinition `json:"fields" yaml:"fields"`
}

// Field returns the definition for the given field path.
func (es EntitySchema) Field(path string) (FieldDefinition, bool) {
	for _, field := range es.Fields {
		if field.Path == path {
			return field, true
		}
	}
	return FieldDefinition{}, false
}

// HasField reports whether the schema declares the given field path.
func (es EntitySchema) HasField(path string) bool {
	_, ok := es.Field(path)
	return ok
}

// ValidatedFields returns the fields that participate in status computation,
// in declaration order.
func (es EntitySchema) ValidatedFields() []FieldDefinition {
	var validated []FieldDefinition
	for _, field := range es.Fields {
		if field.Validated {
			validated = append(validated, field)
		}
	}
	return validated
}

// WithFieldValidated returns a new schema with the field's validated flag
// updated. The second return value reports whether the field exists.
func (es EntitySchema) WithFieldValidated(path string, validated bool) (EntitySchema, bool) {
	newFields := copyFields(es.Fields)
	found := false
	for i, field := range newFields {
		if field.Path == path {
			newFields[i].Validated = validated
			found = true
			break
		}
	}
	if !found {
		return es, false
	}
	return EntitySchema{
		EntityType:     es.EntityType,
		Description:    es.Description,
		CorrelationKey: copyStrings(es.CorrelationKey),
		Fields:         newFields,
	}, true
}

// copyFields creates a copy of the fields slice to keep schemas immutable.
func copyFields(fields []FieldDefinition) []FieldDefinition {
	if fields == nil {
		return nil
	}
	newFields := make([]FieldDefinition, len(fields))
	copy(newFields, fields)
	return newFields
}

func copyStrings(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}
