// Package registry holds the operator-curated catalog of entity schemas: the
// field inventory per entity type, which fields are validated, and the
// declared correlation key. The catalog is a YAML file edited offline and
// loaded once at process start; it is read-only for the duration of a
// validation run.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/rpattn/exportval/internal/domain"
)

// Catalog is the on-disk layout of the schema registry file.
type Catalog struct {
	Entities []domain.EntitySchema `yaml:"entities"`
}

// Registry resolves entity schemas and applies curation mutations. Mutations
// happen pre-run (curation time), never during a validation run, but the
// mutex keeps concurrent curation safe anyway.
type Registry struct {
	mu      sync.RWMutex
	path    string
	schemas map[string]domain.EntitySchema
}

// Load reads the catalog file and builds a registry from it.
func Load(path string) (*Registry, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema catalog: %w", err)
	}

	var catalog Catalog
	if err := yaml.Unmarshal(payload, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse schema catalog %s: %w", path, err)
	}

	schemas := make(map[string]domain.EntitySchema, len(catalog.Entities))
	for _, schema := range catalog.Entities {
		if schema.EntityType == "" {
			return nil, fmt.Errorf("schema catalog %s: entry without entityType", path)
		}
		if _, exists := schemas[schema.EntityType]; exists {
			return nil, fmt.Errorf("schema catalog %s: duplicate entity type %s", path, schema.EntityType)
		}
		schemas[schema.EntityType] = schema
	}

	return &Registry{path: path, schemas: schemas}, nil
}

// New builds an in-memory registry from schemas, without file persistence.
func New(schemas ...domain.EntitySchema) *Registry {
	byType := make(map[string]domain.EntitySchema, len(schemas))
	for _, schema := range schemas {
		byType[schema.EntityType] = schema
	}
	return &Registry{schemas: byType}
}

// GetSchema returns the schema for an entity type.
func (r *Registry) GetSchema(entityType string) (domain.EntitySchema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schema, ok := r.schemas[entityType]
	if !ok {
		return domain.EntitySchema{}, &domain.SchemaMismatchError{
			EntityType: entityType,
			Reason:     "no schema registered for entity type",
		}
	}
	return schema, nil
}

// CorrelationKey returns the declared correlation-key field list for an
// entity type. An entity without one cannot be validated until an operator
// declares it.
func (r *Registry) CorrelationKey(entityType string) ([]string, error) {
	schema, err := r.GetSchema(entityType)
	if err != nil {
		return nil, err
	}
	if len(schema.CorrelationKey) == 0 {
		return nil, &domain.ConfigurationError{
			EntityType: entityType,
			Reason:     "no correlation key declared",
		}
	}
	for _, field := range schema.CorrelationKey {
		if !schema.HasField(field) {
			return nil, &domain.ConfigurationError{
				EntityType: entityType,
				Reason:     fmt.Sprintf("correlation key field %s is not in the field inventory", field),
			}
		}
	}
	return schema.CorrelationKey, nil
}

// MarkValidated flips a field's validated flag and persists the catalog when
// the registry is file-backed. Curation-time operation.
func (r *Registry) MarkValidated(entityType, fieldPath string, validated bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	schema, ok := r.schemas[entityType]
	if !ok {
		return &domain.SchemaMismatchError{
			EntityType: entityType,
			Reason:     "no schema registered for entity type",
		}
	}

	updated, found := schema.WithFieldValidated(fieldPath, validated)
	if !found {
		return &domain.SchemaMismatchError{
			EntityType: entityType,
			Field:      fieldPath,
			Reason:     "field is not in the field inventory",
		}
	}
	r.schemas[entityType] = updated

	if r.path == "" {
		return nil
	}
	return r.save()
}

// EntityTypes lists registered entity types, sorted.
func (r *Registry) EntityTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.schemas))
	for entityType := range r.schemas {
		types = append(types, entityType)
	}
	sort.Strings(types)
	return types
}

// save writes the catalog back to its file via a temp file and rename, so a
// crash mid-write never truncates the operator's catalog.
func (r *Registry) save() error {
	catalog := Catalog{Entities: make([]domain.EntitySchema, 0, len(r.schemas))}
	for _, entityType := range r.entityTypesLocked() {
		catalog.Entities = append(catalog.Entities, r.schemas[entityType])
	}

	payload, err := yaml.Marshal(catalog)
	if err != nil {
		return fmt.Errorf("failed to encode schema catalog: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.path), ".catalog-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to stage schema catalog: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write schema catalog: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to flush schema catalog: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace schema catalog: %w", err)
	}
	return nil
}

func (r *Registry) entityTypesLocked() []string {
	types := make([]string, 0, len(r.schemas))
	for entityType := range r.schemas {
		types = append(types, entityType)
	}
	sort.Strings(types)
	return types
}
