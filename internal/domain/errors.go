package domain

import (
	"fmt"
	"strings"
)

// ParseError reports a structurally malformed export. It aborts the file.
type ParseError struct {
	File string
	Err  error
}

func (e *ParseError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("malformed export: %v", e.Err)
	}
	return fmt.Sprintf("malformed export %s: %v", e.File, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// SchemaMismatchError reports an unknown entity type or an undeclared field
// path in the export. It aborts the entity.
type SchemaMismatchError struct {
	EntityType string
	Field      string
	Position   int
	Reason     string
}

func (e *SchemaMismatchError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("entity %s: %s", e.EntityType, e.Reason)
	}
	return fmt.Sprintf("entity %s record %d: field %s: %s", e.EntityType, e.Position, e.Field, e.Reason)
}

// ConfigurationError reports missing curation configuration, such as an
// entity with no declared correlation key. It must be fixed by an operator,
// never inferred.
type ConfigurationError struct {
	EntityType string
	Reason     string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("entity %s: %s", e.EntityType, e.Reason)
}

// DuplicateKeyError reports two records on the same side of a comparison
// producing an identical correlation key. Ambiguous identity must not be
// guessed, so the run aborts for the entity with every colliding record
// position named.
type DuplicateKeyError struct {
	EntityType string
	Side       string // "baseline" or "candidate"
	Key        []string
	Positions  []int
}

func (e *DuplicateKeyError) Error() string {
	positions := make([]string, len(e.Positions))
	for i, p := range e.Positions {
		positions[i] = fmt.Sprintf("%d", p)
	}
	return fmt.Sprintf("entity %s: duplicate correlation key [%s] in %s records %s",
		e.EntityType, strings.Join(e.Key, ", "), e.Side, strings.Join(positions, ", "))
}

// BaselineNotFoundError reports that no baseline version exists yet for an
// (entity, instance) pair. Not fatal: validation treats it as an empty
// baseline and the first promotion establishes version 1.
type BaselineNotFoundError struct {
	EntityType string
	InstanceID string
}

func (e *BaselineNotFoundError) Error() string {
	return fmt.Sprintf("no baseline for entity %s instance %s", e.EntityType, e.InstanceID)
}

// ConflictError reports a stale promotion: the caller's expected current
// version no longer matches the store's latest. The caller must re-fetch and
// retry.
type ConflictError struct {
	EntityType string
	InstanceID string
	Expected   int
	Latest     int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("stale promotion for entity %s instance %s: expected version %d, latest is %d",
		e.EntityType, e.InstanceID, e.Expected, e.Latest)
}
