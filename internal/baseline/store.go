// Package baseline persists the versioned canonical snapshots that exports
// are validated against. History is append-only: promotion writes a new
// version, never mutates or deletes prior ones, and is conditional on the
// caller's expected current version (optimistic concurrency).
package baseline

import (
	"context"

	"github.com/rpattn/exportval/internal/domain"
)

// Store is the baseline persistence interface. Implementations must make a
// losing concurrent promotion fail with ConflictError rather than silently
// lose an update, and must never expose a partially written version.
type Store interface {
	// Latest returns the active baseline version, or BaselineNotFoundError
	// when no version exists yet for the (entity, instance) pair.
	Latest(ctx context.Context, entityType, instanceID string) (domain.BaselineVersion, error)

	// GetVersion returns one specific historical version.
	GetVersion(ctx context.Context, entityType, instanceID string, version int) (domain.BaselineVersion, error)

	// ListVersions returns all versions in ascending version order.
	ListVersions(ctx context.Context, entityType, instanceID string) ([]domain.BaselineVersion, error)

	// Promote appends the document as version expectedCurrent+1, failing with
	// ConflictError when expectedCurrent is no longer the latest version.
	// expectedCurrent 0 establishes version 1.
	Promote(ctx context.Context, entityType, instanceID string, doc domain.Document, expectedCurrent int) (domain.BaselineVersion, error)
}
