package domain

import (
	"time"

	"github.com/google/uuid"
)

// BaselineVersion is one immutable entry in the append-only baseline history
// for an (entity type, production instance) pair. Version numbers are
// monotonic starting at 1; the highest version is the active baseline.
type BaselineVersion struct {
	ID         uuid.UUID `json:"id"`
	EntityType string    `json:"entityType"`
	InstanceID string    `json:"instanceId"`
	Version    int       `json:"version"`
	CreatedAt  time.Time `json:"createdAt"`
	Document   Document  `json:"document"`
}

// NewBaselineVersion creates the next version entry for a promoted document.
func NewBaselineVersion(entityType, instanceID string, version int, doc Document) BaselineVersion {
	return BaselineVersion{
		ID:         uuid.New(),
		EntityType: entityType,
		InstanceID: instanceID,
		Version:    version,
		CreatedAt:  time.Now().UTC(),
		Document:   doc,
	}
}
