package baseline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rpattn/exportval/internal/domain"
)

const pgUniqueViolation = "23505"

// PostgresStore keeps baseline history in the baseline_versions table.
// Promotion runs in a transaction and the (entity, instance, version)
// primary key makes the loser of a racing promotion fail with ConflictError
// instead of silently overwriting the winner.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed baseline store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func scanVersion(row pgx.Row, entityType, instanceID string) (domain.BaselineVersion, error) {
	var stored domain.BaselineVersion
	var payload []byte
	err := row.Scan(&stored.ID, &stored.Version, &stored.CreatedAt, &payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.BaselineVersion{}, &domain.BaselineNotFoundError{EntityType: entityType, InstanceID: instanceID}
	}
	if err != nil {
		return domain.BaselineVersion{}, fmt.Errorf("failed to read baseline version: %w", err)
	}
	if err := json.Unmarshal(payload, &stored.Document); err != nil {
		return domain.BaselineVersion{}, fmt.Errorf("failed to decode baseline document: %w", err)
	}
	stored.EntityType = entityType
	stored.InstanceID = instanceID
	return stored, nil
}

// Latest returns the active baseline version.
func (s *PostgresStore) Latest(ctx context.Context, entityType, instanceID string) (domain.BaselineVersion, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, version, created_at, document
		FROM baseline_versions
		WHERE entity_type = $1 AND instance_id = $2
		ORDER BY version DESC
		LIMIT 1`, entityType, instanceID)
	return scanVersion(row, entityType, instanceID)
}

// GetVersion returns one historical version.
func (s *PostgresStore) GetVersion(ctx context.Context, entityType, instanceID string, version int) (domain.BaselineVersion, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, version, created_at, document
		FROM baseline_versions
		WHERE entity_type = $1 AND instance_id = $2 AND version = $3`,
		entityType, instanceID, version)
	return scanVersion(row, entityType, instanceID)
}

// ListVersions returns all versions in ascending order.
func (s *PostgresStore) ListVersions(ctx context.Context, entityType, instanceID string) ([]domain.BaselineVersion, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, version, created_at, document
		FROM baseline_versions
		WHERE entity_type = $1 AND instance_id = $2
		ORDER BY version ASC`, entityType, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list baseline versions: %w", err)
	}
	defer rows.Close()

	var result []domain.BaselineVersion
	for rows.Next() {
		var stored domain.BaselineVersion
		var payload []byte
		if err := rows.Scan(&stored.ID, &stored.Version, &stored.CreatedAt, &payload); err != nil {
			return nil, fmt.Errorf("failed to read baseline version: %w", err)
		}
		if err := json.Unmarshal(payload, &stored.Document); err != nil {
			return nil, fmt.Errorf("failed to decode baseline document: %w", err)
		}
		stored.EntityType = entityType
		stored.InstanceID = instanceID
		result = append(result, stored)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list baseline versions: %w", err)
	}
	return result, nil
}

// Promote appends the document as the next version.
func (s *PostgresStore) Promote(ctx context.Context, entityType, instanceID string, doc domain.Document, expectedCurrent int) (domain.BaselineVersion, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return domain.BaselineVersion{}, fmt.Errorf("failed to encode baseline document: %w", err)
	}

	next := domain.NewBaselineVersion(entityType, instanceID, expectedCurrent+1, doc)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.BaselineVersion{}, fmt.Errorf("failed to begin promotion: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var latest int
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(version), 0)
		FROM baseline_versions
		WHERE entity_type = $1 AND instance_id = $2`, entityType, instanceID).Scan(&latest)
	if err != nil {
		return domain.BaselineVersion{}, fmt.Errorf("failed to read latest baseline version: %w", err)
	}
	if latest != expectedCurrent {
		return domain.BaselineVersion{}, &domain.ConflictError{
			EntityType: entityType,
			InstanceID: instanceID,
			Expected:   expectedCurrent,
			Latest:     latest,
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO baseline_versions (id, entity_type, instance_id, version, created_at, document)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		next.ID, entityType, instanceID, next.Version, next.CreatedAt, payload)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return domain.BaselineVersion{}, &domain.ConflictError{
				EntityType: entityType,
				InstanceID: instanceID,
				Expected:   expectedCurrent,
				Latest:     next.Version,
			}
		}
		return domain.BaselineVersion{}, fmt.Errorf("failed to insert baseline version: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.BaselineVersion{}, fmt.Errorf("failed to commit promotion: %w", err)
	}
	return next, nil
}
