// Package validation orchestrates a full run: ingest the export, correlate
// it against the active baseline, diff the correlated records, and assemble
// the report. It also drives baseline promotion and the administrative
// version operations.
package validation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rpattn/exportval/internal/baseline"
	"github.com/rpattn/exportval/internal/correlate"
	"github.com/rpattn/exportval/internal/diff"
	"github.com/rpattn/exportval/internal/domain"
	"github.com/rpattn/exportval/internal/ingest"
	"github.com/rpattn/exportval/internal/registry"
)

// Service runs validations and promotions against one schema registry and
// one baseline store. Runs share only read access to both, so independent
// runs may execute fully in parallel; the store serializes promotions.
type Service struct {
	registry *registry.Registry
	ingestor *ingest.Service
	store    baseline.Store
	logger   *zap.Logger
}

// NewService creates a validation service.
func NewService(reg *registry.Registry, ingestor *ingest.Service, store baseline.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{registry: reg, ingestor: ingestor, store: store, logger: logger}
}

// ValidateRequest describes one validation run.
type ValidateRequest struct {
	EntityType string
	InstanceID string
	FileName   string
	Data       io.Reader
}

// Validate ingests the export and compares it field-by-field against the
// active baseline. A missing baseline is not fatal: the candidate is compared
// against an empty document and every record reports ADDED.
func (s *Service) Validate(ctx context.Context, req ValidateRequest) (domain.Report, error) {
	key, err := s.registry.CorrelationKey(req.EntityType)
	if err != nil {
		return domain.Report{}, err
	}
	schema, err := s.registry.GetSchema(req.EntityType)
	if err != nil {
		return domain.Report{}, err
	}

	candidate, err := s.ingestor.Ingest(ctx, ingest.Request{
		EntityType: req.EntityType,
		FileName:   req.FileName,
		Data:       req.Data,
	})
	if err != nil {
		return domain.Report{}, err
	}

	baselineDoc := domain.Document{EntityType: req.EntityType}
	baselineVersion := 0
	latest, err := s.store.Latest(ctx, req.EntityType, req.InstanceID)
	switch {
	case err == nil:
		baselineDoc = latest.Document
		baselineVersion = latest.Version
	case isBaselineNotFound(err):
		s.logger.Info("no baseline yet, comparing against empty document",
			zap.String("entity", req.EntityType),
			zap.String("instance", req.InstanceID))
	default:
		return domain.Report{}, err
	}

	result, err := correlate.Correlate(req.EntityType, key, baselineDoc, candidate)
	if err != nil {
		return domain.Report{}, err
	}

	diffs := diff.NewEngine(schema).Diff(result)
	report := domain.NewReport(req.EntityType, req.InstanceID, baselineVersion, diffs)
	report.CandidateFile = req.FileName

	s.logger.Info("validation run complete",
		zap.String("entity", req.EntityType),
		zap.String("instance", req.InstanceID),
		zap.Int("baselineVersion", baselineVersion),
		zap.String("status", string(report.Status)),
		zap.Int("records", report.Summary.Total),
		zap.Int("mismatched", report.Summary.Mismatched))
	return report, nil
}

// PromoteRequest describes a baseline promotion.
type PromoteRequest struct {
	EntityType string
	InstanceID string
	FileName   string
	Data       io.Reader
	// ExpectedVersion is the version the caller believes is current; nil
	// means "whatever is latest right now". Explicit values protect scripted
	// promotions from racing each other.
	ExpectedVersion *int
}

// Promote ingests the export and appends it as a new baseline version.
func (s *Service) Promote(ctx context.Context, req PromoteRequest) (domain.BaselineVersion, error) {
	// Ingest first so a document that fails schema validation can never be
	// promoted.
	doc, err := s.ingestor.Ingest(ctx, ingest.Request{
		EntityType: req.EntityType,
		FileName:   req.FileName,
		Data:       req.Data,
	})
	if err != nil {
		return domain.BaselineVersion{}, err
	}

	expected := 0
	if req.ExpectedVersion != nil {
		expected = *req.ExpectedVersion
	} else {
		latest, err := s.store.Latest(ctx, req.EntityType, req.InstanceID)
		if err != nil && !isBaselineNotFound(err) {
			return domain.BaselineVersion{}, err
		}
		if err == nil {
			expected = latest.Version
		}
	}

	promoted, err := s.store.Promote(ctx, req.EntityType, req.InstanceID, doc, expected)
	if err != nil {
		return domain.BaselineVersion{}, err
	}

	s.logger.Info("baseline promoted",
		zap.String("entity", req.EntityType),
		zap.String("instance", req.InstanceID),
		zap.Int("version", promoted.Version))
	return promoted, nil
}

// Rollback re-promotes the version-n snapshot as a new head version; prior
// history stays intact.
func (s *Service) Rollback(ctx context.Context, entityType, instanceID string, version int) (domain.BaselineVersion, error) {
	target, err := s.store.GetVersion(ctx, entityType, instanceID, version)
	if err != nil {
		return domain.BaselineVersion{}, err
	}
	latest, err := s.store.Latest(ctx, entityType, instanceID)
	if err != nil {
		return domain.BaselineVersion{}, err
	}
	if latest.Version == version {
		return domain.BaselineVersion{}, fmt.Errorf("version %d is already the active baseline", version)
	}

	promoted, err := s.store.Promote(ctx, entityType, instanceID, target.Document, latest.Version)
	if err != nil {
		return domain.BaselineVersion{}, err
	}

	s.logger.Info("baseline rolled back",
		zap.String("entity", entityType),
		zap.String("instance", instanceID),
		zap.Int("restoredFrom", version),
		zap.Int("newVersion", promoted.Version))
	return promoted, nil
}

// ListVersions returns the baseline history for an (entity, instance) pair.
func (s *Service) ListVersions(ctx context.Context, entityType, instanceID string) ([]domain.BaselineVersion, error) {
	return s.store.ListVersions(ctx, entityType, instanceID)
}

// FileRequest names one export file to validate.
type FileRequest struct {
	Path       string
	EntityType string
	InstanceID string
}

// FileResult pairs a file's report with its run error; exactly one is set.
type FileResult struct {
	Path   string
	Report domain.Report
	Err    error
}

// ValidateFiles runs independent validations for several export files in
// parallel. Each run fails or passes on its own; one entity's abort does not
// stop the others.
func (s *Service) ValidateFiles(ctx context.Context, reqs []FileRequest, concurrency int) []FileResult {
	if concurrency <= 0 {
		concurrency = 4
	}

	results := make([]FileResult, len(reqs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, req := range reqs {
		g.Go(func() error {
			results[i] = s.validateFile(ctx, req)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (s *Service) validateFile(ctx context.Context, req FileRequest) FileResult {
	result := FileResult{Path: req.Path}

	file, err := os.Open(req.Path)
	if err != nil {
		result.Err = fmt.Errorf("failed to open export: %w", err)
		return result
	}
	defer file.Close()

	result.Report, result.Err = s.Validate(ctx, ValidateRequest{
		EntityType: req.EntityType,
		InstanceID: req.InstanceID,
		FileName:   filepath.Base(req.Path),
		Data:       file,
	})
	return result
}

func isBaselineNotFound(err error) bool {
	var notFound *domain.BaselineNotFoundError
	return errors.As(err, &notFound)
}
