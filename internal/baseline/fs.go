package baseline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"

	"github.com/rpattn/exportval/internal/domain"
)

var versionFilePattern = regexp.MustCompile(`^v(\d{6})\.json$`)

// FSStore keeps baseline history on the local filesystem, one JSON file per
// version under <root>/<entity>/<instance>/v%06d.json. Writes go through a
// temp file and rename, so a crash mid-promotion leaves no observable
// partial version. Promotions are serialized per (entity, instance) by an
// in-process lock; the store assumes a single writing process, which is how
// the validator runs.
type FSStore struct {
	root string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewFSStore creates a filesystem store rooted at dir.
func NewFSStore(dir string) *FSStore {
	return &FSStore{root: dir, locks: make(map[string]*sync.Mutex)}
}

func (s *FSStore) keyLock(entityType, instanceID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := entityType + "\x1f" + instanceID
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}

func (s *FSStore) dir(entityType, instanceID string) string {
	return filepath.Join(s.root, entityType, instanceID)
}

func (s *FSStore) versionPath(entityType, instanceID string, version int) string {
	return filepath.Join(s.dir(entityType, instanceID), fmt.Sprintf("v%06d.json", version))
}

// versionNumbers lists stored version numbers in ascending order.
func (s *FSStore) versionNumbers(entityType, instanceID string) ([]int, error) {
	entries, err := os.ReadDir(s.dir(entityType, instanceID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read baseline directory: %w", err)
	}

	var versions []int
	for _, entry := range entries {
		match := versionFilePattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		version, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		versions = append(versions, version)
	}
	sort.Ints(versions)
	return versions, nil
}

func (s *FSStore) read(entityType, instanceID string, version int) (domain.BaselineVersion, error) {
	payload, err := os.ReadFile(s.versionPath(entityType, instanceID, version))
	if errors.Is(err, fs.ErrNotExist) {
		return domain.BaselineVersion{}, &domain.BaselineNotFoundError{EntityType: entityType, InstanceID: instanceID}
	}
	if err != nil {
		return domain.BaselineVersion{}, fmt.Errorf("failed to read baseline version %d: %w", version, err)
	}

	var stored domain.BaselineVersion
	if err := json.Unmarshal(payload, &stored); err != nil {
		return domain.BaselineVersion{}, fmt.Errorf("failed to decode baseline version %d: %w", version, err)
	}
	return stored, nil
}

// Latest returns the active baseline version.
func (s *FSStore) Latest(ctx context.Context, entityType, instanceID string) (domain.BaselineVersion, error) {
	if err := ctx.Err(); err != nil {
		return domain.BaselineVersion{}, err
	}
	versions, err := s.versionNumbers(entityType, instanceID)
	if err != nil {
		return domain.BaselineVersion{}, err
	}
	if len(versions) == 0 {
		return domain.BaselineVersion{}, &domain.BaselineNotFoundError{EntityType: entityType, InstanceID: instanceID}
	}
	return s.read(entityType, instanceID, versions[len(versions)-1])
}

// GetVersion returns one historical version.
func (s *FSStore) GetVersion(ctx context.Context, entityType, instanceID string, version int) (domain.BaselineVersion, error) {
	if err := ctx.Err(); err != nil {
		return domain.BaselineVersion{}, err
	}
	return s.read(entityType, instanceID, version)
}

// ListVersions returns all versions in ascending order.
func (s *FSStore) ListVersions(ctx context.Context, entityType, instanceID string) ([]domain.BaselineVersion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	versions, err := s.versionNumbers(entityType, instanceID)
	if err != nil {
		return nil, err
	}

	result := make([]domain.BaselineVersion, 0, len(versions))
	for _, version := range versions {
		stored, err := s.read(entityType, instanceID, version)
		if err != nil {
			return nil, err
		}
		result = append(result, stored)
	}
	return result, nil
}

// Promote appends the document as the next version.
func (s *FSStore) Promote(ctx context.Context, entityType, instanceID string, doc domain.Document, expectedCurrent int) (domain.BaselineVersion, error) {
	if err := ctx.Err(); err != nil {
		return domain.BaselineVersion{}, err
	}

	lock := s.keyLock(entityType, instanceID)
	lock.Lock()
	defer lock.Unlock()

	versions, err := s.versionNumbers(entityType, instanceID)
	if err != nil {
		return domain.BaselineVersion{}, err
	}
	latest := 0
	if len(versions) > 0 {
		latest = versions[len(versions)-1]
	}
	if latest != expectedCurrent {
		return domain.BaselineVersion{}, &domain.ConflictError{
			EntityType: entityType,
			InstanceID: instanceID,
			Expected:   expectedCurrent,
			Latest:     latest,
		}
	}

	next := domain.NewBaselineVersion(entityType, instanceID, latest+1, doc)
	if err := s.write(next); err != nil {
		return domain.BaselineVersion{}, err
	}
	return next, nil
}

func (s *FSStore) write(version domain.BaselineVersion) error {
	dir := s.dir(version.EntityType, version.InstanceID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create baseline directory: %w", err)
	}

	payload, err := json.MarshalIndent(version, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode baseline version: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".promote-*.json")
	if err != nil {
		return fmt.Errorf("failed to stage baseline version: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write baseline version: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to flush baseline version: %w", err)
	}
	if err := os.Rename(tmpName, s.versionPath(version.EntityType, version.InstanceID, version.Version)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to commit baseline version: %w", err)
	}
	return nil
}
