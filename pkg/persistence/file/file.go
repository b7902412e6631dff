// Package file provides file-based persistence implementation for flows, versions and executions.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/botflow/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
// Every entity is stored as one JSON document under a directory named after its kind.
type Persistence struct {
	store *store

	flowRepo      *FlowRepository
	versionRepo   *VersionRepository
	executionRepo *ExecutionRepository
	projectRepo   *ProjectRepository
	userRepo      *UserRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) persistence.Persistence {
	s := &store{root: strings.Replace(root, "file://", "", 1)}

	return &Persistence{
		store:         s,
		flowRepo:      &FlowRepository{store: s},
		versionRepo:   &VersionRepository{store: s},
		executionRepo: &ExecutionRepository{store: s},
		projectRepo:   &ProjectRepository{store: s},
		userRepo:      &UserRepository{store: s},
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.store.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) FlowRepository() persistence.FlowRepository           { return fp.flowRepo }
func (fp *Persistence) VersionRepository() persistence.VersionRepository     { return fp.versionRepo }
func (fp *Persistence) ExecutionRepository() persistence.ExecutionRepository { return fp.executionRepo }
func (fp *Persistence) ProjectRepository() persistence.ProjectRepository     { return fp.projectRepo }
func (fp *Persistence) UserRepository() persistence.UserRepository           { return fp.userRepo }

// store serializes access to the directory tree. Multi-document operations
// (publish, step append, bonus spend) hold the write lock for their whole span.
type store struct {
	root string
	mu   sync.RWMutex
}

// validateID validates that the ID is safe for file operations.
func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", persistence.ErrInvalidID)
	}

	// Check for path traversal attempts
	if strings.Contains(id, "..") || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: %q contains invalid characters", persistence.ErrInvalidID, id)
	}

	return nil
}

func (s *store) path(kind, id string) string {
	return filepath.Join(s.root, kind, id+".json")
}

func (s *store) write(kind, id string, v any) error {
	err := validateID(id)
	if err != nil {
		return err
	}

	dir := filepath.Join(s.root, kind)

	err = os.MkdirAll(dir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create %s directory: %w", kind, err)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s %s: %w", kind, id, err)
	}

	err = os.WriteFile(s.path(kind, id), data, 0600)
	if err != nil {
		return fmt.Errorf("failed to write %s %s: %w", kind, id, err)
	}

	return nil
}

// read decodes one document; found is false when it does not exist.
func (s *store) read(kind, id string, v any) (bool, error) {
	err := validateID(id)
	if err != nil {
		return false, err
	}

	data, err := os.ReadFile(s.path(kind, id)) // #nosec G304 -- id is validated above
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to read %s %s: %w", kind, id, err)
	}

	err = json.Unmarshal(data, v)
	if err != nil {
		return false, fmt.Errorf("failed to unmarshal %s %s: %w", kind, id, err)
	}

	return true, nil
}

func (s *store) remove(kind, id string) error {
	err := validateID(id)
	if err != nil {
		return err
	}

	err = os.Remove(s.path(kind, id))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s %s: %w", kind, id, err)
	}

	return nil
}

// readAll decodes every document of a kind in file name order.
func readAll[T any](s *store, kind string) ([]*T, error) {
	root := os.DirFS(filepath.Join(s.root, kind))

	// fs.Glob ignores a missing directory and returns no matches.
	files, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s files: %w", kind, err)
	}

	items := make([]*T, 0, len(files))

	for _, name := range files {
		data, err := fs.ReadFile(root, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s %s: %w", kind, name, err)
		}

		item := new(T)

		err = json.Unmarshal(data, item)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s %s: %w", kind, name, err)
		}

		items = append(items, item)
	}

	return items, nil
}

// page slices a filtered list according to limit and offset.
func page[T any](items []T, limit, offset int) ([]T, bool) {
	limit = persistence.NormalizeLimit(limit)
	if offset < 0 {
		offset = 0
	}

	if offset >= len(items) {
		return make([]T, 0), false
	}

	end := offset + limit
	if end > len(items) {
		end = len(items)
	}

	return items[offset:end], end < len(items)
}
