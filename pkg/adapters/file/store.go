package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/deckhand/pkg/domain"
)

// DefaultBasePath is where stage watermarks live when no root is configured.
const DefaultBasePath = "/var/lib/deckhand/stages"

// Store implements ports.StageStore using the local filesystem.
// Each request id owns one plain-text file holding the decimal stage number.
type Store struct {
	BasePath string
}

// New creates a new Store with the given base path.
// If basePath is empty, it defaults to DefaultBasePath.
func New(basePath string) *Store {
	if basePath == "" {
		basePath = DefaultBasePath
	}
	return &Store{BasePath: basePath}
}

func (s *Store) path(requestID string) (string, error) {
	if requestID == "" {
		return "", fmt.Errorf("requestID cannot be empty")
	}
	if strings.ContainsAny(requestID, `/\`) || requestID == "." || requestID == ".." {
		return "", fmt.Errorf("invalid requestID %q", requestID)
	}
	return filepath.Join(s.BasePath, requestID), nil
}

// Save persists the watermark atomically.
// It writes to a temporary file first, syncs via fsync, and then renames it to the destination.
func (s *Store) Save(ctx context.Context, requestID string, stage int) error {
	destPath, err := s.path(requestID)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.BasePath, 0755); err != nil {
		return fmt.Errorf("failed to ensure stage directory: %w", err)
	}

	// Same directory keeps the rename on one filesystem.
	tmpFile, err := os.CreateTemp(s.BasePath, ".tmp-"+requestID+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.WriteString(domain.FormatStage(stage)); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file to stage file: %w", err)
	}
	return nil
}

// Load reads the watermark of requestID.
func (s *Store) Load(ctx context.Context, requestID string) (int, error) {
	filePath, err := s.path(requestID)
	if err != nil {
		return 0, err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, domain.ErrStageNotFound
		}
		return 0, fmt.Errorf("failed to read stage file: %w", err)
	}
	return domain.ParseStage(string(data))
}

// Delete removes the stage file.
func (s *Store) Delete(ctx context.Context, requestID string) error {
	filePath, err := s.path(requestID)
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete stage file: %w", err)
	}
	return nil
}

// List returns the request ids that hold a stage file.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list stages: %w", err)
	}

	ids := []string{}
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		ids = append(ids, entry.Name())
	}
	return ids, nil
}
