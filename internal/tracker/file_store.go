package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrCorruptState indicates the state file exists but cannot be decoded.
var ErrCorruptState = errors.New("processed state is corrupt")

// Store reads and writes the durable form of a Set.
type Store interface {
	Load(ctx context.Context) (Set, error)
	Save(ctx context.Context, set Set) error
}

// FileStore persists a Set as a JSON array in a single file.
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore for path.
func NewFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("state file path is required")
	}
	return &FileStore{path: path}, nil
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load returns an empty set when the file does not exist.
func (s *FileStore) Load(_ context.Context) (Set, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Set{}, nil
		}
		return Set{}, fmt.Errorf("read state file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return Set{}, nil
	}
	var set Set
	if err := json.Unmarshal(data, &set); err != nil {
		return Set{}, fmt.Errorf("%w: %s: %v", ErrCorruptState, s.path, err)
	}
	return set, nil
}

// Save replaces the file atomically via a temp file and rename.
func (s *FileStore) Save(_ context.Context, set Set) error {
	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpName)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
