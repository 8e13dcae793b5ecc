// Package fs implements the staging-tree filesystem store. Every failure is
// tagged as a filesystem error so the job engine can classify it; no
// component above this one touches OS file APIs directly.
package fs

import (
	"fmt"
	"os"

	"github.com/ahrav/osmdbt-courier/internal/domain/replication"
)

// Store performs file operations on the local staging tree.
type Store struct{}

// NewStore creates a filesystem store.
func NewStore() *Store { return &Store{} }

// MkdirAll creates the directory and any missing parents. Creating an
// existing directory is not an error.
func (s *Store) MkdirAll(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return replication.NewError(replication.KindFS, fmt.Errorf("mkdir %s: %w", path, err))
	}
	return nil
}

// ReadFile returns the full content of the file.
func (s *Store) ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, replication.NewError(replication.KindFS, fmt.Errorf("read %s: %w", path, err))
	}
	return data, nil
}

// ReadFileText returns the full content of the file as a string.
func (s *Store) ReadFileText(path string) (string, error) {
	data, err := s.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// WriteFile writes data to the file, creating or truncating it.
func (s *Store) WriteFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return replication.NewError(replication.KindFS, fmt.Errorf("write %s: %w", path, err))
	}
	return nil
}

// AppendText appends text to the file, creating it if needed.
func (s *Store) AppendText(path, text string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return replication.NewError(replication.KindFS, fmt.Errorf("open %s: %w", path, err))
	}
	defer f.Close()

	if _, err := f.WriteString(text); err != nil {
		return replication.NewError(replication.KindFS, fmt.Errorf("append %s: %w", path, err))
	}
	return nil
}

// ReadDir returns the entry names in the directory. Order is not defined;
// callers must not rely on it.
func (s *Store) ReadDir(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, replication.NewError(replication.KindFS, fmt.Errorf("readdir %s: %w", path, err))
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

// Rename moves oldPath to newPath.
func (s *Store) Rename(oldPath, newPath string) error {
	if err := os.Rename(oldPath, newPath); err != nil {
		return replication.NewError(replication.KindFS, fmt.Errorf("rename %s -> %s: %w", oldPath, newPath, err))
	}
	return nil
}

// Unlink removes the file.
func (s *Store) Unlink(path string) error {
	if err := os.Remove(path); err != nil {
		return replication.NewError(replication.KindFS, fmt.Errorf("unlink %s: %w", path, err))
	}
	return nil
}
