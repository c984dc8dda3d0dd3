package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/spf13/afero"
)

// ErrNotFound is returned by Read when a slot holds nothing
var ErrNotFound = errors.New("store: slot not found")

var slotNamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// FileSlots keeps one file per slot under a root directory
type FileSlots struct {
	fs   afero.Fs
	root string
}

// NewFileSlots creates a slot store rooted at dir on fs
func NewFileSlots(fs afero.Fs, dir string) *FileSlots {
	if fs == nil {
		panic("FileSlots: fs cannot be nil")
	}
	return &FileSlots{fs: fs, root: dir}
}

func (s *FileSlots) path(name string) (string, error) {
	if !slotNamePattern.MatchString(name) {
		return "", fmt.Errorf("invalid slot name %q", name)
	}
	return filepath.Join(s.root, name+".json"), nil
}

// Read returns the slot contents or ErrNotFound
func (s *FileSlots) Read(_ context.Context, name string) ([]byte, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	raw, err := afero.ReadFile(s.fs, p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading slot %s: %w", name, err)
	}
	return raw, nil
}

// Write replaces the slot contents atomically
func (s *FileSlots) Write(_ context.Context, name string, data []byte) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	return writeFileAtomic(s.fs, p, data)
}

// Delete removes the slot; deleting an empty slot is not an error
func (s *FileSlots) Delete(_ context.Context, name string) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting slot %s: %w", name, err)
	}
	return nil
}

// writeFileAtomic writes to a temp file in the target directory and renames it over path
func writeFileAtomic(fs afero.Fs, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(fs, dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = fs.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := fs.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
