package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileSystemDestination stores snapshots as files under a root directory.
type FileSystemDestination struct {
	root string
}

// NewFileSystemDestination creates a destination rooted at the given path,
// creating the directory if needed.
func NewFileSystemDestination(root string) (*FileSystemDestination, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &FileSystemDestination{root: root}, nil
}

// Put writes the snapshot atomically: data lands in a temp file first and
// is renamed into place only once fully written and size-verified.
func (d *FileSystemDestination) Put(name string, r io.Reader, size int64) error {
	destPath := filepath.Join(d.root, name)

	tmpFile, err := os.CreateTemp(d.root, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if written != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// ValidateSetup verifies the root directory is accessible.
func (d *FileSystemDestination) ValidateSetup() error {
	info, err := os.Stat(d.root)
	if err != nil {
		return fmt.Errorf("archive root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("archive root is not a directory: %s", d.root)
	}
	return nil
}

// Compile-time check that FileSystemDestination implements Destination
var _ Destination = (*FileSystemDestination)(nil)
