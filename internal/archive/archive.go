// Package archive stores encrypted database snapshots at a configured
// destination.
package archive

import (
	"fmt"
	"io"

	"qslm/internal/config"
)

// Destination is a write-only target for archive snapshots.
type Destination interface {
	// Put stores a snapshot under the given name. size is the exact
	// byte count r will yield; a mismatch is an error.
	Put(name string, r io.Reader, size int64) error

	// ValidateSetup verifies the destination is usable.
	ValidateSetup() error
}

// NewDestinationFromConfig creates a Destination based on the archive config type.
func NewDestinationFromConfig(cfg config.ArchiveConfig) (Destination, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryDestination(), nil
	case "filesystem":
		if cfg.FSArchiveRoot == "" {
			return nil, fmt.Errorf("filesystem archive requires fs_archive_root to be set")
		}
		return NewFileSystemDestination(cfg.FSArchiveRoot)
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 archive requires s3_bucket to be set")
		}
		return NewS3Destination(cfg)
	default:
		return nil, fmt.Errorf("unknown archive type: %s", cfg.Type)
	}
}
