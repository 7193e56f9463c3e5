// Package landing provides access to the landing and archive areas.
// It abstracts the underlying object storage (local directory, GCS, S3)
// behind a common interface consumed by the pipeline coordinator.
package landing

import (
	"context"
	"time"
)

// ObjectInfo describes a single object in the landing area.
type ObjectInfo struct {
	// Path is the object path relative to the store root
	Path string

	// Size is the object size in bytes
	Size int64

	// Checksum is the hex-encoded SHA-256 of the object content
	Checksum string

	// ModTime is when the object arrived in the landing area
	ModTime time.Time
}

// ObjectStore is the interface for listing, reading and relocating
// landing-area objects. Implementations include DirStore (local directory);
// cloud-bucket implementations plug in behind the same interface.
type ObjectStore interface {
	// List returns all objects under the given prefix.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// Read returns the full content of the object at path.
	Read(ctx context.Context, path string) ([]byte, error)

	// Move relocates an object from path to dest, creating any
	// intermediate destination directories.
	Move(ctx context.Context, path, dest string) error
}
