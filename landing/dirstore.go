package landing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DirStore implements ObjectStore over a local directory tree.
// Object paths use forward slashes relative to the root.
type DirStore struct {
	root string
}

// NewDirStore creates a DirStore rooted at the given directory.
func NewDirStore(root string) (*DirStore, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat store root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("store root %s is not a directory", root)
	}
	return &DirStore{root: root}, nil
}

// List returns all regular files under prefix, with content checksums.
func (s *DirStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	dir := filepath.Join(s.root, filepath.FromSlash(prefix))

	var objects []ObjectInfo
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				// Empty prefix is not an error, just no objects
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		sum := sha256.Sum256(data)

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}

		objects = append(objects, ObjectInfo{
			Path:     filepath.ToSlash(rel),
			Size:     info.Size(),
			Checksum: hex.EncodeToString(sum[:]),
			ModTime:  info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list objects under %s: %w", prefix, err)
	}

	// Stable order for callers that iterate: oldest first, path as tiebreak
	sort.Slice(objects, func(i, j int) bool {
		if objects[i].ModTime.Equal(objects[j].ModTime) {
			return objects[i].Path < objects[j].Path
		}
		return objects[i].ModTime.Before(objects[j].ModTime)
	})

	return objects, nil
}

// Read returns the content of the object at path.
func (s *DirStore) Read(ctx context.Context, path string) ([]byte, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(path)))
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", path, err)
	}
	return data, nil
}

// Move renames an object into dest, creating destination directories.
func (s *DirStore) Move(ctx context.Context, path, dest string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if strings.TrimSpace(dest) == "" {
		return fmt.Errorf("move destination is empty")
	}

	src := filepath.Join(s.root, filepath.FromSlash(path))
	dst := filepath.Join(s.root, filepath.FromSlash(dest))

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("failed to move %s to %s: %w", path, dest, err)
	}
	return nil
}
