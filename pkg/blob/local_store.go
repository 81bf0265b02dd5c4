package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalBlobStore implements BlobStore on the local filesystem. Keys are
// slash-separated paths relative to the root.
type LocalBlobStore struct {
	rootPath string
}

// NewLocalBlobStore creates a new LocalBlobStore with the given root directory.
func NewLocalBlobStore(rootPath string) *LocalBlobStore {
	return &LocalBlobStore{rootPath: rootPath}
}

// path resolves key inside the root. Keys that escape it are rejected.
func (s *LocalBlobStore) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if key == "" || clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return filepath.Join(s.rootPath, clean), nil
}

// Put writes through a temp file and renames it into place, so readers never
// see a partial blob.
func (s *LocalBlobStore) Put(ctx context.Context, key string, reader io.Reader) error {
	fullPath, err := s.path(key)
	if err != nil {
		return err
	}

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tempFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer tempFile.Close()

	if _, err := io.Copy(tempFile, reader); err != nil {
		os.Remove(tempFile.Name())
		return fmt.Errorf("failed to write blob %s: %w", key, err)
	}
	if err := tempFile.Sync(); err != nil {
		os.Remove(tempFile.Name())
		return fmt.Errorf("failed to sync blob %s: %w", key, err)
	}
	if err := tempFile.Close(); err != nil {
		os.Remove(tempFile.Name())
		return fmt.Errorf("failed to close blob %s: %w", key, err)
	}

	if err := os.Rename(tempFile.Name(), fullPath); err != nil {
		os.Remove(tempFile.Name())
		return fmt.Errorf("failed to rename temp file to %s: %w", fullPath, err)
	}
	return nil
}

// Get retrieves content from the blob store.
func (s *LocalBlobStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	fullPath, err := s.path(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to open blob %s: %w", key, err)
	}
	return file, nil
}

// List walks prefix and returns every blob key below it. A missing prefix
// yields an empty list. An empty prefix lists the whole store.
func (s *LocalBlobStore) List(ctx context.Context, prefix string) ([]string, error) {
	root := s.rootPath
	if prefix != "" {
		var err error
		if root, err = s.path(prefix); err != nil {
			return nil, err
		}
	}

	keys := []string{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(s.rootPath, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list blobs with prefix %s: %w", prefix, err)
	}

	sort.Strings(keys)
	return keys, nil
}

// Delete removes a blob.
func (s *LocalBlobStore) Delete(ctx context.Context, key string) error {
	fullPath, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return fmt.Errorf("failed to delete blob %s: %w", key, err)
	}
	return nil
}
