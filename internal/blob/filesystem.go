// Package blob stores uploaded files. Objects are addressed as
// tenantId/timestamp_filename paths. The filesystem backend keeps the
// interface narrow so an object-store backend can replace it.
package blob

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrObjectNotFound indicates a download of a missing object; fatal for an
// ingestion job.
var ErrObjectNotFound = errors.New("blob object not found")

// Storage is the narrow blob interface the pipeline consumes.
type Storage interface {
	Download(path string) ([]byte, error)
	Delete(path string) error
}

// FilesystemStorage stores blobs under a root directory.
type FilesystemStorage struct {
	root string
}

// NewFilesystem creates the root directory if needed.
func NewFilesystem(root string) (*FilesystemStorage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating blob root %s: %w", root, err)
	}
	return &FilesystemStorage{root: root}, nil
}

// ObjectPath builds the canonical storage path for an upload.
func ObjectPath(tenantID, filename string) string {
	return fmt.Sprintf("%s/%d_%s", tenantID, time.Now().Unix(), filepath.Base(filename))
}

// Save writes an object and returns nothing; the caller already holds the
// path from ObjectPath.
func (s *FilesystemStorage) Save(path string, data []byte) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("creating blob directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("writing blob %s: %w", path, err)
	}
	return nil
}

// Download reads an object's raw bytes. Missing objects fail with
// ErrObjectNotFound.
func (s *FilesystemStorage) Download(path string) ([]byte, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading blob %s: %w", path, err)
	}
	return data, nil
}

// Delete removes an object. Deleting a missing object is not an error.
func (s *FilesystemStorage) Delete(path string) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting blob %s: %w", path, err)
	}
	return nil
}

// resolve joins the object path under root and rejects traversal outside it.
func (s *FilesystemStorage) resolve(path string) (string, error) {
	full := filepath.Join(s.root, filepath.FromSlash(path))
	rootAbs, err := filepath.Abs(s.root)
	if err != nil {
		return "", fmt.Errorf("resolving blob root: %w", err)
	}
	fullAbs, err := filepath.Abs(full)
	if err != nil {
		return "", fmt.Errorf("resolving blob path %s: %w", path, err)
	}
	if fullAbs != rootAbs && !strings.HasPrefix(fullAbs, rootAbs+string(os.PathSeparator)) {
		return "", fmt.Errorf("blob path %s escapes storage root", path)
	}
	return fullAbs, nil
}
