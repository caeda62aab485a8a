package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// BlobStore is the opaque byte store the signing engine persists content into.
// Keys are caller-supplied and immutable; new content gets a new key.
type BlobStore interface {
	Put(key string, r io.Reader, contentType string) (string, error)
	Get(key string) (io.ReadCloser, error)
	Delete(key string) error
}

// LocalBlobStore persists blobs on disk under a base directory.
type LocalBlobStore struct {
	baseDir string
}

// NewLocalBlobStore ensures the base directory exists and returns a handle.
func NewLocalBlobStore(baseDir string) (*LocalBlobStore, error) {
	if baseDir == "" {
		baseDir = "./blobs"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob directory: %w", err)
	}
	return &LocalBlobStore{baseDir: baseDir}, nil
}

// Put copies the reader into the file addressed by key and returns the key.
// The content type is carried by the caller's metadata row, not the filesystem.
func (s *LocalBlobStore) Put(key string, r io.Reader, _ string) (string, error) {
	path := s.resolve(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("prepare blob directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create blob file: %w", err)
	}
	defer file.Close() //nolint:errcheck
	if _, err := io.Copy(file, r); err != nil {
		return "", fmt.Errorf("write blob stream: %w", err)
	}
	return key, nil
}

// Get returns a read-only handle for the stored blob.
func (s *LocalBlobStore) Get(key string) (io.ReadCloser, error) {
	file, err := os.Open(s.resolve(key))
	if err != nil {
		return nil, fmt.Errorf("open blob file: %w", err)
	}
	return file, nil
}

// Delete removes a stored blob if present.
func (s *LocalBlobStore) Delete(key string) error {
	if err := os.Remove(s.resolve(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete blob file: %w", err)
	}
	return nil
}

// Path exposes the underlying absolute path (useful for debugging).
func (s *LocalBlobStore) Path(key string) string {
	return s.resolve(key)
}

func (s *LocalBlobStore) resolve(key string) string {
	if filepath.IsAbs(key) {
		return key
	}
	return filepath.Join(s.baseDir, key)
}
