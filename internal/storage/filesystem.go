package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var _ BlobStore = (*FilesystemStore)(nil)

// BlobStore abstracts durable storage for uploaded evidence files. Paths are
// slash-separated and relative to the store root.
type BlobStore interface {
	// Upload writes the contents of r to path, replacing any existing object.
	Upload(ctx context.Context, path string, r io.Reader) (int64, error)
	// Open returns a readable stream for the stored object at path.
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	// Stat returns size metadata for the stored object at path.
	Stat(ctx context.Context, path string) (ObjectInfo, error)
	// Delete removes the stored object at path.
	Delete(ctx context.Context, path string) error
}

// ObjectInfo captures metadata for a stored object.
type ObjectInfo struct {
	Path string
	Size int64
}

// FilesystemStore persists blobs on the local filesystem.
type FilesystemStore struct {
	root string
}

// NewFilesystemStore initialises a filesystem-backed store rooted at dir.
func NewFilesystemStore(dir string) (*FilesystemStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("blob store: root directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blob store: ensure root directory: %w", err)
	}
	return &FilesystemStore{root: dir}, nil
}

// Upload writes the object atomically: content lands in a temp file first and
// is renamed into place, so a torn write never leaves a partial object at the
// final path.
func (s *FilesystemStore) Upload(_ context.Context, path string, r io.Reader) (int64, error) {
	if s == nil {
		return 0, errors.New("blob store: store not initialised")
	}
	fullPath, err := s.absolute(path)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return 0, fmt.Errorf("blob store: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("blob store: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	written, err := io.Copy(tmp, r)
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return 0, fmt.Errorf("blob store: write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return 0, fmt.Errorf("blob store: close temp file: %w", err)
	}

	if err := os.Rename(tmpName, fullPath); err != nil {
		_ = os.Remove(tmpName)
		return 0, fmt.Errorf("blob store: finalise object: %w", err)
	}

	return written, nil
}

// Open returns a reader for the stored object.
func (s *FilesystemStore) Open(_ context.Context, path string) (io.ReadCloser, error) {
	if s == nil {
		return nil, errors.New("blob store: store not initialised")
	}
	fullPath, err := s.absolute(path)
	if err != nil {
		return nil, err
	}
	fh, err := os.Open(fullPath)
	if err != nil {
		return nil, fmt.Errorf("blob store: open object: %w", err)
	}
	return fh, nil
}

// Stat returns object metadata.
func (s *FilesystemStore) Stat(_ context.Context, path string) (ObjectInfo, error) {
	if s == nil {
		return ObjectInfo{}, errors.New("blob store: store not initialised")
	}
	fullPath, err := s.absolute(path)
	if err != nil {
		return ObjectInfo{}, err
	}
	info, err := os.Stat(fullPath)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("blob store: stat object: %w", err)
	}
	return ObjectInfo{Path: path, Size: info.Size()}, nil
}

// Delete removes the stored object. Deleting a missing object is not an error.
func (s *FilesystemStore) Delete(_ context.Context, path string) error {
	if s == nil {
		return errors.New("blob store: store not initialised")
	}
	fullPath, err := s.absolute(path)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("blob store: delete object: %w", err)
	}
	return nil
}

func (s *FilesystemStore) absolute(path string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(strings.TrimSpace(path)))
	if cleaned == "." || cleaned == "" {
		return "", errors.New("blob store: object path is required")
	}
	if filepath.IsAbs(cleaned) || strings.HasPrefix(cleaned, "..") {
		return "", fmt.Errorf("blob store: invalid object path %q", path)
	}
	return filepath.Join(s.root, cleaned), nil
}

// SanitizeFragment normalises a string for safe use inside an object path.
func SanitizeFragment(fragment string) string {
	fragment = strings.ToLower(strings.TrimSpace(fragment))
	fragment = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '-'
		}
	}, fragment)
	fragment = strings.Trim(fragment, "-.")
	if fragment == "" {
		return "file"
	}
	return fragment
}
