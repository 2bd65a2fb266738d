package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
)

// LocalStore keeps content on the local filesystem under root/<bucketID>/<path>.
type LocalStore struct {
	root string
}

// NewLocalStore creates the root directory if needed.
func NewLocalStore(root string) (*LocalStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &LocalStore{root: abs}, nil
}

// Root returns the absolute storage root.
func (s *LocalStore) Root() string {
	return s.root
}

// ResolvePath maps a bucket/path pair onto a file location inside the root.
func (s *LocalStore) ResolvePath(bucketID, path string) (string, error) {
	if err := validate(bucketID, path); err != nil {
		return "", err
	}
	return filepath.Join(s.root, bucketID, filepath.FromSlash(path)), nil
}

// Save writes content, replacing whatever was stored at the path. The write
// goes to a temp file first so readers never observe a partial file.
func (s *LocalStore) Save(ctx context.Context, bucketID, path string, content []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := s.ResolvePath(bucketID, path)
	if err != nil {
		return err
	}

	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		if isPathConflict(err) {
			return fmt.Errorf("%w: a parent of %q is stored as a file", ErrInvalidPath, path)
		}
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write content: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		os.Remove(tmpName)
		if isPathConflict(err) {
			return fmt.Errorf("%w: %q is a directory of other files", ErrInvalidPath, path)
		}
		return fmt.Errorf("move content into place: %w", err)
	}
	return nil
}

// Open returns a reader for the stored content or ErrObjectNotFound.
func (s *LocalStore) Open(ctx context.Context, bucketID, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := s.ResolvePath(bucketID, path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("open content: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat content: %w", err)
	}
	if info.IsDir() {
		f.Close()
		return nil, ErrObjectNotFound
	}
	return f, nil
}

// Delete removes a single file; false when nothing was stored.
func (s *LocalStore) Delete(ctx context.Context, bucketID, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	full, err := s.ResolvePath(bucketID, path)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat content: %w", err)
	}
	if info.IsDir() {
		return false, nil
	}
	if err := os.Remove(full); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("remove content: %w", err)
	}
	return true, nil
}

// DeleteAll removes the bucket directory recursively. A missing directory is
// not an error.
func (s *LocalStore) DeleteAll(ctx context.Context, bucketID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateBucketID(bucketID); err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join(s.root, bucketID)); err != nil {
		return fmt.Errorf("remove bucket directory: %w", err)
	}
	return nil
}

// Ping checks the root directory is still reachable.
func (s *LocalStore) Ping(ctx context.Context) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("stat storage root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage root %s is not a directory", s.root)
	}
	return nil
}

// isPathConflict reports a file and a directory competing for one name.
func isPathConflict(err error) bool {
	return errors.Is(err, syscall.ENOTDIR) || errors.Is(err, syscall.EISDIR) || errors.Is(err, fs.ErrExist)
}
