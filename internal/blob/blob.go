// Package blob stores file content keyed by (bucket id, path).
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

var (
	// ErrObjectNotFound indicates no content is stored for the bucket/path pair.
	ErrObjectNotFound = errors.New("object not found")
	// ErrInvalidPath rejects paths that could escape the bucket namespace.
	ErrInvalidPath = errors.New("invalid path")
	// ErrInvalidBucketID rejects bucket ids outside the id alphabet.
	ErrInvalidBucketID = errors.New("invalid bucket id")
)

// Store is the storage backend contract consumed by the catalog, lifecycle
// manager and bundle builder.
type Store interface {
	Save(ctx context.Context, bucketID, path string, content []byte) error
	Open(ctx context.Context, bucketID, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, bucketID, path string) (bool, error)
	DeleteAll(ctx context.Context, bucketID string) error
	ResolvePath(bucketID, path string) (string, error)
}

// Presigner is implemented by stores that can hand out time-limited direct
// download URLs.
type Presigner interface {
	PresignedURL(ctx context.Context, bucketID, path string, ttl time.Duration) (string, error)
}

// Pinger is implemented by stores that can report their availability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ValidatePath rejects logical paths that are empty, absolute, contain NUL
// bytes or backslashes, or have "." / ".." / empty segments.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	if strings.ContainsRune(path, 0) {
		return fmt.Errorf("%w: null byte", ErrInvalidPath)
	}
	if strings.Contains(path, "\\") {
		return fmt.Errorf("%w: backslash", ErrInvalidPath)
	}
	if strings.HasPrefix(path, "/") || (len(path) > 1 && path[1] == ':') {
		return fmt.Errorf("%w: absolute path", ErrInvalidPath)
	}
	for _, segment := range strings.Split(path, "/") {
		switch segment {
		case "", ".", "..":
			return fmt.Errorf("%w: segment %q", ErrInvalidPath, segment)
		}
	}
	return nil
}

// ValidateBucketID ensures a bucket id is a non-empty alphanumeric token.
func ValidateBucketID(bucketID string) error {
	if bucketID == "" {
		return ErrInvalidBucketID
	}
	for i := 0; i < len(bucketID); i++ {
		c := bucketID[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return ErrInvalidBucketID
		}
	}
	return nil
}

func validate(bucketID, path string) error {
	if err := ValidateBucketID(bucketID); err != nil {
		return err
	}
	return ValidatePath(path)
}
