package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
)

// objectAPI is the subset of the MinIO client used by MinIOStore.
type objectAPI interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
	BucketExists(ctx context.Context, bucketName string) (bool, error)
}

// clientAdapter narrows *minio.Client's GetObject to an io.ReadCloser.
type clientAdapter struct {
	*minio.Client
}

func (a clientAdapter) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	return a.Client.GetObject(ctx, bucketName, objectName, opts)
}

// MinIOStore keeps content as objects named <bucketID>/<path> inside a single
// MinIO bucket.
type MinIOStore struct {
	api          objectAPI
	objectBucket string
}

// NewMinIOStore constructs a store on top of an existing MinIO client.
func NewMinIOStore(client *minio.Client, objectBucket string) *MinIOStore {
	return &MinIOStore{api: clientAdapter{Client: client}, objectBucket: objectBucket}
}

// ResolvePath returns the object key for a bucket/path pair.
func (s *MinIOStore) ResolvePath(bucketID, path string) (string, error) {
	if err := validate(bucketID, path); err != nil {
		return "", err
	}
	return bucketID + "/" + path, nil
}

// Save uploads content, overwriting any existing object.
func (s *MinIOStore) Save(ctx context.Context, bucketID, path string, content []byte) error {
	key, err := s.ResolvePath(bucketID, path)
	if err != nil {
		return err
	}
	if _, err := s.api.PutObject(ctx, s.objectBucket, key, bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{
		ContentType: http.DetectContentType(content),
	}); err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// Open streams an object or returns ErrObjectNotFound.
func (s *MinIOStore) Open(ctx context.Context, bucketID, path string) (io.ReadCloser, error) {
	key, err := s.ResolvePath(bucketID, path)
	if err != nil {
		return nil, err
	}
	if _, err := s.api.StatObject(ctx, s.objectBucket, key, minio.StatObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("stat object %s: %w", key, err)
	}
	object, err := s.api.GetObject(ctx, s.objectBucket, key, minio.GetObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	return object, nil
}

// Delete removes one object; false when it did not exist.
func (s *MinIOStore) Delete(ctx context.Context, bucketID, path string) (bool, error) {
	key, err := s.ResolvePath(bucketID, path)
	if err != nil {
		return false, err
	}
	if _, err := s.api.StatObject(ctx, s.objectBucket, key, minio.StatObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat object %s: %w", key, err)
	}
	if err := s.api.RemoveObject(ctx, s.objectBucket, key, minio.RemoveObjectOptions{}); err != nil {
		return false, fmt.Errorf("remove object %s: %w", key, err)
	}
	return true, nil
}

// DeleteAll removes every object under the bucket prefix.
func (s *MinIOStore) DeleteAll(ctx context.Context, bucketID string) error {
	if err := ValidateBucketID(bucketID); err != nil {
		return err
	}

	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	objects := s.api.ListObjects(listCtx, s.objectBucket, minio.ListObjectsOptions{
		Prefix:    bucketID + "/",
		Recursive: true,
	})
	for obj := range objects {
		if obj.Err != nil {
			return fmt.Errorf("list objects for %s: %w", bucketID, obj.Err)
		}
		if err := s.api.RemoveObject(ctx, s.objectBucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			if isNoSuchKey(err) {
				continue
			}
			return fmt.Errorf("remove object %s: %w", obj.Key, err)
		}
	}
	return nil
}

// PresignedURL returns a time-limited GET URL for the object.
func (s *MinIOStore) PresignedURL(ctx context.Context, bucketID, path string, ttl time.Duration) (string, error) {
	key, err := s.ResolvePath(bucketID, path)
	if err != nil {
		return "", err
	}
	u, err := s.api.PresignedGetObject(ctx, s.objectBucket, key, ttl, make(url.Values))
	if err != nil {
		return "", fmt.Errorf("presign object %s: %w", key, err)
	}
	return u.String(), nil
}

// Ping verifies the object bucket is reachable.
func (s *MinIOStore) Ping(ctx context.Context) error {
	exists, err := s.api.BucketExists(ctx, s.objectBucket)
	if err != nil {
		return fmt.Errorf("check object bucket: %w", err)
	}
	if !exists {
		return fmt.Errorf("object bucket %q does not exist", s.objectBucket)
	}
	return nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
