package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/abduss/dropbucket/internal/blob"
	"github.com/abduss/dropbucket/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	maxCreateAttempts  = 3
	defaultMaxFileSize = 100 * 1000 * 1000 // 100MB
	defaultContentType = "application/octet-stream"
)

type metadataStore interface {
	Create(ctx context.Context, rec Record) (Record, error)
	FindByBucketAndPath(ctx context.Context, bucketID, path string) (Record, error)
	FindByShortCode(ctx context.Context, code string) (Record, error)
	ListByBucket(ctx context.Context, bucketID string) ([]Record, error)
	Update(ctx context.Context, rec Record) (Record, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByBucket(ctx context.Context, bucketID string) (int64, error)
}

type bucketStore interface {
	Exists(ctx context.Context, bucketID string) (bool, error)
}

type codeAllocator interface {
	ShortCode(ctx context.Context) (string, error)
}

// Service is the file catalog: it owns file records and coordinates content
// writes with the storage backend.
type Service struct {
	repo        metadataStore
	buckets     bucketStore
	store       blob.Store
	codes       codeAllocator
	maxFileSize int64
	presignTTL  time.Duration
	now         func() time.Time
}

// NewService constructs a file service.
func NewService(repo metadataStore, buckets bucketStore, store blob.Store, codes codeAllocator) *Service {
	return &Service{
		repo:        repo,
		buckets:     buckets,
		store:       store,
		codes:       codes,
		maxFileSize: defaultMaxFileSize,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithMaxFileSize overrides the per-file upload limit. Non-positive values
// disable the limit.
func (s *Service) WithMaxFileSize(limit int64) *Service {
	s.maxFileSize = limit
	return s
}

// WithPresignedDownloads makes DownloadURL hand out direct links valid for
// ttl when the storage backend supports them.
func (s *Service) WithPresignedDownloads(ttl time.Duration) *Service {
	s.presignTTL = ttl
	return s
}

// Upsert records path in bucketID. An existing record keeps its id and short
// code and gets the new type, size and upload time; otherwise a record with a
// fresh short code is created.
func (s *Service) Upsert(ctx context.Context, bucketID, path, contentType string, size int64) (Record, error) {
	if contentType == "" {
		contentType = defaultContentType
	}
	now := s.now()

	existing, err := s.repo.FindByBucketAndPath(ctx, bucketID, path)
	switch {
	case err == nil:
		return s.refresh(ctx, existing, contentType, size, now)
	case !errors.Is(err, ErrFileNotFound):
		return Record{}, fmt.Errorf("find file: %w", err)
	}

	var created Record
	for attempt := 0; ; attempt++ {
		var code string
		code, err = s.codes.ShortCode(ctx)
		if err != nil {
			return Record{}, err
		}

		created, err = s.repo.Create(ctx, Record{
			ID:          uuid.New(),
			BucketID:    bucketID,
			Path:        path,
			ContentType: contentType,
			SizeBytes:   size,
			ShortCode:   code,
			UploadedAt:  now,
		})
		// Another upload claimed the code between the check and the insert.
		if errors.Is(err, ErrShortCodeTaken) && attempt+1 < maxCreateAttempts {
			continue
		}
		break
	}
	if errors.Is(err, ErrPathExists) {
		// A concurrent upload created the record first.
		existing, findErr := s.repo.FindByBucketAndPath(ctx, bucketID, path)
		if findErr != nil {
			return Record{}, fmt.Errorf("find file after conflict: %w", findErr)
		}
		return s.refresh(ctx, existing, contentType, size, now)
	}
	if err != nil {
		return Record{}, err
	}
	return created, nil
}

func (s *Service) refresh(ctx context.Context, rec Record, contentType string, size int64, now time.Time) (Record, error) {
	rec.ContentType = contentType
	rec.SizeBytes = size
	rec.UploadedAt = now
	return s.repo.Update(ctx, rec)
}

// ResolveByShortCode returns the record owning code, or nil.
func (s *Service) ResolveByShortCode(ctx context.Context, code string) (*Record, error) {
	rec, err := s.repo.FindByShortCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrFileNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// ListByBucket returns the bucket's records sorted by path.
func (s *Service) ListByBucket(ctx context.Context, bucketID string) ([]Record, error) {
	return s.repo.ListByBucket(ctx, bucketID)
}

// DeleteByBucketAndPath removes only the catalog record for path.
func (s *Service) DeleteByBucketAndPath(ctx context.Context, bucketID, path string) (bool, error) {
	rec, err := s.repo.FindByBucketAndPath(ctx, bucketID, path)
	if err != nil {
		if errors.Is(err, ErrFileNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := s.repo.Delete(ctx, rec.ID); err != nil {
		if errors.Is(err, ErrFileNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// DeleteAllForBucket removes every catalog record of a bucket.
func (s *Service) DeleteAllForBucket(ctx context.Context, bucketID string) error {
	removed, err := s.repo.DeleteByBucket(ctx, bucketID)
	if err != nil {
		return err
	}
	zerolog.Ctx(ctx).Debug().Str("bucket_id", bucketID).Int64("records", removed).Msg("file records removed")
	return nil
}

// Upload stores content under path and records it in the catalog. It
// returns nil when the bucket does not exist.
func (s *Service) Upload(ctx context.Context, bucketID, path, contentType string, content []byte) (*Record, error) {
	if err := blob.ValidatePath(path); err != nil {
		return nil, err
	}
	if s.maxFileSize > 0 && int64(len(content)) > s.maxFileSize {
		return nil, ErrFileTooLarge
	}

	exists, err := s.buckets.Exists(ctx, bucketID)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		return nil, nil
	}

	if err := s.store.Save(ctx, bucketID, path, content); err != nil {
		return nil, fmt.Errorf("store content: %w", err)
	}

	rec, err := s.Upsert(ctx, bucketID, path, contentType, int64(len(content)))
	if errors.Is(err, ErrBucketNotFound) {
		// Bucket was deleted after the existence check.
		_, _ = s.store.Delete(ctx, bucketID, path)
		return nil, nil
	}
	if err != nil {
		s.discardOrphan(ctx, bucketID, path)
		return nil, err
	}

	metrics.FileUploaded(rec.SizeBytes)
	zerolog.Ctx(ctx).Info().
		Str("bucket_id", bucketID).
		Str("path", path).
		Int64("size_bytes", rec.SizeBytes).
		Msg("file uploaded")
	return &rec, nil
}

// discardOrphan removes content saved for a path the catalog never recorded.
func (s *Service) discardOrphan(ctx context.Context, bucketID, path string) {
	if _, err := s.repo.FindByBucketAndPath(ctx, bucketID, path); !errors.Is(err, ErrFileNotFound) {
		return
	}
	if _, err := s.store.Delete(ctx, bucketID, path); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("bucket_id", bucketID).Str("path", path).Msg("remove orphaned content")
	}
}

// DeleteFile removes a file's content and then its record. It reports false
// when the bucket holds no such file.
func (s *Service) DeleteFile(ctx context.Context, bucketID, path string) (bool, error) {
	rec, err := s.repo.FindByBucketAndPath(ctx, bucketID, path)
	if err != nil {
		if errors.Is(err, ErrFileNotFound) {
			return false, nil
		}
		return false, err
	}

	if _, err := s.store.Delete(ctx, bucketID, path); err != nil {
		return false, fmt.Errorf("remove content: %w", err)
	}
	if err := s.repo.Delete(ctx, rec.ID); err != nil {
		if errors.Is(err, ErrFileNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Open returns the record and a content reader for path. Both are nil when
// the record or its content is missing. Callers must close the reader.
func (s *Service) Open(ctx context.Context, bucketID, path string) (*Record, io.ReadCloser, error) {
	rec, err := s.repo.FindByBucketAndPath(ctx, bucketID, path)
	if err != nil {
		if errors.Is(err, ErrFileNotFound) {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	reader, err := s.store.Open(ctx, bucketID, path)
	if err != nil {
		if isMissingContent(err) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("open content: %w", err)
	}
	return &rec, reader, nil
}

// DownloadURL returns a presigned direct link for path. The boolean is false
// when presigning is disabled, unsupported by the backend, or the file is
// unknown.
func (s *Service) DownloadURL(ctx context.Context, bucketID, path string) (string, bool, error) {
	presigner, ok := s.store.(blob.Presigner)
	if !ok || s.presignTTL <= 0 {
		return "", false, nil
	}

	if _, err := s.repo.FindByBucketAndPath(ctx, bucketID, path); err != nil {
		if errors.Is(err, ErrFileNotFound) {
			return "", false, nil
		}
		return "", false, err
	}

	url, err := presigner.PresignedURL(ctx, bucketID, path, s.presignTTL)
	if err != nil {
		return "", false, fmt.Errorf("presign download: %w", err)
	}
	return url, true, nil
}

func isMissingContent(err error) bool {
	return errors.Is(err, blob.ErrObjectNotFound) ||
		errors.Is(err, blob.ErrInvalidPath) ||
		errors.Is(err, blob.ErrInvalidBucketID)
}
