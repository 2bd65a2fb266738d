package bucket

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/abduss/dropbucket/internal/blob"
	"github.com/abduss/dropbucket/internal/expiry"
	"github.com/abduss/dropbucket/internal/file"
	"github.com/abduss/dropbucket/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type repository interface {
	Create(ctx context.Context, bucket Bucket) (Bucket, error)
	FindByID(ctx context.Context, id string) (Bucket, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Summary, error)
	ListAll(ctx context.Context) ([]Summary, error)
	FindExpired(ctx context.Context, now time.Time) ([]Bucket, error)
	Update(ctx context.Context, bucket Bucket) (Bucket, error)
	Delete(ctx context.Context, id string) error
}

// FileCatalog is the part of the file catalog the lifecycle manager needs.
type FileCatalog interface {
	ListByBucket(ctx context.Context, bucketID string) ([]file.Record, error)
	DeleteAllForBucket(ctx context.Context, bucketID string) error
}

type idAllocator interface {
	BucketID() (string, error)
}

// Service manages bucket lifecycle: creation, lookup, ownership-checked
// mutation, and the cascade that removes a bucket with everything in it.
type Service struct {
	repo  repository
	files FileCatalog
	store blob.Store
	ids   idAllocator
	now   func() time.Time
}

// NewService constructs a bucket service.
func NewService(repo repository, files FileCatalog, store blob.Store, ids idAllocator) *Service {
	return &Service{
		repo:  repo,
		files: files,
		store: store,
		ids:   ids,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Create makes a new bucket owned by ownerID.
func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, in CreateInput) (Summary, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Summary{}, ErrNameRequired
	}

	now := s.now()
	expiresAt, err := expiry.ExpiresAt(in.ExpiresIn, now)
	if err != nil {
		return Summary{}, err
	}

	id, err := s.ids.BucketID()
	if err != nil {
		return Summary{}, fmt.Errorf("allocate bucket id: %w", err)
	}

	created, err := s.repo.Create(ctx, Bucket{
		ID:          id,
		OwnerID:     ownerID,
		Name:        name,
		Description: in.Description,
		Purpose:     in.Purpose,
		CreatedAt:   now,
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		return Summary{}, err
	}

	metrics.BucketCreated()
	zerolog.Ctx(ctx).Info().Str("bucket_id", created.ID).Str("owner_id", ownerID.String()).Msg("bucket created")
	return Summary{Bucket: created}, nil
}

// Get returns the bucket with its files, or nil when it does not exist.
func (s *Service) Get(ctx context.Context, id string) (*Detail, error) {
	bucket, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrBucketNotFound) {
			return nil, nil
		}
		return nil, err
	}

	files, err := s.files.ListByBucket(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list bucket files: %w", err)
	}
	return &Detail{Bucket: bucket, Files: files}, nil
}

// List returns the caller's buckets, or every bucket for an admin, newest
// first.
func (s *Service) List(ctx context.Context, ownerID uuid.UUID, isAdmin bool) ([]Summary, error) {
	if isAdmin {
		return s.repo.ListAll(ctx)
	}
	return s.repo.ListByOwner(ctx, ownerID)
}

// Update applies fields to a bucket the caller may manage. It returns nil
// when the bucket is missing or the caller is not allowed to touch it.
func (s *Service) Update(ctx context.Context, id string, callerID uuid.UUID, isAdmin bool, fields UpdateFields) (*Summary, error) {
	bucket, ok, err := s.authorized(ctx, id, callerID, isAdmin)
	if err != nil || !ok {
		return nil, err
	}

	if fields.Name != nil {
		name := strings.TrimSpace(*fields.Name)
		if name == "" {
			return nil, ErrNameRequired
		}
		bucket.Name = name
	}
	if fields.Description != nil {
		bucket.Description = fields.Description
	}
	if fields.Purpose != nil {
		bucket.Purpose = fields.Purpose
	}

	updated, err := s.repo.Update(ctx, bucket)
	if err != nil {
		if errors.Is(err, ErrBucketNotFound) {
			return nil, nil
		}
		return nil, err
	}

	files, err := s.files.ListByBucket(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("count bucket files: %w", err)
	}
	return &Summary{Bucket: updated, FileCount: len(files)}, nil
}

// Delete cascades a bucket the caller may manage. It reports false when the
// bucket is missing or the caller is not allowed to touch it.
func (s *Service) Delete(ctx context.Context, id string, callerID uuid.UUID, isAdmin bool) (bool, error) {
	_, ok, err := s.authorized(ctx, id, callerID, isAdmin)
	if err != nil || !ok {
		return false, err
	}

	if err := s.Cascade(ctx, id); err != nil {
		return false, err
	}
	metrics.BucketDeleted(metrics.ReasonManual)
	return true, nil
}

// Cascade removes a bucket's file records, then its stored content, then the
// bucket record. A failure stops the cascade and is returned as a
// *CascadeError. A bucket record that is already gone counts as success.
func (s *Service) Cascade(ctx context.Context, id string) error {
	if err := s.files.DeleteAllForBucket(ctx, id); err != nil {
		metrics.CascadeFailed(StepFiles)
		return &CascadeError{BucketID: id, Step: StepFiles, Err: err}
	}
	if err := s.store.DeleteAll(ctx, id); err != nil {
		metrics.CascadeFailed(StepContent)
		return &CascadeError{BucketID: id, Step: StepContent, Err: err}
	}
	if err := s.repo.Delete(ctx, id); err != nil && !errors.Is(err, ErrBucketNotFound) {
		metrics.CascadeFailed(StepRecord)
		return &CascadeError{BucketID: id, Step: StepRecord, Err: err}
	}

	zerolog.Ctx(ctx).Info().Str("bucket_id", id).Msg("bucket deleted")
	return nil
}

// ListExpired returns buckets whose expiry is at or before now.
func (s *Service) ListExpired(ctx context.Context, now time.Time) ([]Bucket, error) {
	return s.repo.FindExpired(ctx, now)
}

// authorized loads a bucket and checks the caller owns it or is an admin.
// Missing and foreign buckets are both reported as not ok.
func (s *Service) authorized(ctx context.Context, id string, callerID uuid.UUID, isAdmin bool) (Bucket, bool, error) {
	bucket, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrBucketNotFound) {
			return Bucket{}, false, nil
		}
		return Bucket{}, false, err
	}
	if !isAdmin && (callerID == uuid.Nil || bucket.OwnerID != callerID) {
		return Bucket{}, false, nil
	}
	return bucket, true, nil
}
