// Package memstore keeps buckets, file records and API keys in process
// memory. It mirrors the PostgreSQL schema's constraints: unique bucket ids,
// unique (bucket, path) and short codes, and file rows removed along with
// their bucket.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/abduss/dropbucket/internal/auth"
	"github.com/abduss/dropbucket/internal/bucket"
	"github.com/abduss/dropbucket/internal/file"
	"github.com/google/uuid"
)

// Store holds every table. Repositories returned by its accessors share it.
type Store struct {
	mu      sync.RWMutex
	buckets map[string]bucket.Bucket
	files   map[uuid.UUID]file.Record
	keys    map[string]auth.APIKey
}

// New returns an empty store.
func New() *Store {
	return &Store{
		buckets: make(map[string]bucket.Bucket),
		files:   make(map[uuid.UUID]file.Record),
		keys:    make(map[string]auth.APIKey),
	}
}

// Buckets returns the bucket repository view of the store.
func (s *Store) Buckets() *BucketRepository {
	return &BucketRepository{s: s}
}

// Files returns the file repository view of the store.
func (s *Store) Files() *FileRepository {
	return &FileRepository{s: s}
}

// Keys returns the API key repository view of the store.
func (s *Store) Keys() *KeyRepository {
	return &KeyRepository{s: s}
}

func (s *Store) fileCount(bucketID string) int {
	n := 0
	for _, rec := range s.files {
		if rec.BucketID == bucketID {
			n++
		}
	}
	return n
}

// BucketRepository implements the bucket repository contract.
type BucketRepository struct {
	s *Store
}

// Create inserts a bucket, failing with ErrBucketIDTaken on a duplicate id.
func (r *BucketRepository) Create(ctx context.Context, b bucket.Bucket) (bucket.Bucket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.buckets[b.ID]; ok {
		return bucket.Bucket{}, bucket.ErrBucketIDTaken
	}
	r.s.buckets[b.ID] = b
	return b, nil
}

// FindByID returns the bucket or ErrBucketNotFound.
func (r *BucketRepository) FindByID(ctx context.Context, id string) (bucket.Bucket, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	b, ok := r.s.buckets[id]
	if !ok {
		return bucket.Bucket{}, bucket.ErrBucketNotFound
	}
	return b, nil
}

// Exists reports whether a bucket with id is stored.
func (r *BucketRepository) Exists(ctx context.Context, id string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	_, ok := r.s.buckets[id]
	return ok, nil
}

// ListByOwner returns an owner's buckets, newest first.
func (r *BucketRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]bucket.Summary, error) {
	return r.list(func(b bucket.Bucket) bool { return b.OwnerID == ownerID }), nil
}

// ListAll returns every bucket, newest first.
func (r *BucketRepository) ListAll(ctx context.Context) ([]bucket.Summary, error) {
	return r.list(func(bucket.Bucket) bool { return true }), nil
}

func (r *BucketRepository) list(match func(bucket.Bucket) bool) []bucket.Summary {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	summaries := make([]bucket.Summary, 0)
	for _, b := range r.s.buckets {
		if match(b) {
			summaries = append(summaries, bucket.Summary{Bucket: b, FileCount: r.s.fileCount(b.ID)})
		}
	}
	sort.Slice(summaries, func(i, j int) bool {
		if !summaries[i].CreatedAt.Equal(summaries[j].CreatedAt) {
			return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
		}
		return summaries[i].ID < summaries[j].ID
	})
	return summaries
}

// FindExpired returns buckets whose expiry is at or before now.
func (r *BucketRepository) FindExpired(ctx context.Context, now time.Time) ([]bucket.Bucket, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	expired := make([]bucket.Bucket, 0)
	for _, b := range r.s.buckets {
		if b.Expired(now) {
			expired = append(expired, b)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		if !expired[i].ExpiresAt.Equal(*expired[j].ExpiresAt) {
			return expired[i].ExpiresAt.Before(*expired[j].ExpiresAt)
		}
		return expired[i].ID < expired[j].ID
	})
	return expired, nil
}

// Update replaces the mutable bucket fields.
func (r *BucketRepository) Update(ctx context.Context, b bucket.Bucket) (bucket.Bucket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.buckets[b.ID]
	if !ok {
		return bucket.Bucket{}, bucket.ErrBucketNotFound
	}
	existing.Name = b.Name
	existing.Description = b.Description
	existing.Purpose = b.Purpose
	r.s.buckets[b.ID] = existing
	return existing, nil
}

// Delete removes a bucket and, like the foreign key, its file records.
func (r *BucketRepository) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.buckets[id]; !ok {
		return bucket.ErrBucketNotFound
	}
	delete(r.s.buckets, id)
	for fid, rec := range r.s.files {
		if rec.BucketID == id {
			delete(r.s.files, fid)
		}
	}
	return nil
}

// FileRepository implements the file repository contract.
type FileRepository struct {
	s *Store
}

// Create inserts a record, enforcing the path and short code constraints.
func (r *FileRepository) Create(ctx context.Context, rec file.Record) (file.Record, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.buckets[rec.BucketID]; !ok {
		return file.Record{}, file.ErrBucketNotFound
	}
	for _, existing := range r.s.files {
		if existing.BucketID == rec.BucketID && existing.Path == rec.Path {
			return file.Record{}, file.ErrPathExists
		}
		if existing.ShortCode == rec.ShortCode {
			return file.Record{}, file.ErrShortCodeTaken
		}
	}
	r.s.files[rec.ID] = rec
	return rec, nil
}

// FindByBucketAndPath returns the record at path or ErrFileNotFound.
func (r *FileRepository) FindByBucketAndPath(ctx context.Context, bucketID, path string) (file.Record, error) {
	return r.find(func(rec file.Record) bool { return rec.BucketID == bucketID && rec.Path == path })
}

// FindByShortCode returns the record owning code or ErrFileNotFound.
func (r *FileRepository) FindByShortCode(ctx context.Context, code string) (file.Record, error) {
	return r.find(func(rec file.Record) bool { return rec.ShortCode == code })
}

func (r *FileRepository) find(match func(file.Record) bool) (file.Record, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, rec := range r.s.files {
		if match(rec) {
			return rec, nil
		}
	}
	return file.Record{}, file.ErrFileNotFound
}

// ListByBucket returns a bucket's records ordered by path bytes.
func (r *FileRepository) ListByBucket(ctx context.Context, bucketID string) ([]file.Record, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	records := make([]file.Record, 0)
	for _, rec := range r.s.files {
		if rec.BucketID == bucketID {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Path < records[j].Path })
	return records, nil
}

// Update stores new attributes for an existing record.
func (r *FileRepository) Update(ctx context.Context, rec file.Record) (file.Record, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.files[rec.ID]
	if !ok {
		return file.Record{}, file.ErrFileNotFound
	}
	existing.ContentType = rec.ContentType
	existing.SizeBytes = rec.SizeBytes
	existing.UploadedAt = rec.UploadedAt
	r.s.files[rec.ID] = existing
	return existing, nil
}

// Delete removes a record by id.
func (r *FileRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.files[id]; !ok {
		return file.ErrFileNotFound
	}
	delete(r.s.files, id)
	return nil
}

// DeleteByBucket removes all of a bucket's records and reports how many.
func (r *FileRepository) DeleteByBucket(ctx context.Context, bucketID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var removed int64
	for id, rec := range r.s.files {
		if rec.BucketID == bucketID {
			delete(r.s.files, id)
			removed++
		}
	}
	return removed, nil
}

// ShortCodeExists reports whether code is assigned to any record.
func (r *FileRepository) ShortCodeExists(ctx context.Context, code string) (bool, error) {
	_, err := r.FindByShortCode(ctx, code)
	return err == nil, nil
}

// KeyRepository implements the API key repository contract.
type KeyRepository struct {
	s *Store
}

// CreateKey stores a key, failing with ErrPrefixTaken on a duplicate prefix.
func (r *KeyRepository) CreateKey(ctx context.Context, key auth.APIKey) (auth.APIKey, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.keys[key.Prefix]; ok {
		return auth.APIKey{}, auth.ErrPrefixTaken
	}
	r.s.keys[key.Prefix] = key
	return key, nil
}

// FindKeyByPrefix returns the key with prefix or ErrKeyNotFound.
func (r *KeyRepository) FindKeyByPrefix(ctx context.Context, prefix string) (auth.APIKey, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	key, ok := r.s.keys[prefix]
	if !ok {
		return auth.APIKey{}, auth.ErrKeyNotFound
	}
	return key, nil
}

// ListKeys returns every key with its bucket count, newest first.
func (r *KeyRepository) ListKeys(ctx context.Context) ([]auth.KeyInfo, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	infos := make([]auth.KeyInfo, 0, len(r.s.keys))
	for _, key := range r.s.keys {
		count := 0
		for _, b := range r.s.buckets {
			if b.OwnerID == key.ID {
				count++
			}
		}
		infos = append(infos, auth.KeyInfo{APIKey: key, BucketCount: count})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].CreatedAt.After(infos[j].CreatedAt) })
	return infos, nil
}

// DeleteKeyByPrefix removes the key with prefix.
func (r *KeyRepository) DeleteKeyByPrefix(ctx context.Context, prefix string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.keys[prefix]; !ok {
		return auth.ErrKeyNotFound
	}
	delete(r.s.keys, prefix)
	return nil
}

// TouchKey records when a key was last used.
func (r *KeyRepository) TouchKey(ctx context.Context, id uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for prefix, key := range r.s.keys {
		if key.ID == id {
			key.LastUsedAt = &at
			r.s.keys[prefix] = key
		}
	}
	return nil
}
