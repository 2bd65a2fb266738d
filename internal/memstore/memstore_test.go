package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/abduss/dropbucket/internal/bucket"
	"github.com/abduss/dropbucket/internal/file"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedBucket(t *testing.T, s *Store, id string, created time.Time, expires *time.Time) bucket.Bucket {
	t.Helper()
	b, err := s.Buckets().Create(context.Background(), bucket.Bucket{
		ID:        id,
		OwnerID:   uuid.New(),
		Name:      "bucket " + id,
		CreatedAt: created,
		ExpiresAt: expires,
	})
	require.NoError(t, err)
	return b
}

func record(bucketID, path, code string) file.Record {
	return file.Record{
		ID:          uuid.New(),
		BucketID:    bucketID,
		Path:        path,
		ContentType: "text/plain",
		ShortCode:   code,
		UploadedAt:  time.Now().UTC(),
	}
}

func TestFileConstraints(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedBucket(t, s, "b0001", time.Now(), nil)
	files := s.Files()

	_, err := files.Create(ctx, record("b0001", "a.txt", "code01"))
	require.NoError(t, err)

	_, err = files.Create(ctx, record("b0001", "a.txt", "code02"))
	assert.ErrorIs(t, err, file.ErrPathExists)

	_, err = files.Create(ctx, record("b0001", "b.txt", "code01"))
	assert.ErrorIs(t, err, file.ErrShortCodeTaken)

	_, err = files.Create(ctx, record("nope1", "c.txt", "code03"))
	assert.ErrorIs(t, err, file.ErrBucketNotFound)
}

func TestBucketDeleteRemovesFiles(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedBucket(t, s, "b0001", time.Now(), nil)
	seedBucket(t, s, "b0002", time.Now(), nil)

	_, err := s.Files().Create(ctx, record("b0001", "a.txt", "code01"))
	require.NoError(t, err)
	_, err = s.Files().Create(ctx, record("b0002", "a.txt", "code02"))
	require.NoError(t, err)

	require.NoError(t, s.Buckets().Delete(ctx, "b0001"))
	assert.ErrorIs(t, s.Buckets().Delete(ctx, "b0001"), bucket.ErrBucketNotFound)

	left, err := s.Files().ListByBucket(ctx, "b0001")
	require.NoError(t, err)
	assert.Empty(t, left)

	other, err := s.Files().ListByBucket(ctx, "b0002")
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestListNewestFirstWithCounts(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	seedBucket(t, s, "old01", base, nil)
	seedBucket(t, s, "new01", base.Add(time.Hour), nil)

	_, err := s.Files().Create(ctx, record("old01", "x", "code01"))
	require.NoError(t, err)

	all, err := s.Buckets().ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "new01", all[0].ID)
	assert.Equal(t, 0, all[0].FileCount)
	assert.Equal(t, 1, all[1].FileCount)
}

func TestFindExpired(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	exact := now
	future := now.Add(time.Minute)

	seedBucket(t, s, "past1", now, &past)
	seedBucket(t, s, "exact", now, &exact)
	seedBucket(t, s, "later", now, &future)
	seedBucket(t, s, "never", now, nil)

	expired, err := s.Buckets().FindExpired(ctx, now)
	require.NoError(t, err)

	ids := make([]string, 0, len(expired))
	for _, b := range expired {
		ids = append(ids, b.ID)
	}
	assert.Equal(t, []string{"past1", "exact"}, ids)
}

func TestListByBucketSortedByPath(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedBucket(t, s, "b0001", time.Now(), nil)

	for i, p := range []string{"z.txt", "a/b.txt", "m.md", "B.txt", "_x.txt"} {
		_, err := s.Files().Create(ctx, record("b0001", p, "code0"+string(rune('1'+i))))
		require.NoError(t, err)
	}

	records, err := s.Files().ListByBucket(ctx, "b0001")
	require.NoError(t, err)
	paths := make([]string, 0, len(records))
	for _, rec := range records {
		paths = append(paths, rec.Path)
	}
	// Byte order: upper case before punctuation before lower case.
	assert.Equal(t, []string{"B.txt", "_x.txt", "a/b.txt", "m.md", "z.txt"}, paths)
}
