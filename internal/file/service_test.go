package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"testing"
	"time"

	"github.com/abduss/dropbucket/internal/blob"
	"github.com/google/uuid"
)

func newTestService(t *testing.T) (*Service, *fakeRepo, *fakeBuckets, *blob.LocalStore) {
	t.Helper()
	store, err := blob.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore returned error: %v", err)
	}
	repo := newFakeRepo()
	buckets := &fakeBuckets{ids: map[string]bool{"bkt01": true}}
	service := NewService(repo, buckets, store, &sequenceCodes{})
	return service, repo, buckets, store
}

func TestUploadStoresContentAndRecord(t *testing.T) {
	service, repo, _, store := newTestService(t)

	rec, err := service.Upload(context.Background(), "bkt01", "docs/readme.md", "text/markdown", []byte("# hi"))
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}
	if rec == nil {
		t.Fatalf("expected record for existing bucket")
	}
	if rec.SizeBytes != 4 || rec.ContentType != "text/markdown" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.ShortURL() != "/s/"+rec.ShortCode {
		t.Fatalf("unexpected short url %q", rec.ShortURL())
	}
	if len(repo.records) != 1 {
		t.Fatalf("expected one record, got %d", len(repo.records))
	}

	reader, err := store.Open(context.Background(), "bkt01", "docs/readme.md")
	if err != nil {
		t.Fatalf("expected content stored: %v", err)
	}
	defer reader.Close()
	body, _ := io.ReadAll(reader)
	if string(body) != "# hi" {
		t.Fatalf("unexpected content %q", body)
	}
}

func TestUploadToMissingBucketReturnsNil(t *testing.T) {
	service, repo, _, _ := newTestService(t)

	rec, err := service.Upload(context.Background(), "nope1", "a.txt", "", []byte("x"))
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil record, got %+v", rec)
	}
	if len(repo.records) != 0 {
		t.Fatalf("expected no records, got %d", len(repo.records))
	}
}

func TestUploadRejectsTraversal(t *testing.T) {
	service, _, _, _ := newTestService(t)

	for _, path := range []string{"../escape.txt", "/etc/passwd", "a/../../b", "dir/"} {
		_, err := service.Upload(context.Background(), "bkt01", path, "", []byte("x"))
		if !errors.Is(err, blob.ErrInvalidPath) {
			t.Fatalf("path %q: expected ErrInvalidPath, got %v", path, err)
		}
	}
}

func TestUploadEnforcesSizeLimit(t *testing.T) {
	service, _, _, _ := newTestService(t)
	service.WithMaxFileSize(3)

	if _, err := service.Upload(context.Background(), "bkt01", "big.bin", "", []byte("1234")); err != ErrFileTooLarge {
		t.Fatalf("expected ErrFileTooLarge, got %v", err)
	}
}

func TestReuploadKeepsIdentityAndShortCode(t *testing.T) {
	service, repo, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := service.Upload(ctx, "bkt01", "notes.txt", "text/plain", []byte("one"))
	if err != nil {
		t.Fatalf("first upload returned error: %v", err)
	}

	later := first.UploadedAt.Add(time.Minute)
	service.now = func() time.Time { return later }

	second, err := service.Upload(ctx, "bkt01", "notes.txt", "text/csv", []byte("three"))
	if err != nil {
		t.Fatalf("second upload returned error: %v", err)
	}

	if second.ID != first.ID || second.ShortCode != first.ShortCode {
		t.Fatalf("expected identity preserved: first=%+v second=%+v", first, second)
	}
	if second.SizeBytes != 5 || second.ContentType != "text/csv" || !second.UploadedAt.Equal(later) {
		t.Fatalf("expected refreshed attributes, got %+v", second)
	}
	if len(repo.records) != 1 {
		t.Fatalf("expected a single record, got %d", len(repo.records))
	}
}

func TestUpsertHandlesConcurrentCreate(t *testing.T) {
	service, repo, _, _ := newTestService(t)
	ctx := context.Background()

	winner := Record{ID: uuid.New(), BucketID: "bkt01", Path: "race.txt", ShortCode: "winner", ContentType: "text/plain"}
	repo.beforeCreate = func() {
		repo.records[winner.ID] = winner
	}

	rec, err := service.Upsert(ctx, "bkt01", "race.txt", "application/json", 7)
	if err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}
	if rec.ID != winner.ID || rec.ShortCode != "winner" || rec.SizeBytes != 7 {
		t.Fatalf("expected winner record updated, got %+v", rec)
	}
}

func TestUpsertRetriesShortCodeClaimedConcurrently(t *testing.T) {
	service, repo, _, _ := newTestService(t)
	repo.takenCodes = map[string]bool{"code01": true}

	rec, err := service.Upsert(context.Background(), "bkt01", "fresh.txt", "text/plain", 1)
	if err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}
	if rec.ShortCode != "code02" {
		t.Fatalf("expected second candidate code02, got %q", rec.ShortCode)
	}
}

func TestUpsertGivesUpAfterRepeatedShortCodeClaims(t *testing.T) {
	service, repo, _, _ := newTestService(t)
	repo.takenCodes = map[string]bool{"code01": true, "code02": true, "code03": true, "code04": true}

	_, err := service.Upsert(context.Background(), "bkt01", "fresh.txt", "text/plain", 1)
	if !errors.Is(err, ErrShortCodeTaken) {
		t.Fatalf("expected ErrShortCodeTaken, got %v", err)
	}
	if len(repo.records) != 0 {
		t.Fatalf("expected no records, got %d", len(repo.records))
	}
}

func TestUploadDiscardsContentWhenCatalogWriteFails(t *testing.T) {
	service, repo, _, store := newTestService(t)
	ctx := context.Background()
	repo.createErr = errors.New("db down")

	if _, err := service.Upload(ctx, "bkt01", "orphan.txt", "", []byte("x")); err == nil {
		t.Fatalf("expected error from failing catalog")
	}
	if _, err := store.Open(ctx, "bkt01", "orphan.txt"); !errors.Is(err, blob.ErrObjectNotFound) {
		t.Fatalf("expected orphaned content removed, got %v", err)
	}
}

func TestUploadAfterConcurrentBucketDeletion(t *testing.T) {
	service, repo, _, store := newTestService(t)
	repo.createErr = ErrBucketNotFound

	rec, err := service.Upload(context.Background(), "bkt01", "late.txt", "", []byte("x"))
	if err != nil || rec != nil {
		t.Fatalf("expected nil record and no error, got %+v, %v", rec, err)
	}
	if _, err := store.Open(context.Background(), "bkt01", "late.txt"); !errors.Is(err, blob.ErrObjectNotFound) {
		t.Fatalf("expected orphaned content removed, got %v", err)
	}
}

func TestResolveByShortCode(t *testing.T) {
	service, _, _, _ := newTestService(t)
	ctx := context.Background()

	rec, err := service.Upload(ctx, "bkt01", "a.txt", "", []byte("x"))
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}

	found, err := service.ResolveByShortCode(ctx, rec.ShortCode)
	if err != nil || found == nil || found.ID != rec.ID {
		t.Fatalf("expected record, got %+v, %v", found, err)
	}

	missing, err := service.ResolveByShortCode(ctx, "zzzzzz")
	if err != nil || missing != nil {
		t.Fatalf("expected nil for unknown code, got %+v, %v", missing, err)
	}
}

func TestDeleteFileRemovesContentThenRecord(t *testing.T) {
	service, repo, _, store := newTestService(t)
	ctx := context.Background()

	if _, err := service.Upload(ctx, "bkt01", "gone.txt", "", []byte("bye")); err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}

	deleted, err := service.DeleteFile(ctx, "bkt01", "gone.txt")
	if err != nil || !deleted {
		t.Fatalf("DeleteFile = %v, %v", deleted, err)
	}
	if len(repo.records) != 0 {
		t.Fatalf("expected record removed")
	}
	if _, err := store.Open(ctx, "bkt01", "gone.txt"); !errors.Is(err, blob.ErrObjectNotFound) {
		t.Fatalf("expected content removed, got %v", err)
	}

	deleted, err = service.DeleteFile(ctx, "bkt01", "gone.txt")
	if err != nil || deleted {
		t.Fatalf("second DeleteFile = %v, %v", deleted, err)
	}
}

func TestOpenMissingContentIsAbsent(t *testing.T) {
	service, _, _, store := newTestService(t)
	ctx := context.Background()

	if _, err := service.Upload(ctx, "bkt01", "vanish.txt", "", []byte("x")); err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}
	if _, err := store.Delete(ctx, "bkt01", "vanish.txt"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}

	rec, reader, err := service.Open(ctx, "bkt01", "vanish.txt")
	if err != nil || rec != nil || reader != nil {
		t.Fatalf("expected absent result, got %+v, %v, %v", rec, reader, err)
	}
}

func TestDeleteAllForBucketCatalogOnly(t *testing.T) {
	service, repo, _, store := newTestService(t)
	ctx := context.Background()

	for _, p := range []string{"a.txt", "b/c.txt"} {
		if _, err := service.Upload(ctx, "bkt01", p, "", []byte(p)); err != nil {
			t.Fatalf("Upload returned error: %v", err)
		}
	}

	if err := service.DeleteAllForBucket(ctx, "bkt01"); err != nil {
		t.Fatalf("DeleteAllForBucket returned error: %v", err)
	}
	if len(repo.records) != 0 {
		t.Fatalf("expected records removed, got %d", len(repo.records))
	}
	if _, err := store.Open(ctx, "bkt01", "a.txt"); err != nil {
		t.Fatalf("expected content untouched, got %v", err)
	}
}

func TestDownloadURLDisabledForLocalStore(t *testing.T) {
	service, _, _, _ := newTestService(t)
	service.WithPresignedDownloads(time.Minute)

	_, ok, err := service.DownloadURL(context.Background(), "bkt01", "a.txt")
	if err != nil || ok {
		t.Fatalf("expected no presigned url, got %v, %v", ok, err)
	}
}

type fakeRepo struct {
	records      map[uuid.UUID]Record
	createErr    error
	beforeCreate func()
	takenCodes   map[string]bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: make(map[uuid.UUID]Record)}
}

func (f *fakeRepo) Create(ctx context.Context, rec Record) (Record, error) {
	if f.beforeCreate != nil {
		f.beforeCreate()
		f.beforeCreate = nil
	}
	if f.createErr != nil {
		return Record{}, f.createErr
	}
	if f.takenCodes[rec.ShortCode] {
		return Record{}, ErrShortCodeTaken
	}
	for _, existing := range f.records {
		if existing.BucketID == rec.BucketID && existing.Path == rec.Path {
			return Record{}, ErrPathExists
		}
	}
	f.records[rec.ID] = rec
	return rec, nil
}

func (f *fakeRepo) FindByBucketAndPath(ctx context.Context, bucketID, path string) (Record, error) {
	for _, rec := range f.records {
		if rec.BucketID == bucketID && rec.Path == path {
			return rec, nil
		}
	}
	return Record{}, ErrFileNotFound
}

func (f *fakeRepo) FindByShortCode(ctx context.Context, code string) (Record, error) {
	for _, rec := range f.records {
		if rec.ShortCode == code {
			return rec, nil
		}
	}
	return Record{}, ErrFileNotFound
}

func (f *fakeRepo) ListByBucket(ctx context.Context, bucketID string) ([]Record, error) {
	var out []Record
	for _, rec := range f.records {
		if rec.BucketID == bucketID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (f *fakeRepo) Update(ctx context.Context, rec Record) (Record, error) {
	if _, ok := f.records[rec.ID]; !ok {
		return Record{}, ErrFileNotFound
	}
	f.records[rec.ID] = rec
	return rec, nil
}

func (f *fakeRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := f.records[id]; !ok {
		return ErrFileNotFound
	}
	delete(f.records, id)
	return nil
}

func (f *fakeRepo) DeleteByBucket(ctx context.Context, bucketID string) (int64, error) {
	var n int64
	for id, rec := range f.records {
		if rec.BucketID == bucketID {
			delete(f.records, id)
			n++
		}
	}
	return n, nil
}

type fakeBuckets struct {
	ids map[string]bool
}

func (f *fakeBuckets) Exists(ctx context.Context, bucketID string) (bool, error) {
	return f.ids[bucketID], nil
}

type sequenceCodes struct {
	n int
}

func (s *sequenceCodes) ShortCode(ctx context.Context) (string, error) {
	s.n++
	return fmt.Sprintf("code%02d", s.n), nil
}
