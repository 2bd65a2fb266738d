package bucket

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repositoryTimeout = 5 * time.Second

const bucketColumns = `b.id, b.owner_id, b.name, b.description, b.purpose, b.created_at, b.expires_at`

const summaryQuery = `
SELECT ` + bucketColumns + `,
       (SELECT COUNT(*) FROM files f WHERE f.bucket_id = b.id) AS file_count
FROM buckets b`

// Repository allows access to bucket persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds a PostgreSQL-backed bucket repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new bucket.
func (r *Repository) Create(ctx context.Context, bucket Bucket) (Bucket, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	query := `
INSERT INTO buckets AS b (id, owner_id, name, description, purpose, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + bucketColumns + `;`

	row := r.pool.QueryRow(ctx, query,
		bucket.ID,
		bucket.OwnerID,
		bucket.Name,
		bucket.Description,
		bucket.Purpose,
		bucket.CreatedAt,
		bucket.ExpiresAt,
	)

	created, err := scanBucket(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Bucket{}, ErrBucketIDTaken
		}
		return Bucket{}, fmt.Errorf("create bucket: %w", err)
	}
	return created, nil
}

// FindByID loads a bucket by id.
func (r *Repository) FindByID(ctx context.Context, id string) (Bucket, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	query := `SELECT ` + bucketColumns + ` FROM buckets b WHERE b.id = $1;`

	bucket, err := scanBucket(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Bucket{}, ErrBucketNotFound
		}
		return Bucket{}, fmt.Errorf("get bucket: %w", err)
	}
	return bucket, nil
}

// Exists reports whether a bucket with id is present.
func (r *Repository) Exists(ctx context.Context, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM buckets WHERE id = $1);`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check bucket: %w", err)
	}
	return exists, nil
}

// ListByOwner returns an owner's buckets, newest first.
func (r *Repository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Summary, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	return r.listSummaries(ctx, summaryQuery+` WHERE b.owner_id = $1 ORDER BY b.created_at DESC, b.id COLLATE "C";`, ownerID)
}

// ListAll returns every bucket, newest first.
func (r *Repository) ListAll(ctx context.Context) ([]Summary, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	return r.listSummaries(ctx, summaryQuery+` ORDER BY b.created_at DESC, b.id COLLATE "C";`)
}

// FindExpired returns buckets whose expiry is at or before now.
func (r *Repository) FindExpired(ctx context.Context, now time.Time) ([]Bucket, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	query := `
SELECT ` + bucketColumns + `
FROM buckets b
WHERE b.expires_at IS NOT NULL AND b.expires_at <= $1
ORDER BY b.expires_at, b.id COLLATE "C";`

	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("list expired buckets: %w", err)
	}
	defer rows.Close()

	buckets := make([]Bucket, 0)
	for rows.Next() {
		bucket, err := scanBucket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bucket: %w", err)
		}
		buckets = append(buckets, bucket)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate buckets: %w", err)
	}
	return buckets, nil
}

// Update persists name, description and purpose of an existing bucket.
func (r *Repository) Update(ctx context.Context, bucket Bucket) (Bucket, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	query := `
UPDATE buckets AS b
SET name = $2, description = $3, purpose = $4
WHERE b.id = $1
RETURNING ` + bucketColumns + `;`

	updated, err := scanBucket(r.pool.QueryRow(ctx, query, bucket.ID, bucket.Name, bucket.Description, bucket.Purpose))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Bucket{}, ErrBucketNotFound
		}
		return Bucket{}, fmt.Errorf("update bucket: %w", err)
	}
	return updated, nil
}

// Delete removes a bucket record. File rows go with it through the
// foreign key cascade.
func (r *Repository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `DELETE FROM buckets WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("delete bucket: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBucketNotFound
	}
	return nil
}

func (r *Repository) listSummaries(ctx context.Context, query string, args ...any) ([]Summary, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}
	defer rows.Close()

	summaries := make([]Summary, 0)
	for rows.Next() {
		var (
			s     Summary
			count int64
		)
		if err := rows.Scan(&s.ID, &s.OwnerID, &s.Name, &s.Description, &s.Purpose, &s.CreatedAt, &s.ExpiresAt, &count); err != nil {
			return nil, fmt.Errorf("scan bucket: %w", err)
		}
		s.FileCount = int(count)
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate buckets: %w", err)
	}
	return summaries, nil
}

func scanBucket(row pgx.Row) (Bucket, error) {
	var b Bucket
	err := row.Scan(&b.ID, &b.OwnerID, &b.Name, &b.Description, &b.Purpose, &b.CreatedAt, &b.ExpiresAt)
	return b, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
