package file

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

const repoTimeout = 5 * time.Second

const (
	constraintBucketPath = "uq_files_bucket_path"
	constraintShortCode  = "uq_files_short_code"
)

const recordColumns = `id, bucket_id, path, content_type, size_bytes, short_code, uploaded_at`

// Paths sort by byte value regardless of the database locale.
const listByBucketQuery = `SELECT ` + recordColumns + ` FROM files WHERE bucket_id = $1 ORDER BY path COLLATE "C";`

// Repository provides access to file records stored in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds a new file repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new file record.
func (r *Repository) Create(ctx context.Context, rec Record) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `
INSERT INTO files (` + recordColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + recordColumns + `;`

	row := r.pool.QueryRow(ctx, query,
		rec.ID,
		rec.BucketID,
		rec.Path,
		rec.ContentType,
		rec.SizeBytes,
		rec.ShortCode,
		rec.UploadedAt,
	)

	stored, err := scanRecord(row)
	if err != nil {
		if mapped := translateWriteError(err); mapped != nil {
			return Record{}, mapped
		}
		return Record{}, fmt.Errorf("create file record: %w", err)
	}
	return stored, nil
}

// FindByBucketAndPath loads the record stored under path in a bucket.
func (r *Repository) FindByBucketAndPath(ctx context.Context, bucketID, path string) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `SELECT ` + recordColumns + ` FROM files WHERE bucket_id = $1 AND path = $2;`
	return r.findOne(ctx, "find file by path", query, bucketID, path)
}

// FindByShortCode loads the record that owns a short code.
func (r *Repository) FindByShortCode(ctx context.Context, code string) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `SELECT ` + recordColumns + ` FROM files WHERE short_code = $1;`
	return r.findOne(ctx, "find file by short code", query, code)
}

// ListByBucket returns a bucket's records ordered by path.
func (r *Repository) ListByBucket(ctx context.Context, bucketID string) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, listByBucketQuery, bucketID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate files: %w", err)
	}
	return records, nil
}

// Update rewrites the mutable attributes of an existing record.
func (r *Repository) Update(ctx context.Context, rec Record) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `
UPDATE files
SET content_type = $2, size_bytes = $3, uploaded_at = $4
WHERE id = $1
RETURNING ` + recordColumns + `;`

	stored, err := scanRecord(r.pool.QueryRow(ctx, query, rec.ID, rec.ContentType, rec.SizeBytes, rec.UploadedAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrFileNotFound
		}
		return Record{}, fmt.Errorf("update file record: %w", err)
	}
	return stored, nil
}

// Delete removes a single record by id.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `DELETE FROM files WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("delete file record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFileNotFound
	}
	return nil
}

// DeleteByBucket removes every record of a bucket in one statement.
func (r *Repository) DeleteByBucket(ctx context.Context, bucketID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `DELETE FROM files WHERE bucket_id = $1;`, bucketID)
	if err != nil {
		return 0, fmt.Errorf("delete bucket files: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ShortCodeExists reports whether any record already uses code.
func (r *Repository) ShortCodeExists(ctx context.Context, code string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM files WHERE short_code = $1);`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check short code: %w", err)
	}
	return exists, nil
}

func (r *Repository) findOne(ctx context.Context, op, query string, args ...any) (Record, error) {
	rec, err := scanRecord(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrFileNotFound
		}
		return Record{}, fmt.Errorf("%s: %w", op, err)
	}
	return rec, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(
		&rec.ID,
		&rec.BucketID,
		&rec.Path,
		&rec.ContentType,
		&rec.SizeBytes,
		&rec.ShortCode,
		&rec.UploadedAt,
	)
	return rec, err
}

func translateWriteError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return nil
	}
	switch pgErr.Code {
	case "23505":
		switch pgErr.ConstraintName {
		case constraintBucketPath:
			return ErrPathExists
		case constraintShortCode:
			return ErrShortCodeTaken
		}
	case "23503":
		return ErrBucketNotFound
	}
	return nil
}
