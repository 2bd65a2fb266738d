package auth

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

const defaultQueryTimeout = 5 * time.Second

// Repository provides database access for API keys.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a new Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateKey persists a new API key record.
func (r *Repository) CreateKey(ctx context.Context, key APIKey) (APIKey, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	query := `
INSERT INTO api_keys (id, name, prefix, key_hash, created_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, name, prefix, key_hash, created_at, last_used_at;`

	row := r.pool.QueryRow(ctx, query, key.ID, key.Name, key.Prefix, key.KeyHash, key.CreatedAt)

	var stored APIKey
	if err := row.Scan(&stored.ID, &stored.Name, &stored.Prefix, &stored.KeyHash, &stored.CreatedAt, &stored.LastUsedAt); err != nil {
		if isUniqueViolation(err) {
			return APIKey{}, ErrPrefixTaken
		}
		return APIKey{}, fmt.Errorf("create api key: %w", err)
	}
	return stored, nil
}

// FindKeyByPrefix fetches an API key by its public prefix.
func (r *Repository) FindKeyByPrefix(ctx context.Context, prefix string) (APIKey, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	query := `
SELECT id, name, prefix, key_hash, created_at, last_used_at
FROM api_keys
WHERE prefix = $1;`

	var key APIKey
	err := r.pool.QueryRow(ctx, query, prefix).Scan(
		&key.ID,
		&key.Name,
		&key.Prefix,
		&key.KeyHash,
		&key.CreatedAt,
		&key.LastUsedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return APIKey{}, ErrKeyNotFound
		}
		return APIKey{}, fmt.Errorf("find api key: %w", err)
	}
	return key, nil
}

// ListKeys returns every API key with the number of buckets it owns.
func (r *Repository) ListKeys(ctx context.Context) ([]KeyInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	query := `
SELECT k.id, k.name, k.prefix, k.created_at, k.last_used_at,
       (SELECT COUNT(*) FROM buckets b WHERE b.owner_id = k.id) AS bucket_count
FROM api_keys k
ORDER BY k.created_at DESC;`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	keys := make([]KeyInfo, 0)
	for rows.Next() {
		var (
			info  KeyInfo
			count int64
		)
		if err := rows.Scan(&info.ID, &info.Name, &info.Prefix, &info.CreatedAt, &info.LastUsedAt, &count); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		info.BucketCount = int(count)
		keys = append(keys, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate api keys: %w", err)
	}
	return keys, nil
}

// DeleteKeyByPrefix removes an API key.
func (r *Repository) DeleteKeyByPrefix(ctx context.Context, prefix string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `DELETE FROM api_keys WHERE prefix = $1;`, prefix)
	if err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrKeyNotFound
	}
	return nil
}

// TouchKey records the last time a key authenticated a request.
func (r *Repository) TouchKey(ctx context.Context, id uuid.UUID, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	if _, err := r.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = $2 WHERE id = $1;`, id, at); err != nil {
		return fmt.Errorf("touch api key: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
