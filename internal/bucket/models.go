package bucket

import (
	"time"

	"github.com/abduss/dropbucket/internal/file"
	"github.com/google/uuid"
)

// Bucket is an owner-scoped, optionally expiring container for files.
type Bucket struct {
	ID          string     `json:"id"`
	OwnerID     uuid.UUID  `json:"owner_id"`
	Name        string     `json:"name"`
	Description *string    `json:"description,omitempty"`
	Purpose     *string    `json:"purpose,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the bucket's expiry is at or before now.
func (b Bucket) Expired(now time.Time) bool {
	return b.ExpiresAt != nil && !b.ExpiresAt.After(now)
}

// Summary is a bucket together with its file count.
type Summary struct {
	Bucket
	FileCount int `json:"file_count"`
}

// Detail is a bucket together with its files sorted by path.
type Detail struct {
	Bucket
	Files []file.Record `json:"files"`
}

// CreateInput carries the caller-supplied attributes of a new bucket.
type CreateInput struct {
	Name        string
	Description *string
	Purpose     *string
	// ExpiresIn is an expiry spec such as "1d" or "never". Empty means the
	// default lifetime.
	ExpiresIn string
}

// UpdateFields lists the attributes to change. Nil fields are left as is.
type UpdateFields struct {
	Name        *string
	Description *string
	Purpose     *string
}
