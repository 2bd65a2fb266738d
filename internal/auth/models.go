package auth

import (
	"time"

	"github.com/google/uuid"
)

// APIKey is a stored credential. Only the bcrypt hash of the key is kept.
type APIKey struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	Prefix     string     `json:"prefix"`
	KeyHash    string     `json:"-"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// KeyInfo describes an API key for listings.
type KeyInfo struct {
	APIKey
	BucketCount int `json:"bucket_count"`
}

// CreatedKey is returned once at key creation; Key is never shown again.
type CreatedKey struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Prefix    string    `json:"prefix"`
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"created_at"`
}

// Principal is the authenticated caller of a request. The configured admin
// key authenticates with a nil KeyID and owns no buckets.
type Principal struct {
	KeyID   uuid.UUID `json:"key_id"`
	Prefix  string    `json:"prefix"`
	IsAdmin bool      `json:"is_admin"`
}

// AccessToken is a short-lived signed token standing in for an API key.
type AccessToken struct {
	Token     string    `json:"access_token"`
	ExpiresAt time.Time `json:"expires_at"`
}
