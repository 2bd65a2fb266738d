package file

import (
	"time"

	"github.com/google/uuid"
)

// Record is the catalog entry for one uploaded file. A bucket holds at most
// one record per path; re-uploading keeps the record id and short code.
type Record struct {
	ID          uuid.UUID `json:"id"`
	BucketID    string    `json:"bucket_id"`
	Path        string    `json:"path"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	ShortCode   string    `json:"short_code"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// ShortURL returns the relative short link for the file.
func (r Record) ShortURL() string {
	return "/s/" + r.ShortCode
}
