package bucket

import (
	"errors"
	"fmt"
)

var (
	// ErrBucketNotFound indicates the requested bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")
	// ErrBucketIDTaken is returned when a generated id collides with an existing bucket.
	ErrBucketIDTaken = errors.New("bucket id already taken")
	// ErrNameRequired rejects blank bucket names.
	ErrNameRequired = errors.New("bucket name required")
)

// Cascade steps, in execution order.
const (
	StepFiles   = "files"
	StepContent = "content"
	StepRecord  = "record"
)

// CascadeError reports the step at which a bucket cascade stopped. Steps that
// completed before it are not rolled back; running the cascade again resumes
// the cleanup.
type CascadeError struct {
	BucketID string
	Step     string
	Err      error
}

func (e *CascadeError) Error() string {
	return fmt.Sprintf("cascade delete of bucket %s failed at %s step: %v", e.BucketID, e.Step, e.Err)
}

func (e *CascadeError) Unwrap() error {
	return e.Err
}
