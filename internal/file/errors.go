package file

import "errors"

var (
	// ErrFileNotFound signals that the file could not be located.
	ErrFileNotFound = errors.New("file not found")
	// ErrFileTooLarge signals that the upload exceeds configured limits.
	ErrFileTooLarge = errors.New("file too large")
	// ErrPathExists is returned when a bucket already holds a record for the path.
	ErrPathExists = errors.New("path already exists in bucket")
	// ErrShortCodeTaken is returned when the short code is already assigned.
	ErrShortCodeTaken = errors.New("short code already taken")
	// ErrBucketNotFound is returned when the owning bucket is gone.
	ErrBucketNotFound = errors.New("bucket not found")
)
