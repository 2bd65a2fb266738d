package blob

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePath(t *testing.T) {
	valid := []string{"readme.md", "docs/guide.md", "a/b/c/d.txt", ".env", "notes..txt", "..hidden"}
	for _, p := range valid {
		assert.NoError(t, ValidatePath(p), p)
	}

	invalid := []string{"", "/etc/passwd", "../secret", "docs/../../x", "a//b", "./a", "a/.", "dir/", "a\\b", "c:evil", "bad\x00name"}
	for _, p := range invalid {
		assert.ErrorIs(t, ValidatePath(p), ErrInvalidPath, p)
	}
}

func TestValidateBucketID(t *testing.T) {
	assert.NoError(t, ValidateBucketID("aB3xZ"))
	assert.ErrorIs(t, ValidateBucketID(""), ErrInvalidBucketID)
	assert.ErrorIs(t, ValidateBucketID(".."), ErrInvalidBucketID)
	assert.ErrorIs(t, ValidateBucketID("ab/cd"), ErrInvalidBucketID)
}
