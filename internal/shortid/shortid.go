// Package shortid generates the public identifiers used by buckets and files.
package shortid

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

// Alphabet is shared by bucket ids and file short codes.
const Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const (
	// BucketIDLength is the length of a bucket's public id.
	BucketIDLength = 5
	// ShortCodeLength is the length of a per-file redirect code.
	ShortCodeLength = 6
	// MaxShortCodeAttempts bounds the collision retry loop in ShortCode.
	MaxShortCodeAttempts = 10
)

// largest byte value that maps uniformly onto the alphabet (4*62 = 248).
const maxUnbiased = 256 - 256%len(Alphabet)

// ErrExhausted is returned when no unused short code was found within MaxShortCodeAttempts.
var ErrExhausted = errors.New("short code generation exhausted")

// CodeLookup reports whether a short code is already assigned to a file.
type CodeLookup interface {
	ShortCodeExists(ctx context.Context, code string) (bool, error)
}

// Allocator hands out bucket ids and file short codes.
type Allocator struct {
	codes   CodeLookup
	random  io.Reader
	onRetry func()
}

// NewAllocator constructs an allocator backed by crypto/rand.
func NewAllocator(codes CodeLookup) *Allocator {
	return &Allocator{codes: codes, random: rand.Reader}
}

// OnRetry registers a hook invoked every time a generated short code collides.
func (a *Allocator) OnRetry(fn func()) {
	a.onRetry = fn
}

// BucketID returns a random bucket id. Uniqueness is not checked here: the
// bucket repository rejects a duplicate on insert.
func (a *Allocator) BucketID() (string, error) {
	return Generate(a.random, BucketIDLength)
}

// ShortCode returns a short code that was unused at the time of the check.
func (a *Allocator) ShortCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < MaxShortCodeAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		code, err := Generate(a.random, ShortCodeLength)
		if err != nil {
			return "", err
		}

		exists, err := a.codes.ShortCodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check short code: %w", err)
		}
		if !exists {
			return code, nil
		}
		if a.onRetry != nil {
			a.onRetry()
		}
	}
	return "", ErrExhausted
}

// Generate draws n characters from Alphabet using r. Bytes above the largest
// multiple of the alphabet size are discarded so each character is uniform.
func Generate(r io.Reader, n int) (string, error) {
	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= maxUnbiased {
				continue
			}
			out = append(out, Alphabet[int(b)%len(Alphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}

// Valid reports whether s has length n and only uses Alphabet characters.
func Valid(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}
