// Package expiry turns user-supplied expiry specs into bucket lifetimes.
package expiry

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultTTL applies when no spec is given.
const DefaultTTL = 7 * 24 * time.Hour

// Never is the preset token for buckets that do not expire.
const Never = "never"

// ErrInvalidSpec is returned for specs that are neither a preset nor integer seconds.
var ErrInvalidSpec = errors.New("invalid expiry spec")

const day = 24 * time.Hour

var presets = map[string]time.Duration{
	"1h":  time.Hour,
	"6h":  6 * time.Hour,
	"12h": 12 * time.Hour,
	"1d":  day,
	"3d":  3 * day,
	"1w":  7 * day,
	"2w":  14 * day,
	"1m":  30 * day,
}

// Parse resolves spec into a lifetime. The boolean is false when the bucket
// never expires.
func Parse(spec string) (time.Duration, bool, error) {
	if spec == "" {
		return DefaultTTL, true, nil
	}

	token := strings.ToLower(spec)
	if token == Never {
		return 0, false, nil
	}
	if d, ok := presets[token]; ok {
		return d, true, nil
	}

	seconds, err := strconv.ParseInt(spec, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %q", ErrInvalidSpec, spec)
	}
	if seconds > math.MaxInt64/int64(time.Second) || seconds < math.MinInt64/int64(time.Second) {
		return 0, false, fmt.Errorf("%w: %q out of range", ErrInvalidSpec, spec)
	}
	return time.Duration(seconds) * time.Second, true, nil
}

// ExpiresAt computes the absolute expiry for a bucket created at now. A nil
// result means the bucket never expires.
func ExpiresAt(spec string, now time.Time) (*time.Time, error) {
	d, expires, err := Parse(spec)
	if err != nil {
		return nil, err
	}
	if !expires {
		return nil, nil
	}
	at := now.Add(d)
	return &at, nil
}

// Presets lists the accepted preset tokens, shortest lifetime first.
func Presets() []string {
	tokens := make([]string, 0, len(presets)+1)
	for token := range presets {
		tokens = append(tokens, token)
	}
	sort.Slice(tokens, func(i, j int) bool {
		return presets[tokens[i]] < presets[tokens[j]]
	})
	return append(tokens, Never)
}
