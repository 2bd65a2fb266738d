// Package sweeper periodically deletes buckets whose expiry has passed.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/abduss/dropbucket/internal/bucket"
	"github.com/abduss/dropbucket/internal/metrics"
	"github.com/rs/zerolog"
)

// DefaultInterval is the pause between sweeps.
const DefaultInterval = 5 * time.Minute

type source interface {
	ListExpired(ctx context.Context, now time.Time) ([]bucket.Bucket, error)
	Cascade(ctx context.Context, id string) error
}

// Result summarizes one sweep.
type Result struct {
	Expired int
	Deleted int
	Failed  int
}

// Sweeper deletes expired buckets through the lifecycle manager's cascade.
type Sweeper struct {
	source   source
	interval time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

// New builds a sweeper. A non-positive interval falls back to DefaultInterval.
func New(src source, interval time.Duration, log zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{
		source:   src,
		interval: interval,
		log:      log.With().Str("component", "sweeper").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Interval reports the pause between sweeps.
func (s *Sweeper) Interval() time.Duration {
	return s.interval
}

// Sweep cascades every bucket that has expired by now. Buckets are handled
// independently: a failed cascade is logged and counted, and the remaining
// buckets are still processed. Once ctx is cancelled no further cascades are
// started; one already running is allowed to finish.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	expired, err := s.source.ListExpired(ctx, s.now())
	if err != nil {
		return Result{}, fmt.Errorf("list expired buckets: %w", err)
	}

	result := Result{Expired: len(expired)}
	for _, b := range expired {
		if ctx.Err() != nil {
			break
		}

		log := s.log.With().Str("bucket_id", b.ID).Logger()
		if err := s.source.Cascade(log.WithContext(context.WithoutCancel(ctx)), b.ID); err != nil {
			result.Failed++
			log.Error().Err(err).Msg("expired bucket cleanup failed")
			continue
		}

		result.Deleted++
		metrics.BucketDeleted(metrics.ReasonExpired)
		log.Info().Str("name", b.Name).Msg("expired bucket deleted")
	}
	return result, nil
}

// Run sweeps immediately and then once per interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.log.Info().Dur("interval", s.interval).Msg("expiry sweeper started")
	defer s.log.Info().Msg("expiry sweeper stopped")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.tick(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			metrics.SweepCompleted(0, 0, fmt.Errorf("panic: %v", r))
			s.log.Error().Interface("panic", r).Msg("expiry sweep panicked")
		}
	}()

	if ctx.Err() != nil {
		return
	}

	result, err := s.Sweep(ctx)
	metrics.SweepCompleted(result.Deleted, result.Failed, err)
	if err != nil {
		s.log.Error().Err(err).Msg("expiry sweep failed")
		return
	}
	if result.Expired > 0 {
		s.log.Info().
			Int("expired", result.Expired).
			Int("deleted", result.Deleted).
			Int("failed", result.Failed).
			Msg("expiry sweep finished")
	}
}
