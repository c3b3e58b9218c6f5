package services

import (
	"context"
	"math/rand/v2"
	"time"
)

// Sleeper waits a random duration in [min, max]. Scrapers pace every request through it.
type Sleeper interface {
	Sleep(ctx context.Context, min, max time.Duration) error
}

// JitterSleeper sleeps for a uniformly random duration.
type JitterSleeper struct{}

// NewJitterSleeper creates a sleeper.
func NewJitterSleeper() *JitterSleeper {
	return &JitterSleeper{}
}

// Sleep blocks for a random duration or until ctx is done.
func (s *JitterSleeper) Sleep(ctx context.Context, min, max time.Duration) error {
	d := s.pick(min, max)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (*JitterSleeper) pick(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int64N(int64(max-min)+1))
}

// NoopSleeper never waits. Used by tests and dry runs.
type NoopSleeper struct{}

// Sleep returns immediately unless ctx is already done.
func (NoopSleeper) Sleep(ctx context.Context, _, _ time.Duration) error {
	return ctx.Err()
}
