// Package ratelimit spaces out outbound provider calls. Each Limiter owns its
// own budget; share an instance only between callers that should share one.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Limiter allows one call per minimum interval.
type Limiter struct {
	minInterval time.Duration
	bucket      *rate.Limiter
}

// New returns a limiter. A non-positive interval disables limiting.
func New(minInterval time.Duration) *Limiter {
	l := &Limiter{minInterval: minInterval}
	if minInterval > 0 {
		l.bucket = rate.NewLimiter(rate.Every(minInterval), 1)
	}
	return l
}

// Wait blocks until the next call is allowed or ctx is done. A wait that
// cannot finish before the ctx deadline fails at once with
// context.DeadlineExceeded.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.bucket == nil {
		return ctx.Err()
	}
	err := l.bucket.Wait(ctx)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("ratelimit: %v: %w", err, context.DeadlineExceeded)
}

// MinInterval reports the configured spacing.
func (l *Limiter) MinInterval() time.Duration {
	if l == nil {
		return 0
	}
	return l.minInterval
}
