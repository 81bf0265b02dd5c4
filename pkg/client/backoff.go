package client

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy defines how to calculate the next wait time.
type BackoffStrategy interface {
	Next(attempt int) time.Duration
}

// JitteredBackoff waits 2^attempt * Factor * (U[0,1) + 0.5) seconds.
type JitteredBackoff struct {
	// Factor is the base wait in seconds.
	Factor float64
	// Rand returns a value in [0, 1). Default: math/rand.Float64.
	Rand func() float64
}

// DefaultBackoff returns the dispatcher's default strategy (factor 0.5s).
func DefaultBackoff() *JitteredBackoff {
	return &JitteredBackoff{Factor: 0.5}
}

// Next calculates the wait duration for the given attempt (0-based).
func (b *JitteredBackoff) Next(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	r := rand.Float64
	if b.Rand != nil {
		r = b.Rand
	}
	seconds := math.Pow(2, float64(attempt)) * b.Factor * (r() + 0.5)
	return time.Duration(seconds * float64(time.Second))
}

// SleepContext blocks for d or until ctx is done. A non-positive d only
// checks ctx.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
