// Package ratelimit provides the token-bucket gate shared by components
// issuing external calls. One run holds one limiter; it is not shared
// across process invocations.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a per-run token bucket sized in requests per minute. The
// bucket refills continuously and Acquire blocks until a token is free.
type Limiter struct {
	limiter *rate.Limiter
}

// PerMinute builds a limiter allowing rpm requests per minute with a burst
// equal to the per-minute capacity. Non-positive rpm disables limiting.
func PerMinute(rpm int) *Limiter {
	if rpm <= 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm)}
}

// Acquire blocks until a token is available or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Allow reports whether a token is available right now without waiting.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// Tokens returns the number of tokens currently available.
func (l *Limiter) Tokens() float64 {
	return l.limiter.TokensAt(time.Now())
}
