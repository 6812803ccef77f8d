// Package ratelimiter throttles outbound calls to the media server API.
//
// Reconciliation passes fan out one or more requests per user and per
// mirror library. Without throttling a large pass can monopolize the
// media server and starve its interactive clients, so every REST call
// goes through a shared token bucket.
package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter wraps golang.org/x/time/rate with the semantics the REST
// client needs: a sustained rate with burst headroom, context-aware
// waiting, and an unlimited mode for test servers.
//
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a limiter allowing requestsPerSecond sustained with the
// given burst capacity. A zero rate disables limiting.
func New(requestsPerSecond, burst uint) *RateLimiter {
	if requestsPerSecond == 0 {
		// Effectively unlimited. rate.Inf has edge cases with Wait, so a
		// very large finite rate is used instead.
		requestsPerSecond = 1_000_000_000
		burst = requestsPerSecond
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), int(burst)),
	}
}

// Allow reports whether a request may proceed right now, consuming a
// token when it may. It never blocks.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Wait blocks until a token is available or ctx is cancelled. This is
// the path reconciliation requests take: a pass slows down rather than
// failing when it runs ahead of the budget.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// SetLimit changes the sustained rate. The burst is raised to twice the
// new rate when it would otherwise be smaller, so the bucket can hold
// the tokens the new rate accumulates.
func (r *RateLimiter) SetLimit(requestsPerSecond uint) {
	if requestsPerSecond == 0 {
		requestsPerSecond = 1_000_000_000
	}

	oldRate := uint(r.limiter.Limit())
	oldBurst := uint(r.limiter.Burst())
	r.limiter.SetLimit(rate.Limit(requestsPerSecond))

	if oldBurst == oldRate*2 || oldBurst <= oldRate {
		r.limiter.SetBurst(int(requestsPerSecond * 2))
	}
}

// Tokens returns the number of tokens currently available. Useful for
// debugging slow passes; the value is stale the moment it returns.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}
