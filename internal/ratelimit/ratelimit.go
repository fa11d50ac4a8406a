// Package ratelimit provides the token-bucket limiters guarding the
// exchange's unauthenticated request/response endpoints. An overall
// requests-per-second budget is divided by weight between the Depth
// Snapshotter and the Lifecycle Manager's catalog calls; each caller gets
// its own bucket at its share of the budget, so neither can starve the
// other. Tokens are not shared: one caller's unused share is not available
// to the other.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Shared splits a single requests-per-second budget into weighted
// sub-limiters. Each Sub call returns an independent limiter at
// share*total; the sub-limiters do not draw from a common bucket, and the
// sum of the shares handed out is not checked against the total.
type Shared struct {
	total float64
}

// NewShared returns a Shared limiter budgeting rps requests/s overall.
func NewShared(rps float64) *Shared {
	return &Shared{total: rps}
}

// Sub returns a *rate.Limiter capped at share*total, with a burst of 1 so
// callers never queue more than one request ahead of the bucket.
func (s *Shared) Sub(share float64) *rate.Limiter {
	limit := s.total * share
	if limit <= 0 {
		limit = 0.1
	}
	return rate.NewLimiter(rate.Limit(limit), 1)
}

// Wait blocks until lim admits one request or ctx is cancelled.
func Wait(ctx context.Context, lim *rate.Limiter) error {
	return lim.Wait(ctx)
}
