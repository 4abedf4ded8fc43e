// Package ratelimit implements fixed-window request limits keyed by caller.
package ratelimit

import (
	"context"
	"time"
)

// Result is the outcome of one Check.
type Result struct {
	Allowed   bool
	Remaining int
	// RetryAfter is how long the caller should wait when not allowed.
	RetryAfter time.Duration
}

// Limiter counts hits per key in fixed windows.
type Limiter interface {
	// Check records a hit for key and reports whether it fits in limit per window.
	Check(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}

func result(count int64, limit int, retryAfter time.Duration) Result {
	remaining := int64(limit) - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:    count <= int64(limit),
		Remaining:  int(remaining),
		RetryAfter: retryAfter,
	}
}
