// Package ratelimit implements per-subject sliding window counters.
//
// A subject's window holds the timestamps of its admitted requests. A
// request at time now is admitted iff fewer than limit timestamps t satisfy
// now-window < t <= now; admission records now. Every Store makes the
// count-and-record step atomic per key, so concurrent requests for one
// subject can never both observe the last free slot.
package ratelimit

import (
	"context"
	"time"
)

// Store is a sliding window backend
type Store interface {
	// Allow counts key's admissions inside (now-window, now] and records one
	// more when the count is below limit.
	Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error)
}

// Result describes one admission decision
type Result struct {
	Allowed    bool
	Limit      int
	Count      int // admissions in the window, including this one if allowed
	Remaining  int
	RetryAfter time.Duration // zero when allowed
	ResetAt    time.Time     // when the oldest admission leaves the window
}

func newResult(allowed bool, limit, count int, oldest time.Time, window time.Duration, now time.Time) Result {
	if oldest.IsZero() {
		oldest = now
	}
	res := Result{
		Allowed:   allowed,
		Limit:     limit,
		Count:     count,
		Remaining: limit - count,
		ResetAt:   oldest.Add(window),
	}
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	if !allowed {
		res.RetryAfter = res.ResetAt.Sub(now)
		if res.RetryAfter < 0 {
			res.RetryAfter = 0
		}
	}
	return res
}
