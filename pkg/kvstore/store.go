// Package kvstore provides expiring key-value storage for per-user timestamp
// lists, the backing state of the friend request rate limit window.
//
// Two implementations are available:
//   - RedisStore: shared across processes, used whenever Redis is configured
//   - MemoryStore: process-local, used for single-instance deployments and tests
package kvstore

import (
	"context"
	"time"
)

// TimestampStore keeps an ordered list of timestamps per key with a time-to-live.
type TimestampStore interface {
	// Get returns the stored timestamps, or nil when the key is absent or expired.
	Get(ctx context.Context, key string) ([]time.Time, error)
	// Prune atomically drops the timestamps at or before cutoff and returns the
	// rest. When anything was dropped the time-to-live is reset; a list left
	// empty deletes the key. Appends from other callers are never lost.
	Prune(ctx context.Context, key string, cutoff time.Time, ttl time.Duration) ([]time.Time, error)
	// Append atomically adds value to the end of the list and resets its time-to-live.
	Append(ctx context.Context, key string, value time.Time, ttl time.Duration) error
}

// keepAfter returns the timestamps strictly newer than cutoff, in order.
func keepAfter(values []time.Time, cutoff time.Time) []time.Time {
	out := make([]time.Time, 0, len(values))
	for _, v := range values {
		if v.After(cutoff) {
			out = append(out, v)
		}
	}
	return out
}
