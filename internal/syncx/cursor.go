// Package syncx holds small, dependency-light helpers shared across the
// sync core: timestamp conversion and tolerant JSON payload extraction.
package syncx

import "time"

// RFC3339 converts Unix milliseconds to an RFC3339 timestamp string.
func RFC3339(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339Nano)
}

// NowMs returns the current Unix milliseconds timestamp (UTC).
func NowMs() int64 {
	return time.Now().UTC().UnixMilli()
}

// MsToTime converts Unix milliseconds to a time.Time (UTC).
func MsToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// EnsureMonotonicTimestamp returns a timestamp strictly greater than
// previousMs: the current time when it has already advanced far enough,
// previousMs+1 otherwise. Mirrors spec.md invariant 4: updated_at is
// monotonically non-decreasing per (table,row).
func EnsureMonotonicTimestamp(previousMs int64) int64 {
	now := NowMs()
	if now > previousMs {
		return now
	}
	return previousMs + 1
}
