// Package monotonic provides a strictly increasing microsecond clock.
//
// Time reads the runtime's monotonic clock relative to process start, so it
// is immune to wall-clock changes. Two calls never return the same value:
// when the clock has not advanced by a full microsecond since the previous
// call, the previous value plus one is returned.
package monotonic

import (
	"sync/atomic"
	"time"
)

var (
	base = time.Now()
	last atomic.Int64
)

// Time returns microseconds since process start. The first call returns a
// value of at least 1.
//
// Time runs ahead of the real clock by at most the number of calls made
// within a single microsecond, so it must not be used to measure short
// intervals right after a burst of calls. Use time.Since for that.
//
// Thread Safety: Safe for concurrent calls; values are unique across all
// goroutines.
func Time() int64 {
	now := time.Since(base).Microseconds() + 1
	for {
		prev := last.Load()
		next := now
		if next <= prev {
			next = prev + 1
		}
		if last.CompareAndSwap(prev, next) {
			return next
		}
	}
}

// Usleep pauses the calling goroutine for at least us microseconds.
func Usleep(us uint64) {
	if us == 0 {
		return
	}
	const maxMicros = uint64(1<<63-1) / uint64(time.Microsecond)
	if us > maxMicros {
		us = maxMicros
	}
	//nolint:gosec // G115: clamped above
	time.Sleep(time.Duration(us) * time.Microsecond)
}
