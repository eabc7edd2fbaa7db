package syncutil

import (
	"io"
	"time"
)

// Options configures the deadlock detector.
//
// Only honored when built with -tags=deadlock.
type Options struct {
	// Disable turns detection off while keeping the instrumented types.
	Disable bool

	// Timeout is how long a Lock may wait before it is reported.
	// Zero disables timeout-based reports.
	Timeout time.Duration

	// PrintAllGoroutines dumps every goroutine stack with a report.
	PrintAllGoroutines bool

	// Output receives reports. Nil keeps the detector's default (stderr).
	Output io.Writer

	// OnPotentialDeadlock replaces the default action (exit) when set.
	OnPotentialDeadlock func()
}

// DefaultOptions returns the options applied at init.
func DefaultOptions() Options {
	return Options{Timeout: 30 * time.Second}
}
