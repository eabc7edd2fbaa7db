//go:build deadlock

// Package syncutil provides the internal mutex types of the native backend.
// Build with -tags=deadlock to enable deadlock detection via
// github.com/sasha-s/go-deadlock.
package syncutil

import (
	deadlock "github.com/sasha-s/go-deadlock"
)

// DeadlockEnabled is true if the deadlock detector is compiled in.
const DeadlockEnabled = true

// A Mutex is a mutual exclusion lock that reports lock-order inversions and
// locks held longer than Options.Timeout.
type Mutex = deadlock.Mutex

// An RWMutex is a reader/writer mutual exclusion lock with deadlock detection.
type RWMutex = deadlock.RWMutex

func init() {
	Configure(DefaultOptions())
}

// Configure applies detector options.
//
// It must be called before any mutex is used; go-deadlock reads its options
// without synchronization.
func Configure(opts Options) {
	deadlock.Opts.Disable = opts.Disable
	deadlock.Opts.DeadlockTimeout = opts.Timeout
	deadlock.Opts.PrintAllCurrentGoroutines = opts.PrintAllGoroutines
	if opts.Output != nil {
		deadlock.Opts.LogBuf = opts.Output
	}
	if opts.OnPotentialDeadlock != nil {
		deadlock.Opts.OnPotentialDeadlock = opts.OnPotentialDeadlock
	}
}
