//go:build !deadlock

// Package syncutil provides the internal mutex types of the native backend.
// Build with -tags=deadlock to enable deadlock detection via
// github.com/sasha-s/go-deadlock.
package syncutil

import "sync"

// DeadlockEnabled is true if the deadlock detector is compiled in.
const DeadlockEnabled = false

// A Mutex is a mutual exclusion lock.
//
// It is a plain sync.Mutex unless built with the deadlock tag.
type Mutex = sync.Mutex

// An RWMutex is a reader/writer mutual exclusion lock.
type RWMutex = sync.RWMutex

// Configure applies detector options. It is a no-op without the deadlock tag.
func Configure(Options) {}
