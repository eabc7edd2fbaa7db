// Package osprim defines the native primitive capability set the handles
// are built on: create/destroy, lock/unlock, wait/signal, get/set, spawn/join.
//
// A Backend hands out native objects and takes them back for destruction.
// Handles never construct native objects themselves, which lets tests swap
// in a Counting backend to verify that every allocation is eventually freed.
//
// Implementations:
//   - Native: built on the Go runtime (goroutines, goroutine IDs)
//   - Counting: wraps another Backend, counts live objects, injects failures
package osprim

import "errors"

// ErrResourceLimit is returned when a backend refuses to create an object
// because a configured limit is reached (the EAGAIN of thread creation).
var ErrResourceLimit = errors.New("osprim: resource limit reached")

// ErrInjected is returned by a Counting backend when failure injection is armed.
var ErrInjected = errors.New("osprim: injected allocation failure")

// MutexKind selects the locking semantics of a native mutex.
type MutexKind int

const (
	// MutexNormal is a non-recursive mutex. Relocking from the owner deadlocks.
	MutexNormal MutexKind = iota
	// MutexRecursive may be locked repeatedly by its owner and must be
	// unlocked the same number of times.
	MutexRecursive
)

// String returns the string representation of a MutexKind.
func (k MutexKind) String() string {
	switch k {
	case MutexNormal:
		return "normal"
	case MutexRecursive:
		return "recursive"
	default:
		return "unknown"
	}
}

// Mutex is a native mutual exclusion lock.
type Mutex interface {
	Lock()
	Unlock()
}

// Cond is a native condition variable.
//
// Wait must be called with m locked. It releases m, blocks until woken and
// locks m again before returning. Spurious wakeups are allowed.
type Cond interface {
	Wait(m Mutex)
	Signal()
	Broadcast()
}

// Destructor releases a goroutine-local value when its goroutine exits.
type Destructor func(value any)

// Key is a native goroutine-local storage key.
//
// Get returns nil for goroutines that never stored a value.
type Key interface {
	Get() any
	Set(value any)
}

// ThreadFunc is the entry point of a spawned thread.
type ThreadFunc func(arg any) any

// Thread is a native join handle.
//
// Join blocks until the entry function returned and goroutine-local
// destructors ran, then yields the entry function's result. Join may be
// called any number of times.
type Thread interface {
	Join() any
}

// Backend is the capability set the handles allocate from.
//
// Every New*/Spawn that succeeds must be matched by exactly one Free* call
// with the returned object.
type Backend interface {
	NewMutex(kind MutexKind) (Mutex, error)
	FreeMutex(m Mutex)

	NewCond() (Cond, error)
	FreeCond(c Cond)

	// NewKey creates a key. The destructor is fixed for the key's lifetime
	// and may be nil.
	NewKey(destructor Destructor) (Key, error)
	FreeKey(k Key)

	Spawn(name string, fn ThreadFunc, arg any) (Thread, error)
	FreeThread(t Thread)
}
