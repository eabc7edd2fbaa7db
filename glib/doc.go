// Package glib provides GLib-style threading primitives for Go programs.
//
// Every primitive except Thread works as its zero value: the native object
// behind it is created on first use, exactly once, even when several
// goroutines race on a fresh value. Explicit Init and Clear calls are
// available for callers that manage lifetimes themselves.
//
// # Quick Start
//
//	var (
//		mu    glib.Mutex
//		cond  glib.Cond
//		ready bool
//	)
//
//	th := glib.ThreadNew("worker", func(any) any {
//		mu.Lock()
//		ready = true
//		cond.Signal()
//		mu.Unlock()
//		return nil
//	}, nil)
//
//	mu.Lock()
//	for !ready {
//		cond.Wait(&mu)
//	}
//	mu.Unlock()
//
//	th.Join()
//	th.Unref()
//
// # API Overview
//
//   - Locks: [Mutex], [RecMutex]
//   - Condition variables: [Cond]
//   - Goroutine-local storage: [Private], [NewPrivate]
//   - Threads: [ThreadNew], [ThreadTryNew], [ThreadSelf]
//   - Errors: [Error], [ClearError], [ThreadErrorQuark]
//   - Collaborators: [FileTest], [MonotonicTime], [Usleep], [ReturnIfFailWarning]
//   - Version information: [GetInfo], [Version]
//
// # Threads and Goroutines
//
// A Thread is a goroutine started by ThreadNew or ThreadTryNew. Private
// values belong to goroutines: a value stored by a Thread is destroyed with
// the Private's Notify function when the Thread returns, and values stored
// by other goroutines are destroyed some time after those goroutines exit.
//
// # Failure Policy
//
// If a native object cannot be allocated the process cannot make progress:
// the failure is reported on stderr and the operation panics with an
// *Error in the ThreadErrorQuark domain. ThreadTryNew is the exception and
// reports thread creation failure through its error slot.
//
// # Configuration
//
// The QUASIGLIB environment variable is read on first use:
//
//	QUASIGLIB="thread_limit=64 key_limit=0 reap_interval=1024 trace=0 verbosity=1"
//
// Build with -tags deadlock to replace the internal mutexes with
// github.com/sasha-s/go-deadlock, which reports lock-order inversions and
// locks held for longer than 30 seconds.
package glib
