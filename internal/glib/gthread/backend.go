// Package gthread implements the handle types: Mutex, RecMutex, Cond,
// Private and Thread.
//
// Every handle except Thread is usable as its zero value. The native object
// behind a handle is allocated from the current osprim.Backend on first use,
// exactly once even when many goroutines use a fresh handle concurrently,
// and freed by Clear. Init allocates eagerly; after it the handle behaves
// exactly like a lazily allocated one.
//
// Allocation failure is fatal: it is reported on stderr and the operation
// panics with a *gerror.Error in the ThreadErrorQuark domain. Thread
// creation is the one operation that returns its failure instead.
package gthread

import (
	"unsafe"

	"github.com/kolkov/quasiglib/internal/glib/config"
	"github.com/kolkov/quasiglib/internal/glib/diag"
	"github.com/kolkov/quasiglib/internal/glib/gerror"
	"github.com/kolkov/quasiglib/internal/glib/hb"
	"github.com/kolkov/quasiglib/internal/glib/lazy"
	"github.com/kolkov/quasiglib/internal/glib/osprim"
	"github.com/kolkov/quasiglib/internal/glib/syncutil"
)

// ThreadErrorAgain is the code reported when a resource could not be
// allocated (G_THREAD_ERROR_AGAIN).
const ThreadErrorAgain = 0

var threadErrorQuark = gerror.QuarkFromString("g-thread-error-quark")

// ThreadErrorQuark returns the error domain of this package.
func ThreadErrorQuark() gerror.Quark {
	return threadErrorQuark
}

// backendRef boxes the interface so it can live in a lazy.Handle.
type backendRef struct {
	osprim.Backend
}

// backend is itself lazily allocated: the default is built from the
// QUASIGLIB environment on first use.
var backend lazy.Handle[backendRef]

func newDefaultBackend() (*backendRef, error) {
	opts, err := config.FromEnv()
	if err != nil {
		diag.Default().Warnf("gthread: %v; using defaults", err)
	}
	diag.Default().SetVerbosity(opts.Verbosity)
	if opts.Trace {
		hb.Default.Enable()
	}
	if opts.DeadlockTimeout > 0 {
		dl := syncutil.DefaultOptions()
		dl.Timeout = opts.DeadlockTimeout
		syncutil.Configure(dl)
	}
	diag.Default().Debugf("gthread: native backend %s", opts)
	return &backendRef{osprim.NewNative(NativeOptions(opts))}, nil
}

// NativeOptions maps configuration onto native backend options.
func NativeOptions(opts config.Options) osprim.Options {
	return osprim.Options{
		MaxThreads:   opts.ThreadLimit,
		MaxKeys:      opts.KeyLimit,
		ReapInterval: opts.ReapInterval,
	}
}

// Backend returns the backend new handles allocate from.
func Backend() osprim.Backend {
	ref, _ := backend.Ensure(newDefaultBackend, nil)
	return ref.Backend
}

// SetBackend makes b the backend for handles allocated from now on and
// returns a function restoring the previous one. Handles already allocated
// keep freeing into the backend they came from.
//
// SetBackend must not race with first use of any handle.
func SetBackend(b osprim.Backend) (restore func()) {
	old := backend.Load()
	backend.Init(&backendRef{b})
	return func() { backend.Init(old) }
}

// fatal reports an allocation failure and panics.
func fatal(what string, err error) {
	gerr := gerror.Newf(threadErrorQuark, ThreadErrorAgain, "cannot allocate %s: %v", what, err)
	diag.Default().Critical(1, "gthread: %s", gerr.Message)
	panic(gerr)
}

// addrOf identifies a handle to the happens-before tracer.
func addrOf[T any](p *T) uintptr {
	return uintptr(unsafe.Pointer(p))
}
