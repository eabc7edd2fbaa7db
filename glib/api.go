package glib

import (
	"github.com/kolkov/quasiglib/internal/glib/diag"
	"github.com/kolkov/quasiglib/internal/glib/filetest"
	"github.com/kolkov/quasiglib/internal/glib/gerror"
	"github.com/kolkov/quasiglib/internal/glib/gthread"
	"github.com/kolkov/quasiglib/internal/glib/monotonic"
)

// Mutex is a non-recursive lock. The zero value is unlocked.
type Mutex = gthread.Mutex

// RecMutex is a lock its owner may acquire repeatedly. The zero value is
// unlocked.
type RecMutex = gthread.RecMutex

// Cond is a condition variable. The zero value is ready to use.
type Cond = gthread.Cond

// Private is a goroutine-local slot with an optional destructor, Notify.
//
//	var cache = glib.Private{Notify: func(v any) { v.(*buffer).release() }}
type Private = gthread.Private

// Thread is a joinable, reference-counted goroutine.
type Thread = gthread.Thread

// ThreadFunc is the entry point of a Thread.
type ThreadFunc = gthread.Func

// DestroyNotify destroys a Private value.
type DestroyNotify = func(value any)

// Error is a domain-tagged error with a numeric code and a message.
type Error = gerror.Error

// Quark is an interned error domain name.
type Quark = gerror.Quark

// ThreadErrorAgain is reported when a thread or native object could not be
// created for lack of resources.
const ThreadErrorAgain = gthread.ThreadErrorAgain

// ThreadErrorQuark returns the domain of threading errors.
func ThreadErrorQuark() Quark {
	return gthread.ThreadErrorQuark()
}

// QuarkFromString interns name as an error domain.
func QuarkFromString(name string) Quark {
	return gerror.QuarkFromString(name)
}

// NewPrivate returns a Private whose values are destroyed with notify.
func NewPrivate(notify DestroyNotify) *Private {
	return gthread.NewPrivate(notify)
}

// ThreadNew starts fn(data) on a new Thread holding one reference.
// It panics if the thread cannot be created.
func ThreadNew(name string, fn ThreadFunc, data any) *Thread {
	return gthread.New(name, fn, data)
}

// ThreadTryNew starts fn(data) on a new Thread holding one reference.
//
// The error slot, when non-nil, is set to nil on entry and to the failure
// on error, in which case ThreadTryNew returns nil. Callers that prefer an
// ordinary error return can pass nil and check the result for nil.
func ThreadTryNew(name string, fn ThreadFunc, data any, err **Error) *Thread {
	gerror.Set(err, nil)
	t, e := gthread.TryNew(name, fn, data)
	if e != nil {
		gerror.Set(err, gerror.From(e))
		return nil
	}
	return t
}

// ThreadSelf returns the Thread running the calling goroutine, or nil for
// goroutines not started by ThreadNew or ThreadTryNew.
func ThreadSelf() *Thread {
	return gthread.Self()
}

// ClearError releases the error in *err and sets it to nil. Both err and
// *err may be nil.
func ClearError(err **Error) {
	gerror.Clear(err)
}

// ReturnIfFailWarning reports a failed precondition of function in domain.
// Nothing is printed when expression is empty.
func ReturnIfFailWarning(domain, function, expression string) {
	if expression == "" {
		return
	}
	if domain == "" {
		domain = "quasiglib"
	}
	diag.Default().Warnf("(%s) %s: assertion '%s' failed", domain, function, expression)
}

// FileTestFlags selects the predicates checked by FileTest.
type FileTestFlags = filetest.Flags

// Predicates for FileTest.
const (
	FileTestIsRegular    = filetest.IsRegular
	FileTestIsSymlink    = filetest.IsSymlink
	FileTestIsDir        = filetest.IsDir
	FileTestIsExecutable = filetest.IsExecutable
	FileTestExists       = filetest.Exists
)

// FileTest reports whether any of the predicates in test holds for path.
// An empty path never matches.
func FileTest(path string, test FileTestFlags) bool {
	return filetest.Test(path, test)
}

// MonotonicTime returns a strictly increasing microsecond counter.
func MonotonicTime() int64 {
	return monotonic.Time()
}

// Usleep pauses the calling goroutine for us microseconds.
func Usleep(us uint64) {
	monotonic.Usleep(us)
}
