package gthread

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/kolkov/quasiglib/internal/glib/diag"
	"github.com/kolkov/quasiglib/internal/glib/gerror"
	"github.com/kolkov/quasiglib/internal/glib/gid"
	"github.com/kolkov/quasiglib/internal/glib/hb"
	"github.com/kolkov/quasiglib/internal/glib/osprim"
)

// Func is the entry point of a Thread.
type Func func(data any) any

// Thread is a joinable, reference-counted goroutine.
//
// A Thread starts with one reference owned by its creator. The last Unref
// joins the goroutine if nobody did and frees the native handle.
//
// Thread Safety: All methods are safe for concurrent calls. No method may
// be called after the caller's own Unref dropped the last reference.
type Thread struct {
	refs atomic.Int32
	name string

	native  osprim.Thread
	backend osprim.Backend
	started chan struct{} // closed once native and backend are set

	joinOnce sync.Once
	result   any
}

// selves maps goroutine IDs of running threads to their *Thread.
// Key: int64, Value: *Thread.
var selves sync.Map

// TryNew starts fn(data) on a new goroutine.
//
// Returns a Thread holding one reference, or a *gerror.Error with code
// ThreadErrorAgain when the backend refuses to start another thread. No
// goroutine is started on failure.
func TryNew(name string, fn Func, data any) (*Thread, error) {
	if fn == nil {
		return nil, gerror.New(threadErrorQuark, ThreadErrorAgain, "Error creating thread: nil thread function")
	}

	t := &Thread{name: name, started: make(chan struct{})}
	t.refs.Store(1)

	b := Backend()
	native, err := b.Spawn(name, t.run(fn), data)
	if err != nil {
		close(t.started)
		return nil, gerror.Newf(threadErrorQuark, ThreadErrorAgain, "Error creating thread: %v", err)
	}
	t.native = native
	t.backend = b
	hb.Default.Release(t.startAddr())
	close(t.started)
	return t, nil
}

// New is like TryNew but panics on failure.
func New(name string, fn Func, data any) *Thread {
	t, err := TryNew(name, fn, data)
	if err != nil {
		diag.Default().Critical(1, "gthread: %v", err)
		panic(err)
	}
	return t
}

func (t *Thread) run(fn Func) osprim.ThreadFunc {
	return func(data any) any {
		// The body must not see t before the creator finished it.
		<-t.started
		id := gid.Current()
		selves.Store(id, t)
		defer selves.Delete(id)

		hb.Default.Acquire(t.startAddr())
		result := fn(data)
		hb.Default.Release(t.exitAddr())
		hb.Default.Forget(id)
		return result
	}
}

// startAddr and exitAddr name the creation and termination edges of the
// thread for the tracer. Threads are never smaller than two bytes.
func (t *Thread) startAddr() uintptr { return addrOf(t) }
func (t *Thread) exitAddr() uintptr  { return addrOf(t) + 1 }

// Join waits for the thread's function to return and yields its result.
//
// Join does not drop a reference. Calling it again, from any goroutine,
// returns the same result without blocking.
func (t *Thread) Join() any {
	t.joinOnce.Do(func() {
		t.result = t.native.Join()
	})
	hb.Default.Acquire(t.exitAddr())
	return t.result
}

// Ref adds a reference and returns t.
func (t *Thread) Ref() *Thread {
	if n := t.refs.Add(1); n <= 1 {
		t.refs.Add(-1)
		panic(fmt.Sprintf("gthread: Ref of released thread %q", t.name))
	}
	return t
}

// Unref drops a reference. Dropping the last one joins the thread if
// needed and frees the native handle.
func (t *Thread) Unref() {
	n := t.refs.Add(-1)
	switch {
	case n > 0:
		return
	case n < 0:
		panic(fmt.Sprintf("gthread: Unref of released thread %q", t.name))
	}
	t.Join()
	t.backend.FreeThread(t.native)
}

// Refs returns the current reference count.
func (t *Thread) Refs() int {
	return int(t.refs.Load())
}

// Name returns the name given at creation.
func (t *Thread) Name() string {
	return t.name
}

// Self returns the Thread running the calling goroutine, or nil if the
// goroutine was not started by TryNew or New. The result borrows the
// thread's own reference and must not be Unref'd without a matching Ref.
func Self() *Thread {
	if v, ok := selves.Load(gid.Current()); ok {
		return v.(*Thread)
	}
	return nil
}
