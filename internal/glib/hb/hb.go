// Package hb traces happens-before edges through the primitives.
//
// When enabled, every goroutine that touches a traced primitive carries a
// vector clock, and every primitive address carries a release clock:
//   - Release (Unlock, Signal, Broadcast, thread start and exit) merges the
//     goroutine's clock into the primitive's clock, then ticks the goroutine
//   - Acquire (Lock, Wait return, thread entry, Join) joins the primitive's
//     clock into the goroutine's clock
//
// A snapshot taken by goroutine A happens-before a snapshot taken by B iff
// A's clock ⊑ B's clock. Tests use this to prove that publication through a
// mutex, condition variable or join is visible to the other side.
//
// Tracing is off by default; disabled calls cost one atomic load.
package hb

import (
	"sync"
	"sync/atomic"

	"github.com/kolkov/quasiglib/internal/glib/gid"
)

// Tracer records happens-before edges.
//
// Thread Safety: All methods are safe for concurrent calls.
type Tracer struct {
	enabled atomic.Bool

	// contexts maps goroutine IDs to their clocks.
	// Key: int64 (goroutine ID), Value: *context.
	contexts sync.Map

	// vars maps primitive addresses to their release clocks.
	// Key: uintptr, Value: *SyncVar.
	vars sync.Map
}

// context is the clock of one goroutine. Only its goroutine mutates it;
// the mutex lets Snapshot run from the goroutine itself while Reset runs
// elsewhere.
type context struct {
	mu sync.Mutex
	id int64
	c  VectorClock
}

// NewTracer creates a disabled tracer.
func NewTracer() *Tracer {
	return &Tracer{}
}

// Enable turns tracing on.
func (t *Tracer) Enable() { t.enabled.Store(true) }

// Disable turns tracing off. Recorded clocks are kept.
func (t *Tracer) Disable() { t.enabled.Store(false) }

// Enabled reports whether tracing is on.
func (t *Tracer) Enabled() bool { return t.enabled.Load() }

// current returns the calling goroutine's context, creating it at 1@self.
func (t *Tracer) current() *context {
	id := gid.Current()
	if v, ok := t.contexts.Load(id); ok {
		return v.(*context)
	}
	ctx := &context{id: id, c: VectorClock{id: 1}}
	v, _ := t.contexts.LoadOrStore(id, ctx)
	return v.(*context)
}

// syncVar returns the release clock for addr, creating it if needed.
func (t *Tracer) syncVar(addr uintptr) *SyncVar {
	if v, ok := t.vars.Load(addr); ok {
		return v.(*SyncVar)
	}
	v, _ := t.vars.LoadOrStore(addr, &SyncVar{})
	return v.(*SyncVar)
}

// Acquire joins the release clock of addr into the calling goroutine.
func (t *Tracer) Acquire(addr uintptr) {
	if !t.enabled.Load() {
		return
	}
	ctx := t.current()
	sv := t.syncVar(addr)

	ctx.mu.Lock()
	sv.acquireInto(ctx.c)
	ctx.mu.Unlock()
}

// Release merges the calling goroutine's clock into addr and ticks it.
func (t *Tracer) Release(addr uintptr) {
	if !t.enabled.Load() {
		return
	}
	ctx := t.current()
	sv := t.syncVar(addr)

	ctx.mu.Lock()
	sv.releaseFrom(ctx.c)
	ctx.c.Increment(ctx.id)
	ctx.mu.Unlock()
}

// Snapshot returns a copy of the calling goroutine's clock and ticks it,
// marking a local event. Returns nil when tracing is disabled.
func (t *Tracer) Snapshot() VectorClock {
	if !t.enabled.Load() {
		return nil
	}
	ctx := t.current()

	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	snap := ctx.c.Clone()
	ctx.c.Increment(ctx.id)
	return snap
}

// Forget drops the clock of goroutine id, for example when a thread exits.
func (t *Tracer) Forget(id int64) {
	t.contexts.Delete(id)
}

// ForgetVar drops the release clock of addr, for example when a primitive
// is cleared and its address may be reused.
func (t *Tracer) ForgetVar(addr uintptr) {
	t.vars.Delete(addr)
}

// Reset clears all recorded clocks.
//
// Thread Safety: NOT safe for concurrent use with traced operations.
func (t *Tracer) Reset() {
	t.contexts.Range(func(k, _ any) bool { t.contexts.Delete(k); return true })
	t.vars.Range(func(k, _ any) bool { t.vars.Delete(k); return true })
}

// Stats reports the number of tracked goroutines and primitives.
func (t *Tracer) Stats() (goroutines, vars int) {
	t.contexts.Range(func(_, _ any) bool { goroutines++; return true })
	t.vars.Range(func(_, _ any) bool { vars++; return true })
	return goroutines, vars
}

// HappensBefore reports whether the event captured by a happened before
// the event captured by b. Nil snapshots (tracing disabled) never order.
func HappensBefore(a, b VectorClock) bool {
	if a == nil || b == nil {
		return false
	}
	return a.LessOrEqual(b)
}

// Concurrent reports whether neither snapshot happens before the other.
func Concurrent(a, b VectorClock) bool {
	return !HappensBefore(a, b) && !HappensBefore(b, a)
}

// Default is the process-wide tracer used by the primitives.
var Default = NewTracer()
