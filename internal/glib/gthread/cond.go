package gthread

import (
	"github.com/kolkov/quasiglib/internal/glib/hb"
	"github.com/kolkov/quasiglib/internal/glib/lazy"
	"github.com/kolkov/quasiglib/internal/glib/osprim"
)

type condImpl struct {
	native  osprim.Cond
	backend osprim.Backend
}

func allocCond() (*condImpl, error) {
	b := Backend()
	c, err := b.NewCond()
	if err != nil {
		return nil, err
	}
	return &condImpl{native: c, backend: b}, nil
}

func freeCond(c *condImpl) {
	c.backend.FreeCond(c.native)
}

// Cond is a condition variable. The zero value is ready to use.
//
// Waiters must recheck their predicate in a loop: wakeups may be spurious
// and the order in which waiters wake is unspecified.
type Cond struct {
	h lazy.Handle[condImpl]
}

// Init allocates the native condition variable. It must not race with
// other use.
func (c *Cond) Init() {
	obj, err := allocCond()
	if err != nil {
		fatal("condition variable", err)
	}
	c.h.Init(obj)
}

// Clear frees the native condition variable. It must not race with other
// use, and no goroutine may be waiting.
func (c *Cond) Clear() {
	if obj := c.h.Clear(); obj != nil {
		freeCond(obj)
		hb.Default.ForgetVar(addrOf(c))
	}
}

func (c *Cond) impl() *condImpl {
	obj, err := c.h.Ensure(allocCond, freeCond)
	if err != nil {
		fatal("condition variable", err)
	}
	return obj
}

// Wait atomically unlocks m and suspends the calling goroutine until woken
// by Signal or Broadcast, then locks m again before returning.
//
// m must be locked by the caller.
func (c *Cond) Wait(m *Mutex) {
	native := c.impl().native
	mu := m.impl().native

	hb.Default.Release(addrOf(m))
	native.Wait(mu)
	hb.Default.Acquire(addrOf(c))
	hb.Default.Acquire(addrOf(m))
}

// Signal wakes at least one waiter, if any.
func (c *Cond) Signal() {
	hb.Default.Release(addrOf(c))
	c.impl().native.Signal()
}

// Broadcast wakes all current waiters.
func (c *Cond) Broadcast() {
	hb.Default.Release(addrOf(c))
	c.impl().native.Broadcast()
}
