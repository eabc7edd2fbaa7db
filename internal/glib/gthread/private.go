package gthread

import (
	"github.com/kolkov/quasiglib/internal/glib/lazy"
	"github.com/kolkov/quasiglib/internal/glib/osprim"
)

type privateImpl struct {
	native  osprim.Key
	backend osprim.Backend
}

func freePrivate(p *privateImpl) {
	p.backend.FreeKey(p.native)
}

// Private is a goroutine-local storage slot.
//
// Declare it with its destructor and never change Notify afterwards:
//
//	var buffers = gthread.Private{Notify: func(v any) { release(v) }}
//
// Notify is frozen into the native key on first use. It runs for the last
// non-nil value of a goroutine when a Thread returns. Values left by other
// goroutines are destroyed once the backend notices the goroutine is gone.
type Private struct {
	h lazy.Handle[privateImpl]

	// Notify destroys values; nil means values are simply dropped.
	Notify osprim.Destructor
}

// NewPrivate returns a Private with the given destructor.
func NewPrivate(notify osprim.Destructor) *Private {
	return &Private{Notify: notify}
}

func (p *Private) alloc() (*privateImpl, error) {
	b := Backend()
	k, err := b.NewKey(p.Notify)
	if err != nil {
		return nil, err
	}
	return &privateImpl{native: k, backend: b}, nil
}

// Init allocates the native key. It must not race with other use.
func (p *Private) Init() {
	obj, err := p.alloc()
	if err != nil {
		fatal("thread-local key", err)
	}
	p.h.Init(obj)
}

// Clear frees the native key. Stored values are dropped without running
// Notify. It must not race with other use.
func (p *Private) Clear() {
	if obj := p.h.Clear(); obj != nil {
		freePrivate(obj)
	}
}

func (p *Private) impl() *privateImpl {
	if obj := p.h.Load(); obj != nil {
		return obj
	}
	obj, err := p.h.Ensure(p.alloc, freePrivate)
	if err != nil {
		fatal("thread-local key", err)
	}
	return obj
}

// Get returns the calling goroutine's value, or nil if it never set one.
func (p *Private) Get() any {
	return p.impl().native.Get()
}

// Set stores value for the calling goroutine. The previous value is not
// destroyed.
func (p *Private) Set(value any) {
	p.impl().native.Set(value)
}

// Replace stores value for the calling goroutine and destroys the previous
// value with Notify.
func (p *Private) Replace(value any) {
	k := p.impl().native
	old := k.Get()
	k.Set(value)
	if old != nil && p.Notify != nil {
		p.Notify(old)
	}
}
