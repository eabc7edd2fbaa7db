package gthread

import (
	"github.com/kolkov/quasiglib/internal/glib/hb"
	"github.com/kolkov/quasiglib/internal/glib/lazy"
	"github.com/kolkov/quasiglib/internal/glib/osprim"
)

// mutexImpl is the allocated part of Mutex and RecMutex. It remembers its
// backend so Clear frees into the backend that allocated it.
type mutexImpl struct {
	native  osprim.Mutex
	backend osprim.Backend
}

func mutexAllocator(kind osprim.MutexKind) lazy.Allocator[mutexImpl] {
	return func() (*mutexImpl, error) {
		b := Backend()
		m, err := b.NewMutex(kind)
		if err != nil {
			return nil, err
		}
		return &mutexImpl{native: m, backend: b}, nil
	}
}

func freeMutex(m *mutexImpl) {
	m.backend.FreeMutex(m.native)
}

var (
	allocNormalMutex    = mutexAllocator(osprim.MutexNormal)
	allocRecursiveMutex = mutexAllocator(osprim.MutexRecursive)
)

// Mutex is a non-recursive mutual exclusion lock.
//
// The zero value is an unlocked mutex. Locking a Mutex already held by the
// calling goroutine deadlocks.
type Mutex struct {
	h lazy.Handle[mutexImpl]
}

// Init allocates the native mutex. It must not race with other use.
func (m *Mutex) Init() {
	obj, err := allocNormalMutex()
	if err != nil {
		fatal("mutex", err)
	}
	m.h.Init(obj)
}

// Clear frees the native mutex. The Mutex may be reused afterwards as if
// it were zero. Clear must not race with other use.
func (m *Mutex) Clear() {
	if obj := m.h.Clear(); obj != nil {
		freeMutex(obj)
		hb.Default.ForgetVar(addrOf(m))
	}
}

func (m *Mutex) impl() *mutexImpl {
	obj, err := m.h.Ensure(allocNormalMutex, freeMutex)
	if err != nil {
		fatal("mutex", err)
	}
	return obj
}

// Lock blocks until the mutex is available.
func (m *Mutex) Lock() {
	m.impl().native.Lock()
	hb.Default.Acquire(addrOf(m))
}

// Unlock releases the mutex.
func (m *Mutex) Unlock() {
	hb.Default.Release(addrOf(m))
	m.impl().native.Unlock()
}

// RecMutex is a mutex its owner may lock repeatedly.
//
// Each Lock must be matched by an Unlock before another goroutine can
// acquire it. Unlock from a goroutine that does not own it panics.
type RecMutex struct {
	h lazy.Handle[mutexImpl]
}

// Init allocates the native mutex. It must not race with other use.
func (m *RecMutex) Init() {
	obj, err := allocRecursiveMutex()
	if err != nil {
		fatal("recursive mutex", err)
	}
	m.h.Init(obj)
}

// Clear frees the native mutex. It must not race with other use.
func (m *RecMutex) Clear() {
	if obj := m.h.Clear(); obj != nil {
		freeMutex(obj)
		hb.Default.ForgetVar(addrOf(m))
	}
}

func (m *RecMutex) impl() *mutexImpl {
	obj, err := m.h.Ensure(allocRecursiveMutex, freeMutex)
	if err != nil {
		fatal("recursive mutex", err)
	}
	return obj
}

// Lock acquires the mutex or increments its depth if already owned.
func (m *RecMutex) Lock() {
	m.impl().native.Lock()
	hb.Default.Acquire(addrOf(m))
}

// Unlock decrements the depth, releasing the mutex at zero.
func (m *RecMutex) Unlock() {
	hb.Default.Release(addrOf(m))
	m.impl().native.Unlock()
}
