// Package lazy implements an opaque handle that may start as its zero value
// and allocates its underlying object exactly once on first use.
//
// The ownership slot is an atomic pointer: nil is the "unallocated"
// sentinel, any other value is the one canonical object for the lifetime of
// the handle. Allocation happens outside any lock and is published with a
// single compare-and-swap. Goroutines that lose the publication race free
// their speculative object and adopt the winner's.
//
// The pattern is the same one CAS-based shadow cells use for first access:
//
//	var h lazy.Handle[nativeMutex]
//	m, err := h.Ensure(newNativeMutex, freeNativeMutex)
//
// Memory ordering: sync/atomic operations are sequentially consistent in the
// Go memory model, which is stronger than the acquire-load / release-CAS
// pair the pattern needs. A goroutine that observes a non-nil slot therefore
// also observes every write made while constructing the object.
package lazy

import (
	"errors"
	"sync/atomic"
)

// ErrNilObject is returned by Ensure when the allocator reports success but
// returns a nil object. Publishing nil would leave the handle unallocated.
var ErrNilObject = errors.New("lazy: allocator returned nil object")

// Allocator creates a fully constructed object for a handle.
//
// It is called without any lock held and may be arbitrarily expensive.
type Allocator[T any] func() (*T, error)

// Finalizer destroys an object that was allocated but lost the publication
// race, or that is being cleared out of a handle.
type Finalizer[T any] func(*T)

// Handle is an ownership slot for a lazily allocated *T.
//
// The zero value is a valid, unallocated handle. Handle must not be copied
// after first use.
//
// Layout:
//   - Offset 0: ownership slot (nil = sentinel)
//   - Offset 8: reserved words, keeping the footprint of the handle fixed
//     for structs that embed it by value
type Handle[T any] struct {
	_    noCopy
	slot atomic.Pointer[T]
	_    [2]uint32
}

// Ensure returns the handle's object, allocating it on first use.
//
// Algorithm:
//  1. Load the slot; if non-nil return it (fast path, no allocation)
//  2. Call alloc with no lock held
//  3. CompareAndSwap(nil, obj) to publish
//  4. On CAS failure call free(obj) and return the winner's object
//
// Any number of goroutines may race on the first call. Exactly one object
// is published; every loser frees its own speculative object before
// returning, so no allocation leaks.
//
// Parameters:
//   - alloc: constructs a new object (must not be nil)
//   - free: destroys an unpublished object (may be nil if nothing to free)
//
// Returns:
//   - *T: the canonical object (never nil when err == nil)
//   - error: the allocator's error, in which case the handle is unchanged
func (h *Handle[T]) Ensure(alloc Allocator[T], free Finalizer[T]) (*T, error) {
	if obj := h.slot.Load(); obj != nil {
		return obj, nil
	}

	obj, err := alloc()
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, ErrNilObject
	}

	for {
		if h.slot.CompareAndSwap(nil, obj) {
			return obj, nil
		}

		// Lost the race. The slot can only go nil -> live, so the
		// winner is there unless someone cleared concurrently, which is
		// caller misuse; in that case retry the publication.
		if winner := h.slot.Load(); winner != nil {
			if free != nil {
				free(obj)
			}
			return winner, nil
		}
	}
}

// Init stores obj unconditionally.
//
// This is the explicit lifecycle path. It must not race with Ensure or any
// other operation on the same handle; a previously published object is
// overwritten without being freed.
func (h *Handle[T]) Init(obj *T) {
	h.slot.Store(obj)
}

// Load returns the current object or nil if the handle is unallocated.
//
// Load never allocates.
func (h *Handle[T]) Load() *T {
	return h.slot.Load()
}

// Allocated reports whether the handle holds an object.
func (h *Handle[T]) Allocated() bool {
	return h.slot.Load() != nil
}

// Clear resets the handle to the sentinel and returns the object it held,
// or nil if it was never allocated. The caller destroys the returned object.
//
// Clear must not be concurrent with any other operation on the handle.
func (h *Handle[T]) Clear() *T {
	return h.slot.Swap(nil)
}

// noCopy may be embedded into structs which must not be copied after first
// use. go vet's copylocks checker recognizes the Lock/Unlock methods.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
