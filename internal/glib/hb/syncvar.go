package hb

import "sync"

// SyncVar is the release clock of one primitive.
//
// Layout:
//   - releaseClock: union of clocks of every Release so far (nil until the
//     first Release)
//
// Release merges rather than overwrites: for a mutex the previous releaser
// is already ordered before the current one, and for a condition variable
// several signalers may each wake a different waiter.
type SyncVar struct {
	mu           sync.Mutex
	releaseClock VectorClock
}

// ReleaseClock returns a copy of the release clock, or nil.
func (sv *SyncVar) ReleaseClock() VectorClock {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	if sv.releaseClock == nil {
		return nil
	}
	return sv.releaseClock.Clone()
}

func (sv *SyncVar) releaseFrom(c VectorClock) {
	sv.mu.Lock()
	if sv.releaseClock == nil {
		sv.releaseClock = c.Clone()
	} else {
		sv.releaseClock.Join(c)
	}
	sv.mu.Unlock()
}

func (sv *SyncVar) acquireInto(c VectorClock) {
	sv.mu.Lock()
	if sv.releaseClock != nil {
		c.Join(sv.releaseClock)
	}
	sv.mu.Unlock()
}
