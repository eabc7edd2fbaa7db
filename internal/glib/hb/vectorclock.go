package hb

import (
	"sort"
	"strconv"
	"strings"
)

// VectorClock maps goroutine IDs to logical times.
//
// Missing entries are zero. The map form keeps clocks small: only
// goroutines that touched a traced primitive appear.
//
// Example: {1: 50, 7: 30} means goroutine 1 at 50, goroutine 7 at 30.
type VectorClock map[int64]uint64

// Clone returns a deep copy of the clock.
func (vc VectorClock) Clone() VectorClock {
	out := make(VectorClock, len(vc))
	for id, t := range vc {
		out[id] = t
	}
	return out
}

// Join performs point-wise maximum: vc = vc ⊔ other.
//
// Used on acquire: the acquiring goroutine joins the primitive's release clock.
func (vc VectorClock) Join(other VectorClock) {
	for id, t := range other {
		if t > vc[id] {
			vc[id] = t
		}
	}
}

// LessOrEqual checks the partial order vc ⊑ other (vc[i] <= other[i] for all i).
func (vc VectorClock) LessOrEqual(other VectorClock) bool {
	for id, t := range vc {
		if t > other[id] {
			return false
		}
	}
	return true
}

// Increment advances the clock of goroutine id.
func (vc VectorClock) Increment(id int64) {
	vc[id]++
}

// Get returns the clock of goroutine id.
func (vc VectorClock) Get(id int64) uint64 {
	return vc[id]
}

// String returns "{id:clock, ...}" sorted by goroutine ID.
func (vc VectorClock) String() string {
	if len(vc) == 0 {
		return "{}"
	}
	ids := make([]int64, 0, len(vc))
	for id := range vc {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10)+":"+strconv.FormatUint(vc[id], 10))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
