package osprim

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// Kind identifies a native object class for accounting.
type Kind int

const (
	KindMutex Kind = iota
	KindCond
	KindKey
	KindThread
	numKinds
)

// String returns the string representation of a Kind.
func (k Kind) String() string {
	switch k {
	case KindMutex:
		return "mutex"
	case KindCond:
		return "cond"
	case KindKey:
		return "key"
	case KindThread:
		return "thread"
	default:
		return "unknown"
	}
}

// Stat counts allocations and frees of one Kind.
type Stat struct {
	Allocated int64
	Freed     int64
}

// Live returns the number of objects allocated and not yet freed.
func (s Stat) Live() int64 {
	return s.Allocated - s.Freed
}

// Counts is a snapshot of a Counting backend.
type Counts struct {
	Stats [numKinds]Stat

	// BadFrees counts Free* calls with objects that are not live
	// (double frees or foreign objects). Always zero in a correct program.
	BadFrees int64

	// Failed counts allocations refused by failure injection.
	Failed int64
}

// Of returns the Stat for kind.
func (c Counts) Of(kind Kind) Stat {
	return c.Stats[kind]
}

// Live returns the total number of live objects across all kinds.
func (c Counts) Live() int64 {
	var n int64
	for _, s := range c.Stats {
		n += s.Live()
	}
	return n
}

// String returns a one-line summary, e.g. "mutex 3/3 cond 1/1 key 0/0 thread 1/1".
func (c Counts) String() string {
	var b strings.Builder
	for k := Kind(0); k < numKinds; k++ {
		if k > 0 {
			b.WriteByte(' ')
		}
		s := c.Stats[k]
		fmt.Fprintf(&b, "%s %d/%d", k, s.Freed, s.Allocated)
	}
	if c.BadFrees > 0 {
		fmt.Fprintf(&b, " badfree %d", c.BadFrees)
	}
	return b.String()
}

// Counting wraps a Backend, counting every allocation and free.
//
// Objects are passed through unwrapped so they interoperate with the inner
// backend (a Cond from it can wait on a Mutex from it).
//
// Failure injection: FailNext(n) makes the next n allocations of any kind
// return ErrInjected without reaching the inner backend.
//
// Thread Safety: All methods are safe for concurrent calls.
type Counting struct {
	inner Backend

	mu       sync.Mutex
	live     map[any]Kind
	stats    [numKinds]Stat
	badFrees int64
	failed   int64

	failNext atomic.Int64
}

var _ Backend = (*Counting)(nil)

// NewCounting wraps inner.
func NewCounting(inner Backend) *Counting {
	return &Counting{inner: inner, live: make(map[any]Kind)}
}

// Inner returns the wrapped backend.
func (c *Counting) Inner() Backend {
	return c.inner
}

// FailNext arms failure injection for the next n allocations.
func (c *Counting) FailNext(n int) {
	c.failNext.Store(int64(n))
}

// Counts returns a snapshot of the counters.
func (c *Counting) Counts() Counts {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Counts{Stats: c.stats, BadFrees: c.badFrees, Failed: c.failed}
}

// Reset zeroes the counters and forgets live objects.
func (c *Counting) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.live = make(map[any]Kind)
	c.stats = [numKinds]Stat{}
	c.badFrees = 0
	c.failed = 0
	c.failNext.Store(0)
}

// injected consumes one armed failure, if any.
func (c *Counting) injected(kind Kind) error {
	for {
		n := c.failNext.Load()
		if n <= 0 {
			return nil
		}
		if c.failNext.CompareAndSwap(n, n-1) {
			c.mu.Lock()
			c.failed++
			c.mu.Unlock()
			return fmt.Errorf("%w (%s)", ErrInjected, kind)
		}
	}
}

func (c *Counting) track(kind Kind, obj any) {
	c.mu.Lock()
	c.live[obj] = kind
	c.stats[kind].Allocated++
	c.mu.Unlock()
}

// untrack records a free and reports whether obj was live.
func (c *Counting) untrack(kind Kind, obj any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if k, ok := c.live[obj]; !ok || k != kind {
		c.badFrees++
		return false
	}
	delete(c.live, obj)
	c.stats[kind].Freed++
	return true
}

// NewMutex implements Backend.
func (c *Counting) NewMutex(kind MutexKind) (Mutex, error) {
	if err := c.injected(KindMutex); err != nil {
		return nil, err
	}
	m, err := c.inner.NewMutex(kind)
	if err != nil {
		return nil, err
	}
	c.track(KindMutex, m)
	return m, nil
}

// FreeMutex implements Backend.
func (c *Counting) FreeMutex(m Mutex) {
	if c.untrack(KindMutex, m) {
		c.inner.FreeMutex(m)
	}
}

// NewCond implements Backend.
func (c *Counting) NewCond() (Cond, error) {
	if err := c.injected(KindCond); err != nil {
		return nil, err
	}
	cv, err := c.inner.NewCond()
	if err != nil {
		return nil, err
	}
	c.track(KindCond, cv)
	return cv, nil
}

// FreeCond implements Backend.
func (c *Counting) FreeCond(cv Cond) {
	if c.untrack(KindCond, cv) {
		c.inner.FreeCond(cv)
	}
}

// NewKey implements Backend.
func (c *Counting) NewKey(destructor Destructor) (Key, error) {
	if err := c.injected(KindKey); err != nil {
		return nil, err
	}
	k, err := c.inner.NewKey(destructor)
	if err != nil {
		return nil, err
	}
	c.track(KindKey, k)
	return k, nil
}

// FreeKey implements Backend.
func (c *Counting) FreeKey(k Key) {
	if c.untrack(KindKey, k) {
		c.inner.FreeKey(k)
	}
}

// Spawn implements Backend.
func (c *Counting) Spawn(name string, fn ThreadFunc, arg any) (Thread, error) {
	if err := c.injected(KindThread); err != nil {
		return nil, err
	}
	t, err := c.inner.Spawn(name, fn, arg)
	if err != nil {
		return nil, err
	}
	c.track(KindThread, t)
	return t, nil
}

// FreeThread implements Backend.
func (c *Counting) FreeThread(t Thread) {
	if c.untrack(KindThread, t) {
		c.inner.FreeThread(t)
	}
}
