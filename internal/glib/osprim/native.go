package osprim

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/kolkov/quasiglib/internal/glib/gid"
	"github.com/kolkov/quasiglib/internal/glib/syncutil"
)

const (
	// DefaultReapInterval is the number of Key.Set calls between scans for
	// values owned by goroutines that have exited.
	DefaultReapInterval = 1024

	// DefaultDestructorRounds bounds how often exit destructors are rerun
	// when destructors store new values (PTHREAD_DESTRUCTOR_ITERATIONS).
	DefaultDestructorRounds = 4
)

// Options configures a Native backend.
type Options struct {
	// MaxThreads limits concurrently running spawned threads.
	// Zero means unlimited.
	MaxThreads int

	// MaxKeys limits live goroutine-local keys. Zero means unlimited.
	MaxKeys int

	// ReapInterval is the number of Key.Set calls between reaper scans.
	// Zero selects DefaultReapInterval; negative disables periodic reaping.
	ReapInterval int

	// DestructorRounds bounds exit destructor passes.
	// Zero selects DefaultDestructorRounds.
	DestructorRounds int
}

// Native is a Backend built on the Go runtime.
//
// Threads are goroutines. Goroutine-local values are keyed by goroutine ID
// and destroyed in two ways:
//   - when a thread started by Spawn returns, before Join unblocks
//   - by Reap, for goroutines not started by Spawn that have exited
//
// Thread Safety: All methods are safe for concurrent calls.
type Native struct {
	opts Options

	running  atomic.Int64 // spawned threads that have not returned
	keyCount atomic.Int64

	// keys is the set of live keys, walked on thread exit and by Reap.
	keys sync.Map // *nativeKey -> struct{}

	sets    atomic.Uint64
	reaping atomic.Bool
}

var _ Backend = (*Native)(nil)

// NewNative creates a Native backend.
func NewNative(opts Options) *Native {
	if opts.ReapInterval == 0 {
		opts.ReapInterval = DefaultReapInterval
	}
	if opts.DestructorRounds <= 0 {
		opts.DestructorRounds = DefaultDestructorRounds
	}
	return &Native{opts: opts}
}

// Options returns the effective options.
func (n *Native) Options() Options {
	return n.opts
}

// Running returns the number of spawned threads that have not returned.
func (n *Native) Running() int64 {
	return n.running.Load()
}

// === Mutex ===

// NewMutex implements Backend.
func (n *Native) NewMutex(kind MutexKind) (Mutex, error) {
	switch kind {
	case MutexNormal:
		return &normalMutex{}, nil
	case MutexRecursive:
		m := &recursiveMutex{}
		m.cond = sync.NewCond(&m.mu)
		return m, nil
	default:
		return nil, fmt.Errorf("osprim: unsupported mutex kind %d", kind)
	}
}

// FreeMutex implements Backend. Native mutexes hold no external resources.
func (n *Native) FreeMutex(Mutex) {}

type normalMutex struct {
	mu syncutil.Mutex
}

func (m *normalMutex) Lock()   { m.mu.Lock() }
func (m *normalMutex) Unlock() { m.mu.Unlock() }

// recursiveMutex tracks its owner goroutine and lock depth.
//
// Invariant: owner == 0 iff depth == 0.
type recursiveMutex struct {
	mu    syncutil.Mutex
	cond  *sync.Cond
	owner int64
	depth int
}

func (m *recursiveMutex) Lock() {
	self := gid.Current()

	m.mu.Lock()
	if m.owner == self {
		m.depth++
		m.mu.Unlock()
		return
	}
	for m.owner != 0 {
		m.cond.Wait()
	}
	m.owner = self
	m.depth = 1
	m.mu.Unlock()
}

func (m *recursiveMutex) Unlock() {
	self := gid.Current()

	m.mu.Lock()
	if m.owner != self {
		owner := m.owner
		m.mu.Unlock()
		panic(fmt.Sprintf("osprim: recursive mutex unlocked by goroutine %d, owner is %d", self, owner))
	}
	m.depth--
	if m.depth == 0 {
		m.owner = 0
		m.cond.Signal()
	}
	m.mu.Unlock()
}

// === Cond ===

// NewCond implements Backend.
func (n *Native) NewCond() (Cond, error) {
	return &nativeCond{}, nil
}

// FreeCond implements Backend. Native conds hold no external resources.
func (n *Native) FreeCond(Cond) {}

// nativeCond wakes waiters in FIFO order by closing their channels.
//
// A waiter enrolls before it releases the caller's mutex, so a Signal from
// a goroutine that subsequently acquired the mutex always finds it.
type nativeCond struct {
	mu      syncutil.Mutex
	waiters []chan struct{}
}

func (c *nativeCond) Wait(m Mutex) {
	ch := make(chan struct{})

	c.mu.Lock()
	c.waiters = append(c.waiters, ch)
	c.mu.Unlock()

	m.Unlock()
	<-ch
	m.Lock()
}

func (c *nativeCond) Signal() {
	c.mu.Lock()
	if len(c.waiters) > 0 {
		close(c.waiters[0])
		c.waiters[0] = nil
		c.waiters = c.waiters[1:]
	}
	c.mu.Unlock()
}

func (c *nativeCond) Broadcast() {
	c.mu.Lock()
	for _, ch := range c.waiters {
		close(ch)
	}
	c.waiters = nil
	c.mu.Unlock()
}

// === Key ===

// NewKey implements Backend.
func (n *Native) NewKey(destructor Destructor) (Key, error) {
	if limit := int64(n.opts.MaxKeys); limit > 0 {
		for {
			cur := n.keyCount.Load()
			if cur >= limit {
				return nil, fmt.Errorf("%w: %d keys in use", ErrResourceLimit, cur)
			}
			if n.keyCount.CompareAndSwap(cur, cur+1) {
				break
			}
		}
	} else {
		n.keyCount.Add(1)
	}

	k := &nativeKey{owner: n, destructor: destructor}
	n.keys.Store(k, struct{}{})
	return k, nil
}

// FreeKey implements Backend.
//
// Values still stored under the key are dropped without running the
// destructor, like pthread_key_delete.
func (n *Native) FreeKey(k Key) {
	nk, ok := k.(*nativeKey)
	if !ok {
		return
	}
	if _, loaded := n.keys.LoadAndDelete(nk); loaded {
		n.keyCount.Add(-1)
	}
}

type nativeKey struct {
	owner      *Native
	destructor Destructor
	values     sync.Map // goroutine ID (int64) -> value
}

func (k *nativeKey) Get() any {
	v, _ := k.values.Load(gid.Current())
	return v
}

func (k *nativeKey) Set(value any) {
	id := gid.Current()
	if value == nil {
		k.values.Delete(id)
	} else {
		k.values.Store(id, value)
	}
	k.owner.noteSet()
}

// runDestructors destroys every value owned by goroutine id.
//
// Destructors may store new values; passes repeat until no destructor ran
// or DestructorRounds is exhausted. Remaining values are dropped.
func (n *Native) runDestructors(id int64) {
	for round := 0; round < n.opts.DestructorRounds; round++ {
		ran := false
		n.keys.Range(func(key, _ any) bool {
			k := key.(*nativeKey)
			if v, ok := k.values.LoadAndDelete(id); ok && k.destructor != nil {
				k.destructor(v)
				ran = true
			}
			return true
		})
		if !ran {
			return
		}
	}
	n.keys.Range(func(key, _ any) bool {
		key.(*nativeKey).values.Delete(id)
		return true
	})
}

func (n *Native) noteSet() {
	interval := n.opts.ReapInterval
	if interval < 0 {
		return
	}
	//nolint:gosec // G115: interval is positive here
	if n.sets.Add(1)%uint64(interval) == 0 {
		n.Reap()
	}
}

// Reap destroys values owned by goroutines that no longer exist.
//
// Candidates are collected before the live-goroutine scan: a candidate's
// goroutine stored its value before the scan started, so its absence from
// the scan proves it exited (goroutine IDs are never reused). Values stored
// after collection are left for the next pass.
//
// Destructors run on the calling goroutine. Concurrent calls return 0
// immediately while a scan is in progress.
//
// Returns:
//   - int: number of values reclaimed
func (n *Native) Reap() int {
	if !n.reaping.CompareAndSwap(false, true) {
		return 0
	}
	defer n.reaping.Store(false)

	type candidate struct {
		key *nativeKey
		id  int64
	}

	var candidates []candidate
	n.keys.Range(func(key, _ any) bool {
		k := key.(*nativeKey)
		k.values.Range(func(id, _ any) bool {
			candidates = append(candidates, candidate{key: k, id: id.(int64)})
			return true
		})
		return true
	})
	if len(candidates) == 0 {
		return 0
	}

	ids := gid.Live()
	live := make(map[int64]bool, len(ids))
	for _, id := range ids {
		live[id] = true
	}

	reclaimed := 0
	for _, c := range candidates {
		if live[c.id] {
			continue
		}
		v, ok := c.key.values.LoadAndDelete(c.id)
		if !ok {
			continue
		}
		reclaimed++
		if c.key.destructor != nil {
			c.key.destructor(v)
		}
	}
	return reclaimed
}

// === Thread ===

// Spawn implements Backend.
//
// Returns ErrResourceLimit (wrapped) when MaxThreads threads are running.
func (n *Native) Spawn(name string, fn ThreadFunc, arg any) (Thread, error) {
	if fn == nil {
		return nil, fmt.Errorf("osprim: spawn %q: nil entry function", name)
	}

	if limit := int64(n.opts.MaxThreads); limit > 0 {
		for {
			cur := n.running.Load()
			if cur >= limit {
				return nil, fmt.Errorf("%w: %d threads running", ErrResourceLimit, cur)
			}
			if n.running.CompareAndSwap(cur, cur+1) {
				break
			}
		}
	} else {
		n.running.Add(1)
	}

	t := &nativeThread{name: name, done: make(chan struct{})}
	go func() {
		id := gid.Current()
		defer func() {
			n.runDestructors(id)
			n.running.Add(-1)
			close(t.done)
		}()
		t.result = fn(arg)
	}()
	return t, nil
}

// FreeThread implements Backend. The goroutine exits on its own.
func (n *Native) FreeThread(Thread) {}

type nativeThread struct {
	name   string
	done   chan struct{}
	result any // written before done is closed
}

func (t *nativeThread) Join() any {
	<-t.done
	return t.result
}
