package osprim

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// ========================================
// Mutex Tests
// ========================================

// TestNative_NormalMutex verifies mutual exclusion of a normal mutex.
func TestNative_NormalMutex(t *testing.T) {
	n := NewNative(Options{})
	m, err := n.NewMutex(MutexNormal)
	if err != nil {
		t.Fatalf("NewMutex() error: %v", err)
	}
	defer n.FreeMutex(m)

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				m.Lock()
				counter++
				m.Unlock()
			}
		}()
	}
	wg.Wait()

	if counter != 4000 {
		t.Errorf("counter = %d, want 4000", counter)
	}
}

// TestNative_RecursiveMutex verifies re-entrant locking and exclusion.
func TestNative_RecursiveMutex(t *testing.T) {
	const depth = 4
	n := NewNative(Options{})
	m, err := n.NewMutex(MutexRecursive)
	if err != nil {
		t.Fatalf("NewMutex() error: %v", err)
	}

	for i := 0; i < depth; i++ {
		m.Lock()
	}

	acquired := make(chan struct{})
	go func() {
		m.Lock()
		close(acquired)
		m.Unlock()
	}()

	for i := 0; i < depth; i++ {
		select {
		case <-acquired:
			t.Fatalf("other goroutine acquired mutex with %d locks still held", depth-i)
		case <-time.After(5 * time.Millisecond):
		}
		m.Unlock()
	}

	select {
	case <-acquired:
	case <-time.After(5 * time.Second):
		t.Fatal("other goroutine never acquired the released mutex")
	}
}

// TestNative_RecursiveMutexForeignUnlock verifies misuse is reported.
func TestNative_RecursiveMutexForeignUnlock(t *testing.T) {
	n := NewNative(Options{})
	m, _ := n.NewMutex(MutexRecursive)
	m.Lock()
	defer m.Unlock()

	done := make(chan any)
	go func() {
		defer func() { done <- recover() }()
		m.Unlock()
	}()
	if r := <-done; r == nil {
		t.Error("Unlock from non-owner did not panic")
	}
}

func TestNative_UnknownMutexKind(t *testing.T) {
	n := NewNative(Options{})
	if _, err := n.NewMutex(MutexKind(42)); err == nil {
		t.Error("NewMutex(42) succeeded")
	}
}

// ========================================
// Cond Tests
// ========================================

// TestNative_CondSignal verifies a signal wakes a waiter holding the mutex.
func TestNative_CondSignal(t *testing.T) {
	n := NewNative(Options{})
	m, _ := n.NewMutex(MutexNormal)
	c, _ := n.NewCond()

	ready := false
	woke := make(chan struct{})
	go func() {
		m.Lock()
		for !ready {
			c.Wait(m)
		}
		m.Unlock()
		close(woke)
	}()

	time.Sleep(5 * time.Millisecond)
	m.Lock()
	ready = true
	c.Signal()
	m.Unlock()

	select {
	case <-woke:
	case <-time.After(5 * time.Second):
		t.Fatal("waiter never woke after Signal")
	}
}

// TestNative_CondBroadcast verifies every waiter wakes.
func TestNative_CondBroadcast(t *testing.T) {
	const waiters = 10
	n := NewNative(Options{})
	m, _ := n.NewMutex(MutexNormal)
	c, _ := n.NewCond()

	var wg sync.WaitGroup
	var waiting atomic.Int32
	released := false
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Lock()
			waiting.Add(1)
			for !released {
				c.Wait(m)
			}
			m.Unlock()
		}()
	}

	for waiting.Load() < waiters {
		time.Sleep(time.Millisecond)
	}
	m.Lock()
	released = true
	c.Broadcast()
	m.Unlock()

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("not all waiters woke after Broadcast")
	}
}

// TestNative_CondSignalWithoutWaiters verifies signals are not stored.
func TestNative_CondSignalWithoutWaiters(t *testing.T) {
	n := NewNative(Options{})
	c, _ := n.NewCond()
	c.Signal()
	c.Broadcast()

	nc := c.(*nativeCond)
	if len(nc.waiters) != 0 {
		t.Errorf("waiters = %d, want 0", len(nc.waiters))
	}
}

// ========================================
// Key Tests
// ========================================

// TestNative_KeyIsolation verifies values are per goroutine.
func TestNative_KeyIsolation(t *testing.T) {
	n := NewNative(Options{ReapInterval: -1})
	k, _ := n.NewKey(nil)
	defer n.FreeKey(k)

	if got := k.Get(); got != nil {
		t.Fatalf("Get() before Set = %v, want nil", got)
	}

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			k.Set(v)
			time.Sleep(time.Millisecond)
			if got := k.Get(); got != v {
				t.Errorf("goroutine saw %v, want %d", got, v)
			}
		}(i)
	}
	wg.Wait()

	if got := k.Get(); got != nil {
		t.Errorf("test goroutine sees %v, want nil", got)
	}
}

// TestNative_KeySetNilClears verifies storing nil removes the value.
func TestNative_KeySetNilClears(t *testing.T) {
	n := NewNative(Options{ReapInterval: -1})
	k, _ := n.NewKey(nil)
	k.Set("x")
	k.Set(nil)
	if got := k.Get(); got != nil {
		t.Errorf("Get() after Set(nil) = %v, want nil", got)
	}
}

// TestNative_KeyDestructorOnThreadExit verifies destructors run before Join returns.
func TestNative_KeyDestructorOnThreadExit(t *testing.T) {
	n := NewNative(Options{ReapInterval: -1})

	var destroyed []any
	var mu sync.Mutex
	k, _ := n.NewKey(func(v any) {
		mu.Lock()
		destroyed = append(destroyed, v)
		mu.Unlock()
	})

	th, err := n.Spawn("setter", func(any) any {
		k.Set("first")
		k.Set("last")
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("Spawn() error: %v", err)
	}
	th.Join()

	mu.Lock()
	defer mu.Unlock()
	if len(destroyed) != 1 || destroyed[0] != "last" {
		t.Errorf("destroyed = %v, want [last]", destroyed)
	}
}

// TestNative_KeyDestructorRounds verifies destructors that store values rerun.
func TestNative_KeyDestructorRounds(t *testing.T) {
	n := NewNative(Options{ReapInterval: -1, DestructorRounds: 3})

	var calls atomic.Int32
	var k Key
	k, _ = n.NewKey(func(v any) {
		calls.Add(1)
		// Keep resurrecting; rounds must bound this.
		k.Set(v)
	})

	th, _ := n.Spawn("resurrect", func(any) any {
		k.Set(1)
		return nil
	}, nil)
	th.Join()

	if got := calls.Load(); got != 3 {
		t.Errorf("destructor ran %d times, want 3", got)
	}
	left := 0
	k.(*nativeKey).values.Range(func(_, _ any) bool {
		left++
		return true
	})
	if left != 0 {
		t.Errorf("%d values left after thread exit, want 0", left)
	}
}

// TestNative_Reap verifies values of exited goroutines are reclaimed.
func TestNative_Reap(t *testing.T) {
	n := NewNative(Options{ReapInterval: -1})

	var destroyed atomic.Int32
	k, _ := n.NewKey(func(any) { destroyed.Add(1) })

	// Plain goroutines, not spawned by the backend.
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			k.Set(v)
		}(i)
	}
	wg.Wait()

	// Our own value must survive.
	k.Set("mine")

	reclaimed := 0
	for attempt := 0; attempt < 100 && reclaimed < 5; attempt++ {
		reclaimed += n.Reap()
		time.Sleep(time.Millisecond)
	}

	if reclaimed != 5 {
		t.Errorf("Reap() reclaimed %d values, want 5", reclaimed)
	}
	if got := destroyed.Load(); got != 5 {
		t.Errorf("destructor ran %d times, want 5", got)
	}
	if got := k.Get(); got != "mine" {
		t.Errorf("live goroutine value = %v, want mine", got)
	}
}

// TestNative_KeyLimit verifies MaxKeys is enforced and released by FreeKey.
func TestNative_KeyLimit(t *testing.T) {
	n := NewNative(Options{MaxKeys: 2})

	k1, err1 := n.NewKey(nil)
	_, err2 := n.NewKey(nil)
	if err1 != nil || err2 != nil {
		t.Fatalf("NewKey() errors: %v, %v", err1, err2)
	}

	if _, err := n.NewKey(nil); !errors.Is(err, ErrResourceLimit) {
		t.Fatalf("third NewKey() error = %v, want ErrResourceLimit", err)
	}

	n.FreeKey(k1)
	if _, err := n.NewKey(nil); err != nil {
		t.Errorf("NewKey() after FreeKey error: %v", err)
	}
}

// ========================================
// Thread Tests
// ========================================

// TestNative_SpawnJoin verifies the entry result reaches Join.
func TestNative_SpawnJoin(t *testing.T) {
	n := NewNative(Options{})
	th, err := n.Spawn("worker", func(arg any) any {
		return arg.(int) * 2
	}, 21)
	if err != nil {
		t.Fatalf("Spawn() error: %v", err)
	}
	defer n.FreeThread(th)

	if got := th.Join(); got != 42 {
		t.Errorf("Join() = %v, want 42", got)
	}
	// Joining again returns the same result without blocking.
	if got := th.Join(); got != 42 {
		t.Errorf("second Join() = %v, want 42", got)
	}
	if r := n.Running(); r != 0 {
		t.Errorf("Running() = %d after join, want 0", r)
	}
}

// TestNative_ThreadLimit verifies MaxThreads refuses extra threads.
func TestNative_ThreadLimit(t *testing.T) {
	n := NewNative(Options{MaxThreads: 1})

	release := make(chan struct{})
	th, err := n.Spawn("blocker", func(any) any {
		<-release
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("Spawn() error: %v", err)
	}

	if _, err := n.Spawn("extra", func(any) any { return nil }, nil); !errors.Is(err, ErrResourceLimit) {
		t.Errorf("Spawn() over limit error = %v, want ErrResourceLimit", err)
	}

	close(release)
	th.Join()

	th2, err := n.Spawn("after", func(any) any { return nil }, nil)
	if err != nil {
		t.Fatalf("Spawn() after join error: %v", err)
	}
	th2.Join()
}

func TestNative_SpawnNilFunc(t *testing.T) {
	n := NewNative(Options{})
	if _, err := n.Spawn("nil", nil, nil); err == nil {
		t.Error("Spawn(nil) succeeded")
	}
	if r := n.Running(); r != 0 {
		t.Errorf("Running() = %d, want 0", r)
	}
}

func TestNewNative_Defaults(t *testing.T) {
	opts := NewNative(Options{}).Options()
	if opts.ReapInterval != DefaultReapInterval {
		t.Errorf("ReapInterval = %d, want %d", opts.ReapInterval, DefaultReapInterval)
	}
	if opts.DestructorRounds != DefaultDestructorRounds {
		t.Errorf("DestructorRounds = %d, want %d", opts.DestructorRounds, DefaultDestructorRounds)
	}
}

func TestMutexKind_String(t *testing.T) {
	if MutexNormal.String() != "normal" || MutexRecursive.String() != "recursive" || MutexKind(9).String() != "unknown" {
		t.Error("MutexKind.String() mismatch")
	}
}
