package gthread

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kolkov/quasiglib/internal/glib/osprim"
)

// TestMutex_ConcurrentFirstUse verifies a fresh mutex raced by many
// goroutines ends up with exactly one live native mutex.
func TestMutex_ConcurrentFirstUse(t *testing.T) {
	c := useCounting(t, osprim.Options{})

	const goroutines = 64
	for round := 0; round < 10; round++ {
		var m Mutex
		var counter int
		var wg sync.WaitGroup
		start := make(chan struct{})
		for i := 0; i < goroutines; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				m.Lock()
				counter++
				m.Unlock()
			}()
		}
		close(start)
		wg.Wait()

		if counter != goroutines {
			t.Fatalf("round %d: counter = %d, want %d", round, counter, goroutines)
		}
		if live := c.Counts().Of(osprim.KindMutex).Live(); live != 1 {
			t.Fatalf("round %d: %d live mutexes, want 1", round, live)
		}
		m.Clear()
	}

	if counts := c.Counts(); counts.Live() != 0 || counts.BadFrees != 0 {
		t.Errorf("after Clear: %s", counts)
	}
}

// TestMutex_InitAndLazyAgree verifies both lifecycles behave the same.
func TestMutex_InitAndLazyAgree(t *testing.T) {
	c := useCounting(t, osprim.Options{})

	var explicit, lazy Mutex
	explicit.Init()
	if got := c.Counts().Of(osprim.KindMutex).Allocated; got != 1 {
		t.Fatalf("Init() allocated %d mutexes, want 1", got)
	}

	for _, m := range []*Mutex{&explicit, &lazy} {
		within(t, time.Second, "lock round trip", func() {
			m.Lock()
			m.Unlock()
			m.Lock()
			m.Unlock()
		})
	}
	if got := c.Counts().Of(osprim.KindMutex).Allocated; got != 2 {
		t.Errorf("allocated %d mutexes, want 2", got)
	}

	explicit.Clear()
	lazy.Clear()
	lazy.Clear()
	if counts := c.Counts(); counts.Live() != 0 || counts.BadFrees != 0 {
		t.Errorf("after Clear: %s", counts)
	}
}

// TestMutex_ReuseAfterClear verifies a cleared mutex allocates again.
func TestMutex_ReuseAfterClear(t *testing.T) {
	c := useCounting(t, osprim.Options{})

	var m Mutex
	m.Lock()
	m.Unlock()
	m.Clear()
	m.Lock()
	m.Unlock()
	m.Clear()

	if s := c.Counts().Of(osprim.KindMutex); s.Allocated != 2 || s.Freed != 2 {
		t.Errorf("mutex stats = %+v, want 2 allocated, 2 freed", s)
	}
}

func TestRecMutex_Exclusion(t *testing.T) {
	useCounting(t, osprim.Options{})

	const depth = 4
	var m RecMutex
	for i := 0; i < depth; i++ {
		m.Lock()
	}

	acquired := make(chan struct{})
	go func() {
		m.Lock()
		close(acquired)
		m.Unlock()
	}()

	for i := 0; i < depth-1; i++ {
		m.Unlock()
		select {
		case <-acquired:
			t.Fatalf("other goroutine acquired after %d of %d unlocks", i+1, depth)
		case <-time.After(10 * time.Millisecond):
		}
	}
	m.Unlock()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("other goroutine never acquired the mutex")
	}
	m.Clear()
}

func TestRecMutex_ForeignUnlockPanics(t *testing.T) {
	useCounting(t, osprim.Options{})

	var m RecMutex
	m.Init()
	m.Lock()

	recovered := make(chan any)
	go func() {
		defer func() { recovered <- recover() }()
		m.Unlock()
	}()
	if r := <-recovered; r == nil {
		t.Error("Unlock() by non-owner did not panic")
	} else if s := fmt.Sprint(r); s == "" {
		t.Error("empty panic message")
	}

	m.Unlock()
	m.Clear()
}

func BenchmarkMutex_LockUnlock(b *testing.B) {
	b.ReportAllocs()
	var m Mutex
	for i := 0; i < b.N; i++ {
		m.Lock()
		m.Unlock()
	}
}

func BenchmarkRecMutex_LockUnlock(b *testing.B) {
	b.ReportAllocs()
	var m RecMutex
	for i := 0; i < b.N; i++ {
		m.Lock()
		m.Unlock()
	}
}
