package gthread

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/kolkov/quasiglib/internal/glib/diag"
	"github.com/kolkov/quasiglib/internal/glib/gerror"
	"github.com/kolkov/quasiglib/internal/glib/hb"
	"github.com/kolkov/quasiglib/internal/glib/osprim"
)

func TestThread_JoinResult(t *testing.T) {
	c := useCounting(t, osprim.Options{})

	th, err := TryNew("adder", func(data any) any { return data.(int) + 1 }, 41)
	if err != nil {
		t.Fatalf("TryNew() error: %v", err)
	}
	if th.Name() != "adder" || th.Refs() != 1 {
		t.Errorf("Name() = %q, Refs() = %d", th.Name(), th.Refs())
	}
	if got := th.Join(); got != 42 {
		t.Errorf("Join() = %v, want 42", got)
	}
	if got := th.Join(); got != 42 {
		t.Errorf("second Join() = %v, want 42", got)
	}
	if live := c.Counts().Of(osprim.KindThread).Live(); live != 1 {
		t.Errorf("Join() freed the thread: %d live", live)
	}

	th.Unref()
	if s := c.Counts().Of(osprim.KindThread); s.Allocated != 1 || s.Freed != 1 {
		t.Errorf("thread stats = %+v, want 1 allocated, 1 freed", s)
	}
}

// TestThread_RefCounting verifies N Ref and N+1 Unref calls from many
// goroutines join and free the thread exactly once.
func TestThread_RefCounting(t *testing.T) {
	jc := &joinCounter{Backend: osprim.NewNative(osprim.Options{})}
	c := osprim.NewCounting(jc)
	t.Cleanup(SetBackend(c))

	const n = 8
	release := make(chan struct{})
	th := New("counted", func(any) any {
		<-release
		return "done"
	}, nil)

	for i := 0; i < n; i++ {
		if th.Ref() != th {
			t.Fatal("Ref() returned a different thread")
		}
	}
	if th.Refs() != n+1 {
		t.Fatalf("Refs() = %d, want %d", th.Refs(), n+1)
	}

	var wg sync.WaitGroup
	for i := 0; i < n+1; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			th.Unref()
		}()
	}
	close(release)
	wg.Wait()

	if got := jc.joins.Load(); got != 1 {
		t.Errorf("native joins = %d, want 1", got)
	}
	if s := c.Counts().Of(osprim.KindThread); s.Allocated != 1 || s.Freed != 1 {
		t.Errorf("thread stats = %+v, want 1 allocated, 1 freed", s)
	}
	if c.Counts().BadFrees != 0 {
		t.Errorf("bad frees: %s", c.Counts())
	}
}

func TestThread_JoinThenUnrefJoinsOnce(t *testing.T) {
	jc := &joinCounter{Backend: osprim.NewNative(osprim.Options{})}
	t.Cleanup(SetBackend(jc))

	th := New("once", func(any) any { return nil }, nil)
	th.Join()
	th.Join()
	th.Unref()

	if got := jc.joins.Load(); got != 1 {
		t.Errorf("native joins = %d, want 1", got)
	}
}

func TestThread_UnrefPastZeroPanics(t *testing.T) {
	useCounting(t, osprim.Options{})

	th := New("gone", func(any) any { return nil }, nil)
	th.Unref()

	defer func() {
		if recover() == nil {
			t.Error("Unref() past zero did not panic")
		}
	}()
	th.Unref()
}

func TestThread_RefOfReleasedPanics(t *testing.T) {
	useCounting(t, osprim.Options{})

	th := New("gone", func(any) any { return nil }, nil)
	th.Unref()

	defer func() {
		if recover() == nil {
			t.Error("Ref() of a released thread did not panic")
		}
		if n := th.Refs(); n != 0 {
			t.Errorf("Refs() after failed Ref = %d, want 0", n)
		}
	}()
	th.Ref()
}

func TestThread_TryNewAtLimit(t *testing.T) {
	c := useCounting(t, osprim.Options{MaxThreads: 1})

	release := make(chan struct{})
	first, err := TryNew("first", func(any) any { <-release; return nil }, nil)
	if err != nil {
		t.Fatalf("TryNew() error: %v", err)
	}

	second, err := TryNew("second", func(any) any { return nil }, nil)
	if second != nil {
		t.Error("TryNew() over the limit returned a thread")
	}
	gerr := gerror.From(err)
	if !gerr.Matches(ThreadErrorQuark(), ThreadErrorAgain) {
		t.Fatalf("TryNew() error = %v, want %s code %d", err, ThreadErrorQuark(), ThreadErrorAgain)
	}
	if !errors.Is(err, gerror.New(ThreadErrorQuark(), ThreadErrorAgain, "")) {
		t.Error("errors.Is() does not match domain and code")
	}

	close(release)
	first.Unref()
	if live := c.Counts().Live(); live != 0 {
		t.Errorf("Live() = %d, want 0", live)
	}
}

func TestThread_NewPanicsOnFailure(t *testing.T) {
	useCounting(t, osprim.Options{MaxThreads: 1})
	var buf bytes.Buffer
	old := diag.Default().SetOutput(&buf)
	defer diag.Default().SetOutput(old)

	release := make(chan struct{})
	first := New("first", func(any) any { <-release; return nil }, nil)
	defer func() {
		close(release)
		first.Unref()
	}()

	defer func() {
		r := recover()
		if gerror.From(asError(r)) == nil {
			t.Errorf("New() panic = %v, want *gerror.Error", r)
		}
		if !strings.Contains(buf.String(), "Error creating thread") {
			t.Errorf("diagnostics = %q", buf.String())
		}
	}()
	New("second", func(any) any { return nil }, nil)
}

func TestThread_NilFunc(t *testing.T) {
	useCounting(t, osprim.Options{})
	if _, err := TryNew("nil", nil, nil); err == nil {
		t.Error("TryNew(nil) succeeded")
	}
}

func TestSelf(t *testing.T) {
	useCounting(t, osprim.Options{})

	if Self() != nil {
		t.Error("Self() outside a thread is not nil")
	}

	ready := make(chan struct{})
	th := New("self", func(any) any {
		<-ready
		return Self()
	}, nil)
	close(ready)

	if got := th.Join(); got != th {
		t.Errorf("Self() inside the thread = %v, want %v", got, th)
	}
	th.Unref()
}

// TestSelf_HandOff has each thread pass a reference to itself to another
// goroutine, which joins and releases it. Run with -race.
func TestSelf_HandOff(t *testing.T) {
	c := useCounting(t, osprim.Options{})

	const threads = 200
	var wg sync.WaitGroup
	for i := 0; i < threads; i++ {
		wg.Add(1)
		th := New("handoff", func(any) any {
			self := Self().Ref()
			go func() {
				defer wg.Done()
				self.Join()
				self.Unref()
			}()
			return nil
		}, nil)
		th.Unref()
	}
	within(t, testTimeout, "releasing handed-off threads", wg.Wait)

	if counts := c.Counts(); counts.Live() != 0 || counts.BadFrees != 0 {
		t.Errorf("counts = %s", counts)
	}
}

func TestThread_TryNewFailureLeavesNoTrace(t *testing.T) {
	useCounting(t, osprim.Options{MaxThreads: 1})
	hb.Default.Enable()
	t.Cleanup(func() {
		hb.Default.Disable()
		hb.Default.Reset()
	})

	release := make(chan struct{})
	first := New("first", func(any) any { <-release; return nil }, nil)
	_, before := hb.Default.Stats()

	if th, err := TryNew("second", func(any) any { return nil }, nil); th != nil || err == nil {
		t.Fatalf("TryNew() over the limit = %v, %v", th, err)
	}
	if _, after := hb.Default.Stats(); after != before {
		t.Errorf("sync vars after failed TryNew = %d, want %d", after, before)
	}

	close(release)
	first.Unref()
}

func asError(r any) error {
	err, _ := r.(error)
	return err
}

func BenchmarkThread_NewJoin(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		th := New("bench", func(any) any { return nil }, nil)
		th.Unref()
	}
}
