package gthread

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/kolkov/quasiglib/internal/glib/osprim"
)

// testTimeout bounds operations that must not block.
const testTimeout = time.Second

// useCounting installs a counting backend over a native one for the test.
func useCounting(t *testing.T, opts osprim.Options) *osprim.Counting {
	t.Helper()
	c := osprim.NewCounting(osprim.NewNative(opts))
	t.Cleanup(SetBackend(c))
	return c
}

// within fails the test if fn does not return within d.
func within(t *testing.T, d time.Duration, what string, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("%s did not finish within %v", what, d)
	}
}

// joinCounter counts native joins of the threads it spawns.
type joinCounter struct {
	osprim.Backend
	joins atomic.Int32
}

func (j *joinCounter) Spawn(name string, fn osprim.ThreadFunc, arg any) (osprim.Thread, error) {
	th, err := j.Backend.Spawn(name, fn, arg)
	if err != nil {
		return nil, err
	}
	return &countedThread{Thread: th, joins: &j.joins}, nil
}

type countedThread struct {
	osprim.Thread
	joins *atomic.Int32
}

func (c *countedThread) Join() any {
	c.joins.Add(1)
	return c.Thread.Join()
}
