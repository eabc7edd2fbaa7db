// stress.go implements the 'quasiglib stress' command.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/kolkov/quasiglib/glib"
	"github.com/kolkov/quasiglib/internal/glib/config"
	"github.com/kolkov/quasiglib/internal/glib/gthread"
	"github.com/kolkov/quasiglib/internal/glib/hb"
	"github.com/kolkov/quasiglib/internal/glib/osprim"
)

type stressConfig struct {
	profile config.Profile
	path    string
}

func parseStressArgs(args []string) (*stressConfig, error) {
	cfg := &stressConfig{}
	def := config.DefaultProfile()

	fs := flag.NewFlagSet("stress", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.path, "config", "", "YAML stress profile")
	goroutines := fs.Int("goroutines", 0, "goroutines per handle (overrides profile)")
	rounds := fs.Int("rounds", 0, "rounds of fresh handles (overrides profile)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	cfg.profile = def
	if cfg.path != "" {
		p, err := config.LoadProfile(cfg.path)
		if err != nil {
			return nil, err
		}
		cfg.profile = p
	}
	if *goroutines > 0 {
		cfg.profile.Goroutines = *goroutines
	}
	if *rounds > 0 {
		cfg.profile.Rounds = *rounds
	}
	if err := cfg.profile.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// stressCommand implements the 'quasiglib stress' command.
//
// Every round allocates fresh zero-value handles of each profiled kind,
// races Goroutines goroutines on each of them, checks the results and
// clears the handles. After the last round no native object may remain.
func stressCommand(args []string) {
	cfg, err := parseStressArgs(args)
	if err != nil {
		fail("%v", err)
	}
	if err := runStress(os.Stdout, cfg.profile); err != nil {
		fail("%v", err)
	}
}

// stressRun carries the state shared by one stress run.
type stressRun struct {
	p        config.Profile
	retries  atomic.Int64 // ThreadTryNew refusals at the thread limit
	problems []string
}

func (s *stressRun) failf(format string, args ...any) {
	s.problems = append(s.problems, fmt.Sprintf(format, args...))
}

func runStress(w io.Writer, p config.Profile) error {
	opts, err := config.FromEnv()
	if err != nil {
		return err
	}
	opts = p.Apply(opts)
	counting := osprim.NewCounting(osprim.NewNative(gthread.NativeOptions(opts)))
	defer gthread.SetBackend(counting)()
	if opts.Trace {
		hb.Default.Enable()
		defer func() {
			hb.Default.Disable()
			hb.Default.Reset()
		}()
	}

	s := &stressRun{p: p}
	start := glib.MonotonicTime()

	for round := 0; round < p.Rounds && len(s.problems) == 0; round++ {
		if p.Has("mutex") {
			s.mutexRound()
		}
		if p.Has("recmutex") {
			s.recMutexRound()
		}
		if p.Has("cond") {
			s.condRound()
		}
		if p.Has("private") {
			s.privateRound()
		}
		if p.Has("thread") {
			s.threadRound()
		}
	}

	elapsed := glib.MonotonicTime() - start
	counts := counting.Counts()
	fmt.Fprintf(w, "stress: %d rounds, %d goroutines, %d handles, kinds %s\n",
		p.Rounds, p.Goroutines, p.Handles, strings.Join(p.Kinds, ","))
	fmt.Fprintf(w, "elapsed: %dµs\n", elapsed)
	fmt.Fprintf(w, "native objects (freed/allocated): %s\n", counts)
	fmt.Fprintf(w, "spawn retries at thread limit: %d\n", s.retries.Load())

	if counts.Live() != 0 || counts.BadFrees != 0 {
		s.failf("%d native objects leaked", counts.Live())
	}
	if len(s.problems) > 0 {
		for _, msg := range s.problems {
			fmt.Fprintf(w, "FAIL: %s\n", msg)
		}
		return fmt.Errorf("stress failed: %d problem(s)", len(s.problems))
	}
	fmt.Fprintf(w, "OK\n")
	return nil
}

// race runs fn(handle) from p.Goroutines goroutines per handle, released
// together so first use of each handle is contended.
func (s *stressRun) race(fn func(h int)) {
	var wg sync.WaitGroup
	gate := make(chan struct{})
	for h := 0; h < s.p.Handles; h++ {
		for g := 0; g < s.p.Goroutines; g++ {
			wg.Add(1)
			go func(h int) {
				defer wg.Done()
				<-gate
				fn(h)
			}(h)
		}
	}
	close(gate)
	wg.Wait()
}

func (s *stressRun) mutexRound() {
	mutexes := make([]glib.Mutex, s.p.Handles)
	counters := make([]int, s.p.Handles)
	s.race(func(h int) {
		mutexes[h].Lock()
		counters[h]++
		mutexes[h].Unlock()
	})
	for h := range mutexes {
		if counters[h] != s.p.Goroutines {
			s.failf("mutex %d: counter %d, want %d", h, counters[h], s.p.Goroutines)
		}
		mutexes[h].Clear()
	}
}

func (s *stressRun) recMutexRound() {
	const depth = 3
	mutexes := make([]glib.RecMutex, s.p.Handles)
	counters := make([]int, s.p.Handles)
	s.race(func(h int) {
		for i := 0; i < depth; i++ {
			mutexes[h].Lock()
		}
		counters[h]++
		for i := 0; i < depth; i++ {
			mutexes[h].Unlock()
		}
	})
	for h := range mutexes {
		if counters[h] != s.p.Goroutines {
			s.failf("rec mutex %d: counter %d, want %d", h, counters[h], s.p.Goroutines)
		}
		mutexes[h].Clear()
	}
}

// condRound has one waiter per handle wait until every racer checked in.
func (s *stressRun) condRound() {
	type slot struct {
		mu      glib.Mutex
		cond    glib.Cond
		arrived int
	}
	slots := make([]slot, s.p.Handles)

	var waiters sync.WaitGroup
	for h := range slots {
		waiters.Add(1)
		go func(sl *slot) {
			defer waiters.Done()
			sl.mu.Lock()
			for sl.arrived < s.p.Goroutines {
				sl.cond.Wait(&sl.mu)
			}
			sl.mu.Unlock()
		}(&slots[h])
	}

	s.race(func(h int) {
		sl := &slots[h]
		sl.mu.Lock()
		sl.arrived++
		sl.cond.Broadcast()
		sl.mu.Unlock()
	})
	waiters.Wait()

	for h := range slots {
		slots[h].cond.Clear()
		slots[h].mu.Clear()
	}
}

// spawn starts a thread, retrying while the backend is at its limit.
func (s *stressRun) spawn(name string, fn glib.ThreadFunc, data any) *glib.Thread {
	for {
		var err *glib.Error
		if th := glib.ThreadTryNew(name, fn, data, &err); th != nil {
			return th
		}
		if !err.Matches(glib.ThreadErrorQuark(), glib.ThreadErrorAgain) {
			s.failf("spawn %s: %v", name, err)
			return nil
		}
		s.retries.Add(1)
		glib.Usleep(100)
	}
}

// privateRound checks that values set by threads are isolated and
// destroyed exactly once when each thread returns.
func (s *stressRun) privateRound() {
	var destroyed atomic.Int64
	privates := make([]*glib.Private, s.p.Handles)
	for h := range privates {
		privates[h] = glib.NewPrivate(func(any) { destroyed.Add(1) })
	}

	var mismatches atomic.Int64
	threads := make([]*glib.Thread, 0, s.p.Goroutines)
	for g := 0; g < s.p.Goroutines; g++ {
		th := s.spawn("private", func(data any) any {
			id := data.(int)
			for _, p := range privates {
				if p.Get() != nil {
					mismatches.Add(1)
				}
				p.Set(id)
			}
			glib.Usleep(10)
			for _, p := range privates {
				if p.Get() != id {
					mismatches.Add(1)
				}
			}
			return nil
		}, g)
		if th == nil {
			break
		}
		threads = append(threads, th)
	}
	for _, th := range threads {
		th.Join()
		th.Unref()
	}

	if n := mismatches.Load(); n != 0 {
		s.failf("private: %d foreign or missing values", n)
	}
	want := int64(len(threads) * s.p.Handles)
	if got := destroyed.Load(); got != want {
		s.failf("private: %d values destroyed, want %d", got, want)
	}
	for _, p := range privates {
		p.Clear()
	}
}

// threadRound shares each thread among several goroutines that Ref and
// Unref it concurrently with the creator's own Unref.
func (s *stressRun) threadRound() {
	const sharers = 3
	var ran atomic.Int64

	var wg sync.WaitGroup
	for h := 0; h < s.p.Handles; h++ {
		th := s.spawn("shared", func(any) any {
			ran.Add(1)
			return nil
		}, nil)
		if th == nil {
			break
		}
		for i := 0; i < sharers; i++ {
			th.Ref()
			wg.Add(1)
			go func() {
				defer wg.Done()
				th.Join()
				th.Unref()
			}()
		}
		th.Unref()
	}
	wg.Wait()

	if got := ran.Load(); got != int64(s.p.Handles) {
		s.failf("thread: %d functions ran, want %d", got, s.p.Handles)
	}
}
