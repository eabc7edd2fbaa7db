// scenario.go implements the 'quasiglib scenario' command.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/kolkov/quasiglib/glib"
	"github.com/kolkov/quasiglib/internal/glib/config"
	"github.com/kolkov/quasiglib/internal/glib/gthread"
	"github.com/kolkov/quasiglib/internal/glib/hb"
	"github.com/kolkov/quasiglib/internal/glib/osprim"
)

// recMutexLockCount is how often the main goroutine locks the recursive
// mutex before starting the thread.
const recMutexLockCount = 4

// errScenario is wrapped by every scenario failure.
var errScenario = errors.New("scenario failed")

type scenarioConfig struct {
	trace bool
	delay uint64 // microseconds before waiting on the cond
}

func parseScenarioArgs(args []string) (*scenarioConfig, error) {
	cfg := &scenarioConfig{}
	fs := flag.NewFlagSet("scenario", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.BoolVar(&cfg.trace, "trace", false, "check happens-before edges")
	fs.Uint64Var(&cfg.delay, "delay", 10_000, "microseconds to sleep before waiting")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return cfg, nil
}

// scenarioCommand implements the 'quasiglib scenario' command.
//
// Flow:
//  1. Lock a recursive mutex recMutexLockCount times
//  2. Start a thread that stores a private value, sets a flag under a
//     mutex, signals a cond and then takes the recursive mutex
//  3. Wait on the cond for the flag, release the recursive mutex
//  4. Join and release the thread, clear every handle
//  5. Report native objects still alive
func scenarioCommand(args []string) {
	cfg, err := parseScenarioArgs(args)
	if err != nil {
		fail("%v", err)
	}
	if err := runScenario(os.Stdout, cfg); err != nil {
		fail("%v", err)
	}
}

type scenarioData struct {
	cond     *glib.Cond
	mutex    *glib.Mutex
	recMutex *glib.RecMutex
	tls      *glib.Private
	flag     bool

	signaled hb.VectorClock
	problems []string
}

func scenarioThread(arg any) any {
	d := arg.(*scenarioData)

	const tlsValue = uint64(0xFEDCBA0987654321)
	if d.tls.Get() != nil {
		d.problems = append(d.problems, "thread saw a private value it never set")
	}
	d.tls.Set(tlsValue)
	if d.tls.Get() != tlsValue {
		d.problems = append(d.problems, "thread lost its private value")
	}

	d.mutex.Lock()
	d.flag = true
	d.signaled = hb.Default.Snapshot()
	d.cond.Signal()
	d.mutex.Unlock()

	d.recMutex.Lock()
	d.recMutex.Unlock()
	return nil
}

func runScenario(w io.Writer, cfg *scenarioConfig) error {
	opts, err := config.FromEnv()
	if err != nil {
		return err
	}
	counting := osprim.NewCounting(osprim.NewNative(gthread.NativeOptions(opts)))
	defer gthread.SetBackend(counting)()

	if cfg.trace {
		hb.Default.Enable()
		defer func() {
			hb.Default.Disable()
			hb.Default.Reset()
		}()
	}

	start := glib.MonotonicTime()

	var recMutex glib.RecMutex
	recMutex.Init()
	for i := 0; i < recMutexLockCount; i++ {
		recMutex.Lock()
	}
	fmt.Fprintf(w, "rec mutex locked %d times\n", recMutexLockCount)

	var cond glib.Cond
	cond.Init()
	var mutex glib.Mutex
	mutex.Init()

	var tls glib.Private
	const mainValue = uint64(0x1234567890ABCDEF)
	tls.Set(mainValue)
	if tls.Get() != mainValue {
		return fmt.Errorf("%w: main goroutine lost its private value", errScenario)
	}

	data := &scenarioData{cond: &cond, mutex: &mutex, recMutex: &recMutex, tls: &tls}
	var gerr *glib.Error
	thread := glib.ThreadTryNew("scenario", scenarioThread, data, &gerr)
	if thread == nil {
		return fmt.Errorf("%w: %v", errScenario, gerr)
	}
	fmt.Fprintf(w, "thread %q started\n", thread.Name())

	glib.Usleep(cfg.delay)

	mutex.Lock()
	for !data.flag {
		cond.Wait(&mutex)
	}
	woken := hb.Default.Snapshot()
	mutex.Unlock()
	fmt.Fprintf(w, "flag observed after %dµs\n", glib.MonotonicTime()-start)

	cond.Broadcast()
	cond.Clear()

	for i := 0; i < recMutexLockCount; i++ {
		recMutex.Unlock()
	}

	thread.Join()
	thread.Unref()
	fmt.Fprintf(w, "thread joined\n")

	mutex.Clear()
	recMutex.Clear()
	tls.Clear()

	if cfg.trace {
		ordered := hb.HappensBefore(data.signaled, woken)
		fmt.Fprintf(w, "happens-before signal %s -> wakeup %s: %t\n", data.signaled, woken, ordered)
		if !ordered {
			data.problems = append(data.problems, "signal does not happen before wakeup")
		}
	}

	counts := counting.Counts()
	fmt.Fprintf(w, "native objects (freed/allocated): %s\n", counts)
	if counts.Live() != 0 || counts.BadFrees != 0 {
		data.problems = append(data.problems, fmt.Sprintf("%d native objects leaked", counts.Live()))
	}

	if len(data.problems) > 0 {
		for _, p := range data.problems {
			fmt.Fprintf(w, "FAIL: %s\n", p)
		}
		return fmt.Errorf("%w: %d problem(s)", errScenario, len(data.problems))
	}
	fmt.Fprintf(w, "OK\n")
	return nil
}
