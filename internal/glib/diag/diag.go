// Package diag writes diagnostics to stderr.
//
// Messages are single lines prefixed with the program name and severity:
//
//	quasiglib-WARNING **: gthread: reclaimed 3 values of exited goroutines
//
// Critical reports are framed in a banner and carry the caller's stack:
//
//	==================
//	quasiglib-CRITICAL **: gthread: cannot allocate mutex: resource limit
//	  github.com/kolkov/quasiglib/internal/glib/gthread.(*Mutex).Lock()
//	      /path/to/mutex.go:42 +0x48
//	==================
package diag

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
)

// Level is a message severity.
type Level int

const (
	// LevelError is always printed.
	LevelError Level = iota
	// LevelWarning is printed at verbosity 1 and above.
	LevelWarning
	// LevelDebug is printed at verbosity 2 and above.
	LevelDebug
)

// String returns the GLib-style severity label.
func (l Level) String() string {
	switch l {
	case LevelError:
		return "CRITICAL"
	case LevelWarning:
		return "WARNING"
	case LevelDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// maxStackDepth bounds the frames captured for a critical report.
const maxStackDepth = 32

// Reporter writes prefixed diagnostic lines to a writer.
//
// Thread Safety: All methods are safe for concurrent calls.
type Reporter struct {
	mu        sync.Mutex
	w         io.Writer
	prefix    string
	verbosity int
}

// New returns a reporter writing to w. A nil w means os.Stderr.
func New(w io.Writer, prefix string, verbosity int) *Reporter {
	if w == nil {
		w = os.Stderr
	}
	return &Reporter{w: w, prefix: prefix, verbosity: verbosity}
}

// SetVerbosity changes the printed levels.
func (r *Reporter) SetVerbosity(v int) {
	r.mu.Lock()
	r.verbosity = v
	r.mu.Unlock()
}

// SetOutput redirects the reporter and returns the previous writer.
func (r *Reporter) SetOutput(w io.Writer) io.Writer {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.w
	r.w = w
	return old
}

// Enabled reports whether messages at l are printed.
func (r *Reporter) Enabled(l Level) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int(l) <= r.verbosity
}

//nolint:errcheck // Diagnostics to stderr have nowhere to report failure.
func (r *Reporter) logf(l Level, format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(l) > r.verbosity {
		return
	}
	fmt.Fprintf(r.w, "%s-%s **: %s\n", r.prefix, l, strings.TrimSuffix(fmt.Sprintf(format, args...), "\n"))
}

// Errorf prints a critical message.
func (r *Reporter) Errorf(format string, args ...any) { r.logf(LevelError, format, args...) }

// Warnf prints a warning.
func (r *Reporter) Warnf(format string, args ...any) { r.logf(LevelWarning, format, args...) }

// Debugf prints a debug message.
func (r *Reporter) Debugf(format string, args ...any) { r.logf(LevelDebug, format, args...) }

// Critical prints a framed critical report with the caller's stack.
// skip counts frames above Critical's caller to omit.
//
//nolint:errcheck // Diagnostics to stderr have nowhere to report failure.
func (r *Reporter) Critical(skip int, format string, args ...any) {
	pcs := make([]uintptr, maxStackDepth)
	n := runtime.Callers(skip+2, pcs)
	stack := FormatStack(pcs[:n])

	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "==================\n")
	fmt.Fprintf(r.w, "%s-%s **: %s\n", r.prefix, LevelError, fmt.Sprintf(format, args...))
	fmt.Fprint(r.w, stack)
	fmt.Fprintf(r.w, "==================\n")
}

// FormatStack renders program counters the way the runtime prints panics,
// with runtime frames removed:
//
//	main.worker()
//	    /path/to/file.go:25 +0x5c
func FormatStack(pcs []uintptr) string {
	if len(pcs) == 0 {
		return "  (no stack trace available)\n"
	}

	frames := runtime.CallersFrames(pcs)
	var buf strings.Builder
	for {
		frame, more := frames.Next()
		if !strings.HasPrefix(frame.Function, "runtime.") && frame.Function != "" {
			fmt.Fprintf(&buf, "  %s()\n      %s:%d +0x%x\n", frame.Function, frame.File, frame.Line, frame.PC&0xfff)
		}
		if !more {
			break
		}
	}
	if buf.Len() == 0 {
		return "  (all frames filtered - runtime internal)\n"
	}
	return buf.String()
}

var std = New(nil, "quasiglib", 1)

// Default returns the process-wide reporter.
func Default() *Reporter { return std }
