// Package gid extracts goroutine IDs.
//
// Goroutine-local storage is keyed by goroutine ID, so this is on the hot
// path of every Private.Get/Set.
//
// API:
//   - Current(): ID of the calling goroutine (fast path via goid)
//   - Slow(): same ID via runtime.Stack parsing, for validation
//   - Live(): IDs of every goroutine that currently exists
//   - Parse(): parses "goroutine 123 [running]:" headers
package gid

import (
	"runtime"

	"github.com/petermattis/goid"
)

// stackDumpSize is the initial buffer for a full goroutine dump.
// Live grows it until the dump fits.
const stackDumpSize = 64 * 1024

// Current returns the ID of the calling goroutine.
//
// IDs are positive and never reused during the life of the process.
func Current() int64 {
	return goid.Get()
}

// Slow extracts the goroutine ID by parsing runtime.Stack output.
//
// Stack trace format: "goroutine 123 [running]:\n..."
//
// Returns:
//   - int64: Goroutine ID, or 0 if parsing fails
func Slow() int64 {
	// Only the first line is needed.
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	return Parse(buf[:n])
}

// Parse extracts the goroutine ID from a stack trace header.
//
// Expected format: "goroutine 123 [running]:..."
// Returns the numeric ID (123 in this example) or 0 if the format is invalid.
func Parse(buf []byte) int64 {
	const prefix = "goroutine "
	const prefixLen = len(prefix)

	if len(buf) < prefixLen || string(buf[:prefixLen]) != prefix {
		return 0
	}

	var id int64
	for i := prefixLen; i < len(buf); i++ {
		c := buf[i]
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + int64(c-'0')
	}
	return id
}

// Live returns the IDs of all goroutines that exist at the time of the call.
//
// This is expensive (it stops the world to dump every stack) and is only
// used to reclaim goroutine-local values of goroutines that have exited.
func Live() []int64 {
	buf := make([]byte, stackDumpSize)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) {
			return ParseAll(buf[:n])
		}
		// Truncated dump: a missing header would make a live goroutine
		// look dead, so retry with a bigger buffer.
		buf = make([]byte, 2*len(buf))
	}
}

// ParseAll extracts every goroutine ID from a full stack dump.
//
// runtime.Stack output has one "goroutine N [state]:" line per goroutine.
func ParseAll(buf []byte) []int64 {
	var ids []int64

	i := 0
	for i < len(buf) {
		end := i
		for end < len(buf) && buf[end] != '\n' {
			end++
		}

		if id := Parse(buf[i:end]); id != 0 {
			ids = append(ids, id)
		}

		i = end + 1
	}

	return ids
}
