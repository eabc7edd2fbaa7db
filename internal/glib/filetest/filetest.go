// Package filetest answers filesystem predicate queries on a path.
//
// Test(path, IsRegular|IsDir) reports whether any of the requested
// predicates holds. Existence and executability are checked with libc
// access(2), called through purego where libc can be loaded and through the
// syscall package otherwise. The remaining predicates use stat and lstat.
package filetest

import (
	"io/fs"
	"os"
	"strings"
	"sync"
)

// Flags is a bitmask of predicates.
type Flags int

const (
	// IsRegular holds for regular files (after following symlinks).
	IsRegular Flags = 1 << iota
	// IsSymlink holds for symbolic links.
	IsSymlink
	// IsDir holds for directories (after following symlinks).
	IsDir
	// IsExecutable holds for files the caller may execute.
	IsExecutable
	// Exists holds for any existing path.
	Exists
)

var flagNames = []struct {
	f    Flags
	name string
}{
	{IsRegular, "regular"},
	{IsSymlink, "symlink"},
	{IsDir, "dir"},
	{IsExecutable, "executable"},
	{Exists, "exists"},
}

// String returns the set flags joined by "|", or "none".
func (f Flags) String() string {
	var parts []string
	for _, fn := range flagNames {
		if f&fn.f != 0 {
			parts = append(parts, fn.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// ParseFlags parses names as printed by String. Unknown names are ignored
// and reported in the second result.
func ParseFlags(s string) (Flags, []string) {
	var f Flags
	var unknown []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ',' }) {
		found := false
		for _, fn := range flagNames {
			if part == fn.name {
				f |= fn.f
				found = true
			}
		}
		if !found {
			unknown = append(unknown, part)
		}
	}
	return f, unknown
}

const (
	accessExists     = 0 // F_OK
	accessExecutable = 1 // X_OK
)

// libc is the part of the C library the predicates need.
type libc struct {
	name   string
	access func(path string, mode int32) int32
	getuid func() uint32
}

var (
	sys     libc
	sysOnce sync.Once
)

func system() *libc {
	sysOnce.Do(func() { sys = loadLibc() })
	return &sys
}

// Source names where access and getuid come from: a shared library path,
// or "syscall" when libc could not be loaded.
func Source() string {
	return system().name
}

// Test reports whether any predicate in test holds for path.
//
// Following access(2) semantics, IsExecutable for the superuser is decided
// by the permission bits: root may execute a file only if some execute bit
// is set. An empty path never matches.
func Test(path string, test Flags) bool {
	if path == "" {
		return false
	}
	c := system()

	if test&Exists != 0 && c.access(path, accessExists) == 0 {
		return true
	}

	if test&IsExecutable != 0 && c.access(path, accessExecutable) == 0 {
		if c.getuid() != 0 {
			return true
		}
		// Root passes access(X_OK) for any file; check the mode below.
	} else {
		test &^= IsExecutable
	}

	if test&IsSymlink != 0 {
		if info, err := os.Lstat(path); err == nil && info.Mode()&fs.ModeSymlink != 0 {
			return true
		}
	}

	if test&(IsRegular|IsDir|IsExecutable) != 0 {
		info, err := os.Stat(path)
		if err != nil {
			return false
		}
		mode := info.Mode()
		if test&IsRegular != 0 && mode.IsRegular() {
			return true
		}
		if test&IsDir != 0 && mode.IsDir() {
			return true
		}
		if test&IsExecutable != 0 && mode.Perm()&0o111 != 0 {
			return true
		}
	}

	return false
}
