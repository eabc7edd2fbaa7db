//go:build !ios && !android && (darwin || linux) && (amd64 || arm64)

package filetest

import (
	"os"
	"runtime"
	"syscall"

	"github.com/ebitengine/purego"
)

// libcNames lists candidate libc images per platform, most specific first.
func libcNames() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"/usr/lib/libSystem.B.dylib"}
	default:
		return []string{"libc.so.6", "/lib/x86_64-linux-gnu/libc.so.6", "/lib/aarch64-linux-gnu/libc.so.6", "libc.so"}
	}
}

func loadLibc() libc {
	for _, name := range libcNames() {
		lib, err := purego.Dlopen(name, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			continue
		}
		c := libc{name: name}
		purego.RegisterLibFunc(&c.access, lib, "access")
		purego.RegisterLibFunc(&c.getuid, lib, "getuid")
		return c
	}
	return syscallLibc()
}

func syscallLibc() libc {
	return libc{
		name: "syscall",
		access: func(path string, mode int32) int32 {
			//nolint:gosec // G115: mode is F_OK or X_OK
			if err := syscall.Access(path, uint32(mode)); err != nil {
				return -1
			}
			return 0
		},
		getuid: func() uint32 {
			//nolint:gosec // G115: uid is non-negative on unix
			return uint32(os.Getuid())
		},
	}
}
