//go:build ios || android || !(darwin || linux) || !(amd64 || arm64)

package filetest

import "os"

// loadLibc approximates access(2) with stat where libc cannot be called.
func loadLibc() libc {
	return libc{
		name: "stat",
		access: func(path string, mode int32) int32 {
			info, err := os.Stat(path)
			if err != nil {
				return -1
			}
			if mode == accessExecutable && info.Mode().Perm()&0o111 == 0 {
				return -1
			}
			return 0
		},
		getuid: func() uint32 {
			uid := os.Getuid()
			if uid < 0 {
				return 1 // no superuser concept
			}
			//nolint:gosec // G115: uid checked non-negative
			return uint32(uid)
		},
	}
}
