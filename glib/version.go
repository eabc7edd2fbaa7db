package glib

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/mod/modfile"
	"golang.org/x/mod/semver"

	"github.com/kolkov/quasiglib/internal/glib/filetest"
	"github.com/kolkov/quasiglib/internal/glib/hb"
	"github.com/kolkov/quasiglib/internal/glib/syncutil"
)

// Version information for quasiglib.
const (
	// Version is the current version of the library.
	Version = "0.1.0"

	// VersionMajor is the major version number.
	VersionMajor = 0

	// VersionMinor is the minor version number.
	VersionMinor = 1

	// VersionPatch is the patch version number.
	VersionPatch = 0

	// ModulePath is the import path of this module.
	ModulePath = "github.com/kolkov/quasiglib"
)

// ErrNotRequired is returned by RequiredVersion when a go.mod does not
// require this module.
var ErrNotRequired = errors.New("glib: module not required")

// Info provides runtime information about the library.
type Info struct {
	// Version is the library version string.
	Version string

	// Libc names where FileTest's access(2) comes from.
	Libc string

	// Trace indicates whether the happens-before tracer is recording.
	Trace bool

	// Deadlock indicates a build with -tags deadlock.
	Deadlock bool
}

// GetInfo returns information about the library.
//
// Example:
//
//	info := glib.GetInfo()
//	fmt.Printf("quasiglib %s (libc: %s)\n", info.Version, info.Libc)
func GetInfo() Info {
	return Info{
		Version:  Version,
		Libc:     filetest.Source(),
		Trace:    hb.Default.Enabled(),
		Deadlock: syncutil.DeadlockEnabled,
	}
}

// canonical adds the "v" prefix semver expects.
func canonical(v string) string {
	if v != "" && v[0] != 'v' {
		v = "v" + v
	}
	return v
}

// Compatible reports whether this library satisfies a caller built
// against version required: same major version and not older. For major
// version 0 the minor version must match as well.
func Compatible(required string) bool {
	req := canonical(required)
	have := canonical(Version)
	if !semver.IsValid(req) {
		return false
	}
	if semver.Major(req) != semver.Major(have) {
		return false
	}
	if semver.Major(have) == "v0" && semver.MajorMinor(req) != semver.MajorMinor(have) {
		return false
	}
	return semver.Compare(have, req) >= 0
}

// RequiredVersion returns the version of this module required by the
// go.mod file at path.
func RequiredVersion(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("glib: read %s: %w", path, err)
	}
	f, err := modfile.ParseLax(path, data, nil)
	if err != nil {
		return "", fmt.Errorf("glib: parse %s: %w", path, err)
	}
	for _, r := range f.Require {
		if r.Mod.Path == ModulePath {
			return r.Mod.Version, nil
		}
	}
	return "", fmt.Errorf("%w: %s does not require %s", ErrNotRequired, path, ModulePath)
}
