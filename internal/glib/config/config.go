// Package config loads runtime options for the primitives.
//
// Options come from the QUASIGLIB environment variable, a space separated
// list of key=value pairs in the style of GORACE:
//
//	QUASIGLIB="thread_limit=64 reap_interval=256 trace=1 verbosity=2"
//
// Unknown keys and malformed values are reported as errors; callers that
// read the environment at start-up warn and keep the defaults.
//
// Stress profiles for the quasiglib command are YAML documents, see Profile.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvVar is the environment variable read by FromEnv.
const EnvVar = "QUASIGLIB"

// ErrBadOption is wrapped by every parse failure.
var ErrBadOption = errors.New("config: bad option")

// Options configures the native backend and diagnostics.
type Options struct {
	// ThreadLimit caps concurrently running threads.
	// Default: 0 (unlimited).
	ThreadLimit int

	// KeyLimit caps live thread-local keys.
	// Default: 0 (unlimited).
	KeyLimit int

	// ReapInterval is the number of thread-local sets between scans that
	// reclaim values of exited goroutines.
	// - 0: backend default (1024)
	// - negative: scanning disabled
	ReapInterval int

	// Trace enables the happens-before tracer.
	// Default: false.
	Trace bool

	// Verbosity selects diagnostics: 0 errors, 1 warnings, 2 debug.
	// Default: 1.
	Verbosity int

	// DeadlockTimeout is how long a backend lock may block before the
	// deadlock detector reports it. Only honored with -tags=deadlock.
	// Default: 0 (detector default).
	DeadlockTimeout time.Duration
}

// Default returns the options used when nothing is configured.
func Default() Options {
	return Options{Verbosity: 1}
}

// Parse parses a "key=value key=value" string on top of Default.
func Parse(s string) (Options, error) {
	opts := Default()
	for _, field := range strings.Fields(s) {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			return Default(), fmt.Errorf("%w: %q is not key=value", ErrBadOption, field)
		}
		if err := opts.set(key, value); err != nil {
			return Default(), err
		}
	}
	return opts, nil
}

// FromEnv parses the QUASIGLIB environment variable.
func FromEnv() (Options, error) {
	return Parse(os.Getenv(EnvVar))
}

func (o *Options) set(key, value string) error {
	switch key {
	case "thread_limit":
		return parseInt(key, value, &o.ThreadLimit)
	case "key_limit":
		return parseInt(key, value, &o.KeyLimit)
	case "reap_interval":
		return parseInt(key, value, &o.ReapInterval)
	case "verbosity":
		return parseInt(key, value, &o.Verbosity)
	case "deadlock_timeout":
		d, err := time.ParseDuration(value)
		if err != nil || d < 0 {
			return fmt.Errorf("%w: %s=%q: want a non-negative duration", ErrBadOption, key, value)
		}
		o.DeadlockTimeout = d
		return nil
	case "trace":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrBadOption, key, value, err)
		}
		o.Trace = b
		return nil
	default:
		return fmt.Errorf("%w: unknown key %q", ErrBadOption, key)
	}
}

func parseInt(key, value string, dst *int) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%w: %s=%q: %v", ErrBadOption, key, value, err)
	}
	if n < 0 && key != "reap_interval" {
		return fmt.Errorf("%w: %s must not be negative", ErrBadOption, key)
	}
	*dst = n
	return nil
}

// String formats the options in the QUASIGLIB syntax.
func (o Options) String() string {
	s := fmt.Sprintf("thread_limit=%d key_limit=%d reap_interval=%d trace=%t verbosity=%d",
		o.ThreadLimit, o.KeyLimit, o.ReapInterval, o.Trace, o.Verbosity)
	if o.DeadlockTimeout > 0 {
		s += " deadlock_timeout=" + o.DeadlockTimeout.String()
	}
	return s
}

// Profile describes one stress run of the quasiglib command.
//
// Example:
//
//	goroutines: 32
//	rounds: 100
//	handles: 8
//	kinds: [mutex, recmutex, cond, private]
//	thread_limit: 16
//	trace: false
type Profile struct {
	// Goroutines racing on each round.
	Goroutines int `yaml:"goroutines"`
	// Rounds of fresh handles.
	Rounds int `yaml:"rounds"`
	// Handles of each kind per round.
	Handles int `yaml:"handles"`
	// Kinds exercised: mutex, recmutex, cond, private, thread.
	Kinds []string `yaml:"kinds"`
	// ThreadLimit overrides Options.ThreadLimit when positive.
	ThreadLimit int `yaml:"thread_limit"`
	// Trace overrides Options.Trace when set.
	Trace bool `yaml:"trace"`
}

// Kinds accepted in Profile.Kinds.
var Kinds = []string{"mutex", "recmutex", "cond", "private", "thread"}

// DefaultProfile returns a small profile exercising every kind.
func DefaultProfile() Profile {
	return Profile{
		Goroutines: 16,
		Rounds:     50,
		Handles:    4,
		Kinds:      append([]string(nil), Kinds...),
	}
}

// Validate checks ranges and kind names.
func (p Profile) Validate() error {
	if p.Goroutines <= 0 {
		return fmt.Errorf("%w: goroutines must be positive, got %d", ErrBadOption, p.Goroutines)
	}
	if p.Rounds <= 0 {
		return fmt.Errorf("%w: rounds must be positive, got %d", ErrBadOption, p.Rounds)
	}
	if p.Handles <= 0 {
		return fmt.Errorf("%w: handles must be positive, got %d", ErrBadOption, p.Handles)
	}
	if p.ThreadLimit < 0 {
		return fmt.Errorf("%w: thread_limit must not be negative", ErrBadOption)
	}
	for _, k := range p.Kinds {
		if !knownKind(k) {
			return fmt.Errorf("%w: unknown kind %q", ErrBadOption, k)
		}
	}
	return nil
}

// Has reports whether the profile exercises kind.
func (p Profile) Has(kind string) bool {
	for _, k := range p.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func knownKind(k string) bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// DecodeProfile parses a YAML profile. Missing fields keep DefaultProfile
// values.
func DecodeProfile(data []byte) (Profile, error) {
	p := DefaultProfile()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("config: decode profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// LoadProfile reads and decodes a YAML profile from path.
func LoadProfile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("config: load profile: %w", err)
	}
	return DecodeProfile(data)
}

// Apply overlays the profile's overrides on opts.
func (p Profile) Apply(opts Options) Options {
	if p.ThreadLimit > 0 {
		opts.ThreadLimit = p.ThreadLimit
	}
	if p.Trace {
		opts.Trace = true
	}
	return opts
}
