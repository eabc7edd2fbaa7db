// tools.go implements the 'filetest', 'clock' and 'version' commands.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/kolkov/quasiglib/glib"
	"github.com/kolkov/quasiglib/internal/glib/filetest"
)

type filetestConfig struct {
	test  glib.FileTestFlags
	paths []string
}

func parseFiletestArgs(args []string) (*filetestConfig, error) {
	fs := flag.NewFlagSet("filetest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	tests := fs.String("t", "exists", "predicates: regular, symlink, dir, executable, exists")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	flags, unknown := filetest.ParseFlags(*tests)
	if len(unknown) > 0 {
		return nil, fmt.Errorf("unknown predicates: %v", unknown)
	}
	if fs.NArg() == 0 {
		return nil, fmt.Errorf("no paths given")
	}
	return &filetestConfig{test: flags, paths: fs.Args()}, nil
}

// filetestCommand implements 'quasiglib filetest'. The exit status is 1
// if any path fails the test.
func filetestCommand(args []string) {
	cfg, err := parseFiletestArgs(args)
	if err != nil {
		fail("%v", err)
	}
	if !runFiletest(os.Stdout, cfg) {
		os.Exit(1)
	}
}

func runFiletest(w io.Writer, cfg *filetestConfig) bool {
	all := true
	for _, path := range cfg.paths {
		ok := glib.FileTest(path, cfg.test)
		all = all && ok
		fmt.Fprintf(w, "%s\t%s\t%t\n", path, cfg.test, ok)
	}
	return all
}

type clockConfig struct {
	samples int
	sleep   uint64
}

func parseClockArgs(args []string) (*clockConfig, error) {
	cfg := &clockConfig{}
	fs := flag.NewFlagSet("clock", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.IntVar(&cfg.samples, "n", 5, "number of samples")
	fs.Uint64Var(&cfg.sleep, "sleep", 1000, "microseconds between samples")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cfg.samples <= 0 {
		return nil, fmt.Errorf("-n must be positive")
	}
	return cfg, nil
}

// clockCommand implements 'quasiglib clock'.
func clockCommand(args []string) {
	cfg, err := parseClockArgs(args)
	if err != nil {
		fail("%v", err)
	}
	if err := runClock(os.Stdout, cfg); err != nil {
		fail("%v", err)
	}
}

func runClock(w io.Writer, cfg *clockConfig) error {
	prev := glib.MonotonicTime()
	fmt.Fprintf(w, "%d\n", prev)
	for i := 1; i < cfg.samples; i++ {
		glib.Usleep(cfg.sleep)
		now := glib.MonotonicTime()
		if now <= prev {
			return fmt.Errorf("clock went from %d to %d", prev, now)
		}
		fmt.Fprintf(w, "%d\t+%dµs\n", now, now-prev)
		prev = now
	}
	return nil
}

type versionConfig struct {
	modPath string
}

func parseVersionArgs(args []string) (*versionConfig, error) {
	cfg := &versionConfig{}
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.modPath, "mod", "", "go.mod to check for a compatible requirement")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

// versionCommand implements 'quasiglib version'.
func versionCommand(args []string) {
	cfg, err := parseVersionArgs(args)
	if err != nil {
		fail("%v", err)
	}
	if err := runVersion(os.Stdout, cfg); err != nil {
		fail("%v", err)
	}
}

func runVersion(w io.Writer, cfg *versionConfig) error {
	info := glib.GetInfo()
	fmt.Fprintf(w, "quasiglib version %s (libc: %s, deadlock detection: %t)\n",
		info.Version, info.Libc, info.Deadlock)

	if cfg.modPath == "" {
		return nil
	}
	required, err := glib.RequiredVersion(cfg.modPath)
	if err != nil {
		return err
	}
	if !glib.Compatible(required) {
		return fmt.Errorf("%s requires %s %s, incompatible with %s",
			cfg.modPath, glib.ModulePath, required, glib.Version)
	}
	fmt.Fprintf(w, "%s requires %s: compatible\n", cfg.modPath, required)
	return nil
}
