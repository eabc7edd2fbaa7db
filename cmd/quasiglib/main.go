// Package main implements the quasiglib CLI tool.
//
// The quasiglib tool exercises the threading primitives outside of a test
// binary:
//
//  1. scenario: the reference thread/cond/mutex/private interplay, with a
//     report of every native object allocated and freed
//  2. stress: many goroutines racing on fresh handles, driven by a YAML
//     profile
//  3. filetest, clock: the filesystem predicate and monotonic clock
//
// Usage:
//
//	quasiglib scenario -trace
//	quasiglib stress -config stress.yaml
//	quasiglib filetest -t regular,dir /etc/hosts /tmp
//	quasiglib clock -n 5 -sleep 1000
//	quasiglib version -mod ./go.mod
package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "scenario":
		scenarioCommand(os.Args[2:])
	case "stress":
		stressCommand(os.Args[2:])
	case "filetest":
		filetestCommand(os.Args[2:])
	case "clock":
		clockCommand(os.Args[2:])
	case "version", "--version", "-v":
		versionCommand(os.Args[2:])
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

// fail prints an error and exits with status 1.
func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func printUsage() {
	fmt.Print(`quasiglib - GLib-style threading primitives for Go

USAGE:
    quasiglib <command> [arguments]

COMMANDS:
    scenario   Run the thread/cond/mutex/private scenario and report leaks
    stress     Race goroutines on fresh handles
    filetest   Test filesystem predicates on paths
    clock      Sample the monotonic clock
    version    Show version information
    help       Show this help message

EXAMPLES:
    # Run the scenario with happens-before checks
    quasiglib scenario -trace

    # Stress every primitive with a profile
    quasiglib stress -config stress.yaml

    # Check paths
    quasiglib filetest -t exists,dir /tmp /nonexistent

    # Check a module's required version
    quasiglib version -mod ./go.mod

ENVIRONMENT:
    QUASIGLIB   space separated key=value options:
                thread_limit, key_limit, reap_interval, trace, verbosity,
                deadlock_timeout

`)
}
