// Package exec runs external commands with an explicit timeout.
package exec

import (
	"context"
	"strings"
	"time"
)

// Command describes one external process launch.
type Command struct {
	// Name is the program to run.
	Name string
	// Args are passed to the program.
	Args []string
	// Dir is the working directory; empty uses the current directory.
	Dir string
	// Env is appended to the inherited environment (KEY=value).
	Env []string
	// Timeout bounds the run; zero uses the runner's default.
	Timeout time.Duration
}

// String renders the command line for logs and errors.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result is the captured output of a finished command.
type Result struct {
	Stdout string
	Stderr string
	// Output interleaves stdout and stderr in the order they were written.
	Output   string
	ExitCode int
	Duration time.Duration
}

// CommandRunner defines the interface for running external commands.
// This abstraction allows mocking command execution in tests.
type CommandRunner interface {
	// Run executes the command. A non-zero exit returns *ExitError and a
	// deadline returns *TimeoutError; both carry the captured Result.
	Run(ctx context.Context, cmd Command) (Result, error)
}
