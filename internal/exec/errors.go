package exec

import (
	"fmt"
	"time"
)

// ExitError is returned when a command exits with a non-zero status.
type ExitError struct {
	Command string
	Result  Result
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s: exit status %d: %s", e.Command, e.Result.ExitCode, tail(e.Result.Stderr, 512))
}

// TimeoutError is returned when a command was killed at its deadline.
type TimeoutError struct {
	Command string
	Timeout time.Duration
	Result  Result
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out after %s", e.Command, e.Timeout)
}

// tail returns at most n trailing bytes of s.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
