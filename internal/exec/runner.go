package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"

	"github.com/ShayCichocki/bacardi/internal/metrics"
)

const (
	// DefaultTimeout applies when a Command carries no timeout.
	DefaultTimeout = 30 * time.Minute
	// waitDelay bounds how long output pipes may stay open after the process is killed.
	waitDelay = 5 * time.Second
)

// ExecRunner implements CommandRunner using os/exec. Each command runs in its
// own process group so a timeout kills the whole tree (mvn forks, gradle daemons).
type ExecRunner struct {
	defaultTimeout time.Duration
}

// NewRunner creates a new ExecRunner.
func NewRunner() *ExecRunner {
	return &ExecRunner{defaultTimeout: DefaultTimeout}
}

// Run executes the command and captures its output.
func (r *ExecRunner) Run(ctx context.Context, c Command) (Result, error) {
	if c.Name == "" {
		return Result{}, errors.New("empty command")
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	var stdout, stderr bytes.Buffer
	combined := &lockedBuffer{}
	cmd.Stdout = io.MultiWriter(&stdout, combined)
	cmd.Stderr = io.MultiWriter(&stderr, combined)
	cmd.WaitDelay = waitDelay
	configureProcess(cmd)

	clog.FromContext(ctx).Debugf("running %s in %s (timeout %s)", c, c.Dir, timeout)

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Output:   combined.String(),
		ExitCode: cmd.ProcessState.ExitCode(),
		Duration: time.Since(start),
	}
	metrics.CommandDuration.WithLabelValues(c.Name).Observe(res.Duration.Seconds())

	if err == nil {
		return res, nil
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return res, &TimeoutError{Command: c.String(), Timeout: timeout, Result: res}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, fmt.Errorf("%s: %w", c, ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return res, &ExitError{Command: c.String(), Result: res}
	}
	return res, fmt.Errorf("run %s: %w", c, err)
}

// lockedBuffer is written to from the stdout and stderr copy goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Verify ExecRunner implements CommandRunner at compile time.
var _ CommandRunner = (*ExecRunner)(nil)
