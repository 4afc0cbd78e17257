package validation

import (
	"context"
	"time"
)

// RetryConfig configures how often the clean build is attempted.
type RetryConfig struct {
	// MaxAttempts is the maximum number of build attempts (default: 3).
	MaxAttempts int
	// Delay is the fixed wait between attempts (default: 5s).
	Delay time.Duration
}

// DefaultRetryConfig returns the standard build retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		Delay:       5 * time.Second,
	}
}

// RetryHandler decides whether another build attempt is made.
type RetryHandler struct {
	config RetryConfig
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewRetryHandler creates a retry handler. A nil sleep waits on a timer.
func NewRetryHandler(config RetryConfig, sleep func(ctx context.Context, d time.Duration) error) *RetryHandler {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if sleep == nil {
		sleep = wait
	}
	return &RetryHandler{config: config, sleep: sleep}
}

// ShouldRetry reports whether another attempt follows attempt (1-indexed).
func (h *RetryHandler) ShouldRetry(attempt int) bool {
	return attempt < h.config.MaxAttempts
}

// MaxAttempts returns the attempt bound.
func (h *RetryHandler) MaxAttempts() int {
	return h.config.MaxAttempts
}

// Wait sleeps for the configured delay or until ctx is done.
func (h *RetryHandler) Wait(ctx context.Context) error {
	return h.sleep(ctx, h.config.Delay)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
