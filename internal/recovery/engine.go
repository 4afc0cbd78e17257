package recovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chainguard-dev/clog"

	"github.com/ShayCichocki/bacardi/internal/git"
	"github.com/ShayCichocki/bacardi/internal/metrics"
	"github.com/ShayCichocki/bacardi/pkg/models"
)

// ResultCache looks up a previously stored build result.
type ResultCache interface {
	Get(ctx context.Context, key string) (*models.BuildResult, bool, error)
}

// ShallowCloner re-clones a repository revision at depth 1. It fails when
// the revision cannot be checked out that way.
type ShallowCloner interface {
	ShallowClone(ctx context.Context, opts git.CloneOptions) error
}

// Options configures an Engine.
type Options struct {
	// NetworkDelay is the wait before the network fallback re-attempt.
	NetworkDelay time.Duration
	// RetryBackoff is the base delay between Do retries; it doubles per attempt.
	RetryBackoff time.Duration
	// Cache serves the api fallback.
	Cache ResultCache
	// Cloner serves the git fallback.
	Cloner ShallowCloner
	// Rules overrides the classification table.
	Rules []Rule
	// Sleep waits for d or until ctx is done. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultOptions returns the standard engine configuration.
func DefaultOptions() Options {
	return Options{
		NetworkDelay: 2 * time.Second,
		RetryBackoff: 500 * time.Millisecond,
	}
}

const maxBackoff = 30 * time.Second

// Context carries what the recovery routines need for one operation.
type Context struct {
	// Operation re-runs the failed operation (network fallback).
	Operation func(ctx context.Context) (any, error)
	// CacheKey identifies a cached result (api fallback).
	CacheKey string
	// AlternatePaths are tried in order when a path is missing (filesystem fallback).
	AlternatePaths []string
	// Clone is the clone to repeat shallowly (git fallback), revision included.
	Clone git.CloneOptions
	// Content is sanitized and returned (parsing fallback).
	Content string
}

// Engine classifies errors and applies the recovery policy. Each Engine owns
// its RetryState; create one per invocation and do not share it across goroutines.
type Engine struct {
	opts     Options
	rules    []Rule
	state    *RetryState
	routines map[models.ErrorCategory]routine
}

type routine func(ctx context.Context, rc Context) (any, error)

// New creates an Engine.
func New(opts Options) *Engine {
	if opts.Sleep == nil {
		opts.Sleep = sleep
	}
	rules := opts.Rules
	if len(rules) == 0 {
		rules = defaultRules
	}
	e := &Engine{
		opts:  opts,
		rules: rules,
		state: NewRetryState(),
	}
	e.routines = map[models.ErrorCategory]routine{
		models.CategoryNetwork:    e.reattempt,
		models.CategoryAPI:        e.cachedResult,
		models.CategoryFilesystem: e.alternatePath,
		models.CategoryGit:        e.shallowReclone,
		models.CategoryParsing:    e.sanitize,
	}
	return e
}

// State exposes the engine's retry counters.
func (e *Engine) State() *RetryState {
	return e.state
}

// Classify categorizes err with the engine's rules.
func (e *Engine) Classify(err error) models.ErrorCategory {
	return classifyWith(e.rules, err)
}

// Handle classifies err, counts it against (operation, category), decides an
// action and runs the category's recovery routine for fallback and graceful
// degradation. It never panics and never returns an error: a failed routine
// yields Recoverable=false.
func (e *Engine) Handle(ctx context.Context, err error, operation string, rc Context) models.RecoveryOutcome {
	if err == nil {
		return models.RecoveryOutcome{Recoverable: true}
	}

	category := e.Classify(err)
	log := clog.FromContext(ctx).With("operation", operation).With("category", string(category))

	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		log.Warnf("not recovering cancelled operation: %v", err)
		metrics.RecordRecovery(category, models.ActionAbort)
		return models.RecoveryOutcome{
			Handled:  true,
			Category: category,
			Action:   models.ActionAbort,
			Attempt:  e.state.Count(operation, category),
			Message:  cannotProceed(operation, err),
		}
	}

	prior := e.state.Count(operation, category)
	outcome := models.RecoveryOutcome{
		Handled:  true,
		Category: category,
		Action:   Decide(category, prior),
		Attempt:  e.state.Increment(operation, category),
		Message:  err.Error(),
	}

	switch outcome.Action {
	case models.ActionRetry:
		outcome.Recoverable = true
		outcome.Retry = true
	case models.ActionAbort:
		outcome.Message = cannotProceed(operation, err)
	default:
		e.runRoutine(ctx, operation, err, rc, &outcome)
	}

	metrics.RecordRecovery(category, outcome.Action)
	log.With("action", string(outcome.Action)).
		With("attempt", outcome.Attempt).
		With("recoverable", outcome.Recoverable).
		Warnf("recovering from error: %v", err)
	return outcome
}

// runRoutine invokes the category routine, converting failures and panics
// into an unrecoverable outcome.
func (e *Engine) runRoutine(ctx context.Context, operation string, cause error, rc Context, outcome *models.RecoveryOutcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome.Recoverable = false
			outcome.Fallback = nil
			outcome.Message = fmt.Sprintf("%s (recovery panicked: %v)", cannotProceed(operation, cause), r)
		}
	}()

	fn, ok := e.routines[outcome.Category]
	if !ok {
		// Nothing to substitute: continue with partial results.
		outcome.Recoverable = true
		return
	}
	fallback, err := fn(ctx, rc)
	if err != nil {
		outcome.Recoverable = false
		outcome.Message = fmt.Sprintf("%s (recovery failed: %v)", cannotProceed(operation, cause), err)
		return
	}
	outcome.Recoverable = true
	outcome.Fallback = fallback
}

func cannotProceed(operation string, err error) string {
	return fmt.Sprintf("cannot proceed with %s: %v", operation, err)
}

func sleep(ctx context.Context, d time.Duration) error {
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

// Error is returned when an orchestration error could not be recovered.
type Error struct {
	Operation string
	Err       error
	Outcome   models.RecoveryOutcome
}

// NewError wraps err with its unrecoverable outcome.
func NewError(operation string, err error, outcome models.RecoveryOutcome) *Error {
	return &Error{Operation: operation, Err: err, Outcome: outcome}
}

func (e *Error) Error() string {
	return cannotProceed(e.Operation, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as an expected outcome that Do returns to the caller
// without recovery.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do runs fn and routes its errors through the engine until it succeeds,
// recovers, or cannot proceed. Retries back off exponentially from
// Options.RetryBackoff. A recovered run returns the fallback when it has type
// T and the zero value otherwise, along with the outcome. An unrecoverable run
// returns *Error. Errors wrapped with Permanent are returned unwrapped together
// with fn's value.
func Do[T any](ctx context.Context, e *Engine, operation string, rc Context, fn func(context.Context) (T, error)) (T, *models.RecoveryOutcome, error) {
	var zero T
	if rc.Operation == nil {
		rc.Operation = func(ctx context.Context) (any, error) {
			return fn(ctx)
		}
	}

	for attempt := 0; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil, nil
		}
		var p *permanentError
		if errors.As(err, &p) {
			return v, nil, p.err
		}

		outcome := e.Handle(ctx, err, operation, rc)
		switch {
		case outcome.Retry:
			backoff := min(e.opts.RetryBackoff<<attempt, maxBackoff)
			if serr := e.opts.Sleep(ctx, backoff); serr != nil {
				return zero, &outcome, fmt.Errorf("%s: %w", operation, serr)
			}
		case !outcome.Recoverable:
			return zero, &outcome, NewError(operation, err, outcome)
		default:
			if fb, ok := outcome.Fallback.(T); ok {
				return fb, &outcome, nil
			}
			return zero, &outcome, nil
		}
	}
}
