// Package strategy obtains a build result for a repository revision, either
// from an existing CI run or from a fresh build in an isolated directory.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chainguard-dev/clog"

	"github.com/ShayCichocki/bacardi/internal/buildlog"
	"github.com/ShayCichocki/bacardi/internal/ci"
	bexec "github.com/ShayCichocki/bacardi/internal/exec"
	"github.com/ShayCichocki/bacardi/internal/git"
	"github.com/ShayCichocki/bacardi/internal/metrics"
	"github.com/ShayCichocki/bacardi/internal/recovery"
	"github.com/ShayCichocki/bacardi/pkg/models"
)

// Cloner checks out a repository revision into a directory.
type Cloner interface {
	Clone(ctx context.Context, opts git.CloneOptions) (string, error)
}

// ResultStore caches build results read from CI.
type ResultStore interface {
	recovery.ResultCache
	Put(ctx context.Context, key string, result *models.BuildResult) error
}

// Options controls one acquisition.
type Options struct {
	// SkipTests selects the build variant that does not run tests.
	SkipTests bool
	// NoCI skips the CI path.
	NoCI bool
	// NoBuild disables the automated build path.
	NoBuild bool
	// WorkDir is the parent of the isolated build directory; empty uses the
	// system temp directory.
	WorkDir        string
	CloneTimeout   time.Duration
	BuildTimeout   time.Duration
	CompileTimeout time.Duration
}

// DefaultOptions returns the standard acquisition options.
func DefaultOptions() Options {
	return Options{
		CloneTimeout:   10 * time.Minute,
		BuildTimeout:   30 * time.Minute,
		CompileTimeout: 10 * time.Minute,
	}
}

// Config wires a Selector to its collaborators. CI and Store are optional.
type Config struct {
	CI       ci.Provider
	Cloner   Cloner
	Runner   bexec.CommandRunner
	Parser   *buildlog.Parser
	Store    ResultStore
	Recovery recovery.Options
}

// Selector implements the two-source build acquisition.
type Selector struct {
	ci       ci.Provider
	cloner   Cloner
	runner   bexec.CommandRunner
	parser   *buildlog.Parser
	store    ResultStore
	recovery recovery.Options
}

// New creates a Selector. The store backs the cached-result recovery routine
// and a cloner with a ShallowClone method backs the re-clone routine.
func New(cfg Config) *Selector {
	if cfg.Parser == nil {
		cfg.Parser = buildlog.New()
	}
	if cfg.Recovery.Cache == nil && cfg.Store != nil {
		cfg.Recovery.Cache = cfg.Store
	}
	if sc, ok := cfg.Cloner.(recovery.ShallowCloner); ok && cfg.Recovery.Cloner == nil {
		cfg.Recovery.Cloner = sc
	}
	return &Selector{
		ci:       cfg.CI,
		cloner:   cfg.Cloner,
		runner:   cfg.Runner,
		parser:   cfg.Parser,
		store:    cfg.Store,
		recovery: cfg.Recovery,
	}
}

// Acquire returns a build result for repo. It reads the most relevant
// completed CI run when there is one and otherwise clones and builds the
// repository. Build failures and timeouts are reported in the result; an
// error means no build data could be obtained at all.
func (s *Selector) Acquire(ctx context.Context, repo models.RepoRef, tool models.BuildTool, opts Options) (*models.BuildResult, error) {
	log := clog.FromContext(ctx).With("repo", repo.CacheKey()).With("tool", string(tool))
	ctx = clog.WithLogger(ctx, log)

	// One engine per acquisition keeps retry counters from leaking between
	// concurrent invocations.
	engine := recovery.New(s.recovery)
	var audit models.AuditLog
	var degraded *models.RecoveryOutcome

	switch {
	case opts.NoCI:
		audit.Record("ci", models.StepSkip, "CI lookup disabled")
	case s.ci == nil:
		audit.Record("ci", models.StepSkip, "no CI provider configured")
	default:
		result, outcome, err := s.fromCI(ctx, engine, repo, tool)
		switch {
		case err != nil && outcome != nil && outcome.Action == models.ActionAbort:
			audit.Record("ci", models.StepError, err.Error())
			return nil, err
		case err != nil:
			log.Warnf("CI lookup failed, falling back to a fresh build: %v", err)
			audit.Record("ci", models.StepError, err.Error())
			degraded = outcome
		case result != nil:
			result.Recovery = outcome
			audit.Merge(result.Audit)
			result.Audit = audit
			s.finish(ctx, repo, result)
			return result, nil
		case outcome != nil:
			audit.Record("ci", models.StepWarn, "CI lookup degraded: "+outcome.Message)
			degraded = outcome
		default:
			audit.Record("ci", models.StepSkip, "no completed CI runs")
		}
	}

	if opts.NoBuild || s.cloner == nil || s.runner == nil {
		return nil, fmt.Errorf("%s: %w", repo.CacheKey(), models.ErrBuildDataUnavailable)
	}

	result, err := s.fromBuild(ctx, engine, repo, tool, opts, &audit)
	if err != nil {
		return nil, err
	}
	if result.Recovery == nil {
		result.Recovery = degraded
	}
	result.Audit = audit
	s.finish(ctx, repo, result)
	return result, nil
}

// fromCI runs step 1. It returns a nil result without error when the
// revision has no completed runs.
func (s *Selector) fromCI(ctx context.Context, engine *recovery.Engine, repo models.RepoRef, tool models.BuildTool) (*models.BuildResult, *models.RecoveryOutcome, error) {
	rc := recovery.Context{CacheKey: repo.CacheKey()}
	result, outcome, err := recovery.Do(ctx, engine, "ci_lookup", rc, func(ctx context.Context) (*models.BuildResult, error) {
		runs, err := s.ci.CompletedRuns(ctx, repo)
		if err != nil {
			return nil, err
		}
		run, ok := ci.SelectRun(runs, tool)
		if !ok {
			return nil, recovery.Permanent(ci.ErrNoRuns)
		}
		clog.FromContext(ctx).Infof("using CI run %d (%s, %s)", run.ID, run.Name, run.Conclusion)

		logs, err := s.ci.RunLog(ctx, repo, run)
		if err != nil {
			return nil, err
		}
		r := &models.BuildResult{
			Strategy: models.StrategyCI,
			Success:  run.Success(),
			Logs:     logs,
			Failures: s.parser.Parse(logs, tool),
			RunID:    run.ID,
			RunName:  run.Name,
		}
		r.ToolVersion, _ = buildlog.ExtractToolVersion(logs)
		r.Audit.Record("ci", models.StepPass, fmt.Sprintf("run %d %q concluded %s", run.ID, run.Name, run.Conclusion))
		return r, nil
	})
	if errors.Is(err, ci.ErrNoRuns) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, outcome, err
	}
	if result != nil && !result.Cached && s.store != nil {
		if perr := s.store.Put(ctx, repo.CacheKey(), result); perr != nil {
			clog.FromContext(ctx).Warnf("caching CI result: %v", perr)
		}
	}
	if result != nil && result.Cached {
		result.Audit.Record("ci", models.StepWarn, "served cached result")
	}
	return result, outcome, nil
}

func (s *Selector) finish(ctx context.Context, repo models.RepoRef, result *models.BuildResult) {
	metrics.RecordAcquisition(result.Strategy, result.Success)
	metrics.RecordFailures(result.Failures)
	clog.FromContext(ctx).With("strategy", string(result.Strategy)).
		With("success", result.Success).
		With("failures", len(result.Failures)).
		Infof("acquired build result for %s", repo.CacheKey())
}
