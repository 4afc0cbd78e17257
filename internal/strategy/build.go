package strategy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"

	"github.com/ShayCichocki/bacardi/internal/buildlog"
	"github.com/ShayCichocki/bacardi/internal/buildtool"
	bexec "github.com/ShayCichocki/bacardi/internal/exec"
	"github.com/ShayCichocki/bacardi/internal/git"
	"github.com/ShayCichocki/bacardi/internal/recovery"
	"github.com/ShayCichocki/bacardi/pkg/models"
)

const workDirPrefix = "bacardi-build-"

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.CloneTimeout <= 0 {
		o.CloneTimeout = d.CloneTimeout
	}
	if o.BuildTimeout <= 0 {
		o.BuildTimeout = d.BuildTimeout
	}
	if o.CompileTimeout <= 0 {
		o.CompileTimeout = d.CompileTimeout
	}
	return o
}

// fromBuild runs step 2: clone into an isolated directory, build, and for
// Maven dependency resolution failures compile the sources directly. The
// directory is removed on every return path.
func (s *Selector) fromBuild(ctx context.Context, engine *recovery.Engine, repo models.RepoRef, tool models.BuildTool, opts Options, audit *models.AuditLog) (*models.BuildResult, error) {
	log := clog.FromContext(ctx)
	opts = opts.withDefaults()

	dir, err := os.MkdirTemp(opts.WorkDir, workDirPrefix)
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Warnf("removing work dir %s: %v", dir, err)
		}
	}()

	result := &models.BuildResult{
		Strategy: models.StrategyAutomated,
		Failures: []models.Failure{},
	}

	cloneDir := filepath.Join(dir, "repo")
	cloned, outcome, err := s.clone(ctx, engine, repo, cloneDir, opts.CloneTimeout)
	result.Recovery = outcome
	var timeoutErr *bexec.TimeoutError
	switch {
	case errors.As(err, &timeoutErr):
		audit.Record("clone", models.StepFail, timeoutErr.Error())
		result.Failures = []models.Failure{executionFailure(timeoutErr)}
		return result, nil
	case err != nil:
		audit.Record("clone", models.StepError, err.Error())
		return nil, err
	case cloned == "":
		msg := degradedMessage(outcome)
		audit.Record("clone", models.StepError, msg)
		return nil, fmt.Errorf("%s: %w: %s", repo.CacheKey(), models.ErrBuildDataUnavailable, msg)
	}
	if outcome != nil {
		audit.Record("clone", models.StepWarn, fmt.Sprintf("%s via %s fallback", repo.URL(), outcome.Category))
	} else {
		audit.Record("clone", models.StepPass, repo.URL())
	}

	if tool == "" {
		if tool, err = buildtool.Detect(cloned); err != nil {
			audit.Record("build", models.StepError, err.Error())
			return nil, fmt.Errorf("%s: %w", repo.CacheKey(), errors.Join(models.ErrBuildDataUnavailable, err))
		}
	}

	cmd, err := buildtool.BuildCommand(cloned, tool, opts.SkipTests)
	if err != nil {
		return nil, err
	}
	cmd.Timeout = opts.BuildTimeout
	log.Infof("building with %s", cmd)

	res, outcome, err := recovery.RunCommand(ctx, engine, "build", s.runner, cmd)
	if outcome != nil {
		result.Recovery = outcome
	}
	result.Logs = res.Output
	result.ToolVersion, _ = buildlog.ExtractToolVersion(res.Output)

	var exitErr *bexec.ExitError
	switch {
	case errors.As(err, &timeoutErr):
		audit.Record("build", models.StepFail, timeoutErr.Error())
		result.Failures = []models.Failure{executionFailure(timeoutErr)}
		return result, nil
	case errors.As(err, &exitErr):
		audit.Record("build", models.StepFail, fmt.Sprintf("exit status %d", exitErr.Result.ExitCode))
	case err != nil:
		audit.Record("build", models.StepError, err.Error())
		return nil, err
	case outcome != nil && outcome.Fallback == nil:
		msg := degradedMessage(outcome)
		audit.Record("build", models.StepError, msg)
		return nil, fmt.Errorf("%s: %w: %s", repo.CacheKey(), models.ErrBuildDataUnavailable, msg)
	default:
		result.Success = true
		audit.Record("build", models.StepPass, "")
	}
	result.Failures = relativize(s.parser.Parse(res.Output, tool), cloned)

	if tool == models.BuildToolMaven && result.HasFailureType(models.FailureDependencyResolution) {
		extra := s.directCompile(ctx, engine, cloned, filepath.Join(dir, "javac"), opts.CompileTimeout, audit)
		result.Failures = appendNew(result.Failures, extra)
	}
	return result, nil
}

// clone checks out the revision into dir and returns the directory holding
// the sources. A timeout is returned as *bexec.TimeoutError.
func (s *Selector) clone(ctx context.Context, engine *recovery.Engine, repo models.RepoRef, dir string, timeout time.Duration) (string, *models.RecoveryOutcome, error) {
	opts := git.CloneOptions{
		URL:    repo.URL(),
		Dir:    dir,
		Ref:    repo.Ref,
		Commit: repo.Commit,
	}
	rc := recovery.Context{Clone: opts}
	return recovery.Do(ctx, engine, "clone", rc, func(ctx context.Context) (string, error) {
		if err := os.RemoveAll(dir); err != nil {
			return "", fmt.Errorf("clear clone dir: %w", err)
		}
		cloneCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		commit, err := s.cloner.Clone(cloneCtx, opts)
		if err != nil {
			if ctx.Err() == nil && errors.Is(cloneCtx.Err(), context.DeadlineExceeded) {
				return "", recovery.Permanent(&bexec.TimeoutError{Command: "git clone " + repo.URL(), Timeout: timeout})
			}
			return "", err
		}
		clog.FromContext(ctx).Infof("cloned %s at %s", repo.URL(), commit)
		return dir, nil
	})
}

// directCompile compiles the main sources with bare javac to surface errors
// that a dependency resolution failure hides. It is best effort: problems
// are audited and yield no failures.
func (s *Selector) directCompile(ctx context.Context, engine *recovery.Engine, srcDir, outDir string, timeout time.Duration, audit *models.AuditLog) []models.Failure {
	files, err := buildtool.SourceFiles(srcDir)
	if err != nil {
		audit.Record("direct_compile", models.StepWarn, err.Error())
		return nil
	}
	if len(files) == 0 {
		audit.Record("direct_compile", models.StepSkip, "no main sources")
		return nil
	}

	cmd, err := buildtool.JavacCommand(srcDir, outDir, files)
	if err != nil {
		audit.Record("direct_compile", models.StepWarn, err.Error())
		return nil
	}
	cmd.Timeout = timeout
	clog.FromContext(ctx).Infof("compiling %d sources directly to look past dependency resolution", len(files))

	res, _, err := recovery.RunCommand(ctx, engine, "direct_compile", s.runner, cmd)
	var exitErr *bexec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		audit.Record("direct_compile", models.StepWarn, err.Error())
		return nil
	}
	failures := relativize(s.parser.Parse(res.Output, ""), srcDir)
	audit.Record("direct_compile", models.StepPass, fmt.Sprintf("%d diagnostics", len(failures)))
	return failures
}

func degradedMessage(outcome *models.RecoveryOutcome) string {
	if outcome == nil || outcome.Message == "" {
		return "step produced no output"
	}
	return outcome.Message
}

// executionFailure is the single failure reported for a clone or build timeout.
func executionFailure(err *bexec.TimeoutError) models.Failure {
	return models.Failure{
		Type:       models.FailureBuildExecution,
		Message:    err.Error(),
		File:       models.UnknownFile,
		Confidence: 100,
		Severity:   models.SeverityHigh,
	}
}

// relativize rewrites file paths under root as root-relative paths, since
// root is removed once the result is returned.
func relativize(failures []models.Failure, root string) []models.Failure {
	prefix := filepath.ToSlash(root) + "/"
	for i := range failures {
		if rel, ok := strings.CutPrefix(filepath.ToSlash(failures[i].File), prefix); ok {
			failures[i].File = rel
		}
	}
	return failures
}

type failureKey struct {
	typ  models.FailureType
	file string
	line int
}

// appendNew appends the failures of extra that the build did not already
// report at the same type and location.
func appendNew(failures, extra []models.Failure) []models.Failure {
	seen := make(map[failureKey]bool, len(failures))
	for _, f := range failures {
		seen[failureKey{f.Type, f.File, f.Line}] = true
	}
	for _, f := range extra {
		if !seen[failureKey{f.Type, f.File, f.Line}] {
			failures = append(failures, f)
		}
	}
	return failures
}
