package validation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"

	"github.com/ShayCichocki/bacardi/internal/buildlog"
	"github.com/ShayCichocki/bacardi/internal/buildtool"
	"github.com/ShayCichocki/bacardi/internal/depdiff"
	bexec "github.com/ShayCichocki/bacardi/internal/exec"
	"github.com/ShayCichocki/bacardi/internal/metrics"
	"github.com/ShayCichocki/bacardi/internal/recovery"
	"github.com/ShayCichocki/bacardi/pkg/models"
)

// Thresholds are the test failure rates the gate works with.
type Thresholds struct {
	// AcceptFailureRate is the rate below which test failures are not inspected.
	AcceptFailureRate float64
	// MaxFailureRate is the rate a regular fix must stay below.
	MaxFailureRate float64
	// CriticalMaxFailureRate is the rate a critical fix must stay below.
	CriticalMaxFailureRate float64
}

// DefaultThresholds returns the standard gate thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		AcceptFailureRate:      0.10,
		MaxFailureRate:         0.20,
		CriticalMaxFailureRate: 0.05,
	}
}

// Recorder stores gate results.
type Recorder interface {
	RecordValidation(ctx context.Context, repoPath string, result *models.ValidationResult) (string, error)
}

// Config configures a Validator.
type Config struct {
	// Runner executes build tool commands.
	Runner bexec.CommandRunner
	// Parser extracts failures from a failed build. Defaults to buildlog's rules.
	Parser *buildlog.Parser
	// Retry bounds the clean build attempts.
	Retry RetryConfig
	// Thresholds drive the test step and the decision.
	Thresholds Thresholds
	// BuildTimeout bounds each build, analysis and quality command.
	BuildTimeout time.Duration
	// TestTimeout bounds the test run.
	TestTimeout time.Duration
	// Recovery configures the engine that handles orchestration errors.
	Recovery recovery.Options
	// Recorder, when set, stores every result.
	Recorder Recorder
	// Sleep replaces the wait between build attempts. Tests set it.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultConfig returns the standard configuration without a runner.
func DefaultConfig() Config {
	return Config{
		Retry:        DefaultRetryConfig(),
		Thresholds:   DefaultThresholds(),
		BuildTimeout: 30 * time.Minute,
		TestTimeout:  30 * time.Minute,
		Recovery:     recovery.DefaultOptions(),
	}
}

// Validator runs the gate checks against a local checkout.
type Validator struct {
	runner     bexec.CommandRunner
	parser     *buildlog.Parser
	retry      *RetryHandler
	thresholds Thresholds
	recovery   recovery.Options
	recorder   Recorder

	buildTimeout time.Duration
	testTimeout  time.Duration
}

// NewValidator creates a Validator.
func NewValidator(cfg Config) *Validator {
	parser := cfg.Parser
	if parser == nil {
		parser = buildlog.New()
	}
	runner := cfg.Runner
	if runner == nil {
		runner = bexec.NewRunner()
	}
	return &Validator{
		runner:       runner,
		parser:       parser,
		retry:        NewRetryHandler(cfg.Retry, cfg.Sleep),
		thresholds:   cfg.Thresholds,
		recovery:     cfg.Recovery,
		recorder:     cfg.Recorder,
		buildTimeout: cfg.BuildTimeout,
		testTimeout:  cfg.TestTimeout,
	}
}

// run carries the state of one Validate call.
type run struct {
	repoPath string
	tool     models.BuildTool
	fix      models.FixContext
	engine   *recovery.Engine
	result   *models.ValidationResult
}

// Validate runs the gate against the checkout at repoPath. An empty tool is
// detected from the build files. Gate rejections are reported through the
// result; the error is only set when ctx is done.
func (v *Validator) Validate(ctx context.Context, repoPath string, tool models.BuildTool, fix models.FixContext) (*models.ValidationResult, error) {
	log := clog.FromContext(ctx).With("repo", repoPath)
	ctx = clog.WithLogger(ctx, log)

	r := &run{
		repoPath: repoPath,
		tool:     tool,
		fix:      fix,
		engine:   recovery.New(v.recovery),
		result: &models.ValidationResult{
			Warnings: []string{},
			Errors:   []string{},
		},
	}

	if r.tool == "" {
		detected, err := buildtool.Detect(repoPath)
		if err != nil {
			r.result.AddError(err.Error())
			r.result.Audit.Record("build", models.StepError, err.Error())
			return v.finish(ctx, r), nil
		}
		r.tool = detected
	}
	log.Infof("validating %s project", r.tool)

	// Step 1: clean build
	if !v.runBuild(ctx, r) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return v.finish(ctx, r), nil
	}

	// Step 2: tests
	v.runTests(ctx, r)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Steps 3 and 4 never block
	v.runDependencyAnalysis(ctx, r)
	v.runQualityChecks(ctx, r)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return v.finish(ctx, r), nil
}

// finish applies the decision, records the result and returns it.
func (v *Validator) finish(ctx context.Context, r *run) *models.ValidationResult {
	result := r.result
	result.ShouldCreatePR = Decide(result, r.fix, v.thresholds)

	status, msg := models.StepFail, "pull request rejected"
	if result.ShouldCreatePR {
		status, msg = models.StepPass, "pull request approved"
	}
	result.Audit.Record("decision", status, msg)

	metrics.RecordGateDecision(result.ShouldCreatePR)
	clog.FromContext(ctx).With("should_create_pr", result.ShouldCreatePR).
		With("failure_rate", result.FailureRate).
		Infof("gate decision: %s", msg)

	if v.recorder != nil {
		id, err := v.recorder.RecordValidation(ctx, r.repoPath, result)
		if err != nil {
			clog.FromContext(ctx).Warnf("recording validation: %v", err)
		} else {
			clog.FromContext(ctx).Debugf("recorded validation %s", id)
		}
	}
	return result
}

// command builds the command line for step with the given timeout.
func (r *run) command(step buildtool.Step, timeout time.Duration) (bexec.Command, error) {
	cmd, err := buildtool.Command(r.repoPath, r.tool, step)
	if err != nil {
		return bexec.Command{}, err
	}
	cmd.Timeout = timeout
	return cmd, nil
}

// runBuild runs the clean build without tests, retrying failed builds.
func (v *Validator) runBuild(ctx context.Context, r *run) bool {
	log := clog.FromContext(ctx)
	cmd, err := r.command(buildtool.StepBuildSkipTests, v.buildTimeout)
	if err != nil {
		r.result.AddError(err.Error())
		r.result.Audit.Record("build", models.StepError, err.Error())
		return false
	}

	var res bexec.Result
	var outcome *models.RecoveryOutcome
	attempt := 1
	for ; ; attempt++ {
		log.Infof("build attempt %d/%d: %s", attempt, v.retry.MaxAttempts(), cmd)
		res, outcome, err = recovery.RunCommand(ctx, r.engine, "build", v.runner, cmd)
		if outcome != nil {
			r.result.Recovery = outcome
		}
		if !retryable(err) || !v.retry.ShouldRetry(attempt) {
			break
		}
		log.Warnf("build attempt %d failed: %v", attempt, err)
		if werr := v.retry.Wait(ctx); werr != nil {
			err = werr
			break
		}
	}

	switch {
	case err == nil && outcome != nil && outcome.Fallback == nil:
		msg := "build unavailable: " + outcome.Message
		r.result.AddError(msg)
		r.result.Audit.Record("build", models.StepError, msg)
		return false
	case err == nil:
		r.result.BuildPassed = true
		r.result.Audit.Record("build", models.StepPass, fmt.Sprintf("attempt %d", attempt))
		return true
	case retryable(err):
		r.result.Failures = v.parser.Parse(res.Output, r.tool)
		metrics.RecordFailures(r.result.Failures)
		msg := fmt.Sprintf("build failed after %d attempt(s): %s", attempt, buildFailureSummary(err, res.Output))
		r.result.AddError(msg)
		r.result.Audit.Record("build", models.StepFail, msg)
		return false
	default:
		r.result.AddError(err.Error())
		r.result.Audit.Record("build", models.StepError, err.Error())
		return false
	}
}

// retryable reports whether err is a build that ran and failed.
func retryable(err error) bool {
	var exitErr *bexec.ExitError
	var timeoutErr *bexec.TimeoutError
	return errors.As(err, &exitErr) || errors.As(err, &timeoutErr)
}

// buildFailureMarkers are reported verbatim so the decision can see them.
var buildFailureMarkers = []string{"BUILD FAILED", "BUILD FAILURE", "ClassNotFoundException", "NoClassDefFoundError"}

func buildFailureSummary(err error, output string) string {
	var found []string
	for _, m := range buildFailureMarkers {
		if strings.Contains(output, m) {
			found = append(found, m)
		}
	}
	var timeoutErr *bexec.TimeoutError
	if errors.As(err, &timeoutErr) {
		found = append([]string{timeoutErr.Error()}, found...)
	} else {
		var exitErr *bexec.ExitError
		if errors.As(err, &exitErr) {
			found = append([]string{fmt.Sprintf("exit status %d", exitErr.Result.ExitCode)}, found...)
		}
	}
	return strings.Join(found, ", ")
}

// dependencySignature is a test output pattern that points at a broken
// dependency rather than a flaky or unrelated test.
type dependencySignature struct {
	Name    string
	Pattern *regexp.Regexp
}

var dependencySignatures = []dependencySignature{
	{Name: "ClassNotFoundException", Pattern: regexp.MustCompile(`ClassNotFoundException`)},
	{Name: "NoClassDefFoundError", Pattern: regexp.MustCompile(`NoClassDefFoundError`)},
	{Name: "cannot find symbol", Pattern: regexp.MustCompile(`cannot find symbol`)},
	{Name: "package does not exist", Pattern: regexp.MustCompile(`package \S+ does not exist|package does not exist`)},
	{Name: "incompatible types", Pattern: regexp.MustCompile(`incompatible types`)},
	{Name: "method cannot be applied", Pattern: regexp.MustCompile(`method \S+ in \S+ \S+ cannot be applied|method cannot be applied`)},
	{Name: "deprecated API", Pattern: regexp.MustCompile(`deprecated API`)},
}

// DependencySignatures returns the names of the dependency failure
// signatures found in output, in table order.
func DependencySignatures(output string) []string {
	var found []string
	for _, s := range dependencySignatures {
		if s.Pattern.MatchString(output) {
			found = append(found, s.Name)
		}
	}
	return found
}

// runTests runs the test suite and judges it by failure rate and signatures.
func (v *Validator) runTests(ctx context.Context, r *run) {
	log := clog.FromContext(ctx)
	cmd, err := r.command(buildtool.StepTest, v.testTimeout)
	if err != nil {
		r.result.AddError(err.Error())
		r.result.Audit.Record("tests", models.StepError, err.Error())
		return
	}

	log.Infof("running tests: %s", cmd)
	res, outcome, err := recovery.RunCommand(ctx, r.engine, "tests", v.runner, cmd)
	if outcome != nil {
		r.result.Recovery = outcome
	}

	var timeoutErr *bexec.TimeoutError
	switch {
	case errors.As(err, &timeoutErr):
		r.result.AddError(timeoutErr.Error())
		r.result.Audit.Record("tests", models.StepFail, timeoutErr.Error())
		return
	case err != nil && !retryable(err):
		r.result.AddError(err.Error())
		r.result.Audit.Record("tests", models.StepError, err.Error())
		return
	case err == nil && outcome != nil && outcome.Fallback == nil:
		msg := "test run unavailable: " + outcome.Message
		r.result.AddError(msg)
		r.result.Audit.Record("tests", models.StepError, msg)
		return
	}

	summary, ok := buildtool.ParseTestSummary(r.tool, res.Output)
	if !ok {
		if err != nil {
			msg := "test run failed without a summary"
			if found := DependencySignatures(res.Output); len(found) > 0 {
				msg += ": " + strings.Join(found, ", ")
			}
			r.result.AddError(msg)
			r.result.Audit.Record("tests", models.StepFail, msg)
			return
		}
		r.result.TestsPassed = true
		r.result.AddWarning("no test summary found in test output")
		r.result.Audit.Record("tests", models.StepWarn, "no test summary")
		return
	}

	r.result.TestResults = summary
	r.result.FailureRate = summary.FailureRate()
	counts := fmt.Sprintf("%d/%d failed (%.1f%%)", summary.Failed, summary.Total, r.result.FailureRate*100)

	if r.result.FailureRate < v.thresholds.AcceptFailureRate {
		r.result.TestsPassed = true
		if summary.Failed > 0 {
			r.result.AddWarning("some tests failed within the accepted rate: " + counts)
		}
		r.result.Audit.Record("tests", models.StepPass, counts)
		return
	}

	if found := DependencySignatures(res.Output); len(found) > 0 {
		msg := fmt.Sprintf("test failures point at dependency changes (%s): %s", strings.Join(found, ", "), counts)
		r.result.AddError(msg)
		r.result.Audit.Record("tests", models.StepFail, msg)
		return
	}

	r.result.TestsPassed = true
	r.result.AddWarning("test failure rate is high but no dependency-related failures were found: " + counts)
	r.result.Audit.Record("tests", models.StepWarn, counts)
}

var undeclaredPattern = regexp.MustCompile(`(?m)^\[WARNING\] (Used undeclared|Unused declared) dependencies found:`)

// runDependencyAnalysis reports dependency hygiene problems as warnings.
func (v *Validator) runDependencyAnalysis(ctx context.Context, r *run) {
	if depdiff.OverallRisk(r.fix.Changes) == models.RiskHigh {
		r.result.AddWarning("fix includes high-risk dependency changes")
	}

	out, ok := v.bestEffort(ctx, r, "dependency_analysis", buildtool.StepDependencies)
	if !ok {
		return
	}
	var notes []string
	for _, m := range undeclaredPattern.FindAllStringSubmatch(out, -1) {
		notes = append(notes, strings.ToLower(m[1])+" dependencies found")
	}
	for _, n := range notes {
		r.result.AddWarning("dependency analysis: " + n)
	}
	if len(notes) > 0 {
		r.result.Audit.Record("dependency_analysis", models.StepWarn, strings.Join(notes, "; "))
		return
	}
	r.result.Audit.Record("dependency_analysis", models.StepPass, "")
}

// runQualityChecks runs the project's static checks.
func (v *Validator) runQualityChecks(ctx context.Context, r *run) {
	if _, ok := v.bestEffort(ctx, r, "quality", buildtool.StepQuality); ok {
		r.result.Audit.Record("quality", models.StepPass, "")
	}
}

// bestEffort runs step and converts every problem into a warning. It returns
// the output and whether the step succeeded.
func (v *Validator) bestEffort(ctx context.Context, r *run, name string, step buildtool.Step) (string, bool) {
	cmd, err := r.command(step, v.buildTimeout)
	if err != nil {
		v.degrade(ctx, r, name, err.Error())
		return "", false
	}
	res, outcome, err := recovery.RunCommand(ctx, r.engine, name, v.runner, cmd)
	switch {
	case err != nil:
		v.degrade(ctx, r, name, err.Error())
		return res.Output, false
	case outcome != nil && outcome.Fallback == nil:
		v.degrade(ctx, r, name, outcome.Message)
		return "", false
	}
	return res.Output, true
}

func (v *Validator) degrade(ctx context.Context, r *run, name, msg string) {
	clog.FromContext(ctx).Warnf("%s skipped: %s", name, msg)
	r.result.AddWarning(fmt.Sprintf("%s did not complete: %s", strings.ReplaceAll(name, "_", " "), msg))
	r.result.Audit.Record(name, models.StepWarn, msg)
}

// blockingMarkers in a recorded error reject the pull request outright.
var blockingMarkers = []string{"ClassNotFoundException", "NoClassDefFoundError", "BUILD FAILED"}

// Decide reports whether a pull request should be created for result: the
// build and tests passed, no recorded error carries a blocking marker, and
// the failure rate is below the limit for the fix's criticality.
func Decide(result *models.ValidationResult, fix models.FixContext, t Thresholds) bool {
	if result == nil || !result.BuildPassed || !result.TestsPassed {
		return false
	}
	for _, e := range result.Errors {
		for _, m := range blockingMarkers {
			if strings.Contains(e, m) {
				return false
			}
		}
	}
	limit := t.MaxFailureRate
	if fix.IsCritical {
		limit = t.CriticalMaxFailureRate
	}
	return result.FailureRate < limit
}
