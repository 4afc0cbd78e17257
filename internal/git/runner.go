package git

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	bexec "github.com/ShayCichocki/bacardi/internal/exec"
)

// defaultTimeout bounds every local git invocation.
const defaultTimeout = 2 * time.Minute

// ExecRunner implements Runner by shelling out to git.
type ExecRunner struct {
	repoPath string
	exec     bexec.CommandRunner
}

// NewRunner creates a new git runner for the repository at the given path.
func NewRunner(repoPath string) *ExecRunner {
	return NewRunnerWith(repoPath, bexec.NewRunner())
}

// NewRunnerWith creates a git runner that launches git through r.
func NewRunnerWith(repoPath string, r bexec.CommandRunner) *ExecRunner {
	return &ExecRunner{repoPath: repoPath, exec: r}
}

// run executes a git command and returns its trimmed output.
func (r *ExecRunner) run(ctx context.Context, args ...string) (string, error) {
	res, err := r.exec.Run(ctx, bexec.Command{
		Name:    "git",
		Args:    args,
		Dir:     r.repoPath,
		Timeout: defaultTimeout,
	})
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(res.Stderr))
	}
	return strings.TrimSpace(res.Stdout), nil
}

// runRaw is run without trimming, for content that must be byte exact.
func (r *ExecRunner) runRaw(ctx context.Context, args ...string) (string, error) {
	res, err := r.exec.Run(ctx, bexec.Command{
		Name:    "git",
		Args:    args,
		Dir:     r.repoPath,
		Timeout: defaultTimeout,
	})
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(res.Stderr))
	}
	return res.Stdout, nil
}

// Diff returns the diff between the working tree and the given base.
func (r *ExecRunner) Diff(ctx context.Context, base string, paths ...string) (string, error) {
	return r.runRaw(ctx, withPaths([]string{"diff", base}, paths)...)
}

// DiffBetween returns the diff between two refs.
func (r *ExecRunner) DiffBetween(ctx context.Context, ref1, ref2 string, paths ...string) (string, error) {
	return r.runRaw(ctx, withPaths([]string{"diff", ref1, ref2}, paths)...)
}

// ChangedFilesBetween returns files changed between two refs.
func (r *ExecRunner) ChangedFilesBetween(ctx context.Context, ref1, ref2 string) ([]string, error) {
	out, err := r.run(ctx, "diff", "--name-only", ref1, ref2)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// ShowFile returns the contents of a file at a specific ref.
func (r *ExecRunner) ShowFile(ctx context.Context, ref, path string) (string, error) {
	return r.runRaw(ctx, "show", ref+":"+path)
}

// HeadCommit returns the full hash of HEAD.
func (r *ExecRunner) HeadCommit(ctx context.Context) (string, error) {
	out, err := r.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", errors.New("git rev-parse HEAD: empty output")
	}
	return out, nil
}

func withPaths(args, paths []string) []string {
	if len(paths) == 0 {
		return args
	}
	return append(append(args, "--"), paths...)
}

// Verify ExecRunner implements Runner at compile time.
var _ Runner = (*ExecRunner)(nil)
