// Package ci reads completed runs and their logs from a CI system.
package ci

import (
	"cmp"
	"context"
	"errors"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ShayCichocki/bacardi/pkg/models"
)

// ErrNoRuns is returned when a repository revision has no completed CI runs.
var ErrNoRuns = errors.New("no completed CI runs")

// Run is one completed CI workflow run.
type Run struct {
	ID         int64     `json:"id" yaml:"id"`
	Name       string    `json:"name" yaml:"name"`
	Conclusion string    `json:"conclusion" yaml:"conclusion"`
	HeadSHA    string    `json:"head_sha,omitempty" yaml:"head_sha,omitempty"`
	Branch     string    `json:"branch,omitempty" yaml:"branch,omitempty"`
	URL        string    `json:"url,omitempty" yaml:"url,omitempty"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`
}

// Success reports whether the run concluded successfully.
func (r Run) Success() bool {
	return r.Conclusion == "success"
}

// Provider defines the interface for querying a CI system.
type Provider interface {
	// CompletedRuns lists completed runs for the revision, most recent first.
	CompletedRuns(ctx context.Context, repo models.RepoRef) ([]Run, error)
	// RunLog returns the run's combined log as cleaned text.
	RunLog(ctx context.Context, repo models.RepoRef, run Run) (string, error)
}

// buildKeywordPattern matches build keywords at the start of a word, so
// "Tests" and "Building" count but "Specification" does not. "ci" must be a
// whole word.
var buildKeywordPattern = regexp.MustCompile(`\b(?:build|test|compile|verify|java|maven|gradle)|\bci\b`)

// IsBuildRun reports whether the run name suggests it builds or tests the project.
func IsBuildRun(name string, tool models.BuildTool) bool {
	lower := strings.ToLower(name)
	if tool != "" && strings.Contains(lower, string(tool)) {
		return true
	}
	return buildKeywordPattern.MatchString(lower)
}

// SelectRun picks the most recent run whose name looks like a build, falling
// back to the most recent run of any kind.
func SelectRun(runs []Run, tool models.BuildTool) (Run, bool) {
	if len(runs) == 0 {
		return Run{}, false
	}
	sorted := slices.Clone(runs)
	slices.SortStableFunc(sorted, func(a, b Run) int {
		return cmp.Compare(b.FinishedAt.UnixNano(), a.FinishedAt.UnixNano())
	})
	for _, r := range sorted {
		if IsBuildRun(r.Name, tool) {
			return r, true
		}
	}
	return sorted[0], true
}
