package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrBuildDataUnavailable is returned when neither CI output nor a fresh build
// can be obtained for a repository.
var ErrBuildDataUnavailable = errors.New("no build data available")

// BuildTool identifies the Java build system of a project.
type BuildTool string

const (
	BuildToolMaven  BuildTool = "maven"
	BuildToolGradle BuildTool = "gradle"
)

// Valid returns true if the tool is a known value.
func (t BuildTool) Valid() bool {
	return t == BuildToolMaven || t == BuildToolGradle
}

// ParseBuildTool converts user input ("mvn", "Maven", "gradle") to a BuildTool.
func ParseBuildTool(s string) (BuildTool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "maven", "mvn":
		return BuildToolMaven, nil
	case "gradle":
		return BuildToolGradle, nil
	default:
		return "", fmt.Errorf("unknown build tool %q", s)
	}
}

// RepoRef identifies the repository revision a build is acquired for.
type RepoRef struct {
	// Owner and Name identify the hosted repository (owner/name).
	Owner string `json:"owner" yaml:"owner"`
	Name  string `json:"name" yaml:"name"`
	// Ref is the branch the change lives on.
	Ref string `json:"ref,omitempty" yaml:"ref,omitempty"`
	// Commit is the exact revision, when known.
	Commit string `json:"commit,omitempty" yaml:"commit,omitempty"`
	// CloneURL overrides the default https://github.com/owner/name URL.
	CloneURL string `json:"clone_url,omitempty" yaml:"clone_url,omitempty"`
}

// FullName returns owner/name.
func (r RepoRef) FullName() string {
	return r.Owner + "/" + r.Name
}

// URL returns the clone URL for the repository.
func (r RepoRef) URL() string {
	if r.CloneURL != "" {
		return r.CloneURL
	}
	return fmt.Sprintf("https://github.com/%s/%s", r.Owner, r.Name)
}

// CacheKey identifies the revision for result caching.
func (r RepoRef) CacheKey() string {
	rev := r.Commit
	if rev == "" {
		rev = r.Ref
	}
	return r.FullName() + "@" + rev
}

// ParseRepoRef parses "owner/name" or "owner/name@ref".
func ParseRepoRef(s string) (RepoRef, error) {
	var ref RepoRef
	name, rev, _ := strings.Cut(strings.TrimSpace(s), "@")
	owner, repo, ok := strings.Cut(name, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return ref, fmt.Errorf("invalid repository %q: expected owner/name", s)
	}
	ref.Owner = owner
	ref.Name = strings.TrimSuffix(repo, ".git")
	ref.Ref = rev
	return ref, nil
}

// BuildStrategy names the source of a build result.
type BuildStrategy string

const (
	// StrategyCI means the result was read from an existing CI run.
	StrategyCI BuildStrategy = "ci_cd"
	// StrategyAutomated means the result comes from a fresh isolated build.
	StrategyAutomated BuildStrategy = "automated_build"
)

// BuildResult is the outcome of acquiring a build for a repository revision.
type BuildResult struct {
	Strategy BuildStrategy `json:"strategy" yaml:"strategy"`
	Success  bool          `json:"success" yaml:"success"`
	Logs     string        `json:"logs,omitempty" yaml:"logs,omitempty"`
	Failures []Failure     `json:"failures" yaml:"failures"`
	// ToolVersion is the build tool version found in the logs, or "".
	ToolVersion string `json:"tool_version,omitempty" yaml:"tool_version,omitempty"`
	// RunID is the CI run the result was read from.
	RunID int64 `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	// RunName is the CI run's workflow name.
	RunName string `json:"run_name,omitempty" yaml:"run_name,omitempty"`
	// Cached is set when the result was served from the result cache.
	Cached bool `json:"cached,omitempty" yaml:"cached,omitempty"`
	// Recovery carries the outcome when an orchestration error was absorbed.
	Recovery *RecoveryOutcome `json:"recovery,omitempty" yaml:"recovery,omitempty"`
	// Audit records the steps taken to acquire the result.
	Audit AuditLog `json:"audit" yaml:"audit"`
}

// HasFailureType reports whether the result contains a failure of type t.
func (r *BuildResult) HasFailureType(t FailureType) bool {
	return HasType(r.Failures, t)
}
