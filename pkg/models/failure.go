package models

// FailureType classifies a defect extracted from build or compiler output.
type FailureType string

const (
	// FailureCompilationError is a compiler diagnostic with a source location.
	FailureCompilationError FailureType = "compilation_error"
	// FailureBuildFailure is the aggregate BUILD FAILURE / BUILD FAILED marker.
	FailureBuildFailure FailureType = "build_failure"
	// FailureDependencyResolution is a repository-level resolution failure.
	FailureDependencyResolution FailureType = "dependency_resolution_error"
	// FailureDependencyError names a single artifact that could not be found.
	FailureDependencyError FailureType = "dependency_error"
	// FailureDependencyWarning is a non-fatal dependency problem such as a missing POM.
	FailureDependencyWarning FailureType = "dependency_warning"
	// FailureBuildExecution is a build that could not run to completion (timeout).
	FailureBuildExecution FailureType = "build_execution_error"
)

// Valid returns true if the failure type is a known value.
func (t FailureType) Valid() bool {
	switch t {
	case FailureCompilationError, FailureBuildFailure, FailureDependencyResolution,
		FailureDependencyError, FailureDependencyWarning, FailureBuildExecution:
		return true
	default:
		return false
	}
}

// IsDependency reports whether the failure type relates to dependency resolution.
func (t FailureType) IsDependency() bool {
	switch t {
	case FailureDependencyResolution, FailureDependencyError, FailureDependencyWarning:
		return true
	default:
		return false
	}
}

// Severity is the coarse impact of a failure.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Valid returns true if the severity is a known value.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	default:
		return false
	}
}

// UnknownFile is used when a failure carries no source location.
const UnknownFile = "unknown"

// Failure is one structured, classified defect extracted from build output.
// Failures are values; producers never modify one after returning it.
type Failure struct {
	// Type is the failure classification.
	Type FailureType `json:"type" yaml:"type"`
	// Message is the diagnostic text.
	Message string `json:"message" yaml:"message"`
	// File is the source file, or UnknownFile.
	File string `json:"file" yaml:"file"`
	// Line is the 1-based source line, 0 when unknown.
	Line int `json:"line" yaml:"line"`
	// Column is the 1-based source column, 0 when not reported.
	Column int `json:"column,omitempty" yaml:"column,omitempty"`
	// Confidence is the classifier confidence in [0,100].
	Confidence int `json:"confidence" yaml:"confidence"`
	// Severity is the impact of the failure.
	Severity Severity `json:"severity" yaml:"severity"`
	// GroupID, ArtifactID and Version identify the artifact for dependency failures.
	GroupID    string `json:"group_id,omitempty" yaml:"group_id,omitempty"`
	ArtifactID string `json:"artifact_id,omitempty" yaml:"artifact_id,omitempty"`
	Version    string `json:"version,omitempty" yaml:"version,omitempty"`
	// LogLine is the 1-based line of the log the failure was read from.
	LogLine int `json:"log_line,omitempty" yaml:"log_line,omitempty"`
}

// Coordinates returns group:artifact:version for dependency failures, or "".
func (f Failure) Coordinates() string {
	if f.GroupID == "" || f.ArtifactID == "" {
		return ""
	}
	if f.Version == "" {
		return f.GroupID + ":" + f.ArtifactID
	}
	return f.GroupID + ":" + f.ArtifactID + ":" + f.Version
}

// ClampConfidence bounds a confidence value to [0,100].
func ClampConfidence(c int) int {
	switch {
	case c < 0:
		return 0
	case c > 100:
		return 100
	default:
		return c
	}
}

// CountByType tallies failures per type.
func CountByType(failures []Failure) map[FailureType]int {
	counts := make(map[FailureType]int)
	for _, f := range failures {
		counts[f.Type]++
	}
	return counts
}

// HasType reports whether any failure has the given type.
func HasType(failures []Failure, t FailureType) bool {
	for _, f := range failures {
		if f.Type == t {
			return true
		}
	}
	return false
}
