// Package buildlog classifies raw Maven and Gradle output into typed failures.
package buildlog

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ShayCichocki/bacardi/pkg/models"
)

// Rule is one line-level classification pattern.
type Rule struct {
	// Name identifies the rule in logs and tests.
	Name string
	// Pattern is matched against each trimmed log line.
	Pattern *regexp.Regexp
	// Type, Confidence and Severity are stamped onto every failure the rule produces.
	Type       models.FailureType
	Confidence int
	Severity   models.Severity
	// Tools restricts the rule to the listed build tools; empty means any tool.
	Tools []models.BuildTool
	// Skip rejects a match after the fact (e.g. javac warnings).
	Skip func(m []string) bool
	// Extract fills location and coordinate fields from the line and submatches.
	Extract func(line string, m []string, f *models.Failure)
}

// appliesTo reports whether the rule runs for the given tool hint. Rules
// restricted to a tool only run when that tool is named.
func (r Rule) appliesTo(tool models.BuildTool) bool {
	if len(r.Tools) == 0 {
		return true
	}
	for _, t := range r.Tools {
		if t == tool {
			return true
		}
	}
	return false
}

var (
	// [ERROR] /src/main/java/Foo.java:[15,15] cannot find symbol
	mavenCompilerPattern = regexp.MustCompile(`^(?:\[ERROR\]\s+)?((?:[A-Za-z]:)?[^\s\[:][^:\[]*\.(?:java|kt|groovy|scala)):\[(\d+)(?:,(\d+))?\]\s*(.*)$`)

	// Foo.java:15: error: ';' expected
	// e: /src/Foo.kt: (15, 3): Unresolved reference
	javacPattern = regexp.MustCompile(`^(?:e:\s+)?((?:[A-Za-z]:)?[^\s\[:][^:]*\.(?:java|kt|groovy|scala)):\s*\(?(\d+)(?:[:,]\s*(\d+)\)?)?:\s*(?:(error|warning):\s*)?(.*)$`)

	buildFailurePattern = regexp.MustCompile(`\bBUILD (?:FAILURE|FAILED)\b`)

	resolutionPattern = regexp.MustCompile(`(?i)Could not resolve (?:all )?dependencies|Could not find artifact|No versions available`)

	dependencyNotFoundPattern = regexp.MustCompile(`(?i)\bdependency\b.*\bwas not found\b`)

	missingPOMPattern = regexp.MustCompile(`(?i)\bPOM for\b.*\bis missing\b|\bmissing POM\b`)

	gradleNotFoundPattern = regexp.MustCompile(`^>?\s*Could not find ([\w.\-]+:[\w.\-]+:[\w.\-]+)\.?\s*$`)

	// group:artifact[:packaging[:classifier]]:version
	coordinatePattern = regexp.MustCompile(`[\w.\-]+(?::[\w.\-]+){2,}`)
)

// DefaultRules returns the classification table in priority order. Each line
// contributes at most one failure, from the first rule that matches.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:       "maven-compiler",
			Pattern:    mavenCompilerPattern,
			Type:       models.FailureCompilationError,
			Confidence: 95,
			Severity:   models.SeverityHigh,
			Extract: func(_ string, m []string, f *models.Failure) {
				setLocation(f, m[1], m[2], m[3], m[4])
			},
		},
		{
			Name:       "javac",
			Pattern:    javacPattern,
			Type:       models.FailureCompilationError,
			Confidence: 95,
			Severity:   models.SeverityHigh,
			Skip: func(m []string) bool {
				return m[4] == "warning"
			},
			Extract: func(_ string, m []string, f *models.Failure) {
				setLocation(f, m[1], m[2], m[3], m[5])
			},
		},
		{
			Name:       "build-failure",
			Pattern:    buildFailurePattern,
			Type:       models.FailureBuildFailure,
			Confidence: 90,
			Severity:   models.SeverityHigh,
		},
		{
			Name:       "dependency-resolution",
			Pattern:    resolutionPattern,
			Type:       models.FailureDependencyResolution,
			Confidence: 85,
			Severity:   models.SeverityHigh,
			// The failing artifact is named after the project's own coordinates.
			Extract: func(line string, _ []string, f *models.Failure) {
				coords := coordinatePattern.FindAllString(line, -1)
				if len(coords) > 0 {
					setCoordinates(f, coords[len(coords)-1])
				}
			},
		},
		{
			Name:       "dependency-not-found",
			Pattern:    dependencyNotFoundPattern,
			Type:       models.FailureDependencyError,
			Confidence: 95,
			Severity:   models.SeverityHigh,
			Extract:    firstCoordinates,
		},
		{
			Name:       "missing-pom",
			Pattern:    missingPOMPattern,
			Type:       models.FailureDependencyWarning,
			Confidence: 85,
			Severity:   models.SeverityMedium,
			Extract:    firstCoordinates,
		},
		{
			Name:       "gradle-not-found",
			Pattern:    gradleNotFoundPattern,
			Type:       models.FailureDependencyError,
			Confidence: 95,
			Severity:   models.SeverityHigh,
			Tools:      []models.BuildTool{models.BuildToolGradle},
			Extract: func(_ string, m []string, f *models.Failure) {
				setCoordinates(f, m[1])
			},
		},
	}
}

func setLocation(f *models.Failure, file, line, column, msg string) {
	f.File = strings.TrimSpace(file)
	f.Line, _ = strconv.Atoi(line)
	if column != "" {
		f.Column, _ = strconv.Atoi(column)
	}
	if msg = strings.TrimSpace(msg); msg != "" {
		f.Message = msg
	}
}

func firstCoordinates(line string, _ []string, f *models.Failure) {
	if c := coordinatePattern.FindString(line); c != "" {
		setCoordinates(f, c)
	}
}

// setCoordinates splits g:a[:type[:classifier]]:v; the version is the last part.
func setCoordinates(f *models.Failure, coords string) {
	parts := strings.Split(strings.Trim(coords, ".:"), ":")
	if len(parts) < 3 {
		return
	}
	f.GroupID = parts[0]
	f.ArtifactID = parts[1]
	f.Version = parts[len(parts)-1]
}
