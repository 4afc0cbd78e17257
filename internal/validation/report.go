package validation

import (
	"fmt"
	"strings"

	"github.com/ShayCichocki/bacardi/internal/report"
	"github.com/ShayCichocki/bacardi/pkg/models"
)

// GenerateReport renders a human-readable markdown report of result.
func GenerateReport(result *models.ValidationResult) string {
	var sb strings.Builder

	sb.WriteString("# Dependency Fix Validation\n\n")
	if result == nil {
		sb.WriteString("No validation result.\n")
		return sb.String()
	}

	if result.ShouldCreatePR {
		sb.WriteString("✓ Pull request can be created\n\n")
	} else {
		sb.WriteString("✗ Pull request should not be created\n\n")
	}
	sb.WriteString(fmt.Sprintf("- Build: %s\n", passFail(result.BuildPassed)))
	sb.WriteString(fmt.Sprintf("- Tests: %s\n", passFail(result.TestsPassed)))

	if result.TestResults.Total > 0 {
		sb.WriteString("\n## Tests\n\n")
		sb.WriteString(report.TestResults(result.TestResults))
	}

	if len(result.Errors) > 0 {
		sb.WriteString("\n## Errors\n\n")
		for _, e := range result.Errors {
			sb.WriteString(fmt.Sprintf("- %s\n", e))
		}
	}
	if len(result.Warnings) > 0 {
		sb.WriteString("\n## Warnings\n\n")
		for _, w := range result.Warnings {
			sb.WriteString(fmt.Sprintf("- %s\n", w))
		}
	}

	if len(result.Failures) > 0 {
		sb.WriteString("\n## Build failures\n\n")
		sb.WriteString(report.Failures(result.Failures))
	}

	if result.Recovery != nil {
		sb.WriteString(fmt.Sprintf("\nRecovered from a %s error (%s): %s\n",
			result.Recovery.Category, result.Recovery.Action, result.Recovery.Message))
	}

	if result.Audit.Len() > 0 {
		sb.WriteString("\n## Steps\n\n")
		sb.WriteString(report.Audit(result.Audit.Entries()))
	}

	return sb.String()
}

func passFail(ok bool) string {
	if ok {
		return "✓ PASS"
	}
	return "✗ FAIL"
}
