package validation

import (
	"strings"
	"testing"

	"github.com/ShayCichocki/bacardi/pkg/models"
)

func TestGenerateReport(t *testing.T) {
	result := &models.ValidationResult{
		BuildPassed: true,
		TestsPassed: false,
		TestResults: models.TestResults{Total: 20, Passed: 16, Failed: 4},
		FailureRate: 0.2,
		Errors:      []string{"test failures point at dependency changes (NoClassDefFoundError): 4/20 failed (20.0%)"},
		Warnings:    []string{"fix includes high-risk dependency changes"},
	}
	result.Audit.Record("build", models.StepPass, "attempt 1")
	result.Audit.Record("tests", models.StepFail, "4/20 failed")

	got := GenerateReport(result)
	for _, want := range []string{
		"✗ Pull request should not be created",
		"- Build: ✓ PASS",
		"- Tests: ✗ FAIL",
		"## Tests",
		"20.0%",
		"## Errors",
		"NoClassDefFoundError",
		"## Warnings",
		"high-risk dependency changes",
		"## Steps",
		"attempt 1",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("report missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "## Build failures") {
		t.Errorf("report has a failures section without failures:\n%s", got)
	}
}

func TestGenerateReport_Approved(t *testing.T) {
	got := GenerateReport(&models.ValidationResult{BuildPassed: true, TestsPassed: true, ShouldCreatePR: true})
	if !strings.Contains(got, "✓ Pull request can be created") {
		t.Errorf("report = %s", got)
	}
	for _, section := range []string{"## Tests", "## Errors", "## Warnings", "## Steps"} {
		if strings.Contains(got, section) {
			t.Errorf("report has empty section %q", section)
		}
	}
}

func TestGenerateReport_Nil(t *testing.T) {
	if got := GenerateReport(nil); !strings.Contains(got, "No validation result") {
		t.Errorf("GenerateReport(nil) = %q", got)
	}
}
