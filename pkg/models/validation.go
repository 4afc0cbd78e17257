package models

// TestResults holds aggregate counters parsed from a test run summary.
type TestResults struct {
	Total   int `json:"total" yaml:"total"`
	Passed  int `json:"passed" yaml:"passed"`
	Failed  int `json:"failed" yaml:"failed"`
	Skipped int `json:"skipped" yaml:"skipped"`
}

// FailureRate returns failed/total, or 0 when no tests ran.
func (r TestResults) FailureRate() float64 {
	if r.Total <= 0 {
		return 0
	}
	return float64(r.Failed) / float64(r.Total)
}

// FixContext describes the change being gated.
type FixContext struct {
	// IsCritical tightens the acceptable test failure rate.
	IsCritical bool `json:"is_critical" yaml:"is_critical"`
	// Description is a short human-readable summary of the fix.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// Changes are the dependency changes that motivated the fix.
	Changes []VersionChange `json:"changes,omitempty" yaml:"changes,omitempty"`
}

// ValidationResult is the outcome of the pull-request gate.
// ShouldCreatePR implies BuildPassed.
type ValidationResult struct {
	BuildPassed    bool        `json:"build_passed" yaml:"build_passed"`
	TestsPassed    bool        `json:"tests_passed" yaml:"tests_passed"`
	TestResults    TestResults `json:"test_results" yaml:"test_results"`
	Warnings       []string    `json:"warnings" yaml:"warnings"`
	Errors         []string    `json:"errors" yaml:"errors"`
	ShouldCreatePR bool        `json:"should_create_pr" yaml:"should_create_pr"`
	// FailureRate is the test failure rate the decision was based on.
	FailureRate float64 `json:"failure_rate" yaml:"failure_rate"`
	// Failures are the build failures parsed from the clean build.
	Failures []Failure `json:"failures,omitempty" yaml:"failures,omitempty"`
	// Recovery carries the outcome when an orchestration error was absorbed.
	Recovery *RecoveryOutcome `json:"recovery,omitempty" yaml:"recovery,omitempty"`
	Audit    AuditLog         `json:"audit" yaml:"audit"`
}

// AddWarning appends a warning.
func (r *ValidationResult) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// AddError appends an error.
func (r *ValidationResult) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
}
