package buildtool

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ShayCichocki/bacardi/pkg/models"
)

var (
	// Tests run: 12, Failures: 1, Errors: 0, Skipped: 2[, Time elapsed: ...]
	surefirePattern = regexp.MustCompile(`Tests run:\s*(\d+),\s*Failures:\s*(\d+),\s*Errors:\s*(\d+),\s*Skipped:\s*(\d+)`)
	// 12 tests completed, 2 failed, 1 skipped
	gradlePattern = regexp.MustCompile(`(\d+) tests? completed(?:,\s*(\d+) failed)?(?:,\s*(\d+) skipped)?`)
)

// ParseTestSummary reads aggregate test counters from a test run's output.
// It returns false when the output carries no summary.
func ParseTestSummary(tool models.BuildTool, output string) (models.TestResults, bool) {
	switch tool {
	case models.BuildToolMaven:
		return parseSurefire(output)
	case models.BuildToolGradle:
		return parseGradle(output)
	default:
		if r, ok := parseSurefire(output); ok {
			return r, true
		}
		return parseGradle(output)
	}
}

// parseSurefire sums the per-module "Results:" totals. Per-class lines carry
// "Time elapsed" and are only used when no totals were printed.
func parseSurefire(output string) (models.TestResults, bool) {
	var totals, perClass models.TestResults
	var haveTotals, havePerClass bool
	for _, line := range strings.Split(output, "\n") {
		m := surefirePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		run, failures, errs, skipped := atoi(m[1]), atoi(m[2]), atoi(m[3]), atoi(m[4])
		target := &totals
		if strings.Contains(line, "Time elapsed") {
			target = &perClass
			havePerClass = true
		} else {
			haveTotals = true
		}
		target.Total += run
		target.Failed += failures + errs
		target.Skipped += skipped
	}
	switch {
	case haveTotals:
		return withPassed(totals), true
	case havePerClass:
		return withPassed(perClass), true
	default:
		return models.TestResults{}, false
	}
}

func parseGradle(output string) (models.TestResults, bool) {
	var r models.TestResults
	found := false
	for _, m := range gradlePattern.FindAllStringSubmatch(output, -1) {
		found = true
		r.Total += atoi(m[1])
		r.Failed += atoi(m[2])
		r.Skipped += atoi(m[3])
	}
	if !found {
		return r, false
	}
	return withPassed(r), true
}

func withPassed(r models.TestResults) models.TestResults {
	r.Passed = max(r.Total-r.Failed-r.Skipped, 0)
	return r
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
