// Package depdiff classifies dependency version changes found in build manifests.
package depdiff

import (
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/ShayCichocki/bacardi/pkg/models"
)

// semverPattern is MAJOR.MINOR.PATCH[-pre][+build], nothing looser.
var semverPattern = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)(?:-([0-9A-Za-z.\-]+))?(?:\+([0-9A-Za-z.\-]+))?$`)

type semver struct {
	major, minor, patch int
	pre                 string
}

func parseSemver(v string) (semver, bool) {
	m := semverPattern.FindStringSubmatch(strings.TrimSpace(v))
	if m == nil {
		return semver{}, false
	}
	var s semver
	var err error
	if s.major, err = strconv.Atoi(m[1]); err != nil {
		return semver{}, false
	}
	if s.minor, err = strconv.Atoi(m[2]); err != nil {
		return semver{}, false
	}
	if s.patch, err = strconv.Atoi(m[3]); err != nil {
		return semver{}, false
	}
	s.pre = m[4]
	return s, true
}

// dynamicMarkers are version strings that resolve to whatever is newest.
var dynamicMarkers = []string{"latest", "release", "latest.release", "latest.integration"}

func isDynamic(v string) bool {
	if slices.Contains(dynamicMarkers, strings.ToLower(strings.TrimSpace(v))) {
		return true
	}
	// Gradle "1.+" and bare "+".
	return strings.HasSuffix(strings.TrimSpace(v), "+")
}

func isRange(v string) bool {
	return strings.ContainsAny(v, "[(")
}

// AssessSignificance classifies the change from oldVersion to newVersion.
// An empty string means that side is absent.
func AssessSignificance(oldVersion, newVersion string) models.VersionChange {
	c := models.VersionChange{OldVersion: oldVersion, NewVersion: newVersion}

	switch {
	case oldVersion == "" && newVersion != "":
		c.ChangeType, c.Significance, c.Risk = models.ChangeAddition, models.SignificanceNone, models.RiskMedium
		return c
	case oldVersion != "" && newVersion == "":
		c.ChangeType, c.Significance, c.Risk = models.ChangeRemoval, models.SignificanceNone, models.RiskHigh
		return c
	case oldVersion == "" && newVersion == "":
		c.ChangeType, c.Significance, c.Risk = models.ChangeNone, models.SignificanceNone, models.RiskLow
		return c
	}

	oldSem, okOld := parseSemver(oldVersion)
	newSem, okNew := parseSemver(newVersion)
	if oldVersion == newVersion {
		c.ChangeType, c.Significance, c.Risk = models.ChangeNone, models.SignificanceNone, models.RiskLow
		c.IsSemantic = okOld
		return c
	}

	c.ChangeType = models.ChangeUpgrade
	if !okOld || !okNew {
		c.Significance, c.Risk = classifyNonSemantic(oldVersion, newVersion)
		return c
	}

	c.IsSemantic = true
	switch {
	case oldSem.major != newSem.major:
		c.Significance, c.Risk = models.SignificanceMajor, models.RiskHigh
	case oldSem.minor != newSem.minor:
		c.Significance, c.Risk = models.SignificanceMinor, models.RiskMedium
	case oldSem.patch != newSem.patch:
		c.Significance, c.Risk = models.SignificancePatch, models.RiskLow
	case oldSem.pre != newSem.pre:
		c.Significance, c.Risk = models.SignificancePreRelease, models.RiskMedium
	default:
		c.Significance, c.Risk = models.SignificanceNone, models.RiskLow
	}
	return c
}

// classifyNonSemantic applies the heuristics for versions that are not strict semver.
func classifyNonSemantic(oldVersion, newVersion string) (models.Significance, models.Risk) {
	either := func(pred func(string) bool) bool {
		return pred(oldVersion) || pred(newVersion)
	}
	switch {
	case either(func(v string) bool { return strings.Contains(strings.ToUpper(v), "SNAPSHOT") }):
		return models.SignificanceSnapshot, models.RiskMedium
	case either(isDynamic):
		return models.SignificanceDynamic, models.RiskHigh
	case either(isRange):
		return models.SignificanceRange, models.RiskMedium
	default:
		return models.SignificanceNonSemantic, models.RiskMedium
	}
}

// significanceRank orders significances for threshold comparison.
// patch < minor = addition < major < removal; the remaining values are
// slotted in beside their closest counterpart.
var significanceRank = map[models.Significance]int{
	models.SignificanceNone:        0,
	models.SignificancePatch:       1,
	models.SignificancePreRelease:  1,
	models.SignificanceMinor:       2,
	models.SignificanceSnapshot:    2,
	models.SignificanceRange:       2,
	models.SignificanceNonSemantic: 2,
	models.SignificanceMajor:       3,
	models.SignificanceDynamic:     3,
}

const (
	additionRank = 2
	removalRank  = 4
)

// Rank returns the ordinal rank of a change used by IsSignificantChange.
// Additions and removals are ranked by change type, everything else by significance.
func Rank(c models.VersionChange) int {
	switch c.ChangeType {
	case models.ChangeAddition:
		return additionRank
	case models.ChangeRemoval:
		return removalRank
	}
	return significanceRank[c.Significance]
}

// IsSignificantChange reports whether the change meets the minimum
// significance and its group:artifact is not ignored.
func IsSignificantChange(change models.VersionChange, minSignificance models.Significance, ignored []string) bool {
	if key := change.Key(); key != "" && slices.Contains(ignored, key) {
		return false
	}
	return Rank(change) >= significanceRank[minSignificance]
}

// OverallRisk returns the highest risk among changes, or low when there are none.
func OverallRisk(changes []models.VersionChange) models.Risk {
	risk := models.RiskLow
	for _, c := range changes {
		if c.Risk.Level() > risk.Level() {
			risk = c.Risk
		}
	}
	return risk
}

// Filter keeps the significant changes, preserving order.
func Filter(changes []models.VersionChange, minSignificance models.Significance, ignored []string) []models.VersionChange {
	out := make([]models.VersionChange, 0, len(changes))
	for _, c := range changes {
		if IsSignificantChange(c, minSignificance, ignored) {
			out = append(out, c)
		}
	}
	return out
}
