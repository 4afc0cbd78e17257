package models

// ChangeType describes how a manifest version element changed.
type ChangeType string

const (
	ChangeAddition ChangeType = "addition"
	ChangeRemoval  ChangeType = "removal"
	ChangeUpgrade  ChangeType = "upgrade"
	ChangeNone     ChangeType = "none"
)

// Significance is the coarse size of a version change.
type Significance string

const (
	SignificanceMajor       Significance = "major"
	SignificanceMinor       Significance = "minor"
	SignificancePatch       Significance = "patch"
	SignificancePreRelease  Significance = "pre_release"
	SignificanceSnapshot    Significance = "snapshot"
	SignificanceDynamic     Significance = "dynamic"
	SignificanceRange       Significance = "range"
	SignificanceNonSemantic Significance = "non_semantic"
	SignificanceNone        Significance = "none"
)

// Valid returns true if the significance is a known value.
func (s Significance) Valid() bool {
	switch s {
	case SignificanceMajor, SignificanceMinor, SignificancePatch, SignificancePreRelease,
		SignificanceSnapshot, SignificanceDynamic, SignificanceRange,
		SignificanceNonSemantic, SignificanceNone:
		return true
	default:
		return false
	}
}

// Risk is the assessed risk of shipping a change.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// Level orders risks so they can be compared; unknown risks sort lowest.
func (r Risk) Level() int {
	switch r {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	default:
		return 0
	}
}

// VersionChange is the classification of one manifest version element.
// An empty OldVersion or NewVersion means the side is absent.
type VersionChange struct {
	OldVersion   string       `json:"old_version,omitempty" yaml:"old_version,omitempty"`
	NewVersion   string       `json:"new_version,omitempty" yaml:"new_version,omitempty"`
	ChangeType   ChangeType   `json:"change_type" yaml:"change_type"`
	Significance Significance `json:"significance" yaml:"significance"`
	Risk         Risk         `json:"risk" yaml:"risk"`
	IsSemantic   bool         `json:"is_semantic" yaml:"is_semantic"`

	// Populated when the change was recovered from a manifest diff.
	GroupID    string `json:"group_id,omitempty" yaml:"group_id,omitempty"`
	ArtifactID string `json:"artifact_id,omitempty" yaml:"artifact_id,omitempty"`
	// Element is the enclosing manifest element: dependency, plugin, parent or property.
	Element string `json:"element,omitempty" yaml:"element,omitempty"`
	// Property is the property tag name for property-driven versions.
	Property string `json:"property,omitempty" yaml:"property,omitempty"`
	// File is the manifest path the change was found in.
	File string `json:"file,omitempty" yaml:"file,omitempty"`
}

// Key returns group:artifact, the identity used by ignore lists.
func (c VersionChange) Key() string {
	if c.GroupID == "" && c.ArtifactID == "" {
		return ""
	}
	return c.GroupID + ":" + c.ArtifactID
}
