package depdiff

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/waigani/diffparser"

	"github.com/ShayCichocki/bacardi/pkg/models"
)

const (
	// pairWindow is how far (in hunk lines) a removed version looks for its replacement.
	pairWindow = 5
	// contextWindow is how far back ElementContext looks for the enclosing element.
	contextWindow = 20
)

var (
	// <version>1.2.3</version>, <guava.version>33.0</guava.version>, <junit-version>...
	versionTagPattern = regexp.MustCompile(`<((?:[\w.\-]+[.\-])?version)>\s*([^<\s]+)\s*</([\w.\-]+)>`)

	// "com.google.guava:guava:33.0-jre" in build.gradle or build.gradle.kts.
	gradleCoordinatePattern = regexp.MustCompile(`["']([\w.\-]+):([\w.\-]+):([^"'\s:@]+)(?::[\w.\-]+)?(?:@\w+)?["']`)

	openElementPattern  = regexp.MustCompile(`<(dependency|plugin|parent|properties|extension)(?:\s[^>]*)?>`)
	closeElementPattern = regexp.MustCompile(`</(dependency|plugin|parent|properties|extension)>`)
	groupIDPattern      = regexp.MustCompile(`<groupId>\s*([^<\s]+)\s*</groupId>`)
	artifactIDPattern   = regexp.MustCompile(`<artifactId>\s*([^<\s]+)\s*</artifactId>`)
)

// IsManifest reports whether the path names a Maven or Gradle build manifest.
func IsManifest(name string) bool {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	return base == "pom.xml" ||
		strings.HasSuffix(base, ".gradle") ||
		strings.HasSuffix(base, ".gradle.kts")
}

// Context is the manifest element enclosing a version line.
type Context struct {
	// Element is dependency, plugin, parent, extension or property; empty when unknown.
	Element    string
	GroupID    string
	ArtifactID string
}

// ElementContext recovers the element enclosing lines[index]. It first reads
// the version line itself up to the version tag, then scans back up to 20
// lines for an opening tag, collecting groupId and artifactId on the way.
// When the coordinates sit after the version it scans forward, starting with
// the rest of the version line, within the pairing window.
func ElementContext(lines []string, index int) Context {
	var ctx Context
	if index < 0 || index >= len(lines) {
		return ctx
	}

	head, tail := lines[index], ""
	if loc := versionTagPattern.FindStringIndex(head); loc != nil {
		head, tail = head[:loc[0]], head[loc[1]:]
	}
	closedOnLine := false
	if locs := closeElementPattern.FindAllStringIndex(head, -1); len(locs) > 0 {
		head = head[locs[len(locs)-1][1]:]
		closedOnLine = true
	}
	collectCoordinates(head, &ctx)
	if opens := openElementPattern.FindAllStringSubmatch(head, -1); len(opens) > 0 {
		ctx.setElement(opens[len(opens)-1][1])
	}

	for i := index - 1; ctx.Element == "" && !closedOnLine && i >= 0 && i >= index-contextWindow; i-- {
		line := lines[i]
		if closeElementPattern.MatchString(line) {
			break
		}
		collectCoordinates(line, &ctx)
		if m := openElementPattern.FindStringSubmatch(line); m != nil {
			ctx.setElement(m[1])
		}
	}

	if ctx.Element != "" && ctx.Element != "property" && (ctx.GroupID == "" || ctx.ArtifactID == "") {
		if loc := closeElementPattern.FindStringIndex(tail); loc != nil {
			collectCoordinates(tail[:loc[0]], &ctx)
			return ctx
		}
		collectCoordinates(tail, &ctx)
		for i := index + 1; i < len(lines) && i <= index+pairWindow; i++ {
			if closeElementPattern.MatchString(lines[i]) {
				break
			}
			collectCoordinates(lines[i], &ctx)
		}
	}
	return ctx
}

func (c *Context) setElement(name string) {
	c.Element = name
	if name == "properties" {
		c.Element = "property"
	}
}

func collectCoordinates(line string, ctx *Context) {
	if ctx.GroupID == "" {
		if m := groupIDPattern.FindStringSubmatch(line); m != nil {
			ctx.GroupID = m[1]
		}
	}
	if ctx.ArtifactID == "" {
		if m := artifactIDPattern.FindStringSubmatch(line); m != nil {
			ctx.ArtifactID = m[1]
		}
	}
}

// hit is one version-bearing line in a hunk.
type hit struct {
	index   int
	mode    diffparser.DiffLineMode
	key     string
	version string
	paired  bool
	partner *hit
}

// ScanDiff finds version changes in the manifest files of a git-style unified
// diff. Removed and added version lines with the same tag (or Gradle
// group:artifact) within five hunk lines of each other are paired into one
// change; an unpaired removal or addition stands alone.
func ScanDiff(diff string) ([]models.VersionChange, error) {
	changes := []models.VersionChange{}
	if strings.TrimSpace(diff) == "" {
		return changes, nil
	}

	parsed, err := diffparser.Parse(diff)
	if err != nil {
		return nil, fmt.Errorf("parse diff: %w", err)
	}

	for _, file := range parsed.Files {
		name := fileName(file)
		if !IsManifest(name) {
			continue
		}
		gradle := !strings.HasSuffix(name, "pom.xml")
		for _, hunk := range file.Hunks {
			changes = append(changes, scanHunk(name, gradle, hunk)...)
		}
	}
	return changes, nil
}

func fileName(file *diffparser.DiffFile) string {
	name := file.NewName
	if name == "" || name == "/dev/null" {
		name = file.OrigName
	}
	name = strings.TrimPrefix(name, "a/")
	return strings.TrimPrefix(name, "b/")
}

func scanHunk(file string, gradle bool, hunk *diffparser.DiffHunk) []models.VersionChange {
	lines := make([]string, len(hunk.WholeRange.Lines))
	var hits []*hit
	for i, l := range hunk.WholeRange.Lines {
		lines[i] = l.Content
		if l.Mode == diffparser.UNCHANGED {
			continue
		}
		if h := findVersion(l.Content, gradle); h != nil {
			h.index = i
			h.mode = l.Mode
			hits = append(hits, h)
		}
	}

	for _, removed := range hits {
		if removed.mode != diffparser.REMOVED {
			continue
		}
		removed.paired = true
		if added := partner(hits, removed); added != nil {
			added.paired = true
			removed.partner = added
		}
	}

	// Pairs are reported at the removal, so changes keep diff order.
	var changes []models.VersionChange
	for _, h := range hits {
		switch {
		case h.mode == diffparser.REMOVED:
			newVersion := ""
			if h.partner != nil {
				newVersion = h.partner.version
			}
			changes = append(changes, describe(file, lines, h, h.version, newVersion))
		case !h.paired:
			changes = append(changes, describe(file, lines, h, "", h.version))
		}
	}
	return changes
}

// partner returns the closest unpaired added hit with the same key.
func partner(hits []*hit, removed *hit) *hit {
	var best *hit
	for _, h := range hits {
		if h.mode != diffparser.ADDED || h.paired || h.key != removed.key {
			continue
		}
		d := abs(h.index - removed.index)
		if d > pairWindow {
			continue
		}
		if best == nil || d < abs(best.index-removed.index) {
			best = h
		}
	}
	return best
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func findVersion(line string, gradle bool) *hit {
	if gradle {
		m := gradleCoordinatePattern.FindStringSubmatch(line)
		if m == nil {
			return nil
		}
		return &hit{key: m[1] + ":" + m[2], version: m[3]}
	}
	m := versionTagPattern.FindStringSubmatch(line)
	if m == nil || m[1] != m[3] {
		return nil
	}
	return &hit{key: m[1], version: m[2]}
}

func describe(file string, lines []string, h *hit, oldVersion, newVersion string) models.VersionChange {
	c := AssessSignificance(oldVersion, newVersion)
	c.File = file

	if strings.Contains(h.key, ":") {
		c.GroupID, c.ArtifactID, _ = strings.Cut(h.key, ":")
		c.Element = "dependency"
		return c
	}

	ctx := ElementContext(lines, h.index)
	c.Element = ctx.Element
	c.GroupID = ctx.GroupID
	c.ArtifactID = ctx.ArtifactID
	if h.key != "version" {
		c.Element = "property"
		c.Property = h.key
	}
	return c
}
