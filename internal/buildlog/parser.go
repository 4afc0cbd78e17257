package buildlog

import (
	"regexp"
	"strings"

	"github.com/ShayCichocki/bacardi/pkg/models"
)

// maxLineSize bounds the part of a log line the rules are matched against.
const maxLineSize = 1024 * 1024

// Parser applies an ordered rule table to build output.
type Parser struct {
	rules []Rule
}

// New creates a parser for the given rules. With no rules it uses DefaultRules.
func New(rules ...Rule) *Parser {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Parser{rules: rules}
}

// Parse returns one failure per classified line, in log order. It never fails:
// lines no rule recognizes are skipped.
func (p *Parser) Parse(raw string, tool models.BuildTool) []models.Failure {
	failures := []models.Failure{}
	if strings.TrimSpace(raw) == "" {
		return failures
	}

	lineNo := 0
	for line := range strings.Lines(raw) {
		lineNo++
		if len(line) > maxLineSize {
			line = line[:maxLineSize]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if f, ok := p.classify(line, tool); ok {
			f.LogLine = lineNo
			failures = append(failures, f)
		}
	}
	return failures
}

// classify runs the rule table against one line; the first match wins.
func (p *Parser) classify(line string, tool models.BuildTool) (models.Failure, bool) {
	for _, rule := range p.rules {
		if !rule.appliesTo(tool) {
			continue
		}
		m := rule.Pattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if rule.Skip != nil && rule.Skip(m) {
			continue
		}
		f := models.Failure{
			Type:       rule.Type,
			Message:    line,
			File:       models.UnknownFile,
			Confidence: models.ClampConfidence(rule.Confidence),
			Severity:   rule.Severity,
		}
		if rule.Extract != nil {
			rule.Extract(line, m, &f)
		}
		return f, true
	}
	return models.Failure{}, false
}

var defaultParser = New()

// Parse classifies raw build output with the default rule table.
func Parse(raw string, tool models.BuildTool) []models.Failure {
	return defaultParser.Parse(raw, tool)
}

var toolVersionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`Apache Maven (\d+(?:\.\d+)+(?:-[\w.]+)?)`),
	regexp.MustCompile(`(?m)^\s*Gradle (\d+(?:\.\d+)+(?:-[\w.]+)?)\s*$`),
	regexp.MustCompile(`Welcome to Gradle (\d+(?:\.\d+)+(?:-[\w.]+)?)`),
	regexp.MustCompile(`\bjavac (\d+(?:\.\d+)*(?:_\d+)?)`),
}

// ExtractToolVersion returns the first build tool version marker found in the
// output, such as the "Apache Maven 3.9.6" banner printed by mvn -V.
func ExtractToolVersion(raw string) (string, bool) {
	for _, re := range toolVersionPatterns {
		if m := re.FindStringSubmatch(raw); m != nil {
			return m[1], true
		}
	}
	return "", false
}

var (
	timestampPattern = regexp.MustCompile(`(?m)^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?Z ?`)
	ansiPattern      = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)
)

// Clean strips CI timestamps and ANSI escape codes so lines can be classified.
func Clean(raw string) string {
	out := timestampPattern.ReplaceAllString(raw, "")
	out = ansiPattern.ReplaceAllString(out, "")
	return strings.ReplaceAll(out, "\r\n", "\n")
}
