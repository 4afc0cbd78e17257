// Package report renders failures, version changes and gate results as
// markdown tables.
package report

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/ShayCichocki/bacardi/pkg/models"
)

// NewTable creates a markdown table writer with the standard formatting.
func NewTable(headers []string, w io.Writer) *tablewriter.Table {
	cfg := tablewriter.Config{
		Header: tw.CellConfig{
			Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			Formatting: tw.CellFormatting{AutoFormat: tw.Off},
		},
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignLeft},
		},
		Behavior: tw.Behavior{TrimSpace: tw.Off},
	}
	return tablewriter.NewTable(w,
		tablewriter.WithConfig(cfg),
		tablewriter.WithHeader(headers),
		tablewriter.WithRenderer(renderer.NewBlueprint()),
		tablewriter.WithRendition(tw.Rendition{
			Symbols: tw.NewSymbols(tw.StyleMarkdown),
			Borders: tw.Border{
				Left:   tw.On,
				Top:    tw.Off,
				Right:  tw.On,
				Bottom: tw.Off,
			},
		}),
		tablewriter.WithRowAutoWrap(tw.WrapNone),
	)
}

// Failures renders one row per failure.
func Failures(failures []models.Failure) string {
	var buf bytes.Buffer
	table := NewTable([]string{"Type", "Location", "Confidence", "Severity", "Message"}, &buf)
	for _, f := range failures {
		_ = table.Append([]string{
			string(f.Type),
			location(f),
			strconv.Itoa(f.Confidence),
			string(f.Severity),
			truncate(f.Message, 120),
		})
	}
	_ = table.Render()
	return buf.String()
}

// VersionChanges renders one row per dependency version change.
func VersionChanges(changes []models.VersionChange) string {
	var buf bytes.Buffer
	table := NewTable([]string{"Dependency", "Old", "New", "Change", "Significance", "Risk"}, &buf)
	for _, c := range changes {
		_ = table.Append([]string{
			dependency(c),
			orDash(c.OldVersion),
			orDash(c.NewVersion),
			string(c.ChangeType),
			string(c.Significance),
			string(c.Risk),
		})
	}
	_ = table.Render()
	return buf.String()
}

// Audit renders one row per recorded step.
func Audit(entries []models.AuditEntry) string {
	var buf bytes.Buffer
	table := NewTable([]string{"Step", "Status", "Message"}, &buf)
	for _, e := range entries {
		_ = table.Append([]string{e.Step, string(e.Status), orDash(truncate(e.Message, 120))})
	}
	_ = table.Render()
	return buf.String()
}

// TestResults renders the aggregate test counters as a single row.
func TestResults(r models.TestResults) string {
	var buf bytes.Buffer
	table := NewTable([]string{"Total", "Passed", "Failed", "Skipped", "Failure rate"}, &buf)
	_ = table.Append([]string{
		strconv.Itoa(r.Total),
		strconv.Itoa(r.Passed),
		strconv.Itoa(r.Failed),
		strconv.Itoa(r.Skipped),
		fmt.Sprintf("%.1f%%", r.FailureRate()*100),
	})
	_ = table.Render()
	return buf.String()
}

func location(f models.Failure) string {
	switch {
	case f.Coordinates() != "":
		return f.Coordinates()
	case f.File == "" || f.File == models.UnknownFile:
		return "-"
	case f.Column > 0:
		return fmt.Sprintf("%s:%d:%d", f.File, f.Line, f.Column)
	case f.Line > 0:
		return fmt.Sprintf("%s:%d", f.File, f.Line)
	default:
		return f.File
	}
}

func dependency(c models.VersionChange) string {
	if k := c.Key(); k != "" {
		return k
	}
	if c.Property != "" {
		return c.Property
	}
	return orDash(c.File)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
