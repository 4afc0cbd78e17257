package main

import (
	"fmt"
	"io"
	"os"

	"github.com/chainguard-dev/clog"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/bacardi/internal/buildlog"
	"github.com/ShayCichocki/bacardi/internal/metrics"
	"github.com/ShayCichocki/bacardi/internal/report"
	"github.com/ShayCichocki/bacardi/pkg/models"
)

var (
	parseTool  string
	parseClean bool
)

var parseCmd = &cobra.Command{
	Use:   "parse <log>",
	Short: "Extract failures from a build log",
	Long: `Parse a Maven or Gradle build log and list the failures it reports.

Use "-" to read the log from stdin. Logs downloaded from CI can be passed
with --clean to strip ANSI color codes and timestamps first.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readInput(cmd.InOrStdin(), args[0])
		if err != nil {
			return err
		}

		var tool models.BuildTool
		if parseTool != "" {
			if tool, err = models.ParseBuildTool(parseTool); err != nil {
				return err
			}
		}
		if parseClean {
			raw = buildlog.Clean(raw)
		}

		failures := buildlog.Parse(raw, tool)
		metrics.RecordFailures(failures)

		log := clog.FromContext(cmd.Context())
		if v, ok := buildlog.ExtractToolVersion(raw); ok {
			log = log.With("tool_version", v)
		}
		log.With("failures", len(failures)).Infof("parsed build log")

		return render(cmd.OutOrStdout(), outputFormat, failures, func(w io.Writer) error {
			return printFailures(w, failures)
		})
	},
}

func printFailures(w io.Writer, failures []models.Failure) error {
	if len(failures) == 0 {
		printStatus(w, "✓", "No failures found", color.FgGreen)
		return nil
	}
	printStatus(w, "✗", fmt.Sprintf("%d failure(s)", len(failures)), color.FgRed)
	fmt.Fprintln(w)
	_, err := io.WriteString(w, report.Failures(failures))
	return err
}

// readInput reads a file, or stdin when name is "-".
func readInput(stdin io.Reader, name string) (string, error) {
	if name == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", name, err)
	}
	return string(data), nil
}

func init() {
	parseCmd.Flags().StringVar(&parseTool, "tool", "", "build tool that produced the log: maven or gradle")
	parseCmd.Flags().BoolVar(&parseClean, "clean", false, "strip ANSI codes and timestamps before parsing")
}
