package main

import (
	"context"
	"fmt"
	"io"

	"github.com/chainguard-dev/clog"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/bacardi/internal/depdiff"
	"github.com/ShayCichocki/bacardi/internal/git"
	"github.com/ShayCichocki/bacardi/internal/report"
	"github.com/ShayCichocki/bacardi/pkg/models"
)

var (
	depsDiffFile        string
	depsBase            string
	depsHead            string
	depsRepo            string
	depsMinSignificance string
	depsAll             bool
)

var depsCmd = &cobra.Command{
	Use:   "deps",
	Short: "Assess dependency version changes in manifests",
	Long: `List the dependency, plugin and property version changes in Maven and
Gradle manifests, with their significance and risk.

By default the working tree is compared with --base (HEAD). With --head the
two refs are compared instead, and --diff reads a unified diff from a file
("-" for stdin). Changes below --min-significance or on ignored dependencies
are left out unless --all is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var diff string
		var err error
		if depsDiffFile != "" {
			diff, err = readInput(cmd.InOrStdin(), depsDiffFile)
		} else {
			diff, err = readDiff(ctx, git.NewRunner(depsRepo), depsBase, depsHead)
		}
		if err != nil {
			return err
		}

		minSig := models.Significance(depsMinSignificance)
		if minSig == "" {
			minSig = models.Significance(appConfig.Dependencies.MinSignificance)
		}
		if !minSig.Valid() {
			return fmt.Errorf("unknown significance %q", minSig)
		}

		result, err := analyzeDeps(ctx, diff, minSig, appConfig.Dependencies.Ignored, depsAll)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), outputFormat, result, func(w io.Writer) error {
			return printDeps(w, result)
		})
	},
}

// depsReport is the output of a dependency analysis.
type depsReport struct {
	Changes []models.VersionChange `json:"changes" yaml:"changes"`
	Risk    models.Risk            `json:"risk" yaml:"risk"`
}

func readDiff(ctx context.Context, runner git.DiffOperations, base, head string) (string, error) {
	if head != "" {
		return runner.DiffBetween(ctx, base, head)
	}
	return runner.Diff(ctx, base)
}

func analyzeDeps(ctx context.Context, diff string, minSig models.Significance, ignored []string, all bool) (*depsReport, error) {
	changes, err := depdiff.ScanDiff(diff)
	if err != nil {
		return nil, err
	}
	found := len(changes)
	if !all {
		changes = depdiff.Filter(changes, minSig, ignored)
	}
	result := &depsReport{
		Changes: changes,
		Risk:    depdiff.OverallRisk(changes),
	}
	clog.FromContext(ctx).
		With("found", found).
		With("significant", len(changes)).
		With("risk", string(result.Risk)).
		Infof("analyzed dependency changes")
	return result, nil
}

func printDeps(w io.Writer, r *depsReport) error {
	if len(r.Changes) == 0 {
		printStatus(w, "✓", "No significant dependency changes", color.FgGreen)
		return nil
	}
	attr := color.FgGreen
	switch r.Risk {
	case models.RiskHigh:
		attr = color.FgRed
	case models.RiskMedium:
		attr = color.FgYellow
	}
	printStatus(w, "●", fmt.Sprintf("%d dependency change(s), overall risk %s", len(r.Changes), r.Risk), attr)
	fmt.Fprintln(w)
	_, err := io.WriteString(w, report.VersionChanges(r.Changes))
	return err
}

func init() {
	depsCmd.Flags().StringVar(&depsDiffFile, "diff", "", "read a unified diff from this file instead of git")
	depsCmd.Flags().StringVar(&depsBase, "base", "HEAD", "base ref to compare against")
	depsCmd.Flags().StringVar(&depsHead, "head", "", "head ref (default: the working tree)")
	depsCmd.Flags().StringVar(&depsRepo, "repo", ".", "path to the local repository")
	depsCmd.Flags().StringVar(&depsMinSignificance, "min-significance", "", "smallest significance to report (default from config)")
	depsCmd.Flags().BoolVar(&depsAll, "all", false, "report every change, including ignored and insignificant ones")
}
