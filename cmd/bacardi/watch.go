package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/bacardi/internal/git"
	"github.com/ShayCichocki/bacardi/internal/watch"
	"github.com/ShayCichocki/bacardi/pkg/models"
)

var (
	watchBase     string
	watchDebounce time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Re-assess dependency changes whenever a manifest changes",
	Long: `Watch the repository at path (default: the current directory) and print
the dependency version changes against --base every time a pom.xml or Gradle
build file is saved. Stop with Ctrl-C.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "."
		if len(args) == 1 {
			path = args[0]
		}
		root, err := filepath.Abs(path)
		if err != nil {
			return err
		}

		minSig := models.Significance(appConfig.Dependencies.MinSignificance)
		runner := git.NewRunner(root)
		out := cmd.OutOrStdout()

		w, err := watch.New(root, watchDebounce, func(ctx context.Context, paths []string) {
			if err := reportManifestChanges(ctx, out, runner, paths, minSig, appConfig.Dependencies.Ignored); err != nil {
				clog.FromContext(ctx).Errorf("dependency analysis failed: %v", err)
			}
		})
		if err != nil {
			return err
		}
		return w.Run(cmd.Context())
	},
}

func reportManifestChanges(ctx context.Context, out io.Writer, runner git.DiffOperations, paths []string, minSig models.Significance, ignored []string) error {
	diff, err := runner.Diff(ctx, watchBase, paths...)
	if err != nil {
		return err
	}
	result, err := analyzeDeps(ctx, diff, minSig, ignored, false)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%s changed: %v\n", time.Now().Format(time.TimeOnly), paths)
	return render(out, outputFormat, result, func(w io.Writer) error {
		return printDeps(w, result)
	})
}

func init() {
	watchCmd.Flags().StringVar(&watchBase, "base", "HEAD", "ref to compare the working tree against")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "quiet period before a change is reported")
}
