package main

import (
	"context"
	"fmt"
	"io"

	"github.com/chainguard-dev/clog"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/bacardi/internal/ci"
	"github.com/ShayCichocki/bacardi/internal/config"
	bexec "github.com/ShayCichocki/bacardi/internal/exec"
	"github.com/ShayCichocki/bacardi/internal/git"
	"github.com/ShayCichocki/bacardi/internal/recovery"
	"github.com/ShayCichocki/bacardi/internal/report"
	"github.com/ShayCichocki/bacardi/internal/state"
	"github.com/ShayCichocki/bacardi/internal/strategy"
	"github.com/ShayCichocki/bacardi/pkg/models"
)

var (
	buildRefs      []string
	buildCommit    string
	buildTool      string
	buildSkipTests bool
	buildNoCI      bool
	buildNoBuild   bool
	buildNoCache   bool
	buildLogs      bool
)

var buildCmd = &cobra.Command{
	Use:   "build <owner/repo[@ref]>",
	Short: "Obtain build results for a repository",
	Long: `Obtain a build result for each requested revision of a GitHub repository.

The most relevant completed CI run is used when one exists. Otherwise the
revision is cloned and built in an isolated directory. Several --ref flags
acquire results concurrently.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		repos, err := buildTargets(args[0], buildRefs, buildCommit)
		if err != nil {
			return err
		}
		tool, err := resolveTool(buildTool, appConfig.Build.Tool)
		if err != nil {
			return err
		}

		var store *state.DB
		if !buildNoCache {
			if store, err = openState(); err != nil {
				return err
			}
			defer store.Close()
		}

		selector, err := newSelector(ctx, appConfig, store)
		if err != nil {
			return err
		}
		opts := acquireOptions(appConfig)
		opts.SkipTests = buildSkipTests || appConfig.Build.SkipTests
		opts.NoCI = buildNoCI
		opts.NoBuild = buildNoBuild

		results, err := acquireAll(ctx, selector, repos, tool, opts)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), outputFormat, results, func(w io.Writer) error {
			for i, r := range results {
				if i > 0 {
					fmt.Fprintln(w)
				}
				printBuildResult(w, repos[i], r)
			}
			return nil
		})
	},
}

// buildTargets expands the repository argument into one RepoRef per ref.
func buildTargets(arg string, refs []string, commit string) ([]models.RepoRef, error) {
	base, err := models.ParseRepoRef(arg)
	if err != nil {
		return nil, err
	}
	if commit != "" {
		if len(refs) > 1 {
			return nil, fmt.Errorf("--commit selects one revision; got %d refs", len(refs))
		}
		base.Commit = commit
	}
	if len(refs) == 0 {
		return []models.RepoRef{base}, nil
	}
	repos := make([]models.RepoRef, 0, len(refs))
	for _, ref := range refs {
		r := base
		r.Ref = ref
		repos = append(repos, r)
	}
	return repos, nil
}

func resolveTool(flag, configured string) (models.BuildTool, error) {
	name := flag
	if name == "" {
		name = configured
	}
	if name == "" {
		return "", nil
	}
	return models.ParseBuildTool(name)
}

func newSelector(ctx context.Context, cfg *config.Config, store *state.DB) (*strategy.Selector, error) {
	ts := config.TokenSource(cfg)
	client, err := ci.NewGitHubClient(ctx, ts, cfg.GitHub.APIURL)
	if err != nil {
		return nil, err
	}

	rcfg := recovery.DefaultOptions()
	rcfg.NetworkDelay = cfg.Recovery.NetworkDelay

	sc := strategy.Config{
		CI:       ci.NewGitHub(client),
		Cloner:   git.NewCloner(ts),
		Runner:   bexec.NewRunner(),
		Recovery: rcfg,
	}
	// A nil *state.DB must not reach the interface field.
	if store != nil {
		sc.Store = store
	}
	return strategy.New(sc), nil
}

func acquireOptions(cfg *config.Config) strategy.Options {
	opts := strategy.DefaultOptions()
	opts.WorkDir = cfg.Build.WorkDir
	opts.CloneTimeout = cfg.Build.CloneTimeout
	opts.BuildTimeout = cfg.Build.BuildTimeout
	opts.CompileTimeout = cfg.Build.CompileTimeout
	return opts
}

// acquireAll acquires every revision concurrently. Results keep the order of
// repos; the first error cancels the remaining acquisitions.
func acquireAll(ctx context.Context, selector *strategy.Selector, repos []models.RepoRef, tool models.BuildTool, opts strategy.Options) ([]*models.BuildResult, error) {
	results := make([]*models.BuildResult, len(repos))
	g, ctx := errgroup.WithContext(ctx)
	for i, repo := range repos {
		g.Go(func() error {
			r, err := selector.Acquire(ctx, repo, tool, opts)
			if err != nil {
				return fmt.Errorf("acquiring %s: %w", repo.CacheKey(), err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	clog.FromContext(ctx).With("count", len(results)).Debugf("acquired build results")
	return results, nil
}

func printBuildResult(w io.Writer, repo models.RepoRef, r *models.BuildResult) {
	source := "fresh build"
	if r.Strategy == models.StrategyCI {
		source = fmt.Sprintf("CI run %d (%s)", r.RunID, r.RunName)
		if r.Cached {
			source += ", cached"
		}
	}
	if r.Success {
		printStatus(w, "✓", fmt.Sprintf("%s: build succeeded via %s", repo.CacheKey(), source), color.FgGreen)
	} else {
		printStatus(w, "✗", fmt.Sprintf("%s: build failed via %s", repo.CacheKey(), source), color.FgRed)
	}
	if r.ToolVersion != "" {
		fmt.Fprintf(w, "  Tool version: %s\n", r.ToolVersion)
	}
	if r.Recovery != nil {
		printStatus(w, "!", fmt.Sprintf("  recovered with %s: %s", r.Recovery.Action, r.Recovery.Message), color.FgYellow)
	}
	if len(r.Failures) > 0 {
		fmt.Fprintln(w)
		fmt.Fprint(w, report.Failures(r.Failures))
	}
	if r.Audit.Len() > 0 {
		fmt.Fprintln(w)
		fmt.Fprint(w, report.Audit(r.Audit.Entries()))
	}
	if buildLogs && r.Logs != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, r.Logs)
	}
}

func init() {
	buildCmd.Flags().StringSliceVar(&buildRefs, "ref", nil, "branch or tag to build (repeatable)")
	buildCmd.Flags().StringVar(&buildCommit, "commit", "", "exact commit to build")
	buildCmd.Flags().StringVar(&buildTool, "tool", "", "build tool: maven or gradle (default: detect)")
	buildCmd.Flags().BoolVar(&buildSkipTests, "skip-tests", false, "build without running tests")
	buildCmd.Flags().BoolVar(&buildNoCI, "no-ci", false, "skip CI lookup and always build")
	buildCmd.Flags().BoolVar(&buildNoBuild, "no-build", false, "only read CI results, never build")
	buildCmd.Flags().BoolVar(&buildNoCache, "no-cache", false, "do not read or write the result cache")
	buildCmd.Flags().BoolVar(&buildLogs, "logs", false, "print the full build logs")
}
