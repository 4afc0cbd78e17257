package main

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/bacardi/internal/report"
	"github.com/ShayCichocki/bacardi/internal/state"
	"github.com/ShayCichocki/bacardi/internal/validation"
)

var (
	historyLimit   int
	historyAll     bool
	cacheOlderThan time.Duration
)

var historyCmd = &cobra.Command{
	Use:   "history [path]",
	Short: "List recorded validation results",
	Long: `List the gate decisions recorded by validate for the repository at path
(default: the current directory), newest first. Use --all for every repository.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repoPath := ""
		if !historyAll {
			p := "."
			if len(args) == 1 {
				p = args[0]
			}
			abs, err := filepath.Abs(p)
			if err != nil {
				return err
			}
			repoPath = abs
		}

		db, err := openState()
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.ListValidations(cmd.Context(), repoPath, historyLimit)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), outputFormat, runs, func(w io.Writer) error {
			return printHistory(w, runs)
		})
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one recorded validation report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openState()
		if err != nil {
			return err
		}
		defer db.Close()

		run, err := db.GetValidation(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if run == nil {
			return fmt.Errorf("no validation run %q", args[0])
		}
		return render(cmd.OutOrStdout(), outputFormat, run, func(w io.Writer) error {
			fmt.Fprintf(w, "Run %s for %s at %s\n\n", run.ID, run.RepoPath, run.CreatedAt.Local().Format(time.DateTime))
			_, err := io.WriteString(w, validation.GenerateReport(&run.Result))
			return err
		})
	},
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge-cache",
	Short: "Remove cached CI build results",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openState()
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := db.PurgeCache(cmd.Context(), cacheOlderThan)
		if err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), "✓", fmt.Sprintf("Removed %d cached build result(s)", n), color.FgGreen)
		return nil
	},
}

func openState() (*state.DB, error) {
	db, err := state.Open(appConfig.State.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening state: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating state: %w", err)
	}
	return db, nil
}

func printHistory(w io.Writer, runs []state.ValidationRun) error {
	if len(runs) == 0 {
		printStatus(w, "●", "No validation runs recorded", color.FgYellow)
		return nil
	}
	table := report.NewTable([]string{"ID", "Repository", "Decision", "Build", "Tests", "Failure rate", "When"}, w)
	for _, r := range runs {
		decision := "reject"
		if r.Result.ShouldCreatePR {
			decision = "create PR"
		}
		if err := table.Append([]string{
			r.ID,
			r.RepoPath,
			decision,
			passFail(r.Result.BuildPassed),
			passFail(r.Result.TestsPassed),
			fmt.Sprintf("%.1f%%", r.Result.FailureRate*100),
			r.CreatedAt.Local().Format(time.DateTime),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

func passFail(ok bool) string {
	if ok {
		return "pass"
	}
	return "fail"
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of runs to list (0 for all)")
	historyCmd.Flags().BoolVar(&historyAll, "all", false, "list runs for every repository")
	cachePurgeCmd.Flags().DurationVar(&cacheOlderThan, "older-than", 7*24*time.Hour, "remove results stored longer ago than this")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(cachePurgeCmd)
}
