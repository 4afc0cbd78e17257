package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/bacardi/internal/config"
	"github.com/ShayCichocki/bacardi/internal/depdiff"
	"github.com/ShayCichocki/bacardi/internal/git"
	"github.com/ShayCichocki/bacardi/internal/recovery"
	"github.com/ShayCichocki/bacardi/internal/validation"
	"github.com/ShayCichocki/bacardi/pkg/models"
)

var (
	validateTool        string
	validateCritical    bool
	validateDescription string
	validateBase        string
	validateNoRecord    bool
)

var validateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Gate a dependency fix before opening a pull request",
	Long: `Build and test the checkout at path (default: the current directory),
analyze its dependencies and run quality checks, then decide whether a pull
request should be created.

The dependency changes of the fix are read from the working tree diff against
--base. Critical fixes (--critical) are held to a stricter test failure rate.

Exits with status 2 when the pull request should not be created.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		path := "."
		if len(args) == 1 {
			path = args[0]
		}
		path, err := filepath.Abs(path)
		if err != nil {
			return err
		}

		tool, err := resolveTool(validateTool, appConfig.Build.Tool)
		if err != nil {
			return err
		}

		fix := models.FixContext{
			IsCritical:  validateCritical,
			Description: validateDescription,
		}
		if validateBase != "" {
			diff, err := git.NewRunner(path).Diff(ctx, validateBase)
			if err != nil {
				return fmt.Errorf("reading fix diff: %w", err)
			}
			if fix.Changes, err = depdiff.ScanDiff(diff); err != nil {
				return err
			}
		}

		vcfg := validatorConfig(appConfig)
		if !validateNoRecord {
			store, err := openState()
			if err != nil {
				return err
			}
			defer store.Close()
			vcfg.Recorder = store
		}

		result, err := validation.NewValidator(vcfg).Validate(ctx, path, tool, fix)
		if err != nil {
			return err
		}

		err = render(cmd.OutOrStdout(), outputFormat, result, func(w io.Writer) error {
			_, err := io.WriteString(w, validation.GenerateReport(result))
			return err
		})
		if err != nil {
			return err
		}
		if !result.ShouldCreatePR {
			return &exitError{code: 2, msg: "pull request rejected"}
		}
		return nil
	},
}

// validatorConfig maps the gate settings onto a validator configuration.
func validatorConfig(cfg *config.Config) validation.Config {
	vcfg := validation.DefaultConfig()
	vcfg.Retry = validation.RetryConfig{
		MaxAttempts: cfg.Gate.BuildAttempts,
		Delay:       cfg.Gate.RetryDelay,
	}
	vcfg.Thresholds = validation.Thresholds{
		AcceptFailureRate:      cfg.Gate.AcceptFailureRate,
		MaxFailureRate:         cfg.Gate.MaxFailureRate,
		CriticalMaxFailureRate: cfg.Gate.CriticalMaxFailureRate,
	}
	vcfg.BuildTimeout = cfg.Build.BuildTimeout
	vcfg.TestTimeout = cfg.Build.TestTimeout

	rcfg := recovery.DefaultOptions()
	rcfg.NetworkDelay = cfg.Recovery.NetworkDelay
	vcfg.Recovery = rcfg
	return vcfg
}

func init() {
	validateCmd.Flags().StringVar(&validateTool, "tool", "", "build tool: maven or gradle (default: detect)")
	validateCmd.Flags().BoolVar(&validateCritical, "critical", false, "treat the fix as critical")
	validateCmd.Flags().StringVar(&validateDescription, "description", "", "short description of the fix")
	validateCmd.Flags().StringVar(&validateBase, "base", "HEAD", "ref the fix is compared against; empty skips the diff")
	validateCmd.Flags().BoolVar(&validateNoRecord, "no-record", false, "do not store the result in the validation history")
}
