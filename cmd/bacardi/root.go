package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/bacardi/internal/config"
	"github.com/ShayCichocki/bacardi/internal/metrics"
)

var (
	cfgFile      string
	logLevel     string
	outputFormat string

	// appConfig is resolved once per invocation in the persistent pre-run.
	appConfig *config.Config
)

// exitError carries a process exit status that is not a plain failure.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

var rootCmd = &cobra.Command{
	Use:   "bacardi",
	Short: "Build analysis and validation for dependency fixes",
	Long: `Bacardi obtains build results for Java repositories, explains build
failures, assesses dependency version changes and gates automated dependency
fixes before a pull request is opened.

Build data comes from the most relevant completed CI run when one exists and
from an isolated Maven or Gradle build otherwise.

Configuration is read from ~/.config/bacardi/config.yaml, a project
.bacardi.yaml and BACARDI_* environment variables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		appConfig = cfg

		level := logLevel
		if level == "" {
			level = cfg.Log.Level
		}
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return fmt.Errorf("invalid log level %q", level)
		}
		handler := tint.NewHandler(os.Stderr, &tint.Options{
			Level:      lvl,
			TimeFormat: time.RFC3339,
		})
		cmd.SetContext(clog.WithLogger(cmd.Context(), clog.New(handler)))

		return checkOutputFormat(outputFormat)
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return writeMetrics(cmd.Context())
	},
}

func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.LoadFromPath(cfgFile)
	}
	return config.Load()
}

func writeMetrics(ctx context.Context) error {
	if appConfig == nil || appConfig.Metrics.Textfile == "" {
		return nil
	}
	if err := metrics.WriteTextfile(appConfig.Metrics.Textfile); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	clog.FromContext(ctx).Debugf("metrics written to %s", appConfig.Metrics.Textfile)
	return nil
}

// Execute runs the root command and exits with its status.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}

	var ee *exitError
	if errors.As(err, &ee) {
		// Commands that exit with a status have already reported why.
		_ = writeMetrics(ctx)
		os.Exit(ee.code)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: user config merged with .bacardi.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (default from config)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", formatTable, "output format: table, json, yaml")

	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(depsCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
