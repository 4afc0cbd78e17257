package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/bacardi/internal/config"
	"github.com/ShayCichocki/bacardi/pkg/models"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify Bacardi configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/bacardi/config.yaml
Project-specific overrides can be placed in .bacardi.yaml
The GitHub token is read from BACARDI_GITHUB_TOKEN or GITHUB_TOKEN and is
never written by this command.`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := appConfig
		out := cmd.OutOrStdout()

		switch len(args) {
		case 0:
			return displayAllConfig(out, cfg)
		case 1:
			value, err := getConfigValue(cfg, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(out, value)
			return nil
		default:
			if err := setConfigValue(cfg, args[0], args[1]); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.Save(cfg); err != nil {
				return fmt.Errorf("saving config: %w", err)
			}
			fmt.Fprintf(out, "Set %s = %s\n", args[0], args[1])
			return nil
		}
	},
}

// configKeys lists the keys shown by displayAllConfig, in order.
var configKeys = []string{
	"github.token",
	"github.api_url",
	"build.tool",
	"build.skip_tests",
	"build.work_dir",
	"build.clone_timeout",
	"build.build_timeout",
	"build.test_timeout",
	"build.compile_timeout",
	"gate.build_attempts",
	"gate.retry_delay",
	"gate.accept_failure_rate",
	"gate.max_failure_rate",
	"gate.critical_max_failure_rate",
	"dependencies.min_significance",
	"dependencies.ignored",
	"recovery.network_delay",
	"state.db_path",
	"log.level",
	"metrics.textfile",
}

// displayAllConfig prints all configuration values.
func displayAllConfig(w io.Writer, cfg *config.Config) error {
	for _, key := range configKeys {
		value, err := getConfigValue(cfg, key)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s: %s\n", key, value)
	}
	return nil
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "github.token":
		token, err := config.GetToken(cfg)
		if err != nil {
			return "(not set)", nil
		}
		return fmt.Sprintf("%s (%s)", config.MaskToken(token), config.GetTokenSource(cfg)), nil
	case "github.api_url":
		return orNotSet(cfg.GitHub.APIURL), nil
	case "build.tool":
		return orNotSet(cfg.Build.Tool), nil
	case "build.skip_tests":
		return strconv.FormatBool(cfg.Build.SkipTests), nil
	case "build.work_dir":
		return orNotSet(cfg.Build.WorkDir), nil
	case "build.clone_timeout":
		return cfg.Build.CloneTimeout.String(), nil
	case "build.build_timeout":
		return cfg.Build.BuildTimeout.String(), nil
	case "build.test_timeout":
		return cfg.Build.TestTimeout.String(), nil
	case "build.compile_timeout":
		return cfg.Build.CompileTimeout.String(), nil
	case "gate.build_attempts":
		return strconv.Itoa(cfg.Gate.BuildAttempts), nil
	case "gate.retry_delay":
		return cfg.Gate.RetryDelay.String(), nil
	case "gate.accept_failure_rate":
		return formatRate(cfg.Gate.AcceptFailureRate), nil
	case "gate.max_failure_rate":
		return formatRate(cfg.Gate.MaxFailureRate), nil
	case "gate.critical_max_failure_rate":
		return formatRate(cfg.Gate.CriticalMaxFailureRate), nil
	case "dependencies.min_significance":
		return cfg.Dependencies.MinSignificance, nil
	case "dependencies.ignored":
		return strings.Join(cfg.Dependencies.Ignored, ","), nil
	case "recovery.network_delay":
		return cfg.Recovery.NetworkDelay.String(), nil
	case "state.db_path":
		return cfg.State.DBPath, nil
	case "log.level":
		return cfg.Log.Level, nil
	case "metrics.textfile":
		return orNotSet(cfg.Metrics.Textfile), nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "github.token":
		return fmt.Errorf("the GitHub token is not stored in config; set BACARDI_GITHUB_TOKEN or GITHUB_TOKEN")
	case "github.api_url":
		cfg.GitHub.APIURL = value
	case "build.tool":
		if value != "" {
			if _, err := models.ParseBuildTool(value); err != nil {
				return err
			}
		}
		cfg.Build.Tool = value
	case "build.skip_tests":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for build.skip_tests: %w", err)
		}
		cfg.Build.SkipTests = b
	case "build.work_dir":
		cfg.Build.WorkDir = value
	case "build.clone_timeout":
		return setDuration(&cfg.Build.CloneTimeout, key, value)
	case "build.build_timeout":
		return setDuration(&cfg.Build.BuildTimeout, key, value)
	case "build.test_timeout":
		return setDuration(&cfg.Build.TestTimeout, key, value)
	case "build.compile_timeout":
		return setDuration(&cfg.Build.CompileTimeout, key, value)
	case "gate.build_attempts":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for gate.build_attempts: %w", err)
		}
		cfg.Gate.BuildAttempts = n
	case "gate.retry_delay":
		return setDuration(&cfg.Gate.RetryDelay, key, value)
	case "gate.accept_failure_rate":
		return setRate(&cfg.Gate.AcceptFailureRate, key, value)
	case "gate.max_failure_rate":
		return setRate(&cfg.Gate.MaxFailureRate, key, value)
	case "gate.critical_max_failure_rate":
		return setRate(&cfg.Gate.CriticalMaxFailureRate, key, value)
	case "dependencies.min_significance":
		cfg.Dependencies.MinSignificance = value
	case "dependencies.ignored":
		cfg.Dependencies.Ignored = splitList(value)
	case "recovery.network_delay":
		return setDuration(&cfg.Recovery.NetworkDelay, key, value)
	case "state.db_path":
		cfg.State.DBPath = value
	case "log.level":
		cfg.Log.Level = value
	case "metrics.textfile":
		cfg.Metrics.Textfile = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

func setDuration(dst *time.Duration, key, value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	*dst = d
	return nil
}

func setRate(dst *float64, key, value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid rate for %s: %w", key, err)
	}
	*dst = f
	return nil
}

func formatRate(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func splitList(value string) []string {
	var out []string
	for _, s := range strings.Split(value, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func orNotSet(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}
