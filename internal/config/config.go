// Package config handles configuration loading and management for bacardi.
// It supports XDG config paths, project-level overrides, .env files and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ShayCichocki/bacardi/pkg/models"
)

// ProjectConfigName is the project-level config file searched from the
// working directory upwards.
const ProjectConfigName = ".bacardi.yaml"

// Config holds all configuration for bacardi.
type Config struct {
	GitHub       GitHubConfig       `mapstructure:"github"`
	Build        BuildConfig        `mapstructure:"build"`
	Gate         GateConfig         `mapstructure:"gate"`
	Dependencies DependenciesConfig `mapstructure:"dependencies"`
	Recovery     RecoveryConfig     `mapstructure:"recovery"`
	State        StateConfig        `mapstructure:"state"`
	Log          LogConfig          `mapstructure:"log"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
}

// GitHubConfig holds GitHub API settings.
type GitHubConfig struct {
	Token  string `mapstructure:"token"`
	APIURL string `mapstructure:"api_url"`
}

// BuildConfig holds build acquisition settings.
type BuildConfig struct {
	// Tool forces maven or gradle; empty means detect.
	Tool           string        `mapstructure:"tool"`
	SkipTests      bool          `mapstructure:"skip_tests"`
	WorkDir        string        `mapstructure:"work_dir"`
	CloneTimeout   time.Duration `mapstructure:"clone_timeout"`
	BuildTimeout   time.Duration `mapstructure:"build_timeout"`
	TestTimeout    time.Duration `mapstructure:"test_timeout"`
	CompileTimeout time.Duration `mapstructure:"compile_timeout"`
}

// GateConfig holds the pull-request gate settings.
type GateConfig struct {
	BuildAttempts          int           `mapstructure:"build_attempts"`
	RetryDelay             time.Duration `mapstructure:"retry_delay"`
	AcceptFailureRate      float64       `mapstructure:"accept_failure_rate"`
	MaxFailureRate         float64       `mapstructure:"max_failure_rate"`
	CriticalMaxFailureRate float64       `mapstructure:"critical_max_failure_rate"`
}

// DependenciesConfig holds dependency diff settings.
type DependenciesConfig struct {
	MinSignificance string   `mapstructure:"min_significance"`
	Ignored         []string `mapstructure:"ignored"`
}

// RecoveryConfig holds error recovery settings.
type RecoveryConfig struct {
	NetworkDelay time.Duration `mapstructure:"network_delay"`
}

// StateConfig holds persistence settings.
type StateConfig struct {
	// DBPath is the SQLite database; empty disables persistence.
	DBPath string `mapstructure:"db_path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// MetricsConfig holds metrics export settings.
type MetricsConfig struct {
	// Textfile is the node-exporter textfile written on exit; empty disables it.
	Textfile string `mapstructure:"textfile"`
}

// Validate checks values that viper cannot type-check.
func (c *Config) Validate() error {
	var errs []error
	if c.Build.Tool != "" {
		if _, err := models.ParseBuildTool(c.Build.Tool); err != nil {
			errs = append(errs, fmt.Errorf("build.tool: %w", err))
		}
	}
	if !models.Significance(c.Dependencies.MinSignificance).Valid() {
		errs = append(errs, fmt.Errorf("dependencies.min_significance: unknown significance %q", c.Dependencies.MinSignificance))
	}
	if c.Gate.BuildAttempts < 1 {
		errs = append(errs, fmt.Errorf("gate.build_attempts must be at least 1, got %d", c.Gate.BuildAttempts))
	}
	for name, rate := range map[string]float64{
		"gate.accept_failure_rate":       c.Gate.AcceptFailureRate,
		"gate.max_failure_rate":          c.Gate.MaxFailureRate,
		"gate.critical_max_failure_rate": c.Gate.CriticalMaxFailureRate,
	} {
		if rate < 0 || rate > 1 {
			errs = append(errs, fmt.Errorf("%s must be within [0,1], got %v", name, rate))
		}
	}
	return errors.Join(errs...)
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (BACARDI_*, GITHUB_TOKEN, GITHUB_API_URL), including a .env file
// 2. Project config (.bacardi.yaml in current directory or parent)
// 3. User config (~/.config/bacardi/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading project config %s: %w", projectConfig, err)
		}
		if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	bindEnv(v)
	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific path (for testing).
// Environment variables still apply.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	bindEnv(v)
	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.GitHub.Token = os.ExpandEnv(cfg.GitHub.Token)
	cfg.State.DBPath = expandHome(cfg.State.DBPath)
	cfg.Build.WorkDir = expandHome(cfg.Build.WorkDir)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// bindEnv maps BACARDI_SECTION_KEY variables onto section.key and the
// conventional GitHub variables onto the github section.
func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("BACARDI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.BindEnv("github.token", "BACARDI_GITHUB_TOKEN", "GITHUB_TOKEN")
	v.BindEnv("github.api_url", "BACARDI_GITHUB_API_URL", "GITHUB_API_URL")
}

// loadDotEnv loads variables from path without overriding ones already set.
// A missing file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Save writes the configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return SaveTo(cfg, filepath.Join(userConfigDir, "config.yaml"))
}

// SaveTo writes the configuration to path. The GitHub token is never written.
func SaveTo(cfg *Config, path string) error {
	v := viper.New()
	v.SetConfigFile(path)

	v.Set("github.api_url", cfg.GitHub.APIURL)
	v.Set("build.tool", cfg.Build.Tool)
	v.Set("build.skip_tests", cfg.Build.SkipTests)
	v.Set("build.work_dir", cfg.Build.WorkDir)
	v.Set("build.clone_timeout", cfg.Build.CloneTimeout.String())
	v.Set("build.build_timeout", cfg.Build.BuildTimeout.String())
	v.Set("build.test_timeout", cfg.Build.TestTimeout.String())
	v.Set("build.compile_timeout", cfg.Build.CompileTimeout.String())
	v.Set("gate.build_attempts", cfg.Gate.BuildAttempts)
	v.Set("gate.retry_delay", cfg.Gate.RetryDelay.String())
	v.Set("gate.accept_failure_rate", cfg.Gate.AcceptFailureRate)
	v.Set("gate.max_failure_rate", cfg.Gate.MaxFailureRate)
	v.Set("gate.critical_max_failure_rate", cfg.Gate.CriticalMaxFailureRate)
	v.Set("dependencies.min_significance", cfg.Dependencies.MinSignificance)
	v.Set("dependencies.ignored", cfg.Dependencies.Ignored)
	v.Set("recovery.network_delay", cfg.Recovery.NetworkDelay.String())
	v.Set("state.db_path", cfg.State.DBPath)
	v.Set("log.level", cfg.Log.Level)
	v.Set("metrics.textfile", cfg.Metrics.Textfile)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("github.token", "")
	v.SetDefault("github.api_url", "")

	v.SetDefault("build.tool", "")
	v.SetDefault("build.skip_tests", d.Build.SkipTests)
	v.SetDefault("build.work_dir", "")
	v.SetDefault("build.clone_timeout", "10m")
	v.SetDefault("build.build_timeout", "30m")
	v.SetDefault("build.test_timeout", "30m")
	v.SetDefault("build.compile_timeout", "10m")

	v.SetDefault("gate.build_attempts", d.Gate.BuildAttempts)
	v.SetDefault("gate.retry_delay", "5s")
	v.SetDefault("gate.accept_failure_rate", d.Gate.AcceptFailureRate)
	v.SetDefault("gate.max_failure_rate", d.Gate.MaxFailureRate)
	v.SetDefault("gate.critical_max_failure_rate", d.Gate.CriticalMaxFailureRate)

	v.SetDefault("dependencies.min_significance", d.Dependencies.MinSignificance)
	v.SetDefault("dependencies.ignored", []string{})

	v.SetDefault("recovery.network_delay", "2s")
	v.SetDefault("state.db_path", d.State.DBPath)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("metrics.textfile", "")
}

// getUserConfigDir returns the XDG config directory for bacardi.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "bacardi")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "bacardi")
	}
	return filepath.Join(home, ".config", "bacardi")
}

// findProjectConfig searches for .bacardi.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ProjectConfigName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandHome expands a leading ~/ and ${VAR} references.
func expandHome(p string) string {
	p = os.ExpandEnv(p)
	if rest, ok := strings.CutPrefix(p, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}
	return p
}

// defaultDBPath mirrors state.DefaultDBPath without importing the driver.
func defaultDBPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "bacardi", "bacardi.db")
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Build: BuildConfig{
			CloneTimeout:   10 * time.Minute,
			BuildTimeout:   30 * time.Minute,
			TestTimeout:    30 * time.Minute,
			CompileTimeout: 10 * time.Minute,
		},
		Gate: GateConfig{
			BuildAttempts:          3,
			RetryDelay:             5 * time.Second,
			AcceptFailureRate:      0.10,
			MaxFailureRate:         0.20,
			CriticalMaxFailureRate: 0.05,
		},
		Dependencies: DependenciesConfig{
			MinSignificance: string(models.SignificanceMinor),
			Ignored:         []string{},
		},
		Recovery: RecoveryConfig{
			NetworkDelay: 2 * time.Second,
		},
		State: StateConfig{
			DBPath: defaultDBPath(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
