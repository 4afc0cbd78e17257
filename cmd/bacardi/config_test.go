package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ShayCichocki/bacardi/internal/config"
)

func TestSetConfigValue(t *testing.T) {
	t.Setenv("BACARDI_GITHUB_TOKEN", "")
	t.Setenv("GITHUB_TOKEN", "")

	tests := []struct {
		key, value string
		want       string
		wantErr    bool
	}{
		{key: "build.tool", value: "gradle", want: "gradle"},
		{key: "build.tool", value: "ant", wantErr: true},
		{key: "build.skip_tests", value: "true", want: "true"},
		{key: "build.skip_tests", value: "maybe", wantErr: true},
		{key: "build.build_timeout", value: "45m", want: "45m0s"},
		{key: "build.build_timeout", value: "soon", wantErr: true},
		{key: "gate.build_attempts", value: "5", want: "5"},
		{key: "gate.build_attempts", value: "five", wantErr: true},
		{key: "gate.max_failure_rate", value: "0.25", want: "0.25"},
		{key: "gate.max_failure_rate", value: "a quarter", wantErr: true},
		{key: "GATE.RETRY_DELAY", value: "10s", want: "10s"},
		{key: "dependencies.ignored", value: "junit:junit, org.slf4j:slf4j-api ,", want: "junit:junit,org.slf4j:slf4j-api"},
		{key: "metrics.textfile", value: "/var/lib/node_exporter/bacardi.prom", want: "/var/lib/node_exporter/bacardi.prom"},
		{key: "github.token", value: "ghp_secret", wantErr: true},
		{key: "no.such.key", value: "x", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			cfg := config.Default()
			err := setConfigValue(cfg, tt.key, tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("setConfigValue() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			got, err := getConfigValue(cfg, tt.key)
			if err != nil {
				t.Fatalf("getConfigValue() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("getConfigValue(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestGetConfigValue_Token(t *testing.T) {
	cfg := config.Default()

	t.Setenv("BACARDI_GITHUB_TOKEN", "")
	t.Setenv("GITHUB_TOKEN", "")
	if got, _ := getConfigValue(cfg, "github.token"); got != "(not set)" {
		t.Errorf("unset token = %q, want (not set)", got)
	}

	t.Setenv("GITHUB_TOKEN", "ghp_abcdefghijklmnop")
	got, err := getConfigValue(cfg, "github.token")
	if err != nil {
		t.Fatal(err)
	}
	if got != "ghp_...mnop (environment)" {
		t.Errorf("token = %q, want masked environment token", got)
	}
}

func TestDisplayAllConfig(t *testing.T) {
	t.Setenv("BACARDI_GITHUB_TOKEN", "")
	t.Setenv("GITHUB_TOKEN", "")

	var buf bytes.Buffer
	if err := displayAllConfig(&buf, config.Default()); err != nil {
		t.Fatalf("displayAllConfig() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != len(configKeys) {
		t.Fatalf("got %d lines, want %d:\n%s", len(lines), len(configKeys), buf.String())
	}
	for i, key := range configKeys {
		if !strings.HasPrefix(lines[i], key+": ") {
			t.Errorf("line %d = %q, want key %s", i, lines[i], key)
		}
	}
	if !strings.Contains(buf.String(), "gate.critical_max_failure_rate: 0.05\n") {
		t.Errorf("missing default critical rate:\n%s", buf.String())
	}
}

func TestValidatorConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Gate.BuildAttempts = 4
	cfg.Gate.RetryDelay = time.Second
	cfg.Gate.MaxFailureRate = 0.3
	cfg.Build.TestTimeout = time.Hour
	cfg.Recovery.NetworkDelay = 3 * time.Second

	got := validatorConfig(cfg)
	if got.Retry.MaxAttempts != 4 || got.Retry.Delay != time.Second {
		t.Errorf("Retry = %+v, want 4 attempts 1s apart", got.Retry)
	}
	if got.Thresholds.MaxFailureRate != 0.3 || got.Thresholds.CriticalMaxFailureRate != 0.05 {
		t.Errorf("Thresholds = %+v", got.Thresholds)
	}
	if got.TestTimeout != time.Hour || got.Recovery.NetworkDelay != 3*time.Second {
		t.Errorf("TestTimeout = %v, NetworkDelay = %v", got.TestTimeout, got.Recovery.NetworkDelay)
	}
}

func TestAcquireOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Build.WorkDir = "/scratch"
	cfg.Build.CloneTimeout = time.Minute

	got := acquireOptions(cfg)
	if diff := cmp.Diff("/scratch", got.WorkDir); diff != "" {
		t.Errorf("WorkDir mismatch (-want +got):\n%s", diff)
	}
	if got.CloneTimeout != time.Minute || got.BuildTimeout != cfg.Build.BuildTimeout {
		t.Errorf("timeouts = %v/%v", got.CloneTimeout, got.BuildTimeout)
	}
}
