package config

import (
	"errors"
	"os"
	"strings"

	"golang.org/x/oauth2"
)

// ErrNoToken is returned when no GitHub token is configured.
var ErrNoToken = errors.New("no GitHub token configured")

// GetToken returns the GitHub token from the configuration.
// It checks in order: environment variables, config file.
func GetToken(cfg *Config) (string, error) {
	for _, env := range []string{"BACARDI_GITHUB_TOKEN", "GITHUB_TOKEN"} {
		if token := os.Getenv(env); token != "" {
			return token, nil
		}
	}

	if cfg != nil && cfg.GitHub.Token != "" {
		token := os.ExpandEnv(cfg.GitHub.Token)
		if token != "" && !strings.HasPrefix(token, "${") {
			return token, nil
		}
	}

	return "", ErrNoToken
}

// TokenSource returns a static oauth2 token source for the configured token,
// or nil for anonymous access.
func TokenSource(cfg *Config) oauth2.TokenSource {
	token, err := GetToken(cfg)
	if err != nil {
		return nil
	}
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
}

// MaskToken returns a masked version of the token for display.
// Shows the first 4 characters (the token kind prefix) and last 4 characters.
func MaskToken(token string) string {
	if token == "" {
		return "(not set)"
	}

	if len(token) <= 12 {
		return "***"
	}

	return token[:4] + "..." + token[len(token)-4:]
}

// TokenSourceKind represents where a token was loaded from.
type TokenSourceKind string

const (
	TokenSourceEnv    TokenSourceKind = "environment"
	TokenSourceConfig TokenSourceKind = "config_file"
	TokenSourceNone   TokenSourceKind = "none"
)

// GetTokenSource returns where the GitHub token was sourced from.
func GetTokenSource(cfg *Config) TokenSourceKind {
	if os.Getenv("BACARDI_GITHUB_TOKEN") != "" || os.Getenv("GITHUB_TOKEN") != "" {
		return TokenSourceEnv
	}

	if cfg != nil && cfg.GitHub.Token != "" {
		token := os.ExpandEnv(cfg.GitHub.Token)
		if token != "" && !strings.HasPrefix(token, "${") {
			return TokenSourceConfig
		}
	}

	return TokenSourceNone
}
