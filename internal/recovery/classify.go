// Package recovery classifies unexpected orchestration errors and decides how
// to respond to them: retry, fall back, degrade, or abort.
package recovery

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"regexp"
	"strconv"
	"strings"
	"syscall"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/google/go-github/v75/github"

	bexec "github.com/ShayCichocki/bacardi/internal/exec"
	"github.com/ShayCichocki/bacardi/pkg/models"
)

// Rule maps errors to a category. Rules are evaluated in order and the first
// match wins.
type Rule struct {
	Category models.ErrorCategory
	// Match inspects the error and its lowercased "type: message" text.
	Match func(err error, text string) bool
}

func keywords(words ...string) *regexp.Regexp {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

func as[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}

var (
	networkWords    = keywords("network", "connection", "connection refused", "connection reset", "no such host", "dial tcp", "i/o timeout", "timeout", "timed out", "tls handshake", "unreachable", "eof")
	apiWords        = keywords("api", "rate limit", "ratelimit", "status code", "unauthorized", "forbidden", "bad credentials", "github", "errorresponse")
	filesystemWords = keywords("file", "files", "directory", "no such file", "permission denied", "path", "patherror", "read-only file system", "is a directory", "not a directory")
	gitWords        = keywords("git", "clone", "checkout", "repository", "reference", "ref", "branch", "commit", "remote")
	buildWords      = keywords("build", "compile", "compilation", "maven", "mvn", "gradle", "javac", "exit status", "exiterror")
	parsingWords    = keywords("parse", "parsing", "syntax", "syntaxerror", "unmarshal", "decode", "invalid character", "malformed", "unexpected token", "numerror")
	resourceWords   = keywords("memory", "out of memory", "resource", "no space left", "disk full", "quota", "cannot allocate", "too many")
)

// httpStatusPattern matches an HTTP client or server error status in a message.
var httpStatusPattern = regexp.MustCompile(`\bhttp(?:/[\d.]+)? [45]\d\d\b`)

// DefaultRules returns the classification table in priority order:
// network, api, filesystem, git, build, parsing, resource.
// Anything else is unknown.
func DefaultRules() []Rule {
	return []Rule{
		{Category: models.CategoryNetwork, Match: func(err error, text string) bool {
			return as[net.Error](err) || errors.Is(err, syscall.ECONNREFUSED) ||
				errors.Is(err, syscall.ECONNRESET) || networkWords.MatchString(text)
		}},
		{Category: models.CategoryAPI, Match: func(err error, text string) bool {
			return as[*github.ErrorResponse](err) || as[*github.RateLimitError](err) ||
				as[*github.AbuseRateLimitError](err) || apiWords.MatchString(text) ||
				httpStatusPattern.MatchString(text)
		}},
		{Category: models.CategoryFilesystem, Match: func(err error, text string) bool {
			return as[*fs.PathError](err) || errors.Is(err, fs.ErrNotExist) ||
				errors.Is(err, fs.ErrPermission) || filesystemWords.MatchString(text)
		}},
		{Category: models.CategoryGit, Match: func(err error, text string) bool {
			return errors.Is(err, git.ErrRepositoryNotExists) || errors.Is(err, plumbing.ErrReferenceNotFound) ||
				errors.Is(err, transport.ErrRepositoryNotFound) || errors.Is(err, transport.ErrAuthenticationRequired) ||
				gitWords.MatchString(text)
		}},
		{Category: models.CategoryBuild, Match: func(err error, text string) bool {
			return as[*bexec.ExitError](err) || buildWords.MatchString(text)
		}},
		{Category: models.CategoryParsing, Match: func(err error, text string) bool {
			return as[*json.SyntaxError](err) || as[*json.UnmarshalTypeError](err) ||
				as[*xml.SyntaxError](err) || as[*strconv.NumError](err) || parsingWords.MatchString(text)
		}},
		{Category: models.CategoryResource, Match: func(err error, text string) bool {
			return errors.Is(err, syscall.ENOMEM) || errors.Is(err, syscall.ENOSPC) ||
				resourceWords.MatchString(text)
		}},
	}
}

// describe renders the error chain's type names and the message for keyword matching.
func describe(err error) string {
	var b strings.Builder
	for e := err; e != nil; e = errors.Unwrap(e) {
		name := fmt.Sprintf("%T", e)
		if i := strings.LastIndexAny(name, "*."); i >= 0 {
			name = name[i+1:]
		}
		b.WriteString(name)
		b.WriteByte(' ')
	}
	b.WriteString(err.Error())
	return strings.ToLower(b.String())
}

var defaultRules = DefaultRules()

// Classify returns the category of err, or unknown.
func Classify(err error) models.ErrorCategory {
	return classifyWith(defaultRules, err)
}

func classifyWith(rules []Rule, err error) models.ErrorCategory {
	if err == nil {
		return models.CategoryUnknown
	}
	text := describe(err)
	for _, r := range rules {
		if r.Match(err, text) {
			return r.Category
		}
	}
	return models.CategoryUnknown
}
