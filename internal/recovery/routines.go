package recovery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode"
)

// reattempt waits NetworkDelay and runs the operation once more.
func (e *Engine) reattempt(ctx context.Context, rc Context) (any, error) {
	if rc.Operation == nil {
		return nil, errors.New("no operation to re-attempt")
	}
	if err := e.opts.Sleep(ctx, e.opts.NetworkDelay); err != nil {
		return nil, err
	}
	return rc.Operation(ctx)
}

// cachedResult serves a previously stored result. A miss degrades to no fallback.
func (e *Engine) cachedResult(ctx context.Context, rc Context) (any, error) {
	if e.opts.Cache == nil || rc.CacheKey == "" {
		return nil, nil
	}
	result, ok, err := e.opts.Cache.Get(ctx, rc.CacheKey)
	if err != nil {
		return nil, fmt.Errorf("cache lookup %s: %w", rc.CacheKey, err)
	}
	if !ok {
		return nil, nil
	}
	cached := *result
	cached.Cached = true
	return &cached, nil
}

// alternatePath returns the first alternate path that exists.
func (e *Engine) alternatePath(_ context.Context, rc Context) (any, error) {
	for _, p := range rc.AlternatePaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return nil, errors.New("no alternate path available")
}

// shallowReclone clears the clone directory and clones the same revision
// into it at depth 1.
func (e *Engine) shallowReclone(ctx context.Context, rc Context) (any, error) {
	if e.opts.Cloner == nil || rc.Clone.URL == "" || rc.Clone.Dir == "" {
		return nil, errors.New("no repository to re-clone")
	}
	if err := os.RemoveAll(rc.Clone.Dir); err != nil {
		return nil, fmt.Errorf("clear clone dir: %w", err)
	}
	if err := e.opts.Cloner.ShallowClone(ctx, rc.Clone); err != nil {
		return nil, fmt.Errorf("shallow clone: %w", err)
	}
	return rc.Clone.Dir, nil
}

// sanitize returns the content with control characters and comments removed.
func (e *Engine) sanitize(_ context.Context, rc Context) (any, error) {
	if rc.Content == "" {
		return nil, errors.New("no content to sanitize")
	}
	return Sanitize(rc.Content), nil
}

var (
	xmlCommentPattern   = regexp.MustCompile(`(?s)<!--.*?-->`)
	blockCommentPattern = regexp.MustCompile(`(?s)/\*.*?\*/`)
	lineCommentPattern  = regexp.MustCompile(`(?m)^[ \t]*(?://|#).*$\n?`)
)

// Sanitize strips control characters (other than tab and newline) and
// XML, block and whole-line comments.
func Sanitize(content string) string {
	out := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, content)
	out = xmlCommentPattern.ReplaceAllString(out, "")
	out = blockCommentPattern.ReplaceAllString(out, "")
	return lineCommentPattern.ReplaceAllString(out, "")
}
