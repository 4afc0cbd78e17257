package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"golang.org/x/oauth2"
)

// CloneOptions selects what to clone and where.
type CloneOptions struct {
	URL string
	Dir string
	// Ref is a branch name or a full reference; empty clones the default branch.
	Ref string
	// Commit, when set, is checked out after the clone. It forces a full
	// history clone because a depth 1 clone may not contain the commit.
	Commit string
}

// Cloner clones remote repositories with go-git.
type Cloner struct {
	tokenSource oauth2.TokenSource
}

// NewCloner creates a Cloner. A nil token source clones anonymously.
func NewCloner(ts oauth2.TokenSource) *Cloner {
	return &Cloner{tokenSource: ts}
}

// Clone clones opts.URL into opts.Dir and returns the checked out commit.
func (c *Cloner) Clone(ctx context.Context, opts CloneOptions) (string, error) {
	if opts.URL == "" || opts.Dir == "" {
		return "", errors.New("clone requires a url and a directory")
	}

	auth, err := c.authForRemote(opts.URL)
	if err != nil {
		return "", fmt.Errorf("getting token: %w", err)
	}

	cloneOpts := &git.CloneOptions{
		URL:  opts.URL,
		Tags: git.NoTags,
	}
	if auth != nil {
		cloneOpts.Auth = auth
	}
	if opts.Ref != "" {
		cloneOpts.ReferenceName = referenceName(opts.Ref)
		cloneOpts.SingleBranch = true
	}
	if opts.Commit == "" {
		cloneOpts.Depth = 1
	}

	clog.FromContext(ctx).Infof("Cloning repository %s into %s", opts.URL, opts.Dir)
	repo, err := git.PlainCloneContext(ctx, opts.Dir, false, cloneOpts)
	if err != nil {
		return "", fmt.Errorf("cloning repository: %w", err)
	}

	if opts.Commit != "" {
		wt, err := repo.Worktree()
		if err != nil {
			return "", fmt.Errorf("getting worktree: %w", err)
		}
		hash := plumbing.NewHash(opts.Commit)
		if _, err := repo.CommitObject(hash); err != nil {
			return "", fmt.Errorf("resolving commit %s: %w", opts.Commit, err)
		}
		if err := wt.Checkout(&git.CheckoutOptions{Hash: hash, Force: true}); err != nil {
			return "", fmt.Errorf("checking out commit %s: %w", opts.Commit, err)
		}
		return hash.String(), nil
	}

	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("reading HEAD: %w", err)
	}
	return head.Hash().String(), nil
}

// ShallowClone clones opts.Ref into opts.Dir at depth 1. A depth 1 clone
// only holds the tip of the ref, so when opts.Commit is set it must be that
// tip; otherwise the clone fails rather than yield a different revision.
func (c *Cloner) ShallowClone(ctx context.Context, opts CloneOptions) error {
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return fmt.Errorf("creating clone dir: %w", err)
	}
	want := opts.Commit
	opts.Commit = ""
	head, err := c.Clone(ctx, opts)
	if err != nil {
		return err
	}
	if !atCommit(head, want) {
		return fmt.Errorf("shallow clone of %s is at %s, not commit %s", opts.URL, head, want)
	}
	return nil
}

// atCommit reports whether head is the commit want names, which may be
// abbreviated. An empty want accepts any head.
func atCommit(head, want string) bool {
	return want == "" || strings.HasPrefix(head, strings.ToLower(want))
}

func (c *Cloner) authForRemote(url string) (*githttp.BasicAuth, error) {
	if c.tokenSource == nil || !strings.HasPrefix(url, "https://") {
		return nil, nil
	}
	token, err := c.tokenSource.Token()
	if err != nil {
		return nil, err
	}
	if token.AccessToken == "" {
		return nil, nil
	}
	return &githttp.BasicAuth{
		Username: "x-access-token",
		Password: token.AccessToken,
	}, nil
}

func referenceName(ref string) plumbing.ReferenceName {
	if strings.HasPrefix(ref, "refs/") {
		return plumbing.ReferenceName(ref)
	}
	return plumbing.NewBranchReferenceName(ref)
}
