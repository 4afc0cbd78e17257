package ci

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v75/github"
	"golang.org/x/oauth2"

	"github.com/ShayCichocki/bacardi/internal/buildlog"
	"github.com/ShayCichocki/bacardi/pkg/models"
)

// MaxLogSize caps the combined log of a run.
const MaxLogSize = 8 << 20

const (
	// maxLogRedirects is the maximum number of redirects to follow when fetching logs.
	maxLogRedirects = 2

	runsPerPage = 50
	jobsPerPage = 100
)

// GitHub implements Provider with GitHub Actions.
type GitHub struct {
	client *github.Client
	// download fetches log URLs. Log URLs are pre-signed storage URLs, so
	// the authenticated API client must not be used for them.
	download   *http.Client
	maxLogSize int64
}

// NewGitHub creates a provider backed by client.
func NewGitHub(client *github.Client) *GitHub {
	return &GitHub{
		client:     client,
		download:   &http.Client{Timeout: 60 * time.Second},
		maxLogSize: MaxLogSize,
	}
}

// NewGitHubClient builds a go-github client. A nil token source is anonymous;
// a non-empty apiURL targets GitHub Enterprise.
func NewGitHubClient(ctx context.Context, ts oauth2.TokenSource, apiURL string) (*github.Client, error) {
	var httpClient *http.Client
	if ts != nil {
		httpClient = oauth2.NewClient(ctx, ts)
	}
	client := github.NewClient(httpClient)
	if apiURL == "" || strings.TrimSuffix(apiURL, "/") == "https://api.github.com" {
		return client, nil
	}
	client, err := client.WithEnterpriseURLs(apiURL, apiURL)
	if err != nil {
		return nil, fmt.Errorf("configure api url %s: %w", apiURL, err)
	}
	return client, nil
}

// CompletedRuns lists completed workflow runs for the commit, or for the
// branch when no commit is known.
func (g *GitHub) CompletedRuns(ctx context.Context, repo models.RepoRef) ([]Run, error) {
	opts := &github.ListWorkflowRunsOptions{
		Status:      "completed",
		ListOptions: github.ListOptions{PerPage: runsPerPage},
	}
	switch {
	case repo.Commit != "":
		opts.HeadSHA = repo.Commit
	case repo.Ref != "":
		opts.Branch = repo.Ref
	}

	list, _, err := g.client.Actions.ListRepositoryWorkflowRuns(ctx, repo.Owner, repo.Name, opts)
	if err != nil {
		return nil, fmt.Errorf("list workflow runs for %s: %w", repo.FullName(), err)
	}

	runs := make([]Run, 0, len(list.WorkflowRuns))
	for _, wr := range list.WorkflowRuns {
		runs = append(runs, Run{
			ID:         wr.GetID(),
			Name:       wr.GetName(),
			Conclusion: wr.GetConclusion(),
			HeadSHA:    wr.GetHeadSHA(),
			Branch:     wr.GetHeadBranch(),
			URL:        wr.GetHTMLURL(),
			FinishedAt: wr.GetUpdatedAt().Time,
		})
	}
	clog.FromContext(ctx).Debugf("found %d completed runs for %s", len(runs), repo.CacheKey())
	return runs, nil
}

// RunLog downloads the logs of every job of the run, in job order, and
// returns them concatenated and cleaned. Output beyond the size cap is dropped.
func (g *GitHub) RunLog(ctx context.Context, repo models.RepoRef, run Run) (string, error) {
	jobs, _, err := g.client.Actions.ListWorkflowJobs(ctx, repo.Owner, repo.Name, run.ID, &github.ListWorkflowJobsOptions{
		ListOptions: github.ListOptions{PerPage: jobsPerPage},
	})
	if err != nil {
		return "", fmt.Errorf("list jobs of run %d: %w", run.ID, err)
	}

	var b strings.Builder
	remaining := g.maxLogSize
	for _, job := range jobs.Jobs {
		if remaining <= 0 {
			clog.FromContext(ctx).Warnf("log of run %d truncated at %d bytes", run.ID, g.maxLogSize)
			break
		}
		logURL, _, err := g.client.Actions.GetWorkflowJobLogs(ctx, repo.Owner, repo.Name, job.GetID(), maxLogRedirects)
		if err != nil {
			return "", fmt.Errorf("get logs url of job %d: %w", job.GetID(), err)
		}
		content, err := g.downloadLogs(ctx, logURL.String(), remaining)
		if err != nil {
			return "", err
		}
		remaining -= int64(len(content))
		b.WriteString(content)
		if !strings.HasSuffix(content, "\n") {
			b.WriteByte('\n')
		}
	}
	return buildlog.Clean(b.String()), nil
}

func (g *GitHub) downloadLogs(ctx context.Context, url string, limit int64) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := g.download.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download logs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download logs: status %d", resp.StatusCode)
	}
	content, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return "", fmt.Errorf("failed to read logs: %w", err)
	}
	return string(content), nil
}

// Verify GitHub implements Provider at compile time.
var _ Provider = (*GitHub)(nil)
