package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-github/v75/github"
	"github.com/stretchr/testify/require"

	bexec "github.com/ShayCichocki/bacardi/internal/exec"
	"github.com/ShayCichocki/bacardi/internal/git"
	"github.com/ShayCichocki/bacardi/pkg/models"
)

func ghResponse(status int) *http.Response {
	u, _ := url.Parse("https://api.github.com/repos/acme/widgets/actions/runs")
	return &http.Response{
		StatusCode: status,
		Request:    &http.Request{Method: http.MethodGet, URL: u},
	}
}

func TestClassify(t *testing.T) {
	jsonErr := json.Unmarshal([]byte("{"), &struct{}{})

	tests := []struct {
		name string
		err  error
		want models.ErrorCategory
	}{
		{"dial error", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, models.CategoryNetwork},
		{"network keyword", errors.New("connection reset by peer"), models.CategoryNetwork},
		{"github error response", &github.ErrorResponse{Response: ghResponse(404), Message: "Not Found"}, models.CategoryAPI},
		{"rate limit", fmt.Errorf("list runs: %w", &github.RateLimitError{Response: ghResponse(403), Message: "API rate limit exceeded"}), models.CategoryAPI},
		{"http server error", errors.New("unexpected response: HTTP 503 Service Unavailable"), models.CategoryAPI},
		{"http client error", errors.New("download logs: HTTP/1.1 404 Not Found"), models.CategoryAPI},
		{"url error", &url.Error{Op: "Get", URL: "https://example.com", Err: errors.New("broken pipe")}, models.CategoryNetwork},
		{"path error", &fs.PathError{Op: "open", Path: "/nope", Err: fs.ErrNotExist}, models.CategoryFilesystem},
		{"permission", errors.New("permission denied"), models.CategoryFilesystem},
		{"git repository not found", fmt.Errorf("clone: %w", transport.ErrRepositoryNotFound), models.CategoryGit},
		{"git keyword", errors.New("checkout of branch main failed"), models.CategoryGit},
		{"exit error", &bexec.ExitError{Command: "mvn -B clean package", Result: bexec.Result{ExitCode: 1}}, models.CategoryBuild},
		{"build keyword", errors.New("gradle daemon crashed"), models.CategoryBuild},
		{"json syntax", jsonErr, models.CategoryParsing},
		{"strconv", &strconv.NumError{Func: "Atoi", Num: "x", Err: strconv.ErrSyntax}, models.CategoryParsing},
		{"memory", errors.New("out of memory"), models.CategoryResource},
		{"no space", errors.New("no space left on device"), models.CategoryResource},
		{"unknown", errors.New("something odd happened"), models.CategoryUnknown},
		{"nil", nil, models.CategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassify_PriorityOrder(t *testing.T) {
	// Mentions both a network and a build keyword; network is checked first.
	err := errors.New("maven download failed: connection refused")
	if got := Classify(err); got != models.CategoryNetwork {
		t.Errorf("Classify() = %s, want network", got)
	}
}

func TestDecide(t *testing.T) {
	for n := 0; n < 10; n++ {
		if got := Decide(models.CategoryResource, n); got != models.ActionAbort {
			t.Errorf("Decide(resource, %d) = %s, want abort", n, got)
		}
	}
	for n := 0; n < 3; n++ {
		if got := Decide(models.CategoryNetwork, n); got != models.ActionRetry {
			t.Errorf("Decide(network, %d) = %s, want retry", n, got)
		}
	}
	for n := 3; n < 6; n++ {
		if got := Decide(models.CategoryNetwork, n); got != models.ActionFallback {
			t.Errorf("Decide(network, %d) = %s, want fallback", n, got)
		}
	}

	terminal := map[models.ErrorCategory]models.RecoveryAction{
		models.CategoryAPI:        models.ActionGracefulDegradation,
		models.CategoryFilesystem: models.ActionFallback,
		models.CategoryGit:        models.ActionFallback,
		models.CategoryBuild:      models.ActionGracefulDegradation,
		models.CategoryParsing:    models.ActionFallback,
		models.CategoryUnknown:    models.ActionGracefulDegradation,
	}
	for cat, want := range terminal {
		if got := Decide(cat, MaxRetries(cat)); got != want {
			t.Errorf("Decide(%s, %d) = %s, want %s", cat, MaxRetries(cat), got, want)
		}
		if MaxRetries(cat) > 0 {
			if got := Decide(cat, MaxRetries(cat)-1); got != models.ActionRetry {
				t.Errorf("Decide(%s, %d) = %s, want retry", cat, MaxRetries(cat)-1, got)
			}
		}
	}
}

func TestRetryState(t *testing.T) {
	s := NewRetryState()
	if got := s.Increment("clone", models.CategoryGit); got != 1 {
		t.Errorf("Increment() = %d, want 1", got)
	}
	s.Increment("clone", models.CategoryGit)
	s.Increment("clone", models.CategoryNetwork)

	if got := s.Count("clone", models.CategoryGit); got != 2 {
		t.Errorf("Count(clone, git) = %d, want 2", got)
	}
	if got := s.Count("build", models.CategoryGit); got != 0 {
		t.Errorf("Count(build, git) = %d, want 0", got)
	}

	s.Reset("clone", models.CategoryGit)
	if got := s.Count("clone", models.CategoryGit); got != 0 {
		t.Errorf("Count after Reset = %d, want 0", got)
	}
	if got := s.Count("clone", models.CategoryNetwork); got != 1 {
		t.Errorf("Reset cleared unrelated counter: %d", got)
	}
	s.ResetAll()
	if got := s.Count("clone", models.CategoryNetwork); got != 0 {
		t.Errorf("Count after ResetAll = %d, want 0", got)
	}
}

func noSleep(context.Context, time.Duration) error { return nil }

func newTestEngine(opts Options) *Engine {
	opts.Sleep = noSleep
	return New(opts)
}

func TestEngine_HandleNetworkRetriesThenFallsBack(t *testing.T) {
	e := newTestEngine(DefaultOptions())
	ctx := context.Background()
	err := errors.New("dial tcp: connection refused")

	calls := 0
	rc := Context{Operation: func(context.Context) (any, error) {
		calls++
		return "recovered", nil
	}}

	for i := 1; i <= 3; i++ {
		out := e.Handle(ctx, err, "fetch", rc)
		if !out.Retry || !out.Recoverable || out.Action != models.ActionRetry {
			t.Fatalf("attempt %d: outcome = %+v, want retry", i, out)
		}
		if out.Attempt != i {
			t.Errorf("attempt %d: Attempt = %d", i, out.Attempt)
		}
	}

	out := e.Handle(ctx, err, "fetch", rc)
	if out.Action != models.ActionFallback || out.Retry || !out.Recoverable {
		t.Fatalf("outcome = %+v, want recoverable fallback", out)
	}
	if out.Fallback != "recovered" || calls != 1 {
		t.Errorf("Fallback = %v after %d calls, want re-attempt result", out.Fallback, calls)
	}
	if got := e.State().Count("fetch", models.CategoryNetwork); got != 4 {
		t.Errorf("retry count = %d, want 4", got)
	}
}

func TestEngine_HandleResourceAborts(t *testing.T) {
	e := newTestEngine(DefaultOptions())
	out := e.Handle(context.Background(), errors.New("out of memory"), "build", Context{})
	if out.Action != models.ActionAbort || out.Recoverable || !out.Handled {
		t.Fatalf("outcome = %+v, want unrecoverable abort", out)
	}
	if out.Message != "cannot proceed with build: out of memory" {
		t.Errorf("Message = %q", out.Message)
	}
}

func TestEngine_RoutineFailureIsUnrecoverable(t *testing.T) {
	e := newTestEngine(DefaultOptions())
	err := &fs.PathError{Op: "open", Path: "/missing/pom.xml", Err: fs.ErrNotExist}
	rc := Context{AlternatePaths: []string{"/also/missing"}}

	first := e.Handle(context.Background(), err, "read manifest", rc)
	if !first.Retry {
		t.Fatalf("first outcome = %+v, want retry", first)
	}
	second := e.Handle(context.Background(), err, "read manifest", rc)
	if second.Recoverable || second.Action != models.ActionFallback {
		t.Errorf("second outcome = %+v, want unrecoverable fallback", second)
	}
}

func TestEngine_FilesystemAlternatePath(t *testing.T) {
	alt := filepath.Join(t.TempDir(), "pom.xml")
	if err := os.WriteFile(alt, []byte("<project/>"), 0o644); err != nil {
		t.Fatal(err)
	}
	e := newTestEngine(DefaultOptions())
	err := &fs.PathError{Op: "open", Path: "/missing/pom.xml", Err: fs.ErrNotExist}
	rc := Context{AlternatePaths: []string{"/missing/other.xml", alt}}

	e.Handle(context.Background(), err, "read", rc)
	out := e.Handle(context.Background(), err, "read", rc)
	if !out.Recoverable || out.Fallback != alt {
		t.Errorf("outcome = %+v, want fallback %s", out, alt)
	}
}

type fakeCache struct {
	result *models.BuildResult
	err    error
}

func (c fakeCache) Get(context.Context, string) (*models.BuildResult, bool, error) {
	if c.err != nil {
		return nil, false, c.err
	}
	return c.result, c.result != nil, nil
}

func TestEngine_APICachedResult(t *testing.T) {
	apiErr := &github.ErrorResponse{Response: ghResponse(502), Message: "Server Error"}
	tests := []struct {
		name            string
		cache           ResultCache
		wantRecoverable bool
		wantCached      bool
	}{
		{"hit", fakeCache{result: &models.BuildResult{Strategy: models.StrategyCI}}, true, true},
		{"miss", fakeCache{}, true, false},
		{"error", fakeCache{err: errors.New("database is locked")}, false, false},
		{"no cache", nil, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			opts.Cache = tt.cache
			e := newTestEngine(opts)
			rc := Context{CacheKey: "acme/widgets@abc"}

			var out models.RecoveryOutcome
			for i := 0; i <= MaxRetries(models.CategoryAPI); i++ {
				out = e.Handle(context.Background(), apiErr, "ci", rc)
			}
			if out.Action != models.ActionGracefulDegradation {
				t.Fatalf("Action = %s, want graceful_degradation", out.Action)
			}
			if out.Recoverable != tt.wantRecoverable {
				t.Errorf("Recoverable = %v, want %v (%s)", out.Recoverable, tt.wantRecoverable, out.Message)
			}
			res, _ := out.Fallback.(*models.BuildResult)
			if (res != nil) != tt.wantCached {
				t.Errorf("Fallback = %v, want cached=%v", out.Fallback, tt.wantCached)
			}
			if res != nil && !res.Cached {
				t.Error("cached fallback not marked Cached")
			}
		})
	}
}

type fakeCloner struct {
	calls int
	got   git.CloneOptions
	err   error
}

func (c *fakeCloner) ShallowClone(_ context.Context, opts git.CloneOptions) error {
	c.calls++
	c.got = opts
	if c.err != nil {
		return c.err
	}
	return os.MkdirAll(opts.Dir, 0o755)
}

func TestEngine_GitShallowReclone(t *testing.T) {
	cloner := &fakeCloner{}
	opts := DefaultOptions()
	opts.Cloner = cloner
	e := newTestEngine(opts)

	dir := filepath.Join(t.TempDir(), "repo")
	rc := Context{Clone: git.CloneOptions{URL: "https://github.com/acme/widgets", Dir: dir, Ref: "main", Commit: "abc123"}}
	err := fmt.Errorf("checkout: %w", transport.ErrRepositoryNotFound)

	var out models.RecoveryOutcome
	for i := 0; i <= MaxRetries(models.CategoryGit); i++ {
		out = e.Handle(context.Background(), err, "clone", rc)
	}
	if !out.Recoverable || out.Fallback != dir || cloner.calls != 1 {
		t.Errorf("outcome = %+v after %d clones, want fallback dir", out, cloner.calls)
	}
	if diff := cmp.Diff(rc.Clone, cloner.got); diff != "" {
		t.Errorf("re-clone options mismatch (-want +got):\n%s", diff)
	}
}

func TestEngine_GitRecloneOfOtherRevisionFails(t *testing.T) {
	cloner := &fakeCloner{err: errors.New("shallow clone is at 0f0f0f, not commit deadbeef")}
	opts := DefaultOptions()
	opts.Cloner = cloner
	e := newTestEngine(opts)

	rc := Context{Clone: git.CloneOptions{URL: "https://github.com/acme/widgets", Dir: filepath.Join(t.TempDir(), "repo"), Commit: "deadbeef"}}
	err := fmt.Errorf("checkout: %w", transport.ErrRepositoryNotFound)

	var out models.RecoveryOutcome
	for i := 0; i <= MaxRetries(models.CategoryGit); i++ {
		out = e.Handle(context.Background(), err, "clone", rc)
	}
	if out.Recoverable || out.Fallback != nil {
		t.Errorf("outcome = %+v, want unrecoverable without fallback", out)
	}
}

func TestEngine_PanickingRoutineIsContained(t *testing.T) {
	e := newTestEngine(DefaultOptions())
	rc := Context{Operation: func(context.Context) (any, error) {
		panic("boom")
	}}
	err := errors.New("connection refused")

	var out models.RecoveryOutcome
	require.NotPanics(t, func() {
		for i := 0; i <= MaxRetries(models.CategoryNetwork); i++ {
			out = e.Handle(context.Background(), err, "fetch", rc)
		}
	})
	require.False(t, out.Recoverable)
	require.Contains(t, out.Message, "cannot proceed with fetch")
	require.Contains(t, out.Message, "boom")
}

func TestEngine_ParsingSanitizes(t *testing.T) {
	e := newTestEngine(DefaultOptions())
	rc := Context{Content: "{\x00\"a\": 1 /* note */}\n// trailing\n"}
	err := errors.New("invalid character in JSON")

	var out models.RecoveryOutcome
	for i := 0; i <= MaxRetries(models.CategoryParsing); i++ {
		out = e.Handle(context.Background(), err, "decode", rc)
	}
	if out.Fallback != "{\"a\": 1 }\n" {
		t.Errorf("Fallback = %q", out.Fallback)
	}
}

func TestEngine_CancelledIsNotRecovered(t *testing.T) {
	e := newTestEngine(DefaultOptions())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := e.Handle(ctx, context.Canceled, "build", Context{})
	if out.Recoverable || out.Retry || out.Action != models.ActionAbort {
		t.Errorf("outcome = %+v, want abort", out)
	}
}

func TestEngines_DoNotShareState(t *testing.T) {
	a := newTestEngine(DefaultOptions())
	b := newTestEngine(DefaultOptions())
	a.Handle(context.Background(), errors.New("connection refused"), "fetch", Context{})
	if got := b.State().Count("fetch", models.CategoryNetwork); got != 0 {
		t.Errorf("second engine count = %d, want 0", got)
	}
}

func TestDo(t *testing.T) {
	t.Run("succeeds after retries", func(t *testing.T) {
		e := newTestEngine(DefaultOptions())
		calls := 0
		got, out, err := Do(context.Background(), e, "fetch", Context{}, func(context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", errors.New("i/o timeout")
			}
			return "ok", nil
		})
		require.NoError(t, err)
		require.Nil(t, out)
		require.Equal(t, "ok", got)
		require.Equal(t, 3, calls)
	})

	t.Run("unrecoverable returns Error", func(t *testing.T) {
		e := newTestEngine(DefaultOptions())
		_, out, err := Do(context.Background(), e, "allocate", Context{}, func(context.Context) (int, error) {
			return 0, errors.New("cannot allocate memory")
		})
		var recErr *Error
		require.ErrorAs(t, err, &recErr)
		require.NotNil(t, out)
		require.Equal(t, models.CategoryResource, out.Category)
		require.Contains(t, err.Error(), "cannot proceed with allocate")
	})

	t.Run("degrades without fallback", func(t *testing.T) {
		e := newTestEngine(DefaultOptions())
		calls := 0
		got, out, err := Do(context.Background(), e, "mystery", Context{}, func(context.Context) (int, error) {
			calls++
			return 0, errors.New("something odd")
		})
		require.NoError(t, err)
		require.Equal(t, 0, got)
		require.Equal(t, models.ActionGracefulDegradation, out.Action)
		require.Equal(t, 2, calls)
	})

	t.Run("permanent errors skip recovery", func(t *testing.T) {
		e := newTestEngine(DefaultOptions())
		sentinel := errors.New("connection refused")
		calls := 0
		got, out, err := Do(context.Background(), e, "lookup", Context{}, func(context.Context) (string, error) {
			calls++
			return "partial", Permanent(sentinel)
		})
		require.ErrorIs(t, err, sentinel)
		require.Nil(t, out)
		require.Equal(t, "partial", got)
		require.Equal(t, 1, calls)
		require.Zero(t, e.State().Count("lookup", models.CategoryNetwork))
	})
}

type scriptedRunner struct {
	errs  []error
	calls int
}

func (r *scriptedRunner) Run(_ context.Context, cmd bexec.Command) (bexec.Result, error) {
	err := r.errs[min(r.calls, len(r.errs)-1)]
	r.calls++
	return bexec.Result{Output: cmd.Name + " output", ExitCode: 1}, err
}

func TestRunCommand(t *testing.T) {
	cmd := bexec.Command{Name: "mvn"}

	t.Run("exit error is returned without recovery", func(t *testing.T) {
		e := newTestEngine(DefaultOptions())
		r := &scriptedRunner{errs: []error{&bexec.ExitError{Command: "mvn"}}}
		res, out, err := RunCommand(context.Background(), e, "build", r, cmd)
		var exitErr *bexec.ExitError
		require.ErrorAs(t, err, &exitErr)
		require.Nil(t, out)
		require.Equal(t, "mvn output", res.Output)
		require.Equal(t, 1, r.calls)
	})

	t.Run("timeout is returned without recovery", func(t *testing.T) {
		e := newTestEngine(DefaultOptions())
		r := &scriptedRunner{errs: []error{&bexec.TimeoutError{Command: "mvn"}}}
		_, out, err := RunCommand(context.Background(), e, "build", r, cmd)
		var timeoutErr *bexec.TimeoutError
		require.ErrorAs(t, err, &timeoutErr)
		require.Nil(t, out)
	})

	t.Run("launch failure is retried", func(t *testing.T) {
		e := newTestEngine(DefaultOptions())
		r := &scriptedRunner{errs: []error{errors.New("connection reset by peer"), nil}}
		_, out, err := RunCommand(context.Background(), e, "build", r, cmd)
		require.NoError(t, err)
		require.Nil(t, out)
		require.Equal(t, 2, r.calls)
	})
}

func TestSanitize(t *testing.T) {
	in := "<a>\r\n<!-- comment -->\n  # hash comment\n<b>\x07x</b>\n"
	want := "<a>\n\n<b>x</b>\n"
	if got := Sanitize(in); got != want {
		t.Errorf("Sanitize() = %q, want %q", got, want)
	}
}
