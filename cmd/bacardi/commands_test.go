package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/bacardi/internal/state"
	"github.com/ShayCichocki/bacardi/pkg/models"
)

func init() {
	color.NoColor = true
}

const removalDiff = `diff --git a/pom.xml b/pom.xml
index 1111111..2222222 100644
--- a/pom.xml
+++ b/pom.xml
@@ -10,9 +10,8 @@
     <dependencies>
         <dependency>
             <groupId>com.google.guava</groupId>
             <artifactId>guava</artifactId>
-            <version>15.0</version>
         </dependency>
         <dependency>
             <groupId>junit</groupId>
             <artifactId>junit</artifactId>
`

const failingMavenLog = `[INFO] Scanning for projects...
[ERROR] /work/src/main/java/com/acme/App.java:[15,15] cannot find symbol
[INFO] BUILD FAILURE
`

func TestCheckOutputFormat(t *testing.T) {
	for _, f := range []string{formatTable, formatJSON, formatYAML} {
		if err := checkOutputFormat(f); err != nil {
			t.Errorf("checkOutputFormat(%q) error = %v", f, err)
		}
	}
	if err := checkOutputFormat("xml"); err == nil {
		t.Error("checkOutputFormat(xml) should fail")
	}
}

func TestRender(t *testing.T) {
	v := depsReport{
		Changes: []models.VersionChange{{GroupID: "g", ArtifactID: "a", OldVersion: "1.0", NewVersion: "2.0"}},
		Risk:    models.RiskHigh,
	}
	table := func(w io.Writer) error {
		_, err := io.WriteString(w, "table\n")
		return err
	}

	var buf bytes.Buffer
	require.NoError(t, render(&buf, formatJSON, v, table))
	var fromJSON map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fromJSON))
	if fromJSON["risk"] != "high" {
		t.Errorf("json risk = %v, want high", fromJSON["risk"])
	}

	buf.Reset()
	require.NoError(t, render(&buf, formatYAML, v, table))
	var fromYAML map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &fromYAML))
	if fromYAML["risk"] != "high" {
		t.Errorf("yaml risk = %v, want high", fromYAML["risk"])
	}

	buf.Reset()
	require.NoError(t, render(&buf, formatTable, v, table))
	if buf.String() != "table\n" {
		t.Errorf("table output = %q, want the table callback's output", buf.String())
	}
}

func TestBuildTargets(t *testing.T) {
	tests := []struct {
		name    string
		arg     string
		refs    []string
		commit  string
		want    []models.RepoRef
		wantErr bool
	}{
		{
			name: "ref in argument",
			arg:  "acme/app@main",
			want: []models.RepoRef{{Owner: "acme", Name: "app", Ref: "main"}},
		},
		{
			name: "several refs",
			arg:  "acme/app",
			refs: []string{"main", "fix/guava"},
			want: []models.RepoRef{
				{Owner: "acme", Name: "app", Ref: "main"},
				{Owner: "acme", Name: "app", Ref: "fix/guava"},
			},
		},
		{
			name:   "commit",
			arg:    "acme/app@main",
			commit: "abc123",
			want:   []models.RepoRef{{Owner: "acme", Name: "app", Ref: "main", Commit: "abc123"}},
		},
		{
			name:    "commit with several refs",
			arg:     "acme/app",
			refs:    []string{"a", "b"},
			commit:  "abc123",
			wantErr: true,
		},
		{
			name:    "bad repository",
			arg:     "app",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildTargets(tt.arg, tt.refs, tt.commit)
			if (err != nil) != tt.wantErr {
				t.Fatalf("buildTargets() error = %v, wantErr %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("buildTargets() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResolveTool(t *testing.T) {
	tests := []struct {
		flag, configured string
		want             models.BuildTool
		wantErr          bool
	}{
		{"", "", "", false},
		{"", "gradle", models.BuildToolGradle, false},
		{"maven", "gradle", models.BuildToolMaven, false},
		{"ant", "", "", true},
	}
	for _, tt := range tests {
		got, err := resolveTool(tt.flag, tt.configured)
		if (err != nil) != tt.wantErr {
			t.Errorf("resolveTool(%q, %q) error = %v, wantErr %v", tt.flag, tt.configured, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("resolveTool(%q, %q) = %q, want %q", tt.flag, tt.configured, got, tt.want)
		}
	}
}

func TestAnalyzeDeps(t *testing.T) {
	ctx := context.Background()

	got, err := analyzeDeps(ctx, removalDiff, models.SignificanceMinor, nil, false)
	require.NoError(t, err)
	require.Len(t, got.Changes, 1)
	if got.Changes[0].Key() != "com.google.guava:guava" || got.Risk != models.RiskHigh {
		t.Errorf("analyzeDeps() = %+v, want the guava removal at high risk", got)
	}

	ignored, err := analyzeDeps(ctx, removalDiff, models.SignificanceMinor, []string{"com.google.guava:guava"}, false)
	require.NoError(t, err)
	if len(ignored.Changes) != 0 || ignored.Risk != models.RiskLow {
		t.Errorf("analyzeDeps() with ignored dependency = %+v, want no changes at low risk", ignored)
	}

	all, err := analyzeDeps(ctx, removalDiff, models.SignificanceMinor, []string{"com.google.guava:guava"}, true)
	require.NoError(t, err)
	if len(all.Changes) != 1 {
		t.Errorf("analyzeDeps(all) = %d changes, want 1", len(all.Changes))
	}
}

func TestPrintDeps(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printDeps(&buf, &depsReport{Risk: models.RiskLow}))
	if !strings.Contains(buf.String(), "No significant dependency changes") {
		t.Errorf("empty report = %q", buf.String())
	}

	buf.Reset()
	r, err := analyzeDeps(context.Background(), removalDiff, models.SignificanceMinor, nil, false)
	require.NoError(t, err)
	require.NoError(t, printDeps(&buf, r))
	out := buf.String()
	for _, want := range []string{"1 dependency change(s), overall risk high", "com.google.guava:guava", "15.0", "removal"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

type fakeDiffer struct {
	base, head string
	paths      []string
	diff       string
}

func (f *fakeDiffer) Diff(_ context.Context, base string, paths ...string) (string, error) {
	f.base, f.paths = base, paths
	return f.diff, nil
}

func (f *fakeDiffer) DiffBetween(_ context.Context, ref1, ref2 string, paths ...string) (string, error) {
	f.base, f.head, f.paths = ref1, ref2, paths
	return f.diff, nil
}

func (f *fakeDiffer) ChangedFilesBetween(context.Context, string, string) ([]string, error) {
	return nil, nil
}

func TestReadDiff(t *testing.T) {
	ctx := context.Background()
	f := &fakeDiffer{diff: removalDiff}

	got, err := readDiff(ctx, f, "HEAD", "")
	require.NoError(t, err)
	if got != removalDiff || f.base != "HEAD" || f.head != "" {
		t.Errorf("working tree diff used base=%q head=%q", f.base, f.head)
	}

	_, err = readDiff(ctx, f, "main", "fix")
	require.NoError(t, err)
	if f.base != "main" || f.head != "fix" {
		t.Errorf("ref diff used base=%q head=%q, want main..fix", f.base, f.head)
	}
}

func TestReportManifestChanges(t *testing.T) {
	f := &fakeDiffer{diff: removalDiff}
	var buf bytes.Buffer

	outputFormat = formatTable
	watchBase = "HEAD"
	err := reportManifestChanges(context.Background(), &buf, f, []string{"pom.xml"}, models.SignificanceMinor, nil)
	require.NoError(t, err)

	if diff := cmp.Diff([]string{"pom.xml"}, f.paths); diff != "" {
		t.Errorf("diff paths mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(buf.String(), "com.google.guava:guava") {
		t.Errorf("output missing the changed dependency:\n%s", buf.String())
	}
}

func TestPrintFailures(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printFailures(&buf, nil))
	if !strings.Contains(buf.String(), "No failures found") {
		t.Errorf("empty output = %q", buf.String())
	}

	buf.Reset()
	failures := []models.Failure{{
		Type:     models.FailureCompilationError,
		Message:  "cannot find symbol",
		File:     "src/main/java/App.java",
		Line:     15,
		Severity: models.SeverityHigh,
	}}
	require.NoError(t, printFailures(&buf, failures))
	if !strings.Contains(buf.String(), "1 failure(s)") || !strings.Contains(buf.String(), "src/main/java/App.java:15") {
		t.Errorf("failure output = %q", buf.String())
	}
}

func TestPrintHistory(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printHistory(&buf, nil))
	if !strings.Contains(buf.String(), "No validation runs recorded") {
		t.Errorf("empty history = %q", buf.String())
	}

	buf.Reset()
	runs := []state.ValidationRun{{
		ID:       "run-1",
		RepoPath: "/src/app",
		Result: models.ValidationResult{
			BuildPassed:    true,
			TestsPassed:    true,
			ShouldCreatePR: true,
			FailureRate:    0.025,
		},
		CreatedAt: time.Now(),
	}}
	require.NoError(t, printHistory(&buf, runs))
	out := buf.String()
	for _, want := range []string{"run-1", "/src/app", "create PR", "2.5%"} {
		if !strings.Contains(out, want) {
			t.Errorf("history missing %q:\n%s", want, out)
		}
	}
}

func TestParseCommand_JSON(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))

	logFile := filepath.Join(dir, "build.log")
	require.NoError(t, os.WriteFile(logFile, []byte(failingMavenLog), 0644))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"parse", logFile, "--tool", "maven", "-o", "json", "--log-level", "error"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		outputFormat = formatTable
		logLevel = ""
		parseTool = ""
	})

	require.NoError(t, rootCmd.ExecuteContext(context.Background()))

	var failures []models.Failure
	require.NoError(t, json.Unmarshal(out.Bytes(), &failures))
	require.Len(t, failures, 2)
	if failures[0].Type != models.FailureCompilationError || failures[0].Line != 15 {
		t.Errorf("first failure = %+v, want the compilation error on line 15", failures[0])
	}
	if failures[1].Type != models.FailureBuildFailure {
		t.Errorf("second failure = %+v, want the build failure marker", failures[1])
	}
}
