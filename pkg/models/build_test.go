package models

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseBuildTool(t *testing.T) {
	tests := []struct {
		in      string
		want    BuildTool
		wantErr bool
	}{
		{"maven", BuildToolMaven, false},
		{"mvn", BuildToolMaven, false},
		{" Maven ", BuildToolMaven, false},
		{"gradle", BuildToolGradle, false},
		{"GRADLE", BuildToolGradle, false},
		{"ant", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBuildTool(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseBuildTool(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseBuildTool(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if !tt.wantErr && !got.Valid() {
				t.Errorf("ParseBuildTool(%q) returned invalid tool %q", tt.in, got)
			}
		})
	}
}

func TestParseRepoRef(t *testing.T) {
	tests := []struct {
		in      string
		want    RepoRef
		wantErr bool
	}{
		{"acme/widgets", RepoRef{Owner: "acme", Name: "widgets"}, false},
		{"acme/widgets@fix/guava", RepoRef{Owner: "acme", Name: "widgets", Ref: "fix/guava"}, false},
		{"acme/widgets.git", RepoRef{Owner: "acme", Name: "widgets"}, false},
		{"widgets", RepoRef{}, true},
		{"acme/", RepoRef{}, true},
		{"a/b/c", RepoRef{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRepoRef(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRepoRef(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseRepoRef(%q) mismatch (-want +got):\n%s", tt.in, diff)
			}
		})
	}
}

func TestRepoRef_URLAndCacheKey(t *testing.T) {
	ref := RepoRef{Owner: "acme", Name: "widgets", Ref: "main"}
	if got, want := ref.URL(), "https://github.com/acme/widgets"; got != want {
		t.Errorf("URL() = %q, want %q", got, want)
	}
	if got, want := ref.CacheKey(), "acme/widgets@main"; got != want {
		t.Errorf("CacheKey() = %q, want %q", got, want)
	}

	ref.Commit = "abc123"
	ref.CloneURL = "file:///tmp/widgets"
	if got, want := ref.URL(), "file:///tmp/widgets"; got != want {
		t.Errorf("URL() = %q, want %q", got, want)
	}
	if got, want := ref.CacheKey(), "acme/widgets@abc123"; got != want {
		t.Errorf("CacheKey() = %q, want %q", got, want)
	}
}

func TestAuditLog_AppendOnly(t *testing.T) {
	var log AuditLog
	log.Record("ci", StepSkip, "no runs")
	log.Record("build", StepPass, "")

	entries := log.Entries()
	if len(entries) != 2 {
		t.Fatalf("Entries() len = %d, want 2", len(entries))
	}
	entries[0].Status = StepFail

	if got := log.Entries()[0].Status; got != StepSkip {
		t.Errorf("mutating Entries() copy changed log: status = %q, want %q", got, StepSkip)
	}
	last, ok := log.Last("build")
	if !ok || last.Status != StepPass {
		t.Errorf("Last(build) = %+v, %v; want pass entry", last, ok)
	}
	if _, ok := log.Last("clone"); ok {
		t.Error("Last(clone) found an entry, want none")
	}
}

func TestAuditLog_Merge(t *testing.T) {
	var head, tail AuditLog
	head.Record("ci", StepSkip, "")
	tail.Record("clone", StepPass, "")
	tail.Record("build", StepFail, "")

	head.Merge(tail)
	if head.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", head.Len())
	}
	if got := head.Entries()[2].Step; got != "build" {
		t.Errorf("last step = %q, want build", got)
	}
	if tail.Len() != 2 {
		t.Errorf("Merge changed its argument: len = %d", tail.Len())
	}
}

func TestAuditLog_JSONRoundTrip(t *testing.T) {
	var result BuildResult
	result.Strategy = StrategyCI
	result.Audit.Record("ci", StepPass, "run 42")

	data, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var decoded BuildResult
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded.Audit.Len() != 1 {
		t.Fatalf("decoded audit len = %d, want 1", decoded.Audit.Len())
	}
	if got := decoded.Audit.Entries()[0].Message; got != "run 42" {
		t.Errorf("decoded audit message = %q, want %q", got, "run 42")
	}
}

func TestTestResults_FailureRate(t *testing.T) {
	tests := []struct {
		name string
		r    TestResults
		want float64
	}{
		{"no tests", TestResults{}, 0},
		{"all passed", TestResults{Total: 10, Passed: 10}, 0},
		{"some failed", TestResults{Total: 100, Passed: 92, Failed: 8}, 0.08},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.r.FailureRate(); got != tt.want {
				t.Errorf("FailureRate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRisk_Level(t *testing.T) {
	if !(RiskLow.Level() < RiskMedium.Level() && RiskMedium.Level() < RiskHigh.Level()) {
		t.Errorf("risk levels not ordered: low=%d medium=%d high=%d",
			RiskLow.Level(), RiskMedium.Level(), RiskHigh.Level())
	}
	if Risk("").Level() != 0 {
		t.Errorf("unknown risk level = %d, want 0", Risk("").Level())
	}
}

func TestVersionChange_Key(t *testing.T) {
	c := VersionChange{GroupID: "com.google.guava", ArtifactID: "guava"}
	if got := c.Key(); got != "com.google.guava:guava" {
		t.Errorf("Key() = %q, want com.google.guava:guava", got)
	}
	if got := (VersionChange{}).Key(); got != "" {
		t.Errorf("Key() of empty change = %q, want empty", got)
	}
}
