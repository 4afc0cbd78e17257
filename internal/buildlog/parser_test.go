package buildlog

import (
	"regexp"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/ShayCichocki/bacardi/pkg/models"
)

const mavenDependencyLog = `[INFO] Scanning for projects...
[INFO] Compiling 12 source files to /work/target/test-classes
[ERROR] /work/src/test/java/com/acme/DependencyTest.java:[15,15] cannot find symbol
[ERROR] /work/src/test/java/com/acme/DependencyTest.java:[16,15] cannot find symbol
[ERROR] /work/src/test/java/com/acme/DependencyTest.java:[17,15] cannot find symbol
[INFO] ------------------------------------------------------------------------
[INFO] BUILD FAILURE
[INFO] ------------------------------------------------------------------------
`

func TestParse_MavenCompilerErrorsAndBuildFailure(t *testing.T) {
	got := Parse(mavenDependencyLog, models.BuildToolMaven)

	want := []models.Failure{
		{Type: models.FailureCompilationError, Message: "cannot find symbol", File: "/work/src/test/java/com/acme/DependencyTest.java", Line: 15, Column: 15, Confidence: 95, Severity: models.SeverityHigh, LogLine: 3},
		{Type: models.FailureCompilationError, Message: "cannot find symbol", File: "/work/src/test/java/com/acme/DependencyTest.java", Line: 16, Column: 15, Confidence: 95, Severity: models.SeverityHigh, LogLine: 4},
		{Type: models.FailureCompilationError, Message: "cannot find symbol", File: "/work/src/test/java/com/acme/DependencyTest.java", Line: 17, Column: 15, Confidence: 95, Severity: models.SeverityHigh, LogLine: 5},
		{Type: models.FailureBuildFailure, Message: "[INFO] BUILD FAILURE", File: models.UnknownFile, Confidence: 90, Severity: models.SeverityHigh, LogLine: 7},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_EmptyAndUnrelated(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"whitespace", "  \n\t\n"},
		{"unrelated", "hello world\nnothing to see here\n[INFO] BUILD SUCCESS\n"},
		{"stack trace", "java.lang.IllegalStateException: boom\n\tat com.acme.Foo.bar(Foo.java:15)\n"},
		{"maven warning", "[WARNING] /work/src/main/java/Foo.java:[10,5] deprecated API\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.raw, models.BuildToolMaven)
			if got == nil {
				t.Fatal("Parse() returned nil, want empty slice")
			}
			if len(got) != 0 {
				t.Errorf("Parse() = %+v, want no failures", got)
			}
		})
	}
}

func TestParse_CompilerLocationForms(t *testing.T) {
	tests := []struct {
		name       string
		line       string
		wantFile   string
		wantLine   int
		wantColumn int
		wantMsg    string
	}{
		{
			name:     "maven without column",
			line:     "[ERROR] /src/Foo.java:[7] ';' expected",
			wantFile: "/src/Foo.java", wantLine: 7, wantMsg: "';' expected",
		},
		{
			name:     "maven without prefix",
			line:     "/src/Foo.java:[7,3] ';' expected",
			wantFile: "/src/Foo.java", wantLine: 7, wantColumn: 3, wantMsg: "';' expected",
		},
		{
			name:     "javac file:line",
			line:     "src/main/java/Foo.java:42: error: incompatible types",
			wantFile: "src/main/java/Foo.java", wantLine: 42, wantMsg: "incompatible types",
		},
		{
			name:     "javac file:line:col",
			line:     "Foo.java:42:9: error: cannot find symbol",
			wantFile: "Foo.java", wantLine: 42, wantColumn: 9, wantMsg: "cannot find symbol",
		},
		{
			name:     "kotlin",
			line:     "e: /src/App.kt: (12, 4): Unresolved reference: Lists",
			wantFile: "/src/App.kt", wantLine: 12, wantColumn: 4, wantMsg: "Unresolved reference: Lists",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.line, "")
			if len(got) != 1 {
				t.Fatalf("Parse() returned %d failures, want 1: %+v", len(got), got)
			}
			f := got[0]
			if f.Type != models.FailureCompilationError || f.Confidence != 95 || f.Severity != models.SeverityHigh {
				t.Errorf("classification = %s/%d/%s, want compilation_error/95/high", f.Type, f.Confidence, f.Severity)
			}
			if f.File != tt.wantFile || f.Line != tt.wantLine || f.Column != tt.wantColumn {
				t.Errorf("location = %s:%d:%d, want %s:%d:%d", f.File, f.Line, f.Column, tt.wantFile, tt.wantLine, tt.wantColumn)
			}
			if f.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", f.Message, tt.wantMsg)
			}
		})
	}
}

func TestParse_JavacWarningSkipped(t *testing.T) {
	got := Parse("Foo.java:3: warning: [deprecation] Date(String) has been deprecated", "")
	if len(got) != 0 {
		t.Errorf("Parse() = %+v, want javac warning skipped", got)
	}
}

func TestParse_DependencyRules(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		tool     models.BuildTool
		wantType models.FailureType
		wantConf int
		wantSev  models.Severity
		wantGAV  string
	}{
		{
			name:     "could not resolve names the missing artifact",
			line:     "[ERROR] Failed to execute goal on project app: Could not resolve dependencies for project com.acme:app:jar:1.0: Could not find artifact com.google.guava:guava:jar:99.0 in central",
			tool:     models.BuildToolMaven,
			wantType: models.FailureDependencyResolution, wantConf: 85, wantSev: models.SeverityHigh,
			wantGAV: "com.google.guava:guava:99.0",
		},
		{
			name:     "no versions available",
			line:     "[ERROR] No versions available for org.foo:bar:jar:[2.0,3.0) within specified range",
			tool:     models.BuildToolMaven,
			wantType: models.FailureDependencyResolution, wantConf: 85, wantSev: models.SeverityHigh,
		},
		{
			name:     "explicit dependency not found",
			line:     "[ERROR] dependency com.google.guava:guava:jar:15.0 was not found",
			tool:     models.BuildToolMaven,
			wantType: models.FailureDependencyError, wantConf: 95, wantSev: models.SeverityHigh,
			wantGAV: "com.google.guava:guava:15.0",
		},
		{
			name:     "missing pom",
			line:     "[WARNING] The POM for org.slf4j:slf4j-api:jar:1.7.99 is missing, no dependency information available",
			tool:     models.BuildToolMaven,
			wantType: models.FailureDependencyWarning, wantConf: 85, wantSev: models.SeverityMedium,
			wantGAV: "org.slf4j:slf4j-api:1.7.99",
		},
		{
			name:     "gradle could not find",
			line:     "   > Could not find com.squareup.okhttp3:okhttp:5.9.9.",
			tool:     models.BuildToolGradle,
			wantType: models.FailureDependencyError, wantConf: 95, wantSev: models.SeverityHigh,
			wantGAV: "com.squareup.okhttp3:okhttp:5.9.9",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.line, tt.tool)
			if len(got) != 1 {
				t.Fatalf("Parse() returned %d failures, want 1: %+v", len(got), got)
			}
			f := got[0]
			if f.Type != tt.wantType || f.Confidence != tt.wantConf || f.Severity != tt.wantSev {
				t.Errorf("classification = %s/%d/%s, want %s/%d/%s",
					f.Type, f.Confidence, f.Severity, tt.wantType, tt.wantConf, tt.wantSev)
			}
			if tt.wantGAV != "" && f.Coordinates() != tt.wantGAV {
				t.Errorf("Coordinates() = %q, want %q", f.Coordinates(), tt.wantGAV)
			}
			if f.File != models.UnknownFile {
				t.Errorf("File = %q, want %q", f.File, models.UnknownFile)
			}
		})
	}
}

func TestParse_GradleRuleRequiresGradleHint(t *testing.T) {
	line := "> Could not find com.squareup.okhttp3:okhttp:5.9.9."
	if got := Parse(line, models.BuildToolMaven); len(got) != 0 {
		t.Errorf("Parse(maven) = %+v, want gradle-only rule skipped", got)
	}
}

func TestParse_OneFailurePerLine(t *testing.T) {
	// Matches both the compiler rule and the BUILD FAILURE rule; the first wins.
	line := "[ERROR] /src/Foo.java:[1,1] BUILD FAILURE while compiling"
	got := Parse(line, models.BuildToolMaven)
	if len(got) != 1 || got[0].Type != models.FailureCompilationError {
		t.Errorf("Parse() = %+v, want a single compilation_error", got)
	}
}

func TestParse_OversizedLine(t *testing.T) {
	raw := "[ERROR] /work/src/main/java/A.java:[1,1] cannot find symbol\n" +
		"[INFO] " + strings.Repeat("x", 2*maxLineSize) + "\n" +
		"[ERROR] /work/src/main/java/B.java:[2,2] cannot find symbol\n" +
		"[INFO] BUILD FAILURE\n"

	got := Parse(raw, models.BuildToolMaven)
	if len(got) != 3 {
		t.Fatalf("Parse() = %d failures, want 3 across the oversized line", len(got))
	}
	if got[1].File != "/work/src/main/java/B.java" || got[1].LogLine != 3 {
		t.Errorf("second failure = %s line %d, want B.java on log line 3", got[1].File, got[1].LogLine)
	}
	if got[2].Type != models.FailureBuildFailure || got[2].LogLine != 4 {
		t.Errorf("last failure = %+v, want the build failure marker on line 4", got[2])
	}
}

func TestParse_NoDedup(t *testing.T) {
	raw := strings.Repeat("[INFO] BUILD FAILURE\n", 3)
	if got := Parse(raw, models.BuildToolMaven); len(got) != 3 {
		t.Errorf("Parse() returned %d failures, want 3", len(got))
	}
}

var todoPattern = regexp.MustCompile(`^TODO:`)

func TestNew_CustomRules(t *testing.T) {
	p := New(Rule{
		Name:       "todo",
		Pattern:    todoPattern,
		Type:       models.FailureDependencyWarning,
		Confidence: 150,
		Severity:   models.SeverityLow,
	})
	got := p.Parse("TODO: fix me\n[INFO] BUILD FAILURE", "")
	want := []models.Failure{{
		Type:       models.FailureDependencyWarning,
		Message:    "TODO: fix me",
		File:       models.UnknownFile,
		Confidence: 100,
		Severity:   models.SeverityLow,
	}}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(models.Failure{}, "LogLine")); diff != "" {
		t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractToolVersion(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   string
		wantOK bool
	}{
		{"maven banner", "Apache Maven 3.9.6 (bc0240f3c744dd6b6ec2920b3cd08dcc295161ae)\nMaven home: /usr/share/maven", "3.9.6", true},
		{"gradle version", "------------------------------------------------------------\nGradle 8.5\n------------------------------------------------------------", "8.5", true},
		{"gradle welcome", "Welcome to Gradle 8.10.2!", "8.10.2", true},
		{"javac", "javac 17.0.9", "17.0.9", true},
		{"none", "[INFO] BUILD SUCCESS", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractToolVersion(tt.raw)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ExtractToolVersion() = %q, %v; want %q, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestClean(t *testing.T) {
	raw := "2024-05-01T10:11:12.1234567Z \x1b[1;31m[ERROR]\x1b[0m BUILD FAILURE\r\n2024-05-01T10:11:13.0000000Z done"
	want := "[ERROR] BUILD FAILURE\ndone"
	if got := Clean(raw); got != want {
		t.Errorf("Clean() = %q, want %q", got, want)
	}
}
