// Package buildtool knows how to drive Maven and Gradle projects: which
// command to run for each step and how to read their test summaries.
package buildtool

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	bexec "github.com/ShayCichocki/bacardi/internal/exec"
	"github.com/ShayCichocki/bacardi/pkg/models"
)

// ErrUnknownProject is returned when no Maven or Gradle build file is found.
var ErrUnknownProject = errors.New("no maven or gradle build file found")

// Step is one of the commands a project can run.
type Step string

const (
	StepBuild          Step = "build"
	StepBuildSkipTests Step = "build_skip_tests"
	StepTest           Step = "test"
	StepDependencies   Step = "dependencies"
	StepQuality        Step = "quality"
)

type toolSpec struct {
	bin       string
	wrapper   string
	buildFile []string
	common    []string
	steps     map[Step][]string
}

var tools = map[models.BuildTool]toolSpec{
	models.BuildToolMaven: {
		bin:       "mvn",
		wrapper:   "mvnw",
		buildFile: []string{"pom.xml"},
		common:    []string{"-B", "-V"},
		steps: map[Step][]string{
			StepBuild:          {"clean", "package"},
			StepBuildSkipTests: {"clean", "package", "-DskipTests"},
			StepTest:           {"test"},
			StepDependencies:   {"dependency:analyze", "-DfailOnWarning=false"},
			StepQuality:        {"checkstyle:check"},
		},
	},
	models.BuildToolGradle: {
		bin:       "gradle",
		wrapper:   "gradlew",
		buildFile: []string{"build.gradle", "build.gradle.kts", "settings.gradle", "settings.gradle.kts"},
		common:    []string{"--console=plain", "--no-daemon"},
		steps: map[Step][]string{
			StepBuild:          {"clean", "build"},
			StepBuildSkipTests: {"clean", "build", "-x", "test"},
			StepTest:           {"test"},
			StepDependencies:   {"dependencies"},
			StepQuality:        {"check", "-x", "test"},
		},
	},
}

// Detect returns the build tool of the project at dir. Maven wins when both
// build files are present.
func Detect(dir string) (models.BuildTool, error) {
	for _, tool := range []models.BuildTool{models.BuildToolMaven, models.BuildToolGradle} {
		for _, name := range tools[tool].buildFile {
			if fileExists(filepath.Join(dir, name)) {
				return tool, nil
			}
		}
	}
	return "", fmt.Errorf("%s: %w", dir, ErrUnknownProject)
}

// Command returns the command line for step in the project at dir, using the
// project's wrapper script when it has one.
func Command(dir string, tool models.BuildTool, step Step) (bexec.Command, error) {
	spec, ok := tools[tool]
	if !ok {
		return bexec.Command{}, fmt.Errorf("unknown build tool %q", tool)
	}
	stepArgs, ok := spec.steps[step]
	if !ok {
		return bexec.Command{}, fmt.Errorf("%s has no %s step", tool, step)
	}

	name := spec.bin
	if wrapper := filepath.Join(dir, spec.wrapper); isExecutable(wrapper) {
		name = wrapper
	}
	args := make([]string, 0, len(spec.common)+len(stepArgs))
	args = append(args, spec.common...)
	args = append(args, stepArgs...)
	return bexec.Command{Name: name, Args: args, Dir: dir}, nil
}

// BuildCommand returns the clean build command, optionally skipping tests.
func BuildCommand(dir string, tool models.BuildTool, skipTests bool) (bexec.Command, error) {
	if skipTests {
		return Command(dir, tool, StepBuildSkipTests)
	}
	return Command(dir, tool, StepBuild)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Mode().Perm()&0o111 != 0
}
