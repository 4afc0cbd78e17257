package buildtool

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	bexec "github.com/ShayCichocki/bacardi/internal/exec"
)

// skipDirs are never searched for sources.
var skipDirs = map[string]bool{
	".git":         true,
	"target":       true,
	"build":        true,
	".gradle":      true,
	"node_modules": true,
}

// SourceFiles returns the .java files under every src/main/java tree in dir,
// in walk order.
func SourceFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(path, ".java") && inMainSources(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk sources in %s: %w", dir, err)
	}
	return files, nil
}

func inMainSources(path string) bool {
	return strings.Contains(filepath.ToSlash(path), "/src/main/java/")
}

// JavacCommand writes an @argfile listing files into outDir and returns a
// bare javac invocation that compiles them into outDir/classes.
func JavacCommand(dir, outDir string, files []string) (bexec.Command, error) {
	classes := filepath.Join(outDir, "classes")
	if err := os.MkdirAll(classes, 0o755); err != nil {
		return bexec.Command{}, fmt.Errorf("create classes dir: %w", err)
	}
	argfile := filepath.Join(outDir, "sources.txt")
	quoted := make([]string, len(files))
	for i, f := range files {
		quoted[i] = `"` + strings.ReplaceAll(filepath.ToSlash(f), `"`, `\"`) + `"`
	}
	if err := os.WriteFile(argfile, []byte(strings.Join(quoted, "\n")+"\n"), 0o644); err != nil {
		return bexec.Command{}, fmt.Errorf("write argfile: %w", err)
	}
	return bexec.Command{
		Name: "javac",
		Args: []string{"-d", classes, "-proc:none", "-nowarn", "-Xmaxerrs", "1000", "@" + argfile},
		Dir:  dir,
	}, nil
}
