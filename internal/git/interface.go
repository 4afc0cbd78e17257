// Package git reads diffs and file contents from local repositories and
// clones remote ones.
package git

import "context"

// DiffOperations defines the interface for reading diffs.
type DiffOperations interface {
	// Diff returns the diff between the working tree and the given base.
	Diff(ctx context.Context, base string, paths ...string) (string, error)
	// DiffBetween returns the diff between two refs.
	DiffBetween(ctx context.Context, ref1, ref2 string, paths ...string) (string, error)
	// ChangedFilesBetween returns files changed between two refs.
	ChangedFilesBetween(ctx context.Context, ref1, ref2 string) ([]string, error)
}

// FileOperations defines the interface for reading repository content.
type FileOperations interface {
	// ShowFile returns the contents of a file at a specific ref.
	ShowFile(ctx context.Context, ref, path string) (string, error)
	// HeadCommit returns the full hash of HEAD.
	HeadCommit(ctx context.Context) (string, error)
}

// Runner defines the complete interface for local git operations.
// Consumers should prefer using focused interfaces when possible.
type Runner interface {
	DiffOperations
	FileOperations
}
