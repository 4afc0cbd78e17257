package state

import (
	"context"
	"io"

	"github.com/ShayCichocki/bacardi/internal/recovery"
	"github.com/ShayCichocki/bacardi/pkg/models"
)

// ResultStore caches build results read from CI.
type ResultStore interface {
	Get(ctx context.Context, key string) (*models.BuildResult, bool, error)
	Put(ctx context.Context, key string, result *models.BuildResult) error
}

// ValidationStore records gate decisions.
type ValidationStore interface {
	RecordValidation(ctx context.Context, repoPath string, result *models.ValidationResult) (string, error)
	GetValidation(ctx context.Context, id string) (*ValidationRun, error)
	ListValidations(ctx context.Context, repoPath string, limit int) ([]ValidationRun, error)
}

// Migrator handles database schema migrations.
type Migrator interface {
	Migrate() error
}

// Store is everything the CLI persists.
type Store interface {
	io.Closer
	Migrator
	ResultStore
	ValidationStore
}

var (
	_ Store                = (*DB)(nil)
	_ recovery.ResultCache = (*DB)(nil)
)
