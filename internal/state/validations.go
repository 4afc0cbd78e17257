package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/bacardi/pkg/models"
)

// ValidationRun is one recorded gate decision.
type ValidationRun struct {
	ID        string                  `json:"id" yaml:"id"`
	RepoPath  string                  `json:"repo_path" yaml:"repo_path"`
	Result    models.ValidationResult `json:"result" yaml:"result"`
	CreatedAt time.Time               `json:"created_at" yaml:"created_at"`
}

// RecordValidation stores result and returns the new run's ID.
func (db *DB) RecordValidation(ctx context.Context, repoPath string, result *models.ValidationResult) (string, error) {
	if result == nil {
		return "", errors.New("record validation: nil result")
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("encode validation result: %w", err)
	}

	id := uuid.NewString()
	_, err = db.Exec(ctx, `
		INSERT INTO validation_runs (id, repo_path, should_create_pr, build_passed, tests_passed, failure_rate, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id, repoPath, boolInt(result.ShouldCreatePR), boolInt(result.BuildPassed), boolInt(result.TestsPassed),
		result.FailureRate, string(payload), formatTime(time.Now()))
	if err != nil {
		return "", fmt.Errorf("record validation: %w", err)
	}
	return id, nil
}

// GetValidation retrieves a run by ID. It returns nil when there is none.
func (db *DB) GetValidation(ctx context.Context, id string) (*ValidationRun, error) {
	row := db.QueryRow(ctx, `
		SELECT id, repo_path, payload, created_at
		FROM validation_runs WHERE id = ?
	`, id)

	run, err := scanValidation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get validation: %w", err)
	}
	return run, nil
}

// ListValidations returns the most recent runs for repoPath, newest first.
// An empty repoPath lists every repository. A limit <= 0 means no limit.
func (db *DB) ListValidations(ctx context.Context, repoPath string, limit int) ([]ValidationRun, error) {
	query := `SELECT id, repo_path, payload, created_at FROM validation_runs`
	var args []any
	if repoPath != "" {
		query += ` WHERE repo_path = ?`
		args = append(args, repoPath)
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list validations: %w", err)
	}
	defer rows.Close()

	var runs []ValidationRun
	for rows.Next() {
		run, err := scanValidation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan validation: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list validations: %w", err)
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanValidation(s scanner) (*ValidationRun, error) {
	var run ValidationRun
	var payload, createdAt string
	if err := s.Scan(&run.ID, &run.RepoPath, &payload, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(payload), &run.Result); err != nil {
		return nil, fmt.Errorf("decode validation result %s: %w", run.ID, err)
	}
	run.CreatedAt, _ = parseTime(createdAt)
	return &run, nil
}
