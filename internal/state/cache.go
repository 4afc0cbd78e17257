package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ShayCichocki/bacardi/pkg/models"
)

// Put stores result under key, replacing any earlier entry.
func (db *DB) Put(ctx context.Context, key string, result *models.BuildResult) error {
	if result == nil {
		return errors.New("put build result: nil result")
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode build result: %w", err)
	}
	_, err = db.Exec(ctx, `
		INSERT INTO build_cache (cache_key, strategy, success, run_id, tool_version, payload, stored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			strategy = excluded.strategy,
			success = excluded.success,
			run_id = excluded.run_id,
			tool_version = excluded.tool_version,
			payload = excluded.payload,
			stored_at = excluded.stored_at
	`, key, string(result.Strategy), boolInt(result.Success), result.RunID, result.ToolVersion, string(payload), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("put build result: %w", err)
	}
	return nil
}

// Get returns the result stored under key. A missing key is not an error.
func (db *DB) Get(ctx context.Context, key string) (*models.BuildResult, bool, error) {
	row := db.QueryRow(ctx, `SELECT payload FROM build_cache WHERE cache_key = ?`, key)

	var payload string
	err := row.Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get build result: %w", err)
	}

	var result models.BuildResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, false, fmt.Errorf("decode build result %s: %w", key, err)
	}
	return &result, true, nil
}

// PurgeCache deletes cache entries older than the specified duration.
// Returns the number of entries deleted.
func (db *DB) PurgeCache(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().Add(-olderThan))

	result, err := db.Exec(ctx, `DELETE FROM build_cache WHERE stored_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge build cache: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return count, nil
}
