package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/j-veylop/claude-usage-monitor/internal/models"
)

// app_state keys
const (
	keySettings       = "settings"
	keyCurrentAccount = "current_account"
	keyLastUpdate     = "last_update"
)

// LoadSettings returns the persisted settings. When none exist yet, seed is
// stored and returned.
func (db *DB) LoadSettings(ctx context.Context, seed models.Settings) (models.Settings, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return models.Settings{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	s, found, err := readSettings(ctx, tx)
	if err != nil {
		return models.Settings{}, err
	}
	if !found {
		if err := writeState(ctx, tx, keySettings, seed); err != nil {
			return models.Settings{}, err
		}
		s = seed
	}

	if err := tx.Commit(); err != nil {
		return models.Settings{}, fmt.Errorf("failed to commit settings: %w", err)
	}
	return s, nil
}

// UpdateSettings applies fn to the persisted settings (or seed when none
// exist) inside one transaction and returns the stored result.
func (db *DB) UpdateSettings(ctx context.Context, seed models.Settings, fn func(models.Settings) models.Settings) (models.Settings, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return models.Settings{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, found, err := readSettings(ctx, tx)
	if err != nil {
		return models.Settings{}, err
	}
	if !found {
		current = seed
	}

	updated := fn(current)
	if err := writeState(ctx, tx, keySettings, updated); err != nil {
		return models.Settings{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.Settings{}, fmt.Errorf("failed to commit settings: %w", err)
	}
	return updated, nil
}

// CurrentAccount returns the id of the account most recently ingested, or "".
func (db *DB) CurrentAccount(ctx context.Context) (string, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var id string
	found, err := readState(ctx, db, keyCurrentAccount, &id)
	if err != nil || !found {
		return "", err
	}
	return id, nil
}

// SetCurrentAccount records which account the dashboard and checks follow.
func (db *DB) SetCurrentAccount(ctx context.Context, accountID string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	return writeState(ctx, db, keyCurrentAccount, accountID)
}

// LastUpdate returns when any snapshot was last ingested.
func (db *DB) LastUpdate(ctx context.Context) (time.Time, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var ms int64
	found, err := readState(ctx, db, keyLastUpdate, &ms)
	if err != nil || !found || ms <= 0 {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}

// SetLastUpdate records the time of the latest ingest.
func (db *DB) SetLastUpdate(ctx context.Context, t time.Time) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	return writeState(ctx, db, keyLastUpdate, t.UnixMilli())
}

// execer is satisfied by both *DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func readSettings(ctx context.Context, q execer) (models.Settings, bool, error) {
	var s models.Settings
	found, err := readState(ctx, q, keySettings, &s)
	if err != nil {
		return models.Settings{}, false, fmt.Errorf("failed to load settings: %w", err)
	}
	return s, found, nil
}

// readState decodes the JSON value stored under key into dst.
func readState(ctx context.Context, q execer, key string, dst any) (bool, error) {
	var value string
	err := q.QueryRowContext(ctx, "SELECT value FROM app_state WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(value), dst); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// writeState stores value under key as JSON.
func writeState(ctx context.Context, q execer, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	query := `
		INSERT INTO app_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := q.ExecContext(ctx, query, key, string(data), time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}
