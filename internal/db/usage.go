package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/j-veylop/claude-usage-monitor/internal/logger"
	"github.com/j-veylop/claude-usage-monitor/internal/models"
)

// SaveSnapshot stores snap as the latest snapshot of its account,
// replacing whatever was there before.
func (db *DB) SaveSnapshot(ctx context.Context, snap *models.UsageSnapshot) error {
	if snap == nil || snap.AccountID == "" {
		return errors.New("snapshot has no account id")
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO account_usage (account_id, snapshot, captured_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			snapshot = excluded.snapshot,
			captured_at = excluded.captured_at,
			updated_at = excluded.updated_at
	`

	_, err = db.ExecContext(ctx, query,
		snap.AccountID,
		string(data),
		snap.Timestamp,
		time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns the latest snapshot of an account, or nil if none is stored.
func (db *DB) GetSnapshot(ctx context.Context, accountID string) (*models.UsageSnapshot, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var data string
	err := db.QueryRowContext(ctx,
		"SELECT snapshot FROM account_usage WHERE account_id = ?", accountID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	var snap models.UsageSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

// ListSnapshots returns the latest snapshot of every account, most recently updated first.
func (db *DB) ListSnapshots(ctx context.Context) ([]models.AccountUsage, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT account_id, snapshot, updated_at
		FROM account_usage
		ORDER BY updated_at DESC, account_id
	`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logger.Error("failed to close rows", "error", err)
		}
	}()

	var accounts []models.AccountUsage
	for rows.Next() {
		var (
			usage     models.AccountUsage
			data      string
			updatedAt int64
		)
		if err := rows.Scan(&usage.AccountID, &data, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}

		var snap models.UsageSnapshot
		if err := json.Unmarshal([]byte(data), &snap); err != nil {
			logger.Warn("skipping undecodable snapshot", "account", usage.AccountID, "error", err)
			continue
		}
		usage.Snapshot = &snap
		usage.UpdatedAt = time.UnixMilli(updatedAt)
		accounts = append(accounts, usage)
	}

	return accounts, rows.Err()
}

// DeleteSnapshot forgets an account.
func (db *DB) DeleteSnapshot(ctx context.Context, accountID string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if _, err := db.ExecContext(ctx, "DELETE FROM account_usage WHERE account_id = ?", accountID); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}
