package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/j-veylop/claude-usage-monitor/internal/logger"
	"github.com/j-veylop/claude-usage-monitor/internal/models"
)

// ErrNotConfigured is returned when no database URL is set.
var ErrNotConfigured = errors.New("firebase database URL not configured")

// SettingsStore loads the persisted settings. *db.DB implements it.
type SettingsStore interface {
	LoadSettings(ctx context.Context, seed models.Settings) (models.Settings, error)
}

// Service mirrors snapshots to the database URL found in the current settings.
type Service struct {
	store  SettingsStore
	client *Client
	now    func() time.Time
	seed   models.Settings
}

// New creates a mirror service.
func New(store SettingsStore, seed models.Settings, client *Client) *Service {
	if client == nil {
		client = NewClient(nil)
	}
	return &Service{
		store:  store,
		client: client,
		now:    time.Now,
		seed:   seed,
	}
}

func (s *Service) databaseURL(ctx context.Context) (string, error) {
	settings, err := s.store.LoadSettings(ctx, s.seed)
	if err != nil {
		return "", fmt.Errorf("failed to load settings: %w", err)
	}
	if settings.FirebaseURL() == "" {
		return "", ErrNotConfigured
	}
	return settings.FirebaseURL(), nil
}

// Sync uploads snap. Without a configured database it does nothing.
func (s *Service) Sync(ctx context.Context, snap *models.UsageSnapshot) error {
	if snap == nil {
		return nil
	}

	dbURL, err := s.databaseURL(ctx)
	if errors.Is(err, ErrNotConfigured) {
		logger.Debug("firebase not configured, skipping sync", "account", snap.AccountID)
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.client.Put(ctx, dbURL, snap, s.now()); err != nil {
		return fmt.Errorf("failed to sync account %s: %w", snap.AccountID, err)
	}
	logger.Debug("snapshot synced to firebase", "account", snap.AccountID)
	return nil
}

// Fetch reads one account back from the database.
func (s *Service) Fetch(ctx context.Context, accountID string) (*Record, error) {
	dbURL, err := s.databaseURL(ctx)
	if err != nil {
		return nil, err
	}
	return s.client.Get(ctx, dbURL, accountID)
}

// FetchAll reads every account from the database.
func (s *Service) FetchAll(ctx context.Context) ([]Record, error) {
	dbURL, err := s.databaseURL(ctx)
	if err != nil {
		return nil, err
	}
	return s.client.List(ctx, dbURL)
}
