package quota

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/j-veylop/claude-usage-monitor/internal/logger"
	"github.com/j-veylop/claude-usage-monitor/internal/models"
)

var (
	// ErrNoSnapshot is returned when an account has no stored usage yet.
	ErrNoSnapshot = errors.New("no usage snapshot")
	// ErrOutdated is returned when a snapshot is older than the stored one.
	ErrOutdated = errors.New("snapshot older than stored one")
)

// Store persists the latest snapshot of each account. *db.DB implements it.
type Store interface {
	SaveSnapshot(ctx context.Context, snap *models.UsageSnapshot) error
	DeleteSnapshot(ctx context.Context, accountID string) error
	GetSnapshot(ctx context.Context, accountID string) (*models.UsageSnapshot, error)
	ListSnapshots(ctx context.Context) ([]models.AccountUsage, error)
	CurrentAccount(ctx context.Context) (string, error)
	SetCurrentAccount(ctx context.Context, accountID string) error
	LastUpdate(ctx context.Context) (time.Time, error)
	SetLastUpdate(ctx context.Context, t time.Time) error
}

// Event represents a usage service event.
type Event struct {
	Error     error
	Snapshot  *models.UsageSnapshot
	AccountID string
	Type      EventType
}

// EventType defines the type of usage event.
type EventType int

const (
	// EventSnapshotUpdated indicates that a new snapshot was stored.
	EventSnapshotUpdated EventType = iota
	// EventCurrentAccountChanged indicates that another account is now followed.
	EventCurrentAccountChanged
	// EventIngestError indicates that a snapshot could not be stored.
	EventIngestError
	// EventAccountForgotten indicates that an account and its snapshot were removed.
	EventAccountForgotten
)

// Service keeps the latest snapshot per account and announces new ones.
type Service struct {
	store      Store
	now        func() time.Time
	cache      map[string]*models.UsageSnapshot
	eventChan  chan Event
	current    string
	lastUpdate time.Time
	mu         sync.RWMutex
}

// New creates a usage service and warms its cache from the store.
func New(ctx context.Context, store Store) (*Service, error) {
	s := &Service{
		store:     store,
		now:       time.Now,
		cache:     make(map[string]*models.UsageSnapshot),
		eventChan: make(chan Event, 100),
	}

	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Events returns the event channel.
func (s *Service) Events() <-chan Event {
	return s.eventChan
}

// Reload re-reads every account from the store. Other processes may share it.
func (s *Service) Reload(ctx context.Context) error {
	accounts, err := s.store.ListSnapshots(ctx)
	if err != nil {
		return fmt.Errorf("failed to load snapshots: %w", err)
	}
	current, err := s.store.CurrentAccount(ctx)
	if err != nil {
		return fmt.Errorf("failed to load current account: %w", err)
	}
	lastUpdate, err := s.store.LastUpdate(ctx)
	if err != nil {
		return fmt.Errorf("failed to load last update time: %w", err)
	}

	cache := make(map[string]*models.UsageSnapshot, len(accounts))
	for i := range accounts {
		cache[accounts[i].AccountID] = accounts[i].Snapshot
	}

	s.mu.Lock()
	s.cache = cache
	s.current = current
	s.lastUpdate = lastUpdate
	s.mu.Unlock()
	return nil
}

// Ingest stores snap as the latest snapshot of its account, makes that
// account current and returns what was stored.
func (s *Service) Ingest(ctx context.Context, snap *models.UsageSnapshot) (*models.UsageSnapshot, error) {
	if snap == nil {
		return nil, errors.New("snapshot is nil")
	}

	now := s.now()
	stored := normalize(snap, now)

	s.mu.RLock()
	existing := s.cache[stored.AccountID]
	s.mu.RUnlock()
	if existing != nil && existing.Timestamp > stored.Timestamp {
		return nil, fmt.Errorf("%w: account %s", ErrOutdated, stored.AccountID)
	}

	if err := s.store.SaveSnapshot(ctx, stored); err != nil {
		s.sendEvent(Event{Type: EventIngestError, AccountID: stored.AccountID, Error: err})
		return nil, fmt.Errorf("failed to store snapshot: %w", err)
	}
	if err := s.store.SetCurrentAccount(ctx, stored.AccountID); err != nil {
		logger.Warn("failed to record current account", "account", stored.AccountID, "error", err)
	}
	if err := s.store.SetLastUpdate(ctx, now); err != nil {
		logger.Warn("failed to record last update time", "error", err)
	}

	for _, w := range stored.ParseWarnings {
		logger.Warn("usage page parse miss", "account", stored.AccountID, "warning", w)
	}

	s.mu.Lock()
	s.cache[stored.AccountID] = stored
	s.current = stored.AccountID
	s.lastUpdate = now
	s.mu.Unlock()

	logger.Info("usage snapshot stored",
		"account", stored.AccountID,
		"source", stored.Source,
		"session", stored.CurrentSession.Percentage,
		"weekly", stored.WeeklyLimits.Percentage,
		"five_hour", stored.FiveHourLimit.Percentage,
	)

	s.sendEvent(Event{Type: EventSnapshotUpdated, AccountID: stored.AccountID, Snapshot: stored.Clone()})
	return stored.Clone(), nil
}

// IngestText scrapes page text captured at capturedAt and ingests the result.
// Countdowns on the page are anchored at capturedAt; zero means now.
func (s *Service) IngestText(ctx context.Context, text, source string, capturedAt time.Time) (*models.UsageSnapshot, error) {
	if capturedAt.IsZero() {
		capturedAt = s.now()
	}
	snap := ExtractSnapshot(text, capturedAt)
	snap.Source = source
	return s.Ingest(ctx, snap)
}

// Latest returns the newest snapshot of the current account.
func (s *Service) Latest(ctx context.Context) (*models.UsageSnapshot, error) {
	s.mu.RLock()
	current := s.current
	s.mu.RUnlock()

	if current == "" {
		stored, err := s.store.CurrentAccount(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load current account: %w", err)
		}
		if stored == "" {
			return nil, ErrNoSnapshot
		}
		current = stored
	}
	return s.Get(ctx, current)
}

// Get returns the latest snapshot of accountID from the store.
func (s *Service) Get(ctx context.Context, accountID string) (*models.UsageSnapshot, error) {
	snap, err := s.store.GetSnapshot(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	if snap == nil {
		return nil, ErrNoSnapshot
	}

	s.mu.Lock()
	s.cache[accountID] = snap
	s.mu.Unlock()

	return snap.Clone(), nil
}

// All returns every stored account, the current one flagged.
func (s *Service) All(ctx context.Context) ([]models.AccountUsage, error) {
	accounts, err := s.store.ListSnapshots(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	current := s.CurrentAccount()
	for i := range accounts {
		accounts[i].IsCurrent = accounts[i].AccountID == current
	}
	return accounts, nil
}

// Cached returns the in-memory snapshot of every known account without
// touching the store, sorted by account id.
func (s *Service) Cached() []models.AccountUsage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.AccountUsage, 0, len(s.cache))
	for id, snap := range s.cache {
		result = append(result, models.AccountUsage{
			AccountID: id,
			Snapshot:  snap.Clone(),
			UpdatedAt: snap.CapturedAt(),
			IsCurrent: id == s.current,
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].AccountID < result[j].AccountID })
	return result
}

// CurrentAccount returns the account the dashboard and checks follow.
func (s *Service) CurrentAccount() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// SetCurrentAccount switches the followed account. The account must have a snapshot.
func (s *Service) SetCurrentAccount(ctx context.Context, accountID string) error {
	snap, err := s.store.GetSnapshot(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}
	if snap == nil {
		return fmt.Errorf("%w for account %s", ErrNoSnapshot, accountID)
	}
	if err := s.store.SetCurrentAccount(ctx, accountID); err != nil {
		return fmt.Errorf("failed to set current account: %w", err)
	}

	s.mu.Lock()
	changed := s.current != accountID
	s.current = accountID
	s.cache[accountID] = snap
	s.mu.Unlock()

	if changed {
		s.sendEvent(Event{Type: EventCurrentAccountChanged, AccountID: accountID, Snapshot: snap.Clone()})
	}
	return nil
}

// Forget removes an account and its snapshot. Forgetting the followed
// account leaves no account followed until the next ingest.
func (s *Service) Forget(ctx context.Context, accountID string) error {
	snap, err := s.store.GetSnapshot(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}
	if snap == nil {
		return fmt.Errorf("%w for account %s", ErrNoSnapshot, accountID)
	}
	if err := s.store.DeleteSnapshot(ctx, accountID); err != nil {
		return fmt.Errorf("failed to forget account: %w", err)
	}

	s.mu.Lock()
	delete(s.cache, accountID)
	wasCurrent := s.current == accountID
	if wasCurrent {
		s.current = ""
	}
	s.mu.Unlock()

	if wasCurrent {
		if err := s.store.SetCurrentAccount(ctx, ""); err != nil {
			logger.Warn("failed to clear current account", "account", accountID, "error", err)
		}
	}

	logger.Info("account forgotten", "account", accountID, "was_current", wasCurrent)
	s.sendEvent(Event{Type: EventAccountForgotten, AccountID: accountID})
	return nil
}

// LastUpdate returns when a snapshot was last ingested.
func (s *Service) LastUpdate() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdate
}

// sendEvent sends an event to the event channel non-blocking.
func (s *Service) sendEvent(event Event) {
	select {
	case s.eventChan <- event:
	default:
		// Channel full, drop oldest
		select {
		case <-s.eventChan:
		default:
		}
		select {
		case s.eventChan <- event:
		default:
		}
	}
}

// Close releases the service. The store is owned by the caller.
func (s *Service) Close() error {
	return nil
}

// normalize fills defaults on a copy of snap so that every stored snapshot
// has an account, a capture time, labels and percentages within 0..100.
func normalize(snap *models.UsageSnapshot, now time.Time) *models.UsageSnapshot {
	out := snap.Clone()
	if out.AccountID == "" {
		out.AccountID = models.DefaultAccountID
	}
	if out.Timestamp <= 0 {
		out.Timestamp = now.UnixMilli()
	}

	fix := func(w *models.QuotaWindow, label string) {
		if w.Label == "" {
			w.Label = label
		}
		w.Percentage = min(max(w.Percentage, 0), 100)
		if w.ResetTimestamp < 0 {
			w.ResetTimestamp = 0
		}
	}
	fix(&out.CurrentSession, models.LabelCurrentSession)
	fix(&out.WeeklyLimits, models.LabelWeekly)
	fix(&out.FiveHourLimit, models.LabelFiveHour)
	return out
}
