// Package services provides service orchestration for the TUI, the daemon
// and the ingest API.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/j-veylop/claude-usage-monitor/internal/config"
	"github.com/j-veylop/claude-usage-monitor/internal/db"
	"github.com/j-veylop/claude-usage-monitor/internal/logger"
	"github.com/j-veylop/claude-usage-monitor/internal/models"
	"github.com/j-veylop/claude-usage-monitor/internal/scheduler"
	"github.com/j-veylop/claude-usage-monitor/internal/services/notify"
	"github.com/j-veylop/claude-usage-monitor/internal/services/quota"
	"github.com/j-veylop/claude-usage-monitor/internal/services/remote"
	"github.com/j-veylop/claude-usage-monitor/internal/services/source"
)

// vacuumSpec schedules store compaction. Forgotten accounts leave free pages behind.
const vacuumSpec = "@weekly"

// ErrNotStarted is returned by operations that need the page sources.
var ErrNotStarted = errors.New("page sources not started")

type (
	// SnapshotUpdatedEvent is emitted when a snapshot is stored.
	SnapshotUpdatedEvent struct {
		Snapshot  *models.UsageSnapshot
		AccountID string
	}

	// CurrentAccountChangedEvent is emitted when another account is followed.
	CurrentAccountChangedEvent struct {
		Snapshot  *models.UsageSnapshot
		AccountID string
	}

	// AccountForgottenEvent is emitted when an account is removed.
	AccountForgottenEvent struct {
		AccountID string
	}

	// NotificationEvent is emitted for every delivery attempt.
	NotificationEvent struct {
		Result notify.Result
	}

	// SettingsChangedEvent is emitted after settings are updated.
	SettingsChangedEvent struct {
		Settings models.Settings
	}

	// ErrorEvent is emitted when an error occurs in any service.
	ErrorEvent struct {
		Error   error
		Service string
	}
)

// ServiceEvent is the interface implemented by all service events.
type ServiceEvent interface {
	isServiceEvent()
}

func (SnapshotUpdatedEvent) isServiceEvent()       {}
func (CurrentAccountChangedEvent) isServiceEvent() {}
func (AccountForgottenEvent) isServiceEvent()      {}
func (NotificationEvent) isServiceEvent()          {}
func (SettingsChangedEvent) isServiceEvent()       {}
func (ErrorEvent) isServiceEvent()                 {}

// Manager orchestrates services and event routing.
type Manager struct {
	mu          sync.RWMutex
	cfg         *config.Config
	seed        models.Settings
	database    *db.DB
	usage       *quota.Service
	notifier    *notify.Service
	remote      *remote.Service
	watcher     *source.Watcher
	refresher   *source.Refresher
	scheduler   *scheduler.Scheduler
	stopChan    chan struct{}
	subscribers []chan ServiceEvent
	wg          sync.WaitGroup
	closeOnce   sync.Once
	started     bool
}

// NewManager opens the store and creates the services. Nothing runs in the
// background until Start.
func NewManager(ctx context.Context, cfg *config.Config) (*Manager, error) {
	database, err := db.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	seed := cfg.SeedSettings()
	if _, err := database.LoadSettings(ctx, seed); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	usage, err := quota.New(ctx, database)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to initialize usage service: %w", err)
	}

	m := &Manager{
		cfg:      cfg,
		seed:     seed,
		database: database,
		usage:    usage,
		notifier: notify.New(
			database,
			seed,
			notify.NewServerChan(cfg.ServerChanBaseURL, nil),
			notify.NewDesktop(cfg.DesktopNotify),
		),
		remote:   remote.New(database, seed, remote.NewClient(nil)),
		stopChan: make(chan struct{}),
	}

	m.wg.Add(1)
	go m.routeEvents()

	return m, nil
}

// Start watches the usage page, ingests it once and schedules the periodic
// check and auto-refresh jobs. The jobs stop when ctx is cancelled.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.New("manager already started")
	}

	watcher, err := source.NewWatcher(m.cfg.UsagePagePath, m)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.watcher = watcher
	refreshEvery := m.cfg.AutoRefreshInterval
	if refreshEvery <= 0 {
		refreshEvery = models.DefaultAutoRefreshInterval
	}
	m.refresher = source.NewRefresher(m.database, m.seed, m.usage, watcher, m.cfg.RefreshCommand, m.cfg.RefreshTimeout)
	m.scheduler = scheduler.New(
		scheduler.Job{
			Name: scheduler.JobCheckUsage,
			Spec: scheduler.Every(m.cfg.CheckInterval),
			Run: func(ctx context.Context) error {
				res := m.CheckNow(ctx)
				return res.Err
			},
		},
		scheduler.Job{
			Name: scheduler.JobAutoRefresh,
			Spec: scheduler.Every(time.Duration(refreshEvery) * time.Minute),
			Run: func(ctx context.Context) error {
				_, err := m.RefreshIfStale(ctx)
				return err
			},
		},
		scheduler.Job{
			Name: scheduler.JobVacuum,
			Spec: vacuumSpec,
			Run:  m.database.Vacuum,
		},
	)
	m.started = true
	m.mu.Unlock()

	m.wg.Add(1)
	go m.routeSourceEvents(watcher)

	if err := m.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	if _, err := watcher.Load(ctx); err != nil && !errors.Is(err, source.ErrNoPage) && !errors.Is(err, source.ErrUnchanged) {
		logger.Warn("failed to load usage page", "path", watcher.Path(), "error", err)
	}

	logger.Info("monitor started",
		"page", watcher.Path(),
		"check_interval", m.cfg.CheckInterval,
		"auto_refresh_every", time.Duration(refreshEvery)*time.Minute,
	)
	return nil
}

// routeEvents routes events from individual services to subscribers.
func (m *Manager) routeEvents() {
	defer m.wg.Done()

	for {
		select {
		case event := <-m.usage.Events():
			m.handleUsageEvent(event)

		case event := <-m.notifier.Events():
			m.broadcast(NotificationEvent{Result: event.Result})

		case <-m.stopChan:
			return
		}
	}
}

// routeSourceEvents forwards watcher errors. Ingests arrive as usage events.
func (m *Manager) routeSourceEvents(w *source.Watcher) {
	defer m.wg.Done()

	for {
		select {
		case event := <-w.Events():
			if event.Type == source.EventError {
				m.broadcast(ErrorEvent{Service: "source", Error: event.Error})
			}

		case <-m.stopChan:
			return
		}
	}
}

func (m *Manager) handleUsageEvent(event quota.Event) {
	switch event.Type {
	case quota.EventSnapshotUpdated:
		m.broadcast(SnapshotUpdatedEvent{AccountID: event.AccountID, Snapshot: event.Snapshot})

	case quota.EventCurrentAccountChanged:
		m.broadcast(CurrentAccountChangedEvent{AccountID: event.AccountID, Snapshot: event.Snapshot})

	case quota.EventAccountForgotten:
		m.broadcast(AccountForgottenEvent{AccountID: event.AccountID})

	case quota.EventIngestError:
		m.broadcast(ErrorEvent{Service: "usage", Error: event.Error})
	}
}

// Ingest stores a snapshot, mirrors it to Firebase and checks it against the
// alert policy.
func (m *Manager) Ingest(ctx context.Context, snap *models.UsageSnapshot) (*models.UsageSnapshot, error) {
	stored, err := m.usage.Ingest(ctx, snap)
	if err != nil {
		return nil, err
	}
	m.afterIngest(ctx, stored)
	return stored, nil
}

// IngestText scrapes page text and ingests the result like Ingest.
func (m *Manager) IngestText(ctx context.Context, text, sourceName string, capturedAt time.Time) (*models.UsageSnapshot, error) {
	stored, err := m.usage.IngestText(ctx, text, sourceName, capturedAt)
	if err != nil {
		return nil, err
	}
	m.afterIngest(ctx, stored)
	return stored, nil
}

// afterIngest runs the remote sync and the alert check side by side. Neither
// failure undoes the ingest.
func (m *Manager) afterIngest(ctx context.Context, snap *models.UsageSnapshot) {
	var g errgroup.Group

	g.Go(func() error {
		if err := m.remote.Sync(ctx, snap); err != nil {
			logger.Warn("failed to mirror snapshot", "account", snap.AccountID, "error", err)
			m.broadcast(ErrorEvent{Service: "remote", Error: err})
		}
		return nil
	})
	g.Go(func() error {
		m.notifier.Check(ctx, snap)
		return nil
	})

	_ = g.Wait()
}

// CheckNow re-reads the store and checks the current account's latest
// snapshot against the alert policy.
func (m *Manager) CheckNow(ctx context.Context) notify.Result {
	if err := m.usage.Reload(ctx); err != nil {
		logger.Warn("failed to reload usage", "error", err)
	}

	snap, err := m.usage.Latest(ctx)
	if err != nil && !errors.Is(err, quota.ErrNoSnapshot) {
		logger.Warn("failed to load latest snapshot", "error", err)
	}
	return m.notifier.Check(ctx, snap)
}

// SendTestNotification sends a test message regardless of the cooldown.
func (m *Manager) SendTestNotification(ctx context.Context) notify.Result {
	return m.notifier.SendTest(ctx)
}

// Refresh runs the refresh command and ingests the new page.
func (m *Manager) Refresh(ctx context.Context) (*models.UsageSnapshot, error) {
	refresher := m.getRefresher()
	if refresher == nil {
		return nil, ErrNotStarted
	}
	snap, err := refresher.Refresh(ctx)
	if err != nil && !errors.Is(err, source.ErrUnchanged) {
		m.broadcast(ErrorEvent{Service: "refresh", Error: err})
	}
	return snap, err
}

// RefreshIfStale refreshes when the current snapshot is older than the
// auto-refresh interval.
func (m *Manager) RefreshIfStale(ctx context.Context) (source.RefreshResult, error) {
	refresher := m.getRefresher()
	if refresher == nil {
		return source.RefreshResult{}, ErrNotStarted
	}
	res, err := refresher.RefreshIfStale(ctx, time.Now())
	if err != nil && !errors.Is(err, source.ErrNoPage) {
		m.broadcast(ErrorEvent{Service: "refresh", Error: err})
	}
	return res, err
}

func (m *Manager) getRefresher() *source.Refresher {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.refresher
}

// Latest returns the newest snapshot of the current account.
func (m *Manager) Latest(ctx context.Context) (*models.UsageSnapshot, error) {
	return m.usage.Latest(ctx)
}

// Snapshot returns the latest snapshot of an account.
func (m *Manager) Snapshot(ctx context.Context, accountID string) (*models.UsageSnapshot, error) {
	return m.usage.Get(ctx, accountID)
}

// Accounts returns every stored account, the current one flagged.
func (m *Manager) Accounts(ctx context.Context) ([]models.AccountUsage, error) {
	return m.usage.All(ctx)
}

// CachedAccounts returns the in-memory accounts without store I/O.
func (m *Manager) CachedAccounts() []models.AccountUsage {
	return m.usage.Cached()
}

// CurrentAccount returns the followed account id.
func (m *Manager) CurrentAccount() string {
	return m.usage.CurrentAccount()
}

// SetCurrentAccount switches the followed account.
func (m *Manager) SetCurrentAccount(ctx context.Context, accountID string) error {
	return m.usage.SetCurrentAccount(ctx, accountID)
}

// ForgetAccount removes an account and its stored snapshot.
func (m *Manager) ForgetAccount(ctx context.Context, accountID string) error {
	return m.usage.Forget(ctx, accountID)
}

// LastUpdate returns when a snapshot was last ingested.
func (m *Manager) LastUpdate() time.Time {
	return m.usage.LastUpdate()
}

// Settings returns the persisted settings.
func (m *Manager) Settings(ctx context.Context) (models.Settings, error) {
	return m.database.LoadSettings(ctx, m.seed)
}

// UpdateSettings merges patch into the persisted settings.
func (m *Manager) UpdateSettings(ctx context.Context, patch models.SettingsPatch) (models.Settings, error) {
	updated, err := m.database.UpdateSettings(ctx, m.seed, patch.Apply)
	if err != nil {
		return models.Settings{}, fmt.Errorf("failed to update settings: %w", err)
	}

	logger.Info("settings updated",
		"notifications", updated.EnableNotifications,
		"auto_refresh", updated.EnableAutoRefresh,
		"threshold", updated.NotifyThreshold,
	)
	m.broadcast(SettingsChangedEvent{Settings: updated})
	return updated, nil
}

// FetchRemote reads one account back from Firebase.
func (m *Manager) FetchRemote(ctx context.Context, accountID string) (*remote.Record, error) {
	return m.remote.Fetch(ctx, accountID)
}

// FetchAllRemote reads every account back from Firebase.
func (m *Manager) FetchAllRemote(ctx context.Context) ([]remote.Record, error) {
	return m.remote.FetchAll(ctx)
}

// NextCheck returns the next scheduled check, or nil before Start.
func (m *Manager) NextCheck() *time.Time {
	m.mu.RLock()
	s := m.scheduler
	m.mu.RUnlock()
	if s == nil {
		return nil
	}
	return s.NextRun(scheduler.JobCheckUsage)
}

// Database returns the database instance for direct access.
func (m *Manager) Database() *db.DB {
	return m.database
}

// broadcast sends an event to all subscribers.
func (m *Manager) broadcast(event ServiceEvent) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sub := range m.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber channel full, skip
		}
	}
}

// Subscribe creates a channel for receiving service events.
// Returns a tea.Cmd that can be used in Bubble Tea's Init or Update.
func (m *Manager) Subscribe() (chan ServiceEvent, tea.Cmd) {
	ch := make(chan ServiceEvent, 50)

	m.mu.Lock()
	m.subscribers = append(m.subscribers, ch)
	m.mu.Unlock()

	return ch, WaitForEvent(ch)
}

// WaitForEvent returns a tea.Cmd for the next event on a channel.
func WaitForEvent(ch <-chan ServiceEvent) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-ch
		if !ok {
			return nil
		}
		return event
	}
}

// Unsubscribe removes a subscriber channel.
func (m *Manager) Unsubscribe(ch chan ServiceEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, sub := range m.subscribers {
		if sub == ch {
			m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
			close(ch)
			break
		}
	}
}

// Close stops background work and closes the store.
func (m *Manager) Close() error {
	var errs []error

	m.closeOnce.Do(func() {
		m.mu.RLock()
		sched, watcher := m.scheduler, m.watcher
		m.mu.RUnlock()

		if sched != nil {
			sched.Stop()
		}
		if watcher != nil {
			if err := watcher.Close(); err != nil {
				errs = append(errs, err)
			}
		}

		close(m.stopChan)
		m.wg.Wait()

		m.mu.Lock()
		for _, sub := range m.subscribers {
			close(sub)
		}
		m.subscribers = nil
		m.mu.Unlock()

		if err := m.usage.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := m.database.Close(); err != nil {
			errs = append(errs, err)
		}
	})

	return errors.Join(errs...)
}
