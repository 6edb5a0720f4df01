package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/j-veylop/claude-usage-monitor/internal/logger"
	"github.com/j-veylop/claude-usage-monitor/internal/models"
)

// SettingsStore loads and updates the persisted settings. *db.DB implements it.
type SettingsStore interface {
	LoadSettings(ctx context.Context, seed models.Settings) (models.Settings, error)
	UpdateSettings(ctx context.Context, seed models.Settings, fn func(models.Settings) models.Settings) (models.Settings, error)
}

// Pusher delivers a message through a keyed webhook.
type Pusher interface {
	Send(ctx context.Context, key, title, body string) error
}

// LocalNotifier shows a message on this machine.
type LocalNotifier interface {
	Send(title, message string) error
}

// ResultType classifies the outcome of a check.
type ResultType int

const (
	// ResultSkipped means the policy decided not to alert.
	ResultSkipped ResultType = iota
	// ResultSent means the webhook confirmed delivery.
	ResultSent
	// ResultFailed means settings could not be read or delivery failed.
	ResultFailed
)

func (t ResultType) String() string {
	switch t {
	case ResultSent:
		return "sent"
	case ResultFailed:
		return "failed"
	default:
		return "skipped"
	}
}

// Result describes one check or test send.
type Result struct {
	At        time.Time
	Err       error
	ID        string
	AccountID string
	Title     string
	Decision  Decision
	Type      ResultType
	Test      bool
}

// Event is emitted for every delivery attempt.
type Event struct {
	Result Result
}

// Service evaluates snapshots against the alert policy and delivers alerts.
// Checks are serialised and always read the cooldown state from the store.
type Service struct {
	store     SettingsStore
	push      Pusher
	local     LocalNotifier
	now       func() time.Time
	eventChan chan Event
	seed      models.Settings
	mu        sync.Mutex
}

// New creates a notifier. seed is stored as the settings when none exist yet.
func New(store SettingsStore, seed models.Settings, push Pusher, local LocalNotifier) *Service {
	return &Service{
		store:     store,
		push:      push,
		local:     local,
		now:       time.Now,
		eventChan: make(chan Event, 100),
		seed:      seed,
	}
}

// Events returns the event channel.
func (s *Service) Events() <-chan Event {
	return s.eventChan
}

// Check alerts about snap if the policy allows it. The cooldown is consumed
// only when the webhook confirms delivery.
func (s *Service) Check(ctx context.Context, snap *models.UsageSnapshot) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	res := Result{At: now, Title: AlertTitle}
	if snap != nil {
		res.AccountID = snap.AccountID
	}

	settings, err := s.store.LoadSettings(ctx, s.seed)
	if err != nil {
		res.Type = ResultFailed
		res.Err = fmt.Errorf("failed to load settings: %w", err)
		logger.Error("notification check failed", "error", err)
		return res
	}

	res.Decision = Evaluate(snap, settings.NotificationState(), now)
	if !res.Decision.Notify {
		res.Type = ResultSkipped
		logger.Debug("notification skipped",
			"account", res.AccountID,
			"reason", res.Decision.Reason,
			"five_hour_remaining", res.Decision.FiveHourRemaining,
			"weekly_remaining", res.Decision.WeeklyRemaining,
		)
		return res
	}

	res.ID = uuid.NewString()
	body := BuildMessage(snap, now)

	if err := s.deliver(ctx, settings.ServerChanKey, AlertTitle, body); err != nil {
		res.Type = ResultFailed
		res.Err = err
		logger.Error("failed to deliver notification", "id", res.ID, "account", res.AccountID, "error", err)
		s.sendEvent(Event{Result: res})
		return res
	}

	_, err = s.store.UpdateSettings(ctx, s.seed, func(current models.Settings) models.Settings {
		current.LastNotifyTime = MarkNotified(current.NotificationState(), now).LastNotifiedAt
		return current
	})
	if err != nil {
		logger.Error("failed to persist notification time", "id", res.ID, "error", err)
	}

	res.Type = ResultSent
	logger.Info("notification sent",
		"id", res.ID,
		"account", res.AccountID,
		"five_hour_remaining", res.Decision.FiveHourRemaining,
		"weekly_remaining", res.Decision.WeeklyRemaining,
	)
	s.sendEvent(Event{Result: res})
	return res
}

// SendTest delivers a test notification. It ignores the cooldown and does
// not touch the notification state.
func (s *Service) SendTest(ctx context.Context) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	res := Result{At: now, Title: TestTitle, Test: true, ID: uuid.NewString()}

	settings, err := s.store.LoadSettings(ctx, s.seed)
	if err != nil {
		res.Type = ResultFailed
		res.Err = fmt.Errorf("failed to load settings: %w", err)
		s.sendEvent(Event{Result: res})
		return res
	}

	if err := s.deliver(ctx, settings.ServerChanKey, TestTitle, BuildTestMessage(now)); err != nil {
		res.Type = ResultFailed
		res.Err = err
		logger.Warn("test notification failed", "id", res.ID, "error", err)
	} else {
		res.Type = ResultSent
		logger.Info("test notification sent", "id", res.ID)
	}

	s.sendEvent(Event{Result: res})
	return res
}

// deliver pushes through the webhook and the local channel in parallel.
// Only the webhook decides success.
func (s *Service) deliver(ctx context.Context, key, title, body string) error {
	if key == "" {
		return ErrNotConfigured
	}

	var g errgroup.Group

	g.Go(func() error {
		return s.push.Send(ctx, key, title, body)
	})

	if s.local != nil {
		g.Go(func() error {
			if err := s.local.Send(title, body); err != nil {
				logger.Warn("desktop notification failed", "error", err)
			}
			return nil
		})
	}

	return g.Wait()
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

// IsNotConfigured reports whether err means a channel lacks its credential.
func IsNotConfigured(err error) bool {
	return errors.Is(err, ErrNotConfigured)
}
