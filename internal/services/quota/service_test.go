package quota

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/j-veylop/claude-usage-monitor/internal/models"
)

// memStore implements Store in memory for testing
type memStore struct {
	snaps      map[string]*models.UsageSnapshot
	current    string
	lastUpdate time.Time
	saveErr    error
	mu         sync.Mutex
}

func newMemStore() *memStore {
	return &memStore{snaps: make(map[string]*models.UsageSnapshot)}
}

func (m *memStore) SaveSnapshot(_ context.Context, snap *models.UsageSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.snaps[snap.AccountID] = snap.Clone()
	return nil
}

func (m *memStore) DeleteSnapshot(_ context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snaps, accountID)
	return nil
}

func (m *memStore) GetSnapshot(_ context.Context, accountID string) (*models.UsageSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snaps[accountID].Clone(), nil
}

func (m *memStore) ListSnapshots(_ context.Context) ([]models.AccountUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AccountUsage
	for id, snap := range m.snaps {
		out = append(out, models.AccountUsage{AccountID: id, Snapshot: snap.Clone()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, nil
}

func (m *memStore) CurrentAccount(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, nil
}

func (m *memStore) SetCurrentAccount(_ context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = accountID
	return nil
}

func (m *memStore) LastUpdate(_ context.Context) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastUpdate, nil
}

func (m *memStore) SetLastUpdate(_ context.Context, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastUpdate = t
	return nil
}

func newTestService(t *testing.T, store *memStore) *Service {
	t.Helper()
	svc, err := New(context.Background(), store)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	svc.now = func() time.Time { return testNow }
	return svc
}

func TestService_Ingest(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	stored, err := svc.Ingest(ctx, &models.UsageSnapshot{
		AccountID:      "a@example.com",
		CurrentSession: models.QuotaWindow{Percentage: 120},
	})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	if stored.Timestamp != testNow.UnixMilli() {
		t.Errorf("Timestamp = %d, want now", stored.Timestamp)
	}
	if stored.CurrentSession.Percentage != 100 {
		t.Errorf("Percentage = %d, want clamped 100", stored.CurrentSession.Percentage)
	}
	if stored.WeeklyLimits.Label != models.LabelWeekly {
		t.Errorf("weekly label = %q", stored.WeeklyLimits.Label)
	}

	if store.current != "a@example.com" {
		t.Errorf("store current = %q", store.current)
	}
	if !store.lastUpdate.Equal(testNow) || !svc.LastUpdate().Equal(testNow) {
		t.Errorf("last update not recorded")
	}
	if svc.CurrentAccount() != "a@example.com" {
		t.Errorf("CurrentAccount() = %q", svc.CurrentAccount())
	}

	select {
	case ev := <-svc.Events():
		if ev.Type != EventSnapshotUpdated || ev.AccountID != "a@example.com" || ev.Snapshot == nil {
			t.Errorf("unexpected event: %+v", ev)
		}
	default:
		t.Error("expected EventSnapshotUpdated")
	}
}

func TestService_Ingest_DefaultsAccount(t *testing.T) {
	svc := newTestService(t, newMemStore())

	stored, err := svc.Ingest(context.Background(), &models.UsageSnapshot{Timestamp: 5000})
	if err != nil {
		t.Fatal(err)
	}
	if stored.AccountID != models.DefaultAccountID {
		t.Errorf("AccountID = %q, want default", stored.AccountID)
	}
	if stored.Timestamp != 5000 {
		t.Errorf("explicit timestamp overwritten: %d", stored.Timestamp)
	}
}

func TestService_Ingest_Supersedes(t *testing.T) {
	svc := newTestService(t, newMemStore())
	ctx := context.Background()

	for _, pct := range []int{10, 55} {
		if _, err := svc.Ingest(ctx, &models.UsageSnapshot{
			AccountID:      "a",
			CurrentSession: models.QuotaWindow{Percentage: pct},
		}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := svc.Get(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if got.CurrentSession.Percentage != 55 {
		t.Errorf("Percentage = %d, want latest 55", got.CurrentSession.Percentage)
	}
	if n := len(svc.Cached()); n != 1 {
		t.Errorf("Cached() len = %d, want 1", n)
	}
}

func TestService_Ingest_StoreError(t *testing.T) {
	store := newMemStore()
	store.saveErr = errors.New("disk full")
	svc := newTestService(t, store)

	if _, err := svc.Ingest(context.Background(), &models.UsageSnapshot{AccountID: "a"}); err == nil {
		t.Fatal("expected error")
	}
	if svc.CurrentAccount() != "" {
		t.Error("failed ingest must not change the current account")
	}

	select {
	case ev := <-svc.Events():
		if ev.Type != EventIngestError || ev.Error == nil {
			t.Errorf("unexpected event: %+v", ev)
		}
	default:
		t.Error("expected EventIngestError")
	}
}

func TestService_Ingest_Nil(t *testing.T) {
	svc := newTestService(t, newMemStore())
	if _, err := svc.Ingest(context.Background(), nil); err == nil {
		t.Error("expected error for nil snapshot")
	}
}

func TestService_IngestText(t *testing.T) {
	svc := newTestService(t, newMemStore())

	stored, err := svc.IngestText(context.Background(), sessionOnlyPage, "file", time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if stored.Source != "file" || stored.AccountID != "user.name@example.com" {
		t.Errorf("unexpected snapshot: %+v", stored)
	}
	if stored.CurrentSession.ResetTimestamp != ToAbsolute(90, testNow) {
		t.Errorf("reset not anchored at ingest time")
	}
}

func TestService_IngestText_CapturedEarlier(t *testing.T) {
	svc := newTestService(t, newMemStore())
	dumped := testNow.Add(-20 * time.Minute)

	stored, err := svc.IngestText(context.Background(), sessionOnlyPage, "file", dumped)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Timestamp != dumped.UnixMilli() {
		t.Errorf("Timestamp = %d, want capture time", stored.Timestamp)
	}
	// "Resets in 1 hr 30 min" read 20 minutes ago leaves 70 minutes now.
	if got := RemainingMinutes(stored.CurrentSession.ResetTimestamp, testNow); got != 70 {
		t.Errorf("remaining = %d, want 70", got)
	}
}

func TestService_Ingest_RejectsOutdated(t *testing.T) {
	svc := newTestService(t, newMemStore())
	ctx := context.Background()

	if _, err := svc.Ingest(ctx, &models.UsageSnapshot{AccountID: "a", Timestamp: 2000}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Ingest(ctx, &models.UsageSnapshot{AccountID: "a", Timestamp: 1000}); !errors.Is(err, ErrOutdated) {
		t.Errorf("Ingest(older) error = %v, want ErrOutdated", err)
	}
	// Same timestamp is a re-send and is accepted.
	if _, err := svc.Ingest(ctx, &models.UsageSnapshot{AccountID: "a", Timestamp: 2000}); err != nil {
		t.Errorf("Ingest(same) error = %v", err)
	}
}

func TestService_Latest(t *testing.T) {
	svc := newTestService(t, newMemStore())
	ctx := context.Background()

	if _, err := svc.Latest(ctx); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("Latest() error = %v, want ErrNoSnapshot", err)
	}

	if _, err := svc.Ingest(ctx, &models.UsageSnapshot{AccountID: "a"}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Ingest(ctx, &models.UsageSnapshot{AccountID: "b"}); err != nil {
		t.Fatal(err)
	}

	got, err := svc.Latest(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.AccountID != "b" {
		t.Errorf("Latest() account = %q, want b", got.AccountID)
	}
}

func TestService_SetCurrentAccount(t *testing.T) {
	svc := newTestService(t, newMemStore())
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if _, err := svc.Ingest(ctx, &models.UsageSnapshot{AccountID: id}); err != nil {
			t.Fatal(err)
		}
	}
	// drain ingest events
	for len(svc.Events()) > 0 {
		<-svc.Events()
	}

	if err := svc.SetCurrentAccount(ctx, "missing"); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("SetCurrentAccount(missing) error = %v", err)
	}

	if err := svc.SetCurrentAccount(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if svc.CurrentAccount() != "a" {
		t.Errorf("CurrentAccount() = %q", svc.CurrentAccount())
	}
	ev := <-svc.Events()
	if ev.Type != EventCurrentAccountChanged || ev.AccountID != "a" {
		t.Errorf("unexpected event: %+v", ev)
	}

	all, err := svc.All(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, acc := range all {
		if acc.IsCurrent != (acc.AccountID == "a") {
			t.Errorf("account %q IsCurrent = %v", acc.AccountID, acc.IsCurrent)
		}
	}
}

func TestService_Forget(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	for _, id := range []string{"a@example.com", "b@example.com"} {
		if _, err := svc.Ingest(ctx, &models.UsageSnapshot{AccountID: id}); err != nil {
			t.Fatal(err)
		}
	}
	for len(svc.Events()) > 0 {
		<-svc.Events()
	}

	if err := svc.Forget(ctx, "a@example.com"); err != nil {
		t.Fatalf("Forget failed: %v", err)
	}
	if _, ok := store.snaps["a@example.com"]; ok {
		t.Error("snapshot should be deleted from the store")
	}
	if svc.CurrentAccount() != "b@example.com" {
		t.Errorf("forgetting another account changed current to %q", svc.CurrentAccount())
	}
	if cached := svc.Cached(); len(cached) != 1 || cached[0].AccountID != "b@example.com" {
		t.Errorf("Cached() = %+v", cached)
	}

	select {
	case ev := <-svc.Events():
		if ev.Type != EventAccountForgotten || ev.AccountID != "a@example.com" {
			t.Errorf("unexpected event: %+v", ev)
		}
	default:
		t.Error("expected EventAccountForgotten")
	}

	if err := svc.Forget(ctx, "b@example.com"); err != nil {
		t.Fatalf("Forget current failed: %v", err)
	}
	if svc.CurrentAccount() != "" || store.current != "" {
		t.Errorf("current = %q / %q, want none", svc.CurrentAccount(), store.current)
	}
	if _, err := svc.Latest(ctx); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("Latest() error = %v, want ErrNoSnapshot", err)
	}
}

func TestService_Forget_Unknown(t *testing.T) {
	svc := newTestService(t, newMemStore())

	if err := svc.Forget(context.Background(), "ghost@example.com"); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("Forget() error = %v, want ErrNoSnapshot", err)
	}
}

func TestService_New_WarmsCache(t *testing.T) {
	store := newMemStore()
	store.snaps["a"] = &models.UsageSnapshot{AccountID: "a", Timestamp: 1000}
	store.current = "a"
	store.lastUpdate = testNow

	svc := newTestService(t, store)

	if svc.CurrentAccount() != "a" {
		t.Errorf("CurrentAccount() = %q", svc.CurrentAccount())
	}
	cached := svc.Cached()
	if len(cached) != 1 || !cached[0].IsCurrent {
		t.Errorf("Cached() = %+v", cached)
	}
	if !svc.LastUpdate().Equal(testNow) {
		t.Errorf("LastUpdate() = %v", svc.LastUpdate())
	}
}

func TestService_SendEvent_Full(t *testing.T) {
	svc := newTestService(t, newMemStore())

	for range 110 {
		svc.sendEvent(Event{Type: EventSnapshotUpdated})
	}

	if count := len(svc.Events()); count != 100 {
		t.Errorf("expected 100 events in buffer, got %d", count)
	}
}

func TestService_Close(t *testing.T) {
	svc := newTestService(t, newMemStore())
	if err := svc.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}
