package db

import (
	"context"
	"testing"
	"time"

	"github.com/j-veylop/claude-usage-monitor/internal/models"
)

func testSnapshot(accountID string, sessionPct int, ts int64) *models.UsageSnapshot {
	return &models.UsageSnapshot{
		AccountID: accountID,
		Timestamp: ts,
		CurrentSession: models.QuotaWindow{
			Label:          models.LabelCurrentSession,
			Percentage:     sessionPct,
			ResetMinutes:   90,
			ResetTimestamp: ts + 90*60000,
			ResetType:      models.ResetCountdown,
		},
		WeeklyLimits:  models.QuotaWindow{Label: models.LabelWeekly, Percentage: 10},
		FiveHourLimit: models.QuotaWindow{Label: models.LabelFiveHour, Percentage: sessionPct},
	}
}

func TestSaveSnapshot_GetSnapshot(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()
	ctx := context.Background()

	ts := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC).UnixMilli()
	snap := testSnapshot("user@example.com", 42, ts)
	snap.ParseWarnings = []string{"weekly limits: reset time not found"}

	if err := db.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	got, err := db.GetSnapshot(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("GetSnapshot failed: %v", err)
	}
	if got == nil {
		t.Fatal("GetSnapshot returned nil")
	}
	if got.CurrentSession.Percentage != 42 || got.Timestamp != ts {
		t.Errorf("unexpected snapshot: %+v", got)
	}
	if got.CurrentSession.ResetTimestamp != ts+90*60000 {
		t.Errorf("ResetTimestamp = %d", got.CurrentSession.ResetTimestamp)
	}
	if got.WeeklyLimits.HasReset() {
		t.Error("unknown weekly reset should stay unknown after a round trip")
	}
	if len(got.ParseWarnings) != 1 {
		t.Errorf("ParseWarnings = %v", got.ParseWarnings)
	}
}

func TestSaveSnapshot_Supersedes(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()
	ctx := context.Background()

	if err := db.SaveSnapshot(ctx, testSnapshot("a", 10, 1000)); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveSnapshot(ctx, testSnapshot("a", 80, 2000)); err != nil {
		t.Fatal(err)
	}

	all, err := db.ListSnapshots(ctx)
	if err != nil {
		t.Fatalf("ListSnapshots failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 account, got %d", len(all))
	}
	if all[0].Snapshot.CurrentSession.Percentage != 80 {
		t.Errorf("latest snapshot not kept: %+v", all[0].Snapshot)
	}
}

func TestSaveSnapshot_RequiresAccount(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	if err := db.SaveSnapshot(context.Background(), &models.UsageSnapshot{}); err == nil {
		t.Error("expected error for snapshot without account id")
	}
	if err := db.SaveSnapshot(context.Background(), nil); err == nil {
		t.Error("expected error for nil snapshot")
	}
}

func TestGetSnapshot_NotFound(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	got, err := db.GetSnapshot(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetSnapshot failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestListSnapshots(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()
	ctx := context.Background()

	empty, err := db.ListSnapshots(ctx)
	if err != nil {
		t.Fatalf("ListSnapshots failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected no accounts, got %d", len(empty))
	}

	for _, id := range []string{"a", "b", "c"} {
		if err := db.SaveSnapshot(ctx, testSnapshot(id, 5, 1000)); err != nil {
			t.Fatal(err)
		}
	}

	all, err := db.ListSnapshots(ctx)
	if err != nil {
		t.Fatalf("ListSnapshots failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 accounts, got %d", len(all))
	}
	for _, a := range all {
		if a.Snapshot == nil || a.Snapshot.AccountID != a.AccountID {
			t.Errorf("account %q has mismatched snapshot", a.AccountID)
		}
		if a.UpdatedAt.IsZero() {
			t.Errorf("account %q has no UpdatedAt", a.AccountID)
		}
	}
}

func TestDeleteSnapshot(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()
	ctx := context.Background()

	if err := db.SaveSnapshot(ctx, testSnapshot("a", 5, 1000)); err != nil {
		t.Fatal(err)
	}
	if err := db.DeleteSnapshot(ctx, "a"); err != nil {
		t.Fatalf("DeleteSnapshot failed: %v", err)
	}

	got, err := db.GetSnapshot(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Error("snapshot should be gone")
	}
}
