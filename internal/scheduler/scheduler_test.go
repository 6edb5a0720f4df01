package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestEvery(t *testing.T) {
	if got := Every(15 * time.Minute); got != "@every 15m0s" {
		t.Errorf("Every(15m) = %q", got)
	}
}

func TestScheduler_Start(t *testing.T) {
	noop := func(context.Context) error { return nil }

	tests := []struct {
		name        string
		spec        string
		wantRunning bool
		wantNext    bool
		wantError   bool
	}{
		{"interval", "@every 15m", true, true, false},
		{"hourly cron", "0 * * * *", true, true, false},
		{"on demand only", "", true, false, false},
		{"invalid schedule", "invalid cron", false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(Job{Name: JobCheckUsage, Spec: tt.spec, Run: noop})

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			err := s.Start(ctx)
			if (err != nil) != tt.wantError {
				t.Fatalf("Start() error = %v, wantError %v", err, tt.wantError)
			}
			defer s.Stop()

			if s.IsRunning() != tt.wantRunning {
				t.Errorf("IsRunning() = %v, want %v", s.IsRunning(), tt.wantRunning)
			}

			next := s.NextRun(JobCheckUsage)
			if (next != nil) != tt.wantNext {
				t.Fatalf("NextRun() = %v, wantNext %v", next, tt.wantNext)
			}
			if next != nil && !next.After(time.Now()) {
				t.Errorf("NextRun() = %v, should be in the future", next)
			}
		})
	}
}

func TestScheduler_StartTwice(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()
	if err := s.Start(ctx); err == nil {
		t.Error("second Start() should fail")
	}
}

func TestScheduler_RunsScheduledJob(t *testing.T) {
	var runs atomic.Int32
	s := New(Job{Name: JobAutoRefresh, Spec: "@every 1s", Run: func(context.Context) error {
		runs.Add(1)
		return nil
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if runs.Load() == 0 {
		t.Fatal("scheduled job never ran")
	}
}

func TestScheduler_RunNow(t *testing.T) {
	jobErr := errors.New("page missing")
	var runs int
	s := New(
		Job{Name: JobCheckUsage, Run: func(context.Context) error { runs++; return nil }},
		Job{Name: JobAutoRefresh, Run: func(context.Context) error { return jobErr }},
	)

	if err := s.RunNow(context.Background(), JobCheckUsage); err != nil {
		t.Errorf("RunNow() failed: %v", err)
	}
	if runs != 1 {
		t.Errorf("runs = %d, want 1", runs)
	}
	if err := s.RunNow(context.Background(), JobAutoRefresh); !errors.Is(err, jobErr) {
		t.Errorf("RunNow() error = %v, want job error", err)
	}
	if err := s.RunNow(context.Background(), "nope"); !errors.Is(err, ErrUnknownJob) {
		t.Errorf("RunNow(unknown) error = %v, want ErrUnknownJob", err)
	}
}

func TestScheduler_ScheduledRunSkipsBusyJob(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var runs atomic.Int32

	s := New(Job{Name: JobCheckUsage, Run: func(context.Context) error {
		if runs.Add(1) == 1 {
			close(started)
			<-release
		}
		return nil
	}})

	go func() { _ = s.RunNow(context.Background(), JobCheckUsage) }()
	<-started

	if err := s.run(context.Background(), JobCheckUsage, true); err != nil {
		t.Errorf("skipped run returned error: %v", err)
	}
	close(release)

	if got := runs.Load(); got != 1 {
		t.Errorf("runs = %d, want the busy job to be skipped", got)
	}
}

func TestScheduler_StopOnContextCancel(t *testing.T) {
	s := New(Job{Name: JobCheckUsage, Spec: "@every 1h", Run: func(context.Context) error { return nil }})

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for s.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if s.IsRunning() {
		t.Error("scheduler still running after context cancel")
	}
	if s.NextRun(JobCheckUsage) != nil {
		t.Error("NextRun() should be nil once stopped")
	}
}
