// Package scheduler runs the periodic usage jobs on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/j-veylop/claude-usage-monitor/internal/logger"
	"github.com/robfig/cron/v3"
)

// Job names.
const (
	JobCheckUsage  = "check-usage"
	JobAutoRefresh = "auto-refresh"
	JobVacuum      = "vacuum"
)

// ErrUnknownJob is returned by RunNow for a name that was never added.
var ErrUnknownJob = errors.New("unknown job")

// Job is a named task with a cron spec such as "@every 15m" or "0 * * * *".
// An empty Spec registers the job for RunNow only.
type Job struct {
	Run  func(ctx context.Context) error
	Name string
	Spec string
}

// Every returns the cron spec for a fixed interval.
func Every(d time.Duration) string {
	return "@every " + d.String()
}

// Scheduler runs jobs on their schedules. A job never overlaps with itself.
type Scheduler struct {
	cron    *cron.Cron
	log     *slog.Logger
	jobs    map[string]Job
	entries map[string]cron.EntryID
	locks   map[string]*sync.Mutex
	order   []string
	mu      sync.Mutex
	running bool
}

// New creates a scheduler for jobs. Schedules are validated by Start.
func New(jobs ...Job) *Scheduler {
	log := logger.With("component", "scheduler")
	s := &Scheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(cronLogger{log}))),
		log:     log,
		jobs:    make(map[string]Job, len(jobs)),
		entries: make(map[string]cron.EntryID, len(jobs)),
		locks:   make(map[string]*sync.Mutex, len(jobs)),
	}
	for _, job := range jobs {
		if _, dup := s.jobs[job.Name]; !dup {
			s.order = append(s.order, job.Name)
		}
		s.jobs[job.Name] = job
		s.locks[job.Name] = &sync.Mutex{}
	}
	return s
}

// Start schedules every job with a spec and starts the cron runner. The
// scheduler stops when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("scheduler already running")
	}

	for _, name := range s.order {
		job := s.jobs[name]
		if job.Spec == "" {
			s.log.Info("job has no schedule, run on demand only", "job", name)
			continue
		}
		if _, err := cron.ParseStandard(job.Spec); err != nil {
			return fmt.Errorf("invalid schedule %q for job %s: %w", job.Spec, name, err)
		}
	}

	for _, name := range s.order {
		job := s.jobs[name]
		if job.Spec == "" {
			continue
		}
		id, err := s.cron.AddFunc(job.Spec, func() {
			s.run(ctx, name, true)
		})
		if err != nil {
			return fmt.Errorf("failed to schedule job %s: %w", name, err)
		}
		s.entries[name] = id
		s.log.Info("job scheduled", "job", name, "schedule", job.Spec)
	}

	s.cron.Start()
	s.running = true

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// RunNow runs a job immediately in the calling goroutine, waiting for a
// scheduled run of the same job to finish first.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	_, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.run(ctx, name, false)
}

// run executes one job. Scheduled runs are skipped while the job is busy.
func (s *Scheduler) run(ctx context.Context, name string, scheduled bool) error {
	job := s.jobs[name]
	lock := s.locks[name]

	if scheduled {
		if !lock.TryLock() {
			s.log.Debug("job still running, skipping", "job", name)
			return nil
		}
	} else {
		lock.Lock()
	}
	defer lock.Unlock()

	start := time.Now()
	err := job.Run(ctx)
	if err != nil {
		s.log.Error("job failed", "job", name, "error", err, "duration", time.Since(start))
		return err
	}
	s.log.Debug("job completed", "job", name, "duration", time.Since(start))
	return nil
}

// Stop stops the scheduler and waits for running jobs to complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil && s.running {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.running = false
		s.log.Info("scheduler stopped")
	}
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

// NextRun returns the next scheduled run of a job, or nil if it has none.
func (s *Scheduler) NextRun(name string) *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.entries[name]
	if !ok || !s.running {
		return nil
	}

	entry := s.cron.Entry(id)
	if !entry.Valid() || entry.Next.IsZero() {
		return nil
	}
	next := entry.Next
	return &next
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
