package scheduler

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs recurring refresh jobs.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger

	mu      sync.Mutex
	started bool
}

// Handle is the cancellation handle of one scheduled job.
type Handle struct {
	s    *Scheduler
	id   cron.EntryID
	name string
	once *sync.Once
}

// New creates a scheduler. A job that is still running when its next tick
// fires is skipped for that tick.
func New() *Scheduler {
	logger := slog.Default().With("module", "scheduler")
	cronLogger := slogAdapter{logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		logger: logger,
	}
}

// Every schedules job at a fixed interval. Intervals are rounded to whole seconds.
func (s *Scheduler) Every(name string, interval time.Duration, job func()) (Handle, error) {
	if interval < time.Second {
		return Handle{}, fmt.Errorf("schedule %s: interval %v below 1s", name, interval)
	}
	id := s.cron.Schedule(cron.Every(interval), cron.FuncJob(job))
	s.logger.Info("Job scheduled", slog.String("job", name), slog.Duration("interval", interval))
	return Handle{s: s, id: id, name: name, once: &sync.Once{}}, nil
}

// Cancel removes the job. Safe to call more than once.
func (h Handle) Cancel() {
	if h.s == nil || h.once == nil {
		return
	}
	h.once.Do(func() {
		h.s.cron.Remove(h.id)
		h.s.logger.Info("Job cancelled", slog.String("job", h.name))
	})
}

// Next returns the next run time of the job, zero when cancelled.
func (h Handle) Next() time.Time {
	if h.s == nil {
		return time.Time{}
	}
	return h.s.cron.Entry(h.id).Next
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
	s.logger.Info("Scheduler started")
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// Len returns the number of scheduled jobs
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// slogAdapter satisfies cron.Logger
type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Debug(msg, keysAndValues...)
}

func (a slogAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, append([]interface{}{slog.Any("error", err)}, keysAndValues...)...)
}
