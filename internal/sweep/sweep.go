// Package sweep runs periodic maintenance jobs such as closing idle mail
// tickets. Jobs never overlap with themselves: a tick that arrives while
// the previous run is still going is skipped.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one unit of periodic work.
type Job func(ctx context.Context) error

// Observer receives one observation per completed run.
type Observer interface {
	ObserveSweep(job string, elapsed time.Duration, err error)
}

// Scheduler wraps a cron runner with per-job overlap protection.
type Scheduler struct {
	cron     *cron.Cron
	observer Observer
	log      *slog.Logger

	mu     sync.Mutex
	jobs   map[string]cron.Job
	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithObserver records job runs.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) {
		s.observer = o
	}
}

// WithLogger sets the scheduler's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		s.log = l
	}
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		log:  slog.Default(),
		jobs: make(map[string]cron.Job),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "sweep")
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.cron = cron.New(cron.WithLogger(cronLogger{s.log}))
	return s
}

// Every schedules job at a fixed interval.
func (s *Scheduler) Every(name string, interval time.Duration, job Job) error {
	if interval <= 0 {
		return fmt.Errorf("sweep %s: interval must be positive, got %s", name, interval)
	}
	return s.Schedule(name, "@every "+interval.String(), job)
}

// Schedule adds job under a standard cron spec ("*/5 * * * *", "@hourly").
func (s *Scheduler) Schedule(name, spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("sweep %s: already scheduled", name)
	}

	logger := cronLogger{s.log}
	guarded := cron.NewChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)).
		Then(&task{name: name, fn: job, s: s})
	if _, err := s.cron.AddJob(spec, guarded); err != nil {
		return fmt.Errorf("sweep %s: %w", name, err)
	}
	s.jobs[name] = guarded
	s.log.Debug("scheduled job", "job", name, "spec", spec)
	return nil
}

// Jobs returns the scheduled job names in sorted order.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for n := range s.jobs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RunNow runs a job synchronously, subject to the same overlap guard as
// scheduled runs.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("sweep %s: not scheduled", name)
	}
	job.Run()
	return nil
}

// Start begins ticking. Jobs receive a context that is cancelled by Stop.
func (s *Scheduler) Start() {
	s.log.Info("scheduler starting", "jobs", len(s.Jobs()))
	s.cron.Start()
}

// Stop halts ticking and waits for running jobs to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

type task struct {
	name string
	fn   Job
	s    *Scheduler
}

func (t *task) Run() {
	start := time.Now()
	err := t.fn(t.s.ctx)
	elapsed := time.Since(start)
	if err != nil {
		t.s.log.Error("job failed", "job", t.name, "duration", elapsed, "error", err)
	} else {
		t.s.log.Debug("job finished", "job", t.name, "duration", elapsed)
	}
	if t.s.observer != nil {
		t.s.observer.ObserveSweep(t.name, elapsed, err)
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
