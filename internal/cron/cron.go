// Package cron implements the scheduled job store and scheduler of
// spec.md §4.10: a list of {id, name, schedule, enabled, payload} jobs,
// a scheduler task that wakes at each job's next_run under a
// cancellation token, and a run-now bypass for "weft cron run <id>".
// Grounded on the teacher's internal/cron (functional-options
// constructor, fake-clock WithNow option, robfig/cron/v3 schedule
// parsing), trimmed to the job-type-agnostic payload the engine core
// actually needs — concrete job execution (send a message, invoke an
// agent) is supplied by the caller via JobRunner.
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

var cronParser = cronlib.NewParser(
	cronlib.SecondOptional | cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// Job is one scheduled entry (spec.md §3).
type Job struct {
	ID       string
	Name     string
	Schedule string // cron expression
	Enabled  bool
	Payload  map[string]any

	NextRun time.Time
	LastRun time.Time
}

// JobRunner executes a job's payload. Supplied by the caller (e.g. the
// gateway wires this to "send an outbound message" or "invoke an
// agent"); cron itself only knows how to schedule and cancel.
type JobRunner interface {
	Run(ctx context.Context, job Job) error
}

// JobRunnerFunc adapts a function to a JobRunner.
type JobRunnerFunc func(ctx context.Context, job Job) error

func (f JobRunnerFunc) Run(ctx context.Context, job Job) error { return f(ctx, job) }

// Store holds the configured set of cron jobs, exclusively mutated
// through Scheduler's Add/Remove/SetEnabled methods.
type Store struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

// NewStore constructs an empty job store.
func NewStore() *Store {
	return &Store{jobs: make(map[string]*Job)}
}

// Scheduler wakes at each job's next_run, checks enabled, and launches
// the job under a cancellation-aware runner.
type Scheduler struct {
	store  *Store
	runner JobRunner
	logger *slog.Logger
	now    func() time.Time
	tick   time.Duration

	mu      sync.Mutex
	started bool
	wg      sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithNow overrides the clock, for deterministic tests.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTickInterval overrides how often the scheduler checks for due
// jobs.
func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tick = d
		}
	}
}

// NewScheduler constructs a scheduler over store, dispatching due jobs
// to runner.
func NewScheduler(store *Store, runner JobRunner, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:  store,
		runner: runner,
		logger: slog.Default().With("component", "cron"),
		now:    time.Now,
		tick:   time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers or replaces a job, computing its first next_run.
// Invalid cron expressions are rejected rather than silently dropped,
// since Add is a direct user action ("weft cron add"), unlike the
// config-load path which logs and skips.
func (s *Scheduler) Add(job Job) error {
	next, err := next(job.Schedule, s.now())
	if err != nil {
		return fmt.Errorf("cron: add %s: %w", job.ID, err)
	}
	job.NextRun = next
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	cp := job
	s.store.jobs[job.ID] = &cp
	return nil
}

// Remove deletes a job by id.
func (s *Scheduler) Remove(id string) bool {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	if _, ok := s.store.jobs[id]; !ok {
		return false
	}
	delete(s.store.jobs, id)
	return true
}

// SetEnabled toggles a job's enabled flag.
func (s *Scheduler) SetEnabled(id string, enabled bool) bool {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	job, ok := s.store.jobs[id]
	if !ok {
		return false
	}
	job.Enabled = enabled
	return true
}

// List returns a snapshot of all configured jobs.
func (s *Scheduler) List() []Job {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	out := make([]Job, 0, len(s.store.jobs))
	for _, j := range s.store.jobs {
		out = append(out, *j)
	}
	return out
}

// Start begins the scheduler loop, which runs due jobs until ctx is
// cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.tick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runDue(ctx)
			}
		}
	}()
}

// Stop waits for the scheduler loop to exit (the caller is expected to
// have cancelled the context passed to Start).
func (s *Scheduler) Stop() {
	s.wg.Wait()
}

func (s *Scheduler) runDue(ctx context.Context) {
	now := s.now()
	s.store.mu.Lock()
	due := make([]*Job, 0)
	for _, job := range s.store.jobs {
		if job.Enabled && !job.NextRun.IsZero() && !now.Before(job.NextRun) {
			due = append(due, job)
		}
	}
	s.store.mu.Unlock()

	for _, job := range due {
		s.runOne(ctx, job, now)
	}
}

// Run bypasses the schedule and executes the job immediately ("weft
// cron run <id>"), without disturbing its next_run.
func (s *Scheduler) Run(ctx context.Context, id string) error {
	s.store.mu.Lock()
	job, ok := s.store.jobs[id]
	s.store.mu.Unlock()
	if !ok {
		return fmt.Errorf("cron: job not found: %s", id)
	}
	cp := *job
	if err := s.runner.Run(ctx, cp); err != nil {
		return fmt.Errorf("cron: run %s: %w", id, err)
	}
	return nil
}

func (s *Scheduler) runOne(ctx context.Context, job *Job, now time.Time) {
	s.store.mu.Lock()
	job.LastRun = now
	s.store.mu.Unlock()

	cp := *job
	if err := s.runner.Run(ctx, cp); err != nil {
		s.logger.Warn("cron job failed", "id", job.ID, "error", err)
	}

	nextRun, err := next(job.Schedule, now)
	s.store.mu.Lock()
	if err != nil {
		s.logger.Warn("cron job has no further runs", "id", job.ID, "error", err)
		job.NextRun = time.Time{}
		job.Enabled = false
	} else {
		job.NextRun = nextRun
	}
	s.store.mu.Unlock()
}

// next parses expr and returns the next run time strictly after now.
func next(expr string, now time.Time) (time.Time, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return time.Time{}, fmt.Errorf("cron: empty schedule")
	}
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("cron: invalid schedule %q: %w", expr, err)
	}
	return schedule.Next(now), nil
}
