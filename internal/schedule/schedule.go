// Package schedule runs pipeline phases on cron schedules.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jonesrussell/gointel/internal/logger"
)

// nextRunFormat is how next-run timestamps appear in log output.
const nextRunFormat = "2006-01-02 15:04:05"

// Job pairs a cron expression with the work it triggers. Triggers of
// the same job never overlap; one that fires while the previous run is
// still going is skipped with a warning.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

// Scheduler dispatches registered jobs on their cron schedules.
// Register jobs with Add, then Start; Stop cancels in-flight runs and
// waits for them to wind down.
type Scheduler struct {
	log    logger.Interface
	cron   *cron.Cron
	parser cron.Parser

	mu      sync.Mutex
	entries map[string]cron.EntryID
	running map[string]bool
	started bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler. A nil log disables logging.
func NewScheduler(log logger.Interface) *Scheduler {
	if log == nil {
		log = logger.NewNoOp()
	}

	ctx, cancel := context.WithCancel(context.Background())
	// Standard 5-field cron parser (minute hour day month weekday).
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))

	return &Scheduler{
		log:     log.WithComponent("schedule"),
		cron:    c,
		parser:  parser,
		entries: make(map[string]cron.EntryID),
		running: make(map[string]bool),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Add registers a job. The spec is parsed up front so a bad expression
// fails at registration rather than at first trigger.
func (s *Scheduler) Add(job Job) error {
	if job.Run == nil {
		return fmt.Errorf("job %s: run function cannot be nil", job.Name)
	}
	if job.Spec == "" {
		return fmt.Errorf("job %s: no schedule", job.Name)
	}

	sched, err := s.parser.Parse(job.Spec)
	if err != nil {
		return fmt.Errorf("job %s: parse schedule %q: %w", job.Name, job.Spec, err)
	}

	name := job.Name
	run := job.Run
	entryID, err := s.cron.AddFunc(job.Spec, func() {
		s.trigger(name, run)
	})
	if err != nil {
		return fmt.Errorf("job %s: %w", job.Name, err)
	}

	s.mu.Lock()
	s.entries[job.Name] = entryID
	s.mu.Unlock()

	nextRun := sched.Next(time.Now())
	s.log.Info("Job scheduled",
		"job", job.Name,
		"schedule", job.Spec,
		"next_run", nextRun.Format(nextRunFormat),
		"time_until_next", time.Until(nextRun).Round(time.Second).String())

	return nil
}

// Start begins dispatching cron triggers.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("scheduler is already running")
	}
	s.started = true
	jobs := len(s.entries)
	s.mu.Unlock()

	s.cron.Start()
	s.log.Info("Scheduler started", "jobs", jobs)

	return nil
}

// Stop halts cron dispatch, cancels in-flight runs, and waits for them
// to finish. Returns ctx.Err if ctx expires first.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.log.Info("Stopping scheduler")

	s.mu.Lock()
	s.started = false
	s.mu.Unlock()
	s.cancel()

	select {
	case <-s.cron.Stop().Done():
		s.log.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		s.log.Warn("Scheduler stop interrupted", "error", ctx.Err())
		return ctx.Err()
	}
}

// trigger runs one job, skipping the trigger when the previous run of
// the same job is still in flight.
func (s *Scheduler) trigger(name string, run func(ctx context.Context) error) {
	s.mu.Lock()
	if s.running[name] {
		s.mu.Unlock()
		s.log.Warn("Job already running, skipping trigger", "job", name)
		return
	}
	s.running[name] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, name)
		s.mu.Unlock()
	}()

	start := time.Now()
	s.log.Info("Job triggered", "job", name)

	if err := run(s.ctx); err != nil {
		s.log.Error("Job failed",
			"job", name,
			"duration", time.Since(start).String(),
			"error", err)
		return
	}

	s.log.Info("Job completed", "job", name, "duration", time.Since(start).String())
}
