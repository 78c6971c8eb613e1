package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonesrussell/gointel/internal/logger"
)

// State represents the lifecycle state of the pool.
type State int32

const (
	// StateStopped means the pool is not running.
	StateStopped State = iota

	// StateRunning means the pool is accepting tasks.
	StateRunning

	// StateDraining means the pool is shutting down gracefully.
	StateDraining

	// percentageMultiplier converts a ratio to a percentage.
	percentageMultiplier = 100
)

// String returns the string representation of a pool state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	default:
		return "unknown"
	}
}

// Task is one unit of work submitted to the pool.
type Task struct {
	// Name identifies the task in logs.
	Name string

	// Run executes the task. It must honor ctx cancellation.
	Run func(ctx context.Context) error
}

// Pool runs submitted tasks with bounded concurrency. A semaphore
// bounds the number of in-flight tasks; Submit blocks while the pool
// is full.
type Pool struct {
	config Config
	logger logger.Interface
	state  atomic.Int32
	sem    chan struct{}
	wg     sync.WaitGroup
	stopCh chan struct{}

	tasksProcessed atomic.Int64
	tasksSucceeded atomic.Int64
	tasksFailed    atomic.Int64
}

// NewPool creates a new task pool.
func NewPool(cfg Config, log logger.Interface) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if log == nil {
		log = logger.NewNoOp()
	}

	p := &Pool{
		config: cfg,
		logger: log.WithComponent("worker"),
		sem:    make(chan struct{}, cfg.PoolSize),
		stopCh: make(chan struct{}),
	}
	p.state.Store(int32(StateStopped))

	return p, nil
}

// Start starts the pool.
func (p *Pool) Start() error {
	if !p.state.CompareAndSwap(int32(StateStopped), int32(StateRunning)) {
		return errors.New("pool is already running")
	}

	p.logger.Debug("task pool started", "pool_size", p.config.PoolSize)

	return nil
}

// Stop drains the pool, waiting up to the drain timeout for running
// tasks to finish. Tasks still running after the timeout are abandoned
// to their task timeout.
func (p *Pool) Stop(ctx context.Context) error {
	if !p.state.CompareAndSwap(int32(StateRunning), int32(StateDraining)) {
		return errors.New("pool is not running")
	}

	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Debug("task pool stopped",
			"processed", p.tasksProcessed.Load(),
			"failed", p.tasksFailed.Load())
	case <-ctx.Done():
		p.logger.Warn("task pool stop interrupted")
	case <-time.After(p.config.DrainTimeout):
		p.logger.Warn("task pool drain timeout exceeded")
	}

	p.state.Store(int32(StateStopped))

	return nil
}

// Submit schedules a task, blocking while every slot is busy. It
// returns the context error when ctx ends before a slot frees up.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	if task.Run == nil {
		return errors.New("task run function cannot be nil")
	}
	if p.State() != StateRunning {
		return errors.New("pool is not running")
	}

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stopCh:
		return errors.New("pool is stopping")
	}

	p.wg.Add(1)

	go func() {
		defer func() {
			<-p.sem
			p.wg.Done()
		}()
		p.runTask(ctx, task)
	}()

	return nil
}

// Wait blocks until every submitted task has finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// runTask executes one task under the configured timeout and records
// its outcome.
func (p *Pool) runTask(ctx context.Context, task Task) {
	taskCtx, cancel := context.WithTimeout(ctx, p.config.TaskTimeout)
	defer cancel()

	start := time.Now()
	err := task.Run(taskCtx)
	duration := time.Since(start)

	p.tasksProcessed.Add(1)

	if err != nil {
		p.tasksFailed.Add(1)
		p.logger.Warn("task failed",
			"task", task.Name,
			"duration", duration.String(),
			"error", err.Error())
		return
	}

	p.tasksSucceeded.Add(1)
	p.logger.Debug("task completed",
		"task", task.Name,
		"duration", duration.String())
}

// State returns the current pool state.
func (p *Pool) State() State {
	return State(p.state.Load())
}

// IsRunning returns true if the pool is accepting tasks.
func (p *Pool) IsRunning() bool {
	return p.State() == StateRunning
}

// Size returns the configured concurrency bound.
func (p *Pool) Size() int {
	return p.config.PoolSize
}

// Busy returns the number of tasks currently running.
func (p *Pool) Busy() int {
	return len(p.sem)
}

// Stats returns a snapshot of pool statistics.
func (p *Pool) Stats() Stats {
	return Stats{
		State:          p.State(),
		PoolSize:       p.config.PoolSize,
		Busy:           p.Busy(),
		TasksProcessed: p.tasksProcessed.Load(),
		TasksSucceeded: p.tasksSucceeded.Load(),
		TasksFailed:    p.tasksFailed.Load(),
	}
}

// Stats holds statistics for the pool.
type Stats struct {
	State          State
	PoolSize       int
	Busy           int
	TasksProcessed int64
	TasksSucceeded int64
	TasksFailed    int64
}

// SuccessRate returns the success rate as a percentage.
func (s Stats) SuccessRate() float64 {
	if s.TasksProcessed == 0 {
		return 0
	}
	return float64(s.TasksSucceeded) / float64(s.TasksProcessed) * percentageMultiplier
}

// Utilization returns the pool utilization as a percentage.
func (s Stats) Utilization() float64 {
	if s.PoolSize == 0 {
		return 0
	}
	return float64(s.Busy) / float64(s.PoolSize) * percentageMultiplier
}
