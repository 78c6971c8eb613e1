// Package worker provides a bounded task pool used to run discovery
// sweeps concurrently.
package worker

import (
	"errors"
	"time"
)

const (
	// DefaultPoolSize is the default number of tasks allowed to run at once.
	DefaultPoolSize = 4

	// DefaultDrainTimeout is the default timeout for graceful shutdown.
	DefaultDrainTimeout = 30 * time.Second

	// DefaultTaskTimeout is the default timeout for a single task. Sweeps
	// sit out rate-limit pauses, so the bound is generous.
	DefaultTaskTimeout = 30 * time.Minute

	// MinPoolSize is the minimum allowed pool size.
	MinPoolSize = 1

	// MaxPoolSize is the maximum allowed pool size.
	MaxPoolSize = 100
)

// Config holds configuration for the task pool.
type Config struct {
	// PoolSize is the number of tasks allowed to run concurrently.
	PoolSize int

	// DrainTimeout is the maximum time Stop waits for running tasks.
	DrainTimeout time.Duration

	// TaskTimeout bounds the execution of a single task.
	TaskTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		PoolSize:     DefaultPoolSize,
		DrainTimeout: DefaultDrainTimeout,
		TaskTimeout:  DefaultTaskTimeout,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.PoolSize < MinPoolSize {
		return errors.New("pool size must be at least 1")
	}
	if c.PoolSize > MaxPoolSize {
		return errors.New("pool size cannot exceed 100")
	}
	if c.DrainTimeout <= 0 {
		return errors.New("drain timeout must be positive")
	}
	if c.TaskTimeout <= 0 {
		return errors.New("task timeout must be positive")
	}
	return nil
}
