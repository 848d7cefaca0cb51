package orchestrator

import (
	"fmt"
	"runtime"
	"time"
)

// Config holds configuration for the orchestration core.
type Config struct {
	// PoolSize is the number of execution units in the worker pool.
	// Zero means runtime.NumCPU().
	PoolSize int

	// MaxRetries is the default retry budget for a worker assignment.
	MaxRetries int

	// DispatchTimeout bounds a single dispatch when the request metadata
	// carries no timeout of its own.
	DispatchTimeout time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration

	// HeartbeatInterval is how often registered workers are expected to
	// report liveness.
	HeartbeatInterval time.Duration

	// WorkerStaleThreshold is how long a worker may stay silent before the
	// monitor marks it unhealthy and releases its in-flight assignments.
	WorkerStaleThreshold time.Duration

	// RequestTTL is the logical expiry applied by Request.IsExpired when
	// the caller supplies none.
	RequestTTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		PoolSize:             runtime.NumCPU(),
		MaxRetries:           3,
		DispatchTimeout:      30 * time.Second,
		ShutdownTimeout:      30 * time.Second,
		HeartbeatInterval:    10 * time.Second,
		WorkerStaleThreshold: 30 * time.Second,
		RequestTTL:           5 * time.Minute,
	}
}

// Validate reports configuration values that cannot work.
func (c Config) Validate() error {
	if c.PoolSize < 0 {
		return fmt.Errorf("orchestrator: pool size must be >= 0, got %d", c.PoolSize)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("orchestrator: max retries must be >= 0, got %d", c.MaxRetries)
	}
	if c.HeartbeatInterval > 0 && c.WorkerStaleThreshold > 0 &&
		c.WorkerStaleThreshold < c.HeartbeatInterval {
		return fmt.Errorf("orchestrator: stale threshold %s shorter than heartbeat interval %s",
			c.WorkerStaleThreshold, c.HeartbeatInterval)
	}
	return nil
}
