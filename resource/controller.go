// Package resource tracks the memory held by loaded embedding tables and
// throttles the disk IO of background loads.
package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds resource limits for the embedding service.
type Config struct {
	// MemoryLimitBytes is the hard limit for table memory.
	// If 0, no hard limit is enforced (only tracking).
	MemoryLimitBytes int64

	// MaxConcurrentLoads bounds how many embedding files may be read from
	// disk at the same time. If 0, defaults to 1.
	MaxConcurrentLoads int64

	// IOLimitBytesPerSec is the maximum read throughput for loads.
	// If 0, unlimited.
	IOLimitBytesPerSec int64
}

// Controller manages the global table-memory budget and load concurrency.
type Controller struct {
	cfg Config

	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	loadSem *semaphore.Weighted

	ioLimiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxConcurrentLoads <= 0 {
		cfg.MaxConcurrentLoads = 1
	}

	c := &Controller{
		cfg:     cfg,
		loadSem: semaphore.NewWeighted(cfg.MaxConcurrentLoads),
	}

	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}

	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}

	return c
}

// TryAcquireMemory attempts to reserve table memory without blocking.
// Returns true if acquired, false if the limit would be exceeded.
func (c *Controller) TryAcquireMemory(bytes int64) bool {
	if c == nil || bytes <= 0 {
		return true
	}

	if c.memSem != nil {
		if !c.memSem.TryAcquire(bytes) {
			return false
		}
	}

	c.memUsed.Add(bytes)
	return true
}

// ReleaseMemory releases reserved table memory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}

	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the currently reserved table memory in bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// AcquireLoad reserves a file-load slot, blocking until one is free or ctx
// is canceled.
func (c *Controller) AcquireLoad(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.loadSem.Acquire(ctx, 1)
}

// ReleaseLoad releases a file-load slot.
func (c *Controller) ReleaseLoad() {
	if c == nil {
		return
	}
	c.loadSem.Release(1)
}

// AcquireIO waits until the IO limit allows reading the given number of bytes.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil {
		return nil
	}
	// rate.Limiter caps a single WaitN at its burst size.
	burst := c.ioLimiter.Burst()
	for bytes > 0 {
		n := bytes
		if n > burst {
			n = burst
		}
		if err := c.ioLimiter.WaitN(ctx, n); err != nil {
			return err
		}
		bytes -= n
	}
	return nil
}
