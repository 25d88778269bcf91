package tunnel

import (
	"context"
	"time"
)

// startSamplerLocked begins advancing the connection timer for attempt.
// Callers hold c.mu.
func (c *Controller) startSamplerLocked(attempt uint64) {
	c.stopSamplerLocked()

	ctx, cancel := context.WithCancel(context.Background())
	c.cancelSampler = cancel
	c.stats = &ConnectionStatistics{}

	go c.runSampler(ctx, attempt)
}

// stopSamplerLocked cancels the ticker. Callers hold c.mu, so no tick can
// land after this returns.
func (c *Controller) stopSamplerLocked() {
	if c.cancelSampler != nil {
		c.cancelSampler()
		c.cancelSampler = nil
	}
}

func (c *Controller) runSampler(ctx context.Context, attempt uint64) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick(ctx, attempt)
		}
	}
}

func (c *Controller) tick(ctx context.Context, attempt uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ctx.Err() != nil || c.attempt != attempt || c.state != StateUp || c.stats == nil {
		return
	}
	// Published snapshots share the pointer, so replace instead of mutating.
	c.stats = &ConnectionStatistics{Seconds: c.stats.Seconds + 1}
	c.publishLocked(ChangeStatistics)
}
