package memory

import (
	"context"
	"log/slog"
	"time"
)

// Consolidator drives periodic Consolidate passes over a set of banks.
// The tick source is injectable so tests can advance a virtual clock
// instead of sleeping.
type Consolidator struct {
	interval time.Duration
	logger   *slog.Logger

	// banks returns the banks to consolidate on each tick. Indirection
	// lets the session registry add banks while the job runs.
	banks func() []*Bank
}

// NewConsolidator creates a consolidation job.
func NewConsolidator(interval time.Duration, banks func() []*Bank, logger *slog.Logger) *Consolidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consolidator{interval: interval, logger: logger, banks: banks}
}

// Run consolidates on a wall-clock ticker until the context is done.
func (c *Consolidator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	c.RunWithTicks(ctx, ticker.C)
}

// RunWithTicks consolidates on each received tick until the context is
// done. Each Consolidate call takes the bank's own write lock, so this
// job never interleaves with a concurrent AddMemory.
func (c *Consolidator) RunWithTicks(ctx context.Context, ticks <-chan time.Time) {
	c.logger.Info("consolidation job started", "interval", c.interval)
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consolidation job stopped")
			return
		case <-ticks:
			for _, bank := range c.banks() {
				bank.Consolidate(ctx)
			}
		}
	}
}
