package collect

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/quantfold/screener/pkg/logger"
)

// Task fetches and records one symbol. Implementations write only their own
// symbol's slot; the collector never looks at per-symbol results, it only
// paces and bounds the fan-out. A task that finds nothing simply records
// nothing; per-symbol failures never abort the batch.
type Task func(ctx context.Context, symbol string)

// Config holds collector pacing parameters.
type Config struct {
	BatchSize     int           // symbols per batch
	MaxConcurrent int64         // in-flight fetches per batch
	BatchDelay    time.Duration // pause between batches
}

// DefaultConfig mirrors the provider rate budget the system was tuned for.
func DefaultConfig() Config {
	return Config{
		BatchSize:     75,
		MaxConcurrent: 35,
		BatchDelay:    500 * time.Millisecond,
	}
}

// Collector fans a symbol list out to per-symbol tasks under a global
// concurrency cap, in fixed-size batches with inter-batch pauses.
type Collector struct {
	cfg    Config
	stats  *Stats
	logger *logger.Logger

	// Optional transport preflight. When it fails, the whole run fails.
	// This is the only batch-fatal condition.
	preflight func(ctx context.Context) error

	sleep func(time.Duration)
}

// New creates a collector. stats must not be nil.
func New(cfg Config, stats *Stats, log *logger.Logger) *Collector {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 75
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 35
	}
	return &Collector{
		cfg:    cfg,
		stats:  stats,
		logger: log.WithField("module", "collector"),
		sleep:  time.Sleep,
	}
}

// WithPreflight sets a transport check run once before the first batch.
func (c *Collector) WithPreflight(fn func(ctx context.Context) error) *Collector {
	c.preflight = fn
	return c
}

// Run processes all symbols. It joins every in-flight task of a batch before
// moving to the next batch, so partial results are recorded, never silently
// dropped mid-batch.
func (c *Collector) Run(ctx context.Context, symbols []string, task Task) error {
	if len(symbols) == 0 {
		return nil
	}

	if c.preflight != nil {
		if err := c.preflight(ctx); err != nil {
			return fmt.Errorf("transport preflight failed: %w", err)
		}
	}

	sem := semaphore.NewWeighted(c.cfg.MaxConcurrent)
	totalBatches := (len(symbols) + c.cfg.BatchSize - 1) / c.cfg.BatchSize

	for i := 0; i < len(symbols); i += c.cfg.BatchSize {
		end := i + c.cfg.BatchSize
		if end > len(symbols) {
			end = len(symbols)
		}
		batch := symbols[i:end]
		batchNum := i/c.cfg.BatchSize + 1

		for _, symbol := range batch {
			if err := sem.Acquire(ctx, 1); err != nil {
				return fmt.Errorf("batch %d cancelled: %w", batchNum, err)
			}
			go func(symbol string) {
				defer sem.Release(1)
				task(ctx, symbol)
				c.stats.Processed.Add(1)
			}(symbol)
		}

		// Join point: wait for every in-flight fetch of this batch.
		if err := sem.Acquire(ctx, c.cfg.MaxConcurrent); err != nil {
			return fmt.Errorf("batch %d cancelled: %w", batchNum, err)
		}
		sem.Release(c.cfg.MaxConcurrent)

		snap := c.stats.Snapshot()
		c.logger.WithFields(map[string]interface{}{
			"batch":         batchNum,
			"total_batches": totalBatches,
			"processed":     snap.Processed,
			"complete":      snap.Complete,
			"complete_rate": fmt.Sprintf("%.1f%%", snap.CompleteRate()*100),
		}).Info("Batch completed")

		if end < len(symbols) && c.cfg.BatchDelay > 0 {
			c.sleep(c.cfg.BatchDelay)
		}
	}

	return nil
}
