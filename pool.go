package client

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// WorkerPoolConfig contains configuration for ordered concurrent processing.
type WorkerPoolConfig struct {
	// NumWorkers is the maximum number of items processed at once.
	// Values below 1 are treated as 1.
	NumWorkers int

	// WorkerTimeout bounds the time spent on a single item. Zero disables it.
	WorkerTimeout time.Duration
}

// PoolMetrics tracks work done by ProcessConcurrently.
type PoolMetrics struct {
	TasksProcessed int64         `json:"tasks_processed"`
	TasksErrored   int64         `json:"tasks_errored"`
	MaxActive      int64         `json:"max_active"`
	TotalExecTime  time.Duration `json:"total_exec_time"`
}

// ProcessConcurrently processes items with at most config.NumWorkers items in
// flight and returns the results in input order, regardless of completion
// order. The first error cancels the remaining work and is returned alone.
//
// Arguments:
//   - ctx: Context for cancellation and timeouts.
//   - items: Items to process.
//   - processor: Function applied to each item.
//   - config: Worker limits.
//   - metrics: Optional counters updated as items complete.
//
// Returns:
//   - []U: One result per item, aligned with items.
//   - error: The first error encountered, or the context error.
//
// Example:
//
//	lengths, err := ProcessConcurrently(ctx, []string{"a", "bb"},
//	    func(ctx context.Context, i int, s string) (int, error) {
//	        return len(s), nil
//	    }, WorkerPoolConfig{NumWorkers: 2}, nil)
func ProcessConcurrently[T any, U any](
	ctx context.Context,
	items []T,
	processor func(ctx context.Context, index int, item T) (U, error),
	config WorkerPoolConfig,
	metrics *PoolMetrics,
) ([]U, error) {
	if len(items) == 0 {
		return nil, ctx.Err()
	}

	workers := config.NumWorkers
	if workers < 1 {
		workers = 1
	}

	results := make([]U, len(items))
	var active int64

	run := func(ctx context.Context, i int) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		itemCtx := ctx
		if config.WorkerTimeout > 0 {
			var cancel context.CancelFunc
			itemCtx, cancel = context.WithTimeout(ctx, config.WorkerTimeout)
			defer cancel()
		}

		if metrics != nil {
			n := atomic.AddInt64(&active, 1)
			defer atomic.AddInt64(&active, -1)
			for {
				peak := atomic.LoadInt64(&metrics.MaxActive)
				if n <= peak || atomic.CompareAndSwapInt64(&metrics.MaxActive, peak, n) {
					break
				}
			}
		}

		start := time.Now()
		out, err := processor(itemCtx, i, items[i])
		if metrics != nil {
			atomic.AddInt64(&metrics.TasksProcessed, 1)
			atomic.AddInt64((*int64)(&metrics.TotalExecTime), int64(time.Since(start)))
			if err != nil {
				atomic.AddInt64(&metrics.TasksErrored, 1)
			}
		}
		if err != nil {
			return err
		}

		results[i] = out
		return nil
	}

	if workers == 1 {
		for i := range items {
			if err := run(ctx, i); err != nil {
				return nil, err
			}
		}
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return run(gctx, i)
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return results, nil
}
