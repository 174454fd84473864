package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/sitemapper/internal/model"
)

// DefaultBatchConcurrency is the number of seeds processed at once when
// WithConcurrency is not given.
const DefaultBatchConcurrency = 2

// Factory creates a fresh pipeline and an empty report for seed. Each
// seed gets its own pipeline so that no crawl state leaks between them.
type Factory func(seed string) (*Pipeline, *model.CrawlReport)

// BatchProcessor crawls multiple seeds concurrently. It uses errgroup to
// bound the number of pipelines running at once.
type BatchProcessor struct {
	factory Factory

	// concurrency is the maximum number of concurrent pipelines.
	concurrency int

	logger *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent pipelines.
// Non-positive values are ignored.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor.
func NewBatchProcessor(factory Factory, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		factory:     factory,
		concurrency: DefaultBatchConcurrency,
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatch crawls every seed and returns the reports in seed order.
// A failed pipeline does not stop the others; its error is in its report.
// Seeds not started before ctx ends have a nil report, and the context
// error is returned.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, seeds []string) ([]*model.CrawlReport, error) {
	reports := make([]*model.CrawlReport, len(seeds))
	err := bp.ProcessBatchWithCallback(ctx, seeds, func(report *model.CrawlReport, index int) {
		// Each goroutine owns its index.
		reports[index] = report
	})
	return reports, err
}

// ProcessBatchWithCallback crawls every seed and calls callback as each
// one finishes. callback runs on the worker goroutine and must be safe
// for concurrent use.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	seeds []string,
	callback func(report *model.CrawlReport, index int),
) error {
	bp.logger.Info("starting batch processing",
		"total_seeds", len(seeds),
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	// A plain Group: one failed seed must not cancel the others.
	var g errgroup.Group
	g.SetLimit(bp.concurrency)

	for i, seed := range seeds {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			bp.logger.Debug("crawling seed",
				"seed", seed,
				"index", i+1,
				"total", len(seeds),
			)

			p, report := bp.factory(seed)
			if err := p.Execute(ctx, report); err != nil {
				bp.logger.Warn("crawl failed", "seed", seed, "error", err)
			}

			callback(report, i)
			return nil
		})
	}

	err := g.Wait()

	bp.logger.Info("batch processing complete",
		"total_seeds", len(seeds),
		"elapsed", time.Since(startTime),
	)
	return err
}
