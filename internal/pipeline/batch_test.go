package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/sitemapper/internal/model"
)

// seedFactory builds a single-step pipeline whose step runs fn.
func seedFactory(fn func(ctx context.Context, report *model.CrawlReport) error) Factory {
	return func(seed string) (*Pipeline, *model.CrawlReport) {
		p := New(WithLogger(quietLogger()))
		p.AddStep(&funcStep{fn: fn})
		return p, model.NewCrawlReport(seed, 2)
	}
}

type funcStep struct {
	fn func(ctx context.Context, report *model.CrawlReport) error
}

func (s *funcStep) Do(ctx context.Context, report *model.CrawlReport) error {
	return s.fn(ctx, report)
}

func (s *funcStep) Name() string {
	return "func"
}

func TestNewBatchProcessor(t *testing.T) {
	t.Parallel()

	bp := NewBatchProcessor(nil)
	if bp.concurrency != DefaultBatchConcurrency {
		t.Errorf("expected concurrency %d, got %d", DefaultBatchConcurrency, bp.concurrency)
	}
	if bp.logger == nil {
		t.Error("expected default logger")
	}

	bp = NewBatchProcessor(nil, WithConcurrency(5), WithConcurrency(0), WithBatchLogger(quietLogger()))
	if bp.concurrency != 5 {
		t.Errorf("expected concurrency 5, got %d", bp.concurrency)
	}
}

func TestProcessBatch(t *testing.T) {
	t.Parallel()

	t.Run("reports in seed order", func(t *testing.T) {
		t.Parallel()

		seeds := []string{"https://a.example/", "https://b.example/", "https://c.example/"}
		bp := NewBatchProcessor(seedFactory(func(_ context.Context, report *model.CrawlReport) error {
			report.URLs = append(report.URLs, report.Seed+"page")
			return nil
		}), WithConcurrency(3), WithBatchLogger(quietLogger()))

		reports, err := bp.ProcessBatch(t.Context(), seeds)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(reports) != len(seeds) {
			t.Fatalf("expected %d reports, got %d", len(seeds), len(reports))
		}
		for i, report := range reports {
			if report.Seed != seeds[i] {
				t.Errorf("report %d: expected seed %s, got %s", i, seeds[i], report.Seed)
			}
			if len(report.URLs) != 1 || report.URLs[0] != seeds[i]+"page" {
				t.Errorf("report %d: unexpected URLs %v", i, report.URLs)
			}
		}
	})

	t.Run("failed seed does not stop others", func(t *testing.T) {
		t.Parallel()

		failure := errors.New("boom")
		bp := NewBatchProcessor(seedFactory(func(_ context.Context, report *model.CrawlReport) error {
			if report.Seed == "https://bad.example/" {
				return failure
			}
			return nil
		}), WithBatchLogger(quietLogger()))

		reports, err := bp.ProcessBatch(t.Context(), []string{"https://good.example/", "https://bad.example/"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !reports[0].Succeeded() {
			t.Error("expected first seed to succeed")
		}
		if !errors.Is(reports[1].Error, failure) {
			t.Errorf("expected second seed to fail with %v, got %v", failure, reports[1].Error)
		}
	})

	t.Run("respects concurrency limit", func(t *testing.T) {
		t.Parallel()

		var running, peak atomic.Int32
		bp := NewBatchProcessor(seedFactory(func(context.Context, *model.CrawlReport) error {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
			return nil
		}), WithConcurrency(2), WithBatchLogger(quietLogger()))

		seeds := []string{"https://1.example/", "https://2.example/", "https://3.example/", "https://4.example/", "https://5.example/"}
		if _, err := bp.ProcessBatch(t.Context(), seeds); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if peak.Load() > 2 {
			t.Errorf("expected at most 2 concurrent pipelines, got %d", peak.Load())
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		var calls atomic.Int32
		bp := NewBatchProcessor(seedFactory(func(context.Context, *model.CrawlReport) error {
			calls.Add(1)
			return nil
		}), WithBatchLogger(quietLogger()))

		reports, err := bp.ProcessBatch(ctx, []string{"https://a.example/", "https://b.example/"})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if calls.Load() != 0 {
			t.Errorf("expected no pipeline to run, got %d", calls.Load())
		}
		for i, report := range reports {
			if report != nil {
				t.Errorf("report %d should be nil", i)
			}
		}
	})
}

func TestProcessBatchWithCallback(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		seen = make(map[int]string)
	)
	bp := NewBatchProcessor(seedFactory(func(context.Context, *model.CrawlReport) error {
		return nil
	}), WithBatchLogger(quietLogger()))

	seeds := []string{"https://a.example/", "https://b.example/"}
	err := bp.ProcessBatchWithCallback(t.Context(), seeds, func(report *model.CrawlReport, index int) {
		mu.Lock()
		defer mu.Unlock()
		seen[index] = report.Seed
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(seen) != len(seeds) {
		t.Fatalf("expected %d callbacks, got %d", len(seeds), len(seen))
	}
	for i, seed := range seeds {
		if seen[i] != seed {
			t.Errorf("callback %d: expected %s, got %s", i, seed, seen[i])
		}
	}
}
