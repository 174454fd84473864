package sitemap

import (
	"context"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the number of HEAD requests in flight at once.
const DefaultConcurrency = 4

// HeadFetcher retrieves response headers without a body.
// fetch.Fetcher satisfies it.
type HeadFetcher interface {
	Head(ctx context.Context, rawURL string) (http.Header, error)
}

// Builder converts discovered URLs into a URLSet.
type Builder struct {
	fetcher     HeadFetcher
	concurrency int
	logger      *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithConcurrency sets how many HEAD requests run in parallel.
func WithConcurrency(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		b.logger = logger
	}
}

// NewBuilder creates a Builder. A nil fetcher disables lastmod enrichment.
func NewBuilder(fetcher HeadFetcher, opts ...Option) *Builder {
	b := &Builder{
		fetcher:     fetcher,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// Build returns a document with one entry per URL, in input order.
// lastmod holds the Last-Modified header exactly as the server sent it,
// or is empty when the HEAD request failed or the header was absent.
func (b *Builder) Build(ctx context.Context, urls []string) *URLSet {
	set := NewURLSet()
	set.URLs = make([]URL, len(urls))
	for i, u := range urls {
		set.URLs[i].Loc = u
	}
	if b.fetcher == nil || len(urls) == 0 {
		return set
	}

	var g errgroup.Group
	g.SetLimit(b.concurrency)
	for i := range set.URLs {
		g.Go(func() error {
			// Each goroutine owns index i, so no lock is needed.
			set.URLs[i].LastMod = b.lastModified(ctx, set.URLs[i].Loc)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never return errors

	return set
}

func (b *Builder) lastModified(ctx context.Context, rawURL string) string {
	header, err := b.fetcher.Head(ctx, rawURL)
	if err != nil {
		b.logger.Debug("HEAD request failed, lastmod left empty", "url", rawURL, "error", err)
		return ""
	}
	return header.Get("Last-Modified")
}
