// Package crawler discovers the same-origin pages of a website.
//
// # Architecture
//
// The package is built around the Spider type. A crawl starts from a seed
// URL and walks anchor links up to a depth limit, never leaving the seed's
// origin. State that must be shared by every step of one crawl lives in a
// VisitedSet, which the caller creates and passes in explicitly:
//
//	visited := crawler.NewVisitedSet()
//	result, err := spider.Crawl(ctx, crawler.CrawlRequest{SeedURL: seed, MaxDepth: 2}, visited)
//
// A VisitedSet must not be reused across independent crawls. A page that
// was already discovered by an earlier crawl would be skipped silently.
//
// # Traversal order
//
// With the default concurrency of 1 the spider walks an explicit LIFO
// work list. The output is the recursive pre-order: a page's own new
// links first, then the subtree of each of those links in the order they
// appeared on the page.
//
// With WithConcurrency(n) for n > 1 the pages of one depth level are
// fetched in parallel. Every URL is still discovered at most once, but the
// order of Result.URLs is unspecified.
//
// # Failures
//
// Per-URL problems never stop a crawl. A page that cannot be fetched, a
// page refused by robots.txt and a page whose links cannot be extracted
// are recorded as model.Event values in the Result and logged; the rest of
// the crawl continues. Crawl itself only fails for an invalid request or a
// cancelled context.
//
// # Components
//
//   - Spider: drives fetch, policy check and link extraction
//   - HTMLExtractor: pulls raw href values out of HTML documents
//   - VisitedSet: concurrency-safe claim set keyed by normalized URL
package crawler
