package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/sitemapper/internal/fetch"
	"github.com/nao1215/sitemapper/internal/model"
	"github.com/nao1215/sitemapper/internal/weburl"
)

// ErrNilVisitedSet is returned when Crawl is called without a VisitedSet.
var ErrNilVisitedSet = errors.New("visited set is required")

// Policy decides whether a path on an origin may be fetched.
// *robots.Gate satisfies it.
type Policy interface {
	IsAllowed(ctx context.Context, origin, path string) bool
}

// allowAll is the Policy used when none is configured.
type allowAll struct{}

func (allowAll) IsAllowed(context.Context, string, string) bool { return true }

// CrawlRequest describes one crawl.
type CrawlRequest struct {
	// SeedURL is where the crawl starts. It must be absolute.
	SeedURL string

	// MaxDepth is how many times links may be expanded below the seed.
	// With 0 only the seed's own links are discovered.
	MaxDepth int
}

// DiscoveredLink is a work item: a URL still to be expanded and how many
// more expansions are allowed below it.
type DiscoveredLink struct {
	AbsoluteURL    string
	DepthRemaining int
}

// Result is the outcome of one crawl.
type Result struct {
	// Seed is the requested seed URL.
	Seed string

	// URLs lists the discovered same-origin pages without duplicates.
	// The seed itself is never included.
	URLs []string

	// Events lists pages that could not be fetched, parsed or were
	// refused by robots.txt.
	Events []model.Event

	// PagesFetched counts successfully retrieved documents, seed included.
	PagesFetched int

	// SeedDenied is true when robots.txt refused the seed.
	SeedDenied bool

	StartedAt  time.Time
	FinishedAt time.Time
}

// Spider crawls the pages of a single origin.
//
// A Spider holds configuration only. All per-crawl state lives in the
// VisitedSet and Result of each Crawl call, so one Spider may run several
// crawls, even concurrently.
type Spider struct {
	// fetcher retrieves pages.
	fetcher fetch.Fetcher

	// policy is consulted before a page is fetched.
	policy Policy

	// extractor pulls hrefs out of fetched pages.
	extractor LinkExtractor

	// maxPages caps the number of discovered URLs. 0 means unlimited.
	maxPages int

	// concurrency is the number of pages fetched in parallel.
	concurrency int

	// ignorePatterns are URL path patterns never discovered.
	// Patterns use glob syntax (e.g., "/admin/*", "*.pdf").
	ignorePatterns []string

	// followPatterns restrict discovery to matching paths when set.
	followPatterns []string

	logger *slog.Logger
}

// SpiderOption configures a Spider.
type SpiderOption func(*Spider)

// WithPolicy sets the robots policy. Without one every path is allowed.
func WithPolicy(p Policy) SpiderOption {
	return func(s *Spider) {
		s.policy = p
	}
}

// WithExtractor replaces the HTML link extractor.
func WithExtractor(e LinkExtractor) SpiderOption {
	return func(s *Spider) {
		s.extractor = e
	}
}

// WithMaxPages caps how many URLs a crawl may discover. 0 means unlimited.
func WithMaxPages(maxPages int) SpiderOption {
	return func(s *Spider) {
		if maxPages >= 0 {
			s.maxPages = maxPages
		}
	}
}

// WithConcurrency sets how many pages are fetched in parallel. Values
// above 1 switch to the level-by-level traversal, whose output order is
// unspecified.
func WithConcurrency(n int) SpiderOption {
	return func(s *Spider) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithIgnorePatterns sets URL path patterns to skip during crawling.
// Patterns use glob syntax (e.g., "/admin/*", "*.pdf", "/logout*").
// URLs matching any of these patterns are neither listed nor fetched.
func WithIgnorePatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.ignorePatterns = patterns
	}
}

// WithFollowPatterns sets URL path patterns to follow during crawling.
// If set, only URLs matching at least one pattern are discovered.
func WithFollowPatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.followPatterns = patterns
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) SpiderOption {
	return func(s *Spider) {
		s.logger = logger
	}
}

// NewSpider creates a Spider that retrieves pages with fetcher.
func NewSpider(fetcher fetch.Fetcher, opts ...SpiderOption) *Spider {
	s := &Spider{
		fetcher:     fetcher,
		policy:      allowAll{},
		extractor:   HTMLExtractor{},
		concurrency: 1,
	}

	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	return s
}

// Crawl discovers the pages reachable from req.SeedURL.
//
// visited must be a fresh set created by the caller for this crawl.
// Per-URL failures are recorded in Result.Events and never returned.
// The returned error is non-nil only for an invalid request or when ctx
// ends; in the latter case the partial result is returned with it.
func (s *Spider) Crawl(ctx context.Context, req CrawlRequest, visited *VisitedSet) (*Result, error) {
	result := &Result{
		Seed:      req.SeedURL,
		URLs:      make([]string, 0),
		Events:    make([]model.Event, 0),
		StartedAt: time.Now(),
	}
	defer func() {
		result.FinishedAt = time.Now()
	}()

	if visited == nil {
		return result, ErrNilVisitedSet
	}
	if !weburl.Validate(req.SeedURL) {
		return result, fmt.Errorf("%w: %q", ErrInvalidURL, req.SeedURL)
	}
	if req.MaxDepth < 0 {
		return result, fmt.Errorf("%w: %d", ErrNegativeDepth, req.MaxDepth)
	}

	run := &crawlRun{
		spider:  s,
		seed:    req.SeedURL,
		visited: visited,
		result:  result,
	}

	if !run.permitted(ctx, req.SeedURL) {
		result.SeedDenied = true
		return result, nil
	}
	visited.Claim(req.SeedURL)

	seed := DiscoveredLink{AbsoluteURL: req.SeedURL, DepthRemaining: req.MaxDepth}
	found := run.visit(ctx, seed)

	var err error
	if s.concurrency > 1 {
		err = run.parallel(ctx, children(seed, found))
	} else {
		err = run.sequential(ctx, children(seed, found))
	}
	if err != nil {
		return result, fmt.Errorf("crawl %s interrupted: %w", req.SeedURL, err)
	}
	return result, nil
}

// crawlRun is the state of one Crawl call.
type crawlRun struct {
	spider  *Spider
	seed    string
	visited *VisitedSet

	mu     sync.Mutex
	result *Result
}

// sequential expands links depth-first. Children are pushed in reverse so
// they pop in page order, which reproduces the recursive pre-order.
func (r *crawlRun) sequential(ctx context.Context, start []DiscoveredLink) error {
	stack := make([]DiscoveredLink, 0, len(start))
	stack = pushReversed(stack, start)

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		link := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !r.permitted(ctx, link.AbsoluteURL) {
			continue
		}
		found := r.visit(ctx, link)
		stack = pushReversed(stack, children(link, found))
	}
	return ctx.Err()
}

// parallel expands one depth level at a time, fetching up to
// spider.concurrency pages of the level at once. A failed page never
// cancels its siblings.
func (r *crawlRun) parallel(ctx context.Context, level []DiscoveredLink) error {
	for len(level) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		var (
			mu   sync.Mutex
			next []DiscoveredLink
			g    errgroup.Group
		)
		g.SetLimit(r.spider.concurrency)

		for _, link := range level {
			g.Go(func() error {
				if !r.permitted(ctx, link.AbsoluteURL) {
					return nil
				}
				found := children(link, r.visit(ctx, link))
				if len(found) > 0 {
					mu.Lock()
					next = append(next, found...)
					mu.Unlock()
				}
				return nil
			})
		}
		_ = g.Wait() //nolint:errcheck // workers never return errors

		level = next
	}
	return ctx.Err()
}

// permitted consults the policy for rawURL and records a refusal.
func (r *crawlRun) permitted(ctx context.Context, rawURL string) bool {
	origin, err := weburl.Origin(rawURL)
	if err != nil {
		return false
	}
	if r.spider.policy.IsAllowed(ctx, origin, weburl.Path(rawURL)) {
		return true
	}

	r.spider.logger.Debug("skipping page disallowed by robots.txt", "url", rawURL)
	r.addEvent(model.EventPolicyDenied, rawURL, "disallowed by robots.txt")
	return false
}

// visit fetches link, extracts its anchors and returns the URLs that were
// discovered for the first time, in page order.
func (r *crawlRun) visit(ctx context.Context, link DiscoveredLink) []string {
	s := r.spider
	s.logger.Debug("fetching page", "url", link.AbsoluteURL, "depth_remaining", link.DepthRemaining)

	resp, err := s.fetcher.Fetch(ctx, link.AbsoluteURL)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		s.logger.Warn("failed to fetch page", "url", link.AbsoluteURL, "error", err)
		r.addEvent(model.EventFetchFailed, link.AbsoluteURL, err.Error())
		return nil
	}

	r.mu.Lock()
	r.result.PagesFetched++
	r.mu.Unlock()

	hrefs, err := s.extractor.ExtractLinks(bytes.NewReader(resp.Body), resp.ContentType())
	if err != nil {
		s.logger.Warn("failed to extract links", "url", link.AbsoluteURL, "error", err)
		r.addEvent(model.EventParseFailed, link.AbsoluteURL, err.Error())
		return nil
	}

	found := make([]string, 0)
	for _, href := range hrefs {
		abs, err := weburl.Resolve(link.AbsoluteURL, href)
		if err != nil {
			continue
		}
		abs = stripFragment(abs)

		// Scope checks run before the claim so an out-of-scope URL never
		// occupies the visited set.
		if !weburl.SameOrigin(r.seed, abs) || !s.shouldCrawl(abs) {
			continue
		}
		if !r.claim(abs) {
			continue
		}
		found = append(found, abs)
	}
	return found
}

// claim records abs as discovered unless it was seen before or the page
// cap is reached.
func (r *crawlRun) claim(abs string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.spider.maxPages > 0 && len(r.result.URLs) >= r.spider.maxPages {
		return false
	}
	if !r.visited.Claim(abs) {
		return false
	}
	r.result.URLs = append(r.result.URLs, abs)
	return true
}

func (r *crawlRun) addEvent(kind model.EventKind, rawURL, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result.Events = append(r.result.Events, model.Event{Kind: kind, URL: rawURL, Message: message})
}

// children turns the URLs discovered on parent into work items. Pages
// with no depth left are not expanded, so they yield none.
func children(parent DiscoveredLink, found []string) []DiscoveredLink {
	if parent.DepthRemaining <= 0 || len(found) == 0 {
		return nil
	}
	out := make([]DiscoveredLink, 0, len(found))
	for _, u := range found {
		out = append(out, DiscoveredLink{AbsoluteURL: u, DepthRemaining: parent.DepthRemaining - 1})
	}
	return out
}

func pushReversed(stack, items []DiscoveredLink) []DiscoveredLink {
	for i := len(items) - 1; i >= 0; i-- {
		stack = append(stack, items[i])
	}
	return stack
}

// shouldCrawl checks if a URL should be crawled based on ignore/follow patterns.
//
// Logic:
//  1. If URL matches any ignorePattern, skip it (return false)
//  2. If followPatterns is set and URL matches none, skip it (return false)
//  3. Otherwise, crawl it (return true)
func (s *Spider) shouldCrawl(targetURL string) bool {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	for _, pattern := range s.ignorePatterns {
		if matchPattern(pattern, path) {
			return false
		}
	}

	if len(s.followPatterns) > 0 {
		for _, pattern := range s.followPatterns {
			if matchPattern(pattern, path) {
				return true
			}
		}
		return false
	}

	return true
}

// matchPattern checks if a path matches a glob pattern.
// Patterns can use:
//   - * to match any sequence of non-separator characters
//   - ? to match any single character
//   - a trailing "/*" to match a whole subtree
//
// Examples:
//   - "/admin/*" matches "/admin/dashboard", "/admin/users/42"
//   - "*.pdf" matches "/docs/file.pdf"
//   - "/api/v?" matches "/api/v1", "/api/v2"
func matchPattern(pattern, path string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		if strings.HasPrefix(path, prefix+"/") || path == prefix {
			return true
		}
	}

	if ext, ok := strings.CutPrefix(pattern, "*"); ok && strings.HasPrefix(ext, ".") {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}

	matched, err := filepath.Match(pattern, path)
	if err != nil {
		return false
	}
	if matched {
		return true
	}

	if strings.Contains(pattern, "*") && !strings.Contains(pattern, "/") {
		matched, err := filepath.Match(pattern, filepath.Base(path))
		if err == nil && matched {
			return true
		}
	}

	return false
}
