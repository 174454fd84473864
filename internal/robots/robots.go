package robots

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"

	"github.com/nao1215/sitemapper/internal/fetch"
)

// ErrPolicyFetch is wrapped by every error that prevented a robots.txt
// ruleset from being obtained: the origin was unreachable or the body
// could not be parsed.
var ErrPolicyFetch = errors.New("robots policy unavailable")

// WildcardAgent is the user agent rules are evaluated for by default.
const WildcardAgent = "*"

// FailurePolicy decides what happens to an origin whose robots.txt could
// not be obtained.
type FailurePolicy int

const (
	// FailClosed refuses every path on the origin.
	FailClosed FailurePolicy = iota

	// FailOpen allows every path on the origin.
	FailOpen
)

// String returns the flag spelling of the policy.
func (p FailurePolicy) String() string {
	switch p {
	case FailOpen:
		return "allow"
	case FailClosed:
		return "deny"
	default:
		return "unknown"
	}
}

// ParseFailurePolicy converts "allow" / "deny" into a FailurePolicy.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "allow", "open", "fail-open":
		return FailOpen, nil
	case "deny", "closed", "fail-closed", "":
		return FailClosed, nil
	default:
		return FailClosed, fmt.Errorf("unknown robots failure policy %q (want allow or deny)", s)
	}
}

// Source retrieves the robots.txt ruleset of an origin.
type Source interface {
	FetchPolicy(ctx context.Context, origin string) (*robotstxt.RobotsData, error)
}

// HTTPSource fetches "<origin>/robots.txt" with a fetch.Fetcher.
//
// Status handling follows RFC 9309: a 4xx answer means there are no
// rules (allow all) and a 5xx answer means the site is unavailable
// (disallow all). Only transport failures and unparseable bodies are
// reported as ErrPolicyFetch.
type HTTPSource struct {
	Fetcher fetch.Fetcher
}

// FetchPolicy implements Source.
func (s HTTPSource) FetchPolicy(ctx context.Context, origin string) (*robotstxt.RobotsData, error) {
	robotsURL := strings.TrimSuffix(origin, "/") + "/robots.txt"

	resp, err := s.Fetcher.Fetch(ctx, robotsURL)
	if err != nil {
		var fetchErr *fetch.Error
		if errors.As(err, &fetchErr) && fetchErr.StatusCode != 0 {
			data, perr := robotstxt.FromStatusAndBytes(fetchErr.StatusCode, nil)
			if perr != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrPolicyFetch, robotsURL, perr)
			}
			return data, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrPolicyFetch, err)
	}

	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrPolicyFetch, robotsURL, err)
	}
	return data, nil
}

// entry is one cached lookup. data is nil when the fetch failed.
type entry struct {
	data *robotstxt.RobotsData
	err  error
}

// Gate answers "may this path be fetched" per origin, fetching each
// origin's robots.txt at most once. It is safe for concurrent use.
type Gate struct {
	source    Source
	agent     string
	onFailure FailurePolicy
	logger    *slog.Logger

	mu    sync.RWMutex
	cache map[string]entry
	group singleflight.Group
}

// Option configures a Gate.
type Option func(*Gate)

// WithUserAgent selects the robots.txt group to evaluate. Groups that do
// not match fall back to the "*" group.
func WithUserAgent(agent string) Option {
	return func(g *Gate) {
		if agent != "" {
			g.agent = agent
		}
	}
}

// WithFailurePolicy sets the decision used when robots.txt is unavailable.
func WithFailurePolicy(p FailurePolicy) Option {
	return func(g *Gate) {
		g.onFailure = p
	}
}

// WithLogger sets the logger used for refusals and fetch warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

// NewGate creates a Gate reading policies from source. By default rules
// are evaluated for the wildcard agent and unavailable policies fail
// closed.
func NewGate(source Source, opts ...Option) *Gate {
	g := &Gate{
		source:    source,
		agent:     WildcardAgent,
		onFailure: FailClosed,
		cache:     make(map[string]entry),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	return g
}

// IsAllowed reports whether path may be fetched from origin.
func (g *Gate) IsAllowed(ctx context.Context, origin, path string) bool {
	e := g.lookup(ctx, origin)
	if e.err != nil {
		return g.onFailure == FailOpen
	}

	if path == "" {
		path = "/"
	}
	allowed := e.data.TestAgent(path, g.agent)
	if !allowed {
		g.logger.Info("crawling disallowed by robots.txt",
			"origin", origin,
			"path", path,
		)
	}
	return allowed
}

// CrawlDelay returns the Crawl-delay of the matching group, or zero.
func (g *Gate) CrawlDelay(ctx context.Context, origin string) time.Duration {
	e := g.lookup(ctx, origin)
	if e.err != nil {
		return 0
	}
	if group := e.data.FindGroup(g.agent); group != nil {
		return group.CrawlDelay
	}
	return 0
}

// Sitemaps returns the Sitemap: URLs advertised by an origin that has
// already been looked up. It never triggers a fetch.
func (g *Gate) Sitemaps(origin string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	e, ok := g.cache[origin]
	if !ok || e.err != nil {
		return nil
	}
	return append([]string(nil), e.data.Sitemaps...)
}

// lookup returns the cached entry for origin, fetching it on first use.
// Concurrent first lookups for the same origin share one fetch.
func (g *Gate) lookup(ctx context.Context, origin string) entry {
	g.mu.RLock()
	e, ok := g.cache[origin]
	g.mu.RUnlock()
	if ok {
		return e
	}

	v, _, _ := g.group.Do(origin, func() (interface{}, error) { //nolint:errcheck // error is carried in entry
		g.mu.RLock()
		cached, ok := g.cache[origin]
		g.mu.RUnlock()
		if ok {
			return cached, nil
		}

		data, err := g.source.FetchPolicy(ctx, origin)
		fetched := entry{data: data, err: err}
		if err != nil {
			g.logger.Warn("robots.txt unavailable",
				"origin", origin,
				"policy", g.onFailure.String(),
				"error", err,
			)
		}

		g.mu.Lock()
		g.cache[origin] = fetched
		g.mu.Unlock()
		return fetched, nil
	})
	return v.(entry) //nolint:forcetypeassert // the closure always returns entry
}
