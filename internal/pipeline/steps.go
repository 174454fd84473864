package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/nao1215/sitemapper/internal/config"
	"github.com/nao1215/sitemapper/internal/crawler"
	"github.com/nao1215/sitemapper/internal/fetch"
	"github.com/nao1215/sitemapper/internal/model"
	"github.com/nao1215/sitemapper/internal/robots"
	"github.com/nao1215/sitemapper/internal/sitemap"
	"github.com/nao1215/sitemapper/internal/weburl"
)

// ErrNoOutputPath is returned by WriteStep when no path is configured.
var ErrNoOutputPath = errors.New("no sitemap output path")

// slower is implemented by fetchers whose request rate can be lowered,
// such as *fetch.Client.
type slower interface {
	SlowDown(d time.Duration)
}

// CrawlStep discovers the same-origin pages reachable from the seed.
type CrawlStep struct {
	// fetcher retrieves pages.
	fetcher fetch.Fetcher

	// gate is the robots.txt policy. nil allows everything.
	gate *robots.Gate

	// maxPages caps the number of discovered URLs. 0 means unlimited.
	maxPages int

	// concurrency is the number of parallel fetches.
	concurrency int

	// ignorePatterns are URL path patterns to skip during crawling.
	ignorePatterns []string

	// followPatterns are URL path patterns to follow during crawling.
	followPatterns []string

	logger *slog.Logger
}

// CrawlStepOption configures a CrawlStep.
type CrawlStepOption func(*CrawlStep)

// WithCrawlGate sets the robots.txt policy gate.
func WithCrawlGate(gate *robots.Gate) CrawlStepOption {
	return func(s *CrawlStep) {
		s.gate = gate
	}
}

// WithCrawlMaxPages sets the maximum number of discovered URLs.
func WithCrawlMaxPages(maxPages int) CrawlStepOption {
	return func(s *CrawlStep) {
		s.maxPages = maxPages
	}
}

// WithCrawlConcurrency sets the number of pages fetched in parallel.
func WithCrawlConcurrency(n int) CrawlStepOption {
	return func(s *CrawlStep) {
		s.concurrency = n
	}
}

// WithCrawlIgnorePatterns sets URL path patterns to skip during crawling.
func WithCrawlIgnorePatterns(patterns []string) CrawlStepOption {
	return func(s *CrawlStep) {
		s.ignorePatterns = patterns
	}
}

// WithCrawlFollowPatterns sets URL path patterns to follow during crawling.
func WithCrawlFollowPatterns(patterns []string) CrawlStepOption {
	return func(s *CrawlStep) {
		s.followPatterns = patterns
	}
}

// WithCrawlLogger sets a custom logger for the crawl step.
func WithCrawlLogger(logger *slog.Logger) CrawlStepOption {
	return func(s *CrawlStep) {
		s.logger = logger
	}
}

// NewCrawlStep creates a new crawling step.
func NewCrawlStep(fetcher fetch.Fetcher, opts ...CrawlStepOption) *CrawlStep {
	s := &CrawlStep{
		fetcher:     fetcher,
		maxPages:    config.DefaultMaxPages,
		concurrency: config.DefaultConcurrency,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *CrawlStep) Name() string {
	return "crawl"
}

// Do crawls report.Seed down to report.MaxDepth. An interrupted crawl
// keeps its partial result and marks the report as timed out.
func (s *CrawlStep) Do(ctx context.Context, report *model.CrawlReport) error {
	spiderOpts := []crawler.SpiderOption{
		crawler.WithMaxPages(s.maxPages),
		crawler.WithConcurrency(s.concurrency),
		crawler.WithLogger(s.logger),
	}
	if len(s.ignorePatterns) > 0 {
		spiderOpts = append(spiderOpts, crawler.WithIgnorePatterns(s.ignorePatterns))
	}
	if len(s.followPatterns) > 0 {
		spiderOpts = append(spiderOpts, crawler.WithFollowPatterns(s.followPatterns))
	}

	origin, originErr := weburl.Origin(report.Seed)
	if s.gate != nil {
		spiderOpts = append(spiderOpts, crawler.WithPolicy(s.gate))
		if originErr == nil {
			s.applyCrawlDelay(ctx, origin)
		}
	}

	spider := crawler.NewSpider(s.fetcher, spiderOpts...)
	result, err := spider.Crawl(ctx, crawler.CrawlRequest{
		SeedURL:  report.Seed,
		MaxDepth: report.MaxDepth,
	}, crawler.NewVisitedSet())

	if result != nil {
		report.URLs = result.URLs
		report.Events = append(report.Events, result.Events...)
		report.PagesFetched = result.PagesFetched
		report.Denied = result.SeedDenied
	}
	if s.gate != nil && originErr == nil {
		report.RobotsSitemaps = s.gate.Sitemaps(origin)
	}

	if err != nil {
		if ctx.Err() != nil {
			s.logger.Warn("crawl interrupted, keeping partial results",
				"seed", report.Seed,
				"urls", len(report.URLs),
				"error", err,
			)
			report.TimedOut = true
			return nil
		}
		return err
	}

	s.logger.Info("crawl completed",
		"seed", report.Seed,
		"urls", len(report.URLs),
		"pages_fetched", report.PagesFetched,
		"events", len(report.Events),
	)
	return nil
}

// applyCrawlDelay honours the robots.txt Crawl-delay of origin.
func (s *CrawlStep) applyCrawlDelay(ctx context.Context, origin string) {
	d := s.gate.CrawlDelay(ctx, origin)
	if d <= 0 {
		return
	}
	if sl, ok := s.fetcher.(slower); ok {
		sl.SlowDown(d)
		s.logger.Debug("applying robots.txt crawl delay", "origin", origin, "delay", d)
	}
}

// BuildStep turns the discovered URLs into sitemap entries.
type BuildStep struct {
	builder *sitemap.Builder
}

// NewBuildStep creates a step that builds entries with builder.
func NewBuildStep(builder *sitemap.Builder) *BuildStep {
	return &BuildStep{builder: builder}
}

// Name returns the step name.
func (s *BuildStep) Name() string {
	return "build"
}

// Do fills report.Entries in URL order. lastmod lookups that fail leave
// the entry without a lastmod and never fail the step. URLs refused by
// robots.txt are listed but not requested.
func (s *BuildStep) Do(ctx context.Context, report *model.CrawlReport) error {
	denied := make(map[string]struct{})
	for _, e := range report.EventsOf(model.EventPolicyDenied) {
		denied[e.URL] = struct{}{}
	}

	allowed := make([]string, 0, len(report.URLs))
	for _, u := range report.URLs {
		if _, ok := denied[u]; !ok {
			allowed = append(allowed, u)
		}
	}

	lastmod := make(map[string]string, len(allowed))
	for _, e := range s.builder.Build(ctx, allowed).Entries() {
		lastmod[e.Location] = e.LastModified
	}

	entries := make([]model.SitemapEntry, len(report.URLs))
	for i, u := range report.URLs {
		entries[i] = model.SitemapEntry{Location: u, LastModified: lastmod[u]}
	}
	report.Entries = entries
	return nil
}

// WriteStep writes the sitemap file.
type WriteStep struct {
	path   string
	logger *slog.Logger
}

// NewWriteStep creates a step that writes the sitemap to path. Missing
// parent directories are created.
func NewWriteStep(path string, logger *slog.Logger) *WriteStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &WriteStep{path: path, logger: logger}
}

// Name returns the step name.
func (s *WriteStep) Name() string {
	return "write"
}

// Do writes report.Entries as a sitemap document. Failure is fatal for
// the crawl and wraps sitemap.ErrSerialization.
func (s *WriteStep) Do(_ context.Context, report *model.CrawlReport) error {
	if s.path == "" {
		return ErrNoOutputPath
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("%w: failed to create output directory: %w", sitemap.ErrSerialization, err)
		}
	}

	if err := sitemap.FromEntries(report.Entries).WriteFile(s.path); err != nil {
		return err
	}
	report.OutputFile = s.path

	s.logger.Info("sitemap written", "path", s.path, "entries", len(report.Entries))
	return nil
}

// Recorder stores finished crawls. *database.CrawlDB satisfies it.
type Recorder interface {
	SaveCrawlReport(ctx context.Context, report *model.CrawlReport) (int64, error)
}

// HistoryStep records the crawl in the history database.
type HistoryStep struct {
	recorder Recorder
	logger   *slog.Logger
}

// NewHistoryStep creates a step that saves reports with recorder.
func NewHistoryStep(recorder Recorder, logger *slog.Logger) *HistoryStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryStep{recorder: recorder, logger: logger}
}

// Name returns the step name.
func (s *HistoryStep) Name() string {
	return "history"
}

// Do saves the report. A failure is logged and does not fail the crawl:
// the sitemap has already been written.
func (s *HistoryStep) Do(ctx context.Context, report *model.CrawlReport) error {
	report.FinishedAt = time.Now()

	id, err := s.recorder.SaveCrawlReport(ctx, report)
	if err != nil {
		s.logger.Warn("failed to save crawl history", "seed", report.Seed, "error", err)
		return nil
	}
	s.logger.Debug("crawl saved to history", "seed", report.Seed, "run", id)
	return nil
}

// DefaultPipelineConfig holds the settings of DefaultPipeline.
type DefaultPipelineConfig struct {
	// OutputPath is the sitemap file to write.
	OutputPath string

	// MaxPages caps discovered URLs. 0 means unlimited.
	MaxPages int

	// Concurrency is the number of parallel fetches per crawl.
	Concurrency int

	// CrawlDelay is the minimum spacing between requests.
	CrawlDelay time.Duration

	// Timeout bounds each HTTP request.
	Timeout time.Duration

	// UserAgent is the User-Agent header.
	UserAgent string

	// RobotsAgent selects the robots.txt group.
	RobotsAgent string

	// RobotsOnError decides for origins without a readable robots.txt.
	RobotsOnError robots.FailurePolicy

	// MaxBodySize limits the bytes read per page.
	MaxBodySize int64

	// Cookie and Headers are sent with every request.
	Cookie  string
	Headers map[string]string

	// IgnorePatterns and FollowPatterns filter discovered paths.
	IgnorePatterns []string
	FollowPatterns []string

	// HTTPClient replaces the default http.Client.
	HTTPClient *http.Client

	// Recorder, when set, adds the history step.
	Recorder Recorder
}

// DefaultPipelineOption configures a DefaultPipelineConfig.
type DefaultPipelineOption func(*DefaultPipelineConfig)

// WithPipelineOutput sets the sitemap file path.
func WithPipelineOutput(path string) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.OutputPath = path
	}
}

// WithPipelineMaxPages sets the maximum number of discovered URLs.
func WithPipelineMaxPages(maxPages int) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.MaxPages = maxPages
	}
}

// WithPipelineConcurrency sets the number of parallel fetches.
func WithPipelineConcurrency(n int) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Concurrency = n
	}
}

// WithPipelineCrawlDelay sets the delay between HTTP requests.
func WithPipelineCrawlDelay(delay time.Duration) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.CrawlDelay = delay
	}
}

// WithPipelineTimeout sets the per-request timeout.
func WithPipelineTimeout(timeout time.Duration) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Timeout = timeout
	}
}

// WithPipelineUserAgent sets the User-Agent header for HTTP requests.
func WithPipelineUserAgent(userAgent string) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.UserAgent = userAgent
	}
}

// WithPipelineRobots sets the robots.txt agent and failure policy.
func WithPipelineRobots(agent string, onError robots.FailurePolicy) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.RobotsAgent = agent
		c.RobotsOnError = onError
	}
}

// WithPipelineMaxBodySize sets the maximum response body size in bytes.
func WithPipelineMaxBodySize(maxBodySize int64) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.MaxBodySize = maxBodySize
	}
}

// WithPipelineCookie sets the cookie for HTTP requests.
func WithPipelineCookie(cookie string) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Cookie = cookie
	}
}

// WithPipelineHeaders sets additional HTTP headers.
func WithPipelineHeaders(headers map[string]string) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Headers = headers
	}
}

// WithPipelineIgnorePatterns sets URL patterns to skip during crawling.
func WithPipelineIgnorePatterns(patterns []string) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.IgnorePatterns = patterns
	}
}

// WithPipelineFollowPatterns sets URL patterns to follow during crawling.
func WithPipelineFollowPatterns(patterns []string) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.FollowPatterns = patterns
	}
}

// WithPipelineHTTPClient replaces the HTTP client used for every request.
func WithPipelineHTTPClient(client *http.Client) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.HTTPClient = client
	}
}

// WithPipelineRecorder enables the history step.
func WithPipelineRecorder(recorder Recorder) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Recorder = recorder
	}
}

// DefaultPipeline creates the crawl, build, write and history steps for
// one seed. Each call creates its own fetch client and robots gate, so
// pipelines for different seeds share no state.
func DefaultPipeline(pipelineOpts []Option, configOpts ...DefaultPipelineOption) *Pipeline {
	p := New(pipelineOpts...)

	cfg := &DefaultPipelineConfig{
		OutputPath:    config.DefaultOutputFile,
		MaxPages:      config.DefaultMaxPages,
		Concurrency:   config.DefaultConcurrency,
		CrawlDelay:    config.DefaultCrawlDelay,
		Timeout:       config.DefaultTimeout,
		UserAgent:     config.DefaultUserAgent,
		RobotsAgent:   config.DefaultRobotsAgent,
		RobotsOnError: robots.FailClosed,
		MaxBodySize:   config.DefaultMaxBodySize,
	}
	for _, opt := range configOpts {
		opt(cfg)
	}

	clientOpts := []fetch.Option{
		fetch.WithUserAgent(cfg.UserAgent),
		fetch.WithMaxBodySize(cfg.MaxBodySize),
		fetch.WithDelay(cfg.CrawlDelay),
		fetch.WithTimeout(cfg.Timeout),
	}
	if cfg.HTTPClient != nil {
		clientOpts = append(clientOpts, fetch.WithHTTPClient(cfg.HTTPClient))
	}
	if cfg.Cookie != "" {
		clientOpts = append(clientOpts, fetch.WithCookie(cfg.Cookie))
	}
	if len(cfg.Headers) > 0 {
		clientOpts = append(clientOpts, fetch.WithHeaders(cfg.Headers))
	}
	client := fetch.NewClient(clientOpts...)

	gate := robots.NewGate(
		robots.HTTPSource{Fetcher: client},
		robots.WithUserAgent(cfg.RobotsAgent),
		robots.WithFailurePolicy(cfg.RobotsOnError),
		robots.WithLogger(p.logger),
	)

	p.AddSteps(
		NewCrawlStep(client,
			WithCrawlGate(gate),
			WithCrawlMaxPages(cfg.MaxPages),
			WithCrawlConcurrency(cfg.Concurrency),
			WithCrawlIgnorePatterns(cfg.IgnorePatterns),
			WithCrawlFollowPatterns(cfg.FollowPatterns),
			WithCrawlLogger(p.logger),
		),
		NewBuildStep(sitemap.NewBuilder(client,
			sitemap.WithConcurrency(max(cfg.Concurrency, sitemap.DefaultConcurrency)),
			sitemap.WithLogger(p.logger),
		)),
		NewWriteStep(cfg.OutputPath, p.logger),
	)
	if cfg.Recorder != nil {
		p.AddStep(NewHistoryStep(cfg.Recorder, p.logger))
	}

	return p
}
