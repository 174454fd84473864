package config

import (
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/sitemapper/internal/fetch"
	"github.com/nao1215/sitemapper/internal/robots"
	"github.com/nao1215/sitemapper/internal/weburl"
)

// Default configuration values.
const (
	// DefaultTimeout bounds every HTTP request, so an unresponsive origin
	// cannot hang the crawl.
	DefaultTimeout = fetch.DefaultTimeout

	// DefaultCrawlDepth is how many times links are expanded below the seed.
	DefaultCrawlDepth = 2

	// DefaultMaxPages of 0 leaves the number of discovered URLs unlimited.
	DefaultMaxPages = 0

	// DefaultConcurrency of 1 keeps the crawl sequential, which is the only
	// mode with a deterministic output order.
	DefaultConcurrency = 1

	// DefaultBatchSize is the number of seeds crawled at once.
	DefaultBatchSize = 2

	// DefaultOutputFile is the sitemap file name.
	DefaultOutputFile = "sitemap.xml"

	// AppName is the application name used for XDG directory paths.
	AppName = "sitemapper"

	// DefaultCrawlDelay is the minimum spacing between requests.
	// robots.txt Crawl-delay raises it per origin.
	DefaultCrawlDelay = 250 * time.Millisecond

	// DefaultUserAgent identifies sitemapper in HTTP requests.
	DefaultUserAgent = fetch.DefaultUserAgent

	// DefaultRobotsAgent is the robots.txt group evaluated by default.
	DefaultRobotsAgent = robots.WildcardAgent

	// DefaultRobotsOnError is what happens when robots.txt cannot be read.
	DefaultRobotsOnError = "deny"

	// DefaultMaxBodySize limits the response body size read per page.
	DefaultMaxBodySize = fetch.DefaultMaxBodySize
)

// Config holds all configuration options for sitemapper.
// It is populated from CLI flags and passed through the application
// rather than kept in global state.
type Config struct {
	// Targets is the list of seed URLs to crawl.
	Targets []string

	// Timeout is the per-request timeout, body included.
	Timeout time.Duration

	// CrawlDepth is the maximum number of link expansions below the seed.
	CrawlDepth int

	// MaxPages caps the number of discovered URLs per seed. 0 is unlimited.
	MaxPages int

	// Concurrency is the number of pages fetched in parallel per seed.
	// Values above 1 make the sitemap order unspecified.
	Concurrency int

	// BatchSize is the number of seeds crawled concurrently.
	BatchSize int

	// OutputFile is the sitemap path. With several targets the host is
	// inserted before the extension, see OutputPath.
	OutputFile string

	// Verbose enables debug logging.
	Verbose bool

	// ConfigFilePath is the path to the .sitemapper file. If empty, the
	// current directory and then the home directory are searched.
	ConfigFilePath string

	// SiteConfigs holds per-site overrides loaded from the config file.
	SiteConfigs *File

	// JSONReport selects the JSON crawl summary.
	JSONReport bool

	// MarkdownReport selects the Markdown crawl summary.
	MarkdownReport bool

	// ReportFile is where the crawl summary is written. Empty means stdout.
	ReportFile string

	// Quiet suppresses the crawl summary.
	Quiet bool

	// DBDir is the directory of the crawl history database.
	DBDir string

	// SaveToDB records every crawl in the history database.
	SaveToDB bool

	// CrawlDelay is the minimum delay between two requests.
	CrawlDelay time.Duration

	// UserAgent is the User-Agent header sent with every request.
	UserAgent string

	// RobotsAgent selects the robots.txt group to obey.
	RobotsAgent string

	// RobotsOnError is "deny" or "allow": the decision for an origin whose
	// robots.txt cannot be fetched or parsed.
	RobotsOnError string

	// MaxBodySize is the maximum response body size in bytes.
	MaxBodySize int64
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Timeout:       DefaultTimeout,
		CrawlDepth:    DefaultCrawlDepth,
		MaxPages:      DefaultMaxPages,
		Concurrency:   DefaultConcurrency,
		BatchSize:     DefaultBatchSize,
		OutputFile:    DefaultOutputFile,
		CrawlDelay:    DefaultCrawlDelay,
		UserAgent:     DefaultUserAgent,
		RobotsAgent:   DefaultRobotsAgent,
		RobotsOnError: DefaultRobotsOnError,
		MaxBodySize:   DefaultMaxBodySize,
		SiteConfigs:   NewFile(),
	}
}

// XDGDataDir returns the XDG data directory for sitemapper.
// On Linux: ~/.local/share/sitemapper
// On macOS: ~/Library/Application Support/sitemapper
// On Windows: %LOCALAPPDATA%\sitemapper
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// Validate checks if the configuration is valid and returns the first
// problem found.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return ErrNoTarget
	}
	for _, target := range c.Targets {
		if !weburl.Validate(target) {
			return ErrInvalidTarget
		}
	}
	return c.ValidateSettings()
}

// ValidateSettings checks everything Validate checks except the targets.
// The interactive session uses it before any URL has been entered.
func (c *Config) ValidateSettings() error {
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.CrawlDepth < 0 {
		return ErrInvalidDepth
	}
	if c.MaxPages < 0 {
		return ErrInvalidMaxPages
	}
	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	if c.CrawlDelay < 0 {
		return ErrInvalidCrawlDelay
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	if strings.TrimSpace(c.OutputFile) == "" {
		return ErrEmptyOutput
	}
	if _, err := robots.ParseFailurePolicy(c.RobotsOnError); err != nil || c.RobotsOnError == "" {
		return ErrInvalidRobotsPolicy
	}

	return nil
}

// RobotsFailurePolicy returns RobotsOnError as a robots.FailurePolicy.
// Call Validate first; an unknown value falls back to fail-closed.
func (c *Config) RobotsFailurePolicy() robots.FailurePolicy {
	p, err := robots.ParseFailurePolicy(c.RobotsOnError)
	if err != nil {
		return robots.FailClosed
	}
	return p
}

// OutputPath returns the sitemap path for target. With a single target
// this is OutputFile. With several, the target's host is inserted before
// the extension so that each seed gets its own file:
// "sitemap.xml" becomes "sitemap-example.com.xml".
func (c *Config) OutputPath(target string) string {
	if len(c.Targets) <= 1 {
		return c.OutputFile
	}

	host := "site"
	if u, err := url.Parse(target); err == nil && u.Host != "" {
		host = strings.ToLower(u.Host)
	}
	host = strings.NewReplacer(":", "_", "/", "_", "\\", "_").Replace(host)

	ext := filepath.Ext(c.OutputFile)
	base := strings.TrimSuffix(c.OutputFile, ext)
	return base + "-" + host + ext
}

// SiteConfigFor returns the effective site configuration for target:
// the file defaults merged with the entry for the target's host.
func (c *Config) SiteConfigFor(target string) SiteConfig {
	if c.SiteConfigs == nil {
		return SiteConfig{}
	}
	host := ""
	if u, err := url.Parse(target); err == nil {
		host = u.Host
	}
	return c.SiteConfigs.GetSiteConfig(host)
}

// DepthFor returns the crawl depth for target: the site override when the
// config file sets one, CrawlDepth otherwise.
func (c *Config) DepthFor(target string) int {
	if d := c.SiteConfigFor(target).Depth; d != nil {
		return *d
	}
	return c.CrawlDepth
}
