package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nao1215/sitemapper/internal/config"
	"github.com/nao1215/sitemapper/internal/database"
	applog "github.com/nao1215/sitemapper/internal/log"
	"github.com/nao1215/sitemapper/internal/model"
	"github.com/nao1215/sitemapper/internal/pipeline"
	"github.com/nao1215/sitemapper/internal/report"
)

var (
	// errCrawlFailed is returned when at least one seed produced no sitemap.
	errCrawlFailed = errors.New("crawl failed")

	// errInterrupted is returned when a signal stopped the crawl.
	errInterrupted = errors.New("interrupted")
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl <url>...",
		Short: "Crawl websites and write their sitemaps",
		Long: `Crawl starts at each seed URL, follows links that stay on the seed's
origin (scheme, host and port), and writes the pages it found as a
sitemaps.org XML document.

robots.txt is obeyed. A page it disallows is still listed when some page
links to it, but it is never fetched or expanded. When robots.txt cannot
be read, --robots-on-error decides: "deny" (default) skips the site,
"allow" crawls it.

With several seeds each sitemap is named after its host, for example
sitemap-example.com.xml.

Examples:
  # Crawl two levels of links below the seed
  sitemapper crawl https://example.com

  # Crawl deeper and write to a custom file
  sitemapper crawl -d 4 -o public/sitemap.xml https://example.com

  # Crawl several sites, two at a time, and print a JSON summary
  sitemapper crawl --json https://example.com https://example.org

  # Use a custom configuration file
  sitemapper crawl -c site.yaml https://example.com

Configuration file (.sitemapper) example:
  sites:
    example.com:
      cookie: "session=abc123"
      depth: 3
      ignorePatterns:
        - "/admin/*"`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	// Crawl behavior flags
	cmd.Flags().IntP("depth", "d", config.DefaultCrawlDepth,
		"Maximum number of link expansions below the seed")
	cmd.Flags().StringP("output", "o", config.DefaultOutputFile,
		"Sitemap file path (the host is added to the name when crawling several seeds)")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each HTTP request")
	cmd.Flags().Int("concurrency", config.DefaultConcurrency,
		"Pages fetched in parallel per seed (above 1 the sitemap order is unspecified)")
	cmd.Flags().IntP("max-pages", "p", config.DefaultMaxPages,
		"Maximum number of URLs per seed (0 means unlimited)")
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of seeds crawled concurrently")
	cmd.Flags().Duration("delay", config.DefaultCrawlDelay,
		"Minimum delay between requests (robots.txt Crawl-delay may raise it)")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent header sent with every request")

	// robots.txt flags
	cmd.Flags().String("robots-agent", config.DefaultRobotsAgent,
		"robots.txt user agent group to obey")
	cmd.Flags().String("robots-on-error", config.DefaultRobotsOnError,
		"Decision when robots.txt cannot be read: allow or deny")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .sitemapper in current or home directory)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Print a JSON crawl summary (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Print a Markdown crawl summary (mutually exclusive with --json)")
	cmd.Flags().String("report-file", "",
		"Also write the crawl summary to this file (creates directories if needed)")
	cmd.Flags().BoolP("quiet", "q", false,
		"Do not print the crawl summary")

	// History flags
	cmd.Flags().Bool("no-history", false,
		"Do not record this crawl in the history database")
	cmd.Flags().String("data-dir", "",
		"Directory of the history database (default: XDG data directory)")

	return cmd
}

func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cmd.ErrOrStderr(), cfg.Verbose)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *database.CrawlDB
	if cfg.SaveToDB {
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open history database: %w", err)
		}
		defer db.Close()
		logger.Debug("history database opened", "path", db.Path())
	}

	outputs := make([]io.Writer, 0, 2)
	if !cfg.Quiet {
		outputs = append(outputs, cmd.OutOrStdout())
	}
	if cfg.ReportFile != "" {
		f, err := openReportFile(cfg.ReportFile)
		if err != nil {
			return err
		}
		defer f.Close()
		outputs = append(outputs, f)
	}

	r := &crawlRunner{
		cfg:    cfg,
		logger: logger,
		db:     db,
		writer: reportWriter(cfg, outputs...),
		status: cmd.ErrOrStderr(),
	}
	return interruptedError(r.run(ctx, cfg.Targets))
}

// buildConfig creates a Config from cobra command flags and the site
// configuration file.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	if cfg.CrawlDepth, err = flags.GetInt("depth"); err != nil {
		return nil, err
	}
	if cfg.OutputFile, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.Concurrency, err = flags.GetInt("concurrency"); err != nil {
		return nil, err
	}
	if cfg.MaxPages, err = flags.GetInt("max-pages"); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = flags.GetInt("batch"); err != nil {
		return nil, err
	}
	if cfg.CrawlDelay, err = flags.GetDuration("delay"); err != nil {
		return nil, err
	}
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return nil, err
	}
	if cfg.RobotsAgent, err = flags.GetString("robots-agent"); err != nil {
		return nil, err
	}
	if cfg.RobotsOnError, err = flags.GetString("robots-on-error"); err != nil {
		return nil, err
	}
	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("report-file"); err != nil {
		return nil, err
	}
	if cfg.Quiet, err = flags.GetBool("quiet"); err != nil {
		return nil, err
	}

	noHistory, err := flags.GetBool("no-history")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noHistory
	if cfg.DBDir, err = dataDir(cmd); err != nil {
		return nil, err
	}

	cfg.Verbose = getVerboseFlag(cmd)

	if err := cfg.LoadSiteConfigs(); err != nil {
		return nil, err
	}

	cfg.Targets = args
	return cfg, nil
}

// dataDir returns the --data-dir flag, or the XDG data directory.
func dataDir(cmd *cobra.Command) (string, error) {
	dir, err := cmd.Flags().GetString("data-dir")
	if err != nil {
		return "", err
	}
	if dir == "" {
		dir = config.XDGDataDir()
	}
	return dir, nil
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// setupLogger creates the redacting logger. Warnings and errors only,
// unless verbose.
func setupLogger(w io.Writer, verbose bool) *slog.Logger {
	return applog.NewSecureLogger(w, verbose)
}

// openReportFile creates path and its parent directories. The file is
// private to the owner: summaries may contain URLs of restricted pages.
func openReportFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // user-chosen path
	if err != nil {
		return nil, fmt.Errorf("failed to create report file: %w", err)
	}
	return f, nil
}

// reportWriter returns the summary writer for cfg over outputs, or nil
// when there is nowhere to write.
func reportWriter(cfg *config.Config, outputs ...io.Writer) report.Writer {
	writers := make([]report.Writer, 0, len(outputs))
	for _, out := range outputs {
		writers = append(writers, formatWriter(cfg, out))
	}

	switch len(writers) {
	case 0:
		return nil
	case 1:
		return writers[0]
	default:
		return report.NewMultiWriter(writers...)
	}
}

// formatWriter selects the writer for the requested format.
func formatWriter(cfg *config.Config, out io.Writer) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewJSONWriter(out, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(out)
	default:
		return report.NewSimpleWriter(out, report.WithVerbose(cfg.Verbose))
	}
}

// interruptedError replaces a cancellation caused by a signal with a
// short message.
func interruptedError(err error) error {
	if errors.Is(err, context.Canceled) {
		return errInterrupted
	}
	return err
}

// crawlRunner crawls seeds with one configuration and reports each result.
type crawlRunner struct {
	cfg    *config.Config
	logger *slog.Logger

	// db records finished crawls. nil disables history.
	db *database.CrawlDB

	// writer prints crawl summaries. nil prints none.
	writer report.Writer

	// status receives one progress line per seed.
	status io.Writer

	// mu serializes output from concurrent crawls.
	mu sync.Mutex
}

// newPipeline builds the pipeline and empty report for seed, applying the
// site configuration of its host. It is a pipeline.Factory.
func (r *crawlRunner) newPipeline(seed string) (*pipeline.Pipeline, *model.CrawlReport) {
	site := r.cfg.SiteConfigFor(seed)

	opts := []pipeline.DefaultPipelineOption{
		pipeline.WithPipelineOutput(r.cfg.OutputPath(seed)),
		pipeline.WithPipelineMaxPages(r.cfg.MaxPages),
		pipeline.WithPipelineConcurrency(r.cfg.Concurrency),
		pipeline.WithPipelineCrawlDelay(r.cfg.CrawlDelay),
		pipeline.WithPipelineTimeout(r.cfg.Timeout),
		pipeline.WithPipelineUserAgent(r.cfg.UserAgent),
		pipeline.WithPipelineRobots(r.cfg.RobotsAgent, r.cfg.RobotsFailurePolicy()),
		pipeline.WithPipelineMaxBodySize(r.cfg.MaxBodySize),
	}
	if site.Cookie != "" {
		opts = append(opts, pipeline.WithPipelineCookie(site.Cookie))
	}
	if len(site.Headers) > 0 {
		opts = append(opts, pipeline.WithPipelineHeaders(site.Headers))
	}
	if len(site.IgnorePatterns) > 0 {
		opts = append(opts, pipeline.WithPipelineIgnorePatterns(site.IgnorePatterns))
	}
	if len(site.FollowPatterns) > 0 {
		opts = append(opts, pipeline.WithPipelineFollowPatterns(site.FollowPatterns))
	}
	if r.db != nil {
		opts = append(opts, pipeline.WithPipelineRecorder(r.db))
	}

	p := pipeline.DefaultPipeline([]pipeline.Option{pipeline.WithLogger(r.logger)}, opts...)
	return p, model.NewCrawlReport(seed, r.cfg.DepthFor(seed))
}

// run crawls every seed. It returns errCrawlFailed when a seed produced
// no sitemap, or the context error when interrupted.
func (r *crawlRunner) run(ctx context.Context, seeds []string) error {
	r.logger.Info("starting crawl",
		"seeds", len(seeds),
		"batch", r.cfg.BatchSize,
		"history", r.db != nil,
	)

	var (
		failed int
		err    error
	)
	if len(seeds) > 1 && r.cfg.BatchSize > 1 {
		failed, err = r.runBatch(ctx, seeds)
	} else {
		failed, err = r.runSequential(ctx, seeds)
	}
	if err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d seeds", errCrawlFailed, failed, len(seeds))
	}
	return nil
}

func (r *crawlRunner) runSequential(ctx context.Context, seeds []string) (int, error) {
	failed := 0
	for _, seed := range seeds {
		if err := ctx.Err(); err != nil {
			return failed, err
		}

		p, crawlReport := r.newPipeline(seed)
		fmt.Fprintf(r.status, "Crawling %s (depth %d)...\n", seed, crawlReport.MaxDepth)

		err := p.Execute(ctx, crawlReport)
		if !r.finish(crawlReport, err) {
			failed++
		}
		if ctx.Err() != nil {
			return failed, ctx.Err()
		}
	}
	return failed, nil
}

func (r *crawlRunner) runBatch(ctx context.Context, seeds []string) (int, error) {
	fmt.Fprintf(r.status, "Crawling %d seeds (%d at a time)...\n", len(seeds), r.cfg.BatchSize)
	startTime := time.Now()

	bp := pipeline.NewBatchProcessor(
		r.newPipeline,
		pipeline.WithConcurrency(r.cfg.BatchSize),
		pipeline.WithBatchLogger(r.logger),
	)

	failed := 0
	err := bp.ProcessBatchWithCallback(ctx, seeds, func(crawlReport *model.CrawlReport, _ int) {
		if !r.finish(crawlReport, crawlReport.Error) {
			r.mu.Lock()
			failed++
			r.mu.Unlock()
		}
	})

	fmt.Fprintf(r.status, "Finished in %s\n", time.Since(startTime).Round(time.Millisecond))
	if err == nil {
		err = ctx.Err()
	}
	return failed, err
}

// finish prints the outcome of one crawl and its summary. It reports
// whether a sitemap was written.
func (r *crawlRunner) finish(crawlReport *model.CrawlReport, err error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	ok := err == nil && crawlReport.OutputFile != ""
	switch {
	case ok:
		color.New(color.FgGreen).Fprintf(r.status, "Sitemap generated successfully: %s\n", crawlReport.OutputFile)
		if crawlReport.Denied {
			color.New(color.FgYellow).Fprintf(r.status,
				"robots.txt does not allow crawling %s; the sitemap is empty\n", crawlReport.Seed)
		}
	case crawlReport.TimedOut:
		color.New(color.FgYellow).Fprintf(r.status,
			"Crawl of %s was interrupted; no sitemap was written\n", crawlReport.Seed)
	default:
		color.New(color.FgRed).Fprintf(r.status, "Failed to generate sitemap for %s: %v\n", crawlReport.Seed, err)
	}

	if r.writer != nil {
		if _, werr := r.writer.Write(crawlReport); werr != nil {
			r.logger.Error("failed to write crawl summary", "seed", crawlReport.Seed, "error", werr)
		}
	}
	return ok
}
