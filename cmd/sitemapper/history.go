package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nao1215/sitemapper/internal/config"
	"github.com/nao1215/sitemapper/internal/database"
	"github.com/nao1215/sitemapper/internal/weburl"
)

// defaultHistoryLimit is the number of runs listed by default.
const defaultHistoryLimit = 20

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [url]",
		Short: "Show past crawls and how sitemaps changed",
		Long: `History lists the crawls recorded by 'sitemapper crawl' and the
interactive prompt, newest first.

With --diff it compares the two most recent crawls of a seed URL and shows
which URLs appeared and which disappeared.

Examples:
  # List recent crawls of every site
  sitemapper history

  # List crawls of one seed
  sitemapper history https://example.com

  # Show URLs added and removed since the previous crawl
  sitemapper history --diff https://example.com

  # Show the full summary of run 12
  sitemapper history --show 12

  # List every recorded seed
  sitemapper history --seeds

  # Forget every crawl of a seed
  sitemapper history --clear https://example.com`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().IntP("limit", "n", defaultHistoryLimit,
		"Maximum number of runs to list (0 lists all)")
	cmd.Flags().Bool("diff", false,
		"Compare the two most recent crawls of the seed")
	cmd.Flags().Int64("show", 0,
		"Print the full summary of the run with this ID")
	cmd.Flags().Bool("seeds", false,
		"List every seed with recorded crawls")
	cmd.Flags().Bool("clear", false,
		"Delete every recorded crawl of the seed")

	cmd.Flags().BoolP("json", "j", false,
		"Output in JSON format (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output in Markdown format (mutually exclusive with --json)")
	cmd.Flags().String("data-dir", "",
		"Directory of the history database (default: XDG data directory)")

	return cmd
}

// historyOptions holds the parsed flags of the history command.
type historyOptions struct {
	seed  string
	limit int
	diff  bool
	show  int64
	seeds bool
	clear bool
	dir   string
	cfg   *config.Config
}

func parseHistoryFlags(cmd *cobra.Command, args []string) (*historyOptions, error) {
	opts := &historyOptions{cfg: config.NewConfig()}
	flags := cmd.Flags()

	var err error
	if opts.limit, err = flags.GetInt("limit"); err != nil {
		return nil, err
	}
	if opts.diff, err = flags.GetBool("diff"); err != nil {
		return nil, err
	}
	if opts.show, err = flags.GetInt64("show"); err != nil {
		return nil, err
	}
	if opts.seeds, err = flags.GetBool("seeds"); err != nil {
		return nil, err
	}
	if opts.clear, err = flags.GetBool("clear"); err != nil {
		return nil, err
	}
	if opts.cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if opts.cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if opts.dir, err = dataDir(cmd); err != nil {
		return nil, err
	}
	opts.cfg.Verbose = getVerboseFlag(cmd)

	if opts.cfg.JSONReport && opts.cfg.MarkdownReport {
		return nil, config.ErrConflictingReportFormats
	}

	if len(args) > 0 {
		opts.seed = args[0]
		if !weburl.Validate(opts.seed) {
			return nil, fmt.Errorf("%w: %s", config.ErrInvalidTarget, opts.seed)
		}
	}
	if (opts.diff || opts.clear) && opts.seed == "" {
		return nil, errors.New("a seed URL is required with --diff and --clear")
	}

	return opts, nil
}

func runHistoryCmd(cmd *cobra.Command, args []string) error {
	opts, err := parseHistoryFlags(cmd, args)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	// Reading history never creates the database.
	dbOpts := database.DefaultOptions()
	dbOpts.CreateIfNotExists = false
	db, err := database.Open(opts.dir, dbOpts)
	if errors.Is(err, database.ErrDatabaseNotFound) {
		fmt.Fprintln(out, "No crawl history found.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	writer := formatWriter(opts.cfg, out)

	switch {
	case opts.seeds:
		return listSeeds(cmd, db, out)

	case opts.clear:
		n, err := db.DeleteRuns(ctx, opts.seed)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted %d crawl(s) of %s\n", n, opts.seed)
		return nil

	case opts.show > 0:
		crawlReport, err := db.GetReport(ctx, opts.show)
		if err != nil {
			return err
		}
		_, err = writer.Write(crawlReport)
		return err

	case opts.diff:
		diff, err := db.DiffLatest(ctx, opts.seed)
		if errors.Is(err, database.ErrNotEnoughRuns) {
			fmt.Fprintf(out, "At least two crawls of %s are needed to compare.\n", opts.seed)
			return nil
		}
		if err != nil {
			return err
		}
		_, err = writer.WriteDiff(diff)
		return err

	default:
		runs, err := db.ListRuns(ctx, opts.seed, opts.limit)
		if err != nil {
			return err
		}
		_, err = writer.WriteHistory(runs)
		return err
	}
}

func listSeeds(cmd *cobra.Command, db *database.CrawlDB, out io.Writer) error {
	seeds, err := db.ListSeeds(cmd.Context())
	if err != nil {
		return err
	}
	if len(seeds) == 0 {
		fmt.Fprintln(out, "No crawl history found.")
		return nil
	}
	for _, seed := range seeds {
		fmt.Fprintln(out, seed)
	}
	return nil
}
